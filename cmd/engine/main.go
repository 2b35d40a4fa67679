// Command engine runs the storage engine's REPL: CREATE/DROP/SHOW
// DATABASES, USE, CREATE/DROP TABLE, SHOW TABLES, CREATE/DROP INDEX, SHOW
// INDEXES, SELECT/INSERT/UPDATE/DELETE, EXECFILE, and QUIT, alongside an
// admin HTTP/gRPC surface for health checks and metrics scraping.
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/google/uuid"

	"github.com/nainya/treestore/internal/adminserver"
	"github.com/nainya/treestore/internal/config"
	"github.com/nainya/treestore/internal/lifecycle"
	"github.com/nainya/treestore/internal/logger"
	"github.com/nainya/treestore/internal/metrics"
)

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	lg := logger.NewLogger(logger.Config{Level: cfg.LogLevel, Pretty: true})
	m := metrics.New()

	sessionID := uuid.New().String()
	sessionLog := lg.WithFields(map[string]interface{}{"session_id": sessionID})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	super := lifecycle.New(ctx)
	eng := newEngine(cfg, sessionLog, m, super)
	defer eng.close()

	ready := false
	admin := adminserver.New(cfg.AdminHTTPAddr, cfg.AdminGRPCAddr, func() (bool, string) {
		if !ready {
			return false, "starting up"
		}
		return true, ""
	}, lg)
	super.Go(admin.Run)
	ready = true

	sessionLog.Info("engine ready").Str("data_dir", cfg.DataDir).Send()

	runREPL(eng, ctx)

	if err := super.Shutdown(); err != nil {
		sessionLog.Error("shutdown").Err(err).Send()
	}
}

// runREPL reads commands from stdin until QUIT, EOF, or ctx is canceled.
func runREPL(eng *engine, ctx context.Context) {
	scanner := bufio.NewScanner(os.Stdin)
	fmt.Print("engine> ")
	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return
		default:
		}

		line := strings.TrimSpace(scanner.Text())
		line = strings.TrimSuffix(line, ";")
		if line == "" {
			fmt.Print("engine> ")
			continue
		}

		if err := eng.Execute(line, os.Stdout); err != nil {
			if err == errQuit {
				return
			}
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
		}
		fmt.Print("engine> ")
	}
}
