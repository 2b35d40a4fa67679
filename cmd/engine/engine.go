package main

import (
	"fmt"
	"io"

	"github.com/nainya/treestore/internal/config"
	"github.com/nainya/treestore/internal/lifecycle"
	"github.com/nainya/treestore/internal/logger"
	"github.com/nainya/treestore/internal/metrics"
)

// errQuit is returned by Execute when the session issued QUIT.
var errQuit = fmt.Errorf("quit")

// engine holds the process-wide state shared by every session: the
// configuration, the currently open database (if any — USE switches it),
// and the shared logger/metrics every subsystem logs and counts through.
type engine struct {
	cfg     config.Config
	log     *logger.Logger
	metrics *metrics.Metrics
	super   *lifecycle.Supervisor

	current *database
}

func newEngine(cfg config.Config, lg *logger.Logger, m *metrics.Metrics, super *lifecycle.Supervisor) *engine {
	return &engine{cfg: cfg, log: lg, metrics: m, super: super}
}

func (e *engine) close() error {
	if e.current != nil {
		return e.current.close()
	}
	return nil
}

// requireDatabase returns the currently open database, or an error if USE
// has not been issued yet.
func (e *engine) requireDatabase() (*database, error) {
	if e.current == nil {
		return nil, fmt.Errorf("no database selected; run USE <name> first")
	}
	return e.current, nil
}

// Execute runs one command line and writes its textual result to w.
// Returns errQuit when the line was QUIT.
func (e *engine) Execute(line string, w io.Writer) error {
	toks, err := tokenize(line)
	if err != nil {
		return err
	}
	s := newTokenStream(toks)
	if s.peek().kind == tokEOF {
		return nil
	}

	switch s.upperWord() {
	case "QUIT":
		return errQuit
	case "CREATE":
		return e.execCreate(s, w)
	case "DROP":
		return e.execDrop(s, w)
	case "SHOW":
		return e.execShow(s, w)
	case "USE":
		return e.execUse(s, w)
	case "INSERT":
		return e.execInsert(s, w)
	case "SELECT":
		return e.execSelect(s, w)
	case "UPDATE":
		return e.execUpdate(s, w)
	case "DELETE":
		return e.execDelete(s, w)
	case "EXECFILE":
		return e.execFile(s, w)
	default:
		return fmt.Errorf("unrecognized command %q", s.peek().text)
	}
}
