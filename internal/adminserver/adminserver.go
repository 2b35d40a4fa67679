// Package adminserver exposes the engine's operational surface: an HTTP mux
// for health/readiness/metrics scraping, plus a bare gRPC server carrying
// only the standard health and reflection services. It adapts the teacher's
// internal/server/observability.go HTTP mux pattern; the teacher's bespoke
// TreeStoreServiceServer is not reproduced here since its generated
// .proto/.pb.go stubs were never part of the retrieved pack (see DESIGN.md).
package adminserver

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
	"google.golang.org/protobuf/types/known/timestamppb"

	"github.com/nainya/treestore/internal/logger"
)

// ReadinessFunc reports whether the engine is ready to serve requests, e.g.
// whether recovery has finished replaying the log.
type ReadinessFunc func() (ready bool, reason string)

// Server runs the engine's admin HTTP and gRPC listeners side by side.
type Server struct {
	http      *http.Server
	grpc      *grpc.Server
	grpcAddr  string
	health    *health.Server
	log       *logger.Logger
	startedAt *timestamppb.Timestamp
	ready     ReadinessFunc
}

// New builds an admin server listening on httpAddr for HTTP and grpcAddr for
// gRPC. ready is consulted by /readyz and the gRPC health service; a nil
// ready reports the engine as always ready.
func New(httpAddr, grpcAddr string, ready ReadinessFunc, log *logger.Logger) *Server {
	if ready == nil {
		ready = func() (bool, string) { return true, "" }
	}
	log = log.Component("admin")

	s := &Server{
		grpcAddr:  grpcAddr,
		health:    health.NewServer(),
		log:       log,
		startedAt: timestamppb.Now(),
		ready:     ready,
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.HandleFunc("/readyz", s.handleReadyz)

	s.http = &http.Server{
		Addr:         httpAddr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	grpcServer := grpc.NewServer()
	healthpb.RegisterHealthServer(grpcServer, s.health)
	reflection.Register(grpcServer)
	s.grpc = grpcServer

	return s
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, `{"status":"healthy","started_at":%q}`, s.startedAt.AsTime().Format(time.RFC3339))
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	ready, reason := s.ready()
	w.Header().Set("Content-Type", "application/json")
	if !ready {
		w.WriteHeader(http.StatusServiceUnavailable)
		fmt.Fprintf(w, `{"status":"not_ready","reason":%q}`, reason)
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ready"}`))
}

// Run starts both listeners and blocks until ctx is canceled, then shuts
// both down gracefully. Intended to be launched under an
// internal/lifecycle.Supervisor.
func (s *Server) Run(ctx context.Context) error {
	lis, err := net.Listen("tcp", s.grpcAddr)
	if err != nil {
		return fmt.Errorf("adminserver: listening on %s: %w", s.grpcAddr, err)
	}

	ready, _ := s.ready()
	status := healthpb.HealthCheckResponse_SERVING
	if !ready {
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}
	s.health.SetServingStatus("", status)

	errCh := make(chan error, 2)
	go func() {
		s.log.Info("admin HTTP listening").Str("addr", s.http.Addr).Send()
		if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("adminserver: http: %w", err)
			return
		}
		errCh <- nil
	}()
	go func() {
		s.log.Info("admin gRPC listening").Str("addr", s.grpcAddr).Send()
		if err := s.grpc.Serve(lis); err != nil {
			errCh <- fmt.Errorf("adminserver: grpc: %w", err)
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.http.Shutdown(shutdownCtx)
		s.grpc.GracefulStop()
		<-errCh
		<-errCh
		return nil
	case err := <-errCh:
		return err
	}
}
