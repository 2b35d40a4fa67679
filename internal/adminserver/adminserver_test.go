// ABOUTME: Tests for the admin HTTP/gRPC surface
// ABOUTME: Covers health and readiness endpoints over a live listener

package adminserver

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/nainya/treestore/internal/logger"
)

func freePort(t *testing.T) int {
	t.Helper()
	lis, err := net.Listen("tcp", ":0")
	if err != nil {
		t.Fatal(err)
	}
	port := lis.Addr().(*net.TCPAddr).Port
	lis.Close()
	return port
}

func TestHealthzAndReadyzEndpoints(t *testing.T) {
	log := logger.NewLogger(logger.Config{Level: "error"})
	httpPort, grpcPort := freePort(t), freePort(t)
	httpAddr := fmt.Sprintf(":%d", httpPort)
	grpcAddr := fmt.Sprintf(":%d", grpcPort)

	ready := false
	srv := New(httpAddr, grpcAddr, func() (bool, string) {
		if ready {
			return true, ""
		}
		return false, "recovering"
	}, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()

	waitForListener(t, httpAddr)

	resp, err := http.Get("http://127.0.0.1" + httpAddr + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("/healthz status = %d, want 200", resp.StatusCode)
	}
	resp.Body.Close()

	resp, err = http.Get("http://127.0.0.1" + httpAddr + "/readyz")
	if err != nil {
		t.Fatalf("GET /readyz: %v", err)
	}
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("/readyz status = %d, want 503 while not ready", resp.StatusCode)
	}
	resp.Body.Close()

	ready = true
	resp, err = http.Get("http://127.0.0.1" + httpAddr + "/readyz")
	if err != nil {
		t.Fatalf("GET /readyz: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("/readyz status = %d, want 200 once ready", resp.StatusCode)
	}
	resp.Body.Close()

	resp, err = http.Get("http://127.0.0.1" + httpAddr + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if len(body) == 0 {
		t.Fatal("/metrics returned an empty body")
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned error after shutdown: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("server did not shut down within 2s of context cancellation")
	}
}

func waitForListener(t *testing.T, addr string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		conn, err := net.Dial("tcp", addr)
		if err == nil {
			conn.Close()
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("listener at %s never came up", addr)
}
