package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/steveyegge/langsmith-go/internal/config"
	"github.com/steveyegge/langsmith-go/internal/runtree"
	"github.com/steveyegge/langsmith-go/internal/tracectx"
	"github.com/steveyegge/langsmith-go/internal/workerpool"
)

func newTestClient(t *testing.T, srv *httptest.Server) *Client {
	t.Helper()
	c, err := New(Config{
		TracingEnabled: true,
		Endpoint:       srv.URL,
		RetryMaxAttempts: 1,
		Worker: workerpool.Config{SizeLimitBytes: 1},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

// TestCreateRunThenFlushUploads covers spec.md §8 scenario S1's shape: a
// root run is created, ended, and patched; flush must observe it land.
func TestCreateRunThenFlushUploads(t *testing.T) {
	var requests int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&requests, 1)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	c := newTestClient(t, srv)
	rt := c.CreateRun(context.Background(), runtree.RunTypeChain, "parent")
	rt.End(map[string]any{"y": 2}, nil, nil)
	c.UpdateRun(rt)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := c.Flush(ctx); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	c.Cleanup()

	if atomic.LoadInt32(&requests) == 0 {
		t.Fatalf("expected at least one upload request")
	}
}

func TestCreateRunUsesAmbientParent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	c := newTestClient(t, srv)
	root := c.CreateRun(context.Background(), runtree.RunTypeChain, "root")

	ctx := tracectx.WithParent(context.Background(), root)
	child := c.CreateRun(ctx, runtree.RunTypeTool, "child")

	if child.TraceID != root.ID {
		t.Fatalf("child.TraceID = %v, want root.ID %v", child.TraceID, root.ID)
	}
	if child.ParentRunID == nil || *child.ParentRunID != root.ID {
		t.Fatalf("child.ParentRunID should be root.ID")
	}

	flushCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_ = c.Flush(flushCtx)
	c.Cleanup()
}

func TestTracingDisabledIsNoOp(t *testing.T) {
	c, err := New(Config{TracingEnabled: false})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	rt := c.CreateRun(context.Background(), runtree.RunTypeChain, "root")
	if rt == nil {
		t.Fatalf("CreateRun should still return a usable RunTree when tracing is disabled")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := c.Flush(ctx); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	c.Cleanup()
}

func TestNewRejectsMissingEndpointWhenTracingEnabled(t *testing.T) {
	if _, err := New(Config{TracingEnabled: true}); err == nil {
		t.Fatalf("expected configuration error for missing endpoint")
	}
}

func TestFromConfigMapsWorkerKnobs(t *testing.T) {
	cfg := config.Config{
		TracingEnabled: true,
		Endpoint:       "https://ingest.example.com",
		BatchSizeLimit: 250,
		BatchByteLimit: 1024,
	}

	mapped := FromConfig(cfg)
	if mapped.Endpoint != cfg.Endpoint {
		t.Fatalf("Endpoint = %q, want %q", mapped.Endpoint, cfg.Endpoint)
	}
	if mapped.Worker.BatchSizeLimit != 250 {
		t.Fatalf("Worker.BatchSizeLimit = %d, want 250", mapped.Worker.BatchSizeLimit)
	}
	if mapped.Worker.SizeLimitBytes != 1024 {
		t.Fatalf("Worker.SizeLimitBytes = %d, want 1024", mapped.Worker.SizeLimitBytes)
	}
}
