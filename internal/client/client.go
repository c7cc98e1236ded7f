// Package client is the thin, thread-safe façade spec.md §4.9 describes:
// create_run/update_run/create_feedback enqueue operations without
// blocking the caller except under byte-cap backpressure; flush/cleanup
// wait for and then stop the background pipeline.
package client

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/steveyegge/langsmith-go/internal/config"
	langerrors "github.com/steveyegge/langsmith-go/internal/errors"
	"github.com/steveyegge/langsmith-go/internal/opbuffer"
	"github.com/steveyegge/langsmith-go/internal/runtree"
	"github.com/steveyegge/langsmith-go/internal/serializer"
	"github.com/steveyegge/langsmith-go/internal/telemetry"
	"github.com/steveyegge/langsmith-go/internal/tracectx"
	"github.com/steveyegge/langsmith-go/internal/uploader"
	"github.com/steveyegge/langsmith-go/internal/workerpool"
)

// Config holds the knobs spec.md §4.10 names. Endpoint/APIKey/ServiceKey
// and the retry knobs are forwarded to the Uploader; QueueByteCap to the
// OpBuffer; the rest of Worker to the WorkerPool.
type Config struct {
	TracingEnabled bool
	Endpoint       string
	APIKey         string
	ServiceKey     string
	Project        string
	HideInputs     bool
	HideOutputs    bool

	QueueByteCap  uint64
	RetryMaxAttempts int
	RetryMaxBackoff  time.Duration

	Worker workerpool.Config
}

// Client is safe for concurrent use by multiple goroutines (spec.md
// §4.9): its only mutable state is the OpBuffer, which is itself
// concurrency-safe.
type Client struct {
	cfg  Config
	buf  *opbuffer.Buffer
	pool *workerpool.Pool
}

// New validates cfg and starts the background pipeline (spec.md §7: a
// configuration failure raises synchronously at construction).
func New(cfg Config) (*Client, error) {
	if cfg.TracingEnabled {
		if cfg.Endpoint == "" {
			return nil, fmt.Errorf("%w: endpoint is required when tracing_enabled is true", langerrors.ErrConfiguration)
		}
		if cfg.APIKey == "" && cfg.ServiceKey == "" && !isLocalEndpoint(cfg.Endpoint) {
			return nil, fmt.Errorf("%w: api_key or service_key is required for a remote endpoint", langerrors.ErrConfiguration)
		}
	}
	buf := opbuffer.New(cfg.QueueByteCap)
	up := uploader.New(uploader.Config{
		Endpoint:    cfg.Endpoint,
		APIKey:      cfg.APIKey,
		ServiceKey:  cfg.ServiceKey,
		MaxAttempts: cfg.RetryMaxAttempts,
		MaxBackoff:  cfg.RetryMaxBackoff,
	}, nil)
	pool := workerpool.New(buf, up, cfg.Worker)

	return &Client{cfg: cfg, buf: buf, pool: pool}, nil
}

func isLocalEndpoint(endpoint string) bool {
	return strings.Contains(endpoint, "localhost") || strings.Contains(endpoint, "127.0.0.1")
}

// FromConfig maps a loaded config.Config (internal/config.Load's result,
// itself layered from defaults, an optional TOML file, env vars, and any
// server-advertised batch_ingest_config already merged via
// config.Config.MergeServerInfo) onto the Config shape New expects.
func FromConfig(cfg config.Config) Config {
	return Config{
		TracingEnabled:   cfg.TracingEnabled,
		Endpoint:         cfg.Endpoint,
		APIKey:           cfg.APIKey,
		ServiceKey:       cfg.ServiceKey,
		Project:          cfg.Project,
		HideInputs:       cfg.HideInputs,
		HideOutputs:      cfg.HideOutputs,
		QueueByteCap:     cfg.QueueByteCap,
		RetryMaxAttempts: cfg.RetryMaxAttempts,
		RetryMaxBackoff:  cfg.RetryMaxBackoff,
		Worker: workerpool.Config{
			BatchSizeLimit:         cfg.BatchSizeLimit,
			ScaleUpQSizeTrigger:    cfg.ScaleUpQSizeTrigger,
			ScaleUpNThreadsLimit:   cfg.ScaleUpNThreadsLimit,
			ScaleDownNEmptyTrigger: cfg.ScaleDownNEmptyTrigger,
			CompressionLevel:       cfg.CompressionLevel,
			SizeLimitBytes:         cfg.BatchByteLimit,
		},
	}
}

// CreateRun starts a new run: a root if ctx carries no ambient parent
// (tracectx.Parent), otherwise a child of that parent. It captures the
// ambient replicas/tags/metadata active on ctx at this instant and
// enqueues the resulting PostRun(s) (spec.md §4.9 create_run, §4.8).
func (c *Client) CreateRun(ctx context.Context, runType runtree.RunType, name string, opts ...runtree.RootOption) *runtree.RunTree {
	var rt *runtree.RunTree
	if parent := tracectx.Parent(ctx); parent != nil {
		rt = parent.CreateChild(runType, name, opts...)
	} else {
		rt = runtree.NewRoot(c, runType, name, opts...)
	}

	if len(rt.Tags) == 0 {
		if tags := tracectx.Tags(ctx); len(tags) > 0 {
			rt.Tags = tags
		}
	}
	if rt.Extra.Metadata == nil {
		rt.Extra.Metadata = tracectx.Metadata(ctx)
	}
	if rt.SessionName == "" {
		rt.SessionName = tracectx.Project(ctx)
	}
	if replicas := tracectx.Replicas(ctx); len(replicas) > 0 {
		rt.Replicas = replicas
	}

	rt.Post()
	return rt
}

// UpdateRun enqueues a PatchRun carrying the run's current state (spec.md
// §4.9 update_run). Callers typically call rt.End(...) (or mutate fields
// directly) before calling UpdateRun.
func (c *Client) UpdateRun(rt *runtree.RunTree) {
	rt.Patch()
}

// CreateFeedback enqueues one PostFeedback (spec.md §4.9 create_feedback).
func (c *Client) CreateFeedback(fb serializer.Feedback) {
	if !c.cfg.TracingEnabled {
		return
	}
	op, err := serializer.SerializeFeedback(fb)
	if err != nil {
		telemetry.WarnOnce("client-serialize-feedback-"+fb.ID.String(), "dropping feedback: %v", err)
		return
	}
	if err := c.buf.Enqueue(op, true); err != nil {
		telemetry.WarnOnce("client-enqueue-feedback", "enqueue failed: %v", err)
	}
}

// EnqueuePostRun implements runtree.Enqueuer.
func (c *Client) EnqueuePostRun(run runtree.Run) { c.enqueueRun(serializer.KindPostRun, run) }

// EnqueuePatchRun implements runtree.Enqueuer.
func (c *Client) EnqueuePatchRun(run runtree.Run) { c.enqueueRun(serializer.KindPatchRun, run) }

func (c *Client) enqueueRun(kind serializer.Kind, run runtree.Run) {
	if !c.cfg.TracingEnabled {
		return
	}
	if c.cfg.HideInputs {
		run.Inputs = nil
	}
	if c.cfg.HideOutputs {
		run.Outputs = nil
	}
	if run.SessionName == "" {
		run.SessionName = c.cfg.Project
	}

	variants := tracectx.FanoutReplicas(run, run.Replicas)

	for _, v := range variants {
		op, err := serializer.SerializeRun(kind, v)
		if err != nil {
			telemetry.WarnOnce("client-serialize-run-"+v.ID.String(), "dropping %s for run %s: %v", kind, v.ID, err)
			continue
		}
		if err := c.buf.Enqueue(op, true); err != nil {
			telemetry.WarnOnce("client-enqueue-run", "enqueue failed: %v", err)
		}
	}
}

// Flush waits for the queue to reach empty and all in-flight uploads to
// settle (spec.md §4.9). It never returns an error for failed batches —
// per spec.md §7, those are only visible through metrics.
func (c *Client) Flush(ctx context.Context) error {
	return c.pool.Flush(ctx)
}

// Cleanup signals the background pool to stop, draining the queue first
// (spec.md §4.9, §4.6 shutdown drain).
func (c *Client) Cleanup() {
	c.pool.Shutdown()
}
