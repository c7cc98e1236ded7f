// Package workerpool is the elastic background pool that drains the
// OpBuffer into Compressor streams and hands finished batches to the
// Uploader (spec.md §4.6). Grounded on the teacher's daemon control-loop
// shape (cmd/bd/daemon_event_loop.go: one long-lived loop reacting to
// triggers rather than a fixed-size worker set) generalized to the
// spec's scale-up/scale-down sub-thread model, built on
// golang.org/x/sync/errgroup to track and join the threads it spawns.
package workerpool

import (
	"context"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/steveyegge/langsmith-go/internal/compressor"
	"github.com/steveyegge/langsmith-go/internal/opbuffer"
	"github.com/steveyegge/langsmith-go/internal/serializer"
	"github.com/steveyegge/langsmith-go/internal/telemetry"
	"github.com/steveyegge/langsmith-go/internal/uploader"
)

// Config holds the pool's elasticity and compression knobs (spec.md
// §4.10).
type Config struct {
	BatchSizeLimit         int
	ScaleUpQSizeTrigger    int
	ScaleUpNThreadsLimit   int
	ScaleDownNEmptyTrigger int
	CompressionLevel       int
	SizeLimitBytes         uint64
}

func (c Config) withDefaults() Config {
	if c.BatchSizeLimit <= 0 {
		c.BatchSizeLimit = 100
	}
	if c.ScaleUpQSizeTrigger <= 0 {
		c.ScaleUpQSizeTrigger = 1000
	}
	if c.ScaleUpNThreadsLimit <= 0 {
		c.ScaleUpNThreadsLimit = 16
	}
	if c.ScaleDownNEmptyTrigger <= 0 {
		c.ScaleDownNEmptyTrigger = 4
	}
	if c.CompressionLevel == 0 {
		c.CompressionLevel = 1
	}
	if c.SizeLimitBytes == 0 {
		c.SizeLimitBytes = 20 * 1024 * 1024
	}
	return c
}

// Pool is the elastic worker pool (spec.md §4.6): one long-lived control
// thread plus zero or more sub-threads spawned on demand, each draining
// the shared priority queue into its own Compressor stream, all feeding
// one shared, concurrency-safe Uploader.
type Pool struct {
	cfg Config
	buf *opbuffer.Buffer
	up  *uploader.Uploader

	ctx    context.Context
	cancel context.CancelFunc
	eg     *errgroup.Group

	subThreads atomic.Int32
	stopOnce   sync.Once
}

// New starts the pool's control thread against buf, compressing per cfg
// and uploading via up. Callers stop it with Shutdown, which drains buf
// to empty before returning (spec.md §4.6 shutdown drain, §8 property 9).
func New(buf *opbuffer.Buffer, up *uploader.Uploader, cfg Config) *Pool {
	cfg = cfg.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	eg, egCtx := errgroup.WithContext(ctx)

	p := &Pool{cfg: cfg, buf: buf, up: up, ctx: egCtx, cancel: cancel, eg: eg}

	eg.Go(func() error {
		p.controlLoop()
		return nil
	})

	return p
}

func (p *Pool) controlLoop() {
	comp := compressor.New(compressor.SizeLimitPolicy{Limit: p.cfg.SizeLimitBytes}, p.cfg.CompressionLevel)
	for {
		select {
		case <-p.ctx.Done():
			p.drainToEmpty(comp)
			return
		default:
		}

		if p.buf.Len() > p.cfg.ScaleUpQSizeTrigger && int(p.subThreads.Load()) < p.cfg.ScaleUpNThreadsLimit {
			p.spawnSubThread()
		}

		batch := p.buf.Drain(p.cfg.BatchSizeLimit)
		if len(batch) == 0 {
			// Idle: finalize any partial stream so its bytes are uploaded
			// and released, letting Flush return without waiting for the
			// size boundary.
			p.flushFinal(comp)
			continue
		}
		p.feed(p.ctx, comp, batch)
	}
}

// spawnSubThread starts one elastic sub-thread (spec.md §4.6 scale-up).
// Its scale-down trigger is jittered by a fixed-at-spawn [1.0, 1.3)
// multiplier (DESIGN.md's resolution of the source's unjittered
// scale_down_nempty_trigger) so sub-threads spawned together don't all
// exit on the same poll.
func (p *Pool) spawnSubThread() {
	p.subThreads.Add(1)
	telemetry.Metrics.SubThreadsSpawned.Add(context.Background(), 1)

	trigger := int(float64(p.cfg.ScaleDownNEmptyTrigger) * (1.0 + rand.Float64()*0.3))
	if trigger < 1 {
		trigger = 1
	}

	p.eg.Go(func() error {
		defer func() {
			p.subThreads.Add(-1)
			telemetry.Metrics.SubThreadsExited.Add(context.Background(), 1)
		}()

		comp := compressor.New(compressor.SizeLimitPolicy{Limit: p.cfg.SizeLimitBytes}, p.cfg.CompressionLevel)
		consecutiveEmpty := 0
		for {
			select {
			case <-p.ctx.Done():
				p.drainToEmpty(comp)
				return nil
			default:
			}

			batch := p.buf.Drain(p.cfg.BatchSizeLimit)
			if len(batch) == 0 {
				consecutiveEmpty++
				if consecutiveEmpty >= trigger {
					p.flushFinal(comp)
					return nil
				}
				continue
			}
			consecutiveEmpty = 0
			p.feed(p.ctx, comp, batch)
		}
	})
}

// feed writes each op into comp, uploading and releasing whenever comp
// reports its flush boundary has been crossed.
func (p *Pool) feed(ctx context.Context, comp *compressor.Compressor, batch []serializer.Operation) {
	for _, op := range batch {
		b, ready, err := comp.Write(op)
		if err != nil {
			telemetry.WarnOnce("workerpool-compress", "dropping operation %s: %v", op.ID, err)
			continue
		}
		if ready {
			p.upload(ctx, b)
		}
	}
}

func (p *Pool) upload(ctx context.Context, b *compressor.Batch) {
	if err := p.up.Upload(ctx, b); err != nil {
		telemetry.WarnOnce("workerpool-upload", "batch upload failed: %v", err)
	}
	p.buf.Release(b.UncompressedSize)
}

func (p *Pool) flushFinal(comp *compressor.Compressor) {
	final, err := comp.Flush()
	if err != nil {
		telemetry.WarnOnce("workerpool-flush", "failed to finalize trailing batch: %v", err)
		return
	}
	if final != nil {
		p.upload(context.Background(), final)
	}
}

// drainToEmpty switches to non-blocking drains so shutdown terminates in
// bounded time once the queue is provably empty, rather than waiting out
// the normal 250ms first-item window on a queue that will never fill
// again (spec.md §4.6 shutdown drain).
func (p *Pool) drainToEmpty(comp *compressor.Compressor) {
	for {
		batch := p.buf.DrainNonBlocking(p.cfg.BatchSizeLimit)
		if len(batch) == 0 {
			break
		}
		p.feed(context.Background(), comp, batch)
	}
	p.flushFinal(comp)
}

// Flush blocks until the queue and the uncompressed-byte accounting both
// reach zero, without stopping the pool's threads (spec.md §4.9 flush()).
func (p *Pool) Flush(ctx context.Context) error {
	for {
		if p.buf.Len() == 0 && p.buf.UncompressedBytes() == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(10 * time.Millisecond):
		}
	}
}

// Shutdown signals every thread to stop and waits for the shutdown drain
// to complete (spec.md §4.6, §4.9 cleanup()).
func (p *Pool) Shutdown() {
	p.stopOnce.Do(p.cancel)
	_ = p.eg.Wait()
}
