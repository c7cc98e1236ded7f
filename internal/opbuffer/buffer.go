package opbuffer

import (
	"container/heap"
	"context"
	"fmt"
	"sync"
	"time"

	langerrors "github.com/steveyegge/langsmith-go/internal/errors"
	"github.com/steveyegge/langsmith-go/internal/serializer"
	"github.com/steveyegge/langsmith-go/internal/telemetry"
)

// Drain protocol timing (spec.md §4.4): the first item in a batch is
// fetched with a short bounded block; subsequent items use a tighter
// bound until the batch size limit or an empty queue is hit. This
// interleaving avoids microbatches on steady traffic and microsleeps on
// idle.
const (
	FirstItemTimeout    = 250 * time.Millisecond
	SubsequentItemTimeout = 50 * time.Millisecond
)

// Buffer is the bounded multi-producer op queue.
type Buffer struct {
	mu         sync.Mutex
	heap       opHeap
	byteCap    uint64
	totalBytes uint64
	notifyCh   chan struct{}
}

// New creates a Buffer capped at byteCap uncompressed bytes (spec.md
// §4.5's queue_byte_cap, default 1 GiB — the default lives in
// internal/config, this constructor just takes whatever it's given).
func New(byteCap uint64) *Buffer {
	return &Buffer{byteCap: byteCap, notifyCh: make(chan struct{})}
}

func approxSize(op serializer.Operation) uint64 {
	n := len(op.HeaderBytes) + len(op.Inputs) + len(op.Outputs) + len(op.Events) + len(op.FeedbackBody)
	for _, a := range op.Attachments {
		n += len(a.Data)
	}
	return uint64(n)
}

// Enqueue adds op to the queue. When the byte cap would be exceeded, it
// blocks until the compressor releases bytes (block=true), or returns
// ErrBackpressure immediately (block=false) — spec.md §4.4, §4.5.
func (b *Buffer) Enqueue(op serializer.Operation, block bool) error {
	sz := approxSize(op)

	b.mu.Lock()
	for b.totalBytes+sz > b.byteCap && b.byteCap > 0 {
		if !block {
			b.mu.Unlock()
			return fmt.Errorf("%w: %d bytes would exceed cap of %d", langerrors.ErrBackpressure, b.totalBytes+sz, b.byteCap)
		}
		ch := b.notifyCh
		b.mu.Unlock()
		<-ch
		b.mu.Lock()
	}
	heap.Push(&b.heap, &heapItem{op: op})
	b.totalBytes += sz
	b.wakeLocked()
	b.mu.Unlock()

	telemetry.Metrics.QueueBytes.Add(context.Background(), int64(sz))
	return nil
}

// Release decrements the uncompressed byte counter after a batch has been
// successfully uploaded (spec.md §4.5), unblocking any producer waiting
// on backpressure.
func (b *Buffer) Release(n uint64) {
	b.mu.Lock()
	if n > b.totalBytes {
		n = b.totalBytes
	}
	b.totalBytes -= n
	b.wakeLocked()
	b.mu.Unlock()

	telemetry.Metrics.QueueBytes.Add(context.Background(), -int64(n))
}

// UncompressedBytes reports the current accounted queue size (spec.md §8
// property 8: never exceeds the configured cap).
func (b *Buffer) UncompressedBytes() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.totalBytes
}

// Len reports the number of pending, unmerged operations.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.heap)
}

func (b *Buffer) wakeLocked() {
	close(b.notifyCh)
	b.notifyCh = make(chan struct{})
}

// popWait pops the highest-priority item, waiting up to timeout for one
// to arrive if the queue is currently empty.
func (b *Buffer) popWait(timeout time.Duration) (serializer.Operation, bool) {
	deadline := time.Now().Add(timeout)
	for {
		b.mu.Lock()
		if len(b.heap) > 0 {
			item := heap.Pop(&b.heap).(*heapItem)
			b.mu.Unlock()
			return item.op, true
		}
		ch := b.notifyCh
		b.mu.Unlock()

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return serializer.Operation{}, false
		}
		select {
		case <-ch:
			continue
		case <-time.After(remaining):
			return serializer.Operation{}, false
		}
	}
}

// Drain pulls up to maxItems operations using the two-tier timeout
// protocol, then coalesces post+patch pairs sharing an id (spec.md §4.4).
// It returns nil if nothing was available within FirstItemTimeout.
func (b *Buffer) Drain(maxItems int) []serializer.Operation {
	first, ok := b.popWait(FirstItemTimeout)
	if !ok {
		return nil
	}
	batch := []serializer.Operation{first}

	for len(batch) < maxItems {
		op, ok := b.popWait(SubsequentItemTimeout)
		if !ok {
			break
		}
		batch = append(batch, op)
	}

	return Coalesce(batch)
}

// DrainNonBlocking pulls whatever is immediately available, without the
// first-item block — used by the shutdown drain (spec.md §4.6): the
// control thread switches to non-blocking drains so it can loop until the
// queue is provably empty rather than waiting out the normal 250ms window
// on every final iteration.
func (b *Buffer) DrainNonBlocking(maxItems int) []serializer.Operation {
	var batch []serializer.Operation
	for len(batch) < maxItems {
		op, ok := b.popWait(0)
		if !ok {
			break
		}
		batch = append(batch, op)
	}
	if len(batch) == 0 {
		return nil
	}
	return Coalesce(batch)
}
