// Package opbuffer is the bounded multi-producer queue of pending
// create/update/feedback operations (spec.md §4.4): a priority queue
// ordered by (dotted_order, creation_seq, kind_rank), with opportunistic
// coalescing of post+patch pairs on the same run id at drain time.
//
// Grounded on the teacher's internal/eventbus dispatch shape (a small,
// mutex-guarded in-process structure with no external broker) generalized
// to a priority queue, since this pipeline's queue is local to the
// process rather than NATS-backed.
package opbuffer

import (
	"container/heap"

	"github.com/steveyegge/langsmith-go/internal/serializer"
)

type heapItem struct {
	op serializer.Operation
}

// opHeap orders items by (dotted_order, creation_seq, kind_rank) per
// spec.md §4.4: feedback and patches sort after their creation posts so
// the backend always sees a run created before it sees it updated.
type opHeap []*heapItem

func (h opHeap) Len() int { return len(h) }

func (h opHeap) Less(i, j int) bool {
	a, b := h[i].op, h[j].op
	if a.DottedOrder != b.DottedOrder {
		// Feedback carries no dotted_order; it sorts after every run
		// operation rather than ahead of them.
		if a.DottedOrder == "" || b.DottedOrder == "" {
			return b.DottedOrder == ""
		}
		return a.DottedOrder < b.DottedOrder
	}
	if a.CreationSeq != b.CreationSeq {
		return a.CreationSeq < b.CreationSeq
	}
	return a.Kind.Rank() < b.Kind.Rank()
}

func (h opHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *opHeap) Push(x any) {
	*h = append(*h, x.(*heapItem))
}

func (h *opHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}

var _ heap.Interface = (*opHeap)(nil)
