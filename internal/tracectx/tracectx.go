// Package tracectx is the single owner of the ambient "current parent
// run" and its associated project/tags/metadata/replica state (spec.md
// §4.8). DESIGN.md resolves the source's split ownership between
// _context.py and run_helpers.py by keeping exactly one owner here; every
// other package reads the ambient state through this package instead of
// holding its own copy.
//
// Go has no task-local storage, so the scope is carried explicitly on
// context.Context rather than as a mutable global — entering a scope
// returns a derived context whose ambient state is restored automatically
// when the caller's own context goes out of scope, including on a panic
// unwind, since nothing is ever mutated in place.
package tracectx

import (
	"context"

	"github.com/steveyegge/langsmith-go/internal/runtree"
)

// Replica is runtree.Replica. Aliased here so callers entering a
// WithReplicas scope don't need to import runtree directly; it is the
// same type a Run carries across the wire in its langsmith-replicas
// baggage key (spec.md §4.8, §6.2).
type Replica = runtree.Replica

type ambient struct {
	parent   *runtree.RunTree
	tags     []string
	metadata map[string]any
	project  string
	replicas []Replica
}

type ctxKey struct{}

func current(ctx context.Context) ambient {
	if a, ok := ctx.Value(ctxKey{}).(ambient); ok {
		return a
	}
	return ambient{}
}

func with(ctx context.Context, a ambient) context.Context {
	return context.WithValue(ctx, ctxKey{}, a)
}

// WithParent enters a scope whose ambient parent run is rt. A handler
// decoding propagation headers calls this with the stub AsParent()
// reconstructs, so a reroot later in that scope refers to the decoded
// parent rather than the original trace root (spec.md §4.8 nested
// rerooting across processes).
func WithParent(ctx context.Context, rt *runtree.RunTree) context.Context {
	a := current(ctx)
	a.parent = rt
	return with(ctx, a)
}

// Parent returns the ambient parent run, or nil if none is set.
func Parent(ctx context.Context) *runtree.RunTree {
	return current(ctx).parent
}

// WithTags enters a scope with the given ambient tags.
func WithTags(ctx context.Context, tags []string) context.Context {
	a := current(ctx)
	a.tags = append([]string(nil), tags...)
	return with(ctx, a)
}

// Tags returns the ambient tag list, or nil if none is set.
func Tags(ctx context.Context) []string { return current(ctx).tags }

// WithMetadata enters a scope with the given ambient metadata.
func WithMetadata(ctx context.Context, md map[string]any) context.Context {
	a := current(ctx)
	a.metadata = md
	return with(ctx, a)
}

// Metadata returns the ambient metadata, or nil if none is set.
func Metadata(ctx context.Context) map[string]any { return current(ctx).metadata }

// WithProject enters a scope whose default session_name is project.
func WithProject(ctx context.Context, project string) context.Context {
	a := current(ctx)
	a.project = project
	return with(ctx, a)
}

// Project returns the ambient default session_name.
func Project(ctx context.Context) string { return current(ctx).project }

// WithReplicas enters a scope that fans every run created within it out
// to additional destination projects (spec.md §4.8 distributed
// rerooting, §8 scenario S5).
func WithReplicas(ctx context.Context, replicas []Replica) context.Context {
	a := current(ctx)
	a.replicas = append([]Replica(nil), replicas...)
	return with(ctx, a)
}

// Replicas returns the ambient replica list, or nil if none is set.
func Replicas(ctx context.Context) []Replica { return current(ctx).replicas }

// FanoutReplicas expands run into one variant per entry in replicas
// (spec.md §4.8). A reroot=true replica gets its parent_run_id cleared,
// its dotted_order collapsed to its own final segment, and its trace_id
// reset to its own id; a reroot=false replica keeps the full inherited
// ancestry and only gets session_name overridden. With no replicas, run
// is returned unchanged as the sole element.
//
// Takes the replica list explicitly, rather than reading it from ctx,
// so a caller can capture replicas once at run-creation time and apply
// the same fanout consistently to every later patch of that run — the
// ambient scope may have since been exited by the time a patch fires.
func FanoutReplicas(run runtree.Run, replicas []Replica) []runtree.Run {
	if len(replicas) == 0 {
		return []runtree.Run{run}
	}

	out := make([]runtree.Run, 0, len(replicas))
	for _, r := range replicas {
		cp := run
		cp.SessionName = r.Project
		if r.Reroot {
			cp.ParentRunID = nil
			cp.TraceID = cp.ID
			cp.DottedOrder = runtree.LastSegment(run.DottedOrder)
		}
		out = append(out, cp)
	}
	return out
}

// Fanout expands run per the replicas active on ctx (spec.md §4.8).
func Fanout(ctx context.Context, run runtree.Run) []runtree.Run {
	return FanoutReplicas(run, Replicas(ctx))
}
