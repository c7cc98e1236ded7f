// Package runtree implements the run-tree data model and its distributed
// tracing identity rules: id/trace_id/dotted_order hierarchy encoding,
// child creation, and cross-process header propagation (spec.md §3, §4.2).
package runtree

import (
	"time"

	"github.com/google/uuid"
)

// RunType enumerates the kinds of operation a Run can represent.
type RunType string

const (
	RunTypeLLM       RunType = "llm"
	RunTypeChain     RunType = "chain"
	RunTypeTool      RunType = "tool"
	RunTypeRetriever RunType = "retriever"
	RunTypeEmbedding RunType = "embedding"
	RunTypePrompt    RunType = "prompt"
	RunTypeParser    RunType = "parser"
)

// Event is one entry in a run's ordered event stream (streaming tokens,
// tool progress, etc. — spec.md §3).
type Event struct {
	Name   string         `json:"name"`
	Time   time.Time      `json:"time"`
	Kwargs map[string]any `json:"kwargs,omitempty"`
}

// Attachment is an opaque binary payload uploaded out-of-band within the
// same multipart request (spec.md §3, §6.1).
type Attachment struct {
	MimeType string
	Data     []byte
}

// Extra carries free-form user and SDK annotations (spec.md §3).
type Extra struct {
	Metadata map[string]any `json:"metadata,omitempty"`
	Runtime  map[string]any `json:"runtime,omitempty"`
}

// Replica names one additional destination project a run should also be
// emitted to, optionally with its ancestry stripped (spec.md §4.8). It
// lives on Run rather than tracectx alone so it survives the trip across
// a process boundary: ToHeaders/FromHeaders carry it in the baggage
// header's langsmith-replicas key (spec.md §6.2), and AsParent restores it
// onto the reconstructed parent so a reroot decided upstream still
// applies to runs created downstream of the decoded header.
type Replica struct {
	Project string `json:"project"`
	Reroot  bool   `json:"reroot,omitempty"`
}

// Run is the central entity: one unit of work in a trace. Fields named
// here are exactly the ones spec.md §3 enumerates; nothing is added that
// the serializer or operation model doesn't need.
type Run struct {
	ID                 uuid.UUID
	TraceID            uuid.UUID
	ParentRunID        *uuid.UUID
	DottedOrder        string
	RunType            RunType
	Name               string
	StartTime          time.Time
	EndTime            *time.Time
	Inputs             any
	Outputs            any
	Error              *string
	Events             []Event
	Extra              Extra
	Tags               []string
	Attachments        map[string]Attachment
	SessionName        string
	SessionID          *uuid.UUID
	ReferenceExampleID *uuid.UUID
	Replicas           []Replica
}

// Snapshot returns a shallow copy of r suitable for handing to the
// serializer at post()/patch() time — spec.md §4.2 requires post/patch to
// "capture a snapshot of the run at call time" so later mutation of the
// live RunTree cannot race with an in-flight enqueue.
func (r *Run) Snapshot() Run {
	cp := *r
	if r.EndTime != nil {
		t := *r.EndTime
		cp.EndTime = &t
	}
	if r.Events != nil {
		cp.Events = append([]Event(nil), r.Events...)
	}
	if r.Tags != nil {
		cp.Tags = append([]string(nil), r.Tags...)
	}
	if r.Replicas != nil {
		cp.Replicas = append([]Replica(nil), r.Replicas...)
	}
	if r.Attachments != nil {
		cp.Attachments = make(map[string]Attachment, len(r.Attachments))
		for k, v := range r.Attachments {
			cp.Attachments[k] = v
		}
	}
	return cp
}
