package runtree

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/google/uuid"
)

const (
	// HeaderTrace carries <trace_id>.<dotted_order> (spec.md §4.2, §6.2).
	HeaderTrace = "langsmith-trace"
	// HeaderBaggage carries W3C Baggage-formatted ambient metadata
	// (spec.md §4.2, §6.2).
	HeaderBaggage = "baggage"
)

// ToHeaders encodes rt for cross-process propagation (spec.md §4.2, §6.2).
// Both headers are case-insensitive on the wire; callers set them verbatim.
func (rt *RunTree) ToHeaders() map[string]string {
	trace := fmt.Sprintf("%s.%s", rt.TraceID.String(), rt.DottedOrder)

	var parts []string
	if len(rt.Extra.Metadata) > 0 {
		if b, err := json.Marshal(rt.Extra.Metadata); err == nil {
			parts = append(parts, "langsmith-metadata="+url.QueryEscape(string(b)))
		}
	}
	if len(rt.Tags) > 0 {
		parts = append(parts, "langsmith-tags="+url.QueryEscape(strings.Join(rt.Tags, ",")))
	}
	if rt.SessionName != "" {
		parts = append(parts, "langsmith-project="+url.QueryEscape(rt.SessionName))
	}
	if len(rt.Replicas) > 0 {
		if b, err := json.Marshal(rt.Replicas); err == nil {
			parts = append(parts, "langsmith-replicas="+url.QueryEscape(string(b)))
		}
	}

	return map[string]string{
		HeaderTrace:   trace,
		HeaderBaggage: strings.Join(parts, ","),
	}
}

// HeaderStub is the reconstructed parent-pointer a receiving process
// builds from decoded propagation headers (spec.md §4.2 header decoding).
// It carries just enough to become the parent of a child created within
// the receiving handler: it is not a full Run and is never itself
// posted/patched.
type HeaderStub struct {
	TraceID     string
	DottedOrder string
	Metadata    map[string]any
	Tags        []string
	SessionName string
	Replicas    []Replica
}

// FromHeaders reconstructs a HeaderStub from the two propagation headers.
// Header lookups in traceHeader/baggageHeader must already be
// case-normalized by the caller (net/http does this for http.Header).
func FromHeaders(traceHeader, baggageHeader string) (*HeaderStub, error) {
	if traceHeader == "" {
		return nil, fmt.Errorf("%s header is empty", HeaderTrace)
	}
	idx := strings.IndexByte(traceHeader, '.')
	if idx < 0 {
		return nil, fmt.Errorf("%s header %q missing dotted_order separator", HeaderTrace, traceHeader)
	}
	traceID := traceHeader[:idx]
	dottedOrder := traceHeader[idx+1:]

	stub := &HeaderStub{TraceID: traceID, DottedOrder: dottedOrder}

	for _, pair := range strings.Split(baggageHeader, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		kv := strings.SplitN(pair, "=", 2)
		if len(kv) != 2 {
			continue
		}
		key, rawVal := kv[0], kv[1]
		val, err := url.QueryUnescape(rawVal)
		if err != nil {
			continue
		}
		switch key {
		case "langsmith-metadata":
			var md map[string]any
			if err := json.Unmarshal([]byte(val), &md); err == nil {
				stub.Metadata = md
			}
		case "langsmith-tags":
			if val != "" {
				stub.Tags = strings.Split(val, ",")
			}
		case "langsmith-project":
			stub.SessionName = val
		case "langsmith-replicas":
			var replicas []Replica
			if err := json.Unmarshal([]byte(val), &replicas); err == nil {
				stub.Replicas = replicas
			}
		}
	}

	return stub, nil
}

// AsParent reconstructs the partial RunTree a HeaderStub represents: its
// id is the last dotted_order segment, matching spec.md §4.2's "id = last
// dotted_order segment" rule, so a child created from it attaches to the
// correct parent (spec.md §8 property 7 round-trip).
func (s *HeaderStub) AsParent(enqueuer Enqueuer) (*RunTree, error) {
	id, err := lastSegmentID(s.DottedOrder)
	if err != nil {
		return nil, err
	}

	traceID, err := uuid.Parse(s.TraceID)
	if err != nil {
		return nil, fmt.Errorf("parse trace_id from headers: %w", err)
	}

	run := Run{
		ID:          id,
		TraceID:     traceID,
		DottedOrder: s.DottedOrder,
		SessionName: s.SessionName,
		Tags:        s.Tags,
		Replicas:    s.Replicas,
	}
	if s.Metadata != nil {
		run.Extra.Metadata = s.Metadata
	}

	return &RunTree{Run: run, enqueuer: enqueuer}, nil
}
