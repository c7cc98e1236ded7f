package runtree

import (
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// segment builds one dotted_order segment: the run's UTC start time as
// YYYYMMDDTHHMMSSffffffZ followed by the run's id with dashes stripped
// (spec.md §3). Sorting runs of the same trace by dotted_order therefore
// yields a valid depth-first ordering: a segment's timestamp prefix
// dominates the comparison, and the trailing id breaks ties between
// siblings created in the same microsecond.
func segment(start time.Time, id uuid.UUID) string {
	t := start.UTC()
	ts := fmt.Sprintf("%04d%02d%02dT%02d%02d%02d%06dZ",
		t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond()/1000)
	return ts + hex.EncodeToString(id[:])
}

// lastSegmentID extracts the id encoded in the final segment of a
// dotted_order, used when reconstructing a stub RunTree from propagation
// headers (spec.md §4.2 header decoding).
func lastSegmentID(dottedOrder string) (uuid.UUID, error) {
	idx := lastDot(dottedOrder)
	last := dottedOrder[idx+1:]
	if len(last) < 32 {
		return uuid.UUID{}, fmt.Errorf("dotted_order segment %q too short to contain an id", last)
	}
	hexID := last[len(last)-32:]
	raw, err := hex.DecodeString(hexID)
	if err != nil {
		return uuid.UUID{}, fmt.Errorf("decode id from dotted_order: %w", err)
	}
	var id uuid.UUID
	copy(id[:], raw)
	return id, nil
}

// LastSegment returns the final "." separated segment of a dotted_order,
// used by distributed rerooting (spec.md §4.8) to collapse a run's
// inherited path down to the single segment that represents itself.
func LastSegment(dottedOrder string) string {
	idx := lastDot(dottedOrder)
	if idx < 0 {
		return dottedOrder
	}
	return dottedOrder[idx+1:]
}

func lastDot(s string) int {
	idx := -1
	for i, c := range s {
		if c == '.' {
			idx = i
		}
	}
	return idx
}
