package idgen

import (
	"testing"
	"time"
)

func TestNewAtEncodesTimestamp(t *testing.T) {
	resetForTest(0, 0)
	start := time.Date(2024, 3, 15, 10, 30, 0, 123_000_000, time.UTC)
	id := NewAt(start)

	got := Timestamp(id)
	if !got.Equal(start.Truncate(time.Millisecond)) {
		t.Fatalf("Timestamp(NewAt(start)) = %v, want %v", got, start.Truncate(time.Millisecond))
	}
}

func TestNewAtSetsVersionAndVariant(t *testing.T) {
	resetForTest(0, 0)
	id := NewAt(time.Now())

	if version := id[6] >> 4; version != 0x7 {
		t.Fatalf("version nibble = %x, want 7", version)
	}
	if variant := id[8] >> 6; variant != 0b10 {
		t.Fatalf("variant bits = %b, want 10", variant)
	}
}

func TestMonotonicWithinSameMillisecond(t *testing.T) {
	resetForTest(0, 0)
	ts := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	a := NewAt(ts)
	b := NewAt(ts)
	c := NewAt(ts)

	if a.String() >= b.String() {
		t.Fatalf("a=%s should sort before b=%s", a, b)
	}
	if b.String() >= c.String() {
		t.Fatalf("b=%s should sort before c=%s", b, c)
	}
}

func TestCounterOverflowAdvancesTimestamp(t *testing.T) {
	ts := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	resetForTest(uint64(ts.UnixMilli()), maxCounter)

	id := NewAt(ts)
	got := Timestamp(id)
	want := ts.Add(time.Millisecond)
	if !got.Equal(want) {
		t.Fatalf("Timestamp after overflow = %v, want %v", got, want)
	}
}

func TestClockRegressionForcesForwardProgress(t *testing.T) {
	future := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	resetForTest(uint64(future.UnixMilli()), 100)

	past := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	id := NewAt(past)

	got := Timestamp(id)
	want := future.Add(time.Millisecond)
	if !got.Equal(want) {
		t.Fatalf("Timestamp after clock regression = %v, want %v", got, want)
	}
}

func TestNewUsesWallClock(t *testing.T) {
	resetForTest(0, 0)
	before := time.Now().Add(-time.Second)
	id := New()
	after := time.Now().Add(time.Second)

	ts := Timestamp(id)
	if ts.Before(before) || ts.After(after) {
		t.Fatalf("Timestamp(New()) = %v, want between %v and %v", ts, before, after)
	}
}
