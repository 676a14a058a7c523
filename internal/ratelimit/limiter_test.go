package ratelimit

import (
	"testing"
	"time"
)

func TestFrameGate_EnforcesMinIntervalPerSource(t *testing.T) {
	t.Parallel()

	gate := New(Config{MinInterval: 100 * time.Millisecond})
	t0 := time.Unix(1_700_000_000, 0).UTC()

	if r := gate.Take(t0, "cam-a"); !r.Allowed {
		t.Fatalf("first frame denied: %#v", r)
	}
	r := gate.Take(t0.Add(40*time.Millisecond), "cam-a")
	if r.Allowed {
		t.Fatalf("frame 40ms later should be denied: %#v", r)
	}
	if r.RetryIn <= 0 || r.RetryIn > 60*time.Millisecond {
		t.Fatalf("RetryIn = %s, want (0, 60ms]", r.RetryIn)
	}

	// Independent sources do not share a budget.
	if r := gate.Take(t0.Add(40*time.Millisecond), "cam-b"); !r.Allowed {
		t.Fatalf("other source denied: %#v", r)
	}

	if r := gate.Take(t0.Add(120*time.Millisecond), "cam-a"); !r.Allowed {
		t.Fatalf("frame after interval denied: %#v", r)
	}
}

func TestFrameGate_ZeroIntervalAllowsEverything(t *testing.T) {
	t.Parallel()

	gate := New(Config{})
	now := time.Unix(1_700_000_000, 0).UTC()
	for i := 0; i < 100; i++ {
		if r := gate.Take(now, "cam"); !r.Allowed {
			t.Fatalf("frame #%d denied with zero interval", i+1)
		}
	}
}

func TestFrameGate_EvictsIdleSources(t *testing.T) {
	t.Parallel()

	gate := New(Config{MinInterval: time.Second, MaxSources: 2})
	t0 := time.Unix(1_700_000_000, 0).UTC()

	gate.Take(t0, "a")
	gate.Take(t0, "b")
	gate.Take(t0.Add(2*time.Second), "c")

	if n := len(gate.entries); n > 2 {
		t.Fatalf("entries = %d, want <= 2", n)
	}
	if _, ok := gate.entries["c"]; !ok {
		t.Fatalf("new source not tracked")
	}
}

func TestFrameGate_FullTableEvictsOnlyLeastRecentSource(t *testing.T) {
	t.Parallel()

	gate := New(Config{MinInterval: time.Second, MaxSources: 2})
	t0 := time.Unix(1_700_000_000, 0).UTC()

	gate.Take(t0, "a")
	gate.Take(t0.Add(100*time.Millisecond), "b")
	if r := gate.Take(t0.Add(200*time.Millisecond), "c"); !r.Allowed {
		t.Fatalf("new source denied: %#v", r)
	}

	if _, ok := gate.entries["a"]; ok {
		t.Fatalf("least recent source a should have been evicted")
	}
	if len(gate.entries) != 2 {
		t.Fatalf("entries = %d, want 2", len(gate.entries))
	}
	// b stayed tracked, so it does not get a frame before its interval.
	if r := gate.Take(t0.Add(300*time.Millisecond), "b"); r.Allowed {
		t.Fatalf("active source b got an extra frame after eviction")
	}
}
