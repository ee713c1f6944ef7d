package main

import (
	"fmt"
	"math"
	"testing"
)

func TestAddTrust_ClampsWeight(t *testing.T) {
	store := NewTrustStore()

	tests := []struct {
		weight   float64
		expected float64
	}{
		{0.5, 0.5},
		{1.0, 1.0},
		{0.1, 0.1},
		{1.7, 1.0},
		{0.0, 0.1},
		{-3.0, 0.1},
		{math.NaN(), 0.1},
	}

	for _, tt := range tests {
		edge := store.AddTrust("https://a.example/u/a", "https://b.example/u/b", tt.weight)
		if edge.Weight != tt.expected {
			t.Errorf("AddTrust(%v): expected weight %v, got %v", tt.weight, tt.expected, edge.Weight)
		}
	}
}

func TestAddTrust_LastWriteWins(t *testing.T) {
	store := NewTrustStore()

	store.AddTrust("https://a.example/u/a", "https://b.example/u/b", 0.4)
	store.AddTrust("https://a.example/u/a", "https://b.example/u/b", 0.9)

	if got := store.DirectTrust("https://a.example/u/a", "https://b.example/u/b"); got != 0.9 {
		t.Errorf("Expected re-issued weight 0.9, got %f", got)
	}
	if store.EdgeCount() != 1 {
		t.Errorf("Expected a single edge after re-issue, got %d", store.EdgeCount())
	}
}

func TestDirectTrust_MissingEdgeIsZero(t *testing.T) {
	store := NewTrustStore()

	if got := store.DirectTrust("https://a.example/u/a", "https://b.example/u/b"); got != 0.0 {
		t.Errorf("Expected 0.0 for missing edge, got %f", got)
	}
}

func TestTrustScore_SelfTrust(t *testing.T) {
	store := NewTrustStore()

	if got := store.TrustScore("https://a.example/u/a", "https://a.example/u/a", DefaultTrustMaxDepth); got != 1.0 {
		t.Errorf("Expected self-trust 1.0, got %f", got)
	}
}

func TestTrustScore_DepthZeroBeatsSelfTrust(t *testing.T) {
	store := NewTrustStore()

	// The depth bound is checked before the self case.
	if got := store.TrustScore("https://a.example/u/a", "https://a.example/u/a", 0); got != 0.0 {
		t.Errorf("Expected 0.0 at depth 0 even for self, got %f", got)
	}
}

func TestTrustScore_DirectEdgeShortCircuits(t *testing.T) {
	store := NewTrustStore()

	a := "https://a.example/u/a"
	b := "https://b.example/u/b"
	relay := "https://r.example/u/r"

	store.AddTrust(a, b, 0.2)
	// A stronger indirect path exists but direct trust dominates.
	store.AddTrust(a, relay, 1.0)
	store.AddTrust(relay, b, 1.0)

	for depth := 1; depth <= 4; depth++ {
		if got := store.TrustScore(a, b, depth); got != 0.2 {
			t.Errorf("depth %d: expected direct weight 0.2, got %f", depth, got)
		}
	}
}

func TestTrustScore_TwoHopDamping(t *testing.T) {
	store := NewTrustStore()

	a := "https://a.example/u/a"
	b := "https://b.example/u/b"
	c := "https://c.example/u/c"

	store.AddTrust(a, b, 0.8)
	store.AddTrust(b, c, 0.5)

	expected := 0.8 * 0.5 * 0.8
	if got := store.TrustScore(a, c, DefaultTrustMaxDepth); math.Abs(got-expected) > 1e-9 {
		t.Errorf("Expected damped two-hop score %f, got %f", expected, got)
	}
}

func TestTrustScore_TakesStrongestRelay(t *testing.T) {
	store := NewTrustStore()

	a := "https://a.example/u/a"
	target := "https://t.example/u/t"
	weak := "https://w.example/u/w"
	strong := "https://s.example/u/s"

	store.AddTrust(a, weak, 0.3)
	store.AddTrust(weak, target, 0.3)
	store.AddTrust(a, strong, 0.9)
	store.AddTrust(strong, target, 0.9)

	expected := 0.9 * 0.9 * 0.8
	if got := store.TrustScore(a, target, DefaultTrustMaxDepth); math.Abs(got-expected) > 1e-9 {
		t.Errorf("Expected max over relays %f, got %f", expected, got)
	}
}

func TestTrustScore_DepthBoundCutsLongPaths(t *testing.T) {
	store := NewTrustStore()

	// Chain of 4 hops; depth 3 cannot reach the end.
	actors := make([]string, 5)
	for i := range actors {
		actors[i] = fmt.Sprintf("https://n%d.example/u/n", i)
	}
	for i := 0; i < 4; i++ {
		store.AddTrust(actors[i], actors[i+1], 1.0)
	}

	if got := store.TrustScore(actors[0], actors[4], 3); got != 0.0 {
		t.Errorf("Expected 0.0 beyond depth bound, got %f", got)
	}
	if got := store.TrustScore(actors[0], actors[4], 4); got == 0.0 {
		t.Error("Expected a positive score once depth covers the chain")
	}
}

func TestTrustScore_CycleTerminates(t *testing.T) {
	store := NewTrustStore()

	a := "https://a.example/u/a"
	b := "https://b.example/u/b"
	c := "https://c.example/u/c"

	store.AddTrust(a, b, 0.9)
	store.AddTrust(b, a, 0.9)

	// No path to c exists; the walk must terminate through the depth bound.
	if got := store.TrustScore(a, c, DefaultTrustMaxDepth); got != 0.0 {
		t.Errorf("Expected 0.0 with no path, got %f", got)
	}
}

func TestIsSpamReport(t *testing.T) {
	store := NewTrustStore()

	reporter := "https://a.example/u/reporter"
	target := "https://b.example/u/target"

	if store.IsSpamReport(reporter, target) {
		t.Error("Reporter with no trust data must not pass the gate")
	}

	store.AddTrust(reporter, target, 0.3)
	if !store.IsSpamReport(reporter, target) {
		t.Error("Trust exactly at the threshold must pass the gate")
	}

	store.AddTrust(reporter, target, 0.2)
	if store.IsSpamReport(reporter, target) {
		t.Error("Trust below the threshold must not pass the gate")
	}
}

func TestIncomingSummary(t *testing.T) {
	store := NewTrustStore()

	actor := "https://s.example/u/seller"

	summary := store.IncomingSummary(actor)
	if summary.Score != 0.5 || summary.Votes != 0 {
		t.Errorf("Expected neutral 0.5 with 0 votes, got %+v", summary)
	}

	store.AddTrust("https://a.example/u/a", actor, 0.8)
	store.AddTrust("https://b.example/u/b", actor, 0.4)

	summary = store.IncomingSummary(actor)
	if summary.Votes != 2 {
		t.Errorf("Expected 2 votes, got %d", summary.Votes)
	}
	if math.Abs(summary.Score-0.6) > 1e-9 {
		t.Errorf("Expected average 0.6, got %f", summary.Score)
	}
}

func TestTrustStore_SnapshotRestore(t *testing.T) {
	store := NewTrustStore()
	store.AddTrust("https://a.example/u/a", "https://b.example/u/b", 0.7)
	store.AddTrust("https://b.example/u/b", "https://c.example/u/c", 0.9)

	restored := NewTrustStore()
	restored.Restore(store.Snapshot())

	if restored.EdgeCount() != 2 {
		t.Errorf("Expected 2 restored edges, got %d", restored.EdgeCount())
	}
	if got := restored.DirectTrust("https://a.example/u/a", "https://b.example/u/b"); got != 0.7 {
		t.Errorf("Expected restored weight 0.7, got %f", got)
	}
}
