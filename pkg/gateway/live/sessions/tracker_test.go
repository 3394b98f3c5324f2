package sessions

import (
	"context"
	"testing"
	"time"
)

func TestRegisterAndCount(t *testing.T) {
	tr := NewTracker()
	if tr.Count() != 0 {
		t.Fatalf("count = %d, want 0", tr.Count())
	}

	un1 := tr.Register("a", Handle{})
	un2 := tr.Register("b", Handle{})
	if tr.Count() != 2 {
		t.Fatalf("count = %d, want 2", tr.Count())
	}

	un1()
	un1() // idempotent
	if tr.Count() != 1 {
		t.Fatalf("count = %d, want 1", tr.Count())
	}
	un2()
	if tr.Count() != 0 {
		t.Fatalf("count = %d, want 0", tr.Count())
	}
}

func TestRegisterReplacesSameID(t *testing.T) {
	tr := NewTracker()
	tr.Register("a", Handle{})
	un := tr.Register("a", Handle{})
	if tr.Count() != 1 {
		t.Fatalf("count = %d, want 1", tr.Count())
	}
	un()
	if tr.Count() != 0 {
		t.Fatalf("count = %d, want 0", tr.Count())
	}
}

func TestResetAllCountsOnlyCleared(t *testing.T) {
	tr := NewTracker()
	defer tr.Register("active", Handle{Reset: func() bool { return true }})()
	defer tr.Register("idle", Handle{Reset: func() bool { return false }})()
	defer tr.Register("noop", Handle{})()

	if got := tr.ResetAll(); got != 1 {
		t.Fatalf("ResetAll = %d, want 1", got)
	}
}

func TestSnapshots(t *testing.T) {
	tr := NewTracker()
	defer tr.Register("a", Handle{State: func() Snapshot {
		return Snapshot{SessionID: "a", Active: true, MessageCount: 3}
	}})()
	defer tr.Register("b", Handle{})()

	snaps := tr.Snapshots()
	if len(snaps) != 1 {
		t.Fatalf("snapshots = %d, want 1", len(snaps))
	}
	if snaps[0].SessionID != "a" || !snaps[0].Active || snaps[0].MessageCount != 3 {
		t.Fatalf("unexpected snapshot %+v", snaps[0])
	}
}

func TestCancelAllAndWait(t *testing.T) {
	tr := NewTracker()
	canceled := make(chan string, 2)
	unA := tr.Register("a", Handle{Cancel: func() { canceled <- "a" }})
	unB := tr.Register("b", Handle{Cancel: func() { canceled <- "b" }})

	if got := tr.CancelAll(); got != 2 {
		t.Fatalf("CancelAll = %d, want 2", got)
	}
	<-canceled
	<-canceled

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if tr.Wait(ctx) {
		t.Fatal("Wait should time out while sessions are registered")
	}

	unA()
	unB()
	if !tr.Wait(context.Background()) {
		t.Fatal("Wait should return once all sessions unregister")
	}
}

func TestNilTrackerIsSafe(t *testing.T) {
	var tr *Tracker
	un := tr.Register("a", Handle{})
	un()
	if tr.Count() != 0 || tr.ResetAll() != 0 || tr.CancelAll() != 0 {
		t.Fatal("nil tracker should report zeroes")
	}
	if tr.Snapshots() != nil {
		t.Fatal("nil tracker snapshots should be nil")
	}
	if !tr.Wait(context.Background()) {
		t.Fatal("nil tracker Wait should return true")
	}
}
