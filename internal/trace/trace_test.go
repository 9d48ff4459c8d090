package trace

import (
	"testing"

	"github.com/route-beacon/meshd/internal/config"
	"github.com/route-beacon/meshd/internal/message"
	"github.com/route-beacon/meshd/internal/state"
)

func newState(t *testing.T) *state.State {
	t.Helper()
	return state.New(&config.Config{ID: "node-a"})
}

func TestBegin_CreatesAccumulator(t *testing.T) {
	st := newState(t)
	Begin(st, "r-1", "node-b", 1000)
	tr, ok := Poll(st, "r-1")
	if !ok || tr.DestinationID != "node-b" || tr.StartTime != 1000 {
		t.Fatalf("unexpected trace: %+v ok=%v", tr, ok)
	}
}

func TestAppend_AccumulatesEvents(t *testing.T) {
	st := newState(t)
	Begin(st, "r-1", "node-b", 1000)
	Append(st, message.TraceEvent{RequestID: "r-1", HopCount: 1, ID: "node-a"})
	Append(st, message.TraceEvent{RequestID: "r-1", HopCount: 2, ID: "node-b"})

	tr, _ := Poll(st, "r-1")
	if len(tr.Events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(tr.Events))
	}
}

func TestAppend_WithoutBeginStillRecords(t *testing.T) {
	st := newState(t)
	Append(st, message.TraceEvent{RequestID: "r-2", HopCount: 1, ID: "node-a"})
	tr, ok := Poll(st, "r-2")
	if !ok || len(tr.Events) != 1 {
		t.Fatalf("expected event recorded without a prior Begin, got %+v ok=%v", tr, ok)
	}
}

func TestMarkStopped_SetsStopTime(t *testing.T) {
	st := newState(t)
	Begin(st, "r-1", "node-b", 1000)
	MarkStopped(st, "r-1", 1050)
	tr, _ := Poll(st, "r-1")
	if !tr.HasStopTime || tr.StopTime != 1050 {
		t.Fatalf("expected stop time recorded, got %+v", tr)
	}
}

func TestDrain_RemovesAccumulator(t *testing.T) {
	st := newState(t)
	Begin(st, "r-1", "node-b", 1000)
	tr, ok := Drain(st, "r-1")
	if !ok || tr.DestinationID != "node-b" {
		t.Fatalf("unexpected drained trace: %+v ok=%v", tr, ok)
	}
	if _, ok := Poll(st, "r-1"); ok {
		t.Fatal("expected trace removed after drain")
	}
}
