// Package trace stores path-discovery accumulators: one Trace per
// request_id, appended to as TraceEvents arrive and closed once a
// TraceResponse comes back from the destination.
package trace

import (
	"github.com/route-beacon/meshd/internal/message"
	"github.com/route-beacon/meshd/internal/state"
)

// Begin creates (or resets) the accumulator for a new trace toward
// destinationID, started at startTimeMillis.
func Begin(st *state.State, requestID, destinationID string, startTimeMillis int64) message.Trace {
	t := message.Trace{
		RequestID:     requestID,
		HasRequestID:  true,
		DestinationID: destinationID,
		StartTime:     startTimeMillis,
		HasStartTime:  true,
	}
	st.PutTrace(t)
	return t
}

// Append adds ev to the accumulator for ev.RequestID, creating one if
// none exists yet (an event can outrace its BeginTrace ticket if
// delivery order is scrambled in transit).
func Append(st *state.State, ev message.TraceEvent) {
	st.WithTrace(ev.RequestID, func(t message.Trace, found bool) message.Trace {
		if !found {
			t = message.Trace{RequestID: ev.RequestID, HasRequestID: true}
		}
		t.Events = append(t.Events, ev)
		return t
	})
}

// MarkStopped records the moment a TraceResponse closed the round trip.
func MarkStopped(st *state.State, requestID string, stopTimeMillis int64) {
	st.WithTrace(requestID, func(t message.Trace, found bool) message.Trace {
		if !found {
			t = message.Trace{RequestID: requestID, HasRequestID: true}
		}
		t.StopTime = stopTimeMillis
		t.HasStopTime = true
		return t
	})
}

// Poll returns the current accumulator for requestID without clearing it.
func Poll(st *state.State, requestID string) (message.Trace, bool) {
	return st.GetTrace(requestID)
}

// Drain returns the current accumulator and removes it from the table.
func Drain(st *state.State, requestID string) (message.Trace, bool) {
	t, ok := st.GetTrace(requestID)
	if ok {
		st.DeleteTrace(requestID)
	}
	return t, ok
}
