// Package broadcast floods a payload to every reachable peer exactly
// once, deduplicated by request id, and collects replies into an
// aggregate keyed by responder.
package broadcast

import (
	"github.com/route-beacon/meshd/internal/backlog"
	"github.com/route-beacon/meshd/internal/message"
	"github.com/route-beacon/meshd/internal/route"
	"github.com/route-beacon/meshd/internal/state"
)

// Begin starts a new broadcast with an empty response set and pushes
// the request onto the backlog toward every unique gateway in the route
// table.
func Begin(st *state.State, localID string, nowMillis int64, req message.BroadcastRequest) message.Broadcast {
	b := message.Broadcast{Request: req, Responses: map[string]message.BroadcastResponse{}}
	st.PutBroadcast(b)
	st.SeenBroadcast(req.RequestID, nowMillis)
	flood(st, localID, req)
	return b
}

// flood pushes req toward every unique gateway in the route table, one
// collection per gateway so concurrent dispatch fans out cleanly and a
// destination reachable through an already-flooded gateway is not sent
// to twice.
func flood(st *state.State, localID string, req message.BroadcastRequest) {
	seen := map[string]bool{}
	for _, r := range route.Snapshot(st) {
		gw := r.GatewayID
		if gw == "" || gw == localID || seen[gw] {
			continue
		}
		seen[gw] = true
		backlog.Push(st, message.MessageCollection{
			OriginID:       localID,
			DestinationID:  gw,
			HasDestination: true,
			Messages:       []message.Message{{Kind: message.KindBroadcastRequest, BroadcastRequest: &req}},
		})
	}
}

// Process handles an inbound BroadcastRequest: if request_id was seen
// before, it is dropped; otherwise it is recorded, re-flooded to every
// unique gateway in the route table other than localID, and a Pong response is generated for the local node if
// the payload was a Ping.
func Process(st *state.State, localID string, nowMillis int64, req message.BroadcastRequest) (message.BroadcastResponse, bool) {
	if !st.SeenBroadcast(req.RequestID, nowMillis) {
		return message.BroadcastResponse{}, false
	}
	flood(st, localID, req)

	if !req.Payload.IsPing {
		return message.BroadcastResponse{}, false
	}
	return message.BroadcastResponse{
		RequestID: req.RequestID,
		Payload:   message.BroadcastPayload{IsPing: false},
		LocalTime: nowMillis,
	}, true
}

// RecordResponse stores resp against the broadcast it answers, if one
// is still tracked locally (drained/expired broadcasts silently ignore
// late responses).
func RecordResponse(st *state.State, responderID string, resp message.BroadcastResponse) {
	st.WithBroadcast(resp.RequestID, func(b message.Broadcast, found bool) message.Broadcast {
		if !found {
			return b // nothing tracked locally for this request id anymore
		}
		if b.Responses == nil {
			b.Responses = map[string]message.BroadcastResponse{}
		}
		b.Responses[responderID] = resp
		return b
	})
}

// Poll returns the current aggregate for requestID without clearing it.
func Poll(st *state.State, requestID string) (message.Broadcast, bool) {
	return st.GetBroadcast(requestID)
}

// Drain returns the current aggregate and removes it from the table.
func Drain(st *state.State, requestID string) (message.Broadcast, bool) {
	b, ok := st.GetBroadcast(requestID)
	if ok {
		st.DeleteBroadcast(requestID)
	}
	return b, ok
}

// AgeHistory evicts seen-broadcast markers older than maxAge, bounding
// the dedup table's growth. It does not touch in-progress Broadcast
// aggregates themselves, which are only removed by an explicit Drain.
func AgeHistory(st *state.State, nowMillis, maxAgeMillis int64) int {
	return st.AgeBroadcastHistory(nowMillis, maxAgeMillis)
}
