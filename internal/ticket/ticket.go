// Package ticket implements the operator control-plane protocol:
// dispatching a Ticket operation locally or toward a remote
// destination, and waiting for its response with bounded,
// exponentially-backed-off polling.
package ticket

import (
	"context"
	"fmt"
	"time"

	"github.com/route-beacon/meshd/internal/backlog"
	"github.com/route-beacon/meshd/internal/broadcast"
	"github.com/route-beacon/meshd/internal/message"
	"github.com/route-beacon/meshd/internal/peer"
	"github.com/route-beacon/meshd/internal/route"
	"github.com/route-beacon/meshd/internal/state"
	"github.com/route-beacon/meshd/internal/trace"
)

// initialBackoff is the first wait between polls of a pending ticket;
// it doubles on every miss, with no cap, until the caller's context is
// done.
const initialBackoff = 10 * time.Millisecond

// Dispatch executes req against the local node's tables and returns
// the resulting response. It never touches the network: a request
// addressed to a remote node is expected to have already been routed
// there by the processor before Dispatch is called.
func Dispatch(st *state.State, localID string, nowMillis int64, req message.TicketRequest) message.TicketResponse {
	resp := message.TicketResponse{TicketID: req.TicketID, StartTime: req.StartTime}

	switch req.Ticket.Kind {
	case message.TicketKindTest:
		resp.Ticket = message.Ticket{Kind: message.TicketKindTest}

	case message.TicketKindTicketQuery:
		resp.Ticket = message.Ticket{Kind: message.TicketKindTicketQuery, TicketQuery: &message.TicketQuery{Tickets: st.TicketSnapshots()}}

	case message.TicketKindPeerQuery:
		resp.Ticket = message.Ticket{Kind: message.TicketKindPeerQuery, PeerQuery: &message.PeerQuery{Peers: peer.All(st)}}

	case message.TicketKindRouteQuery:
		q := message.RouteQuery{}
		if req.Ticket.RouteQuery != nil {
			q = *req.Ticket.RouteQuery
		}
		resp.Ticket = message.Ticket{Kind: message.TicketKindRouteQuery, RouteQuery: &message.RouteQuery{Routes: route.Query(st, q)}}

	case message.TicketKindBeginTrace:
		dest := req.Ticket.Trace.DestinationID
		requestID := req.Ticket.Trace.RequestID
		if !req.Ticket.Trace.HasRequestID || requestID == "" {
			requestID = req.TicketID
		}
		tr := trace.Begin(st, requestID, dest, nowMillis)
		backlog.Push(st, message.MessageCollection{
			OriginID: localID, DestinationID: dest, HasDestination: true,
			Messages: []message.Message{{Kind: message.KindTraceRequest, TraceRequest: &message.TraceRequest{HopCount: 0, RequestID: requestID}}},
		})
		resp.Ticket = message.Ticket{Kind: message.TicketKindBeginTrace, Trace: &tr}

	case message.TicketKindPollTrace:
		tr, ok := trace.Poll(st, req.Ticket.Trace.RequestID)
		if !ok {
			tr = message.Trace{RequestID: req.Ticket.Trace.RequestID, HasRequestID: true}
		}
		resp.Ticket = message.Ticket{Kind: message.TicketKindPollTrace, Trace: &tr}

	case message.TicketKindDrainTrace:
		tr, ok := trace.Drain(st, req.Ticket.Trace.RequestID)
		if !ok {
			tr = message.Trace{RequestID: req.Ticket.Trace.RequestID, HasRequestID: true}
		}
		resp.Ticket = message.Ticket{Kind: message.TicketKindDrainTrace, Trace: &tr}

	case message.TicketKindBeginBroadcast:
		b := broadcast.Begin(st, localID, nowMillis, req.Ticket.Broadcast.Request)
		resp.Ticket = message.Ticket{Kind: message.TicketKindBeginBroadcast, Broadcast: &b}

	case message.TicketKindPollBroadcast:
		b, ok := broadcast.Poll(st, req.Ticket.Broadcast.Request.RequestID)
		if !ok {
			b = message.Broadcast{Request: req.Ticket.Broadcast.Request}
		}
		resp.Ticket = message.Ticket{Kind: message.TicketKindPollBroadcast, Broadcast: &b}

	case message.TicketKindDrainBroadcast:
		b, ok := broadcast.Drain(st, req.Ticket.Broadcast.Request.RequestID)
		if !ok {
			b = message.Broadcast{Request: req.Ticket.Broadcast.Request}
		}
		resp.Ticket = message.Ticket{Kind: message.TicketKindDrainBroadcast, Broadcast: &b}

	default:
		resp.Ticket = message.Ticket{Kind: message.TicketKindTest}
	}

	return resp
}

// Send records req as a pending ticket and pushes it onto the backlog.
// A request with no destination is still enqueued: effective_destination
// falls back to the local node id (4.F step 1), so it round-trips
// through this node's own backlog and resolves as selectively decoded
// here, exactly as a remote destination would resolve there.
func Send(st *state.State, req message.TicketRequest) {
	st.PutTicket(req.TicketID, &state.TicketState{Request: req, StartTime: req.StartTime})
	backlog.Push(st, message.MessageCollection{
		OriginID: req.OriginID, DestinationID: req.DestinationID, HasDestination: req.HasDest,
		Messages: []message.Message{{Kind: message.KindTicketRequest, TicketRequest: &req}},
	})
}

// Receive records a TicketResponse that arrived for one of our
// outstanding tickets.
func Receive(st *state.State, nowMillis int64, resp message.TicketResponse) {
	ts, ok := st.GetTicket(resp.TicketID)
	if !ok {
		return
	}
	respCopy := resp
	ts.Response = &respCopy
	ts.StopTime = nowMillis
	ts.HasStopTime = true
	st.PutTicket(resp.TicketID, ts)
}

// SendAndReceive sends req and polls for its response with exponential
// backoff, doubling from 10ms, until it arrives or ctx is done. The
// ticket is removed from the table before returning either way.
func SendAndReceive(ctx context.Context, st *state.State, req message.TicketRequest) (message.TicketResponse, error) {
	Send(st, req)
	defer st.DeleteTicket(req.TicketID)

	wait := initialBackoff
	for {
		if ts, ok := st.GetTicket(req.TicketID); ok && ts.Response != nil {
			return *ts.Response, nil
		}
		select {
		case <-ctx.Done():
			return message.TicketResponse{}, fmt.Errorf("ticket: %w waiting for response to %s", ctx.Err(), req.TicketID)
		case <-time.After(wait):
			wait *= 2
		}
	}
}
