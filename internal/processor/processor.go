// Package processor is the top-level dispatcher for an inbound
// MessageCollection: a promiscuous pass that fires on every message
// whether or not this node is the addressed destination, followed by
// a decision to forward toward a resolved gateway or decode
// selectively because this node is that destination.
package processor

import (
	"context"

	"github.com/route-beacon/meshd/internal/backlog"
	"github.com/route-beacon/meshd/internal/broadcast"
	"github.com/route-beacon/meshd/internal/message"
	"github.com/route-beacon/meshd/internal/metrics"
	"github.com/route-beacon/meshd/internal/peer"
	"github.com/route-beacon/meshd/internal/route"
	"github.com/route-beacon/meshd/internal/state"
	"github.com/route-beacon/meshd/internal/ticket"
	"github.com/route-beacon/meshd/internal/trace"
)

// Sender delivers a forwarded collection toward a gateway's url.
// Satisfied structurally by internal/transport.Client.
type Sender interface {
	Send(ctx context.Context, url string, mc message.MessageCollection) (message.MessageCollection, error)
}

// Clock returns the current time as unix millis, overridable in tests.
type Clock func() int64

// Processor wires the shared state to every subsystem needed to act on
// an inbound collection.
type Processor struct {
	State   *state.State
	LocalID string
	Sender  Sender
	Now     Clock
}

func (p *Processor) now() int64 {
	if p.Now != nil {
		return p.Now()
	}
	return 0
}

// Process implements backlog.InboundHandler and the transport
// package's local Processor interface.
func (p *Processor) Process(mc message.MessageCollection) message.MessageCollection {
	effectiveDestination := p.LocalID
	if mc.HasDestination && mc.DestinationID != "" {
		effectiveDestination = mc.DestinationID
	}

	for _, side := range p.promiscuous(mc) {
		backlog.Push(p.State, side)
	}

	gatewayID, hasGateway := route.Resolve(p.State, effectiveDestination)
	metrics.RouteTableSize.Set(float64(len(route.Snapshot(p.State))))

	if hasGateway && gatewayID == p.LocalID {
		return p.selective(mc)
	}
	return p.forward(mc, effectiveDestination, gatewayID, hasGateway)
}

// promiscuous runs the two transit-time hooks that fire regardless of
// addressing: a TraceRequest/TraceResponse riding through this node,
// even only in transit to somewhere else, gets its hop count bumped in
// place (the pointer is shared with mc.Messages, so the mutation rides
// along whichever batch forwards next) and a TraceEvent reporting this
// hop is queued back toward whichever node is listening for it.
func (p *Processor) promiscuous(mc message.MessageCollection) []message.MessageCollection {
	var side []message.MessageCollection
	now := p.now()

	for _, m := range mc.Messages {
		switch m.Kind {
		case message.KindTraceRequest:
			tr := m.TraceRequest
			tr.HopCount++
			side = append(side, message.MessageCollection{
				OriginID: p.LocalID, DestinationID: mc.OriginID, HasDestination: true,
				Messages: []message.Message{{Kind: message.KindTraceEvent, TraceEvent: &message.TraceEvent{
					HopCount: tr.HopCount, RequestID: tr.RequestID, LocalTime: now,
					ID: p.LocalID, Direction: message.DirectionOutbound,
				}}},
			})
			metrics.TraceHopsTotal.Inc()

		case message.KindTraceResponse:
			tr := m.TraceResponse
			tr.HopCount++
			if mc.HasDestination && mc.DestinationID != "" {
				side = append(side, message.MessageCollection{
					OriginID: p.LocalID, DestinationID: mc.DestinationID, HasDestination: true,
					Messages: []message.Message{{Kind: message.KindTraceEvent, TraceEvent: &message.TraceEvent{
						HopCount: tr.HopCount, RequestID: tr.RequestID, LocalTime: now,
						ID: p.LocalID, Direction: message.DirectionInbound,
					}}},
				})
			}
			metrics.TraceHopsTotal.Inc()
		}
	}
	return side
}

// forward resolves mc's effective destination to a gateway and relays
// it there. On failure the collection is queued on the backlog for
// later retry; a destination with no known gateway at all triggers a
// RouteRecall fanned out to every other known peer so stale entries
// elsewhere get purged too.
func (p *Processor) forward(mc message.MessageCollection, effectiveDestination, gatewayID string, hasGateway bool) message.MessageCollection {
	if !hasGateway {
		if mc.HasDestination {
			p.issueRecall(effectiveDestination)
		}
		backlog.Push(p.State, mc)
		metrics.MessagesForwardedTotal.WithLabelValues("no_route").Inc()
		return message.MessageCollection{}
	}

	url, ok := peer.LookupURL(p.State, gatewayID)
	if !ok {
		// Known only by id: nothing to push to directly, it must be pulled.
		backlog.Push(p.State, mc)
		metrics.MessagesForwardedTotal.WithLabelValues("no_url").Inc()
		return message.MessageCollection{}
	}
	if p.Sender == nil {
		backlog.Push(p.State, mc)
		return message.MessageCollection{}
	}

	reply, err := p.Sender.Send(context.Background(), url, mc)
	if err != nil {
		backlog.Push(p.State, mc)
		metrics.MessagesForwardedTotal.WithLabelValues("send_error").Inc()
		if removed := route.RemoveByURL(p.State, url); removed > 0 {
			metrics.RoutesRemovedByURLTotal.Add(float64(removed))
		}
		return message.MessageCollection{}
	}
	metrics.MessagesForwardedTotal.WithLabelValues("ok").Inc()
	peer.Learn(p.State, reply.OriginID, url)
	if len(reply.Messages) > 0 {
		// The reply answers whoever mc was truly bound for, which may be
		// several hops further back than our own direct caller, so it
		// goes back on the backlog for ordinary gateway-resolved dispatch
		// rather than being handed back as this call's own result.
		backlog.Push(p.State, reply)
	}
	return message.MessageCollection{}
}

// issueRecall fans a RouteRecall{destinationID} out to every other
// known peer so they purge routes through a gateway that just proved
// unreachable for this destination.
func (p *Processor) issueRecall(destinationID string) {
	for _, pr := range peer.All(p.State) {
		if pr.ID == "" || pr.ID == p.LocalID {
			continue
		}
		backlog.Push(p.State, message.MessageCollection{
			OriginID: p.LocalID, DestinationID: pr.ID, HasDestination: true,
			Messages: []message.Message{{Kind: message.KindRouteRecall, RouteRecall: &message.RouteRecall{DestinationID: destinationID}}},
		})
	}
}

// selective decodes every message because this node resolved as the
// addressed destination, and builds the reply collection to hand back
// to the direct sender.
func (p *Processor) selective(mc message.MessageCollection) message.MessageCollection {
	var out []message.Message
	now := p.now()

	for _, m := range mc.Messages {
		metrics.MessagesProcessedTotal.WithLabelValues(kindLabel(m.Kind)).Inc()

		switch m.Kind {
		case message.KindPing:
			out = append(out, message.PongMessage())

		case message.KindPong:
			// liveness only, no further action

		case message.KindRouteAdvertisement:
			route.ProcessAdvertisement(p.State, p.LocalID, mc.OriginID, *m.RouteAdvertisement)
			adv := route.BuildAdvertisement(p.State)
			out = append(out, message.Message{Kind: message.KindRouteAdvertisement, RouteAdvertisement: &adv})

		case message.KindRouteRecall:
			route.Recall(p.State, m.RouteRecall.DestinationID, mc.OriginID)

		case message.KindBacklogRequest:
			resp := backlog.Serve(p.State, m.BacklogRequest.GatewayID)
			out = append(out, message.Message{Kind: message.KindBacklogResponse, BacklogResponse: &resp})

		case message.KindBacklogResponse:
			for _, c := range m.BacklogResponse.Collections {
				backlog.Push(p.State, c)
			}

		case message.KindTraceRequest:
			tr := m.TraceRequest
			out = append(out, message.Message{
				Kind:          message.KindTraceResponse,
				TraceResponse: &message.TraceResponse{HopCount: tr.HopCount, RequestID: tr.RequestID},
			})

		case message.KindTraceResponse:
			trace.MarkStopped(p.State, m.TraceResponse.RequestID, now)

		case message.KindTraceEvent:
			trace.Append(p.State, *m.TraceEvent)

		case message.KindTicketRequest:
			resp := ticket.Dispatch(p.State, p.LocalID, now, *m.TicketRequest)
			out = append(out, message.Message{Kind: message.KindTicketResponse, TicketResponse: &resp})

		case message.KindTicketResponse:
			ticket.Receive(p.State, now, *m.TicketResponse)

		case message.KindBroadcastRequest:
			if resp, ok := broadcast.Process(p.State, p.LocalID, now, *m.BroadcastRequest); ok {
				out = append(out, message.Message{Kind: message.KindBroadcastResponse, BroadcastResponse: &resp})
			}

		case message.KindBroadcastResponse:
			broadcast.RecordResponse(p.State, mc.OriginID, *m.BroadcastResponse)
		}
	}

	if len(out) == 0 {
		return message.MessageCollection{}
	}
	return message.MessageCollection{OriginID: p.LocalID, Messages: out}
}

func kindLabel(k message.Kind) string {
	switch k {
	case message.KindRouteAdvertisement:
		return "route_advertisement"
	case message.KindRouteRecall:
		return "route_recall"
	case message.KindBacklogRequest:
		return "backlog_request"
	case message.KindBacklogResponse:
		return "backlog_response"
	case message.KindPing:
		return "ping"
	case message.KindPong:
		return "pong"
	case message.KindTraceRequest:
		return "trace_request"
	case message.KindTraceResponse:
		return "trace_response"
	case message.KindTraceEvent:
		return "trace_event"
	case message.KindTicketRequest:
		return "ticket_request"
	case message.KindTicketResponse:
		return "ticket_response"
	case message.KindBroadcastRequest:
		return "broadcast_request"
	case message.KindBroadcastResponse:
		return "broadcast_response"
	default:
		return "unknown"
	}
}
