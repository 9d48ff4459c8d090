// Package backlog queues outbound message collections that could not
// be delivered immediately, and periodically condenses and dispatches
// them toward their resolved gateways with bounded concurrency.
package backlog

import (
	"context"
	"fmt"
	"sync"

	"github.com/route-beacon/meshd/internal/message"
	"github.com/route-beacon/meshd/internal/metrics"
	"github.com/route-beacon/meshd/internal/peer"
	"github.com/route-beacon/meshd/internal/route"
	"github.com/route-beacon/meshd/internal/state"
)

// Sender delivers one collection to url and returns whatever the
// remote end replied with. Satisfied by internal/transport.Client
// without either package importing the other.
type Sender interface {
	Send(ctx context.Context, url string, mc message.MessageCollection) (message.MessageCollection, error)
}

// InboundHandler decodes and acts on a collection received as the
// reply to a dispatch or a poll. Satisfied by internal/processor.Processor.
type InboundHandler interface {
	Process(mc message.MessageCollection) message.MessageCollection
}

// Engine drives condensation and dispatch of the backlog. Workers is
// the dispatch concurrency cap; zero defaults to 4.
type Engine struct {
	Sender  Sender
	Inbound InboundHandler
	Workers int
}

func (e *Engine) workers() int {
	if e.Workers <= 0 {
		return 4
	}
	return e.Workers
}

// Push enqueues mc for later dispatch. A collection with no messages
// is a no-op per 4.E: nothing would ever be condensed or dispatched
// out of it, so it never occupies a backlog slot.
func Push(st *state.State, mc message.MessageCollection) {
	if len(mc.Messages) == 0 {
		return
	}
	st.PushBacklog(mc)
	metrics.BacklogDepth.Set(float64(st.BacklogLen()))
}

// Serve answers a BacklogRequest from requestingGatewayID: every
// queued collection whose resolved gateway is requestingGatewayID is
// removed from the backlog and returned, highest index first.
func Serve(st *state.State, requestingGatewayID string) message.BacklogResponse {
	taken := st.RemoveBacklogForGateway(func(mc message.MessageCollection) bool {
		if !mc.HasDestination {
			return false
		}
		gw, ok := route.Resolve(st, mc.DestinationID)
		return ok && gw == requestingGatewayID
	})
	metrics.BacklogDepth.Set(float64(st.BacklogLen()))

	// RemoveBacklogForGateway yields ascending order; reverse so callers
	// see the highest index first.
	for i, j := 0, len(taken)-1; i < j; i, j = i+1, j-1 {
		taken[i], taken[j] = taken[j], taken[i]
	}
	return message.BacklogResponse{Collections: taken}
}

type condensedGroup struct {
	destinationID string
	originID      string
	messages      []message.Message
}

// condense merges collections sharing (destination_id, origin_id) into
// one batch each, the key fixed by the Open Question decision that a
// single gateway dispatch should carry at most one batch per sender.
func condense(collections []message.MessageCollection) []condensedGroup {
	index := make(map[[2]string]int)
	var groups []condensedGroup
	for _, mc := range collections {
		dest := ""
		if mc.HasDestination {
			dest = mc.DestinationID
		}
		key := [2]string{dest, mc.OriginID}
		if i, ok := index[key]; ok {
			groups[i].messages = append(groups[i].messages, mc.Messages...)
			continue
		}
		index[key] = len(groups)
		groups = append(groups, condensedGroup{destinationID: dest, originID: mc.OriginID, messages: append([]message.Message{}, mc.Messages...)})
	}
	return groups
}

// DispatchOnce drains the backlog, condenses it, and hands each group
// to process_message_collection (internal/processor) with up to
// e.workers() concurrent tasks, per 4.E step 3. The processor alone
// decides forward-vs-local and re-pushes onto the backlog on failure
// or a non-empty reply; this loop never resolves gateways or calls the
// transport itself.
func (e *Engine) DispatchOnce(ctx context.Context, st *state.State) error {
	drained := st.DrainBacklog()
	if len(drained) == 0 {
		return nil
	}
	groups := condense(drained)

	sem := make(chan struct{}, e.workers())
	var wg sync.WaitGroup
	for _, g := range groups {
		g := g
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			e.dispatchGroup(st, g)
		}()
	}
	wg.Wait()
	metrics.BacklogDepth.Set(float64(st.BacklogLen()))
	return nil
}

func (e *Engine) dispatchGroup(st *state.State, g condensedGroup) {
	mc := message.MessageCollection{
		OriginID:       g.originID,
		DestinationID:  g.destinationID,
		HasDestination: g.destinationID != "",
		Messages:       g.messages,
	}
	if e.Inbound == nil {
		Push(st, mc)
		return
	}
	reply := e.Inbound.Process(mc)
	if len(reply.Messages) > 0 {
		Push(st, reply)
	}
}

// PollPeers sends a BacklogRequest to every peer configured for
// polling and feeds each returned collection back into the local
// backlog for ordinary dispatch.
func (e *Engine) PollPeers(ctx context.Context, st *state.State, localID string) error {
	if e.Sender == nil {
		return fmt.Errorf("backlog: no sender configured")
	}
	for _, p := range peer.Polling(st) {
		if p.URL == "" {
			continue
		}
		req := message.MessageCollection{
			OriginID:       localID,
			DestinationID:  p.ID,
			HasDestination: p.ID != "",
			Messages:       []message.Message{{Kind: message.KindBacklogRequest, BacklogRequest: &message.BacklogRequest{GatewayID: localID}}},
		}
		reply, err := e.Sender.Send(ctx, p.URL, req)
		if err != nil {
			route.RemoveByURL(st, p.URL)
			metrics.RoutesRemovedByURLTotal.Add(float64(1))
			continue
		}
		peer.Learn(st, reply.OriginID, p.URL)
		for _, m := range reply.Messages {
			if m.Kind == message.KindBacklogResponse && m.BacklogResponse != nil {
				for _, collection := range m.BacklogResponse.Collections {
					Push(st, collection)
				}
			} else if e.Inbound != nil {
				e.Inbound.Process(message.MessageCollection{OriginID: reply.OriginID, Messages: []message.Message{m}})
			}
		}
	}
	return nil
}
