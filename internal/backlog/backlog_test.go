package backlog

import (
	"context"
	"testing"

	"github.com/route-beacon/meshd/internal/config"
	"github.com/route-beacon/meshd/internal/message"
	"github.com/route-beacon/meshd/internal/peer"
	"github.com/route-beacon/meshd/internal/state"
)

func newState(t *testing.T) *state.State {
	t.Helper()
	cfg := &config.Config{
		ID: "node-a",
		Peer: map[string]config.PeerConfig{
			"node-b": {URL: "https://b.example:7000/mesh"},
		},
	}
	st := state.New(cfg)
	peer.Initialize(st, cfg)
	st.WithRoutes(func(routes []message.Route) []message.Route {
		return append(routes, message.Route{DestinationID: "node-b", GatewayID: "node-b", Weight: 0, WeightSet: true})
	})
	return st
}

func TestPush_EmptyMessagesIsNoOp(t *testing.T) {
	st := newState(t)
	Push(st, message.MessageCollection{OriginID: "node-a", DestinationID: "node-b", HasDestination: true})
	if st.BacklogLen() != 0 {
		t.Fatalf("expected an empty collection to never occupy a backlog slot, got %d", st.BacklogLen())
	}
}

func TestServe_RemovesAndReturnsMatchingCollections(t *testing.T) {
	st := newState(t)
	Push(st, message.MessageCollection{OriginID: "node-a", DestinationID: "node-b", HasDestination: true, Messages: []message.Message{message.PingMessage()}})
	Push(st, message.MessageCollection{OriginID: "node-a", Messages: []message.Message{message.PingMessage()}}) // no destination, not matched

	resp := Serve(st, "node-b")
	if len(resp.Collections) != 1 {
		t.Fatalf("expected 1 collection served, got %d", len(resp.Collections))
	}
	if st.BacklogLen() != 1 {
		t.Fatalf("expected 1 collection remaining, got %d", st.BacklogLen())
	}
}

type fakeSender struct {
	sent   []message.MessageCollection
	reply  message.MessageCollection
	err    error
}

func (f *fakeSender) Send(_ context.Context, _ string, mc message.MessageCollection) (message.MessageCollection, error) {
	f.sent = append(f.sent, mc)
	return f.reply, f.err
}

type fakeInbound struct {
	processed []message.MessageCollection
	reply     message.MessageCollection
}

func (f *fakeInbound) Process(mc message.MessageCollection) message.MessageCollection {
	f.processed = append(f.processed, mc)
	return f.reply
}

func TestDispatchOnce_CondensesAndHandsToProcessor(t *testing.T) {
	st := newState(t)
	Push(st, message.MessageCollection{OriginID: "node-a", DestinationID: "node-b", HasDestination: true, Messages: []message.Message{message.PingMessage()}})
	Push(st, message.MessageCollection{OriginID: "node-a", DestinationID: "node-b", HasDestination: true, Messages: []message.Message{message.PongMessage()}})

	inbound := &fakeInbound{}
	e := &Engine{Inbound: inbound}
	if err := e.DispatchOnce(context.Background(), st); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(inbound.processed) != 1 {
		t.Fatalf("expected 1 condensed collection handed to the processor, got %d", len(inbound.processed))
	}
	if len(inbound.processed[0].Messages) != 2 {
		t.Fatalf("expected condensed batch of 2 messages, got %d", len(inbound.processed[0].Messages))
	}
	if st.BacklogLen() != 0 {
		t.Fatalf("expected backlog drained, got %d remaining", st.BacklogLen())
	}
}

func TestDispatchOnce_RePushesNonEmptyProcessorReply(t *testing.T) {
	st := newState(t)
	Push(st, message.MessageCollection{OriginID: "node-a", DestinationID: "node-b", HasDestination: true, Messages: []message.Message{message.PingMessage()}})

	inbound := &fakeInbound{reply: message.MessageCollection{OriginID: "node-b", Messages: []message.Message{message.PongMessage()}}}
	e := &Engine{Inbound: inbound}
	if err := e.DispatchOnce(context.Background(), st); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if st.BacklogLen() != 1 {
		t.Fatalf("expected the processor's non-empty reply re-pushed, got %d remaining", st.BacklogLen())
	}
}

func TestDispatchOnce_WithoutInboundRequeuesUnchanged(t *testing.T) {
	st := newState(t)
	Push(st, message.MessageCollection{OriginID: "node-a", DestinationID: "node-z", HasDestination: true, Messages: []message.Message{message.PingMessage()}})

	e := &Engine{}
	if err := e.DispatchOnce(context.Background(), st); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if st.BacklogLen() != 1 {
		t.Fatalf("expected collection requeued when no processor is wired, got %d remaining", st.BacklogLen())
	}
}

func TestPollPeers_PushesReturnedCollections(t *testing.T) {
	st := newState(t)
	inner := message.MessageCollection{OriginID: "node-c", HasDestination: true, DestinationID: "node-a", Messages: []message.Message{message.PingMessage()}}
	sender := &fakeSender{reply: message.MessageCollection{
		OriginID: "node-b",
		Messages: []message.Message{{Kind: message.KindBacklogResponse, BacklogResponse: &message.BacklogResponse{Collections: []message.MessageCollection{inner}}}},
	}}
	st.ReplacePeers(append(st.PeersSnapshot()[:0:0], message.Peer{ID: "node-b", URL: "https://b.example:7000/mesh", Polling: true}))

	e := &Engine{Sender: sender}
	if err := e.PollPeers(context.Background(), st, "node-a"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if st.BacklogLen() != 1 {
		t.Fatalf("expected polled collection pushed to backlog, got %d", st.BacklogLen())
	}
}
