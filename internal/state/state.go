// Package state holds the node's shared, lock-guarded tables. A single
// State is constructed at startup and passed by pointer to every
// component; nothing in this codebase reaches for it through a global.
package state

import (
	"sync"

	"github.com/route-beacon/meshd/internal/config"
	"github.com/route-beacon/meshd/internal/message"
)

// TicketState is the live, in-progress bookkeeping record for one
// outstanding or completed ticket. Unlike message.TicketSnapshot (its
// wire echo), it is never itself serialized.
type TicketState struct {
	Request   message.TicketRequest
	Response  *message.TicketResponse
	StartTime int64
	StopTime  int64
	HasStopTime bool
}

// State is the node's entire mutable world. Each table has its own
// RWMutex so that, e.g., a long backlog dispatch never blocks a route
// lookup.
type State struct {
	Config *config.Config

	peersMu sync.RWMutex
	peers   []message.Peer

	routesMu sync.RWMutex
	routes   []message.Route

	backlogMu sync.RWMutex
	backlog   []message.MessageCollection

	ticketsMu sync.RWMutex
	tickets   map[string]*TicketState

	tracesMu sync.RWMutex
	traces   map[string]message.Trace

	broadcastsMu sync.RWMutex
	broadcasts   map[string]message.Broadcast

	broadcastHistoryMu sync.RWMutex
	broadcastHistory   map[string]int64 // request_id -> first-seen unix millis
}

// New builds an empty State seeded with the local self-route.
func New(cfg *config.Config) *State {
	st := &State{
		Config:           cfg,
		tickets:          make(map[string]*TicketState),
		traces:           make(map[string]message.Trace),
		broadcasts:       make(map[string]message.Broadcast),
		broadcastHistory: make(map[string]int64),
	}
	st.routes = []message.Route{{DestinationID: cfg.ID, GatewayID: cfg.ID}}
	return st
}

// --- Peers ---------------------------------------------------------------

func (s *State) PeersSnapshot() []message.Peer {
	s.peersMu.RLock()
	defer s.peersMu.RUnlock()
	out := make([]message.Peer, len(s.peers))
	copy(out, s.peers)
	return out
}

func (s *State) ReplacePeers(peers []message.Peer) {
	s.peersMu.Lock()
	defer s.peersMu.Unlock()
	s.peers = peers
}

func (s *State) WithPeers(fn func(peers []message.Peer) []message.Peer) {
	s.peersMu.Lock()
	defer s.peersMu.Unlock()
	s.peers = fn(s.peers)
}

// --- Routes ----------------------------------------------------------------

func (s *State) RoutesSnapshot() []message.Route {
	s.routesMu.RLock()
	defer s.routesMu.RUnlock()
	out := make([]message.Route, len(s.routes))
	copy(out, s.routes)
	return out
}

func (s *State) WithRoutes(fn func(routes []message.Route) []message.Route) {
	s.routesMu.Lock()
	defer s.routesMu.Unlock()
	s.routes = fn(s.routes)
}

// --- Backlog -----------------------------------------------------------

func (s *State) PushBacklog(mc message.MessageCollection) {
	s.backlogMu.Lock()
	defer s.backlogMu.Unlock()
	s.backlog = append(s.backlog, mc)
}

func (s *State) BacklogLen() int {
	s.backlogMu.RLock()
	defer s.backlogMu.RUnlock()
	return len(s.backlog)
}

// DrainBacklog removes and returns every collection currently queued.
func (s *State) DrainBacklog() []message.MessageCollection {
	s.backlogMu.Lock()
	defer s.backlogMu.Unlock()
	out := s.backlog
	s.backlog = nil
	return out
}

// RemoveBacklogForGateway removes and returns, in ascending index
// order, every queued collection for which matches reports true; the
// rest stay queued in their original order.
func (s *State) RemoveBacklogForGateway(matches func(message.MessageCollection) bool) []message.MessageCollection {
	s.backlogMu.Lock()
	defer s.backlogMu.Unlock()

	var taken []message.MessageCollection
	kept := s.backlog[:0:0]
	for _, mc := range s.backlog {
		if matches(mc) {
			taken = append(taken, mc)
		} else {
			kept = append(kept, mc)
		}
	}
	s.backlog = kept
	return taken
}

// --- Tickets -------------------------------------------------------------

func (s *State) PutTicket(id string, ts *TicketState) {
	s.ticketsMu.Lock()
	defer s.ticketsMu.Unlock()
	s.tickets[id] = ts
}

func (s *State) GetTicket(id string) (*TicketState, bool) {
	s.ticketsMu.RLock()
	defer s.ticketsMu.RUnlock()
	ts, ok := s.tickets[id]
	return ts, ok
}

func (s *State) DeleteTicket(id string) {
	s.ticketsMu.Lock()
	defer s.ticketsMu.Unlock()
	delete(s.tickets, id)
}

func (s *State) TicketSnapshots() []message.TicketSnapshot {
	s.ticketsMu.RLock()
	defer s.ticketsMu.RUnlock()
	out := make([]message.TicketSnapshot, 0, len(s.tickets))
	for id, ts := range s.tickets {
		snap := message.TicketSnapshot{
			TicketID:  id,
			Request:   ts.Request,
			Response:  ts.Response,
			StartTime: ts.StartTime,
		}
		if ts.Request.HasDest {
			snap.DestinationID = ts.Request.DestinationID
			snap.HasDest = true
		}
		snap.HasStopTime = ts.HasStopTime
		snap.StopTime = ts.StopTime
		out = append(out, snap)
	}
	return out
}

// --- Traces ------------------------------------------------------------

func (s *State) PutTrace(t message.Trace) {
	if !t.HasRequestID {
		return
	}
	s.tracesMu.Lock()
	defer s.tracesMu.Unlock()
	s.traces[t.RequestID] = t
}

func (s *State) GetTrace(requestID string) (message.Trace, bool) {
	s.tracesMu.RLock()
	defer s.tracesMu.RUnlock()
	t, ok := s.traces[requestID]
	return t, ok
}

func (s *State) DeleteTrace(requestID string) {
	s.tracesMu.Lock()
	defer s.tracesMu.Unlock()
	delete(s.traces, requestID)
}

func (s *State) WithTrace(requestID string, fn func(t message.Trace, found bool) message.Trace) {
	s.tracesMu.Lock()
	defer s.tracesMu.Unlock()
	existing, found := s.traces[requestID]
	s.traces[requestID] = fn(existing, found)
}

// --- Broadcasts ----------------------------------------------------------

func (s *State) PutBroadcast(b message.Broadcast) {
	s.broadcastsMu.Lock()
	defer s.broadcastsMu.Unlock()
	s.broadcasts[b.Request.RequestID] = b
}

func (s *State) GetBroadcast(requestID string) (message.Broadcast, bool) {
	s.broadcastsMu.RLock()
	defer s.broadcastsMu.RUnlock()
	b, ok := s.broadcasts[requestID]
	return b, ok
}

func (s *State) DeleteBroadcast(requestID string) {
	s.broadcastsMu.Lock()
	defer s.broadcastsMu.Unlock()
	delete(s.broadcasts, requestID)
}

func (s *State) WithBroadcast(requestID string, fn func(b message.Broadcast, found bool) message.Broadcast) {
	s.broadcastsMu.Lock()
	defer s.broadcastsMu.Unlock()
	existing, found := s.broadcasts[requestID]
	s.broadcasts[requestID] = fn(existing, found)
}

// --- Broadcast history (dedup of seen request ids) -----------------------

// SeenBroadcast records requestID's first-seen time if new, and reports
// whether this call was the one that recorded it (false means it was
// already known and should not be forwarded again).
func (s *State) SeenBroadcast(requestID string, nowMillis int64) bool {
	s.broadcastHistoryMu.Lock()
	defer s.broadcastHistoryMu.Unlock()
	if _, ok := s.broadcastHistory[requestID]; ok {
		return false
	}
	s.broadcastHistory[requestID] = nowMillis
	return true
}

// AgeBroadcastHistory removes entries older than maxAgeMillis relative
// to nowMillis and reports how many were evicted.
func (s *State) AgeBroadcastHistory(nowMillis, maxAgeMillis int64) int {
	s.broadcastHistoryMu.Lock()
	defer s.broadcastHistoryMu.Unlock()
	evicted := 0
	for id, seenAt := range s.broadcastHistory {
		if nowMillis-seenAt > maxAgeMillis {
			delete(s.broadcastHistory, id)
			evicted++
		}
	}
	return evicted
}
