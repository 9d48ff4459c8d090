// Package peer manages the node's peer table: the set of other mesh
// nodes it knows a URL and/or id for, seeded from configuration and
// grown as ids are discovered on inbound traffic.
package peer

import (
	"github.com/route-beacon/meshd/internal/config"
	"github.com/route-beacon/meshd/internal/message"
	"github.com/route-beacon/meshd/internal/state"
)

// Initialize seeds the peer table from the statically configured peer
// list. The config table's key is an operator-facing label only, not
// the peer's node_id: id is unknown until first contact, stamped in
// later by Learn from an observed origin_id (4.B).
func Initialize(st *state.State, cfg *config.Config) {
	peers := make([]message.Peer, 0, len(cfg.Peer))
	for _, p := range cfg.Peer {
		peers = append(peers, message.Peer{URL: p.URL, Polling: p.Polling})
	}
	st.ReplacePeers(peers)
}

// All returns a snapshot of the peer table.
func All(st *state.State) []message.Peer {
	return st.PeersSnapshot()
}

// Polling returns a snapshot of only the peers configured for backlog
// polling.
func Polling(st *state.State) []message.Peer {
	all := st.PeersSnapshot()
	out := make([]message.Peer, 0, len(all))
	for _, p := range all {
		if p.Polling {
			out = append(out, p)
		}
	}
	return out
}

// LookupURL returns the url known for id, if any.
func LookupURL(st *state.State, id string) (string, bool) {
	for _, p := range st.PeersSnapshot() {
		if p.ID == id && p.URL != "" {
			return p.URL, true
		}
	}
	return "", false
}

// IDsForURL returns every peer id currently associated with url. A url
// can map to more than one id only transiently, while a peer's
// identity is still being learned.
func IDsForURL(st *state.State, url string) []string {
	var ids []string
	for _, p := range st.PeersSnapshot() {
		if p.URL == url && p.ID != "" {
			ids = append(ids, p.ID)
		}
	}
	return ids
}

// Learn records that url identifies as id: it does nothing if that
// (url, id) row already exists, stamps the id onto an existing
// unidentified row for that url if there is one, and otherwise adds a
// new row.
func Learn(st *state.State, id, url string) {
	if id == "" || url == "" {
		return
	}
	st.WithPeers(func(peers []message.Peer) []message.Peer {
		for _, p := range peers {
			if p.URL == url && p.ID == id {
				return peers // already known
			}
		}
		for i, p := range peers {
			if p.URL == url && p.ID == "" {
				peers[i].ID = id
				return peers
			}
		}
		return append(peers, message.Peer{ID: id, URL: url})
	})
}
