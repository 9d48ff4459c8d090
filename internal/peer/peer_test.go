package peer

import (
	"testing"

	"github.com/route-beacon/meshd/internal/config"
	"github.com/route-beacon/meshd/internal/state"
)

func newState(t *testing.T) *state.State {
	t.Helper()
	cfg := &config.Config{
		ID: "node-a",
		Peer: map[string]config.PeerConfig{
			"node-b": {URL: "https://b.example:7000/mesh", Polling: true},
			"node-c": {URL: "https://c.example:7000/mesh"},
		},
	}
	st := state.New(cfg)
	Initialize(st, cfg)
	return st
}

func TestInitialize_SeedsFromConfig(t *testing.T) {
	st := newState(t)
	all := All(st)
	if len(all) != 2 {
		t.Fatalf("expected 2 peers, got %d", len(all))
	}
}

func TestInitialize_SeedsIDsUnknown(t *testing.T) {
	st := newState(t)
	for _, p := range All(st) {
		if p.ID != "" {
			t.Fatalf("expected config label not to seed an id, got %+v", p)
		}
	}
}

func TestPolling_FiltersNonPolling(t *testing.T) {
	st := newState(t)
	polling := Polling(st)
	if len(polling) != 1 || polling[0].URL != "https://b.example:7000/mesh" {
		t.Fatalf("expected only the b.example peer to be polling, got %+v", polling)
	}
}

func TestLookupURL_Found(t *testing.T) {
	st := newState(t)
	Learn(st, "node-c", "https://c.example:7000/mesh")
	url, ok := LookupURL(st, "node-c")
	if !ok || url != "https://c.example:7000/mesh" {
		t.Fatalf("expected url for node-c, got %q ok=%v", url, ok)
	}
}

func TestLookupURL_NotFound(t *testing.T) {
	st := newState(t)
	if _, ok := LookupURL(st, "node-z"); ok {
		t.Fatal("expected no url for unknown peer")
	}
}

func TestLookupURL_UnlearnedPeerNotFound(t *testing.T) {
	st := newState(t)
	if _, ok := LookupURL(st, "node-c"); ok {
		t.Fatal("expected no url for a configured peer whose id hasn't been learned yet")
	}
}

func TestIDsForURL(t *testing.T) {
	st := newState(t)
	Learn(st, "node-b", "https://b.example:7000/mesh")
	ids := IDsForURL(st, "https://b.example:7000/mesh")
	if len(ids) != 1 || ids[0] != "node-b" {
		t.Fatalf("expected [node-b], got %v", ids)
	}
}

func TestIDsForURL_EmptyBeforeLearn(t *testing.T) {
	st := newState(t)
	if ids := IDsForURL(st, "https://b.example:7000/mesh"); len(ids) != 0 {
		t.Fatalf("expected no ids for a url whose peer hasn't been learned yet, got %v", ids)
	}
}

func TestLearn_AddsUnknownPeer(t *testing.T) {
	st := newState(t)
	Learn(st, "node-d", "https://d.example:7000/mesh")
	if _, ok := LookupURL(st, "node-d"); !ok {
		t.Fatal("expected node-d to be learned")
	}
}

func TestLearn_StampsIDOntoUnidentifiedURL(t *testing.T) {
	st := newState(t)
	Learn(st, "node-c", "https://c.example:7000/mesh")
	url, ok := LookupURL(st, "node-c")
	if !ok || url != "https://c.example:7000/mesh" {
		t.Fatalf("expected node-c's config-seeded url to now resolve under its learned id, got %q ok=%v", url, ok)
	}
	if len(All(st)) != 2 {
		t.Fatalf("expected the stamp to land on the existing row, not add a new one, got %+v", All(st))
	}
}

func TestLearn_EmptyIDIsNoOp(t *testing.T) {
	st := newState(t)
	before := len(All(st))
	Learn(st, "", "https://e.example:7000/mesh")
	if len(All(st)) != before {
		t.Fatalf("expected learn with empty id to be a no-op")
	}
}
