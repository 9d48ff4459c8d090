package route

import (
	"testing"

	"github.com/route-beacon/meshd/internal/config"
	"github.com/route-beacon/meshd/internal/message"
	"github.com/route-beacon/meshd/internal/peer"
	"github.com/route-beacon/meshd/internal/state"
)

func newState(t *testing.T) *state.State {
	t.Helper()
	cfg := &config.Config{
		ID:             "node-a",
		MaxRouteWeight: 16,
		Peer: map[string]config.PeerConfig{
			"node-b": {URL: "https://b.example:7000/mesh"},
		},
	}
	st := state.New(cfg)
	peer.Initialize(st, cfg)
	for id, p := range cfg.Peer {
		peer.Learn(st, id, p.URL)
	}
	return st
}

func TestResolve_SelfRoute(t *testing.T) {
	st := newState(t)
	gw, ok := Resolve(st, "node-a")
	if !ok || gw != "node-a" {
		t.Fatalf("expected self-route, got %q ok=%v", gw, ok)
	}
}

func TestBuildAdvertisement_SendsRawWeightUnincremented(t *testing.T) {
	// The hop increment happens once, at the receiver's
	// ProcessAdvertisement — the sender ships its table as-is.
	st := newState(t)
	st.WithRoutes(func(routes []message.Route) []message.Route {
		return append(routes, message.Route{DestinationID: "node-c", GatewayID: "node-b", Weight: 2, WeightSet: true})
	})

	adv := BuildAdvertisement(st)
	var sawSelf, sawC bool
	for _, r := range adv.Routes {
		if r.DestinationID == "node-a" {
			sawSelf = true
			if r.WeightSet {
				t.Errorf("self route must not carry a weight on the wire")
			}
		}
		if r.DestinationID == "node-c" {
			sawC = true
			if !r.WeightSet || r.Weight != 2 {
				t.Errorf("expected node-c advertised at its stored weight 2, got %+v", r)
			}
		}
	}
	if !sawSelf || !sawC {
		t.Fatalf("advertisement missing expected rows: %+v", adv.Routes)
	}
}

func TestProcessAdvertisement_AddsNewRoute(t *testing.T) {
	st := newState(t)
	ProcessAdvertisement(st, "node-a", "node-b", message.RouteAdvertisement{
		Routes: []message.Route{{DestinationID: "node-c", Weight: 1, WeightSet: true}},
	})
	gw, ok := Resolve(st, "node-c")
	if !ok || gw != "node-b" {
		t.Fatalf("expected route to node-c via node-b, got %q ok=%v", gw, ok)
	}
}

func TestProcessAdvertisement_IgnoresSelfDestination(t *testing.T) {
	st := newState(t)
	ProcessAdvertisement(st, "node-a", "node-b", message.RouteAdvertisement{
		Routes: []message.Route{{DestinationID: "node-a", Weight: 1, WeightSet: true}},
	})
	gw, _ := Resolve(st, "node-a")
	if gw != "node-a" {
		t.Fatalf("self-route must not be overwritten, got gateway %q", gw)
	}
}

func TestProcessAdvertisement_MissingWeightBootstrapsHopOne(t *testing.T) {
	// A peer's own self-route is always advertised with weight unset —
	// this is the only way a neighbor ever learns a hop-1 route to it.
	st := newState(t)
	ProcessAdvertisement(st, "node-a", "node-b", message.RouteAdvertisement{
		Routes: []message.Route{{DestinationID: "node-c"}}, // WeightSet false, as a self-route is advertised
	})
	gw, ok := Resolve(st, "node-c")
	if !ok || gw != "node-b" {
		t.Fatalf("expected hop-1 route to node-c via node-b, got %q ok=%v", gw, ok)
	}
	for _, r := range Snapshot(st) {
		if r.DestinationID == "node-c" && r.Weight != 1 {
			t.Fatalf("expected weight 1, got %+v", r)
		}
	}
}

func TestProcessAdvertisement_PrefersLowerWeight(t *testing.T) {
	st := newState(t)
	st.WithRoutes(func(routes []message.Route) []message.Route {
		return append(routes, message.Route{DestinationID: "node-c", GatewayID: "node-x", Weight: 1, WeightSet: true})
	})
	ProcessAdvertisement(st, "node-a", "node-b", message.RouteAdvertisement{
		Routes: []message.Route{{DestinationID: "node-c", Weight: 5, WeightSet: true}},
	})
	gw, _ := Resolve(st, "node-c")
	if gw != "node-x" {
		t.Fatalf("expected existing lower-weight route to node-x kept, got %q", gw)
	}
}

func TestProcessAdvertisement_CoexistsAcrossGateways(t *testing.T) {
	st := newState(t)
	ProcessAdvertisement(st, "node-a", "node-b", message.RouteAdvertisement{
		Routes: []message.Route{{DestinationID: "node-c", Weight: 3, WeightSet: true}},
	})
	ProcessAdvertisement(st, "node-a", "node-d", message.RouteAdvertisement{
		Routes: []message.Route{{DestinationID: "node-c", Weight: 5, WeightSet: true}},
	})

	var viaB, viaD bool
	for _, r := range Snapshot(st) {
		if r.DestinationID != "node-c" {
			continue
		}
		switch r.GatewayID {
		case "node-b":
			viaB = true
		case "node-d":
			viaD = true
		}
	}
	if !viaB || !viaD {
		t.Fatalf("expected routes to node-c via both node-b and node-d to coexist, got %+v", Snapshot(st))
	}

	gw, ok := Resolve(st, "node-c")
	if !ok || gw != "node-b" {
		t.Fatalf("expected resolve to pick the lower-weight gateway node-b, got %q ok=%v", gw, ok)
	}
}

func TestRecall_RemovesRoute(t *testing.T) {
	st := newState(t)
	st.WithRoutes(func(routes []message.Route) []message.Route {
		return append(routes, message.Route{DestinationID: "node-c", GatewayID: "node-b", Weight: 1, WeightSet: true})
	})
	Recall(st, "node-c", "node-b")
	if _, ok := Resolve(st, "node-c"); ok {
		t.Fatal("expected node-c route to be recalled")
	}
}

func TestRecall_LeavesOtherGatewaysAlone(t *testing.T) {
	st := newState(t)
	st.WithRoutes(func(routes []message.Route) []message.Route {
		return append(routes,
			message.Route{DestinationID: "node-c", GatewayID: "node-b", Weight: 1, WeightSet: true},
			message.Route{DestinationID: "node-c", GatewayID: "node-d", Weight: 2, WeightSet: true},
		)
	})
	Recall(st, "node-c", "node-b")
	gw, ok := Resolve(st, "node-c")
	if !ok || gw != "node-d" {
		t.Fatalf("expected the node-d route to survive a recall naming node-b, got %q ok=%v", gw, ok)
	}
}

func TestRemoveByURL_KeepsSelfRoute(t *testing.T) {
	st := newState(t)
	removed := RemoveByURL(st, "https://unrelated.example/mesh")
	if removed != 0 {
		t.Fatalf("expected no removal for unrelated url, got %d", removed)
	}
	if _, ok := Resolve(st, "node-a"); !ok {
		t.Fatal("self-route must survive any RemoveByURL call")
	}
}

func TestRemoveByURL_RemovesRoutesThroughDeadPeer(t *testing.T) {
	st := newState(t)
	st.WithRoutes(func(routes []message.Route) []message.Route {
		return append(routes, message.Route{DestinationID: "node-b", GatewayID: "node-b", Weight: 0, WeightSet: true})
	})
	removed := RemoveByURL(st, "https://b.example:7000/mesh")
	if removed != 1 {
		t.Fatalf("expected 1 route removed, got %d", removed)
	}
	if _, ok := Resolve(st, "node-b"); ok {
		t.Fatal("expected node-b route removed after its url died")
	}
}

func TestAge_IncrementsThenEvictsOverweightRoutes(t *testing.T) {
	st := newState(t)
	st.WithRoutes(func(routes []message.Route) []message.Route {
		return append(routes,
			message.Route{DestinationID: "node-c", GatewayID: "node-b", Weight: 15, WeightSet: true},
			message.Route{DestinationID: "node-d", GatewayID: "node-b", Weight: 16, WeightSet: true},
		)
	})
	evicted := Age(st, 16)
	if evicted != 1 {
		t.Fatalf("expected exactly the weight-16 route to tip over to 17 and be evicted, got %d", evicted)
	}
	gw, ok := Resolve(st, "node-c")
	if !ok || gw != "node-b" {
		t.Fatalf("expected node-c's route to survive aging to weight 16, got %q ok=%v", gw, ok)
	}
	for _, r := range Snapshot(st) {
		if r.DestinationID == "node-c" && r.Weight != 16 {
			t.Fatalf("expected node-c's weight incremented to 16, got %+v", r)
		}
	}
	if _, ok := Resolve(st, "node-d"); ok {
		t.Fatal("expected node-d's route evicted after incrementing past max_route_weight")
	}
	if _, ok := Resolve(st, "node-a"); !ok {
		t.Fatal("self-route must never be incremented or aged out")
	}
}

func TestAge_ZeroMaxWeightEvictsEveryFiniteRoute(t *testing.T) {
	st := newState(t)
	st.WithRoutes(func(routes []message.Route) []message.Route {
		return append(routes, message.Route{DestinationID: "node-c", GatewayID: "node-b", Weight: 0, WeightSet: true})
	})
	evicted := Age(st, 0)
	if evicted != 1 {
		t.Fatalf("expected the weight-0 route to increment to 1 and be evicted, got %d", evicted)
	}
	if _, ok := Resolve(st, "node-a"); !ok {
		t.Fatal("self-route must survive max_route_weight = 0")
	}
}

func TestQuery_FiltersByDestination(t *testing.T) {
	st := newState(t)
	st.WithRoutes(func(routes []message.Route) []message.Route {
		return append(routes, message.Route{DestinationID: "node-c", GatewayID: "node-b", Weight: 1, WeightSet: true})
	})
	rows := Query(st, message.RouteQuery{DestinationIDs: []string{"node-c"}, HasDestIDs: true})
	if len(rows) != 1 || rows[0].DestinationID != "node-c" {
		t.Fatalf("expected only node-c row, got %+v", rows)
	}
}
