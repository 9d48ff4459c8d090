// Package route maintains the distance-vector route table: at most one
// row per (destination, gateway) pair, naming the gateway to forward
// through and the path weight last advertised by that gateway.
package route

import (
	"github.com/route-beacon/meshd/internal/message"
	"github.com/route-beacon/meshd/internal/peer"
	"github.com/route-beacon/meshd/internal/state"
)

// Resolve returns the gateway id to forward traffic for destinationID
// through: the row with the minimum weight among every route to that
// destination, treating the self-route's None weight as lower than
// any finite weight. Ties are broken by first occurrence.
func Resolve(st *state.State, destinationID string) (string, bool) {
	var best message.Route
	found := false
	for _, r := range st.RoutesSnapshot() {
		if r.DestinationID != destinationID {
			continue
		}
		if !found || less(r, best) {
			best = r
			found = true
		}
	}
	if !found {
		return "", false
	}
	return best.GatewayID, true
}

// less reports whether a outranks b by weight, None (self-route)
// outranking any Some(w).
func less(a, b message.Route) bool {
	if a.IsSelf() {
		return !b.IsSelf()
	}
	if b.IsSelf() {
		return false
	}
	return a.Weight < b.Weight
}

// Snapshot returns every row currently in the table.
func Snapshot(st *state.State) []message.Route {
	return st.RoutesSnapshot()
}

// Query filters the table down to the rows a RouteQuery asked for.
func Query(st *state.State, q message.RouteQuery) []message.Route {
	all := st.RoutesSnapshot()
	if !q.HasDestIDs && !q.HasGatewayIDs {
		return all
	}
	destSet := toSet(q.DestinationIDs)
	gwSet := toSet(q.GatewayIDs)
	out := make([]message.Route, 0, len(all))
	for _, r := range all {
		if q.HasDestIDs && !destSet[r.DestinationID] {
			continue
		}
		if q.HasGatewayIDs && !gwSet[r.GatewayID] {
			continue
		}
		out = append(out, r)
	}
	return out
}

func toSet(ids []string) map[string]bool {
	m := make(map[string]bool, len(ids))
	for _, id := range ids {
		m[id] = true
	}
	return m
}

// BuildAdvertisement returns the RouteAdvertisement to send toward a
// peer: the full current route table, unmodified — the self-route
// carries no weight at all on the wire, and every other row ships at
// its stored weight. The hop increment is applied once, by the
// receiver's ProcessAdvertisement, not here.
func BuildAdvertisement(st *state.State) message.RouteAdvertisement {
	snapshot := st.RoutesSnapshot()
	routes := make([]message.Route, 0, len(snapshot))
	for _, r := range snapshot {
		if r.IsSelf() {
			routes = append(routes, message.Route{DestinationID: r.DestinationID, GatewayID: r.GatewayID})
			continue
		}
		routes = append(routes, message.Route{
			DestinationID: r.DestinationID,
			GatewayID:     r.GatewayID,
			Weight:        r.Weight,
			WeightSet:     true,
		})
	}
	return message.RouteAdvertisement{Routes: routes}
}

// routeKey identifies one (destination, gateway) row; the table may
// hold several rows for the same destination via distinct gateways,
// but at most one per destination-gateway pair.
type routeKey struct{ destination, gateway string }

// ProcessAdvertisement merges an advertisement received from gatewayID
// into the table. Every advertised row forms a candidate at
// weight+1 — including one carrying no weight at all, which is how a
// peer's own self-route (always sent with weight unset) bootstraps a
// hop-1 route to it. A route is kept if no row exists yet for the
// advertised (destination, gatewayID) pair; an existing row for that
// exact pair is replaced only if the candidate weight is strictly
// lower. Routes to the same destination via a different gateway are
// left untouched, so they may coexist per 4.C.
func ProcessAdvertisement(st *state.State, localID, gatewayID string, adv message.RouteAdvertisement) {
	st.WithRoutes(func(routes []message.Route) []message.Route {
		index := make(map[routeKey]int, len(routes))
		for i, r := range routes {
			index[routeKey{r.DestinationID, r.GatewayID}] = i
		}

		for _, advertised := range adv.Routes {
			if advertised.DestinationID == localID {
				continue // never learn a route back to ourselves
			}
			key := routeKey{advertised.DestinationID, gatewayID}
			candidate := message.Route{
				DestinationID: advertised.DestinationID,
				GatewayID:     gatewayID,
				Weight:        advertised.Weight + 1,
				WeightSet:     true,
			}
			if i, ok := index[key]; ok {
				if routes[i].IsSelf() {
					continue
				}
				if candidate.Weight < routes[i].Weight {
					routes[i] = candidate
				}
			} else {
				index[key] = len(routes)
				routes = append(routes, candidate)
			}
		}
		return routes
	})
}

// Recall removes every route to destinationID gatewayed through
// gatewayID, mirroring an explicit RouteRecall message whose sender is
// that gateway: a recall only speaks for routes it is itself the
// next-hop of, never for an unrelated gateway's path to the same
// destination.
func Recall(st *state.State, destinationID, gatewayID string) {
	st.WithRoutes(func(routes []message.Route) []message.Route {
		out := routes[:0:0]
		for _, r := range routes {
			if r.DestinationID == destinationID && r.GatewayID == gatewayID {
				continue
			}
			out = append(out, r)
		}
		return out
	})
}

// RemoveByURL drops every route whose destination is an id of a peer
// reachable at url, except the self-route — a dead peer never
// invalidates our own identity. This is the behavior fixed by the Open Question decision:
// keep a route iff its destination is not one of the dead peer's ids,
// or the route is the self-route.
func RemoveByURL(st *state.State, url string) int {
	deadIDs := toSet(peer.IDsForURL(st, url))
	removed := 0
	st.WithRoutes(func(routes []message.Route) []message.Route {
		out := routes[:0:0]
		for _, r := range routes {
			if r.IsSelf() || !deadIDs[r.DestinationID] {
				out = append(out, r)
				continue
			}
			removed++
		}
		return out
	})
	return removed
}

// Age increments every non-self route's weight by one hop, then evicts
// every route whose weight now exceeds maxWeight, and reports how many
// were evicted. The self-route is never incremented or aged out, so a
// maxWeight of 0 evicts every other route within a single tick.
func Age(st *state.State, maxWeight int) int {
	evicted := 0
	st.WithRoutes(func(routes []message.Route) []message.Route {
		out := routes[:0:0]
		for _, r := range routes {
			if r.IsSelf() {
				out = append(out, r)
				continue
			}
			r.Weight++
			if r.Weight > maxWeight {
				evicted++
				continue
			}
			out = append(out, r)
		}
		return out
	})
	return evicted
}
