// Package message defines the wire-level data model exchanged between
// mesh nodes: the tagged Message union, the MessageCollection envelope
// that carries a batch of them, and the payload types nested inside
// Ticket requests/responses. Nothing in this package touches a table
// lock or a socket — it is pure data plus its binary encoding.
package message

// Peer is the wire/query shape of a peer table row, echoed back by a
// PeerQuery ticket. The live peer table itself lives in internal/peer.
type Peer struct {
	ID      string // empty when not yet discovered
	URL     string // empty when known only by id
	Polling bool
}

// Route is a distance-vector route row. WeightSet is false exactly for
// the self-route (destination == gateway == local id); spec.md's
// `weight = None` maps onto WeightSet=false here since Go has no
// native option type cheap enough to round-trip over the wire in one
// byte without it.
type Route struct {
	DestinationID string
	GatewayID     string
	Weight        int
	WeightSet     bool
}

// IsSelf reports whether r has no weight, i.e. is the self-route.
func (r Route) IsSelf() bool { return !r.WeightSet }

// MessageCollection is the transport unit exchanged between nodes.
type MessageCollection struct {
	OriginID      string
	DestinationID string // empty means "addressed to the direct recipient"
	HasDestination bool
	Messages      []Message
}

// Kind tags which variant of Message is populated.
type Kind uint8

const (
	KindRouteAdvertisement Kind = iota
	KindRouteRecall
	KindBacklogRequest
	KindBacklogResponse
	KindPing
	KindPong
	KindTraceRequest
	KindTraceResponse
	KindTraceEvent
	KindTicketRequest
	KindTicketResponse
	KindBroadcastRequest
	KindBroadcastResponse
)

// Message is a tagged union; exactly the field matching Kind is valid.
type Message struct {
	Kind Kind

	RouteAdvertisement *RouteAdvertisement
	RouteRecall        *RouteRecall
	BacklogRequest     *BacklogRequest
	BacklogResponse    *BacklogResponse
	TraceRequest       *TraceRequest
	TraceResponse      *TraceResponse
	TraceEvent         *TraceEvent
	TicketRequest      *TicketRequest
	TicketResponse     *TicketResponse
	BroadcastRequest   *BroadcastRequest
	BroadcastResponse  *BroadcastResponse
}

func PingMessage() Message { return Message{Kind: KindPing} }
func PongMessage() Message { return Message{Kind: KindPong} }

type RouteAdvertisement struct {
	Routes []Route
}

type RouteRecall struct {
	DestinationID string
}

type BacklogRequest struct {
	GatewayID string
}

type BacklogResponse struct {
	Collections []MessageCollection
}

// Direction marks which leg of a trace a TraceEvent was recorded on.
type Direction uint8

const (
	DirectionOutbound Direction = iota
	DirectionInbound
)

type TraceRequest struct {
	HopCount  int
	RequestID string
}

type TraceResponse struct {
	HopCount  int
	RequestID string
}

type TraceEvent struct {
	HopCount  int
	RequestID string
	LocalTime int64 // unix millis
	ID        string
	Direction Direction
}

// Trace is the path-discovery accumulator. It is itself a wire payload:
// it travels inside BeginTrace/DrainTrace/PollTrace ticket payloads.
type Trace struct {
	Events        []TraceEvent
	RequestID     string
	HasRequestID  bool
	DestinationID string
	StartTime     int64
	HasStartTime  bool
	StopTime      int64
	HasStopTime   bool
}

// BroadcastRequest floods a payload to the whole mesh, deduped by RequestID.
type BroadcastRequest struct {
	RequestID    string
	OriginID     string
	HasOriginID  bool
	Payload      BroadcastPayload
}

type BroadcastResponse struct {
	RequestID string
	Payload   BroadcastPayload
	LocalTime int64
}

// BroadcastPayload is the application payload flooded by a broadcast.
// Only Ping/Pong are implemented; spec.md reserves no tag-filtering
// extension, so this stays a closed, minimal set.
type BroadcastPayload struct {
	IsPing bool // false => Pong
}

// Broadcast is the stored aggregate of a broadcast operation: the
// original request plus every response collected so far, keyed by
// responder node id. It crosses the wire inside BeginBroadcast /
// PollBroadcast / DrainBroadcast ticket payloads.
type Broadcast struct {
	Request   BroadcastRequest
	Responses map[string]BroadcastResponse
}

// TicketSnapshot is the flattened echo of one stored ticket, returned
// by a TicketQuery. It deliberately does not reuse the live
// lock-guarded state.TicketState type.
type TicketSnapshot struct {
	TicketID      string
	Request       TicketRequest
	Response      *TicketResponse
	DestinationID string
	HasDest       bool
	StartTime     int64
	StopTime      int64
	HasStopTime   bool
}

type TicketQuery struct {
	Tickets []TicketSnapshot
}

type PeerQuery struct {
	Peers []Peer
}

type RouteQuery struct {
	Routes         []Route
	DestinationIDs []string
	HasDestIDs     bool
	GatewayIDs     []string
	HasGatewayIDs  bool
}

// TicketKind tags which control operation a Ticket carries.
type TicketKind uint8

const (
	TicketKindTest TicketKind = iota
	TicketKindTicketQuery
	TicketKindPeerQuery
	TicketKindRouteQuery
	TicketKindBeginTrace
	TicketKindDrainTrace
	TicketKindPollTrace
	TicketKindBeginBroadcast
	TicketKindPollBroadcast
	TicketKindDrainBroadcast
)

// Ticket is the tagged union of operator control requests (4.H).
type Ticket struct {
	Kind TicketKind

	TicketQuery *TicketQuery
	PeerQuery   *PeerQuery
	RouteQuery  *RouteQuery
	Trace       *Trace // BeginTrace / DrainTrace / PollTrace payload
	Broadcast   *Broadcast // BeginBroadcast / PollBroadcast / DrainBroadcast payload
}

type TicketRequest struct {
	Ticket        Ticket
	TicketID      string
	StartTime     int64
	DestinationID string
	HasDest       bool
	OriginID      string
}

type TicketResponse struct {
	Ticket    Ticket
	TicketID  string
	StartTime int64
}
