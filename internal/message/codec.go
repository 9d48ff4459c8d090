package message

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"
)

// Wire layout, all integers big-endian (grounded on the teacher's BGP
// UPDATE / path-attribute TLV decoder, internal/bgp/update.go):
//
//	byte    compression flag (0 = raw, 1 = zstd)
//	...     body: a sequence of length-prefixed fields as described below
//
// Every variable-length field is prefixed by a uint32 byte length.
// Every repeated field is prefixed by a uint32 element count.
// Optional strings are prefixed by a single presence byte.

var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic(fmt.Sprintf("message: building zstd encoder: %v", err))
	}
	zstdDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic(fmt.Sprintf("message: building zstd decoder: %v", err))
	}
}

const (
	compressionFlagRaw  byte = 0
	compressionFlagZstd byte = 1
)

// Encode serializes mc, transparently zstd-compressing the body when it
// exceeds compressionThreshold bytes (0 disables compression).
func Encode(mc MessageCollection, compressionThreshold int) ([]byte, error) {
	var body bytes.Buffer
	if err := encodeCollection(&body, mc); err != nil {
		return nil, fmt.Errorf("message: encoding collection: %w", err)
	}

	if compressionThreshold > 0 && body.Len() > compressionThreshold {
		compressed := zstdEncoder.EncodeAll(body.Bytes(), nil)
		out := make([]byte, 0, len(compressed)+1)
		out = append(out, compressionFlagZstd)
		out = append(out, compressed...)
		return out, nil
	}

	out := make([]byte, 0, body.Len()+1)
	out = append(out, compressionFlagRaw)
	out = append(out, body.Bytes()...)
	return out, nil
}

// Decode parses a buffer produced by Encode.
func Decode(data []byte) (MessageCollection, error) {
	if len(data) < 1 {
		return MessageCollection{}, fmt.Errorf("message: empty buffer")
	}
	flag, body := data[0], data[1:]

	switch flag {
	case compressionFlagRaw:
		// body as-is
	case compressionFlagZstd:
		decompressed, err := zstdDecoder.DecodeAll(body, nil)
		if err != nil {
			return MessageCollection{}, fmt.Errorf("message: zstd decompress: %w", err)
		}
		body = decompressed
	default:
		return MessageCollection{}, fmt.Errorf("message: unknown compression flag %d", flag)
	}

	r := bytes.NewReader(body)
	mc, err := decodeCollection(r)
	if err != nil {
		return MessageCollection{}, fmt.Errorf("message: decoding collection: %w", err)
	}
	return mc, nil
}

// --- primitive helpers -----------------------------------------------

func writeString(w io.Writer, s string) error {
	b := []byte(s)
	if err := binary.Write(w, binary.BigEndian, uint32(len(b))); err != nil {
		return err
	}
	_, err := w.Write(b)
	return err
}

func readString(r io.Reader) (string, error) {
	var n uint32
	if err := binary.Read(r, binary.BigEndian, &n); err != nil {
		return "", err
	}
	if n > 64<<20 {
		return "", fmt.Errorf("string field too large: %d bytes", n)
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return "", err
	}
	return string(b), nil
}

func writeOptionalString(w io.Writer, present bool, s string) error {
	var flag byte
	if present {
		flag = 1
	}
	if err := binary.Write(w, binary.BigEndian, flag); err != nil {
		return err
	}
	if present {
		return writeString(w, s)
	}
	return nil
}

func readOptionalString(r io.Reader) (string, bool, error) {
	var flag byte
	if err := binary.Read(r, binary.BigEndian, &flag); err != nil {
		return "", false, err
	}
	if flag == 0 {
		return "", false, nil
	}
	s, err := readString(r)
	return s, true, err
}

func writeBool(w io.Writer, b bool) error {
	var v byte
	if b {
		v = 1
	}
	return binary.Write(w, binary.BigEndian, v)
}

func readBool(r io.Reader) (bool, error) {
	var v byte
	if err := binary.Read(r, binary.BigEndian, &v); err != nil {
		return false, err
	}
	return v != 0, nil
}

func writeInt64(w io.Writer, v int64) error { return binary.Write(w, binary.BigEndian, v) }
func readInt64(r io.Reader) (int64, error) {
	var v int64
	err := binary.Read(r, binary.BigEndian, &v)
	return v, err
}

func writeInt32(w io.Writer, v int) error { return binary.Write(w, binary.BigEndian, int32(v)) }
func readInt32(r io.Reader) (int, error) {
	var v int32
	err := binary.Read(r, binary.BigEndian, &v)
	return int(v), err
}

func writeCount(w io.Writer, n int) error { return binary.Write(w, binary.BigEndian, uint32(n)) }
func readCount(r io.Reader) (int, error) {
	var n uint32
	if err := binary.Read(r, binary.BigEndian, &n); err != nil {
		return 0, err
	}
	if n > 4_000_000 {
		return 0, fmt.Errorf("repeated field count too large: %d", n)
	}
	return int(n), nil
}

// --- MessageCollection / Route -----------------------------------------

func encodeCollection(w io.Writer, mc MessageCollection) error {
	if err := writeString(w, mc.OriginID); err != nil {
		return err
	}
	if err := writeOptionalString(w, mc.HasDestination, mc.DestinationID); err != nil {
		return err
	}
	if err := writeCount(w, len(mc.Messages)); err != nil {
		return err
	}
	for _, m := range mc.Messages {
		if err := encodeMessage(w, m); err != nil {
			return err
		}
	}
	return nil
}

func decodeCollection(r io.Reader) (MessageCollection, error) {
	var mc MessageCollection
	var err error
	if mc.OriginID, err = readString(r); err != nil {
		return mc, err
	}
	if mc.DestinationID, mc.HasDestination, err = readOptionalString(r); err != nil {
		return mc, err
	}
	n, err := readCount(r)
	if err != nil {
		return mc, err
	}
	mc.Messages = make([]Message, 0, n)
	for i := 0; i < n; i++ {
		m, err := decodeMessage(r)
		if err != nil {
			return mc, fmt.Errorf("message %d: %w", i, err)
		}
		mc.Messages = append(mc.Messages, m)
	}
	return mc, nil
}

func encodeRoute(w io.Writer, rt Route) error {
	if err := writeString(w, rt.DestinationID); err != nil {
		return err
	}
	if err := writeString(w, rt.GatewayID); err != nil {
		return err
	}
	if err := writeBool(w, rt.WeightSet); err != nil {
		return err
	}
	return writeInt32(w, rt.Weight)
}

func decodeRoute(r io.Reader) (Route, error) {
	var rt Route
	var err error
	if rt.DestinationID, err = readString(r); err != nil {
		return rt, err
	}
	if rt.GatewayID, err = readString(r); err != nil {
		return rt, err
	}
	if rt.WeightSet, err = readBool(r); err != nil {
		return rt, err
	}
	rt.Weight, err = readInt32(r)
	return rt, err
}

func encodeRoutes(w io.Writer, routes []Route) error {
	if err := writeCount(w, len(routes)); err != nil {
		return err
	}
	for _, rt := range routes {
		if err := encodeRoute(w, rt); err != nil {
			return err
		}
	}
	return nil
}

func decodeRoutes(r io.Reader) ([]Route, error) {
	n, err := readCount(r)
	if err != nil {
		return nil, err
	}
	routes := make([]Route, 0, n)
	for i := 0; i < n; i++ {
		rt, err := decodeRoute(r)
		if err != nil {
			return nil, err
		}
		routes = append(routes, rt)
	}
	return routes, nil
}

// --- Message tagged union ------------------------------------------------

func encodeMessage(w io.Writer, m Message) error {
	if err := binary.Write(w, binary.BigEndian, m.Kind); err != nil {
		return err
	}
	switch m.Kind {
	case KindRouteAdvertisement:
		return encodeRoutes(w, m.RouteAdvertisement.Routes)
	case KindRouteRecall:
		return writeString(w, m.RouteRecall.DestinationID)
	case KindBacklogRequest:
		return writeString(w, m.BacklogRequest.GatewayID)
	case KindBacklogResponse:
		if err := writeCount(w, len(m.BacklogResponse.Collections)); err != nil {
			return err
		}
		for _, c := range m.BacklogResponse.Collections {
			if err := encodeCollection(w, c); err != nil {
				return err
			}
		}
		return nil
	case KindPing, KindPong:
		return nil
	case KindTraceRequest:
		if err := writeInt32(w, m.TraceRequest.HopCount); err != nil {
			return err
		}
		return writeString(w, m.TraceRequest.RequestID)
	case KindTraceResponse:
		if err := writeInt32(w, m.TraceResponse.HopCount); err != nil {
			return err
		}
		return writeString(w, m.TraceResponse.RequestID)
	case KindTraceEvent:
		return encodeTraceEvent(w, *m.TraceEvent)
	case KindTicketRequest:
		return encodeTicketRequest(w, *m.TicketRequest)
	case KindTicketResponse:
		return encodeTicketResponse(w, *m.TicketResponse)
	case KindBroadcastRequest:
		return encodeBroadcastRequest(w, *m.BroadcastRequest)
	case KindBroadcastResponse:
		return encodeBroadcastResponse(w, *m.BroadcastResponse)
	default:
		return fmt.Errorf("unknown message kind %d", m.Kind)
	}
}

func decodeMessage(r io.Reader) (Message, error) {
	var kind Kind
	if err := binary.Read(r, binary.BigEndian, &kind); err != nil {
		return Message{}, err
	}
	m := Message{Kind: kind}
	switch kind {
	case KindRouteAdvertisement:
		routes, err := decodeRoutes(r)
		if err != nil {
			return m, err
		}
		m.RouteAdvertisement = &RouteAdvertisement{Routes: routes}
	case KindRouteRecall:
		id, err := readString(r)
		if err != nil {
			return m, err
		}
		m.RouteRecall = &RouteRecall{DestinationID: id}
	case KindBacklogRequest:
		id, err := readString(r)
		if err != nil {
			return m, err
		}
		m.BacklogRequest = &BacklogRequest{GatewayID: id}
	case KindBacklogResponse:
		n, err := readCount(r)
		if err != nil {
			return m, err
		}
		collections := make([]MessageCollection, 0, n)
		for i := 0; i < n; i++ {
			c, err := decodeCollection(r)
			if err != nil {
				return m, err
			}
			collections = append(collections, c)
		}
		m.BacklogResponse = &BacklogResponse{Collections: collections}
	case KindPing, KindPong:
		// no payload
	case KindTraceRequest:
		hopCount, err := readInt32(r)
		if err != nil {
			return m, err
		}
		reqID, err := readString(r)
		if err != nil {
			return m, err
		}
		m.TraceRequest = &TraceRequest{HopCount: hopCount, RequestID: reqID}
	case KindTraceResponse:
		hopCount, err := readInt32(r)
		if err != nil {
			return m, err
		}
		reqID, err := readString(r)
		if err != nil {
			return m, err
		}
		m.TraceResponse = &TraceResponse{HopCount: hopCount, RequestID: reqID}
	case KindTraceEvent:
		ev, err := decodeTraceEvent(r)
		if err != nil {
			return m, err
		}
		m.TraceEvent = &ev
	case KindTicketRequest:
		tr, err := decodeTicketRequest(r)
		if err != nil {
			return m, err
		}
		m.TicketRequest = &tr
	case KindTicketResponse:
		tr, err := decodeTicketResponse(r)
		if err != nil {
			return m, err
		}
		m.TicketResponse = &tr
	case KindBroadcastRequest:
		br, err := decodeBroadcastRequest(r)
		if err != nil {
			return m, err
		}
		m.BroadcastRequest = &br
	case KindBroadcastResponse:
		br, err := decodeBroadcastResponse(r)
		if err != nil {
			return m, err
		}
		m.BroadcastResponse = &br
	default:
		return m, fmt.Errorf("unknown message kind %d", kind)
	}
	return m, nil
}

// --- Trace -----------------------------------------------------------

func encodeTraceEvent(w io.Writer, e TraceEvent) error {
	if err := writeInt32(w, e.HopCount); err != nil {
		return err
	}
	if err := writeString(w, e.RequestID); err != nil {
		return err
	}
	if err := writeInt64(w, e.LocalTime); err != nil {
		return err
	}
	if err := writeString(w, e.ID); err != nil {
		return err
	}
	return binary.Write(w, binary.BigEndian, e.Direction)
}

func decodeTraceEvent(r io.Reader) (TraceEvent, error) {
	var e TraceEvent
	var err error
	if e.HopCount, err = readInt32(r); err != nil {
		return e, err
	}
	if e.RequestID, err = readString(r); err != nil {
		return e, err
	}
	if e.LocalTime, err = readInt64(r); err != nil {
		return e, err
	}
	if e.ID, err = readString(r); err != nil {
		return e, err
	}
	if err := binary.Read(r, binary.BigEndian, &e.Direction); err != nil {
		return e, err
	}
	return e, nil
}

func encodeTrace(w io.Writer, t Trace) error {
	if err := writeCount(w, len(t.Events)); err != nil {
		return err
	}
	for _, e := range t.Events {
		if err := encodeTraceEvent(w, e); err != nil {
			return err
		}
	}
	if err := writeOptionalString(w, t.HasRequestID, t.RequestID); err != nil {
		return err
	}
	if err := writeString(w, t.DestinationID); err != nil {
		return err
	}
	if err := writeBool(w, t.HasStartTime); err != nil {
		return err
	}
	if err := writeInt64(w, t.StartTime); err != nil {
		return err
	}
	if err := writeBool(w, t.HasStopTime); err != nil {
		return err
	}
	return writeInt64(w, t.StopTime)
}

func decodeTrace(r io.Reader) (Trace, error) {
	var t Trace
	n, err := readCount(r)
	if err != nil {
		return t, err
	}
	t.Events = make([]TraceEvent, 0, n)
	for i := 0; i < n; i++ {
		e, err := decodeTraceEvent(r)
		if err != nil {
			return t, err
		}
		t.Events = append(t.Events, e)
	}
	if t.RequestID, t.HasRequestID, err = readOptionalString(r); err != nil {
		return t, err
	}
	if t.DestinationID, err = readString(r); err != nil {
		return t, err
	}
	if t.HasStartTime, err = readBool(r); err != nil {
		return t, err
	}
	if t.StartTime, err = readInt64(r); err != nil {
		return t, err
	}
	if t.HasStopTime, err = readBool(r); err != nil {
		return t, err
	}
	t.StopTime, err = readInt64(r)
	return t, err
}

// --- Broadcast ---------------------------------------------------------

func encodeBroadcastPayload(w io.Writer, p BroadcastPayload) error {
	return writeBool(w, p.IsPing)
}

func decodeBroadcastPayload(r io.Reader) (BroadcastPayload, error) {
	isPing, err := readBool(r)
	return BroadcastPayload{IsPing: isPing}, err
}

func encodeBroadcastRequest(w io.Writer, b BroadcastRequest) error {
	if err := writeString(w, b.RequestID); err != nil {
		return err
	}
	if err := writeOptionalString(w, b.HasOriginID, b.OriginID); err != nil {
		return err
	}
	return encodeBroadcastPayload(w, b.Payload)
}

func decodeBroadcastRequest(r io.Reader) (BroadcastRequest, error) {
	var b BroadcastRequest
	var err error
	if b.RequestID, err = readString(r); err != nil {
		return b, err
	}
	if b.OriginID, b.HasOriginID, err = readOptionalString(r); err != nil {
		return b, err
	}
	b.Payload, err = decodeBroadcastPayload(r)
	return b, err
}

func encodeBroadcastResponse(w io.Writer, b BroadcastResponse) error {
	if err := writeString(w, b.RequestID); err != nil {
		return err
	}
	if err := encodeBroadcastPayload(w, b.Payload); err != nil {
		return err
	}
	return writeInt64(w, b.LocalTime)
}

func decodeBroadcastResponse(r io.Reader) (BroadcastResponse, error) {
	var b BroadcastResponse
	var err error
	if b.RequestID, err = readString(r); err != nil {
		return b, err
	}
	if b.Payload, err = decodeBroadcastPayload(r); err != nil {
		return b, err
	}
	b.LocalTime, err = readInt64(r)
	return b, err
}

func encodeBroadcast(w io.Writer, b Broadcast) error {
	if err := encodeBroadcastRequest(w, b.Request); err != nil {
		return err
	}
	if err := writeCount(w, len(b.Responses)); err != nil {
		return err
	}
	for id, resp := range b.Responses {
		if err := writeString(w, id); err != nil {
			return err
		}
		if err := encodeBroadcastResponse(w, resp); err != nil {
			return err
		}
	}
	return nil
}

func decodeBroadcast(r io.Reader) (Broadcast, error) {
	var b Broadcast
	var err error
	if b.Request, err = decodeBroadcastRequest(r); err != nil {
		return b, err
	}
	n, err := readCount(r)
	if err != nil {
		return b, err
	}
	b.Responses = make(map[string]BroadcastResponse, n)
	for i := 0; i < n; i++ {
		id, err := readString(r)
		if err != nil {
			return b, err
		}
		resp, err := decodeBroadcastResponse(r)
		if err != nil {
			return b, err
		}
		b.Responses[id] = resp
	}
	return b, nil
}

// --- Ticket / TicketRequest / TicketResponse ----------------------------

func encodeTicketSnapshot(w io.Writer, s TicketSnapshot) error {
	if err := writeString(w, s.TicketID); err != nil {
		return err
	}
	if err := encodeTicketRequest(w, s.Request); err != nil {
		return err
	}
	hasResp := s.Response != nil
	if err := writeBool(w, hasResp); err != nil {
		return err
	}
	if hasResp {
		if err := encodeTicketResponse(w, *s.Response); err != nil {
			return err
		}
	}
	if err := writeOptionalString(w, s.HasDest, s.DestinationID); err != nil {
		return err
	}
	if err := writeInt64(w, s.StartTime); err != nil {
		return err
	}
	if err := writeBool(w, s.HasStopTime); err != nil {
		return err
	}
	return writeInt64(w, s.StopTime)
}

func decodeTicketSnapshot(r io.Reader) (TicketSnapshot, error) {
	var s TicketSnapshot
	var err error
	if s.TicketID, err = readString(r); err != nil {
		return s, err
	}
	if s.Request, err = decodeTicketRequest(r); err != nil {
		return s, err
	}
	hasResp, err := readBool(r)
	if err != nil {
		return s, err
	}
	if hasResp {
		resp, err := decodeTicketResponse(r)
		if err != nil {
			return s, err
		}
		s.Response = &resp
	}
	if s.DestinationID, s.HasDest, err = readOptionalString(r); err != nil {
		return s, err
	}
	if s.StartTime, err = readInt64(r); err != nil {
		return s, err
	}
	if s.HasStopTime, err = readBool(r); err != nil {
		return s, err
	}
	s.StopTime, err = readInt64(r)
	return s, err
}

func encodeTicket(w io.Writer, t Ticket) error {
	if err := binary.Write(w, binary.BigEndian, t.Kind); err != nil {
		return err
	}
	switch t.Kind {
	case TicketKindTest:
		return nil
	case TicketKindTicketQuery:
		if err := writeCount(w, len(t.TicketQuery.Tickets)); err != nil {
			return err
		}
		for _, s := range t.TicketQuery.Tickets {
			if err := encodeTicketSnapshot(w, s); err != nil {
				return err
			}
		}
		return nil
	case TicketKindPeerQuery:
		if err := writeCount(w, len(t.PeerQuery.Peers)); err != nil {
			return err
		}
		for _, p := range t.PeerQuery.Peers {
			if err := writeString(w, p.ID); err != nil {
				return err
			}
			if err := writeString(w, p.URL); err != nil {
				return err
			}
			if err := writeBool(w, p.Polling); err != nil {
				return err
			}
		}
		return nil
	case TicketKindRouteQuery:
		q := t.RouteQuery
		if err := encodeRoutes(w, q.Routes); err != nil {
			return err
		}
		if err := writeBool(w, q.HasDestIDs); err != nil {
			return err
		}
		if err := writeCount(w, len(q.DestinationIDs)); err != nil {
			return err
		}
		for _, id := range q.DestinationIDs {
			if err := writeString(w, id); err != nil {
				return err
			}
		}
		if err := writeBool(w, q.HasGatewayIDs); err != nil {
			return err
		}
		if err := writeCount(w, len(q.GatewayIDs)); err != nil {
			return err
		}
		for _, id := range q.GatewayIDs {
			if err := writeString(w, id); err != nil {
				return err
			}
		}
		return nil
	case TicketKindBeginTrace, TicketKindDrainTrace, TicketKindPollTrace:
		return encodeTrace(w, *t.Trace)
	case TicketKindBeginBroadcast, TicketKindPollBroadcast, TicketKindDrainBroadcast:
		return encodeBroadcast(w, *t.Broadcast)
	default:
		return fmt.Errorf("unknown ticket kind %d", t.Kind)
	}
}

func decodeTicket(r io.Reader) (Ticket, error) {
	var kind TicketKind
	if err := binary.Read(r, binary.BigEndian, &kind); err != nil {
		return Ticket{}, err
	}
	t := Ticket{Kind: kind}
	switch kind {
	case TicketKindTest:
		return t, nil
	case TicketKindTicketQuery:
		n, err := readCount(r)
		if err != nil {
			return t, err
		}
		tickets := make([]TicketSnapshot, 0, n)
		for i := 0; i < n; i++ {
			s, err := decodeTicketSnapshot(r)
			if err != nil {
				return t, err
			}
			tickets = append(tickets, s)
		}
		t.TicketQuery = &TicketQuery{Tickets: tickets}
		return t, nil
	case TicketKindPeerQuery:
		n, err := readCount(r)
		if err != nil {
			return t, err
		}
		peers := make([]Peer, 0, n)
		for i := 0; i < n; i++ {
			var p Peer
			if p.ID, err = readString(r); err != nil {
				return t, err
			}
			if p.URL, err = readString(r); err != nil {
				return t, err
			}
			if p.Polling, err = readBool(r); err != nil {
				return t, err
			}
			peers = append(peers, p)
		}
		t.PeerQuery = &PeerQuery{Peers: peers}
		return t, nil
	case TicketKindRouteQuery:
		q := &RouteQuery{}
		var err error
		if q.Routes, err = decodeRoutes(r); err != nil {
			return t, err
		}
		if q.HasDestIDs, err = readBool(r); err != nil {
			return t, err
		}
		n, err := readCount(r)
		if err != nil {
			return t, err
		}
		q.DestinationIDs = make([]string, 0, n)
		for i := 0; i < n; i++ {
			id, err := readString(r)
			if err != nil {
				return t, err
			}
			q.DestinationIDs = append(q.DestinationIDs, id)
		}
		if q.HasGatewayIDs, err = readBool(r); err != nil {
			return t, err
		}
		n, err = readCount(r)
		if err != nil {
			return t, err
		}
		q.GatewayIDs = make([]string, 0, n)
		for i := 0; i < n; i++ {
			id, err := readString(r)
			if err != nil {
				return t, err
			}
			q.GatewayIDs = append(q.GatewayIDs, id)
		}
		t.RouteQuery = q
		return t, nil
	case TicketKindBeginTrace, TicketKindDrainTrace, TicketKindPollTrace:
		trace, err := decodeTrace(r)
		if err != nil {
			return t, err
		}
		t.Trace = &trace
		return t, nil
	case TicketKindBeginBroadcast, TicketKindPollBroadcast, TicketKindDrainBroadcast:
		b, err := decodeBroadcast(r)
		if err != nil {
			return t, err
		}
		t.Broadcast = &b
		return t, nil
	default:
		return t, fmt.Errorf("unknown ticket kind %d", kind)
	}
}

func encodeTicketRequest(w io.Writer, tr TicketRequest) error {
	if err := encodeTicket(w, tr.Ticket); err != nil {
		return err
	}
	if err := writeString(w, tr.TicketID); err != nil {
		return err
	}
	if err := writeInt64(w, tr.StartTime); err != nil {
		return err
	}
	if err := writeOptionalString(w, tr.HasDest, tr.DestinationID); err != nil {
		return err
	}
	return writeString(w, tr.OriginID)
}

func decodeTicketRequest(r io.Reader) (TicketRequest, error) {
	var tr TicketRequest
	var err error
	if tr.Ticket, err = decodeTicket(r); err != nil {
		return tr, err
	}
	if tr.TicketID, err = readString(r); err != nil {
		return tr, err
	}
	if tr.StartTime, err = readInt64(r); err != nil {
		return tr, err
	}
	if tr.DestinationID, tr.HasDest, err = readOptionalString(r); err != nil {
		return tr, err
	}
	tr.OriginID, err = readString(r)
	return tr, err
}

func encodeTicketResponse(w io.Writer, tr TicketResponse) error {
	if err := encodeTicket(w, tr.Ticket); err != nil {
		return err
	}
	if err := writeString(w, tr.TicketID); err != nil {
		return err
	}
	return writeInt64(w, tr.StartTime)
}

func decodeTicketResponse(r io.Reader) (TicketResponse, error) {
	var tr TicketResponse
	var err error
	if tr.Ticket, err = decodeTicket(r); err != nil {
		return tr, err
	}
	if tr.TicketID, err = readString(r); err != nil {
		return tr, err
	}
	tr.StartTime, err = readInt64(r)
	return tr, err
}
