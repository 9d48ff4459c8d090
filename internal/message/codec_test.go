package message

import "testing"

func roundTrip(t *testing.T, mc MessageCollection, threshold int) MessageCollection {
	t.Helper()
	buf, err := Encode(mc, threshold)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	got, err := Decode(buf)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	return got
}

func TestEncodeDecode_RouteAdvertisement(t *testing.T) {
	mc := MessageCollection{
		OriginID: "node-a",
		Messages: []Message{
			{
				Kind: KindRouteAdvertisement,
				RouteAdvertisement: &RouteAdvertisement{
					Routes: []Route{
						{DestinationID: "node-a", GatewayID: "node-a"},
						{DestinationID: "node-b", GatewayID: "node-c", Weight: 3, WeightSet: true},
					},
				},
			},
		},
	}

	got := roundTrip(t, mc, 0)
	if got.OriginID != "node-a" {
		t.Fatalf("origin id mismatch: %q", got.OriginID)
	}
	if len(got.Messages) != 1 || got.Messages[0].Kind != KindRouteAdvertisement {
		t.Fatalf("unexpected messages: %+v", got.Messages)
	}
	routes := got.Messages[0].RouteAdvertisement.Routes
	if len(routes) != 2 {
		t.Fatalf("expected 2 routes, got %d", len(routes))
	}
	if routes[0].IsSelf() != true {
		t.Errorf("expected first route to be self-route")
	}
	if routes[1].Weight != 3 || !routes[1].WeightSet {
		t.Errorf("weight not preserved: %+v", routes[1])
	}
}

func TestEncodeDecode_DestinationOptional(t *testing.T) {
	mc := MessageCollection{OriginID: "a", Messages: []Message{PingMessage()}}
	got := roundTrip(t, mc, 0)
	if got.HasDestination {
		t.Errorf("expected no destination")
	}

	mc.HasDestination = true
	mc.DestinationID = "b"
	got = roundTrip(t, mc, 0)
	if !got.HasDestination || got.DestinationID != "b" {
		t.Errorf("destination not preserved: %+v", got)
	}
}

func TestEncodeDecode_TicketRequestWithTrace(t *testing.T) {
	mc := MessageCollection{
		OriginID:      "a",
		HasDestination: true,
		DestinationID: "b",
		Messages: []Message{
			{
				Kind: KindTicketRequest,
				TicketRequest: &TicketRequest{
					TicketID:  "t-1",
					StartTime: 1000,
					OriginID:  "a",
					Ticket: Ticket{
						Kind: TicketKindBeginTrace,
						Trace: &Trace{
							DestinationID: "b",
							HasStartTime:  true,
							StartTime:     1000,
							Events: []TraceEvent{
								{HopCount: 1, RequestID: "t-1", ID: "a", Direction: DirectionOutbound},
							},
						},
					},
				},
			},
		},
	}

	got := roundTrip(t, mc, 0)
	tr := got.Messages[0].TicketRequest
	if tr.Ticket.Kind != TicketKindBeginTrace {
		t.Fatalf("ticket kind not preserved: %v", tr.Ticket.Kind)
	}
	if len(tr.Ticket.Trace.Events) != 1 || tr.Ticket.Trace.Events[0].ID != "a" {
		t.Fatalf("trace events not preserved: %+v", tr.Ticket.Trace)
	}
}

func TestEncodeDecode_CompressedAboveThreshold(t *testing.T) {
	routes := make([]Route, 0, 500)
	for i := 0; i < 500; i++ {
		routes = append(routes, Route{DestinationID: "node-x", GatewayID: "node-y", Weight: i, WeightSet: true})
	}
	mc := MessageCollection{
		OriginID: "a",
		Messages: []Message{{Kind: KindRouteAdvertisement, RouteAdvertisement: &RouteAdvertisement{Routes: routes}}},
	}

	buf, err := Encode(mc, 16)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if buf[0] != compressionFlagZstd {
		t.Fatalf("expected compressed payload, got flag %d", buf[0])
	}

	got, err := Decode(buf)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got.Messages[0].RouteAdvertisement.Routes) != 500 {
		t.Fatalf("expected 500 routes after round trip, got %d", len(got.Messages[0].RouteAdvertisement.Routes))
	}
}

func TestEncodeDecode_BroadcastAggregate(t *testing.T) {
	mc := MessageCollection{
		OriginID: "a",
		Messages: []Message{
			{
				Kind: KindTicketResponse,
				TicketResponse: &TicketResponse{
					TicketID: "t-2",
					Ticket: Ticket{
						Kind: TicketKindPollBroadcast,
						Broadcast: &Broadcast{
							Request: BroadcastRequest{RequestID: "r-1", Payload: BroadcastPayload{IsPing: true}},
							Responses: map[string]BroadcastResponse{
								"node-b": {RequestID: "r-1", Payload: BroadcastPayload{IsPing: false}, LocalTime: 42},
							},
						},
					},
				},
			},
		},
	}

	got := roundTrip(t, mc, 0)
	b := got.Messages[0].TicketResponse.Ticket.Broadcast
	if b.Request.RequestID != "r-1" {
		t.Fatalf("broadcast request not preserved: %+v", b.Request)
	}
	resp, ok := b.Responses["node-b"]
	if !ok || resp.LocalTime != 42 {
		t.Fatalf("broadcast responses not preserved: %+v", b.Responses)
	}
}

func TestDecode_EmptyBuffer(t *testing.T) {
	if _, err := Decode(nil); err == nil {
		t.Fatal("expected error decoding empty buffer")
	}
}

func TestDecode_UnknownCompressionFlag(t *testing.T) {
	if _, err := Decode([]byte{0xFF, 0x00}); err == nil {
		t.Fatal("expected error for unknown compression flag")
	}
}
