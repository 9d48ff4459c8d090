// Command meshctl is a thin debug client for a running meshd node's
// private control endpoint: it submits one Ticket operation and prints
// the response.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/route-beacon/meshd/internal/control"
	"github.com/route-beacon/meshd/internal/message"
)

func main() {
	addr := flag.String("addr", "http://127.0.0.1:7001", "base url of the node's private control endpoint")
	endpoint := flag.String("endpoint", "/ticket/sync", "control endpoint to call")
	kind := flag.String("ticket", "test", "ticket kind: test, peer_query, route_query, ticket_query")
	flag.Parse()

	ticketKind, err := parseTicketKind(*kind)
	if err != nil {
		fmt.Fprintln(os.Stderr, "meshctl:", err)
		os.Exit(2)
	}

	req := message.TicketRequest{
		TicketID:  fmt.Sprintf("meshctl-%d", time.Now().UnixNano()),
		StartTime: time.Now().UnixMilli(),
		Ticket:    message.Ticket{Kind: ticketKind},
	}

	sess := control.Session{TicketID: req.TicketID, Request: req}
	body, err := json.Marshal(sess)
	if err != nil {
		fmt.Fprintln(os.Stderr, "meshctl: encoding request:", err)
		os.Exit(1)
	}

	resp, err := http.Post(*addr+*endpoint, "application/json", bytes.NewReader(body))
	if err != nil {
		fmt.Fprintln(os.Stderr, "meshctl: request failed:", err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	out, err := io.ReadAll(resp.Body)
	if err != nil {
		fmt.Fprintln(os.Stderr, "meshctl: reading response:", err)
		os.Exit(1)
	}

	var pretty bytes.Buffer
	if err := json.Indent(&pretty, out, "", "  "); err != nil {
		fmt.Println(string(out))
		return
	}
	fmt.Println(pretty.String())
}

func parseTicketKind(s string) (message.TicketKind, error) {
	switch s {
	case "test":
		return message.TicketKindTest, nil
	case "ticket_query":
		return message.TicketKindTicketQuery, nil
	case "peer_query":
		return message.TicketKindPeerQuery, nil
	case "route_query":
		return message.TicketKindRouteQuery, nil
	default:
		return 0, fmt.Errorf("unknown ticket kind %q", s)
	}
}
