// Package control implements the private operator HTTP surface: three
// JSON endpoints an operator or internal CLI uses to submit Ticket
// operations, either waiting synchronously for the response or polling
// for it later.
package control

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/route-beacon/meshd/internal/config"
	"github.com/route-beacon/meshd/internal/message"
	"github.com/route-beacon/meshd/internal/state"
	"github.com/route-beacon/meshd/internal/ticket"
)

// Session is the JSON body exchanged with the operator: a ticket
// request going in, and (once available) its response.
type Session struct {
	TicketID string                 `json:"ticket_id"`
	Request  message.TicketRequest  `json:"request"`
	Response *message.TicketResponse `json:"response,omitempty"`
}

// Server hosts the private control endpoints.
type Server struct {
	State   *state.State
	Config  *config.Config
	LocalID string
	Now     func() int64
}

func (s *Server) now() int64 {
	if s.Now != nil {
		return s.Now()
	}
	return 0
}

func NewMux(srv *Server) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc(srv.Config.PrivateHTTP.TicketSyncEndpoint, srv.handleSync)
	mux.HandleFunc(srv.Config.PrivateHTTP.TicketAsyncEndpoint, srv.handleAsync)
	return mux
}

// handleSync is send_and_receive_ticket. A request with no destination
// dispatches straight against local state, the same function the
// processor itself calls for a locally-resolved TicketRequest. A
// request naming a remote destination instead composes send+receive:
// it must actually route there via the backlog and transport rather
// than running against this node's own tables.
func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var sess Session
	if err := json.NewDecoder(r.Body).Decode(&sess); err != nil {
		http.Error(w, fmt.Sprintf("decoding request: %v", err), http.StatusBadRequest)
		return
	}

	if !sess.Request.HasDest {
		resp := ticket.Dispatch(s.State, s.LocalID, s.now(), sess.Request)
		sess.Response = &resp
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(sess)
		return
	}

	if sess.Request.TicketID == "" {
		sess.Request.TicketID = fmt.Sprintf("%s-%d", s.LocalID, s.now())
	}
	sess.Request.StartTime = s.now()

	ctx, cancel := context.WithTimeout(r.Context(), s.Config.TicketExpiration())
	defer cancel()

	resp, err := ticket.SendAndReceive(ctx, s.State, sess.Request)
	if err != nil {
		http.Error(w, fmt.Sprintf("waiting for ticket response: %v", err), http.StatusGatewayTimeout)
		return
	}
	sess.TicketID = sess.Request.TicketID
	sess.Response = &resp

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(sess)
}

// handleAsync: POST submits a ticket and returns its id immediately;
// GET with ?ticket_id=... returns the response if it has arrived yet.
func (s *Server) handleAsync(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		var sess Session
		if err := json.NewDecoder(r.Body).Decode(&sess); err != nil {
			http.Error(w, fmt.Sprintf("decoding request: %v", err), http.StatusBadRequest)
			return
		}
		sess.Request.StartTime = s.now()
		ticket.Send(s.State, sess.Request)

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(Session{TicketID: sess.Request.TicketID, Request: sess.Request})

	case http.MethodGet:
		id := r.URL.Query().Get("ticket_id")
		if id == "" {
			http.Error(w, "missing ticket_id", http.StatusBadRequest)
			return
		}
		ts, ok := s.State.GetTicket(id)
		if !ok {
			http.Error(w, "unknown or already-drained ticket_id", http.StatusNotFound)
			return
		}
		sess := Session{TicketID: id, Request: ts.Request, Response: ts.Response}
		if ts.Response != nil {
			s.State.DeleteTicket(id)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(sess)

	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// DefaultPollInterval is a poll cadence for clients of the async GET
// endpoint. Nothing in this package or in meshctl reads it.
const DefaultPollInterval = 50 * time.Millisecond
