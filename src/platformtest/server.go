// Package platformtest runs an in-process stand-in for the trading platform's
// WebSocket API so transport, session and dashboard tests can talk to a real
// socket.
package platformtest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Request is one decoded client message.
type Request map[string]interface{}

// ReqID returns the req_id of the request, or 0.
func (r Request) ReqID() int64 {
	if v, ok := r["req_id"].(float64); ok {
		return int64(v)
	}
	return 0
}

// Type returns the request type: the first known request field present.
func (r Request) Type() string {
	for _, k := range []string{"authorize", "affiliate_account_add", "profit_table", "ping"} {
		if _, ok := r[k]; ok {
			return k
		}
	}
	return ""
}

// Handler is called for every inbound request. It may reply synchronously or
// keep the Conn and reply later from another goroutine.
type Handler func(c *Conn, req Request)

// -----------------------------------------------------------------------------
// Conn
// -----------------------------------------------------------------------------

// Conn is the server side of one client socket. Reply is safe for concurrent use.
type Conn struct {
	ws      *websocket.Conn
	writeMu sync.Mutex
	AppID   string
}

func (c *Conn) Reply(v interface{}) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.ws.WriteJSON(v)
}

// Drop closes the socket without a close handshake.
func (c *Conn) Drop() {
	c.ws.UnderlyingConn().Close()
}

// -----------------------------------------------------------------------------
// Server
// -----------------------------------------------------------------------------

type Server struct {
	*httptest.Server

	mu       sync.Mutex
	handler  Handler
	conns    []*Conn
	received []Request
}

func NewServer(handler Handler) *Server {
	s := &Server{handler: handler}
	s.Server = httptest.NewServer(http.HandlerFunc(s.serve))
	return s
}

// WSURL is the ws:// address of the server.
func (s *Server) WSURL() string {
	return "ws" + strings.TrimPrefix(s.Server.URL, "http")
}

// Received returns a copy of every request seen so far.
func (s *Server) Received() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Request, len(s.received))
	copy(out, s.received)
	return out
}

// Conns returns the sockets accepted so far.
func (s *Server) Conns() []*Conn {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Conn, len(s.conns))
	copy(out, s.conns)
	return out
}

// DropAll abruptly closes every accepted socket.
func (s *Server) DropAll() {
	for _, c := range s.Conns() {
		c.Drop()
	}
}

func (s *Server) serve(w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	conn := &Conn{ws: ws, AppID: r.URL.Query().Get("app_id")}

	s.mu.Lock()
	s.conns = append(s.conns, conn)
	s.mu.Unlock()

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			return
		}
		var req Request
		if err := json.Unmarshal(data, &req); err != nil {
			continue
		}

		s.mu.Lock()
		s.received = append(s.received, req)
		handler := s.handler
		s.mu.Unlock()

		if handler != nil {
			handler(conn, req)
		}
	}
}
