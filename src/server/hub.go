package server

import (
	"encoding/json"
	"net/http"

	"commission-observer/src/models"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// -----------------------------------------------------------------------------
// Hub Pattern Implementation
// -----------------------------------------------------------------------------

// handleWebsockets is the main Hub loop
func (s *FastAPIServer) handleWebsockets() {
	for {
		select {
		case client := <-s.register:
			s.stateMutex.Lock()
			s.clients[client] = struct{}{}
			initial := s.snapshot("INITIAL")
			s.stateMutex.Unlock()
			// Send initial state on connect
			client.send <- initial

		case client := <-s.unregister:
			s.stateMutex.Lock()
			if _, ok := s.clients[client]; ok {
				delete(s.clients, client)
				close(client.send)
			}
			s.stateMutex.Unlock()

		case client := <-s.subscribe:
			s.stateMutex.RLock()
			if _, ok := s.clients[client]; ok {
				select {
				case client.send <- s.snapshot("INITIAL"):
				default:
				}
			}
			s.stateMutex.RUnlock()

		case message := <-s.broadcast:
			s.stateMutex.Lock()
			s.latestState = message
			for client := range s.clients {
				select {
				case client.send <- message:
				default:
					// Client too slow, drop it rather than block the hub
					delete(s.clients, client)
					close(client.send)
				}
			}
			s.stateMutex.Unlock()

		case <-s.done:
			s.stateMutex.Lock()
			for client := range s.clients {
				delete(s.clients, client)
				close(client.send)
			}
			s.stateMutex.Unlock()
			return
		}
	}
}

// -----------------------------------------------------------------------------
// Data Exchange Interface Implementation
// -----------------------------------------------------------------------------

// UpdateAllDatas replaces the cached state without notifying subscribers.
func (s *FastAPIServer) UpdateAllDatas(data *models.MLatestData) {
	if data == nil {
		return
	}
	s.stateMutex.Lock()
	defer s.stateMutex.Unlock()

	next := *data
	if next.Report == nil {
		// Keep the last good report when only the session state changed.
		next.Report = s.latestState.Report
		next.SnapshotID = s.latestState.SnapshotID
	}
	s.latestState = &next
}

// -----------------------------------------------------------------------------

// Broadcast queues a fresh report for every subscriber.
func (s *FastAPIServer) Broadcast(data *models.MLatestData) {
	if data == nil {
		return
	}
	msg := *data
	msg.Type = "UPDATE"

	select {
	case s.broadcast <- &msg:
	case <-s.done:
	}
}

// -----------------------------------------------------------------------------
// Helper Methods
// -----------------------------------------------------------------------------

// snapshot copies the cached state under a new message type. Callers hold
// stateMutex.
func (s *FastAPIServer) snapshot(kind string) *models.MLatestData {
	out := *s.latestState
	out.Type = kind
	return &out
}

// -----------------------------------------------------------------------------
// WebSocket Handlers
// -----------------------------------------------------------------------------

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// -----------------------------------------------------------------------------

func (s *FastAPIServer) handleWebSocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.Logger.Info("Failed to upgrade websocket: %v", err)
		return
	}

	client := &Client{
		hub:  s,
		conn: conn,
		// Buffered channel to prevent blocking the Hub loop
		send: make(chan *models.MLatestData, 16),
	}

	select {
	case s.register <- client:
	case <-s.done:
		conn.Close()
		return
	}

	// Start goroutines for reading/writing
	go client.writePump()
	go client.readPump()
}

// -----------------------------------------------------------------------------
// Client Message Handling
// -----------------------------------------------------------------------------

// HandleClientMessage answers a subscribe command with the current state.
// The reply goes through the hub loop, which owns client.send. Anything
// unparseable ends the connection.
func (s *FastAPIServer) HandleClientMessage(client *Client, message []byte) {
	var cmd models.MSubscribeCommand
	if err := json.Unmarshal(message, &cmd); err != nil {
		s.Logger.Info("Failed to parse client command: %v, disconnecting client", err)
		client.conn.Close()
		return
	}

	if cmd.Command != "subscribe" {
		return
	}

	select {
	case s.subscribe <- client:
	case <-s.done:
	}
}
