package transport

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"commission-observer/src/helpers"
	"commission-observer/src/logger"
	"commission-observer/src/models"

	"github.com/gorilla/websocket"
)

// -----------------------------------------------------------------------------
// Constants
// -----------------------------------------------------------------------------

const (
	writeWait      = 5 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 8 * 1024 * 1024 // profit tables can be large
	sendBuffer     = 256
)

type transportState int

const (
	stateIdle transportState = iota
	stateOpening
	stateOpen
	stateClosed
)

// -----------------------------------------------------------------------------
// WebSocketTransport
// -----------------------------------------------------------------------------

// WebSocketTransport owns one client socket to the platform. Inbound frames
// go to a single handler; outbound payloads are queued to a write pump.
type WebSocketTransport struct {
	Logger *logger.Logger
	Dialer *websocket.Dialer

	mu           sync.RWMutex
	state        transportState
	conn         *websocket.Conn
	handler      func([]byte)
	closeHandler func(error)

	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

// -----------------------------------------------------------------------------
// Constructor
// -----------------------------------------------------------------------------

func NewWebSocketTransport(log *logger.Logger) *WebSocketTransport {
	if log == nil {
		log = logger.NewLogger(nil, "WebSocketTransport")
	}
	return &WebSocketTransport{
		Logger: log,
		Dialer: &websocket.Dialer{
			HandshakeTimeout: 15 * time.Second,
			ReadBufferSize:   4096,
			WriteBufferSize:  4096,
		},
		send: make(chan []byte, sendBuffer),
		done: make(chan struct{}),
	}
}

// -----------------------------------------------------------------------------
// Lifecycle
// -----------------------------------------------------------------------------

// Open dials the platform and starts the pumps. It may be called once.
func (t *WebSocketTransport) Open(ctx context.Context, cfg models.MConnectionConfig) error {
	t.mu.Lock()
	if t.state != stateIdle {
		t.mu.Unlock()
		return helpers.NewConnectionError("transport already opened", nil)
	}
	t.state = stateOpening
	t.mu.Unlock()

	wsURL, err := cfg.URL()
	if err != nil {
		t.markClosed()
		return helpers.NewConnectionError("invalid endpoint", err)
	}

	conn, resp, err := t.Dialer.DialContext(ctx, wsURL, nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		t.markClosed()
		return helpers.NewConnectionError("failed to connect to "+redact(wsURL), err)
	}

	t.mu.Lock()
	if t.state != stateOpening {
		// Close raced with the dial.
		t.mu.Unlock()
		conn.Close()
		return helpers.NewConnectionError("transport closed while connecting", nil)
	}
	t.conn = conn
	t.state = stateOpen
	t.mu.Unlock()

	t.Logger.Info("Connected to %s", redact(wsURL))

	go t.writePump()
	go t.readPump()
	return nil
}

// -----------------------------------------------------------------------------

// Send serialises payload and queues it for the write pump.
func (t *WebSocketTransport) Send(payload interface{}) error {
	t.mu.RLock()
	state := t.state
	t.mu.RUnlock()
	if state != stateOpen {
		return helpers.NewNotConnectedError("send on a transport that is not open")
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	select {
	case t.send <- data:
		return nil
	case <-t.done:
		return helpers.NewNotConnectedError("transport closed")
	}
}

// -----------------------------------------------------------------------------

func (t *WebSocketTransport) SetMessageHandler(fn func(raw []byte)) {
	t.mu.Lock()
	t.handler = fn
	t.mu.Unlock()
}

// -----------------------------------------------------------------------------

func (t *WebSocketTransport) SetCloseHandler(fn func(err error)) {
	t.mu.Lock()
	t.closeHandler = fn
	t.mu.Unlock()
}

// -----------------------------------------------------------------------------

// Close is idempotent. Pending requests are flushed by the close handler.
func (t *WebSocketTransport) Close() error {
	t.shutdown(helpers.NewConnectionError("connection closed", nil))
	return nil
}

// -----------------------------------------------------------------------------
// Pumps
// -----------------------------------------------------------------------------

func (t *WebSocketTransport) readPump() {
	conn := t.conn
	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				t.Logger.Warning("WebSocket read error: %v", err)
			}
			t.shutdown(helpers.NewConnectionError("connection dropped", err))
			return
		}

		// Any traffic proves the peer is alive.
		conn.SetReadDeadline(time.Now().Add(pongWait))

		t.mu.RLock()
		handler := t.handler
		t.mu.RUnlock()
		if handler != nil {
			handler(message)
		}
	}
}

// -----------------------------------------------------------------------------

func (t *WebSocketTransport) writePump() {
	conn := t.conn
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case message := <-t.send:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
				t.Logger.Warning("Write error: %v", err)
				t.shutdown(helpers.NewConnectionError("write failed", err))
				return
			}

		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				t.shutdown(helpers.NewConnectionError("ping failed", err))
				return
			}

		case <-t.done:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			conn.Close()
			return
		}
	}
}

// -----------------------------------------------------------------------------
// Internals
// -----------------------------------------------------------------------------

// shutdown runs once: it stops the pumps and notifies the close handler.
// The write pump sends the close frame and closes the socket, which in turn
// unblocks the read pump.
func (t *WebSocketTransport) shutdown(reason error) {
	t.closeOnce.Do(func() {
		t.mu.Lock()
		t.state = stateClosed
		closeHandler := t.closeHandler
		t.mu.Unlock()

		close(t.done)

		if closeHandler != nil {
			closeHandler(reason)
		}
	})
}

func (t *WebSocketTransport) markClosed() {
	t.shutdown(helpers.NewConnectionError("connection failed", nil))
}

// redact drops the query string from logged URLs.
func redact(raw string) string {
	base, _, _ := strings.Cut(raw, "?")
	return base
}
