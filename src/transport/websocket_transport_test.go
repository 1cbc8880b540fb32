package transport

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"commission-observer/src/helpers"
	"commission-observer/src/logger"
	"commission-observer/src/models"
	"commission-observer/src/platformtest"
)

func quietTransport() *WebSocketTransport {
	log := logger.NewLogger(nil, "WebSocketTransport")
	log.SetOutput(io.Discard)
	return NewWebSocketTransport(log)
}

func echoServer() *platformtest.Server {
	return platformtest.NewServer(func(c *platformtest.Conn, req platformtest.Request) {
		c.Reply(map[string]interface{}{"req_id": req.ReqID(), "echo_req": map[string]interface{}(req)})
	})
}

func TestSendBeforeOpenFails(t *testing.T) {
	tr := quietTransport()
	err := tr.Send(map[string]int{"ping": 1})

	var notConnected *helpers.NotConnectedError
	if !errors.As(err, &notConnected) {
		t.Fatalf("expected NotConnectedError, got %v", err)
	}
}

func TestOpenSendReceiveAndClose(t *testing.T) {
	srv := echoServer()
	defer srv.Close()

	tr := quietTransport()
	received := make(chan []byte, 1)
	tr.SetMessageHandler(func(raw []byte) { received <- raw })
	closed := make(chan error, 1)
	tr.SetCloseHandler(func(err error) { closed <- err })

	cfg := models.MConnectionConfig{Endpoint: srv.WSURL(), AppID: "1089"}
	if err := tr.Open(context.Background(), cfg); err != nil {
		t.Fatalf("open: %v", err)
	}

	if err := tr.Send(map[string]interface{}{"ping": 1, "req_id": 1}); err != nil {
		t.Fatalf("send: %v", err)
	}

	select {
	case raw := <-received:
		if len(raw) == 0 {
			t.Fatal("empty message")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no message received")
	}

	if conns := srv.Conns(); len(conns) != 1 || conns[0].AppID != "1089" {
		t.Fatalf("expected one connection with app_id 1089, got %+v", conns)
	}

	tr.Close()
	tr.Close()

	select {
	case err := <-closed:
		var connErr *helpers.ConnectionError
		if !errors.As(err, &connErr) {
			t.Fatalf("expected ConnectionError on close, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("close handler not called")
	}

	var notConnected *helpers.NotConnectedError
	if err := tr.Send(map[string]int{"ping": 1}); !errors.As(err, &notConnected) {
		t.Fatalf("expected NotConnectedError after close, got %v", err)
	}
}

func TestOpenTwiceFails(t *testing.T) {
	srv := echoServer()
	defer srv.Close()

	tr := quietTransport()
	defer tr.Close()
	cfg := models.MConnectionConfig{Endpoint: srv.WSURL(), AppID: "1"}
	if err := tr.Open(context.Background(), cfg); err != nil {
		t.Fatalf("open: %v", err)
	}

	var connErr *helpers.ConnectionError
	if err := tr.Open(context.Background(), cfg); !errors.As(err, &connErr) {
		t.Fatalf("expected ConnectionError on second open, got %v", err)
	}
}

func TestOpenUnreachableFails(t *testing.T) {
	srv := echoServer()
	url := srv.WSURL()
	srv.Close()

	tr := quietTransport()
	err := tr.Open(context.Background(), models.MConnectionConfig{Endpoint: url, AppID: "1"})

	var connErr *helpers.ConnectionError
	if !errors.As(err, &connErr) {
		t.Fatalf("expected ConnectionError, got %v", err)
	}
}

func TestServerDropNotifiesCloseHandler(t *testing.T) {
	srv := echoServer()
	defer srv.Close()

	tr := quietTransport()
	closed := make(chan error, 1)
	tr.SetCloseHandler(func(err error) { closed <- err })

	if err := tr.Open(context.Background(), models.MConnectionConfig{Endpoint: srv.WSURL(), AppID: "1"}); err != nil {
		t.Fatalf("open: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for len(srv.Conns()) == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	srv.DropAll()

	select {
	case err := <-closed:
		var connErr *helpers.ConnectionError
		if !errors.As(err, &connErr) {
			t.Fatalf("expected ConnectionError, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("close handler not called after drop")
	}
}

func TestServerURLOverridesEndpoint(t *testing.T) {
	cfg := models.MConnectionConfig{Endpoint: "wss://primary.example/ws", ServerURL: "wss://alt.example/ws", AppID: "42"}
	got, err := cfg.URL()
	if err != nil {
		t.Fatal(err)
	}
	if got != "wss://alt.example/ws?app_id=42" {
		t.Fatalf("unexpected url %s", got)
	}
}
