package hub

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

type testEvent struct {
	Type    string `json:"type"`
	Payload string `json:"payload"`
}

func startHub(t *testing.T) (*Hub, *httptest.Server) {
	t.Helper()
	h := New()
	ctx, cancel := context.WithCancel(context.Background())
	go h.Run(ctx)

	mux := http.NewServeMux()
	mux.Handle("GET /events", h)
	mux.HandleFunc("GET /ws", h.ServeWS)
	srv := httptest.NewServer(mux)

	t.Cleanup(func() {
		srv.Close()
		cancel()
	})
	return h, srv
}

func waitForClients(t *testing.T, h *Hub, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for h.ClientCount() != n {
		if time.Now().After(deadline) {
			t.Fatalf("expected %d clients, have %d", n, h.ClientCount())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestSSEStream(t *testing.T) {
	h, srv := startHub(t)

	resp, err := http.Get(srv.URL + "/events")
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("expected text/event-stream, got %s", ct)
	}

	waitForClients(t, h, 1)
	h.Broadcast(testEvent{Type: "nodes_changed", Payload: "A"})

	reader := bufio.NewReader(resp.Body)
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		if strings.HasPrefix(line, "data: ") {
			want := `data: {"type":"nodes_changed","payload":"A"}`
			if strings.TrimSpace(line) != want {
				t.Errorf("expected %s, got %s", want, line)
			}
			return
		}
	}
}

func TestWebSocketStream(t *testing.T) {
	h, srv := startHub(t)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	waitForClients(t, h, 1)
	h.Broadcast(testEvent{Type: "topology_updated", Payload: "frame"})

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	kind, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if kind != websocket.TextMessage {
		t.Errorf("expected text frame, got %d", kind)
	}
	if string(msg) != `{"type":"topology_updated","payload":"frame"}` {
		t.Errorf("unexpected message %s", msg)
	}

	conn.Close()
	waitForClients(t, h, 0)
}

func TestBroadcastUnmarshalable(t *testing.T) {
	h := New()
	// Channels cannot be encoded; the event is dropped without blocking.
	h.Broadcast(make(chan int))
	if len(h.broadcast) != 0 {
		t.Error("expected nothing queued")
	}
}

func TestJoinAfterShutdown(t *testing.T) {
	h := New()
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		h.Run(ctx)
		close(stopped)
	}()
	cancel()
	<-stopped

	if _, ok := h.join("SSE"); ok {
		t.Error("expected join to fail after shutdown")
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/events", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", rec.Code)
	}
}
