package realtime

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

func setupTestServer(hub *Hub) *httptest.Server {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/ws", hub.ServeWS)
	return httptest.NewServer(r)
}

func dial(t *testing.T, server *httptest.Server) *websocket.Conn {
	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	return conn
}

func waitForCount(t *testing.T, hub *Hub, want int) {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if hub.Count() == want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("Expected %d connections, got %d", want, hub.Count())
}

func readEvent(t *testing.T, conn *websocket.Conn) map[string]interface{} {
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var event map[string]interface{}
	if err := conn.ReadJSON(&event); err != nil {
		t.Fatalf("ReadJSON failed: %v", err)
	}
	return event
}

func TestBroadcastReachesAllClients(t *testing.T) {
	hub := NewHub(nil)
	server := setupTestServer(hub)
	defer server.Close()

	a := dial(t, server)
	defer a.Close()
	b := dial(t, server)
	defer b.Close()
	waitForCount(t, hub, 2)

	hub.Broadcast(map[string]string{"type": "message:new"})

	for _, conn := range []*websocket.Conn{a, b} {
		if event := readEvent(t, conn); event["type"] != "message:new" {
			t.Errorf("Expected message:new event, got %v", event)
		}
	}
}

func TestClosedClientIsPruned(t *testing.T) {
	hub := NewHub(nil)
	server := setupTestServer(hub)
	defer server.Close()

	a := dial(t, server)
	defer a.Close()
	b := dial(t, server)
	waitForCount(t, hub, 2)

	b.Close()
	waitForCount(t, hub, 1)

	hub.Broadcast(map[string]string{"type": "ping"})
	if event := readEvent(t, a); event["type"] != "ping" {
		t.Errorf("Expected remaining client to receive event, got %v", event)
	}
}

func TestInboundFramesAreRebroadcast(t *testing.T) {
	hub := NewHub(nil)
	server := setupTestServer(hub)
	defer server.Close()

	a := dial(t, server)
	defer a.Close()
	b := dial(t, server)
	defer b.Close()
	waitForCount(t, hub, 2)

	if err := a.WriteMessage(websocket.TextMessage, []byte("not json")); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if err := a.WriteJSON(map[string]string{"type": "typing"}); err != nil {
		t.Fatalf("WriteJSON failed: %v", err)
	}

	if event := readEvent(t, b); event["type"] != "typing" {
		t.Errorf("Expected typing event relayed, got %v", event)
	}
}

type fakeBackplane struct {
	mu      sync.Mutex
	deliver func([]byte)
	ready   chan struct{}
	sent    int
}

func (f *fakeBackplane) Publish(ctx context.Context, payload []byte) error {
	f.mu.Lock()
	deliver := f.deliver
	f.sent++
	f.mu.Unlock()
	if deliver != nil {
		deliver(payload)
	}
	return nil
}

func (f *fakeBackplane) Subscribe(ctx context.Context, deliver func([]byte)) error {
	f.mu.Lock()
	f.deliver = deliver
	f.mu.Unlock()
	close(f.ready)
	<-ctx.Done()
	return nil
}

func TestBroadcastGoesThroughBackplane(t *testing.T) {
	bp := &fakeBackplane{ready: make(chan struct{})}
	hub := NewHub(bp)
	server := setupTestServer(hub)
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)
	<-bp.ready

	a := dial(t, server)
	defer a.Close()
	waitForCount(t, hub, 1)

	hub.Broadcast(map[string]string{"type": "message:deleted"})

	if event := readEvent(t, a); event["type"] != "message:deleted" {
		t.Errorf("Expected event via backplane, got %v", event)
	}
	bp.mu.Lock()
	defer bp.mu.Unlock()
	if bp.sent != 1 {
		t.Errorf("Expected 1 publish, got %d", bp.sent)
	}
}

func TestCloseDisconnectsClients(t *testing.T) {
	hub := NewHub(nil)
	server := setupTestServer(hub)
	defer server.Close()

	a := dial(t, server)
	defer a.Close()
	waitForCount(t, hub, 1)

	hub.Close()
	if hub.Count() != 0 {
		t.Errorf("Expected no connections after Close, got %d", hub.Count())
	}

	a.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := a.ReadMessage(); err == nil {
		t.Error("Expected read error after server closed the socket")
	}
}

func TestBroadcastEncodesJSON(t *testing.T) {
	hub := NewHub(nil)
	server := setupTestServer(hub)
	defer server.Close()

	a := dial(t, server)
	defer a.Close()
	waitForCount(t, hub, 1)

	hub.Broadcast(struct {
		Type string `json:"type"`
		Data int    `json:"data"`
	}{"count", 3})

	a.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err := a.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage failed: %v", err)
	}
	var decoded map[string]interface{}
	if err := json.Unmarshal(raw, &decoded); err != nil || decoded["data"].(float64) != 3 {
		t.Errorf("Expected JSON payload, got %s", raw)
	}
}
