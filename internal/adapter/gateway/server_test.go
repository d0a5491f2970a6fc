package gateway

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"testing"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"switchd/internal/domain"
	"switchd/internal/infra/config"
)

// --- test doubles ---

type testBus struct {
	mu       sync.Mutex
	handlers []domain.EventHandler
	typed    map[domain.EventType][]domain.EventHandler
}

func (b *testBus) Publish(ctx context.Context, event domain.Event) {
	b.mu.Lock()
	hs := make([]domain.EventHandler, len(b.handlers))
	copy(hs, b.handlers)
	hs = append(hs, b.typed[event.Type]...)
	b.mu.Unlock()
	for _, h := range hs {
		h(ctx, event)
	}
}

func (b *testBus) Subscribe(t domain.EventType, h domain.EventHandler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.typed == nil {
		b.typed = make(map[domain.EventType][]domain.EventHandler)
	}
	b.typed[t] = append(b.typed[t], h)
	return func() {}
}

func (b *testBus) SubscribeAll(handler domain.EventHandler) func() {
	b.mu.Lock()
	b.handlers = append(b.handlers, handler)
	b.mu.Unlock()
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.handlers = nil
	}
}

func (b *testBus) Close() {}

func newTestAuth() Authenticator {
	return NewStaticTokenAuth([]config.GatewayToken{{Token: "test-token", Name: "tester"}})
}

func startTestServer(t *testing.T, bus domain.EventBus, opts ...Option) *Server {
	t.Helper()
	srv := NewServer(bus, newTestAuth(), "127.0.0.1:0", slog.Default(), opts...)
	return runServer(t, srv)
}

func runServer(t *testing.T, srv *Server) *Server {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	started := make(chan struct{})
	go func() {
		go func() {
			for srv.BoundAddr() == "" {
				time.Sleep(5 * time.Millisecond)
			}
			close(started)
		}()
		_ = srv.Start(ctx)
	}()

	select {
	case <-started:
	case <-time.After(3 * time.Second):
		t.Fatal("server did not start in time")
	}

	t.Cleanup(func() {
		srv.Stop(context.Background())
	})
	return srv
}

func dialWS(t *testing.T, addr, token string) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	ws, _, err := websocket.Dial(ctx, "ws://"+addr+"/ws?token="+token, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { ws.Close(websocket.StatusNormalClosure, "") })
	return ws
}

func roundTrip(t *testing.T, ws *websocket.Conn, req Frame) Frame {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := wsjson.Write(ctx, ws, req); err != nil {
		t.Fatalf("write: %v", err)
	}
	for {
		var resp Frame
		if err := wsjson.Read(ctx, ws, &resp); err != nil {
			t.Fatalf("read: %v", err)
		}
		if resp.Type == FrameTypeResponse && resp.ID == req.ID {
			return resp
		}
	}
}

// --- tests ---

func TestServerLifecycle(t *testing.T) {
	srv := startTestServer(t, &testBus{})

	if srv.BoundAddr() == "" {
		t.Fatal("BoundAddr is empty")
	}
	resp, err := http.Get("http://" + srv.BoundAddr() + "/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		// No REST routes registered in this test.
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

func TestServerAuthReject(t *testing.T) {
	srv := startTestServer(t, &testBus{})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, resp, err := websocket.Dial(ctx, "ws://"+srv.BoundAddr()+"/ws?token=bad-token", nil)
	if err == nil {
		t.Fatal("expected auth rejection")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("response = %v, want 401", resp)
	}
}

func TestServerAuthHeader(t *testing.T) {
	srv := startTestServer(t, &testBus{})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	ws, _, err := websocket.Dial(ctx, "ws://"+srv.BoundAddr()+"/ws", &websocket.DialOptions{
		HTTPHeader: http.Header{"Authorization": []string{"Bearer test-token"}},
	})
	if err != nil {
		t.Fatalf("dial with bearer header: %v", err)
	}
	ws.Close(websocket.StatusNormalClosure, "")
}

func TestServerRPCRoundtrip(t *testing.T) {
	srv := startTestServer(t, &testBus{})
	srv.RegisterHandler("echo", func(_ context.Context, _ *ClientInfo, payload json.RawMessage) (json.RawMessage, error) {
		return payload, nil
	})

	ws := dialWS(t, srv.BoundAddr(), "test-token")
	resp := roundTrip(t, ws, Frame{
		Type:    FrameTypeRequest,
		ID:      "req-1",
		Method:  "echo",
		Payload: json.RawMessage(`{"msg":"hello"}`),
	})

	if resp.Error != "" {
		t.Errorf("error = %q", resp.Error)
	}
	if string(resp.Payload) != `{"msg":"hello"}` {
		t.Errorf("payload = %s", resp.Payload)
	}
}

func TestServerUnknownMethod(t *testing.T) {
	srv := startTestServer(t, &testBus{})
	ws := dialWS(t, srv.BoundAddr(), "test-token")

	resp := roundTrip(t, ws, Frame{Type: FrameTypeRequest, ID: "2", Method: "nonexistent"})
	if resp.Error == "" {
		t.Error("expected error for unknown method")
	}
	if resp.Code != string(domain.CodeRPCMethodNotFound) {
		t.Errorf("code = %q", resp.Code)
	}
}

func TestServerSchemaRejectsPayload(t *testing.T) {
	srv := startTestServer(t, &testBus{})
	called := false
	srv.RegisterHandler("switch.toggle", func(context.Context, *ClientInfo, json.RawMessage) (json.RawMessage, error) {
		called = true
		return nil, nil
	})
	ws := dialWS(t, srv.BoundAddr(), "test-token")

	resp := roundTrip(t, ws, Frame{Type: FrameTypeRequest, ID: "3", Method: "switch.toggle", Payload: json.RawMessage(`{"id":""}`)})
	if resp.Code != string(domain.CodeRPCInvalidPayload) {
		t.Errorf("code = %q, error = %q", resp.Code, resp.Error)
	}
	if called {
		t.Error("handler ran despite invalid payload")
	}
}

func TestServerEventForwarding(t *testing.T) {
	bus := &testBus{}
	srv := startTestServer(t, bus)
	ws := dialWS(t, srv.BoundAddr(), "test-token")

	// Give the connection time to be registered.
	time.Sleep(100 * time.Millisecond)

	bus.Publish(context.Background(), domain.NewEvent(domain.EventSettingsChanged, "", nil))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	var frame Frame
	if err := wsjson.Read(ctx, ws, &frame); err != nil {
		t.Fatalf("read event: %v", err)
	}
	if frame.Type != FrameTypeEvent {
		t.Errorf("type = %q, want event", frame.Type)
	}
	if frame.Method != string(domain.EventSettingsChanged) {
		t.Errorf("method = %q", frame.Method)
	}
	var ev domain.Event
	if err := json.Unmarshal(frame.Payload, &ev); err != nil {
		t.Fatalf("decode event: %v", err)
	}
	if ev.Type != domain.EventSettingsChanged {
		t.Errorf("event type = %q", ev.Type)
	}
}

func TestServerSlowClient(t *testing.T) {
	bus := &testBus{}
	srv := startTestServer(t, bus)

	ws := dialWS(t, srv.BoundAddr(), "test-token")
	_ = ws // connected but not reading

	time.Sleep(100 * time.Millisecond)

	// Flood events; must not block or panic.
	for i := 0; i < 200; i++ {
		bus.Publish(context.Background(), domain.NewEvent(domain.EventSwitchRefreshed, "wifi", nil))
	}
}

func TestServerConcurrentClients(t *testing.T) {
	srv := startTestServer(t, &testBus{})
	srv.RegisterHandler("ping", func(_ context.Context, _ *ClientInfo, _ json.RawMessage) (json.RawMessage, error) {
		return json.RawMessage(`"pong"`), nil
	})

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer cancel()
			ws, _, err := websocket.Dial(ctx, "ws://"+srv.BoundAddr()+"/ws?token=test-token", nil)
			if err != nil {
				return
			}
			defer ws.Close(websocket.StatusNormalClosure, "")
			if err := wsjson.Write(ctx, ws, Frame{Type: FrameTypeRequest, ID: "p", Method: "ping"}); err != nil {
				return
			}
			var resp Frame
			wsjson.Read(ctx, ws, &resp)
		}()
	}
	wg.Wait()
}

func TestServerDisconnect(t *testing.T) {
	bus := &testBus{}
	srv := startTestServer(t, bus)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	ws, _, err := websocket.Dial(ctx, "ws://"+srv.BoundAddr()+"/ws?token=test-token", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	ws.Close(websocket.StatusNormalClosure, "bye")

	time.Sleep(100 * time.Millisecond)
	if n := srv.ClientCount(); n != 0 {
		t.Errorf("ClientCount = %d after disconnect", n)
	}

	// Publishing with no clients must not panic.
	bus.Publish(context.Background(), domain.NewEvent(domain.EventSettingsChanged, "", nil))
}

func TestServerHandlerError(t *testing.T) {
	srv := startTestServer(t, &testBus{})
	srv.RegisterHandler("fail", func(_ context.Context, _ *ClientInfo, _ json.RawMessage) (json.RawMessage, error) {
		return nil, domain.NewDomainError("fail", domain.ErrSwitchNotFound, "x")
	})

	ws := dialWS(t, srv.BoundAddr(), "test-token")
	resp := roundTrip(t, ws, Frame{Type: FrameTypeRequest, ID: "1", Method: "fail"})
	if resp.Error == "" {
		t.Error("expected error in response")
	}
	if resp.Code != string(domain.CodeSwitchNotFound) {
		t.Errorf("code = %q", resp.Code)
	}
}
