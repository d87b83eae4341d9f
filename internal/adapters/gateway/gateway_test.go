package gateway

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

	"github.com/strafechat/stargate/internal/app"
	"github.com/strafechat/stargate/internal/core"
	"github.com/strafechat/stargate/internal/domain"
	"github.com/strafechat/stargate/pkg/protocol"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	m.Run()
}

type fakeStore struct {
	mu      sync.Mutex
	users   map[domain.UserID]domain.User
	friends map[domain.UserID][]domain.UserID
	saved   map[domain.UserID]domain.Presence
}

func (s *fakeStore) GetUser(_ context.Context, id domain.UserID) (domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return domain.User{}, core.ErrUnknownUser
	}
	return u, nil
}

func (s *fakeStore) UpdatePresence(_ context.Context, id domain.UserID, p domain.Presence) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saved == nil {
		s.saved = make(map[domain.UserID]domain.Presence)
	}
	s.saved[id] = p
	return nil
}

func (s *fakeStore) Friends(_ context.Context, id domain.UserID) ([]domain.UserID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.friends[id], nil
}

func (s *fakeStore) presence(id domain.UserID) (domain.Presence, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.saved[id]
	return p, ok
}

type testGateway struct {
	srv      *httptest.Server
	registry *app.Registry
	store    *fakeStore
}

func newTestGateway(t *testing.T, interval, grace time.Duration) *testGateway {
	t.Helper()
	store := &fakeStore{
		users: map[domain.UserID]domain.User{
			"alice": {ID: "alice", Username: "alice", Password: "hash", Secret: "sa", LastPassReset: 0},
			"bob":   {ID: "bob", Username: "bob", Secret: "sb", LastPassReset: 0},
		},
		friends: map[domain.UserID][]domain.UserID{
			"alice": {"bob"},
			"bob":   {"alice"},
		},
	}
	registry := app.NewRegistry()
	ctl := &Controller{
		Registry:          registry,
		Verifier:          app.SessionVerifier{Users: store},
		Presence:          &app.Broadcaster{Registry: registry, Users: store, Friends: store},
		HeartbeatInterval: interval,
		HeartbeatGrace:    grace,
	}

	r := gin.New()
	r.GET("/events", ctl.HandleEvents)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return &testGateway{srv: srv, registry: registry, store: store}
}

func (g *testGateway) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(g.srv.URL, "http") + "/events"
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { ws.Close() })
	return ws
}

func readFrame(t *testing.T, ws *websocket.Conn) protocol.Envelope {
	t.Helper()
	_ = ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := ws.ReadMessage()
	if err != nil {
		t.Fatalf("read frame: %v", err)
	}
	var env protocol.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		t.Fatalf("unmarshal frame %q: %v", data, err)
	}
	return env
}

func readClose(t *testing.T, ws *websocket.Conn) *websocket.CloseError {
	t.Helper()
	_ = ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		_, _, err := ws.ReadMessage()
		if err == nil {
			continue
		}
		ce, ok := err.(*websocket.CloseError)
		if !ok {
			t.Fatalf("read error = %v, want close error", err)
		}
		return ce
	}
}

func sendFrame(t *testing.T, ws *websocket.Conn, op int, data any) {
	t.Helper()
	if err := ws.WriteMessage(websocket.TextMessage, protocol.Marshal(op, data)); err != nil {
		t.Fatalf("write frame: %v", err)
	}
}

func identify(t *testing.T, ws *websocket.Conn, id domain.UserID, secret string) {
	t.Helper()
	token := app.GenerateSessionToken(id, time.Now().UnixMilli(), secret)
	sendFrame(t, ws, protocol.OpIdentify, protocol.IdentifyData{Token: token})
}

func TestGatewayIdentifyFlow(t *testing.T) {
	g := newTestGateway(t, 45*time.Second, time.Second)
	ws := g.dial(t)

	hello := readFrame(t, ws)
	if hello.Op != protocol.OpHello {
		t.Fatalf("first frame op = %d, want HELLO", hello.Op)
	}
	var hd protocol.HelloData
	if err := json.Unmarshal(hello.Data, &hd); err != nil {
		t.Fatalf("hello data: %v", err)
	}
	if hd.HeartbeatInterval != 45000 {
		t.Errorf("heartbeat_interval = %d, want 45000", hd.HeartbeatInterval)
	}

	identify(t, ws, "alice", "sa")
	ready := readFrame(t, ws)
	if ready.Op != protocol.OpDispatch || ready.Event != "READY" {
		t.Fatalf("got op=%d event=%q, want READY dispatch", ready.Op, ready.Event)
	}

	// READY must never leak credentials.
	raw := string(ready.Data)
	for _, field := range []string{"password", "secret", "last_pass_reset"} {
		if strings.Contains(raw, field) {
			t.Errorf("READY payload leaks %q: %s", field, raw)
		}
	}
	var pub domain.PublicUser
	if err := json.Unmarshal(ready.Data, &pub); err != nil {
		t.Fatalf("ready data: %v", err)
	}
	if pub.ID != "alice" {
		t.Errorf("ready user = %q, want alice", pub.ID)
	}
	if !pub.Presence.Online || pub.Presence.Status != domain.StatusOnline {
		t.Errorf("ready presence = %+v, want online", pub.Presence)
	}

	waitFor(t, func() bool { return g.registry.Count() == 1 })
	if p, ok := g.store.presence("alice"); !ok || !p.Online {
		t.Errorf("persisted presence = %+v, want online", p)
	}
}

func TestGatewayHeartbeatAck(t *testing.T) {
	g := newTestGateway(t, 45*time.Second, time.Second)
	ws := g.dial(t)
	readFrame(t, ws) // HELLO

	sendFrame(t, ws, protocol.OpHeartbeat, nil)
	ack := readFrame(t, ws)
	if ack.Op != protocol.OpHeartbeatAck {
		t.Errorf("op = %d, want HEARTBEAT_ACK", ack.Op)
	}
}

func TestGatewayInvalidToken(t *testing.T) {
	g := newTestGateway(t, 45*time.Second, time.Second)
	ws := g.dial(t)
	readFrame(t, ws) // HELLO

	identify(t, ws, "alice", "wrong-secret")
	invalid := readFrame(t, ws)
	if invalid.Op != protocol.OpInvalidSession {
		t.Fatalf("op = %d, want INVALID_SESSION", invalid.Op)
	}
	ce := readClose(t, ws)
	if ce.Code != protocol.CloseInvalidSession {
		t.Errorf("close code = %d, want %d", ce.Code, protocol.CloseInvalidSession)
	}
	if g.registry.Count() != 0 {
		t.Errorf("registry count = %d, want 0", g.registry.Count())
	}
}

func TestGatewayHeartbeatTimeout(t *testing.T) {
	g := newTestGateway(t, 50*time.Millisecond, 20*time.Millisecond)
	ws := g.dial(t)
	readFrame(t, ws) // HELLO

	identify(t, ws, "alice", "sa")
	readFrame(t, ws) // READY

	ce := readClose(t, ws)
	if ce.Code != protocol.CloseSessionTimedOut {
		t.Errorf("close code = %d, want %d", ce.Code, protocol.CloseSessionTimedOut)
	}
	if ce.Text == "" {
		t.Error("close frame carried no reason")
	}

	waitFor(t, func() bool { return g.registry.Count() == 0 })
	waitFor(t, func() bool {
		p, ok := g.store.presence("alice")
		return ok && !p.Online
	})
}

// slowVerifier delays token resolution past the heartbeat deadline, so
// the timeout and the identify path race on the session.
type slowVerifier struct {
	inner Verifier
	delay time.Duration
}

func (v slowVerifier) Verify(ctx context.Context, token string) (domain.User, error) {
	time.Sleep(v.delay)
	return v.inner.Verify(ctx, token)
}

func TestGatewayTimeoutDuringIdentifyLeavesUserOffline(t *testing.T) {
	store := &fakeStore{
		users: map[domain.UserID]domain.User{
			"alice": {ID: "alice", Username: "alice", Secret: "sa"},
		},
		friends: map[domain.UserID][]domain.UserID{},
	}
	registry := app.NewRegistry()
	ctl := &Controller{
		Registry:          registry,
		Verifier:          slowVerifier{inner: app.SessionVerifier{Users: store}, delay: 150 * time.Millisecond},
		Presence:          &app.Broadcaster{Registry: registry, Users: store, Friends: store},
		HeartbeatInterval: 40 * time.Millisecond,
		HeartbeatGrace:    10 * time.Millisecond,
	}
	r := gin.New()
	r.GET("/events", ctl.HandleEvents)
	srv := httptest.NewServer(r)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/events"
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer ws.Close()

	readFrame(t, ws) // HELLO
	identify(t, ws, "alice", "sa")

	// The deadline lapses while the token lookup is still in flight.
	ce := readClose(t, ws)
	if ce.Code != protocol.CloseSessionTimedOut {
		t.Fatalf("close code = %d, want %d", ce.Code, protocol.CloseSessionTimedOut)
	}

	// Once the lookup completes, the dead connection must not linger
	// bound and the user must not be left online.
	time.Sleep(250 * time.Millisecond)
	if n := registry.Count(); n != 0 {
		t.Errorf("registry count = %d, want 0", n)
	}
	if p, ok := store.presence("alice"); ok && p.Online {
		t.Errorf("persisted presence = %+v, want offline", p)
	}
}

func TestGatewayHeartbeatKeepsSessionAlive(t *testing.T) {
	g := newTestGateway(t, 60*time.Millisecond, 20*time.Millisecond)
	ws := g.dial(t)
	readFrame(t, ws) // HELLO
	identify(t, ws, "alice", "sa")
	readFrame(t, ws) // READY

	// Heartbeat three times across what would otherwise be the
	// deadline; the session must survive.
	for i := 0; i < 3; i++ {
		time.Sleep(40 * time.Millisecond)
		sendFrame(t, ws, protocol.OpHeartbeat, nil)
		ack := readFrame(t, ws)
		if ack.Op != protocol.OpHeartbeatAck {
			t.Fatalf("op = %d, want HEARTBEAT_ACK", ack.Op)
		}
	}
	if g.registry.Count() != 1 {
		t.Errorf("registry count = %d, want 1", g.registry.Count())
	}
}

func TestGatewayMalformedFrame(t *testing.T) {
	g := newTestGateway(t, 45*time.Second, time.Second)
	ws := g.dial(t)
	readFrame(t, ws) // HELLO

	if err := ws.WriteMessage(websocket.TextMessage, []byte("not json")); err != nil {
		t.Fatalf("write: %v", err)
	}
	ce := readClose(t, ws)
	if ce.Code != protocol.CloseProtocolError {
		t.Errorf("close code = %d, want %d", ce.Code, protocol.CloseProtocolError)
	}
}

func TestGatewayPresenceFanout(t *testing.T) {
	g := newTestGateway(t, 45*time.Second, time.Second)

	bobWS := g.dial(t)
	readFrame(t, bobWS) // HELLO
	identify(t, bobWS, "bob", "sb")
	readFrame(t, bobWS) // READY

	aliceWS := g.dial(t)
	readFrame(t, aliceWS) // HELLO
	identify(t, aliceWS, "alice", "sa")

	// Bob is a friend with a live connection; alice coming online
	// reaches him.
	upd := readFrame(t, bobWS)
	if upd.Op != protocol.OpPresenceUpdate {
		t.Fatalf("op = %d, want PRESENCE_UPDATE", upd.Op)
	}
	var payload protocol.PresencePayload
	if err := json.Unmarshal(upd.Data, &payload); err != nil {
		t.Fatalf("payload: %v", err)
	}
	if payload.UserID != "alice" || !payload.Online {
		t.Errorf("payload = %+v, want alice online", payload)
	}

	// An explicit status change fans out too.
	readFrame(t, aliceWS) // READY
	sendFrame(t, aliceWS, protocol.OpPresenceUpdate, domain.Presence{Status: domain.StatusDND})
	upd = readFrame(t, bobWS)
	if err := json.Unmarshal(upd.Data, &payload); err != nil {
		t.Fatalf("payload: %v", err)
	}
	if payload.Status != domain.StatusDND {
		t.Errorf("status = %q, want dnd", payload.Status)
	}

	// Alice disconnecting pushes offline to bob.
	aliceWS.Close()
	upd = readFrame(t, bobWS)
	if err := json.Unmarshal(upd.Data, &payload); err != nil {
		t.Fatalf("payload: %v", err)
	}
	if payload.UserID != "alice" || payload.Online {
		t.Errorf("payload = %+v, want alice offline", payload)
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}
