package chat

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/mohitverma010602/just-chat/internal/auth"
	"github.com/mohitverma010602/just-chat/internal/models"
)

type stubVerifier struct {
	identities map[string]*auth.Identity
}

func (v *stubVerifier) Verify(ctx context.Context, credential string) (*auth.Identity, error) {
	if identity, ok := v.identities[credential]; ok {
		return identity, nil
	}
	return nil, auth.ErrTokenInvalid
}

type stubRecorder struct {
	mu    sync.Mutex
	seen  map[string]time.Time
	calls chan string
}

func newStubRecorder() *stubRecorder {
	return &stubRecorder{seen: make(map[string]time.Time), calls: make(chan string, 8)}
}

func (r *stubRecorder) SetLastSeen(ctx context.Context, userID string, t time.Time) error {
	r.mu.Lock()
	r.seen[userID] = t
	r.mu.Unlock()
	r.calls <- userID
	return nil
}

type gateFixture struct {
	server   *httptest.Server
	store    *memStore
	registry *Registry
	verifier *stubVerifier
	recorder *stubRecorder
}

func newGateFixture(t *testing.T) *gateFixture {
	t.Helper()

	store := newMemStore()
	registry := NewRegistry()
	verifier := &stubVerifier{identities: make(map[string]*auth.Identity)}
	recorder := newStubRecorder()

	engine := newTestEngine(store, registry, nil)
	presence := NewPresence(registry, store, zerolog.Nop())
	gate := NewGate(verifier, registry, engine, presence, recorder, zerolog.Nop())

	server := httptest.NewServer(gate)
	t.Cleanup(server.Close)

	return &gateFixture{
		server:   server,
		store:    store,
		registry: registry,
		verifier: verifier,
		recorder: recorder,
	}
}

// allowUser creates a user and a credential the stub verifier accepts.
func (f *gateFixture) allowUser(t *testing.T, token string) string {
	t.Helper()
	id := f.store.addUser(t)
	f.verifier.identities[token] = &auth.Identity{
		UserID:   uuid.MustParse(id),
		Username: "user-" + token,
		Role:     models.RoleUser,
	}
	return id
}

func (f *gateFixture) dial(t *testing.T, token string) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(f.server.URL, "http")
	header := http.Header{}
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, header)
	if err != nil {
		t.Fatalf("dial failed: %v (resp=%v)", err, resp)
	}
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

func readFrame(t *testing.T, conn *websocket.Conn) ServerFrame {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	var frame ServerFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		t.Fatalf("unmarshal frame: %v", err)
	}
	return frame
}

func TestGateRejectsMissingCredential(t *testing.T) {
	f := newGateFixture(t)

	wsURL := "ws" + strings.TrimPrefix(f.server.URL, "http")
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err == nil {
		t.Fatal("handshake without credentials must fail")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 before upgrade, got %v", resp)
	}
	if f.registry.ConnectionCount() != 0 {
		t.Fatal("no connection may be registered for a rejected handshake")
	}
}

func TestGateRejectsInvalidCredential(t *testing.T) {
	f := newGateFixture(t)

	wsURL := "ws" + strings.TrimPrefix(f.server.URL, "http")
	header := http.Header{}
	header.Set("Authorization", "Bearer bogus")
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, header)
	if err == nil {
		t.Fatal("handshake with an invalid token must fail")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 before upgrade, got %v", resp)
	}
}

func TestGateRegistersAndTearsDown(t *testing.T) {
	f := newGateFixture(t)
	alice := f.allowUser(t, "alice-token")

	conn := f.dial(t, "alice-token")
	waitFor(t, func() bool { return f.registry.IsOnline(alice) }, "alice never came online")

	conn.Close()
	waitFor(t, func() bool { return !f.registry.IsOnline(alice) }, "alice never went offline")

	select {
	case userID := <-f.recorder.calls:
		if userID != alice {
			t.Fatalf("last-seen recorded for wrong user: %s", userID)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("last-seen was never recorded")
	}
}

func TestGateLastSeenOnlyAfterLastConnection(t *testing.T) {
	f := newGateFixture(t)
	alice := f.allowUser(t, "alice-token")

	first := f.dial(t, "alice-token")
	second := f.dial(t, "alice-token")
	waitFor(t, func() bool { return len(f.registry.Lookup(alice)) == 2 }, "both devices should be registered")

	first.Close()
	waitFor(t, func() bool { return len(f.registry.Lookup(alice)) == 1 }, "first device should be gone")

	select {
	case <-f.recorder.calls:
		t.Fatal("last-seen must not be recorded while a connection remains")
	case <-time.After(100 * time.Millisecond):
	}

	second.Close()
	select {
	case <-f.recorder.calls:
	case <-time.After(2 * time.Second):
		t.Fatal("last-seen was never recorded after the last disconnect")
	}
}

func TestGateDrainRunsTeardown(t *testing.T) {
	f := newGateFixture(t)
	alice := f.allowUser(t, "alice-token")

	f.dial(t, "alice-token")
	waitFor(t, func() bool { return f.registry.IsOnline(alice) }, "alice never came online")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := f.registry.Drain(ctx); err != nil {
		t.Fatalf("drain failed: %v", err)
	}

	if f.registry.IsOnline(alice) {
		t.Fatal("alice should be offline after drain")
	}
	select {
	case userID := <-f.recorder.calls:
		if userID != alice {
			t.Fatalf("last-seen recorded for wrong user: %s", userID)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("drain must stamp last-seen for disconnected users")
	}
}

func TestGateEndToEndDelivery(t *testing.T) {
	f := newGateFixture(t)
	alice := f.allowUser(t, "alice-token")
	bob := f.allowUser(t, "bob-token")

	aliceConn := f.dial(t, "alice-token")
	bobConn := f.dial(t, "bob-token")
	waitFor(t, func() bool {
		return f.registry.IsOnline(alice) && f.registry.IsOnline(bob)
	}, "both users should be online")

	err := aliceConn.WriteJSON(map[string]string{
		"type":        "message",
		"receiver_id": bob,
		"content":     "hello bob",
	})
	if err != nil {
		t.Fatal(err)
	}

	// Bob receives the push, alice the echo.
	inbound := readFrame(t, bobConn)
	if inbound.Type != FrameMessage || inbound.Message.Content != "hello bob" {
		t.Fatalf("bob expected the message, got %+v", inbound)
	}
	echo := readFrame(t, aliceConn)
	if echo.Type != FrameMessage || echo.Message.ID != inbound.Message.ID {
		t.Fatalf("alice expected the echo, got %+v", echo)
	}

	// Bob acknowledges; alice sees the status advance.
	err = bobConn.WriteJSON(map[string]string{
		"type":       "ack_delivered",
		"message_id": inbound.Message.ID,
	})
	if err != nil {
		t.Fatal(err)
	}
	status := readFrame(t, aliceConn)
	if status.Type != FrameStatus || status.MessageID != inbound.Message.ID || status.Status != models.StatusDelivered {
		t.Fatalf("alice expected a delivered notification, got %+v", status)
	}
}

func TestGatePresenceFanOut(t *testing.T) {
	f := newGateFixture(t)
	alice := f.allowUser(t, "alice-token")
	bob := f.allowUser(t, "bob-token")
	f.store.contacts[alice] = []string{bob}

	bobConn := f.dial(t, "bob-token")
	waitFor(t, func() bool { return f.registry.IsOnline(bob) }, "bob should be online")

	aliceConn := f.dial(t, "alice-token")
	online := readFrame(t, bobConn)
	if online.Type != FramePresence || online.UserID != alice || online.Online == nil || !*online.Online {
		t.Fatalf("bob expected an online event for alice, got %+v", online)
	}

	aliceConn.Close()
	offline := readFrame(t, bobConn)
	if offline.Type != FramePresence || offline.UserID != alice || offline.Online == nil || *offline.Online {
		t.Fatalf("bob expected an offline event for alice, got %+v", offline)
	}
}
