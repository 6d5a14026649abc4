package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/mohitverma010602/just-chat/internal/models"
)

// fakeWire is an inert transport for tests that exercise connections without
// a real websocket.
type fakeWire struct {
	mu     sync.Mutex
	closed bool
}

func (w *fakeWire) ReadMessage() (int, []byte, error) {
	return 0, nil, fmt.Errorf("fake wire has no inbound frames")
}

func (w *fakeWire) WriteMessage(messageType int, data []byte) error { return nil }
func (w *fakeWire) SetReadLimit(limit int64)                        {}
func (w *fakeWire) SetReadDeadline(t time.Time) error               { return nil }
func (w *fakeWire) SetWriteDeadline(t time.Time) error              { return nil }
func (w *fakeWire) SetPongHandler(h func(string) error)             {}

func (w *fakeWire) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	return nil
}

func newTestConn(userID string) *Conn {
	return newConn(userID, &fakeWire{}, zerolog.Nop())
}

// nextFrame pops the next queued outbound frame from a connection. Pushes are
// synchronous, so a frame produced by the code under test is already buffered.
func nextFrame(t *testing.T, c *Conn) ServerFrame {
	t.Helper()
	select {
	case data := <-c.send:
		var frame ServerFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			t.Fatalf("unmarshal frame: %v", err)
		}
		return frame
	default:
		t.Fatal("no frame queued")
		return ServerFrame{}
	}
}

func noFrame(t *testing.T, c *Conn) {
	t.Helper()
	select {
	case data := <-c.send:
		t.Fatalf("unexpected frame queued: %s", data)
	default:
	}
}

// memStore is an in-memory MessageStore, UserDirectory and AudienceProvider.
type memStore struct {
	mu       sync.Mutex
	users    map[string]*models.User
	messages map[string]*models.Message
	contacts map[string][]string

	createErr   error
	contactsErr error
	seq         int
}

func newMemStore() *memStore {
	return &memStore{
		users:    make(map[string]*models.User),
		messages: make(map[string]*models.Message),
		contacts: make(map[string][]string),
	}
}

func (s *memStore) addUser(t *testing.T) string {
	t.Helper()
	id := uuid.New()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[id.String()] = &models.User{ID: id, Username: "user-" + id.String()[:8]}
	return id.String()
}

func (s *memStore) CreateMessage(ctx context.Context, msg *models.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createErr != nil {
		return s.createErr
	}
	s.seq++
	msg.ID = fmt.Sprintf("msg-%04d", s.seq)
	msg.Status = models.StatusSent
	msg.CreatedAt = time.Now().UTC()
	msg.UpdatedAt = msg.CreatedAt
	stored := *msg
	s.messages[msg.ID] = &stored
	return nil
}

func (s *memStore) GetMessage(ctx context.Context, id string) (*models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	msg, ok := s.messages[id]
	if !ok {
		return nil, nil
	}
	copied := *msg
	return &copied, nil
}

func (s *memStore) AdvanceMessageStatus(ctx context.Context, id string, target models.Status) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	msg, ok := s.messages[id]
	if !ok {
		return false, nil
	}
	if !msg.Status.CanAdvanceTo(target) {
		return false, nil
	}
	msg.Status = target
	msg.UpdatedAt = time.Now().UTC()
	return true, nil
}

func (s *memStore) GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[id.String()]
	if !ok {
		return nil, nil
	}
	copied := *user
	return &copied, nil
}

func (s *memStore) ContactIDs(ctx context.Context, userID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.contactsErr != nil {
		return nil, s.contactsErr
	}
	return s.contacts[userID], nil
}

func (s *memStore) status(t *testing.T, id string) models.Status {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	msg, ok := s.messages[id]
	if !ok {
		t.Fatalf("message %s not stored", id)
	}
	return msg.Status
}

// stubLimiter is a canned SendLimiter.
type stubLimiter struct {
	allowed bool
	err     error
	calls   int
}

func (l *stubLimiter) AllowSend(ctx context.Context, userID string, limit int, window time.Duration) (bool, error) {
	l.calls++
	return l.allowed, l.err
}

func newTestEngine(store *memStore, registry *Registry, limiter SendLimiter) *Engine {
	return NewEngine(store, store, registry, limiter, 10, time.Minute, zerolog.Nop())
}
