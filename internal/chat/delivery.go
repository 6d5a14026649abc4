package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/mohitverma010602/just-chat/internal/metrics"
	"github.com/mohitverma010602/just-chat/internal/models"
)

// ValidationError is rejected input from an authenticated sender. It is
// reported back to the originating connection as an error frame; the session
// continues.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "chat: " + e.Reason
}

var (
	ErrEmptyContent    = &ValidationError{Reason: "content is required"}
	ErrInvalidReceiver = &ValidationError{Reason: "receiver not found"}
	ErrSelfAddressed   = &ValidationError{Reason: "cannot send a message to yourself"}
	ErrUnknownMessage  = &ValidationError{Reason: "unknown message"}
	ErrNotRecipient    = &ValidationError{Reason: "only the recipient can acknowledge a message"}
	ErrRateLimited     = &ValidationError{Reason: "message rate limit exceeded"}
)

// MessageStore is the slice of the data store the engine needs.
type MessageStore interface {
	CreateMessage(ctx context.Context, msg *models.Message) error
	GetMessage(ctx context.Context, id string) (*models.Message, error)
	AdvanceMessageStatus(ctx context.Context, id string, target models.Status) (bool, error)
}

// UserDirectory resolves receiver IDs to known users.
type UserDirectory interface {
	GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}

// SendLimiter caps inbound sends per user. store.RedisStore implements it.
type SendLimiter interface {
	AllowSend(ctx context.Context, userID string, limit int, window time.Duration) (bool, error)
}

// Engine routes inbound messages from authenticated senders: it validates,
// persists (store-and-forward), pushes to the recipient's live connections,
// and advances the delivery lifecycle on acknowledgment.
type Engine struct {
	store    MessageStore
	users    UserDirectory
	registry *Registry

	limiter    SendLimiter // optional
	rateLimit  int
	rateWindow time.Duration

	logger zerolog.Logger
}

// NewEngine creates a delivery engine. limiter may be nil, in which case
// sends are not rate limited.
func NewEngine(store MessageStore, users UserDirectory, registry *Registry, limiter SendLimiter, rateLimit int, rateWindow time.Duration, logger zerolog.Logger) *Engine {
	return &Engine{
		store:      store,
		users:      users,
		registry:   registry,
		limiter:    limiter,
		rateLimit:  rateLimit,
		rateWindow: rateWindow,
		logger:     logger,
	}
}

// Send validates and persists a message, then pushes it to each of the
// receiver's live connections. Persistence completes before any push is
// attempted; if the receiver is offline the message simply stays durable with
// status "sent" and is picked up through history on the next connect. Push is
// best-effort and independent per connection.
func (e *Engine) Send(ctx context.Context, senderID, receiverID, content, attachment string) (*models.Message, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, ErrEmptyContent
	}
	if receiverID == senderID {
		return nil, ErrSelfAddressed
	}
	receiverUUID, err := uuid.Parse(receiverID)
	if err != nil {
		return nil, ErrInvalidReceiver
	}
	receiver, err := e.users.GetUserByID(ctx, receiverUUID)
	if err != nil {
		return nil, fmt.Errorf("resolving receiver: %w", err)
	}
	if receiver == nil {
		return nil, ErrInvalidReceiver
	}

	if e.limiter != nil {
		allowed, err := e.limiter.AllowSend(ctx, senderID, e.rateLimit, e.rateWindow)
		if err != nil {
			// A broken limiter should not take messaging down with it.
			e.logger.Warn().Err(err).Msg("send limiter unavailable, allowing")
		} else if !allowed {
			return nil, ErrRateLimited
		}
	}

	msg := &models.Message{
		SenderID:   senderID,
		ReceiverID: receiverID,
		Content:    content,
		Attachment: attachment,
	}
	if err := e.store.CreateMessage(ctx, msg); err != nil {
		return nil, fmt.Errorf("persisting message: %w", err)
	}
	metrics.MessagesSent.Inc()

	// Push after the durable record exists. A failure here never rolls the
	// message back.
	e.pushToUser(receiverID, messageFrame(msg))

	// Echo the persisted record to the sender's own connections so
	// multi-device senders converge.
	e.pushToUser(senderID, messageFrame(msg))

	return msg, nil
}

// MarkDelivered advances a message from "sent" to "delivered". Called when a
// receiving client's read loop acknowledges receipt.
func (e *Engine) MarkDelivered(ctx context.Context, messageID, actorID string) error {
	return e.advance(ctx, messageID, actorID, models.StatusDelivered)
}

// MarkRead advances a message to "read". Called when the receiving client
// signals the message was displayed.
func (e *Engine) MarkRead(ctx context.Context, messageID, actorID string) error {
	return e.advance(ctx, messageID, actorID, models.StatusRead)
}

// advance applies a status transition. The store update is a compare-and-set
// that only moves status forward, so duplicate acknowledgments from flaky
// links resolve to no-ops. When a transition applies and the sender is still
// connected, the sender is notified with a status frame.
func (e *Engine) advance(ctx context.Context, messageID, actorID string, target models.Status) error {
	msg, err := e.store.GetMessage(ctx, messageID)
	if err != nil {
		return fmt.Errorf("loading message: %w", err)
	}
	if msg == nil {
		return ErrUnknownMessage
	}
	if msg.ReceiverID != actorID {
		return ErrNotRecipient
	}

	updated, err := e.store.AdvanceMessageStatus(ctx, messageID, target)
	if err != nil {
		return fmt.Errorf("advancing status: %w", err)
	}
	if !updated {
		// Already at or past the target status.
		return nil
	}
	metrics.StatusTransitions.WithLabelValues(string(target)).Inc()

	e.pushToUser(msg.SenderID, statusFrame(messageID, target))
	return nil
}

// pushToUser pushes a frame to every live connection of a user. Failures are
// counted and logged per connection and never affect the other connections.
func (e *Engine) pushToUser(userID string, frame ServerFrame) {
	for _, conn := range e.registry.Lookup(userID) {
		if err := conn.push(frame); err != nil {
			metrics.PushFailures.Inc()
			e.logger.Debug().
				Err(err).
				Str("user_id", userID).
				Str("frame", frame.Type).
				Msg("push failed")
		}
	}
}

// HandleFrame decodes one inbound frame from conn and dispatches it.
// Validation failures are reported back on the same connection as error
// frames; the session continues. Store failures are reported the same way and
// the message is never pushed.
func (e *Engine) HandleFrame(ctx context.Context, conn *Conn, raw []byte) {
	var frame ClientFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		e.reportError(conn, "malformed frame")
		return
	}

	var err error
	switch frame.Type {
	case FrameMessage:
		_, err = e.Send(ctx, conn.UserID(), frame.ReceiverID, frame.Content, frame.Attachment)
	case FrameAckDelivered:
		err = e.MarkDelivered(ctx, frame.MessageID, conn.UserID())
	case FrameAckRead:
		err = e.MarkRead(ctx, frame.MessageID, conn.UserID())
	default:
		e.reportError(conn, "unknown frame type")
		return
	}

	if err == nil {
		return
	}
	var vErr *ValidationError
	if errors.As(err, &vErr) {
		e.reportError(conn, vErr.Reason)
		return
	}
	e.logger.Error().
		Err(err).
		Str("user_id", conn.UserID()).
		Str("frame", frame.Type).
		Msg("frame handling failed")
	e.reportError(conn, "message could not be stored")
}

func (e *Engine) reportError(conn *Conn, reason string) {
	if err := conn.push(errorFrame(reason)); err != nil {
		metrics.PushFailures.Inc()
	}
}
