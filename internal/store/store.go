package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"

	"github.com/mohitverma010602/just-chat/internal/models"
)

// DataStore defines the interface for persistent storage of users and
// messages. Both PostgresStore and SQLiteStore implement this interface.
type DataStore interface {
	// Connection management
	Close()
	Ping(ctx context.Context) error

	// User operations
	CreateUser(ctx context.Context, user *models.User) error
	GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	CountUsers(ctx context.Context) (int64, error)

	// Message operations
	CreateMessage(ctx context.Context, msg *models.Message) error
	GetMessage(ctx context.Context, id string) (*models.Message, error)
	AdvanceMessageStatus(ctx context.Context, id string, target models.Status) (bool, error)
	History(ctx context.Context, userID, peerID string, limit int, before time.Time) ([]models.Message, error)
	ContactIDs(ctx context.Context, userID string) ([]string, error)
	CountMessages(ctx context.Context) (int64, error)
}

// prepareMessage fills server-assigned fields before insert. Every message is
// born with status "sent"; later transitions go through AdvanceMessageStatus.
func prepareMessage(msg *models.Message) {
	if msg.ID == "" {
		msg.ID = ulid.Make().String()
	}
	now := time.Now().UTC()
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = now
	}
	msg.UpdatedAt = msg.CreatedAt
	msg.Status = models.StatusSent
}

// prepareUser fills server-assigned fields before insert.
func prepareUser(user *models.User) {
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	if user.Role == "" {
		user.Role = models.RoleUser
	}
	now := time.Now().UTC()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	user.UpdatedAt = now
}
