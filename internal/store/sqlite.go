package store

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/mohitverma010602/just-chat/internal/models"
)

// SQLiteStore handles SQLite database operations. It backs development and
// single-host deployments where PostgreSQL is not configured.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store.
// If dbPath is empty, defaults to "./data/justchat.db".
func NewSQLiteStore(ctx context.Context, dbPath string) (*SQLiteStore, error) {
	if dbPath == "" {
		dbPath = "./data/justchat.db"
	}

	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, err
	}

	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(ctx); err != nil {
		return nil, err
	}

	return store, nil
}

// initSchema creates tables if they don't exist.
func (s *SQLiteStore) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		username TEXT UNIQUE NOT NULL,
		email TEXT UNIQUE NOT NULL,
		full_name TEXT NOT NULL,
		password_hash TEXT NOT NULL,
		role TEXT NOT NULL DEFAULT 'user',
		avatar TEXT NOT NULL DEFAULT '',
		about TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS messages (
		id TEXT PRIMARY KEY,
		sender_id TEXT NOT NULL REFERENCES users(id),
		receiver_id TEXT NOT NULL REFERENCES users(id),
		content TEXT NOT NULL,
		attachment TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT 'sent'
			CHECK (status IN ('sent', 'delivered', 'read')),
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_messages_sender_receiver
		ON messages(sender_id, receiver_id, created_at DESC);
	CREATE INDEX IF NOT EXISTS idx_messages_receiver
		ON messages(receiver_id, created_at DESC);
	`
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() {
	s.db.Close()
}

// Ping checks the database connection.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// CreateUser creates a new user record.
func (s *SQLiteStore) CreateUser(ctx context.Context, user *models.User) error {
	prepareUser(user)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, username, email, full_name, password_hash, role, avatar, about, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, user.ID.String(), user.Username, user.Email, user.FullName, user.PasswordHash,
		string(user.Role), user.Avatar, user.About, user.CreatedAt, user.UpdatedAt)
	return err
}

func (s *SQLiteStore) getUser(ctx context.Context, where string, arg any) (*models.User, error) {
	user := &models.User{}
	var idStr, roleStr string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, username, email, full_name, password_hash, role, avatar, about, created_at, updated_at
		FROM users WHERE `+where, arg).Scan(
		&idStr,
		&user.Username,
		&user.Email,
		&user.FullName,
		&user.PasswordHash,
		&roleStr,
		&user.Avatar,
		&user.About,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	user.ID, err = uuid.Parse(idStr)
	if err != nil {
		return nil, err
	}
	user.Role = models.Role(roleStr)
	return user, nil
}

// GetUserByID retrieves a user by ID.
func (s *SQLiteStore) GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	return s.getUser(ctx, "id = ?", id.String())
}

// GetUserByUsername retrieves a user by username.
func (s *SQLiteStore) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	return s.getUser(ctx, "username = ?", username)
}

// GetUserByEmail retrieves a user by email.
func (s *SQLiteStore) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return s.getUser(ctx, "email = ?", email)
}

// CountUsers returns the total number of registered users.
func (s *SQLiteStore) CountUsers(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&count)
	return count, err
}

// CreateMessage persists a message with status "sent".
func (s *SQLiteStore) CreateMessage(ctx context.Context, msg *models.Message) error {
	prepareMessage(msg)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO messages (id, sender_id, receiver_id, content, attachment, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, msg.ID, msg.SenderID, msg.ReceiverID, msg.Content, msg.Attachment,
		string(msg.Status), msg.CreatedAt, msg.UpdatedAt)
	return err
}

// GetMessage retrieves a message by ID.
func (s *SQLiteStore) GetMessage(ctx context.Context, id string) (*models.Message, error) {
	msg := &models.Message{}
	var statusStr string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, sender_id, receiver_id, content, attachment, status, created_at, updated_at
		FROM messages WHERE id = ?
	`, id).Scan(
		&msg.ID,
		&msg.SenderID,
		&msg.ReceiverID,
		&msg.Content,
		&msg.Attachment,
		&statusStr,
		&msg.CreatedAt,
		&msg.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	msg.Status = models.Status(statusStr)
	return msg, nil
}

// AdvanceMessageStatus moves a message forward in its lifecycle; see the
// PostgresStore method for transition semantics.
func (s *SQLiteStore) AdvanceMessageStatus(ctx context.Context, id string, target models.Status) (bool, error) {
	if !target.Valid() {
		return false, nil
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE messages
		SET status = ?, updated_at = ?
		WHERE id = ?
		  AND CASE status WHEN 'sent' THEN 0 WHEN 'delivered' THEN 1 ELSE 2 END
		    < CASE ? WHEN 'sent' THEN 0 WHEN 'delivered' THEN 1 ELSE 2 END
	`, string(target), time.Now().UTC(), id, string(target))
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// History retrieves the conversation between two users, newest first.
func (s *SQLiteStore) History(ctx context.Context, userID, peerID string, limit int, before time.Time) ([]models.Message, error) {
	if limit <= 0 {
		limit = 50
	}
	if before.IsZero() {
		before = time.Now().UTC().Add(time.Minute)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, sender_id, receiver_id, content, attachment, status, created_at, updated_at
		FROM messages
		WHERE ((sender_id = ? AND receiver_id = ?) OR (sender_id = ? AND receiver_id = ?))
		  AND created_at < ?
		ORDER BY created_at DESC
		LIMIT ?
	`, userID, peerID, peerID, userID, before, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []models.Message
	for rows.Next() {
		var msg models.Message
		var statusStr string
		err := rows.Scan(
			&msg.ID,
			&msg.SenderID,
			&msg.ReceiverID,
			&msg.Content,
			&msg.Attachment,
			&statusStr,
			&msg.CreatedAt,
			&msg.UpdatedAt,
		)
		if err != nil {
			return nil, err
		}
		msg.Status = models.Status(statusStr)
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

// ContactIDs returns the distinct users this user has exchanged messages with.
func (s *SQLiteStore) ContactIDs(ctx context.Context, userID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT peer FROM (
			SELECT receiver_id AS peer FROM messages WHERE sender_id = ?
			UNION
			SELECT sender_id AS peer FROM messages WHERE receiver_id = ?
		)
	`, userID, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// CountMessages returns the total number of stored messages.
func (s *SQLiteStore) CountMessages(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM messages`).Scan(&count)
	return count, err
}
