package models

import "time"

// Status is the delivery state of a message. Transitions only move forward:
// sent -> delivered -> read.
type Status string

const (
	StatusSent      Status = "sent"
	StatusDelivered Status = "delivered"
	StatusRead      Status = "read"
)

// statusRank orders statuses for compare-and-set transitions.
var statusRank = map[Status]int{
	StatusSent:      0,
	StatusDelivered: 1,
	StatusRead:      2,
}

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	_, ok := statusRank[s]
	return ok
}

// Rank returns the position of s in the lifecycle, or -1 for unknown statuses.
func (s Status) Rank() int {
	r, ok := statusRank[s]
	if !ok {
		return -1
	}
	return r
}

// CanAdvanceTo reports whether a message currently at s may transition to
// target. Equal or earlier targets are not an advance; duplicate
// acknowledgments resolve to a no-op at the store layer.
func (s Status) CanAdvanceTo(target Status) bool {
	if !s.Valid() || !target.Valid() {
		return false
	}
	return statusRank[target] > statusRank[s]
}

// Message represents a one-to-one chat message.
type Message struct {
	ID         string    `json:"id"` // ULID
	SenderID   string    `json:"sender_id"`
	ReceiverID string    `json:"receiver_id"`
	Content    string    `json:"content"`
	Attachment string    `json:"attachment,omitempty"` // Reference to an externally stored file
	Status     Status    `json:"status"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}
