package chat

import (
	"github.com/mohitverma010602/just-chat/internal/models"
)

// Frame types exchanged over a live connection.
const (
	// client -> server
	FrameMessage      = "message"
	FrameAckDelivered = "ack_delivered"
	FrameAckRead      = "ack_read"

	// server -> client (FrameMessage is used in both directions)
	FrameStatus   = "status"
	FramePresence = "presence"
	FrameError    = "error"
)

// ClientFrame is a decoded inbound frame.
type ClientFrame struct {
	Type       string `json:"type"`
	ReceiverID string `json:"receiver_id,omitempty"`
	Content    string `json:"content,omitempty"`
	Attachment string `json:"attachment,omitempty"`
	MessageID  string `json:"message_id,omitempty"`
}

// ServerFrame is an outbound frame. Exactly one payload group is set,
// according to Type.
type ServerFrame struct {
	Type string `json:"type"`

	// FrameMessage
	Message *models.Message `json:"message,omitempty"`

	// FrameStatus
	MessageID string        `json:"message_id,omitempty"`
	Status    models.Status `json:"status,omitempty"`

	// FramePresence
	UserID string `json:"user_id,omitempty"`
	Online *bool  `json:"online,omitempty"`

	// FrameError
	Reason string `json:"reason,omitempty"`
}

func messageFrame(msg *models.Message) ServerFrame {
	return ServerFrame{Type: FrameMessage, Message: msg}
}

func statusFrame(messageID string, status models.Status) ServerFrame {
	return ServerFrame{Type: FrameStatus, MessageID: messageID, Status: status}
}

func presenceFrame(userID string, online bool) ServerFrame {
	return ServerFrame{Type: FramePresence, UserID: userID, Online: &online}
}

func errorFrame(reason string) ServerFrame {
	return ServerFrame{Type: FrameError, Reason: reason}
}
