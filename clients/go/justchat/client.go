// Package justchat provides a Go client for the just-chat realtime
// messaging server.
package justchat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

// Client talks to a just-chat server.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client

	accessToken  string
	refreshToken string
}

// New creates a client for the given base URL, e.g. "http://localhost:8080".
func New(baseURL string) *Client {
	return &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		HTTPClient: &http.Client{Timeout: 15 * time.Second},
	}
}

// User is a user profile as returned by the server.
type User struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	FullName string `json:"full_name"`
	Role     string `json:"role"`
	Online   bool   `json:"online"`
	LastSeen string `json:"last_seen,omitempty"`
}

// Message is a chat message record.
type Message struct {
	ID         string    `json:"id"`
	SenderID   string    `json:"sender_id"`
	ReceiverID string    `json:"receiver_id"`
	Content    string    `json:"content"`
	Attachment string    `json:"attachment,omitempty"`
	Status     string    `json:"status"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Frame is a server-to-client event received over the live connection.
type Frame struct {
	Type      string   `json:"type"`
	Message   *Message `json:"message,omitempty"`
	MessageID string   `json:"message_id,omitempty"`
	Status    string   `json:"status,omitempty"`
	UserID    string   `json:"user_id,omitempty"`
	Online    *bool    `json:"online,omitempty"`
	Reason    string   `json:"reason,omitempty"`
}

type apiError struct {
	Error string `json:"error"`
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.accessToken)
	}
	return c.do(req, out)
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+path, nil)
	if err != nil {
		return err
	}
	if c.accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.accessToken)
	}
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var apiErr apiError
		if json.NewDecoder(resp.Body).Decode(&apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("justchat: %s (%d)", apiErr.Error, resp.StatusCode)
		}
		return fmt.Errorf("justchat: request failed with status %d", resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// Register creates a new account.
func (c *Client) Register(ctx context.Context, username, email, fullName, password string) (*User, error) {
	user := &User{}
	err := c.post(ctx, "/api/v1/auth/register", map[string]string{
		"username":  username,
		"email":     email,
		"full_name": fullName,
		"password":  password,
	}, user)
	if err != nil {
		return nil, err
	}
	return user, nil
}

// Login authenticates and stores the returned token pair on the client.
func (c *Client) Login(ctx context.Context, username, password string) (*User, error) {
	var resp struct {
		User         *User  `json:"user"`
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
	}
	if err := c.post(ctx, "/api/v1/auth/login", map[string]string{
		"username": username,
		"password": password,
	}, &resp); err != nil {
		return nil, err
	}
	c.accessToken = resp.AccessToken
	c.refreshToken = resp.RefreshToken
	return resp.User, nil
}

// Refresh exchanges the stored refresh token for a fresh pair.
func (c *Client) Refresh(ctx context.Context) error {
	var resp struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
	}
	if err := c.post(ctx, "/api/v1/auth/refresh", map[string]string{
		"refresh_token": c.refreshToken,
	}, &resp); err != nil {
		return err
	}
	c.accessToken = resp.AccessToken
	c.refreshToken = resp.RefreshToken
	return nil
}

// GetUser fetches a user's public profile.
func (c *Client) GetUser(ctx context.Context, id string) (*User, error) {
	user := &User{}
	if err := c.get(ctx, "/api/v1/users/"+url.PathEscape(id), user); err != nil {
		return nil, err
	}
	return user, nil
}

// History fetches the conversation with a peer, newest first.
func (c *Client) History(ctx context.Context, peerID string, limit int) ([]Message, error) {
	var resp struct {
		Messages []Message `json:"messages"`
		HasMore  bool      `json:"has_more"`
	}
	path := "/api/v1/messages/" + url.PathEscape(peerID)
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	if err := c.get(ctx, path, &resp); err != nil {
		return nil, err
	}
	return resp.Messages, nil
}

// Session is a live websocket connection to the server.
type Session struct {
	conn   *websocket.Conn
	frames chan Frame
	errCh  chan error
}

// Connect opens the live connection. The client must be logged in.
func (c *Client) Connect(ctx context.Context) (*Session, error) {
	if c.accessToken == "" {
		return nil, fmt.Errorf("justchat: login first")
	}

	wsURL := strings.Replace(c.BaseURL, "http", "ws", 1) + "/ws"
	header := http.Header{}
	header.Set("Authorization", "Bearer "+c.accessToken)

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, wsURL, header)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			return nil, fmt.Errorf("justchat: unauthorized")
		}
		return nil, err
	}

	s := &Session{
		conn:   conn,
		frames: make(chan Frame, 16),
		errCh:  make(chan error, 1),
	}
	go s.readLoop()
	return s, nil
}

func (s *Session) readLoop() {
	defer close(s.frames)
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			s.errCh <- err
			return
		}
		var frame Frame
		if err := json.Unmarshal(data, &frame); err != nil {
			continue
		}
		s.frames <- frame
	}
}

// Frames returns the stream of server events. The channel closes when the
// connection drops; Err reports why.
func (s *Session) Frames() <-chan Frame {
	return s.frames
}

// Err returns the read error after Frames closes, if any.
func (s *Session) Err() error {
	select {
	case err := <-s.errCh:
		return err
	default:
		return nil
	}
}

// Send sends a chat message to a peer.
func (s *Session) Send(receiverID, content string) error {
	return s.conn.WriteJSON(map[string]string{
		"type":        "message",
		"receiver_id": receiverID,
		"content":     content,
	})
}

// AckDelivered acknowledges receipt of a message.
func (s *Session) AckDelivered(messageID string) error {
	return s.conn.WriteJSON(map[string]string{
		"type":       "ack_delivered",
		"message_id": messageID,
	})
}

// AckRead signals a message was read.
func (s *Session) AckRead(messageID string) error {
	return s.conn.WriteJSON(map[string]string{
		"type":       "ack_read",
		"message_id": messageID,
	})
}

// Close closes the live connection.
func (s *Session) Close() error {
	_ = s.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	return s.conn.Close()
}
