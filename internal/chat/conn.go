package chat

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	// Time allowed to write a frame to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = 54 * time.Second

	// Maximum inbound frame size.
	maxMessageSize = 16 * 1024

	// Outbound frame buffer per connection.
	sendBufferSize = 64
)

var errConnClosed = errors.New("chat: connection closed")

// wire abstracts the underlying websocket so tests can substitute a fake.
// *websocket.Conn satisfies it.
type wire interface {
	ReadMessage() (int, []byte, error)
	WriteMessage(messageType int, data []byte) error
	SetReadLimit(limit int64)
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetPongHandler(h func(string) error)
	Close() error
}

// Conn is a live duplex connection bound to its owning user at handshake
// time. The owner never changes for the connection's lifetime.
type Conn struct {
	userID string
	ws     wire
	send   chan []byte
	done   chan struct{}
	once   sync.Once
	logger zerolog.Logger
}

func newConn(userID string, ws wire, logger zerolog.Logger) *Conn {
	return &Conn{
		userID: userID,
		ws:     ws,
		send:   make(chan []byte, sendBufferSize),
		done:   make(chan struct{}),
		logger: logger.With().Str("user_id", userID).Logger(),
	}
}

// UserID returns the identity this connection was bound to at handshake.
func (c *Conn) UserID() string {
	return c.userID
}

// push enqueues a frame for delivery on this connection. It never blocks:
// a closed connection or a full buffer yields an error, which callers treat
// as a per-connection push failure.
func (c *Conn) push(frame ServerFrame) error {
	data, err := json.Marshal(frame)
	if err != nil {
		return err
	}
	select {
	case <-c.done:
		return errConnClosed
	default:
	}
	select {
	case c.send <- data:
		return nil
	default:
		return errors.New("chat: send buffer full")
	}
}

// close tears the transport down. Safe to call multiple times.
func (c *Conn) close() {
	c.once.Do(func() {
		close(c.done)
		_ = c.ws.Close()
	})
}

// writePump drains the send buffer onto the wire and keeps the connection
// alive with pings. It exits on write error or when the connection closes,
// which in turn terminates the read loop via the closed transport.
func (c *Conn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case data := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				c.logger.Debug().Err(err).Msg("write failed, dropping connection")
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.ws.WriteMessage(websocket.CloseMessage, nil)
			return
		}
	}
}
