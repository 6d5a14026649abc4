package chat

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/mohitverma010602/just-chat/internal/auth"
	"github.com/mohitverma010602/just-chat/internal/metrics"
)

// LastSeenRecorder records when a user's last connection closed.
// store.RedisStore implements it.
type LastSeenRecorder interface {
	SetLastSeen(ctx context.Context, userID string, t time.Time) error
}

// Gate performs the authenticated upgrade handshake. A request without a
// valid bearer credential is refused before the upgrade, so no frame traffic
// is ever possible on an anonymous transport. On success the connection is
// bound to the verified identity, registered, and its read loop started.
type Gate struct {
	verifier auth.Verifier
	registry *Registry
	engine   *Engine
	presence *Presence
	lastSeen LastSeenRecorder // optional
	logger   zerolog.Logger
	upgrader websocket.Upgrader
}

// NewGate creates the websocket handshake handler. lastSeen may be nil.
func NewGate(verifier auth.Verifier, registry *Registry, engine *Engine, presence *Presence, lastSeen LastSeenRecorder, logger zerolog.Logger) *Gate {
	return &Gate{
		verifier: verifier,
		registry: registry,
		engine:   engine,
		presence: presence,
		lastSeen: lastSeen,
		logger:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Browsers send credentials via the cookie; CORS posture is
			// enforced at the HTTP layer.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// ServeHTTP handles GET /ws.
func (g *Gate) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	identity, err := g.verifier.Verify(r.Context(), auth.CredentialFromRequest(r))
	if err != nil {
		// Refuse before the upgrade: the transport never goes half-open.
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":"unauthorized"}`))
		return
	}

	ws, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.logger.Debug().Err(err).Msg("websocket upgrade failed")
		return
	}

	userID := identity.UserID.String()
	conn := newConn(userID, ws, g.logger)

	// Registration completes before the read loop starts, so a message
	// addressed to this user cannot race past an unregistered connection.
	first := g.registry.Register(userID, conn)
	metrics.ConnectionsActive.Inc()
	g.logger.Info().
		Str("user_id", userID).
		Str("username", identity.Username).
		Bool("first_connection", first).
		Msg("connection registered")

	go conn.writePump()
	if first {
		g.presence.UserOnline(r.Context(), userID)
	}

	g.readLoop(r.Context(), conn)
	g.teardown(userID, conn)
}

// readLoop decodes inbound frames and dispatches them to the delivery
// engine. It returns on transport close or error; cleanup happens exactly
// once on loop exit.
func (g *Gate) readLoop(ctx context.Context, conn *Conn) {
	conn.ws.SetReadLimit(maxMessageSize)
	_ = conn.ws.SetReadDeadline(time.Now().Add(pongWait))
	conn.ws.SetPongHandler(func(string) error {
		return conn.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := conn.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseNormalClosure,
				websocket.CloseGoingAway,
				websocket.CloseAbnormalClosure) {
				g.logger.Debug().Err(err).Str("user_id", conn.UserID()).Msg("read loop ended")
			}
			return
		}
		g.engine.HandleFrame(ctx, conn, raw)
	}
}

// teardown releases connection resources. The registry removal is
// idempotent, so concurrent close signals on the same connection cannot
// produce a duplicate offline event.
func (g *Gate) teardown(userID string, conn *Conn) {
	conn.close()

	last, removed := g.registry.Unregister(userID, conn)
	if !removed {
		return
	}
	metrics.ConnectionsActive.Dec()
	g.logger.Info().
		Str("user_id", userID).
		Bool("last_connection", last).
		Msg("connection closed")

	if !last {
		return
	}

	// The request context is gone by now; presence fan-out and the last-seen
	// stamp get their own short-lived context.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	g.presence.UserOffline(ctx, userID)
	if g.lastSeen != nil {
		if err := g.lastSeen.SetLastSeen(ctx, userID, time.Now()); err != nil {
			g.logger.Warn().Err(err).Str("user_id", userID).Msg("last-seen update failed")
		}
	}
}
