package chat

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/mohitverma010602/just-chat/internal/metrics"
)

// AudienceProvider names the users interested in someone's presence changes.
// The data store implements it with the user's message correspondents.
type AudienceProvider interface {
	ContactIDs(ctx context.Context, userID string) ([]string, error)
}

// Presence notifies a user's audience of online/offline transitions. Events
// are fire-and-forget: no acknowledgment, no retry, no persistence. A missed
// event is corrected by the peer's next reconnect.
type Presence struct {
	registry *Registry
	audience AudienceProvider
	logger   zerolog.Logger
}

// NewPresence creates a presence broadcaster.
func NewPresence(registry *Registry, audience AudienceProvider, logger zerolog.Logger) *Presence {
	return &Presence{registry: registry, audience: audience, logger: logger}
}

// UserOnline broadcasts a zero-to-one connection transition.
func (p *Presence) UserOnline(ctx context.Context, userID string) {
	p.broadcast(ctx, userID, true)
}

// UserOffline broadcasts a one-to-zero connection transition.
func (p *Presence) UserOffline(ctx context.Context, userID string) {
	p.broadcast(ctx, userID, false)
}

func (p *Presence) broadcast(ctx context.Context, userID string, online bool) {
	state := "offline"
	if online {
		state = "online"
	}
	metrics.PresenceEvents.WithLabelValues(state).Inc()

	contacts, err := p.audience.ContactIDs(ctx, userID)
	if err != nil {
		p.logger.Warn().Err(err).Str("user_id", userID).Msg("presence audience lookup failed")
		return
	}

	frame := presenceFrame(userID, online)
	for _, contact := range contacts {
		for _, conn := range p.registry.Lookup(contact) {
			// Best effort; a full buffer just drops the event.
			_ = conn.push(frame)
		}
	}
}
