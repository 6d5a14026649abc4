package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mohitverma010602/just-chat/internal/models"
)

type stubUserLookup struct {
	users map[uuid.UUID]*models.User
}

func (s *stubUserLookup) GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	return s.users[id], nil
}

func TestVerifyValidCredential(t *testing.T) {
	svc := NewTokenService("test-secret", 15*time.Minute, 24*time.Hour)
	user := testUser()
	lookup := &stubUserLookup{users: map[uuid.UUID]*models.User{user.ID: user}}
	verifier := NewJWTVerifier(svc, lookup)

	token, err := svc.GenerateAccessToken(user)
	require.NoError(t, err)

	identity, err := verifier.Verify(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, user.ID, identity.UserID)
	assert.Equal(t, "alice", identity.Username)
	assert.Equal(t, models.RoleUser, identity.Role)
}

func TestVerifyRejections(t *testing.T) {
	svc := NewTokenService("test-secret", 15*time.Minute, 24*time.Hour)
	lookup := &stubUserLookup{users: map[uuid.UUID]*models.User{}}
	verifier := NewJWTVerifier(svc, lookup)

	t.Run("empty credential", func(t *testing.T) {
		_, err := verifier.Verify(context.Background(), "")
		assert.ErrorIs(t, err, ErrTokenInvalid)
	})

	t.Run("deleted user", func(t *testing.T) {
		// Valid token for a user the store no longer knows.
		token, err := svc.GenerateAccessToken(testUser())
		require.NoError(t, err)
		_, err = verifier.Verify(context.Background(), token)
		assert.ErrorIs(t, err, ErrTokenInvalid)
	})

	t.Run("expired token", func(t *testing.T) {
		expired := NewTokenService("test-secret", -time.Minute, 24*time.Hour)
		token, err := expired.GenerateAccessToken(testUser())
		require.NoError(t, err)
		_, err = verifier.Verify(context.Background(), token)
		assert.ErrorIs(t, err, ErrTokenExpired)
	})
}

func TestCredentialFromRequest(t *testing.T) {
	t.Run("cookie", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/ws", nil)
		r.AddCookie(&http.Cookie{Name: AccessTokenCookie, Value: "cookie-token"})
		assert.Equal(t, "cookie-token", CredentialFromRequest(r))
	})

	t.Run("bearer header", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/ws", nil)
		r.Header.Set("Authorization", "Bearer header-token")
		assert.Equal(t, "header-token", CredentialFromRequest(r))
	})

	t.Run("cookie wins over header", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/ws", nil)
		r.AddCookie(&http.Cookie{Name: AccessTokenCookie, Value: "cookie-token"})
		r.Header.Set("Authorization", "Bearer header-token")
		assert.Equal(t, "cookie-token", CredentialFromRequest(r))
	})

	t.Run("absent", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/ws", nil)
		assert.Equal(t, "", CredentialFromRequest(r))
	})
}
