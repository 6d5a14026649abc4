package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mohitverma010602/just-chat/internal/auth"
	"github.com/mohitverma010602/just-chat/internal/models"
)

type stubVerifier struct {
	identity *auth.Identity
}

func (v *stubVerifier) Verify(ctx context.Context, credential string) (*auth.Identity, error) {
	if v.identity != nil && credential == "valid" {
		return v.identity, nil
	}
	return nil, auth.ErrTokenInvalid
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestRequireAuth(t *testing.T) {
	identity := &auth.Identity{UserID: uuid.New(), Username: "alice", Role: models.RoleUser}
	mw := NewAuthMiddleware(&stubVerifier{identity: identity})

	var captured *auth.Identity
	handler := mw.RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured = GetIdentityFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	t.Run("missing credential", func(t *testing.T) {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("invalid credential", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.Header.Set("Authorization", "Bearer bogus")
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, r)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("valid credential", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.Header.Set("Authorization", "Bearer valid")
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, r)
		assert.Equal(t, http.StatusOK, w.Code)
		require.NotNil(t, captured)
		assert.Equal(t, identity.UserID, captured.UserID)
	})
}

func TestRequireRole(t *testing.T) {
	mw := NewAuthMiddleware(&stubVerifier{})
	handler := mw.RequireRole(models.RoleAdmin)(okHandler())

	t.Run("no identity", func(t *testing.T) {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("wrong role", func(t *testing.T) {
		identity := &auth.Identity{UserID: uuid.New(), Role: models.RoleUser}
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r = r.WithContext(WithIdentity(r.Context(), identity))
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, r)
		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("admin", func(t *testing.T) {
		identity := &auth.Identity{UserID: uuid.New(), Role: models.RoleAdmin}
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r = r.WithContext(WithIdentity(r.Context(), identity))
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, r)
		assert.Equal(t, http.StatusOK, w.Code)
	})
}

func TestLoggerLevels(t *testing.T) {
	var buf strings.Builder
	logger := zerolog.New(&buf).Level(zerolog.InfoLevel)
	handler := Logger(logger)(okHandler())

	r := httptest.NewRequest(http.MethodGet, "/health", nil)
	handler.ServeHTTP(httptest.NewRecorder(), r)
	assert.Empty(t, buf.String(), "health checks should stay below info level")

	r = httptest.NewRequest(http.MethodGet, "/api/v1/users/me", nil)
	r.RemoteAddr = "10.0.0.1:1234"
	handler.ServeHTTP(httptest.NewRecorder(), r)
	line := buf.String()
	assert.Contains(t, line, "request completed")
	assert.Contains(t, line, `"path":"/api/v1/users/me"`)
	assert.Contains(t, line, `"remote_addr":"10.0.0.1"`)
}

func TestSecurityHeaders(t *testing.T) {
	w := httptest.NewRecorder()
	SecurityHeaders(okHandler()).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
	assert.Equal(t, "default-src 'none'", w.Header().Get("Content-Security-Policy"))
}

func TestMaxBodySize(t *testing.T) {
	handler := MaxBodySize(10)(okHandler())

	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(strings.Repeat("x", 20)))
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, r)
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)

	r = httptest.NewRequest(http.MethodPost, "/", strings.NewReader("small"))
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, r)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRequireJSON(t *testing.T) {
	handler := RequireJSON(okHandler())

	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{}`))
	r.Header.Set("Content-Type", "text/plain")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, r)
	assert.Equal(t, http.StatusUnsupportedMediaType, w.Code)

	r = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{}`))
	r.Header.Set("Content-Type", "application/json; charset=utf-8")
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, r)
	assert.Equal(t, http.StatusOK, w.Code)

	// GET requests are not constrained.
	r = httptest.NewRequest(http.MethodGet, "/", nil)
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, r)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRealIP(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "10.0.0.1:1234"
	assert.Equal(t, "10.0.0.1", RealIP(r))

	r.Header.Set("X-Real-IP", "10.0.0.2")
	assert.Equal(t, "10.0.0.2", RealIP(r))

	r.Header.Set("X-Forwarded-For", "10.0.0.3, 10.0.0.4")
	assert.Equal(t, "10.0.0.3", RealIP(r))
}

func TestFindLimit(t *testing.T) {
	rl := NewRateLimiter(nil, zerolog.Nop())

	r := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", nil)
	limit := rl.findLimit(r)
	require.NotNil(t, limit)
	assert.Equal(t, 20, limit.Requests)
	assert.Equal(t, 15*time.Minute, limit.Window)

	r = httptest.NewRequest(http.MethodGet, "/api/v1/messages/"+uuid.NewString(), nil)
	limit = rl.findLimit(r)
	require.NotNil(t, limit)
	assert.Equal(t, 120, limit.Requests)

	r = httptest.NewRequest(http.MethodGet, "/health", nil)
	assert.Nil(t, rl.findLimit(r))
}

func TestRateLimitKeyFuncs(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/api/v1/messages/x", nil)
	r.RemoteAddr = "10.0.0.1:1234"
	assert.Equal(t, "ratelimit:ip:10.0.0.1", userOrIPKey(r))

	identity := &auth.Identity{UserID: uuid.New()}
	r = r.WithContext(WithIdentity(r.Context(), identity))
	assert.Equal(t, "ratelimit:user:"+identity.UserID.String(), userOrIPKey(r))
}
