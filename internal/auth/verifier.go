package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/mohitverma010602/just-chat/internal/models"
)

// AccessTokenCookie is the cookie the login endpoint sets and the handshake
// reads when no Authorization header is present.
const AccessTokenCookie = "accessToken"

// Identity is the verified result of a bearer credential.
type Identity struct {
	UserID   uuid.UUID
	Username string
	Role     models.Role
}

// Verifier validates a bearer credential and yields a stable identity.
type Verifier interface {
	Verify(ctx context.Context, credential string) (*Identity, error)
}

// UserLookup is the slice of the user store the verifier needs.
type UserLookup interface {
	GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}

// JWTVerifier verifies access tokens and confirms the user still exists.
type JWTVerifier struct {
	tokens *TokenService
	users  UserLookup
}

// NewJWTVerifier creates a verifier backed by the given token service and
// user store.
func NewJWTVerifier(tokens *TokenService, users UserLookup) *JWTVerifier {
	return &JWTVerifier{tokens: tokens, users: users}
}

// Verify implements Verifier. The credential is rejected when missing,
// malformed, expired, or when the user it names no longer exists.
func (v *JWTVerifier) Verify(ctx context.Context, credential string) (*Identity, error) {
	if credential == "" {
		return nil, ErrTokenInvalid
	}

	claims, err := v.tokens.ParseAccessToken(credential)
	if err != nil {
		return nil, err
	}

	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return nil, ErrTokenInvalid
	}

	user, err := v.users.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrTokenInvalid
	}

	return &Identity{
		UserID:   user.ID,
		Username: user.Username,
		Role:     user.Role,
	}, nil
}

// CredentialFromRequest extracts the bearer credential from the accessToken
// cookie or the Authorization header. Returns "" when neither is present.
func CredentialFromRequest(r *http.Request) string {
	if cookie, err := r.Cookie(AccessTokenCookie); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	if header := r.Header.Get("Authorization"); header != "" {
		return strings.TrimPrefix(header, "Bearer ")
	}
	return ""
}
