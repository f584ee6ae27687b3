package gateway

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	ErrMissingToken = errors.New("missing token")
	ErrInvalidToken = errors.New("invalid token")
)

// Identity is who a websocket connection belongs to.
type Identity struct {
	UserID   string
	Verified bool
}

// IdentityVerifier reads HS256 tokens issued by the page layer. With no secret configured
// every connection is anonymous and identifies itself in its join payload.
type IdentityVerifier struct {
	secret []byte
}

func NewIdentityVerifier(secret string) *IdentityVerifier {
	return &IdentityVerifier{secret: []byte(secret)}
}

// Enabled reports whether tokens are required.
func (v *IdentityVerifier) Enabled() bool {
	return len(v.secret) > 0
}

// FromRequest extracts the identity from the token query parameter or a bearer header.
func (v *IdentityVerifier) FromRequest(r *http.Request) (Identity, error) {
	if !v.Enabled() {
		return Identity{}, nil
	}

	raw := r.URL.Query().Get("token")
	if raw == "" {
		raw = strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		raw = strings.TrimSpace(raw)
	}
	if raw == "" {
		return Identity{}, ErrMissingToken
	}

	userID, err := v.Parse(raw)
	if err != nil {
		return Identity{}, err
	}
	return Identity{UserID: userID, Verified: true}, nil
}

// Parse validates a token and returns its subject.
func (v *IdentityVerifier) Parse(tokenString string) (string, error) {
	token, err := jwt.ParseWithClaims(tokenString, &jwt.RegisteredClaims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, jwt.ErrSignatureInvalid
		}
		return v.secret, nil
	})
	if err != nil || !token.Valid {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*jwt.RegisteredClaims)
	if !ok || claims.Subject == "" {
		return "", fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	return claims.Subject, nil
}

// Issue signs a token for userID. The page layer issues the real ones; this serves
// tooling such as the sync agent.
func (v *IdentityVerifier) Issue(userID string, ttl time.Duration) (string, error) {
	now := time.Now().UTC()
	claims := jwt.RegisteredClaims{
		Subject:   userID,
		ID:        uuid.NewString(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}
