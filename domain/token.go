package domain

import (
	"time"

	"github.com/google/uuid"
)

// TokenRepository stores refresh tokens so they can be rotated and revoked
// server-side. Access tokens are stateless and never stored.
type TokenRepository interface {
	// InsertRefreshToken saves a newly issued refresh token.
	InsertRefreshToken(token *RefreshToken) error
	// GetRefreshToken retrieves a refresh token by its opaque value hash.
	GetRefreshToken(hash string) (*RefreshToken, error)
	// RevokeRefreshToken marks a token revoked. Revoking an already revoked
	// token is not an error.
	RevokeRefreshToken(hash string) error
	// RevokeUserTokens revokes every token belonging to a user, returning how
	// many were revoked.
	RevokeUserTokens(userID uuid.UUID) (int, error)
	// DeleteExpiredTokens removes tokens past their expiry.
	DeleteExpiredTokens(cutoff time.Time) (int, error)
}

// RefreshToken is the server-side record of an issued refresh token. Only a
// hash of the token value is stored.
type RefreshToken struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	Hash      string // SHA-256 hash of the token value.
	Revoked   bool
	ExpiresAt time.Time
	CreatedAt time.Time
}
