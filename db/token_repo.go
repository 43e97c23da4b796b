package db

import (
	"fmt"
	"time"

	"github.com/DIGIT-HABs/back/domain"
	"github.com/google/uuid"
)

var _ domain.TokenRepository = (*Repository)(nil)

// dbRefreshToken represents a refresh token as stored in the database. Only
// the SHA-256 hash of the token value is stored.
type dbRefreshToken struct {
	ID        uuid.UUID `db:"id"`
	UserID    uuid.UUID `db:"user_id"`
	Hash      string    `db:"hash"`
	Revoked   bool      `db:"revoked"`
	ExpiresAt time.Time `db:"expires_at"`
	CreatedAt time.Time `db:"created_at"`
}

// toDomainRefreshToken converts a dbRefreshToken into a domain.RefreshToken.
func toDomainRefreshToken(dbToken *dbRefreshToken) *domain.RefreshToken {
	return &domain.RefreshToken{
		ID:        dbToken.ID,
		UserID:    dbToken.UserID,
		Hash:      dbToken.Hash,
		Revoked:   dbToken.Revoked,
		ExpiresAt: dbToken.ExpiresAt,
		CreatedAt: dbToken.CreatedAt,
	}
}

// InsertRefreshToken saves a newly issued refresh token.
func (repo *Repository) InsertRefreshToken(token *domain.RefreshToken) error {
	dbToken := &dbRefreshToken{
		ID:        token.ID,
		UserID:    token.UserID,
		Hash:      token.Hash,
		Revoked:   token.Revoked,
		ExpiresAt: token.ExpiresAt,
		CreatedAt: token.CreatedAt,
	}

	query := `INSERT INTO refresh_tokens (id, user_id, hash, revoked, expires_at, created_at)
	          VALUES (:id, :user_id, :hash, :revoked, :expires_at, :created_at)`

	_, err := repo.dbConn.NamedExec(query, dbToken)
	if err != nil {
		return fmt.Errorf("inserting refresh token %s : %w", token.ID, err)
	}
	return nil
}

// GetRefreshToken retrieves a refresh token by its opaque value hash.
func (repo *Repository) GetRefreshToken(hash string) (*domain.RefreshToken, error) {
	var dbToken dbRefreshToken
	query := `SELECT * FROM refresh_tokens WHERE hash = ?`

	err := repo.dbConn.Get(&dbToken, repo.dbConn.Rebind(query), hash)
	if err != nil {
		return nil, fmt.Errorf("getting refresh token : %w", err)
	}

	return toDomainRefreshToken(&dbToken), nil
}

// RevokeRefreshToken marks a token revoked. Revoking an already revoked
// token is not an error so rotation stays idempotent.
func (repo *Repository) RevokeRefreshToken(hash string) error {
	query := `UPDATE refresh_tokens SET revoked = TRUE WHERE hash = ?`

	_, err := repo.dbConn.Exec(repo.dbConn.Rebind(query), hash)
	if err != nil {
		return fmt.Errorf("revoking refresh token : %w", err)
	}
	return nil
}

// RevokeUserTokens revokes every live token belonging to a user, returning
// how many were revoked.
func (repo *Repository) RevokeUserTokens(userID uuid.UUID) (int, error) {
	query := `UPDATE refresh_tokens SET revoked = TRUE WHERE user_id = ? AND revoked = FALSE`

	result, err := repo.dbConn.Exec(repo.dbConn.Rebind(query), userID)
	if err != nil {
		return 0, fmt.Errorf("revoking tokens for user %s : %w", userID, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("checking revoked rows affected for user %s : %w", userID, err)
	}

	return int(rowsAffected), nil
}

// DeleteExpiredTokens removes tokens past their expiry.
func (repo *Repository) DeleteExpiredTokens(cutoff time.Time) (int, error) {
	query := `DELETE FROM refresh_tokens WHERE expires_at < ?`

	result, err := repo.dbConn.Exec(repo.dbConn.Rebind(query), cutoff)
	if err != nil {
		return 0, fmt.Errorf("deleting expired tokens : %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("checking deletion rows affected : %w", err)
	}

	return int(rowsAffected), nil
}
