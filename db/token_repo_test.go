package db

import (
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/DIGIT-HABs/back/domain"
)

func testRefreshToken(t *testing.T, repo *Repository, userID uuid.UUID, expiresAt time.Time) *domain.RefreshToken {
	t.Helper()

	id, err := uuid.NewV7()
	if err != nil {
		t.Fatalf("creating uuid: %v", err)
	}

	token := &domain.RefreshToken{
		ID:        id,
		UserID:    userID,
		Hash:      fmt.Sprintf("hash_%s", id),
		ExpiresAt: expiresAt,
		CreatedAt: time.Now().UTC().Truncate(time.Millisecond),
	}

	err = repo.InsertRefreshToken(token)
	if err != nil {
		t.Fatalf("creating test refresh token : %v", err)
	}

	return token
}

func TestTokenRepo_RevokeRefreshToken(t *testing.T) {
	t.Run("should mark the token revoked", func(t *testing.T) {
		repo, teardown := setupTestDB(t)
		defer teardown()

		user := testUser(t, repo, domain.RoleClient, nil)
		token := testRefreshToken(t, repo, user.ID, time.Now().UTC().Add(7*24*time.Hour))

		err := repo.RevokeRefreshToken(token.Hash)
		if err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}

		got, err := repo.GetRefreshToken(token.Hash)
		if err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}

		if !got.Revoked {
			t.Fatalf("\nwanted:\na revoked token\ngot:\n%+v", got)
		}
	})

	t.Run("should tolerate revoking an already revoked token", func(t *testing.T) {
		repo, teardown := setupTestDB(t)
		defer teardown()

		user := testUser(t, repo, domain.RoleClient, nil)
		token := testRefreshToken(t, repo, user.ID, time.Now().UTC().Add(7*24*time.Hour))

		if err := repo.RevokeRefreshToken(token.Hash); err != nil {
			t.Fatalf("revoking token : %v", err)
		}

		err := repo.RevokeRefreshToken(token.Hash)
		if err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}
	})
}

func TestTokenRepo_RevokeUserTokens(t *testing.T) {
	t.Run("should only count tokens that were still live", func(t *testing.T) {
		repo, teardown := setupTestDB(t)
		defer teardown()

		user := testUser(t, repo, domain.RoleClient, nil)
		expiry := time.Now().UTC().Add(7 * 24 * time.Hour)

		testRefreshToken(t, repo, user.ID, expiry)
		revoked := testRefreshToken(t, repo, user.ID, expiry)
		if err := repo.RevokeRefreshToken(revoked.Hash); err != nil {
			t.Fatalf("revoking token : %v", err)
		}

		got, err := repo.RevokeUserTokens(user.ID)
		if err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}

		if got != 1 {
			t.Fatalf("\nwanted:\n1\ngot:\n%d", got)
		}
	})
}

func TestTokenRepo_DeleteExpiredTokens(t *testing.T) {
	t.Run("should remove tokens past their expiry", func(t *testing.T) {
		repo, teardown := setupTestDB(t)
		defer teardown()

		user := testUser(t, repo, domain.RoleClient, nil)
		now := time.Now().UTC()

		expired := testRefreshToken(t, repo, user.ID, now.Add(-time.Hour))
		live := testRefreshToken(t, repo, user.ID, now.Add(time.Hour))

		deleted, err := repo.DeleteExpiredTokens(now)
		if err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}

		if deleted != 1 {
			t.Fatalf("\nwanted:\n1\ngot:\n%d", deleted)
		}

		_, err = repo.GetRefreshToken(expired.Hash)
		if err == nil {
			t.Fatalf("\nwanted:\nan error\ngot:\nnil")
		}

		_, err = repo.GetRefreshToken(live.Hash)
		if err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}
	})
}
