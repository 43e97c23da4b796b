package auth

import (
	"errors"
	"os"
	"testing"
	"time"

	"github.com/DIGIT-HABs/back/db"
	"github.com/DIGIT-HABs/back/domain"
)

const testSigningSecret = "digithab-test-secret"

func setupTestService(t *testing.T) (*Service, *db.Repository, func()) {
	t.Helper()

	tempFile, err := os.CreateTemp(t.TempDir(), "test_*.db")
	if err != nil {
		t.Fatalf("creating temp db file: %v", err)
	}

	dbConn, err := db.New(db.DialectSQLite, tempFile.Name())
	if err != nil {
		t.Fatalf("connecting to test db: %v", err)
	}
	repo := db.NewCRMRepo(dbConn)

	service := NewService(repo, repo, repo, testSigningSecret)
	return service, repo, func() {
		repo.Close()
	}
}

func registerAccount(t *testing.T, service *Service, email, password string) (*domain.User, *TokenPair) {
	t.Helper()

	user, pair, err := service.Register(email, password, "Sophie", "Martin", "+33612345678")
	if err != nil {
		t.Fatalf("creating test account : %v", err)
	}
	return user, pair
}

func TestHashPassword(t *testing.T) {
	t.Run("should match the password it hashed", func(t *testing.T) {
		hash, err := HashPassword("grand-voilier-44")
		if err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}

		if !CheckPassword(hash, "grand-voilier-44") {
			t.Fatalf("\nwanted:\npassword to match its hash\ngot:\nno match")
		}
		if CheckPassword(hash, "grand-voilier-45") {
			t.Fatalf("\nwanted:\nwrong password rejected\ngot:\nmatch")
		}
	})

	t.Run("should never match an empty hash", func(t *testing.T) {
		if CheckPassword("", "anything") {
			t.Fatalf("\nwanted:\nempty hash rejected\ngot:\nmatch")
		}
	})
}

func TestService_Register(t *testing.T) {
	t.Run("should create a client account with its profile", func(t *testing.T) {
		service, repo, teardown := setupTestService(t)
		defer teardown()

		user, pair, err := service.Register("Sophie.Martin@Gmail.com", "grand-voilier-44", "Sophie", "Martin", "+33612345678")
		if err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}

		if user.Email != "sophie.martin@gmail.com" {
			t.Fatalf("\nwanted:\nsophie.martin@gmail.com\ngot:\n%s", user.Email)
		}
		if user.Username != "sophie.martin" {
			t.Fatalf("\nwanted:\nsophie.martin\ngot:\n%s", user.Username)
		}
		if user.Role != domain.RoleClient {
			t.Fatalf("\nwanted:\n%s\ngot:\n%s", domain.RoleClient, user.Role)
		}
		if pair.AccessToken == "" || pair.RefreshToken == "" {
			t.Fatalf("\nwanted:\na full token pair\ngot:\n%+v", pair)
		}

		profile, err := repo.GetClientProfile(user.ID)
		if err != nil {
			t.Fatalf("fetching created profile : %v", err)
		}
		if profile.Status != domain.ClientStatusProspect {
			t.Fatalf("\nwanted:\n%s\ngot:\n%s", domain.ClientStatusProspect, profile.Status)
		}
		if profile.Priority != domain.PriorityMedium {
			t.Fatalf("\nwanted:\n%s\ngot:\n%s", domain.PriorityMedium, profile.Priority)
		}

		userID, err := service.VerifyAccessToken(pair.AccessToken)
		if err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}
		if userID != user.ID {
			t.Fatalf("\nwanted:\n%s\ngot:\n%s", user.ID, userID)
		}
	})

	t.Run("should uniquify the username when the local part is taken", func(t *testing.T) {
		service, _, teardown := setupTestService(t)
		defer teardown()

		registerAccount(t, service, "sophie@gmail.com", "grand-voilier-44")

		user, _, err := service.Register("sophie@orange.fr", "petit-voilier-44", "Sophie", "Durand", "")
		if err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}
		if user.Username != "sophie_1" {
			t.Fatalf("\nwanted:\nsophie_1\ngot:\n%s", user.Username)
		}
	})

	t.Run("should reject an email that already has an account", func(t *testing.T) {
		service, _, teardown := setupTestService(t)
		defer teardown()

		registerAccount(t, service, "sophie@gmail.com", "grand-voilier-44")

		_, _, err := service.Register("sophie@gmail.com", "autre-mot-de-passe", "Sophie", "Martin", "")
		if !errors.Is(err, ErrEmailTaken) {
			t.Fatalf("\nwanted:\n%v\ngot:\n%v", ErrEmailTaken, err)
		}
	})
}

func TestService_Login(t *testing.T) {
	t.Run("should issue a token pair for valid credentials", func(t *testing.T) {
		service, _, teardown := setupTestService(t)
		defer teardown()

		created, _ := registerAccount(t, service, "sophie@gmail.com", "grand-voilier-44")

		user, pair, err := service.Login("sophie@gmail.com", "grand-voilier-44")
		if err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}
		if user.ID != created.ID {
			t.Fatalf("\nwanted:\n%s\ngot:\n%s", created.ID, user.ID)
		}

		userID, err := service.VerifyAccessToken(pair.AccessToken)
		if err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}
		if userID != created.ID {
			t.Fatalf("\nwanted:\n%s\ngot:\n%s", created.ID, userID)
		}
	})

	t.Run("should reject an unknown email", func(t *testing.T) {
		service, _, teardown := setupTestService(t)
		defer teardown()

		_, _, err := service.Login("personne@digit-hab.com", "grand-voilier-44")
		if !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("\nwanted:\n%v\ngot:\n%v", ErrInvalidCredentials, err)
		}
	})

	t.Run("should lock the account on the fifth failed attempt", func(t *testing.T) {
		service, repo, teardown := setupTestService(t)
		defer teardown()

		created, _ := registerAccount(t, service, "sophie@gmail.com", "grand-voilier-44")

		for i := 0; i < domain.MaxFailedLogins-1; i++ {
			_, _, err := service.Login("sophie@gmail.com", "mauvais-mot-de-passe")
			if !errors.Is(err, ErrInvalidCredentials) {
				t.Fatalf("\nwanted:\n%v\ngot:\n%v", ErrInvalidCredentials, err)
			}
		}

		_, _, err := service.Login("sophie@gmail.com", "mauvais-mot-de-passe")
		if !errors.Is(err, ErrAccountLocked) {
			t.Fatalf("\nwanted:\n%v\ngot:\n%v", ErrAccountLocked, err)
		}

		_, _, err = service.Login("sophie@gmail.com", "grand-voilier-44")
		if !errors.Is(err, ErrAccountLocked) {
			t.Fatalf("\nwanted:\n%v\ngot:\n%v", ErrAccountLocked, err)
		}

		service.now = func() time.Time {
			return time.Now().Add(domain.LockoutDuration + time.Minute)
		}

		user, _, err := service.Login("sophie@gmail.com", "grand-voilier-44")
		if err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}
		if user.ID != created.ID {
			t.Fatalf("\nwanted:\n%s\ngot:\n%s", created.ID, user.ID)
		}

		stored, err := repo.GetUser(created.ID)
		if err != nil {
			t.Fatalf("fetching account : %v", err)
		}
		if stored.FailedLogins != 0 {
			t.Fatalf("\nwanted:\n0 failed logins after success\ngot:\n%d", stored.FailedLogins)
		}
	})

	t.Run("should reject a deactivated account", func(t *testing.T) {
		service, repo, teardown := setupTestService(t)
		defer teardown()

		created, _ := registerAccount(t, service, "sophie@gmail.com", "grand-voilier-44")
		created.Active = false
		if err := repo.UpdateUser(created); err != nil {
			t.Fatalf("deactivating test account : %v", err)
		}

		_, _, err := service.Login("sophie@gmail.com", "grand-voilier-44")
		if !errors.Is(err, ErrAccountDisabled) {
			t.Fatalf("\nwanted:\n%v\ngot:\n%v", ErrAccountDisabled, err)
		}
	})
}

func TestService_Refresh(t *testing.T) {
	t.Run("should rotate the refresh token", func(t *testing.T) {
		service, _, teardown := setupTestService(t)
		defer teardown()

		created, pair := registerAccount(t, service, "sophie@gmail.com", "grand-voilier-44")

		rotated, err := service.Refresh(pair.RefreshToken)
		if err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}
		if rotated.RefreshToken == pair.RefreshToken {
			t.Fatalf("\nwanted:\na fresh refresh token\ngot:\nthe same value")
		}

		userID, err := service.VerifyAccessToken(rotated.AccessToken)
		if err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}
		if userID != created.ID {
			t.Fatalf("\nwanted:\n%s\ngot:\n%s", created.ID, userID)
		}

		_, err = service.Refresh(pair.RefreshToken)
		if !errors.Is(err, ErrInvalidToken) {
			t.Fatalf("\nwanted:\n%v\ngot:\n%v", ErrInvalidToken, err)
		}
	})

	t.Run("should reject an unknown refresh token", func(t *testing.T) {
		service, _, teardown := setupTestService(t)
		defer teardown()

		_, err := service.Refresh("jamais-emis")
		if !errors.Is(err, ErrInvalidToken) {
			t.Fatalf("\nwanted:\n%v\ngot:\n%v", ErrInvalidToken, err)
		}
	})

	t.Run("should reject an expired refresh token", func(t *testing.T) {
		service, _, teardown := setupTestService(t)
		defer teardown()

		_, pair := registerAccount(t, service, "sophie@gmail.com", "grand-voilier-44")

		service.now = func() time.Time {
			return time.Now().Add(RefreshTokenTTL + time.Hour)
		}

		_, err := service.Refresh(pair.RefreshToken)
		if !errors.Is(err, ErrInvalidToken) {
			t.Fatalf("\nwanted:\n%v\ngot:\n%v", ErrInvalidToken, err)
		}
	})
}

func TestService_Logout(t *testing.T) {
	t.Run("should revoke the refresh token", func(t *testing.T) {
		service, _, teardown := setupTestService(t)
		defer teardown()

		_, pair := registerAccount(t, service, "sophie@gmail.com", "grand-voilier-44")

		if err := service.Logout(pair.RefreshToken); err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}

		_, err := service.Refresh(pair.RefreshToken)
		if !errors.Is(err, ErrInvalidToken) {
			t.Fatalf("\nwanted:\n%v\ngot:\n%v", ErrInvalidToken, err)
		}

		if err := service.Logout(pair.RefreshToken); err != nil {
			t.Fatalf("\nwanted:\nnil on second logout\ngot:\n%v", err)
		}
	})

	t.Run("should revoke every session of the user", func(t *testing.T) {
		service, _, teardown := setupTestService(t)
		defer teardown()

		created, first := registerAccount(t, service, "sophie@gmail.com", "grand-voilier-44")
		_, second, err := service.Login("sophie@gmail.com", "grand-voilier-44")
		if err != nil {
			t.Fatalf("creating second session : %v", err)
		}

		revoked, err := service.LogoutAll(created.ID)
		if err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}
		if revoked != 2 {
			t.Fatalf("\nwanted:\n2 revoked sessions\ngot:\n%d", revoked)
		}

		for _, pair := range []*TokenPair{first, second} {
			_, err := service.Refresh(pair.RefreshToken)
			if !errors.Is(err, ErrInvalidToken) {
				t.Fatalf("\nwanted:\n%v\ngot:\n%v", ErrInvalidToken, err)
			}
		}
	})
}

func TestService_VerifyAccessToken(t *testing.T) {
	t.Run("should reject a token signed with another secret", func(t *testing.T) {
		service, repo, teardown := setupTestService(t)
		defer teardown()

		forger := NewService(repo, repo, repo, "autre-secret")
		_, pair := registerAccount(t, forger, "sophie@gmail.com", "grand-voilier-44")

		_, err := service.VerifyAccessToken(pair.AccessToken)
		if !errors.Is(err, ErrInvalidToken) {
			t.Fatalf("\nwanted:\n%v\ngot:\n%v", ErrInvalidToken, err)
		}
	})

	t.Run("should reject an expired access token", func(t *testing.T) {
		service, _, teardown := setupTestService(t)
		defer teardown()

		_, pair := registerAccount(t, service, "sophie@gmail.com", "grand-voilier-44")

		service.now = func() time.Time {
			return time.Now().Add(AccessTokenTTL + time.Minute)
		}

		_, err := service.VerifyAccessToken(pair.AccessToken)
		if !errors.Is(err, ErrInvalidToken) {
			t.Fatalf("\nwanted:\n%v\ngot:\n%v", ErrInvalidToken, err)
		}
	})

	t.Run("should reject garbage", func(t *testing.T) {
		service, _, teardown := setupTestService(t)
		defer teardown()

		_, err := service.VerifyAccessToken("pas.un.jwt")
		if !errors.Is(err, ErrInvalidToken) {
			t.Fatalf("\nwanted:\n%v\ngot:\n%v", ErrInvalidToken, err)
		}

		_, err = service.VerifyAccessToken("")
		if !errors.Is(err, ErrInvalidToken) {
			t.Fatalf("\nwanted:\n%v\ngot:\n%v", ErrInvalidToken, err)
		}
	})
}

func TestService_CleanupTokens(t *testing.T) {
	t.Run("should delete tokens past their expiry", func(t *testing.T) {
		service, _, teardown := setupTestService(t)
		defer teardown()

		_, pair := registerAccount(t, service, "sophie@gmail.com", "grand-voilier-44")

		service.now = func() time.Time {
			return time.Now().Add(RefreshTokenTTL + time.Hour)
		}

		removed, err := service.CleanupTokens()
		if err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}
		if removed != 1 {
			t.Fatalf("\nwanted:\n1 removed token\ngot:\n%d", removed)
		}

		_, err = service.Refresh(pair.RefreshToken)
		if !errors.Is(err, ErrInvalidToken) {
			t.Fatalf("\nwanted:\n%v\ngot:\n%v", ErrInvalidToken, err)
		}
	})
}
