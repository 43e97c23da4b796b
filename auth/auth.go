// Package auth owns authentication: bcrypt passwords, the JWT access token
// and rotating refresh token pair, account lockout, and the Google OAuth
// login flow.
package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/DIGIT-HABs/back/domain"
)

// Token lifetimes. Access tokens are stateless JWTs; refresh tokens are
// opaque values stored hashed so they can be rotated and revoked.
const (
	AccessTokenTTL  = 60 * time.Minute
	RefreshTokenTTL = 7 * 24 * time.Hour
)

var (
	// ErrInvalidCredentials is returned when the email or password is wrong.
	ErrInvalidCredentials = errors.New("invalid email or password")
	// ErrAccountLocked is returned while a lockout is in effect.
	ErrAccountLocked = errors.New("account locked after too many failed logins")
	// ErrAccountDisabled is returned for deactivated accounts.
	ErrAccountDisabled = errors.New("account is deactivated")
	// ErrInvalidToken is returned for expired, revoked, or malformed tokens.
	ErrInvalidToken = errors.New("token is invalid, expired, or revoked")
	// ErrEmailTaken is returned when registering an email that already has an
	// account.
	ErrEmailTaken = errors.New("email already registered")
)

// Service issues and verifies credentials.
type Service struct {
	users   domain.UserRepository
	tokens  domain.TokenRepository
	clients domain.ClientRepository
	secret  []byte
	now     func() time.Time
}

// NewService creates an auth service signing tokens with the given secret.
func NewService(users domain.UserRepository, tokens domain.TokenRepository, clients domain.ClientRepository, secret string) *Service {
	return &Service{
		users:   users,
		tokens:  tokens,
		clients: clients,
		secret:  []byte(secret),
		now:     time.Now,
	}
}

// TokenPair is what a successful authentication hands the client.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// HashPassword hashes a password with bcrypt at the default cost.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hashing password : %w", err)
	}
	return string(hash), nil
}

// CheckPassword reports whether the password matches the stored hash. An
// empty hash never matches, OAuth-only accounts have no password.
func CheckPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// Register creates a client account with its profile and signs the new user
// in. The username derives from the email local part.
func (service *Service) Register(email, password, firstName, lastName, phone string) (*domain.User, *TokenPair, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	if _, err := service.users.GetUserByEmail(email); err == nil {
		return nil, nil, ErrEmailTaken
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, nil, fmt.Errorf("checking email : %w", err)
	}

	hash, err := HashPassword(password)
	if err != nil {
		return nil, nil, err
	}
	username, err := service.uniqueUsername(emailLocalPart(email))
	if err != nil {
		return nil, nil, err
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, nil, fmt.Errorf("creating user id : %w", err)
	}
	now := service.now().UTC().Truncate(time.Millisecond)

	user := &domain.User{
		ID:           id,
		Email:        email,
		Username:     username,
		PasswordHash: hash,
		FirstName:    firstName,
		LastName:     lastName,
		Phone:        phone,
		Role:         domain.RoleClient,
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := service.users.InsertUser(user); err != nil {
		return nil, nil, fmt.Errorf("creating account : %w", err)
	}

	profile := &domain.ClientProfile{
		UserID:    user.ID,
		Status:    domain.ClientStatusProspect,
		Priority:  domain.PriorityMedium,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := service.clients.InsertClientProfile(profile); err != nil {
		return nil, nil, fmt.Errorf("creating client profile : %w", err)
	}

	pair, err := service.issueTokens(user.ID)
	if err != nil {
		return nil, nil, err
	}
	return user, pair, nil
}

// Login checks the credentials and issues a token pair. The fifth
// consecutive failure locks the account for thirty minutes.
func (service *Service) Login(email, password string) (*domain.User, *TokenPair, error) {
	user, err := service.users.GetUserByEmail(strings.TrimSpace(email))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, ErrInvalidCredentials
		}
		return nil, nil, fmt.Errorf("fetching account : %w", err)
	}

	now := service.now().UTC()
	if user.IsLocked(now) {
		return nil, nil, ErrAccountLocked
	}
	if !user.Active {
		return nil, nil, ErrAccountDisabled
	}

	if !CheckPassword(user.PasswordHash, password) {
		count, err := service.users.RecordFailedLogin(user.ID)
		if err != nil {
			return nil, nil, fmt.Errorf("recording failed login : %w", err)
		}
		if count >= domain.MaxFailedLogins {
			if err := service.users.LockUser(user.ID, now.Add(domain.LockoutDuration)); err != nil {
				return nil, nil, fmt.Errorf("locking account : %w", err)
			}
			return nil, nil, ErrAccountLocked
		}
		return nil, nil, ErrInvalidCredentials
	}

	if err := service.users.ResetFailedLogins(user.ID); err != nil {
		return nil, nil, fmt.Errorf("resetting failed logins : %w", err)
	}

	pair, err := service.issueTokens(user.ID)
	if err != nil {
		return nil, nil, err
	}
	return user, pair, nil
}

// Refresh rotates a refresh token: the presented token is revoked and a
// fresh pair issued. Revoked, expired, and unknown tokens are rejected.
func (service *Service) Refresh(refreshValue string) (*TokenPair, error) {
	row, err := service.tokens.GetRefreshToken(hashToken(refreshValue))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrInvalidToken
		}
		return nil, fmt.Errorf("fetching refresh token : %w", err)
	}

	now := service.now().UTC()
	if row.Revoked || now.After(row.ExpiresAt) {
		return nil, ErrInvalidToken
	}

	if err := service.tokens.RevokeRefreshToken(row.Hash); err != nil {
		return nil, fmt.Errorf("revoking rotated token : %w", err)
	}
	return service.issueTokens(row.UserID)
}

// Logout revokes the presented refresh token. Unknown tokens are a no-op,
// logging out twice is not an error.
func (service *Service) Logout(refreshValue string) error {
	if err := service.tokens.RevokeRefreshToken(hashToken(refreshValue)); err != nil {
		return fmt.Errorf("revoking refresh token : %w", err)
	}
	return nil
}

// LogoutAll revokes every refresh token of a user, returning how many were
// revoked.
func (service *Service) LogoutAll(userID uuid.UUID) (int, error) {
	revoked, err := service.tokens.RevokeUserTokens(userID)
	if err != nil {
		return 0, fmt.Errorf("revoking user tokens : %w", err)
	}
	return revoked, nil
}

// VerifyAccessToken checks the signature and expiry of an access token and
// returns the user it was issued to.
func (service *Service) VerifyAccessToken(tokenValue string) (uuid.UUID, error) {
	parsed, err := jwt.Parse(tokenValue, func(token *jwt.Token) (any, error) {
		return service.secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}), jwt.WithTimeFunc(service.now))
	if err != nil || !parsed.Valid {
		return uuid.Nil, ErrInvalidToken
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return uuid.Nil, ErrInvalidToken
	}
	raw, ok := claims["user_id"].(string)
	if !ok {
		return uuid.Nil, ErrInvalidToken
	}
	userID, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, ErrInvalidToken
	}
	return userID, nil
}

// CleanupTokens removes refresh tokens past their expiry and returns how
// many rows went.
func (service *Service) CleanupTokens() (int, error) {
	removed, err := service.tokens.DeleteExpiredTokens(service.now().UTC())
	if err != nil {
		return 0, fmt.Errorf("deleting expired tokens : %w", err)
	}
	return removed, nil
}

func (service *Service) issueTokens(userID uuid.UUID) (*TokenPair, error) {
	now := service.now().UTC()

	claims := jwt.MapClaims{
		"user_id": userID.String(),
		"iat":     now.Unix(),
		"exp":     now.Add(AccessTokenTTL).Unix(),
	}
	access, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(service.secret)
	if err != nil {
		return nil, fmt.Errorf("signing access token : %w", err)
	}

	refreshValue, err := newRefreshValue()
	if err != nil {
		return nil, err
	}
	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("creating token id : %w", err)
	}
	row := &domain.RefreshToken{
		ID:        id,
		UserID:    userID,
		Hash:      hashToken(refreshValue),
		ExpiresAt: now.Add(RefreshTokenTTL).Truncate(time.Millisecond),
		CreatedAt: now.Truncate(time.Millisecond),
	}
	if err := service.tokens.InsertRefreshToken(row); err != nil {
		return nil, fmt.Errorf("saving refresh token : %w", err)
	}

	return &TokenPair{AccessToken: access, RefreshToken: refreshValue}, nil
}

func (service *Service) uniqueUsername(base string) (string, error) {
	username := base
	for counter := 1; ; counter++ {
		exists, err := service.users.UsernameExists(username)
		if err != nil {
			return "", fmt.Errorf("checking username %q : %w", username, err)
		}
		if !exists {
			return username, nil
		}
		username = fmt.Sprintf("%s_%d", base, counter)
	}
}

func emailLocalPart(email string) string {
	if at := strings.Index(email, "@"); at > 0 {
		return email[:at]
	}
	return email
}

func newRefreshValue() (string, error) {
	buffer := make([]byte, 32)
	if _, err := rand.Read(buffer); err != nil {
		return "", fmt.Errorf("reading randomness : %w", err)
	}
	return hex.EncodeToString(buffer), nil
}

func hashToken(value string) string {
	sum := sha256.Sum256([]byte(value))
	return hex.EncodeToString(sum[:])
}
