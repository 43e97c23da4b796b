package auth

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/DIGIT-HABs/back/domain"
)

const googleUserinfoURL = "https://www.googleapis.com/oauth2/v2/userinfo"

// GoogleFlow runs the Google OAuth login. A callback either signs in the
// existing account for the email or creates a client account on the spot.
type GoogleFlow struct {
	service     *Service
	config      *oauth2.Config
	userinfoURL string
}

// NewGoogleFlow wires the OAuth config for the given Google credentials.
func NewGoogleFlow(service *Service, clientID, clientSecret, redirectURL string) *GoogleFlow {
	return &GoogleFlow{
		service: service,
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURL,
			Scopes:       []string{"openid", "email", "profile"},
			Endpoint:     google.Endpoint,
		},
		userinfoURL: googleUserinfoURL,
	}
}

// State returns a fresh value for the OAuth state parameter.
func (flow *GoogleFlow) State() (string, error) {
	return newRefreshValue()
}

// AuthURL builds the Google consent page URL carrying the state value.
func (flow *GoogleFlow) AuthURL(state string) string {
	return flow.config.AuthCodeURL(state, oauth2.AccessTypeOnline)
}

type googleProfile struct {
	Email         string `json:"email"`
	VerifiedEmail bool   `json:"verified_email"`
	GivenName     string `json:"given_name"`
	FamilyName    string `json:"family_name"`
}

// HandleCallback exchanges the authorization code, reads the Google profile,
// and signs the matching account in, creating it first when the email is
// new. Accounts created here carry no password, they log in through Google.
func (flow *GoogleFlow) HandleCallback(ctx context.Context, code string) (*domain.User, *TokenPair, error) {
	token, err := flow.config.Exchange(ctx, code)
	if err != nil {
		return nil, nil, fmt.Errorf("exchanging authorization code : %w", err)
	}

	profile, err := flow.fetchProfile(ctx, token)
	if err != nil {
		return nil, nil, err
	}
	if !profile.VerifiedEmail {
		return nil, nil, fmt.Errorf("google account %s has an unverified email", profile.Email)
	}

	user, err := flow.service.users.GetUserByEmail(profile.Email)
	switch {
	case err == nil:
		if !user.Active {
			return nil, nil, ErrAccountDisabled
		}
	case errors.Is(err, sql.ErrNoRows):
		user, err = flow.createAccount(profile)
		if err != nil {
			return nil, nil, err
		}
	default:
		return nil, nil, fmt.Errorf("fetching account : %w", err)
	}

	pair, err := flow.service.issueTokens(user.ID)
	if err != nil {
		return nil, nil, err
	}
	return user, pair, nil
}

func (flow *GoogleFlow) fetchProfile(ctx context.Context, token *oauth2.Token) (*googleProfile, error) {
	response, err := flow.config.Client(ctx, token).Get(flow.userinfoURL)
	if err != nil {
		return nil, fmt.Errorf("fetching google profile : %w", err)
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetching google profile : status %d", response.StatusCode)
	}
	var profile googleProfile
	if err := json.NewDecoder(response.Body).Decode(&profile); err != nil {
		return nil, fmt.Errorf("decoding google profile : %w", err)
	}
	return &profile, nil
}

func (flow *GoogleFlow) createAccount(profile *googleProfile) (*domain.User, error) {
	username, err := flow.service.uniqueUsername(emailLocalPart(profile.Email))
	if err != nil {
		return nil, err
	}
	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("creating user id : %w", err)
	}
	now := flow.service.now().UTC().Truncate(time.Millisecond)

	user := &domain.User{
		ID:        id,
		Email:     profile.Email,
		Username:  username,
		FirstName: profile.GivenName,
		LastName:  profile.FamilyName,
		Role:      domain.RoleClient,
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := flow.service.users.InsertUser(user); err != nil {
		return nil, fmt.Errorf("creating account : %w", err)
	}

	clientProfile := &domain.ClientProfile{
		UserID:    user.ID,
		Status:    domain.ClientStatusProspect,
		Priority:  domain.PriorityMedium,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := flow.service.clients.InsertClientProfile(clientProfile); err != nil {
		return nil, fmt.Errorf("creating client profile : %w", err)
	}
	return user, nil
}
