package api

import (
	"net/http"
	"strings"

	"github.com/DIGIT-HABs/back/auth"
)

// stateCookie carries the OAuth state between the redirect and the callback.
const stateCookie = "digithab_oauth_state"

// sessionView is the body register, login, and the OAuth callback answer
// with: the signed-in account and its token pair.
type sessionView struct {
	User   userView        `json:"user"`
	Tokens *auth.TokenPair `json:"tokens"`
}

func (server *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Email     string `json:"email"`
		Password  string `json:"password"`
		FirstName string `json:"first_name"`
		LastName  string `json:"last_name"`
		Phone     string `json:"phone"`
	}
	if err := decode(r, &payload); err != nil {
		badBody(w, err)
		return
	}
	if strings.TrimSpace(payload.Email) == "" || payload.Password == "" {
		fail(w, http.StatusUnprocessableEntity, "email and password are required")
		return
	}

	user, tokens, err := server.auth.Register(payload.Email, payload.Password, payload.FirstName, payload.LastName, payload.Phone)
	if err != nil {
		failFrom(w, err)
		return
	}

	respond(w, http.StatusCreated, sessionView{User: viewUser(user), Tokens: tokens})
}

func (server *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := decode(r, &payload); err != nil {
		badBody(w, err)
		return
	}

	user, tokens, err := server.auth.Login(payload.Email, payload.Password)
	if err != nil {
		failFrom(w, err)
		return
	}

	respond(w, http.StatusOK, sessionView{User: viewUser(user), Tokens: tokens})
}

func (server *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := decode(r, &payload); err != nil {
		badBody(w, err)
		return
	}

	tokens, err := server.auth.Refresh(payload.RefreshToken)
	if err != nil {
		failFrom(w, err)
		return
	}

	respond(w, http.StatusOK, tokens)
}

// handleLogout revokes the presented refresh token, or every session of the
// account when ?all=true.
func (server *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("all") == "true" {
		revoked, err := server.auth.LogoutAll(currentUser(r).ID)
		if err != nil {
			failFrom(w, err)
			return
		}
		respond(w, http.StatusOK, map[string]int{"revoked": revoked})
		return
	}

	var payload struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := decode(r, &payload); err != nil {
		badBody(w, err)
		return
	}

	if err := server.auth.Logout(payload.RefreshToken); err != nil {
		failFrom(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (server *Server) handleCurrentUser(w http.ResponseWriter, r *http.Request) {
	respond(w, http.StatusOK, viewUser(currentUser(r)))
}

// handleGoogleStart plants the state cookie and redirects to Google's
// consent screen.
func (server *Server) handleGoogleStart(w http.ResponseWriter, r *http.Request) {
	if server.google == nil {
		fail(w, http.StatusServiceUnavailable, "google sign-in is not configured")
		return
	}

	state, err := server.google.State()
	if err != nil {
		failFrom(w, err)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     stateCookie,
		Value:    state,
		Path:     "/api/v1/auth",
		MaxAge:   600,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, server.google.AuthURL(state), http.StatusFound)
}

// handleGoogleCallback checks the state round-trip, exchanges the code, and
// signs the account in.
func (server *Server) handleGoogleCallback(w http.ResponseWriter, r *http.Request) {
	if server.google == nil {
		fail(w, http.StatusServiceUnavailable, "google sign-in is not configured")
		return
	}

	cookie, err := r.Cookie(stateCookie)
	if err != nil || cookie.Value == "" || cookie.Value != r.URL.Query().Get("state") {
		fail(w, http.StatusUnauthorized, "oauth state mismatch")
		return
	}
	http.SetCookie(w, &http.Cookie{Name: stateCookie, Path: "/api/v1/auth", MaxAge: -1})

	code := r.URL.Query().Get("code")
	if code == "" {
		fail(w, http.StatusBadRequest, "missing authorization code")
		return
	}

	user, tokens, err := server.google.HandleCallback(r.Context(), code)
	if err != nil {
		failFrom(w, err)
		return
	}

	respond(w, http.StatusOK, sessionView{User: viewUser(user), Tokens: tokens})
}
