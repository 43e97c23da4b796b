package api

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/DIGIT-HABs/back/domain"
)

type contextKey int

// userKey carries the authenticated *domain.User through the request.
const userKey contextKey = iota

// authenticate verifies the bearer token and loads the account behind it
// into the request context. Deactivated accounts are rejected even with a
// valid token.
func (server *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		const prefix = "Bearer "

		header := r.Header.Get("Authorization")
		if !strings.HasPrefix(header, prefix) {
			fail(w, http.StatusUnauthorized, "missing bearer token")
			return
		}

		userID, err := server.auth.VerifyAccessToken(strings.TrimPrefix(header, prefix))
		if err != nil {
			fail(w, http.StatusUnauthorized, "token is invalid, expired, or revoked")
			return
		}

		user, err := server.repo.GetUser(userID)
		if err != nil {
			fail(w, http.StatusUnauthorized, "account not found")
			return
		}
		if !user.Active {
			fail(w, http.StatusForbidden, "account is deactivated")
			return
		}

		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userKey, user)))
	})
}

// currentUser returns the authenticated account, nil outside the
// authenticated router group.
func currentUser(r *http.Request) *domain.User {
	user, _ := r.Context().Value(userKey).(*domain.User)
	return user
}

// requireRole gates a route group to the given roles.
func (server *Server) requireRole(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user := currentUser(r)
			if user == nil {
				fail(w, http.StatusUnauthorized, "missing bearer token")
				return
			}

			for _, role := range roles {
				if user.Role == role {
					next.ServeHTTP(w, r)
					return
				}
			}

			fail(w, http.StatusForbidden, "insufficient role")
		})
	}
}

// scopeAgency resolves the agency filter for list endpoints. Admins see
// everything and may narrow with ?agency_id=; everyone else is pinned to
// their own agency.
func scopeAgency(r *http.Request) (*uuid.UUID, error) {
	user := currentUser(r)
	if user.Role != domain.RoleAdmin {
		return user.AgencyID, nil
	}

	raw := r.URL.Query().Get("agency_id")
	if raw == "" {
		return nil, nil
	}

	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, err
	}
	return &id, nil
}

// measure records request counts and latency per route pattern.
func (server *Server) measure(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		wrapped := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(wrapped, r)

		route := chi.RouteContext(r.Context()).RoutePattern()
		if route == "" {
			route = "unmatched"
		}

		server.requests.WithLabelValues(r.Method, route, strconv.Itoa(wrapped.Status())).Inc()
		server.latency.WithLabelValues(r.Method, route).Observe(time.Since(started).Seconds())
	})
}
