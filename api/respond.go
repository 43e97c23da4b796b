package api

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/DIGIT-HABs/back/auth"
	"github.com/DIGIT-HABs/back/domain"
	"github.com/DIGIT-HABs/back/payments"
)

// Pagination defaults for list endpoints.
const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// respond writes a JSON body with the given status.
func respond(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)

	err := json.NewEncoder(w).Encode(body)
	if err != nil {
		log.Printf("warning: encoding response: %v", err)
	}
}

// fail writes the error envelope every endpoint shares.
func fail(w http.ResponseWriter, status int, message string) {
	respond(w, status, map[string]string{"error": message})
}

// failFrom maps service and storage errors onto HTTP statuses: missing rows
// to 404, domain rule violations to 422, credential problems to 401. Unmapped
// errors answer 500 with a generic message and the cause goes to the log.
func failFrom(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, sql.ErrNoRows), errors.Is(err, domain.ErrNoProfileForUser):
		fail(w, http.StatusNotFound, "not found")
	case errors.Is(err, auth.ErrInvalidCredentials), errors.Is(err, auth.ErrInvalidToken):
		fail(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, auth.ErrAccountLocked), errors.Is(err, auth.ErrAccountDisabled):
		fail(w, http.StatusForbidden, err.Error())
	case errors.Is(err, auth.ErrEmailTaken),
		errors.Is(err, payments.ErrNoDeposit),
		errors.Is(err, payments.ErrNotApproved),
		errors.Is(err, payments.ErrNotRefundable),
		errors.Is(err, payments.ErrInvalidTransition):
		fail(w, http.StatusUnprocessableEntity, err.Error())
	default:
		log.Printf("warning: request failed: %v", err)
		fail(w, http.StatusInternalServerError, "internal error")
	}
}

// decode reads a JSON request body into target. The body is capped at 1 MiB
// and unknown fields are rejected so typos surface as 422s instead of being
// silently dropped.
func decode(r *http.Request, target any) error {
	decoder := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<20))
	decoder.DisallowUnknownFields()

	err := decoder.Decode(target)
	if err != nil {
		return err
	}
	return nil
}

// badBody answers a request whose body could not be decoded.
func badBody(w http.ResponseWriter, err error) {
	fail(w, http.StatusUnprocessableEntity, "invalid request body: "+err.Error())
}

// pathID parses a UUID route parameter.
func pathID(r *http.Request, name string) (uuid.UUID, error) {
	return uuid.Parse(chi.URLParam(r, name))
}

// queryUUID parses an optional UUID query parameter, nil when absent.
func queryUUID(r *http.Request, name string) (*uuid.UUID, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, nil
	}

	parsed, err := uuid.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parsing %s : %w", name, err)
	}
	return &parsed, nil
}

// queryInt parses an optional integer query parameter, zero when absent or
// malformed.
func queryInt(r *http.Request, name string) int {
	parsed, err := strconv.Atoi(r.URL.Query().Get(name))
	if err != nil {
		return 0
	}
	return parsed
}

// queryTime parses an optional time query parameter, accepting RFC 3339 or
// a plain date. Absent parameters return the zero time.
func queryTime(r *http.Request, name string) (time.Time, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return time.Time{}, nil
	}

	if parsed, err := time.Parse(time.RFC3339, raw); err == nil {
		return parsed, nil
	}
	parsed, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing %s : %w", name, err)
	}
	return parsed, nil
}

// pageParams reads `page` and `page_size` query parameters into a
// limit/offset pair. Pages are one-based.
func pageParams(r *http.Request) (limit, offset int) {
	limit = DefaultPageSize
	if raw := r.URL.Query().Get("page_size"); raw != "" {
		if size, err := strconv.Atoi(raw); err == nil && size > 0 {
			limit = size
			if limit > MaxPageSize {
				limit = MaxPageSize
			}
		}
	}

	page := 1
	if raw := r.URL.Query().Get("page"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			page = parsed
		}
	}

	return limit, (page - 1) * limit
}

// listing is the envelope list endpoints answer with.
type listing struct {
	Total   int `json:"total"`
	Results any `json:"results"`
}

// paginate slices a full result set down to the requested page and wraps it
// in the list envelope.
func paginate[T any](items []T, limit, offset int) listing {
	total := len(items)

	if offset >= total {
		return listing{Total: total, Results: []T{}}
	}

	end := offset + limit
	if end > total {
		end = total
	}
	return listing{Total: total, Results: items[offset:end]}
}
