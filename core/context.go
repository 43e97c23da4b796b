package core

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
)

type contextKey string

const (
	// RequestIDKey is the context key for the request ID (uuid.UUID). The same ID is shared between the request and response
	RequestIDKey contextKey = "RequestID"
	// RequestTimeKey is the context key for the request timestamp (time.Time)
	RequestTimeKey contextKey = "RequestTime"
	// ResponseTimeKey is the context key for the response timestamp (time.Time)
	ResponseTimeKey contextKey = "ResponseTime"
	// UpstreamKey is the context key for the resolved upstream base URL (string) the request is routed to
	UpstreamKey contextKey = "Upstream"
	// TenantKey is the context key for the matched tenant hostname (string)
	TenantKey contextKey = "Tenant"
)

// ContextWithRequestID returns a new request with a request ID in the context
func ContextWithRequestID(req *http.Request, requestId uuid.UUID) *http.Request {
	ctx := context.WithValue(req.Context(), RequestIDKey, requestId)
	return req.WithContext(ctx)
}

// RequestIDFromContext returns the request ID from the context if it exists
func RequestIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	id, ok := ctx.Value(RequestIDKey).(uuid.UUID)
	return id, ok
}

// ContextWithRequestTime returns a new request with the request time in the context
func ContextWithRequestTime(req *http.Request, requestTime time.Time) *http.Request {
	ctx := context.WithValue(req.Context(), RequestTimeKey, requestTime)
	return req.WithContext(ctx)
}

// RequestTimeFromContext returns the request time from the context if it exists
func RequestTimeFromContext(ctx context.Context) (time.Time, bool) {
	timestamp, ok := ctx.Value(RequestTimeKey).(time.Time)
	return timestamp, ok
}

// ContextWithResponseTime returns a new request with the response time in the context
func ContextWithResponseTime(req *http.Request, responseTime time.Time) *http.Request {
	ctx := context.WithValue(req.Context(), ResponseTimeKey, responseTime)
	return req.WithContext(ctx)
}

// ResponseTimeFromContext returns the response time from the context if it exists
func ResponseTimeFromContext(ctx context.Context) (time.Time, bool) {
	timestamp, ok := ctx.Value(ResponseTimeKey).(time.Time)
	return timestamp, ok
}

// ContextWithUpstream returns a new request with the resolved upstream in the context
func ContextWithUpstream(req *http.Request, upstream string) *http.Request {
	ctx := context.WithValue(req.Context(), UpstreamKey, upstream)
	return req.WithContext(ctx)
}

// UpstreamFromContext returns the resolved upstream from the context if it exists
func UpstreamFromContext(ctx context.Context) (string, bool) {
	upstream, ok := ctx.Value(UpstreamKey).(string)
	return upstream, ok
}

// ContextWithTenant returns a new request with the matched tenant hostname in the context
func ContextWithTenant(req *http.Request, tenant string) *http.Request {
	ctx := context.WithValue(req.Context(), TenantKey, tenant)
	return req.WithContext(ctx)
}

// TenantFromContext returns the matched tenant hostname from the context if it exists
func TenantFromContext(ctx context.Context) (string, bool) {
	tenant, ok := ctx.Value(TenantKey).(string)
	return tenant, ok
}
