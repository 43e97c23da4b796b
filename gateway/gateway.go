// Package gateway fronts the tenant applications with a host-routing
// reverse proxy built on martian. Requests arrive on one port, TLS or
// plaintext, and are matched against the routing table by Host header. The
// request pipeline stamps forwarded headers, the round tripper rewrites the
// URL to the resolved upstream, and the response pipeline adds security
// headers and writes the access log. Hosts with no rule are refused.
package gateway

import (
	"bytes"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/martian"
	"github.com/google/martian/fifo"
	"github.com/google/uuid"

	"github.com/DIGIT-HABs/back/core"
	"github.com/DIGIT-HABs/back/listener"
)

var (
	// ErrSkipPipeline is returned to stop the modifier pipeline for a
	// request or response. The exchange still completes, later modifiers
	// just never see it.
	ErrSkipPipeline = errors.New("stop processing item")

	// ErrUnknownHost is returned when no routing rule matches the Host
	// header. The round trip is skipped and the client gets a refusal.
	ErrUnknownHost = errors.New("no application for this host")
)

// Proxy is the tenant gateway. It wraps a martian proxy with the routing
// table, the modifier pipeline, and the TLS termination config.
type Proxy struct {
	martianProxy *martian.Proxy
	modifiers    *fifo.Group
	table        *Table
	TLSConfig    *tls.Config
	Addr         string
	Port         string
	logf         func(format string, args ...any)
}

// New builds a gateway for the given routing table and applies options.
// The default pipeline is routing and forwarded headers on requests,
// refusals, security headers and the access log on responses.
func New(table *Table, options ...func(*Proxy) error) (*Proxy, error) {
	if table == nil || len(table.routes) == 0 {
		return nil, errors.New("routing table is empty")
	}
	proxy := &Proxy{
		martianProxy: martian.NewProxy(),
		modifiers:    fifo.NewGroup(),
		table:        table,
		logf:         log.Printf,
	}

	proxy.AddRequestModifier(SetupRequestModifier)
	proxy.AddRequestModifier(RouteRequestModifier)
	proxy.AddRequestModifier(ForwardedHeadersModifier)
	proxy.AddResponseModifier(RefusalResponseModifier)
	proxy.AddResponseModifier(SecurityHeadersModifier)
	proxy.AddResponseModifier(AccessLogModifier)

	proxy.martianProxy.SetRequestModifier(proxy.modifiers)
	proxy.martianProxy.SetResponseModifier(proxy.modifiers)
	proxy.martianProxy.SetRoundTripper(newOriginTransport())

	if err := proxy.WithOptions(options...); err != nil {
		return nil, err
	}
	return proxy, nil
}

// WithOptions applies a series of configuration functions to the gateway.
func (proxy *Proxy) WithOptions(options ...func(*Proxy) error) error {
	for _, option := range options {
		err := option(proxy)
		if err != nil {
			return fmt.Errorf("applying option on gateway : %w", err)
		}
	}
	return nil
}

// WithTLSConfig sets the TLS termination config used by GetListener.
func WithTLSConfig(tlsConfig *tls.Config) func(*Proxy) error {
	return func(proxy *Proxy) error {
		proxy.TLSConfig = tlsConfig
		return nil
	}
}

// WithAccessLog redirects the access log lines, one call per exchange.
func WithAccessLog(logf func(format string, args ...any)) func(*Proxy) error {
	return func(proxy *Proxy) error {
		if logf == nil {
			return errors.New("access log function is nil")
		}
		proxy.logf = logf
		return nil
	}
}

// AddRequestModifier appends a request modifier to the pipeline.
func (proxy *Proxy) AddRequestModifier(modifier RequestModifierFunc) {
	adapter := &reqAdapter{proxy: proxy, modifier: modifier}
	proxy.modifiers.AddRequestModifier(adapter)
}

// AddResponseModifier appends a response modifier to the pipeline.
func (proxy *Proxy) AddResponseModifier(modifier ResponseModifierFunc) {
	adapter := &resAdapter{proxy: proxy, modifier: modifier}
	proxy.modifiers.AddResponseModifier(adapter)
}

// GetListener opens the serving socket. With a TLS config the protocol mux
// listener terminates TLS by SNI and still serves plaintext on the same
// port; without one the gateway is plaintext only.
func (proxy *Proxy) GetListener(address string, port string) (net.Listener, error) {
	rawListener, err := net.Listen("tcp", net.JoinHostPort(address, port))
	if err != nil {
		return nil, fmt.Errorf("setting up listener on %s:%s : %w", address, port, err)
	}
	proxy.Addr = address
	proxy.Port = port

	if proxy.TLSConfig == nil {
		return listener.NewResilientListener(rawListener), nil
	}
	muxListener := listener.NewProtocolMuxListener(rawListener, proxy.TLSConfig)
	return listener.NewResilientListener(muxListener), nil
}

// Serve runs the proxy loop until the listener closes.
func (proxy *Proxy) Serve(servingListener net.Listener) error {
	return proxy.martianProxy.Serve(servingListener)
}

// Close shuts the proxy down.
func (proxy *Proxy) Close() {
	proxy.martianProxy.Close()
}

// RequestModifierFunc is the signature for request modifiers, taking the
// gateway alongside the request.
type RequestModifierFunc func(proxy *Proxy, req *http.Request) error

// ResponseModifierFunc is the signature for response modifiers, taking the
// gateway alongside the response.
type ResponseModifierFunc func(proxy *Proxy, res *http.Response) error

// reqAdapter adapts a RequestModifierFunc to the martian.RequestModifier
// interface while keeping access to the gateway.
type reqAdapter struct {
	proxy    *Proxy
	modifier RequestModifierFunc
}

func (adapter *reqAdapter) ModifyRequest(req *http.Request) error {
	return adapter.modifier(adapter.proxy, req)
}

// resAdapter adapts a ResponseModifierFunc to the martian.ResponseModifier
// interface while keeping access to the gateway.
type resAdapter struct {
	proxy    *Proxy
	modifier ResponseModifierFunc
}

func (adapter *resAdapter) ModifyResponse(res *http.Response) error {
	return adapter.modifier(adapter.proxy, res)
}

// SetupRequestModifier stamps the request ID and arrival time into the
// context, and sets X-Request-Id when the client did not send one so
// upstream logs can correlate with the access log.
func SetupRequestModifier(proxy *Proxy, req *http.Request) error {
	*req = *core.ContextWithRequestTime(req, time.Now())
	id, err := uuid.NewV7()
	if err != nil {
		return fmt.Errorf("generating uuid for request : %w", err)
	}
	*req = *core.ContextWithRequestID(req, id)

	if req.Header.Get("X-Request-Id") == "" {
		req.Header.Set("X-Request-Id", id.String())
	}
	return nil
}

// RouteRequestModifier resolves the Host header against the routing table.
// The matched tenant and upstream go into the context for the round
// tripper; unknown hosts skip the round trip and are refused.
func RouteRequestModifier(proxy *Proxy, req *http.Request) error {
	host := NormalizeHost(req.Host)
	upstream, ok := proxy.table.Resolve(host)
	if !ok {
		martian.NewContext(req).SkipRoundTrip()
		return fmt.Errorf("routing host %q : %w", host, ErrUnknownHost)
	}

	*req = *core.ContextWithTenant(req, host)
	*req = *core.ContextWithUpstream(req, upstream.String())
	return nil
}

// ForwardedHeadersModifier stamps X-Forwarded-For, X-Forwarded-Proto, and
// X-Forwarded-Host before the request leaves for the upstream.
func ForwardedHeadersModifier(proxy *Proxy, req *http.Request) error {
	clientIP := req.RemoteAddr
	if host, _, err := net.SplitHostPort(req.RemoteAddr); err == nil {
		clientIP = host
	}
	if prior := req.Header.Get("X-Forwarded-For"); prior != "" {
		req.Header.Set("X-Forwarded-For", prior+", "+clientIP)
	} else {
		req.Header.Set("X-Forwarded-For", clientIP)
	}

	proto := "http"
	if req.TLS != nil {
		proto = "https"
	}
	req.Header.Set("X-Forwarded-Proto", proto)
	req.Header.Set("X-Forwarded-Host", req.Host)
	return nil
}

// RefusalResponseModifier turns the placeholder response of a skipped round
// trip into a refusal the client can read.
func RefusalResponseModifier(proxy *Proxy, res *http.Response) error {
	if !martian.NewContext(res.Request).SkippingRoundTrip() {
		return nil
	}

	body := []byte("no application is configured for this host\n")
	res.StatusCode = http.StatusMisdirectedRequest
	res.Status = fmt.Sprintf("%d %s", http.StatusMisdirectedRequest, http.StatusText(http.StatusMisdirectedRequest))
	res.Body = io.NopCloser(bytes.NewReader(body))
	res.ContentLength = int64(len(body))
	res.Header.Set("Content-Length", strconv.Itoa(len(body)))
	res.Header.Set("Content-Type", "text/plain; charset=utf-8")
	return nil
}

// SecurityHeadersModifier adds the headers the ops Nginx config used to
// stamp. Strict-Transport-Security only goes out over TLS.
func SecurityHeadersModifier(proxy *Proxy, res *http.Response) error {
	res.Header.Set("X-Content-Type-Options", "nosniff")
	res.Header.Set("X-Frame-Options", "SAMEORIGIN")
	res.Header.Set("Referrer-Policy", "strict-origin-when-cross-origin")
	if res.Request.TLS != nil {
		res.Header.Set("Strict-Transport-Security", "max-age=31536000")
	}
	return nil
}

// AccessLogModifier writes one line per exchange: method, host, path,
// status, content type, duration. Responses without a Content-Type header
// are sniffed.
func AccessLogModifier(proxy *Proxy, res *http.Response) error {
	res.Request = core.ContextWithResponseTime(res.Request, time.Now())

	contentType := res.Header.Get("Content-Type")
	if contentType == "" {
		sniffed, err := sniffContentType(res)
		if err != nil {
			log.Printf("warning: sniffing content type: %v, using octet-stream", err)
			sniffed = "application/octet-stream"
		}
		contentType = sniffed
	}

	duration := time.Duration(0)
	if requestTime, ok := core.RequestTimeFromContext(res.Request.Context()); ok {
		if responseTime, ok := core.ResponseTimeFromContext(res.Request.Context()); ok {
			duration = responseTime.Sub(requestTime)
		}
	}

	proxy.logf("%s %s%s %d %s %s",
		res.Request.Method,
		res.Request.Host,
		res.Request.URL.RequestURI(),
		res.StatusCode,
		contentType,
		duration.Round(time.Millisecond),
	)
	return nil
}

// sniffContentType buffers the body to detect its media type, then puts the
// bytes back so the client still receives them.
func sniffContentType(res *http.Response) (string, error) {
	if res.Body == nil {
		return "application/octet-stream", nil
	}
	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return "", fmt.Errorf("reading body for content sniffing : %w", err)
	}
	res.Body = io.NopCloser(bytes.NewReader(body))
	res.ContentLength = int64(len(body))

	if len(body) == 0 {
		return "application/octet-stream", nil
	}
	return mimetype.Detect(body).String(), nil
}
