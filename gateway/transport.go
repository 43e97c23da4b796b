package gateway

import (
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/DIGIT-HABs/back/core"
)

// originRoundTripper forwards requests to the upstream resolved by the
// routing table. The upstream base URL replaces the request URL's scheme
// and host; path, query, and the original Host header pass through so the
// tenant applications can keep virtual-hosting on it.
type originRoundTripper struct {
	base http.RoundTripper
}

// newOriginTransport builds the pooled transport the gateway forwards
// through. Upstreams are first-party applications on the same network, so
// this is a plain http.Transport with connection reuse.
func newOriginTransport() http.RoundTripper {
	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   16,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: time.Second,
	}
	return &originRoundTripper{base: transport}
}

func (tripper *originRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	raw, ok := core.UpstreamFromContext(req.Context())
	if !ok {
		return nil, fmt.Errorf("no upstream resolved for host %s", req.Host)
	}
	upstream, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parsing upstream %q : %w", raw, err)
	}

	req.URL.Scheme = upstream.Scheme
	req.URL.Host = upstream.Host
	return tripper.base.RoundTrip(req)
}
