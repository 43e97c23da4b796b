package gateway

import (
	"fmt"
	"net"
	"net/url"
	"regexp"
	"strings"
)

// Rule maps a host pattern to an upstream base URL. Patterns come in three
// shapes: an exact hostname, a `*.` wildcard matching any subdomain, or a
// `~` prefix followed by a regular expression.
type Rule struct {
	Host     string `mapstructure:"host" yaml:"host" json:"host"`
	Upstream string `mapstructure:"upstream" yaml:"upstream" json:"upstream"`
}

type matcher func(host string) bool

type route struct {
	rule     Rule
	match    matcher
	upstream *url.URL
}

// Table is the compiled routing table. Rules are tried in order, the first
// match wins.
type Table struct {
	routes []route
}

// NewTable compiles the rules. Upstream base URLs must carry a scheme and a
// host; paths are not supported, requests pass through with their own.
func NewTable(rules []Rule) (*Table, error) {
	table := &Table{}
	for _, rule := range rules {
		upstream, err := url.Parse(rule.Upstream)
		if err != nil {
			return nil, fmt.Errorf("parsing upstream %q : %w", rule.Upstream, err)
		}
		if upstream.Scheme == "" || upstream.Host == "" {
			return nil, fmt.Errorf("upstream %q needs a scheme and a host", rule.Upstream)
		}

		match, err := compileMatcher(rule.Host)
		if err != nil {
			return nil, err
		}
		table.routes = append(table.routes, route{rule: rule, match: match, upstream: upstream})
	}
	return table, nil
}

func compileMatcher(pattern string) (matcher, error) {
	switch {
	case strings.HasPrefix(pattern, "~"):
		expression, err := regexp.Compile(strings.TrimSpace(strings.TrimPrefix(pattern, "~")))
		if err != nil {
			return nil, fmt.Errorf("compiling host pattern %q : %w", pattern, err)
		}
		return expression.MatchString, nil
	case strings.HasPrefix(pattern, "*."):
		// "*.digit-hab.com" matches every subdomain but not the apex
		suffix := strings.ToLower(pattern[1:])
		return func(host string) bool {
			return strings.HasSuffix(host, suffix)
		}, nil
	default:
		exact := strings.ToLower(pattern)
		return func(host string) bool {
			return host == exact
		}, nil
	}
}

// Resolve returns the upstream for a host, or false when no rule matches.
func (table *Table) Resolve(host string) (*url.URL, bool) {
	host = NormalizeHost(host)
	for _, route := range table.routes {
		if route.match(host) {
			return route.upstream, true
		}
	}
	return nil, false
}

// Rules returns the rules the table was compiled from, in match order.
func (table *Table) Rules() []Rule {
	rules := make([]Rule, 0, len(table.routes))
	for _, route := range table.routes {
		rules = append(rules, route.rule)
	}
	return rules
}

// NormalizeHost lowercases a hostname and strips any port and trailing dot
// so matchers always see the bare name.
func NormalizeHost(host string) string {
	if bare, _, err := net.SplitHostPort(host); err == nil {
		host = bare
	}
	return strings.ToLower(strings.TrimSuffix(host, "."))
}
