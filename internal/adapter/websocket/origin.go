package websocket

import (
	"log/slog"
	"net/http"
	"net/url"
	"slices"
	"strings"
)

// originRule matches one configured origin. A host starting with "*." matches
// any subdomain of the rest, but not the bare domain.
type originRule struct {
	scheme string
	host   string
	suffix string
}

func (o originRule) matches(u *url.URL) bool {
	if u.Scheme != o.scheme {
		return false
	}
	if o.suffix != "" {
		return strings.HasSuffix(u.Host, o.suffix) && len(u.Host) > len(o.suffix)
	}
	return u.Host == o.host
}

// NewCheckOrigin returns the upgrader's CheckOrigin. Browsers on the page's
// own origin and non-browser clients (no Origin header) always pass; other
// origins must be listed in allowed. Development mode also admits localhost.
func NewCheckOrigin(allowed []string, isDevelopment bool) func(r *http.Request) bool {
	rules := make([]originRule, 0, len(allowed))
	for _, a := range allowed {
		if rule, ok := parseOriginRule(a); ok {
			rules = append(rules, rule)
		}
	}

	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}

		u, err := url.Parse(origin)
		if err != nil {
			slog.Warn("Malformed WebSocket origin", "origin", origin, "remote_addr", r.RemoteAddr)
			return false
		}
		if u.Host == r.Host {
			return true
		}
		if slices.ContainsFunc(rules, func(rule originRule) bool { return rule.matches(u) }) {
			return true
		}
		if isDevelopment && isLocalhost(u) {
			return true
		}

		slog.Warn("WebSocket origin rejected", "origin", origin, "remote_addr", r.RemoteAddr)
		return false
	}
}

// parseOriginRule reduces a configured URL to scheme and host; paths are ignored.
func parseOriginRule(raw string) (originRule, bool) {
	raw = strings.TrimSpace(raw)
	wildcard := false
	if scheme, rest, ok := strings.Cut(raw, "://*."); ok {
		raw = scheme + "://" + rest
		wildcard = true
	}

	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return originRule{}, false
	}
	if wildcard {
		return originRule{scheme: u.Scheme, suffix: "." + u.Host}, true
	}
	return originRule{scheme: u.Scheme, host: u.Host}, true
}

func isLocalhost(u *url.URL) bool {
	host := u.Hostname()
	return host == "localhost" || host == "127.0.0.1" || host == "::1"
}
