package httpserver

import (
	"log/slog"
	"net/http"
	"net/url"
	"slices"
)

// newCheckOrigin allows requests without an Origin header (non-browser
// clients), the server's own host, and any origin in allowed. In
// development, localhost origins are allowed as well.
func newCheckOrigin(allowed []string, isDevelopment bool) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}

		u, err := url.Parse(origin)
		if err != nil || u.Host == "" {
			slog.Warn("WebSocket origin malformed", "origin", origin, "remote_addr", r.RemoteAddr)
			return false
		}

		if u.Host == r.Host {
			return true
		}
		if slices.Contains(allowed, u.Scheme+"://"+u.Host) {
			return true
		}
		if isDevelopment && isLocalhost(u) {
			return true
		}

		slog.Warn("WebSocket origin rejected", "origin", origin, "remote_addr", r.RemoteAddr)
		return false
	}
}

func isLocalhost(u *url.URL) bool {
	host := u.Hostname()
	return host == "localhost" || host == "127.0.0.1" || host == "::1"
}
