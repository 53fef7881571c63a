package httputil

import (
	"net"
	"net/http"
	"strings"
)

// GetClientIP extracts the originating client IP, preferring proxy
// headers over the socket address. X-Forwarded-For may carry a chain;
// the first entry is the client.
func GetClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
