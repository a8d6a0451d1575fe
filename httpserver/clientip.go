package httpserver

import (
	"net"
	"net/http"
	"strings"
)

// UnknownClientIP is returned by ClientIP when no address can be determined.
const UnknownClientIP = "unknown"

// ClientIP returns the caller's address as seen through proxies.
//
// Evaluation order:
//  1. the first comma-separated entry of X-Forwarded-For
//  2. X-Real-IP
//  3. the host part of RemoteAddr (RemoteAddr itself if it has no port)
//  4. "unknown"
//
// The value is not validated. Trust it only as much as the proxy in front
// of the server.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	if r.RemoteAddr != "" {
		if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil && host != "" {
			return host
		}
		return r.RemoteAddr
	}
	return UnknownClientIP
}
