package httpserver

import "net/http"

// KeyFunc extracts the rate limiting key from a request.
//
// Requests with the same key share one quota per window. An empty key
// skips rate limiting for that request.
//
// Per-client quota (the default):
//
//	cfg := httpserver.DefaultRateLimitConfig()
//	cfg.KeyFunc = httpserver.KeyFuncByIP()
//
// Per-client per-endpoint quota:
//
//	cfg := httpserver.DefaultRateLimitConfig()
//	cfg.PermitLimit = 10
//	cfg.KeyFunc = httpserver.KeyFuncByIPAndPath()
type KeyFunc func(r *http.Request) string

// KeyFuncByIP keys requests by ClientIP.
func KeyFuncByIP() KeyFunc {
	return ClientIP
}

// KeyFuncByIPAndPath keys requests by ClientIP and URL path, so
// 1.2.3.4 calling /api/users and /api/orders has two quotas.
func KeyFuncByIPAndPath() KeyFunc {
	return func(r *http.Request) string {
		return ClientIP(r) + ":" + r.URL.Path
	}
}

// KeyFuncByClientID keys requests by the client authenticated with ServiceAuth.
//
// Must run after ServiceAuth. Unauthenticated requests yield an empty key
// and are not limited.
func KeyFuncByClientID() KeyFunc {
	return func(r *http.Request) string {
		return ClientIDFromContext(r.Context())
	}
}

// KeyFuncByHeader keys requests by a header value, such as a tenant ID.
func KeyFuncByHeader(header string) KeyFunc {
	return func(r *http.Request) string {
		return r.Header.Get(header)
	}
}
