package httpserver

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/kroma-labs/sentinel-guard/telemetry"
)

// RouteParams returns chi middleware that reports the matched route pattern
// and URL parameters to the request's telemetry scope.
//
// chi resolves the route while dispatching, so the values are read once the
// handler returns.
//
// Example:
//
//	r := chi.NewRouter()
//	r.Use(httpserver.RouteParams())
//	r.Get("/orders/{id}", getOrder)
func RouteParams() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r)

			rctx := chi.RouteContext(r.Context())
			if rctx == nil {
				return
			}

			var values map[string]string
			if n := len(rctx.URLParams.Keys); n > 0 {
				values = make(map[string]string, n)
				for i, key := range rctx.URLParams.Keys {
					if key == "*" || i >= len(rctx.URLParams.Values) {
						continue
					}
					values[key] = rctx.URLParams.Values[i]
				}
			}
			telemetry.SetRoute(r.Context(), rctx.RoutePattern(), values)
		})
	}
}
