// Package httpserver provides an HTTP server guarded by per-client rate
// limiting and request telemetry, with graceful shutdown and health checks.
//
// # Quick Start
//
//	store := ratelimit.NewMemoryStore()
//	writer := filelog.New(filelog.DefaultConfig())
//
//	tcfg := httpserver.DefaultTelemetryConfig()
//	tcfg.Destination = telemetry.DestinationLocal
//	tcfg.Writer = writer
//
//	rcfg := httpserver.DefaultRateLimitConfig()
//	rcfg.Store = store
//
//	server := httpserver.New(
//	    httpserver.WithServiceName("payment-api"),
//	    httpserver.WithTelemetry(tcfg),
//	    httpserver.WithRateLimit(rcfg),
//	    httpserver.WithService("ratelimit-store", func(context.Context) error { return store.Close() }),
//	    httpserver.WithService("filelog", func(context.Context) error { return writer.Close() }),
//	    httpserver.WithHandler(mux),
//	)
//
//	if err := server.ListenAndServe(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
// # Request Pipeline
//
// Every request passes through, outermost first:
//
//	Recovery -> Tracing -> Telemetry -> RateLimit -> WithMiddleware... -> handler
//
// Recovery turns panics into a 500 JSON error. Telemetry sees every request,
// including ones RateLimit rejects and ones that panic. Paths listed in a
// middleware's ExcludedPaths bypass it entirely.
//
// # Rate Limiting
//
// RateLimit counts requests per key (client IP by default) in fixed windows
// backed by a ratelimit.Store. Each response carries X-RateLimit-Limit,
// X-RateLimit-Remaining and X-RateLimit-Reset. Rejected requests get the
// configured status (429 by default), a Retry-After header and a JSON body:
//
//	{"error":"Too Many Requests","message":"Rate limit exceeded. Please try again later.","retryAfter":42}
//
// Store failures are logged and the request is admitted.
//
// # Telemetry
//
// Telemetry builds one telemetry.Event per request: request and response
// metadata, redacted query string and headers, optional bodies, the caller's
// principal, the route, and any exception. Events go to a telemetry.Sink
// (remote), a telemetry.LineWriter such as filelog.Writer (local), or both.
// Dispatch never fails the request.
//
// Handlers enrich the event through the request-scoped telemetry.Scope:
//
//	telemetry.SetTag(r.Context(), "OrderId", id)
//	telemetry.RecordError(r.Context(), err)
//
// # Health Checks
//
//	var health *httpserver.HealthHandler
//	server := httpserver.New(
//	    httpserver.WithHealth(&health, "1.0.0"),
//	    httpserver.WithHandler(mux),
//	)
//	health.AddCheck("ratelimit-store", httpserver.StoreCheck(store))
//	mux.Handle("/health", health.Handler())
//
// # Graceful Shutdown
//
// ListenAndServe blocks until SIGTERM, SIGINT or context cancellation, then
// drains in-flight requests and closes every registered Service within
// ShutdownTimeout.
package httpserver
