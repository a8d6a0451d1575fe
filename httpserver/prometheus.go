package httpserver

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PrometheusHandler returns an http.Handler for the /metrics endpoint,
// serving the default registry, where ratelimit.NewCollector registers
// unless told otherwise.
//
//	mux.Handle("/metrics", httpserver.PrometheusHandler())
func PrometheusHandler() http.Handler {
	return promhttp.Handler()
}

// PrometheusHandlerFor serves the metrics of a specific registry, such as
// one passed to ratelimit.WithRegisterer. A nil gatherer means the default.
//
//	reg := prometheus.NewRegistry()
//	collector := ratelimit.NewCollector(ratelimit.WithRegisterer(reg))
//	mux.Handle("/metrics", httpserver.PrometheusHandlerFor(reg, promhttp.HandlerOpts{}))
func PrometheusHandlerFor(gatherer prometheus.Gatherer, opts promhttp.HandlerOpts) http.Handler {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(gatherer, opts)
}
