// Package telemetry holds the per-request event model and the pieces that
// build and ship it: redaction of sensitive values, exception capture,
// status-code error reasons, the local log line format, the request scope
// that inner handlers report into, and remote sinks.
//
// The HTTP middleware that fills an Event lives in the httpserver package;
// this package has no dependency on any router.
package telemetry
