// Package filelog writes telemetry lines to local rotating log files.
//
// A Writer appends one timestamped line per call and serializes all
// writes behind its own mutex, so lines land in the file in the order
// they were submitted. Three naming modes are supported:
//
//   - daily:     telemetry-2024-01-15.log (a new file per UTC day)
//   - sequenced: telemetry-001.log, telemetry-002.log, ... (rotated by size)
//   - single:    telemetry.log
//
// Write failures are logged and swallowed; a broken disk must never
// fail the request that produced the line.
package filelog
