package telemetry

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrSinkClosed is returned when tracking on a closed sink.
	ErrSinkClosed = errors.New("telemetry: sink closed")

	// ErrQueueFull is returned when a buffered sink drops an item.
	ErrQueueFull = errors.New("telemetry: sink queue full")
)

// Sink receives completed events for remote delivery.
//
// Implementations must not block beyond a bounded enqueue. Errors are
// logged by the caller and never affect the request.
type Sink interface {
	// Track forwards a completed request event.
	Track(ctx context.Context, e *Event) error

	// TrackException forwards an exception with request tags.
	TrackException(ctx context.Context, ex *ExceptionInfo, tags map[string]string) error
}

// LineWriter receives formatted local log lines.
type LineWriter interface {
	WriteLog(line string)
}

// Destination selects where events are dispatched.
type Destination string

const (
	DestinationLocal  Destination = "Local"
	DestinationRemote Destination = "Remote"
	DestinationBoth   Destination = "Both"
)

// ParseDestination parses Local, Remote or Both, ignoring case.
// An empty string yields DestinationBoth.
func ParseDestination(s string) (Destination, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "both":
		return DestinationBoth, nil
	case "local":
		return DestinationLocal, nil
	case "remote":
		return DestinationRemote, nil
	default:
		return "", fmt.Errorf("telemetry: unknown destination %q", s)
	}
}

// Local reports whether d includes the local log.
func (d Destination) Local() bool {
	return d == DestinationLocal || d == DestinationBoth || d == ""
}

// Remote reports whether d includes the remote sink.
func (d Destination) Remote() bool {
	return d == DestinationRemote || d == DestinationBoth || d == ""
}

// SinkFunc adapts a function to a Sink that ignores exceptions tracked separately.
type SinkFunc func(ctx context.Context, e *Event) error

// Track implements Sink.
func (f SinkFunc) Track(ctx context.Context, e *Event) error {
	return f(ctx, e)
}

// TrackException implements Sink.
func (f SinkFunc) TrackException(context.Context, *ExceptionInfo, map[string]string) error {
	return nil
}
