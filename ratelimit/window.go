package ratelimit

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidWindow is returned when a window is not a positive whole number of seconds.
var ErrInvalidWindow = errors.New("ratelimit: window must be a positive whole number of seconds")

// ValidateWindow checks that w can be used as a window length.
func ValidateWindow(w time.Duration) error {
	if w < time.Second || w%time.Second != 0 {
		return fmt.Errorf("%w: %s", ErrInvalidWindow, w)
	}
	return nil
}

// WindowStart returns the start of the window of length w that contains now.
//
// The result is epoch + w*floor((now-epoch)/w) in UTC. A call at exactly
// WindowStart(now, w)+w returns the next window. w must satisfy ValidateWindow.
func WindowStart(now time.Time, w time.Duration) time.Time {
	secs := int64(w / time.Second)
	if secs <= 0 {
		secs = 1
	}

	// Unix() floors toward negative infinity, so only the division needs care.
	unix := now.Unix()
	q := unix / secs
	if unix%secs != 0 && unix < 0 {
		q--
	}
	return time.Unix(q*secs, 0).UTC()
}

// WindowEnd returns the exclusive end of the window starting at start.
func WindowEnd(start time.Time, w time.Duration) time.Time {
	return start.Add(w)
}
