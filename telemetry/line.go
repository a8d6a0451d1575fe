package telemetry

import (
	"strconv"
	"strings"
	"time"
)

// TimestampLayout is the layout of timestamps in local log lines.
const TimestampLayout = "2006-01-02 15:04:05.000"

// FormatLine renders e as a single pipe-delimited line for the local log.
//
// Optional fields (request body, user, controller, exception, error reason)
// are omitted when empty. Exception location fields are only written when
// the exception carries a stack trace.
func FormatLine(e *Event) string {
	var b strings.Builder
	b.Grow(256)

	field(&b, "Method", e.Method)
	field(&b, "Path", e.Path)
	field(&b, "QueryString", e.QueryString)
	if e.RequestBody != "" {
		field(&b, "RequestBody", e.RequestBody)
	}
	field(&b, "StatusCode", strconv.Itoa(e.StatusCode))
	field(&b, "RequestTimestamp", e.RequestTimestamp.UTC().Format(TimestampLayout))
	field(&b, "ResponseTimestamp", e.ResponseTimestamp.UTC().Format(TimestampLayout))
	field(&b, "TotalDuration", strconv.FormatFloat(e.DurationMs, 'f', 3, 64)+"ms")
	field(&b, "ClientIP", e.ClientIP)
	field(&b, "CorrelationId", e.CorrelationID)

	if u := e.User; u != nil && u.IsAuthenticated {
		name := u.UserName
		if name == "" {
			name = "Anonymous"
		}
		field(&b, "UserName", name)
		if u.UserID != "" {
			field(&b, "UserId", u.UserID)
		}
		if u.TenantID != "" {
			field(&b, "TenantId", u.TenantID)
		}
	}

	if e.Controller != "" {
		field(&b, "Controller", e.Controller)
	}
	if e.Action != "" {
		field(&b, "Action", e.Action)
	}

	if ex := e.Exception; ex != nil {
		field(&b, "ExceptionType", ex.Type)
		field(&b, "ExceptionMessage", ex.Message)
		if ex.StackTrace != "" {
			field(&b, "ExceptionLineNumber", strconv.Itoa(ex.LineNumber))
			field(&b, "ExceptionFileName", ex.FileName)
		}
	}

	if e.ErrorReason != "" {
		field(&b, "ErrorReason", e.ErrorReason)
	}

	return b.String()
}

func field(b *strings.Builder, name, value string) {
	if b.Len() > 0 {
		b.WriteString(" | ")
	}
	b.WriteString(name)
	b.WriteString(": ")
	b.WriteString(value)
}

// DurationMillis converts d to fractional milliseconds.
func DurationMillis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
