package telemetry

import (
	"fmt"
	"net/http"
)

var errorReasons = map[int]string{
	http.StatusBadRequest:          "Bad Request - Invalid request parameters or malformed request",
	http.StatusUnauthorized:        "Unauthorized - Authentication required or failed",
	http.StatusForbidden:           "Forbidden - Access denied, insufficient permissions",
	http.StatusNotFound:            "Not Found - Resource or endpoint not found",
	http.StatusMethodNotAllowed:    "Method Not Allowed - HTTP method not supported for this endpoint",
	http.StatusRequestTimeout:      "Request Timeout - Request took too long to process",
	http.StatusConflict:            "Conflict - Resource conflict or duplicate request",
	http.StatusUnprocessableEntity: "Unprocessable Entity - Validation failed",
	http.StatusTooManyRequests:     "Too Many Requests - Rate limit exceeded",
	http.StatusInternalServerError: "Internal Server Error - Unexpected server error",
	http.StatusBadGateway:          "Bad Gateway - Invalid response from upstream server",
	http.StatusServiceUnavailable:  "Service Unavailable - Service temporarily unavailable",
	http.StatusGatewayTimeout:      "Gateway Timeout - Upstream server timeout",
}

// ErrorReason explains an error status. It returns "" for status < 400.
func ErrorReason(status int) string {
	if status < 400 {
		return ""
	}
	if reason, ok := errorReasons[status]; ok {
		return reason
	}
	text := http.StatusText(status)
	if text == "" {
		text = "Unknown Status"
	}
	return fmt.Sprintf("HTTP %d - %s", status, text)
}

// ErrorCategory classifies a status as "ClientError", "ServerError" or "".
func ErrorCategory(status int) string {
	switch {
	case status >= 500:
		return "ServerError"
	case status >= 400:
		return "ClientError"
	default:
		return ""
	}
}
