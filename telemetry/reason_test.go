package telemetry_test

import (
	"testing"

	"github.com/kroma-labs/sentinel-guard/telemetry"
	"github.com/stretchr/testify/assert"
)

func TestErrorReason(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		status   int
		want     string
		category string
	}{
		{name: "given 200, when explaining, then empty", status: 200, want: "", category: ""},
		{name: "given 302, when explaining, then empty", status: 302, want: "", category: ""},
		{name: "given 400, when explaining, then table entry", status: 400, want: "Bad Request - Invalid request parameters or malformed request", category: "ClientError"},
		{name: "given 429, when explaining, then table entry", status: 429, want: "Too Many Requests - Rate limit exceeded", category: "ClientError"},
		{name: "given 500, when explaining, then table entry", status: 500, want: "Internal Server Error - Unexpected server error", category: "ServerError"},
		{name: "given 504, when explaining, then table entry", status: 504, want: "Gateway Timeout - Upstream server timeout", category: "ServerError"},
		{name: "given 418, when explaining, then generic fallback", status: 418, want: "HTTP 418 - I'm a teapot", category: "ClientError"},
		{name: "given unknown 599, when explaining, then unknown status", status: 599, want: "HTTP 599 - Unknown Status", category: "ServerError"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tt.want, telemetry.ErrorReason(tt.status))
			assert.Equal(t, tt.category, telemetry.ErrorCategory(tt.status))
		})
	}
}
