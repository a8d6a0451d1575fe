package httpserver

import (
	"net/http"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog/log"
)

// Response is the envelope for JSON responses written by this package:
// health results, authentication failures and recovered panics.
//
//	{"errors":[{"field":"auth","message":"invalid credentials"}],"message":"unauthorized"}
type Response[T any] struct {
	Data    T       `json:"data,omitempty"`
	Errors  []Error `json:"errors,omitempty"`
	Message string  `json:"message,omitempty"`
}

// Error represents a single field-level error.
type Error struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// WriteJSON writes response as JSON with the given status code.
//
// Encoding errors are logged, not returned; the status line is already sent.
func WriteJSON[T any](w http.ResponseWriter, statusCode int, response Response[T]) {
	writeJSON(w, statusCode, response)
}

// WriteError writes a JSON error response.
//
// Example:
//
//	httpserver.WriteError(w, http.StatusBadRequest,
//	    "validation failed",
//	    httpserver.Error{Field: "email", Message: "invalid format"},
//	)
func WriteError(w http.ResponseWriter, statusCode int, message string, errors ...Error) {
	WriteJSON(w, statusCode, Response[any]{
		Errors:  errors,
		Message: message,
	})
}

// WriteSuccess writes a success JSON response with data.
func WriteSuccess[T any](w http.ResponseWriter, statusCode int, data T, message string) {
	WriteJSON(w, statusCode, Response[T]{
		Data:    data,
		Message: message,
	})
}

func writeJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().
			Err(err).
			Int("status_code", statusCode).
			Msg("failed to encode JSON response")
	}
}
