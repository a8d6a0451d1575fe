package httpserver

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"sort"

	"github.com/jmoiron/sqlx"
	"github.com/kroma-labs/sentinel-guard/telemetry"
)

// ServiceAuthConfig configures the service-to-service authentication middleware.
type ServiceAuthConfig struct {
	// Validator checks the client_id and passkey and returns the caller's identity.
	Validator CredentialValidator

	// ClientIDHeader is the header name for client ID.
	// Default: "Client-ID"
	ClientIDHeader string

	// PassKeyHeader is the header name for passkey.
	// Default: "Pass-Key"
	PassKeyHeader string
}

// CredentialValidator validates service credentials.
type CredentialValidator interface {
	// Validate returns the authenticated principal, or ErrInvalidCredentials.
	Validate(ctx context.Context, clientID, passkey string) (telemetry.Principal, error)
}

// CredentialValidatorFunc is an adapter to allow ordinary functions as validators.
type CredentialValidatorFunc func(ctx context.Context, clientID, passkey string) (telemetry.Principal, error)

func (f CredentialValidatorFunc) Validate(ctx context.Context, clientID, passkey string) (telemetry.Principal, error) {
	return f(ctx, clientID, passkey)
}

// ErrInvalidCredentials is returned when authentication fails.
// Intentionally generic to not reveal which part of credentials is wrong.
var ErrInvalidCredentials = errors.New("invalid credentials")

// ServiceAuthType is the authentication type recorded on service principals.
const ServiceAuthType = "ServiceAuth"

func servicePrincipal(clientID string, claims ...telemetry.Claim) telemetry.Principal {
	return telemetry.Principal{
		Name:               clientID,
		AuthenticationType: ServiceAuthType,
		Claims:             append([]telemetry.Claim{{Type: telemetry.ClaimNameIdentifier, Value: clientID}}, claims...),
	}
}

func passkeyMatches(expected, given string) bool {
	return subtle.ConstantTimeCompare([]byte(expected), []byte(given)) == 1
}

// MemoryCredentialValidator validates against an in-memory map.
// Useful for credentials loaded from environment variables.
type MemoryCredentialValidator struct {
	clients map[string]string
}

// NewMemoryCredentialValidator creates a validator from a map of client_id -> passkey.
//
// Example:
//
//	validator := httpserver.NewMemoryCredentialValidator(map[string]string{
//	    os.Getenv("SERVICE_CLIENT_ID"): os.Getenv("SERVICE_PASS_KEY"),
//	})
func NewMemoryCredentialValidator(clients map[string]string) *MemoryCredentialValidator {
	return &MemoryCredentialValidator{clients: clients}
}

func (v *MemoryCredentialValidator) Validate(_ context.Context, clientID, passkey string) (telemetry.Principal, error) {
	if clientID == "" || passkey == "" {
		return telemetry.Principal{}, ErrInvalidCredentials
	}

	expected, exists := v.clients[clientID]
	if !exists || !passkeyMatches(expected, passkey) {
		return telemetry.Principal{}, ErrInvalidCredentials
	}
	return servicePrincipal(clientID), nil
}

// SQLCredentialValidator validates against a database table.
type SQLCredentialValidator struct {
	db    *sqlx.DB
	query string
}

// NewSQLCredentialValidator creates a validator that queries a database.
//
// The query takes the client_id as its only parameter, written with "?"
// placeholders (rebound for the driver), and must return a passkey column.
// Every other column becomes a claim on the principal, so selecting
// tenant_id or role feeds the telemetry user identity.
//
// Example:
//
//	validator := httpserver.NewSQLCredentialValidator(db,
//	    "SELECT passkey, tenant_id, role FROM service_credentials WHERE client_id = ? AND is_active = true",
//	)
func NewSQLCredentialValidator(db *sqlx.DB, query string) *SQLCredentialValidator {
	return &SQLCredentialValidator{db: db, query: db.Rebind(query)}
}

func (v *SQLCredentialValidator) Validate(ctx context.Context, clientID, passkey string) (telemetry.Principal, error) {
	if clientID == "" || passkey == "" {
		return telemetry.Principal{}, ErrInvalidCredentials
	}

	row := make(map[string]any)
	if err := v.db.QueryRowxContext(ctx, v.query, clientID).MapScan(row); err != nil {
		// Don't reveal if client_id doesn't exist
		return telemetry.Principal{}, ErrInvalidCredentials
	}

	stored, ok := row["passkey"]
	if !ok || !passkeyMatches(columnString(stored), passkey) {
		return telemetry.Principal{}, ErrInvalidCredentials
	}
	delete(row, "passkey")

	columns := make([]string, 0, len(row))
	for col := range row {
		columns = append(columns, col)
	}
	sort.Strings(columns)

	claims := make([]telemetry.Claim, 0, len(columns))
	for _, col := range columns {
		if val := columnString(row[col]); val != "" {
			claims = append(claims, telemetry.Claim{Type: col, Value: val})
		}
	}
	return servicePrincipal(clientID, claims...), nil
}

func columnString(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case []byte:
		return string(val)
	case string:
		return val
	default:
		return fmt.Sprint(val)
	}
}

// ServiceAuth returns middleware that validates service-to-service credentials.
//
// Requires both Client-ID and Pass-Key headers to be present and valid.
// On failure, returns 401 Unauthorized with a generic error message. On
// success the principal is attached with telemetry.WithPrincipal, so the
// telemetry event carries the caller's identity.
//
// Example with in-memory validator:
//
//	validator := httpserver.NewMemoryCredentialValidator(map[string]string{
//	    os.Getenv("CLIENT_ID"): os.Getenv("PASS_KEY"),
//	})
//
//	mux.Handle("/internal/", httpserver.ServiceAuth(httpserver.ServiceAuthConfig{
//	    Validator: validator,
//	})(internalHandler))
func ServiceAuth(cfg ServiceAuthConfig) Middleware {
	if cfg.ClientIDHeader == "" {
		cfg.ClientIDHeader = "Client-ID"
	}
	if cfg.PassKeyHeader == "" {
		cfg.PassKeyHeader = "Pass-Key"
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			clientID := r.Header.Get(cfg.ClientIDHeader)
			passkey := r.Header.Get(cfg.PassKeyHeader)

			principal, err := cfg.Validator.Validate(r.Context(), clientID, passkey)
			if err != nil {
				WriteError(w, http.StatusUnauthorized, "unauthorized",
					Error{Field: "auth", Message: "invalid credentials"})
				return
			}

			ctx := context.WithValue(r.Context(), clientIDContextKey{}, clientID)
			ctx = telemetry.WithPrincipal(ctx, principal)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// clientIDContextKey is the context key for client ID.
type clientIDContextKey struct{}

// ClientIDFromContext returns the client_id from the request context.
// Returns empty string if not authenticated via ServiceAuth.
func ClientIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(clientIDContextKey{}).(string); ok {
		return v
	}
	return ""
}
