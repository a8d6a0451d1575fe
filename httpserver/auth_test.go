package httpserver_test

import (
	"context"
	"database/sql"
	"net/http"
	"net/http/httptest"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/kroma-labs/sentinel-guard/httpserver"
	"github.com/kroma-labs/sentinel-guard/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryCredentialValidator(t *testing.T) {
	t.Parallel()

	validator := httpserver.NewMemoryCredentialValidator(map[string]string{
		"client-1": "secret-1",
		"client-2": "secret-2",
	})

	t.Run("given valid credentials, when validated, then returns service principal", func(t *testing.T) {
		p, err := validator.Validate(context.Background(), "client-1", "secret-1")
		require.NoError(t, err)
		assert.Equal(t, "client-1", p.Name)
		assert.Equal(t, httpserver.ServiceAuthType, p.AuthenticationType)
		assert.Equal(t, "client-1", p.First(telemetry.ClaimNameIdentifier))
	})

	tests := []struct {
		name     string
		clientID string
		passkey  string
	}{
		{name: "given invalid client ID, when validated, then returns error", clientID: "unknown", passkey: "secret-1"},
		{name: "given invalid passkey, when validated, then returns error", clientID: "client-1", passkey: "wrong"},
		{name: "given another client's passkey, when validated, then returns error", clientID: "client-1", passkey: "secret-2"},
		{name: "given empty credentials, when validated, then returns error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := validator.Validate(context.Background(), tt.clientID, tt.passkey)
			assert.ErrorIs(t, err, httpserver.ErrInvalidCredentials)
		})
	}
}

func TestSQLCredentialValidator(t *testing.T) {
	t.Parallel()

	const query = "SELECT passkey, tenant_id, role FROM service_credentials WHERE client_id = ? AND is_active = true"

	newValidator := func(t *testing.T) (*httpserver.SQLCredentialValidator, sqlmock.Sqlmock) {
		t.Helper()
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		t.Cleanup(func() { _ = db.Close() })
		return httpserver.NewSQLCredentialValidator(sqlx.NewDb(db, "sqlmock"), query), mock
	}

	t.Run("given matching row, when validated, then extra columns become claims", func(t *testing.T) {
		validator, mock := newValidator(t)
		mock.ExpectQuery(regexp.QuoteMeta(query)).
			WithArgs("billing").
			WillReturnRows(sqlmock.NewRows([]string{"passkey", "tenant_id", "role"}).
				AddRow("s3cret", "t-9", "reader"))

		p, err := validator.Validate(context.Background(), "billing", "s3cret")
		require.NoError(t, err)
		assert.Equal(t, "billing", p.Name)
		assert.Equal(t, []telemetry.Claim{
			{Type: telemetry.ClaimNameIdentifier, Value: "billing"},
			{Type: "role", Value: "reader"},
			{Type: "tenant_id", Value: "t-9"},
		}, p.Claims)

		identity := telemetry.Identify(&p, telemetry.NewRedactor(nil, nil))
		assert.Equal(t, "t-9", identity.TenantID)
		assert.Equal(t, []string{"reader"}, identity.Roles)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("given wrong passkey, when validated, then returns ErrInvalidCredentials", func(t *testing.T) {
		validator, mock := newValidator(t)
		mock.ExpectQuery(regexp.QuoteMeta(query)).
			WithArgs("billing").
			WillReturnRows(sqlmock.NewRows([]string{"passkey", "tenant_id", "role"}).
				AddRow("s3cret", "t-9", "reader"))

		_, err := validator.Validate(context.Background(), "billing", "guess")
		assert.ErrorIs(t, err, httpserver.ErrInvalidCredentials)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("given unknown client, when validated, then returns ErrInvalidCredentials", func(t *testing.T) {
		validator, mock := newValidator(t)
		mock.ExpectQuery(regexp.QuoteMeta(query)).
			WithArgs("ghost").
			WillReturnError(sql.ErrNoRows)

		_, err := validator.Validate(context.Background(), "ghost", "whatever")
		assert.ErrorIs(t, err, httpserver.ErrInvalidCredentials)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("given empty credentials, when validated, then no query runs", func(t *testing.T) {
		validator, mock := newValidator(t)

		_, err := validator.Validate(context.Background(), "", "")
		assert.ErrorIs(t, err, httpserver.ErrInvalidCredentials)
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestServiceAuthMiddleware(t *testing.T) {
	t.Parallel()

	validator := httpserver.NewMemoryCredentialValidator(map[string]string{
		"client-1": "secret-1",
	})

	t.Run("given valid credentials, when request made, then proceeds with client ID and principal", func(t *testing.T) {
		var (
			gotClientID  string
			gotPrincipal *telemetry.Principal
		)
		handler := httpserver.ServiceAuth(httpserver.ServiceAuthConfig{Validator: validator})(
			http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				gotClientID = httpserver.ClientIDFromContext(r.Context())
				gotPrincipal, _ = telemetry.PrincipalFromContext(r.Context())
				w.WriteHeader(http.StatusOK)
			}),
		)

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Client-ID", "client-1")
		req.Header.Set("Pass-Key", "secret-1")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "client-1", gotClientID)
		require.NotNil(t, gotPrincipal)
		assert.Equal(t, httpserver.ServiceAuthType, gotPrincipal.AuthenticationType)
	})

	t.Run("given custom header names, when request made, then reads them", func(t *testing.T) {
		handler := httpserver.ServiceAuth(httpserver.ServiceAuthConfig{
			Validator:      validator,
			ClientIDHeader: "X-Client",
			PassKeyHeader:  "X-Secret",
		})(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusNoContent)
		}))

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("X-Client", "client-1")
		req.Header.Set("X-Secret", "secret-1")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusNoContent, rec.Code)
	})

	tests := []struct {
		name     string
		clientID string
		passKey  string
	}{
		{name: "given missing headers, when request made, then returns 401"},
		{name: "given missing passkey, when request made, then returns 401", clientID: "client-1"},
		{name: "given wrong passkey, when request made, then returns 401", clientID: "client-1", passKey: "nope"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var called bool
			handler := httpserver.ServiceAuth(httpserver.ServiceAuthConfig{Validator: validator})(
				http.HandlerFunc(func(http.ResponseWriter, *http.Request) { called = true }),
			)

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.clientID != "" {
				req.Header.Set("Client-ID", tt.clientID)
			}
			if tt.passKey != "" {
				req.Header.Set("Pass-Key", tt.passKey)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.Contains(t, rec.Body.String(), "invalid credentials")
			assert.False(t, called)
		})
	}

	t.Run("given validator func, when request made, then it is used", func(t *testing.T) {
		fn := httpserver.CredentialValidatorFunc(func(_ context.Context, clientID, _ string) (telemetry.Principal, error) {
			return telemetry.Principal{Name: clientID, AuthenticationType: "Custom"}, nil
		})
		handler := httpserver.ServiceAuth(httpserver.ServiceAuthConfig{Validator: fn})(
			http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				p, _ := telemetry.PrincipalFromContext(r.Context())
				_, _ = w.Write([]byte(p.AuthenticationType))
			}),
		)

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Client-ID", "any")
		req.Header.Set("Pass-Key", "any")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		assert.Equal(t, "Custom", rec.Body.String())
	})
}

func TestKeyFuncs(t *testing.T) {
	t.Parallel()

	newRequest := func(path string) *http.Request {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		req.RemoteAddr = "203.0.113.7:5555"
		req.Header.Set("X-Tenant-ID", "tenant-1")
		return req
	}

	authed := func(r *http.Request) *http.Request {
		var out *http.Request
		validator := httpserver.NewMemoryCredentialValidator(map[string]string{"client-1": "secret-1"})
		r.Header.Set("Client-ID", "client-1")
		r.Header.Set("Pass-Key", "secret-1")
		httpserver.ServiceAuth(httpserver.ServiceAuthConfig{Validator: validator})(
			http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) { out = r }),
		).ServeHTTP(httptest.NewRecorder(), r)
		return out
	}

	tests := []struct {
		name    string
		keyFunc httpserver.KeyFunc
		req     *http.Request
		want    string
	}{
		{
			name:    "given KeyFuncByIP, then key is the client IP",
			keyFunc: httpserver.KeyFuncByIP(),
			req:     newRequest("/api/users"),
			want:    "203.0.113.7",
		},
		{
			name:    "given KeyFuncByIPAndPath, then key joins IP and path",
			keyFunc: httpserver.KeyFuncByIPAndPath(),
			req:     newRequest("/api/users"),
			want:    "203.0.113.7:/api/users",
		},
		{
			name:    "given KeyFuncByHeader, then key is the header value",
			keyFunc: httpserver.KeyFuncByHeader("X-Tenant-ID"),
			req:     newRequest("/"),
			want:    "tenant-1",
		},
		{
			name:    "given KeyFuncByClientID without auth, then key is empty",
			keyFunc: httpserver.KeyFuncByClientID(),
			req:     newRequest("/"),
			want:    "",
		},
		{
			name:    "given KeyFuncByClientID after ServiceAuth, then key is the client ID",
			keyFunc: httpserver.KeyFuncByClientID(),
			req:     authed(newRequest("/")),
			want:    "client-1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.keyFunc(tt.req))
		})
	}
}
