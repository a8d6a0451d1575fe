package telemetry

import (
	"context"
	"strings"
)

// Well-known claim types read by Identify.
const (
	ClaimNameIdentifier = "nameidentifier"
	ClaimSubject        = "sub"
	ClaimUserID         = "user_id"
	ClaimTenantID       = "tenant_id"
	ClaimEmail          = "email"
	ClaimRole           = "role"
	ClaimRoles          = "roles"
)

// Claim is a single identity assertion.
type Claim struct {
	Type  string
	Value string
}

// Principal is a verified caller identity, set by authentication middleware.
type Principal struct {
	Name               string
	AuthenticationType string
	Claims             []Claim
}

// First returns the first claim value among types, matching types
// case-insensitively, in the order the types are given.
func (p *Principal) First(types ...string) string {
	for _, typ := range types {
		for _, c := range p.Claims {
			if strings.EqualFold(c.Type, typ) && c.Value != "" {
				return c.Value
			}
		}
	}
	return ""
}

// All returns every claim value among types.
func (p *Principal) All(types ...string) []string {
	var out []string
	for _, c := range p.Claims {
		for _, typ := range types {
			if strings.EqualFold(c.Type, typ) {
				out = append(out, c.Value)
				break
			}
		}
	}
	return out
}

type principalKey struct{}

// WithPrincipal stores p in ctx and, if ctx carries a Scope, records it there
// so that middleware further out can see it once the handler returns.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	if s := ScopeFromContext(ctx); s != nil {
		s.setPrincipal(&p)
	}
	return context.WithValue(ctx, principalKey{}, &p)
}

// PrincipalFromContext returns the principal set by WithPrincipal, if any.
func PrincipalFromContext(ctx context.Context) (*Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(*Principal)
	return p, ok
}

// Identify projects a principal onto a UserIdentity. Claims are redacted with r.
// A nil principal yields nil.
func Identify(p *Principal, r *Redactor) *UserIdentity {
	if p == nil {
		return nil
	}
	return &UserIdentity{
		IsAuthenticated:    true,
		AuthenticationType: p.AuthenticationType,
		UserName:           p.Name,
		UserID:             p.First(ClaimNameIdentifier, ClaimSubject, ClaimUserID),
		TenantID:           p.First(ClaimTenantID, "TenantId"),
		Email:              p.First(ClaimEmail),
		Roles:              p.All(ClaimRole, ClaimRoles),
		Claims:             r.Claims(p.Claims),
	}
}
