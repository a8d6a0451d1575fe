package telemetry

import (
	"net/http"
	"net/url"
	"sort"
	"strings"
)

// Mask replaces every redacted value.
const Mask = "***MASKED***"

// sensitiveClaimFragments mark a claim type as sensitive when contained in it.
var sensitiveClaimFragments = []string{"password", "token", "secret", "key", "authorization"}

// Redactor masks sensitive header, query, form and claim values.
//
// Header names match the header list exactly, ignoring case. Query and form
// field names match the query list exactly, ignoring case. Claim types are
// masked when they contain one of password, token, secret, key or
// authorization. Redacting an already redacted value is a no-op.
type Redactor struct {
	headers map[string]struct{}
	queries map[string]struct{}
}

// NewRedactor builds a Redactor from the sensitive header and query names.
func NewRedactor(sensitiveHeaders, sensitiveQuery []string) *Redactor {
	return &Redactor{
		headers: lowerSet(sensitiveHeaders),
		queries: lowerSet(sensitiveQuery),
	}
}

func lowerSet(names []string) map[string]struct{} {
	set := make(map[string]struct{}, len(names))
	for _, n := range names {
		if n = strings.TrimSpace(n); n != "" {
			set[strings.ToLower(n)] = struct{}{}
		}
	}
	return set
}

// Header redacts a header value.
func (r *Redactor) Header(name, value string) string {
	if _, ok := r.headers[strings.ToLower(name)]; ok {
		return Mask
	}
	return value
}

// Query redacts a query parameter or form field value.
func (r *Redactor) Query(name, value string) string {
	if _, ok := r.queries[strings.ToLower(name)]; ok {
		return Mask
	}
	return value
}

// Claim redacts an identity claim value.
func (r *Redactor) Claim(claimType, value string) string {
	lower := strings.ToLower(claimType)
	for _, fragment := range sensitiveClaimFragments {
		if strings.Contains(lower, fragment) {
			return Mask
		}
	}
	return value
}

// RawQuery redacts an encoded query string in place, keeping the order,
// encoding and separators of every other pair. A leading "?" is kept.
func (r *Redactor) RawQuery(raw string) string {
	if raw == "" {
		return raw
	}

	prefix := ""
	if raw[0] == '?' {
		prefix, raw = "?", raw[1:]
	}

	pairs := strings.Split(raw, "&")
	for i, pair := range pairs {
		key, _, hasValue := strings.Cut(pair, "=")
		if !hasValue {
			continue
		}
		name, err := url.QueryUnescape(key)
		if err != nil {
			name = key
		}
		if r.Query(name, "") == Mask {
			pairs[i] = key + "=" + Mask
		}
	}
	return prefix + strings.Join(pairs, "&")
}

// Headers flattens and redacts a header map. Multiple values are joined with ", ".
func (r *Redactor) Headers(h http.Header) map[string]string {
	if len(h) == 0 {
		return nil
	}
	out := make(map[string]string, len(h))
	for name, values := range h {
		out[name] = r.Header(name, strings.Join(values, ", "))
	}
	return out
}

// Values flattens and redacts query or form values. Multiple values are joined with ",".
func (r *Redactor) Values(v url.Values) map[string]string {
	if len(v) == 0 {
		return nil
	}
	out := make(map[string]string, len(v))
	for name, values := range v {
		out[name] = r.Query(name, strings.Join(values, ","))
	}
	return out
}

// Claims redacts a principal's claims into a flat map. Repeated claim
// types are joined with "," in sorted order.
func (r *Redactor) Claims(claims []Claim) map[string]string {
	if len(claims) == 0 {
		return nil
	}
	grouped := make(map[string][]string, len(claims))
	for _, c := range claims {
		grouped[c.Type] = append(grouped[c.Type], c.Value)
	}
	out := make(map[string]string, len(grouped))
	for typ, values := range grouped {
		sort.Strings(values)
		out[typ] = r.Claim(typ, strings.Join(values, ","))
	}
	return out
}
