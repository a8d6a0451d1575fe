package telemetry

import (
	"context"
	"maps"
	"sync"
)

// Scope collects facts about a request that only inner handlers know:
// the authenticated principal, route values, the handler name, and
// errors that were handled without panicking.
//
// The telemetry middleware installs one Scope per request; everything
// below it reports into it through the context helpers in this file.
// All helpers are no-ops on a context without a Scope.
type Scope struct {
	mu          sync.Mutex
	principal   *Principal
	route       string
	routeValues map[string]string
	controller  string
	action      string
	exception   *ExceptionInfo
	tags        map[string]string
}

type scopeKey struct{}

// NewScope returns ctx carrying a fresh Scope.
func NewScope(ctx context.Context) (context.Context, *Scope) {
	s := &Scope{}
	return context.WithValue(ctx, scopeKey{}, s), s
}

// ScopeFromContext returns the request Scope, or nil.
func ScopeFromContext(ctx context.Context) *Scope {
	s, _ := ctx.Value(scopeKey{}).(*Scope)
	return s
}

// RecordError attaches err to the request's event as its exception,
// with the caller's stack. The first recorded error wins.
func RecordError(ctx context.Context, err error) {
	s := ScopeFromContext(ctx)
	if s == nil || err == nil {
		return
	}
	info := CaptureError(err, 1)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.exception == nil {
		s.exception = info
	}
}

// SetRoute records the matched route pattern and its parameter values.
func SetRoute(ctx context.Context, pattern string, values map[string]string) {
	s := ScopeFromContext(ctx)
	if s == nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if pattern != "" {
		s.route = pattern
	}
	if len(values) > 0 {
		if s.routeValues == nil {
			s.routeValues = make(map[string]string, len(values))
		}
		maps.Copy(s.routeValues, values)
	}
}

// SetHandler records the controller and action names serving the request.
func SetHandler(ctx context.Context, controller, action string) {
	s := ScopeFromContext(ctx)
	if s == nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.controller, s.action = controller, action
}

// SetTag adds a free-form tag to the request's event.
func SetTag(ctx context.Context, key, value string) {
	s := ScopeFromContext(ctx)
	if s == nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tags == nil {
		s.tags = make(map[string]string)
	}
	s.tags[key] = value
}

func (s *Scope) setPrincipal(p *Principal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.principal = p
}

// Snapshot is a copy of what a Scope collected.
type Snapshot struct {
	Principal   *Principal
	Route       string
	RouteValues map[string]string
	Controller  string
	Action      string
	Exception   *ExceptionInfo
	Tags        map[string]string
}

// Snapshot copies the scope's current state.
func (s *Scope) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	controller, action := s.controller, s.action
	if controller == "" {
		controller = s.routeValues["controller"]
	}
	if action == "" {
		action = s.routeValues["action"]
	}

	return Snapshot{
		Principal:   s.principal,
		Route:       s.route,
		RouteValues: maps.Clone(s.routeValues),
		Controller:  controller,
		Action:      action,
		Exception:   s.exception,
		Tags:        maps.Clone(s.tags),
	}
}
