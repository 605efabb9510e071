// Package tenancy implements per-request tenant identity and the
// namespacing helpers every stateful collaborator (cache, vector memory,
// router bandit state) must use to derive its keys (spec.md §4.6).
//
// Grounded on the teacher framework's pkg/memory key-naming convention
// ("conversation:{id}", "context:{namespace}:{key}"), generalized to the
// spec's "tenant:workspace:collection" form.
package tenancy

import (
	"context"
	"strings"

	"github.com/google/uuid"
)

// TenantContext is immutable per request.
type TenantContext struct {
	TenantID    string
	WorkspaceID string
	RequestID   string
}

// State is the per-request lifecycle state machine (spec.md §4.6).
type State string

const (
	StateNew    State = "new"
	StateActive State = "active"
	StateDone   State = "done"
	StateFailed State = "failed"
)

type tenantKey struct{}
type stateKey struct{}

// New creates a TenantContext with a freshly generated request id.
func New(tenantID, workspaceID string) TenantContext {
	return TenantContext{
		TenantID:    tenantID,
		WorkspaceID: workspaceID,
		RequestID:   uuid.NewString(),
	}
}

// WithTenant associates tc with ctx and transitions the request state to
// ACTIVE. Returns the derived context; the caller owns its lifetime.
func WithTenant(ctx context.Context, tc TenantContext) context.Context {
	ctx = context.WithValue(ctx, tenantKey{}, tc)
	return context.WithValue(ctx, stateKey{}, StateActive)
}

// CurrentTenant returns the TenantContext carried by ctx. In strict mode,
// a missing TenantContext is a fatal error (ok=false). In non-strict mode
// it falls back to "default:default" and returns fellBack=true so the
// caller can emit a warning and increment
// tenancy_fallback_total{component} (the fallback TenantContext also has
// an empty RequestID).
func CurrentTenant(ctx context.Context, strict bool) (tc TenantContext, ok bool, fellBack bool) {
	tc, ok = ctx.Value(tenantKey{}).(TenantContext)
	if ok {
		return tc, true, false
	}
	if strict {
		return TenantContext{}, false, false
	}
	return TenantContext{TenantID: "default", WorkspaceID: "default"}, true, true
}

// CurrentState returns the request's lifecycle state, defaulting to NEW
// when the context carries none.
func CurrentState(ctx context.Context) State {
	if s, ok := ctx.Value(stateKey{}).(State); ok {
		return s
	}
	return StateNew
}

// WithState transitions the request to a terminal state (DONE or FAILED).
// ACTIVE is the only state permitting side effects; callers should not
// perform stateful work after calling WithState.
func WithState(ctx context.Context, s State) context.Context {
	return context.WithValue(ctx, stateKey{}, s)
}

// replacer sanitizes disallowed separator characters out of namespace
// components so the two top-level ':' separators remain unambiguous.
var replacer = strings.NewReplacer(":", "__", "/", "__", " ", "__", "\t", "__")

// Namespace derives a collection key scoped to tc, of the form
// "tenant:workspace:collection", with disallowed characters in each
// component replaced by "__".
func Namespace(tc TenantContext, collection string) string {
	tenant := replacer.Replace(tc.TenantID)
	workspace := replacer.Replace(tc.WorkspaceID)
	coll := replacer.Replace(collection)
	if tenant == "" {
		tenant = "default"
	}
	if workspace == "" {
		workspace = "default"
	}
	return tenant + ":" + workspace + ":" + coll
}
