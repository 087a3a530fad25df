// Package tenancy carries the tenant and actor identity of a request on the
// context. The engine never resolves identity itself; the host application
// puts both values on the context before calling into a service.
package tenancy

import "context"

type contextKey int

const (
	tenantKey contextKey = iota
	actorKey
)

// WithTenant returns a context carrying the tenant (school) identifier.
func WithTenant(ctx context.Context, tenantID string) context.Context {
	return context.WithValue(ctx, tenantKey, tenantID)
}

// TenantFromContext returns the tenant identifier stored in the context.
func TenantFromContext(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(tenantKey).(string)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

// WithActor returns a context carrying the acting user identifier.
func WithActor(ctx context.Context, actorID string) context.Context {
	return context.WithValue(ctx, actorKey, actorID)
}

// ActorFromContext returns the acting user identifier stored in the context.
func ActorFromContext(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(actorKey).(string)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}
