// Package requestctx carries the caller identity established by the HTTP
// auth middleware: the tenant bound to the API key and the key's label.
package requestctx

import "context"

type contextKey int

const (
	tenantIDKey contextKey = iota
	callerKey
)

// SetTenantID stores the authenticated tenant id in ctx.
func SetTenantID(ctx context.Context, tenantID string) context.Context {
	return context.WithValue(ctx, tenantIDKey, tenantID)
}

// TenantID returns the authenticated tenant id, or "" for anonymous calls.
func TenantID(ctx context.Context) string {
	v, _ := ctx.Value(tenantIDKey).(string)
	return v
}

// SetCaller stores a label for the API key that authenticated the request.
func SetCaller(ctx context.Context, caller string) context.Context {
	return context.WithValue(ctx, callerKey, caller)
}

// Caller returns the key label, or "".
func Caller(ctx context.Context) string {
	v, _ := ctx.Value(callerKey).(string)
	return v
}
