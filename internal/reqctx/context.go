// Package reqctx carries request-scoped identity through context.Context.
// Components never read globals for who is acting; they take it from here.
package reqctx

import (
	"context"
	"fmt"
)

// ContextKey is the shared type for all context keys in this codebase.
type ContextKey string

func (c ContextKey) String() string { return string(c) }

var (
	ContextKeyPrincipal     = ContextKey("Principal")
	ContextKeyCorrelationID = ContextKey("CorrelationId")
)

// Principal is the authenticated caller of a request
type Principal struct {
	ID   uint   `json:"id"`
	Role string `json:"role"` // supplier | manager | admin | system
	Name string `json:"name,omitempty"`
}

// SystemPrincipal is used for webhooks, background workers and CLI tools
var SystemPrincipal = Principal{Role: "system", Name: "system"}

// String renders the principal for audit rows
func (p Principal) String() string {
	if p.ID == 0 {
		return p.Role
	}
	return fmt.Sprintf("%s:%d", p.Role, p.ID)
}

// WithPrincipal stores the caller in ctx
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, ContextKeyPrincipal, p)
}

// PrincipalFrom returns the caller, falling back to SystemPrincipal
func PrincipalFrom(ctx context.Context) Principal {
	if p, ok := ctx.Value(ContextKeyPrincipal).(Principal); ok {
		return p
	}
	return SystemPrincipal
}

// WithCorrelationID stores the request correlation id
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ContextKeyCorrelationID, id)
}

// CorrelationID returns the correlation id or ""
func CorrelationID(ctx context.Context) string {
	v, _ := ctx.Value(ContextKeyCorrelationID).(string)
	return v
}
