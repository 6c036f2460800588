package middleware

import (
	"context"

	"github.com/google/uuid"

	pkgAuth "github.com/sewasetu/sewasetu-backend/pkg/auth"
)

type contextKey string

const (
	ctxPrincipal contextKey = "principal"
	ctxAccessID  contextKey = "access_id"
)

// WithPrincipal injects the authenticated principal into the context.
func WithPrincipal(ctx context.Context, principal pkgAuth.Principal) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxPrincipal, principal)
}

// PrincipalFromContext returns the authenticated principal, or a zero value
// when the request was not authenticated.
func PrincipalFromContext(ctx context.Context) pkgAuth.Principal {
	if ctx == nil {
		return pkgAuth.Principal{}
	}
	if v, ok := ctx.Value(ctxPrincipal).(pkgAuth.Principal); ok {
		return v
	}
	return pkgAuth.Principal{}
}

// PartnerIDFromContext is a convenience for handlers on partner routes.
func PartnerIDFromContext(ctx context.Context) uuid.UUID {
	return PrincipalFromContext(ctx).PartnerID()
}

// WithAccessID records the JWT session id for logout handling.
func WithAccessID(ctx context.Context, accessID string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxAccessID, accessID)
}

// AccessIDFromContext returns the JWT session id seeded by the auth middleware.
func AccessIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(ctxAccessID).(string); ok {
		return v
	}
	return ""
}
