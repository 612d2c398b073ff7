package auth

import (
	"context"

	"github.com/contractguard/contractguard/pkg/contextkeys"
)

// WithAuthContext stores the authenticated caller in ctx
func WithAuthContext(ctx context.Context, ac *AuthContext) context.Context {
	return contextkeys.WithAuth(ctx, ac)
}

// FromContext returns the authenticated caller, or nil
func FromContext(ctx context.Context) *AuthContext {
	ac, _ := ctx.Value(contextkeys.AuthKey).(*AuthContext)
	return ac
}
