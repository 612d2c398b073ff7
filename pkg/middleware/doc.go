// Package middleware provides HTTP middleware for sessions and rate limiting.
//
// # Middleware Components
//
// SessionMiddleware: bearer session authentication
//
//	sessions := middleware.NewSessionMiddleware(issuer, authStore, log)
//	api.Use(sessions.Handler)
//	// Parses the token, rejects it when its version no longer matches the
//	// user's stored token_version, adds *auth.AuthContext to the request
//
// RequireOwner: organization-owner gate
//
//	router.Handle("/organization", middleware.RequireOwner(handler))
//
// RateLimiter: in-process token bucket keyed by client IP
//
//	limiter := middleware.NewRateLimiter(&middleware.RateLimitConfig{RequestsPerMinute: 10, Burst: 5})
//	handlers.RegisterPublicRoutes(router, limiter.Handler)
//
// DistributedRateLimiter: Redis fixed-window counter shared across replicas
//
//	limiter := middleware.NewDistributedRateLimiter(redisClient, cfg, "ratelimit:login", log)
//
// # Related Packages
//
//   - pkg/auth: session tokens and the AuthContext
//   - pkg/rbac: permission checks layered on top of SessionMiddleware
package middleware
