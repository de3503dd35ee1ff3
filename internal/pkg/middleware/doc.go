// Package middleware provides HTTP middleware components for the rageval server.
//
// Available middleware:
//   - RateLimiter: Per-client rate limiting using token bucket algorithm
//   - RequestID: Assigns a request ID and stores it on the request context
//   - Recover: Converts handler panics into sanitized 500 responses
//
// Usage:
//
//	rl := middleware.NewRateLimiter(middleware.DefaultRateLimiterConfig())
//	defer rl.Stop()
//	handler = middleware.RequestID(rl.Middleware(handler))
package middleware
