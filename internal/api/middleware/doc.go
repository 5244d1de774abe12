// Package middleware provides the HTTP middleware stack of the command
// surface.
//
// Middleware stack includes:
//   - CORS: cross-origin access for the local control pages
//   - RateLimit: per-IP token bucket with idle eviction
//   - RequestID: request correlation id in X-Request-ID
//   - Logger: one zap line per request
//
// Example Usage:
//
//	router.Use(middleware.RequestID(), middleware.Logger(log))
//	router.Use(middleware.CORS(middleware.DefaultCORSConfig()))
//	router.Use(middleware.RateLimit(middleware.DefaultRateLimitConfig()))
package middleware
