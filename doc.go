// Package shopauth is the session engine of a multi-tenant shop backend.
//
// An Engine authenticates principals by password, TOTP or a provider-verified
// external identity, enforces tenant boundaries and issues signed
// access/refresh token pairs bound to a client fingerprint. Refresh tokens are
// whitelisted in Redis, one per user, and rotated atomically. Access tokens are
// self-contained and can be blacklisted on logout.
//
// Typical wiring:
//
//	engine, err := shopauth.New().
//		WithConfig(cfg).
//		WithRedis(redisClient).
//		WithIdentityStore(store).
//		WithTenantDirectory(store).
//		WithLogger(logger).
//		Build()
//
// Transports attach the client IP and User-Agent to the request context with
// WithClientIP and WithUserAgent before calling the engine; the middleware
// package does this for net/http.
package shopauth
