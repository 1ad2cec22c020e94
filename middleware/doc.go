// Package middleware adapts the shopauth engine to net/http.
//
// ClientContext attaches the resolved client IP and User-Agent that the engine
// fingerprints. Guard authenticates the bearer token and stores the session in
// the request context, where RequirePermission reads it. TenantFromHeader
// resolves the addressed tenant. RateLimit is an in-process token bucket per
// client address.
//
// Decisions about tokens are left to Engine.Authenticate.
package middleware
