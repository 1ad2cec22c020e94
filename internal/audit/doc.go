// Package audit delivers security events (logins, lockouts, refresh reuse,
// fingerprint mismatches, password and 2FA changes) to a sink off the request
// path.
//
// The engine decides which events to emit; this package only buffers and
// forwards them.
package audit
