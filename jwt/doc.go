// Package jwt signs and verifies the access and refresh tokens of a session.
//
// Access and refresh tokens are signed with distinct keys and carry distinct
// typ claims, so neither can be replayed as the other. Every issued token gets
// a fresh random jti which doubles as the session id.
package jwt
