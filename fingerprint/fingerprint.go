// Package fingerprint binds sessions to the client that created them.
//
// A fingerprint is the hex SHA-256 of the resolved client IP and the
// User-Agent. The same derivation runs on issue and on every verify, so a token
// replayed from another client mismatches.
package fingerprint

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"net"
	"strings"
)

// ResolveClientIP returns the first X-Forwarded-For hop when present, otherwise
// the host part of remoteAddr.
func ResolveClientIP(forwardedFor, remoteAddr string) string {
	if forwardedFor != "" {
		first, _, _ := strings.Cut(forwardedFor, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	remoteAddr = strings.TrimSpace(remoteAddr)
	if host, _, err := net.SplitHostPort(remoteAddr); err == nil {
		return host
	}
	return remoteAddr
}

// Derive hashes ip and userAgent into a fingerprint.
func Derive(ip, userAgent string) string {
	sum := sha256.Sum256([]byte(ip + "|" + userAgent))
	return hex.EncodeToString(sum[:])
}

// Equal compares two fingerprints in constant time.
func Equal(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
