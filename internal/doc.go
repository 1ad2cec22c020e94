// Package internal holds helpers private to shopauth: opaque token generation,
// token hashing and the audit and metrics plumbing under its sub-packages.
package internal
