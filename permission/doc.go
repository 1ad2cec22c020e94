// Package permission aggregates a user's effective permission set from direct
// grants and role memberships, and caches the result in Redis.
//
// Permissions are global "resource:action" strings. Aggregation is a pure set
// union: order of roles and duplicates never change the result.
package permission
