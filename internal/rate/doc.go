// Package rate implements fixed-window attempt counters in Redis, shared by
// every engine replica. The engine uses it to throttle failed logins and
// password-reset requests per client IP.
package rate
