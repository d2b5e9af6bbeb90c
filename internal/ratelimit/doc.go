// Package ratelimit is per-client-IP token bucket middleware for the public
// listener. State is in-process only; it is a guard against a single client
// exhausting goroutines or store connections, not a distributed quota.
package ratelimit
