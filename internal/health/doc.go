// Package health provides composable probes for liveness and readiness.
//
// Probes combine with [All] (AND), [Any] (OR) and [Fixed] (static).
// [Named] labels a dependency and [Ping] bounds a dependency check.
// [ShutdownGate] fails readiness during drain so load balancers stop
// sending traffic before in-flight requests finish.
package health
