// Package httpmw provides HTTP middleware for the public API listener.
//
// httpserver.NewHandler composes them outermost first: recover, path
// normalization, security headers, request ID, client IP, rate limiting,
// OTEL, trace/content headers, metrics, request logger, access log, then
// the chi router. The access gate is mounted per route group inside the
// router, so it always sees the normalized path.
//
// Query strings, user agents and credentials are kept out of logs; only
// allow-listed query keys are recorded.
package httpmw
