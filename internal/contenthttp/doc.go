// Package contenthttp serves localized content over JSON.
//
// Public routes read the "content" type without authentication. Every
// other route sits behind the access gate: the aggregated site document,
// the configured locales, per-type reads and active bundle info.
package contenthttp
