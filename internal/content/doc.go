// Package content holds localized content entries and the stores that
// serve them.
//
// An [Entry] is one localized variant of a logical record, identified by
// (content type, entry id, locale). Entries sharing a content type and
// entry id form a locale group. Every [Store] guarantees at most one entry
// per identity.
//
// The core components are:
//   - [MemoryStore]: a mutex-guarded in-process store, also used as the
//     frozen index inside a bundle snapshot
//   - [Manager]: serves the active [Snapshot] through an atomic pointer
//   - [Loader]: fetches signed gzip JSON bundles from S3, addressed by a
//     hash published in SSM
//   - [Watcher]: polls for a new bundle hash and hot-swaps it into the
//     Manager after validation
package content
