// Package locale resolves a logical content entry to the best localized
// variant for a requested locale.
//
// Resolution walks a fallback chain: the requested tag, its regional
// parents, then the site default locale. The first published variant on
// the chain wins. A group that exists but lacks a default-locale variant
// is reported as [MissingDefaultLocaleContentError].
package locale
