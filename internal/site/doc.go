// Package site assembles the aggregated site document: one resolved
// content entry per slot of a static, versioned slot table.
package site
