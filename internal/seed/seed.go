// Package seed embeds the content bundle served when no external store
// is configured. It fills every slot of the default slot table in the
// default locale, plus a few Hindi variants and the public content type.
package seed

import (
	_ "embed"

	"github.com/keithlinneman/sitecontent/internal/content"
	"github.com/keithlinneman/sitecontent/internal/cryptoutil"
)

//go:embed bundle.json
var raw []byte

// Hash is the sha256 of the embedded bundle document.
func Hash() string { return cryptoutil.SHA256Hex(raw) }

// Bundle decodes the embedded bundle.
func Bundle() (*content.Bundle, error) { return content.DecodeBundle(raw) }

// Snapshot returns the seed bundle indexed and ready for a content.Manager.
func Snapshot() (*content.Snapshot, error) {
	b, err := Bundle()
	if err != nil {
		return nil, err
	}
	return content.NewSnapshot(b, content.Meta{SHA256: Hash(), Source: content.SourceSeed})
}
