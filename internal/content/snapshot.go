package content

import "time"

// Source identifies where the active content came from.
type Source string

const (
	SourceSeed     Source = "seed"
	SourceS3       Source = "s3"
	SourcePostgres Source = "postgres"
)

// Meta describes a loaded bundle.
type Meta struct {
	Version    string
	SHA256     string
	Source     Source
	Signed     bool
	VerifiedAt time.Time
}

// Snapshot is an immutable loaded bundle. Index must not be written to
// after the snapshot is handed to a Manager.
type Snapshot struct {
	Index    *MemoryStore
	Meta     Meta
	LoadedAt time.Time
}

// NewSnapshot indexes a decoded bundle.
func NewSnapshot(b *Bundle, meta Meta) (*Snapshot, error) {
	idx, err := b.Index()
	if err != nil {
		return nil, err
	}
	if meta.Version == "" {
		meta.Version = b.Version
	}
	return &Snapshot{Index: idx, Meta: meta}, nil
}
