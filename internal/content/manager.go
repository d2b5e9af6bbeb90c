package content

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/keithlinneman/sitecontent/internal/xerrors"
)

// ErrNoSnapshot is returned by reads before the first bundle is loaded.
var ErrNoSnapshot = xerrors.New("no content snapshot loaded")

// Manager serves Store reads from the active snapshot. Swaps are atomic,
// so a reader sees either the old or the new bundle in full, never a mix.
type Manager struct {
	cur atomic.Pointer[Snapshot]
}

func NewManager() *Manager { return &Manager{} }

// Set swaps in a new snapshot.
func (m *Manager) Set(s Snapshot) {
	if s.LoadedAt.IsZero() {
		s.LoadedAt = time.Now().UTC()
	}
	m.cur.Store(&s)
}

// Current returns the active snapshot.
func (m *Manager) Current() (*Snapshot, bool) {
	s := m.cur.Load()
	if s == nil || s.Index == nil {
		return nil, false
	}
	return s, true
}

func (m *Manager) index() (*MemoryStore, error) {
	s, ok := m.Current()
	if !ok {
		return nil, ErrNoSnapshot
	}
	return s.Index, nil
}

func (m *Manager) Get(ctx context.Context, contentType, entryID, locale string) (Entry, error) {
	idx, err := m.index()
	if err != nil {
		return Entry{}, err
	}
	return idx.Get(ctx, contentType, entryID, locale)
}

func (m *Manager) List(ctx context.Context, contentType, locale string) ([]Entry, error) {
	idx, err := m.index()
	if err != nil {
		return nil, err
	}
	return idx.List(ctx, contentType, locale)
}

func (m *Manager) Locales(ctx context.Context, contentType, entryID string) ([]string, error) {
	idx, err := m.index()
	if err != nil {
		return nil, err
	}
	return idx.Locales(ctx, contentType, entryID)
}

// ContentVersion returns the active bundle version, or "" before load.
func (m *Manager) ContentVersion() string {
	if s, ok := m.Current(); ok {
		return s.Meta.Version
	}
	return ""
}

// ContentHash returns the active bundle SHA256, or "" before load.
func (m *Manager) ContentHash() string {
	if s, ok := m.Current(); ok {
		return s.Meta.SHA256
	}
	return ""
}

func (m *Manager) Source() Source {
	if s, ok := m.Current(); ok {
		return s.Meta.Source
	}
	return ""
}

func (m *Manager) LoadedAt() time.Time {
	if s, ok := m.Current(); ok {
		return s.LoadedAt
	}
	return time.Time{}
}

// ReadyErr reports whether content can be served. Used as a readiness check.
func (m *Manager) ReadyErr() error {
	if _, ok := m.Current(); !ok {
		return ErrNoSnapshot
	}
	return nil
}

// Check adapts ReadyErr to a health probe.
func (m *Manager) Check(context.Context) error { return m.ReadyErr() }
