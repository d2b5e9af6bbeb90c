package content

import (
	"context"
	"slices"
	"sort"
	"sync"

	"github.com/keithlinneman/sitecontent/internal/xerrors"
)

type groupKey struct{ contentType, entryID string }

// MemoryStore keeps entries in process memory. Safe for concurrent use.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[Key]Entry
	groups  map[groupKey][]string
	types   map[string]struct{}
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[Key]Entry),
		groups:  make(map[groupKey][]string),
		types:   make(map[string]struct{}),
	}
}

// NewMemoryStoreFrom builds a store from entries, failing on the first
// invalid or duplicate entry.
func NewMemoryStoreFrom(entries []Entry) (*MemoryStore, error) {
	s := NewMemoryStore()
	for i := range entries {
		if err := s.put(entries[i]); err != nil {
			return nil, xerrors.Wrapf(err, "entry %d", i)
		}
	}
	return s, nil
}

// Put stores a new entry. A second entry with the same identity is
// rejected with ErrDuplicateEntry and the existing entry is kept.
func (s *MemoryStore) Put(_ context.Context, e Entry) error {
	return s.put(e)
}

func (s *MemoryStore) put(e Entry) error {
	if err := e.Validate(); err != nil {
		return xerrors.Wrapf(err, "invalid entry %s", e.Key())
	}
	k := e.Key()

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[k]; ok {
		return xerrors.Wrapf(ErrDuplicateEntry, "%s", k)
	}
	s.entries[k] = cloneEntry(e)
	g := groupKey{e.ContentType, e.EntryID}
	s.groups[g] = insertSorted(s.groups[g], e.Locale)
	s.types[e.ContentType] = struct{}{}
	return nil
}

// Update replaces an existing entry in place.
func (s *MemoryStore) Update(_ context.Context, e Entry) error {
	if err := e.Validate(); err != nil {
		return xerrors.Wrapf(err, "invalid entry %s", e.Key())
	}
	k := e.Key()

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[k]; !ok {
		return &NotFoundError{ContentType: k.ContentType, EntryID: k.EntryID, Locale: k.Locale}
	}
	s.entries[k] = cloneEntry(e)
	return nil
}

func (s *MemoryStore) Get(_ context.Context, contentType, entryID, locale string) (Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[Key{contentType, entryID, locale}]
	if !ok {
		return Entry{}, &NotFoundError{ContentType: contentType, EntryID: entryID, Locale: locale}
	}
	return cloneEntry(e), nil
}

func (s *MemoryStore) List(_ context.Context, contentType, locale string) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Entry
	for k, e := range s.entries {
		if k.ContentType == contentType && k.Locale == locale {
			out = append(out, cloneEntry(e))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EntryID < out[j].EntryID })
	return out, nil
}

func (s *MemoryStore) Locales(_ context.Context, contentType, entryID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.groups[groupKey{contentType, entryID}]), nil
}

// HasType reports whether any entry of contentType is stored.
func (s *MemoryStore) HasType(contentType string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.types[contentType]
	return ok
}

// Len returns the number of stored entries.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// All returns every entry ordered by content type, entry id and locale.
func (s *MemoryStore) All() []Entry {
	s.mu.RLock()
	out := make([]Entry, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, cloneEntry(e))
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.ContentType != b.ContentType {
			return a.ContentType < b.ContentType
		}
		if a.EntryID != b.EntryID {
			return a.EntryID < b.EntryID
		}
		return a.Locale < b.Locale
	})
	return out
}

func insertSorted(s []string, v string) []string {
	i, found := slices.BinarySearch(s, v)
	if found {
		return s
	}
	return slices.Insert(s, i, v)
}
