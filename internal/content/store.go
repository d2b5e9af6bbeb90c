package content

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrNotFound matches every NotFoundError via errors.Is.
	ErrNotFound = errors.New("content not found")

	// ErrDuplicateEntry is returned when a second entry with an existing
	// (content type, entry id, locale) identity is stored.
	ErrDuplicateEntry = errors.New("duplicate content entry")
)

// NotFoundError reports a lookup that matched nothing. Empty fields were
// not part of the lookup.
type NotFoundError struct {
	ContentType string
	EntryID     string
	Locale      string
}

func (e *NotFoundError) Error() string {
	switch {
	case e.EntryID == "" && e.Locale == "":
		return fmt.Sprintf("content type %q not found", e.ContentType)
	case e.Locale == "":
		return fmt.Sprintf("content %s/%s not found", e.ContentType, e.EntryID)
	default:
		return fmt.Sprintf("content %s/%s@%s not found", e.ContentType, e.EntryID, e.Locale)
	}
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// Store is the read contract every content backend satisfies. Reads never
// filter on publication state; callers decide which entries are visible.
type Store interface {
	// Get returns the single entry for the identity or a *NotFoundError.
	Get(ctx context.Context, contentType, entryID, locale string) (Entry, error)

	// List returns every entry of contentType in locale ordered by entry id.
	// An empty result is not an error.
	List(ctx context.Context, contentType, locale string) ([]Entry, error)

	// Locales returns the locales present in one locale group, sorted.
	// An empty result means the group does not exist.
	Locales(ctx context.Context, contentType, entryID string) ([]string, error)
}

// Writer is implemented by stores that accept new entries.
type Writer interface {
	Put(ctx context.Context, e Entry) error
}
