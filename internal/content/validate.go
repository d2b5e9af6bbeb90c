package content

import (
	"context"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/keithlinneman/sitecontent/internal/xerrors"
)

// GroupRef names a locale group that must be servable.
type GroupRef struct {
	ContentType string
	EntryID     string
}

// ValidationOptions configures the checks run on a bundle before it
// replaces the active one.
type ValidationOptions struct {
	// DefaultLocale must be present in every Required group.
	DefaultLocale string

	// Required lists the groups the site document depends on.
	Required []GroupRef

	// MinEntries rejects suspiciously small bundles.
	MinEntries int
}

func DefaultValidationOptions() ValidationOptions {
	return ValidationOptions{DefaultLocale: "en", MinEntries: 1}
}

// ValidateSnapshot rejects a snapshot that could not serve the required
// groups in the default locale. All failures are reported together.
func ValidateSnapshot(s *Snapshot, opts ValidationOptions) error {
	if s == nil || s.Index == nil {
		return xerrors.New("snapshot has no index")
	}
	if n := s.Index.Len(); n < opts.MinEntries {
		return xerrors.Newf("snapshot has %d entries, want at least %d", n, opts.MinEntries)
	}

	errs := validation.Errors{}
	ctx := context.Background()
	for _, g := range opts.Required {
		name := g.ContentType + "/" + g.EntryID
		if g.EntryID == "" {
			if !s.Index.HasType(g.ContentType) {
				errs[g.ContentType] = validation.NewError("content.type.missing", "no entries of this type")
			}
			continue
		}
		e, err := s.Index.Get(ctx, g.ContentType, g.EntryID, opts.DefaultLocale)
		if err != nil {
			errs[name] = validation.NewError("content.default_locale.missing", "no entry in default locale "+opts.DefaultLocale)
			continue
		}
		if !e.Published() {
			errs[name] = validation.NewError("content.default_locale.draft", "default locale entry is not published")
		}
	}
	if len(errs) > 0 {
		return xerrors.Wrap(errs, "snapshot validation")
	}
	return nil
}
