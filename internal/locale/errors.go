package locale

import (
	"errors"
	"fmt"
)

// ErrInvalidLocale is returned when the requested locale is not a BCP 47 tag.
var ErrInvalidLocale = errors.New("invalid locale")

// ErrMissingDefaultLocale matches every MissingDefaultLocaleContentError.
var ErrMissingDefaultLocale = errors.New("missing default locale content")

// MissingDefaultLocaleContentError reports a locale group that has no
// servable entry on the fallback chain, including the default locale.
type MissingDefaultLocaleContentError struct {
	ContentType   string
	EntryID       string
	Requested     string
	DefaultLocale string
}

func (e *MissingDefaultLocaleContentError) Error() string {
	return fmt.Sprintf("%s/%s has no %s content to fall back to from %q",
		e.ContentType, e.EntryID, e.DefaultLocale, e.Requested)
}

func (e *MissingDefaultLocaleContentError) Is(target error) bool {
	return target == ErrMissingDefaultLocale
}
