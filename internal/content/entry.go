package content

import (
	"regexp"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"golang.org/x/text/language"

	"github.com/keithlinneman/sitecontent/internal/xerrors"
)

// SingletonID is the entry id used by content types that hold exactly one
// logical record (page sections, global settings).
const SingletonID = "singleton"

var identPattern = regexp.MustCompile(`^[a-z][a-z0-9-]*$`)

// Key identifies one localized entry.
type Key struct {
	ContentType string
	EntryID     string
	Locale      string
}

func (k Key) String() string { return k.ContentType + "/" + k.EntryID + "@" + k.Locale }

// Entry is one localized variant of a logical content record.
// A nil PublishedAt marks the entry as a draft.
type Entry struct {
	ContentType string         `json:"content_type"`
	EntryID     string         `json:"entry_id"`
	Locale      string         `json:"locale"`
	Fields      map[string]any `json:"fields"`
	PublishedAt *time.Time     `json:"published_at,omitempty"`
	UpdatedAt   time.Time      `json:"updated_at,omitzero"`
}

func (e Entry) Key() Key { return Key{ContentType: e.ContentType, EntryID: e.EntryID, Locale: e.Locale} }

// Published reports whether the entry is visible to published-only reads.
func (e Entry) Published() bool { return e.PublishedAt != nil }

// Validate checks identity fields. Locales must already be in canonical
// BCP 47 form so lookups never depend on the spelling a producer used.
func (e Entry) Validate() error {
	return validation.ValidateStruct(&e,
		validation.Field(&e.ContentType, validation.Required, validation.Match(identPattern)),
		validation.Field(&e.EntryID, validation.Required, validation.Length(1, 128)),
		validation.Field(&e.Locale, validation.Required, validation.By(canonicalRule)),
	)
}

func canonicalRule(value any) error {
	s, _ := value.(string)
	c, err := CanonicalLocale(s)
	if err != nil {
		return validation.NewError("content.locale.invalid", "must be a BCP 47 language tag")
	}
	if c != s {
		return validation.NewError("content.locale.not_canonical", "must be written as "+c)
	}
	return nil
}

// CanonicalLocale parses a BCP 47 tag and returns its canonical spelling,
// e.g. "en-us" becomes "en-US".
func CanonicalLocale(s string) (string, error) {
	tag, err := language.Parse(s)
	if err != nil {
		return "", xerrors.Wrapf(err, "parse locale %q", s)
	}
	return tag.String(), nil
}

// cloneEntry copies e deeply enough that no map or slice reachable from
// the result is shared with the store.
func cloneEntry(e Entry) Entry {
	if e.Fields != nil {
		e.Fields = cloneFields(e.Fields)
	}
	if e.PublishedAt != nil {
		t := *e.PublishedAt
		e.PublishedAt = &t
	}
	return e
}

func cloneFields(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

// cloneValue copies the container shapes JSON decoding produces. Other
// values are scalars and are returned as is.
func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return cloneFields(t)
	case []any:
		out := make([]any, len(t))
		for i, x := range t {
			out[i] = cloneValue(x)
		}
		return out
	case []map[string]any:
		out := make([]map[string]any, len(t))
		for i, x := range t {
			out[i] = cloneFields(x)
		}
		return out
	}
	return v
}
