package locale

import (
	"golang.org/x/text/language"
	"golang.org/x/text/language/display"

	"github.com/keithlinneman/sitecontent/internal/content"
	"github.com/keithlinneman/sitecontent/internal/xerrors"
)

// Info describes one configured locale.
type Info struct {
	Code       string `json:"code"`
	Name       string `json:"name"`
	NativeName string `json:"native_name"`
	IsDefault  bool   `json:"isDefault"`
}

// Catalog is the ordered set of locales the site publishes.
type Catalog struct {
	infos []Info
}

// NewCatalog canonicalizes codes and requires the default to be among them.
// The default is listed first.
func NewCatalog(defaultLocale string, codes []string) (*Catalog, error) {
	def, err := content.CanonicalLocale(defaultLocale)
	if err != nil {
		return nil, xerrors.Mark(err, ErrInvalidLocale)
	}
	tags := []language.Tag{language.Make(def)}
	seen := map[string]bool{def: true}
	for _, c := range codes {
		s, err := content.CanonicalLocale(c)
		if err != nil {
			return nil, xerrors.Mark(err, ErrInvalidLocale)
		}
		if !seen[s] {
			seen[s] = true
			tags = append(tags, language.Make(s))
		}
	}

	infos := make([]Info, len(tags))
	for i, t := range tags {
		infos[i] = Info{
			Code:       t.String(),
			Name:       display.English.Tags().Name(t),
			NativeName: display.Self.Name(t),
			IsDefault:  i == 0,
		}
	}
	return &Catalog{infos: infos}, nil
}

// Locales returns the configured locales, default first.
func (c *Catalog) Locales() []Info {
	out := make([]Info, len(c.infos))
	copy(out, c.infos)
	return out
}

// Default returns the default locale code.
func (c *Catalog) Default() string { return c.infos[0].Code }
