package site

import (
	"bytes"
	_ "embed"
	"io"
	"os"
	"regexp"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"gopkg.in/yaml.v3"

	"github.com/keithlinneman/sitecontent/internal/content"
	"github.com/keithlinneman/sitecontent/internal/locale"
	"github.com/keithlinneman/sitecontent/internal/xerrors"
)

//go:embed slots.yaml
var defaultTableYAML []byte

var (
	slotNamePattern    = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)
	contentTypePattern = regexp.MustCompile(`^[a-z][a-z0-9-]*$`)
)

// Slot maps a document position to the entry that fills it.
type Slot struct {
	Name        string
	ContentType string
	EntryID     string
	Fallback    locale.Rule
}

// SlotTable is the immutable slot configuration. Slot order is the order
// of the source file and decides which failure is reported first.
type SlotTable struct {
	version string
	slots   []Slot
	byType  map[string]Slot
}

type rawSlot struct {
	Name        string `yaml:"name"`
	ContentType string `yaml:"content_type"`
	EntryID     string `yaml:"entry_id"`
	Fallback    string `yaml:"fallback"`
}

func (s rawSlot) Validate() error {
	return validation.ValidateStruct(&s,
		validation.Field(&s.Name, validation.Required, validation.Match(slotNamePattern)),
		validation.Field(&s.ContentType, validation.Required, validation.Match(contentTypePattern)),
		validation.Field(&s.Fallback, validation.In(string(locale.RuleChain), string(locale.RuleDefaultOnly))),
	)
}

type rawTable struct {
	Version        string    `yaml:"version"`
	DefaultEntryID string    `yaml:"default_entry_id"`
	Slots          []rawSlot `yaml:"slots"`
}

func (t rawTable) Validate() error {
	return validation.ValidateStruct(&t,
		validation.Field(&t.Version, validation.Required),
		validation.Field(&t.Slots, validation.Required, validation.By(uniqueNames)),
	)
}

func uniqueNames(value any) error {
	slots, _ := value.([]rawSlot)
	seen := make(map[string]bool, len(slots))
	for _, s := range slots {
		if seen[s.Name] {
			return validation.NewError("site.slot.duplicate", "duplicate slot name "+s.Name)
		}
		seen[s.Name] = true
	}
	return nil
}

// LoadSlotTable parses and validates a YAML slot table.
func LoadSlotTable(r io.Reader) (*SlotTable, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var raw rawTable
	if err := dec.Decode(&raw); err != nil {
		return nil, xerrors.Wrap(err, "decode slot table")
	}
	if err := raw.Validate(); err != nil {
		return nil, xerrors.Wrap(err, "invalid slot table")
	}

	defID := raw.DefaultEntryID
	if defID == "" {
		defID = content.SingletonID
	}
	t := &SlotTable{
		version: raw.Version,
		slots:   make([]Slot, len(raw.Slots)),
		byType:  make(map[string]Slot, len(raw.Slots)),
	}
	for i, rs := range raw.Slots {
		s := Slot{Name: rs.Name, ContentType: rs.ContentType, EntryID: rs.EntryID, Fallback: locale.Rule(rs.Fallback)}
		if s.EntryID == "" {
			s.EntryID = defID
		}
		if s.Fallback == "" {
			s.Fallback = locale.RuleChain
		}
		t.slots[i] = s
		if _, ok := t.byType[s.ContentType]; !ok {
			t.byType[s.ContentType] = s
		}
	}
	return t, nil
}

// LoadSlotTableFile reads a slot table from disk.
func LoadSlotTableFile(path string) (*SlotTable, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, xerrors.Wrapf(err, "open slot table %s", path)
	}
	defer f.Close()
	return LoadSlotTable(f)
}

// DefaultSlotTable returns the compiled-in table.
func DefaultSlotTable() *SlotTable {
	t, err := LoadSlotTable(bytes.NewReader(defaultTableYAML))
	if err != nil {
		panic("embedded slot table: " + err.Error())
	}
	return t
}

func (t *SlotTable) Version() string { return t.version }

func (t *SlotTable) Len() int { return len(t.slots) }

// Slots returns a copy of the slots in table order.
func (t *SlotTable) Slots() []Slot {
	out := make([]Slot, len(t.slots))
	copy(out, t.slots)
	return out
}

// SlotForType returns the first slot filled from contentType.
func (t *SlotTable) SlotForType(contentType string) (Slot, bool) {
	s, ok := t.byType[contentType]
	return s, ok
}

// ContentTypes lists the distinct content types in table order.
func (t *SlotTable) ContentTypes() []string {
	out := make([]string, 0, len(t.byType))
	seen := make(map[string]bool, len(t.byType))
	for _, s := range t.slots {
		if !seen[s.ContentType] {
			seen[s.ContentType] = true
			out = append(out, s.ContentType)
		}
	}
	return out
}

// Required lists the groups a bundle must carry to serve every slot.
func (t *SlotTable) Required() []content.GroupRef {
	out := make([]content.GroupRef, len(t.slots))
	for i, s := range t.slots {
		out[i] = content.GroupRef{ContentType: s.ContentType, EntryID: s.EntryID}
	}
	return out
}
