package site

import (
	"encoding/json"

	"github.com/keithlinneman/sitecontent/internal/locale"
)

// Document is one fully resolved site document.
type Document struct {
	Locale           string
	SlotTableVersion string
	Slots            map[string]map[string]any
	// Fallbacks maps slot name to the locale actually served, for slots
	// that did not resolve in the requested locale.
	Fallbacks map[string]string
}

func newDocument(version string, slots []Slot, results []locale.Resolution) *Document {
	d := &Document{
		SlotTableVersion: version,
		Slots:            make(map[string]map[string]any, len(slots)),
		Fallbacks:        map[string]string{},
	}
	for i, s := range slots {
		fields := results[i].Entry.Fields
		if fields == nil {
			fields = map[string]any{}
		}
		d.Slots[s.Name] = fields
		if results[i].Fallback {
			d.Fallbacks[s.Name] = results[i].Entry.Locale
		}
	}
	return d
}

type documentMeta struct {
	Locale           string            `json:"locale"`
	SlotTableVersion string            `json:"slot_table_version"`
	Fallbacks        map[string]string `json:"fallbacks"`
}

// MarshalJSON renders {"data": {slot: fields}, "meta": {...}}.
func (d *Document) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Data map[string]map[string]any `json:"data"`
		Meta documentMeta              `json:"meta"`
	}{
		Data: d.Slots,
		Meta: documentMeta{Locale: d.Locale, SlotTableVersion: d.SlotTableVersion, Fallbacks: d.Fallbacks},
	})
}
