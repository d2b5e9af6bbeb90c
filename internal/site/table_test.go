package site

import (
	"strings"
	"testing"

	"github.com/keithlinneman/sitecontent/internal/content"
	"github.com/keithlinneman/sitecontent/internal/locale"
)

func TestDefaultSlotTable(t *testing.T) {
	tbl := DefaultSlotTable()
	if tbl.Version() == "" {
		t.Fatal("embedded table has no version")
	}
	if tbl.Len() != 48 {
		t.Fatalf("Len = %d, want 48", tbl.Len())
	}
	s, ok := tbl.SlotForType("c")
	if !ok || s.Name != "coach_marker" || s.EntryID != content.SingletonID || s.Fallback != locale.RuleChain {
		t.Fatalf("coach marker slot = %+v, %v", s, ok)
	}
	if s, _ := tbl.SlotForType("privacy-policy"); s.Fallback != locale.RuleDefaultOnly {
		t.Fatalf("privacy policy fallback = %s", s.Fallback)
	}
	if got := tbl.Slots(); got[0].Name != "ahem_ahem_pop_up" || got[len(got)-1].Name != "web_footer" {
		t.Fatalf("table order not preserved: first=%s last=%s", got[0].Name, got[len(got)-1].Name)
	}
	if len(tbl.Required()) != 48 || len(tbl.ContentTypes()) != 48 {
		t.Fatal("Required/ContentTypes size mismatch")
	}
}

func TestLoadSlotTable_Rejects(t *testing.T) {
	tests := map[string]string{
		"no version":     "slots:\n  - {name: a, content_type: a}\n",
		"no slots":       "version: v1\nslots: []\n",
		"duplicate name": "version: v1\nslots:\n  - {name: a, content_type: a}\n  - {name: a, content_type: b}\n",
		"bad slot name":  "version: v1\nslots:\n  - {name: A-b, content_type: a}\n",
		"bad type":       "version: v1\nslots:\n  - {name: a, content_type: A_B}\n",
		"bad fallback":   "version: v1\nslots:\n  - {name: a, content_type: a, fallback: nearest}\n",
		"unknown key":    "version: v1\nextra: 1\nslots:\n  - {name: a, content_type: a}\n",
		"not yaml":       "version: [",
	}
	for name, in := range tests {
		if _, err := LoadSlotTable(strings.NewReader(in)); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}

func TestLoadSlotTable_Defaults(t *testing.T) {
	in := "version: v1\nslots:\n  - {name: faq, content_type: faq}\n  - {name: top_faq, content_type: faq, entry_id: top}\n"
	tbl, err := LoadSlotTable(strings.NewReader(in))
	if err != nil {
		t.Fatal(err)
	}
	slots := tbl.Slots()
	if slots[0].EntryID != content.SingletonID || slots[1].EntryID != "top" {
		t.Fatalf("entry ids = %s, %s", slots[0].EntryID, slots[1].EntryID)
	}
	if got := tbl.ContentTypes(); len(got) != 1 || got[0] != "faq" {
		t.Fatalf("ContentTypes = %v", got)
	}

	// callers cannot mutate the table through Slots
	slots[0].Name = "changed"
	if tbl.Slots()[0].Name != "faq" {
		t.Fatal("table mutated through Slots copy")
	}
}
