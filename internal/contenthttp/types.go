package contenthttp

import (
	"time"

	"github.com/keithlinneman/sitecontent/internal/content"
	"github.com/keithlinneman/sitecontent/internal/locale"
)

// EntryData is the wire form of one resolved entry.
type EntryData struct {
	ID          string         `json:"id"`
	Locale      string         `json:"locale"`
	PublishedAt *time.Time     `json:"publishedAt"`
	UpdatedAt   *time.Time     `json:"updatedAt,omitempty"`
	Attributes  map[string]any `json:"attributes"`
}

func entryData(e content.Entry) EntryData {
	d := EntryData{ID: e.EntryID, Locale: e.Locale, PublishedAt: e.PublishedAt, Attributes: e.Fields}
	if !e.UpdatedAt.IsZero() {
		t := e.UpdatedAt
		d.UpdatedAt = &t
	}
	if d.Attributes == nil {
		d.Attributes = map[string]any{}
	}
	return d
}

// EntryMeta reports how an entry was resolved.
type EntryMeta struct {
	RequestedLocale string `json:"requested_locale"`
	Fallback        bool   `json:"fallback"`
}

type entryResponse struct {
	Data EntryData `json:"data"`
	Meta EntryMeta `json:"meta"`
}

type listMeta struct {
	Locale string `json:"locale"`
	Count  int    `json:"count"`
}

type listResponse struct {
	Data []EntryData `json:"data"`
	Meta listMeta    `json:"meta"`
}

type localesResponse struct {
	Data []locale.Info `json:"data"`
}

// BundleInfo describes the active content bundle.
type BundleInfo struct {
	Version    string         `json:"version"`
	SHA256     string         `json:"sha256"`
	Source     content.Source `json:"source"`
	Signed     bool           `json:"signed"`
	Entries    int            `json:"entries"`
	LoadedAt   time.Time      `json:"loaded_at"`
	ServerTime time.Time      `json:"server_time"`
}

type errorResponse struct {
	Data  any         `json:"data"`
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Status  int            `json:"status"`
	Name    string         `json:"name"`
	Message string         `json:"message"`
	Details map[string]any `json:"details"`
}
