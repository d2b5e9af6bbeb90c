package pgstore

import (
	"errors"
	"os"
	"testing"
	"time"

	"github.com/keithlinneman/sitecontent/internal/content"
)

// openTestStore connects to SITECONTENT_TEST_DATABASE_URL, migrates, and
// empties the table. Tests skip when the variable is unset.
func openTestStore(t *testing.T) *Store {
	t.Helper()
	url := os.Getenv("SITECONTENT_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("SITECONTENT_TEST_DATABASE_URL not set")
	}
	s, err := Open(t.Context(), Options{DatabaseURL: url, MaxConns: 4})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(s.Close)
	if err := s.Migrate(t.Context()); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	if _, err := s.pool.Exec(t.Context(), `TRUNCATE content_entries`); err != nil {
		t.Fatalf("truncate: %v", err)
	}
	return s
}

func published(typ, id, loc string, fields map[string]any) content.Entry {
	ts := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	return content.Entry{ContentType: typ, EntryID: id, Locale: loc, Fields: fields, PublishedAt: &ts}
}

func TestStore_PutGetList(t *testing.T) {
	s := openTestStore(t)
	ctx := t.Context()

	if err := s.Put(ctx, published("faq", "a", "en", map[string]any{"q": "why"})); err != nil {
		t.Fatalf("Put: %v", err)
	}
	draft := published("faq", "a", "hi", nil)
	draft.PublishedAt = nil
	if err := s.Put(ctx, draft); err != nil {
		t.Fatalf("Put draft: %v", err)
	}

	e, err := s.Get(ctx, "faq", "a", "en")
	if err != nil || e.Fields["q"] != "why" || !e.Published() {
		t.Fatalf("Get = %+v, %v", e, err)
	}
	d, err := s.Get(ctx, "faq", "a", "hi")
	if err != nil || d.Published() {
		t.Fatalf("draft Get = %+v, %v", d, err)
	}

	list, err := s.List(ctx, "faq", "en")
	if err != nil || len(list) != 1 {
		t.Fatalf("List = %+v, %v", list, err)
	}
	locales, err := s.Locales(ctx, "faq", "a")
	if err != nil || len(locales) != 2 || locales[0] != "en" || locales[1] != "hi" {
		t.Fatalf("Locales = %v, %v", locales, err)
	}
}

func TestStore_UniqueIdentity(t *testing.T) {
	s := openTestStore(t)
	ctx := t.Context()
	if err := s.Put(ctx, published("faq", "a", "en", nil)); err != nil {
		t.Fatal(err)
	}
	if err := s.Put(ctx, published("faq", "a", "en", nil)); !errors.Is(err, content.ErrDuplicateEntry) {
		t.Fatalf("err = %v, want ErrDuplicateEntry", err)
	}
}

func TestStore_GetNotFound(t *testing.T) {
	s := openTestStore(t)
	if _, err := s.Get(t.Context(), "faq", "nope", "en"); !errors.Is(err, content.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestStore_ImportIsAtomic(t *testing.T) {
	s := openTestStore(t)
	ctx := t.Context()
	err := s.Import(ctx, []content.Entry{
		published("faq", "a", "en", nil),
		published("faq", "a", "en", nil),
	})
	if !errors.Is(err, content.ErrDuplicateEntry) {
		t.Fatalf("err = %v, want ErrDuplicateEntry", err)
	}
	if n, _ := s.Count(ctx); n != 0 {
		t.Fatalf("Count = %d after failed import, want 0", n)
	}
}

func TestMigrationsEmbedded(t *testing.T) {
	entries, err := migrations.ReadDir("migrations")
	if err != nil || len(entries) == 0 {
		t.Fatalf("embedded migrations = %v, %v", entries, err)
	}
}
