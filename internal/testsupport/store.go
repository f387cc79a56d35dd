package testsupport

import (
	"context"
	"testing"

	"songfactory/internal/catalog"
	"songfactory/internal/config"
)

// MustOpenStore opens a catalog.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *catalog.Store {
	t.Helper()

	store, err := catalog.Open(cfg)
	if err != nil {
		t.Fatalf("catalog.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// NewRecord inserts a queued record with a generic prompt.
func NewRecord(t testing.TB, store *catalog.Store, title string) *catalog.Record {
	t.Helper()

	rec, err := store.NewRecord(context.Background(), catalog.NewRecordParams{
		Title:  title,
		Prompt: "upbeat synthwave about " + title,
		Lyrics: "[Verse]\nla la la",
	})
	if err != nil {
		t.Fatalf("store.NewRecord: %v", err)
	}
	return rec
}
