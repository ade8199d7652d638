package tool

import (
	"context"
	"testing"
)

func newTestStore(t *testing.T) *NotesStore {
	t.Helper()
	store, err := NewNotesStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	return store
}

func TestNotesSaveAndSearch(t *testing.T) {
	store := newTestStore(t)

	if _, err := store.Save("buy milk"); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if _, err := store.Save("call the dentist"); err != nil {
		t.Fatalf("Save: %v", err)
	}

	all, err := store.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("List len = %d, want 2", len(all))
	}

	hits, err := store.Search("MILK")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) != 1 || hits[0].Body != "buy milk" {
		t.Errorf("Search(MILK) = %+v", hits)
	}
}

func TestNotesSaveRejectsEmpty(t *testing.T) {
	store := newTestStore(t)
	if _, err := store.Save("   "); err == nil {
		t.Fatal("Save accepted a blank note")
	}
}

func TestNotesTools(t *testing.T) {
	store := newTestStore(t)
	tools := NotesTools(store, testLogger())
	if len(tools) != 2 {
		t.Fatalf("got %d tools, want 2", len(tools))
	}

	save, search := tools[0], tools[1]

	res, err := save.Execute(context.Background(), map[string]any{"body": "water the plants"})
	if err != nil || !res.Success {
		t.Fatalf("save_note = %+v, %v", res, err)
	}

	res, err = search.Execute(context.Background(), map[string]any{"query": "plants"})
	if err != nil || !res.Success {
		t.Fatalf("search_notes = %+v, %v", res, err)
	}
	if res.Formatted == "" || res.Formatted == "No matching notes." {
		t.Errorf("search_notes found nothing: %+v", res)
	}

	res, err = search.Execute(context.Background(), map[string]any{"query": "unicorns"})
	if err != nil {
		t.Fatal(err)
	}
	if res.Formatted != "No matching notes." {
		t.Errorf("Formatted = %q, want no-match message", res.Formatted)
	}
}
