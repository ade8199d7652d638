package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"pocketsage/internal/domain"
)

// Note is one stored note.
type Note struct {
	ID        string    `json:"id"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}

// NotesStore is a file-backed note store. Each note is a JSON file named
// by its ULID under the store directory.
type NotesStore struct {
	mu  sync.Mutex
	dir string
}

// NewNotesStore creates the store directory if needed.
func NewNotesStore(dir string) (*NotesStore, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create notes dir: %w", err)
	}
	return &NotesStore{dir: dir}, nil
}

// Save persists a new note and returns it.
func (s *NotesStore) Save(body string) (*Note, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, fmt.Errorf("note body is empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	n := &Note{
		ID:        ulid.Make().String(),
		Body:      body,
		CreatedAt: time.Now().UTC(),
	}
	data, err := json.MarshalIndent(n, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode note: %w", err)
	}
	path := filepath.Join(s.dir, n.ID+".json")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return nil, fmt.Errorf("write note: %w", err)
	}
	return n, nil
}

// List returns all notes, newest first.
func (s *NotesStore) List() ([]Note, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("read notes dir: %w", err)
	}

	var notes []Note
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(s.dir, e.Name()))
		if err != nil {
			continue
		}
		var n Note
		if err := json.Unmarshal(data, &n); err != nil {
			continue
		}
		notes = append(notes, n)
	}
	sort.Slice(notes, func(i, j int) bool { return notes[i].CreatedAt.After(notes[j].CreatedAt) })
	return notes, nil
}

// Search returns notes whose body contains the query, case-insensitive,
// newest first.
func (s *NotesStore) Search(query string) ([]Note, error) {
	all, err := s.List()
	if err != nil {
		return nil, err
	}
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return all, nil
	}
	var hits []Note
	for _, n := range all {
		if strings.Contains(strings.ToLower(n.Body), q) {
			hits = append(hits, n)
		}
	}
	return hits, nil
}

// NotesTools builds the note tools backed by the store.
func NotesTools(store *NotesStore, logger *slog.Logger) []domain.Tool {
	return []domain.Tool{
		{
			Name:        "save_note",
			Description: "Save a short text note for later.",
			Parameters: domain.ParamSpec{
				Properties: map[string]domain.Param{
					"body": {Type: "string", Description: "Note text"},
				},
				Required: []string{"body"},
			},
			Execute: Handler("save_note", logger, func(_ context.Context, p struct {
				Body string `json:"body"`
			}) (any, error) {
				n, err := store.Save(p.Body)
				if err != nil {
					return nil, err
				}
				return fmt.Sprintf("Saved note %s.", n.ID), nil
			}),
		},
		{
			Name:        "search_notes",
			Description: "Search saved notes by text. An empty query lists all notes.",
			Parameters: domain.ParamSpec{
				Properties: map[string]domain.Param{
					"query": {Type: "string", Description: "Text to look for"},
				},
			},
			Execute: Handler("search_notes", logger, func(_ context.Context, p struct {
				Query string `json:"query"`
			}) (any, error) {
				notes, err := store.Search(p.Query)
				if err != nil {
					return nil, err
				}
				if len(notes) == 0 {
					return "No matching notes.", nil
				}
				var b strings.Builder
				for i, n := range notes {
					if i >= 10 {
						fmt.Fprintf(&b, "... and %d more\n", len(notes)-i)
						break
					}
					fmt.Fprintf(&b, "[%s] %s\n", n.CreatedAt.Format("2006-01-02"), n.Body)
				}
				return strings.TrimRight(b.String(), "\n"), nil
			}),
		},
	}
}
