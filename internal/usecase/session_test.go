package usecase

import (
	"testing"
	"time"

	"pocketsage/internal/domain"
)

func TestSessionRoundTrip(t *testing.T) {
	dir := t.TempDir()
	sm := NewSessionManager(dir)

	s := sm.GetOrCreate("chat-1")
	s.AddMessage(domain.ChatMessage{Role: domain.RoleUser, Content: "hello"})
	s.AddMessage(domain.ChatMessage{Role: domain.RoleAssistant, Content: "hi"})

	if err := sm.Save("chat-1"); err != nil {
		t.Fatalf("Save: %v", err)
	}

	sm2 := NewSessionManager(dir)
	loaded := sm2.GetOrCreate("chat-1")
	msgs := loaded.Messages()
	if len(msgs) != 2 {
		t.Fatalf("loaded %d messages", len(msgs))
	}
	if msgs[0].Content != "hello" || msgs[1].Content != "hi" {
		t.Errorf("messages = %+v", msgs)
	}
}

func TestSessionGetUnknown(t *testing.T) {
	sm := NewSessionManager(t.TempDir())
	if _, err := sm.Get("missing"); err == nil {
		t.Fatal("expected error")
	} else if domain.ErrorCodeOf(err) != domain.CodeSessionNotFound {
		t.Errorf("code = %s", domain.ErrorCodeOf(err))
	}
}

func TestSessionIDValidation(t *testing.T) {
	sm := NewSessionManager(t.TempDir())

	for _, id := range []string{
		"",
		"../escape",
		"a/b",
		`a\b`,
		"nul\x00byte",
	} {
		if err := sm.validateSessionID(id); err == nil {
			t.Errorf("validateSessionID(%q) accepted an unsafe ID", id)
		}
	}

	if err := sm.validateSessionID("01JD2XW9FZK3"); err != nil {
		t.Errorf("rejected a valid ID: %v", err)
	}
}

func TestSessionSaveRejectsUnsafeID(t *testing.T) {
	sm := NewSessionManager(t.TempDir())
	if err := sm.Save("../../etc/passwd"); err == nil {
		t.Fatal("expected error")
	}
}

func TestSessionDelete(t *testing.T) {
	dir := t.TempDir()
	sm := NewSessionManager(dir)
	sm.GetOrCreate("gone")
	if err := sm.Save("gone"); err != nil {
		t.Fatalf("Save: %v", err)
	}

	if err := sm.Delete("gone"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := sm.Get("gone"); err == nil {
		t.Error("session still tracked after delete")
	}
	if _, err := NewSessionManager(dir).loadFromDisk("gone"); err == nil {
		t.Error("session file still on disk")
	}
}

func TestReapStaleSessions(t *testing.T) {
	sm := NewSessionManager(t.TempDir())

	old := sm.GetOrCreate("old")
	old.mu.Lock()
	old.UpdatedAt = time.Now().Add(-48 * time.Hour)
	old.mu.Unlock()

	fresh := sm.GetOrCreate("fresh")
	fresh.AddMessage(domain.ChatMessage{Role: domain.RoleUser, Content: "ping"})

	if n := sm.ReapStaleSessions(24 * time.Hour); n != 1 {
		t.Fatalf("reaped %d, want 1", n)
	}
	if _, err := sm.Get("old"); err == nil {
		t.Error("stale session survived")
	}
	if _, err := sm.Get("fresh"); err != nil {
		t.Error("fresh session reaped")
	}
}

func TestNewSessionHasULID(t *testing.T) {
	s := NewSession()
	if len(s.ID) != 26 {
		t.Errorf("ID %q is not a ULID", s.ID)
	}
}
