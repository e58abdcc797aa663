package session

import (
	"os"
	"testing"
	"time"

	"github.com/spjoes/cursor-agent-acp/internal/acptypes"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	dir, err := os.MkdirTemp("", "cursor-agent-acp-sessions-*")
	if err != nil {
		t.Fatalf("MkdirTemp: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })
	return NewManager(dir, 10, time.Hour)
}

func TestCreateRejectsRelativeCWD(t *testing.T) {
	m := newTestManager(t)
	_, err := m.Create(Metadata{CWD: "./x"})
	if err == nil {
		t.Fatal("expected an error for a relative cwd")
	}
}

func TestCreateDefaultsModeAndModel(t *testing.T) {
	m := newTestManager(t)
	s, err := m.Create(Metadata{CWD: "/tmp/project"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if s.State.CurrentModeID != DefaultMode {
		t.Fatalf("expected default mode %q, got %q", DefaultMode, s.State.CurrentModeID)
	}
	if s.State.CurrentModelID != DefaultModel {
		t.Fatalf("expected default model %q, got %q", DefaultModel, s.State.CurrentModelID)
	}
}

func TestAddMessageKeepsCountInSync(t *testing.T) {
	m := newTestManager(t)
	s, err := m.Create(Metadata{CWD: "/tmp/project"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	msg := Message{
		ID:        "m1",
		Role:      "user",
		Content:   []acptypes.ContentBlock{{Type: acptypes.BlockText, Text: "hello"}},
		Timestamp: time.Now(),
	}
	if err := m.AddMessage(s.ID, msg); err != nil {
		t.Fatalf("AddMessage: %v", err)
	}

	loaded, err := m.Load(s.ID)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.State.MessageCount != len(loaded.Conversation) {
		t.Fatalf("messageCount %d != len(conversation) %d", loaded.State.MessageCount, len(loaded.Conversation))
	}
	if loaded.Metadata.CWD != "/tmp/project" {
		t.Fatalf("cwd drifted: %q", loaded.Metadata.CWD)
	}
}

func TestSetModeRejectsUnknownMode(t *testing.T) {
	m := newTestManager(t)
	s, _ := m.Create(Metadata{CWD: "/tmp/project"})
	if _, err := m.SetMode(s.ID, "bogus"); err == nil {
		t.Fatal("expected an error for an unknown mode")
	}
}

func TestSetModeReturnsPrevious(t *testing.T) {
	m := newTestManager(t)
	s, _ := m.Create(Metadata{CWD: "/tmp/project"})
	prev, err := m.SetMode(s.ID, "code")
	if err != nil {
		t.Fatalf("SetMode: %v", err)
	}
	if prev != "ask" {
		t.Fatalf("expected previous mode ask, got %q", prev)
	}
}

func TestDeleteIsIdempotent(t *testing.T) {
	m := newTestManager(t)
	s, _ := m.Create(Metadata{CWD: "/tmp/project"})
	if err := m.Delete(s.ID); err != nil {
		t.Fatalf("first delete: %v", err)
	}
	if err := m.Delete(s.ID); err != nil {
		t.Fatalf("second delete should be a no-op: %v", err)
	}
}

func TestLoadRehydratesFromDisk(t *testing.T) {
	m := newTestManager(t)
	s, _ := m.Create(Metadata{CWD: "/tmp/project"})

	m2 := NewManager(m.dir, 10, time.Hour)
	loaded, err := m2.Load(s.ID)
	if err != nil {
		t.Fatalf("Load from disk: %v", err)
	}
	if loaded.ID != s.ID {
		t.Fatalf("expected id %s, got %s", s.ID, loaded.ID)
	}
}
