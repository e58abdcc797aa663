package prompt

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/spjoes/cursor-agent-acp/internal/acptypes"
	"github.com/spjoes/cursor-agent-acp/internal/bridge"
	"github.com/spjoes/cursor-agent-acp/internal/session"
	"github.com/spjoes/cursor-agent-acp/internal/slashcmd"
)

type fakeNotifier struct {
	mu            sync.Mutex
	notifications []acptypes.SessionUpdateNotification
}

func (f *fakeNotifier) SendNotification(method string, params any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if n, ok := params.(acptypes.SessionUpdateNotification); ok {
		f.notifications = append(f.notifications, n)
	}
	return nil
}

func (f *fakeNotifier) updatesOfKind(kind string) []acptypes.SessionUpdate {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []acptypes.SessionUpdate
	for _, n := range f.notifications {
		if n.Update.SessionUpdate == kind {
			out = append(out, n.Update)
		}
	}
	return out
}

func newTestSession(t *testing.T, mgr *session.Manager) *session.Session {
	t.Helper()
	s, err := mgr.Create(session.Metadata{CWD: t.TempDir()})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	return s
}

func TestProcessRefusalDowngradesToEndTurnOnMissingBinary(t *testing.T) {
	dir := t.TempDir()
	mgr := session.NewManager(dir, 0, 0)
	s := newTestSession(t, mgr)

	br := bridge.New("definitely-not-a-real-cursor-agent-binary", zerolog.Nop())
	fn := &fakeNotifier{}
	h := New(mgr, br, fn, slashcmd.New(), 0, 0, zerolog.Nop())

	result, err := h.Process(context.Background(), s.ID, []acptypes.ContentBlock{
		{Type: acptypes.BlockText, Text: "hello"},
	}, false, "req-1")
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if result.StopReason != acptypes.StopEndTurn {
		t.Fatalf("expected stopReason end_turn, got %s", result.StopReason)
	}
	if result.StopReasonDetails.Reason != "capability_unavailable" {
		t.Fatalf("expected capability_unavailable detail, got %q", result.StopReasonDetails.Reason)
	}

	chunks := fn.updatesOfKind("agent_message_chunk")
	if len(chunks) == 0 {
		t.Fatal("expected an agent_message_chunk explaining the refusal")
	}
	found := false
	for _, c := range chunks {
		if c.Content != nil && containsSubstring(c.Content.Text, "not installed or not available in PATH") {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected refusal explanation to mention PATH, got %+v", chunks)
	}
}

func TestProcessEchoesUserMessageBeforeDispatch(t *testing.T) {
	if _, err := os.Stat("/bin/echo"); err != nil {
		t.Skip("/bin/echo not available")
	}
	dir := t.TempDir()
	mgr := session.NewManager(dir, 0, 0)
	s := newTestSession(t, mgr)

	br := bridge.New("/bin/echo", zerolog.Nop())
	fn := &fakeNotifier{}
	h := New(mgr, br, fn, slashcmd.New(), 0, 2*time.Second, zerolog.Nop())

	_, err := h.Process(context.Background(), s.ID, []acptypes.ContentBlock{
		{Type: acptypes.BlockText, Text: "hi there"},
	}, false, "req-1")
	if err != nil {
		t.Fatalf("Process: %v", err)
	}

	echoes := fn.updatesOfKind("user_message_chunk")
	if len(echoes) != 1 {
		t.Fatalf("expected exactly one user_message_chunk, got %d", len(echoes))
	}
	if echoes[0].Content.Text != "hi there" {
		t.Fatalf("unexpected echoed text: %q", echoes[0].Content.Text)
	}
	fn.mu.Lock()
	firstKind := fn.notifications[0].Update.SessionUpdate
	fn.mu.Unlock()
	if firstKind != "user_message_chunk" {
		t.Fatalf("expected the user echo before any other update, got %s first", firstKind)
	}
}

func TestProcessRejectsEmptyPrompt(t *testing.T) {
	dir := t.TempDir()
	mgr := session.NewManager(dir, 0, 0)
	s := newTestSession(t, mgr)

	h := New(mgr, bridge.New("/bin/echo", zerolog.Nop()), &fakeNotifier{}, slashcmd.New(), 0, 0, zerolog.Nop())
	_, err := h.Process(context.Background(), s.ID, nil, false, "req-1")
	if err == nil {
		t.Fatal("expected an error for an empty prompt")
	}
}

func TestProcessSerializesConcurrentPromptsPerSession(t *testing.T) {
	if _, err := os.Stat("/bin/echo"); err != nil {
		t.Skip("/bin/echo not available")
	}
	dir := t.TempDir()
	mgr := session.NewManager(dir, 0, 0)
	s := newTestSession(t, mgr)

	h := New(mgr, bridge.New("/bin/echo", zerolog.Nop()), &fakeNotifier{}, slashcmd.New(), 0, 2*time.Second, zerolog.Nop())

	var wg sync.WaitGroup
	errs := make([]error, 3)
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			_, err := h.Process(context.Background(), s.ID, []acptypes.ContentBlock{
				{Type: acptypes.BlockText, Text: "concurrent"},
			}, false, "req")
			errs[idx] = err
		}(i)
	}
	wg.Wait()
	for _, err := range errs {
		if err != nil {
			t.Fatalf("unexpected error from concurrent prompt: %v", err)
		}
	}

	reloaded, err := mgr.Load(s.ID)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if reloaded.State.MessageCount == 0 {
		t.Fatal("expected at least one persisted assistant message")
	}
}

func containsSubstring(haystack, needle string) bool {
	return len(haystack) >= len(needle) && indexOf(haystack, needle) >= 0
}

func indexOf(haystack, needle string) int {
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if haystack[i:i+len(needle)] == needle {
			return i
		}
	}
	return -1
}
