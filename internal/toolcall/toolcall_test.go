package toolcall

import (
	"context"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"github.com/spjoes/cursor-agent-acp/internal/acptypes"
)

type fakeNotifier struct {
	mu            sync.Mutex
	notifications []acptypes.SessionUpdateNotification
	callResult    any
	callErr       error
}

func (f *fakeNotifier) SendNotification(method string, params any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if n, ok := params.(acptypes.SessionUpdateNotification); ok {
		f.notifications = append(f.notifications, n)
	}
	return nil
}

func (f *fakeNotifier) Call(ctx context.Context, method string, params any, result any) error {
	if f.callErr != nil {
		return f.callErr
	}
	if out, ok := result.(*acptypes.RequestPermissionResult); ok && f.callResult != nil {
		*out = *f.callResult.(*acptypes.RequestPermissionResult)
	}
	return nil
}

func TestReportEmitsToolCallNotification(t *testing.T) {
	fn := &fakeNotifier{}
	m := New(fn, zerolog.Nop())

	rec := m.Report("s1", "read_file", map[string]any{"path": "/tmp/x"}, nil)
	if rec.Status != StatusInProgress {
		t.Fatalf("expected default status in_progress, got %s", rec.Status)
	}

	fn.mu.Lock()
	defer fn.mu.Unlock()
	if len(fn.notifications) != 1 {
		t.Fatalf("expected one notification, got %d", len(fn.notifications))
	}
	if fn.notifications[0].Update.SessionUpdate != "tool_call" {
		t.Fatalf("unexpected update kind: %s", fn.notifications[0].Update.SessionUpdate)
	}
	if fn.notifications[0].Update.Title != "Reading file: /tmp/x" {
		t.Fatalf("unexpected title: %s", fn.notifications[0].Update.Title)
	}
}

func TestPermissionFallbackPrefersAllowOnce(t *testing.T) {
	fn := &fakeNotifier{callErr: context.DeadlineExceeded}
	m := New(fn, zerolog.Nop())

	result, err := m.RequestPermission(context.Background(), "s1", "tool_x", []acptypes.PermissionOption{
		{OptionID: "allow-once", Kind: acptypes.PermissionAllowOnce},
		{OptionID: "reject-once", Kind: acptypes.PermissionRejectOnce},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.OptionID != "allow-once" {
		t.Fatalf("expected allow-once fallback, got %s", result.OptionID)
	}
}

func TestPermissionFallbackToRejectOnce(t *testing.T) {
	fn := &fakeNotifier{callErr: context.DeadlineExceeded}
	m := New(fn, zerolog.Nop())

	result, err := m.RequestPermission(context.Background(), "s1", "tool_x", []acptypes.PermissionOption{
		{OptionID: "reject-once", Kind: acptypes.PermissionRejectOnce},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.OptionID != "reject-once" {
		t.Fatalf("expected reject-once fallback, got %s", result.OptionID)
	}
}

func TestKindForUnknownToolIsOther(t *testing.T) {
	if kindFor("some_unlisted_tool") != "other" {
		t.Fatal("expected unlisted tool to classify as other")
	}
}
