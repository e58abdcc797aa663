package bridge

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestBackoffDelayIsCappedExponential(t *testing.T) {
	cases := map[int]time.Duration{
		1: 1000 * time.Millisecond,
		2: 2000 * time.Millisecond,
		3: 4000 * time.Millisecond,
		4: 5000 * time.Millisecond,
		5: 5000 * time.Millisecond,
	}
	for attempt, want := range cases {
		if got := backoffDelay(attempt); got != want {
			t.Errorf("backoffDelay(%d) = %v, want %v", attempt, got, want)
		}
	}
}

func TestExtractResponseTextPrefersResultField(t *testing.T) {
	got := extractResponseText(`{"result":"hello","response":"other"}`)
	if got != "hello" {
		t.Fatalf("got %q", got)
	}
}

func TestExtractResponseTextFallsBackToRawOnParseFailure(t *testing.T) {
	got := extractResponseText("not json at all")
	if got != "not json at all" {
		t.Fatalf("got %q", got)
	}
}

func TestExecuteCommandSpawnENOENT(t *testing.T) {
	b := New("definitely-not-a-real-binary-xyz", zerolog.Nop())
	res := b.ExecuteCommand(context.Background(), []string{"--version"}, Options{})
	if res.Success {
		t.Fatal("expected failure for a nonexistent binary")
	}
	if res.Failure != FailureSpawnENOENT {
		t.Fatalf("expected spawn_enoent, got %q (%v)", res.Failure, res.Error)
	}
}

func TestExecuteCommandNeverRetriesOnCancellation(t *testing.T) {
	b := New("sleep", zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res := b.ExecuteCommand(ctx, []string{"1"}, Options{Retries: 3})
	if res.Failure != FailureCancelled {
		t.Fatalf("expected cancelled, got %q", res.Failure)
	}
}
