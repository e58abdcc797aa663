package tools

import (
	"context"
	"errors"
	"testing"

	"github.com/spjoes/cursor-agent-acp/internal/acperr"
	"github.com/spjoes/cursor-agent-acp/internal/acptypes"
)

type stubCaller struct {
	result  acptypes.ReadTextFileResult
	wresult acptypes.WriteTextFileResult
	err     error
}

func (s *stubCaller) Call(ctx context.Context, method string, params any, result any) error {
	if s.err != nil {
		return s.err
	}
	switch r := result.(type) {
	case *acptypes.ReadTextFileResult:
		*r = s.result
	case *acptypes.WriteTextFileResult:
		*r = s.wresult
	}
	return nil
}

func TestWriteFileRequiresContent(t *testing.T) {
	reg := NewRegistry()
	NewFilesystemProvider(&stubCaller{}, reg)

	_, err := reg.Call(context.Background(), "s1", "write_file", map[string]any{"path": "/tmp/x.txt"})
	if err == nil {
		t.Fatal("expected an error for missing content")
	}
	var reqErr *acperr.RequestError
	if !errors.As(err, &reqErr) || reqErr.Message != "Content is required. To create an empty file, pass an empty string." {
		t.Fatalf("unexpected message: %q", err.Error())
	}
}

func TestReadFileEmptyContentMetadataParity(t *testing.T) {
	reg := NewRegistry()
	NewFilesystemProvider(&stubCaller{result: acptypes.ReadTextFileResult{Content: ""}}, reg)

	result, err := reg.Call(context.Background(), "sid-1", "read_file", map[string]any{"path": "/tmp/x.txt"})
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if result.Meta["lineCount"] != 1 {
		t.Fatalf("expected lineCount 1, got %v", result.Meta["lineCount"])
	}
	if result.Meta["acpMethod"] != "fs/read_text_file" {
		t.Fatalf("unexpected acpMethod: %v", result.Meta["acpMethod"])
	}
	if result.Meta["includesUnsavedChanges"] != true {
		t.Fatal("expected includesUnsavedChanges true")
	}
	if result.Meta["sessionId"] != "sid-1" {
		t.Fatalf("unexpected sessionId: %v", result.Meta["sessionId"])
	}
	if result.Metadata != nil {
		t.Fatal("expected no top-level metadata on the tool result")
	}
}

func TestCallMissingRequiredParameterFailsFast(t *testing.T) {
	reg := NewRegistry()
	NewFilesystemProvider(&stubCaller{}, reg)

	_, err := reg.Call(context.Background(), "s1", "read_file", map[string]any{})
	if err == nil {
		t.Fatal("expected a missing-parameter error")
	}
}

func TestValidationErrorsAreNeverRetryable(t *testing.T) {
	var target *RetryableError
	err := errors.New("missing or invalid 'path' argument")
	if asRetryable(err, &target) {
		t.Fatal("a plain validation error must never classify as retryable")
	}
}

func TestTransientFailuresAreRetryable(t *testing.T) {
	var target *RetryableError
	err := &RetryableError{Err: errors.New("boom")}
	if !asRetryable(err, &target) {
		t.Fatal("expected a RetryableError to classify as retryable")
	}
}

func TestUnknownToolFails(t *testing.T) {
	reg := NewRegistry()
	_, err := reg.Call(context.Background(), "s1", "does_not_exist", nil)
	if err == nil {
		t.Fatal("expected an error for an unknown tool")
	}
}
