package tools

import (
	"context"
	"fmt"

	"github.com/spjoes/cursor-agent-acp/internal/acperr"
	"github.com/spjoes/cursor-agent-acp/internal/acptypes"
)

// Caller issues requests to the connected client -- satisfied by
// *transport.Transport. Kept as a narrow interface here so this package
// never imports transport directly.
type Caller interface {
	Call(ctx context.Context, method string, params any, result any) error
}

// FilesystemProvider forwards read_file/write_file to the client's own
// fs/read_text_file and fs/write_text_file, rather than touching disk --
// unlike m4xw311-compell/tools/filesystem.go, which touches disk directly
// because that teacher has no remote client to forward to. The dispatcher
// calls NewFilesystemProvider only once initialize has declared both fs
// capabilities; this package has no gating of its own.
type FilesystemProvider struct {
	caller Caller
}

// NewFilesystemProvider registers read_file/write_file on reg. Callers
// are responsible for only invoking this once the client capability gate
// has been checked.
func NewFilesystemProvider(caller Caller, reg *Registry) {
	p := &FilesystemProvider{caller: caller}
	reg.Register(&readFileTool{provider: p})
	reg.Register(&writeFileTool{provider: p})
}

type readFileTool struct{ provider *FilesystemProvider }

func (t *readFileTool) Name() string        { return "read_file" }
func (t *readFileTool) Description() string { return "Reads a text file via the connected editor" }
func (t *readFileTool) Required() []string  { return []string{"path"} }
func (t *readFileTool) Category() string    { return "filesystem" }

func (t *readFileTool) Execute(ctx context.Context, sessionID string, args map[string]any) (*acptypes.ToolsCallResult, error) {
	path, ok := args["path"].(string)
	if !ok || path == "" {
		return nil, acperr.InvalidParams("missing or invalid 'path' argument")
	}

	params := acptypes.ReadTextFileParams{SessionID: sessionID, Path: path}
	if v, ok := args["line"]; ok {
		n, err := positiveInt(v)
		if err != nil {
			return nil, acperr.InvalidParams("'line' must be a positive integer")
		}
		params.Line = &n
	}
	if v, ok := args["limit"]; ok {
		n, err := positiveInt(v)
		if err != nil {
			return nil, acperr.InvalidParams("'limit' must be a positive integer")
		}
		params.Limit = &n
	}

	var result acptypes.ReadTextFileResult
	if err := t.provider.caller.Call(ctx, "fs/read_text_file", params, &result); err != nil {
		return nil, &RetryableError{Err: fmt.Errorf("fs/read_text_file: %w", err)}
	}

	return &acptypes.ToolsCallResult{
		Content: []acptypes.ContentBlock{{Type: acptypes.BlockText, Text: result.Content}},
		Meta: map[string]any{
			"lineCount":             lineCount(result.Content),
			"acpMethod":             "fs/read_text_file",
			"includesUnsavedChanges": true,
			"sessionId":             sessionID,
		},
	}, nil
}

type writeFileTool struct{ provider *FilesystemProvider }

func (t *writeFileTool) Name() string { return "write_file" }
func (t *writeFileTool) Description() string {
	return "Writes a text file via the connected editor"
}
func (t *writeFileTool) Required() []string { return []string{"path"} }
func (t *writeFileTool) Category() string   { return "filesystem" }

func (t *writeFileTool) Execute(ctx context.Context, sessionID string, args map[string]any) (*acptypes.ToolsCallResult, error) {
	path, ok := args["path"].(string)
	if !ok || path == "" {
		return nil, acperr.InvalidParams("missing or invalid 'path' argument")
	}

	content, present := args["content"]
	if !present {
		return nil, acperr.InvalidParams("Content is required. To create an empty file, pass an empty string.")
	}
	text, ok := content.(string)
	if !ok {
		text = fmt.Sprintf("%v", content)
	}

	params := acptypes.WriteTextFileParams{SessionID: sessionID, Path: path, Content: text}
	var result acptypes.WriteTextFileResult
	if err := t.provider.caller.Call(ctx, "fs/write_text_file", params, &result); err != nil {
		return nil, &RetryableError{Err: fmt.Errorf("fs/write_text_file: %w", err)}
	}

	return &acptypes.ToolsCallResult{
		Meta: map[string]any{"acpMethod": "fs/write_text_file", "sessionId": sessionID},
	}, nil
}

func positiveInt(v any) (int, error) {
	switch n := v.(type) {
	case int:
		if n <= 0 {
			return 0, fmt.Errorf("must be positive")
		}
		return n, nil
	case float64:
		if n <= 0 {
			return 0, fmt.Errorf("must be positive")
		}
		return int(n), nil
	default:
		return 0, fmt.Errorf("not a number")
	}
}

func lineCount(content string) int {
	if content == "" {
		return 1
	}
	count := 1
	for _, r := range content {
		if r == '\n' {
			count++
		}
	}
	return count
}
