package tools

import (
	"context"
	"fmt"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/spjoes/cursor-agent-acp/internal/acperr"
	"github.com/spjoes/cursor-agent-acp/internal/acptypes"
	"github.com/spjoes/cursor-agent-acp/internal/bridge"
)

// CursorProvider exposes cursor-agent's own code subcommands (search,
// analyze, apply, run-tests, info, explain) as typed-flag tools, each a
// shell invocation of the cursor-agent binary.
//
// Generalizes m4xw311-compell/tools/command.go's ExecuteCommandTool
// pattern; doublestar/v4 (already a direct teacher dependency used there
// for isPathRestricted) validates glob-style path arguments before they
// reach the child process.
type CursorProvider struct {
	bridge          *bridge.Bridge
	pathRestrictions []string
}

// NewCursorProvider builds the provider's tools, registering them on reg.
func NewCursorProvider(b *bridge.Bridge, pathRestrictions []string, reg *Registry) {
	p := &CursorProvider{bridge: b, pathRestrictions: pathRestrictions}
	reg.Register(&cursorTool{provider: p, name: "code_search", subcommand: "search", required: []string{"query"}})
	reg.Register(&cursorTool{provider: p, name: "code_analyze", subcommand: "analyze", required: []string{"path"}})
	reg.Register(&cursorTool{provider: p, name: "code_apply", subcommand: "apply", required: []string{"path", "patch"}})
	reg.Register(&cursorTool{provider: p, name: "run_tests", subcommand: "run-tests", required: nil})
	reg.Register(&cursorTool{provider: p, name: "code_info", subcommand: "info", required: nil})
	reg.Register(&cursorTool{provider: p, name: "code_explain", subcommand: "explain", required: []string{"path"}})
}

type cursorTool struct {
	provider   *CursorProvider
	name       string
	subcommand string
	required   []string
}

func (t *cursorTool) Name() string        { return t.name }
func (t *cursorTool) Description() string { return "Invokes cursor-agent " + t.subcommand }
func (t *cursorTool) Required() []string  { return t.required }
func (t *cursorTool) Category() string    { return "terminal" }

func (t *cursorTool) Execute(ctx context.Context, sessionID string, args map[string]any) (*acptypes.ToolsCallResult, error) {
	if path, ok := args["path"].(string); ok && len(t.provider.pathRestrictions) > 0 {
		restricted, err := isPathRestricted(path, t.provider.pathRestrictions)
		if err != nil {
			return nil, acperr.InvalidParams("invalid path restriction pattern: %v", err)
		}
		if restricted {
			return nil, acperr.NewRequestError(acperr.CodeInvalidParams, fmt.Sprintf("path %q is restricted", path), nil)
		}
	}

	cliArgs := append([]string{t.subcommand}, flagsFor(args)...)
	res := t.provider.bridge.ExecuteCommand(ctx, cliArgs, bridge.Options{Retries: 0})
	if !res.Success {
		return nil, &RetryableError{Err: fmt.Errorf("cursor-agent %s failed: %s", t.subcommand, firstNonEmpty(res.Stderr, res.Stdout))}
	}

	return &acptypes.ToolsCallResult{
		Content: []acptypes.ContentBlock{{Type: acptypes.BlockText, Text: res.Stdout}},
	}, nil
}

func flagsFor(args map[string]any) []string {
	var out []string
	for k, v := range args {
		out = append(out, fmt.Sprintf("--%s", k), fmt.Sprintf("%v", v))
	}
	return out
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func isPathRestricted(path string, patterns []string) (bool, error) {
	for _, pattern := range patterns {
		match, err := doublestar.PathMatch(pattern, path)
		if err != nil {
			return false, fmt.Errorf("invalid glob pattern %q: %w", pattern, err)
		}
		if match {
			return true, nil
		}
	}
	return false, nil
}
