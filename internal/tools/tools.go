// Package tools implements the tool registry: provider catalog, parameter
// validation, and the retry policy for transient provider failures.
//
// Generalizes m4xw311-compell/tools.ToolRegistry's Register/GetTool/
// GetActiveTools shape into a registry serving the two providers of spec
// section 4.8 (Cursor and Filesystem) plus any declared MCP servers.
package tools

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/spjoes/cursor-agent-acp/internal/acperr"
	"github.com/spjoes/cursor-agent-acp/internal/acptypes"
	"github.com/spjoes/cursor-agent-acp/internal/tools/mcp"
)

// Tool is the interface every provider-exposed action satisfies.
type Tool interface {
	Name() string
	Description() string
	Required() []string
	// Category is the availableTools restriction bucket a mode's policy
	// gates on ("filesystem", "terminal", or "mcp"), per spec section 4.3.
	Category() string
	Execute(ctx context.Context, sessionID string, args map[string]any) (*acptypes.ToolsCallResult, error)
}

// RetryableError marks a failure as transient; the registry retries it up
// to three times with linear backoff. Validation, permission, and
// not-found errors must never be wrapped in this and so never retry.
type RetryableError struct{ Err error }

func (e *RetryableError) Error() string { return e.Err.Error() }
func (e *RetryableError) Unwrap() error { return e.Err }

const maxTransientRetries = 3

// Registry owns every tool available to a session.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register adds or overwrites a tool.
func (r *Registry) Register(t Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[t.Name()] = t
}

// RegisterMCPClient surfaces every tool an MCP client exposes, namespaced
// "server.tool".
func (r *Registry) RegisterMCPClient(client *mcp.Client) {
	for _, t := range client.Tools() {
		r.Register(&mcpAdapter{tool: t})
	}
}

// Get returns the tool registered under name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// List returns every registered tool's descriptor, sorted by name for
// stable output.
func (r *Registry) List() []acptypes.ToolDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]acptypes.ToolDescriptor, 0, len(r.tools))
	for _, t := range r.tools {
		out = append(out, acptypes.ToolDescriptor{
			Name:        t.Name(),
			Description: t.Description(),
			Required:    t.Required(),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Call validates required parameters, then invokes the tool, retrying
// transient failures up to three times with linear backoff of 1s*attempt.
func (r *Registry) Call(ctx context.Context, sessionID, name string, args map[string]any) (*acptypes.ToolsCallResult, error) {
	t, ok := r.Get(name)
	if !ok {
		return nil, acperr.NewRequestError(acperr.CodeInvalidParams, "unknown tool: "+name, nil)
	}

	for _, field := range t.Required() {
		if _, present := args[field]; !present {
			return nil, acperr.InvalidParams("missing required parameter %q for tool %q", field, name)
		}
	}

	var lastErr error
	for attempt := 1; attempt <= maxTransientRetries+1; attempt++ {
		result, err := t.Execute(ctx, sessionID, args)
		if err == nil {
			return result, nil
		}
		lastErr = err

		var retryable *RetryableError
		if !asRetryable(err, &retryable) {
			return nil, err
		}
		if attempt <= maxTransientRetries {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(attempt) * time.Second):
			}
		}
	}
	return nil, lastErr
}

func asRetryable(err error, target **RetryableError) bool {
	for err != nil {
		if re, ok := err.(*RetryableError); ok {
			*target = re
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

// mcpAdapter adapts mcp.Tool (a simple string-in/string-out remote tool)
// to the registry's richer Tool interface.
type mcpAdapter struct {
	tool *mcp.Tool
}

func (a *mcpAdapter) Name() string        { return a.tool.Name() }
func (a *mcpAdapter) Description() string { return a.tool.Description() }
func (a *mcpAdapter) Required() []string  { return nil }
func (a *mcpAdapter) Category() string    { return "mcp" }

func (a *mcpAdapter) Execute(ctx context.Context, sessionID string, args map[string]any) (*acptypes.ToolsCallResult, error) {
	text, err := a.tool.Execute(ctx, args)
	if err != nil {
		return nil, &RetryableError{Err: err}
	}
	return &acptypes.ToolsCallResult{
		Content: []acptypes.ContentBlock{{Type: acptypes.BlockText, Text: text}},
	}, nil
}
