// Package mcp adapts declared per-session MCP (Model Context Protocol)
// servers into tools the registry can surface alongside cursor-agent's
// own tools, namespaced "server.tool".
//
// Close adaptation of m4xw311-compell/tools/mcp/mcp_tool.go -- same
// github.com/modelcontextprotocol/go-sdk Connect/ListTools/CallTool shape,
// re-homed under this module and returning to our own Tool interface
// instead of the teacher's single-agent Tool interface.
package mcp

import (
	"context"
	"fmt"
	"os"
	"os/exec"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rs/zerolog"

	"github.com/spjoes/cursor-agent-acp/internal/acperr"
)

// Client manages the connection to a single MCP server subprocess.
type Client struct {
	Name  string
	cmd   *exec.Cmd
	conn  *mcpsdk.ClientSession
	tools map[string]*Tool
	log   zerolog.Logger
}

// NewClient starts the MCP server subprocess and discovers its tools.
func NewClient(ctx context.Context, name, command string, args []string, env []string, log zerolog.Logger) (*Client, error) {
	cmd := exec.Command(command, args...)
	cmd.Stderr = os.Stderr
	if len(env) > 0 {
		cmd.Env = append(os.Environ(), env...)
	}

	sdkClient := mcpsdk.NewClient(&mcpsdk.Implementation{Name: "cursor-agent-acp", Version: "v1.0.0"}, nil)
	conn, err := sdkClient.Connect(ctx, mcpsdk.NewCommandTransport(cmd))
	if err != nil {
		if cmd.Process != nil {
			_ = cmd.Process.Kill()
		}
		return nil, acperr.Wrapf(err, "connecting to MCP server %q", name)
	}

	client := &Client{Name: name, cmd: cmd, conn: conn, tools: make(map[string]*Tool), log: log}

	listParams := &mcpsdk.ListToolsParams{}
	for {
		list, err := conn.ListTools(ctx, listParams)
		if err != nil {
			if cmd.Process != nil {
				_ = cmd.Process.Kill()
			}
			return nil, acperr.Wrapf(err, "listing tools from MCP server %q", name)
		}
		for _, t := range list.Tools {
			client.tools[t.Name] = &Tool{serverName: name, toolName: t.Name, description: t.Description, client: client}
		}
		if list.NextCursor == "" {
			break
		}
		listParams.Cursor = list.NextCursor
	}

	log.Info().Str("server", name).Int("tools", len(client.tools)).Msg("initialized MCP client")
	return client, nil
}

// GetTool returns a specific tool provided by this MCP server by its
// short name.
func (c *Client) GetTool(toolName string) (*Tool, bool) {
	t, ok := c.tools[toolName]
	return t, ok
}

// Tools returns every tool this server currently exposes.
func (c *Client) Tools() []*Tool {
	out := make([]*Tool, 0, len(c.tools))
	for _, t := range c.tools {
		out = append(out, t)
	}
	return out
}

// Stop terminates the MCP server subprocess.
func (c *Client) Stop() error {
	if c.conn != nil {
		_ = c.conn.Close()
	}
	if c.cmd != nil && c.cmd.Process != nil {
		c.log.Info().Str("server", c.Name).Msg("terminating MCP server")
		return c.cmd.Process.Kill()
	}
	return nil
}

// Tool represents a tool available from an external MCP server.
type Tool struct {
	serverName  string
	toolName    string
	description string
	client      *Client
}

// Name returns the server-namespaced tool name ("server.tool").
func (t *Tool) Name() string {
	return fmt.Sprintf("%s.%s", t.serverName, t.toolName)
}

// Description returns the tool's MCP-supplied description.
func (t *Tool) Description() string {
	return t.description
}

// Execute calls the remote tool and joins its text content parts.
func (t *Tool) Execute(ctx context.Context, args map[string]any) (string, error) {
	result, err := t.client.conn.CallTool(ctx, &mcpsdk.CallToolParams{
		Name:      t.toolName,
		Arguments: args,
	})
	if err != nil {
		return "", acperr.Wrapf(err, "calling MCP tool %q", t.Name())
	}

	out := ""
	for _, c := range result.Content {
		if tc, ok := c.(*mcpsdk.TextContent); ok {
			out += tc.Text
		}
	}
	return out, nil
}
