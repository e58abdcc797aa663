package acptypes

import "encoding/json"

// SessionNewParams is the request body of session/new.
type SessionNewParams struct {
	CWD        string          `json:"cwd"`
	MCPServers []MCPServer     `json:"mcpServers,omitempty"`
	Metadata   map[string]any  `json:"metadata,omitempty"`
}

// SessionNewResult is the response body of session/new.
type SessionNewResult struct {
	SessionID string `json:"sessionId"`
}

// SessionLoadParams is the request body of session/load.
type SessionLoadParams struct {
	SessionID string      `json:"sessionId"`
	CWD       string      `json:"cwd,omitempty"`
	MCPServers []MCPServer `json:"mcpServers,omitempty"`
}

// SessionListParams is the request body of session/list.
type SessionListParams struct {
	Limit   int             `json:"limit,omitempty"`
	Offset  int             `json:"offset,omitempty"`
	Filters SessionFilters  `json:"filters,omitempty"`
}

// SessionFilters narrows session/list results.
type SessionFilters struct {
	Name string   `json:"name,omitempty"`
	Tags []string `json:"tags,omitempty"`
}

// SessionListResult is the response body of session/list.
type SessionListResult struct {
	Sessions []SessionSummary `json:"sessions"`
	Total    int              `json:"total"`
}

// SessionSummary is the listing projection of a session record.
type SessionSummary struct {
	SessionID      string         `json:"sessionId"`
	Title          string         `json:"title,omitempty"`
	CWD            string         `json:"cwd"`
	CurrentModeID  string         `json:"currentModeId"`
	CurrentModelID string         `json:"currentModelId"`
	CreatedAt      string         `json:"createdAt"`
	UpdatedAt      string         `json:"updatedAt"`
	LastActivity   string         `json:"lastActivity"`
	MessageCount   int            `json:"messageCount"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

// SessionUpdateParams is the request body of session/update.
type SessionUpdateParams struct {
	SessionID string         `json:"sessionId"`
	Metadata  map[string]any `json:"metadata"`
}

// SessionDeleteParams is the request body of session/delete.
type SessionDeleteParams struct {
	SessionID string `json:"sessionId"`
}

// SessionSetModeParams is the request body of session/set_mode.
type SessionSetModeParams struct {
	SessionID string `json:"sessionId"`
	ModeID    string `json:"modeId"`
}

// SessionSetModeResult is the response body of session/set_mode.
type SessionSetModeResult struct {
	Meta SessionSetModeMeta `json:"_meta"`
}

// SessionSetModeMeta carries the before/after of a mode switch.
type SessionSetModeMeta struct {
	PreviousMode string `json:"previousMode"`
	NewMode      string `json:"newMode"`
	ChangedAt    string `json:"changedAt"`
}

// SessionSetModelParams is the request body of session/set_model.
type SessionSetModelParams struct {
	SessionID string `json:"sessionId"`
	ModelID   string `json:"modelId"`
}

// SessionSetModelResult is the response body of session/set_model.
type SessionSetModelResult struct {
	Meta SessionSetModelMeta `json:"_meta"`
}

// SessionSetModelMeta carries the before/after of a model switch.
type SessionSetModelMeta struct {
	PreviousModel string `json:"previousModel"`
	NewModel      string `json:"newModel"`
	ChangedAt     string `json:"changedAt"`
}

// MCPServer describes an MCP server declared at session creation.
type MCPServer struct {
	Name    string        `json:"name"`
	Command string        `json:"command"`
	Args    []string      `json:"args,omitempty"`
	Env     []EnvVariable `json:"env,omitempty"`
	Type    string        `json:"type,omitempty"`
	URL     string        `json:"url,omitempty"`
	Headers []HTTPHeader  `json:"headers,omitempty"`
}

// EnvVariable is a name/value pair passed to a spawned MCP server.
type EnvVariable struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// HTTPHeader is a name/value pair for HTTP/SSE-transport MCP servers.
type HTTPHeader struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// SessionUpdateNotification is the params of a session/update notification.
type SessionUpdateNotification struct {
	SessionID string        `json:"sessionId"`
	Update    SessionUpdate `json:"update"`
}

// SessionUpdate is a tagged union of the session/update payload kinds.
// SessionUpdate itself carries the discriminant plus every variant's
// fields flattened, since on the wire ACP session updates are one flat
// object with a `sessionUpdate` discriminant rather than a nested union.
type SessionUpdate struct {
	SessionUpdate string `json:"sessionUpdate"`

	// user_message_chunk / agent_message_chunk / agent_thought_chunk
	Content *ContentBlock `json:"content,omitempty"`

	// tool_call / tool_call_update
	ToolCallID string         `json:"toolCallId,omitempty"`
	Title      string         `json:"title,omitempty"`
	Kind       string         `json:"kind,omitempty"`
	Status     string         `json:"status,omitempty"`
	RawInput   any            `json:"rawInput,omitempty"`
	RawOutput  any            `json:"rawOutput,omitempty"`
	Locations  []ToolLocation `json:"locations,omitempty"`
	ToolContent []ContentBlock `json:"content,omitempty"`

	// plan
	Plan []PlanEntry `json:"entries,omitempty"`

	// available_commands_update
	AvailableCommands []AvailableCommand `json:"availableCommands,omitempty"`

	// current_mode_update / current_model_update
	CurrentModeID  string `json:"currentModeId,omitempty"`
	CurrentModelID string `json:"currentModelId,omitempty"`

	Meta map[string]any `json:"_meta,omitempty"`
}

// MarshalJSON writes whichever of Content and ToolContent is set under the
// shared "content" key; encoding/json would otherwise drop both fields for
// carrying the same tag.
func (u SessionUpdate) MarshalJSON() ([]byte, error) {
	type plain SessionUpdate
	var content any
	if u.Content != nil {
		content = u.Content
	} else if len(u.ToolContent) > 0 {
		content = u.ToolContent
	}
	return json.Marshal(struct {
		plain
		Content any `json:"content,omitempty"`
	}{plain(u), content})
}

// ToolLocation identifies a file/line a tool call touched.
type ToolLocation struct {
	Path string `json:"path"`
	Line int    `json:"line,omitempty"`
}

// PlanEntry is one step of an agent-reported plan.
type PlanEntry struct {
	Content  string `json:"content"`
	Status   string `json:"status"`
	Priority string `json:"priority,omitempty"`
}

// AvailableCommand is a slash command surfaced to the client.
type AvailableCommand struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	InputHint   string `json:"inputHint,omitempty"`
}
