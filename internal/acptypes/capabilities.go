package acptypes

// InitializeParams is the request body of the initialize method.
type InitializeParams struct {
	ProtocolVersion    int                `json:"protocolVersion"`
	ClientCapabilities ClientCapabilities `json:"clientCapabilities"`
}

// ClientCapabilities describes what the connecting editor supports.
type ClientCapabilities struct {
	FS       *FSCapabilities `json:"fs,omitempty"`
	Terminal bool            `json:"terminal,omitempty"`
}

// FSCapabilities declares whether the client can serve filesystem requests
// on behalf of the agent.
type FSCapabilities struct {
	ReadTextFile  bool `json:"readTextFile"`
	WriteTextFile bool `json:"writeTextFile"`
}

// InitializeResult is the response body of the initialize method.
type InitializeResult struct {
	ProtocolVersion  int                `json:"protocolVersion"`
	AgentCapabilities AgentCapabilities `json:"agentCapabilities"`
	AuthMethods      []AuthMethod       `json:"authMethods,omitempty"`
	Meta             map[string]any     `json:"_meta,omitempty"`
}

// AgentCapabilities describes what this adapter supports.
type AgentCapabilities struct {
	LoadSession        bool               `json:"loadSession"`
	Streaming          bool               `json:"streaming"`
	ToolCalling        bool               `json:"toolCalling"`
	Filesystem         bool               `json:"filesystem"`
	Terminal           bool               `json:"terminal"`
	PromptCapabilities PromptCapabilities `json:"promptCapabilities"`
	MCP                MCPCapabilities    `json:"mcp"`
}

// PromptCapabilities describes supported content kinds for session/prompt.
type PromptCapabilities struct {
	Image           bool `json:"image"`
	Audio           bool `json:"audio"`
	EmbeddedContext bool `json:"embeddedContext"`
}

// MCPCapabilities describes supported MCP server transports.
type MCPCapabilities struct {
	HTTP bool `json:"http"`
	SSE  bool `json:"sse"`
}

// AuthMethod describes an available authentication mechanism.
type AuthMethod struct {
	Type string `json:"type"`
}
