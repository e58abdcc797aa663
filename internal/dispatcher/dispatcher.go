// Package dispatcher implements the method table: the initialize
// handshake, routing every inbound session/*, tools/*, and extension
// method to its owning component, and advertising agent capabilities.
//
// Generalizes m4xw311-compell/agent/acp/acp.go's Run switch-based
// dispatch (one case per method, each calling a handleXxx that marshals
// req.Params through an anonymous struct) into a typed Dispatcher whose
// methods decode into the acptypes request/response structs directly.
package dispatcher

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/spjoes/cursor-agent-acp/internal/acperr"
	"github.com/spjoes/cursor-agent-acp/internal/acptypes"
	"github.com/spjoes/cursor-agent-acp/internal/extension"
	"github.com/spjoes/cursor-agent-acp/internal/prompt"
	"github.com/spjoes/cursor-agent-acp/internal/session"
	"github.com/spjoes/cursor-agent-acp/internal/slashcmd"
	"github.com/spjoes/cursor-agent-acp/internal/toolcall"
	"github.com/spjoes/cursor-agent-acp/internal/tools"
	"github.com/spjoes/cursor-agent-acp/internal/tools/mcp"
)

// mcpClientTimeout bounds how long session/new waits for a single
// declared MCP server to spawn, connect, and list its tools before the
// session proceeds without it.
const mcpClientTimeout = 10 * time.Second

// Responder is the outbound half of the transport a Dispatcher needs. It
// also satisfies tools.Caller, since the filesystem provider is
// registered directly against it once initialize declares fs support.
type Responder interface {
	SendResult(id *json.RawMessage, result any) error
	SendError(id *json.RawMessage, code int, message string, data any) error
	SendNotification(method string, params any) error
	Call(ctx context.Context, method string, params any, result any) error
}

// Dispatcher owns the method table and routes every inbound request or
// notification to its owning component.
type Dispatcher struct {
	sessions   *session.Manager
	prompts    *prompt.Handler
	toolcalls  *toolcall.Manager
	tools      *tools.Registry
	slash      *slashcmd.Registry
	extensions *extension.Registry
	responder  Responder
	log        zerolog.Logger

	mu           sync.Mutex
	clientCaps   acptypes.ClientCapabilities
	fsRegistered bool
}

// New builds a Dispatcher wired to every owning component.
func New(sessions *session.Manager, prompts *prompt.Handler, toolcalls *toolcall.Manager, toolRegistry *tools.Registry, slash *slashcmd.Registry, extensions *extension.Registry, responder Responder, log zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		sessions:   sessions,
		prompts:    prompts,
		toolcalls:  toolcalls,
		tools:      toolRegistry,
		slash:      slash,
		extensions: extensions,
		responder:  responder,
		log:        log,
	}
}

// HandleRequest satisfies transport.RequestHandler.
func (d *Dispatcher) HandleRequest(req *acptypes.JSONRPCMessage) {
	ctx := context.Background()
	switch {
	case req.Method == "initialize":
		d.handleInitialize(ctx, req)
	case req.Method == "session/new":
		d.handleSessionNew(ctx, req)
	case req.Method == "session/load":
		d.handleSessionLoad(ctx, req)
	case req.Method == "session/list":
		d.handleSessionList(req)
	case req.Method == "session/update":
		d.handleSessionUpdate(req)
	case req.Method == "session/delete":
		d.handleSessionDelete(req)
	case req.Method == "session/set_mode":
		d.handleSetMode(req)
	case req.Method == "session/set_model":
		d.handleSetModel(req)
	case req.Method == "session/prompt":
		d.handleSessionPrompt(ctx, req)
	case req.Method == "session/cancel":
		d.handleSessionCancel(req)
	case req.Method == "session/request_permission":
		d.handleRequestPermission(req)
	case req.Method == "tools/list":
		d.handleToolsList(req)
	case req.Method == "tools/call":
		d.handleToolsCall(ctx, req)
	case len(req.Method) > 0 && req.Method[0] == '_':
		d.handleExtension(ctx, req)
	default:
		d.sendError(req.ID, acperr.CodeMethodNotFound, "Method not found", nil)
	}
}

// HandleNotification satisfies transport.NotificationHandler. The
// adapter currently has no inbound notifications of its own beyond the
// extension namespace.
func (d *Dispatcher) HandleNotification(n *acptypes.JSONRPCMessage) {
	if len(n.Method) > 0 && n.Method[0] == '_' {
		_, _ = d.extensions.Dispatch(context.Background(), n.Method, n.Params)
	}
}

func (d *Dispatcher) sendResult(id *json.RawMessage, result any) {
	if err := d.responder.SendResult(id, result); err != nil {
		d.log.Error().Err(err).Msg("dispatcher: failed to send result")
	}
}

func (d *Dispatcher) sendError(id *json.RawMessage, code int, message string, data any) {
	if err := d.responder.SendError(id, code, message, data); err != nil {
		d.log.Error().Err(err).Msg("dispatcher: failed to send error")
	}
}

func (d *Dispatcher) decode(req *acptypes.JSONRPCMessage, out any) bool {
	if len(req.Params) == 0 {
		return true
	}
	if err := json.Unmarshal(req.Params, out); err != nil {
		d.sendError(req.ID, acperr.CodeInvalidParams, "invalid params: "+err.Error(), nil)
		return false
	}
	return true
}

func (d *Dispatcher) handleInitialize(_ context.Context, req *acptypes.JSONRPCMessage) {
	var params acptypes.InitializeParams
	if !d.decode(req, &params) {
		return
	}

	d.mu.Lock()
	d.clientCaps = params.ClientCapabilities
	d.mu.Unlock()

	fsCapable := params.ClientCapabilities.FS != nil &&
		params.ClientCapabilities.FS.ReadTextFile &&
		params.ClientCapabilities.FS.WriteTextFile
	if fsCapable {
		d.registerFilesystemOnce()
	}

	result := acptypes.InitializeResult{
		ProtocolVersion: acptypes.ProtocolVersion,
		AgentCapabilities: acptypes.AgentCapabilities{
			LoadSession: true,
			Streaming:   true,
			ToolCalling: true,
			Filesystem:  fsCapable,
			Terminal:    params.ClientCapabilities.Terminal,
			PromptCapabilities: acptypes.PromptCapabilities{
				Image:           true,
				Audio:           true,
				EmbeddedContext: true,
			},
			MCP: acptypes.MCPCapabilities{HTTP: true, SSE: true},
		},
		AuthMethods: []acptypes.AuthMethod{},
		Meta: map[string]any{
			"extensions": d.extensions.Namespaces(),
		},
	}
	d.sendResult(req.ID, result)
}

// registerFilesystemOnce installs read_file/write_file the first time a
// client declares both fs capabilities, per spec section 4.8. Idempotent
// across repeated initialize calls.
func (d *Dispatcher) registerFilesystemOnce() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.fsRegistered {
		return
	}
	tools.NewFilesystemProvider(d.responder, d.tools)
	d.fsRegistered = true
}

func (d *Dispatcher) handleSessionNew(_ context.Context, req *acptypes.JSONRPCMessage) {
	var params acptypes.SessionNewParams
	if !d.decode(req, &params) {
		return
	}

	s, err := d.sessions.Create(session.Metadata{CWD: params.CWD, MCPServers: params.MCPServers})
	if err != nil {
		d.sendFromError(req.ID, err)
		return
	}
	d.sendResult(req.ID, acptypes.SessionNewResult{SessionID: s.ID})
	d.scheduleAvailableCommands(s.ID)
	d.startMCPServers(s.ID, params.MCPServers)
}

// startMCPServers spawns a client for every command-based MCP server the
// caller declared in session/new, registering its discovered tools into
// the shared registry under "server.tool" names, per spec section 4.8.
// HTTP/SSE-transport entries are skipped: the bridged client only speaks
// the stdio command transport, matching mcp.NewClient's subprocess shape.
// A server that fails to start is logged and otherwise ignored -- it must
// not block the session the caller is already waiting on.
func (d *Dispatcher) startMCPServers(sessionID string, servers []acptypes.MCPServer) {
	for _, srv := range servers {
		if srv.Command == "" {
			d.log.Warn().Str("session", sessionID).Str("server", srv.Name).Msg("skipping non-command MCP server, unsupported transport")
			continue
		}
		srv := srv
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), mcpClientTimeout)
			defer cancel()
			env := make([]string, 0, len(srv.Env))
			for _, e := range srv.Env {
				env = append(env, e.Name+"="+e.Value)
			}
			client, err := mcp.NewClient(ctx, srv.Name, srv.Command, srv.Args, env, d.log)
			if err != nil {
				d.log.Error().Err(err).Str("session", sessionID).Str("server", srv.Name).Msg("failed to start MCP server")
				return
			}
			d.tools.RegisterMCPClient(client)
		}()
	}
}

func (d *Dispatcher) handleSessionLoad(_ context.Context, req *acptypes.JSONRPCMessage) {
	var params acptypes.SessionLoadParams
	if !d.decode(req, &params) {
		return
	}

	s, err := d.sessions.Load(params.SessionID)
	if err != nil {
		d.sendFromError(req.ID, err)
		return
	}
	d.replayConversation(s)
	d.sendResult(req.ID, struct{}{})
	d.scheduleAvailableCommands(s.ID)
}

func (d *Dispatcher) replayConversation(s *session.Session) {
	for _, msg := range s.Conversation {
		kind := "agent_message_chunk"
		if msg.Role == "user" {
			kind = "user_message_chunk"
		}
		for _, block := range msg.Content {
			b := block
			_ = d.responder.SendNotification("session/update", acptypes.SessionUpdateNotification{
				SessionID: s.ID,
				Update:    acptypes.SessionUpdate{SessionUpdate: kind, Content: &b},
			})
		}
	}
}

// scheduleAvailableCommands emits available_commands_update on the next
// tick if any slash command is registered, per spec section 4.2.
func (d *Dispatcher) scheduleAvailableCommands(sessionID string) {
	cmds := d.slash.List()
	if len(cmds) == 0 {
		return
	}
	go func() {
		time.Sleep(0)
		_ = d.responder.SendNotification("session/update", acptypes.SessionUpdateNotification{
			SessionID: sessionID,
			Update: acptypes.SessionUpdate{
				SessionUpdate:     "available_commands_update",
				AvailableCommands: slashcmd.ToAvailableCommands(cmds),
			},
		})
	}()
}

func (d *Dispatcher) handleSessionList(req *acptypes.JSONRPCMessage) {
	var params acptypes.SessionListParams
	if !d.decode(req, &params) {
		return
	}
	page, total := d.sessions.List(params.Limit, params.Offset, params.Filters.Name, params.Filters.Tags)
	summaries := make([]acptypes.SessionSummary, 0, len(page))
	for _, s := range page {
		summaries = append(summaries, acptypes.SessionSummary{
			SessionID:      s.ID,
			Title:          s.Title,
			CWD:            s.Metadata.CWD,
			CurrentModeID:  s.State.CurrentModeID,
			CurrentModelID: s.State.CurrentModelID,
			CreatedAt:      s.CreatedAt.Format(time.RFC3339),
			UpdatedAt:      s.UpdatedAt.Format(time.RFC3339),
			LastActivity:   s.State.LastActivity.Format(time.RFC3339),
			MessageCount:   s.State.MessageCount,
		})
	}
	d.sendResult(req.ID, acptypes.SessionListResult{Sessions: summaries, Total: total})
}

func (d *Dispatcher) handleSessionUpdate(req *acptypes.JSONRPCMessage) {
	var params acptypes.SessionUpdateParams
	if !d.decode(req, &params) {
		return
	}
	if _, err := d.sessions.Update(params.SessionID, params.Metadata); err != nil {
		d.sendFromError(req.ID, err)
		return
	}
	d.sendResult(req.ID, struct{}{})
}

func (d *Dispatcher) handleSessionDelete(req *acptypes.JSONRPCMessage) {
	var params acptypes.SessionDeleteParams
	if !d.decode(req, &params) {
		return
	}
	if err := d.sessions.Delete(params.SessionID); err != nil {
		d.sendFromError(req.ID, err)
		return
	}
	d.toolcalls.CancelSessionToolCalls(params.SessionID)
	d.sendResult(req.ID, struct{}{})
}

func (d *Dispatcher) handleSetMode(req *acptypes.JSONRPCMessage) {
	var params acptypes.SessionSetModeParams
	if !d.decode(req, &params) {
		return
	}
	previous, err := d.sessions.SetMode(params.SessionID, params.ModeID)
	if err != nil {
		d.sendFromError(req.ID, err)
		return
	}
	changedAt := time.Now().UTC().Format(time.RFC3339)
	d.sendResult(req.ID, acptypes.SessionSetModeResult{
		Meta: acptypes.SessionSetModeMeta{PreviousMode: previous, NewMode: params.ModeID, ChangedAt: changedAt},
	})
	_ = d.responder.SendNotification("session/update", acptypes.SessionUpdateNotification{
		SessionID: params.SessionID,
		Update:    acptypes.SessionUpdate{SessionUpdate: "current_mode_update", CurrentModeID: params.ModeID},
	})
}

func (d *Dispatcher) handleSetModel(req *acptypes.JSONRPCMessage) {
	var params acptypes.SessionSetModelParams
	if !d.decode(req, &params) {
		return
	}
	previous, err := d.sessions.SetModel(params.SessionID, params.ModelID)
	if err != nil {
		d.sendFromError(req.ID, err)
		return
	}
	changedAt := time.Now().UTC().Format(time.RFC3339)
	d.sendResult(req.ID, acptypes.SessionSetModelResult{
		Meta: acptypes.SessionSetModelMeta{PreviousModel: previous, NewModel: params.ModelID, ChangedAt: changedAt},
	})
	_ = d.responder.SendNotification("session/update", acptypes.SessionUpdateNotification{
		SessionID: params.SessionID,
		Update:    acptypes.SessionUpdate{SessionUpdate: "current_model_update", CurrentModelID: params.ModelID},
	})
}

func (d *Dispatcher) handleSessionPrompt(ctx context.Context, req *acptypes.JSONRPCMessage) {
	var params acptypes.SessionPromptParams
	if !d.decode(req, &params) {
		return
	}
	requestID := idString(req.ID)
	result, err := d.prompts.Process(ctx, params.SessionID, params.Prompt, params.Stream, requestID)
	if err != nil {
		d.sendFromError(req.ID, err)
		return
	}
	d.sendResult(req.ID, acptypes.SessionPromptResult{
		StopReason:        result.StopReason,
		StopReasonDetails: result.StopReasonDetails,
		Meta:              result.Meta,
	})
}

func (d *Dispatcher) handleSessionCancel(req *acptypes.JSONRPCMessage) {
	var params acptypes.SessionCancelParams
	if !d.decode(req, &params) {
		return
	}
	if params.StreamID != "" {
		d.prompts.CancelStream(params.SessionID, params.StreamID)
	} else {
		d.prompts.CancelSession(params.SessionID)
	}
	d.toolcalls.CancelSessionToolCalls(params.SessionID)
	d.sendResult(req.ID, struct{}{})
}

func (d *Dispatcher) handleRequestPermission(req *acptypes.JSONRPCMessage) {
	var params acptypes.RequestPermissionParams
	if !d.decode(req, &params) {
		return
	}
	d.sendResult(req.ID, toolcall.FallbackPermission(params.Options))
}

func (d *Dispatcher) handleToolsList(req *acptypes.JSONRPCMessage) {
	d.sendResult(req.ID, acptypes.ToolsListResult{Tools: d.tools.List()})
}

func (d *Dispatcher) handleToolsCall(ctx context.Context, req *acptypes.JSONRPCMessage) {
	var params acptypes.ToolsCallParams
	if !d.decode(req, &params) {
		return
	}

	t, ok := d.tools.Get(params.Name)
	if !ok {
		d.sendError(req.ID, acperr.CodeInvalidParams, "unknown tool: "+params.Name, nil)
		return
	}

	s, err := d.sessions.Get(params.SessionID)
	if err != nil {
		d.sendFromError(req.ID, err)
		return
	}
	if cfg, ok := session.ModeConfigs[s.State.CurrentModeID]; ok && len(cfg.AvailableTools) > 0 && !containsString(cfg.AvailableTools, t.Category()) {
		d.sendError(req.ID, acperr.CodePermissionDenied,
			fmt.Sprintf("tool %q is not available in mode %q", params.Name, s.State.CurrentModeID), nil)
		return
	}

	rec := d.toolcalls.Report(params.SessionID, params.Name, params.Arguments, nil)

	permission, err := d.toolcalls.RequestPermission(ctx, params.SessionID, rec.ID, standardPermissionOptions())
	if err != nil {
		_ = d.toolcalls.Fail(rec.ID, err.Error())
		d.sendFromError(req.ID, err)
		return
	}
	if !permissionGranted(permission) {
		_ = d.toolcalls.Update(rec.ID, toolcall.StatusCancelled, nil, nil)
		d.sendError(req.ID, acperr.CodePermissionDenied, "tool call denied by permission policy", nil)
		return
	}

	result, err := d.tools.Call(ctx, params.SessionID, params.Name, params.Arguments)
	if err != nil {
		_ = d.toolcalls.Fail(rec.ID, err.Error())
		d.sendFromError(req.ID, err)
		return
	}
	_ = d.toolcalls.Complete(rec.ID, result.Metadata, result.Content)
	d.sendResult(req.ID, result)
}

// standardPermissionOptions is the two-choice set offered for every
// tool-call permission request: allow once, or reject once.
func standardPermissionOptions() []acptypes.PermissionOption {
	return []acptypes.PermissionOption{
		{OptionID: "allow-once", Kind: acptypes.PermissionAllowOnce},
		{OptionID: "reject-once", Kind: acptypes.PermissionRejectOnce},
	}
}

func permissionGranted(result *acptypes.RequestPermissionResult) bool {
	if result == nil || result.Outcome != "selected" {
		return false
	}
	return result.OptionID == "allow-once" || result.OptionID == "allow-always"
}

func containsString(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

func (d *Dispatcher) handleExtension(ctx context.Context, req *acptypes.JSONRPCMessage) {
	if len(req.Params) > 0 {
		trimmed := trimLeadingSpace(req.Params)
		if len(trimmed) == 0 || trimmed[0] != '{' {
			d.sendError(req.ID, acperr.CodeInvalidParams, "extension params must be an object", nil)
			return
		}
	}
	result, err := d.extensions.Dispatch(ctx, req.Method, req.Params)
	if err != nil {
		d.sendFromError(req.ID, err)
		return
	}
	d.sendResult(req.ID, result)
}

func trimLeadingSpace(b []byte) []byte {
	i := 0
	for i < len(b) && (b[i] == ' ' || b[i] == '\t' || b[i] == '\n' || b[i] == '\r') {
		i++
	}
	return b[i:]
}

func (d *Dispatcher) sendFromError(id *json.RawMessage, err error) {
	if re, ok := err.(*acperr.RequestError); ok {
		d.sendError(id, re.Code, re.Message, re.Data)
		return
	}
	d.sendError(id, acperr.CodeInternal, err.Error(), nil)
}

func idString(id *json.RawMessage) string {
	if id == nil {
		return ""
	}
	var s string
	if err := json.Unmarshal(*id, &s); err == nil {
		return s
	}
	return string(*id)
}
