// Package toolcall implements the tool-call coordinator: id generation,
// lifecycle notifications, permission requests, and eviction.
//
// Generalizes the inline sendToolCallNotification/sendToolResultNotification
// helpers in m4xw311-compell/agent/acp/acp.go into a standalone manager
// with status tracking, per spec section 4.7.
package toolcall

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/spjoes/cursor-agent-acp/internal/acptypes"
)

// Status values for a tool-call record.
const (
	StatusPending    = "pending"
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
	StatusCancelled  = "cancelled"
)

// evictionDelay is how long a completed record survives before being
// dropped from the manager, per spec section 3. Failed records are not
// scheduled for eviction.
const evictionDelay = 30 * time.Second

// Record is one tracked tool-call's full state.
type Record struct {
	ID        string
	SessionID string
	Name      string
	Status    string
	StartTime time.Time
	EndTime   time.Time
	RawInput  any
	RawOutput any
	Locations []acptypes.ToolLocation
	Content   []acptypes.ContentBlock
}

func (r *Record) terminal() bool {
	return r.Status == StatusCompleted || r.Status == StatusFailed || r.Status == StatusCancelled
}

// Notifier sends session/update notifications and permission requests to
// the client -- satisfied by *transport.Transport.
type Notifier interface {
	SendNotification(method string, params any) error
	Call(ctx context.Context, method string, params any, result any) error
}

// Manager owns every tracked tool-call record.
type Manager struct {
	mu       sync.Mutex
	records  map[string]*Record
	counter  int64
	seq      int64
	notifier Notifier
	log      zerolog.Logger
}

// New builds a Manager emitting notifications via notifier.
func New(notifier Notifier, log zerolog.Logger) *Manager {
	return &Manager{records: make(map[string]*Record), notifier: notifier, log: log}
}

// NewID returns a fresh id of the form tool_<name>_<unixnanos>_<counter>.
func (m *Manager) NewID(name string) string {
	n := atomic.AddInt64(&m.counter, 1)
	return fmt.Sprintf("tool_%s_%d_%d", name, time.Now().UnixNano(), n)
}

func (m *Manager) nextSequence() int64 {
	return atomic.AddInt64(&m.seq, 1)
}

// Report creates a record (default status in_progress) and emits a
// tool_call session/update.
func (m *Manager) Report(sessionID, name string, rawInput any, locations []acptypes.ToolLocation) *Record {
	id := m.NewID(name)
	rec := &Record{
		ID:        id,
		SessionID: sessionID,
		Name:      name,
		Status:    StatusInProgress,
		StartTime: time.Now().UTC(),
		RawInput:  rawInput,
		Locations: locations,
	}

	m.mu.Lock()
	m.records[id] = rec
	m.mu.Unlock()

	update := acptypes.SessionUpdate{
		SessionUpdate: "tool_call",
		ToolCallID:    id,
		Title:         titleFor(name, rawInput),
		Kind:          kindFor(name),
		Status:        rec.Status,
		RawInput:      rawInput,
		Locations:     locations,
		Meta: map[string]any{
			"toolName":             name,
			"source":               "cursor-agent-acp",
			"startTime":            rec.StartTime.Format(time.RFC3339Nano),
			"notificationSequence": m.nextSequence(),
		},
	}
	m.emit(sessionID, update)
	return rec
}

// Update emits a tool_call_update containing only the supplied fields,
// setting EndTime once the status becomes terminal.
func (m *Manager) Update(id string, status string, rawOutput any, content []acptypes.ContentBlock) error {
	m.mu.Lock()
	rec, ok := m.records[id]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("toolcall: unknown id %s", id)
	}
	if status != "" {
		rec.Status = status
	}
	if rawOutput != nil {
		rec.RawOutput = rawOutput
	}
	if content != nil {
		rec.Content = content
	}
	if rec.terminal() && rec.EndTime.IsZero() {
		rec.EndTime = time.Now().UTC()
	}
	sessionID := rec.SessionID
	terminal := rec.terminal()
	snapshot := *rec
	m.mu.Unlock()

	update := acptypes.SessionUpdate{
		SessionUpdate: "tool_call_update",
		ToolCallID:    id,
		Status:        status,
		RawOutput:     rawOutput,
		ToolContent:   content,
		Meta:          map[string]any{"notificationSequence": m.nextSequence()},
	}
	if terminal {
		update.Meta["endTime"] = snapshot.EndTime.Format(time.RFC3339Nano)
	}
	m.emit(sessionID, update)

	if terminal && status == StatusCompleted {
		m.scheduleEviction(id)
	}
	return nil
}

// Complete is a convenience wrapper marking a record completed.
func (m *Manager) Complete(id string, rawOutput any, content []acptypes.ContentBlock) error {
	return m.Update(id, StatusCompleted, rawOutput, content)
}

// Fail is a convenience wrapper marking a record failed.
func (m *Manager) Fail(id string, rawOutput any) error {
	return m.Update(id, StatusFailed, rawOutput, nil)
}

func (m *Manager) scheduleEviction(id string) {
	time.AfterFunc(evictionDelay, func() {
		m.mu.Lock()
		delete(m.records, id)
		m.mu.Unlock()
	})
}

// RequestPermission asks the client to choose among options. If no
// handler is installed (the call errors), it defaults to allow_once when
// present, else reject_once, tie-broken by list order.
func (m *Manager) RequestPermission(ctx context.Context, sessionID, toolCallID string, options []acptypes.PermissionOption) (*acptypes.RequestPermissionResult, error) {
	params := acptypes.RequestPermissionParams{
		SessionID: sessionID,
		ToolCall:  acptypes.RequestPermissionToolCall{ToolCallID: toolCallID},
		Options:   options,
	}

	var result acptypes.RequestPermissionResult
	err := m.notifier.Call(ctx, "session/request_permission", params, &result)
	if err != nil {
		m.log.Warn().Err(err).Str("toolCallId", toolCallID).Msg("permission request failed, applying fallback")
		return fallbackPermission(options), nil
	}
	if result.Outcome == "" {
		m.log.Error().Str("toolCallId", toolCallID).Msg("permission request returned no outcome, applying fallback")
		return fallbackPermission(options), nil
	}
	return &result, nil
}

// FallbackPermission exposes the allow-once/reject-once tie-break policy
// for callers that need it outside an outbound RequestPermission call --
// namely the dispatcher's inbound session/request_permission route.
func FallbackPermission(options []acptypes.PermissionOption) *acptypes.RequestPermissionResult {
	return fallbackPermission(options)
}

func fallbackPermission(options []acptypes.PermissionOption) *acptypes.RequestPermissionResult {
	for _, opt := range options {
		if opt.Kind == acptypes.PermissionAllowOnce {
			return &acptypes.RequestPermissionResult{Outcome: "selected", OptionID: opt.OptionID}
		}
	}
	for _, opt := range options {
		if opt.Kind == acptypes.PermissionRejectOnce {
			return &acptypes.RequestPermissionResult{Outcome: "selected", OptionID: opt.OptionID}
		}
	}
	if len(options) > 0 {
		return &acptypes.RequestPermissionResult{Outcome: "selected", OptionID: options[0].OptionID}
	}
	return &acptypes.RequestPermissionResult{Outcome: "cancelled"}
}

// CancelSessionToolCalls emits cancelled updates for every non-terminal
// record belonging to sessionID and evicts them immediately.
func (m *Manager) CancelSessionToolCalls(sessionID string) {
	m.mu.Lock()
	var toCancel []string
	for id, rec := range m.records {
		if rec.SessionID == sessionID && !rec.terminal() {
			toCancel = append(toCancel, id)
		}
	}
	m.mu.Unlock()

	for _, id := range toCancel {
		_ = m.Update(id, StatusCancelled, nil, nil)
		m.mu.Lock()
		delete(m.records, id)
		m.mu.Unlock()
	}
}

func (m *Manager) emit(sessionID string, update acptypes.SessionUpdate) {
	err := m.notifier.SendNotification("session/update", acptypes.SessionUpdateNotification{
		SessionID: sessionID,
		Update:    update,
	})
	if err != nil {
		m.log.Error().Err(err).Str("sessionId", sessionID).Msg("failed to emit session/update")
	}
}

// kindLookup derives a tool-call "kind" from its name, per spec 4.7.
var kindLookup = map[string]string{
	"read_file":       "read",
	"write_file":      "edit",
	"delete_file":     "delete",
	"move_file":       "move",
	"search":          "search",
	"code_search":     "search",
	"execute_command": "execute",
	"run_tests":       "execute",
	"fetch":           "fetch",
	"think":           "think",
	"switch_mode":     "switch_mode",
}

func kindFor(name string) string {
	if kind, ok := kindLookup[name]; ok {
		return kind
	}
	return "other"
}

var titleLookup = map[string]func(args any) string{
	"read_file": func(args any) string {
		if m, ok := args.(map[string]any); ok {
			if path, ok := m["path"].(string); ok {
				return "Reading file: " + path
			}
		}
		return "Reading file"
	},
	"write_file": func(args any) string {
		if m, ok := args.(map[string]any); ok {
			if path, ok := m["path"].(string); ok {
				return "Writing file: " + path
			}
		}
		return "Writing file"
	},
}

func titleFor(name string, rawInput any) string {
	if f, ok := titleLookup[name]; ok {
		return f(rawInput)
	}
	return "Executing tool: " + strings.TrimSpace(name)
}
