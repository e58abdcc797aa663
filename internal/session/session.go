// Package session implements the session manager: lifecycle, disk
// persistence, mode/model state, and the expiry sweep.
//
// Generalizes m4xw311-compell/session.Session's New/Load/Save (one JSON
// file per session under a directory, created lazily) into a manager
// holding many sessions behind one lock, per spec section 4.3.
package session

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/spjoes/cursor-agent-acp/internal/acperr"
	"github.com/spjoes/cursor-agent-acp/internal/acptypes"
)

// Default mode and model ids, and the closed sets they must belong to.
const (
	DefaultMode  = "ask"
	DefaultModel = "auto"
)

// AvailableModes is the closed set of valid mode ids.
var AvailableModes = []string{"ask", "architect", "code"}

// AvailableModels is the closed set of valid model ids.
var AvailableModels = []string{"auto", "composer-1", "sonnet-4.5", "gpt-5", "grok"}

// ModeConfig describes the permission/tool policy bound to a mode.
type ModeConfig struct {
	PermissionBehavior string
	AvailableTools     []string
}

// ModeConfigs is the closed set of mode policies from spec section 4.3.
var ModeConfigs = map[string]ModeConfig{
	"ask":       {PermissionBehavior: "strict", AvailableTools: nil},
	"architect": {PermissionBehavior: "strict", AvailableTools: []string{"filesystem"}},
	"code":      {PermissionBehavior: "strict", AvailableTools: []string{"filesystem", "terminal"}},
}

// Message is one entry of a session's conversation log.
type Message struct {
	ID        string                 `json:"id"`
	Role      string                 `json:"role"`
	Content   []acptypes.ContentBlock `json:"content"`
	Timestamp time.Time              `json:"timestamp"`
	Metadata  map[string]any         `json:"metadata,omitempty"`
}

// State is the mutable runtime record tracked alongside metadata.
type State struct {
	LastActivity   time.Time `json:"lastActivity"`
	MessageCount   int       `json:"messageCount"`
	CurrentModeID  string    `json:"currentModeId"`
	CurrentModelID string    `json:"currentModelId"`
	Processing     bool      `json:"processing"`
}

// Metadata is the session's user-supplied descriptive data.
type Metadata struct {
	Name        string                 `json:"name,omitempty"`
	Description string                 `json:"description,omitempty"`
	Tags        []string               `json:"tags,omitempty"`
	CWD         string                 `json:"cwd"`
	MCPServers  []acptypes.MCPServer   `json:"mcpServers,omitempty"`
	ModelID     string                 `json:"modelId,omitempty"`
	ModeID      string                 `json:"modeId,omitempty"`
	Extra       map[string]any         `json:"extra,omitempty"`
}

// Session is the full, persistable record for one conversation.
type Session struct {
	ID           string     `json:"id"`
	Title        string     `json:"title,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
	Metadata     Metadata   `json:"metadata"`
	Conversation []Message  `json:"conversation"`
	State        State      `json:"state"`
}

// reservedMetadataFields can never be overridden by create() or update()
// callers, per spec section 4.3.
var reservedMetadataFields = map[string]bool{"cwd": true, "mcpServers": true}

// Manager owns every live session and reconciles memory against disk.
type Manager struct {
	mu          sync.RWMutex
	sessions    map[string]*Session
	dir         string
	maxSessions int
	timeout     time.Duration
}

// NewManager builds a Manager persisting under dir.
func NewManager(dir string, maxSessions int, timeout time.Duration) *Manager {
	return &Manager{
		sessions:    make(map[string]*Session),
		dir:         dir,
		maxSessions: maxSessions,
		timeout:     timeout,
	}
}

// Create allocates a new session from metadata, enforcing the cwd and
// capacity invariants of spec section 4.3.
func (m *Manager) Create(metadata Metadata) (*Session, error) {
	if err := validateCWD(metadata.CWD); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.sweepExpiredLocked()
	if m.maxSessions > 0 && len(m.sessions) >= m.maxSessions {
		return nil, acperr.NewRequestError(acperr.CodeInternal, "maximum number of sessions reached", nil)
	}

	now := time.Now().UTC()
	metadata.ModeID = DefaultMode
	metadata.ModelID = DefaultModel

	s := &Session{
		ID:        uuid.NewString(),
		CreatedAt: now,
		UpdatedAt: now,
		Metadata:  metadata,
		State: State{
			LastActivity:   now,
			CurrentModeID:  DefaultMode,
			CurrentModelID: DefaultModel,
		},
	}
	m.sessions[s.ID] = s
	return s, m.persistLocked(s)
}

// Load returns the in-memory record if present, else attempts to
// rehydrate it from disk.
func (m *Manager) Load(id string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s, ok := m.sessions[id]; ok {
		s.State.LastActivity = time.Now().UTC()
		return s, nil
	}

	s, err := m.readFromDisk(id)
	if err != nil {
		return nil, acperr.SessionNotFound(id)
	}
	s.State.LastActivity = time.Now().UTC()
	m.sessions[id] = s
	return s, nil
}

// List returns a page of sessions sorted by last activity, most recent
// first, after applying name/tag filters.
func (m *Manager) List(limit, offset int, nameFilter string, tagFilter []string) ([]*Session, int) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	all := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		if nameFilter != "" && s.Metadata.Name != nameFilter {
			continue
		}
		if len(tagFilter) > 0 && !hasAllTags(s.Metadata.Tags, tagFilter) {
			continue
		}
		all = append(all, s)
	}
	sort.Slice(all, func(i, j int) bool {
		return all[i].State.LastActivity.After(all[j].State.LastActivity)
	})

	total := len(all)
	if offset >= total {
		return nil, total
	}
	end := total
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return all[offset:end], total
}

func hasAllTags(have, want []string) bool {
	set := make(map[string]bool, len(have))
	for _, t := range have {
		set[t] = true
	}
	for _, t := range want {
		if !set[t] {
			return false
		}
	}
	return true
}

// Update shallow-merges non-reserved metadata fields.
func (m *Manager) Update(id string, partial map[string]any) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok {
		return nil, acperr.SessionNotFound(id)
	}

	if name, ok := partial["name"].(string); ok {
		s.Metadata.Name = name
	}
	if desc, ok := partial["description"].(string); ok {
		s.Metadata.Description = desc
	}
	switch tags := partial["tags"].(type) {
	case []string:
		s.Metadata.Tags = tags
	case []any:
		converted := make([]string, 0, len(tags))
		for _, tag := range tags {
			if str, ok := tag.(string); ok {
				converted = append(converted, str)
			}
		}
		s.Metadata.Tags = converted
	}
	for k, v := range partial {
		if reservedMetadataFields[k] {
			continue
		}
		switch k {
		case "name", "description", "tags":
			continue
		default:
			if s.Metadata.Extra == nil {
				s.Metadata.Extra = map[string]any{}
			}
			s.Metadata.Extra[k] = v
		}
	}

	now := time.Now().UTC()
	s.UpdatedAt = now
	s.State.LastActivity = now
	return s, m.persistLocked(s)
}

// Delete removes a session from memory and disk. Idempotent.
func (m *Manager) Delete(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
	path := m.path(id)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return acperr.Wrapf(err, "deleting session file %s", path)
	}
	return nil
}

// SetMode validates and switches a session's mode, returning the previous
// value.
func (m *Manager) SetMode(id, modeID string) (previous string, err error) {
	if _, ok := ModeConfigs[modeID]; !ok {
		return "", acperr.InvalidParams("unknown mode %q", modeID)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return "", acperr.SessionNotFound(id)
	}
	previous = s.State.CurrentModeID
	s.State.CurrentModeID = modeID
	s.Metadata.ModeID = modeID
	now := time.Now().UTC()
	s.UpdatedAt = now
	s.State.LastActivity = now
	return previous, m.persistLocked(s)
}

// SetModel validates and switches a session's model, returning the
// previous value.
func (m *Manager) SetModel(id, modelID string) (previous string, err error) {
	if !contains(AvailableModels, modelID) {
		return "", acperr.InvalidParams("unknown model %q", modelID)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return "", acperr.SessionNotFound(id)
	}
	previous = s.State.CurrentModelID
	s.State.CurrentModelID = modelID
	s.Metadata.ModelID = modelID
	now := time.Now().UTC()
	s.UpdatedAt = now
	s.State.LastActivity = now
	return previous, m.persistLocked(s)
}

// AddMessage appends a conversation message and touches timestamps.
func (m *Manager) AddMessage(id string, msg Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return acperr.SessionNotFound(id)
	}
	s.Conversation = append(s.Conversation, msg)
	s.State.MessageCount = len(s.Conversation)
	if s.Title == "" && msg.Role == "user" {
		s.Title = truncateTitle(firstText(msg.Content))
	}
	now := time.Now().UTC()
	s.UpdatedAt = now
	s.State.LastActivity = now
	return m.persistLocked(s)
}

// MarkProcessing sets the processing flag, guarding the prompt queue's
// at-most-one-prompt-in-flight invariant.
func (m *Manager) MarkProcessing(id string, processing bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return acperr.SessionNotFound(id)
	}
	s.State.Processing = processing
	return nil
}

// Get returns the in-memory record for id without touching LastActivity,
// for read-only checks such as the dispatcher's mode/availableTools gate.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, acperr.SessionNotFound(id)
	}
	return s, nil
}

// Touch refreshes last-activity without any other mutation; used by the
// prompt handler's heartbeat loop.
func (m *Manager) Touch(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return false
	}
	s.State.LastActivity = time.Now().UTC()
	return true
}

func (m *Manager) sweepExpiredLocked() {
	if m.timeout <= 0 {
		return
	}
	cutoff := time.Now().UTC().Add(-m.timeout)
	for id, s := range m.sessions {
		if s.State.LastActivity.Before(cutoff) {
			delete(m.sessions, id)
			_ = os.Remove(m.path(id))
		}
	}
}

func (m *Manager) path(id string) string {
	return filepath.Join(m.dir, id+".json")
}

func (m *Manager) persistLocked(s *Session) error {
	if err := os.MkdirAll(m.dir, 0o755); err != nil {
		return acperr.Wrapf(err, "creating session directory %s", m.dir)
	}
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return acperr.Wrapf(err, "serializing session %s", s.ID)
	}
	if err := os.WriteFile(m.path(s.ID), data, 0o644); err != nil {
		return acperr.Wrapf(err, "writing session file for %s", s.ID)
	}
	return nil
}

func (m *Manager) readFromDisk(id string) (*Session, error) {
	data, err := os.ReadFile(m.path(id))
	if err != nil {
		return nil, err
	}
	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, acperr.Wrapf(err, "parsing session file for %s", id)
	}
	return &s, nil
}

func validateCWD(cwd string) error {
	if cwd == "" {
		return acperr.InvalidParams("cwd must be an absolute path")
	}
	if strings.HasPrefix(cwd, "./") || strings.HasPrefix(cwd, "../") {
		return acperr.InvalidParams("cwd must be an absolute path")
	}
	if filepath.IsAbs(cwd) {
		return nil
	}
	// Allow a drive-letter prefix (e.g. "C:\...") for Windows clients.
	if len(cwd) >= 3 && cwd[1] == ':' && (cwd[2] == '\\' || cwd[2] == '/') {
		return nil
	}
	return acperr.InvalidParams("cwd must be an absolute path")
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

func truncateTitle(s string) string {
	const max = 80
	if len(s) <= max {
		return s
	}
	return s[:max]
}

func firstText(blocks []acptypes.ContentBlock) string {
	for _, b := range blocks {
		if b.Type == acptypes.BlockText && b.Text != "" {
			return b.Text
		}
	}
	return ""
}
