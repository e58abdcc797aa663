// Package prompt implements the prompt handler: per-session FIFO
// ordering, heartbeats, slash-command interception, bridge orchestration,
// stop-reason classification, and persistence.
//
// The per-session FIFO is new code grounded on spec section 9's own
// design note ("naturally expressed as a chained future list"). The turn
// loop itself generalizes m4xw311-compell/agent/agent.go's processTurn
// (history append, call out, inspect response, persist) with the
// teacher's direct LLM call replaced by the cursor bridge invocation, per
// spec section 4.6.
package prompt

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/spjoes/cursor-agent-acp/internal/acperr"
	"github.com/spjoes/cursor-agent-acp/internal/acptypes"
	"github.com/spjoes/cursor-agent-acp/internal/bridge"
	"github.com/spjoes/cursor-agent-acp/internal/content"
	"github.com/spjoes/cursor-agent-acp/internal/session"
	"github.com/spjoes/cursor-agent-acp/internal/slashcmd"
)

// heartbeatInterval is the fixed 12s period of spec section 4.6. The
// exact phrase pool is presentational (spec's open question); only the
// "<phrase> (<Ns>)" format and the period are contractual.
const heartbeatInterval = 12 * time.Second

var heartbeatPhrases = []string{
	"Still working",
	"Thinking it through",
	"Crunching on this",
	"Hang tight",
	"Making progress",
}

// Notifier is the outbound half of the transport the handler needs:
// emitting session/update notifications.
type Notifier interface {
	SendNotification(method string, params any) error
}

// Handler orchestrates prompt processing for every session.
type Handler struct {
	sessions  *session.Manager
	bridge    *bridge.Bridge
	notifier  Notifier
	slash     *slashcmd.Registry
	log       zerolog.Logger
	retries   int
	timeout   time.Duration

	mu            sync.Mutex
	tails         map[string]chan struct{}
	sessionCancel map[string]context.CancelFunc
	streamCancel  map[string]map[string]context.CancelFunc
}

// New builds a Handler.
func New(sessions *session.Manager, br *bridge.Bridge, notifier Notifier, slash *slashcmd.Registry, retries int, timeout time.Duration, log zerolog.Logger) *Handler {
	return &Handler{
		sessions:      sessions,
		bridge:        br,
		notifier:      notifier,
		slash:         slash,
		retries:       retries,
		timeout:       timeout,
		log:           log,
		tails:         make(map[string]chan struct{}),
		sessionCancel: make(map[string]context.CancelFunc),
		streamCancel:  make(map[string]map[string]context.CancelFunc),
	}
}

// Result is what Process returns to the dispatcher.
type Result struct {
	StopReason        string
	StopReasonDetails *acptypes.StopReasonDetails
	Meta              map[string]any
}

// acquireTurn blocks until every prompt submitted earlier for sessionID
// has completed, then returns a release function that must be called
// exactly once to let the next queued prompt proceed. This is the
// chained-future FIFO of spec section 4.6.
func (h *Handler) acquireTurn(sessionID string) func() {
	h.mu.Lock()
	prevTail := h.tails[sessionID]
	myTail := make(chan struct{})
	h.tails[sessionID] = myTail
	h.mu.Unlock()

	if prevTail != nil {
		<-prevTail
	}
	return func() { close(myTail) }
}

// Process validates and runs one session/prompt request end to end.
func (h *Handler) Process(ctx context.Context, sessionID string, blocks []acptypes.ContentBlock, stream bool, requestID string) (*Result, error) {
	if sessionID == "" {
		return nil, acperr.InvalidParams("sessionId is required")
	}
	if len(blocks) == 0 {
		return nil, acperr.InvalidParams("prompt must contain at least one content block")
	}
	if errs := content.Validate(blocks); len(errs) > 0 {
		return nil, acperr.InvalidParams("%s", errs[0])
	}

	release := h.acquireTurn(sessionID)
	defer release()

	sess, err := h.sessions.Load(sessionID)
	if err != nil {
		return nil, err
	}

	_ = h.sessions.MarkProcessing(sessionID, true)
	defer h.sessions.MarkProcessing(sessionID, false)

	turnCtx, cancel := context.WithCancel(ctx)
	h.mu.Lock()
	h.sessionCancel[sessionID] = cancel
	h.mu.Unlock()
	defer func() {
		h.mu.Lock()
		delete(h.sessionCancel, sessionID)
		h.mu.Unlock()
		cancel()
	}()

	stopHeartbeat := h.startHeartbeat(turnCtx, sessionID)
	defer stopHeartbeat()

	start := time.Now()

	if !stream {
		if handled, result := h.interceptSlashCommand(sess, blocks); handled {
			return result, nil
		}
	}

	h.echoUserMessages(sessionID, blocks)

	serialized, err := content.Serialize(blocks)
	if err != nil {
		return nil, acperr.InvalidParams("%s", err.Error())
	}

	var (
		responseBlocks []acptypes.ContentBlock
		bridgeErr      error
		cancelled      bool
		respMeta       bridge.ResponseMetadata
	)

	opts := bridge.Options{Retries: h.retries, Timeout: h.timeout}
	meta := bridge.PromptMetadata{CWD: sess.Metadata.CWD}

	if stream {
		responseBlocks, cancelled, respMeta, bridgeErr = h.runStreaming(turnCtx, sessionID, requestID, serialized.Prompt, meta, opts)
	} else {
		responseBlocks, respMeta, bridgeErr = h.runBlocking(turnCtx, sessionID, serialized.Prompt, meta, opts)
		cancelled = turnCtx.Err() == context.Canceled
	}

	topReason, details := classifyStopReason(cancelled, bridgeErr, respMeta)
	stopReason := topReason
	var refusalMessage string
	if stopReason == acptypes.StopRefusal {
		refusalMessage = refusalExplanation(details.Reason)
		stopReason = acptypes.StopEndTurn
	}

	if refusalMessage != "" {
		h.emitAgentMessage(sessionID, refusalMessage)
	}

	if bridgeErr == nil {
		now := time.Now().UTC()
		_ = h.sessions.AddMessage(sessionID, session.Message{
			ID:        fmt.Sprintf("msg_%d", now.UnixNano()),
			Role:      "assistant",
			Content:   responseBlocks,
			Timestamp: now,
		})
	}

	return &Result{
		StopReason:        stopReason,
		StopReasonDetails: details,
		Meta: map[string]any{
			"elapsedMs":  time.Since(start).Milliseconds(),
			"blockCount": len(responseBlocks),
		},
	}, nil
}

// CancelStream cancels one in-flight stream, if any.
func (h *Handler) CancelStream(sessionID, streamID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if byStream, ok := h.streamCancel[sessionID]; ok {
		if cancel, ok := byStream[streamID]; ok {
			cancel()
			delete(byStream, streamID)
		}
	}
}

// CancelSession cancels the active prompt and every stream for sessionID.
func (h *Handler) CancelSession(sessionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if cancel, ok := h.sessionCancel[sessionID]; ok {
		cancel()
	}
	for _, cancel := range h.streamCancel[sessionID] {
		cancel()
	}
	delete(h.streamCancel, sessionID)
}

func (h *Handler) startHeartbeat(ctx context.Context, sessionID string) func() {
	phrase := heartbeatPhrases[rand.Intn(len(heartbeatPhrases))]
	start := time.Now()
	stop := make(chan struct{})

	go func() {
		ticker := time.NewTicker(heartbeatInterval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				if !h.sessions.Touch(sessionID) {
					return
				}
				elapsed := int(time.Since(start).Seconds())
				_ = h.notifier.SendNotification("session/update", acptypes.SessionUpdateNotification{
					SessionID: sessionID,
					Update: acptypes.SessionUpdate{
						SessionUpdate: "agent_thought_chunk",
						Content: &acptypes.ContentBlock{
							Type: acptypes.BlockText,
							Text: fmt.Sprintf("%s (%ds)", phrase, elapsed),
						},
						Meta: map[string]any{"heartbeat": true},
					},
				})
			}
		}
	}()

	var once sync.Once
	return func() { once.Do(func() { close(stop) }) }
}

func (h *Handler) interceptSlashCommand(sess *session.Session, blocks []acptypes.ContentBlock) (bool, *Result) {
	first := firstText(blocks)
	if !strings.HasPrefix(first, "/") {
		return false, nil
	}
	fields := strings.Fields(first)
	name := strings.TrimPrefix(fields[0], "/")

	if name == "model" && len(fields) > 1 {
		modelID := fields[1]
		if !contains(session.AvailableModels, modelID) {
			h.emitAgentMessage(sess.ID, "Invalid model. Valid ids: "+strings.Join(session.AvailableModels, ", "))
			return false, nil
		}
		if _, err := h.sessions.SetModel(sess.ID, modelID); err != nil {
			h.emitAgentMessage(sess.ID, "Failed to switch model: "+err.Error())
			return false, nil
		}
		h.emitAgentMessage(sess.ID, "Switched model to "+modelID)
		return true, &Result{StopReason: acptypes.StopEndTurn, StopReasonDetails: &acptypes.StopReasonDetails{}}
	}

	if cmd, ok := h.slash.Lookup(name); ok {
		h.emitAgentMessage(sess.ID, "Ran /"+cmd.Name+": "+cmd.Description)
		return true, &Result{StopReason: acptypes.StopEndTurn, StopReasonDetails: &acptypes.StopReasonDetails{}}
	}
	return false, nil
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

func (h *Handler) echoUserMessages(sessionID string, blocks []acptypes.ContentBlock) {
	for _, b := range blocks {
		block := b
		if block.Annotations == nil {
			block.Annotations = &acptypes.Annotations{}
		}
		block.Annotations.Audience = []string{"user", "assistant"}
		_ = h.notifier.SendNotification("session/update", acptypes.SessionUpdateNotification{
			SessionID: sessionID,
			Update: acptypes.SessionUpdate{
				SessionUpdate: "user_message_chunk",
				Content:       &block,
			},
		})
	}
}

func (h *Handler) emitAgentMessage(sessionID, text string) {
	_ = h.notifier.SendNotification("session/update", acptypes.SessionUpdateNotification{
		SessionID: sessionID,
		Update: acptypes.SessionUpdate{
			SessionUpdate: "agent_message_chunk",
			Content: &acptypes.ContentBlock{
				Type:        acptypes.BlockText,
				Text:        text,
				Annotations: &acptypes.Annotations{Audience: []string{"user"}},
			},
		},
	})
}

func (h *Handler) runBlocking(ctx context.Context, sessionID, serialized string, meta bridge.PromptMetadata, opts bridge.Options) ([]acptypes.ContentBlock, bridge.ResponseMetadata, error) {
	res, text, respMeta := h.bridge.SendPrompt(ctx, sessionID, serialized, meta, opts)
	if !res.Success {
		return nil, bridge.ResponseMetadata{}, classifyBridgeFailure(res)
	}

	tok := content.NewTokenizer()
	var blocks []acptypes.ContentBlock
	blocks = append(blocks, tok.Feed(text)...)
	blocks = append(blocks, tok.Finalize()...)
	for _, b := range blocks {
		block := b
		h.emitAgentChunk(sessionID, block)
	}
	return blocks, respMeta, nil
}

func (h *Handler) runStreaming(ctx context.Context, sessionID, requestID, serialized string, meta bridge.PromptMetadata, opts bridge.Options) ([]acptypes.ContentBlock, bool, bridge.ResponseMetadata, error) {
	streamCtx, cancel := context.WithCancel(ctx)
	h.mu.Lock()
	if h.streamCancel[sessionID] == nil {
		h.streamCancel[sessionID] = make(map[string]context.CancelFunc)
	}
	h.streamCancel[sessionID][requestID] = cancel
	h.mu.Unlock()
	defer func() {
		h.mu.Lock()
		delete(h.streamCancel[sessionID], requestID)
		h.mu.Unlock()
		cancel()
	}()

	tok := content.NewTokenizer()
	var blocks []acptypes.ContentBlock

	aborted, respMeta, err := h.bridge.SendStreamingPrompt(streamCtx, sessionID, serialized, meta, opts, bridge.StreamCallbacks{
		OnChunk: func(chunk string) {
			for _, b := range tok.Feed(chunk) {
				blocks = append(blocks, b)
				h.emitAgentChunk(sessionID, b)
			}
		},
	})
	if aborted {
		return blocks, true, respMeta, nil
	}
	if err != nil {
		return blocks, false, respMeta, err
	}

	for _, b := range tok.Finalize() {
		blocks = append(blocks, b)
		h.emitAgentChunk(sessionID, b)
	}
	return blocks, false, respMeta, nil
}

func (h *Handler) emitAgentChunk(sessionID string, block acptypes.ContentBlock) {
	if block.Annotations == nil {
		block.Annotations = &acptypes.Annotations{}
	}
	block.Annotations.Audience = []string{"user"}
	_ = h.notifier.SendNotification("session/update", acptypes.SessionUpdateNotification{
		SessionID: sessionID,
		Update: acptypes.SessionUpdate{
			SessionUpdate: "agent_message_chunk",
			Content:       &block,
		},
	})
}

func firstText(blocks []acptypes.ContentBlock) string {
	for _, b := range blocks {
		if b.Type == acptypes.BlockText {
			return b.Text
		}
	}
	return ""
}
