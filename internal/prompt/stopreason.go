package prompt

import (
	"errors"
	"strings"
	"time"

	"github.com/spjoes/cursor-agent-acp/internal/acptypes"
	"github.com/spjoes/cursor-agent-acp/internal/bridge"
)

// classifyBridgeFailure turns a failed ExecResult into an error whose
// message drives the refusal-reason heuristics below. A spawn-ENOENT is
// rendered as the "cursor-agent CLI not installed" phrase spec scenario
// 4 keys its capability_unavailable classification on.
func classifyBridgeFailure(res *bridge.ExecResult) error {
	switch res.Failure {
	case bridge.FailureSpawnENOENT:
		return errors.New("cursor-agent CLI not installed or not found on PATH")
	case bridge.FailureTimeout:
		return errors.New("cursor-agent timed out: " + errString(res.Error))
	case bridge.FailureCancelled:
		return errors.New("cursor-agent cancelled: " + errString(res.Error))
	default:
		msg := res.Stderr
		if msg == "" {
			msg = errString(res.Error)
		}
		return errors.New("cursor-agent exited with an error: " + msg)
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// classifyStopReason implements the ordered classifier of spec section
// 4.6: cancelled, then max_tokens, then max_turn_requests (both read off
// the bridge's parsed response metadata), then refusal -- with a refined
// sub-reason from the error message when one is present, or from the
// response metadata's own reason when cursor-agent refused without
// erroring -- then end_turn.
func classifyStopReason(cancelled bool, err error, meta bridge.ResponseMetadata) (string, *acptypes.StopReasonDetails) {
	if cancelled {
		return acptypes.StopCancelled, &acptypes.StopReasonDetails{
			CancelledAt:  time.Now().UTC().Format(time.RFC3339),
			CancelMethod: "session/cancel",
		}
	}
	if meta.Reason == "max_tokens" || meta.TokenLimitReached {
		return acptypes.StopMaxTokens, &acptypes.StopReasonDetails{}
	}
	if meta.Reason == "max_turn_requests" || meta.TurnLimitReached {
		return acptypes.StopMaxTurnRequests, &acptypes.StopReasonDetails{}
	}
	if err != nil {
		return acptypes.StopRefusal, &acptypes.StopReasonDetails{Reason: refineRefusalReason(err.Error())}
	}
	if meta.Refused || meta.Reason == "refused" || meta.Reason == "error" {
		return acptypes.StopRefusal, &acptypes.StopReasonDetails{Reason: refusalReasonWithoutError(meta.Reason)}
	}
	return acptypes.StopEndTurn, &acptypes.StopReasonDetails{}
}

// refusalReasonWithoutError classifies a refusal that cursor-agent
// reported without an accompanying error, per spec section 4.6's
// content_policy/capability_limit branch.
func refusalReasonWithoutError(reason string) string {
	switch reason {
	case "content_policy":
		return "content_policy"
	case "capability_limit":
		return "capability_limit"
	default:
		return "refused"
	}
}

// refineRefusalReason applies the substring heuristics of spec section
// 4.6 to a bridge or tool error message.
func refineRefusalReason(message string) string {
	lower := strings.ToLower(message)
	switch {
	case strings.Contains(lower, "not installed") || strings.Contains(lower, "not found on path") || strings.Contains(lower, "executable file not found"):
		return "capability_unavailable"
	case strings.Contains(lower, "auth") || strings.Contains(lower, "unauthorized") || strings.Contains(lower, "forbidden"):
		return "authentication"
	case strings.Contains(lower, "rate limit") || strings.Contains(lower, "too many requests"):
		return "rate_limit"
	case strings.Contains(lower, "timed out") || strings.Contains(lower, "timeout"):
		return "timeout"
	default:
		return "error"
	}
}

// refusalExplanation renders the human-readable agent message spec
// section 4.6 requires whenever a refusal is downgraded to end_turn.
func refusalExplanation(reason string) string {
	switch reason {
	case "capability_unavailable":
		return "I can't reach the cursor-agent CLI -- it looks like it's not installed or not available in PATH. Install it and try again."
	case "authentication":
		return "I couldn't authenticate with cursor-agent. Please check your login status and try again."
	case "rate_limit":
		return "cursor-agent is currently rate-limited. Please wait a moment and try again."
	case "timeout":
		return "cursor-agent didn't respond in time. Please try again."
	case "content_policy":
		return "I'm not able to help with that request."
	case "capability_limit":
		return "That's outside what I'm currently able to do."
	case "refused":
		return "cursor-agent declined to complete that request."
	default:
		return "I ran into an unexpected error and couldn't complete that request."
	}
}
