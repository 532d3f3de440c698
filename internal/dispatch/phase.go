package dispatch

import (
	"strings"

	"github.com/zulandar/bullpen/internal/conversation"
)

// ToolPrefix marks a part as a dispatch tool call; the rest of the type is
// the target agent's slug.
const ToolPrefix = "tool-dispatch_"

// Tool part lifecycle states.
const (
	StateInputStreaming    = "input-streaming"
	StateInputAvailable    = "input-available"
	StateApprovalRequested = "approval-requested"
	StateApprovalResponded = "approval-responded"
	StateOutputAvailable   = "output-available"
	StateOutputError       = "output-error"
	StateOutputDenied      = "output-denied"
)

// Phase is where a part stands in the dispatch lifecycle.
type Phase int

const (
	// PhaseNone is any part that is not a dispatch tool call.
	PhaseNone Phase = iota
	// PhasePending is a dispatch call still being formed, or one whose
	// approval arrived in a state this resolver does not act on.
	PhasePending
	// PhaseApprovalRequested is waiting on the user's decision.
	PhaseApprovalRequested
	// PhaseApproved is consented to and not yet run.
	PhaseApproved
	// PhaseDenied was refused by the user.
	PhaseDenied
	// PhaseOutputAvailable has run and carries an output.
	PhaseOutputAvailable
	// PhaseOutputError has run and failed.
	PhaseOutputError
)

var phaseNames = [...]string{
	PhaseNone:              "none",
	PhasePending:           "pending",
	PhaseApprovalRequested: "approval_requested",
	PhaseApproved:          "approved",
	PhaseDenied:            "denied",
	PhaseOutputAvailable:   "output_available",
	PhaseOutputError:       "output_error",
}

func (p Phase) String() string {
	if p < 0 || int(p) >= len(phaseNames) {
		return "unknown"
	}
	return phaseNames[p]
}

// Classify places a part in its dispatch phase. A part that already carries
// an output or an error is terminal regardless of its approval, which is
// what keeps a re-scan from dispatching it twice.
func Classify(p conversation.Part) Phase {
	if !strings.HasPrefix(p.Type, ToolPrefix) {
		return PhaseNone
	}
	switch {
	case p.State == StateOutputError || p.ErrorText != "":
		return PhaseOutputError
	case p.State == StateOutputAvailable || len(p.Output) > 0:
		return PhaseOutputAvailable
	case p.State == StateOutputDenied:
		return PhaseDenied
	}

	if p.Approval != nil && p.Approval.Approved != nil {
		if !*p.Approval.Approved {
			return PhaseDenied
		}
		if p.State == StateApprovalRequested || p.State == StateApprovalResponded {
			return PhaseApproved
		}
		return PhasePending
	}
	if p.State == StateApprovalRequested {
		return PhaseApprovalRequested
	}
	return PhasePending
}

// Slug returns the agent slug named by a dispatch part type.
func Slug(partType string) (string, bool) {
	slug, ok := strings.CutPrefix(partType, ToolPrefix)
	if !ok || slug == "" {
		return "", false
	}
	return slug, true
}
