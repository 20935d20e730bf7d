package provider

import (
	"fmt"
	"strings"

	"github.com/fluxgate/backend/internal/models"
)

// pendingStatuses are the provider spellings that mean "still working".
// Everything that is neither here nor "Ready" is treated as a failure: the
// provider's error vocabulary is unstable, and defaulting an unknown status
// to Failed surfaces new provider behavior immediately instead of leaving
// the task stuck Pending forever.
var pendingStatuses = map[string]bool{
	"Pending":    true,
	"Processing": true,
	"Generating": true,
}

// Normalize maps a provider status onto the canonical state machine. For
// failures it returns a human-readable reason, preferring the moderation
// detail the provider attaches when content was blocked.
func Normalize(status string, details map[string]any) (state, reason string) {
	switch {
	case status == "Ready":
		return models.TaskStateReady, ""
	case pendingStatuses[status]:
		return models.TaskStatePending, ""
	default:
		return models.TaskStateFailed, failureReason(status, details)
	}
}

func failureReason(status string, details map[string]any) string {
	reason := fmt.Sprintf("Request blocked: %s", status)
	if reasons := moderationReasons(details); len(reasons) > 0 {
		reason += fmt.Sprintf(" (%s)", strings.Join(reasons, ", "))
	}
	return reason
}

// moderationReasons extracts the provider's "Moderation Reasons" detail list,
// tolerating its loosely typed JSON shape.
func moderationReasons(details map[string]any) []string {
	if details == nil {
		return nil
	}
	raw, ok := details["Moderation Reasons"].([]any)
	if !ok {
		return nil
	}
	var out []string
	for _, r := range raw {
		if s, ok := r.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
