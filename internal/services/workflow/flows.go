package workflow

import (
	"github.com/ternarybob/trellis/internal/models"
)

// SelectFlow picks the active flow for a tag set: the flow whose non-empty
// MatchTags are all present in the tags wins, most specific first, with
// configuration order breaking ties. When no tagged flow matches, the first
// flow with empty MatchTags is the default; failing that, the first flow.
func SelectFlow(cfg *models.WorkflowConfig, tags []string) *models.Flow {
	tagSet := make(map[string]bool, len(tags))
	for _, t := range tags {
		tagSet[t] = true
	}

	var best *models.Flow
	bestSpecificity := 0
	for i := range cfg.Flows {
		flow := &cfg.Flows[i]
		if len(flow.MatchTags) == 0 {
			continue
		}
		matched := true
		for _, want := range flow.MatchTags {
			if !tagSet[want] {
				matched = false
				break
			}
		}
		if matched && len(flow.MatchTags) > bestSpecificity {
			best = flow
			bestSpecificity = len(flow.MatchTags)
		}
	}
	if best != nil {
		return best
	}
	for i := range cfg.Flows {
		if len(cfg.Flows[i].MatchTags) == 0 {
			return &cfg.Flows[i]
		}
	}
	return &cfg.Flows[0]
}

// InitialStatus returns the entry status for a new item with the given
// tags: the first status of its selected flow, plus the mapped role.
func InitialStatus(cfg *models.WorkflowConfig, tags []string) (string, models.Role, error) {
	flow := SelectFlow(cfg, tags)
	status := flow.Sequence[0]
	role, ok := cfg.RoleFor(status)
	if !ok {
		return "", "", models.NewValidationError("flow %q entry status %q is not mapped to a role", flow.Name, status)
	}
	return status, role, nil
}

// firstStatusWithRole scans the flow sequence for the first status mapping
// to the given role. Returns "" when the flow does not pass through it.
func firstStatusWithRole(cfg *models.WorkflowConfig, flow *models.Flow, role models.Role) string {
	for _, status := range flow.Sequence {
		if r, ok := cfg.RoleFor(status); ok && r == role {
			return status
		}
	}
	return ""
}

// flowHasRole reports whether any status of the sequence maps to the role.
func flowHasRole(cfg *models.WorkflowConfig, flow *models.Flow, role models.Role) bool {
	return firstStatusWithRole(cfg, flow, role) != ""
}

// ResolveTrigger maps a symbolic trigger to a concrete target status for
// the item under its active flow. The history argument is consulted only by
// resume and may be nil for other triggers. A NoTransitionAvailable error
// is returned when the trigger does not apply from the item's current role.
func ResolveTrigger(cfg *models.WorkflowConfig, flow *models.Flow, item *models.WorkItem, trigger models.Trigger, history []*models.RoleTransition) (string, error) {
	role, ok := cfg.RoleFor(item.Status)
	if !ok {
		return "", models.NewValidationError("status %q is not mapped to a role", item.Status)
	}

	noTransition := func(format string, args ...any) (string, error) {
		return "", models.NewNoTransitionError(format, args...)
	}

	switch trigger {
	case models.TriggerStart:
		if role != models.RoleQueue {
			return noTransition("cannot start %s: item is in role %s, start requires queue", item.ID, role)
		}
		for _, status := range flow.Sequence {
			if r, ok := cfg.RoleFor(status); ok && r != models.RoleQueue {
				return status, nil
			}
		}
		return noTransition("flow %q has no status beyond the queue", flow.Name)

	case models.TriggerComplete:
		switch role {
		case models.RoleQueue, models.RoleWork:
			// Flows that pass through a review status require a second
			// complete from the review role before reaching terminal.
			if review := firstStatusWithRole(cfg, flow, models.RoleReview); review != "" {
				return review, nil
			}
			if terminal := firstStatusWithRole(cfg, flow, models.RoleTerminal); terminal != "" {
				return terminal, nil
			}
			return flow.Terminal[0], nil
		case models.RoleReview:
			if terminal := firstStatusWithRole(cfg, flow, models.RoleTerminal); terminal != "" {
				return terminal, nil
			}
			return flow.Terminal[0], nil
		default:
			return noTransition("cannot complete %s: item is in role %s", item.ID, role)
		}

	case models.TriggerCancel:
		if role == models.RoleTerminal {
			return noTransition("cannot cancel %s: item is already terminal", item.ID)
		}
		return models.StatusCancelled, nil

	case models.TriggerBlock:
		if role == models.RoleBlocked || role == models.RoleTerminal {
			return noTransition("cannot block %s: item is in role %s", item.ID, role)
		}
		for _, status := range flow.Emergency {
			if status != models.StatusOnHold {
				return status, nil
			}
		}
		return noTransition("flow %q declares no emergency status for block", flow.Name)

	case models.TriggerHold:
		if role == models.RoleBlocked || role == models.RoleTerminal {
			return noTransition("cannot hold %s: item is in role %s", item.ID, role)
		}
		for _, status := range flow.Emergency {
			if status == models.StatusOnHold {
				return status, nil
			}
		}
		return noTransition("flow %q declares no %s status", flow.Name, models.StatusOnHold)

	case models.TriggerResume:
		if role != models.RoleBlocked {
			return noTransition("cannot resume %s: item is in role %s, resume requires blocked", item.ID, role)
		}
		// Most recent non-blocked status in the transition log; the entry
		// that moved the item into blocked carries it as from_status.
		for i := len(history) - 1; i >= 0; i-- {
			if history[i].ToRole != models.RoleBlocked {
				return history[i].ToStatus, nil
			}
			if history[i].FromRole != models.RoleBlocked {
				return history[i].FromStatus, nil
			}
		}
		return noTransition("cannot resume %s: no prior non-blocked status recorded", item.ID)

	case models.TriggerBack:
		idx := flow.IndexOf(item.Status)
		if idx <= 0 {
			return noTransition("cannot step back from %q in flow %q", item.Status, flow.Name)
		}
		return flow.Sequence[idx-1], nil

	default:
		return "", models.NewValidationError("unknown trigger %q", trigger)
	}
}
