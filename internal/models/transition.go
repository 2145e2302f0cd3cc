// -----------------------------------------------------------------------
// Role Transitions - triggers, audit log entries and applied results
// -----------------------------------------------------------------------

package models

import (
	"fmt"
	"strings"
	"time"
)

// Trigger is a symbolic verb resolved against the item's active flow.
// Triggers are not hardcoded transitions; resolution happens at runtime
// against the flow sequence and the global role table.
type Trigger string

const (
	TriggerStart    Trigger = "start"
	TriggerComplete Trigger = "complete"
	TriggerCancel   Trigger = "cancel"
	TriggerBlock    Trigger = "block"
	TriggerHold     Trigger = "hold"
	TriggerResume   Trigger = "resume"
	TriggerBack     Trigger = "back"
)

// ParseTrigger validates a trigger string.
func ParseTrigger(s string) (Trigger, error) {
	switch Trigger(strings.ToLower(strings.TrimSpace(s))) {
	case TriggerStart:
		return TriggerStart, nil
	case TriggerComplete:
		return TriggerComplete, nil
	case TriggerCancel:
		return TriggerCancel, nil
	case TriggerBlock:
		return TriggerBlock, nil
	case TriggerHold:
		return TriggerHold, nil
	case TriggerResume:
		return TriggerResume, nil
	case TriggerBack:
		return TriggerBack, nil
	default:
		return "", fmt.Errorf("invalid trigger %q", s)
	}
}

// RoleTransition is an append-only audit record. Only role boundary
// crossings are logged; status changes within a role are not.
type RoleTransition struct {
	ID         string    `json:"id"`
	ItemID     string    `json:"item_id" badgerhold:"index"`
	FromRole   Role      `json:"from_role"`
	ToRole     Role      `json:"to_role"`
	FromStatus string    `json:"from_status"`
	ToStatus   string    `json:"to_status"`
	Trigger    Trigger   `json:"trigger"`
	AppliedAt  time.Time `json:"applied_at"`
	Actor      string    `json:"actor,omitempty"`
}

// Cascade event names.
const (
	CascadeFirstTaskStarted    = "first_task_started"
	CascadeAllTasksComplete    = "all_tasks_complete"
	CascadeAllFeaturesComplete = "all_features_complete"
)

// CascadeEvent records one upward propagation attempt. Applied=false with
// a Reason means the event was detected but could not be applied (gate
// miss, unresolved blockers, or the depth cap).
type CascadeEvent struct {
	ItemID     string  `json:"item_id"`
	Event      string  `json:"event"`
	Trigger    Trigger `json:"trigger"`
	Applied    bool    `json:"applied"`
	Reason     string  `json:"reason,omitempty"`
	FromStatus string  `json:"from_status,omitempty"`
	ToStatus   string  `json:"to_status,omitempty"`
}

// AppliedTransition is the result of a successful advance, including any
// cascade fan-out and newly unblocked downstream items.
type AppliedTransition struct {
	ItemID         string         `json:"item_id"`
	PreviousStatus string         `json:"previous_status"`
	NewStatus      string         `json:"new_status"`
	PreviousRole   Role           `json:"previous_role"`
	NewRole        Role           `json:"new_role"`
	ActiveFlow     string         `json:"active_flow"`
	FlowSequence   []string       `json:"flow_sequence"`
	FlowPosition   int            `json:"flow_position"`
	CascadeEvents  []CascadeEvent `json:"cascade_events,omitempty"`
	UnblockedItems []ItemRef      `json:"unblocked_items,omitempty"`
}
