package workflow

import (
	badgerdb "github.com/dgraph-io/badger/v4"

	"github.com/ternarybob/trellis/internal/models"
)

// cascadeTx examines the parent of a just-transitioned item and applies the
// matching upward event, recursing on the modified parent. Detection is
// read-only; application reuses applyTx so every cascade step runs its own
// gate and prerequisite checks. Events that cannot be applied (gate miss,
// unresolved blockers, nothing to resolve, depth cap) are recorded with
// Applied=false instead of failing the initiating transition.
func (e *Engine) cascadeTx(tx *badgerdb.Txn, cfg *models.WorkflowConfig, child *models.WorkItem, fromRole, toRole models.Role, actor string, depth int) ([]models.CascadeEvent, error) {
	if child.ParentID == "" {
		return nil, nil
	}
	parent, err := e.store.Items().TxGet(tx, child.ParentID)
	if err != nil {
		return nil, err
	}

	eventName, trigger, err := e.detectCascade(tx, cfg, parent, fromRole, toRole, depth)
	if err != nil {
		return nil, err
	}
	if eventName == "" {
		return nil, nil
	}

	event := models.CascadeEvent{
		ItemID:     parent.ID,
		Event:      eventName,
		Trigger:    trigger,
		FromStatus: parent.Status,
	}

	if depth > cfg.AutoCascade.MaxDepth {
		event.Applied = false
		event.Reason = string(models.CodeCascadeDepthExceeded)
		e.logger.Warn().
			Str("item_id", parent.ID).
			Str("event", eventName).
			Int("depth", depth).
			Int("max_depth", cfg.AutoCascade.MaxDepth).
			Msg("Cascade abandoned at depth cap")
		return []models.CascadeEvent{event}, nil
	}

	applied, err := e.applyTx(tx, cfg, parent, trigger, actor)
	if err != nil {
		te := models.AsToolError(err)
		switch te.Code {
		case models.CodeGateBlocked, models.CodeDependenciesNotResolved,
			models.CodeNoTransitionAvailable, models.CodeValidation:
			event.Applied = false
			event.Reason = te.Message
			return []models.CascadeEvent{event}, nil
		default:
			return nil, err
		}
	}

	event.Applied = true
	event.ToStatus = applied.NewStatus
	events := []models.CascadeEvent{event}

	more, err := e.cascadeTx(tx, cfg, parent, applied.PreviousRole, applied.NewRole, actor, depth+1)
	if err != nil {
		return nil, err
	}
	return append(events, more...), nil
}

// detectCascade decides which event, if any, the child transition raises on
// the parent. first_task_started fires when a child enters role work while
// the parent still sits at the first status of its flow. The completion
// events fire when every child of the parent is terminal; the first level
// up is all_tasks_complete, higher levels are all_features_complete.
func (e *Engine) detectCascade(tx *badgerdb.Txn, cfg *models.WorkflowConfig, parent *models.WorkItem, childFromRole, childToRole models.Role, depth int) (string, models.Trigger, error) {
	parentRole, ok := cfg.RoleFor(parent.Status)
	if !ok || parentRole == models.RoleTerminal {
		return "", "", nil
	}

	switch {
	case childToRole == models.RoleWork && childFromRole != models.RoleWork:
		parentFlow := SelectFlow(cfg, parent.TagSet())
		if parent.Status == parentFlow.Sequence[0] {
			return models.CascadeFirstTaskStarted, models.TriggerStart, nil
		}

	case childToRole == models.RoleTerminal && childFromRole != models.RoleTerminal:
		children, err := e.store.Items().TxGetByParent(tx, parent.ID)
		if err != nil {
			return "", "", err
		}
		for _, c := range children {
			role, ok := cfg.RoleFor(c.Status)
			if !ok || role != models.RoleTerminal {
				return "", "", nil
			}
		}
		if depth == 1 {
			return models.CascadeAllTasksComplete, models.TriggerComplete, nil
		}
		return models.CascadeAllFeaturesComplete, models.TriggerComplete, nil
	}
	return "", "", nil
}
