package workflow

import (
	"context"
	"fmt"
	"strings"
	"time"

	badgerdb "github.com/dgraph-io/badger/v4"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/trellis/internal/common"
	"github.com/ternarybob/trellis/internal/interfaces"
	"github.com/ternarybob/trellis/internal/models"
	"github.com/ternarybob/trellis/internal/services/graph"
	"github.com/ternarybob/trellis/internal/services/schema"
)

// Engine owns trigger application: it resolves triggers against the active
// flow, enforces note gates and dependency prerequisites, writes the role
// transition log and fans out cascades, all inside one store transaction.
type Engine struct {
	store   interfaces.StorageManager
	loader  *Loader
	schemas *schema.Service
	graph   *graph.Service
	logger  arbor.ILogger
}

// NewEngine wires the workflow engine.
func NewEngine(store interfaces.StorageManager, loader *Loader, schemas *schema.Service, graphSvc *graph.Service, logger arbor.ILogger) *Engine {
	return &Engine{
		store:   store,
		loader:  loader,
		schemas: schemas,
		graph:   graphSvc,
		logger:  logger,
	}
}

// Loader exposes the workflow config loader for handlers that need flow
// metadata without going through the engine.
func (e *Engine) Loader() *Loader {
	return e.loader
}

// NextStatus computes the recommendation for an item's current state. Pure;
// makes no writes.
func (e *Engine) NextStatus(ctx context.Context, itemID string) (*models.NextStatusRecommendation, error) {
	item, err := e.store.Items().Get(ctx, itemID)
	if err != nil {
		return nil, err
	}
	return e.recommend(ctx, item)
}

// NextStatusWhatIf evaluates the recommendation for a hypothetical state:
// overrideStatus and overrideTags, when non-empty, replace the stored
// values before evaluation. The store is never modified.
func (e *Engine) NextStatusWhatIf(ctx context.Context, itemID, overrideStatus, overrideTags string) (*models.NextStatusRecommendation, error) {
	item, err := e.store.Items().Get(ctx, itemID)
	if err != nil {
		return nil, err
	}
	hypothetical := *item
	if overrideStatus != "" {
		hypothetical.Status = overrideStatus
	}
	if overrideTags != "" {
		hypothetical.Tags = models.NormalizeTags(overrideTags)
	}
	return e.recommend(ctx, &hypothetical)
}

func (e *Engine) recommend(ctx context.Context, item *models.WorkItem) (*models.NextStatusRecommendation, error) {
	cfg := e.loader.Config()
	flow := SelectFlow(cfg, item.TagSet())

	rec := &models.NextStatusRecommendation{
		ActiveFlow:   flow.Name,
		FlowSequence: flow.Sequence,
		FlowPosition: flow.IndexOf(item.Status),
	}

	role, ok := cfg.RoleFor(item.Status)
	if !ok {
		rec.Kind = models.RecommendationBlocked
		rec.Reason = fmt.Sprintf("status %q is not mapped to a role", item.Status)
		return rec, nil
	}

	switch role {
	case models.RoleTerminal:
		rec.Kind = models.RecommendationTerminal
		rec.TerminalStatus = item.Status
		rec.Reason = fmt.Sprintf("item is terminal at %q", item.Status)
		return rec, nil

	case models.RoleBlocked:
		history, err := e.store.Transitions().GetByItem(ctx, item.ID)
		if err != nil {
			return nil, err
		}
		target, err := ResolveTrigger(cfg, flow, item, models.TriggerResume, history)
		if err != nil {
			rec.Kind = models.RecommendationBlocked
			rec.Reason = models.AsToolError(err).Message
			return rec, nil
		}
		rec.Kind = models.RecommendationReady
		rec.TargetStatus = target
		rec.Reason = fmt.Sprintf("resume returns the item to %q", target)
		return rec, nil

	default:
		trigger := models.TriggerComplete
		if role == models.RoleQueue {
			trigger = models.TriggerStart
		}
		target, err := ResolveTrigger(cfg, flow, item, trigger, nil)
		if err != nil {
			rec.Kind = models.RecommendationBlocked
			rec.Reason = models.AsToolError(err).Message
			return rec, nil
		}

		missing, err := e.schemas.MissingRequired(ctx, item, role)
		if err != nil {
			return nil, err
		}
		var unresolved []string
		if toRole, ok := cfg.RoleFor(target); ok && toRole == models.RoleTerminal {
			blockers, err := e.graph.UnresolvedBlockers(ctx, item.ID)
			if err != nil {
				return nil, err
			}
			for _, b := range blockers {
				unresolved = append(unresolved, b.ID)
			}
		}

		if len(missing) > 0 || len(unresolved) > 0 {
			rec.Kind = models.RecommendationBlocked
			rec.MissingNotes = missing
			rec.UnresolvedBlockers = unresolved
			rec.Reason = blockedReason(missing, unresolved)
			return rec, nil
		}

		rec.Kind = models.RecommendationReady
		rec.TargetStatus = target
		rec.Reason = fmt.Sprintf("trigger %q advances the item to %q", trigger, target)
		return rec, nil
	}
}

func blockedReason(missing, unresolved []string) string {
	var parts []string
	if len(missing) > 0 {
		parts = append(parts, fmt.Sprintf("missing required notes: %s", strings.Join(missing, ", ")))
	}
	if len(unresolved) > 0 {
		parts = append(parts, fmt.Sprintf("unresolved blockers: %s", strings.Join(unresolved, ", ")))
	}
	return strings.Join(parts, "; ")
}

// Advance applies a trigger to an item. The transition, its role log entry,
// every applied cascade and the unblocked-item discovery share a single
// store transaction.
func (e *Engine) Advance(ctx context.Context, itemID string, trigger models.Trigger, actor string) (*models.AppliedTransition, error) {
	cfg := e.loader.Config()

	var applied *models.AppliedTransition
	err := e.store.Update(ctx, func(tx *badgerdb.Txn) error {
		item, err := e.store.Items().TxGet(tx, itemID)
		if err != nil {
			return err
		}

		result, err := e.applyTx(tx, cfg, item, trigger, actor)
		if err != nil {
			return err
		}
		applied = result

		if cfg.AutoCascade.Enabled {
			events, err := e.cascadeTx(tx, cfg, item, applied.PreviousRole, applied.NewRole, actor, 1)
			if err != nil {
				return err
			}
			applied.CascadeEvents = events
		}

		if applied.NewRole == models.RoleTerminal && applied.PreviousRole != models.RoleTerminal {
			unblocked, err := e.graph.TxNewlyUnblocked(tx, itemID)
			if err != nil {
				return err
			}
			for _, u := range unblocked {
				applied.UnblockedItems = append(applied.UnblockedItems, u.Ref())
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.logger.Info().
		Str("item_id", applied.ItemID).
		Str("trigger", string(trigger)).
		Str("from", applied.PreviousStatus).
		Str("to", applied.NewStatus).
		Int("cascades", len(applied.CascadeEvents)).
		Msg("Transition applied")
	return applied, nil
}

// TxAdvance applies a trigger inside an existing transaction. Used by the
// tree service to compose subtree completion into one atomic write.
func (e *Engine) TxAdvance(tx *badgerdb.Txn, cfg *models.WorkflowConfig, item *models.WorkItem, trigger models.Trigger, actor string) (*models.AppliedTransition, error) {
	result, err := e.applyTx(tx, cfg, item, trigger, actor)
	if err != nil {
		return nil, err
	}
	if cfg.AutoCascade.Enabled {
		events, err := e.cascadeTx(tx, cfg, item, result.PreviousRole, result.NewRole, actor, 1)
		if err != nil {
			return nil, err
		}
		result.CascadeEvents = events
	}
	if result.NewRole == models.RoleTerminal && result.PreviousRole != models.RoleTerminal {
		unblocked, err := e.graph.TxNewlyUnblocked(tx, item.ID)
		if err != nil {
			return nil, err
		}
		for _, u := range unblocked {
			result.UnblockedItems = append(result.UnblockedItems, u.Ref())
		}
	}
	return result, nil
}

// applyTx resolves and applies one trigger without cascading. The item is
// mutated in place so callers observe the post-transition state.
func (e *Engine) applyTx(tx *badgerdb.Txn, cfg *models.WorkflowConfig, item *models.WorkItem, trigger models.Trigger, actor string) (*models.AppliedTransition, error) {
	flow := SelectFlow(cfg, item.TagSet())
	fromRole, ok := cfg.RoleFor(item.Status)
	if !ok {
		return nil, models.NewValidationError("status %q is not mapped to a role", item.Status)
	}

	var history []*models.RoleTransition
	if trigger == models.TriggerResume {
		var err error
		history, err = e.store.Transitions().TxGetByItem(tx, item.ID)
		if err != nil {
			return nil, err
		}
	}

	target, err := ResolveTrigger(cfg, flow, item, trigger, history)
	if err != nil {
		return nil, err
	}
	toRole, ok := cfg.RoleFor(target)
	if !ok {
		return nil, models.NewValidationError("target status %q is not mapped to a role", target)
	}

	// Gates check the source role; cancel bypasses them. Within-role status
	// moves are ungated.
	if trigger != models.TriggerCancel && toRole != fromRole {
		missing, err := e.schemas.TxMissingRequired(tx, item, fromRole)
		if err != nil {
			return nil, err
		}
		if len(missing) > 0 {
			return nil, models.NewGateBlockedError(missing)
		}
		if toRole == models.RoleTerminal {
			unresolved, err := e.graph.TxUnresolvedBlockers(tx, item.ID)
			if err != nil {
				return nil, err
			}
			if len(unresolved) > 0 {
				ids := make([]string, len(unresolved))
				for i, u := range unresolved {
					ids[i] = u.ID
				}
				return nil, models.NewDependenciesNotResolvedError(ids)
			}
		}
	}

	now := time.Now().UTC()
	previousStatus := item.Status
	item.Status = target
	item.ModifiedAt = now
	if toRole != fromRole {
		item.PreviousRole = fromRole
		item.Role = toRole
		item.RoleChangedAt = now
		entry := &models.RoleTransition{
			ID:         common.NewTransitionID(),
			ItemID:     item.ID,
			FromRole:   fromRole,
			ToRole:     toRole,
			FromStatus: previousStatus,
			ToStatus:   target,
			Trigger:    trigger,
			AppliedAt:  now,
			Actor:      actor,
		}
		if err := e.store.Transitions().TxInsert(tx, entry); err != nil {
			return nil, err
		}
	}
	if err := e.store.Items().TxUpsert(tx, item); err != nil {
		return nil, err
	}

	return &models.AppliedTransition{
		ItemID:         item.ID,
		PreviousStatus: previousStatus,
		NewStatus:      target,
		PreviousRole:   fromRole,
		NewRole:        toRole,
		ActiveFlow:     flow.Name,
		FlowSequence:   flow.Sequence,
		FlowPosition:   flow.IndexOf(target),
	}, nil
}
