package handlers

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/ternarybob/trellis/internal/models"
)

type transitionRequest struct {
	ItemID  string `json:"itemId,omitempty"`
	Trigger string `json:"trigger,omitempty"`
	Summary string `json:"summary,omitempty"`
}

type advanceItemArgs struct {
	ItemID      string              `json:"itemId,omitempty"`
	Trigger     string              `json:"trigger,omitempty"`
	Summary     string              `json:"summary,omitempty"`
	Transitions []transitionRequest `json:"transitions,omitempty"`
	Actor       string              `json:"actor,omitempty"`
}

type getNextStatusArgs struct {
	ItemID string `json:"itemId" validate:"required"`
	// What-if overrides: evaluate the recommendation as if the item held
	// this status or tag set. The store is not modified.
	Status string `json:"status,omitempty"`
	Tags   string `json:"tags,omitempty"`
}

// AdvanceItem implements the advance_item tool: one transition, or an
// ordered transitions array applied as independent transactions.
func AdvanceItem(s *Services) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var args advanceItemArgs
		if err := bindArguments(request, &args); err != nil {
			return failureResult(err), nil
		}

		single := args.ItemID != ""
		if single == (len(args.Transitions) > 0) {
			return failureResult(models.NewValidationError("provide either itemId+trigger or transitions")), nil
		}

		requests := args.Transitions
		if single {
			requests = []transitionRequest{{ItemID: args.ItemID, Trigger: args.Trigger, Summary: args.Summary}}
		}

		results := make([]batchItemResult, 0, len(requests))
		for _, req := range requests {
			applied, err := s.applyTransition(ctx, &req, args.Actor)
			if err != nil {
				results = append(results, failedItem(err))
			} else {
				results = append(results, okItem(applied))
			}
		}

		if single {
			if !results[0].Ok {
				return failureResult(results[0].Error), nil
			}
			return successResult(results[0].Data, "transition applied"), nil
		}
		return batchResult(results), nil
	}
}

func (s *Services) applyTransition(ctx context.Context, req *transitionRequest, actor string) (*models.AppliedTransition, error) {
	if req.ItemID == "" {
		return nil, models.NewValidationError("itemId is required")
	}
	trigger, err := models.ParseTrigger(req.Trigger)
	if err != nil {
		return nil, models.NewValidationError("%v", err)
	}
	if req.Summary != "" {
		s.Logger.Debug().
			Str("item_id", req.ItemID).
			Str("trigger", string(trigger)).
			Str("summary", req.Summary).
			Msg("Transition summary")
	}
	return s.Engine.Advance(ctx, req.ItemID, trigger, actor)
}

// GetNextStatus implements the get_next_status tool: the pure
// recommendation, optionally under hypothetical status or tags.
func GetNextStatus(s *Services) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var args getNextStatusArgs
		if err := bindArguments(request, &args); err != nil {
			return failureResult(err), nil
		}

		var rec *models.NextStatusRecommendation
		var err error
		if args.Status != "" || args.Tags != "" {
			rec, err = s.Engine.NextStatusWhatIf(ctx, args.ItemID, args.Status, args.Tags)
		} else {
			rec, err = s.Engine.NextStatus(ctx, args.ItemID)
		}
		if err != nil {
			return failureResult(err), nil
		}
		return successResult(rec, ""), nil
	}
}
