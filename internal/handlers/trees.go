package handlers

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/ternarybob/trellis/internal/models"
	"github.com/ternarybob/trellis/internal/services/trees"
)

type createWorkTreeArgs struct {
	Root         trees.NodeSpec         `json:"root" validate:"required"`
	Dependencies []trees.DependencySpec `json:"dependencies,omitempty"`
}

type completeTreeArgs struct {
	RootID  string `json:"rootId" validate:"required"`
	Trigger string `json:"trigger,omitempty" validate:"omitempty,oneof=complete cancel"`
	Actor   string `json:"actor,omitempty"`
}

// CreateWorkTree implements the create_work_tree tool. The whole tree is
// one transaction; any failure creates nothing.
func CreateWorkTree(s *Services) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var args createWorkTreeArgs
		if err := bindArguments(request, &args); err != nil {
			return failureResult(err), nil
		}
		if args.Root.Title == "" {
			return failureResult(models.NewValidationError("root.title is required")), nil
		}

		created, err := s.Trees.CreateWorkTree(ctx, &trees.TreeSpec{
			Root:         args.Root,
			Dependencies: args.Dependencies,
		})
		if err != nil {
			return failureResult(err), nil
		}
		return successResult(created, "work tree created"), nil
	}
}

// CompleteTree implements the complete_tree tool: bottom-up batch
// completion with per-item outcomes.
func CompleteTree(s *Services) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var args completeTreeArgs
		if err := bindArguments(request, &args); err != nil {
			return failureResult(err), nil
		}
		trigger := models.TriggerComplete
		if args.Trigger != "" {
			parsed, err := models.ParseTrigger(args.Trigger)
			if err != nil {
				return failureResult(models.NewValidationError("%v", err)), nil
			}
			trigger = parsed
		}

		completion, err := s.Trees.CompleteTree(ctx, args.RootID, trigger, args.Actor)
		if err != nil {
			return failureResult(err), nil
		}

		results := make([]batchItemResult, 0, len(completion.Results))
		for _, r := range completion.Results {
			if r.Ok {
				results = append(results, okItem(r))
			} else {
				results = append(results, batchItemResult{Ok: false, Data: r, Error: r.Error})
			}
		}
		return batchResult(results), nil
	}
}
