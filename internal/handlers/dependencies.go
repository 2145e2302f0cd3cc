package handlers

import (
	"context"
	"time"

	badgerdb "github.com/dgraph-io/badger/v4"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/ternarybob/trellis/internal/common"
	"github.com/ternarybob/trellis/internal/models"
	"github.com/ternarybob/trellis/internal/services/graph"
)

type depPayload struct {
	From string `json:"from,omitempty"`
	To   string `json:"to,omitempty"`
	Type string `json:"type,omitempty"`
}

// manageDependenciesArgs accepts either an explicit edge list or one of
// the shortcut patterns: linear chains items[0]→items[1]→…, fan-out
// from→items, fan-in items→to.
type manageDependenciesArgs struct {
	Operation    string       `json:"operation" validate:"required,oneof=create delete"`
	Dependency   *depPayload  `json:"dependency,omitempty"`
	Dependencies []depPayload `json:"dependencies,omitempty"`
	Pattern      string       `json:"pattern,omitempty" validate:"omitempty,oneof=linear fan-out fan-in"`
	Items        []string     `json:"items,omitempty"`
	From         string       `json:"from,omitempty"`
	To           string       `json:"to,omitempty"`
	Type         string       `json:"type,omitempty"`
}

type queryDependenciesArgs struct {
	ItemID        string   `json:"itemId,omitempty"`
	ItemIDs       []string `json:"itemIds,omitempty"`
	Direction     string   `json:"direction,omitempty" validate:"omitempty,oneof=outgoing incoming"`
	NeighborsOnly *bool    `json:"neighborsOnly,omitempty"`
	MaxDepth      int      `json:"maxDepth,omitempty"`
}

type chainEntry struct {
	Item     models.ItemRef `json:"item"`
	Status   string         `json:"status"`
	Distance int            `json:"distance"`
}

type dependenciesData struct {
	Edges []*models.Dependency `json:"edges"`
	Chain []chainEntry         `json:"chain,omitempty"`
}

// ManageDependencies implements the manage_dependencies tool. Each edge is
// its own transaction; pattern and array forms report per-edge outcomes.
func ManageDependencies(s *Services) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var args manageDependenciesArgs
		if err := bindArguments(request, &args); err != nil {
			return failureResult(err), nil
		}
		edges, single, err := expandEdges(&args)
		if err != nil {
			return failureResult(err), nil
		}

		results := make([]batchItemResult, 0, len(edges))
		for i := range edges {
			data, err := s.applyDependencyOp(ctx, args.Operation, &edges[i])
			if err != nil {
				results = append(results, failedItem(err))
			} else {
				results = append(results, okItem(data))
			}
		}

		if single {
			if !results[0].Ok {
				return failureResult(results[0].Error), nil
			}
			return successResult(results[0].Data, "dependency "+args.Operation+"d"), nil
		}
		return batchResult(results), nil
	}
}

func expandEdges(args *manageDependenciesArgs) ([]depPayload, bool, error) {
	declared := 0
	if args.Dependency != nil {
		declared++
	}
	if len(args.Dependencies) > 0 {
		declared++
	}
	if args.Pattern != "" {
		declared++
	}
	if declared != 1 {
		return nil, false, models.NewValidationError("provide exactly one of dependency, dependencies or pattern")
	}

	if args.Dependency != nil {
		return []depPayload{*args.Dependency}, true, nil
	}
	if len(args.Dependencies) > 0 {
		return args.Dependencies, false, nil
	}

	edgeType := args.Type
	if edgeType == "" {
		edgeType = string(models.DependencyBlocks)
	}
	var edges []depPayload
	switch args.Pattern {
	case "linear":
		if len(args.Items) < 2 {
			return nil, false, models.NewValidationError("linear pattern needs at least two items")
		}
		for i := 0; i < len(args.Items)-1; i++ {
			edges = append(edges, depPayload{From: args.Items[i], To: args.Items[i+1], Type: edgeType})
		}
	case "fan-out":
		if args.From == "" || len(args.Items) == 0 {
			return nil, false, models.NewValidationError("fan-out pattern needs from and items")
		}
		for _, to := range args.Items {
			edges = append(edges, depPayload{From: args.From, To: to, Type: edgeType})
		}
	case "fan-in":
		if args.To == "" || len(args.Items) == 0 {
			return nil, false, models.NewValidationError("fan-in pattern needs to and items")
		}
		for _, from := range args.Items {
			edges = append(edges, depPayload{From: from, To: args.To, Type: edgeType})
		}
	}
	return edges, false, nil
}

func (s *Services) applyDependencyOp(ctx context.Context, operation string, payload *depPayload) (any, error) {
	depType, err := models.ParseDependencyType(payload.Type)
	if err != nil {
		return nil, models.NewValidationError("%v", err)
	}

	if operation == "delete" {
		err := s.Store.Update(ctx, func(tx *badgerdb.Txn) error {
			return s.Store.Dependencies().TxDelete(tx, payload.From, payload.To, depType)
		})
		if err != nil {
			return nil, err
		}
		return map[string]string{"from": payload.From, "to": payload.To, "type": string(depType)}, nil
	}

	dep := &models.Dependency{
		ID:        common.NewDependencyID(),
		FromID:    payload.From,
		ToID:      payload.To,
		Type:      depType,
		CreatedAt: time.Now().UTC(),
	}
	if err := dep.Validate(); err != nil {
		return nil, models.NewValidationError("%v", err)
	}

	err = s.Store.Update(ctx, func(tx *badgerdb.Txn) error {
		if _, err := s.Store.Items().TxGet(tx, dep.FromID); err != nil {
			return err
		}
		if _, err := s.Store.Items().TxGet(tx, dep.ToID); err != nil {
			return err
		}
		// Cycle detection shares the write transaction so no edge can
		// commit between the check and the insert.
		cycle, err := s.Graph.TxWouldIntroduceDependencyCycle(tx, dep.FromID, dep.ToID, dep.Type, nil)
		if err != nil {
			return err
		}
		if cycle != nil {
			return models.NewConflictError("dependency would introduce a cycle", map[string]any{"cycle": cycle})
		}
		return s.Store.Dependencies().TxInsert(tx, dep)
	})
	if err != nil {
		return nil, err
	}
	return dep, nil
}

// QueryDependencies implements the query_dependencies tool: direct edges
// by default, or the full BFS chain when neighborsOnly=false.
func QueryDependencies(s *Services) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var args queryDependenciesArgs
		if err := bindArguments(request, &args); err != nil {
			return failureResult(err), nil
		}

		seeds := args.ItemIDs
		if args.ItemID != "" {
			seeds = append([]string{args.ItemID}, seeds...)
		}
		if len(seeds) == 0 {
			return failureResult(models.NewValidationError("itemId or itemIds is required")), nil
		}
		direction := args.Direction
		if direction == "" {
			direction = graph.DirectionOutgoing
		}

		data := &dependenciesData{Edges: []*models.Dependency{}}
		seen := make(map[string]bool)
		for _, id := range seeds {
			if _, err := s.Store.Items().Get(ctx, id); err != nil {
				return failureResult(err), nil
			}
			edges, err := s.Store.Dependencies().GetTouching(ctx, id)
			if err != nil {
				return failureResult(err), nil
			}
			for _, edge := range edges {
				if seen[edge.ID] {
					continue
				}
				seen[edge.ID] = true
				data.Edges = append(data.Edges, edge)
			}
		}

		neighborsOnly := args.NeighborsOnly == nil || *args.NeighborsOnly
		if !neighborsOnly {
			nodes, err := s.Graph.DependencyChain(ctx, seeds, direction, args.MaxDepth)
			if err != nil {
				return failureResult(err), nil
			}
			for _, node := range nodes {
				data.Chain = append(data.Chain, chainEntry{
					Item:     node.Item.Ref(),
					Status:   node.Item.Status,
					Distance: node.Distance,
				})
			}
		}
		return successResult(data, ""), nil
	}
}
