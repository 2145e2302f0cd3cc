package handlers

import (
	"context"
	"sort"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/ternarybob/trellis/internal/models"
)

type getNextItemArgs struct {
	Tags     []string `json:"tags,omitempty"`
	ParentID string   `json:"parentId,omitempty"`
	Limit    int      `json:"limit,omitempty"`
}

type nextItemCandidate struct {
	Item           *models.WorkItem                 `json:"item"`
	Recommendation *models.NextStatusRecommendation `json:"recommendation"`
}

type nextItemData struct {
	Next         *nextItemCandidate  `json:"next"`
	Alternatives []nextItemCandidate `json:"alternatives,omitempty"`
}

type getBlockedItemsArgs struct {
	IncludeAncestors bool `json:"includeAncestors,omitempty"`
}

type blockedItem struct {
	Item      *models.WorkItem  `json:"item"`
	BlockType string            `json:"block_type"`
	Blockers  []models.ItemRef  `json:"blockers,omitempty"`
	Ancestors *[]models.ItemRef `json:"ancestors,omitempty"`
}

type blockedItemsData struct {
	Items []blockedItem `json:"items"`
	Count int           `json:"count"`
}

// GetNextItem implements the get_next_item tool: the highest-priority
// actionable item. Actionable means role queue or work, a Ready
// recommendation, and no unresolved blockers.
func GetNextItem(s *Services) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var args getNextItemArgs
		if err := bindArguments(request, &args); err != nil {
			return failureResult(err), nil
		}
		limit := args.Limit
		if limit <= 0 || limit > 10 {
			limit = 5
		}

		var pool []*models.WorkItem
		for _, role := range []models.Role{models.RoleQueue, models.RoleWork} {
			items, err := s.Store.Items().GetByRole(ctx, role)
			if err != nil {
				return failureResult(err), nil
			}
			pool = append(pool, items...)
		}

		var candidates []nextItemCandidate
		for _, item := range pool {
			if args.ParentID != "" && item.ParentID != args.ParentID {
				continue
			}
			if len(args.Tags) > 0 && !hasAllTags(item, args.Tags) {
				continue
			}
			rec, err := s.Engine.NextStatus(ctx, item.ID)
			if err != nil {
				return failureResult(err), nil
			}
			if rec.Kind != models.RecommendationReady {
				continue
			}
			candidates = append(candidates, nextItemCandidate{Item: item, Recommendation: rec})
		}

		// Highest priority first, oldest first within a priority, work
		// before queue so in-flight items finish before new ones start.
		sort.SliceStable(candidates, func(i, j int) bool {
			a, b := candidates[i].Item, candidates[j].Item
			if a.Priority.Rank() != b.Priority.Rank() {
				return a.Priority.Rank() > b.Priority.Rank()
			}
			if (a.Role == models.RoleWork) != (b.Role == models.RoleWork) {
				return a.Role == models.RoleWork
			}
			return a.CreatedAt.Before(b.CreatedAt)
		})

		data := &nextItemData{}
		if len(candidates) > 0 {
			data.Next = &candidates[0]
			rest := candidates[1:]
			if len(rest) > limit {
				rest = rest[:limit]
			}
			data.Alternatives = rest
		}
		if data.Next == nil {
			return successResult(data, "no actionable items"), nil
		}
		return successResult(data, ""), nil
	}
}

func hasAllTags(item *models.WorkItem, tags []string) bool {
	for _, t := range tags {
		if !item.HasTag(t) {
			return false
		}
	}
	return true
}

// GetBlockedItems implements the get_blocked_items tool: items in role
// blocked (explicit) plus queue/work items with unresolved blockers
// (dependency), each annotated with its block type.
func GetBlockedItems(s *Services) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var args getBlockedItemsArgs
		if err := bindArguments(request, &args); err != nil {
			return failureResult(err), nil
		}

		data := &blockedItemsData{Items: []blockedItem{}}

		explicit, err := s.Store.Items().GetByRole(ctx, models.RoleBlocked)
		if err != nil {
			return failureResult(err), nil
		}
		for _, item := range explicit {
			entry := blockedItem{Item: item, BlockType: "explicit"}
			if err := s.annotateBlocked(ctx, &entry, args.IncludeAncestors); err != nil {
				return failureResult(err), nil
			}
			data.Items = append(data.Items, entry)
		}

		for _, role := range []models.Role{models.RoleQueue, models.RoleWork} {
			items, err := s.Store.Items().GetByRole(ctx, role)
			if err != nil {
				return failureResult(err), nil
			}
			for _, item := range items {
				blockers, err := s.Graph.UnresolvedBlockers(ctx, item.ID)
				if err != nil {
					return failureResult(err), nil
				}
				if len(blockers) == 0 {
					continue
				}
				entry := blockedItem{Item: item, BlockType: "dependency", Blockers: itemRefs(blockers)}
				if args.IncludeAncestors {
					refs, err := s.ancestorRefs(ctx, item.ID)
					if err != nil {
						return failureResult(err), nil
					}
					entry.Ancestors = &refs
				}
				data.Items = append(data.Items, entry)
			}
		}

		data.Count = len(data.Items)
		return successResult(data, ""), nil
	}
}

func (s *Services) annotateBlocked(ctx context.Context, entry *blockedItem, includeAncestors bool) error {
	blockers, err := s.Graph.UnresolvedBlockers(ctx, entry.Item.ID)
	if err != nil {
		return err
	}
	entry.Blockers = itemRefs(blockers)
	if includeAncestors {
		refs, err := s.ancestorRefs(ctx, entry.Item.ID)
		if err != nil {
			return err
		}
		entry.Ancestors = &refs
	}
	return nil
}
