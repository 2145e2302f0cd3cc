package handlers

import (
	"context"
	"sort"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/ternarybob/trellis/internal/models"
)

type queryItemsArgs struct {
	Operation        string   `json:"operation" validate:"required,oneof=get search overview"`
	ID               string   `json:"id,omitempty"`
	Text             string   `json:"text,omitempty"`
	Tags             []string `json:"tags,omitempty"`
	Role             string   `json:"role,omitempty"`
	Status           string   `json:"status,omitempty"`
	ParentID         string   `json:"parentId,omitempty"`
	IncludeAncestors bool     `json:"includeAncestors,omitempty"`
	IncludeChildren  bool     `json:"includeChildren,omitempty"`
}

type overviewRoot struct {
	Item     *models.WorkItem `json:"item"`
	Children []models.ItemRef `json:"children,omitempty"`
}

type overviewData struct {
	TotalItems int                 `json:"total_items"`
	ByRole     map[models.Role]int `json:"by_role"`
	Roots      []overviewRoot      `json:"roots"`
}

type searchData struct {
	Items []itemDetail `json:"items"`
	Count int          `json:"count"`
}

// QueryItems implements the query_items tool: get, search and overview,
// with opt-in ancestor and children enrichment.
func QueryItems(s *Services) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var args queryItemsArgs
		if err := bindArguments(request, &args); err != nil {
			return failureResult(err), nil
		}

		switch args.Operation {
		case "get":
			detail, err := s.getItem(ctx, &args)
			if err != nil {
				return failureResult(err), nil
			}
			return successResult(detail, ""), nil

		case "search":
			data, err := s.searchItems(ctx, &args)
			if err != nil {
				return failureResult(err), nil
			}
			return successResult(data, ""), nil

		default:
			data, err := s.overview(ctx, args.IncludeChildren)
			if err != nil {
				return failureResult(err), nil
			}
			return successResult(data, ""), nil
		}
	}
}

func (s *Services) getItem(ctx context.Context, args *queryItemsArgs) (*itemDetail, error) {
	if args.ID == "" {
		return nil, models.NewValidationError("id is required for get")
	}
	item, err := s.Store.Items().Get(ctx, args.ID)
	if err != nil {
		return nil, err
	}
	detail := &itemDetail{Item: item}

	expected, err := s.Schemas.ExpectedNotes(ctx, item)
	if err != nil {
		return nil, err
	}
	detail.ExpectedNotes = expected

	if args.IncludeAncestors {
		refs, err := s.ancestorRefs(ctx, item.ID)
		if err != nil {
			return nil, err
		}
		detail.Ancestors = &refs
	}
	if args.IncludeChildren {
		children, err := s.Store.Items().GetByParent(ctx, item.ID)
		if err != nil {
			return nil, err
		}
		detail.Children = itemRefs(children)
	}
	return detail, nil
}

func (s *Services) searchItems(ctx context.Context, args *queryItemsArgs) (*searchData, error) {
	var role models.Role
	if args.Role != "" {
		parsed, err := models.ParseRole(args.Role)
		if err != nil {
			return nil, models.NewValidationError("%v", err)
		}
		role = parsed
	}

	items, err := s.Store.Items().Search(ctx, args.Text, args.Tags, role, args.Status, args.ParentID)
	if err != nil {
		return nil, err
	}

	data := &searchData{Items: make([]itemDetail, 0, len(items)), Count: len(items)}
	for _, item := range items {
		detail := itemDetail{Item: item}
		if args.IncludeAncestors {
			refs, err := s.ancestorRefs(ctx, item.ID)
			if err != nil {
				return nil, err
			}
			detail.Ancestors = &refs
		}
		data.Items = append(data.Items, detail)
	}
	return data, nil
}

func (s *Services) overview(ctx context.Context, includeChildren bool) (*overviewData, error) {
	total, err := s.Store.Items().Count(ctx)
	if err != nil {
		return nil, err
	}
	byRole, err := s.Store.Items().CountByRole(ctx)
	if err != nil {
		return nil, err
	}
	roots, err := s.Store.Items().GetRoots(ctx)
	if err != nil {
		return nil, err
	}
	sort.Slice(roots, func(i, j int) bool {
		return roots[i].CreatedAt.Before(roots[j].CreatedAt)
	})

	data := &overviewData{TotalItems: total, ByRole: byRole}
	for _, root := range roots {
		entry := overviewRoot{Item: root}
		if includeChildren {
			children, err := s.Store.Items().GetByParent(ctx, root.ID)
			if err != nil {
				return nil, err
			}
			entry.Children = itemRefs(children)
		}
		data.Roots = append(data.Roots, entry)
	}
	return data, nil
}

// ancestorRefs returns the root-first ancestor chain as compact refs.
// Roots return an empty, non-nil slice so enriched responses always carry
// the field.
func (s *Services) ancestorRefs(ctx context.Context, id string) ([]models.ItemRef, error) {
	ancestors, err := s.Graph.Ancestors(ctx, id)
	if err != nil {
		return nil, err
	}
	refs := make([]models.ItemRef, 0, len(ancestors))
	for _, a := range ancestors {
		refs = append(refs, a.Ref())
	}
	return refs, nil
}

func itemRefs(items []*models.WorkItem) []models.ItemRef {
	refs := make([]models.ItemRef, 0, len(items))
	for _, item := range items {
		refs = append(refs, item.Ref())
	}
	return refs
}
