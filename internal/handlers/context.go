package handlers

import (
	"context"
	"sort"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/ternarybob/trellis/internal/common"
	"github.com/ternarybob/trellis/internal/models"
)

type getContextArgs struct {
	Mode             string `json:"mode" validate:"required,oneof=item session health"`
	ItemID           string `json:"itemId,omitempty"`
	Since            string `json:"since,omitempty"`
	IncludeAncestors bool   `json:"includeAncestors,omitempty"`
}

type itemContextData struct {
	Item           *models.WorkItem                 `json:"item"`
	Recommendation *models.NextStatusRecommendation `json:"recommendation"`
	ExpectedNotes  []models.ExpectedNote            `json:"expected_notes"`
	Notes          []*models.Note                   `json:"notes"`
	Ancestors      *[]models.ItemRef                `json:"ancestors,omitempty"`
	Blockers       []models.ItemRef                 `json:"blockers,omitempty"`
}

type sessionItem struct {
	Item      *models.WorkItem  `json:"item"`
	Ancestors *[]models.ItemRef `json:"ancestors,omitempty"`
}

type sessionContextData struct {
	Since       time.Time                `json:"since"`
	Active      []sessionItem            `json:"active"`
	Transitions []*models.RoleTransition `json:"transitions"`
}

type healthContextData struct {
	TotalItems int                 `json:"total_items"`
	ByRole     map[models.Role]int `json:"by_role"`
	Active     int                 `json:"active"`
	Blocked    int                 `json:"blocked"`
	Stalled    []models.ItemRef    `json:"stalled"`
	StaleAfter string              `json:"stale_after"`
	Flows      []string            `json:"flows"`
	Schemas    int                 `json:"schemas"`
	Version    string              `json:"version"`
}

// GetContext implements the get_context tool. Item mode returns the full
// gate picture for one item; session mode returns the working set since a
// timestamp; health mode returns counts for dashboards.
func GetContext(s *Services) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var args getContextArgs
		if err := bindArguments(request, &args); err != nil {
			return failureResult(err), nil
		}

		var data any
		var err error
		switch args.Mode {
		case "item":
			data, err = s.itemContext(ctx, &args)
		case "session":
			data, err = s.sessionContext(ctx, &args)
		default:
			data, err = s.healthContext(ctx)
		}
		if err != nil {
			return failureResult(err), nil
		}
		return successResult(data, ""), nil
	}
}

func (s *Services) itemContext(ctx context.Context, args *getContextArgs) (*itemContextData, error) {
	if args.ItemID == "" {
		return nil, models.NewValidationError("itemId is required for item mode")
	}
	item, err := s.Store.Items().Get(ctx, args.ItemID)
	if err != nil {
		return nil, err
	}
	rec, err := s.Engine.NextStatus(ctx, item.ID)
	if err != nil {
		return nil, err
	}
	expected, err := s.Schemas.ExpectedNotes(ctx, item)
	if err != nil {
		return nil, err
	}
	notes, err := s.Store.Notes().GetByItem(ctx, item.ID)
	if err != nil {
		return nil, err
	}
	if notes == nil {
		notes = []*models.Note{}
	}
	if expected == nil {
		expected = []models.ExpectedNote{}
	}

	data := &itemContextData{
		Item:           item,
		Recommendation: rec,
		ExpectedNotes:  expected,
		Notes:          notes,
	}
	if args.IncludeAncestors {
		refs, err := s.ancestorRefs(ctx, item.ID)
		if err != nil {
			return nil, err
		}
		data.Ancestors = &refs
	}
	blockers, err := s.Graph.UnresolvedBlockers(ctx, item.ID)
	if err != nil {
		return nil, err
	}
	data.Blockers = itemRefs(blockers)
	return data, nil
}

func (s *Services) sessionContext(ctx context.Context, args *getContextArgs) (*sessionContextData, error) {
	since := time.Now().UTC().Add(-24 * time.Hour)
	if args.Since != "" {
		parsed, err := time.Parse(time.RFC3339, args.Since)
		if err != nil {
			return nil, models.NewValidationError("since must be RFC3339, got %q", args.Since)
		}
		since = parsed.UTC()
	}

	data := &sessionContextData{Since: since, Transitions: []*models.RoleTransition{}}
	for _, role := range []models.Role{models.RoleWork, models.RoleReview} {
		items, err := s.Store.Items().GetByRole(ctx, role)
		if err != nil {
			return nil, err
		}
		for _, item := range items {
			entry := sessionItem{Item: item}
			if args.IncludeAncestors {
				refs, err := s.ancestorRefs(ctx, item.ID)
				if err != nil {
					return nil, err
				}
				entry.Ancestors = &refs
			}
			data.Active = append(data.Active, entry)
		}
	}
	sort.Slice(data.Active, func(i, j int) bool {
		return data.Active[i].Item.RoleChangedAt.After(data.Active[j].Item.RoleChangedAt)
	})

	transitions, err := s.Store.Transitions().GetSince(ctx, since)
	if err != nil {
		return nil, err
	}
	data.Transitions = transitions
	return data, nil
}

func (s *Services) healthContext(ctx context.Context) (*healthContextData, error) {
	total, err := s.Store.Items().Count(ctx)
	if err != nil {
		return nil, err
	}
	byRole, err := s.Store.Items().CountByRole(ctx)
	if err != nil {
		return nil, err
	}

	staleAfter := s.Config.Workflow.StaleAfter
	cutoff := time.Now().UTC().Add(-staleAfter)
	stalled := []models.ItemRef{}
	for _, role := range []models.Role{models.RoleWork, models.RoleReview} {
		items, err := s.Store.Items().GetByRole(ctx, role)
		if err != nil {
			return nil, err
		}
		for _, item := range items {
			if item.RoleChangedAt.Before(cutoff) {
				stalled = append(stalled, item.Ref())
			}
		}
	}

	return &healthContextData{
		TotalItems: total,
		ByRole:     byRole,
		Active:     byRole[models.RoleWork] + byRole[models.RoleReview],
		Blocked:    byRole[models.RoleBlocked],
		Stalled:    stalled,
		StaleAfter: staleAfter.String(),
		Flows:      s.Engine.Loader().FlowNames(),
		Schemas:    s.Schemas.SchemaCount(),
		Version:    common.GetVersion(),
	}, nil
}
