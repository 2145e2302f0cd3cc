package handlers

import (
	"context"
	"time"

	badgerdb "github.com/dgraph-io/badger/v4"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/ternarybob/trellis/internal/common"
	"github.com/ternarybob/trellis/internal/models"
	"github.com/ternarybob/trellis/internal/services/workflow"
)

// itemPayload is one element of a manage_items call. Pointer fields
// distinguish "absent" from "set to empty" on update.
type itemPayload struct {
	ID          string  `json:"id,omitempty"`
	ParentID    *string `json:"parentId,omitempty"`
	Title       string  `json:"title,omitempty"`
	Description *string `json:"description,omitempty"`
	Tags        *string `json:"tags,omitempty"`
	Priority    string  `json:"priority,omitempty"`
	Recursive   bool    `json:"recursive,omitempty"`
}

type manageItemsArgs struct {
	Operation string        `json:"operation" validate:"required,oneof=create update delete"`
	Item      *itemPayload  `json:"item,omitempty"`
	Items     []itemPayload `json:"items,omitempty"`
}

// itemDetail is the enriched item shape shared by manage_items and
// query_items responses.
type itemDetail struct {
	Item          *models.WorkItem      `json:"item"`
	ExpectedNotes []models.ExpectedNote `json:"expected_notes,omitempty"`
	// Pointer so enriched responses serialize an explicit [] for roots
	// while unenriched responses omit the field entirely.
	Ancestors *[]models.ItemRef `json:"ancestors,omitempty"`
	Children  []models.ItemRef  `json:"children,omitempty"`
}

type deletedItems struct {
	DeletedIDs []string `json:"deleted_ids"`
}

// ManageItems implements the manage_items tool: create, update and delete,
// each accepting a single object or an array for batch. Batch elements are
// independent transactions; partial failures are reported per element.
func ManageItems(s *Services) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var args manageItemsArgs
		if err := bindArguments(request, &args); err != nil {
			return failureResult(err), nil
		}
		payloads, single, err := itemTargets(&args)
		if err != nil {
			return failureResult(err), nil
		}

		results := make([]batchItemResult, 0, len(payloads))
		for i := range payloads {
			data, err := s.applyItemOp(ctx, args.Operation, &payloads[i])
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
			return successResult(results[0].Data, "item "+args.Operation+"d"), nil
		}
		return batchResult(results), nil
	}
}

func itemTargets(args *manageItemsArgs) ([]itemPayload, bool, error) {
	switch {
	case args.Item != nil && len(args.Items) > 0:
		return nil, false, models.NewValidationError("provide either item or items, not both")
	case args.Item != nil:
		return []itemPayload{*args.Item}, true, nil
	case len(args.Items) > 0:
		return args.Items, false, nil
	default:
		return nil, false, models.NewValidationError("item or items is required")
	}
}

func (s *Services) applyItemOp(ctx context.Context, operation string, payload *itemPayload) (any, error) {
	switch operation {
	case "create":
		return s.createItem(ctx, payload)
	case "update":
		return s.updateItem(ctx, payload)
	case "delete":
		return s.deleteItem(ctx, payload)
	default:
		return nil, models.NewValidationError("unknown operation %q", operation)
	}
}

func (s *Services) createItem(ctx context.Context, payload *itemPayload) (*itemDetail, error) {
	if payload.Title == "" {
		return nil, models.NewValidationError("title is required for create")
	}
	priority, err := models.ParsePriority(payload.Priority)
	if err != nil {
		return nil, models.NewValidationError("%v", err)
	}
	var tags string
	if payload.Tags != nil {
		tags = models.NormalizeTags(*payload.Tags)
	}

	cfg := s.Engine.Loader().Config()
	status, role, err := workflow.InitialStatus(cfg, (&models.WorkItem{Tags: tags}).TagSet())
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	item := &models.WorkItem{
		ID:            common.NewItemID(),
		Title:         payload.Title,
		Tags:          tags,
		Priority:      priority,
		Status:        status,
		Role:          role,
		RoleChangedAt: now,
		CreatedAt:     now,
		ModifiedAt:    now,
	}
	if payload.Description != nil {
		item.Description = *payload.Description
	}

	err = s.Store.Update(ctx, func(tx *badgerdb.Txn) error {
		if payload.ParentID != nil && *payload.ParentID != "" {
			parent, err := s.Store.Items().TxGet(tx, *payload.ParentID)
			if err != nil {
				return err
			}
			if parent.Depth >= models.MaxItemDepth {
				return models.NewValidationError("parent %s is at maximum depth %d", parent.ID, models.MaxItemDepth)
			}
			item.ParentID = parent.ID
			item.Depth = parent.Depth + 1
		}
		if err := item.Validate(); err != nil {
			return models.NewValidationError("%v", err)
		}
		return s.Store.Items().TxInsert(tx, item)
	})
	if err != nil {
		return nil, err
	}

	expected, err := s.Schemas.ExpectedNotes(ctx, item)
	if err != nil {
		return nil, err
	}
	return &itemDetail{Item: item, ExpectedNotes: expected}, nil
}

func (s *Services) updateItem(ctx context.Context, payload *itemPayload) (*itemDetail, error) {
	if payload.ID == "" {
		return nil, models.NewValidationError("id is required for update")
	}

	var item *models.WorkItem
	err := s.Store.Update(ctx, func(tx *badgerdb.Txn) error {
		var err error
		item, err = s.Store.Items().TxGet(tx, payload.ID)
		if err != nil {
			return err
		}

		if payload.Title != "" {
			item.Title = payload.Title
		}
		if payload.Description != nil {
			item.Description = *payload.Description
		}
		if payload.Tags != nil {
			item.Tags = models.NormalizeTags(*payload.Tags)
		}
		if payload.Priority != "" {
			priority, err := models.ParsePriority(payload.Priority)
			if err != nil {
				return models.NewValidationError("%v", err)
			}
			item.Priority = priority
		}
		if payload.ParentID != nil && *payload.ParentID != item.ParentID {
			// Reparenting is planned within the write transaction so the
			// parent chain cannot change between the cycle check and the
			// depth rewrite.
			newParentID := *payload.ParentID
			newDepth := 0
			if newParentID != "" {
				cyclic, err := s.Graph.TxWouldIntroduceParentCycle(tx, payload.ID, newParentID)
				if err != nil {
					return err
				}
				if cyclic {
					return models.NewConflictError("reparenting would create a cycle", map[string]any{
						"item_id": payload.ID, "parent_id": newParentID,
					})
				}
				parent, err := s.Store.Items().TxGet(tx, newParentID)
				if err != nil {
					return err
				}
				newDepth = parent.Depth + 1
			}
			depthShift := newDepth - item.Depth

			subtree, err := s.txSubtree(tx, payload.ID)
			if err != nil {
				return err
			}
			deepest := item.Depth
			for _, d := range subtree {
				if d.Depth > deepest {
					deepest = d.Depth
				}
			}
			if deepest+depthShift > models.MaxItemDepth {
				return models.NewValidationError("reparenting would push the subtree past depth %d", models.MaxItemDepth)
			}

			item.ParentID = newParentID
			item.Depth += depthShift
			for _, descendant := range subtree {
				descendant.Depth += depthShift
				descendant.ModifiedAt = time.Now().UTC()
				if err := s.Store.Items().TxUpsert(tx, descendant); err != nil {
					return err
				}
			}
		}
		item.ModifiedAt = time.Now().UTC()
		if err := item.Validate(); err != nil {
			return models.NewValidationError("%v", err)
		}
		return s.Store.Items().TxUpsert(tx, item)
	})
	if err != nil {
		return nil, err
	}

	expected, err := s.Schemas.ExpectedNotes(ctx, item)
	if err != nil {
		return nil, err
	}
	return &itemDetail{Item: item, ExpectedNotes: expected}, nil
}

func (s *Services) deleteItem(ctx context.Context, payload *itemPayload) (*deletedItems, error) {
	if payload.ID == "" {
		return nil, models.NewValidationError("id is required for delete")
	}

	var deleted []string
	err := s.Store.Update(ctx, func(tx *badgerdb.Txn) error {
		deleted = nil
		item, err := s.Store.Items().TxGet(tx, payload.ID)
		if err != nil {
			return err
		}
		children, err := s.Store.Items().TxGetByParent(tx, item.ID)
		if err != nil {
			return err
		}
		if len(children) > 0 && !payload.Recursive {
			return models.NewConflictError("item has children; pass recursive=true to delete the subtree", map[string]any{
				"id": item.ID, "children": len(children),
			})
		}
		return s.deleteSubtree(tx, item.ID, &deleted)
	})
	if err != nil {
		return nil, err
	}
	return &deletedItems{DeletedIDs: deleted}, nil
}

// txSubtree collects the descendants of id in BFS order within the
// transaction, excluding id itself.
func (s *Services) txSubtree(tx *badgerdb.Txn, id string) ([]*models.WorkItem, error) {
	var result []*models.WorkItem
	frontier := []string{id}
	for len(frontier) > 0 {
		var next []string
		for _, parentID := range frontier {
			children, err := s.Store.Items().TxGetByParent(tx, parentID)
			if err != nil {
				return nil, err
			}
			for _, child := range children {
				result = append(result, child)
				next = append(next, child.ID)
			}
		}
		frontier = next
	}
	return result, nil
}

// deleteSubtree removes the item and its descendants post-order, together
// with every note, dependency edge and transition row referencing them.
func (s *Services) deleteSubtree(tx *badgerdb.Txn, id string, deleted *[]string) error {
	children, err := s.Store.Items().TxGetByParent(tx, id)
	if err != nil {
		return err
	}
	for _, child := range children {
		if err := s.deleteSubtree(tx, child.ID, deleted); err != nil {
			return err
		}
	}
	if err := s.Store.Notes().TxDeleteByItem(tx, id); err != nil {
		return err
	}
	if err := s.Store.Dependencies().TxDeleteTouching(tx, id); err != nil {
		return err
	}
	if err := s.Store.Transitions().TxDeleteByItem(tx, id); err != nil {
		return err
	}
	if err := s.Store.Items().TxDelete(tx, id); err != nil {
		return err
	}
	*deleted = append(*deleted, id)
	return nil
}
