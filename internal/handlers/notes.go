package handlers

import (
	"context"
	"time"

	badgerdb "github.com/dgraph-io/badger/v4"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/ternarybob/trellis/internal/common"
	"github.com/ternarybob/trellis/internal/models"
)

type notePayload struct {
	ItemID string `json:"itemId,omitempty"`
	Key    string `json:"key,omitempty"`
	Phase  string `json:"phase,omitempty"`
	Body   string `json:"body,omitempty"`
}

type manageNotesArgs struct {
	Operation string        `json:"operation" validate:"required,oneof=upsert delete"`
	Note      *notePayload  `json:"note,omitempty"`
	Notes     []notePayload `json:"notes,omitempty"`
}

type queryNotesArgs struct {
	ItemID string `json:"itemId" validate:"required"`
	Phase  string `json:"phase,omitempty"`
}

type notesData struct {
	ItemID        string                `json:"item_id"`
	Notes         []*models.Note        `json:"notes"`
	ExpectedNotes []models.ExpectedNote `json:"expected_notes,omitempty"`
}

// ManageNotes implements the manage_notes tool: upsert and delete, single
// or batch.
func ManageNotes(s *Services) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var args manageNotesArgs
		if err := bindArguments(request, &args); err != nil {
			return failureResult(err), nil
		}
		payloads, single, err := noteTargets(&args)
		if err != nil {
			return failureResult(err), nil
		}

		results := make([]batchItemResult, 0, len(payloads))
		for i := range payloads {
			data, err := s.applyNoteOp(ctx, args.Operation, &payloads[i])
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
			return successResult(results[0].Data, "note "+args.Operation+"d"), nil
		}
		return batchResult(results), nil
	}
}

func noteTargets(args *manageNotesArgs) ([]notePayload, bool, error) {
	switch {
	case args.Note != nil && len(args.Notes) > 0:
		return nil, false, models.NewValidationError("provide either note or notes, not both")
	case args.Note != nil:
		return []notePayload{*args.Note}, true, nil
	case len(args.Notes) > 0:
		return args.Notes, false, nil
	default:
		return nil, false, models.NewValidationError("note or notes is required")
	}
}

func (s *Services) applyNoteOp(ctx context.Context, operation string, payload *notePayload) (any, error) {
	if payload.ItemID == "" || payload.Key == "" {
		return nil, models.NewValidationError("itemId and key are required")
	}

	if operation == "delete" {
		err := s.Store.Update(ctx, func(tx *badgerdb.Txn) error {
			if _, err := s.Store.Notes().TxGet(tx, payload.ItemID, payload.Key); err != nil {
				return err
			}
			return s.Store.Notes().TxDelete(tx, payload.ItemID, payload.Key)
		})
		if err != nil {
			return nil, err
		}
		return map[string]string{"item_id": payload.ItemID, "key": payload.Key}, nil
	}

	phase, err := models.ParseRole(payload.Phase)
	if err != nil {
		return nil, models.NewValidationError("%v", err)
	}

	var note *models.Note
	err = s.Store.Update(ctx, func(tx *badgerdb.Txn) error {
		if _, err := s.Store.Items().TxGet(tx, payload.ItemID); err != nil {
			return err
		}
		now := time.Now().UTC()
		existing, err := s.Store.Notes().TxGet(tx, payload.ItemID, payload.Key)
		if err == nil {
			existing.Phase = phase
			existing.Body = payload.Body
			existing.ModifiedAt = now
			note = existing
		} else if models.CodeOf(err) == models.CodeNotFound {
			note = &models.Note{
				ID:         common.NewNoteID(),
				ItemID:     payload.ItemID,
				Key:        payload.Key,
				Phase:      phase,
				Body:       payload.Body,
				CreatedAt:  now,
				ModifiedAt: now,
			}
		} else {
			return err
		}
		if err := note.Validate(); err != nil {
			return models.NewValidationError("%v", err)
		}
		return s.Store.Notes().TxUpsert(tx, note)
	})
	if err != nil {
		return nil, err
	}
	return note, nil
}

// QueryNotes implements the query_notes tool: the item's notes with the
// schema-expected set for gate visibility.
func QueryNotes(s *Services) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var args queryNotesArgs
		if err := bindArguments(request, &args); err != nil {
			return failureResult(err), nil
		}

		item, err := s.Store.Items().Get(ctx, args.ItemID)
		if err != nil {
			return failureResult(err), nil
		}
		notes, err := s.Store.Notes().GetByItem(ctx, args.ItemID)
		if err != nil {
			return failureResult(err), nil
		}
		if args.Phase != "" {
			phase, err := models.ParseRole(args.Phase)
			if err != nil {
				return failureResult(models.NewValidationError("%v", err)), nil
			}
			filtered := notes[:0]
			for _, n := range notes {
				if n.Phase == phase {
					filtered = append(filtered, n)
				}
			}
			notes = filtered
		}
		expected, err := s.Schemas.ExpectedNotes(ctx, item)
		if err != nil {
			return failureResult(err), nil
		}

		if notes == nil {
			notes = []*models.Note{}
		}
		return successResult(&notesData{ItemID: args.ItemID, Notes: notes, ExpectedNotes: expected}, ""), nil
	}
}
