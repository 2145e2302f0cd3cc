package models

import (
	"fmt"
	"strings"
	"time"
)

// Note is a structured artifact attached to a work item. Notes are the
// atomic unit of "required artifact" referenced by note schemas; the
// (ItemID, Key) pair is unique per item.
type Note struct {
	ID         string    `json:"id"`
	ItemID     string    `json:"item_id" badgerhold:"index"`
	Key        string    `json:"key"`
	Phase      Role      `json:"phase"`
	Body       string    `json:"body"`
	CreatedAt  time.Time `json:"created_at"`
	ModifiedAt time.Time `json:"modified_at"`
}

// NoteKey builds the composite store key enforcing (item_id, key) uniqueness.
func NoteKey(itemID, key string) string {
	return itemID + "|" + key
}

// Validate checks note invariants.
func (n *Note) Validate() error {
	if n.ItemID == "" {
		return fmt.Errorf("note item ID is required")
	}
	if strings.TrimSpace(n.Key) == "" {
		return fmt.Errorf("note key is required")
	}
	if !n.Phase.IsValid() {
		return fmt.Errorf("note phase %q is not a valid role", n.Phase)
	}
	return nil
}
