package common

import (
	"github.com/google/uuid"
)

// NewItemID generates a unique work item ID with the "item_" prefix.
func NewItemID() string {
	return "item_" + uuid.New().String()
}

// NewNoteID generates a unique note ID with the "note_" prefix.
func NewNoteID() string {
	return "note_" + uuid.New().String()
}

// NewDependencyID generates a unique dependency ID with the "dep_" prefix.
func NewDependencyID() string {
	return "dep_" + uuid.New().String()
}

// NewTransitionID generates a unique role-transition ID with the "rt_" prefix.
func NewTransitionID() string {
	return "rt_" + uuid.New().String()
}
