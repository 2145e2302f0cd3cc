// -----------------------------------------------------------------------
// Work Item - the universal unit of work, forms the hierarchy
// -----------------------------------------------------------------------

package models

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Priority levels for work items.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// ParsePriority parses a priority string, defaulting to medium when empty.
func ParsePriority(s string) (Priority, error) {
	switch Priority(strings.ToLower(strings.TrimSpace(s))) {
	case "":
		return PriorityMedium, nil
	case PriorityLow:
		return PriorityLow, nil
	case PriorityMedium:
		return PriorityMedium, nil
	case PriorityHigh:
		return PriorityHigh, nil
	default:
		return "", fmt.Errorf("invalid priority %q (expected low, medium or high)", s)
	}
}

// Rank returns a sortable weight (higher is more urgent).
func (p Priority) Rank() int {
	switch p {
	case PriorityHigh:
		return 3
	case PriorityMedium:
		return 2
	case PriorityLow:
		return 1
	default:
		return 0
	}
}

// Role is one of the five semantic lifecycle phases. Statuses are
// configuration-defined strings; every status maps to exactly one role.
type Role string

const (
	RoleQueue    Role = "queue"
	RoleWork     Role = "work"
	RoleReview   Role = "review"
	RoleBlocked  Role = "blocked"
	RoleTerminal Role = "terminal"
)

// ParseRole validates a role string.
func ParseRole(s string) (Role, error) {
	switch Role(strings.ToLower(strings.TrimSpace(s))) {
	case RoleQueue:
		return RoleQueue, nil
	case RoleWork:
		return RoleWork, nil
	case RoleReview:
		return RoleReview, nil
	case RoleBlocked:
		return RoleBlocked, nil
	case RoleTerminal:
		return RoleTerminal, nil
	default:
		return "", fmt.Errorf("invalid role %q", s)
	}
}

// IsValid reports whether the role is one of the five semantic phases.
func (r Role) IsValid() bool {
	switch r {
	case RoleQueue, RoleWork, RoleReview, RoleBlocked, RoleTerminal:
		return true
	}
	return false
}

// MaxItemDepth is the maximum hierarchy depth (root = 0).
const MaxItemDepth = 3

// WorkItem is a node in the work hierarchy. ParentID is empty for roots;
// Depth is derived from the parent chain and enforced on create/update.
type WorkItem struct {
	ID            string    `json:"id"`
	ParentID      string    `json:"parent_id,omitempty" badgerhold:"index"`
	Depth         int       `json:"depth"`
	Title         string    `json:"title"`
	Description   string    `json:"description,omitempty"`
	Tags          string    `json:"tags,omitempty"`
	Priority      Priority  `json:"priority"`
	Status        string    `json:"status" badgerhold:"index"`
	Role          Role      `json:"role" badgerhold:"index"`
	PreviousRole  Role      `json:"previous_role,omitempty"`
	RoleChangedAt time.Time `json:"role_changed_at"`
	CreatedAt     time.Time `json:"created_at"`
	ModifiedAt    time.Time `json:"modified_at"`
}

// IsRoot returns true if the item has no parent.
func (i *WorkItem) IsRoot() bool {
	return i.ParentID == ""
}

// TagSet returns the item's tags as a sorted, de-duplicated slice.
// Tags are stored as a comma-separated string; order is insignificant.
func (i *WorkItem) TagSet() []string {
	if i.Tags == "" {
		return nil
	}
	seen := make(map[string]bool)
	var tags []string
	for _, t := range strings.Split(i.Tags, ",") {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		tags = append(tags, t)
	}
	sort.Strings(tags)
	return tags
}

// HasTag reports whether the item carries the given tag.
func (i *WorkItem) HasTag(tag string) bool {
	tag = strings.ToLower(strings.TrimSpace(tag))
	for _, t := range i.TagSet() {
		if t == tag {
			return true
		}
	}
	return false
}

// NormalizeTags rewrites a raw tag string into canonical comma-separated form.
func NormalizeTags(raw string) string {
	item := WorkItem{Tags: raw}
	return strings.Join(item.TagSet(), ",")
}

// Validate checks the invariants that do not require store access.
func (i *WorkItem) Validate() error {
	if i.ID == "" {
		return fmt.Errorf("item ID is required")
	}
	if strings.TrimSpace(i.Title) == "" {
		return fmt.Errorf("item title is required")
	}
	if i.Depth < 0 || i.Depth > MaxItemDepth {
		return fmt.Errorf("item depth %d out of range 0..%d", i.Depth, MaxItemDepth)
	}
	if i.ParentID == "" && i.Depth != 0 {
		return fmt.Errorf("root item must have depth 0, got %d", i.Depth)
	}
	if i.ParentID != "" && i.Depth == 0 {
		return fmt.Errorf("child item must have depth > 0")
	}
	if i.Priority.Rank() == 0 {
		return fmt.Errorf("invalid priority %q", i.Priority)
	}
	if !i.Role.IsValid() {
		return fmt.Errorf("status %q does not map to a known role", i.Status)
	}
	return nil
}

// ItemRef is a compact reference to a work item used in enriched responses
// (ancestor chains, children lists, unblocked-item notifications).
type ItemRef struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Role  Role   `json:"role,omitempty"`
	Depth int    `json:"depth"`
}

// Ref returns a compact reference for the item.
func (i *WorkItem) Ref() ItemRef {
	return ItemRef{ID: i.ID, Title: i.Title, Role: i.Role, Depth: i.Depth}
}
