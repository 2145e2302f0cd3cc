package models

import (
	"fmt"
	"strings"
	"time"
)

// DependencyType classifies an edge in the dependency graph.
type DependencyType string

const (
	DependencyBlocks      DependencyType = "BLOCKS"
	DependencyIsBlockedBy DependencyType = "IS_BLOCKED_BY"
	DependencyRelatesTo   DependencyType = "RELATES_TO"
)

// ParseDependencyType validates a dependency type string.
func ParseDependencyType(s string) (DependencyType, error) {
	switch DependencyType(strings.ToUpper(strings.TrimSpace(s))) {
	case DependencyBlocks:
		return DependencyBlocks, nil
	case DependencyIsBlockedBy:
		return DependencyIsBlockedBy, nil
	case DependencyRelatesTo:
		return DependencyRelatesTo, nil
	default:
		return "", fmt.Errorf("invalid dependency type %q (expected BLOCKS, IS_BLOCKED_BY or RELATES_TO)", s)
	}
}

// Dependency is a typed edge between two work items. RELATES_TO is
// undirected in semantics but stored as a single directed record.
// Deletion of either endpoint removes the edge.
type Dependency struct {
	ID        string         `json:"id"`
	FromID    string         `json:"from_id" badgerhold:"index"`
	ToID      string         `json:"to_id" badgerhold:"index"`
	Type      DependencyType `json:"type"`
	CreatedAt time.Time      `json:"created_at"`
}

// DependencyKey builds the composite store key enforcing
// (from_id, to_id, type) uniqueness.
func DependencyKey(fromID, toID string, depType DependencyType) string {
	return fromID + "|" + toID + "|" + string(depType)
}

// BlockerEdge normalizes the edge into (blocker, blocked) direction.
// IS_BLOCKED_BY is the reverse of BLOCKS; RELATES_TO never blocks.
func (d *Dependency) BlockerEdge() (blocker, blocked string, ok bool) {
	switch d.Type {
	case DependencyBlocks:
		return d.FromID, d.ToID, true
	case DependencyIsBlockedBy:
		return d.ToID, d.FromID, true
	default:
		return "", "", false
	}
}

// Validate checks dependency invariants that do not require store access.
func (d *Dependency) Validate() error {
	if d.FromID == "" || d.ToID == "" {
		return fmt.Errorf("dependency requires both from and to item IDs")
	}
	if d.FromID == d.ToID {
		return fmt.Errorf("dependency cannot reference the same item on both ends")
	}
	if _, err := ParseDependencyType(string(d.Type)); err != nil {
		return err
	}
	return nil
}
