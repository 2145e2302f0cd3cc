// Package graph provides traversal and validation over the work item
// hierarchy and the typed dependency DAG.
package graph

import (
	"context"
	"fmt"

	badgerdb "github.com/dgraph-io/badger/v4"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/trellis/internal/interfaces"
	"github.com/ternarybob/trellis/internal/models"
)

// Direction selects which way DependencyChain walks the graph.
const (
	DirectionOutgoing = "outgoing"
	DirectionIncoming = "incoming"
)

// ChainNode pairs a reachable item with its minimum BFS distance from the
// nearest seed.
type ChainNode struct {
	Item     *models.WorkItem `json:"item"`
	Distance int              `json:"distance"`
}

// Service answers traversal questions over items and dependency edges. It
// is stateless; all state lives in the store.
type Service struct {
	items  interfaces.ItemStorage
	deps   interfaces.DependencyStorage
	logger arbor.ILogger
}

// NewService creates a graph service over the given storages.
func NewService(items interfaces.ItemStorage, deps interfaces.DependencyStorage, logger arbor.ILogger) *Service {
	return &Service{
		items:  items,
		deps:   deps,
		logger: logger,
	}
}

// Ancestors returns the parent chain ordered root first, direct parent
// last. Roots return an empty list.
func (s *Service) Ancestors(ctx context.Context, id string) ([]*models.WorkItem, error) {
	item, err := s.items.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	var chain []*models.WorkItem
	current := item
	for current.ParentID != "" {
		parent, err := s.items.Get(ctx, current.ParentID)
		if err != nil {
			return nil, err
		}
		chain = append([]*models.WorkItem{parent}, chain...)
		current = parent
		if len(chain) > models.MaxItemDepth {
			return nil, models.NewInternalError(fmt.Errorf("parent chain of %s exceeds max depth", id))
		}
	}
	return chain, nil
}

// Descendants returns the subtree under id in BFS order, excluding the
// root itself. maxDepth bounds the walk relative to id; <= 0 means
// unbounded (the hierarchy depth cap bounds it anyway).
func (s *Service) Descendants(ctx context.Context, id string, maxDepth int) ([]*models.WorkItem, error) {
	if _, err := s.items.Get(ctx, id); err != nil {
		return nil, err
	}

	var result []*models.WorkItem
	frontier := []string{id}
	depth := 0
	for len(frontier) > 0 {
		if maxDepth > 0 && depth >= maxDepth {
			break
		}
		var next []string
		for _, parentID := range frontier {
			children, err := s.items.GetByParent(ctx, parentID)
			if err != nil {
				return nil, err
			}
			for _, child := range children {
				result = append(result, child)
				next = append(next, child.ID)
			}
		}
		frontier = next
		depth++
	}
	return result, nil
}

// TxWouldIntroduceParentCycle reports whether re-parenting childID under
// newParentID would create a cycle in the parent chain. It runs inside
// the write transaction so the chain cannot change before the reparent
// commits.
func (s *Service) TxWouldIntroduceParentCycle(tx *badgerdb.Txn, childID, newParentID string) (bool, error) {
	if childID == newParentID {
		return true, nil
	}
	current := newParentID
	for current != "" {
		if current == childID {
			return true, nil
		}
		item, err := s.items.TxGet(tx, current)
		if err != nil {
			return false, err
		}
		current = item.ParentID
	}
	return false, nil
}

// TxWouldIntroduceDependencyCycle checks whether adding the edge would
// close a directed cycle among blocking edges. IS_BLOCKED_BY is treated
// as the reverse of BLOCKS; RELATES_TO never cycles. It runs inside the
// write transaction so no edge can commit between the check and the
// insert. pending carries normalized blocking edges not yet in the store
// (blocker -> blocked), merged into the adjacency during the walk; nil
// means stored edges only. On a cycle the returned path starts and ends
// at the blocker for diagnostics.
func (s *Service) TxWouldIntroduceDependencyCycle(tx *badgerdb.Txn, fromID, toID string, depType models.DependencyType, pending map[string][]string) ([]string, error) {
	edge := models.Dependency{FromID: fromID, ToID: toID, Type: depType}
	blocker, blocked, ok := edge.BlockerEdge()
	if !ok {
		return nil, nil
	}

	// DFS from the blocked item along normalized blocking edges; reaching
	// the blocker means the new edge closes a cycle.
	path, found, err := s.txFindPath(tx, blocked, blocker, pending, make(map[string]bool))
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	cycle := append([]string{blocker}, path...)
	return cycle, nil
}

func (s *Service) txFindPath(tx *badgerdb.Txn, current, target string, pending map[string][]string, visited map[string]bool) ([]string, bool, error) {
	if current == target {
		return []string{current}, true, nil
	}
	if visited[current] {
		return nil, false, nil
	}
	visited[current] = true

	next, err := s.txBlockedBy(tx, current)
	if err != nil {
		return nil, false, err
	}
	next = append(next, pending[current]...)
	for _, n := range next {
		path, found, err := s.txFindPath(tx, n, target, pending, visited)
		if err != nil {
			return nil, false, err
		}
		if found {
			return append([]string{current}, path...), true, nil
		}
	}
	return nil, false, nil
}

func (s *Service) txBlockedBy(tx *badgerdb.Txn, id string) ([]string, error) {
	var out []string
	fromEdges, err := s.deps.TxGetByFrom(tx, id)
	if err != nil {
		return nil, err
	}
	for _, d := range fromEdges {
		if d.Type == models.DependencyBlocks {
			out = append(out, d.ToID)
		}
	}
	toEdges, err := s.deps.TxGetByTo(tx, id)
	if err != nil {
		return nil, err
	}
	for _, d := range toEdges {
		if d.Type == models.DependencyIsBlockedBy {
			out = append(out, d.FromID)
		}
	}
	return out, nil
}

// blockedBy returns the ids that current blocks (outgoing normalized edges).
func (s *Service) blockedBy(ctx context.Context, id string) ([]string, error) {
	var out []string
	fromEdges, err := s.deps.GetByFrom(ctx, id)
	if err != nil {
		return nil, err
	}
	for _, d := range fromEdges {
		if d.Type == models.DependencyBlocks {
			out = append(out, d.ToID)
		}
	}
	toEdges, err := s.deps.GetByTo(ctx, id)
	if err != nil {
		return nil, err
	}
	for _, d := range toEdges {
		if d.Type == models.DependencyIsBlockedBy {
			out = append(out, d.FromID)
		}
	}
	return out, nil
}

// neighbors returns adjacent item ids for DependencyChain traversal.
// Outgoing follows BLOCKS/RELATES_TO from->to (IS_BLOCKED_BY normalized);
// incoming is the reverse.
func (s *Service) neighbors(ctx context.Context, id, direction string) ([]string, error) {
	fromEdges, err := s.deps.GetByFrom(ctx, id)
	if err != nil {
		return nil, err
	}
	toEdges, err := s.deps.GetByTo(ctx, id)
	if err != nil {
		return nil, err
	}

	var out []string
	if direction == DirectionOutgoing {
		for _, d := range fromEdges {
			if d.Type == models.DependencyBlocks || d.Type == models.DependencyRelatesTo {
				out = append(out, d.ToID)
			}
		}
		for _, d := range toEdges {
			if d.Type == models.DependencyIsBlockedBy {
				out = append(out, d.FromID)
			}
		}
	} else {
		for _, d := range toEdges {
			if d.Type == models.DependencyBlocks || d.Type == models.DependencyRelatesTo {
				out = append(out, d.FromID)
			}
		}
		for _, d := range fromEdges {
			if d.Type == models.DependencyIsBlockedBy {
				out = append(out, d.ToID)
			}
		}
	}
	return out, nil
}

// DependencyChain returns every item reachable from the seed set with the
// minimum BFS distance, in traversal order. maxDepth <= 0 means unbounded.
func (s *Service) DependencyChain(ctx context.Context, rootIDs []string, direction string, maxDepth int) ([]ChainNode, error) {
	if direction != DirectionOutgoing && direction != DirectionIncoming {
		return nil, models.NewValidationError("invalid chain direction %q", direction)
	}

	visited := make(map[string]bool)
	var result []ChainNode
	frontier := make([]string, 0, len(rootIDs))
	for _, id := range rootIDs {
		if _, err := s.items.Get(ctx, id); err != nil {
			return nil, err
		}
		if !visited[id] {
			visited[id] = true
			frontier = append(frontier, id)
		}
	}

	distance := 0
	for len(frontier) > 0 {
		if maxDepth > 0 && distance > maxDepth {
			break
		}
		var next []string
		for _, id := range frontier {
			item, err := s.items.Get(ctx, id)
			if err != nil {
				return nil, err
			}
			result = append(result, ChainNode{Item: item, Distance: distance})

			adjacent, err := s.neighbors(ctx, id, direction)
			if err != nil {
				return nil, err
			}
			for _, n := range adjacent {
				if !visited[n] {
					visited[n] = true
					next = append(next, n)
				}
			}
		}
		frontier = next
		distance++
	}
	return result, nil
}

// Blockers returns every item with a normalized BLOCKS edge into itemID.
// A blocker is resolved iff its role is terminal.
func (s *Service) Blockers(ctx context.Context, itemID string) ([]*models.WorkItem, error) {
	ids, err := s.blockerIDs(ctx, itemID)
	if err != nil {
		return nil, err
	}
	blockers := make([]*models.WorkItem, 0, len(ids))
	for _, id := range ids {
		item, err := s.items.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		blockers = append(blockers, item)
	}
	return blockers, nil
}

// UnresolvedBlockers returns blockers whose role is not yet terminal.
func (s *Service) UnresolvedBlockers(ctx context.Context, itemID string) ([]*models.WorkItem, error) {
	blockers, err := s.Blockers(ctx, itemID)
	if err != nil {
		return nil, err
	}
	var unresolved []*models.WorkItem
	for _, b := range blockers {
		if b.Role != models.RoleTerminal {
			unresolved = append(unresolved, b)
		}
	}
	return unresolved, nil
}

// NewlyUnblocked returns items that had completedItemID as a blocker and
// now have zero unresolved blockers.
func (s *Service) NewlyUnblocked(ctx context.Context, completedItemID string) ([]*models.WorkItem, error) {
	downstream, err := s.blockedBy(ctx, completedItemID)
	if err != nil {
		return nil, err
	}

	var unblocked []*models.WorkItem
	for _, id := range downstream {
		item, err := s.items.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if item.Role == models.RoleTerminal {
			continue
		}
		unresolved, err := s.UnresolvedBlockers(ctx, id)
		if err != nil {
			return nil, err
		}
		if len(unresolved) == 0 {
			unblocked = append(unblocked, item)
		}
	}
	return unblocked, nil
}

func (s *Service) blockerIDs(ctx context.Context, itemID string) ([]string, error) {
	var ids []string
	toEdges, err := s.deps.GetByTo(ctx, itemID)
	if err != nil {
		return nil, err
	}
	for _, d := range toEdges {
		if d.Type == models.DependencyBlocks {
			ids = append(ids, d.FromID)
		}
	}
	fromEdges, err := s.deps.GetByFrom(ctx, itemID)
	if err != nil {
		return nil, err
	}
	for _, d := range fromEdges {
		if d.Type == models.DependencyIsBlockedBy {
			ids = append(ids, d.ToID)
		}
	}
	return ids, nil
}

// TxUnresolvedBlockers is the in-transaction variant used by the workflow
// engine's terminal prerequisite check.
func (s *Service) TxUnresolvedBlockers(tx *badgerdb.Txn, itemID string) ([]*models.WorkItem, error) {
	var ids []string
	toEdges, err := s.deps.TxGetByTo(tx, itemID)
	if err != nil {
		return nil, err
	}
	for _, d := range toEdges {
		if d.Type == models.DependencyBlocks {
			ids = append(ids, d.FromID)
		}
	}
	fromEdges, err := s.deps.TxGetByFrom(tx, itemID)
	if err != nil {
		return nil, err
	}
	for _, d := range fromEdges {
		if d.Type == models.DependencyIsBlockedBy {
			ids = append(ids, d.ToID)
		}
	}

	var unresolved []*models.WorkItem
	for _, id := range ids {
		item, err := s.items.TxGet(tx, id)
		if err != nil {
			return nil, err
		}
		if item.Role != models.RoleTerminal {
			unresolved = append(unresolved, item)
		}
	}
	return unresolved, nil
}

// TxNewlyUnblocked is the in-transaction variant of NewlyUnblocked, run
// after a terminal transition inside the same transaction.
func (s *Service) TxNewlyUnblocked(tx *badgerdb.Txn, completedItemID string) ([]*models.WorkItem, error) {
	var downstream []string
	fromEdges, err := s.deps.TxGetByFrom(tx, completedItemID)
	if err != nil {
		return nil, err
	}
	for _, d := range fromEdges {
		if d.Type == models.DependencyBlocks {
			downstream = append(downstream, d.ToID)
		}
	}
	toEdges, err := s.deps.TxGetByTo(tx, completedItemID)
	if err != nil {
		return nil, err
	}
	for _, d := range toEdges {
		if d.Type == models.DependencyIsBlockedBy {
			downstream = append(downstream, d.FromID)
		}
	}

	var unblocked []*models.WorkItem
	for _, id := range downstream {
		item, err := s.items.TxGet(tx, id)
		if err != nil {
			return nil, err
		}
		if item.Role == models.RoleTerminal {
			continue
		}
		unresolved, err := s.TxUnresolvedBlockers(tx, id)
		if err != nil {
			return nil, err
		}
		if len(unresolved) == 0 {
			unblocked = append(unblocked, item)
		}
	}
	return unblocked, nil
}
