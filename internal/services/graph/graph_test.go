package graph

import (
	"context"
	"testing"
	"time"

	badgerdb "github.com/dgraph-io/badger/v4"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/trellis/internal/common"
	"github.com/ternarybob/trellis/internal/interfaces"
	"github.com/ternarybob/trellis/internal/models"
	"github.com/ternarybob/trellis/internal/storage/badger"
)

func newTestGraph(t *testing.T) (*Service, interfaces.StorageManager) {
	t.Helper()
	manager, err := badger.NewManager(arbor.NewLogger(), &common.StorageConfig{
		Path:           t.TempDir(),
		MaxConnections: 10,
		RetryWindow:    2 * time.Second,
	})
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	t.Cleanup(func() { manager.Close() })
	return NewService(manager.Items(), manager.Dependencies(), arbor.NewLogger()), manager
}

func addItem(t *testing.T, m interfaces.StorageManager, id, parentID string, depth int, role models.Role) *models.WorkItem {
	t.Helper()
	now := time.Now().UTC()
	item := &models.WorkItem{
		ID: id, ParentID: parentID, Depth: depth, Title: id,
		Priority: models.PriorityMedium, Status: "pending", Role: role,
		RoleChangedAt: now, CreatedAt: now, ModifiedAt: now,
	}
	err := m.Update(context.Background(), func(tx *badgerdb.Txn) error {
		return m.Items().TxInsert(tx, item)
	})
	if err != nil {
		t.Fatalf("Failed to insert %s: %v", id, err)
	}
	return item
}

func addEdge(t *testing.T, m interfaces.StorageManager, id, from, to string, depType models.DependencyType) {
	t.Helper()
	err := m.Update(context.Background(), func(tx *badgerdb.Txn) error {
		return m.Dependencies().TxInsert(tx, &models.Dependency{
			ID: id, FromID: from, ToID: to, Type: depType, CreatedAt: time.Now().UTC(),
		})
	})
	if err != nil {
		t.Fatalf("Failed to insert edge %s: %v", id, err)
	}
}

func TestAncestorsRootFirst(t *testing.T) {
	svc, m := newTestGraph(t)
	ctx := context.Background()

	addItem(t, m, "epic", "", 0, models.RoleQueue)
	addItem(t, m, "feature", "epic", 1, models.RoleQueue)
	addItem(t, m, "task", "feature", 2, models.RoleQueue)

	chain, err := svc.Ancestors(ctx, "task")
	if err != nil {
		t.Fatalf("Ancestors failed: %v", err)
	}
	if len(chain) != 2 || chain[0].ID != "epic" || chain[1].ID != "feature" {
		t.Errorf("Expected [epic, feature], got %v", ids(chain))
	}

	chain, err = svc.Ancestors(ctx, "epic")
	if err != nil {
		t.Fatalf("Ancestors on root failed: %v", err)
	}
	if len(chain) != 0 {
		t.Errorf("Expected empty chain for root, got %v", ids(chain))
	}
}

func TestDescendantsBFS(t *testing.T) {
	svc, m := newTestGraph(t)
	ctx := context.Background()

	addItem(t, m, "root", "", 0, models.RoleQueue)
	addItem(t, m, "a", "root", 1, models.RoleQueue)
	addItem(t, m, "b", "root", 1, models.RoleQueue)
	addItem(t, m, "a1", "a", 2, models.RoleQueue)

	all, err := svc.Descendants(ctx, "root", 0)
	if err != nil {
		t.Fatalf("Descendants failed: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("Expected 3 descendants, got %v", ids(all))
	}
	// BFS: the grandchild comes after both children.
	if all[2].ID != "a1" {
		t.Errorf("Expected a1 last, got %v", ids(all))
	}

	shallow, err := svc.Descendants(ctx, "root", 1)
	if err != nil {
		t.Fatalf("Bounded descendants failed: %v", err)
	}
	if len(shallow) != 2 {
		t.Errorf("Expected 2 direct children, got %v", ids(shallow))
	}
}

func TestWouldIntroduceParentCycle(t *testing.T) {
	svc, m := newTestGraph(t)
	ctx := context.Background()

	addItem(t, m, "root", "", 0, models.RoleQueue)
	addItem(t, m, "mid", "root", 1, models.RoleQueue)
	addItem(t, m, "leaf", "mid", 2, models.RoleQueue)

	check := func(childID, parentID string) bool {
		var cyclic bool
		err := m.View(ctx, func(tx *badgerdb.Txn) error {
			var err error
			cyclic, err = svc.TxWouldIntroduceParentCycle(tx, childID, parentID)
			return err
		})
		if err != nil {
			t.Fatalf("Check failed: %v", err)
		}
		return cyclic
	}

	if !check("root", "leaf") {
		t.Error("Expected cycle re-parenting root under its own descendant")
	}
	if check("leaf", "root") {
		t.Error("Re-parenting leaf under root must not report a cycle")
	}
	if !check("mid", "mid") {
		t.Error("Self-parenting must report a cycle")
	}
}

func TestWouldIntroduceDependencyCycle(t *testing.T) {
	svc, m := newTestGraph(t)
	ctx := context.Background()

	for _, id := range []string{"A", "B", "C"} {
		addItem(t, m, id, "", 0, models.RoleQueue)
	}
	addEdge(t, m, "dep_ab", "A", "B", models.DependencyBlocks)
	addEdge(t, m, "dep_bc", "B", "C", models.DependencyBlocks)

	check := func(from, to string, depType models.DependencyType, pending map[string][]string) []string {
		var cycle []string
		err := m.View(ctx, func(tx *badgerdb.Txn) error {
			var err error
			cycle, err = svc.TxWouldIntroduceDependencyCycle(tx, from, to, depType, pending)
			return err
		})
		if err != nil {
			t.Fatalf("Check failed: %v", err)
		}
		return cycle
	}

	cycle := check("C", "A", models.DependencyBlocks, nil)
	want := []string{"C", "A", "B", "C"}
	if len(cycle) != len(want) {
		t.Fatalf("Expected cycle %v, got %v", want, cycle)
	}
	for i := range want {
		if cycle[i] != want[i] {
			t.Fatalf("Expected cycle %v, got %v", want, cycle)
		}
	}

	// IS_BLOCKED_BY is the reverse edge: A IS_BLOCKED_BY C means C blocks A.
	if cycle := check("A", "C", models.DependencyIsBlockedBy, nil); len(cycle) == 0 {
		t.Error("Expected cycle via reversed IS_BLOCKED_BY edge")
	}

	// RELATES_TO edges never participate in cycles.
	if cycle := check("C", "A", models.DependencyRelatesTo, nil); cycle != nil {
		t.Errorf("RELATES_TO must not cycle, got %v", cycle)
	}

	// Pending edges not yet in the store extend the adjacency.
	addItem(t, m, "D", "", 0, models.RoleQueue)
	if cycle := check("D", "A", models.DependencyBlocks, map[string][]string{"C": {"D"}}); len(cycle) == 0 {
		t.Error("Expected cycle through the pending C->D edge")
	}
}

func TestUnresolvedBlockersAndNewlyUnblocked(t *testing.T) {
	svc, m := newTestGraph(t)
	ctx := context.Background()

	dbSetup := addItem(t, m, "db-setup", "", 0, models.RoleWork)
	addItem(t, m, "schema", "", 0, models.RoleQueue)
	addItem(t, m, "api", "", 0, models.RoleQueue)
	addEdge(t, m, "dep_1", "db-setup", "api", models.DependencyBlocks)
	addEdge(t, m, "dep_2", "api", "schema", models.DependencyIsBlockedBy)

	unresolved, err := svc.UnresolvedBlockers(ctx, "api")
	if err != nil {
		t.Fatalf("UnresolvedBlockers failed: %v", err)
	}
	if len(unresolved) != 2 {
		t.Fatalf("Expected 2 unresolved blockers, got %v", ids(unresolved))
	}

	// Completing one blocker is not enough.
	dbSetup.Role = models.RoleTerminal
	dbSetup.Status = "completed"
	if err := m.Items().Upsert(ctx, dbSetup); err != nil {
		t.Fatalf("Failed to complete db-setup: %v", err)
	}
	unblocked, err := svc.NewlyUnblocked(ctx, "db-setup")
	if err != nil {
		t.Fatalf("NewlyUnblocked failed: %v", err)
	}
	if len(unblocked) != 0 {
		t.Errorf("api still has an unresolved blocker, got %v", ids(unblocked))
	}

	schemaItem, _ := m.Items().Get(ctx, "schema")
	schemaItem.Role = models.RoleTerminal
	schemaItem.Status = "completed"
	if err := m.Items().Upsert(ctx, schemaItem); err != nil {
		t.Fatalf("Failed to complete schema: %v", err)
	}
	unblocked, err = svc.NewlyUnblocked(ctx, "schema")
	if err != nil {
		t.Fatalf("NewlyUnblocked failed: %v", err)
	}
	if len(unblocked) != 1 || unblocked[0].ID != "api" {
		t.Errorf("Expected api newly unblocked, got %v", ids(unblocked))
	}

	unresolved, _ = svc.UnresolvedBlockers(ctx, "api")
	if len(unresolved) != 0 {
		t.Errorf("Expected no unresolved blockers, got %v", ids(unresolved))
	}
}

func TestDependencyChainDistance(t *testing.T) {
	svc, m := newTestGraph(t)
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		addItem(t, m, id, "", 0, models.RoleQueue)
	}
	addEdge(t, m, "dep_ab", "a", "b", models.DependencyBlocks)
	addEdge(t, m, "dep_bc", "b", "c", models.DependencyBlocks)

	chain, err := svc.DependencyChain(ctx, []string{"a"}, DirectionOutgoing, 0)
	if err != nil {
		t.Fatalf("DependencyChain failed: %v", err)
	}
	if len(chain) != 3 {
		t.Fatalf("Expected 3 nodes, got %d", len(chain))
	}
	byID := map[string]int{}
	for _, node := range chain {
		byID[node.Item.ID] = node.Distance
	}
	if byID["a"] != 0 || byID["b"] != 1 || byID["c"] != 2 {
		t.Errorf("Unexpected distances: %v", byID)
	}

	bounded, err := svc.DependencyChain(ctx, []string{"a"}, DirectionOutgoing, 1)
	if err != nil {
		t.Fatalf("Bounded chain failed: %v", err)
	}
	if len(bounded) != 2 {
		t.Errorf("Expected 2 nodes at maxDepth=1, got %d", len(bounded))
	}
}

func ids(items []*models.WorkItem) []string {
	out := make([]string, len(items))
	for i, item := range items {
		out[i] = item.ID
	}
	return out
}
