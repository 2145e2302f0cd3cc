package badger

import (
	"context"
	"testing"
	"time"

	badgerdb "github.com/dgraph-io/badger/v4"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/trellis/internal/common"
	"github.com/ternarybob/trellis/internal/interfaces"
	"github.com/ternarybob/trellis/internal/models"
)

func newTestManager(t *testing.T) interfaces.StorageManager {
	t.Helper()
	manager, err := NewManager(arbor.NewLogger(), &common.StorageConfig{
		Path:           t.TempDir(),
		MaxConnections: 10,
		RetryWindow:    2 * time.Second,
	})
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	t.Cleanup(func() { manager.Close() })
	return manager
}

func seedItem(t *testing.T, m interfaces.StorageManager, id, parentID string, depth int, role models.Role, status string) *models.WorkItem {
	t.Helper()
	now := time.Now().UTC()
	item := &models.WorkItem{
		ID:            id,
		ParentID:      parentID,
		Depth:         depth,
		Title:         "Item " + id,
		Priority:      models.PriorityMedium,
		Status:        status,
		Role:          role,
		RoleChangedAt: now,
		CreatedAt:     now,
		ModifiedAt:    now,
	}
	err := m.Update(context.Background(), func(tx *badgerdb.Txn) error {
		return m.Items().TxInsert(tx, item)
	})
	if err != nil {
		t.Fatalf("Failed to insert item %s: %v", id, err)
	}
	return item
}

func TestItemStorageCRUD(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	root := seedItem(t, m, "item_root", "", 0, models.RoleQueue, "pending")
	seedItem(t, m, "item_child1", root.ID, 1, models.RoleQueue, "pending")
	seedItem(t, m, "item_child2", root.ID, 1, models.RoleWork, "in-progress")

	got, err := m.Items().Get(ctx, "item_root")
	if err != nil {
		t.Fatalf("Failed to get root: %v", err)
	}
	if got.Title != "Item item_root" {
		t.Errorf("Expected title %q, got %q", "Item item_root", got.Title)
	}

	children, err := m.Items().GetByParent(ctx, root.ID)
	if err != nil {
		t.Fatalf("Failed to get children: %v", err)
	}
	if len(children) != 2 {
		t.Fatalf("Expected 2 children, got %d", len(children))
	}

	roots, err := m.Items().GetRoots(ctx)
	if err != nil {
		t.Fatalf("Failed to get roots: %v", err)
	}
	if len(roots) != 1 || roots[0].ID != "item_root" {
		t.Errorf("Expected single root item_root, got %v", roots)
	}

	byRole, err := m.Items().GetByRole(ctx, models.RoleWork)
	if err != nil {
		t.Fatalf("Failed to get by role: %v", err)
	}
	if len(byRole) != 1 || byRole[0].ID != "item_child2" {
		t.Errorf("Expected item_child2 in role work, got %v", byRole)
	}

	counts, err := m.Items().CountByRole(ctx)
	if err != nil {
		t.Fatalf("Failed to count by role: %v", err)
	}
	if counts[models.RoleQueue] != 2 || counts[models.RoleWork] != 1 {
		t.Errorf("Unexpected role counts: %v", counts)
	}
}

func TestItemStorageNotFoundAndDuplicate(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	_, err := m.Items().Get(ctx, "item_missing")
	if models.CodeOf(err) != models.CodeNotFound {
		t.Errorf("Expected NotFound, got %v", err)
	}

	seedItem(t, m, "item_dup", "", 0, models.RoleQueue, "pending")
	err = m.Update(ctx, func(tx *badgerdb.Txn) error {
		return m.Items().TxInsert(tx, &models.WorkItem{ID: "item_dup", Title: "again", Priority: models.PriorityLow, Role: models.RoleQueue, Status: "pending"})
	})
	if models.CodeOf(err) != models.CodeConflict {
		t.Errorf("Expected ConflictError on duplicate insert, got %v", err)
	}
}

func TestItemStorageSearch(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	a := seedItem(t, m, "item_a", "", 0, models.RoleQueue, "pending")
	a.Title = "Implement auth middleware"
	a.Tags = "impl,backend"
	b := seedItem(t, m, "item_b", "", 0, models.RoleQueue, "pending")
	b.Title = "Design login page"
	b.Tags = "design"
	for _, item := range []*models.WorkItem{a, b} {
		if err := m.Items().Upsert(ctx, item); err != nil {
			t.Fatalf("Failed to upsert: %v", err)
		}
	}

	found, err := m.Items().Search(ctx, "auth", nil, "", "", "")
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(found) != 1 || found[0].ID != "item_a" {
		t.Errorf("Expected item_a for text search, got %v", found)
	}

	found, err = m.Items().Search(ctx, "", []string{"impl", "backend"}, "", "", "")
	if err != nil {
		t.Fatalf("Tag search failed: %v", err)
	}
	if len(found) != 1 || found[0].ID != "item_a" {
		t.Errorf("Expected item_a for tag search, got %v", found)
	}

	found, err = m.Items().Search(ctx, "", nil, models.RoleQueue, "pending", "")
	if err != nil {
		t.Fatalf("Role search failed: %v", err)
	}
	if len(found) != 2 {
		t.Errorf("Expected 2 queue items, got %d", len(found))
	}
}

func TestNoteStorageCompositeKey(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()
	seedItem(t, m, "item_n", "", 0, models.RoleQueue, "pending")

	now := time.Now().UTC()
	write := func(key, body string) error {
		return m.Update(ctx, func(tx *badgerdb.Txn) error {
			return m.Notes().TxUpsert(tx, &models.Note{
				ID: "note_" + key, ItemID: "item_n", Key: key, Phase: models.RoleQueue,
				Body: body, CreatedAt: now, ModifiedAt: now,
			})
		})
	}
	if err := write("design", "v1"); err != nil {
		t.Fatalf("Failed to write note: %v", err)
	}
	if err := write("design", "v2"); err != nil {
		t.Fatalf("Failed to overwrite note: %v", err)
	}

	notes, err := m.Notes().GetByItem(ctx, "item_n")
	if err != nil {
		t.Fatalf("Failed to list notes: %v", err)
	}
	if len(notes) != 1 {
		t.Fatalf("Expected 1 note after overwrite, got %d", len(notes))
	}
	if notes[0].Body != "v2" {
		t.Errorf("Expected body v2, got %q", notes[0].Body)
	}

	got, err := m.Notes().Get(ctx, "item_n", "design")
	if err != nil {
		t.Fatalf("Failed to get note by (item, key): %v", err)
	}
	if got.Body != "v2" {
		t.Errorf("Expected body v2, got %q", got.Body)
	}

	err = m.Update(ctx, func(tx *badgerdb.Txn) error {
		return m.Notes().TxDeleteByItem(tx, "item_n")
	})
	if err != nil {
		t.Fatalf("Failed to delete notes: %v", err)
	}
	notes, _ = m.Notes().GetByItem(ctx, "item_n")
	if len(notes) != 0 {
		t.Errorf("Expected 0 notes after delete, got %d", len(notes))
	}
}

func TestDependencyStorageTouching(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()
	seedItem(t, m, "item_x", "", 0, models.RoleQueue, "pending")
	seedItem(t, m, "item_y", "", 0, models.RoleQueue, "pending")
	seedItem(t, m, "item_z", "", 0, models.RoleQueue, "pending")

	now := time.Now().UTC()
	err := m.Update(ctx, func(tx *badgerdb.Txn) error {
		if err := m.Dependencies().TxInsert(tx, &models.Dependency{
			ID: "dep_1", FromID: "item_x", ToID: "item_y", Type: models.DependencyBlocks, CreatedAt: now,
		}); err != nil {
			return err
		}
		return m.Dependencies().TxInsert(tx, &models.Dependency{
			ID: "dep_2", FromID: "item_z", ToID: "item_x", Type: models.DependencyRelatesTo, CreatedAt: now,
		})
	})
	if err != nil {
		t.Fatalf("Failed to insert dependencies: %v", err)
	}

	touching, err := m.Dependencies().GetTouching(ctx, "item_x")
	if err != nil {
		t.Fatalf("Failed to get touching edges: %v", err)
	}
	if len(touching) != 2 {
		t.Errorf("Expected 2 edges touching item_x, got %d", len(touching))
	}

	// Duplicate (from, to, type) must conflict.
	err = m.Update(ctx, func(tx *badgerdb.Txn) error {
		return m.Dependencies().TxInsert(tx, &models.Dependency{
			ID: "dep_3", FromID: "item_x", ToID: "item_y", Type: models.DependencyBlocks, CreatedAt: now,
		})
	})
	if models.CodeOf(err) != models.CodeConflict {
		t.Errorf("Expected ConflictError on duplicate edge, got %v", err)
	}

	err = m.Update(ctx, func(tx *badgerdb.Txn) error {
		return m.Dependencies().TxDeleteTouching(tx, "item_x")
	})
	if err != nil {
		t.Fatalf("Failed to delete touching edges: %v", err)
	}
	count, _ := m.Dependencies().Count(ctx)
	if count != 0 {
		t.Errorf("Expected 0 edges after delete, got %d", count)
	}
}

func TestTransitionStorageAppendOnly(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()
	seedItem(t, m, "item_t", "", 0, models.RoleQueue, "pending")

	base := time.Now().UTC().Add(-time.Hour)
	err := m.Update(ctx, func(tx *badgerdb.Txn) error {
		for i, entry := range []*models.RoleTransition{
			{ID: "rt_1", ItemID: "item_t", FromRole: models.RoleQueue, ToRole: models.RoleWork, FromStatus: "pending", ToStatus: "in-progress", Trigger: models.TriggerStart},
			{ID: "rt_2", ItemID: "item_t", FromRole: models.RoleWork, ToRole: models.RoleTerminal, FromStatus: "in-progress", ToStatus: "completed", Trigger: models.TriggerComplete},
		} {
			entry.AppliedAt = base.Add(time.Duration(i) * time.Minute)
			if err := m.Transitions().TxInsert(tx, entry); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Failed to insert transitions: %v", err)
	}

	history, err := m.Transitions().GetByItem(ctx, "item_t")
	if err != nil {
		t.Fatalf("Failed to read history: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("Expected 2 entries, got %d", len(history))
	}
	if history[0].ID != "rt_1" || history[1].ID != "rt_2" {
		t.Errorf("Expected chronological order rt_1, rt_2, got %s, %s", history[0].ID, history[1].ID)
	}

	recent, err := m.Transitions().GetSince(ctx, base.Add(30*time.Second))
	if err != nil {
		t.Fatalf("Failed to read since: %v", err)
	}
	if len(recent) != 1 || recent[0].ID != "rt_2" {
		t.Errorf("Expected only rt_2 since cutoff, got %v", recent)
	}
}

func TestUpdateWriteContentionExhaustsRetryWindow(t *testing.T) {
	manager, err := NewManager(arbor.NewLogger(), &common.StorageConfig{
		Path:           t.TempDir(),
		MaxConnections: 10,
		RetryWindow:    150 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	t.Cleanup(func() { manager.Close() })
	ctx := context.Background()

	// First writer parks inside its transaction, holding the write slot
	// well past the retry window.
	started := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- manager.Update(ctx, func(tx *badgerdb.Txn) error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started

	err = manager.Update(ctx, func(tx *badgerdb.Txn) error { return nil })
	if models.CodeOf(err) != models.CodeConcurrencyExhausted {
		t.Fatalf("Expected ConcurrencyExhausted while the slot is held, got %v", err)
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatalf("Holding writer failed: %v", err)
	}

	// The slot is free again; writes proceed normally.
	err = manager.Update(ctx, func(tx *badgerdb.Txn) error { return nil })
	if err != nil {
		t.Fatalf("Update after release failed: %v", err)
	}
}
