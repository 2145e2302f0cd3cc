package schema

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	badgerdb "github.com/dgraph-io/badger/v4"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/trellis/internal/common"
	"github.com/ternarybob/trellis/internal/interfaces"
	"github.com/ternarybob/trellis/internal/models"
	"github.com/ternarybob/trellis/internal/storage/badger"
)

const testSchemas = `
schemas:
  - match_tags: ["feature"]
    entries:
      - key: design
        phase: queue
        required: true
        description: Design summary before work starts
      - key: retro
        phase: review
        required: false
  - match_tags: ["feature", "backend"]
    entries:
      - key: design
        phase: work
        required: true
      - key: api-contract
        phase: work
        required: true
`

func newTestService(t *testing.T, yaml string) (*Service, interfaces.StorageManager) {
	t.Helper()
	dir := t.TempDir()
	if yaml != "" {
		workflowDir := filepath.Join(dir, WorkflowDirName)
		if err := os.MkdirAll(workflowDir, 0o755); err != nil {
			t.Fatalf("Failed to create config dir: %v", err)
		}
		if err := os.WriteFile(filepath.Join(workflowDir, SchemasFileName), []byte(yaml), 0o644); err != nil {
			t.Fatalf("Failed to write schemas: %v", err)
		}
	}

	manager, err := badger.NewManager(arbor.NewLogger(), &common.StorageConfig{
		Path:           t.TempDir(),
		MaxConnections: 10,
		RetryWindow:    2 * time.Second,
	})
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	t.Cleanup(func() { manager.Close() })

	config := common.NewDefaultConfig()
	config.Workflow.ConfigDir = dir
	return NewService(manager.Notes(), config, arbor.NewLogger()), manager
}

func TestSchemaForTagsSubsetMatchAndMerge(t *testing.T) {
	svc, _ := newTestService(t, testSchemas)

	// No matching schema for unrelated tags.
	if entries := svc.SchemaForTags([]string{"bug"}); len(entries) != 0 {
		t.Errorf("Expected no entries for unmatched tags, got %v", entries)
	}

	// Single schema match.
	entries := svc.SchemaForTags([]string{"feature"})
	if len(entries) != 2 {
		t.Fatalf("Expected 2 entries for [feature], got %d", len(entries))
	}
	if entries[0].Key != "design" || entries[0].Phase != models.RoleQueue {
		t.Errorf("Expected design/queue first, got %s/%s", entries[0].Key, entries[0].Phase)
	}

	// Both schemas match; the duplicate design key resolves first-wins in
	// configuration order, keeping phase queue.
	entries = svc.SchemaForTags([]string{"feature", "backend", "extra"})
	if len(entries) != 3 {
		t.Fatalf("Expected 3 merged entries, got %d", len(entries))
	}
	keys := map[string]models.Role{}
	for _, e := range entries {
		keys[e.Key] = e.Phase
	}
	if keys["design"] != models.RoleQueue {
		t.Errorf("Expected first-wins design phase queue, got %s", keys["design"])
	}
	if _, ok := keys["api-contract"]; !ok {
		t.Error("Expected api-contract from the second schema")
	}
}

func TestRequiredForPhase(t *testing.T) {
	svc, _ := newTestService(t, testSchemas)

	required := svc.RequiredForPhase([]string{"feature"}, models.RoleQueue)
	if len(required) != 1 || required[0].Key != "design" {
		t.Errorf("Expected [design] required in queue, got %v", required)
	}

	// retro is not required, so review has no gate.
	if required := svc.RequiredForPhase([]string{"feature"}, models.RoleReview); len(required) != 0 {
		t.Errorf("Expected no required review entries, got %v", required)
	}
}

func TestMissingRequiredAndExpectedNotes(t *testing.T) {
	svc, manager := newTestService(t, testSchemas)
	ctx := context.Background()

	now := time.Now().UTC()
	item := &models.WorkItem{
		ID: "item_1", Title: "Login flow", Tags: "feature", Priority: models.PriorityHigh,
		Status: "pending", Role: models.RoleQueue,
		RoleChangedAt: now, CreatedAt: now, ModifiedAt: now,
	}
	err := manager.Update(ctx, func(tx *badgerdb.Txn) error {
		return manager.Items().TxInsert(tx, item)
	})
	if err != nil {
		t.Fatalf("Failed to insert item: %v", err)
	}

	missing, err := svc.MissingRequired(ctx, item, models.RoleQueue)
	if err != nil {
		t.Fatalf("MissingRequired failed: %v", err)
	}
	if len(missing) != 1 || missing[0] != "design" {
		t.Errorf("Expected missing [design], got %v", missing)
	}

	expected, err := svc.ExpectedNotes(ctx, item)
	if err != nil {
		t.Fatalf("ExpectedNotes failed: %v", err)
	}
	if len(expected) != 2 || expected[0].Exists {
		t.Fatalf("Expected 2 entries with design absent, got %v", expected)
	}

	err = manager.Update(ctx, func(tx *badgerdb.Txn) error {
		return manager.Notes().TxUpsert(tx, &models.Note{
			ID: "note_1", ItemID: "item_1", Key: "design", Phase: models.RoleQueue,
			Body: "OAuth via provider X", CreatedAt: now, ModifiedAt: now,
		})
	})
	if err != nil {
		t.Fatalf("Failed to write note: %v", err)
	}

	missing, err = svc.MissingRequired(ctx, item, models.RoleQueue)
	if err != nil {
		t.Fatalf("MissingRequired failed: %v", err)
	}
	if len(missing) != 0 {
		t.Errorf("Expected gate satisfied, got missing %v", missing)
	}
}

func TestMissingFileFallsBackToDefaults(t *testing.T) {
	svc, _ := newTestService(t, "")

	if svc.SchemaCount() != 0 {
		t.Errorf("Expected 0 schemas without a config file, got %d", svc.SchemaCount())
	}
	if entries := svc.SchemaForTags([]string{"feature"}); entries != nil {
		t.Errorf("Expected no entries without schemas, got %v", entries)
	}
}

func TestInvalidateForcesReload(t *testing.T) {
	dir := t.TempDir()
	workflowDir := filepath.Join(dir, WorkflowDirName)
	if err := os.MkdirAll(workflowDir, 0o755); err != nil {
		t.Fatalf("Failed to create config dir: %v", err)
	}
	path := filepath.Join(workflowDir, SchemasFileName)
	if err := os.WriteFile(path, []byte(testSchemas), 0o644); err != nil {
		t.Fatalf("Failed to write schemas: %v", err)
	}

	manager, err := badger.NewManager(arbor.NewLogger(), &common.StorageConfig{
		Path:           t.TempDir(),
		MaxConnections: 10,
		RetryWindow:    2 * time.Second,
	})
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	t.Cleanup(func() { manager.Close() })

	config := common.NewDefaultConfig()
	config.Workflow.ConfigDir = dir
	svc := NewService(manager.Notes(), config, arbor.NewLogger())
	if svc.SchemaCount() != 2 {
		t.Fatalf("Expected 2 schemas, got %d", svc.SchemaCount())
	}

	replaced := "schemas:\n  - match_tags: [\"bug\"]\n    entries:\n      - key: root-cause\n        phase: work\n        required: true\n"
	if err := os.WriteFile(path, []byte(replaced), 0o644); err != nil {
		t.Fatalf("Failed to rewrite schemas: %v", err)
	}

	// Within the TTL the old snapshot is served.
	if svc.SchemaCount() != 2 {
		t.Errorf("Expected cached snapshot before invalidation, got %d schemas", svc.SchemaCount())
	}

	svc.Invalidate()
	if svc.SchemaCount() != 1 {
		t.Errorf("Expected reloaded config after invalidation, got %d schemas", svc.SchemaCount())
	}
}
