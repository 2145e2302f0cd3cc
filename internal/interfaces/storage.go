package interfaces

import (
	"context"
	"time"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/ternarybob/trellis/internal/models"
)

// ItemStorage - persistence for work items
type ItemStorage interface {
	Get(ctx context.Context, id string) (*models.WorkItem, error)
	GetAll(ctx context.Context) ([]*models.WorkItem, error)
	GetByParent(ctx context.Context, parentID string) ([]*models.WorkItem, error)
	GetRoots(ctx context.Context) ([]*models.WorkItem, error)
	GetByRole(ctx context.Context, role models.Role) ([]*models.WorkItem, error)
	GetByStatus(ctx context.Context, status string) ([]*models.WorkItem, error)
	Search(ctx context.Context, text string, tags []string, role models.Role, status, parentID string) ([]*models.WorkItem, error)
	Count(ctx context.Context) (int, error)
	CountByRole(ctx context.Context) (map[models.Role]int, error)
	Upsert(ctx context.Context, item *models.WorkItem) error

	// Transactional variants composed by services into atomic writes
	TxGet(tx *badger.Txn, id string) (*models.WorkItem, error)
	TxGetByParent(tx *badger.Txn, parentID string) ([]*models.WorkItem, error)
	TxUpsert(tx *badger.Txn, item *models.WorkItem) error
	TxInsert(tx *badger.Txn, item *models.WorkItem) error
	TxDelete(tx *badger.Txn, id string) error
}

// NoteStorage - persistence for item notes, unique per (item_id, key)
type NoteStorage interface {
	Get(ctx context.Context, itemID, key string) (*models.Note, error)
	GetByItem(ctx context.Context, itemID string) ([]*models.Note, error)
	Count(ctx context.Context) (int, error)

	TxGet(tx *badger.Txn, itemID, key string) (*models.Note, error)
	TxGetByItem(tx *badger.Txn, itemID string) ([]*models.Note, error)
	TxUpsert(tx *badger.Txn, note *models.Note) error
	TxDelete(tx *badger.Txn, itemID, key string) error
	TxDeleteByItem(tx *badger.Txn, itemID string) error
}

// DependencyStorage - persistence for typed dependency edges
type DependencyStorage interface {
	Get(ctx context.Context, fromID, toID string, depType models.DependencyType) (*models.Dependency, error)
	GetAll(ctx context.Context) ([]*models.Dependency, error)
	GetByFrom(ctx context.Context, fromID string) ([]*models.Dependency, error)
	GetByTo(ctx context.Context, toID string) ([]*models.Dependency, error)
	GetTouching(ctx context.Context, itemID string) ([]*models.Dependency, error)
	Count(ctx context.Context) (int, error)

	TxGetByFrom(tx *badger.Txn, fromID string) ([]*models.Dependency, error)
	TxGetByTo(tx *badger.Txn, toID string) ([]*models.Dependency, error)
	TxInsert(tx *badger.Txn, dep *models.Dependency) error
	TxDelete(tx *badger.Txn, fromID, toID string, depType models.DependencyType) error
	TxDeleteTouching(tx *badger.Txn, itemID string) error
}

// TransitionStorage - append-only role transition log
type TransitionStorage interface {
	GetByItem(ctx context.Context, itemID string) ([]*models.RoleTransition, error)
	GetSince(ctx context.Context, since time.Time) ([]*models.RoleTransition, error)

	TxGetByItem(tx *badger.Txn, itemID string) ([]*models.RoleTransition, error)
	TxInsert(tx *badger.Txn, transition *models.RoleTransition) error
	TxDeleteByItem(tx *badger.Txn, itemID string) error
}

// StorageManager aggregates the entity storages and owns transaction
// boundaries. Update serializes writers and retries badger conflicts for a
// bounded window before reporting ConcurrencyExhausted; View runs against
// the last committed snapshot and never blocks writers.
type StorageManager interface {
	Items() ItemStorage
	Notes() NoteStorage
	Dependencies() DependencyStorage
	Transitions() TransitionStorage

	Update(ctx context.Context, fn func(tx *badger.Txn) error) error
	View(ctx context.Context, fn func(tx *badger.Txn) error) error

	Close() error
}
