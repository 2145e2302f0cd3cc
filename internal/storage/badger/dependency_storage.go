package badger

import (
	"context"
	"fmt"

	badgerdb "github.com/dgraph-io/badger/v4"
	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/ternarybob/trellis/internal/interfaces"
	"github.com/ternarybob/trellis/internal/models"
)

// DependencyStorage implements the DependencyStorage interface for Badger.
// Edges are stored under the composite (from_id, to_id, type) key so the
// uniqueness invariant is structural.
type DependencyStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewDependencyStorage creates a new DependencyStorage instance.
func NewDependencyStorage(db *BadgerDB, logger arbor.ILogger) interfaces.DependencyStorage {
	return &DependencyStorage{
		db:     db,
		logger: logger,
	}
}

func (s *DependencyStorage) Get(ctx context.Context, fromID, toID string, depType models.DependencyType) (*models.Dependency, error) {
	var dep models.Dependency
	key := models.DependencyKey(fromID, toID, depType)
	if err := s.db.Store().Get(key, &dep); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, models.NewNotFoundError("dependency", key)
		}
		return nil, models.NewDatabaseError(fmt.Errorf("failed to get dependency: %w", err))
	}
	return &dep, nil
}

func (s *DependencyStorage) GetAll(ctx context.Context) ([]*models.Dependency, error) {
	var deps []models.Dependency
	if err := s.db.Store().Find(&deps, badgerhold.Where("ID").Ne("").SortBy("CreatedAt")); err != nil {
		return nil, models.NewDatabaseError(fmt.Errorf("failed to list dependencies: %w", err))
	}
	return depsToPointers(deps), nil
}

func (s *DependencyStorage) GetByFrom(ctx context.Context, fromID string) ([]*models.Dependency, error) {
	var deps []models.Dependency
	if err := s.db.Store().Find(&deps, badgerhold.Where("FromID").Eq(fromID).Index("FromID").SortBy("CreatedAt")); err != nil {
		return nil, models.NewDatabaseError(fmt.Errorf("failed to get dependencies by from: %w", err))
	}
	return depsToPointers(deps), nil
}

func (s *DependencyStorage) GetByTo(ctx context.Context, toID string) ([]*models.Dependency, error) {
	var deps []models.Dependency
	if err := s.db.Store().Find(&deps, badgerhold.Where("ToID").Eq(toID).Index("ToID").SortBy("CreatedAt")); err != nil {
		return nil, models.NewDatabaseError(fmt.Errorf("failed to get dependencies by to: %w", err))
	}
	return depsToPointers(deps), nil
}

func (s *DependencyStorage) GetTouching(ctx context.Context, itemID string) ([]*models.Dependency, error) {
	var deps []models.Dependency
	if err := s.db.Store().Find(&deps, badgerhold.Where("FromID").Eq(itemID).Or(badgerhold.Where("ToID").Eq(itemID))); err != nil {
		return nil, models.NewDatabaseError(fmt.Errorf("failed to get dependencies touching item: %w", err))
	}
	return depsToPointers(deps), nil
}

func (s *DependencyStorage) Count(ctx context.Context) (int, error) {
	count, err := s.db.Store().Count(&models.Dependency{}, nil)
	if err != nil {
		return 0, models.NewDatabaseError(fmt.Errorf("failed to count dependencies: %w", err))
	}
	return int(count), nil
}

func (s *DependencyStorage) TxGetByFrom(tx *badgerdb.Txn, fromID string) ([]*models.Dependency, error) {
	var deps []models.Dependency
	if err := s.db.Store().TxFind(tx, &deps, badgerhold.Where("FromID").Eq(fromID).Index("FromID")); err != nil {
		return nil, models.NewDatabaseError(fmt.Errorf("failed to get dependencies by from: %w", err))
	}
	return depsToPointers(deps), nil
}

func (s *DependencyStorage) TxGetByTo(tx *badgerdb.Txn, toID string) ([]*models.Dependency, error) {
	var deps []models.Dependency
	if err := s.db.Store().TxFind(tx, &deps, badgerhold.Where("ToID").Eq(toID).Index("ToID")); err != nil {
		return nil, models.NewDatabaseError(fmt.Errorf("failed to get dependencies by to: %w", err))
	}
	return depsToPointers(deps), nil
}

func (s *DependencyStorage) TxInsert(tx *badgerdb.Txn, dep *models.Dependency) error {
	if err := dep.Validate(); err != nil {
		return models.NewValidationError("%v", err)
	}
	key := models.DependencyKey(dep.FromID, dep.ToID, dep.Type)
	if err := s.db.Store().TxInsert(tx, key, dep); err != nil {
		if err == badgerhold.ErrKeyExists {
			return models.NewConflictError(
				fmt.Sprintf("dependency already exists: %s %s %s", dep.FromID, dep.Type, dep.ToID),
				map[string]any{"from": dep.FromID, "to": dep.ToID, "type": dep.Type},
			)
		}
		return models.NewDatabaseError(fmt.Errorf("failed to insert dependency: %w", err))
	}
	return nil
}

func (s *DependencyStorage) TxDelete(tx *badgerdb.Txn, fromID, toID string, depType models.DependencyType) error {
	key := models.DependencyKey(fromID, toID, depType)
	if err := s.db.Store().TxDelete(tx, key, &models.Dependency{}); err != nil {
		if err == badgerhold.ErrNotFound {
			return models.NewNotFoundError("dependency", key)
		}
		return models.NewDatabaseError(fmt.Errorf("failed to delete dependency: %w", err))
	}
	return nil
}

func (s *DependencyStorage) TxDeleteTouching(tx *badgerdb.Txn, itemID string) error {
	query := badgerhold.Where("FromID").Eq(itemID).Or(badgerhold.Where("ToID").Eq(itemID))
	if err := s.db.Store().TxDeleteMatching(tx, &models.Dependency{}, query); err != nil {
		return models.NewDatabaseError(fmt.Errorf("failed to delete dependencies touching item: %w", err))
	}
	return nil
}

func depsToPointers(deps []models.Dependency) []*models.Dependency {
	result := make([]*models.Dependency, len(deps))
	for i := range deps {
		result[i] = &deps[i]
	}
	return result
}
