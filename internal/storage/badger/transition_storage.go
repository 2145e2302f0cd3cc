package badger

import (
	"context"
	"fmt"
	"time"

	badgerdb "github.com/dgraph-io/badger/v4"
	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/ternarybob/trellis/internal/interfaces"
	"github.com/ternarybob/trellis/internal/models"
)

// TransitionStorage implements the append-only role-transition log for
// Badger. Entries are never mutated; they are removed only when the owning
// item is deleted.
type TransitionStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewTransitionStorage creates a new TransitionStorage instance.
func NewTransitionStorage(db *BadgerDB, logger arbor.ILogger) interfaces.TransitionStorage {
	return &TransitionStorage{
		db:     db,
		logger: logger,
	}
}

func (s *TransitionStorage) GetByItem(ctx context.Context, itemID string) ([]*models.RoleTransition, error) {
	var transitions []models.RoleTransition
	if err := s.db.Store().Find(&transitions, badgerhold.Where("ItemID").Eq(itemID).Index("ItemID").SortBy("AppliedAt")); err != nil {
		return nil, models.NewDatabaseError(fmt.Errorf("failed to get transitions: %w", err))
	}
	return transitionsToPointers(transitions), nil
}

func (s *TransitionStorage) GetSince(ctx context.Context, since time.Time) ([]*models.RoleTransition, error) {
	var transitions []models.RoleTransition
	if err := s.db.Store().Find(&transitions, badgerhold.Where("AppliedAt").Ge(since).SortBy("AppliedAt")); err != nil {
		return nil, models.NewDatabaseError(fmt.Errorf("failed to get recent transitions: %w", err))
	}
	return transitionsToPointers(transitions), nil
}

func (s *TransitionStorage) TxGetByItem(tx *badgerdb.Txn, itemID string) ([]*models.RoleTransition, error) {
	var transitions []models.RoleTransition
	if err := s.db.Store().TxFind(tx, &transitions, badgerhold.Where("ItemID").Eq(itemID).Index("ItemID").SortBy("AppliedAt")); err != nil {
		return nil, models.NewDatabaseError(fmt.Errorf("failed to get transitions: %w", err))
	}
	return transitionsToPointers(transitions), nil
}

func (s *TransitionStorage) TxInsert(tx *badgerdb.Txn, transition *models.RoleTransition) error {
	if transition.FromRole == transition.ToRole {
		return models.NewValidationError("role transition must cross a role boundary (%s)", transition.FromRole)
	}
	if err := s.db.Store().TxInsert(tx, transition.ID, transition); err != nil {
		return models.NewDatabaseError(fmt.Errorf("failed to insert transition: %w", err))
	}
	return nil
}

func (s *TransitionStorage) TxDeleteByItem(tx *badgerdb.Txn, itemID string) error {
	if err := s.db.Store().TxDeleteMatching(tx, &models.RoleTransition{}, badgerhold.Where("ItemID").Eq(itemID).Index("ItemID")); err != nil {
		return models.NewDatabaseError(fmt.Errorf("failed to delete transitions for item: %w", err))
	}
	return nil
}

func transitionsToPointers(transitions []models.RoleTransition) []*models.RoleTransition {
	result := make([]*models.RoleTransition, len(transitions))
	for i := range transitions {
		result[i] = &transitions[i]
	}
	return result
}
