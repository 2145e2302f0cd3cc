package badger

import (
	"context"

	badgerdb "github.com/dgraph-io/badger/v4"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/trellis/internal/common"
	"github.com/ternarybob/trellis/internal/interfaces"
)

// Manager implements the StorageManager interface for Badger.
type Manager struct {
	db           *BadgerDB
	items        interfaces.ItemStorage
	notes        interfaces.NoteStorage
	dependencies interfaces.DependencyStorage
	transitions  interfaces.TransitionStorage
	logger       arbor.ILogger
}

// NewManager creates a new Badger storage manager.
func NewManager(logger arbor.ILogger, config *common.StorageConfig) (interfaces.StorageManager, error) {
	db, err := NewBadgerDB(logger, config)
	if err != nil {
		return nil, err
	}

	manager := &Manager{
		db:           db,
		items:        NewItemStorage(db, logger),
		notes:        NewNoteStorage(db, logger),
		dependencies: NewDependencyStorage(db, logger),
		transitions:  NewTransitionStorage(db, logger),
		logger:       logger,
	}

	logger.Info().Str("path", config.Path).Msg("Badger storage manager initialized")

	return manager, nil
}

// Items returns the work item storage interface.
func (m *Manager) Items() interfaces.ItemStorage {
	return m.items
}

// Notes returns the note storage interface.
func (m *Manager) Notes() interfaces.NoteStorage {
	return m.notes
}

// Dependencies returns the dependency storage interface.
func (m *Manager) Dependencies() interfaces.DependencyStorage {
	return m.dependencies
}

// Transitions returns the role-transition log storage interface.
func (m *Manager) Transitions() interfaces.TransitionStorage {
	return m.transitions
}

// Update runs fn in a single serialized read-write transaction.
func (m *Manager) Update(ctx context.Context, fn func(tx *badgerdb.Txn) error) error {
	return m.db.Update(ctx, fn)
}

// View runs fn against the last committed snapshot.
func (m *Manager) View(ctx context.Context, fn func(tx *badgerdb.Txn) error) error {
	return m.db.View(ctx, fn)
}

// Close closes the database connection.
func (m *Manager) Close() error {
	if m.db != nil {
		return m.db.Close()
	}
	return nil
}
