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

// NoteStorage implements the NoteStorage interface for Badger. Notes are
// stored under the composite (item_id, key) store key, which makes the
// uniqueness invariant structural.
type NoteStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewNoteStorage creates a new NoteStorage instance.
func NewNoteStorage(db *BadgerDB, logger arbor.ILogger) interfaces.NoteStorage {
	return &NoteStorage{
		db:     db,
		logger: logger,
	}
}

func (s *NoteStorage) Get(ctx context.Context, itemID, key string) (*models.Note, error) {
	var note models.Note
	if err := s.db.Store().Get(models.NoteKey(itemID, key), &note); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, models.NewNotFoundError("note", models.NoteKey(itemID, key))
		}
		return nil, models.NewDatabaseError(fmt.Errorf("failed to get note: %w", err))
	}
	return &note, nil
}

func (s *NoteStorage) GetByItem(ctx context.Context, itemID string) ([]*models.Note, error) {
	var notes []models.Note
	if err := s.db.Store().Find(&notes, badgerhold.Where("ItemID").Eq(itemID).Index("ItemID").SortBy("CreatedAt")); err != nil {
		return nil, models.NewDatabaseError(fmt.Errorf("failed to get notes: %w", err))
	}
	return notesToPointers(notes), nil
}

func (s *NoteStorage) Count(ctx context.Context) (int, error) {
	count, err := s.db.Store().Count(&models.Note{}, nil)
	if err != nil {
		return 0, models.NewDatabaseError(fmt.Errorf("failed to count notes: %w", err))
	}
	return int(count), nil
}

func (s *NoteStorage) TxGet(tx *badgerdb.Txn, itemID, key string) (*models.Note, error) {
	var note models.Note
	if err := s.db.Store().TxGet(tx, models.NoteKey(itemID, key), &note); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, models.NewNotFoundError("note", models.NoteKey(itemID, key))
		}
		return nil, models.NewDatabaseError(fmt.Errorf("failed to get note: %w", err))
	}
	return &note, nil
}

func (s *NoteStorage) TxGetByItem(tx *badgerdb.Txn, itemID string) ([]*models.Note, error) {
	var notes []models.Note
	if err := s.db.Store().TxFind(tx, &notes, badgerhold.Where("ItemID").Eq(itemID).Index("ItemID").SortBy("CreatedAt")); err != nil {
		return nil, models.NewDatabaseError(fmt.Errorf("failed to get notes: %w", err))
	}
	return notesToPointers(notes), nil
}

func (s *NoteStorage) TxUpsert(tx *badgerdb.Txn, note *models.Note) error {
	if err := note.Validate(); err != nil {
		return models.NewValidationError("%v", err)
	}
	if err := s.db.Store().TxUpsert(tx, models.NoteKey(note.ItemID, note.Key), note); err != nil {
		return models.NewDatabaseError(fmt.Errorf("failed to save note: %w", err))
	}
	return nil
}

func (s *NoteStorage) TxDelete(tx *badgerdb.Txn, itemID, key string) error {
	if err := s.db.Store().TxDelete(tx, models.NoteKey(itemID, key), &models.Note{}); err != nil {
		if err == badgerhold.ErrNotFound {
			return models.NewNotFoundError("note", models.NoteKey(itemID, key))
		}
		return models.NewDatabaseError(fmt.Errorf("failed to delete note: %w", err))
	}
	return nil
}

func (s *NoteStorage) TxDeleteByItem(tx *badgerdb.Txn, itemID string) error {
	if err := s.db.Store().TxDeleteMatching(tx, &models.Note{}, badgerhold.Where("ItemID").Eq(itemID).Index("ItemID")); err != nil {
		return models.NewDatabaseError(fmt.Errorf("failed to delete notes for item: %w", err))
	}
	return nil
}

func notesToPointers(notes []models.Note) []*models.Note {
	result := make([]*models.Note, len(notes))
	for i := range notes {
		result[i] = &notes[i]
	}
	return result
}
