package badger

import (
	"context"
	"fmt"
	"strings"

	badgerdb "github.com/dgraph-io/badger/v4"
	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/ternarybob/trellis/internal/interfaces"
	"github.com/ternarybob/trellis/internal/models"
)

// ItemStorage implements the ItemStorage interface for Badger.
type ItemStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewItemStorage creates a new ItemStorage instance.
func NewItemStorage(db *BadgerDB, logger arbor.ILogger) interfaces.ItemStorage {
	return &ItemStorage{
		db:     db,
		logger: logger,
	}
}

func (s *ItemStorage) Get(ctx context.Context, id string) (*models.WorkItem, error) {
	var item models.WorkItem
	if err := s.db.Store().Get(id, &item); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, models.NewNotFoundError("work item", id)
		}
		return nil, models.NewDatabaseError(fmt.Errorf("failed to get item: %w", err))
	}
	return &item, nil
}

func (s *ItemStorage) GetAll(ctx context.Context) ([]*models.WorkItem, error) {
	var items []models.WorkItem
	if err := s.db.Store().Find(&items, badgerhold.Where("ID").Ne("").SortBy("CreatedAt")); err != nil {
		return nil, models.NewDatabaseError(fmt.Errorf("failed to list items: %w", err))
	}
	return toPointers(items), nil
}

func (s *ItemStorage) GetByParent(ctx context.Context, parentID string) ([]*models.WorkItem, error) {
	var items []models.WorkItem
	if err := s.db.Store().Find(&items, badgerhold.Where("ParentID").Eq(parentID).Index("ParentID").SortBy("CreatedAt")); err != nil {
		return nil, models.NewDatabaseError(fmt.Errorf("failed to get children: %w", err))
	}
	return toPointers(items), nil
}

func (s *ItemStorage) GetRoots(ctx context.Context) ([]*models.WorkItem, error) {
	return s.GetByParent(ctx, "")
}

func (s *ItemStorage) GetByRole(ctx context.Context, role models.Role) ([]*models.WorkItem, error) {
	var items []models.WorkItem
	if err := s.db.Store().Find(&items, badgerhold.Where("Role").Eq(role).Index("Role").SortBy("CreatedAt")); err != nil {
		return nil, models.NewDatabaseError(fmt.Errorf("failed to get items by role: %w", err))
	}
	return toPointers(items), nil
}

func (s *ItemStorage) GetByStatus(ctx context.Context, status string) ([]*models.WorkItem, error) {
	var items []models.WorkItem
	if err := s.db.Store().Find(&items, badgerhold.Where("Status").Eq(status).Index("Status").SortBy("CreatedAt")); err != nil {
		return nil, models.NewDatabaseError(fmt.Errorf("failed to get items by status: %w", err))
	}
	return toPointers(items), nil
}

// Search combines indexed role/status/parent filters with in-memory text
// and tag matching. BadgerHold has no substring operator, so free-text and
// tag filters are applied after the indexed fetch.
func (s *ItemStorage) Search(ctx context.Context, text string, tags []string, role models.Role, status, parentID string) ([]*models.WorkItem, error) {
	query := badgerhold.Where("ID").Ne("")
	if role != "" {
		query = query.And("Role").Eq(role)
	}
	if status != "" {
		query = query.And("Status").Eq(status)
	}
	if parentID != "" {
		query = query.And("ParentID").Eq(parentID)
	}

	var items []models.WorkItem
	if err := s.db.Store().Find(&items, query.SortBy("CreatedAt")); err != nil {
		return nil, models.NewDatabaseError(fmt.Errorf("failed to search items: %w", err))
	}

	needle := strings.ToLower(strings.TrimSpace(text))
	var result []*models.WorkItem
	for i := range items {
		item := &items[i]
		if needle != "" {
			haystack := strings.ToLower(item.Title + " " + item.Description)
			if !strings.Contains(haystack, needle) {
				continue
			}
		}
		if !hasAllTags(item, tags) {
			continue
		}
		result = append(result, item)
	}
	return result, nil
}

func (s *ItemStorage) Count(ctx context.Context) (int, error) {
	count, err := s.db.Store().Count(&models.WorkItem{}, nil)
	if err != nil {
		return 0, models.NewDatabaseError(fmt.Errorf("failed to count items: %w", err))
	}
	return int(count), nil
}

func (s *ItemStorage) CountByRole(ctx context.Context) (map[models.Role]int, error) {
	counts := make(map[models.Role]int)
	for _, role := range []models.Role{models.RoleQueue, models.RoleWork, models.RoleReview, models.RoleBlocked, models.RoleTerminal} {
		count, err := s.db.Store().Count(&models.WorkItem{}, badgerhold.Where("Role").Eq(role).Index("Role"))
		if err != nil {
			return nil, models.NewDatabaseError(fmt.Errorf("failed to count items by role: %w", err))
		}
		counts[role] = int(count)
	}
	return counts, nil
}

func (s *ItemStorage) Upsert(ctx context.Context, item *models.WorkItem) error {
	if item.ID == "" {
		return models.NewValidationError("item ID is required")
	}
	if err := s.db.Store().Upsert(item.ID, item); err != nil {
		return models.NewDatabaseError(fmt.Errorf("failed to save item: %w", err))
	}
	return nil
}

func (s *ItemStorage) TxGet(tx *badgerdb.Txn, id string) (*models.WorkItem, error) {
	var item models.WorkItem
	if err := s.db.Store().TxGet(tx, id, &item); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, models.NewNotFoundError("work item", id)
		}
		return nil, models.NewDatabaseError(fmt.Errorf("failed to get item: %w", err))
	}
	return &item, nil
}

func (s *ItemStorage) TxGetByParent(tx *badgerdb.Txn, parentID string) ([]*models.WorkItem, error) {
	var items []models.WorkItem
	if err := s.db.Store().TxFind(tx, &items, badgerhold.Where("ParentID").Eq(parentID).Index("ParentID").SortBy("CreatedAt")); err != nil {
		return nil, models.NewDatabaseError(fmt.Errorf("failed to get children: %w", err))
	}
	return toPointers(items), nil
}

func (s *ItemStorage) TxUpsert(tx *badgerdb.Txn, item *models.WorkItem) error {
	if err := s.db.Store().TxUpsert(tx, item.ID, item); err != nil {
		return models.NewDatabaseError(fmt.Errorf("failed to save item: %w", err))
	}
	return nil
}

func (s *ItemStorage) TxInsert(tx *badgerdb.Txn, item *models.WorkItem) error {
	if err := s.db.Store().TxInsert(tx, item.ID, item); err != nil {
		if err == badgerhold.ErrKeyExists {
			return models.NewConflictError(fmt.Sprintf("work item already exists: %s", item.ID), map[string]any{"id": item.ID})
		}
		return models.NewDatabaseError(fmt.Errorf("failed to insert item: %w", err))
	}
	return nil
}

func (s *ItemStorage) TxDelete(tx *badgerdb.Txn, id string) error {
	if err := s.db.Store().TxDelete(tx, id, &models.WorkItem{}); err != nil {
		if err == badgerhold.ErrNotFound {
			return models.NewNotFoundError("work item", id)
		}
		return models.NewDatabaseError(fmt.Errorf("failed to delete item: %w", err))
	}
	return nil
}

func hasAllTags(item *models.WorkItem, tags []string) bool {
	for _, tag := range tags {
		if strings.TrimSpace(tag) == "" {
			continue
		}
		if !item.HasTag(tag) {
			return false
		}
	}
	return true
}

func toPointers(items []models.WorkItem) []*models.WorkItem {
	result := make([]*models.WorkItem, len(items))
	for i := range items {
		result[i] = &items[i]
	}
	return result
}
