// Package schema matches item tag sets to note schemas and produces the
// gate predicate for role transitions.
package schema

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	badgerdb "github.com/dgraph-io/badger/v4"
	"github.com/ternarybob/arbor"
	"gopkg.in/yaml.v3"

	"github.com/ternarybob/trellis/internal/common"
	"github.com/ternarybob/trellis/internal/interfaces"
	"github.com/ternarybob/trellis/internal/models"
)

// SchemasFileName is the schema file under <CONFIG_DIR>/.workflow/.
const SchemasFileName = "schemas.yaml"

// WorkflowDirName is the configuration subdirectory.
const WorkflowDirName = ".workflow"

// Service loads note schemas and answers gate questions. The cached config
// is refreshed at most every ReloadTTL; a failed reload keeps the previous
// snapshot. A missing or unparsable file at startup falls back to the
// bundled default (no schemas).
type Service struct {
	notes    interfaces.NoteStorage
	path     string
	ttl      time.Duration
	logger   arbor.ILogger
	mu       sync.RWMutex
	cached   *models.SchemaConfig
	loadedAt time.Time
}

// NewService creates the schema service and performs the initial load.
func NewService(notes interfaces.NoteStorage, config *common.Config, logger arbor.ILogger) *Service {
	s := &Service{
		notes:  notes,
		path:   filepath.Join(config.ResolveConfigDir(), WorkflowDirName, SchemasFileName),
		ttl:    config.Workflow.ReloadTTL,
		logger: logger,
	}

	loaded, err := loadFile(s.path)
	if err != nil {
		logger.Warn().Err(err).Str("path", s.path).Msg("Schema config unavailable, using bundled defaults")
		loaded = DefaultSchemaConfig()
	}
	s.cached = loaded
	s.loadedAt = time.Now()
	return s
}

// DefaultSchemaConfig is the bundled fallback: no schemas, so no required
// notes and every gate passes.
func DefaultSchemaConfig() *models.SchemaConfig {
	return &models.SchemaConfig{}
}

func loadFile(path string) (*models.SchemaConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read schema config: %w", err)
	}
	var config models.SchemaConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse schema config: %w", err)
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid schema config: %w", err)
	}
	return &config, nil
}

// Config returns the current schema snapshot, reloading when the TTL has
// expired. Reload failures keep the last good config.
func (s *Service) Config() *models.SchemaConfig {
	s.mu.RLock()
	if time.Since(s.loadedAt) < s.ttl {
		cached := s.cached
		s.mu.RUnlock()
		return cached
	}
	s.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if time.Since(s.loadedAt) >= s.ttl {
		if loaded, err := loadFile(s.path); err != nil {
			if !os.IsNotExist(err) {
				s.logger.Warn().Err(err).Msg("Schema reload failed, keeping previous config")
			}
		} else {
			s.cached = loaded
		}
		s.loadedAt = time.Now()
	}
	return s.cached
}

// Invalidate forces the next Config call to reload from disk.
func (s *Service) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loadedAt = time.Time{}
}

// SchemaCount returns the number of loaded schemas.
func (s *Service) SchemaCount() int {
	return len(s.Config().Schemas)
}

// SchemaForTags returns the merged, ordered entry list for a tag set.
// Every schema whose matchTags are a subset of the tags contributes;
// conflicting keys resolve first-wins in configuration order so the merge
// is deterministic.
func (s *Service) SchemaForTags(tags []string) []models.SchemaEntry {
	tagSet := make(map[string]bool, len(tags))
	for _, t := range tags {
		tagSet[t] = true
	}

	seen := make(map[string]bool)
	var entries []models.SchemaEntry
	for _, schema := range s.Config().Schemas {
		if !matchesAll(schema.MatchTags, tagSet) {
			continue
		}
		for _, entry := range schema.Entries {
			if seen[entry.Key] {
				continue
			}
			seen[entry.Key] = true
			entries = append(entries, entry)
		}
	}
	return entries
}

func matchesAll(matchTags []string, tagSet map[string]bool) bool {
	for _, t := range matchTags {
		if !tagSet[t] {
			return false
		}
	}
	return true
}

// RequiredForPhase returns the required entries for the given role phase.
func (s *Service) RequiredForPhase(tags []string, role models.Role) []models.SchemaEntry {
	var required []models.SchemaEntry
	for _, entry := range s.SchemaForTags(tags) {
		if entry.Required && entry.Phase == role {
			required = append(required, entry)
		}
	}
	return required
}

// ExpectedNotes augments the matched schema entries with whether each note
// exists on the item. Returns nil when no schema matches.
func (s *Service) ExpectedNotes(ctx context.Context, item *models.WorkItem) ([]models.ExpectedNote, error) {
	entries := s.SchemaForTags(item.TagSet())
	if len(entries) == 0 {
		return nil, nil
	}

	notes, err := s.notes.GetByItem(ctx, item.ID)
	if err != nil {
		return nil, err
	}
	existing := make(map[string]bool, len(notes))
	for _, n := range notes {
		existing[n.Key] = true
	}

	expected := make([]models.ExpectedNote, 0, len(entries))
	for _, entry := range entries {
		expected = append(expected, models.ExpectedNote{
			SchemaEntry: entry,
			Exists:      existing[entry.Key],
		})
	}
	return expected, nil
}

// MissingRequired returns the keys of required notes for the phase that do
// not exist on the item yet.
func (s *Service) MissingRequired(ctx context.Context, item *models.WorkItem, phase models.Role) ([]string, error) {
	required := s.RequiredForPhase(item.TagSet(), phase)
	if len(required) == 0 {
		return nil, nil
	}
	notes, err := s.notes.GetByItem(ctx, item.ID)
	if err != nil {
		return nil, err
	}
	return missingKeys(required, notes), nil
}

// TxMissingRequired is the in-transaction gate check used by the workflow
// engine and the cascade recursion.
func (s *Service) TxMissingRequired(tx *badgerdb.Txn, item *models.WorkItem, phase models.Role) ([]string, error) {
	required := s.RequiredForPhase(item.TagSet(), phase)
	if len(required) == 0 {
		return nil, nil
	}
	notes, err := s.notes.TxGetByItem(tx, item.ID)
	if err != nil {
		return nil, err
	}
	return missingKeys(required, notes), nil
}

func missingKeys(required []models.SchemaEntry, notes []*models.Note) []string {
	existing := make(map[string]bool, len(notes))
	for _, n := range notes {
		existing[n.Key] = true
	}
	var missing []string
	for _, entry := range required {
		if !existing[entry.Key] {
			missing = append(missing, entry.Key)
		}
	}
	return missing
}
