// Package workflow implements the role-based state machine: flow
// selection, trigger resolution, gate enforcement and upward cascades.
package workflow

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"gopkg.in/yaml.v3"

	"github.com/ternarybob/trellis/internal/common"
	"github.com/ternarybob/trellis/internal/models"
)

// ConfigFileName is the workflow file under <CONFIG_DIR>/.workflow/.
const ConfigFileName = "config.yaml"

// WorkflowDirName is the configuration subdirectory.
const WorkflowDirName = ".workflow"

// Loader caches the parsed workflow configuration. Snapshots are
// copy-on-reload: callers receive an immutable pointer valid for the
// duration of a single call. Reload failures keep the last good config; a
// missing or unparsable file at startup falls back to the bundled default.
type Loader struct {
	path     string
	ttl      time.Duration
	logger   arbor.ILogger
	mu       sync.RWMutex
	cached   *models.WorkflowConfig
	loadedAt time.Time
}

// NewLoader creates the loader and performs the initial load.
func NewLoader(config *common.Config, logger arbor.ILogger) *Loader {
	l := &Loader{
		path:   filepath.Join(config.ResolveConfigDir(), WorkflowDirName, ConfigFileName),
		ttl:    config.Workflow.ReloadTTL,
		logger: logger,
	}

	loaded, err := loadFile(l.path)
	if err != nil {
		logger.Warn().Err(err).Str("path", l.path).Msg("Workflow config unavailable, using bundled defaults")
		loaded = DefaultWorkflowConfig()
	}
	l.cached = loaded
	l.loadedAt = time.Now()
	return l
}

// DefaultWorkflowConfig is the bundled fallback used when no workflow file
// is present: a single linear flow plus the emergency and cancel statuses.
func DefaultWorkflowConfig() *models.WorkflowConfig {
	return &models.WorkflowConfig{
		Flows: []models.Flow{
			{
				Name:      "default",
				Sequence:  []string{"pending", "in-progress", "completed"},
				Terminal:  []string{"completed", models.StatusCancelled},
				Emergency: []string{"blocked", models.StatusOnHold},
			},
		},
		StatusRoles: map[string]models.Role{
			"pending":              models.RoleQueue,
			"in-progress":          models.RoleWork,
			"completed":            models.RoleTerminal,
			models.StatusCancelled: models.RoleTerminal,
			"blocked":              models.RoleBlocked,
			models.StatusOnHold:    models.RoleBlocked,
		},
		AutoCascade: models.CascadeSettings{
			Enabled:  true,
			MaxDepth: 3,
		},
	}
}

func loadFile(path string) (*models.WorkflowConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read workflow config: %w", err)
	}
	var config models.WorkflowConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse workflow config: %w", err)
	}
	if config.AutoCascade.MaxDepth == 0 {
		config.AutoCascade.MaxDepth = 3
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid workflow config: %w", err)
	}
	return &config, nil
}

// Config returns the current workflow snapshot, reloading when the TTL has
// expired.
func (l *Loader) Config() *models.WorkflowConfig {
	l.mu.RLock()
	if time.Since(l.loadedAt) < l.ttl {
		cached := l.cached
		l.mu.RUnlock()
		return cached
	}
	l.mu.RUnlock()

	l.mu.Lock()
	defer l.mu.Unlock()
	if time.Since(l.loadedAt) >= l.ttl {
		if loaded, err := loadFile(l.path); err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				l.logger.Warn().Err(err).Msg("Workflow reload failed, keeping previous config")
			}
		} else {
			l.cached = loaded
		}
		l.loadedAt = time.Now()
	}
	return l.cached
}

// Invalidate forces the next Config call to reload from disk.
func (l *Loader) Invalidate() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.loadedAt = time.Time{}
}

// FlowNames returns the names of the loaded flows in configuration order.
func (l *Loader) FlowNames() []string {
	cfg := l.Config()
	names := make([]string, len(cfg.Flows))
	for i, f := range cfg.Flows {
		names[i] = f.Name
	}
	return names
}
