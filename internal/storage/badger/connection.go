package badger

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/cenkalti/backoff/v4"
	badgerdb "github.com/dgraph-io/badger/v4"
	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/ternarybob/trellis/internal/common"
	"github.com/ternarybob/trellis/internal/models"
)

// BadgerDB manages the Badger database connection and transaction
// boundaries. Writers serialize through writeSlot; readers run against the
// last committed snapshot and never block writers.
type BadgerDB struct {
	store     *badgerhold.Store
	logger    arbor.ILogger
	config    *common.StorageConfig
	writeSlot chan struct{}
}

// NewBadgerDB creates a new Badger database connection.
func NewBadgerDB(logger arbor.ILogger, config *common.StorageConfig) (*BadgerDB, error) {
	if err := os.MkdirAll(filepath.Dir(config.Path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	logger.Debug().Str("path", config.Path).Msg("Opening Badger database connection")

	options := badgerhold.DefaultOptions
	options.Dir = config.Path
	options.ValueDir = config.Path
	options.Logger = nil // Disable default badger logger to use arbor

	store, err := badgerhold.Open(options)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger database: %w", err)
	}

	logger.Debug().Str("path", config.Path).Msg("Badger database initialized")

	return &BadgerDB{
		store:     store,
		logger:    logger,
		config:    config,
		writeSlot: make(chan struct{}, 1),
	}, nil
}

// Store returns the underlying badgerhold store.
func (b *BadgerDB) Store() *badgerhold.Store {
	return b.store
}

// Update runs fn in a single read-write transaction. The write slot
// enforces single-writer discipline; badger version conflicts are retried
// with exponential backoff. If the write path cannot be acquired or a
// conflict persists past the retry window, ConcurrencyExhausted is
// returned and no partial state is committed.
func (b *BadgerDB) Update(ctx context.Context, fn func(tx *badgerdb.Txn) error) error {
	window := b.config.RetryWindow
	if window <= 0 {
		window = 5 * time.Second
	}

	select {
	case b.writeSlot <- struct{}{}:
		defer func() { <-b.writeSlot }()
	case <-time.After(window):
		return models.NewConcurrencyExhaustedError(fmt.Errorf("write slot not acquired within %s", window))
	case <-ctx.Done():
		return models.NewConcurrencyExhaustedError(ctx.Err())
	}

	op := func() error {
		err := b.store.Badger().Update(fn)
		if err == nil {
			return nil
		}
		if errors.Is(err, badgerdb.ErrConflict) {
			return err
		}
		return backoff.Permanent(err)
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 10 * time.Millisecond
	bo.MaxElapsedTime = window

	if err := backoff.Retry(op, backoff.WithContext(bo, ctx)); err != nil {
		if errors.Is(err, badgerdb.ErrConflict) {
			return models.NewConcurrencyExhaustedError(err)
		}
		return err
	}
	return nil
}

// View runs fn in a read-only transaction over the last committed snapshot.
func (b *BadgerDB) View(ctx context.Context, fn func(tx *badgerdb.Txn) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return b.store.Badger().View(fn)
}

// Close closes the database connection.
func (b *BadgerDB) Close() error {
	if b.store != nil {
		return b.store.Close()
	}
	return nil
}
