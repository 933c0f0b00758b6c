package badger

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"sync"
	"time"

	badgerdb "github.com/dgraph-io/badger/v3"
	"go.uber.org/zap"

	"github.com/merklevault/merklevault/pkg/anchor"
)

// Key prefixes for namespacing
const (
	keyPrefixAnchor      = "anchor:"
	keySchemaVersion     = "metadata:schema_version"
	currentSchemaVersion = "v1"
)

// BadgerStore is a durable, disk-based anchor store. This is the default
// backend for the client: the whole point of the anchor is that it outlives
// the process that uploaded the batch.
type BadgerStore struct {
	db       *badgerdb.DB
	logger   *zap.Logger
	gcCancel context.CancelFunc
	gcWg     sync.WaitGroup
	mu       sync.RWMutex
	closed   bool
}

// NewBadgerStore opens (or creates) a Badger database at dataPath.
// SyncWrites is enabled: losing an anchor to a crash means losing the
// ability to distrust the server. A background goroutine runs value-log GC.
func NewBadgerStore(dataPath string, logger *zap.Logger) (*BadgerStore, error) {
	absPath, err := filepath.Abs(dataPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve absolute path: %w", err)
	}

	opts := badgerdb.DefaultOptions(absPath)
	opts.Logger = &badgerLoggerAdapter{logger: logger}
	opts.SyncWrites = true
	opts.CompactL0OnClose = true
	opts.NumVersionsToKeep = 1

	db, err := badgerdb.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger database at %s: %w", absPath, err)
	}

	bs := &BadgerStore{
		db:     db,
		logger: logger,
	}

	if err := bs.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	bs.gcCancel = cancel
	bs.gcWg.Add(1)
	go bs.runGC(ctx)

	logger.Sugar().Infow("Badger anchor store initialized", "path", absPath)

	return bs, nil
}

// initSchema initializes or validates the schema version
func (b *BadgerStore) initSchema() error {
	return b.db.Update(func(txn *badgerdb.Txn) error {
		item, err := txn.Get([]byte(keySchemaVersion))
		if err == badgerdb.ErrKeyNotFound {
			return txn.Set([]byte(keySchemaVersion), []byte(currentSchemaVersion))
		}
		if err != nil {
			return fmt.Errorf("failed to read schema version: %w", err)
		}

		var existingVersion string
		err = item.Value(func(val []byte) error {
			existingVersion = string(val)
			return nil
		})
		if err != nil {
			return fmt.Errorf("failed to read schema version value: %w", err)
		}

		if existingVersion != currentSchemaVersion {
			return fmt.Errorf("unsupported schema version: %s (expected: %s)", existingVersion, currentSchemaVersion)
		}
		return nil
	})
}

// runGC runs periodic value-log garbage collection
func (b *BadgerStore) runGC(ctx context.Context) {
	defer b.gcWg.Done()

	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// Rerun until GC finds nothing to collect.
			for {
				if err := b.db.RunValueLogGC(0.5); err != nil {
					break
				}
			}
		}
	}
}

// SaveAnchor persists an anchor.
func (b *BadgerStore) SaveAnchor(a *anchor.Anchor) error {
	if a == nil {
		return fmt.Errorf("cannot save nil Anchor")
	}
	if a.BatchID == "" {
		return fmt.Errorf("cannot save Anchor with empty batch ID")
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return fmt.Errorf("anchor store is closed")
	}

	data, err := anchor.MarshalAnchor(a)
	if err != nil {
		return fmt.Errorf("failed to marshal Anchor: %w", err)
	}

	key := []byte(keyPrefixAnchor + a.BatchID)
	err = b.db.Update(func(txn *badgerdb.Txn) error {
		return txn.Set(key, data)
	})
	if err != nil {
		return fmt.Errorf("failed to save Anchor: %w", err)
	}

	b.logger.Sugar().Debugw("Saved anchor", "batch_id", a.BatchID, "merkle_root", a.RootHash)
	return nil
}

// LoadAnchor retrieves an anchor by batch ID.
func (b *BadgerStore) LoadAnchor(batchID string) (*anchor.Anchor, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil, fmt.Errorf("anchor store is closed")
	}

	var data []byte
	err := b.db.View(func(txn *badgerdb.Txn) error {
		item, err := txn.Get([]byte(keyPrefixAnchor + batchID))
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if err == badgerdb.ErrKeyNotFound {
		return nil, nil // Not found is not an error
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load Anchor: %w", err)
	}

	return anchor.UnmarshalAnchor(data)
}

// LatestAnchor returns the most recently created anchor.
func (b *BadgerStore) LatestAnchor() (*anchor.Anchor, error) {
	anchors, err := b.ListAnchors()
	if err != nil {
		return nil, err
	}
	if len(anchors) == 0 {
		return nil, nil
	}
	return anchors[len(anchors)-1], nil
}

// ListAnchors returns all anchors sorted by creation time.
func (b *BadgerStore) ListAnchors() ([]*anchor.Anchor, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil, fmt.Errorf("anchor store is closed")
	}

	result := make([]*anchor.Anchor, 0)
	err := b.db.View(func(txn *badgerdb.Txn) error {
		opts := badgerdb.DefaultIteratorOptions
		opts.Prefix = []byte(keyPrefixAnchor)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				a, err := anchor.UnmarshalAnchor(val)
				if err != nil {
					return err
				}
				result = append(result, a)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list Anchors: %w", err)
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].BatchID < result[j].BatchID
		}
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}

// DeleteAnchor removes an anchor. Idempotent.
func (b *BadgerStore) DeleteAnchor(batchID string) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return fmt.Errorf("anchor store is closed")
	}

	err := b.db.Update(func(txn *badgerdb.Txn) error {
		return txn.Delete([]byte(keyPrefixAnchor + batchID))
	})
	if err != nil {
		return fmt.Errorf("failed to delete Anchor: %w", err)
	}
	return nil
}

// Close stops the GC goroutine and closes the database. Idempotent.
func (b *BadgerStore) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true

	b.gcCancel()
	b.gcWg.Wait()

	if err := b.db.Close(); err != nil {
		return fmt.Errorf("failed to close badger database: %w", err)
	}
	return nil
}

// HealthCheck verifies the store is operational.
func (b *BadgerStore) HealthCheck() error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return fmt.Errorf("anchor store is closed")
	}

	return b.db.View(func(txn *badgerdb.Txn) error {
		_, err := txn.Get([]byte(keySchemaVersion))
		if err != nil && err != badgerdb.ErrKeyNotFound {
			return fmt.Errorf("health check read failed: %w", err)
		}
		return nil
	})
}
