package stores

import (
	"time"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/PulseMetrics/pulsetrack-go/internal/infrastructure/observability/logging"
)

// BadgerStore is the persistent cache backend. It survives restarts, which
// keeps dedup short-memory and session lookups warm across deploys.
type BadgerStore struct {
	db     *badger.DB
	logger *logging.ChanneledLogger
}

// NewBadgerStore opens (or creates) the badger database at path.
func NewBadgerStore(path string, logger *logging.ChanneledLogger) (*BadgerStore, error) {
	opts := badger.DefaultOptions(path)
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}

	if logger != nil {
		logger.Cache().Info("Badger cache store opened", "path", path)
	}
	return &BadgerStore{db: db, logger: logger}, nil
}

// Get retrieves a value. Badger discards expired entries on read.
func (bs *BadgerStore) Get(tenantID, key string) ([]byte, bool) {
	var value []byte
	err := bs.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(tenantID + "/" + key))
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		return nil, false
	}
	return value, true
}

// Set stores a value. A zero ttl means the entry never expires.
func (bs *BadgerStore) Set(tenantID, key string, value []byte, ttl time.Duration) error {
	return bs.db.Update(func(txn *badger.Txn) error {
		entry := badger.NewEntry([]byte(tenantID+"/"+key), value)
		if ttl > 0 {
			entry = entry.WithTTL(ttl)
		}
		return txn.SetEntry(entry)
	})
}

// Delete removes a single entry.
func (bs *BadgerStore) Delete(tenantID, key string) error {
	return bs.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(tenantID + "/" + key))
	})
}

// PurgeTenant drops every entry belonging to one tenant.
func (bs *BadgerStore) PurgeTenant(tenantID string) error {
	prefix := []byte(tenantID + "/")

	var keys [][]byte
	err := bs.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			keys = append(keys, it.Item().KeyCopy(nil))
		}
		return nil
	})
	if err != nil {
		return err
	}

	wb := bs.db.NewWriteBatch()
	defer wb.Cancel()
	for _, k := range keys {
		if err := wb.Delete(k); err != nil {
			return err
		}
	}
	if err := wb.Flush(); err != nil {
		return err
	}

	if bs.logger != nil {
		bs.logger.Cache().Info("Tenant cache purged", "tenantId", tenantID, "entries", len(keys))
	}
	return nil
}

// Close flushes and closes the underlying database.
func (bs *BadgerStore) Close() error {
	return bs.db.Close()
}
