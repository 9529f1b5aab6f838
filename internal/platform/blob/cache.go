package blob

import (
	"errors"
	"fmt"
	"os"
	"time"

	"hma/internal/platform/logger"

	"github.com/dgraph-io/badger/v4"
)

// CacheConfig configures the local badger cache
type CacheConfig struct {
	// Dir is the on-disk location; ignored when InMemory is set
	Dir      string
	InMemory bool
	// TTL bounds how long an entry survives without being rewritten, 0 keeps forever
	TTL time.Duration
}

// Cache is a local on-disk copy of index payloads keyed by build checkpoint
// so a restarted matcher can skip the download from the primary store
type Cache struct {
	db  *badger.DB
	ttl time.Duration
}

type badgerLog struct{ l logger.Logger }

func (b badgerLog) Errorf(f string, a ...any)   { b.l.Error().Msgf(f, a...) }
func (b badgerLog) Warningf(f string, a ...any) { b.l.Warn().Msgf(f, a...) }
func (b badgerLog) Infof(f string, a ...any)    { b.l.Debug().Msgf(f, a...) }
func (b badgerLog) Debugf(f string, a ...any)   { b.l.Trace().Msgf(f, a...) }

// OpenCache opens or creates the badger database
func OpenCache(cfg CacheConfig) (*Cache, error) {
	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if cfg.Dir == "" {
			return nil, errors.New("blob: cache dir is required")
		}
		if err := os.MkdirAll(cfg.Dir, 0o750); err != nil {
			return nil, fmt.Errorf("blob: create cache dir %s: %w", cfg.Dir, err)
		}
		opts = badger.DefaultOptions(cfg.Dir)
	}
	opts = opts.WithNumVersionsToKeep(1).
		WithSyncWrites(false).
		WithLogger(badgerLog{l: *logger.Named("blobcache")})

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("blob: open cache: %w", err)
	}
	return &Cache{db: db, ttl: cfg.TTL}, nil
}

// Get returns the cached bytes or ErrNotFound
func (c *Cache) Get(key string) ([]byte, error) {
	var out []byte
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		out, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	return out, err
}

// Put stores data under key
func (c *Cache) Put(key string, data []byte) error {
	return c.db.Update(func(txn *badger.Txn) error {
		e := badger.NewEntry([]byte(key), data)
		if c.ttl > 0 {
			e = e.WithTTL(c.ttl)
		}
		return txn.SetEntry(e)
	})
}

// DropPrefix removes every key starting with prefix
func (c *Cache) DropPrefix(prefix string) error {
	return c.db.DropPrefix([]byte(prefix))
}

// Close flushes and closes the database
func (c *Cache) Close() error { return c.db.Close() }
