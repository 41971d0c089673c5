// Package resultcache memoizes expensive engine outputs in Badger.
//
// Entries are msgpack envelopes {payload, created_at} keyed by a
// deterministic string derived from an operation tag and every parameter
// that affects the result. There is no expiry or versioning: a present entry
// is always considered valid and returned unchanged, so a corpus change
// requires an explicit Clear. This is a documented limitation carried from
// the reference behavior, not an oversight; keying by a corpus-generation
// identifier is a possible extension.
//
// Concurrency: at most one computation runs per key. Concurrent callers for
// the same uncached key converge on a single in-flight computation via
// singleflight and all receive its result. The flight runs detached from the
// initiating caller's cancellation, so one caller timing out returns only
// that caller's error while the computation finishes for the remaining
// waiters. A failed computation writes nothing.
package resultcache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"
	"golang.org/x/sync/singleflight"
)

const keyPrefix = "cache:"

// ComputeFunc produces the payload for a cache miss.
type ComputeFunc func(ctx context.Context) ([]byte, error)

// entry is the stored envelope.
type entry struct {
	Payload   []byte    `msgpack:"payload"`
	CreatedAt time.Time `msgpack:"created_at"`
}

// Cache is a Badger-backed result cache with an in-flight herd guard.
type Cache struct {
	db    *badger.DB
	log   zerolog.Logger
	group singleflight.Group
}

// New creates a cache over db.
func New(db *badger.DB, log zerolog.Logger) *Cache {
	return &Cache{
		db:  db,
		log: log.With().Str("component", "resultcache").Logger(),
	}
}

// Key builds a deterministic cache key from an operation tag and its
// parameters, e.g. Key("network", paperID, "20") → "network_P123_20".
func Key(op string, params ...string) string {
	if len(params) == 0 {
		return op
	}
	return op + "_" + strings.Join(params, "_")
}

// ParamHash digests an unbounded parameter set (e.g. a filter list) into a
// short stable token for use inside a key.
func ParamHash(values ...string) string {
	h := sha256.Sum256([]byte(strings.Join(values, "\x00")))
	return hex.EncodeToString(h[:8])
}

// GetOrCompute returns the cached payload for key, or invokes compute,
// persists its result, and returns it. Store read/write failures are logged
// and the request proceeds uncached; they never fail the call.
func (c *Cache) GetOrCompute(ctx context.Context, key string, compute ComputeFunc) ([]byte, error) {
	if payload, ok := c.lookup(key); ok {
		return payload, nil
	}

	// The flight is shared by every concurrent caller, so it must not die
	// with whichever caller happened to start it: detach its context from
	// the initiator's cancellation while keeping the values.
	flightCtx := context.WithoutCancel(ctx)
	ch := c.group.DoChan(key, func() (interface{}, error) {
		payload, err := compute(flightCtx)
		if err != nil {
			return nil, err
		}
		c.store(key, payload)
		return payload, nil
	})

	select {
	case <-ctx.Done():
		// The in-flight computation keeps running for other waiters; this
		// caller just stops waiting.
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			// Drop the flight so the next caller retries instead of sharing
			// a stale failure.
			c.group.Forget(key)
			return nil, res.Err
		}
		return res.Val.([]byte), nil
	}
}

// Peek returns the stored payload and creation time for key without
// computing anything.
func (c *Cache) Peek(key string) ([]byte, time.Time, bool) {
	var e entry
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(keyPrefix + key))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return msgpack.Unmarshal(val, &e)
		})
	})
	if err != nil {
		return nil, time.Time{}, false
	}
	return e.Payload, e.CreatedAt, true
}

// Clear deletes every cache entry and forgets in-flight state, returning the
// number of entries removed. This is the only invalidation path.
func (c *Cache) Clear() (int, error) {
	var keys [][]byte
	err := c.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(keyPrefix)
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			keys = append(keys, it.Item().KeyCopy(nil))
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("resultcache: scan: %w", err)
	}

	wb := c.db.NewWriteBatch()
	defer wb.Cancel()
	for _, k := range keys {
		if err := wb.Delete(k); err != nil {
			return 0, fmt.Errorf("resultcache: delete: %w", err)
		}
	}
	if err := wb.Flush(); err != nil {
		return 0, fmt.Errorf("resultcache: flush: %w", err)
	}

	c.log.Info().Int("entries", len(keys)).Msg("result cache cleared")
	return len(keys), nil
}

// lookup reads one entry; any read failure is a logged miss.
func (c *Cache) lookup(key string) ([]byte, bool) {
	var e entry
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(keyPrefix + key))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return msgpack.Unmarshal(val, &e)
		})
	})
	switch {
	case err == nil:
		return e.Payload, true
	case errors.Is(err, badger.ErrKeyNotFound):
		return nil, false
	default:
		c.log.Warn().Err(err).Str("key", key).Msg("cache read failed, computing uncached")
		return nil, false
	}
}

// store persists one entry; a write failure is logged and swallowed so the
// computed payload still reaches the caller.
func (c *Cache) store(key string, payload []byte) {
	e := entry{Payload: payload, CreatedAt: time.Now().UTC()}
	data, err := msgpack.Marshal(&e)
	if err != nil {
		c.log.Warn().Err(err).Str("key", key).Msg("cache encode failed, result not cached")
		return
	}
	err = c.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(keyPrefix+key), data)
	})
	if err != nil {
		c.log.Warn().Err(err).Str("key", key).Msg("cache write failed, result not cached")
	}
}
