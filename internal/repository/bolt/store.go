// Package bolt is an embedded single-file store implementing the payment and claim repositories
// and the short-lived cache. It needs no external processes, which suits local runs and tests.
package bolt

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	boltdb "github.com/boltdb/bolt"

	"github.com/ryu-qqq/setof-commerce-sub021/pkg/cache"
)

var (
	bucketPayments      = []byte("payments")
	bucketClaims        = []byte("claims")
	bucketClaimActive   = []byte("claim_active")
	bucketClaimTracking = []byte("claim_tracking")
	bucketCache         = []byte("cache")
)

// Store wraps a BoltDB database. Bolt serializes write transactions, so the version check and the
// write of every Update happen atomically.
type Store struct {
	db  *boltdb.DB
	now func() time.Time
}

// Open opens (or creates) the database at path and ensures every bucket exists.
func Open(path string) (*Store, error) {
	db, err := boltdb.Open(path, 0600, &boltdb.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, err
	}

	err = db.Update(func(tx *boltdb.Tx) error {
		for _, name := range [][]byte{bucketPayments, bucketClaims, bucketClaimActive, bucketClaimTracking, bucketCache} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db, now: time.Now}, nil
}

// Close releases the database file lock.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping reports whether the database is still open.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.View(func(tx *boltdb.Tx) error { return nil })
}

type cacheEntry struct {
	Value     []byte    `json:"v"`
	ExpiresAt time.Time `json:"exp"`
}

func (e cacheEntry) expired(now time.Time) bool {
	return !e.ExpiresAt.IsZero() && now.After(e.ExpiresAt)
}

func (s *Store) expiry(ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return s.now().Add(ttl)
}

func (s *Store) SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	stored := false
	err := s.db.Update(func(tx *boltdb.Tx) error {
		b := tx.Bucket(bucketCache)
		if raw := b.Get([]byte(key)); raw != nil {
			var e cacheEntry
			if err := json.Unmarshal(raw, &e); err == nil && !e.expired(s.now()) {
				return nil
			}
		}
		data, err := json.Marshal(cacheEntry{Value: value, ExpiresAt: s.expiry(ttl)})
		if err != nil {
			return err
		}
		stored = true
		return b.Put([]byte(key), data)
	})
	return stored, err
}

func (s *Store) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	data, err := json.Marshal(cacheEntry{Value: value, ExpiresAt: s.expiry(ttl)})
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *boltdb.Tx) error {
		return tx.Bucket(bucketCache).Put([]byte(key), data)
	})
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	var e cacheEntry
	err := s.db.View(func(tx *boltdb.Tx) error {
		raw := tx.Bucket(bucketCache).Get([]byte(key))
		if raw == nil {
			return cache.ErrMiss
		}
		return json.Unmarshal(raw, &e)
	})
	if err != nil {
		return nil, err
	}
	if e.expired(s.now()) {
		return nil, cache.ErrMiss
	}
	return e.Value, nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	return s.db.Update(func(tx *boltdb.Tx) error {
		return tx.Bucket(bucketCache).Delete([]byte(key))
	})
}

// Incr increments a counter stored as a decimal string. The window starts on the first increment
// and is not extended by later ones.
func (s *Store) Incr(ctx context.Context, key string, window time.Duration) (int64, error) {
	var count int64
	err := s.db.Update(func(tx *boltdb.Tx) error {
		b := tx.Bucket(bucketCache)
		e := cacheEntry{ExpiresAt: s.expiry(window)}
		if raw := b.Get([]byte(key)); raw != nil {
			var cur cacheEntry
			if err := json.Unmarshal(raw, &cur); err == nil && !cur.expired(s.now()) {
				n, err := strconv.ParseInt(string(cur.Value), 10, 64)
				if err != nil {
					return err
				}
				count = n
				e.ExpiresAt = cur.ExpiresAt
			}
		}
		count++
		e.Value = []byte(strconv.FormatInt(count, 10))
		data, err := json.Marshal(e)
		if err != nil {
			return err
		}
		return b.Put([]byte(key), data)
	})
	return count, err
}

// PurgeExpired deletes expired cache entries and reports how many were removed. Reads already
// ignore them; purging only keeps the file from growing.
func (s *Store) PurgeExpired(ctx context.Context) (int, error) {
	removed := 0
	err := s.db.Update(func(tx *boltdb.Tx) error {
		b := tx.Bucket(bucketCache)
		now := s.now()
		var stale [][]byte
		err := b.ForEach(func(k, v []byte) error {
			var e cacheEntry
			if err := json.Unmarshal(v, &e); err != nil || e.expired(now) {
				stale = append(stale, append([]byte(nil), k...))
			}
			return nil
		})
		if err != nil {
			return err
		}
		for _, k := range stale {
			if err := b.Delete(k); err != nil {
				return err
			}
		}
		removed = len(stale)
		return nil
	})
	return removed, err
}
