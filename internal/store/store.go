// Package store persists all coordinator state in a BoltDB database.
// Resources, users, permissions, updates, and alerts are stored as JSON
// documents, one bucket per collection.
package store

import (
	"encoding/json"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/convoy-ops/convoy/internal/oops"
	"github.com/convoy-ops/convoy/internal/types"
)

var (
	bucketUsers       = []byte("users")
	bucketAPIKeys     = []byte("api_keys")
	bucketUserGroups  = []byte("user_groups")
	bucketPermissions = []byte("permissions")
	bucketUpdates     = []byte("updates")
	bucketAlerts      = []byte("alerts")
	bucketTags        = []byte("tags")
	bucketVariables   = []byte("variables")
	bucketStats       = []byte("stats")
)

// resourceBucket returns the bucket name holding one resource type.
func resourceBucket(t types.ResourceType) []byte {
	return []byte("resources_" + string(t))
}

// Store wraps a BoltDB database for coordinator persistence.
type Store struct {
	db *bolt.DB
}

// Open creates or opens the database at path and ensures every bucket
// exists.
func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt db: %w", err)
	}

	buckets := [][]byte{
		bucketUsers, bucketAPIKeys, bucketUserGroups, bucketPermissions,
		bucketUpdates, bucketAlerts, bucketTags, bucketVariables, bucketStats,
	}
	for _, t := range types.AllResourceTypes() {
		buckets = append(buckets, resourceBucket(t))
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, b := range buckets {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create buckets: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// putJSON marshals v and stores it under key in bucket.
func (s *Store) putJSON(bucket []byte, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s record: %w", bucket, err)
	}
	err = s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucket).Put([]byte(key), data)
	})
	return oops.Wrap(oops.Storage, err, "put %s/%s", bucket, key)
}

// getJSON loads key from bucket into out. Returns NotFound if absent.
func (s *Store) getJSON(bucket []byte, key string, out any) error {
	var data []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucket).Get([]byte(key))
		if v != nil {
			data = make([]byte, len(v))
			copy(data, v)
		}
		return nil
	})
	if err != nil {
		return oops.Wrap(oops.Storage, err, "get %s/%s", bucket, key)
	}
	if data == nil {
		return oops.New(oops.NotFound, "%s: no record %q", bucket, key)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return oops.Wrap(oops.Storage, err, "decode %s/%s", bucket, key)
	}
	return nil
}

// deleteKey removes key from bucket. Missing keys are not an error.
func (s *Store) deleteKey(bucket []byte, key string) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucket).Delete([]byte(key))
	})
	return oops.Wrap(oops.Storage, err, "delete %s/%s", bucket, key)
}

// forEach decodes every record in bucket and invokes fn. fn returning
// false stops iteration.
func forEach[T any](s *Store, bucket []byte, fn func(T) bool) error {
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucket).ForEach(func(k, v []byte) error {
			var rec T
			if err := json.Unmarshal(v, &rec); err != nil {
				return nil // skip malformed record
			}
			if !fn(rec) {
				return errStopIteration
			}
			return nil
		})
	})
	if err == errStopIteration {
		return nil
	}
	return oops.Wrap(oops.Storage, err, "scan %s", bucket)
}

var errStopIteration = fmt.Errorf("stop iteration")
