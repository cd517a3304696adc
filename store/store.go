// Package store persists calibration data between runs: per-pump plunger
// offset corrections and the last probed chain length per bus. The data
// lives in a single bbolt file, so a power-cycled rig comes back with its
// calibrations intact.
package store

import (
	"fmt"
	"strconv"
	"time"

	bolt "go.etcd.io/bbolt"
)

const (
	calibrationBucket = "calibration"

	offsetPrefix = "offset/"
	chainPrefix  = "chain/"
)

// Store is a bbolt-backed calibration store.
type Store struct {
	db *bolt.DB
}

// Open opens (or creates) the store at path.
func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(calibrationBucket))
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: init %s: %w", path, err)
	}

	return &Store{db: db}, nil
}

// OffsetSteps returns the stored plunger offset for a pump key. ok is false
// when no calibration is stored.
func (s *Store) OffsetSteps(key string) (steps int, ok bool, err error) {
	return s.getInt(offsetPrefix + key)
}

// PutOffsetSteps stores the plunger offset for a pump key.
func (s *Store) PutOffsetSteps(key string, steps int) error {
	return s.putInt(offsetPrefix+key, steps)
}

// ChainLength returns the last probed pump count for a bus name. ok is
// false when the bus was never probed.
func (s *Store) ChainLength(name string) (n int, ok bool, err error) {
	return s.getInt(chainPrefix + name)
}

// PutChainLength stores the probed pump count for a bus name.
func (s *Store) PutChainLength(name string, n int) error {
	return s.putInt(chainPrefix+name, n)
}

// Close releases the database file.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) getInt(key string) (int, bool, error) {
	var (
		value int
		found bool
	)

	err := s.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket([]byte(calibrationBucket)).Get([]byte(key))
		if raw == nil {
			return nil
		}

		n, err := strconv.Atoi(string(raw))
		if err != nil {
			return fmt.Errorf("store: corrupt value for %s: %w", key, err)
		}

		value = n
		found = true

		return nil
	})

	return value, found, err
}

func (s *Store) putInt(key string, value int) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(calibrationBucket)).Put([]byte(key), []byte(strconv.Itoa(value)))
	})
}
