// Package spool provides the append-only scratch store used to defer
// relationship emission during CycloneDX to SPDX conversion. Records are
// spooled to a private bolt database under a collision-resistant temp path
// and replayed in insertion order once the element stream is exhausted.
// The file is removed on Close, on every exit path.
package spool

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/samber/oops"
	bolt "go.etcd.io/bbolt"

	"github.com/sbomtools/sbomshift/pkg/types"
)

const relationshipBucket = "relationships"

// Spool is a single-invocation scratch store. It is not safe for concurrent
// use, matching the synchronous pipeline it serves.
type Spool struct {
	db   *bolt.DB
	path string
}

// New creates a spool file in dir, or the system temp directory when dir is
// empty.
func New(dir string) (*Spool, error) {
	if dir == "" {
		dir = os.TempDir()
	}
	path := filepath.Join(dir, fmt.Sprintf("sbomshift-spool-%s.db", uuid.NewString()))
	eb := oops.Code("io_error").With("file_path", path)

	db, err := bolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, eb.Wrapf(err, "failed to open spool")
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(relationshipBucket))
		return err
	})
	if err != nil {
		db.Close()
		os.Remove(path)
		return nil, eb.Wrapf(err, "failed to create spool bucket")
	}

	return &Spool{db: db, path: path}, nil
}

// Path returns the backing file path.
func (s *Spool) Path() string { return s.path }

// Append stores one relationship record at the end of the spool.
func (s *Spool) Append(rel types.Relationship) error {
	eb := oops.Code("io_error").With("file_path", s.path)

	value, err := json.Marshal(rel)
	if err != nil {
		return eb.Wrapf(err, "marshal error")
	}

	err = s.db.Update(func(tx *bolt.Tx) error {
		bkt := tx.Bucket([]byte(relationshipBucket))
		seq, err := bkt.NextSequence()
		if err != nil {
			return err
		}
		var key [8]byte
		binary.BigEndian.PutUint64(key[:], seq)
		return bkt.Put(key[:], value)
	})
	if err != nil {
		return eb.Wrapf(err, "spool append error")
	}
	return nil
}

// Replay visits every spooled record in insertion order.
func (s *Spool) Replay(fn func(rel types.Relationship) error) error {
	eb := oops.Code("io_error").With("file_path", s.path)

	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket([]byte(relationshipBucket)).Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var rel types.Relationship
			if err := json.Unmarshal(v, &rel); err != nil {
				return err
			}
			if err := fn(rel); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return eb.Wrapf(err, "spool replay error")
	}
	return nil
}

// Len returns the number of spooled records.
func (s *Spool) Len() int {
	var n int
	s.db.View(func(tx *bolt.Tx) error {
		n = tx.Bucket([]byte(relationshipBucket)).Stats().KeyN
		return nil
	})
	return n
}

// Close closes and deletes the spool file. Safe to call more than once.
func (s *Spool) Close() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	if rmErr := os.Remove(s.path); rmErr != nil && !os.IsNotExist(rmErr) && err == nil {
		err = rmErr
	}
	if err != nil {
		return oops.Code("io_error").With("file_path", s.path).Wrapf(err, "spool close error")
	}
	return nil
}
