package browser

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	bolt "go.etcd.io/bbolt"

	"github.com/opd-ai/netplay/discovery"
)

var serversBucket = []byte("servers")

// ErrNotFound is returned for an unknown server ID.
var ErrNotFound = errors.New("server not found")

// Store keeps recently seen servers in a bbolt database so a browser can
// show them before discovery has answered.
type Store struct {
	db  *bolt.DB
	enc cbor.EncMode
}

// OpenStore opens or creates the database at path.
func OpenStore(path string) (*Store, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open server store %s: %w", path, err)
	}
	enc, err := cbor.EncOptions{Time: cbor.TimeRFC3339Nano}.EncMode()
	if err != nil {
		db.Close()
		return nil, err
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(serversBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("init server store: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"function": "OpenStore",
		"path":     path,
	}).Debug("Server store opened")
	return &Store{db: db, enc: enc}, nil
}

// Put saves desc, replacing any record with the same ID.
func (s *Store) Put(desc discovery.ServerDescription) error {
	data, err := s.enc.Marshal(desc)
	if err != nil {
		return fmt.Errorf("encode server %s: %w", desc.ID, err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(serversBucket).Put(desc.ID[:], data)
	})
}

// Get loads the record for id.
func (s *Store) Get(id uuid.UUID) (discovery.ServerDescription, error) {
	var desc discovery.ServerDescription
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(serversBucket).Get(id[:])
		if v == nil {
			return ErrNotFound
		}
		return cbor.Unmarshal(v, &desc)
	})
	return desc, err
}

// Delete removes the record for id. Deleting an unknown ID is not an error.
func (s *Store) Delete(id uuid.UUID) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(serversBucket).Delete(id[:])
	})
}

// Recent returns up to limit records, most recently seen first. A limit of
// zero or less returns every record. Undecodable records are skipped.
func (s *Store) Recent(limit int) ([]discovery.ServerDescription, error) {
	var out []discovery.ServerDescription
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(serversBucket).ForEach(func(k, v []byte) error {
			var desc discovery.ServerDescription
			if err := cbor.Unmarshal(v, &desc); err != nil {
				logrus.WithFields(logrus.Fields{
					"function": "Store.Recent",
					"key":      fmt.Sprintf("%x", k),
					"error":    err.Error(),
				}).Warn("Skipping corrupt server record")
				return nil
			}
			out = append(out, desc)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].LastSeen.After(out[j].LastSeen)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
