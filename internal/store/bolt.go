// Package store persists merged per-identity status records in a bbolt
// database. It implements job.StatusSink, so attaching it to a registry is
// enough to keep a durable history of every download's last known state.
package store

import (
	"encoding/json"
	"time"

	"go.etcd.io/bbolt"

	"github.com/mircov/lessongrab"
	"github.com/mircov/lessongrab/internal/job"
)

var Buckets = struct {
	Metadata []byte
	Statuses []byte
}{
	Metadata: []byte("__metadata__"),
	Statuses: []byte("statuses"),
}

var MetadataKeys = struct {
	Version []byte
}{
	Version: []byte("version"),
}

const currentVersion = 1

type StatusStore struct {
	db *bbolt.DB
	// now is swappable in tests so merged timestamps are deterministic.
	now func() time.Time
}

func Open(path string) (*StatusStore, error) {
	db, err := bbolt.Open(path, 0600, nil)
	if err != nil {
		return nil, err
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		metadata, err := tx.CreateBucketIfNotExists(Buckets.Metadata)
		if err != nil {
			return err
		}
		if _, err := tx.CreateBucketIfNotExists(Buckets.Statuses); err != nil {
			return err
		}

		var version int
		if versionBytes := metadata.Get(MetadataKeys.Version); versionBytes == nil {
			version = 0
		} else if err = json.Unmarshal(versionBytes, &version); err != nil {
			return err
		}

		// TODO: migrate older layouts once a version 2 exists

		if versionBytes, err := json.Marshal(currentVersion); err != nil {
			return err
		} else if err = metadata.Put(MetadataKeys.Version, versionBytes); err != nil {
			return err
		}

		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &StatusStore{db: db, now: time.Now}, nil
}

func (s *StatusStore) Close() error {
	return s.db.Close()
}

// Publish merges the patch into the identity's stored record, creating the
// record on first sight. Satisfies job.StatusSink.
func (s *StatusStore) Publish(identity lessongrab.MediaIdentity, patch job.StatusPatch) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(Buckets.Statuses)
		key := []byte(identity)
		record := job.StatusRecord{Identity: identity}
		if data := bucket.Get(key); data != nil {
			if err := json.Unmarshal(data, &record); err != nil {
				return err
			}
		}
		record.Apply(patch, s.now())
		data, err := json.Marshal(&record)
		if err != nil {
			return err
		}
		return bucket.Put(key, data)
	})
}

// StatusOf returns the stored record for an identity, or nil if the identity
// has never been seen.
func (s *StatusStore) StatusOf(identity lessongrab.MediaIdentity) (*job.StatusRecord, error) {
	var record *job.StatusRecord
	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(Buckets.Statuses)
		data := bucket.Get([]byte(identity))
		if data == nil {
			return nil
		}
		record = &job.StatusRecord{}
		return json.Unmarshal(data, record)
	})
	if err != nil {
		return nil, err
	}
	return record, nil
}

// ListStatuses returns every stored record in key order.
func (s *StatusStore) ListStatuses() ([]job.StatusRecord, error) {
	var records []job.StatusRecord
	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(Buckets.Statuses)
		return bucket.ForEach(func(k, v []byte) error {
			var record job.StatusRecord
			if err := json.Unmarshal(v, &record); err != nil {
				return err
			}
			records = append(records, record)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

// Delete removes an identity's record; deleting an absent identity is a
// no-op.
func (s *StatusStore) Delete(identity lessongrab.MediaIdentity) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(Buckets.Statuses).Delete([]byte(identity))
	})
}
