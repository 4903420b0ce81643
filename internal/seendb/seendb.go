// Package seendb tracks which videos the watcher has already handed off to
// the pipeline, so restarting the watcher does not re-process a creator's
// entire back catalog.
package seendb

import (
	"encoding/json"
	"time"

	"go.etcd.io/bbolt"
)

var Buckets = struct {
	Metadata []byte
	Seen     []byte
}{
	Metadata: []byte("__metadata__"),
	Seen:     []byte("seen"),
}

var MetadataKeys = struct {
	Version []byte
}{
	Version: []byte("version"),
}

const currentVersion = 1

// Entry records when a video was handed off.
type Entry struct {
	SeenAt time.Time `json:"seen_at"`
}

type Database interface {
	Close() error

	Seen(videoID string) (bool, error)
	MarkSeen(videoID string) error
}

type database struct {
	*bbolt.DB
}

func New(path string) (_ Database, err error) {
	db, err := bbolt.Open(path, 0600, nil)
	if err != nil {
		return nil, err
	}
	err = db.Update(func(tx *bbolt.Tx) (err error) {
		// Ensure buckets exist
		var metadata *bbolt.Bucket
		if metadata, err = tx.CreateBucketIfNotExists(Buckets.Metadata); err != nil {
			return err
		}
		if _, err := tx.CreateBucketIfNotExists(Buckets.Seen); err != nil {
			return err
		}

		// Stamp the current version of the database, for future migrations
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
	return &database{db}, nil
}

func (d database) Seen(videoID string) (seen bool, err error) {
	err = d.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(Buckets.Seen)
		seen = bucket.Get([]byte(videoID)) != nil
		return nil
	})
	return seen, err
}

func (d database) MarkSeen(videoID string) error {
	data, err := json.Marshal(Entry{SeenAt: time.Now().UTC()})
	if err != nil {
		return err
	}
	return d.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(Buckets.Seen)
		return bucket.Put([]byte(videoID), data)
	})
}
