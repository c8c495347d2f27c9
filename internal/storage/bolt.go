package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/ilnaes/linepad/internal/document"
)

var boltBucket = []byte("documents")

// BoltStore keeps documents in a local bbolt file, one JSON record per key.
type BoltStore struct {
	db *bolt.DB
}

func NewBoltStore(path string) (*BoltStore, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt %s: %w", path, err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(boltBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create bucket: %w", err)
	}
	return &BoltStore{db: db}, nil
}

func (b *BoltStore) Save(_ context.Context, id, title string, snap document.Snapshot) error {
	buf, err := json.Marshal(Record{
		Meta:     Meta{ID: id, Title: title, SavedAt: time.Now()},
		Snapshot: stripHolders(snap),
	})
	if err != nil {
		return err
	}

	return b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(boltBucket).Put([]byte(id), buf)
	})
}

func (b *BoltStore) Load(_ context.Context, id string) (Record, error) {
	var rec Record
	err := b.db.View(func(tx *bolt.Tx) error {
		buf := tx.Bucket(boltBucket).Get([]byte(id))
		if buf == nil {
			return ErrNotFound
		}
		return json.Unmarshal(buf, &rec)
	})
	return rec, err
}

func (b *BoltStore) List(_ context.Context) ([]Meta, error) {
	res := []Meta{}
	err := b.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(boltBucket).ForEach(func(_, v []byte) error {
			var rec struct {
				Meta
			}
			if err := json.Unmarshal(v, &rec); err != nil {
				return err
			}
			res = append(res, rec.Meta)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sortMetas(res)
	return res, nil
}

func (b *BoltStore) Close() error {
	return b.db.Close()
}
