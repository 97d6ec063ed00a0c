package hints

import (
	"context"
	"fmt"
	"time"

	"go.etcd.io/bbolt"
)

const (
	hintsBucket = "hints"
	hintsKey    = "category_patterns"
)

// BoltStore keeps the hint table as one JSON document under a single key in a
// bbolt bucket, for deployments without a writable config directory.
type BoltStore struct {
	db *bbolt.DB
}

func NewBoltStore(path string) (*BoltStore, error) {
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening hints db: %w", err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(hintsBucket))
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating hints bucket: %w", err)
	}
	return &BoltStore{db: db}, nil
}

func (s *BoltStore) Load(_ context.Context) ([]CategoryHints, error) {
	var entries []CategoryHints
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket([]byte(hintsBucket)).Get([]byte(hintsKey))
		if data == nil {
			return nil
		}
		var err error
		entries, err = UnmarshalEntries(data)
		return err
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

func (s *BoltStore) Save(_ context.Context, entries []CategoryHints) error {
	data, err := MarshalEntries(entries)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(hintsBucket)).Put([]byte(hintsKey), data)
	})
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}
