package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"

	"CollectiveLedger/internal/domain"
	"CollectiveLedger/internal/ports"
)

var (
	contributionsBucket = []byte("contributions")
	payoutsBucket       = []byte("payouts")
)

// BoltStore persists records as JSON documents in a bbolt file.
type BoltStore struct {
	db *bolt.DB
}

var (
	_ ports.ContributionRepository = (*BoltStore)(nil)
	_ ports.PayoutRepository       = (*BoltStore)(nil)
)

// OpenBolt opens (or creates) the database file and its buckets.
func OpenBolt(path string) (*BoltStore, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt %s: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{contributionsBucket, payoutsBucket} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("create bucket %s: %w", name, err)
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return &BoltStore{db: db}, nil
}

// Close releases the file lock.
func (s *BoltStore) Close() error {
	return s.db.Close()
}

func (s *BoltStore) ListContributions(context.Context) ([]domain.Contribution, error) {
	var out []domain.Contribution
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(contributionsBucket).ForEach(func(k, v []byte) error {
			var c domain.Contribution
			if err := json.Unmarshal(v, &c); err != nil {
				return fmt.Errorf("decode contribution %s: %w", k, err)
			}
			out = append(out, c)
			return nil
		})
	})
	return out, err
}

func (s *BoltStore) GetContribution(_ context.Context, id string) (domain.Contribution, error) {
	var c domain.Contribution
	err := s.db.View(func(tx *bolt.Tx) error {
		return readJSON(tx.Bucket(contributionsBucket), "contribution", id, &c)
	})
	return c, err
}

func (s *BoltStore) PutContribution(_ context.Context, contribution domain.Contribution) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return writeJSON(tx.Bucket(contributionsBucket), contribution.ID, contribution)
	})
}

// UpdateContribution runs fn inside a single read-write transaction.
func (s *BoltStore) UpdateContribution(_ context.Context, id string, fn func(*domain.Contribution) error) (domain.Contribution, error) {
	var c domain.Contribution
	err := s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(contributionsBucket)
		if err := readJSON(bucket, "contribution", id, &c); err != nil {
			return err
		}
		if err := fn(&c); err != nil {
			return err
		}
		return writeJSON(bucket, id, c)
	})
	if err != nil {
		return domain.Contribution{}, err
	}
	return c, nil
}

func (s *BoltStore) ListPayouts(context.Context) ([]domain.Payout, error) {
	var out []domain.Payout
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(payoutsBucket).ForEach(func(k, v []byte) error {
			var p domain.Payout
			if err := json.Unmarshal(v, &p); err != nil {
				return fmt.Errorf("decode payout %s: %w", k, err)
			}
			out = append(out, p)
			return nil
		})
	})
	return out, err
}

func (s *BoltStore) GetPayout(_ context.Context, id string) (domain.Payout, error) {
	var p domain.Payout
	err := s.db.View(func(tx *bolt.Tx) error {
		return readJSON(tx.Bucket(payoutsBucket), "payout", id, &p)
	})
	return p, err
}

func (s *BoltStore) PutPayout(_ context.Context, payout domain.Payout) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return writeJSON(tx.Bucket(payoutsBucket), payout.ID, payout)
	})
}

// UpdatePayout runs fn inside a single read-write transaction.
func (s *BoltStore) UpdatePayout(_ context.Context, id string, fn func(*domain.Payout) error) (domain.Payout, error) {
	var p domain.Payout
	err := s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(payoutsBucket)
		if err := readJSON(bucket, "payout", id, &p); err != nil {
			return err
		}
		if err := fn(&p); err != nil {
			return err
		}
		return writeJSON(bucket, id, p)
	})
	if err != nil {
		return domain.Payout{}, err
	}
	return p, nil
}

func readJSON(bucket *bolt.Bucket, kind, id string, v any) error {
	raw := bucket.Get([]byte(id))
	if raw == nil {
		return fmt.Errorf("%s %s: %w", kind, id, domain.ErrNotFound)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("decode %s %s: %w", kind, id, err)
	}
	return nil
}

func writeJSON(bucket *bolt.Bucket, id string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", id, err)
	}
	return bucket.Put([]byte(id), raw)
}
