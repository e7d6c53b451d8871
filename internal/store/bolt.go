package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"

	"caosbot/internal/models"
)

var (
	usersBucket  = []byte("users")
	configBucket = []byte("config")
	rewardsKey   = []byte("rewards")
)

// BoltStore keeps JSON encoded records in a bbolt file, one key per user
type BoltStore struct {
	db  *bolt.DB
	now func() time.Time
}

// OpenBolt opens (or creates) the bolt file at path and its buckets
func OpenBolt(path string) (*BoltStore, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt store: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{usersBucket, configBucket} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create buckets: %w", err)
	}

	return &BoltStore{db: db, now: time.Now}, nil
}

func (b *BoltStore) Get(ctx context.Context, userID string) (models.UserRecord, bool, error) {
	if err := ctx.Err(); err != nil {
		return models.UserRecord{}, false, err
	}
	var (
		rec   models.UserRecord
		found bool
	)
	err := b.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(usersBucket).Get([]byte(userID))
		if raw == nil {
			return nil
		}
		found = true
		return decodeRecord(raw, &rec)
	})
	if err != nil {
		return models.UserRecord{}, false, fmt.Errorf("failed to get user %s: %w", userID, err)
	}
	return rec, found, nil
}

// Update runs fn inside a single bolt write transaction
func (b *BoltStore) Update(ctx context.Context, userID string, fn UpdateFunc) (models.UserRecord, error) {
	if err := ctx.Err(); err != nil {
		return models.UserRecord{}, err
	}
	var rec models.UserRecord
	err := b.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(usersBucket)
		if raw := bucket.Get([]byte(userID)); raw != nil {
			if err := decodeRecord(raw, &rec); err != nil {
				return err
			}
		} else {
			rec = models.NewUserRecord(userID, b.now())
		}

		if err := fn(&rec); err != nil {
			return err
		}
		rec.UserID = userID
		rec.LastUpdated = b.now().UTC()

		raw, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		return bucket.Put([]byte(userID), raw)
	})
	if errors.Is(err, ErrNoChange) {
		return rec, nil
	}
	if err != nil {
		return models.UserRecord{}, fmt.Errorf("failed to update user %s: %w", userID, err)
	}
	return rec, nil
}

func (b *BoltStore) Count(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	var n int
	err := b.db.View(func(tx *bolt.Tx) error {
		n = tx.Bucket(usersBucket).Stats().KeyN
		return nil
	})
	return n, err
}

func (b *BoltStore) LoadRewardConfig(ctx context.Context) (models.RewardConfig, bool, error) {
	var (
		cfg   models.RewardConfig
		found bool
	)
	err := b.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(configBucket).Get(rewardsKey)
		if raw == nil {
			return nil
		}
		found = true
		return json.Unmarshal(raw, &cfg)
	})
	if err != nil {
		return models.RewardConfig{}, false, fmt.Errorf("failed to load reward config: %w", err)
	}
	return cfg, found, nil
}

func (b *BoltStore) SaveRewardConfig(ctx context.Context, cfg models.RewardConfig) error {
	raw, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to encode reward config: %w", err)
	}
	return b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(configBucket).Put(rewardsKey, raw)
	})
}

func (b *BoltStore) Close() error {
	return b.db.Close()
}

func decodeRecord(raw []byte, rec *models.UserRecord) error {
	if err := json.Unmarshal(raw, rec); err != nil {
		return err
	}
	if rec.SpecialChannelCounts == nil {
		rec.SpecialChannelCounts = make(map[string]int64)
	}
	return nil
}
