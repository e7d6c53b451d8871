package store

import (
	"context"
	"errors"
	"sync"
	"time"

	"caosbot/internal/models"
)

// MemoryStore keeps records in a map. Update holds the lock across fn, so
// read-modify-write is atomic per process
type MemoryStore struct {
	mu     sync.Mutex
	users  map[string]models.UserRecord
	config *models.RewardConfig
	now    func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users: make(map[string]models.UserRecord),
		now:   time.Now,
	}
}

func (m *MemoryStore) Get(ctx context.Context, userID string) (models.UserRecord, bool, error) {
	if err := ctx.Err(); err != nil {
		return models.UserRecord{}, false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.users[userID]
	if !ok {
		return models.UserRecord{}, false, nil
	}
	return cloneRecord(rec), true, nil
}

func (m *MemoryStore) Update(ctx context.Context, userID string, fn UpdateFunc) (models.UserRecord, error) {
	if err := ctx.Err(); err != nil {
		return models.UserRecord{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.users[userID]
	if ok {
		rec = cloneRecord(rec)
	} else {
		rec = models.NewUserRecord(userID, m.now())
	}
	if err := fn(&rec); err != nil {
		if errors.Is(err, ErrNoChange) {
			return rec, nil
		}
		return models.UserRecord{}, err
	}
	rec.UserID = userID
	rec.LastUpdated = m.now().UTC()
	m.users[userID] = cloneRecord(rec)
	return rec, nil
}

func (m *MemoryStore) Count(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.users), nil
}

func (m *MemoryStore) LoadRewardConfig(ctx context.Context) (models.RewardConfig, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.config == nil {
		return models.RewardConfig{}, false, nil
	}
	return *m.config, true, nil
}

func (m *MemoryStore) SaveRewardConfig(ctx context.Context, cfg models.RewardConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.config = &cfg
	return nil
}

func (m *MemoryStore) Close() error { return nil }
