// Package store defines the per-user activity store and its key-value backends
package store

import (
	"context"
	"errors"

	"caosbot/internal/models"
)

// ErrNoChange aborts an Update without writing the record
var ErrNoChange = errors.New("store: no change")

// UpdateFunc mutates a record in place. Returning ErrNoChange skips the write
type UpdateFunc func(rec *models.UserRecord) error

// Store keeps one UserRecord per Discord user
type Store interface {
	// Get returns the record and whether it exists
	Get(ctx context.Context, userID string) (models.UserRecord, bool, error)
	// Update loads the record (creating an empty one if missing), applies fn
	// and stores the result, stamping LastUpdated
	Update(ctx context.Context, userID string, fn UpdateFunc) (models.UserRecord, error)
	Count(ctx context.Context) (int, error)
	Close() error
}

// ConfigStore persists the reward configuration
type ConfigStore interface {
	LoadRewardConfig(ctx context.Context) (models.RewardConfig, bool, error)
	SaveRewardConfig(ctx context.Context, cfg models.RewardConfig) error
}

// Backend is a store that also holds the reward configuration
type Backend interface {
	Store
	ConfigStore
}

func cloneRecord(rec models.UserRecord) models.UserRecord {
	out := rec
	out.SpecialChannelCounts = make(map[string]int64, len(rec.SpecialChannelCounts))
	for k, v := range rec.SpecialChannelCounts {
		out.SpecialChannelCounts[k] = v
	}
	if rec.VoiceSessionStartedAt != nil {
		t := *rec.VoiceSessionStartedAt
		out.VoiceSessionStartedAt = &t
	}
	if rec.LastRewardGrantedAt != nil {
		t := *rec.LastRewardGrantedAt
		out.LastRewardGrantedAt = &t
	}
	return out
}
