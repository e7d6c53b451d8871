package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"caosbot/internal/models"
	"caosbot/internal/store"
)

const rewardConfigName = "rewards"

// Repository handles database operations
type Repository struct {
	db  *DB
	now func() time.Time
}

// NewRepository creates a new repository
func NewRepository(db *DB) *Repository {
	return &Repository{db: db, now: time.Now}
}

var _ store.Backend = (*Repository)(nil)

// Get loads a user's activity record
func (r *Repository) Get(ctx context.Context, userID string) (models.UserRecord, bool, error) {
	rec, err := r.scanUser(r.db.conn.QueryRowContext(ctx, r.db.bind(`
		SELECT user_id, message_count, forum_count, voice_accumulated_ms, voice_session_started_at,
			voice_channel_id, last_reward_granted_at, special_channel_counts, last_updated
		FROM user_activity WHERE user_id = $1`), userID))
	if errors.Is(err, sql.ErrNoRows) {
		return models.UserRecord{}, false, nil
	}
	if err != nil {
		return models.UserRecord{}, false, fmt.Errorf("failed to get user activity: %w", err)
	}
	return rec, true, nil
}

// put upserts a user's activity record
func (r *Repository) put(ctx context.Context, rec models.UserRecord) error {
	counts, err := json.Marshal(rec.SpecialChannelCounts)
	if err != nil {
		return fmt.Errorf("failed to encode special channel counts: %w", err)
	}
	if rec.SpecialChannelCounts == nil {
		counts = []byte("{}")
	}

	_, err = r.db.conn.ExecContext(ctx, r.db.bind(`
		INSERT INTO user_activity (user_id, message_count, forum_count, voice_accumulated_ms,
			voice_session_started_at, voice_channel_id, last_reward_granted_at, special_channel_counts, last_updated)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (user_id) DO UPDATE SET
			message_count = EXCLUDED.message_count,
			forum_count = EXCLUDED.forum_count,
			voice_accumulated_ms = EXCLUDED.voice_accumulated_ms,
			voice_session_started_at = EXCLUDED.voice_session_started_at,
			voice_channel_id = EXCLUDED.voice_channel_id,
			last_reward_granted_at = EXCLUDED.last_reward_granted_at,
			special_channel_counts = EXCLUDED.special_channel_counts,
			last_updated = EXCLUDED.last_updated`),
		rec.UserID, rec.MessageCount, rec.ForumCount, rec.VoiceAccumulatedMs,
		toMillis(rec.VoiceSessionStartedAt), rec.VoiceChannelID, toMillis(rec.LastRewardGrantedAt),
		string(counts), rec.LastUpdated.UTC().UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to put user activity: %w", err)
	}
	return nil
}

// Update is a plain read-then-write; concurrent updates for the same user
// from another process can interleave
func (r *Repository) Update(ctx context.Context, userID string, fn store.UpdateFunc) (models.UserRecord, error) {
	rec, found, err := r.Get(ctx, userID)
	if err != nil {
		return models.UserRecord{}, err
	}
	if !found {
		rec = models.NewUserRecord(userID, r.now())
	}

	if err := fn(&rec); err != nil {
		if errors.Is(err, store.ErrNoChange) {
			return rec, nil
		}
		return models.UserRecord{}, err
	}
	rec.UserID = userID
	rec.LastUpdated = r.now().UTC()

	if err := r.put(ctx, rec); err != nil {
		return models.UserRecord{}, err
	}
	return rec, nil
}

// Count returns the number of tracked users
func (r *Repository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM user_activity").Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count users: %w", err)
	}
	return n, nil
}

// LoadRewardConfig reads the stored reward configuration
func (r *Repository) LoadRewardConfig(ctx context.Context) (models.RewardConfig, bool, error) {
	var raw string
	err := r.db.conn.QueryRowContext(ctx, r.db.bind("SELECT value FROM bot_config WHERE name = $1"), rewardConfigName).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return models.RewardConfig{}, false, nil
	}
	if err != nil {
		return models.RewardConfig{}, false, fmt.Errorf("failed to load reward config: %w", err)
	}

	var cfg models.RewardConfig
	if err := json.Unmarshal([]byte(raw), &cfg); err != nil {
		return models.RewardConfig{}, false, fmt.Errorf("failed to decode reward config: %w", err)
	}
	return cfg, true, nil
}

// SaveRewardConfig stores the reward configuration
func (r *Repository) SaveRewardConfig(ctx context.Context, cfg models.RewardConfig) error {
	raw, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to encode reward config: %w", err)
	}
	_, err = r.db.conn.ExecContext(ctx, r.db.bind(`
		INSERT INTO bot_config (name, value, updated_at) VALUES ($1, $2, $3)
		ON CONFLICT (name) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at`),
		rewardConfigName, string(raw), r.now().UTC().UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to save reward config: %w", err)
	}
	return nil
}

// Close closes the underlying database
func (r *Repository) Close() error {
	return r.db.Close()
}

func (r *Repository) scanUser(row *sql.Row) (models.UserRecord, error) {
	var (
		rec             models.UserRecord
		sessionStarted  sql.NullInt64
		lastRewardGrant sql.NullInt64
		counts          string
		lastUpdated     int64
	)
	err := row.Scan(&rec.UserID, &rec.MessageCount, &rec.ForumCount, &rec.VoiceAccumulatedMs,
		&sessionStarted, &rec.VoiceChannelID, &lastRewardGrant, &counts, &lastUpdated)
	if err != nil {
		return models.UserRecord{}, err
	}

	rec.VoiceSessionStartedAt = fromMillis(sessionStarted)
	rec.LastRewardGrantedAt = fromMillis(lastRewardGrant)
	rec.LastUpdated = time.UnixMilli(lastUpdated).UTC()
	rec.SpecialChannelCounts = make(map[string]int64)
	if counts != "" {
		if err := json.Unmarshal([]byte(counts), &rec.SpecialChannelCounts); err != nil {
			return models.UserRecord{}, fmt.Errorf("failed to decode special channel counts: %w", err)
		}
	}
	return rec, nil
}

func toMillis(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UTC().UnixMilli(), Valid: true}
}

func fromMillis(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.UnixMilli(v.Int64).UTC()
	return &t
}
