package reward

import (
	"context"
	"fmt"
	"reflect"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"caosbot/internal/models"
	"caosbot/internal/store"
)

// Overrides come from the process environment and win over the stored config
type Overrides struct {
	RewardChannelID string
	AllowedForums   []string
}

func (o Overrides) apply(cfg models.RewardConfig) models.RewardConfig {
	if o.RewardChannelID != "" {
		cfg.Channels.RewardChannelID = o.RewardChannelID
	}
	if len(o.AllowedForums) > 0 {
		cfg.Forums.AllowedForums = append([]string(nil), o.AllowedForums...)
	}
	return cfg
}

// Settings caches the reward configuration and keeps it in sync with the
// config store
type Settings struct {
	source    store.ConfigStore
	overrides Overrides
	current   atomic.Pointer[models.RewardConfig]
}

// NewSettings returns settings holding the defaults until Init runs
func NewSettings(source store.ConfigStore, overrides Overrides) *Settings {
	s := &Settings{source: source, overrides: overrides}
	cfg := overrides.apply(models.DefaultRewardConfig())
	s.current.Store(&cfg)
	return s
}

// Init loads the stored configuration, seeding the defaults when none exists
func (s *Settings) Init(ctx context.Context) error {
	cfg, found, err := s.source.LoadRewardConfig(ctx)
	if err != nil {
		return fmt.Errorf("failed to load reward config: %w", err)
	}
	if !found {
		cfg = models.DefaultRewardConfig()
		if err := s.source.SaveRewardConfig(ctx, cfg); err != nil {
			return fmt.Errorf("failed to seed reward config: %w", err)
		}
		log.Info().Msg("seeded default reward config")
	}
	s.set(cfg)
	return nil
}

// Current returns the active configuration
func (s *Settings) Current() models.RewardConfig {
	return *s.current.Load()
}

// Refresh reloads the stored configuration and reports whether it changed
func (s *Settings) Refresh(ctx context.Context) (bool, error) {
	cfg, found, err := s.source.LoadRewardConfig(ctx)
	if err != nil {
		return false, err
	}
	if !found {
		return false, nil
	}
	return s.set(cfg), nil
}

func (s *Settings) set(cfg models.RewardConfig) bool {
	cfg = s.overrides.apply(cfg)
	if reflect.DeepEqual(cfg, *s.current.Load()) {
		return false
	}
	s.current.Store(&cfg)
	return true
}

// Watch polls the config store every interval until ctx is done
func (s *Settings) Watch(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			changed, err := s.Refresh(ctx)
			if err != nil {
				log.Warn().Err(err).Msg("failed to refresh reward config")
				continue
			}
			if changed {
				log.Info().Interface("config", s.Current()).Msg("reward config updated")
			}
		}
	}
}
