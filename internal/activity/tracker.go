// Package activity accrues per-user message, forum and voice activity and
// requests rewards when a threshold is crossed
package activity

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"caosbot/internal/models"
	"caosbot/internal/reward"
	"caosbot/internal/store"
	"caosbot/pkg/utils"
)

// Reasons attached to grants, shown in the reward channel
const (
	ReasonMessages       = "actividad en chat"
	ReasonSpecialChannel = "actividad en canal especial"
	ReasonForum          = "participación en foro"
	ReasonThreadCreated  = "creación de hilo en foro"
	ReasonVoice          = "tiempo en canal de voz"
)

// Reporter is the part of reward.Reporter the tracker needs
type Reporter interface {
	Report(ctx context.Context, user models.User, amount int, reason string) (reward.Receipt, error)
}

// Message describes where a message was posted
type Message struct {
	ChannelID string
	// ParentID is the forum or channel a thread belongs to
	ParentID string
	IsThread bool
}

// VoiceState is the user's voice presence after an update
type VoiceState struct {
	ChannelID string
	SelfDeaf  bool
	// Joined is set when the user had no voice channel before this update
	Joined bool
}

// Tracker applies activity to the store and reports the resulting grants.
// Counters are committed before the report is sent
type Tracker struct {
	store    store.Store
	config   func() models.RewardConfig
	reporter Reporter
	now      func() time.Time
}

// NewTracker reads the live reward configuration through config on every event
func NewTracker(st store.Store, config func() models.RewardConfig, reporter Reporter) *Tracker {
	return &Tracker{store: st, config: config, reporter: reporter, now: time.Now}
}

// RecordMessage counts one message from user
func (t *Tracker) RecordMessage(ctx context.Context, user models.User, msg Message) error {
	cfg := t.config()

	var grants []reward.Grant
	_, err := t.store.Update(ctx, user.ID, func(rec *models.UserRecord) error {
		grants = grants[:0]

		switch {
		case cfg.IsSpecialChannel(msg.ChannelID):
			if rec.SpecialChannelCounts == nil {
				rec.SpecialChannelCounts = make(map[string]int64)
			}
			next, grant := reward.Accrue(rec.SpecialChannelCounts[msg.ChannelID], 1, cfg.SpecialChannels.Threshold, false)
			rec.SpecialChannelCounts[msg.ChannelID] = next
			if grant {
				grants = append(grants, reward.Grant{Coins: cfg.SpecialChannels.Coins, Reason: ReasonSpecialChannel})
			}
		case !cfg.IsExcludedMessageChannel(msg.ChannelID):
			next, grant := reward.Accrue(rec.MessageCount, 1, cfg.Messages.Threshold, false)
			rec.MessageCount = next
			if grant {
				grants = append(grants, reward.Grant{Coins: cfg.Messages.Coins, Reason: ReasonMessages})
			}
		}

		if isForumActivity(cfg, msg) {
			log.Debug().Str("user", user.ID).Str("channel", msg.ChannelID).Msg("forum activity detected")
			next, grant := reward.Accrue(rec.ForumCount, 1, cfg.Forums.Threshold, false)
			rec.ForumCount = next
			if grant {
				grants = append(grants, reward.Grant{Coins: cfg.Forums.Coins, Reason: ReasonForum})
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to update message count: %w", err)
	}

	return t.report(ctx, user, grants)
}

func isForumActivity(cfg models.RewardConfig, msg Message) bool {
	if cfg.IsAllowedForum(msg.ChannelID) {
		return true
	}
	return msg.IsThread && cfg.IsAllowedForum(msg.ParentID)
}

// RecordThreadCreated rewards the owner of a new thread in an allow-listed forum
func (t *Tracker) RecordThreadCreated(ctx context.Context, owner models.User, parentID string) error {
	cfg := t.config()
	if !cfg.IsAllowedForum(parentID) || cfg.Forums.CreationCoins == 0 {
		return nil
	}
	return t.report(ctx, owner, []reward.Grant{{Coins: cfg.Forums.CreationCoins, Reason: ReasonThreadCreated}})
}

// RecordVoiceState drives the voice session state machine. A user is in a
// session while connected to a non-excluded channel without self-deafen;
// moving to another eligible channel closes the session and opens a new one.
// A fresh join discards any session left open by a missed leave
func (t *Tracker) RecordVoiceState(ctx context.Context, user models.User, vs VoiceState) error {
	cfg := t.config()
	now := t.now().UTC()
	eligible := vs.ChannelID != "" && !vs.SelfDeaf && !cfg.IsExcludedVoiceChannel(vs.ChannelID)

	var grants []reward.Grant
	_, err := t.store.Update(ctx, user.ID, func(rec *models.UserRecord) error {
		grants = grants[:0]

		stale := vs.Joined && vs.ChannelID != "" && rec.InVoice()
		if stale {
			log.Warn().Str("user", user.ID).
				Time("started_at", *rec.VoiceSessionStartedAt).
				Str("channel", rec.VoiceChannelID).
				Msg("discarding voice session left open by a missed leave")
			rec.VoiceSessionStartedAt = nil
			rec.VoiceChannelID = ""
		}

		switch {
		case !rec.InVoice() && eligible:
			open(rec, vs.ChannelID, now)
			log.Info().Str("user", user.ID).Str("channel", vs.ChannelID).Msg("voice join")
		case rec.InVoice() && !eligible:
			grants = closeSession(rec, cfg, now, user.ID)
		case rec.InVoice() && rec.VoiceChannelID != vs.ChannelID:
			grants = closeSession(rec, cfg, now, user.ID)
			open(rec, vs.ChannelID, now)
			log.Info().Str("user", user.ID).Str("channel", vs.ChannelID).Msg("voice switch")
		default:
			if stale {
				return nil
			}
			return store.ErrNoChange
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to update voice time: %w", err)
	}

	return t.report(ctx, user, grants)
}

func open(rec *models.UserRecord, channelID string, now time.Time) {
	start := now
	rec.VoiceSessionStartedAt = &start
	rec.VoiceChannelID = channelID
}

func closeSession(rec *models.UserRecord, cfg models.RewardConfig, now time.Time, userID string) []reward.Grant {
	session := now.Sub(*rec.VoiceSessionStartedAt).Milliseconds()
	if session < 0 {
		session = 0
	}
	rec.VoiceSessionStartedAt = nil
	rec.VoiceChannelID = ""

	next, grant := reward.Accrue(rec.VoiceAccumulatedMs, session, cfg.VoiceTime.Threshold(), true)
	rec.VoiceAccumulatedMs = next
	log.Info().Str("user", userID).
		Str("session", utils.FormatDuration(time.Duration(session)*time.Millisecond)).
		Int64("accumulated_ms", next).
		Msg("voice leave")
	if !grant {
		return nil
	}
	return []reward.Grant{{Coins: cfg.VoiceTime.Coins, Reason: ReasonVoice}}
}

func (t *Tracker) report(ctx context.Context, user models.User, grants []reward.Grant) error {
	if len(grants) == 0 {
		return nil
	}
	coins, reason := reward.Combine(grants)
	if _, err := t.reporter.Report(ctx, user, coins, reason); err != nil {
		return fmt.Errorf("failed to report %s: %w", reason, err)
	}
	return nil
}
