package models

import (
	"slices"
	"time"
)

// User identifies a Discord user towards the coins backend
type User struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

// UserRecord holds the activity counters of a single user
type UserRecord struct {
	UserID                string           `json:"userId"`
	MessageCount          int64            `json:"messages"`
	ForumCount            int64            `json:"forumParticipations"`
	VoiceAccumulatedMs    int64            `json:"voiceTime"`
	VoiceSessionStartedAt *time.Time       `json:"voiceJoinedAt,omitempty"`
	VoiceChannelID        string           `json:"voiceChannelId,omitempty"`
	LastRewardGrantedAt   *time.Time       `json:"lastRewardTime,omitempty"`
	SpecialChannelCounts  map[string]int64 `json:"specialChannelCounts,omitempty"`
	LastUpdated           time.Time        `json:"lastUpdated"`
}

// NewUserRecord returns an empty record for a user seen for the first time
func NewUserRecord(userID string, now time.Time) UserRecord {
	return UserRecord{
		UserID:               userID,
		SpecialChannelCounts: make(map[string]int64),
		LastUpdated:          now.UTC(),
	}
}

// InVoice reports whether the user has an open voice session
func (r *UserRecord) InVoice() bool {
	return r.VoiceSessionStartedAt != nil
}

// Threshold is the count required for one grant and the coins it is worth
type Threshold struct {
	Amount int64 `json:"amount"`
	Coins  int   `json:"coins"`
}

// Enabled reports whether the threshold can ever grant a reward
func (t Threshold) Enabled() bool {
	return t.Amount > 0 && t.Coins != 0
}

type MessageRewards struct {
	Threshold
	ExcludedChannels []string `json:"excludedChannels"`
}

type VoiceRewards struct {
	Minutes          int64    `json:"minutes"`
	Coins            int      `json:"coins"`
	ExcludedChannels []string `json:"excludedChannels"`
}

// Threshold converts the configured minutes into milliseconds
func (v VoiceRewards) Threshold() Threshold {
	return Threshold{Amount: v.Minutes * int64(time.Minute/time.Millisecond), Coins: v.Coins}
}

type ForumRewards struct {
	Threshold
	CreationCoins int      `json:"creationCoins"`
	AllowedForums []string `json:"allowedForums"`
}

type SpecialChannelRewards struct {
	Threshold
	Channels []string `json:"channels"`
}

type ChannelSettings struct {
	RewardChannelID string `json:"rewardChannelId"`
}

// RewardConfig is the process-wide reward configuration
type RewardConfig struct {
	Messages        MessageRewards        `json:"messages"`
	VoiceTime       VoiceRewards          `json:"voiceTime"`
	Forums          ForumRewards          `json:"forums"`
	SpecialChannels SpecialChannelRewards `json:"specialChannels"`
	Channels        ChannelSettings       `json:"channels"`
}

// DefaultRewardConfig returns the configuration seeded into an empty store
func DefaultRewardConfig() RewardConfig {
	return RewardConfig{
		Messages:        MessageRewards{Threshold: Threshold{Amount: 90, Coins: 1}},
		VoiceTime:       VoiceRewards{Minutes: 480, Coins: 1},
		Forums:          ForumRewards{Threshold: Threshold{Amount: 1, Coins: 1}, CreationCoins: 1},
		SpecialChannels: SpecialChannelRewards{Threshold: Threshold{Amount: 50, Coins: 1}},
	}
}

func (c RewardConfig) IsSpecialChannel(channelID string) bool {
	return slices.Contains(c.SpecialChannels.Channels, channelID)
}

func (c RewardConfig) IsExcludedMessageChannel(channelID string) bool {
	return slices.Contains(c.Messages.ExcludedChannels, channelID)
}

func (c RewardConfig) IsExcludedVoiceChannel(channelID string) bool {
	return slices.Contains(c.VoiceTime.ExcludedChannels, channelID)
}

func (c RewardConfig) IsAllowedForum(channelID string) bool {
	return channelID != "" && slices.Contains(c.Forums.AllowedForums, channelID)
}
