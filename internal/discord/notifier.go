package discord

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"

	"caosbot/internal/models"
	"caosbot/pkg/utils"
)

type messageSender interface {
	ChannelMessageSend(channelID string, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// Notifier announces grants in the reward channel
type Notifier struct {
	session   messageSender
	channelID func() string
}

// NewNotifier posts to the channel returned by channelID; an empty ID
// disables announcements
func NewNotifier(session messageSender, channelID func() string) *Notifier {
	return &Notifier{session: session, channelID: channelID}
}

// NotifyReward posts a themed announcement of the grant
func (n *Notifier) NotifyReward(ctx context.Context, user models.User, amount int, reason string) error {
	channelID := n.channelID()
	if channelID == "" {
		return nil
	}

	msg := fmt.Sprintf("%s %s para %s por %s (+ %d XP)!",
		randomPhrase(rewardPhrases), utils.FormatCoins(amount), utils.FormatUserMention(user.ID), reason, amount)
	if _, err := n.session.ChannelMessageSend(channelID, msg, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("failed to send reward notification: %w", err)
	}
	return nil
}
