package discord

import "github.com/bwmarrin/discordgo"

// Session abstracts the Discord API for testing
type Session interface {
	Channel(channelID string, options ...discordgo.RequestOption) (*discordgo.Channel, error)
	User(userID string, options ...discordgo.RequestOption) (*discordgo.User, error)
	ChannelMessageSend(channelID string, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
	InteractionRespond(interaction *discordgo.Interaction, resp *discordgo.InteractionResponse, options ...discordgo.RequestOption) error
}

// liveSession serves channel lookups from the gateway state cache before
// falling back to the REST API
type liveSession struct {
	*discordgo.Session
}

func (l liveSession) Channel(channelID string, options ...discordgo.RequestOption) (*discordgo.Channel, error) {
	if l.State != nil {
		if ch, err := l.State.Channel(channelID); err == nil {
			return ch, nil
		}
	}
	return l.Session.Channel(channelID, options...)
}
