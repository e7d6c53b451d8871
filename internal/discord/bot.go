package discord

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog/log"

	"caosbot/internal/activity"
	"caosbot/internal/models"
	"caosbot/internal/reward"
)

const handlerTimeout = 30 * time.Second

// Activity receives the user activity observed on the gateway
type Activity interface {
	RecordMessage(ctx context.Context, user models.User, msg activity.Message) error
	RecordThreadCreated(ctx context.Context, owner models.User, parentID string) error
	RecordVoiceState(ctx context.Context, user models.User, vs activity.VoiceState) error
}

// Coins is the reward reporter as seen by the slash commands
type Coins interface {
	Report(ctx context.Context, user models.User, amount int, reason string) (reward.Receipt, error)
	Refund(ctx context.Context, user models.User, amount int, reason string) (int, error)
	GetCoins(ctx context.Context, userID string) (int, error)
}

// Bot represents the Discord bot
type Bot struct {
	session  *discordgo.Session
	activity Activity
	coins    Coins
	guildID  string

	ctx       context.Context
	startedAt time.Time

	mu       sync.RWMutex
	username string
	ready    bool
}

// NewSession creates the Discord session with the intents the bot needs
func NewSession(token string) (*discordgo.Session, error) {
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("failed to create Discord session: %w", err)
	}

	session.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsMessageContent |
		discordgo.IntentsGuildVoiceStates |
		discordgo.IntentsGuildMembers
	session.ShouldRetryOnRateLimit = true
	session.MaxRestRetries = 3

	return session, nil
}

// New wires the event handlers onto session. Slash commands are registered
// in guildID, or globally when it is empty
func New(session *discordgo.Session, act Activity, coins Coins, guildID string) *Bot {
	bot := &Bot{
		session:  session,
		activity: act,
		coins:    coins,
		guildID:  guildID,
		ctx:      context.Background(),
	}

	// Add event handlers
	session.AddHandler(bot.onReady)
	session.AddHandler(bot.onDisconnect)
	session.AddHandler(bot.onResumed)
	session.AddHandler(bot.messageCreate)
	session.AddHandler(bot.voiceStateUpdate)
	session.AddHandler(bot.threadCreate)
	session.AddHandler(bot.interactionCreate)

	return bot
}

// Start opens the gateway connection
func (b *Bot) Start(ctx context.Context) error {
	b.ctx = ctx
	b.startedAt = time.Now()
	if err := b.session.Open(); err != nil {
		return fmt.Errorf("failed to open Discord connection: %w", err)
	}

	log.Info().Msg("bot is running")
	return nil
}

// Stop stops the bot
func (b *Bot) Stop() error {
	b.setReady(false)
	return b.session.Close()
}

// Username is the bot's account name, empty until the gateway is ready
func (b *Bot) Username() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.username
}

// Ready reports whether the gateway session is up
func (b *Bot) Ready() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.ready
}

// Uptime is the time since Start, zero while disconnected
func (b *Bot) Uptime() time.Duration {
	if b.startedAt.IsZero() || !b.Ready() {
		return 0
	}
	return time.Since(b.startedAt)
}

func (b *Bot) setReady(ready bool) {
	b.mu.Lock()
	b.ready = ready
	b.mu.Unlock()
}

func (b *Bot) handlerContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(b.ctx, handlerTimeout)
}

// recoverHandler keeps a panicking handler from taking the process down
func recoverHandler(name string) {
	if r := recover(); r != nil {
		log.Error().Str("handler", name).Interface("panic", r).Msg("recovered from panic in event handler")
	}
}

func (b *Bot) onReady(s *discordgo.Session, r *discordgo.Ready) {
	defer recoverHandler("ready")

	b.mu.Lock()
	b.username = r.User.Username
	b.ready = true
	b.mu.Unlock()
	log.Info().Str("username", r.User.Username).Int("guilds", len(r.Guilds)).Msg("logged in")

	registered, err := s.ApplicationCommandBulkOverwrite(r.User.ID, b.guildID, Commands())
	if err != nil {
		log.Error().Err(err).Msg("failed to register slash commands")
		return
	}
	log.Info().Int("commands", len(registered)).Str("guild", b.guildID).Msg("slash commands registered")
}

func (b *Bot) onDisconnect(s *discordgo.Session, _ *discordgo.Disconnect) {
	b.setReady(false)
	log.Warn().Msg("disconnected from gateway")
}

func (b *Bot) onResumed(s *discordgo.Session, _ *discordgo.Resumed) {
	b.setReady(true)
	log.Info().Msg("gateway session resumed")
}

func (b *Bot) messageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	defer recoverHandler("messageCreate")
	ctx, cancel := b.handlerContext()
	defer cancel()
	b.handleMessage(ctx, liveSession{s}, m)
}

func (b *Bot) voiceStateUpdate(s *discordgo.Session, vs *discordgo.VoiceStateUpdate) {
	defer recoverHandler("voiceStateUpdate")
	ctx, cancel := b.handlerContext()
	defer cancel()
	b.handleVoiceState(ctx, vs)
}

func (b *Bot) threadCreate(s *discordgo.Session, t *discordgo.ThreadCreate) {
	defer recoverHandler("threadCreate")
	ctx, cancel := b.handlerContext()
	defer cancel()
	b.handleThreadCreate(ctx, liveSession{s}, t)
}

func (b *Bot) interactionCreate(s *discordgo.Session, i *discordgo.InteractionCreate) {
	defer recoverHandler("interactionCreate")
	ctx, cancel := b.handlerContext()
	defer cancel()
	b.handleInteraction(ctx, liveSession{s}, i)
}

// handleMessage counts a guild message towards the author's rewards
func (b *Bot) handleMessage(ctx context.Context, s Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.Bot || m.GuildID == "" {
		return
	}

	msg := activity.Message{ChannelID: m.ChannelID}
	ch, err := s.Channel(m.ChannelID)
	if err != nil {
		log.Warn().Err(err).Str("channel", m.ChannelID).Msg("failed to resolve channel, counting as plain chat")
	} else {
		msg.IsThread = ch.IsThread()
		msg.ParentID = ch.ParentID
	}

	user := models.User{ID: m.Author.ID, Username: m.Author.Username}
	if err := b.activity.RecordMessage(ctx, user, msg); err != nil {
		log.Error().Err(err).Str("user", user.ID).Msg("failed to record message")
	}
}

// handleVoiceState drives the voice session of the user
func (b *Bot) handleVoiceState(ctx context.Context, vs *discordgo.VoiceStateUpdate) {
	if vs.VoiceState == nil || vs.UserID == "" {
		return
	}

	user := models.User{ID: vs.UserID, Username: "unknown"}
	if vs.Member != nil && vs.Member.User != nil {
		if vs.Member.User.Bot {
			return
		}
		user.Username = vs.Member.User.Username
	}

	state := activity.VoiceState{
		ChannelID: vs.ChannelID,
		SelfDeaf:  vs.SelfDeaf,
		Joined:    vs.ChannelID != "" && (vs.BeforeUpdate == nil || vs.BeforeUpdate.ChannelID == ""),
	}
	if err := b.activity.RecordVoiceState(ctx, user, state); err != nil {
		log.Error().Err(err).Str("user", user.ID).Msg("failed to record voice state")
	}
}

// handleThreadCreate rewards the owner of a newly created forum thread
func (b *Bot) handleThreadCreate(ctx context.Context, s Session, t *discordgo.ThreadCreate) {
	if t.Channel == nil || !t.NewlyCreated || t.OwnerID == "" {
		return
	}

	owner := models.User{ID: t.OwnerID, Username: "unknown"}
	if u, err := s.User(t.OwnerID); err != nil {
		log.Warn().Err(err).Str("user", t.OwnerID).Msg("failed to fetch thread owner")
	} else {
		if u.Bot {
			return
		}
		owner.Username = u.Username
	}

	if err := b.activity.RecordThreadCreated(ctx, owner, t.ParentID); err != nil {
		log.Error().Err(err).Str("user", owner.ID).Str("thread", t.ID).Msg("failed to reward thread creation")
	}
}
