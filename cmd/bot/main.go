package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"caosbot/internal/activity"
	"caosbot/internal/backend"
	"caosbot/internal/config"
	"caosbot/internal/database"
	"caosbot/internal/discord"
	"caosbot/internal/reward"
	"caosbot/internal/server"
	"caosbot/internal/store"
)

const shutdownTimeout = 10 * time.Second

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.Warn().Str("level", cfg.LogLevel).Msg("unknown log level, using info")
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, os.Interrupt)
	defer stop()

	// Initialize store
	backing, err := openStore(cfg)
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.StoreDriver).Msg("failed to initialize store")
	}
	st := store.WithRetry(backing, store.DefaultRetryAttempts, store.DefaultRetryDelay)
	defer st.Close()

	settings := reward.NewSettings(st, reward.Overrides{
		RewardChannelID: cfg.RewardChannelID,
		AllowedForums:   cfg.AllowedForums,
	})
	if err := settings.Init(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to load reward configuration")
	}
	go settings.Watch(ctx, cfg.ConfigRefreshInterval)

	session, err := discord.NewSession(cfg.DiscordToken)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create Discord session")
	}

	client := backend.NewClient(cfg.BackendURL, cfg.BotSyncKey, cfg.BackendTimeout)
	notifier := discord.NewNotifier(session, func() string {
		return settings.Current().Channels.RewardChannelID
	})
	reporter := reward.NewReporter(client, st, notifier)
	tracker := activity.NewTracker(st, settings.Current, reporter)
	bot := discord.New(session, tracker, reporter, cfg.GuildID)

	// Health checks read the store without retries
	srv := server.New(":"+cfg.Port, backing, bot)
	go func() {
		if err := srv.Start(); err != nil {
			log.Error().Err(err).Msg("status server stopped")
		}
	}()

	// Start bot
	if err := bot.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to start bot")
	}

	<-ctx.Done()
	log.Info().Msg("shutting down bot...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("failed to stop status server")
	}
	if err := bot.Stop(); err != nil {
		log.Error().Err(err).Msg("failed to close Discord session")
	}
}

func openStore(cfg *config.Config) (store.Backend, error) {
	switch cfg.StoreDriver {
	case config.DriverPostgres, config.DriverSQLite:
		db, err := database.New(cfg.StoreDriver, cfg.DatabaseDSN)
		if err != nil {
			return nil, err
		}
		return database.NewRepository(db), nil
	case config.DriverBolt:
		return store.OpenBolt(cfg.BoltPath)
	case config.DriverMemory:
		log.Warn().Msg("using in-memory store, activity will not survive a restart")
		return store.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
}
