package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/OikoumE/RAID-BATTLE-twitch-ext-BE/internal/broadcast"
	"github.com/OikoumE/RAID-BATTLE-twitch-ext-BE/internal/chat"
	"github.com/OikoumE/RAID-BATTLE-twitch-ext-BE/internal/config"
	"github.com/OikoumE/RAID-BATTLE-twitch-ext-BE/internal/domain"
	"github.com/OikoumE/RAID-BATTLE-twitch-ext-BE/internal/game"
	"github.com/OikoumE/RAID-BATTLE-twitch-ext-BE/internal/logging"
	"github.com/OikoumE/RAID-BATTLE-twitch-ext-BE/internal/mongo"
	"github.com/OikoumE/RAID-BATTLE-twitch-ext-BE/internal/redis"
	"github.com/OikoumE/RAID-BATTLE-twitch-ext-BE/internal/server"
	"github.com/OikoumE/RAID-BATTLE-twitch-ext-BE/internal/twitch"
)

func setupConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		// Use log before slog is initialized
		log.Fatalf("Failed to load config: %v", err)
	}
	return cfg
}

func setupMongo(cfg *config.Config) *mongo.Store {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	store, err := mongo.Connect(ctx, cfg.MongoURL)
	if err != nil {
		slog.Error("Failed to connect to mongodb", "error", err)
		os.Exit(1)
	}
	if err := store.Streamers().SeedDefaults(ctx, domain.DefaultSettings()); err != nil {
		slog.Error("Failed to seed default settings", "error", err)
		os.Exit(1)
	}
	return store
}

// setupGuards returns the replay and click guards, Redis-backed when a
// Redis URL is configured, in-memory otherwise.
func setupGuards(cfg *config.Config, clock clockwork.Clock) (*redis.Client, server.ReplayGuard, server.VoteLimiter) {
	if cfg.RedisURL == "" {
		slog.Info("No Redis configured, using in-memory guards")
		return nil, redis.NewMemoryReplayGuard(clock), redis.NewMemoryClickCooldown(clock)
	}

	client, err := redis.NewClient(cfg.RedisURL)
	if err != nil {
		slog.Error("Failed to create redis client", "error", err)
		os.Exit(1)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := client.Ping(ctx); err != nil {
		slog.Error("Failed to connect to redis", "error", err)
		os.Exit(1)
	}
	return client, client.ReplayGuard(), client.ClickCooldown()
}

func setupIRC(cfg *config.Config, streamers domain.StreamerStore, lookup domain.UserLookup) *chat.Listener {
	listener := chat.NewListener(cfg.IRCNick, cfg.IRCToken, streamers, lookup)

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	all, err := streamers.List(ctx)
	if err != nil {
		slog.Error("Failed to list channels for IRC", "error", err)
		return listener
	}
	for _, s := range all {
		listener.Join(s.ChannelName)
	}

	go func() {
		if err := listener.Connect(); err != nil {
			slog.Error("IRC connection ended", "error", err)
		}
	}()
	return listener
}

func runGracefulShutdown(srv *server.Server, cancelSweep context.CancelFunc, store *mongo.Store, redisClient *redis.Client, irc *chat.Listener) <-chan struct{} {
	done := make(chan struct{})
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		slog.Info("Shutdown signal received, cleaning up...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("Server shutdown error", "error", err)
		}

		cancelSweep()

		if irc != nil {
			if err := irc.Close(); err != nil {
				slog.Error("IRC shutdown error", "error", err)
			}
		}
		if redisClient != nil {
			_ = redisClient.Close()
		}
		if err := store.Close(shutdownCtx); err != nil {
			slog.Error("Mongo shutdown error", "error", err)
		}

		close(done)
	}()

	return done
}

func main() {
	clock := clockwork.NewRealClock()

	cfg := setupConfig()

	logging.InitLogger(cfg.LogLevel, cfg.LogFormat)
	slog.Info("Application starting", "env", cfg.AppEnv, "port", cfg.Port)

	store := setupMongo(cfg)
	streamers := store.Streamers()

	redisClient, replayGuard, clickCooldown := setupGuards(cfg, clock)

	tokens := twitch.NewAppTokenSource(cfg.AppClientID, cfg.AppClientSecret, clock)
	helixClient, err := twitch.NewClient(cfg.AppClientID, tokens, cfg.ExtClientID)
	if err != nil {
		slog.Error("Failed to create helix client", "error", err)
		os.Exit(1)
	}

	signer := twitch.NewTokenSigner(cfg.ExtSecret, cfg.ExtOwnerID, clock)
	sender := twitch.NewPubSubSender(cfg.ExtClientID, signer)

	// The scheduler pulls payloads through closures so it can be created
	// before the engine that feeds it.
	var engine *game.Engine
	scheduler := broadcast.NewScheduler(sender,
		func(channelID string) ([]byte, bool) { return engine.ChannelPayload(channelID) },
		func() ([]byte, bool) { return engine.GlobalPayload() },
		clock, broadcast.DefaultInterval)

	engineCfg := game.DefaultConfig()
	engineCfg.WinMargin = cfg.WinMargin
	engine = game.NewEngine(game.NewRegistry(), streamers, helixClient, scheduler, clock, engineCfg)
	engine.SetChatRelay(twitch.NewChatSender(cfg.ExtClientID, cfg.ExtVersion, signer, clock))

	if cfg.EventSubCallback != "" {
		engine.SetSubscriber(twitch.NewSubscriptionManager(helixClient, cfg.EventSubCallback, cfg.EventSubSecret))
	}

	sweepCtx, cancelSweep := context.WithCancel(context.Background())
	go engine.Run(sweepCtx)

	// Prime the cross-channel live list.
	go engine.StreamStatusChanged("")

	var irc *chat.Listener
	if cfg.IRCEnabled {
		irc = setupIRC(cfg, streamers, helixClient)
	}

	srv := server.NewServer(cfg, engine, streamers, signer, replayGuard, clickCooldown, clock)
	done := runGracefulShutdown(srv, cancelSweep, store, redisClient, irc)

	if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("Server error", "error", err)
		os.Exit(1)
	}

	<-done
}
