package server

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/OikoumE/RAID-BATTLE-twitch-ext-BE/internal/config"
	"github.com/OikoumE/RAID-BATTLE-twitch-ext-BE/internal/domain"
	apperrors "github.com/OikoumE/RAID-BATTLE-twitch-ext-BE/internal/errors"
	"github.com/OikoumE/RAID-BATTLE-twitch-ext-BE/internal/game"
	"github.com/OikoumE/RAID-BATTLE-twitch-ext-BE/internal/twitch"
)

// ReplayGuard suppresses redelivered EventSub notifications.
type ReplayGuard interface {
	Seen(ctx context.Context, messageID string) (bool, error)
}

// VoteLimiter throttles per-viewer support clicks.
type VoteLimiter interface {
	Allow(ctx context.Context, channelID, opaqueUserID string) (bool, error)
}

type Server struct {
	echo     *echo.Echo
	config   *config.Config
	engine   *game.Engine
	store    domain.StreamerStore
	signer   *twitch.TokenSigner
	guard    ReplayGuard
	cooldown VoteLimiter
	clock    clockwork.Clock
}

func NewServer(cfg *config.Config, engine *game.Engine, store domain.StreamerStore, signer *twitch.TokenSigner, guard ReplayGuard, cooldown VoteLimiter, clock clockwork.Clock) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.CORS())
	e.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{
		Generator: uuid.NewString,
	}))
	e.Use(apperrors.Middleware())

	srv := &Server{
		echo:     e,
		config:   cfg,
		engine:   engine,
		store:    store,
		signer:   signer,
		guard:    guard,
		cooldown: cooldown,
		clock:    clock,
	}
	srv.registerRoutes()
	return srv
}

func (s *Server) Start() error {
	slog.Info("Starting server", "port", s.config.Port)
	return s.echo.Start(fmt.Sprintf(":%s", s.config.Port))
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}
