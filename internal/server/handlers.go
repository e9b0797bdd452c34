package server

import (
	"errors"
	"net/http"
	"regexp"

	"github.com/labstack/echo/v4"

	"github.com/OikoumE/RAID-BATTLE-twitch-ext-BE/internal/domain"
	apperrors "github.com/OikoumE/RAID-BATTLE-twitch-ext-BE/internal/errors"
)

// testRaiderPattern matches valid Twitch login names for the test raid.
var testRaiderPattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_]{3,24}$`)

func (s *Server) handleLiveness(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// --- Viewer endpoints ---

func (s *Server) handleHeal(c echo.Context) error {
	return s.handleVote(c, domain.SideStreamer)
}

func (s *Server) handleDamage(c echo.Context) error {
	return s.handleVote(c, domain.SideRaider)
}

func (s *Server) handleVote(c echo.Context, side domain.Side) error {
	channelID, opaqueUserID := viewerIdentity(c)

	allowed, err := s.cooldown.Allow(c.Request().Context(), channelID, opaqueUserID)
	if err != nil {
		return apperrors.InternalError("click cooldown check failed", err)
	}
	if !allowed {
		return apperrors.RateLimitedError("clicking too fast")
	}

	payload, err := s.engine.Vote(channelID, side, opaqueUserID)
	if err != nil {
		return mapGameError(err)
	}
	return c.JSON(http.StatusOK, payload)
}

func (s *Server) handleOngoingGame(c echo.Context) error {
	channelID, _ := viewerIdentity(c)

	payload, ok := s.engine.Snapshot(channelID)
	if !ok {
		return c.NoContent(http.StatusNoContent)
	}
	return c.JSON(http.StatusOK, payload)
}

// --- Broadcaster endpoints ---

func (s *Server) handleAddStreamer(c echo.Context) error {
	channelID, _ := viewerIdentity(c)

	streamer, err := s.engine.EnsureStreamer(c.Request().Context(), channelID)
	if err != nil {
		return apperrors.ExternalError("failed to register streamer", err).WithContext("channel_id", channelID)
	}
	return c.JSON(http.StatusOK, streamer)
}

func (s *Server) handleRequestUserConfig(c echo.Context) error {
	channelID, _ := viewerIdentity(c)

	streamer, err := s.store.GetByChannelID(c.Request().Context(), channelID)
	if err != nil {
		return mapGameError(err)
	}
	return c.JSON(http.StatusOK, map[string]any{
		"defaults":   domain.DefaultSettings(),
		"userConfig": streamer.UserConfig,
		"settings":   streamer.Settings(),
		"ranges":     domain.SettingsRanges,
	})
}

func (s *Server) handleUpdateUserConfig(c echo.Context) error {
	channelID, _ := viewerIdentity(c)

	patch := &domain.SettingsPatch{}
	if err := c.Bind(patch); err != nil {
		return apperrors.ValidationError("invalid settings payload")
	}
	patch.Clamp()

	if err := s.store.UpdateConfig(c.Request().Context(), channelID, patch); err != nil {
		return mapGameError(err)
	}
	return c.JSON(http.StatusOK, map[string]any{
		"userConfig": patch,
		"settings":   patch.Apply(domain.DefaultSettings()),
	})
}

func (s *Server) handleTestRaid(c echo.Context) error {
	channelID, _ := viewerIdentity(c)

	var body struct {
		Name string `json:"name"`
	}
	if err := c.Bind(&body); err != nil {
		return apperrors.ValidationError("invalid test raid payload")
	}
	if !testRaiderPattern.MatchString(body.Name) {
		return apperrors.ValidationError("invalid raider name").WithContext("name", body.Name)
	}

	streamer, err := s.store.GetByChannelID(c.Request().Context(), channelID)
	if err != nil {
		return mapGameError(err)
	}

	payload, err := s.engine.StartRaid(c.Request().Context(), streamer.ChannelName, body.Name, 1)
	if err != nil {
		return mapGameError(err)
	}
	return c.JSON(http.StatusOK, payload)
}

func (s *Server) handleTestRaidStop(c echo.Context) error {
	channelID, _ := viewerIdentity(c)

	if !s.engine.StopChannel(channelID) {
		return apperrors.NotFoundError("no active game on channel")
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleLatestNews(c echo.Context) error {
	news, err := s.store.ListNews(c.Request().Context())
	if err != nil {
		return apperrors.InternalError("failed to load news", err)
	}
	return c.JSON(http.StatusOK, map[string]any{"news": news})
}

func (s *Server) handleRaidHistory(c echo.Context) error {
	channelID, _ := viewerIdentity(c)

	streamer, err := s.store.GetByChannelID(c.Request().Context(), channelID)
	if err != nil {
		return mapGameError(err)
	}
	return c.JSON(http.StatusOK, map[string]any{
		"score":         streamer.Score,
		"battleHistory": streamer.BattleHistory,
	})
}

// mapGameError translates domain errors into HTTP-mapped structured errors.
func mapGameError(err error) error {
	switch {
	case errors.Is(err, domain.ErrNoActiveGame):
		return apperrors.NotFoundError("no active game on channel")
	case errors.Is(err, domain.ErrStreamerNotFound):
		return apperrors.NotFoundError("streamer not registered")
	case errors.Is(err, domain.ErrGameOver):
		return apperrors.ValidationError("game is no longer accepting votes")
	case errors.Is(err, domain.ErrRaiderActive):
		return apperrors.ValidationError("raider already has an active game")
	case errors.Is(err, domain.ErrStreamOffline):
		return apperrors.ValidationError("channel is not live")
	default:
		return apperrors.InternalError("request failed", err)
	}
}
