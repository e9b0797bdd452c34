package server

import (
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func (s *Server) registerRoutes() {
	// Observability endpoints (no auth required)
	s.echo.GET("/health/live", s.handleLiveness)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	// EventSub deliveries authenticate by signature, not JWT.
	s.echo.POST("/webhook", s.handleWebhook)

	// Viewer endpoints (extension JWT + per-viewer click cooldown)
	viewer := s.echo.Group("", s.requireViewer, rateLimiter())
	viewer.POST("/heal", s.handleHeal)
	viewer.POST("/damage", s.handleDamage)
	viewer.GET("/ongoingRaidGame", s.handleOngoingGame)

	// Broadcaster endpoints (extension JWT with broadcaster role)
	broadcaster := s.echo.Group("", s.requireViewer, s.requireBroadcaster)
	broadcaster.POST("/addStreamerToChannels", s.handleAddStreamer)
	broadcaster.GET("/requestUserConfig", s.handleRequestUserConfig)
	broadcaster.POST("/updateUserConfig", s.handleUpdateUserConfig)
	broadcaster.POST("/TESTRAID", s.handleTestRaid)
	broadcaster.POST("/TESTRAID/stop", s.handleTestRaidStop)
	broadcaster.GET("/getLatestNews", s.handleLatestNews)
	broadcaster.GET("/requestRaidHistory", s.handleRaidHistory)
}
