package server

import (
	"github.com/labstack/echo/v4"

	apperrors "github.com/OikoumE/RAID-BATTLE-twitch-ext-BE/internal/errors"
)

// Context keys set by requireViewer.
const (
	ctxChannelID    = "channelID"
	ctxOpaqueUserID = "opaqueUserID"
	ctxRole         = "role"
)

// requireViewer verifies the extension JWT carried in the Authorization
// header and stows its identity in the request context.
func (s *Server) requireViewer(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		claims, err := s.signer.VerifyViewerToken(c.Request().Header.Get("Authorization"))
		if err != nil {
			return apperrors.UnauthorizedError("invalid or missing extension token")
		}

		c.Set(ctxChannelID, claims.ChannelID)
		c.Set(ctxOpaqueUserID, claims.OpaqueUserID)
		c.Set(ctxRole, claims.Role)
		return next(c)
	}
}

// requireBroadcaster gates configuration endpoints. The broadcaster's
// opaque id is "U" + channel id, which holds even when the role claim is
// missing from older frontend tokens.
func (s *Server) requireBroadcaster(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		role, _ := c.Get(ctxRole).(string)
		channelID, _ := c.Get(ctxChannelID).(string)
		opaqueID, _ := c.Get(ctxOpaqueUserID).(string)

		if role != "broadcaster" && opaqueID != "U"+channelID {
			return apperrors.ForbiddenError("broadcaster access required")
		}
		return next(c)
	}
}

func viewerIdentity(c echo.Context) (channelID, opaqueUserID string) {
	channelID, _ = c.Get(ctxChannelID).(string)
	opaqueUserID, _ = c.Get(ctxOpaqueUserID).(string)
	return channelID, opaqueUserID
}
