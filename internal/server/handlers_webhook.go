package server

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/nicklaw5/helix/v2"

	apperrors "github.com/OikoumE/RAID-BATTLE-twitch-ext-BE/internal/errors"
	"github.com/OikoumE/RAID-BATTLE-twitch-ext-BE/internal/metrics"
	"github.com/OikoumE/RAID-BATTLE-twitch-ext-BE/internal/twitch"
)

const webhookBodyLimit = 1 << 20

// handleWebhook processes EventSub deliveries. Notifications are always
// acknowledged with 204 once authenticated; processing failures are our
// problem, and a retry storm from the platform would not fix them.
func (s *Server) handleWebhook(c echo.Context) error {
	body, err := io.ReadAll(io.LimitReader(c.Request().Body, webhookBodyLimit))
	if err != nil {
		return apperrors.ValidationError("failed to read webhook body")
	}

	messageID := c.Request().Header.Get(twitch.HeaderMessageID)
	timestamp := c.Request().Header.Get(twitch.HeaderMessageTimestamp)
	signature := c.Request().Header.Get(twitch.HeaderMessageSignature)
	messageType := c.Request().Header.Get(twitch.HeaderMessageType)

	if !twitch.VerifySignature([]byte(s.config.EventSubSecret), messageID, timestamp, body, signature) {
		metrics.WebhooksTotal.WithLabelValues(messageType, "bad_signature").Inc()
		return apperrors.ForbiddenError("invalid webhook signature")
	}
	if !twitch.FreshTimestamp(timestamp, s.clock.Now()) {
		metrics.WebhooksTotal.WithLabelValues(messageType, "stale").Inc()
		return apperrors.ForbiddenError("stale webhook timestamp")
	}

	var envelope twitch.WebhookEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		metrics.WebhooksTotal.WithLabelValues(messageType, "bad_body").Inc()
		return apperrors.ValidationError("invalid webhook body")
	}

	switch messageType {
	case twitch.MessageTypeVerification:
		metrics.WebhooksTotal.WithLabelValues(messageType, "ok").Inc()
		// The challenge confirms the subscription target installed the
		// extension, so make the channel known. A retried challenge hits
		// this branch again; EnsureStreamer is idempotent.
		if channelID := envelope.Subscription.ChannelID(); channelID != "" {
			go s.ensureVerifiedChannel(channelID)
		}
		return c.String(http.StatusOK, envelope.Challenge)

	case twitch.MessageTypeNotification:
		// Dedup covers notifications only: a retried verification must
		// always get its challenge echoed back, never a bare 204.
		seen, err := s.guard.Seen(c.Request().Context(), messageID)
		if err != nil {
			// Dedup store trouble must not drop real raids; fall through.
			slog.Error("Replay check failed", "message_id", messageID, "error", err)
		}
		if seen {
			metrics.WebhookReplaysTotal.Inc()
			metrics.WebhooksTotal.WithLabelValues(messageType, "replay").Inc()
			return c.NoContent(http.StatusNoContent)
		}
		metrics.WebhooksTotal.WithLabelValues(messageType, "ok").Inc()
		go s.dispatchNotification(envelope)
		return c.NoContent(http.StatusNoContent)

	case twitch.MessageTypeRevocation:
		metrics.WebhooksTotal.WithLabelValues(messageType, "ok").Inc()
		slog.Warn("Subscription revoked",
			"subscription_id", envelope.Subscription.ID,
			"type", envelope.Subscription.Type,
			"status", envelope.Subscription.Status,
		)
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			s.engine.RevokeChannel(ctx, envelope.Subscription.ChannelID())
		}()
		return c.NoContent(http.StatusNoContent)

	default:
		metrics.WebhooksTotal.WithLabelValues(messageType, "unknown").Inc()
		return c.NoContent(http.StatusNoContent)
	}
}

// ensureVerifiedChannel registers the streamer document and subscription
// state for a channel whose webhook verification just completed.
func (s *Server) ensureVerifiedChannel(channelID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if _, err := s.engine.EnsureStreamer(ctx, channelID); err != nil {
		slog.Error("Failed to register verified channel", "channel_id", channelID, "error", err)
	}
}

// dispatchNotification runs off the request path: notification handling
// does network lookups and the platform expects a fast acknowledgement.
func (s *Server) dispatchNotification(envelope twitch.WebhookEnvelope) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	switch envelope.Subscription.Type {
	case helix.EventSubTypeChannelRaid:
		var event twitch.RaidEvent
		if err := json.Unmarshal(envelope.Event, &event); err != nil {
			slog.Error("Failed to decode raid event", "error", err)
			return
		}
		if _, err := s.engine.StartRaid(ctx, event.ToBroadcasterUserLogin, event.FromBroadcasterUserLogin, event.Viewers); err != nil {
			slog.Warn("Raid rejected",
				"to", event.ToBroadcasterUserLogin,
				"from", event.FromBroadcasterUserLogin,
				"error", err,
			)
		}

	case helix.EventSubTypeStreamOnline:
		s.engine.StreamStatusChanged("")

	case helix.EventSubTypeStreamOffline:
		var event twitch.StreamEvent
		if err := json.Unmarshal(envelope.Event, &event); err != nil {
			slog.Error("Failed to decode stream event", "error", err)
			return
		}
		s.engine.StreamStatusChanged(event.BroadcasterUserID)

	default:
		slog.Info("Ignoring notification", "type", envelope.Subscription.Type)
	}
}
