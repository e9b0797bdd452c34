package twitch

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"
)

// EventSub webhook header names.
const (
	HeaderMessageID        = "Twitch-Eventsub-Message-Id"
	HeaderMessageTimestamp = "Twitch-Eventsub-Message-Timestamp"
	HeaderMessageSignature = "Twitch-Eventsub-Message-Signature"
	HeaderMessageType      = "Twitch-Eventsub-Message-Type"
)

// EventSub message types.
const (
	MessageTypeVerification = "webhook_callback_verification"
	MessageTypeNotification = "notification"
	MessageTypeRevocation   = "revocation"
)

// ReplayWindow bounds how old a delivery's timestamp may be. Deliveries
// outside the window are rejected even with a valid signature.
const ReplayWindow = 10 * time.Minute

// WebhookEnvelope is the common body shape of every EventSub delivery.
type WebhookEnvelope struct {
	Challenge    string              `json:"challenge"`
	Subscription WebhookSubscription `json:"subscription"`
	Event        json.RawMessage     `json:"event"`
}

type WebhookSubscription struct {
	ID        string `json:"id"`
	Type      string `json:"type"`
	Status    string `json:"status"`
	Condition struct {
		BroadcasterUserID   string `json:"broadcaster_user_id"`
		ToBroadcasterUserID string `json:"to_broadcaster_user_id"`
	} `json:"condition"`
}

// ChannelID returns the channel the subscription points at, regardless of
// which condition field carries it.
func (s WebhookSubscription) ChannelID() string {
	if s.Condition.ToBroadcasterUserID != "" {
		return s.Condition.ToBroadcasterUserID
	}
	return s.Condition.BroadcasterUserID
}

// RaidEvent is the channel.raid notification payload.
type RaidEvent struct {
	FromBroadcasterUserID    string `json:"from_broadcaster_user_id"`
	FromBroadcasterUserLogin string `json:"from_broadcaster_user_login"`
	FromBroadcasterUserName  string `json:"from_broadcaster_user_name"`
	ToBroadcasterUserID      string `json:"to_broadcaster_user_id"`
	ToBroadcasterUserLogin   string `json:"to_broadcaster_user_login"`
	Viewers                  int    `json:"viewers"`
}

// StreamEvent is the stream.online / stream.offline notification payload.
type StreamEvent struct {
	BroadcasterUserID    string `json:"broadcaster_user_id"`
	BroadcasterUserLogin string `json:"broadcaster_user_login"`
}

// VerifySignature checks the delivery's HMAC. The signed message is the
// concatenation of message id, timestamp, and raw body; the header carries
// the hex digest with a "sha256=" prefix. Comparison is constant time.
func VerifySignature(secret []byte, messageID, timestamp string, body []byte, signature string) bool {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(messageID))
	mac.Write([]byte(timestamp))
	mac.Write(body)
	expected := "sha256=" + hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}

// FreshTimestamp reports whether the delivery timestamp parses and falls
// inside the replay window relative to now.
func FreshTimestamp(timestamp string, now time.Time) bool {
	ts, err := time.Parse(time.RFC3339Nano, timestamp)
	if err != nil {
		return false
	}
	age := now.Sub(ts)
	return age >= -time.Minute && age <= ReplayWindow
}
