package server

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OikoumE/RAID-BATTLE-twitch-ext-BE/internal/twitch"
)

func (f *serverFixture) webhookRequest(t *testing.T, messageID, messageType, body string) *httptest.ResponseRecorder {
	t.Helper()
	timestamp := f.clock.Now().UTC().Format(time.RFC3339Nano)

	mac := hmac.New(sha256.New, []byte(f.srv.config.EventSubSecret))
	mac.Write([]byte(messageID))
	mac.Write([]byte(timestamp))
	mac.Write([]byte(body))
	signature := "sha256=" + hex.EncodeToString(mac.Sum(nil))

	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(body))
	req.Header.Set(twitch.HeaderMessageID, messageID)
	req.Header.Set(twitch.HeaderMessageTimestamp, timestamp)
	req.Header.Set(twitch.HeaderMessageSignature, signature)
	req.Header.Set(twitch.HeaderMessageType, messageType)

	rec := httptest.NewRecorder()
	f.srv.echo.ServeHTTP(rec, req)
	return rec
}

func TestWebhookVerificationEchoesChallenge(t *testing.T) {
	f := newServerFixture(t)

	body := `{"challenge":"challenge-123","subscription":{"id":"sub-1","type":"channel.raid"}}`
	rec := f.webhookRequest(t, "msg-1", twitch.MessageTypeVerification, body)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "challenge-123", rec.Body.String())
}

func TestWebhookVerificationRegistersChannel(t *testing.T) {
	f := newServerFixture(t)

	body := `{"challenge":"ch","subscription":{"id":"sub-2","type":"channel.raid","condition":{"to_broadcaster_user_id":"chan-2"}}}`
	rec := f.webhookRequest(t, "msg-v", twitch.MessageTypeVerification, body)
	require.Equal(t, http.StatusOK, rec.Code)

	// The channel becomes known as a side effect of the verification.
	require.Eventually(t, func() bool {
		_, err := f.store.GetByChannelID(context.Background(), "chan-2")
		return err == nil
	}, time.Second, 10*time.Millisecond)

	stored, err := f.store.GetByChannelID(context.Background(), "chan-2")
	require.NoError(t, err)
	assert.Equal(t, "newstreamer", stored.ChannelName)
}

func TestWebhookVerificationRetryStillEchoesChallenge(t *testing.T) {
	f := newServerFixture(t)

	body := `{"challenge":"challenge-xyz","subscription":{"id":"sub-1","type":"channel.raid","condition":{"to_broadcaster_user_id":"chan-1"}}}`

	// The platform may redeliver the challenge under the same message id;
	// every attempt must get the echo, never a bare ack.
	for i := 0; i < 2; i++ {
		rec := f.webhookRequest(t, "msg-same", twitch.MessageTypeVerification, body)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "challenge-xyz", rec.Body.String())
	}
}

func TestWebhookRejectsBadSignature(t *testing.T) {
	f := newServerFixture(t)

	body := `{"subscription":{"type":"channel.raid"}}`
	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(body))
	req.Header.Set(twitch.HeaderMessageID, "msg-1")
	req.Header.Set(twitch.HeaderMessageTimestamp, f.clock.Now().UTC().Format(time.RFC3339Nano))
	req.Header.Set(twitch.HeaderMessageSignature, "sha256=deadbeef")
	req.Header.Set(twitch.HeaderMessageType, twitch.MessageTypeNotification)

	rec := httptest.NewRecorder()
	f.srv.echo.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestWebhookRejectsStaleTimestamp(t *testing.T) {
	f := newServerFixture(t)

	body := `{"subscription":{"type":"channel.raid"}}`
	stale := f.clock.Now().Add(-11 * time.Minute).UTC().Format(time.RFC3339Nano)

	mac := hmac.New(sha256.New, []byte(f.srv.config.EventSubSecret))
	mac.Write([]byte("msg-1"))
	mac.Write([]byte(stale))
	mac.Write([]byte(body))

	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(body))
	req.Header.Set(twitch.HeaderMessageID, "msg-1")
	req.Header.Set(twitch.HeaderMessageTimestamp, stale)
	req.Header.Set(twitch.HeaderMessageSignature, "sha256="+hex.EncodeToString(mac.Sum(nil)))
	req.Header.Set(twitch.HeaderMessageType, twitch.MessageTypeNotification)

	rec := httptest.NewRecorder()
	f.srv.echo.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestWebhookRaidNotification(t *testing.T) {
	f := newServerFixture(t)

	body := fmt.Sprintf(`{
		"subscription": {"id": "sub-1", "type": "channel.raid", "condition": {"to_broadcaster_user_id": "chan-1"}},
		"event": {
			"from_broadcaster_user_id": "raider-1",
			"from_broadcaster_user_login": "raider",
			"from_broadcaster_user_name": "Raider",
			"to_broadcaster_user_id": "chan-1",
			"to_broadcaster_user_login": "streamer",
			"viewers": %d
		}
	}`, 25)

	rec := f.webhookRequest(t, "msg-raid", "notification", body)
	require.Equal(t, http.StatusNoContent, rec.Code)

	// Processing is asynchronous; the session shows up shortly after.
	require.Eventually(t, func() bool {
		return f.engine.Registry().Len() == 1
	}, time.Second, 10*time.Millisecond)

	payload, ok := f.engine.Snapshot("chan-1")
	require.True(t, ok)
	require.Len(t, payload.Games, 1)
	assert.Equal(t, 25, payload.Games[0].Raider.Viewers)
}

func TestWebhookReplaySuppressed(t *testing.T) {
	f := newServerFixture(t)

	body := `{
		"subscription": {"id": "sub-1", "type": "channel.raid", "condition": {"to_broadcaster_user_id": "chan-1"}},
		"event": {
			"from_broadcaster_user_login": "raider",
			"to_broadcaster_user_login": "streamer",
			"viewers": 1
		}
	}`

	rec := f.webhookRequest(t, "msg-dup", "notification", body)
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Eventually(t, func() bool {
		return f.engine.Registry().Len() == 1
	}, time.Second, 10*time.Millisecond)

	// The identical redelivery acks without reprocessing.
	rec = f.webhookRequest(t, "msg-dup", "notification", body)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	sess, _ := f.engine.Registry().Get("chan-1")
	names, _ := sess.Raiders()
	assert.Len(t, names, 1)
}

func TestWebhookUnknownTypeAcked(t *testing.T) {
	f := newServerFixture(t)

	rec := f.webhookRequest(t, "msg-x", "somethingelse", `{"subscription":{"type":"user.update"}}`)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}
