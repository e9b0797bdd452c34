package twitch

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newChatTestSender(t *testing.T, calls *atomic.Int32, clock clockwork.Clock) (*ChatSender, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, "ext-client", r.Header.Get("Client-ID"))
		assert.True(t, strings.HasPrefix(r.Header.Get("Authorization"), "Bearer "))
		assert.Equal(t, "chan-1", r.URL.Query().Get("broadcaster_id"))

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "ext-client", body["extension_id"])
		assert.Equal(t, "1.2.3", body["extension_version"])
		assert.NotEmpty(t, body["text"])

		w.WriteHeader(http.StatusNoContent)
	}))

	signer := NewTokenSigner(testExtSecret, "owner-1", clock)
	sender := NewChatSender("ext-client", "1.2.3", signer, clock)
	sender.apiURL = srv.URL
	return sender, srv
}

func TestChatSenderSendsMessage(t *testing.T) {
	var calls atomic.Int32
	clock := clockwork.NewFakeClock()
	sender, srv := newChatTestSender(t, &calls, clock)
	defer srv.Close()

	err := sender.SendChatMessage(context.Background(), "chan-1", "hello chat")
	require.NoError(t, err)
	assert.EqualValues(t, 1, calls.Load())
}

func TestChatSenderDropsInsideCooldown(t *testing.T) {
	var calls atomic.Int32
	clock := clockwork.NewFakeClock()
	sender, srv := newChatTestSender(t, &calls, clock)
	defer srv.Close()

	require.NoError(t, sender.SendChatMessage(context.Background(), "chan-1", "first"))
	require.NoError(t, sender.SendChatMessage(context.Background(), "chan-1", "dropped"))
	assert.EqualValues(t, 1, calls.Load())

	clock.Advance(5 * time.Second)
	require.NoError(t, sender.SendChatMessage(context.Background(), "chan-1", "second"))
	assert.EqualValues(t, 2, calls.Load())
}

func TestChatSenderCooldownIsPerChannel(t *testing.T) {
	clock := clockwork.NewFakeClock()
	signer := NewTokenSigner(testExtSecret, "owner-1", clock)
	sender := NewChatSender("ext-client", "1.2.3", signer, clock)

	assert.True(t, sender.takeSlot("chan-1"))
	assert.False(t, sender.takeSlot("chan-1"))
	assert.True(t, sender.takeSlot("chan-2"))
}

func TestChatSenderTruncatesLongMessages(t *testing.T) {
	clock := clockwork.NewFakeClock()
	var got string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		got = body["text"]
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	signer := NewTokenSigner(testExtSecret, "owner-1", clock)
	sender := NewChatSender("ext-client", "1.2.3", signer, clock)
	sender.apiURL = srv.URL

	long := strings.Repeat("x", 500)
	require.NoError(t, sender.SendChatMessage(context.Background(), "chan-1", long))
	assert.Len(t, got, 280)
}
