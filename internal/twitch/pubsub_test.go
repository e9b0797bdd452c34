package twitch

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPubSubTestSender(t *testing.T, handler func(map[string]any)) (*PubSubSender, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "ext-client", r.Header.Get("Client-ID"))
		assert.NotEmpty(t, r.Header.Get("Authorization"))

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		handler(body)
		w.WriteHeader(http.StatusNoContent)
	}))

	signer := NewTokenSigner(testExtSecret, "owner-1", clockwork.NewFakeClock())
	sender := NewPubSubSender("ext-client", signer)
	sender.apiURL = srv.URL
	return sender, srv
}

func TestSendToChannel(t *testing.T) {
	var got map[string]any
	sender, srv := newPubSubTestSender(t, func(body map[string]any) { got = body })
	defer srv.Close()

	err := sender.SendToChannel(context.Background(), "chan-1", []byte(`{"gameState":"active"}`))
	require.NoError(t, err)

	assert.Equal(t, "chan-1", got["broadcaster_id"])
	assert.Equal(t, `{"gameState":"active"}`, got["message"])
	assert.Equal(t, []any{"broadcast"}, got["target"])
}

func TestSendGlobal(t *testing.T) {
	var got map[string]any
	sender, srv := newPubSubTestSender(t, func(body map[string]any) { got = body })
	defer srv.Close()

	err := sender.SendGlobal(context.Background(), []byte(`{"data":[]}`))
	require.NoError(t, err)

	assert.Equal(t, true, got["is_global_broadcast"])
	assert.Equal(t, []any{"global"}, got["target"])
	assert.Nil(t, got["broadcaster_id"])
}

func TestSendErrorOnBadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"too big"}`, http.StatusRequestEntityTooLarge)
	}))
	defer srv.Close()

	signer := NewTokenSigner(testExtSecret, "owner-1", clockwork.NewFakeClock())
	sender := NewPubSubSender("ext-client", signer)
	sender.apiURL = srv.URL

	err := sender.SendToChannel(context.Background(), "chan-1", []byte("{}"))
	assert.ErrorContains(t, err, "status 413")
}
