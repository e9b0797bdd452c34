package twitch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// PubSubSender delivers payloads to overlay clients through the extension
// PubSub endpoint. It implements domain.BroadcastTransport.
type PubSubSender struct {
	clientID   string
	signer     *TokenSigner
	apiURL     string // PubSub endpoint URL (configurable for testing)
	httpClient *http.Client
}

func NewPubSubSender(extClientID string, signer *TokenSigner) *PubSubSender {
	return &PubSubSender{
		clientID:   extClientID,
		signer:     signer,
		apiURL:     "https://api.twitch.tv/helix/extensions/pubsub",
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// SendToChannel pushes the payload to every overlay on one channel.
func (p *PubSubSender) SendToChannel(ctx context.Context, channelID string, payload []byte) error {
	token, err := p.signer.ChannelToken(channelID)
	if err != nil {
		return err
	}
	body := map[string]any{
		"broadcaster_id": channelID,
		"message":        string(payload),
		"target":         []string{"broadcast"},
	}
	return p.post(ctx, token, body)
}

// SendGlobal pushes the payload to every channel running the extension.
func (p *PubSubSender) SendGlobal(ctx context.Context, payload []byte) error {
	token, err := p.signer.GlobalToken()
	if err != nil {
		return err
	}
	body := map[string]any{
		"is_global_broadcast": true,
		"message":             string(payload),
		"target":              []string{"global"},
	}
	return p.post(ctx, token, body)
}

func (p *PubSubSender) post(ctx context.Context, token string, body map[string]any) error {
	encoded, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to encode pubsub body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", p.apiURL, bytes.NewReader(encoded))
	if err != nil {
		return fmt.Errorf("failed to build pubsub request: %w", err)
	}
	req.Header.Set("Client-ID", p.clientID)
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("pubsub request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("pubsub request failed with status %d: %s", resp.StatusCode, string(detail))
	}
	return nil
}
