package twitch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/OikoumE/RAID-BATTLE-twitch-ext-BE/internal/metrics"
)

const (
	chatCooldown   = 5 * time.Second
	chatMaxRunes   = 280
	chatEndpoint   = "https://api.twitch.tv/helix/extensions/chat"
	chatHTTPTimout = 10 * time.Second
)

// ChatSender posts messages into channel chat through the extension chat
// endpoint. One message per channel per cooldown window; messages arriving
// inside the window are dropped, not queued. Implements domain.ChatRelay.
type ChatSender struct {
	clientID   string
	extVersion string
	signer     *TokenSigner
	clock      clockwork.Clock
	apiURL     string
	httpClient *http.Client

	mu       sync.Mutex
	lastSent map[string]time.Time
}

func NewChatSender(extClientID, extVersion string, signer *TokenSigner, clock clockwork.Clock) *ChatSender {
	return &ChatSender{
		clientID:   extClientID,
		extVersion: extVersion,
		signer:     signer,
		clock:      clock,
		apiURL:     chatEndpoint,
		httpClient: &http.Client{Timeout: chatHTTPTimout},
		lastSent:   make(map[string]time.Time),
	}
}

func (c *ChatSender) SendChatMessage(ctx context.Context, channelID, text string) error {
	if !c.takeSlot(channelID) {
		metrics.ChatMessagesTotal.WithLabelValues("cooldown").Inc()
		return nil
	}

	if runes := []rune(text); len(runes) > chatMaxRunes {
		text = string(runes[:chatMaxRunes])
	}

	token, err := c.signer.ChannelToken(channelID)
	if err != nil {
		metrics.ChatMessagesTotal.WithLabelValues("error").Inc()
		return err
	}

	body, err := json.Marshal(map[string]string{
		"text":              text,
		"extension_id":      c.clientID,
		"extension_version": c.extVersion,
	})
	if err != nil {
		return fmt.Errorf("failed to encode chat body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.apiURL+"?broadcaster_id="+channelID, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build chat request: %w", err)
	}
	req.Header.Set("Client-ID", c.clientID)
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.ChatMessagesTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("chat request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent {
		metrics.ChatMessagesTotal.WithLabelValues("error").Inc()
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("chat request failed with status %d: %s", resp.StatusCode, string(detail))
	}

	metrics.ChatMessagesTotal.WithLabelValues("sent").Inc()
	return nil
}

// takeSlot reports whether the channel is outside its cooldown window and
// claims the slot when it is.
func (c *ChatSender) takeSlot(channelID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now()
	if last, ok := c.lastSent[channelID]; ok && now.Sub(last) < chatCooldown {
		return false
	}
	c.lastSent[channelID] = now
	return true
}
