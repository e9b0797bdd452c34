package twitch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// AppTokenSource caches an app access token obtained via the client
// credentials grant and refreshes it shortly before expiry.
type AppTokenSource struct {
	clientID     string
	clientSecret string
	oauthURL     string // OAuth token endpoint URL (configurable for testing)
	clock        clockwork.Clock
	httpClient   *http.Client

	mu     sync.Mutex
	token  string
	expiry time.Time
}

func NewAppTokenSource(clientID, clientSecret string, clock clockwork.Clock) *AppTokenSource {
	return &AppTokenSource{
		clientID:     clientID,
		clientSecret: clientSecret,
		oauthURL:     "https://id.twitch.tv/oauth2/token", // Default to Twitch
		clock:        clock,
		httpClient:   &http.Client{Timeout: 10 * time.Second},
	}
}

// Token returns a valid app access token, fetching a new one when the
// cached token expires within the next 60 seconds.
func (s *AppTokenSource) Token(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.token != "" && s.clock.Now().Add(60*time.Second).Before(s.expiry) {
		return s.token, nil
	}

	token, expiresIn, err := s.fetchToken(ctx)
	if err != nil {
		return "", err
	}

	s.token = token
	s.expiry = s.clock.Now().Add(time.Duration(expiresIn) * time.Second)
	return s.token, nil
}

func (s *AppTokenSource) fetchToken(ctx context.Context) (token string, expiresIn int, err error) {
	data := url.Values{}
	data.Set("client_id", s.clientID)
	data.Set("client_secret", s.clientSecret)
	data.Set("grant_type", "client_credentials")

	req, err := http.NewRequestWithContext(ctx, "POST", s.oauthURL, strings.NewReader(data.Encode()))
	if err != nil {
		return "", 0, fmt.Errorf("failed to build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", 0, fmt.Errorf("token request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", 0, fmt.Errorf("failed to read token response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", 0, fmt.Errorf("token request failed with status %d: %s", resp.StatusCode, string(body))
	}

	var result struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return "", 0, fmt.Errorf("failed to parse token response: %w", err)
	}

	return result.AccessToken, result.ExpiresIn, nil
}
