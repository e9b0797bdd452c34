package twitch

import (
	"context"
	"fmt"
	"sync"

	"github.com/nicklaw5/helix/v2"

	"github.com/OikoumE/RAID-BATTLE-twitch-ext-BE/internal/domain"
)

// Client wraps the Helix API for identity, stream, and extension lookups.
// It implements domain.UserLookup.
type Client struct {
	tokens      *AppTokenSource
	extClientID string

	mu sync.Mutex
	hx *helix.Client
}

func NewClient(appClientID string, tokens *AppTokenSource, extClientID string) (*Client, error) {
	hx, err := helix.NewClient(&helix.Options{ClientID: appClientID})
	if err != nil {
		return nil, fmt.Errorf("failed to create helix client: %w", err)
	}
	return &Client{tokens: tokens, extClientID: extClientID, hx: hx}, nil
}

// api refreshes the app token on the underlying client and hands it out
// under the lock. The helix client mutates its token field, so all calls
// are serialized.
func (c *Client) api(ctx context.Context) (*helix.Client, func(), error) {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get app token: %w", err)
	}
	c.mu.Lock()
	c.hx.SetAppAccessToken(token)
	return c.hx, c.mu.Unlock, nil
}

func (c *Client) GetUserByLogin(ctx context.Context, login string) (*domain.TwitchUser, error) {
	return c.getUser(ctx, &helix.UsersParams{Logins: []string{login}})
}

func (c *Client) GetUserByID(ctx context.Context, id string) (*domain.TwitchUser, error) {
	return c.getUser(ctx, &helix.UsersParams{IDs: []string{id}})
}

func (c *Client) getUser(ctx context.Context, params *helix.UsersParams) (*domain.TwitchUser, error) {
	hx, release, err := c.api(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	resp, err := hx.GetUsers(params)
	if err != nil {
		return nil, fmt.Errorf("users request failed: %w", err)
	}
	if resp.StatusCode != 200 {
		return nil, fmt.Errorf("users request failed with status %d: %s", resp.StatusCode, resp.ErrorMessage)
	}
	if len(resp.Data.Users) == 0 {
		return nil, fmt.Errorf("user not found")
	}

	u := resp.Data.Users[0]
	return &domain.TwitchUser{
		ID:          u.ID,
		Login:       u.Login,
		DisplayName: u.DisplayName,
		AvatarURL:   u.ProfileImageURL,
	}, nil
}

// GetLiveStream returns nil when the channel is not live.
func (c *Client) GetLiveStream(ctx context.Context, channelID string) (*domain.LiveStream, error) {
	hx, release, err := c.api(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	resp, err := hx.GetStreams(&helix.StreamsParams{UserIDs: []string{channelID}})
	if err != nil {
		return nil, fmt.Errorf("streams request failed: %w", err)
	}
	if resp.StatusCode != 200 {
		return nil, fmt.Errorf("streams request failed with status %d: %s", resp.StatusCode, resp.ErrorMessage)
	}
	if len(resp.Data.Streams) == 0 {
		return nil, nil
	}

	s := resp.Data.Streams[0]
	return &domain.LiveStream{ChannelID: s.UserID, ViewerCount: s.ViewerCount}, nil
}

// ListLiveExtensionChannels pages through every live channel that has the
// extension activated.
func (c *Client) ListLiveExtensionChannels(ctx context.Context) ([]domain.LiveChannel, error) {
	hx, release, err := c.api(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	var channels []domain.LiveChannel
	cursor := ""
	for {
		resp, err := hx.GetExtensionLiveChannels(&helix.ExtensionLiveChannelsParams{
			ExtensionID: c.extClientID,
			First:       100,
			After:       cursor,
		})
		if err != nil {
			return nil, fmt.Errorf("live channels request failed: %w", err)
		}
		if resp.StatusCode != 200 {
			return nil, fmt.Errorf("live channels request failed with status %d: %s", resp.StatusCode, resp.ErrorMessage)
		}

		for _, ch := range resp.Data.LiveChannels {
			channels = append(channels, domain.LiveChannel{
				ChannelID:   ch.BroadcasterID,
				ChannelName: ch.BroadcasterName,
			})
		}

		cursor = resp.Data.Pagination
		if cursor == "" || len(resp.Data.LiveChannels) == 0 {
			return channels, nil
		}
	}
}
