package twitch

import (
	"context"
	"fmt"

	"github.com/nicklaw5/helix/v2"
)

// SubscriptionManager keeps the webhook EventSub subscriptions of a channel
// in the desired state: channel.raid toward the channel plus stream
// online/offline notifications.
type SubscriptionManager struct {
	client   *Client
	callback string
	secret   string
}

func NewSubscriptionManager(client *Client, callback, secret string) *SubscriptionManager {
	return &SubscriptionManager{client: client, callback: callback, secret: secret}
}

// wantedSubscriptions lists the subscription types per channel and which
// condition field carries the channel id.
func (m *SubscriptionManager) wantedSubscriptions(channelID string) []helix.EventSubSubscription {
	return []helix.EventSubSubscription{
		{
			Type:      helix.EventSubTypeChannelRaid,
			Version:   "1",
			Condition: helix.EventSubCondition{ToBroadcasterUserID: channelID},
		},
		{
			Type:      helix.EventSubTypeStreamOnline,
			Version:   "1",
			Condition: helix.EventSubCondition{BroadcasterUserID: channelID},
		},
		{
			Type:      helix.EventSubTypeStreamOffline,
			Version:   "1",
			Condition: helix.EventSubCondition{BroadcasterUserID: channelID},
		},
	}
}

// EnsureSubscription creates any missing subscription for the channel and
// returns the full set of subscription ids. Existing enabled or pending
// subscriptions are reused.
func (m *SubscriptionManager) EnsureSubscription(ctx context.Context, channelID string) ([]string, error) {
	existing, err := m.listForChannel(ctx, channelID)
	if err != nil {
		return nil, err
	}

	hx, release, err := m.client.api(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	var ids []string
	for _, want := range m.wantedSubscriptions(channelID) {
		if id, ok := existing[want.Type]; ok {
			ids = append(ids, id)
			continue
		}

		want.Transport = helix.EventSubTransport{
			Method:   "webhook",
			Callback: m.callback,
			Secret:   m.secret,
		}
		resp, err := hx.CreateEventSubSubscription(&want)
		if err != nil {
			return nil, fmt.Errorf("failed to create %s subscription: %w", want.Type, err)
		}
		if resp.StatusCode >= 300 {
			return nil, fmt.Errorf("create %s subscription failed with status %d: %s", want.Type, resp.StatusCode, resp.ErrorMessage)
		}
		if len(resp.Data.EventSubSubscriptions) > 0 {
			ids = append(ids, resp.Data.EventSubSubscriptions[0].ID)
		}
	}
	return ids, nil
}

// DeleteSubscription removes every subscription pointing at the channel.
func (m *SubscriptionManager) DeleteSubscription(ctx context.Context, channelID string) error {
	existing, err := m.listForChannel(ctx, channelID)
	if err != nil {
		return err
	}

	hx, release, err := m.client.api(ctx)
	if err != nil {
		return err
	}
	defer release()

	for subType, id := range existing {
		resp, err := hx.RemoveEventSubSubscription(id)
		if err != nil {
			return fmt.Errorf("failed to remove %s subscription: %w", subType, err)
		}
		if resp.StatusCode >= 300 && resp.StatusCode != 404 {
			return fmt.Errorf("remove %s subscription failed with status %d: %s", subType, resp.StatusCode, resp.ErrorMessage)
		}
	}
	return nil
}

// listForChannel maps subscription type to id for the channel's active
// webhook subscriptions.
func (m *SubscriptionManager) listForChannel(ctx context.Context, channelID string) (map[string]string, error) {
	hx, release, err := m.client.api(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	found := make(map[string]string)
	cursor := ""
	for {
		resp, err := hx.GetEventSubSubscriptions(&helix.EventSubSubscriptionsParams{After: cursor})
		if err != nil {
			return nil, fmt.Errorf("failed to list subscriptions: %w", err)
		}
		if resp.StatusCode != 200 {
			return nil, fmt.Errorf("list subscriptions failed with status %d: %s", resp.StatusCode, resp.ErrorMessage)
		}

		for _, sub := range resp.Data.EventSubSubscriptions {
			if sub.Status != helix.EventSubStatusEnabled && sub.Status != helix.EventSubStatusPending {
				continue
			}
			if sub.Condition.ToBroadcasterUserID == channelID || sub.Condition.BroadcasterUserID == channelID {
				found[sub.Type] = sub.ID
			}
		}

		cursor = resp.Data.Pagination.Cursor
		if cursor == "" {
			return found, nil
		}
	}
}
