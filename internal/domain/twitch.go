package domain

import "context"

// TwitchUser is the subset of a Helix user record the game needs.
type TwitchUser struct {
	ID          string
	Login       string
	DisplayName string
	AvatarURL   string
}

// LiveStream describes a currently live broadcast.
type LiveStream struct {
	ChannelID   string
	ViewerCount int
}

// LiveChannel is one channel that currently has the extension active.
type LiveChannel struct {
	ChannelID   string
	ChannelName string
}

// UserLookup is the identity/stream-lookup collaborator. Both lookups may
// time out or fail; callers treat that as a soft failure scoped to the
// operation that needed the data.
type UserLookup interface {
	GetUserByLogin(ctx context.Context, login string) (*TwitchUser, error)
	GetUserByID(ctx context.Context, id string) (*TwitchUser, error)
	// GetLiveStream returns nil when the channel is offline.
	GetLiveStream(ctx context.Context, channelID string) (*LiveStream, error)
	ListLiveExtensionChannels(ctx context.Context) ([]LiveChannel, error)
}

// BroadcastTransport delivers serialized session state to overlay clients.
// Payloads are bounded to a few kilobytes; callers prune expired result
// messages before serialization.
type BroadcastTransport interface {
	SendToChannel(ctx context.Context, channelID string, payload []byte) error
	SendGlobal(ctx context.Context, payload []byte) error
}

// ChatRelay posts a message into a channel's chat. Implementations enforce
// the platform's one-message-per-5s-per-channel limit.
type ChatRelay interface {
	SendChatMessage(ctx context.Context, channelID, text string) error
}
