package domain

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrStreamerNotFound is returned when no streamer document exists for
	// the given channel.
	ErrStreamerNotFound = errors.New("streamer not found")
	// ErrRaiderActive is returned when a raider already has an entry in the
	// channel's open session (duplicate or replayed raid event).
	ErrRaiderActive = errors.New("raider already has an active game")
	// ErrNoActiveGame is returned for vote or status requests against a
	// channel with no open session.
	ErrNoActiveGame = errors.New("no active game on channel")
	// ErrGameOver is returned for votes arriving after the active phase.
	ErrGameOver = errors.New("game is no longer accepting votes")
	// ErrStreamOffline is returned when a raid targets a channel that is
	// not currently live.
	ErrStreamOffline = errors.New("streamer is not live")
)

// Streamer is the persistent document for one channel that installed the
// extension. Field names follow the stored collection.
type Streamer struct {
	ChannelID     string         `bson:"channelId" json:"channelId"`
	ChannelName   string         `bson:"channelName" json:"channelName"`
	DisplayName   string         `bson:"displayName" json:"displayName"`
	ProfilePicURL string         `bson:"profilePicUrl" json:"profilePicUrl"`
	Created       time.Time      `bson:"created" json:"-"`
	EventSubIDs   []string       `bson:"eventSubId" json:"-"`
	Score         int            `bson:"score" json:"score"`
	BattleHistory []BattleRecord `bson:"battleHistory" json:"battleHistory"`
	UserConfig    *SettingsPatch `bson:"userConfig,omitempty" json:"userConfig,omitempty"`
}

// Settings resolves the streamer's effective game settings.
func (s *Streamer) Settings() GameSettings {
	return s.UserConfig.Apply(DefaultSettings())
}

// BattleRecord is one append-only history entry.
type BattleRecord struct {
	Versus []string  `bson:"vs" json:"vs"`
	Result string    `bson:"result" json:"result"`
	Date   time.Time `bson:"date" json:"date"`
}

// NewsItem is one entry of the latest-news feed shown in the config view.
type NewsItem struct {
	Date    string `bson:"date" json:"date"`
	Content string `bson:"content" json:"content"`
}

// StreamerStore is the persistence collaborator, a narrow document-store
// interface. All history writes are fire-and-forget upserts from the
// caller's point of view: failures are logged, never propagated into game
// state.
type StreamerStore interface {
	GetByChannelID(ctx context.Context, channelID string) (*Streamer, error)
	GetByChannelName(ctx context.Context, channelName string) (*Streamer, error)
	Insert(ctx context.Context, s *Streamer) error
	List(ctx context.Context) ([]Streamer, error)
	ListByChannelIDs(ctx context.Context, channelIDs []string) ([]Streamer, error)
	UpdateConfig(ctx context.Context, channelID string, patch *SettingsPatch) error
	SetEventSubIDs(ctx context.Context, channelID string, subIDs []string) error
	// AppendHistory pushes one battle record and bumps the score for a
	// single channel; AppendHistoryMany does the same for every raider.
	AppendHistory(ctx context.Context, channelID string, rec BattleRecord, scoreDelta int) error
	AppendHistoryMany(ctx context.Context, channelIDs []string, rec BattleRecord, scoreDelta int) error
	SeedDefaults(ctx context.Context, defaults GameSettings) error
	ListNews(ctx context.Context) ([]NewsItem, error)
}
