package mongo

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/OikoumE/RAID-BATTLE-twitch-ext-BE/internal/domain"
)

// StreamerRepository implements domain.StreamerStore on MongoDB.
type StreamerRepository struct {
	streamers *mongo.Collection
	defaults  *mongo.Collection
	news      *mongo.Collection
}

func (r *StreamerRepository) GetByChannelID(ctx context.Context, channelID string) (*domain.Streamer, error) {
	return r.findOne(ctx, bson.M{"channelId": channelID})
}

func (r *StreamerRepository) GetByChannelName(ctx context.Context, channelName string) (*domain.Streamer, error) {
	return r.findOne(ctx, bson.M{"channelName": channelName})
}

func (r *StreamerRepository) findOne(ctx context.Context, filter bson.M) (*domain.Streamer, error) {
	var streamer domain.Streamer
	err := r.streamers.FindOne(ctx, filter).Decode(&streamer)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, domain.ErrStreamerNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load streamer: %w", err)
	}
	return &streamer, nil
}

func (r *StreamerRepository) Insert(ctx context.Context, s *domain.Streamer) error {
	if _, err := r.streamers.InsertOne(ctx, s); err != nil {
		return fmt.Errorf("failed to insert streamer: %w", err)
	}
	return nil
}

func (r *StreamerRepository) List(ctx context.Context) ([]domain.Streamer, error) {
	return r.find(ctx, bson.M{})
}

func (r *StreamerRepository) ListByChannelIDs(ctx context.Context, channelIDs []string) ([]domain.Streamer, error) {
	if len(channelIDs) == 0 {
		return nil, nil
	}
	return r.find(ctx, bson.M{"channelId": bson.M{"$in": channelIDs}})
}

func (r *StreamerRepository) find(ctx context.Context, filter bson.M) ([]domain.Streamer, error) {
	cursor, err := r.streamers.Find(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list streamers: %w", err)
	}
	defer cursor.Close(ctx)

	var streamers []domain.Streamer
	if err := cursor.All(ctx, &streamers); err != nil {
		return nil, fmt.Errorf("failed to decode streamers: %w", err)
	}
	return streamers, nil
}

func (r *StreamerRepository) UpdateConfig(ctx context.Context, channelID string, patch *domain.SettingsPatch) error {
	res, err := r.streamers.UpdateOne(ctx,
		bson.M{"channelId": channelID},
		bson.M{"$set": bson.M{"userConfig": patch}},
	)
	if err != nil {
		return fmt.Errorf("failed to update streamer config: %w", err)
	}
	if res.MatchedCount == 0 {
		return domain.ErrStreamerNotFound
	}
	return nil
}

func (r *StreamerRepository) SetEventSubIDs(ctx context.Context, channelID string, subIDs []string) error {
	res, err := r.streamers.UpdateOne(ctx,
		bson.M{"channelId": channelID},
		bson.M{"$set": bson.M{"eventSubId": subIDs}},
	)
	if err != nil {
		return fmt.Errorf("failed to update subscription ids: %w", err)
	}
	if res.MatchedCount == 0 {
		return domain.ErrStreamerNotFound
	}
	return nil
}

func (r *StreamerRepository) AppendHistory(ctx context.Context, channelID string, rec domain.BattleRecord, scoreDelta int) error {
	_, err := r.streamers.UpdateOne(ctx,
		bson.M{"channelId": channelID},
		bson.M{
			"$push": bson.M{"battleHistory": rec},
			"$inc":  bson.M{"score": scoreDelta},
		},
	)
	if err != nil {
		return fmt.Errorf("failed to append battle history: %w", err)
	}
	return nil
}

func (r *StreamerRepository) AppendHistoryMany(ctx context.Context, channelIDs []string, rec domain.BattleRecord, scoreDelta int) error {
	if len(channelIDs) == 0 {
		return nil
	}
	_, err := r.streamers.UpdateMany(ctx,
		bson.M{"channelId": bson.M{"$in": channelIDs}},
		bson.M{
			"$push": bson.M{"battleHistory": rec},
			"$inc":  bson.M{"score": scoreDelta},
		},
	)
	if err != nil {
		return fmt.Errorf("failed to append battle history: %w", err)
	}
	return nil
}

// SeedDefaults upserts the singleton defaults document so a fresh
// deployment starts with the standard game settings.
func (r *StreamerRepository) SeedDefaults(ctx context.Context, defaults domain.GameSettings) error {
	_, err := r.defaults.UpdateOne(ctx,
		bson.M{"_id": "gameSettings"},
		bson.M{"$setOnInsert": bson.M{"settings": defaults}},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("failed to seed default settings: %w", err)
	}
	return nil
}

func (r *StreamerRepository) ListNews(ctx context.Context) ([]domain.NewsItem, error) {
	cursor, err := r.news.Find(ctx, bson.M{}, options.Find().SetSort(bson.M{"date": -1}))
	if err != nil {
		return nil, fmt.Errorf("failed to list news: %w", err)
	}
	defer cursor.Close(ctx)

	var items []domain.NewsItem
	if err := cursor.All(ctx, &items); err != nil {
		return nil, fmt.Errorf("failed to decode news: %w", err)
	}
	return items, nil
}
