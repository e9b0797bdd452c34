package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// replayTTL matches the webhook replay window: ids older than that are
// rejected by the timestamp check before dedup is consulted.
const replayTTL = 10 * time.Minute

// ReplayGuard remembers recently seen EventSub message ids so redelivered
// or replayed notifications are processed at most once.
type ReplayGuard struct {
	rdb *redis.Client
}

// Seen marks the message id and reports whether it was already recorded.
// The check and the mark are one atomic SET NX.
func (g *ReplayGuard) Seen(ctx context.Context, messageID string) (bool, error) {
	ok, err := g.rdb.SetNX(ctx, "eventsub:msg:"+messageID, 1, replayTTL).Result()
	if err != nil {
		return false, fmt.Errorf("replay check failed: %w", err)
	}
	return !ok, nil
}
