package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// clickCooldown is the minimum spacing between accepted clicks per viewer
// per channel.
const clickCooldown = 100 * time.Millisecond

// ClickCooldown throttles viewer support clicks. Clicks inside the window
// are dropped, not queued.
type ClickCooldown struct {
	rdb *redis.Client
}

// Allow reports whether the viewer may click now. An allowed click claims
// the cooldown slot atomically.
func (c *ClickCooldown) Allow(ctx context.Context, channelID, opaqueUserID string) (bool, error) {
	key := fmt.Sprintf("click:%s:%s", channelID, opaqueUserID)
	ok, err := c.rdb.SetNX(ctx, key, 1, clickCooldown).Result()
	if err != nil {
		return false, fmt.Errorf("click cooldown check failed: %w", err)
	}
	return ok, nil
}
