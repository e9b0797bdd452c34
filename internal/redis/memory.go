package redis

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// MemoryReplayGuard is the in-process ReplayGuard used in tests and
// single-instance deployments without Redis.
type MemoryReplayGuard struct {
	clock clockwork.Clock

	mu   sync.Mutex
	seen map[string]time.Time
}

func NewMemoryReplayGuard(clock clockwork.Clock) *MemoryReplayGuard {
	return &MemoryReplayGuard{clock: clock, seen: make(map[string]time.Time)}
}

func (g *MemoryReplayGuard) Seen(_ context.Context, messageID string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.clock.Now()
	if expiry, ok := g.seen[messageID]; ok && now.Before(expiry) {
		return true, nil
	}

	// Lazy prune keeps the map bounded without a background sweeper.
	if len(g.seen) > 4096 {
		for id, expiry := range g.seen {
			if !now.Before(expiry) {
				delete(g.seen, id)
			}
		}
	}

	g.seen[messageID] = now.Add(replayTTL)
	return false, nil
}

// MemoryClickCooldown is the in-process ClickCooldown counterpart.
type MemoryClickCooldown struct {
	clock clockwork.Clock

	mu   sync.Mutex
	last map[string]time.Time
}

func NewMemoryClickCooldown(clock clockwork.Clock) *MemoryClickCooldown {
	return &MemoryClickCooldown{clock: clock, last: make(map[string]time.Time)}
}

func (c *MemoryClickCooldown) Allow(_ context.Context, channelID, opaqueUserID string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := channelID + ":" + opaqueUserID
	now := c.clock.Now()
	if last, ok := c.last[key]; ok && now.Sub(last) < clickCooldown {
		return false, nil
	}

	if len(c.last) > 16384 {
		for k, last := range c.last {
			if now.Sub(last) >= clickCooldown {
				delete(c.last, k)
			}
		}
	}

	c.last[key] = now
	return true, nil
}
