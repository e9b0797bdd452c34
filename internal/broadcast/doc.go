// Package broadcast rate-limits extension PubSub sends. Every state change
// marks a channel dirty; the scheduler coalesces marks arriving inside the
// per-channel cooldown into a single send carrying the latest state.
package broadcast
