// Package redis implements Redis-backed guards.
//
// Provides ReplayGuard (EventSub message-id dedup) and ClickCooldown (per-viewer vote
// throttling). In-memory variants back both for tests and single-instance deployments.
package redis
