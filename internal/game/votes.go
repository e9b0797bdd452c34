package game

import (
	"github.com/OikoumE/RAID-BATTLE-twitch-ext-BE/internal/domain"
)

type sideTracker struct {
	clicks   int
	clickers map[string]struct{}
}

func (t *sideTracker) has(voter string) bool {
	_, ok := t.clickers[voter]
	return ok
}

// ClickTracker aggregates viewer support clicks for one session. A voter's
// first accepted side is sticky: later clicks for the opposite side are
// redirected back, so alternating buttons can never inflate a tally.
// Not safe for concurrent use; the owning session's lock covers it.
type ClickTracker struct {
	streamer sideTracker
	raider   sideTracker
}

func newClickTracker() *ClickTracker {
	return &ClickTracker{
		streamer: sideTracker{clickers: make(map[string]struct{})},
		raider:   sideTracker{clickers: make(map[string]struct{})},
	}
}

func (t *ClickTracker) side(s domain.Side) *sideTracker {
	if s == domain.SideStreamer {
		return &t.streamer
	}
	return &t.raider
}

// Vote records one click from voter for the requested side. It returns the
// side the click was attributed to and whether it was redirected because the
// voter already belongs to the opposite side.
func (t *ClickTracker) Vote(side domain.Side, voter string) (attributed domain.Side, redirected bool) {
	attributed = side
	if t.side(side.Opposite()).has(voter) {
		attributed = side.Opposite()
		redirected = true
	}

	tracker := t.side(attributed)
	if !tracker.has(voter) {
		tracker.clickers[voter] = struct{}{}
	}
	tracker.clicks++
	return attributed, redirected
}

// Balance computes the support state: streamer clicks per distinct streamer
// clicker minus raider clicks per distinct raider clicker. Positive means
// the streamer side leads. The per-capita normalization keeps one spammy
// voter from outweighing many one-time voters on the other side.
func (t *ClickTracker) Balance() float64 {
	return perCapita(&t.streamer) - perCapita(&t.raider)
}

func perCapita(t *sideTracker) float64 {
	if t.clicks == 0 || len(t.clickers) == 0 {
		return 0
	}
	return float64(t.clicks) / float64(len(t.clickers))
}

// Counts returns the aggregate click counts in wire form.
func (t *ClickTracker) Counts() domain.TrackerPayload {
	return domain.TrackerPayload{
		Streamer: domain.ClickerPayload{Clicks: t.streamer.clicks, Clickers: len(t.streamer.clickers)},
		Raider:   domain.ClickerPayload{Clicks: t.raider.clicks, Clickers: len(t.raider.clickers)},
	}
}
