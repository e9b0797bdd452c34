package game

import (
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/OikoumE/RAID-BATTLE-twitch-ext-BE/internal/domain"
)

// Transition is a phase change detected by a sweep.
type Transition int

const (
	TransitionNone Transition = iota
	TransitionActive
	TransitionResult
)

// Session is the live game state of one channel, from the first raid to the
// final cleanup broadcast. All exported methods lock the session's own
// mutex; the registry lock is never held while a session is mutated.
type Session struct {
	mu sync.Mutex

	channelID string
	streamer  domain.PartyPayload
	settings  domain.GameSettings
	clock     clockwork.Clock

	phase   domain.Phase
	entries []*domain.RaidEntry
	tracker *ClickTracker

	introDeadline  time.Time
	activeDeadline time.Time

	// Pending timers armed by the engine. Replaced or cancelled when
	// superseded so a stale timer can never force a premature transition.
	resultTimer  clockwork.Timer
	cleanupTimer clockwork.Timer
}

func newSession(clock clockwork.Clock, channelID string, streamer domain.PartyPayload) *Session {
	return &Session{
		channelID: channelID,
		streamer:  streamer,
		clock:     clock,
		phase:     domain.PhaseIntro,
		tracker:   newClickTracker(),
	}
}

// ChannelID returns the owning channel identifier.
func (s *Session) ChannelID() string {
	return s.channelID
}

// Phase returns the current lifecycle phase.
func (s *Session) Phase() domain.Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// Settings returns the settings snapshot taken when the session was opened.
func (s *Session) Settings() domain.GameSettings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settings
}

// AddRaid attaches one raider entry. The first entry opens the session in
// the intro phase and fixes the settings snapshot; later entries extend the
// active deadline when the extend policy is enabled. A raider already
// present is rejected with ErrRaiderActive so replayed raid events are
// idempotent.
func (s *Session) AddRaid(entry *domain.RaidEntry, settings domain.GameSettings) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase >= domain.PhaseResult {
		return domain.ErrGameOver
	}
	for _, existing := range s.entries {
		if strings.EqualFold(existing.DisplayName, entry.DisplayName) || existing.RaiderID == entry.RaiderID {
			return domain.ErrRaiderActive
		}
	}

	now := s.clock.Now()
	entry.JoinedAt = now

	if len(s.entries) == 0 {
		s.settings = settings
		s.introDeadline = now.Add(time.Duration(settings.IntroDuration) * time.Second)
		s.activeDeadline = s.introDeadline.Add(time.Duration(settings.GameDuration) * time.Second)
	} else if s.settings.ExtendGameDurationEnabled {
		s.activeDeadline = s.activeDeadline.Add(time.Duration(s.settings.ExtendGameDuration) * time.Second)
	}

	s.entries = append(s.entries, entry)
	return nil
}

// Vote records one support click and returns the attributed side and the
// recomputed balance. Votes are only accepted before the result phase.
func (s *Session) Vote(side domain.Side, voter string) (domain.Side, float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase >= domain.PhaseResult {
		return "", 0, domain.ErrGameOver
	}
	attributed, _ := s.tracker.Vote(side, voter)
	return attributed, s.tracker.Balance(), nil
}

// Balance returns the current support state.
func (s *Session) Balance() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tracker.Balance()
}

// PushResult enqueues a result message on the entry owned by raider
// (matched case-insensitively; empty raider targets the first entry). A
// message with identical text already pending on that entry is dropped.
func (s *Session) PushResult(raider, text string, ttl time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry := s.findEntry(raider)
	if entry == nil {
		return false
	}
	for _, msg := range entry.Results {
		if msg.Text == text {
			return false
		}
	}
	entry.Results = append(entry.Results, domain.ResultMessage{
		Text:    text,
		Expires: s.clock.Now().Add(ttl),
	})
	return true
}

func (s *Session) findEntry(raider string) *domain.RaidEntry {
	if len(s.entries) == 0 {
		return nil
	}
	if raider == "" {
		return s.entries[0]
	}
	for _, entry := range s.entries {
		if strings.EqualFold(entry.DisplayName, raider) {
			return entry
		}
	}
	return nil
}

// Sweep prunes expired result messages and evaluates the phase deadlines
// against now. It returns the transition that occurred (if any) and whether
// anything changed. Transitions past Result are timer-driven, not
// deadline-driven, and never happen here.
func (s *Session) Sweep(now time.Time) (Transition, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	dirty := s.pruneExpired(now)

	// A session with no entries has unset deadlines and must not be driven
	// through the phases.
	if len(s.entries) == 0 {
		return TransitionNone, dirty
	}

	switch s.phase {
	case domain.PhaseIntro:
		if !now.Before(s.introDeadline) {
			s.phase = domain.PhaseActive
			return TransitionActive, true
		}
	case domain.PhaseActive:
		if !now.Before(s.activeDeadline) {
			s.phase = domain.PhaseResult
			return TransitionResult, true
		}
	}
	return TransitionNone, dirty
}

func (s *Session) pruneExpired(now time.Time) bool {
	pruned := false
	for _, entry := range s.entries {
		kept := entry.Results[:0]
		for _, msg := range entry.Results {
			if msg.Expires.After(now) {
				kept = append(kept, msg)
			} else {
				pruned = true
			}
		}
		entry.Results = kept
	}
	return pruned
}

// ForceResult moves an intro/active session straight to the result phase.
// Used by the operator stop path. Returns false if the session already left
// the active phase.
func (s *Session) ForceResult() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase >= domain.PhaseResult {
		return false
	}
	s.phase = domain.PhaseResult
	return true
}

// EnterCleanup moves the session to the terminal cleanup phase. Returns
// false if it already happened.
func (s *Session) EnterCleanup() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase == domain.PhaseCleanup {
		return false
	}
	s.phase = domain.PhaseCleanup
	return true
}

// SetResultTimer replaces the pending result→cleanup timer, stopping any
// previously armed one.
func (s *Session) SetResultTimer(t clockwork.Timer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.resultTimer != nil {
		s.resultTimer.Stop()
	}
	s.resultTimer = t
}

// SetCleanupTimer replaces the pending removal-grace timer.
func (s *Session) SetCleanupTimer(t clockwork.Timer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cleanupTimer != nil {
		s.cleanupTimer.Stop()
	}
	s.cleanupTimer = t
}

// CancelTimers stops any pending timers. Called when a forced stop
// supersedes the normal timeline.
func (s *Session) CancelTimers() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.resultTimer != nil {
		s.resultTimer.Stop()
		s.resultTimer = nil
	}
	if s.cleanupTimer != nil {
		s.cleanupTimer.Stop()
		s.cleanupTimer = nil
	}
}

// Raiders returns the display names and channel IDs of all attached raiders.
func (s *Session) Raiders() (names []string, ids []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, entry := range s.entries {
		names = append(names, entry.DisplayName)
		ids = append(ids, entry.RaiderID)
	}
	return names, ids
}

// StreamerName returns the display name of the defending streamer.
func (s *Session) StreamerName() string {
	return s.streamer.DisplayName
}

// HasEntries reports whether any raid entry is attached.
func (s *Session) HasEntries() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries) > 0
}

// Snapshot serializes the current state for broadcast, pruning any result
// message that expired by now. A cleanup-phase snapshot is the terminal
// "game over" payload with no entries.
func (s *Session) Snapshot(now time.Time) domain.SessionPayload {
	s.mu.Lock()
	defer s.mu.Unlock()

	payload := domain.SessionPayload{
		GameState:    s.phase.String(),
		Games:        []domain.GamePayload{},
		SupportState: s.tracker.Balance(),
		ClickTracker: s.tracker.Counts(),
	}
	if s.phase == domain.PhaseCleanup {
		return payload
	}

	streamer := s.streamer
	payload.Streamer = &streamer
	payload.Timing = &domain.TimingPayload{
		IntroDeadline:  s.introDeadline.Unix(),
		ActiveDeadline: s.activeDeadline.Unix(),
		ResultDuration: int64(s.settings.GameResultDuration),
	}

	for _, entry := range s.entries {
		game := domain.GamePayload{
			Raider: domain.PartyPayload{
				ChannelID:   entry.RaiderID,
				DisplayName: entry.DisplayName,
				AvatarURL:   entry.AvatarURL,
				Viewers:     entry.Viewers,
			},
			Results: []domain.ResultPayload{},
		}
		for _, msg := range entry.Results {
			if !msg.Expires.After(now) {
				continue
			}
			game.Results = append(game.Results, domain.ResultPayload{
				Text:          msg.Text,
				ResultExpires: msg.Expires.UnixMilli(),
			})
		}
		payload.Games = append(payload.Games, game)
	}
	return payload
}
