package game

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/OikoumE/RAID-BATTLE-twitch-ext-BE/internal/domain"
	"github.com/OikoumE/RAID-BATTLE-twitch-ext-BE/internal/metrics"
)

const (
	msgIncomingRaid = "Incoming Raid from: %s"
	msgHalfSupport  = "%s has around 50%% left!"

	chatIncomingRaid = "Incoming raid from %s - get ready for RAID-BATTLE %s"
	chatCommandsHint = "(type !RAIDBATTLE for info)"

	historyTailLen    = 3
	persistTimeout    = 10 * time.Second
	chatSendTimeout   = 5 * time.Second
	statusListTimeout = 15 * time.Second
)

// Notifier receives dirty-state notifications for the broadcast scheduler.
type Notifier interface {
	MarkDirty(channelID string)
	MarkGlobalDirty()
}

// Subscriber manages the channel.raid EventSub subscription of a channel.
type Subscriber interface {
	EnsureSubscription(ctx context.Context, channelID string) ([]string, error)
	DeleteSubscription(ctx context.Context, channelID string) error
}

// Config carries the engine's policy knobs.
type Config struct {
	// WinMargin is the draw band half-width on the support balance.
	WinMargin float64
	// GraceDelay is how long a cleaned-up session stays in the registry
	// after the final broadcast, so clients observe the game-over payload.
	GraceDelay time.Duration
	// SweepInterval is the cadence of the deadline/expiry sweep.
	SweepInterval time.Duration
}

// DefaultConfig returns the production policy values.
func DefaultConfig() Config {
	return Config{
		WinMargin:     5.0,
		GraceDelay:    2 * time.Second,
		SweepInterval: time.Second,
	}
}

// Engine drives every channel's game session: it owns the registry, reacts
// to verified raid events and viewer votes, sweeps phase deadlines, and
// tells the broadcast scheduler when state changed.
type Engine struct {
	registry *Registry
	store    domain.StreamerStore
	lookup   domain.UserLookup
	notifier Notifier
	clock    clockwork.Clock
	cfg      Config

	chat       domain.ChatRelay
	subscriber Subscriber

	globalMu      sync.RWMutex
	globalPayload []byte
}

func NewEngine(registry *Registry, store domain.StreamerStore, lookup domain.UserLookup, notifier Notifier, clock clockwork.Clock, cfg Config) *Engine {
	return &Engine{
		registry: registry,
		store:    store,
		lookup:   lookup,
		notifier: notifier,
		clock:    clock,
		cfg:      cfg,
	}
}

// SetChatRelay wires the optional chat output. Must be called before Run.
func (e *Engine) SetChatRelay(c domain.ChatRelay) {
	e.chat = c
}

// SetSubscriber wires the EventSub subscription manager. Must be called
// before Run.
func (e *Engine) SetSubscriber(s Subscriber) {
	e.subscriber = s
}

// Registry exposes the session registry (read paths for handlers).
func (e *Engine) Registry() *Registry {
	return e.registry
}

// --- Raid intake ---

// StartRaid handles one verified channel.raid event: it locates or creates
// the channel's session and attaches the raider. Lookup failures abort only
// this raid's entry; the session and any other raiders are unaffected.
func (e *Engine) StartRaid(ctx context.Context, channelName, raiderLogin string, viewers int) (*domain.SessionPayload, error) {
	streamer, err := e.store.GetByChannelName(ctx, strings.ToLower(channelName))
	if err != nil {
		return nil, fmt.Errorf("load streamer %q: %w", channelName, err)
	}
	settings := streamer.Settings()

	// Resolve the raider and the stream's liveness before the session is
	// registered. The sweeper sees every registered session, so one must
	// never sit in the registry without an entry while a lookup is in
	// flight.
	entry, err := e.buildRaidEntry(ctx, streamer, raiderLogin, viewers)
	if err != nil {
		return nil, err
	}

	sess, created := e.registry.GetOrCreate(streamer.ChannelID, func() *Session {
		return newSession(e.clock, streamer.ChannelID, domain.PartyPayload{
			ChannelID:   streamer.ChannelID,
			DisplayName: streamer.DisplayName,
			AvatarURL:   streamer.ProfilePicURL,
		})
	})

	if err := sess.AddRaid(entry, settings); err != nil {
		// AddRaid on a session we just created can only fail when a
		// concurrent raid populated it first; the session is theirs then
		// and must not be evicted.
		if created && !sess.HasEntries() {
			e.registry.Remove(streamer.ChannelID)
		}
		return nil, err
	}
	metrics.RaidsStartedTotal.Inc()
	slog.Info("Raid started", "channel_id", streamer.ChannelID, "raider", entry.DisplayName, "viewers", viewers)

	sess.PushResult(entry.DisplayName, fmt.Sprintf(msgIncomingRaid, entry.DisplayName), time.Duration(settings.IntroDuration)*time.Second)

	hint := ""
	if settings.EnableChatCommands {
		hint = chatCommandsHint
	}
	e.sendChat(streamer, fmt.Sprintf(chatIncomingRaid, entry.DisplayName, hint))

	e.notifier.MarkDirty(streamer.ChannelID)
	snapshot := sess.Snapshot(e.clock.Now())
	return &snapshot, nil
}

// buildRaidEntry resolves the raider's identity and checks the defending
// stream is live. Both lookups are soft dependencies: any failure aborts
// just this entry.
func (e *Engine) buildRaidEntry(ctx context.Context, streamer *domain.Streamer, raiderLogin string, viewers int) (*domain.RaidEntry, error) {
	stream, err := e.lookup.GetLiveStream(ctx, streamer.ChannelID)
	if err != nil {
		return nil, fmt.Errorf("stream lookup for %s: %w", streamer.ChannelID, err)
	}
	if stream == nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrStreamOffline, streamer.ChannelName)
	}

	raider, err := e.lookup.GetUserByLogin(ctx, raiderLogin)
	if err != nil {
		return nil, fmt.Errorf("raider lookup for %q: %w", raiderLogin, err)
	}

	return &domain.RaidEntry{
		RaiderID:    raider.ID,
		DisplayName: raider.DisplayName,
		AvatarURL:   raider.AvatarURL,
		Viewers:     viewers,
	}, nil
}

// --- Votes ---

// Vote records a viewer's support click and returns the refreshed session
// payload. The attributed side may differ from the requested one when the
// voter already belongs to the opposite camp.
func (e *Engine) Vote(channelID string, side domain.Side, voterID string) (*domain.SessionPayload, error) {
	sess, ok := e.registry.Get(channelID)
	if !ok || !sess.HasEntries() {
		metrics.VotesTotal.WithLabelValues(string(side), "no_game").Inc()
		return nil, domain.ErrNoActiveGame
	}

	attributed, balance, err := sess.Vote(side, voterID)
	if err != nil {
		metrics.VotesTotal.WithLabelValues(string(side), "rejected").Inc()
		return nil, err
	}

	result := "accepted"
	if attributed != side {
		result = "redirected"
	}
	metrics.VotesTotal.WithLabelValues(string(attributed), result).Inc()

	e.pushThresholdMessages(sess, balance)
	e.notifier.MarkDirty(channelID)

	snapshot := sess.Snapshot(e.clock.Now())
	return &snapshot, nil
}

// pushThresholdMessages enqueues the half-support callouts once a side has
// been pushed beyond the win margin. PushResult dedups by text, so crossing
// back and forth cannot spam the payload.
func (e *Engine) pushThresholdMessages(sess *Session, balance float64) {
	ttl := time.Duration(sess.Settings().GameInfoDuration) * time.Second
	switch {
	case balance > e.cfg.WinMargin:
		names, _ := sess.Raiders()
		for _, name := range names {
			sess.PushResult(name, fmt.Sprintf(msgHalfSupport, name), ttl)
		}
	case balance < -e.cfg.WinMargin:
		sess.PushResult("", fmt.Sprintf(msgHalfSupport, sess.StreamerName()), ttl)
	}
}

// --- Read paths ---

// Snapshot returns the channel's current session payload, or false when the
// channel has no observable game.
func (e *Engine) Snapshot(channelID string) (*domain.SessionPayload, bool) {
	sess, ok := e.registry.Get(channelID)
	if !ok || !sess.HasEntries() || sess.Phase() == domain.PhaseCleanup {
		return nil, false
	}
	snapshot := sess.Snapshot(e.clock.Now())
	return &snapshot, true
}

// ChannelPayload serializes the channel's state for the broadcast
// scheduler. Cleanup sessions still produce their terminal payload.
func (e *Engine) ChannelPayload(channelID string) ([]byte, bool) {
	sess, ok := e.registry.Get(channelID)
	if !ok {
		return nil, false
	}
	payload, err := json.Marshal(sess.Snapshot(e.clock.Now()))
	if err != nil {
		slog.Error("Failed to serialize session payload", "channel_id", channelID, "error", err)
		return nil, false
	}
	return payload, true
}

// GlobalPayload returns the latest cross-channel leaderboard payload.
func (e *Engine) GlobalPayload() ([]byte, bool) {
	e.globalMu.RLock()
	defer e.globalMu.RUnlock()
	return e.globalPayload, e.globalPayload != nil
}

// --- Sweep loop ---

// Run drives the periodic sweep until ctx is cancelled. Phase deadlines are
// evaluated against the clock on every tick, so transitions happen even if
// no event arrives and tolerate the service being busy or delayed.
func (e *Engine) Run(ctx context.Context) {
	ticker := e.clock.NewTicker(e.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			e.sweepAll()
		}
	}
}

func (e *Engine) sweepAll() {
	now := e.clock.Now()
	for _, sess := range e.registry.Snapshot() {
		transition, dirty := sess.Sweep(now)
		switch transition {
		case TransitionActive:
			slog.Info("Game is live", "channel_id", sess.ChannelID())
			e.notifier.MarkDirty(sess.ChannelID())
		case TransitionResult:
			e.finishGame(sess)
		default:
			// Open games get a dirty mark every tick so expiring result
			// messages flush and clients see the countdown move.
			if dirty || sess.Phase() < domain.PhaseResult {
				e.notifier.MarkDirty(sess.ChannelID())
			}
		}
	}
}

// finishGame runs exactly once per session, right after the sweep moved it
// into the result phase.
func (e *Engine) finishGame(sess *Session) {
	balance := sess.Balance()
	names, ids := sess.Raiders()
	streamerName := sess.StreamerName()

	out := ComputeOutcome(balance, e.cfg.WinMargin, streamerName, names)
	verdict := "draw"
	if !out.Draw {
		if out.Winner == streamerName {
			verdict = "streamer"
		} else {
			verdict = "raiders"
		}
	}
	metrics.OutcomesTotal.WithLabelValues(verdict).Inc()
	slog.Info("Game finished", "channel_id", sess.ChannelID(), "verdict", verdict, "balance", balance)

	resultDuration := time.Duration(sess.Settings().GameResultDuration) * time.Second
	sess.PushResult("", out.Text, resultDuration)

	go e.persistHistory(sess.ChannelID(), out, streamerName, names, ids)
	e.sendChatByChannelID(sess.ChannelID(), out.Text)
	e.notifier.MarkDirty(sess.ChannelID())

	channelID := sess.ChannelID()
	sess.SetResultTimer(e.clock.AfterFunc(resultDuration, func() {
		e.enterCleanup(channelID)
	}))
}

// enterCleanup pushes the terminal game-over payload and schedules eviction
// after the grace delay. A stale timer firing after the session is gone is
// a no-op.
func (e *Engine) enterCleanup(channelID string) {
	sess, ok := e.registry.Get(channelID)
	if !ok {
		return
	}
	if !sess.EnterCleanup() {
		return
	}
	slog.Info("Cleaning up game session", "channel_id", channelID)
	e.notifier.MarkDirty(channelID)
	sess.SetCleanupTimer(e.clock.AfterFunc(e.cfg.GraceDelay, func() {
		e.registry.Remove(channelID)
	}))
}

// StopChannel force-ends any game on the channel: operator stop endpoint
// and revocations use it. Returns false when no session was open.
func (e *Engine) StopChannel(channelID string) bool {
	sess, ok := e.registry.Get(channelID)
	if !ok {
		return false
	}
	sess.CancelTimers()
	sess.ForceResult()
	e.enterCleanup(channelID)
	return true
}

// --- History persistence ---

// persistHistory writes the two append-only battle records. Fire and
// forget: a persistence failure is logged and the in-memory outcome stays
// authoritative.
func (e *Engine) persistHistory(channelID string, out domain.Outcome, streamerName string, raiderNames, raiderIDs []string) {
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	streamerRec, raiderRec, streamerScore, raiderScore := historyRecords(out, streamerName, raiderNames)
	now := e.clock.Now()
	streamerRec.Date = now
	raiderRec.Date = now

	if err := e.store.AppendHistory(ctx, channelID, streamerRec, streamerScore); err != nil {
		slog.Error("Failed to persist streamer battle history", "channel_id", channelID, "error", err)
	}
	if len(raiderIDs) > 0 {
		if err := e.store.AppendHistoryMany(ctx, raiderIDs, raiderRec, raiderScore); err != nil {
			slog.Error("Failed to persist raider battle history", "channel_id", channelID, "error", err)
		}
	}
}

// --- Global broadcast ---

// StreamStatusChanged recomputes the cross-channel live list (dropping the
// channel that just went offline, if any) and schedules a global broadcast.
func (e *Engine) StreamStatusChanged(offlineChannelID string) {
	ctx, cancel := context.WithTimeout(context.Background(), statusListTimeout)
	defer cancel()

	channels, err := e.lookup.ListLiveExtensionChannels(ctx)
	if err != nil {
		slog.Error("Failed to list live extension channels", "error", err)
		return
	}

	ids := make([]string, 0, len(channels))
	for _, ch := range channels {
		if ch.ChannelID != offlineChannelID {
			ids = append(ids, ch.ChannelID)
		}
	}

	docs, err := e.store.ListByChannelIDs(ctx, ids)
	if err != nil {
		slog.Error("Failed to load live streamer documents", "error", err)
		return
	}
	for i := range docs {
		if n := len(docs[i].BattleHistory); n > historyTailLen {
			docs[i].BattleHistory = docs[i].BattleHistory[n-historyTailLen:]
		}
	}

	payload, err := json.Marshal(map[string]any{"data": docs})
	if err != nil {
		slog.Error("Failed to serialize global payload", "error", err)
		return
	}

	e.globalMu.Lock()
	e.globalPayload = payload
	e.globalMu.Unlock()
	e.notifier.MarkGlobalDirty()
}

// --- Streamer onboarding ---

// EnsureStreamer makes the channel known: the streamer document exists and
// a channel.raid subscription is registered. Safe to call repeatedly.
func (e *Engine) EnsureStreamer(ctx context.Context, channelID string) (*domain.Streamer, error) {
	streamer, err := e.store.GetByChannelID(ctx, channelID)
	if err != nil && !errors.Is(err, domain.ErrStreamerNotFound) {
		return nil, fmt.Errorf("load streamer %s: %w", channelID, err)
	}

	if streamer == nil {
		user, err := e.lookup.GetUserByID(ctx, channelID)
		if err != nil {
			return nil, fmt.Errorf("user lookup for %s: %w", channelID, err)
		}
		streamer = &domain.Streamer{
			ChannelID:     user.ID,
			ChannelName:   strings.ToLower(user.DisplayName),
			DisplayName:   user.DisplayName,
			ProfilePicURL: user.AvatarURL,
			Created:       e.clock.Now(),
			Score:         0,
			BattleHistory: []domain.BattleRecord{},
		}
		if err := e.store.Insert(ctx, streamer); err != nil {
			return nil, fmt.Errorf("insert streamer %s: %w", channelID, err)
		}
		slog.Info("Streamer added", "channel_id", channelID, "channel_name", streamer.ChannelName)
	}

	if e.subscriber != nil {
		subIDs, err := e.subscriber.EnsureSubscription(ctx, channelID)
		if err != nil {
			// Soft: the streamer document is usable without the
			// subscription and the next ensure call retries.
			slog.Error("Failed to ensure raid subscription", "channel_id", channelID, "error", err)
		} else if err := e.store.SetEventSubIDs(ctx, channelID, subIDs); err != nil {
			slog.Error("Failed to store subscription ids", "channel_id", channelID, "error", err)
		}
	}
	return streamer, nil
}

// RevokeChannel tears down the channel's subscription state after the
// platform revoked authorization, and ends any running game.
func (e *Engine) RevokeChannel(ctx context.Context, channelID string) {
	e.StopChannel(channelID)
	if e.subscriber == nil {
		return
	}
	if err := e.subscriber.DeleteSubscription(ctx, channelID); err != nil {
		slog.Error("Failed to delete raid subscription", "channel_id", channelID, "error", err)
	}
}

// --- Chat output ---

func (e *Engine) sendChat(streamer *domain.Streamer, text string) {
	if e.chat == nil || !streamer.Settings().EnableChatOutput {
		return
	}
	channelID := streamer.ChannelID
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), chatSendTimeout)
		defer cancel()
		if err := e.chat.SendChatMessage(ctx, channelID, text); err != nil {
			slog.Warn("Failed to send chat message", "channel_id", channelID, "error", err)
		}
	}()
}

// sendChatByChannelID loads the streamer's chat preference off the calling
// goroutine: it runs inside the sweep, which must not wait on the store.
func (e *Engine) sendChatByChannelID(channelID, text string) {
	if e.chat == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), chatSendTimeout)
		defer cancel()
		streamer, err := e.store.GetByChannelID(ctx, channelID)
		if err != nil {
			slog.Warn("Failed to load streamer for chat output", "channel_id", channelID, "error", err)
			return
		}
		e.sendChat(streamer, text)
	}()
}
