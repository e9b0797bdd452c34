package game

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OikoumE/RAID-BATTLE-twitch-ext-BE/internal/domain"
)

// --- fakes ---

type historyCall struct {
	channelIDs []string
	rec        domain.BattleRecord
	scoreDelta int
}

type fakeStore struct {
	mu           sync.Mutex
	byID         map[string]*domain.Streamer
	historyCalls []historyCall
	subIDs       map[string][]string
}

func newFakeStore(streamers ...*domain.Streamer) *fakeStore {
	s := &fakeStore{
		byID:   make(map[string]*domain.Streamer),
		subIDs: make(map[string][]string),
	}
	for _, st := range streamers {
		s.byID[st.ChannelID] = st
	}
	return s
}

func (s *fakeStore) GetByChannelID(_ context.Context, channelID string) (*domain.Streamer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.byID[channelID]; ok {
		copied := *st
		return &copied, nil
	}
	return nil, domain.ErrStreamerNotFound
}

func (s *fakeStore) GetByChannelName(_ context.Context, channelName string) (*domain.Streamer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, st := range s.byID {
		if st.ChannelName == channelName {
			copied := *st
			return &copied, nil
		}
	}
	return nil, domain.ErrStreamerNotFound
}

func (s *fakeStore) Insert(_ context.Context, st *domain.Streamer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byID[st.ChannelID] = st
	return nil
}

func (s *fakeStore) List(_ context.Context) ([]domain.Streamer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Streamer
	for _, st := range s.byID {
		out = append(out, *st)
	}
	return out, nil
}

func (s *fakeStore) ListByChannelIDs(_ context.Context, channelIDs []string) ([]domain.Streamer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Streamer
	for _, id := range channelIDs {
		if st, ok := s.byID[id]; ok {
			out = append(out, *st)
		}
	}
	return out, nil
}

func (s *fakeStore) UpdateConfig(_ context.Context, channelID string, patch *domain.SettingsPatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.byID[channelID]
	if !ok {
		return domain.ErrStreamerNotFound
	}
	st.UserConfig = patch
	return nil
}

func (s *fakeStore) SetEventSubIDs(_ context.Context, channelID string, subIDs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subIDs[channelID] = subIDs
	return nil
}

func (s *fakeStore) AppendHistory(_ context.Context, channelID string, rec domain.BattleRecord, scoreDelta int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.historyCalls = append(s.historyCalls, historyCall{channelIDs: []string{channelID}, rec: rec, scoreDelta: scoreDelta})
	return nil
}

func (s *fakeStore) AppendHistoryMany(_ context.Context, channelIDs []string, rec domain.BattleRecord, scoreDelta int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.historyCalls = append(s.historyCalls, historyCall{channelIDs: channelIDs, rec: rec, scoreDelta: scoreDelta})
	return nil
}

func (s *fakeStore) SeedDefaults(context.Context, domain.GameSettings) error { return nil }

func (s *fakeStore) ListNews(context.Context) ([]domain.NewsItem, error) { return nil, nil }

func (s *fakeStore) histories() []historyCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]historyCall(nil), s.historyCalls...)
}

type fakeLookup struct {
	mu           sync.Mutex
	usersByLogin map[string]*domain.TwitchUser
	live         map[string]bool
	liveChannels []domain.LiveChannel
}

func newFakeLookup() *fakeLookup {
	return &fakeLookup{
		usersByLogin: make(map[string]*domain.TwitchUser),
		live:         make(map[string]bool),
	}
}

func (l *fakeLookup) addUser(u *domain.TwitchUser) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.usersByLogin[u.Login] = u
}

func (l *fakeLookup) GetUserByLogin(_ context.Context, login string) (*domain.TwitchUser, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if u, ok := l.usersByLogin[login]; ok {
		return u, nil
	}
	return nil, fmt.Errorf("user not found")
}

func (l *fakeLookup) GetUserByID(_ context.Context, id string) (*domain.TwitchUser, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, u := range l.usersByLogin {
		if u.ID == id {
			return u, nil
		}
	}
	return nil, fmt.Errorf("user not found")
}

func (l *fakeLookup) GetLiveStream(_ context.Context, channelID string) (*domain.LiveStream, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.live[channelID] {
		return &domain.LiveStream{ChannelID: channelID, ViewerCount: 100}, nil
	}
	return nil, nil
}

func (l *fakeLookup) ListLiveExtensionChannels(context.Context) ([]domain.LiveChannel, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]domain.LiveChannel(nil), l.liveChannels...), nil
}

type fakeNotifier struct {
	mu     sync.Mutex
	dirty  []string
	global int
}

func (n *fakeNotifier) MarkDirty(channelID string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.dirty = append(n.dirty, channelID)
}

func (n *fakeNotifier) MarkGlobalDirty() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.global++
}

func (n *fakeNotifier) dirtyCount(channelID string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	count := 0
	for _, id := range n.dirty {
		if id == channelID {
			count++
		}
	}
	return count
}

func (n *fakeNotifier) globalCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.global
}

type fakeSubscriber struct {
	ids     []string
	deleted []string
}

func (f *fakeSubscriber) EnsureSubscription(context.Context, string) ([]string, error) {
	return f.ids, nil
}

func (f *fakeSubscriber) DeleteSubscription(_ context.Context, channelID string) error {
	f.deleted = append(f.deleted, channelID)
	return nil
}

// --- fixture ---

type engineFixture struct {
	engine   *Engine
	store    *fakeStore
	lookup   *fakeLookup
	notifier *fakeNotifier
	clock    *clockwork.FakeClock
}

func newEngineFixture(t *testing.T) *engineFixture {
	t.Helper()
	clock := clockwork.NewFakeClock()

	store := newFakeStore(&domain.Streamer{
		ChannelID:   "chan-1",
		ChannelName: "streamer",
		DisplayName: "Streamer",
	})

	lookup := newFakeLookup()
	lookup.live["chan-1"] = true
	lookup.addUser(&domain.TwitchUser{ID: "raider-1", Login: "raider", DisplayName: "Raider"})

	notifier := &fakeNotifier{}
	engine := NewEngine(NewRegistry(), store, lookup, notifier, clock, DefaultConfig())

	return &engineFixture{engine: engine, store: store, lookup: lookup, notifier: notifier, clock: clock}
}

func (f *engineFixture) startRaid(t *testing.T) {
	t.Helper()
	_, err := f.engine.StartRaid(context.Background(), "streamer", "raider", 42)
	require.NoError(t, err)
}

// --- tests ---

func TestStartRaidOpensIntroSession(t *testing.T) {
	f := newEngineFixture(t)
	f.startRaid(t)

	sess, ok := f.engine.Registry().Get("chan-1")
	require.True(t, ok)
	assert.Equal(t, domain.PhaseIntro, sess.Phase())
	assert.GreaterOrEqual(t, f.notifier.dirtyCount("chan-1"), 1)

	payload, ok := f.engine.Snapshot("chan-1")
	require.True(t, ok)
	assert.Equal(t, "intro", payload.GameState)
	require.Len(t, payload.Games, 1)
	assert.Equal(t, "Raider", payload.Games[0].Raider.DisplayName)
	require.Len(t, payload.Games[0].Results, 1)
	assert.Equal(t, "Incoming Raid from: Raider", payload.Games[0].Results[0].Text)
}

func TestStartRaidOfflineChannelRejected(t *testing.T) {
	f := newEngineFixture(t)
	f.lookup.live["chan-1"] = false

	_, err := f.engine.StartRaid(context.Background(), "streamer", "raider", 42)
	assert.ErrorIs(t, err, domain.ErrStreamOffline)
	assert.Equal(t, 0, f.engine.Registry().Len())
}

func TestStartRaidUnknownRaiderKeepsExistingSession(t *testing.T) {
	f := newEngineFixture(t)
	f.startRaid(t)

	_, err := f.engine.StartRaid(context.Background(), "streamer", "nosuchuser", 1)
	require.Error(t, err)

	// The failed entry must not tear down the running game.
	assert.Equal(t, 1, f.engine.Registry().Len())
}

func TestStartRaidDuplicateRaiderRejected(t *testing.T) {
	f := newEngineFixture(t)
	f.startRaid(t)

	_, err := f.engine.StartRaid(context.Background(), "streamer", "raider", 42)
	assert.ErrorIs(t, err, domain.ErrRaiderActive)
	assert.Equal(t, 1, f.engine.Registry().Len())
}

func TestVoteWithoutGame(t *testing.T) {
	f := newEngineFixture(t)

	_, err := f.engine.Vote("chan-1", domain.SideStreamer, "viewer")
	assert.ErrorIs(t, err, domain.ErrNoActiveGame)
}

func TestVoteThresholdMessage(t *testing.T) {
	f := newEngineFixture(t)
	f.startRaid(t)

	// One supporter pushing the balance beyond the +5 margin.
	var payload *domain.SessionPayload
	var err error
	for i := 0; i < 6; i++ {
		payload, err = f.engine.Vote("chan-1", domain.SideStreamer, "viewer")
		require.NoError(t, err)
	}
	assert.InDelta(t, 6.0, payload.SupportState, 1e-9)

	var texts []string
	for _, g := range payload.Games {
		for _, r := range g.Results {
			texts = append(texts, r.Text)
		}
	}
	assert.Contains(t, texts, "Raider has around 50% left!")
}

func TestFullGameFlowStreamerWins(t *testing.T) {
	f := newEngineFixture(t)
	f.startRaid(t)

	settings := domain.DefaultSettings()

	// Intro elapses.
	f.clock.Advance(time.Duration(settings.IntroDuration) * time.Second)
	f.engine.sweepAll()
	sess, _ := f.engine.Registry().Get("chan-1")
	require.Equal(t, domain.PhaseActive, sess.Phase())

	// Streamer support beyond the margin.
	for i := 0; i < 6; i++ {
		_, err := f.engine.Vote("chan-1", domain.SideStreamer, "viewer")
		require.NoError(t, err)
	}

	// Active phase elapses; sweep computes the outcome.
	f.clock.Advance(time.Duration(settings.GameDuration) * time.Second)
	f.engine.sweepAll()
	require.Equal(t, domain.PhaseResult, sess.Phase())

	payload, ok := f.engine.Snapshot("chan-1")
	require.True(t, ok)
	assert.Equal(t, "result", payload.GameState)
	require.NotEmpty(t, payload.Games[0].Results)
	winnerText := payload.Games[0].Results[len(payload.Games[0].Results)-1].Text
	assert.True(t, strings.Contains(winnerText, "Streamer Gained more support"), winnerText)

	// Votes are rejected now.
	_, err := f.engine.Vote("chan-1", domain.SideStreamer, "late")
	assert.ErrorIs(t, err, domain.ErrGameOver)

	// History lands for both parties off the hot path.
	assert.Eventually(t, func() bool {
		return len(f.store.histories()) == 2
	}, time.Second, 10*time.Millisecond)

	var streamerCall, raiderCall *historyCall
	for i := range f.store.histories() {
		call := f.store.histories()[i]
		if call.channelIDs[0] == "chan-1" {
			streamerCall = &call
		} else {
			raiderCall = &call
		}
	}
	require.NotNil(t, streamerCall)
	require.NotNil(t, raiderCall)
	assert.Equal(t, domain.HistoryWon, streamerCall.rec.Result)
	assert.Equal(t, 1, streamerCall.scoreDelta)
	assert.Equal(t, domain.HistoryLost, raiderCall.rec.Result)
	assert.Equal(t, 0, raiderCall.scoreDelta)
	assert.Equal(t, []string{"raider-1"}, raiderCall.channelIDs)

	// Result duration elapses: terminal payload, then eviction after the
	// removal grace.
	f.clock.Advance(time.Duration(settings.GameResultDuration) * time.Second)
	require.Eventually(t, func() bool {
		return sess.Phase() == domain.PhaseCleanup
	}, time.Second, 10*time.Millisecond)

	raw, ok := f.engine.ChannelPayload("chan-1")
	require.True(t, ok)
	var terminal domain.SessionPayload
	require.NoError(t, json.Unmarshal(raw, &terminal))
	assert.Equal(t, "game_over", terminal.GameState)
	assert.Empty(t, terminal.Games)

	f.clock.Advance(f.engine.cfg.GraceDelay)
	assert.Eventually(t, func() bool {
		return f.engine.Registry().Len() == 0
	}, time.Second, 10*time.Millisecond)
}

func TestDrawWhenBalanceInsideMargin(t *testing.T) {
	f := newEngineFixture(t)
	f.startRaid(t)

	settings := domain.DefaultSettings()
	f.clock.Advance(time.Duration(settings.IntroDuration) * time.Second)
	f.engine.sweepAll()

	// Two even camps: balance 1 - 1 = 0.
	_, err := f.engine.Vote("chan-1", domain.SideStreamer, "s1")
	require.NoError(t, err)
	_, err = f.engine.Vote("chan-1", domain.SideRaider, "r1")
	require.NoError(t, err)

	f.clock.Advance(time.Duration(settings.GameDuration) * time.Second)
	f.engine.sweepAll()

	payload, ok := f.engine.Snapshot("chan-1")
	require.True(t, ok)
	winnerText := payload.Games[0].Results[len(payload.Games[0].Results)-1].Text
	assert.Contains(t, winnerText, "draw")

	assert.Eventually(t, func() bool {
		calls := f.store.histories()
		return len(calls) == 2 &&
			calls[0].rec.Result == domain.HistoryDraw &&
			calls[1].rec.Result == domain.HistoryDraw
	}, time.Second, 10*time.Millisecond)
}

func TestStopChannelForcesCleanup(t *testing.T) {
	f := newEngineFixture(t)
	f.startRaid(t)

	require.True(t, f.engine.StopChannel("chan-1"))

	sess, ok := f.engine.Registry().Get("chan-1")
	require.True(t, ok)
	assert.Equal(t, domain.PhaseCleanup, sess.Phase())

	f.clock.Advance(f.engine.cfg.GraceDelay)
	assert.Eventually(t, func() bool {
		return f.engine.Registry().Len() == 0
	}, time.Second, 10*time.Millisecond)

	assert.False(t, f.engine.StopChannel("chan-1"))
}

func TestStreamStatusChangedBuildsGlobalPayload(t *testing.T) {
	f := newEngineFixture(t)

	history := make([]domain.BattleRecord, 5)
	for i := range history {
		history[i] = domain.BattleRecord{Versus: []string{fmt.Sprintf("foe-%d", i)}, Result: domain.HistoryWon}
	}
	f.store.Insert(context.Background(), &domain.Streamer{
		ChannelID:     "chan-2",
		ChannelName:   "other",
		DisplayName:   "Other",
		BattleHistory: history,
	})
	f.lookup.liveChannels = []domain.LiveChannel{
		{ChannelID: "chan-1", ChannelName: "streamer"},
		{ChannelID: "chan-2", ChannelName: "other"},
	}

	f.engine.StreamStatusChanged("chan-1")
	assert.Equal(t, 1, f.notifier.globalCount())

	raw, ok := f.engine.GlobalPayload()
	require.True(t, ok)

	var payload struct {
		Data []domain.Streamer `json:"data"`
	}
	require.NoError(t, json.Unmarshal(raw, &payload))
	require.Len(t, payload.Data, 1)
	assert.Equal(t, "chan-2", payload.Data[0].ChannelID)
	// History is trimmed to the most recent entries.
	assert.Len(t, payload.Data[0].BattleHistory, 3)
	assert.Equal(t, []string{"foe-4"}, payload.Data[0].BattleHistory[2].Versus)
}

func TestEnsureStreamerCreatesDocumentAndSubscribes(t *testing.T) {
	f := newEngineFixture(t)
	sub := &fakeSubscriber{ids: []string{"sub-1", "sub-2"}}
	f.engine.SetSubscriber(sub)
	f.lookup.addUser(&domain.TwitchUser{ID: "chan-9", Login: "newbie", DisplayName: "Newbie"})

	streamer, err := f.engine.EnsureStreamer(context.Background(), "chan-9")
	require.NoError(t, err)
	assert.Equal(t, "newbie", streamer.ChannelName)

	stored, err := f.store.GetByChannelID(context.Background(), "chan-9")
	require.NoError(t, err)
	assert.Equal(t, "Newbie", stored.DisplayName)
	assert.Equal(t, []string{"sub-1", "sub-2"}, f.store.subIDs["chan-9"])

	// Second call is a no-op for the document.
	_, err = f.engine.EnsureStreamer(context.Background(), "chan-9")
	require.NoError(t, err)
}

// gatedLookup holds stream lookups until released, so a test can observe
// the engine while a raid's identity resolution is still in flight.
type gatedLookup struct {
	*fakeLookup
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func (g *gatedLookup) GetLiveStream(ctx context.Context, channelID string) (*domain.LiveStream, error) {
	g.once.Do(func() { close(g.started) })
	<-g.release
	return g.fakeLookup.GetLiveStream(ctx, channelID)
}

func TestStartRaidInvisibleToSweepDuringLookup(t *testing.T) {
	clock := clockwork.NewFakeClock()
	store := newFakeStore(&domain.Streamer{
		ChannelID:   "chan-1",
		ChannelName: "streamer",
		DisplayName: "Streamer",
	})
	lookup := &gatedLookup{
		fakeLookup: newFakeLookup(),
		started:    make(chan struct{}),
		release:    make(chan struct{}),
	}
	lookup.live["chan-1"] = true
	lookup.addUser(&domain.TwitchUser{ID: "raider-1", Login: "raider", DisplayName: "Raider"})
	notifier := &fakeNotifier{}
	engine := NewEngine(NewRegistry(), store, lookup, notifier, clock, DefaultConfig())

	errCh := make(chan error, 1)
	go func() {
		_, err := engine.StartRaid(context.Background(), "streamer", "raider", 42)
		errCh <- err
	}()
	<-lookup.started

	// While the lookup is stalled, sweeps must not see a session, finish a
	// phantom game, or write history.
	engine.sweepAll()
	engine.sweepAll()
	assert.Equal(t, 0, engine.Registry().Len())
	assert.Empty(t, store.histories())

	close(lookup.release)
	require.NoError(t, <-errCh)

	sess, ok := engine.Registry().Get("chan-1")
	require.True(t, ok)
	assert.Equal(t, domain.PhaseIntro, sess.Phase())
	engine.sweepAll()
	assert.Equal(t, domain.PhaseIntro, sess.Phase())
	assert.Empty(t, store.histories())
}

type fakeChatRelay struct {
	mu   sync.Mutex
	sent []string
}

func (r *fakeChatRelay) SendChatMessage(_ context.Context, _, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, text)
	return nil
}

func (r *fakeChatRelay) has(text string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.sent {
		if s == text {
			return true
		}
	}
	return false
}

// blockingChatStore stalls streamer reads by id, the lookup the result chat
// output performs.
type blockingChatStore struct {
	*fakeStore
	gate chan struct{}
}

func (s *blockingChatStore) GetByChannelID(ctx context.Context, channelID string) (*domain.Streamer, error) {
	<-s.gate
	return s.fakeStore.GetByChannelID(ctx, channelID)
}

func TestResultChatLookupDoesNotBlockSweep(t *testing.T) {
	f := newEngineFixture(t)
	gate := make(chan struct{})
	f.engine.store = &blockingChatStore{fakeStore: f.store, gate: gate}
	relay := &fakeChatRelay{}
	f.engine.SetChatRelay(relay)
	f.startRaid(t)

	settings := domain.DefaultSettings()
	f.clock.Advance(time.Duration(settings.IntroDuration+settings.GameDuration) * time.Second)

	// Two sweeps drive intro -> active -> result; the second one triggers
	// the result chat output, whose store lookup is stalled.
	done := make(chan struct{})
	go func() {
		f.engine.sweepAll()
		f.engine.sweepAll()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweep blocked on the chat output's store lookup")
	}

	close(gate)
	require.Eventually(t, func() bool {
		return relay.has("It was a draw between Raider and Streamer")
	}, time.Second, 10*time.Millisecond)
}
