package broadcast

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/sony/gobreaker"

	"github.com/OikoumE/RAID-BATTLE-twitch-ext-BE/internal/domain"
	"github.com/OikoumE/RAID-BATTLE-twitch-ext-BE/internal/metrics"
)

const (
	// DefaultInterval is the minimum spacing between sends per channel.
	DefaultInterval = time.Second

	sendTimeout = 5 * time.Second
	globalKey   = "__global__"
)

// Source produces the current serialized payload for a channel. Returning
// false means the channel has nothing to broadcast anymore.
type Source func(channelID string) ([]byte, bool)

// GlobalSource produces the current cross-channel payload.
type GlobalSource func() ([]byte, bool)

type channelState struct {
	lastSent time.Time
	pending  clockwork.Timer
}

// Scheduler coalesces dirty marks into rate-limited PubSub sends. At most
// one delayed send is armed per channel; marks arriving while one is armed
// are absorbed, and the payload is fetched when the send actually fires so
// it always carries the latest state.
type Scheduler struct {
	transport domain.BroadcastTransport
	source    Source
	global    GlobalSource
	clock     clockwork.Clock
	interval  time.Duration
	breaker   *gobreaker.CircuitBreaker

	mu       sync.Mutex
	channels map[string]*channelState
}

func NewScheduler(transport domain.BroadcastTransport, source Source, global GlobalSource, clock clockwork.Clock, interval time.Duration) *Scheduler {
	return &Scheduler{
		transport: transport,
		source:    source,
		global:    global,
		clock:     clock,
		interval:  interval,
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    "extension-pubsub",
			Timeout: 30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures > 5
			},
		}),
		channels: make(map[string]*channelState),
	}
}

// MarkDirty notes that the channel's state changed. The send happens
// immediately when the channel is outside its cooldown, otherwise exactly
// one delayed send is armed for the moment the cooldown elapses.
func (s *Scheduler) MarkDirty(channelID string) {
	s.mark(channelID)
}

// MarkGlobalDirty is MarkDirty for the cross-channel broadcast, which has
// its own independent cooldown.
func (s *Scheduler) MarkGlobalDirty() {
	s.mark(globalKey)
}

func (s *Scheduler) mark(key string) {
	s.mu.Lock()
	st, ok := s.channels[key]
	if !ok {
		st = &channelState{}
		s.channels[key] = st
	}

	if st.pending != nil {
		s.mu.Unlock()
		metrics.BroadcastsCoalescedTotal.Inc()
		return
	}

	now := s.clock.Now()
	if wait := s.interval - now.Sub(st.lastSent); wait > 0 {
		st.pending = s.clock.AfterFunc(wait, func() {
			s.fire(key)
		})
		s.mu.Unlock()
		return
	}

	st.lastSent = now
	s.mu.Unlock()
	// The outbound call must not run in the caller: MarkDirty is invoked
	// from the sweep loop and the vote handlers, and one channel's slow
	// send must never stall another channel's progress.
	go s.send(key)
}

// fire runs when a delayed send comes due.
func (s *Scheduler) fire(key string) {
	s.mu.Lock()
	st, ok := s.channels[key]
	if !ok {
		s.mu.Unlock()
		return
	}
	st.pending = nil
	st.lastSent = s.clock.Now()
	s.mu.Unlock()
	s.send(key)
}

// Forget drops the channel's cooldown state and cancels any armed send.
func (s *Scheduler) Forget(channelID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.channels[channelID]; ok {
		if st.pending != nil {
			st.pending.Stop()
		}
		delete(s.channels, channelID)
	}
}

func (s *Scheduler) send(key string) {
	var (
		payload []byte
		ok      bool
		kind    = "channel"
	)
	if key == globalKey {
		kind = "global"
		payload, ok = s.global()
	} else {
		payload, ok = s.source(key)
	}
	if !ok {
		// Nothing left to broadcast. Drop the cooldown state so an idle
		// channel does not linger in the map.
		s.Forget(key)
		return
	}

	start := time.Now()
	_, err := s.breaker.Execute(func() (any, error) {
		ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
		defer cancel()
		if key == globalKey {
			return nil, s.transport.SendGlobal(ctx, payload)
		}
		return nil, s.transport.SendToChannel(ctx, key, payload)
	})
	metrics.BroadcastDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		metrics.BroadcastsTotal.WithLabelValues(kind, "error").Inc()
		slog.Error("Broadcast failed", "kind", kind, "channel_id", key, "error", err)
		return
	}
	metrics.BroadcastsTotal.WithLabelValues(kind, "ok").Inc()
}
