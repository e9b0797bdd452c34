package game

import (
	"sync"
	"testing"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OikoumE/RAID-BATTLE-twitch-ext-BE/internal/domain"
)

func TestRegistryGetOrCreate(t *testing.T) {
	clock := clockwork.NewFakeClock()
	reg := NewRegistry()

	first, created := reg.GetOrCreate("chan-1", func() *Session {
		return newSession(clock, "chan-1", domain.PartyPayload{ChannelID: "chan-1"})
	})
	require.True(t, created)

	second, created := reg.GetOrCreate("chan-1", func() *Session {
		t.Fatal("create called for existing session")
		return nil
	})
	assert.False(t, created)
	assert.Same(t, first, second)
	assert.Equal(t, 1, reg.Len())
}

func TestRegistryRemoveIsIdempotent(t *testing.T) {
	clock := clockwork.NewFakeClock()
	reg := NewRegistry()
	reg.GetOrCreate("chan-1", func() *Session {
		return newSession(clock, "chan-1", domain.PartyPayload{ChannelID: "chan-1"})
	})

	assert.True(t, reg.Remove("chan-1"))
	assert.False(t, reg.Remove("chan-1"))
	assert.Equal(t, 0, reg.Len())

	_, ok := reg.Get("chan-1")
	assert.False(t, ok)
}

func TestRegistryConcurrentCreateYieldsOneSession(t *testing.T) {
	clock := clockwork.NewFakeClock()
	reg := NewRegistry()

	const workers = 32
	sessions := make([]*Session, workers)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			sessions[i], _ = reg.GetOrCreate("chan-1", func() *Session {
				return newSession(clock, "chan-1", domain.PartyPayload{ChannelID: "chan-1"})
			})
		}()
	}
	wg.Wait()

	require.Equal(t, 1, reg.Len())
	for _, s := range sessions {
		assert.Same(t, sessions[0], s)
	}
}
