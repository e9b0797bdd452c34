// Package chat runs the IRC side of the extension: chat commands for
// viewers and broadcasters in channels that enabled them.
package chat

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"strings"
	"time"

	twitchirc "github.com/gempir/go-twitch-irc/v4"

	"github.com/OikoumE/RAID-BATTLE-twitch-ext-BE/internal/domain"
)

const (
	commandInfo     = "!raidbattle"
	commandRoulette = "!raid roulette"

	infoText = "RAID-BATTLE turns incoming raids into a battle: click to support your side before the timer runs out! Made by OikoumE."

	commandTimeout = 10 * time.Second
)

// Listener joins every registered channel's chat and answers the
// extension's commands.
type Listener struct {
	client *twitchirc.Client
	store  domain.StreamerStore
	lookup domain.UserLookup
}

func NewListener(nick, token string, store domain.StreamerStore, lookup domain.UserLookup) *Listener {
	if !strings.HasPrefix(token, "oauth:") {
		token = "oauth:" + token
	}
	l := &Listener{
		client: twitchirc.NewClient(nick, token),
		store:  store,
		lookup: lookup,
	}
	l.client.OnPrivateMessage(l.handleMessage)
	return l
}

// Join subscribes the listener to the channels' chats.
func (l *Listener) Join(channelNames ...string) {
	l.client.Join(channelNames...)
}

// Connect blocks until the connection drops or Close is called.
func (l *Listener) Connect() error {
	return l.client.Connect()
}

func (l *Listener) Close() error {
	return l.client.Disconnect()
}

func (l *Listener) handleMessage(message twitchirc.PrivateMessage) {
	text := strings.ToLower(strings.TrimSpace(message.Message))
	switch {
	case strings.HasPrefix(text, commandRoulette):
		l.handleRoulette(message)
	case strings.HasPrefix(text, commandInfo):
		l.handleInfo(message)
	}
}

func (l *Listener) handleInfo(message twitchirc.PrivateMessage) {
	if !l.commandsEnabled(message.Channel) {
		return
	}
	l.client.Say(message.Channel, infoText)
}

// handleRoulette suggests a random live channel running the extension as a
// raid target. Broadcaster and moderators only.
func (l *Listener) handleRoulette(message twitchirc.PrivateMessage) {
	if !isPrivileged(message) || !l.commandsEnabled(message.Channel) {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	channels, err := l.lookup.ListLiveExtensionChannels(ctx)
	if err != nil {
		slog.Error("Raid roulette lookup failed", "channel", message.Channel, "error", err)
		return
	}

	// The asking channel is not a valid target for its own raid.
	candidates := channels[:0]
	for _, ch := range channels {
		if !strings.EqualFold(ch.ChannelName, message.Channel) {
			candidates = append(candidates, ch)
		}
	}
	if len(candidates) == 0 {
		l.client.Say(message.Channel, "Raid roulette found no live RAID-BATTLE channels right now.")
		return
	}

	pick := candidates[rand.Intn(len(candidates))]
	l.client.Say(message.Channel, fmt.Sprintf("Raid roulette says: raid %s! They are live with RAID-BATTLE installed.", pick.ChannelName))
}

func (l *Listener) commandsEnabled(channelName string) bool {
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	streamer, err := l.store.GetByChannelName(ctx, strings.ToLower(channelName))
	if err != nil {
		return false
	}
	return streamer.Settings().EnableChatCommands
}

func isPrivileged(message twitchirc.PrivateMessage) bool {
	return message.User.Badges["broadcaster"] > 0 || message.User.Badges["moderator"] > 0
}
