// Package twitch integrates with the Twitch API.
//
// Client wraps Helix for identity and stream lookups, SubscriptionManager keeps EventSub
// subscriptions in shape, and PubSubSender/ChatSender push state and messages through the
// extension endpoints using JWTs from TokenSigner.
package twitch
