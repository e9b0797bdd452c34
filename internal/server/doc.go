// Package server exposes the HTTP surface: the EventSub webhook, the
// viewer vote endpoints, and the broadcaster configuration endpoints.
package server
