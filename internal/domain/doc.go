// Package domain contains the shared types of the raid battle service:
// game session state, raid entries, click tracking, streamer documents,
// per-streamer settings, and the interfaces of external collaborators.
package domain
