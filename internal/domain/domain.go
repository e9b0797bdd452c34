package domain

import "time"

// Phase is the lifecycle phase of a game session. Transitions are strictly
// monotonic: Intro → Active → Result → Cleanup, then the session is removed.
type Phase int

const (
	PhaseIntro Phase = iota
	PhaseActive
	PhaseResult
	PhaseCleanup
)

func (p Phase) String() string {
	switch p {
	case PhaseIntro:
		return "intro"
	case PhaseActive:
		return "active"
	case PhaseResult:
		return "result"
	case PhaseCleanup:
		return "game_over"
	default:
		return "unknown"
	}
}

// Side identifies which button a viewer clicked.
type Side string

const (
	SideRaider   Side = "raider"
	SideStreamer Side = "streamer"
)

// Valid reports whether s is one of the two known sides.
func (s Side) Valid() bool {
	return s == SideRaider || s == SideStreamer
}

// Opposite returns the other side.
func (s Side) Opposite() Side {
	if s == SideRaider {
		return SideStreamer
	}
	return SideRaider
}

// ResultMessage is a short-lived textual game event ("halfway", "defeated",
// the winner announcement) attached to a raid entry. Expired messages are
// pruned from broadcast payloads.
type ResultMessage struct {
	Text    string
	Expires time.Time
}

// RaidEntry is one raider's participation record within a session.
type RaidEntry struct {
	RaiderID    string
	DisplayName string
	AvatarURL   string
	Viewers     int
	JoinedAt    time.Time
	Results     []ResultMessage
}

// Outcome is the end-of-game verdict computed once at the Active → Result
// transition.
type Outcome struct {
	Winner  string
	Draw    bool
	Text    string
	Balance float64
}

// Battle history outcome labels as stored in streamer documents.
const (
	HistoryWon  = "Won"
	HistoryLost = "Lost"
	HistoryDraw = "Draw"
)

// --- Wire payload (serialized session state pushed to overlays) ---

// SessionPayload is the serialized state of one session, broadcast to all
// overlay clients of the channel. Field names match what the extension
// frontend expects.
type SessionPayload struct {
	GameState    string           `json:"gameState"`
	Games        []GamePayload    `json:"games"`
	SupportState float64          `json:"supportState"`
	ClickTracker TrackerPayload   `json:"clickTracker"`
	Timing       *TimingPayload   `json:"gameTimeObj,omitempty"`
	Streamer     *PartyPayload    `json:"streamerData,omitempty"`
}

// GamePayload is one raid entry within a SessionPayload.
type GamePayload struct {
	Raider  PartyPayload    `json:"raiderData"`
	Results []ResultPayload `json:"gameResult"`
}

// PartyPayload describes one participant (streamer or raider).
type PartyPayload struct {
	ChannelID   string `json:"channel_id"`
	DisplayName string `json:"display_name"`
	AvatarURL   string `json:"profile_image_url,omitempty"`
	Viewers     int    `json:"viewers,omitempty"`
}

// ResultPayload is a pending result message with its expiry as unix
// milliseconds, mirroring the frontend contract.
type ResultPayload struct {
	Text          string `json:"string"`
	ResultExpires int64  `json:"resultExpires"`
}

// TimingPayload carries the session deadlines as unix seconds.
type TimingPayload struct {
	IntroDeadline  int64 `json:"introDuration"`
	ActiveDeadline int64 `json:"gameDuration"`
	ResultDuration int64 `json:"gameResultDuration"`
}

// ClickerPayload is one side of the click tracker in wire form.
type ClickerPayload struct {
	Clicks   int `json:"clicks"`
	Clickers int `json:"clickers"`
}

// TrackerPayload is the click tracker in wire form. Only aggregate counts
// are exposed; voter identities never leave the service.
type TrackerPayload struct {
	Streamer ClickerPayload `json:"streamer"`
	Raider   ClickerPayload `json:"raider"`
}
