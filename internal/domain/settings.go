package domain

// GameSettings holds the per-streamer tunables of a raid battle. All
// durations are in seconds. A streamer's stored patch overrides the
// defaults field by field.
type GameSettings struct {
	GameDuration              int  `bson:"gameDuration" json:"gameDuration"`
	ExtendGameDuration        int  `bson:"extendGameDuration" json:"extendGameDuration"`
	ExtendGameDurationEnabled bool `bson:"extendGameDurationEnabled" json:"extendGameDurationEnabled"`
	IntroDuration             int  `bson:"introDuration" json:"introDuration"`
	GameResultDuration        int  `bson:"gameResultDuration" json:"gameResultDuration"`
	GameInfoDuration          int  `bson:"gameInfoDuration" json:"gameInfoDuration"`
	EnableChatOutput          bool `bson:"enableChatOutput" json:"enableChatOutput"`
	EnableChatCommands        bool `bson:"enableChatCommands" json:"enableChatCommands"`
}

// settingsRange is the allowed interval for one numeric setting.
type settingsRange struct {
	Min, Max int
}

// SettingsRanges are the clamping bounds applied to streamer-supplied
// patches. They are also seeded into the defaults document so the frontend
// can render sliders.
var SettingsRanges = map[string]settingsRange{
	"gameDuration":       {Min: 60, Max: 300},
	"extendGameDuration": {Min: 0, Max: 180},
	"introDuration":      {Min: 0, Max: 60},
	"gameResultDuration": {Min: 0, Max: 30},
	"gameInfoDuration":   {Min: 0, Max: 20},
}

// DefaultSettings returns the built-in defaults used when a streamer has no
// stored configuration.
func DefaultSettings() GameSettings {
	return GameSettings{
		GameDuration:              120,
		ExtendGameDuration:        60,
		ExtendGameDurationEnabled: true,
		IntroDuration:             30,
		GameResultDuration:        15,
		GameInfoDuration:          10,
		EnableChatOutput:          true,
		EnableChatCommands:        true,
	}
}

// SettingsPatch is a partial settings update submitted by a broadcaster.
// Nil fields are left untouched; numeric fields are clamped to their range
// rather than rejected.
type SettingsPatch struct {
	GameDuration              *int  `bson:"gameDuration,omitempty" json:"gameDuration,omitempty"`
	ExtendGameDuration        *int  `bson:"extendGameDuration,omitempty" json:"extendGameDuration,omitempty"`
	ExtendGameDurationEnabled *bool `bson:"extendGameDurationEnabled,omitempty" json:"extendGameDurationEnabled,omitempty"`
	IntroDuration             *int  `bson:"introDuration,omitempty" json:"introDuration,omitempty"`
	GameResultDuration        *int  `bson:"gameResultDuration,omitempty" json:"gameResultDuration,omitempty"`
	GameInfoDuration          *int  `bson:"gameInfoDuration,omitempty" json:"gameInfoDuration,omitempty"`
	EnableChatOutput          *bool `bson:"enableChatOutput,omitempty" json:"enableChatOutput,omitempty"`
	EnableChatCommands        *bool `bson:"enableChatCommands,omitempty" json:"enableChatCommands,omitempty"`
}

// Clamp constrains every numeric field of the patch to its allowed range.
// It returns the patch for chaining.
func (p *SettingsPatch) Clamp() *SettingsPatch {
	clampField(p.GameDuration, "gameDuration")
	clampField(p.ExtendGameDuration, "extendGameDuration")
	clampField(p.IntroDuration, "introDuration")
	clampField(p.GameResultDuration, "gameResultDuration")
	clampField(p.GameInfoDuration, "gameInfoDuration")
	return p
}

func clampField(v *int, name string) {
	if v == nil {
		return
	}
	r := SettingsRanges[name]
	if *v < r.Min {
		*v = r.Min
	}
	if *v > r.Max {
		*v = r.Max
	}
}

// Apply overlays the patch onto base and returns the result. The patch is
// clamped first so out-of-range stored values can never widen a game.
func (p *SettingsPatch) Apply(base GameSettings) GameSettings {
	if p == nil {
		return base
	}
	p.Clamp()
	out := base
	if p.GameDuration != nil {
		out.GameDuration = *p.GameDuration
	}
	if p.ExtendGameDuration != nil {
		out.ExtendGameDuration = *p.ExtendGameDuration
	}
	if p.ExtendGameDurationEnabled != nil {
		out.ExtendGameDurationEnabled = *p.ExtendGameDurationEnabled
	}
	if p.IntroDuration != nil {
		out.IntroDuration = *p.IntroDuration
	}
	if p.GameResultDuration != nil {
		out.GameResultDuration = *p.GameResultDuration
	}
	if p.GameInfoDuration != nil {
		out.GameInfoDuration = *p.GameInfoDuration
	}
	if p.EnableChatOutput != nil {
		out.EnableChatOutput = *p.EnableChatOutput
	}
	if p.EnableChatCommands != nil {
		out.EnableChatCommands = *p.EnableChatCommands
	}
	return out
}
