package config

import (
	"encoding/base64"
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config carries every environment-driven setting of the service.
type Config struct {
	AppEnv    string
	Port      string
	LogLevel  string
	LogFormat string

	MongoURL string
	RedisURL string

	// Twitch application credentials (Helix API access).
	AppClientID     string
	AppClientSecret string

	// Extension identity and secrets.
	ExtClientID  string
	ExtOwnerID   string
	ExtSecret    []byte // base64-decoded shared extension secret
	ExtVersion   string

	// EventSub webhook subscription.
	EventSubSecret   string
	EventSubCallback string

	// Policy knobs.
	WinMargin float64

	// Chat bot account for the IRC command listener (optional).
	IRCEnabled bool
	IRCNick    string
	IRCToken   string
}

// Load reads configuration from the environment. In development a .env file
// is loaded first if present.
func Load() (*Config, error) {
	if getEnv("APP_ENV", "development") != "production" {
		_ = godotenv.Load()
	}

	cfg := &Config{
		AppEnv:           getEnv("APP_ENV", "development"),
		Port:             getEnv("PORT", "8085"),
		LogLevel:         getEnv("LOG_LEVEL", "info"),
		LogFormat:        getEnv("LOG_FORMAT", "text"),
		MongoURL:         getEnv("MONGODB_URL", ""),
		RedisURL:         getEnv("REDIS_URL", ""),
		AppClientID:      getEnv("APP_CLIENT_ID", ""),
		AppClientSecret:  getEnv("APP_CLIENT_SECRET", ""),
		ExtClientID:      getEnv("EXT_CLIENT_ID", ""),
		ExtOwnerID:       getEnv("EXT_OWNER_ID", ""),
		ExtVersion:       getEnv("CURRENT_VERSION", ""),
		EventSubSecret:   getEnv("EVENTSUB_SUBSCRIPTION_SECRET", ""),
		EventSubCallback: getEnv("EVENTSUB_CALLBACK_URL", ""),
		IRCNick:          getEnv("IRC_NICK", ""),
		IRCToken:         getEnv("IRC_TOKEN", ""),
	}

	if cfg.MongoURL == "" {
		return nil, fmt.Errorf("MONGODB_URL is required")
	}
	if cfg.AppClientID == "" {
		return nil, fmt.Errorf("APP_CLIENT_ID is required")
	}
	if cfg.AppClientSecret == "" {
		return nil, fmt.Errorf("APP_CLIENT_SECRET is required")
	}
	if cfg.ExtClientID == "" {
		return nil, fmt.Errorf("EXT_CLIENT_ID is required")
	}
	if cfg.ExtOwnerID == "" {
		return nil, fmt.Errorf("EXT_OWNER_ID is required")
	}

	rawSecret := getEnv("EXT_CLIENT_SECRET", "")
	if rawSecret == "" {
		return nil, fmt.Errorf("EXT_CLIENT_SECRET is required")
	}
	secret, err := base64.StdEncoding.DecodeString(rawSecret)
	if err != nil {
		return nil, fmt.Errorf("EXT_CLIENT_SECRET must be valid base64: %w", err)
	}
	cfg.ExtSecret = secret

	// EventSub config: both must be set together.
	if cfg.EventSubSecret != "" || cfg.EventSubCallback != "" {
		if cfg.EventSubSecret == "" {
			return nil, fmt.Errorf("EVENTSUB_SUBSCRIPTION_SECRET is required when EVENTSUB_CALLBACK_URL is set")
		}
		if cfg.EventSubCallback == "" {
			return nil, fmt.Errorf("EVENTSUB_CALLBACK_URL is required when EVENTSUB_SUBSCRIPTION_SECRET is set")
		}
		if len(cfg.EventSubSecret) < 10 || len(cfg.EventSubSecret) > 100 {
			return nil, fmt.Errorf("EVENTSUB_SUBSCRIPTION_SECRET must be between 10 and 100 characters")
		}
	}

	cfg.WinMargin = 5.0
	if raw := getEnv("RAID_WIN_MARGIN", ""); raw != "" {
		margin, err := strconv.ParseFloat(raw, 64)
		if err != nil || margin < 0 {
			return nil, fmt.Errorf("RAID_WIN_MARGIN must be a non-negative number")
		}
		cfg.WinMargin = margin
	}

	cfg.IRCEnabled = cfg.IRCNick != "" && cfg.IRCToken != ""

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
