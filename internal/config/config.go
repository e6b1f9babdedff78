// Package config loads the engine configuration from an optional JSONC
// file, a .env file, and environment variables, in that priority order.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/tidwall/jsonc"

	"github.com/botmesh/botmesh/internal/transport"
)

// Config holds the engine configuration.
type Config struct {
	Port     int    `json:"port"`
	LogLevel string `json:"logLevel"`
	DataDir  string `json:"dataDir"`
	// DatabaseURL selects the Postgres store when set; empty means the
	// file-backed document store under DataDir.
	DatabaseURL string `json:"databaseUrl"`
	// Transport names the protocol transport to run. "memory" is the
	// in-process development transport; empty falls back to it with a
	// warning until a real transport is wired in.
	Transport string `json:"transport"`

	BotName      string   `json:"botName"`
	OwnerName    string   `json:"ownerName"`
	OwnerNumber  string   `json:"ownerNumber"`
	AdminNumbers []string `json:"adminNumbers"`
	Prefix       string   `json:"prefix"`

	LogoURL     string `json:"logoUrl"`
	FooterText  string `json:"footerText"`
	ChannelLink string `json:"channelLink"`

	// Pairing-code request policy; the endpoint is rate limited, so
	// attempts stay bounded.
	PairingAttempts     int      `json:"pairingAttempts"`
	PairingRetryDelay   Duration `json:"pairingRetryDelay"`
	PairingInitialDelay Duration `json:"pairingInitialDelay"`

	ReconnectDelay  Duration `json:"reconnectDelay"`
	ReconnectPacing Duration `json:"reconnectPacing"`

	AutoViewStatus  bool     `json:"autoViewStatus"`
	AutoReactStatus bool     `json:"autoReactStatus"`
	ReactEmojis     []string `json:"reactEmojis"`

	WeatherAPIKey string `json:"weatherApiKey"`
	NewsAPIKey    string `json:"newsApiKey"`
}

// Duration is a time.Duration that unmarshals from JSON strings like "5s".
type Duration time.Duration

func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		parsed, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", s, err)
		}
		*d = Duration(parsed)
		return nil
	}
	var n int64
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("invalid duration %s", data)
	}
	*d = Duration(time.Duration(n) * time.Millisecond)
	return nil
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Port:                8000,
		LogLevel:            "info",
		DataDir:             "data",
		BotName:             "botmesh",
		Prefix:              ".",
		PairingAttempts:     3,
		PairingRetryDelay:   Duration(2 * time.Second),
		PairingInitialDelay: Duration(1500 * time.Millisecond),
		ReconnectDelay:      Duration(5 * time.Second),
		ReconnectPacing:     Duration(2 * time.Second),
		AutoViewStatus:      true,
		AutoReactStatus:     true,
		ReactEmojis:         []string{"❤️", "🔥", "💯", "👍", "✨", "⭐"},
	}
}

// Load builds the configuration: defaults, then the JSONC file at path (if
// it exists), then a .env file (if present), then environment variables.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := loadFile(path, cfg); err != nil {
			return nil, err
		}
	}

	// .env is a convenience for development; missing file is fine.
	_ = godotenv.Load()

	applyEnv(cfg)
	cfg.normalize()
	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read config file: %w", err)
	}
	if err := json.Unmarshal(jsonc.ToJSON(data), cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *Config) {
	setString := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	setString("BOTMESH_LOG_LEVEL", &cfg.LogLevel)
	setString("BOTMESH_DATA_DIR", &cfg.DataDir)
	setString("DATABASE_URL", &cfg.DatabaseURL)
	setString("BOTMESH_TRANSPORT", &cfg.Transport)
	setString("BOTMESH_BOT_NAME", &cfg.BotName)
	setString("BOTMESH_OWNER_NAME", &cfg.OwnerName)
	setString("BOTMESH_OWNER_NUMBER", &cfg.OwnerNumber)
	setString("BOTMESH_PREFIX", &cfg.Prefix)
	setString("BOTMESH_LOGO_URL", &cfg.LogoURL)
	setString("BOTMESH_WEATHER_API_KEY", &cfg.WeatherAPIKey)
	setString("BOTMESH_NEWS_API_KEY", &cfg.NewsAPIKey)

	if v := os.Getenv("PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Port = port
		}
	}
	if v := os.Getenv("BOTMESH_ADMIN_NUMBERS"); v != "" {
		cfg.AdminNumbers = strings.Split(v, ",")
	}
}

func (c *Config) normalize() {
	c.OwnerNumber = transport.NormalizeIdentity(c.OwnerNumber)
	for i, n := range c.AdminNumbers {
		c.AdminNumbers[i] = transport.NormalizeIdentity(n)
	}
	if c.Prefix == "" {
		c.Prefix = "."
	}
	if c.PairingAttempts <= 0 {
		c.PairingAttempts = 3
	}
}

// IsOwner reports whether the address belongs to the configured owner.
func (c *Config) IsOwner(address string) bool {
	return c.OwnerNumber != "" && transport.BareNumber(address) == c.OwnerNumber
}

// IsAdmin reports whether the address is the owner or a configured admin.
func (c *Config) IsAdmin(address string) bool {
	if c.IsOwner(address) {
		return true
	}
	number := transport.BareNumber(address)
	for _, admin := range c.AdminNumbers {
		if number == admin {
			return true
		}
	}
	return false
}
