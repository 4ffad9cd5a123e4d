package config

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/h1v3-io/relay/pkg/protocol"
)

// Environment variable names.
const (
	envPrefix      = "RELAY_"
	envBotTokenPre = "RELAY_BOT_TOKEN_"
)

// Config is the top-level relay configuration.
type Config struct {
	Relay     RelayConfig          `json:"relay"`
	Bots      map[string]BotConfig `json:"bots"`
	Telegram  TelegramConfig       `json:"telegram"`
	Audit     AuditConfig          `json:"audit"`
	Scheduler SchedulerConfig      `json:"scheduler"`
	API       APIConfig            `json:"api"`
}

// RelayConfig holds relay-level settings.
type RelayConfig struct {
	AdminID         string `json:"admin_id"`
	FallbackBotName string `json:"fallback_bot_name,omitempty"`
	SendTimeout     int    `json:"send_timeout,omitempty"` // seconds, default 15
	ArmTTL          int    `json:"arm_ttl,omitempty"`      // seconds, 0 = armings never expire
}

// BotConfig holds one bot identity's credential.
type BotConfig struct {
	Token protocol.Credential `json:"token"`
}

// TelegramConfig holds Bot API transport settings.
type TelegramConfig struct {
	Mode          string `json:"mode,omitempty"`         // "webhook" (default) or "polling"
	APIEndpoint   string `json:"api_endpoint,omitempty"` // override for tests and local Bot API servers
	WebhookSecret string `json:"webhook_secret,omitempty"`
	PollTimeout   int    `json:"poll_timeout,omitempty"` // seconds, default 30
}

// AuditConfig holds journal settings.
type AuditConfig struct {
	DBPath string `json:"db_path,omitempty"` // empty = no journal
}

// SchedulerConfig holds cron specs for housekeeping jobs.
type SchedulerConfig struct {
	SweepSchedule string `json:"sweep_schedule,omitempty"`
	StatsSchedule string `json:"stats_schedule,omitempty"`
}

// APIConfig holds REST API server settings.
type APIConfig struct {
	Host string `json:"host"`
	Port int    `json:"port"`
	Key  string `json:"api_key"`
}

// Load reads configuration from a JSON file.
func Load(path string) (*Config, error) {
	cfg, err := Parse(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse reads a JSON file and applies defaults without validating.
func Parse(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	cfg.applyDefaults()
	return &cfg, nil
}

// LoadFromEnv builds a config from environment variables with RELAY_ prefix.
func LoadFromEnv() (*Config, error) {
	cfg := &Config{
		Relay: RelayConfig{
			AdminID:         os.Getenv("RELAY_ADMIN_CHAT_ID"),
			FallbackBotName: os.Getenv("RELAY_FALLBACK_BOT_NAME"),
			SendTimeout:     getenvInt("RELAY_SEND_TIMEOUT", 0),
			ArmTTL:          getenvInt("RELAY_ARM_TTL", 0),
		},
		Bots: make(map[string]BotConfig),
		Telegram: TelegramConfig{
			Mode:          os.Getenv("RELAY_TELEGRAM_MODE"),
			APIEndpoint:   os.Getenv("RELAY_TELEGRAM_API_ENDPOINT"),
			WebhookSecret: os.Getenv("RELAY_WEBHOOK_SECRET"),
			PollTimeout:   getenvInt("RELAY_POLL_TIMEOUT", 0),
		},
		Audit: AuditConfig{
			DBPath: os.Getenv("RELAY_AUDIT_DB"),
		},
		Scheduler: SchedulerConfig{
			SweepSchedule: os.Getenv("RELAY_SWEEP_SCHEDULE"),
			StatsSchedule: os.Getenv("RELAY_STATS_SCHEDULE"),
		},
		API: APIConfig{
			Host: getenv("RELAY_API_HOST", "0.0.0.0"),
			Port: getenvInt("RELAY_API_PORT", 3000),
			Key:  os.Getenv("RELAY_API_KEY"),
		},
	}

	// RELAY_BOTS: {"botA": "token", ...}
	if raw := os.Getenv(envPrefix + "BOTS"); raw != "" {
		var bots map[string]string
		if err := json.Unmarshal([]byte(raw), &bots); err != nil {
			return nil, fmt.Errorf("config: RELAY_BOTS: %w", err)
		}
		for key, token := range bots {
			cfg.Bots[key] = BotConfig{Token: protocol.Credential(token)}
		}
	}

	// RELAY_BOT_TOKEN_<KEY>=token, key lower-cased.
	for _, kv := range os.Environ() {
		name, value, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(name, envBotTokenPre) {
			continue
		}
		key := strings.ToLower(strings.TrimPrefix(name, envBotTokenPre))
		if key == "" {
			continue
		}
		cfg.Bots[key] = BotConfig{Token: protocol.Credential(value)}
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Relay.SendTimeout == 0 {
		c.Relay.SendTimeout = 15
	}
	if c.Telegram.Mode == "" {
		c.Telegram.Mode = "webhook"
	}
	if c.Telegram.PollTimeout == 0 {
		c.Telegram.PollTimeout = 30
	}
	if c.Scheduler.SweepSchedule == "" {
		c.Scheduler.SweepSchedule = "@every 1m"
	}
	if c.Scheduler.StatsSchedule == "" {
		c.Scheduler.StatsSchedule = "@every 15m"
	}
	if c.API.Host == "" {
		c.API.Host = "0.0.0.0"
	}
	if c.API.Port == 0 {
		c.API.Port = 3000
	}
}

// Validate checks for required fields.
func (c *Config) Validate() error {
	var errs []string

	if c.Relay.AdminID == "" {
		errs = append(errs, "relay.admin_id is required")
	}
	if c.Relay.SendTimeout < 0 {
		errs = append(errs, "relay.send_timeout must not be negative")
	}
	if c.Relay.ArmTTL < 0 {
		errs = append(errs, "relay.arm_ttl must not be negative")
	}

	if len(c.Bots) == 0 {
		errs = append(errs, "at least one bot is required")
	}
	for _, key := range c.BotKeys() {
		if key == "" || strings.Contains(key, "/") {
			errs = append(errs, fmt.Sprintf("bots: invalid bot key %q", key))
		}
		if c.Bots[key].Token.Reveal() == "" {
			errs = append(errs, fmt.Sprintf("bots.%s.token is required", key))
		}
	}

	switch c.Telegram.Mode {
	case "webhook", "polling":
	default:
		errs = append(errs, fmt.Sprintf("telegram.mode must be webhook or polling, got %q", c.Telegram.Mode))
	}
	if c.Telegram.PollTimeout < 0 {
		errs = append(errs, "telegram.poll_timeout must not be negative")
	}

	for name, spec := range map[string]string{
		"scheduler.sweep_schedule": c.Scheduler.SweepSchedule,
		"scheduler.stats_schedule": c.Scheduler.StatsSchedule,
	} {
		if spec == "" {
			continue
		}
		if _, err := cron.ParseStandard(spec); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", name, err))
		}
	}

	if c.API.Port < 0 || c.API.Port > 65535 {
		errs = append(errs, fmt.Sprintf("api.port out of range: %d", c.API.Port))
	}

	if len(errs) > 0 {
		sort.Strings(errs)
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// BotKeys returns the configured bot keys, sorted.
func (c *Config) BotKeys() []string {
	keys := make([]string, 0, len(c.Bots))
	for k := range c.Bots {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Credentials returns the bot key → credential map for the registry and the
// gateway.
func (c *Config) Credentials() map[string]protocol.Credential {
	out := make(map[string]protocol.Credential, len(c.Bots))
	for k, b := range c.Bots {
		out[k] = b.Token
	}
	return out
}

// SendTimeoutDuration returns relay.send_timeout as a duration.
func (c *Config) SendTimeoutDuration() time.Duration {
	return time.Duration(c.Relay.SendTimeout) * time.Second
}

// ArmTTLDuration returns relay.arm_ttl as a duration.
func (c *Config) ArmTTLDuration() time.Duration {
	return time.Duration(c.Relay.ArmTTL) * time.Second
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getenvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
