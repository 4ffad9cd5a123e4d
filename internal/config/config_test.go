package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const validJSON = `{
  "relay": {
    "admin_id": "123456",
    "fallback_bot_name": "Help Desk",
    "send_timeout": 10,
    "arm_ttl": 900
  },
  "bots": {
    "botA": {"token": "111:AAA"},
    "botB": {"token": "222:BBB"}
  },
  "telegram": {
    "mode": "polling",
    "webhook_secret": "s3cret",
    "poll_timeout": 20
  },
  "audit": {"db_path": "/tmp/relay-audit.db"},
  "scheduler": {"sweep_schedule": "@every 30s"},
  "api": {
    "host": "127.0.0.1",
    "port": 8080,
    "api_key": "dashboard-key"
  }
}`

func validConfig() *Config {
	cfg := &Config{
		Relay: RelayConfig{AdminID: "1"},
		Bots:  map[string]BotConfig{"botA": {Token: "t"}},
	}
	cfg.applyDefaults()
	return cfg
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	os.WriteFile(path, []byte(validJSON), 0o644)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Relay.AdminID != "123456" {
		t.Errorf("relay.admin_id = %q", cfg.Relay.AdminID)
	}
	if cfg.SendTimeoutDuration() != 10*time.Second {
		t.Errorf("send_timeout = %v", cfg.SendTimeoutDuration())
	}
	if cfg.ArmTTLDuration() != 15*time.Minute {
		t.Errorf("arm_ttl = %v", cfg.ArmTTLDuration())
	}
	if len(cfg.Bots) != 2 {
		t.Fatalf("bots count = %d", len(cfg.Bots))
	}
	if cfg.Bots["botB"].Token.Reveal() != "222:BBB" {
		t.Errorf("bots.botB.token = %q", cfg.Bots["botB"].Token.Reveal())
	}
	if cfg.Telegram.Mode != "polling" || cfg.Telegram.PollTimeout != 20 {
		t.Errorf("telegram = %+v", cfg.Telegram)
	}
	if cfg.Scheduler.SweepSchedule != "@every 30s" {
		t.Errorf("sweep_schedule = %q", cfg.Scheduler.SweepSchedule)
	}
	if cfg.Scheduler.StatsSchedule != "@every 15m" {
		t.Errorf("stats_schedule default = %q", cfg.Scheduler.StatsSchedule)
	}
	if cfg.API.Port != 8080 {
		t.Errorf("api.port = %d", cfg.API.Port)
	}
}

func TestLoad_Defaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	os.WriteFile(path, []byte(`{"relay":{"admin_id":"1"},"bots":{"a":{"token":"x"}}}`), 0o644)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Telegram.Mode != "webhook" {
		t.Errorf("mode = %q", cfg.Telegram.Mode)
	}
	if cfg.API.Port != 3000 || cfg.API.Host != "0.0.0.0" {
		t.Errorf("api = %s:%d", cfg.API.Host, cfg.API.Port)
	}
	if cfg.SendTimeoutDuration() != 15*time.Second {
		t.Errorf("send_timeout = %v", cfg.SendTimeoutDuration())
	}
	if cfg.ArmTTLDuration() != 0 {
		t.Errorf("arm_ttl = %v", cfg.ArmTTLDuration())
	}
}

func TestLoad_FileNotFound(t *testing.T) {
	_, err := Load("/nonexistent/config.json")
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoad_InvalidJSON(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.json")
	os.WriteFile(path, []byte("not json"), 0o644)

	_, err := Load(path)
	if err == nil {
		t.Fatal("expected error for invalid JSON")
	}
}

func TestValidate_Valid(t *testing.T) {
	if err := validConfig().Validate(); err != nil {
		t.Errorf("expected valid config, got %v", err)
	}
}

func TestValidate_CollectsAllErrors(t *testing.T) {
	cfg := &Config{}
	cfg.applyDefaults()
	cfg.Telegram.Mode = "carrier-pigeon"

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error")
	}
	for _, want := range []string{"relay.admin_id", "at least one bot", "telegram.mode"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q missing %q", err, want)
		}
	}
}

func TestValidate_Bots(t *testing.T) {
	cfg := validConfig()
	cfg.Bots["bad/key"] = BotConfig{Token: "t"}
	cfg.Bots["empty"] = BotConfig{}

	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), `invalid bot key "bad/key"`) {
		t.Errorf("expected bot key error, got %v", err)
	}
	if !strings.Contains(err.Error(), "bots.empty.token") {
		t.Errorf("expected token error, got %v", err)
	}
}

func TestValidate_Schedules(t *testing.T) {
	cfg := validConfig()
	cfg.Scheduler.SweepSchedule = "every now and then"

	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "scheduler.sweep_schedule") {
		t.Errorf("expected schedule error, got %v", err)
	}
}

func TestValidate_NegativeDurations(t *testing.T) {
	cfg := validConfig()
	cfg.Relay.ArmTTL = -1
	cfg.Relay.SendTimeout = -5

	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "arm_ttl") || !strings.Contains(err.Error(), "send_timeout") {
		t.Errorf("expected duration errors, got %v", err)
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("RELAY_ADMIN_CHAT_ID", "999")
	t.Setenv("RELAY_BOTS", `{"botA":"tok-a","botB":"tok-b"}`)
	t.Setenv("RELAY_BOT_TOKEN_BOTC", "tok-c")
	t.Setenv("RELAY_API_PORT", "9090")
	t.Setenv("RELAY_ARM_TTL", "600")
	t.Setenv("RELAY_WEBHOOK_SECRET", "hook")

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv: %v", err)
	}

	if cfg.Relay.AdminID != "999" {
		t.Errorf("admin_id = %q", cfg.Relay.AdminID)
	}
	keys := cfg.BotKeys()
	if strings.Join(keys, ",") != "botA,botB,botc" {
		t.Errorf("bot keys = %v", keys)
	}
	if cfg.Credentials()["botc"].Reveal() != "tok-c" {
		t.Errorf("botc token = %q", cfg.Credentials()["botc"].Reveal())
	}
	if cfg.API.Port != 9090 {
		t.Errorf("api.port = %d", cfg.API.Port)
	}
	if cfg.ArmTTLDuration() != 10*time.Minute {
		t.Errorf("arm_ttl = %v", cfg.ArmTTLDuration())
	}
	if cfg.Telegram.WebhookSecret != "hook" {
		t.Errorf("webhook_secret = %q", cfg.Telegram.WebhookSecret)
	}
}

func TestLoadFromEnv_BadBotsJSON(t *testing.T) {
	t.Setenv("RELAY_ADMIN_CHAT_ID", "1")
	t.Setenv("RELAY_BOTS", "{nope")

	if _, err := LoadFromEnv(); err == nil {
		t.Fatal("expected error for malformed RELAY_BOTS")
	}
}

func TestConfigJSONRedactsTokens(t *testing.T) {
	cfg := validConfig()
	data, err := json.Marshal(cfg)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if strings.Contains(string(data), `"token":"t"`) || !strings.Contains(string(data), "[redacted]") {
		t.Errorf("token leaked: %s", data)
	}
}
