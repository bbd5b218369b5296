package config

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMaskSecret(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"short", "***"},
		{"exactly8", "***"},
		{"longerstring", "long...ring"},
		{"abcdefghij", "abcd...ghij"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, maskSecret(tt.input))
	}
}

func TestExpandEnv(t *testing.T) {
	t.Setenv("TEST_VAR", "test_value")
	assert.Equal(t, "prefix_test_value_suffix", expandEnv("prefix_${TEST_VAR}_suffix"))
}

func TestExpandEnv_MissingVar(t *testing.T) {
	os.Unsetenv("MISSING_VAR")
	assert.Equal(t, "prefix__suffix", expandEnv("prefix_${MISSING_VAR}_suffix"))
}

func TestParse_Defaults(t *testing.T) {
	t.Setenv("ARCGUARD_TEST_TOKEN", "123456:abcdefgh")

	cfg, err := Parse([]byte(`
telegram:
  token: ${ARCGUARD_TEST_TOKEN}
`))
	require.NoError(t, err)

	assert.Equal(t, "123456:abcdefgh", cfg.Telegram.Token)
	assert.Equal(t, 72*time.Hour, cfg.Moderation.MuteDuration)
	assert.Equal(t, 2, cfg.Moderation.MinLength)
	assert.Equal(t, "/say", cfg.Moderation.AdminCommandPrefix)
	assert.Equal(t, "/filters", cfg.Moderation.ListCommand)
	assert.Contains(t, cfg.Moderation.SuspiciousKeywords, "admin")
	assert.Equal(t, 3, cfg.Spam.Threshold)
	assert.Equal(t, 15*time.Second, cfg.Spam.Window)
	assert.Equal(t, 5*time.Minute, cfg.Spam.RecordDuration)
	assert.Equal(t, time.Minute, cfg.Spam.SweepInterval)
	assert.True(t, cfg.Announcements.PinEnabled())
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)
}

func TestParse_FullConfig(t *testing.T) {
	cfg, err := Parse([]byte(`
telegram:
  token: "123456:abcdefgh"
  allowed_chat_ids: ["-1001", "-1002"]
  platform_domains: [t.me]
moderation:
  mute_duration: 24h
  min_length: 3
  suspicious_keywords: []
  token_names: [arc]
spam:
  threshold: 4
  window: 30s
  record_duration: 10m
  sweep_interval: 2m
phrases:
  ban_file: data/ban.txt
filters:
  file: data/filters.json
  media_root: /srv/media
  reply_limit: 2
  reply_window: 1m
announcements:
  enabled: true
  schedule: "@every 6h"
  pin: false
  messages: ["hello"]
metrics:
  listen: 127.0.0.1:9102
executor:
  workers: 2
  queue_size: 16
log:
  level: debug
  format: json
`))
	require.NoError(t, err)

	assert.Equal(t, []string{"-1001", "-1002"}, cfg.Telegram.AllowedChatIDs)
	assert.Empty(t, cfg.Moderation.SuspiciousKeywords, "an explicit empty list disables the rule")
	assert.False(t, cfg.Announcements.PinEnabled())
	assert.Equal(t, "@every 6h", cfg.Announcements.Schedule)

	mc := cfg.ModerationPipelineConfig()
	assert.Equal(t, 24*time.Hour, mc.MuteDuration)
	assert.Equal(t, 3, mc.MinLength)
	assert.Equal(t, []string{"t.me"}, mc.PlatformDomains)
	assert.Equal(t, []string{"arc"}, mc.TokenNames)

	sc := cfg.SpamDetectorConfig()
	assert.Equal(t, 4, sc.Threshold)
	assert.Equal(t, 30*time.Second, sc.Window)
	assert.Equal(t, 10*time.Minute, sc.RecordDuration)
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{"bad yaml", "telegram: [", "failed to parse config"},
		{"threshold too low", "telegram: {token: x}\nspam: {threshold: 1}", "spam.threshold"},
		{"reply limit without window", "telegram: {token: x}\nfilters: {reply_limit: 2}", "filters.reply_window"},
		{"announcements without chats", "telegram: {token: x}\nannouncements: {enabled: true}", "allowed_chat_ids"},
		{"bad log level", "telegram: {token: x}\nlog: {level: loud}", "log.level"},
		{"bad log format", "telegram: {token: x}\nlog: {format: xml}", "log.format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestRequireToken(t *testing.T) {
	cfg, err := Parse([]byte("telegram: {}"))
	require.NoError(t, err, "offline commands load a config without a token")
	assert.EqualError(t, cfg.RequireToken(), "invalid config: telegram.token is required")

	cfg, err = Parse([]byte("telegram: {token: x}"))
	require.NoError(t, err)
	assert.NoError(t, cfg.RequireToken())
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("telegram:\n  token: abc\n"), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "abc", cfg.Telegram.Token)

	t.Setenv("CONFIG_PATH", path)
	cfg, err = Load("")
	require.NoError(t, err)
	assert.Equal(t, "abc", cfg.Telegram.Token)

	_, err = Load(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}

func TestConfig_StringMasksToken(t *testing.T) {
	cfg, err := Parse([]byte("telegram:\n  token: 123456789:SECRETSECRET\n"))
	require.NoError(t, err)

	s := cfg.String()
	assert.NotContains(t, s, "SECRETSECRET")
	assert.Contains(t, s, "1234...CRET")
	assert.Contains(t, s, "Allowed Chats: any")
}

func TestLogConfig_Logger(t *testing.T) {
	var buf bytes.Buffer
	logger := LogConfig{Level: "warn", Format: "json"}.Logger(&buf)

	logger.Info("hidden")
	logger.Warn("shown", "chat_id", "-100")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.True(t, strings.HasPrefix(out, "{"), out)
	assert.Contains(t, out, `"chat_id":"-100"`)
	assert.True(t, logger.Enabled(context.Background(), slog.LevelWarn))
}
