package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/rg/arcguard/internal/moderation"
	"github.com/rg/arcguard/internal/spam"
)

const DefaultPath = "./configs/config.yaml"

type Config struct {
	Telegram      TelegramConfig      `yaml:"telegram"`
	Moderation    ModerationConfig    `yaml:"moderation"`
	Spam          SpamConfig          `yaml:"spam"`
	Phrases       PhrasesConfig       `yaml:"phrases"`
	Filters       FiltersConfig       `yaml:"filters"`
	Announcements AnnouncementsConfig `yaml:"announcements"`
	Storage       StorageConfig       `yaml:"storage"`
	Metrics       MetricsConfig       `yaml:"metrics"`
	Executor      ExecutorConfig      `yaml:"executor"`
	Log           LogConfig           `yaml:"log"`
}

type TelegramConfig struct {
	Token string `yaml:"token"`
	// AllowedChatIDs limits moderation to these groups; empty means any group.
	AllowedChatIDs  []string `yaml:"allowed_chat_ids"`
	PlatformDomains []string `yaml:"platform_domains"`
}

type ModerationConfig struct {
	MuteDuration       time.Duration `yaml:"mute_duration"`
	MinLength          int           `yaml:"min_length"`
	AdminCommandPrefix string        `yaml:"admin_command_prefix"`
	ListCommand        string        `yaml:"list_command"`
	StatusCommand      string        `yaml:"status_command"`
	SuspiciousKeywords []string      `yaml:"suspicious_keywords"`
	TokenNames         []string      `yaml:"token_names"`
	AdminCacheTTL      time.Duration `yaml:"admin_cache_ttl"`
	BanNotice          string        `yaml:"ban_notice"`
	MuteNotice         string        `yaml:"mute_notice"`
}

type SpamConfig struct {
	Threshold      int           `yaml:"threshold"`
	Window         time.Duration `yaml:"window"`
	RecordDuration time.Duration `yaml:"record_duration"`
	SweepInterval  time.Duration `yaml:"sweep_interval"`
}

// PhrasesConfig points at the phrase list files. An empty path means an
// empty list; a path that does not exist is a startup error.
type PhrasesConfig struct {
	BanFile       string `yaml:"ban_file"`
	MuteFile      string `yaml:"mute_file"`
	DeleteFile    string `yaml:"delete_file"`
	WhitelistFile string `yaml:"whitelist_file"`
}

type FiltersConfig struct {
	File        string        `yaml:"file"`
	MediaRoot   string        `yaml:"media_root"`
	ReplyLimit  int           `yaml:"reply_limit"`
	ReplyWindow time.Duration `yaml:"reply_window"`
}

type AnnouncementsConfig struct {
	Enabled  bool     `yaml:"enabled"`
	Schedule string   `yaml:"schedule"`
	Pin      *bool    `yaml:"pin"`
	Messages []string `yaml:"messages"`
}

func (a AnnouncementsConfig) PinEnabled() bool {
	return a.Pin == nil || *a.Pin
}

type StorageConfig struct {
	DBPath string `yaml:"db_path"`
}

type MetricsConfig struct {
	Listen string `yaml:"listen"`
}

type ExecutorConfig struct {
	Workers   int `yaml:"workers"`
	QueueSize int `yaml:"queue_size"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads the YAML config at path, or at CONFIG_PATH when path is empty.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("CONFIG_PATH")
	}
	if path == "" {
		path = DefaultPath
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return Parse(data)
}

// Parse expands ${VAR} references, applies defaults and validates.
func Parse(data []byte) (*Config, error) {
	content := expandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(content), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Moderation.MuteDuration == 0 {
		c.Moderation.MuteDuration = moderation.DefaultMuteDuration
	}
	if c.Moderation.MinLength == 0 {
		c.Moderation.MinLength = moderation.DefaultMinLength
	}
	if c.Moderation.AdminCommandPrefix == "" {
		c.Moderation.AdminCommandPrefix = "/say"
	}
	if c.Moderation.ListCommand == "" {
		c.Moderation.ListCommand = "/filters"
	}
	if c.Moderation.StatusCommand == "" {
		c.Moderation.StatusCommand = "/modstatus"
	}
	if c.Moderation.SuspiciousKeywords == nil {
		c.Moderation.SuspiciousKeywords = []string{"admin", "support", "official", "helpdesk"}
	}
	if c.Moderation.TokenNames == nil {
		c.Moderation.TokenNames = []string{"arc", "eth", "btc", "sol", "usdt", "usdc", "token", "tokens"}
	}
	if c.Moderation.AdminCacheTTL == 0 {
		c.Moderation.AdminCacheTTL = 5 * time.Minute
	}

	if c.Spam.Threshold == 0 {
		c.Spam.Threshold = spam.DefaultThreshold
	}
	if c.Spam.Window == 0 {
		c.Spam.Window = spam.DefaultWindow
	}
	if c.Spam.RecordDuration == 0 {
		c.Spam.RecordDuration = spam.DefaultRecordDuration
	}
	if c.Spam.SweepInterval == 0 {
		c.Spam.SweepInterval = spam.DefaultSweepInterval
	}

	if c.Filters.MediaRoot == "" {
		c.Filters.MediaRoot = "./data/media"
	}

	if c.Announcements.Schedule == "" {
		c.Announcements.Schedule = "0 */8 * * *"
	}

	if c.Storage.DBPath == "" {
		c.Storage.DBPath = "./data/arcguard.db"
	}

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
}

func (c *Config) validate() error {
	if c.Moderation.MuteDuration < 0 {
		return fmt.Errorf("moderation.mute_duration must be positive")
	}
	if c.Moderation.MinLength < 0 {
		return fmt.Errorf("moderation.min_length must not be negative")
	}
	if c.Spam.Threshold < 2 {
		return fmt.Errorf("spam.threshold must be at least 2")
	}
	if c.Spam.Window < 0 || c.Spam.RecordDuration < 0 || c.Spam.SweepInterval < 0 {
		return fmt.Errorf("spam durations must be positive")
	}
	if c.Filters.ReplyLimit < 0 {
		return fmt.Errorf("filters.reply_limit must not be negative")
	}
	if c.Filters.ReplyLimit > 0 && c.Filters.ReplyWindow <= 0 {
		return fmt.Errorf("filters.reply_window is required when filters.reply_limit is set")
	}
	if c.Announcements.Enabled && len(c.Telegram.AllowedChatIDs) == 0 {
		return fmt.Errorf("telegram.allowed_chat_ids is required when announcements are enabled")
	}
	if c.Executor.Workers < 0 || c.Executor.QueueSize < 0 {
		return fmt.Errorf("executor.workers and executor.queue_size must not be negative")
	}
	if _, err := parseLevel(c.Log.Level); err != nil {
		return err
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		return fmt.Errorf("log.format must be text or json, got %q", c.Log.Format)
	}
	return nil
}

// RequireToken checks the settings only the live bot needs. Offline
// commands work from the rule files alone.
func (c *Config) RequireToken() error {
	if c.Telegram.Token == "" {
		return fmt.Errorf("invalid config: telegram.token is required")
	}
	return nil
}

// ModerationPipelineConfig maps the file settings onto the pipeline's.
func (c *Config) ModerationPipelineConfig() moderation.Config {
	return moderation.Config{
		MinLength:          c.Moderation.MinLength,
		MuteDuration:       c.Moderation.MuteDuration,
		AdminCommandPrefix: c.Moderation.AdminCommandPrefix,
		SuspiciousKeywords: c.Moderation.SuspiciousKeywords,
		PlatformDomains:    c.Telegram.PlatformDomains,
		TokenNames:         c.Moderation.TokenNames,
	}
}

func (c *Config) SpamDetectorConfig() spam.Config {
	return spam.Config{
		Threshold:      c.Spam.Threshold,
		Window:         c.Spam.Window,
		RecordDuration: c.Spam.RecordDuration,
	}
}

// Logger builds the process logger described by the log section.
func (l LogConfig) Logger(w io.Writer) *slog.Logger {
	level, _ := parseLevel(l.Level)
	opts := &slog.HandlerOptions{Level: level}
	if l.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func parseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("log.level must be debug, info, warn or error, got %q", s)
	}
}

func expandEnv(s string) string {
	return os.Expand(s, func(key string) string {
		return os.Getenv(key)
	})
}

func (c *Config) String() string {
	var sb strings.Builder
	sb.WriteString("Configuration:\n")
	sb.WriteString(fmt.Sprintf("  Telegram Token: %s\n", maskSecret(c.Telegram.Token)))
	sb.WriteString(fmt.Sprintf("  Allowed Chats: %s\n", listOrAny(c.Telegram.AllowedChatIDs)))
	sb.WriteString(fmt.Sprintf("  Mute Duration: %s\n", c.Moderation.MuteDuration))
	sb.WriteString(fmt.Sprintf("  Min Length: %d\n", c.Moderation.MinLength))
	sb.WriteString(fmt.Sprintf("  Admin Command Prefix: %s\n", c.Moderation.AdminCommandPrefix))
	sb.WriteString(fmt.Sprintf("  Spam: threshold %d, window %s, record %s, sweep %s\n",
		c.Spam.Threshold, c.Spam.Window, c.Spam.RecordDuration, c.Spam.SweepInterval))
	sb.WriteString(fmt.Sprintf("  Phrase Files: ban=%s mute=%s delete=%s whitelist=%s\n",
		c.Phrases.BanFile, c.Phrases.MuteFile, c.Phrases.DeleteFile, c.Phrases.WhitelistFile))
	sb.WriteString(fmt.Sprintf("  Filters: %s (media %s)\n", c.Filters.File, c.Filters.MediaRoot))
	sb.WriteString(fmt.Sprintf("  Announcements: %v (%s)\n", c.Announcements.Enabled, c.Announcements.Schedule))
	sb.WriteString(fmt.Sprintf("  Storage DB Path: %s\n", c.Storage.DBPath))
	sb.WriteString(fmt.Sprintf("  Metrics Listen: %s\n", c.Metrics.Listen))
	sb.WriteString(fmt.Sprintf("  Log: %s/%s\n", c.Log.Level, c.Log.Format))
	return sb.String()
}

func listOrAny(ids []string) string {
	if len(ids) == 0 {
		return "any"
	}
	return strings.Join(ids, ",")
}

func maskSecret(s string) string {
	if len(s) <= 8 {
		return "***"
	}
	return s[:4] + "..." + s[len(s)-4:]
}
