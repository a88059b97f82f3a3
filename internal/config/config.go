package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the application
type Config struct {
	// Server configuration
	Port  string
	Debug bool

	// Schedule configuration
	ReportSchedule string // "daily" or "weekly"
	Watchlist      []string
	WatchlistFile  string

	// Platform access
	BilibiliSessdata string
	BilibiliBaseURL  string
	// DataDir switches to the offline JSON file source when set
	DataDir string

	// Text completion
	CompletionProvider string // "ollama", "openai" or "none"
	CompletionModel    string
	CompletionTimeout  time.Duration
	OllamaHost         string
	OpenAIBaseURL      string
	OpenAIAPIKey       string

	// Analysis defaults, clamped per call
	Defaults           Params
	SummaryConcurrency int

	// Artifact storage
	OutputDir        string
	StorageAccount   string
	StorageContainer string

	// Notification configuration
	TeamsWebhookURL   string
	NotificationEmail string
	SMTPHost          string
	SMTPPort          int
	SMTPUsername      string
	SMTPPassword      string
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Port:           getEnv("PORT", "8080"),
		Debug:          getBoolEnv("DEBUG", false),
		ReportSchedule: getEnv("REPORT_SCHEDULE", "daily"),
		Watchlist:      getSliceEnv("WATCHLIST", nil),
		WatchlistFile:  getEnv("WATCHLIST_FILE", ""),

		BilibiliSessdata: getEnv("BILIBILI_SESSDATA", ""),
		BilibiliBaseURL:  getEnv("BILIBILI_BASE_URL", ""),
		DataDir:          getEnv("DANMAKU_DATA_DIR", ""),

		CompletionProvider: strings.ToLower(getEnv("COMPLETION_PROVIDER", "ollama")),
		CompletionModel:    getEnv("COMPLETION_MODEL", "qwen2.5:7b"),
		CompletionTimeout:  time.Duration(getIntEnv("COMPLETION_TIMEOUT_SEC", 25)) * time.Second,
		OllamaHost:         getEnv("OLLAMA_HOST", "http://localhost:11434"),
		OpenAIBaseURL:      getEnv("OPENAI_BASE_URL", ""),
		OpenAIAPIKey:       getEnv("OPENAI_API_KEY", ""),

		Defaults: Params{
			WindowSec:      getIntEnv("WINDOW_SEC", DefaultWindowSec),
			StepSec:        getIntEnv("STEP_SEC", DefaultStepSec),
			MinSegmentSec:  getIntEnv("MIN_SEGMENT_SEC", DefaultMinSegmentSec),
			MaxSegmentSec:  getIntEnv("MAX_SEGMENT_SEC", 0),
			MaxDurationSec: getIntEnv("MAX_DURATION_SEC", 0),
			TopComments:    getIntEnv("TOP_COMMENTS", DefaultTopComments),
			MergeThreshold: getIntEnv("MERGE_THRESHOLD", DefaultMergeThreshold),
			BatchSize:      getIntEnv("BATCH_SIZE", DefaultBatchSize),
		},
		SummaryConcurrency: getIntEnv("SUMMARY_CONCURRENCY", 4),

		OutputDir:        getEnv("OUTPUT_DIR", "output"),
		StorageAccount:   getEnv("AZURE_STORAGE_ACCOUNT", ""),
		StorageContainer: getEnv("AZURE_STORAGE_CONTAINER", "danmaku-digests"),

		TeamsWebhookURL:   getEnv("TEAMS_WEBHOOK_URL", ""),
		NotificationEmail: getEnv("NOTIFICATION_EMAIL", ""),
		SMTPHost:          getEnv("SMTP_HOST", ""),
		SMTPPort:          getIntEnv("SMTP_PORT", 587),
		SMTPUsername:      getEnv("SMTP_USERNAME", ""),
		SMTPPassword:      getEnv("SMTP_PASSWORD", ""),
	}
	cfg.Defaults = cfg.Defaults.Clamp()

	if cfg.WatchlistFile != "" {
		ids, err := LoadWatchlist(cfg.WatchlistFile)
		if err != nil {
			return nil, err
		}
		cfg.Watchlist = mergeIDs(cfg.Watchlist, ids)
	}

	// Validate required configuration
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.ReportSchedule != "daily" && c.ReportSchedule != "weekly" {
		return fmt.Errorf("REPORT_SCHEDULE must be 'daily' or 'weekly'")
	}

	switch c.CompletionProvider {
	case "ollama", "none":
	case "openai":
		if c.OpenAIAPIKey == "" && c.OpenAIBaseURL == "" {
			return fmt.Errorf("OPENAI_API_KEY or OPENAI_BASE_URL is required when COMPLETION_PROVIDER is 'openai'")
		}
	default:
		return fmt.Errorf("COMPLETION_PROVIDER must be 'ollama', 'openai' or 'none'")
	}

	if c.CompletionTimeout <= 0 {
		return fmt.Errorf("COMPLETION_TIMEOUT_SEC must be positive")
	}

	if c.NotificationEmail != "" {
		if c.SMTPHost == "" || c.SMTPUsername == "" || c.SMTPPassword == "" {
			return fmt.Errorf("SMTP configuration is required when NOTIFICATION_EMAIL is set")
		}
	}

	return nil
}

// NotificationsEnabled reports whether any delivery channel is configured
func (c *Config) NotificationsEnabled() bool {
	return c.TeamsWebhookURL != "" || c.NotificationEmail != ""
}

// mergeIDs appends extra ids not already present, keeping order
func mergeIDs(base, extra []string) []string {
	seen := make(map[string]bool, len(base)+len(extra))
	var out []string
	for _, id := range append(append([]string(nil), base...), extra...) {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getSliceEnv(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
