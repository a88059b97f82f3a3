package app

import (
	"context"
	"fmt"

	"github.com/azure/danmaku-digest-bot/internal/analysis"
	"github.com/azure/danmaku-digest-bot/internal/completion"
	"github.com/azure/danmaku-digest-bot/internal/config"
	"github.com/azure/danmaku-digest-bot/internal/notifications"
	"github.com/azure/danmaku-digest-bot/internal/sources"
	"github.com/azure/danmaku-digest-bot/internal/storage"
	"github.com/sirupsen/logrus"
)

// NewSource returns the offline file source when a data directory is
// configured, the Bilibili API otherwise
func NewSource(cfg *config.Config) sources.Source {
	if cfg.DataDir != "" {
		logrus.Infof("Reading danmaku dumps from %s", cfg.DataDir)
		return sources.NewFileSource(cfg.DataDir)
	}
	return sources.NewBilibiliSource(cfg.BilibiliBaseURL, cfg.BilibiliSessdata)
}

// NewCompleter builds the configured completion backend; nil disables summaries
func NewCompleter(cfg *config.Config) (completion.Completer, error) {
	c, err := completion.New(completion.Settings{
		Provider:      cfg.CompletionProvider,
		Model:         cfg.CompletionModel,
		OllamaHost:    cfg.OllamaHost,
		OpenAIBaseURL: cfg.OpenAIBaseURL,
		OpenAIAPIKey:  cfg.OpenAIAPIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize completion backend: %w", err)
	}
	if c == nil {
		logrus.Info("Completion disabled, segments will have no summaries")
	}
	return c, nil
}

// NewStorage uses Azure Blob Storage when an account is configured and the
// local output directory otherwise
func NewStorage(ctx context.Context, cfg *config.Config) (storage.StorageInterface, error) {
	if cfg.StorageAccount == "" {
		return storage.NewLocalStorage(cfg.OutputDir), nil
	}
	s, err := storage.NewAzureStorage(ctx, cfg.StorageAccount, cfg.StorageContainer)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	return s, nil
}

// NewAnalysisService assembles the engine from the configuration. Reports are
// delivered only when notify is set and a channel is configured.
func NewAnalysisService(ctx context.Context, cfg *config.Config, notify bool) (*analysis.Service, error) {
	store, err := NewStorage(ctx, cfg)
	if err != nil {
		return nil, err
	}
	completer, err := NewCompleter(cfg)
	if err != nil {
		return nil, err
	}

	var notifier notifications.NotificationInterface
	if notify && cfg.NotificationsEnabled() {
		notifier = notifications.NewService(cfg)
	}

	return analysis.NewService(analysis.OptionsFromConfig(cfg), NewSource(cfg), completer, store, notifier), nil
}
