package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/azure/danmaku-digest-bot/internal/analysis"
	"github.com/azure/danmaku-digest-bot/internal/completion"
	"github.com/azure/danmaku-digest-bot/internal/config"
	"github.com/azure/danmaku-digest-bot/internal/sources"
	"github.com/azure/danmaku-digest-bot/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSource(t *testing.T) {
	assert.IsType(t, &sources.FileSource{}, NewSource(&config.Config{DataDir: t.TempDir()}))
	assert.IsType(t, &sources.BilibiliSource{}, NewSource(&config.Config{}))
}

func TestNewCompleter(t *testing.T) {
	c, err := NewCompleter(&config.Config{CompletionProvider: "none"})
	require.NoError(t, err)
	assert.Nil(t, c)

	c, err = NewCompleter(&config.Config{CompletionProvider: "ollama", CompletionModel: "qwen2.5:7b"})
	require.NoError(t, err)
	assert.IsType(t, &completion.Ollama{}, c)

	_, err = NewCompleter(&config.Config{CompletionProvider: "magic"})
	assert.Error(t, err)
}

func TestNewStorage_Local(t *testing.T) {
	s, err := NewStorage(context.Background(), &config.Config{OutputDir: t.TempDir()})
	require.NoError(t, err)
	assert.IsType(t, &storage.LocalStorage{}, s)
}

func TestNewAnalysisService(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "BV1wire.json"), []byte(`{"duration_sec":60,"messages":[]}`), 0o644))

	cfg := &config.Config{
		DataDir:            dir,
		OutputDir:          t.TempDir(),
		CompletionProvider: "none",
		TeamsWebhookURL:    "http://127.0.0.1:1/hook",
	}
	svc, err := NewAnalysisService(context.Background(), cfg, false)
	require.NoError(t, err)

	_, err = svc.Analyze(context.Background(), "BV1wire", config.Params{})
	assert.ErrorIs(t, err, analysis.ErrInsufficientData)

	// no notifier is wired, so the failure raises no alert against the dead webhook
	assert.Error(t, svc.AnalyzeWatchlist(context.Background(), []string{"BV1wire"}))

	_, err = NewAnalysisService(context.Background(), &config.Config{CompletionProvider: "magic"}, true)
	assert.Error(t, err)
}
