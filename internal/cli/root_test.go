package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/azure/danmaku-digest-bot/internal/config"
	"github.com/azure/danmaku-digest-bot/internal/models"
	"github.com/azure/danmaku-digest-bot/internal/sources"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()

	var messages []models.ReactionMessage
	for _, start := range []int{0, 15, 90, 105} {
		for i := 0; i < 10; i++ {
			messages = append(messages, models.ReactionMessage{TimestampSec: start + i, Text: "boss fight"})
		}
	}
	data, err := json.Marshal(sources.Dump{
		DurationSec: 120,
		Messages:    messages,
		Comments:    []models.Comment{{Text: "the boss fight was insane", LikeCount: 50}},
	})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "BV1cli.json"), data, 0o644))

	return &config.Config{
		DataDir:            dir,
		OutputDir:          t.TempDir(),
		CompletionProvider: "none",
		Defaults:           config.DefaultParams(),
	}
}

func run(t *testing.T, cfg *config.Config, args ...string) (string, error) {
	t.Helper()
	root := NewRoot(func() (*config.Config, error) { return cfg, nil })
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestAnalyzeCommand(t *testing.T) {
	cfg := testConfig(t)

	out, err := run(t, cfg, "analyze", "BV1cli")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "Full data written to "+cfg.OutputDir))
	assert.Contains(t, out, "[Danmaku segments] BV1cli")

	entries, err := os.ReadDir(cfg.OutputDir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.True(t, strings.HasPrefix(entries[0].Name(), "danmaku_BV1cli_"))
}

func TestAnalyzeCommand_JSON(t *testing.T) {
	out, err := run(t, testConfig(t), "analyze", "BV1cli", "--json", "--top-comments", "5")
	require.NoError(t, err)

	var artifact models.ExportArtifact
	require.NoError(t, json.Unmarshal([]byte(out), &artifact))
	assert.Equal(t, "BV1cli", artifact.ContentID)
	assert.Equal(t, 5, artifact.TopComments)
	assert.Equal(t, 30, artifact.WindowSec)
	assert.Equal(t, 40, artifact.MessageCount)
}

func TestAnalyzeCommand_Errors(t *testing.T) {
	_, err := run(t, testConfig(t), "analyze")
	assert.Error(t, err)

	_, err = run(t, testConfig(t), "analyze", "BV1missing", "--json")
	assert.Error(t, err)

	out, err := run(t, testConfig(t), "analyze", "BV1missing")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "Analysis failed: "))

	root := NewRoot(func() (*config.Config, error) { return nil, errors.New("bad env") })
	root.SetArgs([]string{"analyze", "BV1cli"})
	root.SetOut(&bytes.Buffer{})
	assert.EqualError(t, root.Execute(), "bad env")
}

func TestListingCommands(t *testing.T) {
	cfg := testConfig(t)

	out, err := run(t, cfg, "messages", "BV1cli", "--limit", "1")
	require.NoError(t, err)
	assert.Equal(t, "Danmaku (BV1cli, first 1 of 40):\n1. [00:00] boss fight\n", out)

	out, err = run(t, cfg, "comments", "BV1cli", "-n", "3")
	require.NoError(t, err)
	assert.Equal(t, "Top comments (BV1cli, 1):\n1. [likes 50] the boss fight was insane\n", out)

	out, err = run(t, cfg, "highlights", "BV1cli", "--top", "1")
	require.NoError(t, err)
	assert.Equal(t, "Highlights: top 1 danmaku-dense windows (BV1cli)\n  1. 00:00-01:00 20 danmaku | boss fight; boss fight; boss fight\n", out)
}

func TestWatchlistCommand(t *testing.T) {
	cfg := testConfig(t)

	_, err := run(t, cfg, "watchlist")
	assert.EqualError(t, err, "no videos given and WATCHLIST is empty")

	cfg.Watchlist = []string{"BV1cli"}
	_, err = run(t, cfg, "watchlist")
	assert.NoError(t, err)

	_, err = run(t, cfg, "watchlist", "BV1cli", "BV1missing")
	assert.ErrorContains(t, err, "BV1missing")
}

func TestVersionCommand(t *testing.T) {
	out, err := run(t, testConfig(t), "version")
	require.NoError(t, err)
	assert.Equal(t, version+"\n", out)
}
