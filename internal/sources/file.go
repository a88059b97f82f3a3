package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/azure/danmaku-digest-bot/internal/models"
)

// Dump is the on-disk layout read by FileSource
type Dump struct {
	DurationSec int                      `json:"duration_sec"`
	Messages    []models.ReactionMessage `json:"messages"`
	Comments    []models.Comment         `json:"comments"`
}

// FileSource serves previously captured videos from <dir>/<contentID>.json
type FileSource struct {
	dir string
}

// Ensure FileSource implements Source
var _ Source = (*FileSource)(nil)

// NewFileSource creates a source reading dumps from dir
func NewFileSource(dir string) *FileSource {
	return &FileSource{dir: dir}
}

func (f *FileSource) GetName() string {
	return "file"
}

func (f *FileSource) FetchDuration(ctx context.Context, contentID string) (int, error) {
	d, err := f.load(contentID)
	if err != nil {
		return 0, err
	}
	if d.DurationSec <= 0 {
		return 0, fmt.Errorf("dump for %s has no duration", contentID)
	}
	return d.DurationSec, nil
}

func (f *FileSource) FetchMessages(ctx context.Context, contentID string, r models.TimeRange) ([]models.ReactionMessage, error) {
	d, err := f.load(contentID)
	if err != nil {
		return nil, err
	}

	var out []models.ReactionMessage
	for _, m := range d.Messages {
		if m.TimestampSec < r.FromSec || (r.ToSec > r.FromSec && m.TimestampSec >= r.ToSec) {
			continue
		}
		out = append(out, m)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].TimestampSec < out[j].TimestampSec
	})
	return out, nil
}

func (f *FileSource) FetchTopComments(ctx context.Context, contentID string, n int) ([]models.Comment, error) {
	d, err := f.load(contentID)
	if err != nil {
		return nil, err
	}

	comments := append([]models.Comment(nil), d.Comments...)
	sort.SliceStable(comments, func(i, j int) bool {
		return comments[i].LikeCount > comments[j].LikeCount
	})
	if n >= 0 && len(comments) > n {
		comments = comments[:n]
	}
	return comments, nil
}

func (f *FileSource) load(contentID string) (*Dump, error) {
	if contentID == "" || filepath.Base(contentID) != contentID {
		return nil, fmt.Errorf("invalid content id %q", contentID)
	}

	data, err := os.ReadFile(filepath.Join(f.dir, contentID+".json"))
	if err != nil {
		return nil, fmt.Errorf("failed to read dump: %w", err)
	}

	var d Dump
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("failed to parse dump: %w", err)
	}
	return &d, nil
}
