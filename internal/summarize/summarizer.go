package summarize

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/azure/danmaku-digest-bot/internal/completion"
	"github.com/azure/danmaku-digest-bot/internal/models"
	"github.com/azure/danmaku-digest-bot/internal/textsim"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Defaults for Config fields left at zero
const (
	DefaultMergeThreshold = 25
	DefaultBatchSize      = 15
	DefaultTimeout        = 25 * time.Second

	maxItemsInPrompt    = 50
	maxCommentsInPrompt = 10
	commentRunes        = 120
	maxSummaryRunes     = 200
)

// Config tunes the hierarchical summarizer
type Config struct {
	// MergeThreshold is the largest distinct item count summarized in one request
	MergeThreshold int
	// BatchSize is the number of items (or sentences) compressed per request
	BatchSize int
	// Similarity is the trigram Jaccard threshold for near-duplicate merging
	Similarity float64
	// Timeout bounds every single completion request
	Timeout time.Duration
	// Concurrency caps parallel batch requests; 1 runs them sequentially
	Concurrency int
}

func (c Config) withDefaults() Config {
	if c.MergeThreshold <= 0 {
		c.MergeThreshold = DefaultMergeThreshold
	}
	if c.BatchSize < 2 {
		c.BatchSize = DefaultBatchSize
	}
	if c.Similarity <= 0 {
		c.Similarity = textsim.DefaultMergeThreshold
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.Concurrency <= 0 {
		c.Concurrency = 1
	}
	return c
}

// Stats counts completion requests issued by a summarizer
type Stats struct {
	Requests int64 `json:"requests"`
	Failures int64 `json:"failures"`
}

// Summarizer compresses a segment's messages into a one-sentence narrative
type Summarizer struct {
	completer completion.Completer
	cfg       Config
	requests  atomic.Int64
	failures  atomic.Int64
}

// New creates a summarizer. A nil completer yields empty summaries.
func New(completer completion.Completer, cfg Config) *Summarizer {
	return &Summarizer{
		completer: completer,
		cfg:       cfg.withDefaults(),
	}
}

// Stats returns request counters since creation
func (s *Summarizer) Stats() Stats {
	return Stats{Requests: s.requests.Load(), Failures: s.failures.Load()}
}

// Summarize deduplicates texts and asks for a single-sentence summary of the
// [startSec, endSec) range. Small item sets go out in one request together
// with the comments. Larger sets are compressed batch by batch and the batch
// sentences are merged level by level, so no request ever carries more than
// BatchSize items or sentences. Failed requests contribute nothing.
func (s *Summarizer) Summarize(ctx context.Context, startSec, endSec int, texts []string, comments []models.Comment) string {
	if s.completer == nil {
		return ""
	}

	items := textsim.Condense(texts, s.cfg.Similarity)
	if len(items) == 0 {
		return ""
	}

	if len(items) <= s.cfg.MergeThreshold {
		return s.oneLine(ctx, singlePrompt(startSec, endSec, items, comments))
	}

	var batches []string
	for i := 0; i < len(items); i += s.cfg.BatchSize {
		batch := items[i:min(i+s.cfg.BatchSize, len(items))]
		batches = append(batches, batchPrompt(batch))
	}
	sentences := s.completeAll(ctx, batches)

	// Higher levels only appear when there are more sentences than fit one request
	for len(sentences) > s.cfg.BatchSize {
		var prompts []string
		for i := 0; i < len(sentences); i += s.cfg.BatchSize {
			prompts = append(prompts, mergePrompt(sentences[i:min(i+s.cfg.BatchSize, len(sentences))], startSec, endSec))
		}
		sentences = s.completeAll(ctx, prompts)
	}

	switch len(sentences) {
	case 0:
		return ""
	case 1:
		return sentences[0]
	default:
		return s.oneLine(ctx, mergePrompt(sentences, startSec, endSec))
	}
}

// completeAll runs prompts with bounded parallelism and returns the non-empty
// results in prompt order.
func (s *Summarizer) completeAll(ctx context.Context, prompts []string) []string {
	results := make([]string, len(prompts))

	g := new(errgroup.Group)
	g.SetLimit(s.cfg.Concurrency)
	for i, p := range prompts {
		g.Go(func() error {
			results[i] = s.oneLine(ctx, p)
			return nil
		})
	}
	_ = g.Wait()

	var out []string
	for _, r := range results {
		if r != "" {
			out = append(out, r)
		}
	}
	return out
}

// oneLine issues a single bounded request. Errors and timeouts yield "".
func (s *Summarizer) oneLine(ctx context.Context, prompt string) string {
	s.requests.Add(1)

	reqCtx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	text, err := s.completer.Complete(reqCtx, prompt)
	if err != nil {
		s.failures.Add(1)
		logrus.Warnf("Summary request failed: %v", err)
		return ""
	}

	text = strings.Join(strings.Fields(text), " ")
	if r := []rune(text); len(r) > maxSummaryRunes {
		text = string(r[:maxSummaryRunes])
	}
	return text
}

// FormatItems renders items one per line, annotating repeated ones with xN
func FormatItems(items []textsim.Item, limit int) string {
	var lines []string
	for i, it := range items {
		if i >= limit {
			break
		}
		if it.Count > 1 {
			lines = append(lines, fmt.Sprintf("%s (x%d)", it.Text, it.Count))
		} else {
			lines = append(lines, it.Text)
		}
	}
	if len(lines) == 0 {
		return "(none)"
	}
	return strings.Join(lines, "\n")
}

func formatComments(comments []models.Comment) string {
	var lines []string
	for i, c := range comments {
		if i >= maxCommentsInPrompt {
			break
		}
		text := c.Text
		if r := []rune(text); len(r) > commentRunes {
			text = string(r[:commentRunes])
		}
		lines = append(lines, fmt.Sprintf("[likes %d] %s", c.LikeCount, text))
	}
	if len(lines) == 0 {
		return "(none)"
	}
	return strings.Join(lines, "\n")
}

func singlePrompt(startSec, endSec int, items []textsim.Item, comments []models.Comment) string {
	return fmt.Sprintf(`Based on the danmaku (%s-%s) and comments below, summarize in one sentence what happens in this part. Output one sentence only.

Danmaku (deduplicated):
%s

Comments:
%s

One sentence:`, FormatTimestamp(startSec), FormatTimestamp(endSec), FormatItems(items, maxItemsInPrompt), formatComments(comments))
}

func batchPrompt(items []textsim.Item) string {
	return fmt.Sprintf(`Below is a batch of danmaku, possibly annotated with xN counts. Summarize in one sentence what this batch is discussing. Output one sentence only, without prefix or numbering.

Danmaku:
%s

One-sentence summary:`, FormatItems(items, len(items)))
}

func mergePrompt(summaries []string, startSec, endSec int) string {
	var block strings.Builder
	for i, s := range summaries {
		fmt.Fprintf(&block, "%d. %s\n", i+1, s)
	}
	return fmt.Sprintf(`Below are several summaries of danmaku from the same time range (%s-%s). Merge them into one sentence. Output one sentence only, without prefix.

%s
Merged sentence:`, FormatTimestamp(startSec), FormatTimestamp(endSec), block.String())
}

// FormatTimestamp renders seconds as MM:SS
func FormatTimestamp(sec int) string {
	return fmt.Sprintf("%02d:%02d", sec/60, sec%60)
}
