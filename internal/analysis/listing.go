package analysis

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/azure/danmaku-digest-bot/internal/density"
	"github.com/azure/danmaku-digest-bot/internal/models"
	"github.com/azure/danmaku-digest-bot/internal/sources"
	"github.com/azure/danmaku-digest-bot/internal/summarize"
)

// Listing limits
const (
	DefaultMessageLimit = 100
	MaxMessageLimit     = 500
	DefaultCommentLimit = 10
	MaxCommentLimit     = 50

	DefaultHighlightWindowSec = 60
	MinHighlightWindowSec     = 30
	DefaultHighlights         = 5
	MaxHighlights             = 20

	listedMessageRunes   = 80
	listedCommentRunes   = 200
	highlightSampleRunes = 40
	highlightSamples     = 3
)

// ListMessages renders the first limit messages in [fromSec, toSec). A
// non-positive toSec means one platform segment from fromSec.
func (s *Service) ListMessages(ctx context.Context, contentID string, limit, fromSec, toSec int) string {
	if limit <= 0 || limit > MaxMessageLimit {
		limit = DefaultMessageLimit
	}
	fromSec = max(fromSec, 0)
	if toSec <= fromSec {
		toSec = fromSec + sources.SegmentSec
	}

	messages, err := s.source.FetchMessages(ctx, contentID, models.TimeRange{FromSec: fromSec, ToSec: toSec})
	if err != nil {
		return fmt.Sprintf("Fetch failed: %v", err)
	}
	if len(messages) == 0 {
		return "No danmaku."
	}

	shown := min(limit, len(messages))
	lines := make([]string, 0, shown+1)
	header := fmt.Sprintf("Danmaku (%s, first %d", contentID, shown)
	if len(messages) > limit {
		header += fmt.Sprintf(" of %d", len(messages))
	}
	lines = append(lines, header+"):")

	for i, m := range messages[:shown] {
		text := strings.ReplaceAll(strings.TrimSpace(m.Text), "\n", " ")
		lines = append(lines, fmt.Sprintf("%d. [%s] %s", i+1, summarize.FormatTimestamp(m.TimestampSec), ellipsize(text, listedMessageRunes)))
	}
	return strings.Join(lines, "\n")
}

// ListComments renders the top n comments by likes
func (s *Service) ListComments(ctx context.Context, contentID string, n int) string {
	if n <= 0 || n > MaxCommentLimit {
		n = DefaultCommentLimit
	}

	comments, err := s.source.FetchTopComments(ctx, contentID, n)
	if err != nil {
		return fmt.Sprintf("Fetch failed: %v", err)
	}
	if len(comments) == 0 {
		return "No comments."
	}

	lines := []string{fmt.Sprintf("Top comments (%s, %d):", contentID, len(comments))}
	for i, c := range comments {
		lines = append(lines, fmt.Sprintf("%d. [likes %d] %s", i+1, c.LikeCount, truncate(c.Text, listedCommentRunes)))
	}
	return strings.Join(lines, "\n")
}

// Highlights ranks fixed windows of windowSec by message count and renders the
// densest topN with a few sample messages each.
func (s *Service) Highlights(ctx context.Context, contentID string, windowSec, topN int) string {
	if windowSec < MinHighlightWindowSec {
		windowSec = DefaultHighlightWindowSec
	}
	if topN < 1 || topN > MaxHighlights {
		topN = DefaultHighlights
	}

	duration, err := s.source.FetchDuration(ctx, contentID)
	if err != nil || duration <= 0 {
		duration = DefaultDurationSec
	}
	messages, err := s.source.FetchMessages(ctx, contentID, models.TimeRange{FromSec: 0, ToSec: duration + windowSec})
	if err != nil {
		return fmt.Sprintf("Analysis failed: %v", err)
	}
	if len(messages) == 0 {
		return "No danmaku, cannot analyze."
	}

	// the reported duration can be short of the last message
	span := duration
	for _, m := range messages {
		span = max(span, m.TimestampSec)
	}
	b := density.NewBuckets(messages, windowSec, span)
	var ranked []int
	for k := 0; k < b.Len(); k++ {
		if len(b.Slots[k]) > 0 {
			ranked = append(ranked, k)
		}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return len(b.Slots[ranked[i]]) > len(b.Slots[ranked[j]])
	})
	if len(ranked) > topN {
		ranked = ranked[:topN]
	}

	lines := []string{fmt.Sprintf("Highlights: top %d danmaku-dense windows (%s)", topN, contentID)}
	for i, k := range ranked {
		slot := b.Slots[k]
		var samples []string
		for _, text := range slot[:min(highlightSamples, len(slot))] {
			samples = append(samples, ellipsize(text, highlightSampleRunes))
		}
		start := b.Start(k)
		lines = append(lines, fmt.Sprintf("  %d. %s-%s %d danmaku | %s", i+1,
			summarize.FormatTimestamp(start), summarize.FormatTimestamp(start+windowSec),
			len(slot), strings.Join(samples, "; ")))
	}
	return strings.Join(lines, "\n")
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

func ellipsize(s string, n int) string {
	if t := truncate(s, n); t != s {
		return t + "..."
	}
	return s
}
