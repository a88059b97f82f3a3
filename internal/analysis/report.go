package analysis

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/azure/danmaku-digest-bot/internal/models"
	"github.com/azure/danmaku-digest-bot/internal/summarize"
)

// UnmatchedCommentsShown caps the trailing general-context comment block
const UnmatchedCommentsShown = 5

var unsafeNameChars = regexp.MustCompile(`[^A-Za-z0-9_-]+`)

// ArtifactName returns danmaku_<id>_<YYYYmmdd_HHMMSS>.json
func ArtifactName(contentID string, at time.Time) string {
	id := unsafeNameChars.ReplaceAllString(contentID, "_")
	return fmt.Sprintf("danmaku_%s_%s.json", id, at.Format("20060102_150405"))
}

func buildArtifact(r *Result) *models.ExportArtifact {
	intervals := make([]models.Interval, 0, len(r.Segments))
	for _, seg := range r.Segments {
		intervals = append(intervals, models.Interval{
			StartSec:     seg.StartSec,
			EndSec:       seg.EndSec,
			StartTS:      summarize.FormatTimestamp(seg.StartSec),
			EndTS:        summarize.FormatTimestamp(seg.EndSec),
			MessageCount: seg.TotalCount,
			Heat:         seg.Heat,
			Summary:      seg.Summary,
		})
	}

	return &models.ExportArtifact{
		ContentID:           r.ContentID,
		GeneratedAt:         r.GeneratedAt,
		DurationSec:         r.DurationSec,
		AnalyzedDurationSec: r.AnalyzedDurationSec,
		WindowSec:           r.Params.WindowSec,
		StepSec:             r.Params.StepSec,
		MessageCount:        r.MessageCount,
		CommentCount:        len(r.Comments),
		TopComments:         r.Params.TopComments,
		Intervals:           intervals,
	}
}

// FormatReport renders the human-readable multi-line report
func FormatReport(r *Result) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "[Danmaku segments] %s duration %s, %d danmaku, %d comments, window %ds, step %ds",
		r.ContentID, summarize.FormatTimestamp(r.DurationSec), r.MessageCount, len(r.Comments),
		r.Params.WindowSec, r.Params.StepSec)
	if r.AnalyzedDurationSec < r.DurationSec {
		fmt.Fprintf(&sb, " (first %ds only)", r.AnalyzedDurationSec)
	}
	sb.WriteString("\n")

	for i, seg := range r.Segments {
		fmt.Fprintf(&sb, "\n#%d %s-%s (%ds, %d danmaku)", i+1,
			summarize.FormatTimestamp(seg.StartSec), summarize.FormatTimestamp(seg.EndSec),
			seg.EndSec-seg.StartSec, seg.TotalCount)
		if seg.Heat != "" {
			sb.WriteString(" " + seg.Heat)
		}
		sb.WriteString("\n")

		if seg.Summary != "" {
			fmt.Fprintf(&sb, "  Summary: %s\n", seg.Summary)
		}
		if len(seg.PreContext) > 0 {
			fmt.Fprintf(&sb, "  Before: %s\n", strings.Join(seg.PreContext, " / "))
		}
		if len(seg.Samples) > 0 {
			fmt.Fprintf(&sb, "  Danmaku: %s\n", strings.Join(seg.Samples, " | "))
		}
		if len(seg.PostContext) > 0 {
			fmt.Fprintf(&sb, "  After: %s\n", strings.Join(seg.PostContext, " / "))
		}
		for _, c := range seg.MatchedComments {
			fmt.Fprintf(&sb, "  Comment [likes %d] %s\n", c.LikeCount, c.Text)
		}
	}

	if len(r.Unmatched) > 0 {
		sb.WriteString("\nOther top comments:\n")
		for i, c := range r.Unmatched {
			if i >= UnmatchedCommentsShown {
				break
			}
			fmt.Fprintf(&sb, "  [likes %d] %s\n", c.LikeCount, c.Text)
		}
	}

	return strings.TrimRight(sb.String(), "\n")
}
