package segment

import (
	"github.com/azure/danmaku-digest-bot/internal/density"
	"github.com/azure/danmaku-digest-bot/internal/models"
	"github.com/azure/danmaku-digest-bot/internal/textsim"
)

const (
	// SamplesPerSegment is the number of representative messages kept per segment
	SamplesPerSegment = 8
	// ContextSamples is the number of messages kept on each side of a cut
	ContextSamples = 2
	// OverlapSec is the window outside a segment used for transition context
	OverlapSec = 15

	sampleKeyRunes  = 30
	sampleTextRunes = 80
	textsPerBucket  = 3
)

// HeatLabel is an ordinal excitement rating relative to the video's average peak
type HeatLabel int

const (
	HeatUnknown HeatLabel = iota
	HeatFlat
	HeatNormal
	HeatHigh
	HeatVeryHigh
)

func (h HeatLabel) String() string {
	switch h {
	case HeatFlat:
		return "- flat"
	case HeatNormal:
		return "★ normal"
	case HeatHigh:
		return "★★ high"
	case HeatVeryHigh:
		return "★★★ very high"
	default:
		return ""
	}
}

// Heat rates a segment peak against the average peak across all segments
func Heat(peak, avgPeak float64) HeatLabel {
	if avgPeak <= 0 {
		return HeatUnknown
	}
	ratio := peak / avgPeak
	switch {
	case ratio >= 2.0:
		return HeatVeryHigh
	case ratio >= 1.3:
		return HeatHigh
	case ratio >= 0.7:
		return HeatNormal
	default:
		return HeatFlat
	}
}

// CutTimes converts boundary indices to cut times framed by 0 and the duration
func CutTimes(positions []int, boundaries []int, duration int) []int {
	cuts := []int{0}
	for _, idx := range boundaries {
		if idx < 0 || idx >= len(positions) {
			continue
		}
		if p := positions[idx]; p > cuts[len(cuts)-1] && p < duration {
			cuts = append(cuts, p)
		}
	}
	return append(cuts, duration)
}

// Assemble builds contiguous segments from sorted cut times. The last segment
// also owns the trailing bucket past the duration.
func Assemble(b *density.Buckets, cuts []int) []models.Segment {
	var segments []models.Segment
	for j := 0; j+1 < len(cuts); j++ {
		start, end := cuts[j], cuts[j+1]
		if start >= end {
			continue
		}

		final := j+2 == len(cuts)
		bucketEnd := end
		if final {
			bucketEnd = b.Start(b.Len())
		}

		seg := models.Segment{
			StartSec:   start,
			EndSec:     end,
			Samples:    Samples(b, start, bucketEnd, SamplesPerSegment),
			PreContext: Samples(b, start-OverlapSec, start, ContextSamples),
		}
		if !final {
			seg.PostContext = Samples(b, end, end+OverlapSec, ContextSamples)
		}

		first, last := b.Range(start, bucketEnd)
		for k := first; k < last; k++ {
			n := len(b.Slots[k])
			seg.TotalCount += n
			if n > seg.PeakCount {
				seg.PeakCount = n
			}
		}
		segments = append(segments, seg)
	}

	LabelHeat(segments)
	return segments
}

// LabelHeat sets the heat label of every segment from its peak bucket size
func LabelHeat(segments []models.Segment) {
	if len(segments) == 0 {
		return
	}
	sum := 0
	for _, s := range segments {
		sum += s.PeakCount
	}
	avg := float64(sum) / float64(len(segments))
	for i := range segments {
		segments[i].Heat = Heat(float64(segments[i].PeakCount), avg).String()
	}
}

// Samples picks up to count texts spread evenly over the populated buckets
// starting in [from, to). At most one text is taken per picked bucket and texts
// sharing a short prefix with an earlier pick are skipped.
func Samples(b *density.Buckets, from, to, count int) []string {
	if count <= 0 || from >= to {
		return nil
	}

	first, last := b.Range(from, to)
	var populated []int
	for k := first; k < last; k++ {
		if len(b.Slots[k]) > 0 {
			populated = append(populated, k)
		}
	}
	if len(populated) == 0 {
		return nil
	}

	step := max(1, len(populated)/count)
	seen := make(map[string]bool)
	var samples []string
	for i := 0; i < len(populated) && len(samples) < count; i += step {
		texts := b.Slots[populated[i]]
		if len(texts) > textsPerBucket {
			texts = texts[:textsPerBucket]
		}
		for _, text := range texts {
			key := truncateRunes(text, sampleKeyRunes)
			if seen[key] {
				continue
			}
			seen[key] = true
			samples = append(samples, truncateRunes(text, sampleTextRunes))
			break
		}
	}
	return samples
}

// AttachComments links every segment with the best matching comments and
// returns which comment indices were used anywhere.
func AttachComments(b *density.Buckets, segments []models.Segment, comments []models.Comment) map[int]bool {
	used := make(map[int]bool)
	if len(comments) == 0 {
		return used
	}

	texts := make([]string, len(comments))
	for i, c := range comments {
		texts[i] = c.Text
	}

	for i := range segments {
		end := segments[i].EndSec
		if i == len(segments)-1 {
			end = b.Start(b.Len())
		}
		grams := textsim.NGramsOf(b.Texts(segments[i].StartSec, end), textsim.MatchGramSize)
		for _, m := range textsim.MatchComments(grams, texts, textsim.CommentsPerSegment) {
			segments[i].MatchedComments = append(segments[i].MatchedComments, comments[m.Index])
			used[m.Index] = true
		}
	}
	return used
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
