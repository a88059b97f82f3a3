package segment

import (
	"github.com/azure/danmaku-digest-bot/internal/density"
	"github.com/azure/danmaku-digest-bot/internal/textsim"
)

// AnalysisWindowSec is the sub-window width used to compare topics
const AnalysisWindowSec = 30

// Split is the outcome of a content split search
type Split struct {
	Position int
	Found    bool
	Score    float64
}

// Splitter finds a topic-change cut inside [start, end) that lies strictly
// within (start+margin, end-margin).
type Splitter func(start, end, margin int) Split

// ContentSplitPoint divides [segStart, segEnd) into AnalysisWindowSec
// sub-windows and compares the bigram sets of adjacent ones. The sub-window
// start with the largest topic change (1 - Jaccard) wins. Fewer than three
// sub-windows never produce a split.
func ContentSplitPoint(b *density.Buckets, segStart, segEnd, margin int) Split {
	type window struct {
		start int
		grams textsim.GramSet
	}

	var windows []window
	for start := segStart; start < segEnd; start += AnalysisWindowSec {
		end := min(start+AnalysisWindowSec, segEnd)
		windows = append(windows, window{
			start: start,
			grams: textsim.NGramsOf(b.Texts(start, end), textsim.TopicGramSize),
		})
	}

	if len(windows) < 3 {
		return Split{}
	}

	var best Split
	for i := 1; i < len(windows); i++ {
		pos := windows[i].start
		if pos <= segStart+margin || pos >= segEnd-margin {
			continue
		}
		change := 1.0 - textsim.Jaccard(windows[i-1].grams, windows[i].grams)
		if change > best.Score {
			best = Split{Position: pos, Found: true, Score: change}
		}
	}
	return best
}

// ContentSplitter binds ContentSplitPoint to a bucket set
func ContentSplitter(b *density.Buckets) Splitter {
	return func(start, end, margin int) Split {
		return ContentSplitPoint(b, start, end, margin)
	}
}
