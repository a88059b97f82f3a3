package textsim

import "sort"

const (
	// TopicGramSize is the n-gram length used for topic-change detection
	TopicGramSize = 2
	// MatchGramSize is the n-gram length used for near-duplicate and comment matching
	MatchGramSize = 3

	// DefaultMergeThreshold is the similarity at which two items are merged
	DefaultMergeThreshold = 0.82
	// CommentCoverageThreshold is the minimum fraction of a comment's n-grams
	// that must appear in the segment text for the comment to be attached
	CommentCoverageThreshold = 0.08
	// CommentsPerSegment is how many matched comments are kept per segment
	CommentsPerSegment = 2
)

// GramSet is a set of character n-grams
type GramSet map[string]struct{}

// NGrams returns all contiguous rune n-grams of length k in s. Strings shorter
// than k produce an empty set.
func NGrams(s string, k int) GramSet {
	set := make(GramSet)
	if k <= 0 {
		return set
	}
	runes := []rune(s)
	for i := 0; i+k <= len(runes); i++ {
		set[string(runes[i:i+k])] = struct{}{}
	}
	return set
}

// NGramsOf returns the union of n-grams over all texts. N-grams never span two texts.
func NGramsOf(texts []string, k int) GramSet {
	set := make(GramSet)
	for _, t := range texts {
		for g := range NGrams(t, k) {
			set[g] = struct{}{}
		}
	}
	return set
}

func intersectionSize(a, b GramSet) int {
	if len(a) > len(b) {
		a, b = b, a
	}
	n := 0
	for g := range a {
		if _, ok := b[g]; ok {
			n++
		}
	}
	return n
}

// Jaccard returns |A∩B| / |A∪B|. Two empty sets are considered identical and
// score 1.0; this is the semantics used for near-duplicate merging and topic
// change detection.
func Jaccard(a, b GramSet) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1.0
	}
	inter := intersectionSize(a, b)
	union := len(a) + len(b) - inter
	if union == 0 {
		return 1.0
	}
	return float64(inter) / float64(union)
}

// Coverage returns the fraction of the comment's n-grams found in the text
// n-grams. Any empty set scores 0.0 so unrelated short comments never match.
func Coverage(comment, text GramSet) float64 {
	if len(comment) == 0 || len(text) == 0 {
		return 0.0
	}
	return float64(intersectionSize(comment, text)) / float64(len(comment))
}

// MergeSimilar greedily merges items whose trigram Jaccard similarity is at
// least threshold. A merged entry keeps the longest text and the summed count.
// Each item is compared against the original text of the entry that absorbs it.
func MergeSimilar(items []Item, threshold float64) []Item {
	if len(items) <= 1 {
		return items
	}

	grams := make([]GramSet, len(items))
	for i, it := range items {
		grams[i] = NGrams(it.Text, MatchGramSize)
	}

	used := make([]bool, len(items))
	var out []Item

	for i, it := range items {
		if used[i] {
			continue
		}
		merged := it
		for j := i + 1; j < len(items); j++ {
			if used[j] {
				continue
			}
			if Jaccard(grams[i], grams[j]) >= threshold {
				used[j] = true
				merged.Count += items[j].Count
				if len([]rune(items[j].Text)) > len([]rune(merged.Text)) {
					merged.Text = items[j].Text
				}
			}
		}
		out = append(out, merged)
	}

	sortByCount(out)
	return out
}

// Condense is the full dedupe pipeline: normalize, count and merge
// near-duplicates. A merged entry can adopt a longer text that matches items
// the previous pass kept apart, so merging repeats until nothing changes.
func Condense(texts []string, threshold float64) []Item {
	items := MergeSimilar(Dedupe(texts), threshold)
	for {
		next := MergeSimilar(items, threshold)
		if len(next) == len(items) {
			return next
		}
		items = next
	}
}

// ScoredComment is a candidate comment with its coverage score
type ScoredComment struct {
	Index int
	Score float64
}

// MatchComments scores every comment text against the segment text n-grams and
// returns up to limit indices whose coverage is at least CommentCoverageThreshold,
// best first. Ties keep the original (like-ranked) order.
func MatchComments(segmentGrams GramSet, comments []string, limit int) []ScoredComment {
	var scored []ScoredComment
	for i, c := range comments {
		score := Coverage(NGrams(c, MatchGramSize), segmentGrams)
		if score >= CommentCoverageThreshold {
			scored = append(scored, ScoredComment{Index: i, Score: score})
		}
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})
	if limit >= 0 && len(scored) > limit {
		scored = scored[:limit]
	}
	return scored
}
