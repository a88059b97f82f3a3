package textsim

import (
	"sort"
	"strings"
)

// MaxTextRunes is the maximum length of a normalized message
const MaxTextRunes = 100

// Item is a distinct normalized text together with how often it occurred
type Item struct {
	Text  string
	Count int
}

// Normalize canonicalizes a raw message: trims it, collapses whitespace runs to
// one space, squeezes any character repeated 2+ times down to exactly 2 and
// truncates the result to MaxTextRunes runes.
func Normalize(text string) string {
	t := strings.Join(strings.Fields(text), " ")
	if t == "" {
		return ""
	}

	runes := []rune(t)
	out := make([]rune, 0, len(runes))
	for i, r := range runes {
		// Keep at most two consecutive copies of the same rune
		if i >= 2 && r == runes[i-1] && r == runes[i-2] {
			continue
		}
		out = append(out, r)
	}

	if len(out) > MaxTextRunes {
		out = out[:MaxTextRunes]
	}
	return string(out)
}

// Dedupe normalizes texts and counts identical results. Items are sorted by
// count descending; ties keep the order of first encounter. Texts that are
// empty after normalization are dropped.
func Dedupe(texts []string) []Item {
	index := make(map[string]int)
	var items []Item

	for _, raw := range texts {
		t := Normalize(raw)
		if t == "" {
			continue
		}
		if i, ok := index[t]; ok {
			items[i].Count++
			continue
		}
		index[t] = len(items)
		items = append(items, Item{Text: t, Count: 1})
	}

	sortByCount(items)
	return items
}

// Renormalize runs normalization over existing items, summing counts of items
// that collapse to the same text.
func Renormalize(items []Item) []Item {
	index := make(map[string]int)
	var out []Item

	for _, it := range items {
		t := Normalize(it.Text)
		if t == "" || it.Count <= 0 {
			continue
		}
		if i, ok := index[t]; ok {
			out[i].Count += it.Count
			continue
		}
		index[t] = len(out)
		out = append(out, Item{Text: t, Count: it.Count})
	}

	sortByCount(out)
	return out
}

func sortByCount(items []Item) {
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].Count > items[j].Count
	})
}
