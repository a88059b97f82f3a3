package density

import (
	"sort"
	"strings"

	"github.com/azure/danmaku-digest-bot/internal/models"
)

const (
	// BucketSec is the fixed width of a time bucket
	BucketSec = 15
	// NeighborWindow is how many samples on each side are inspected to find
	// the peak a minimum is measured against
	NeighborWindow = 5
	// SmoothWindow is the default moving-average width
	SmoothWindow = 3

	epsilon = 1e-9
)

// Buckets groups message texts into fixed-width time slots. Slot k holds the
// texts whose timestamp falls in [k*Width, (k+1)*Width). Every slot from 0 up
// to the one containing the duration exists, even when empty.
type Buckets struct {
	Width int
	Slots [][]string
}

// NewBuckets distributes messages into ceil(duration/width)+1 slots spanning
// [0, duration]. Messages beyond the last slot and empty texts are dropped.
func NewBuckets(messages []models.ReactionMessage, width, duration int) *Buckets {
	if width <= 0 {
		width = BucketSec
	}
	if duration < 0 {
		duration = 0
	}

	n := (duration+width-1)/width + 1
	b := &Buckets{
		Width: width,
		Slots: make([][]string, n),
	}

	for _, m := range messages {
		if m.TimestampSec < 0 {
			continue
		}
		k := m.TimestampSec / width
		if k >= n {
			continue
		}
		text := strings.TrimSpace(strings.ReplaceAll(m.Text, "\n", " "))
		if text == "" {
			continue
		}
		if r := []rune(text); len(r) > 100 {
			text = string(r[:100])
		}
		b.Slots[k] = append(b.Slots[k], text)
	}

	return b
}

// Len returns the number of slots
func (b *Buckets) Len() int {
	return len(b.Slots)
}

// Start returns the start second of slot k
func (b *Buckets) Start(k int) int {
	return k * b.Width
}

// Range returns the slot indices whose start lies in [from, to)
func (b *Buckets) Range(from, to int) (first, last int) {
	if from < 0 {
		from = 0
	}
	first = (from + b.Width - 1) / b.Width
	last = (to + b.Width - 1) / b.Width
	if last > len(b.Slots) {
		last = len(b.Slots)
	}
	if first > last {
		first = last
	}
	return first, last
}

// Texts returns every text in slots starting in [from, to), in time order
func (b *Buckets) Texts(from, to int) []string {
	first, last := b.Range(from, to)
	var out []string
	for k := first; k < last; k++ {
		out = append(out, b.Slots[k]...)
	}
	return out
}

// Count returns the number of texts in slots starting in [from, to)
func (b *Buckets) Count(from, to int) int {
	first, last := b.Range(from, to)
	n := 0
	for k := first; k < last; k++ {
		n += len(b.Slots[k])
	}
	return n
}

// Total returns the number of bucketed texts
func (b *Buckets) Total() int {
	n := 0
	for _, s := range b.Slots {
		n += len(s)
	}
	return n
}

// Curve is a sampled density curve. Positions and Values have equal length.
type Curve struct {
	Positions []int
	Values    []float64
}

// Len returns the number of samples
func (c Curve) Len() int {
	return len(c.Positions)
}

// Sliding computes the message count inside [p, p+window) for p = 0, step,
// 2*step, ... while p < duration. Windows are clipped one bucket past the
// duration so trailing messages still count.
func Sliding(b *Buckets, duration, window, step int) Curve {
	var c Curve
	if step <= 0 {
		return c
	}
	for start := 0; start < duration; start += step {
		end := start + window
		if limit := duration + b.Width; end > limit {
			end = limit
		}
		c.Positions = append(c.Positions, start)
		c.Values = append(c.Values, float64(b.Count(start, end)))
	}
	return c
}

// Smooth applies a centered moving average of the given window. Edge samples
// are divided by the number of values actually covered.
func Smooth(values []float64, window int) []float64 {
	n := len(values)
	out := make([]float64, n)
	half := window / 2
	if half < 0 {
		half = 0
	}

	for i := range values {
		lo := i - half
		if lo < 0 {
			lo = 0
		}
		hi := i + half + 1
		if hi > n {
			hi = n
		}
		sum := 0.0
		for _, v := range values[lo:hi] {
			sum += v
		}
		out[i] = sum / float64(hi-lo)
	}
	return out
}

// Minimum is a local minimum of the smoothed curve
type Minimum struct {
	Index int
	Depth float64
}

// Minima finds interior samples that are not greater than either neighbor and
// scores them by 1 - value/peak, where peak is the highest value within
// NeighborWindow samples on either side. Results are sorted deepest first.
func Minima(smoothed []float64) []Minimum {
	n := len(smoothed)
	if n <= 2 {
		return nil
	}

	var minima []Minimum
	for i := 1; i < n-1; i++ {
		if smoothed[i] > smoothed[i-1] || smoothed[i] > smoothed[i+1] {
			continue
		}
		peak := epsilon
		for j := max(0, i-NeighborWindow); j < min(n, i+NeighborWindow+1); j++ {
			if j != i && smoothed[j] > peak {
				peak = smoothed[j]
			}
		}
		minima = append(minima, Minimum{Index: i, Depth: 1.0 - smoothed[i]/peak})
	}

	sortByDepth(minima)
	return minima
}

func sortByDepth(minima []Minimum) {
	sort.SliceStable(minima, func(i, j int) bool {
		return minima[i].Depth > minima[j].Depth
	})
}
