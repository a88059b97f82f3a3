package segment

import (
	"sort"

	"github.com/azure/danmaku-digest-bot/internal/density"
	"github.com/sirupsen/logrus"
)

const (
	// NaturalDepth is the minimum relative depth for a density minimum to be
	// accepted as a scene break on its own
	NaturalDepth = 0.2
	// MinTopicChange is the minimum topic change score for a content split
	MinTopicChange = 0.05
)

// AdaptiveMaxSegment returns the longest segment allowed before it is split
func AdaptiveMaxSegment(duration int) int {
	switch {
	case duration <= 300:
		return 90
	case duration <= 900:
		return 75
	default:
		return 60
	}
}

// BoundaryConfig controls boundary selection
type BoundaryConfig struct {
	Duration     int
	StepSec      int
	MinSegSec    int
	MaxSegSec    int // 0 selects AdaptiveMaxSegment
	NaturalDepth float64
}

// selection is the growing set of accepted sample indices
type selection struct {
	positions []int
	minGap    int
	chosen    map[int]bool
}

func (s *selection) has(idx int) bool {
	return s.chosen[idx]
}

func (s *selection) farEnough(idx int) bool {
	for c := range s.chosen {
		if abs(idx-c) < s.minGap {
			return false
		}
	}
	return true
}

func (s *selection) add(idx int) {
	s.chosen[idx] = true
}

func (s *selection) sorted() []int {
	out := make([]int, 0, len(s.chosen))
	for idx := range s.chosen {
		out = append(out, idx)
	}
	sort.Ints(out)
	return out
}

// cuts returns 0, every chosen position in order, and the duration
func (s *selection) cuts(duration int) []int {
	cuts := []int{0}
	for _, idx := range s.sorted() {
		cuts = append(cuts, s.positions[idx])
	}
	return append(cuts, duration)
}

// closest returns the index of the sampled position nearest to target
func (s *selection) closest(target int) int {
	best := 0
	for i, p := range s.positions {
		if abs(p-target) < abs(s.positions[best]-target) {
			best = i
		}
	}
	return best
}

// SelectBoundaries picks cut indices into positions in three phases:
//
//  1. accept natural minima with depth >= NaturalDepth, deepest first, that keep
//     at least minGap samples from every accepted boundary;
//  2. for the first segment longer than the maximum, accept the first unused
//     minimum strictly inside it;
//  3. otherwise cut where the topic changes most, and as a last resort at the
//     midpoint.
//
// Every phase keeps accepted boundaries at least minGap samples apart.
// Phases 2 and 3 run for at most max(20, 2*duration/maxSeg) iterations. Every
// iteration either adds one boundary or stops, so the loop always terminates;
// an oversized segment that cannot be cut safely is kept as-is.
func SelectBoundaries(cfg BoundaryConfig, positions []int, smoothed []float64, split Splitter) []int {
	if len(positions) == 0 || cfg.StepSec <= 0 {
		return nil
	}
	maxSeg := cfg.MaxSegSec
	if maxSeg <= 0 {
		maxSeg = AdaptiveMaxSegment(cfg.Duration)
	}
	depthThreshold := cfg.NaturalDepth
	if depthThreshold <= 0 {
		depthThreshold = NaturalDepth
	}

	minima := density.Minima(smoothed)
	sel := &selection{
		positions: positions,
		minGap:    max(2, cfg.MinSegSec/cfg.StepSec),
		chosen:    make(map[int]bool),
	}

	// Phase 1: natural minima
	for _, m := range minima {
		if m.Depth < depthThreshold {
			break
		}
		if sel.farEnough(m.Index) {
			sel.add(m.Index)
		}
	}
	logrus.Debugf("Accepted %d natural boundaries", len(sel.chosen))

	maxIter := max(20, cfg.Duration/maxSeg*2)
	for iter := 0; iter < maxIter; iter++ {
		cuts := sel.cuts(cfg.Duration)
		start, end, found := -1, -1, false
		for j := 0; j+1 < len(cuts); j++ {
			if cuts[j+1]-cuts[j] > maxSeg {
				start, end, found = cuts[j], cuts[j+1], true
				break
			}
		}
		if !found {
			break
		}

		margin := min(cfg.MinSegSec, (end-start)/3)
		inside := func(pos int) bool {
			return pos > start+margin && pos < end-margin
		}

		// Phase 2: weaker density minima inside the oversized segment
		if idx, ok := firstUsableMinimum(sel, minima, inside); ok {
			sel.add(idx)
			continue
		}

		// Phase 3: topic change
		if split != nil {
			if s := split(start, end, margin); s.Found && s.Score > MinTopicChange {
				idx := sel.closest(s.Position)
				if !sel.has(idx) && inside(positions[idx]) && sel.farEnough(idx) {
					logrus.Debugf("Content split at %ds (change %.2f)", positions[idx], s.Score)
					sel.add(idx)
					continue
				}
			}
		}

		// Fallback: midpoint snapped to the sampling grid
		mid := (start + end) / 2 / cfg.StepSec * cfg.StepSec
		idx := sel.closest(mid)
		if sel.has(idx) || !inside(positions[idx]) || !sel.farEnough(idx) {
			logrus.Debugf("Cannot subdivide %d-%d further", start, end)
			break
		}
		sel.add(idx)
	}

	return sel.sorted()
}

func firstUsableMinimum(sel *selection, minima []density.Minimum, inside func(int) bool) (int, bool) {
	for _, m := range minima {
		if sel.has(m.Index) || !inside(sel.positions[m.Index]) {
			continue
		}
		if sel.farEnough(m.Index) {
			return m.Index, true
		}
	}
	return 0, false
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
