package config

// Analysis parameter defaults and limits
const (
	DefaultWindowSec      = 30
	DefaultStepSec        = 15
	DefaultMinSegmentSec  = 30
	DefaultTopComments    = 10
	DefaultMergeThreshold = 25
	DefaultBatchSize      = 15

	MinWindowSec   = 30
	MinStepSec     = 15 // one density bucket
	MaxTopComments = 100
	MaxBatchSize   = 50
)

// Params are the per-analysis knobs. Out-of-range values are clamped, never rejected.
type Params struct {
	WindowSec     int `json:"window_sec"`
	StepSec       int `json:"step_sec"`
	MinSegmentSec int `json:"min_segment_sec"`
	// MaxSegmentSec of 0 picks a length from the video duration. In a Merge
	// overlay a negative value clears a configured length.
	MaxSegmentSec int `json:"max_segment_sec"`
	// MaxDurationSec of 0 analyzes the whole video. In a Merge overlay a
	// negative value clears a configured cap.
	MaxDurationSec int `json:"max_duration_sec"`
	TopComments    int `json:"top_comments"`
	MergeThreshold int `json:"merge_threshold"`
	BatchSize      int `json:"batch_size"`
}

// DefaultParams returns the built-in analysis defaults
func DefaultParams() Params {
	return Params{
		WindowSec:      DefaultWindowSec,
		StepSec:        DefaultStepSec,
		MinSegmentSec:  DefaultMinSegmentSec,
		TopComments:    DefaultTopComments,
		MergeThreshold: DefaultMergeThreshold,
		BatchSize:      DefaultBatchSize,
	}
}

// Clamp returns a copy with every field forced into its valid range
func (p Params) Clamp() Params {
	p.WindowSec = max(p.WindowSec, MinWindowSec)
	p.StepSec = min(max(p.StepSec, MinStepSec), p.WindowSec)
	p.MinSegmentSec = max(p.MinSegmentSec, p.StepSec)
	if p.MaxSegmentSec < 0 {
		p.MaxSegmentSec = 0
	}
	if p.MaxSegmentSec > 0 && p.MaxSegmentSec < 2*p.MinSegmentSec {
		p.MaxSegmentSec = 2 * p.MinSegmentSec
	}
	p.MaxDurationSec = max(p.MaxDurationSec, 0)
	p.TopComments = min(max(p.TopComments, 1), MaxTopComments)
	p.MergeThreshold = max(p.MergeThreshold, 1)
	p.BatchSize = min(max(p.BatchSize, 2), MaxBatchSize)
	return p
}

// Merge overlays the non-zero fields of o onto p. Zero keeps the value of p;
// negative caps survive the overlay and Clamp turns them into "no cap".
func (p Params) Merge(o Params) Params {
	if o.WindowSec != 0 {
		p.WindowSec = o.WindowSec
	}
	if o.StepSec != 0 {
		p.StepSec = o.StepSec
	}
	if o.MinSegmentSec != 0 {
		p.MinSegmentSec = o.MinSegmentSec
	}
	if o.MaxSegmentSec != 0 {
		p.MaxSegmentSec = o.MaxSegmentSec
	}
	if o.MaxDurationSec != 0 {
		p.MaxDurationSec = o.MaxDurationSec
	}
	if o.TopComments != 0 {
		p.TopComments = o.TopComments
	}
	if o.MergeThreshold != 0 {
		p.MergeThreshold = o.MergeThreshold
	}
	if o.BatchSize != 0 {
		p.BatchSize = o.BatchSize
	}
	return p
}
