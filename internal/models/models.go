package models

import "time"

// ReactionMessage is a single timestamped overlay message (danmaku) on a video timeline
type ReactionMessage struct {
	TimestampSec int    `json:"timestamp_sec"`
	Text         string `json:"text"`
}

// Comment is a regular video comment, ranked by likes
type Comment struct {
	Text      string `json:"text"`
	LikeCount int    `json:"like_count"`
}

// TimeRange is a half-open [FromSec, ToSec) range on the video timeline
type TimeRange struct {
	FromSec int `json:"from_sec"`
	ToSec   int `json:"to_sec"`
}

// Segment is one inferred narrative beat of the video
type Segment struct {
	StartSec        int       `json:"start_sec"`
	EndSec          int       `json:"end_sec"`
	TotalCount      int       `json:"total_count"`
	PeakCount       int       `json:"peak_count"`
	Samples         []string  `json:"samples"`
	PreContext      []string  `json:"pre_context"`
	PostContext     []string  `json:"post_context"`
	MatchedComments []Comment `json:"matched_comments"`
	Heat            string    `json:"heat"`
	Summary         string    `json:"summary"`
}

// Interval is one exported segment in the structured artifact
type Interval struct {
	StartSec     int    `json:"start_sec"`
	EndSec       int    `json:"end_sec"`
	StartTS      string `json:"start_ts"`
	EndTS        string `json:"end_ts"`
	MessageCount int    `json:"danmaku_count"`
	Heat         string `json:"heat"`
	Summary      string `json:"summary"`
}

// ExportArtifact is the structured result persisted after each analysis
type ExportArtifact struct {
	RunID               string     `json:"run_id"`
	ContentID           string     `json:"bvid"`
	GeneratedAt         time.Time  `json:"generated_at"`
	DurationSec         int        `json:"duration_sec"`
	AnalyzedDurationSec int        `json:"analyzed_duration_sec"`
	WindowSec           int        `json:"window_sec"`
	StepSec             int        `json:"step_sec"`
	MessageCount        int        `json:"danmaku_count"`
	CommentCount        int        `json:"comment_count"`
	TopComments         int        `json:"top_comments"`
	Intervals           []Interval `json:"intervals"`
}

// Report is a finished analysis ready for delivery
type Report struct {
	ContentID   string          `json:"content_id"`
	GeneratedAt time.Time       `json:"generated_at"`
	Text        string          `json:"text"`
	Location    string          `json:"location"` // where the artifact was stored
	Artifact    *ExportArtifact `json:"artifact,omitempty"`
}

// Alert represents an urgent notification
type Alert struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"` // "critical", "urgent", "info"
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	ContentID string    `json:"content_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
