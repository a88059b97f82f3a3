package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/azure/danmaku-digest-bot/internal/completion"
	"github.com/azure/danmaku-digest-bot/internal/config"
	"github.com/azure/danmaku-digest-bot/internal/density"
	"github.com/azure/danmaku-digest-bot/internal/models"
	"github.com/azure/danmaku-digest-bot/internal/notifications"
	"github.com/azure/danmaku-digest-bot/internal/segment"
	"github.com/azure/danmaku-digest-bot/internal/sources"
	"github.com/azure/danmaku-digest-bot/internal/storage"
	"github.com/azure/danmaku-digest-bot/internal/summarize"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// DefaultDurationSec is assumed when the platform reports no duration
const DefaultDurationSec = 1500

var (
	// ErrSourceFetch means the reaction messages could not be retrieved
	ErrSourceFetch = errors.New("failed to fetch danmaku")
	// ErrInsufficientData means the video has no reaction messages
	ErrInsufficientData = errors.New("no danmaku to analyze")
	// ErrTooSparse means segmentation produced no usable segment
	ErrTooSparse = errors.New("danmaku too sparse to segment")
)

// Options carries the engine settings that are not per-call parameters
type Options struct {
	Defaults           config.Params
	CompletionTimeout  time.Duration
	SummaryConcurrency int
}

// OptionsFromConfig extracts engine options from the application configuration
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Defaults:           cfg.Defaults,
		CompletionTimeout:  cfg.CompletionTimeout,
		SummaryConcurrency: cfg.SummaryConcurrency,
	}
}

// Service runs the segmentation engine and delivers its results
type Service struct {
	opts                Options
	source              sources.Source
	completer           completion.Completer
	storage             storage.StorageInterface
	notificationService notifications.NotificationInterface
	metrics             *Metrics
	mu                  sync.RWMutex
}

// Metrics holds analysis metrics
type Metrics struct {
	AnalysesRun        int            `json:"analyses_run"`
	Failures           int            `json:"failures"`
	FailureReasons     map[string]int `json:"failure_reasons"`
	LastRun            time.Time      `json:"last_run"`
	LastRunDuration    string         `json:"last_run_duration"`
	LastContentID      string         `json:"last_content_id"`
	SegmentsProduced   int            `json:"segments_produced"`
	SummariesAttempted int64          `json:"summaries_attempted"`
	SummariesFailed    int64          `json:"summaries_failed"`
}

// Result is the outcome of one successful analysis
type Result struct {
	RunID               string
	ContentID           string
	GeneratedAt         time.Time
	DurationSec         int
	AnalyzedDurationSec int
	Params              config.Params
	MessageCount        int
	Comments            []models.Comment
	Segments            []models.Segment
	// Unmatched are the ranked comments no segment picked up
	Unmatched []models.Comment
	Artifact  *models.ExportArtifact
	// Location is where the artifact was stored, empty when it was not
	Location string
}

// NewService creates a new analysis service. completer, store and
// notificationService may be nil: summaries are then empty, artifacts are not
// persisted and nothing is delivered.
func NewService(opts Options, source sources.Source, completer completion.Completer, store storage.StorageInterface, notificationService notifications.NotificationInterface) *Service {
	if opts.Defaults == (config.Params{}) {
		opts.Defaults = config.DefaultParams()
	}
	if opts.CompletionTimeout <= 0 {
		opts.CompletionTimeout = summarize.DefaultTimeout
	}
	if opts.SummaryConcurrency <= 0 {
		opts.SummaryConcurrency = 1
	}

	return &Service{
		opts:                opts,
		source:              source,
		completer:           completer,
		storage:             store,
		notificationService: notificationService,
		metrics: &Metrics{
			FailureReasons: make(map[string]int),
		},
	}
}

// Analyze segments one video and summarizes every segment. Zero fields in
// params fall back to the service defaults; the result is always clamped.
func (s *Service) Analyze(ctx context.Context, contentID string, params config.Params) (*Result, error) {
	start := time.Now()
	runID := uuid.NewString()
	log := logrus.WithFields(logrus.Fields{"content_id": contentID, "run_id": runID})
	p := s.opts.Defaults.Merge(params).Clamp()

	result, stats, err := s.analyze(ctx, log, contentID, p)
	s.updateMetrics(contentID, time.Since(start), result, stats, err)
	if err != nil {
		log.Errorf("Analysis failed: %v", err)
		return nil, err
	}

	result.RunID = runID
	result.Artifact = buildArtifact(result)
	result.Artifact.RunID = runID
	result.Location = s.export(ctx, log, result.Artifact)

	log.Infof("Analysis completed in %v: %d segments", time.Since(start), len(result.Segments))
	return result, nil
}

func (s *Service) analyze(ctx context.Context, log *logrus.Entry, contentID string, p config.Params) (*Result, summarize.Stats, error) {
	duration, err := s.source.FetchDuration(ctx, contentID)
	if err != nil || duration <= 0 {
		log.Warnf("Using default duration %ds: %v", DefaultDurationSec, err)
		duration = DefaultDurationSec
	}
	analyzed := duration
	if p.MaxDurationSec > 0 {
		analyzed = min(duration, p.MaxDurationSec)
	}

	// the bucket past the end of an uncapped video still counts
	fetchTo := analyzed
	if analyzed == duration {
		fetchTo += density.BucketSec
	}
	messages, err := s.source.FetchMessages(ctx, contentID, models.TimeRange{FromSec: 0, ToSec: fetchTo})
	if err != nil {
		return nil, summarize.Stats{}, fmt.Errorf("%w: %w", ErrSourceFetch, err)
	}
	if len(messages) == 0 {
		return nil, summarize.Stats{}, ErrInsufficientData
	}

	comments, err := s.source.FetchTopComments(ctx, contentID, p.TopComments)
	if err != nil {
		log.Warnf("Continuing without comments: %v", err)
		comments = nil
	}
	log.Infof("Fetched %d danmaku and %d comments over %ds", len(messages), len(comments), analyzed)

	b := density.NewBuckets(messages, density.BucketSec, analyzed)
	curve := density.Sliding(b, analyzed, p.WindowSec, p.StepSec)
	smoothed := density.Smooth(curve.Values, density.SmoothWindow)

	maxSeg := p.MaxSegmentSec
	if maxSeg == 0 {
		maxSeg = max(segment.AdaptiveMaxSegment(analyzed), 2*p.MinSegmentSec)
	}
	boundaries := segment.SelectBoundaries(segment.BoundaryConfig{
		Duration:     analyzed,
		StepSec:      p.StepSec,
		MinSegSec:    p.MinSegmentSec,
		MaxSegSec:    maxSeg,
		NaturalDepth: segment.NaturalDepth,
	}, curve.Positions, smoothed, segment.ContentSplitter(b))

	segments := segment.Assemble(b, segment.CutTimes(curve.Positions, boundaries, analyzed))
	if len(segments) == 0 || b.Total() == 0 {
		return nil, summarize.Stats{}, ErrTooSparse
	}
	used := segment.AttachComments(b, segments, comments)
	log.Debugf("Selected %d boundaries, %d segments", len(boundaries), len(segments))

	summarizer := summarize.New(s.completer, summarize.Config{
		MergeThreshold: p.MergeThreshold,
		BatchSize:      p.BatchSize,
		Timeout:        s.opts.CompletionTimeout,
		Concurrency:    1, // segments already run SummaryConcurrency at a time
	})
	s.summarizeSegments(ctx, b, summarizer, segments, comments)

	var unmatched []models.Comment
	for i, c := range comments {
		if !used[i] {
			unmatched = append(unmatched, c)
		}
	}

	return &Result{
		ContentID:           contentID,
		GeneratedAt:         time.Now(),
		DurationSec:         duration,
		AnalyzedDurationSec: analyzed,
		Params:              p,
		MessageCount:        b.Total(),
		Comments:            comments,
		Segments:            segments,
		Unmatched:           unmatched,
	}, summarizer.Stats(), nil
}

// summarizeSegments fills in segment summaries. Segments are independent, so
// they run in parallel; results land in their own slot and keep time order.
func (s *Service) summarizeSegments(ctx context.Context, b *density.Buckets, summarizer *summarize.Summarizer, segments []models.Segment, comments []models.Comment) {
	if s.completer == nil {
		return
	}

	g := new(errgroup.Group)
	g.SetLimit(s.opts.SummaryConcurrency)
	for i := range segments {
		seg := &segments[i]
		end := seg.EndSec
		if i == len(segments)-1 {
			end = b.Start(b.Len())
		}
		texts := b.Texts(seg.StartSec, end)
		g.Go(func() error {
			seg.Summary = summarizer.Summarize(ctx, seg.StartSec, seg.EndSec, texts, commentsFor(*seg, comments))
			return nil
		})
	}
	_ = g.Wait()
}

// commentsFor puts a segment's matched comments ahead of the general ranking
func commentsFor(seg models.Segment, comments []models.Comment) []models.Comment {
	out := append([]models.Comment(nil), seg.MatchedComments...)
	for _, c := range comments {
		dup := false
		for _, m := range seg.MatchedComments {
			if m == c {
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, c)
		}
	}
	return out
}

// export persists the artifact. Storage failures are logged, not fatal.
func (s *Service) export(ctx context.Context, log *logrus.Entry, artifact *models.ExportArtifact) string {
	if s.storage == nil {
		return ""
	}

	data, err := json.MarshalIndent(artifact, "", "  ")
	if err != nil {
		log.Errorf("Failed to marshal artifact: %v", err)
		return ""
	}

	location, err := s.storage.Store(ctx, ArtifactName(artifact.ContentID, artifact.GeneratedAt), data)
	if err != nil {
		log.Errorf("Failed to store artifact: %v", err)
		return ""
	}
	return location
}

// AnalyzeText runs Analyze and renders the outcome as text. Failures become a
// descriptive message instead of an error.
func (s *Service) AnalyzeText(ctx context.Context, contentID string, params config.Params) string {
	result, err := s.Analyze(ctx, contentID, params)
	switch {
	case errors.Is(err, ErrInsufficientData):
		return fmt.Sprintf("No danmaku found for %s, cannot analyze.", contentID)
	case errors.Is(err, ErrTooSparse):
		return fmt.Sprintf("Danmaku for %s are too sparse to segment.", contentID)
	case err != nil:
		return fmt.Sprintf("Analysis failed: %v", err)
	}

	text := FormatReport(result)
	if result.Location != "" {
		text = fmt.Sprintf("Full data written to %s\n\n%s", result.Location, text)
	}
	return text
}

// Report converts a result into a deliverable report
func (r *Result) Report() *models.Report {
	return &models.Report{
		ContentID:   r.ContentID,
		GeneratedAt: r.GeneratedAt,
		Text:        FormatReport(r),
		Location:    r.Location,
		Artifact:    r.Artifact,
	}
}

// AnalyzeWatchlist analyzes every video and delivers each report. A failed
// video raises an alert and does not stop the others.
func (s *Service) AnalyzeWatchlist(ctx context.Context, contentIDs []string) error {
	start := time.Now()
	logrus.Infof("Starting watchlist run for %d videos", len(contentIDs))

	var errs []error
	for _, id := range contentIDs {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		result, err := s.Analyze(ctx, id, config.Params{})
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", id, err))
			s.sendAlert(id, err)
			continue
		}

		if s.notificationService == nil {
			continue
		}
		if err := s.notificationService.SendReport(result.Report()); err != nil {
			logrus.Errorf("Failed to send report for %s: %v", id, err)
			errs = append(errs, fmt.Errorf("%s: failed to send report: %w", id, err))
		}
	}

	logrus.Infof("Watchlist run completed in %v with %d errors", time.Since(start), len(errs))
	return errors.Join(errs...)
}

func (s *Service) sendAlert(contentID string, cause error) {
	if s.notificationService == nil {
		return
	}

	alertType := "urgent"
	if errors.Is(cause, ErrInsufficientData) || errors.Is(cause, ErrTooSparse) {
		alertType = "info"
	}
	alert := &models.Alert{
		ID:        uuid.NewString(),
		Type:      alertType,
		Title:     fmt.Sprintf("Danmaku analysis failed for %s", contentID),
		Message:   cause.Error(),
		ContentID: contentID,
		CreatedAt: time.Now(),
	}
	if err := s.notificationService.SendAlert(alert); err != nil {
		logrus.Errorf("Failed to send alert for %s: %v", contentID, err)
	}
}

func (s *Service) updateMetrics(contentID string, duration time.Duration, result *Result, stats summarize.Stats, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.metrics.AnalysesRun++
	s.metrics.LastRun = time.Now()
	s.metrics.LastRunDuration = duration.String()
	s.metrics.LastContentID = contentID
	s.metrics.SummariesAttempted += stats.Requests
	s.metrics.SummariesFailed += stats.Failures

	if err != nil {
		s.metrics.Failures++
		s.metrics.FailureReasons[failureReason(err)]++
		return
	}
	s.metrics.SegmentsProduced += len(result.Segments)
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, ErrSourceFetch):
		return "source_fetch"
	case errors.Is(err, ErrInsufficientData):
		return "insufficient_data"
	case errors.Is(err, ErrTooSparse):
		return "too_sparse"
	default:
		return "other"
	}
}

// GetMetrics returns current metrics as JSON
func (s *Service) GetMetrics() string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, _ := json.MarshalIndent(s.metrics, "", "  ")
	return string(data)
}
