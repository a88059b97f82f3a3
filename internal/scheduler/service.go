package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/azure/danmaku-digest-bot/internal/config"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// runTimeout bounds one scheduled watchlist run
const runTimeout = 2 * time.Hour

// ErrRunInProgress is returned by RunNow while another run is active
var ErrRunInProgress = errors.New("watchlist run already in progress")

// WatchlistRunner analyzes a list of videos
type WatchlistRunner interface {
	AnalyzeWatchlist(ctx context.Context, contentIDs []string) error
}

// Service handles scheduling of watchlist analyses
type Service struct {
	config  *config.Config
	runner  WatchlistRunner
	cron    *cron.Cron
	running sync.Mutex
}

// NewService creates a new scheduler service
func NewService(cfg *config.Config, runner WatchlistRunner) *Service {
	return &Service{
		config: cfg,
		runner: runner,
		cron:   cron.New(cron.WithSeconds()),
	}
}

// cronExpression maps a report schedule to a 6-field cron expression
func cronExpression(schedule string) string {
	switch schedule {
	case "daily":
		// Run daily at 9 AM
		return "0 0 9 * * *"
	default:
		// Run weekly on Monday at 9 AM
		return "0 0 9 * * MON"
	}
}

// Start begins the scheduled watchlist runs
func (s *Service) Start() error {
	if len(s.config.Watchlist) == 0 {
		logrus.Warn("Watchlist is empty, scheduler not started")
		return nil
	}

	_, err := s.cron.AddFunc(cronExpression(s.config.ReportSchedule), func() {
		logrus.Info("Starting scheduled watchlist run")
		if err := s.RunNow(context.Background()); err != nil {
			logrus.Errorf("Scheduled watchlist run failed: %v", err)
		}
	})
	if err != nil {
		return err
	}

	s.cron.Start()
	logrus.Infof("Scheduler started with %s schedule for %d videos", s.config.ReportSchedule, len(s.config.Watchlist))
	return nil
}

// RunNow analyzes the whole watchlist immediately. Overlapping runs are rejected.
func (s *Service) RunNow(ctx context.Context) error {
	if !s.running.TryLock() {
		return ErrRunInProgress
	}
	defer s.running.Unlock()

	ctx, cancel := context.WithTimeout(ctx, runTimeout)
	defer cancel()

	return s.runner.AnalyzeWatchlist(ctx, s.config.Watchlist)
}

// Stop stops the scheduler and waits for a running job to finish
func (s *Service) Stop() {
	if s.cron != nil {
		<-s.cron.Stop().Done()
		logrus.Info("Scheduler stopped")
	}
}
