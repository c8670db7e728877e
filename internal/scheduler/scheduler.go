package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"prospect-portal/internal/cleanup"
	"prospect-portal/internal/config"
)

// DefaultCronSpec runs at 02:00 every day
const DefaultCronSpec = "0 2 * * *"

// PruneCronSpec runs the rate limiter eviction at the top of every hour
const PruneCronSpec = "@hourly"

// Pruner evicts idle clients from an in-memory tracker
type Pruner interface {
	Prune() int
}

// CleanupRunner deletes expired prospects
type CleanupRunner interface {
	PhysicallyDelete(ctx context.Context, cfg cleanup.Config) (*cleanup.Result, error)
}

// Scheduler runs the daily price watch and the retention cleanup
type Scheduler struct {
	cron    *cron.Cron
	watcher *PriceWatcher
	cleanup CleanupRunner
	pruner  Pruner
	config  *config.Config
	logger  *zap.Logger

	mu        sync.Mutex
	ctx       context.Context
	cancel    context.CancelFunc
	isRunning bool
}

// NewScheduler creates a new scheduler. cleanupRunner may be nil when the
// storage backend cannot purge.
func NewScheduler(cfg *config.Config, watcher *PriceWatcher, cleanupRunner CleanupRunner, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron:    cron.New(cron.WithLocation(cfg.Location())),
		watcher: watcher,
		cleanup: cleanupRunner,
		config:  cfg,
		logger:  logger.With(zap.String("component", "scheduler")),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// SetPruner registers p to be pruned hourly once Start runs
func (s *Scheduler) SetPruner(p Pruner) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pruner = p
}

// Start registers the enabled jobs and starts the cron loop
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	jobs := 0
	if s.config.Watcher.DailyRunEnabled && s.watcher != nil {
		spec := s.cronSpec(s.config.Watcher.DailyRunTime)
		if _, err := s.cron.AddFunc(spec, s.runWatch); err != nil {
			return fmt.Errorf("failed to schedule price watch: %w", err)
		}
		s.logger.Info("price watch scheduled", zap.String("at", s.config.Watcher.DailyRunTime), zap.String("cron", spec))
		jobs++
	}

	if s.config.Cleanup.Enabled && s.cleanup != nil {
		spec := s.cronSpec(s.config.Cleanup.DailyRunTime)
		if _, err := s.cron.AddFunc(spec, s.runCleanup); err != nil {
			return fmt.Errorf("failed to schedule cleanup: %w", err)
		}
		s.logger.Info("cleanup scheduled", zap.String("at", s.config.Cleanup.DailyRunTime), zap.String("cron", spec))
		jobs++
	}

	if s.pruner != nil {
		if _, err := s.cron.AddFunc(PruneCronSpec, s.runPrune); err != nil {
			return fmt.Errorf("failed to schedule rate limit pruning: %w", err)
		}
		jobs++
	}

	if jobs == 0 {
		s.logger.Info("no jobs enabled in configuration")
		return nil
	}

	s.cron.Start()
	s.isRunning = true
	return nil
}

// Stop stops the cron loop and cancels a running job
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cancel()
	if s.isRunning {
		<-s.cron.Stop().Done()
		s.isRunning = false
		s.logger.Info("stopped")
	}
}

// Entries returns the number of registered jobs
func (s *Scheduler) Entries() int {
	return len(s.cron.Entries())
}

func (s *Scheduler) runWatch() {
	if _, err := s.watcher.RunOnce(s.ctx); err != nil {
		if errors.Is(err, ErrRunInProgress) {
			s.logger.Warn("skipping daily price watch, previous run still active")
			return
		}
		s.logger.Error("daily price watch failed", zap.Error(err))
	}
}

func (s *Scheduler) runCleanup() {
	if _, err := s.cleanup.PhysicallyDelete(s.ctx, s.config.Cleanup.ToCleanupConfig()); err != nil {
		s.logger.Error("daily cleanup failed", zap.Error(err))
	}
}

func (s *Scheduler) runPrune() {
	if dropped := s.pruner.Prune(); dropped > 0 {
		s.logger.Debug("pruned idle rate limit clients", zap.Int("dropped", dropped))
	}
}

// RunNow immediately executes the price watch (for manual trigger)
func (s *Scheduler) RunNow(ctx context.Context) (*WatchResult, error) {
	if s.watcher == nil {
		return nil, errors.New("price watcher is not configured")
	}
	s.logger.Info("manual trigger, starting price watch")
	return s.watcher.RunOnce(ctx)
}

func (s *Scheduler) cronSpec(timeStr string) string {
	spec, ok := CronSpec(timeStr)
	if !ok {
		s.logger.Warn("failed to parse daily run time, using default 02:00", zap.String("time", timeStr))
		return DefaultCronSpec
	}
	return spec
}

// CronSpec converts HH:MM to a daily cron specification.
// Example: "02:30" -> "30 2 * * *"
func CronSpec(timeStr string) (string, bool) {
	t, err := time.Parse("15:04", strings.TrimSpace(timeStr))
	if err != nil {
		return "", false
	}
	return fmt.Sprintf("%d %d * * *", t.Minute(), t.Hour()), true
}
