package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/Gobusters/ectologger"

	fusionctx "github.com/Ramsey-B/fusion/pkg/context"
	"github.com/Ramsey-B/fusion/pkg/fusion"
	"github.com/Ramsey-B/fusion/pkg/metrics"
	"github.com/Ramsey-B/fusion/pkg/models"
	"github.com/Ramsey-B/fusion/pkg/redis"
	"github.com/Ramsey-B/fusion/pkg/tracing"
)

var (
	// ErrSchedulerAlreadyRunning is returned when trying to start an already running scheduler
	ErrSchedulerAlreadyRunning = errors.New("scheduler already running")

	// ErrPassInProgress is returned when another worker holds the fusion source lock
	ErrPassInProgress = errors.New("a reconciliation pass is already running for this fusion source")
)

const (
	// DefaultPollInterval is the default interval between scheduling cycles
	DefaultPollInterval = time.Minute

	// DefaultLockTTL is how long a pass lock lives without a keepalive
	DefaultLockTTL = 60 * time.Second

	// LockKeyPrefix is the prefix for fusion source locks
	LockKeyPrefix = "pass:"
)

// SourceLister returns the fusion sources due for a pass
type SourceLister interface {
	ListEnabled(ctx context.Context) ([]models.FusionSettings, error)
}

// Runner runs one reconciliation pass
type Runner interface {
	Run(ctx context.Context, settings *models.FusionSettings) (*fusion.PassResult, error)
}

// Lock is a held per-source lock
type Lock interface {
	Release(ctx context.Context) error
	KeepAlive(ctx context.Context, interval time.Duration, onLost func(error))
}

// Locker hands out per-source locks
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (Lock, error)
}

type redisLocker struct {
	locker *redis.Locker
}

// NewRedisLocker adapts a redis.Locker
func NewRedisLocker(locker *redis.Locker) Locker {
	return &redisLocker{locker: locker}
}

func (l *redisLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (Lock, error) {
	lock, err := l.locker.Acquire(ctx, key, ttl)
	if err != nil {
		return nil, err
	}
	return lock, nil
}

// Config holds configuration for the scheduler
type Config struct {
	// PollInterval is how often enabled fusion sources get a pass
	PollInterval time.Duration

	// LockTTL is how long a pass lock survives a dead worker
	LockTTL time.Duration
}

// DefaultConfig returns the default scheduler configuration
func DefaultConfig() Config {
	return Config{
		PollInterval: DefaultPollInterval,
		LockTTL:      DefaultLockTTL,
	}
}

// Scheduler runs a reconciliation pass per enabled fusion source on an interval
type Scheduler struct {
	sources SourceLister
	runner  Runner
	locker  Locker
	config  Config
	logger  ectologger.Logger

	stopCh   chan struct{}
	stoppedC chan struct{}
	running  bool
	mu       sync.RWMutex
}

// NewScheduler creates a new scheduler
func NewScheduler(sources SourceLister, runner Runner, locker Locker, config Config, logger ectologger.Logger) *Scheduler {
	if config.PollInterval <= 0 {
		config.PollInterval = DefaultPollInterval
	}
	if config.LockTTL <= 0 {
		config.LockTTL = DefaultLockTTL
	}

	return &Scheduler{
		sources:  sources,
		runner:   runner,
		locker:   locker,
		config:   config,
		logger:   logger,
		stopCh:   make(chan struct{}),
		stoppedC: make(chan struct{}),
	}
}

// Start starts the polling loop
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return ErrSchedulerAlreadyRunning
	}
	s.running = true
	s.mu.Unlock()

	s.logger.WithContext(ctx).Infof("Starting scheduler: poll_interval=%s lock_ttl=%s", s.config.PollInterval, s.config.LockTTL)

	go s.pollLoop(ctx)
	return nil
}

// Stop stops the scheduler and waits for the current cycle to finish
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.mu.Unlock()

	s.logger.WithContext(ctx).Info("Stopping scheduler...")
	close(s.stopCh)

	select {
	case <-s.stoppedC:
		s.logger.WithContext(ctx).Info("Scheduler stopped gracefully")
	case <-ctx.Done():
		s.logger.WithContext(ctx).Warn("Scheduler shutdown timed out")
		return ctx.Err()
	}

	return nil
}

// IsRunning returns whether the scheduler is running
func (s *Scheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

func (s *Scheduler) pollLoop(ctx context.Context) {
	defer close(s.stoppedC)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-s.stopCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	ticker := time.NewTicker(s.config.PollInterval)
	defer ticker.Stop()

	s.runCycle(ctx)

	for {
		select {
		case <-ctx.Done():
			s.logger.WithContext(ctx).Debug("Scheduler poll loop stopping")
			return
		case <-ticker.C:
			s.runCycle(ctx)
		}
	}
}

// runCycle gives every enabled fusion source one pass
func (s *Scheduler) runCycle(ctx context.Context) {
	ctx, span := tracing.StartSpan(ctx, "scheduler.Scheduler.runCycle")
	defer span.End()

	start := time.Now()

	sources, err := s.sources.ListEnabled(ctx)
	if err != nil {
		s.logger.WithContext(ctx).WithError(err).Error("Failed to list fusion sources")
		return
	}
	if len(sources) == 0 {
		s.logger.WithContext(ctx).Debug("No fusion sources to reconcile")
		return
	}

	ran, skipped := 0, 0
	for i := range sources {
		if ctx.Err() != nil {
			return
		}

		_, err := s.RunSource(ctx, &sources[i])
		switch {
		case errors.Is(err, ErrPassInProgress):
			skipped++
		case err != nil:
			s.logger.WithContext(ctx).WithError(err).Warnf("Reconciliation pass failed for %s", sources[i].Name)
		default:
			ran++
		}
	}

	s.logger.WithContext(ctx).Infof("Scheduling cycle completed: ran=%d skipped=%d duration=%s", ran, skipped, time.Since(start))
}

// RunSource runs one pass for a fusion source while holding its lock
func (s *Scheduler) RunSource(ctx context.Context, settings *models.FusionSettings) (*fusion.PassResult, error) {
	ctx, span := tracing.StartSpan(ctx, "scheduler.Scheduler.RunSource")
	defer span.End()

	var result *fusion.PassResult
	start := time.Now()
	err := s.WithLock(ctx, settings, func(ctx context.Context) error {
		var err error
		result, err = s.runner.Run(ctx, settings)
		return err
	})
	duration := time.Since(start).Seconds()

	if errors.Is(err, ErrPassInProgress) {
		return nil, err
	}
	if err != nil {
		metrics.RecordPass(settings.ID, "failed", duration, nil)
		return nil, err
	}

	status := "success"
	if result.Errors != nil && result.Errors.Len() > 0 {
		status = "partial"
	}
	metrics.RecordPass(settings.ID, status, duration, &result.Summary)

	return result, nil
}

// WithLock runs fn while holding the fusion source's pass lock. The lock is extended on a
// keepalive ticker and losing it cancels the context fn runs with.
func (s *Scheduler) WithLock(ctx context.Context, settings *models.FusionSettings, fn func(ctx context.Context) error) error {
	ctx = fusionctx.SetFusionSourceID(ctx, settings.ID)
	log := s.logger.WithContext(ctx).WithFields(map[string]any{
		"fusion_source_id": settings.ID,
		"fusion_source":    settings.Name,
	})

	lock, err := s.locker.Acquire(ctx, LockKeyPrefix+settings.ID, s.config.LockTTL)
	if err != nil {
		if errors.Is(err, redis.ErrLockNotAcquired) {
			metrics.RecordLockContention(settings.ID)
			log.Debug("Fusion source is locked, skipping")
			return ErrPassInProgress
		}
		return err
	}

	lockedCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	go lock.KeepAlive(lockedCtx, s.config.LockTTL/3, func(err error) {
		log.WithError(err).Error("Lost fusion source lock, cancelling")
		cancel()
	})

	fnErr := fn(lockedCtx)

	// release with the parent context so a cancelled run still frees the lock
	if err := lock.Release(ctx); err != nil && !errors.Is(err, redis.ErrLockNotHeld) {
		log.WithError(err).Warn("Failed to release fusion source lock")
	}

	return fnErr
}
