package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/logoforge/internal/clock"
	entitlementdomain "github.com/smallbiznis/logoforge/internal/entitlement/domain"
	obsmetrics "github.com/smallbiznis/logoforge/internal/observability/metrics"
	"github.com/smallbiznis/logoforge/internal/ratelimit"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	JobResetFreeAllotments = "reset_free_allotments"

	lockKeyPrefix = "scheduler:lock:"
)

var ErrInvalidConfig = errors.New("invalid_scheduler_config")

type Params struct {
	fx.In

	Log            *zap.Logger
	Clock          clock.Clock
	GenID          *snowflake.Node
	EntitlementSvc entitlementdomain.Service
	Locker         *ratelimit.Locker            `optional:"true"`
	Metrics        *obsmetrics.SchedulerMetrics `optional:"true"`
	Config         Config                       `optional:"true"`
}

type Scheduler struct {
	log            *zap.Logger
	cfg            Config
	clock          clock.Clock
	genID          *snowflake.Node
	entitlementSvc entitlementdomain.Service
	locker         *ratelimit.Locker
	metrics        *obsmetrics.SchedulerMetrics
}

func New(p Params) (*Scheduler, error) {
	if p.Log == nil || p.Clock == nil || p.GenID == nil || p.EntitlementSvc == nil {
		return nil, ErrInvalidConfig
	}
	schedMetrics := p.Metrics
	if schedMetrics == nil {
		schedMetrics = obsmetrics.SchedulerWithConfig(obsmetrics.Config{})
	}
	return &Scheduler{
		log:            p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:            p.Config.withDefaults(),
		clock:          p.Clock,
		genID:          p.GenID,
		entitlementSvc: p.EntitlementSvc,
		locker:         p.Locker,
		metrics:        schedMetrics,
	}, nil
}

// runJob executes fn under a per-job timeout and, when redis is available,
// a lease so only one replica runs the job per tick. Timeouts are soft.
func (s *Scheduler) runJob(parent context.Context, name string, fn func(ctx context.Context, run *jobRun) error) error {
	ctx, cancel := context.WithTimeout(parent, s.cfg.JobTimeout)
	defer cancel()

	ctx, run := s.newJobRun(ctx, name)
	log := s.logger(ctx).With(zap.String("job", name), zap.String("run_id", run.runID))

	release, acquired := s.acquire(ctx, name, log)
	if !acquired {
		s.metrics.IncJobSkipped(name, obsmetrics.SchedulerJobReasonLockUnavailable)
		log.Debug("job skipped, lock held elsewhere")
		return nil
	}
	defer release()

	s.logJobStart(ctx, run)
	s.metrics.IncJobRun(name)

	err := fn(ctx, run)
	s.metrics.ObserveJobDuration(name, s.clock.Now().Sub(run.startedAt))
	if err != nil {
		run.IncError()
	}
	s.logJobFinish(ctx, run)
	if err == nil {
		return nil
	}

	isTimeout := errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
	if isTimeout {
		s.metrics.IncJobTimeout(name)
	}
	s.metrics.IncJobError(name, err)
	if isTimeout {
		log.Warn("job timed out", zap.Duration("timeout", s.cfg.JobTimeout), zap.Error(err))
		return nil
	}
	return fmt.Errorf("%s: %w", name, err)
}

// acquire runs unlocked when redis is absent or unreachable. Every job is a
// conditional update, so a duplicate run across replicas only repeats a no-op.
func (s *Scheduler) acquire(ctx context.Context, name string, log *zap.Logger) (func(), bool) {
	if s.locker == nil {
		return func() {}, true
	}
	key := lockKeyPrefix + name
	token, ok, err := s.locker.TryLock(ctx, key, s.cfg.LockTTL)
	if err != nil {
		log.Warn("scheduler lock unavailable, running unlocked", zap.Error(err))
		s.metrics.IncLockFallback(name)
		return func() {}, true
	}
	if !ok {
		return nil, false
	}
	return func() {
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := s.locker.Release(releaseCtx, key, token); err != nil {
			log.Warn("scheduler lock release failed", zap.Error(err))
		}
	}, true
}

func (s *Scheduler) RunOnce(ctx context.Context) error {
	return s.runJob(ctx, JobResetFreeAllotments, s.ResetFreeAllotmentsJob)
}

func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()
	nextRun := s.clock.Now()

	for {
		if lag := s.clock.Now().Sub(nextRun); lag > 0 {
			s.metrics.ObserveRunLoopLag(lag)
		}
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("scheduler run failed", zap.Error(err))
		}
		nextRun = s.clock.Now().Add(s.cfg.RunInterval)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// ResetFreeAllotmentsJob restores the daily free allotment for every user
// whose last reset is at least one reset interval old.
func (s *Scheduler) ResetFreeAllotmentsJob(ctx context.Context, run *jobRun) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	affected, err := s.entitlementSvc.ResetFreeAllotments(ctx)
	if err != nil {
		return err
	}
	run.AddProcessed(affected)
	s.metrics.AddBatchProcessed(JobResetFreeAllotments, "user_entitlements", affected)
	return nil
}
