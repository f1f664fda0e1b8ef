package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	cascadedomain "github.com/smallbiznis/marketpay/internal/cascade/domain"
	"github.com/smallbiznis/marketpay/internal/clock"
	obsmetrics "github.com/smallbiznis/marketpay/internal/observability/metrics"
	payabledomain "github.com/smallbiznis/marketpay/internal/payable/domain"
	"github.com/smallbiznis/marketpay/internal/ratelimit"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	JobCascadeRecovery = "cascade_recovery"
	JobExpirePayables  = "expire_payables"

	lockKeyPrefix = "scheduler:lock:"
)

type Params struct {
	fx.In

	Log        *zap.Logger
	PayableSvc payabledomain.Service
	CascadeSvc cascadedomain.Service
	Locker     *ratelimit.Locker `optional:"true"`
	GenID      *snowflake.Node
	Clock      clock.Clock
	Config     Config `optional:"true"`
}

type Scheduler struct {
	log        *zap.Logger
	cfg        Config
	genID      *snowflake.Node
	clock      clock.Clock
	payableSvc payabledomain.Service
	cascadeSvc cascadedomain.Service
	locker     *ratelimit.Locker
}

func New(p Params) (*Scheduler, error) {
	if p.Log == nil || p.PayableSvc == nil || p.CascadeSvc == nil || p.GenID == nil || p.Clock == nil {
		return nil, ErrInvalidConfig
	}
	cfg := p.Config.withDefaults()
	return &Scheduler{
		log:        p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:        cfg,
		genID:      p.GenID,
		clock:      p.Clock,
		payableSvc: p.PayableSvc,
		cascadeSvc: p.CascadeSvc,
		locker:     p.Locker,
	}, nil
}

// runJob executes fn under the job's distributed lock and deadline. A
// deadline is treated as a soft timeout: the next tick picks up the rest.
func (s *Scheduler) runJob(
	parent context.Context,
	name string,
	batchSize int,
	timeout time.Duration,
	fn func(ctx context.Context) error,
) error {
	start := s.clock.Now()
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	ctx, run := s.startJobRun(ctx, name, batchSize)
	log := s.logger(ctx)
	schedMetrics := obsmetrics.Scheduler()

	var err error
	acquired, lockErr := s.locker.WithLock(ctx, lockKeyPrefix+name, s.cfg.LockTTL, func(ctx context.Context) error {
		schedMetrics.IncJobRun(name)
		s.logJobStart(ctx, run)
		err = fn(ctx)
		schedMetrics.ObserveJobDuration(name, s.clock.Now().Sub(start))
		if err != nil && run.errorCount == 0 {
			run.IncError()
		}
		s.logJobFinish(ctx, run)
		return err
	})
	if lockErr != nil && err == nil {
		// The lock itself failed; fn never ran.
		schedMetrics.IncJobError(name, lockErr)
		log.Warn("job lock unavailable", zap.Error(lockErr))
		return nil
	}
	if !acquired {
		schedMetrics.IncJobSkipped(name, obsmetrics.SchedulerJobSkipReasonLockHeld)
		log.Debug("job skipped, lock held by another replica")
		return nil
	}
	if err == nil {
		return nil
	}

	isTimeout := errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
	if isTimeout {
		schedMetrics.IncJobTimeout(name)
	}
	schedMetrics.IncJobError(name, err)
	if isTimeout {
		log.Warn("job timed out",
			zap.Duration("timeout", timeout),
			zap.Error(err),
		)
		return nil
	}

	return fmt.Errorf("%s: %w", name, err)
}

func (s *Scheduler) RunOnce(parent context.Context) error {
	var err error

	for _, job := range s.jobs() {
		if !s.isJobEnabled(job.name) {
			continue
		}
		err = errors.Join(err, s.runJob(parent, job.name, s.cfg.BatchSize, s.cfg.JobTimeout, job.run))
	}

	return err
}

type scheduledJob struct {
	name string
	run  func(context.Context) error
}

// jobs lists every job in the order a pass runs them. Cascades are recovered
// first so a resource expiring in the same pass still gets its side effects.
func (s *Scheduler) jobs() []scheduledJob {
	return []scheduledJob{
		{JobCascadeRecovery, s.CascadeRecoveryJob},
		{JobExpirePayables, s.ExpirePayablesJob},
	}
}

func (s *Scheduler) enabledJobs() []string {
	var names []string
	for _, job := range s.jobs() {
		if s.isJobEnabled(job.name) {
			names = append(names, job.name)
		}
	}
	return names
}

func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()
	nextRun := time.Now().Add(s.cfg.RunInterval)
	schedMetrics := obsmetrics.Scheduler()

	for {
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("scheduler run failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case tick := <-ticker.C:
			if lag := tick.Sub(nextRun); lag > 0 {
				schedMetrics.ObserveRunLoopLag(lag)
			}
			nextRun = tick.Add(s.cfg.RunInterval)
		}
	}
}

func (s *Scheduler) isJobEnabled(jobName string) bool {
	if len(s.cfg.EnabledJobs) == 0 {
		return true
	}
	for _, enabled := range s.cfg.EnabledJobs {
		if strings.EqualFold(enabled, jobName) {
			return true
		}
	}
	return false
}
