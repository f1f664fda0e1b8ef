package scheduler

import (
	"context"
	"sort"
	"time"

	"github.com/smallbiznis/marketpay/internal/authorization"
	obscontext "github.com/smallbiznis/marketpay/internal/observability/context"
	obslogger "github.com/smallbiznis/marketpay/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/marketpay/internal/observability/metrics"
	"go.uber.org/zap"
)

// jobRun accumulates what one execution of a job did, for the finish log line.
type jobRun struct {
	job        string
	runID      string
	batchSize  int
	startedAt  time.Time
	processed  map[string]int
	errorCount int
}

type jobRunKey struct{}

// AddProcessed counts resources of the given type handled by the run.
func (r *jobRun) AddProcessed(resource string, count int) {
	if r == nil || count <= 0 {
		return
	}
	if r.processed == nil {
		r.processed = make(map[string]int)
	}
	r.processed[resource] += count
}

func (r *jobRun) total() int {
	if r == nil {
		return 0
	}
	total := 0
	for _, n := range r.processed {
		total += n
	}
	return total
}

func (r *jobRun) IncError() {
	if r == nil {
		return
	}
	r.errorCount++
}

func (s *Scheduler) startJobRun(ctx context.Context, job string, batchSize int) (context.Context, *jobRun) {
	run := &jobRun{
		job:       job,
		runID:     s.genID.Generate().String(),
		batchSize: batchSize,
		startedAt: s.clock.Now(),
	}
	ctx = context.WithValue(ctx, jobRunKey{}, run)
	ctx = obscontext.WithActor(ctx, authorization.RoleSystem, "scheduler")
	return ctx, run
}

func jobRunFromContext(ctx context.Context) *jobRun {
	if ctx == nil {
		return nil
	}
	if run, ok := ctx.Value(jobRunKey{}).(*jobRun); ok {
		return run
	}
	return nil
}

// logger returns the scheduler logger scoped to ctx and, inside a job, to its run.
func (s *Scheduler) logger(ctx context.Context) *zap.Logger {
	log := obslogger.WithContext(ctx, s.log)
	if run := jobRunFromContext(ctx); run != nil {
		log = log.With(zap.String("job", run.job), zap.String("run_id", run.runID))
	}
	return log
}

func (s *Scheduler) logJobStart(ctx context.Context, run *jobRun) {
	if run == nil {
		return
	}
	s.logger(ctx).Debug("scheduler.job.start", zap.Int("batch_size", run.batchSize))
}

func (s *Scheduler) logJobFinish(ctx context.Context, run *jobRun) {
	if run == nil {
		return
	}
	fields := []zap.Field{
		zap.Int64("duration_ms", s.clock.Now().Sub(run.startedAt).Milliseconds()),
		zap.Int("processed_count", run.total()),
		zap.Int("error_count", run.errorCount),
	}
	resources := make([]string, 0, len(run.processed))
	for resource := range run.processed {
		resources = append(resources, resource)
	}
	sort.Strings(resources)
	for _, resource := range resources {
		fields = append(fields, zap.Int("processed."+resource, run.processed[resource]))
	}

	log := s.logger(ctx)
	switch {
	case run.errorCount > 0:
		log.Warn("scheduler.job.finish", fields...)
	case run.total() == 0:
		log.Debug("scheduler.job.finish", fields...)
	default:
		log.Info("scheduler.job.finish", fields...)
	}
}

func (s *Scheduler) logSchedulerError(ctx context.Context, msg string, err error, fields ...zap.Field) {
	if err == nil {
		return
	}
	jobRunFromContext(ctx).IncError()
	fields = append([]zap.Field{
		zap.String("reason", obsmetrics.ClassifySchedulerJobReason(err)),
		zap.Error(err),
	}, fields...)
	s.logger(ctx).Error(msg, fields...)
}
