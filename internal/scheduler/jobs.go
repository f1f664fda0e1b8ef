package scheduler

import (
	"context"
	"errors"

	obsmetrics "github.com/smallbiznis/marketpay/internal/observability/metrics"
	payabledomain "github.com/smallbiznis/marketpay/internal/payable/domain"
	"go.uber.org/zap"
)

// CascadeRecoveryJob runs cascade jobs left pending by a crash between the
// transition commit and dispatch.
func (s *Scheduler) CascadeRecoveryJob(ctx context.Context) error {
	processed, err := s.cascadeSvc.RecoverPending(ctx, s.cfg.CascadeMinAge, s.cfg.BatchSize)
	jobRunFromContext(ctx).AddProcessed("cascade_job", processed)
	obsmetrics.Scheduler().AddBatchProcessed(JobCascadeRecovery, "cascade_job", processed)
	if processed > 0 {
		s.logger(ctx).Info("recovered pending cascade jobs", zap.Int("count", processed))
	}
	s.logSchedulerError(ctx, "cascade recovery failed", err)
	return err
}

// ExpirePayablesJob moves ACTIVE subscriptions and banners past their period
// to EXPIRED.
func (s *Scheduler) ExpirePayablesJob(ctx context.Context) error {
	run := jobRunFromContext(ctx)
	var jobErr error
	for _, kind := range []payabledomain.Kind{payabledomain.KindSubscription, payabledomain.KindBanner} {
		if err := ctx.Err(); err != nil {
			return errors.Join(jobErr, err)
		}
		expired, err := s.payableSvc.ExpireDue(ctx, kind, s.cfg.BatchSize)
		run.AddProcessed(string(kind), expired)
		obsmetrics.Scheduler().AddBatchProcessed(JobExpirePayables, string(kind), expired)
		if err != nil {
			s.logSchedulerError(ctx, "expire payables failed", err, zap.String("kind", string(kind)))
			jobErr = errors.Join(jobErr, err)
		}
	}
	return jobErr
}
