package service

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/marketpay/internal/authorization"
	cascadedomain "github.com/smallbiznis/marketpay/internal/cascade/domain"
	"github.com/smallbiznis/marketpay/internal/clock"
	"github.com/smallbiznis/marketpay/internal/config"
	obsmetrics "github.com/smallbiznis/marketpay/internal/observability/metrics"
	payabledomain "github.com/smallbiznis/marketpay/internal/payable/domain"
	shopdomain "github.com/smallbiznis/marketpay/internal/shop/domain"
	"github.com/smallbiznis/marketpay/pkg/telemetry/correlation"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	defaultTimeout     = 30 * time.Second
	defaultConcurrency = 4
)

var tracer = otel.Tracer("marketpay/cascade")

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
	repo  cascadedomain.Repository

	shops    shopdomain.Store
	notifier cascadedomain.Notifier
	authz    authorization.Service
	metrics  *obsmetrics.Metrics

	async       bool
	timeout     time.Duration
	concurrency int

	inflight sync.WaitGroup
}

type ServiceParam struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Clock    clock.Clock
	Repo     cascadedomain.Repository
	Shops    shopdomain.Store
	Notifier cascadedomain.Notifier
	Authz    authorization.Service
	Metrics  *obsmetrics.Metrics `optional:"true"`
	Config   config.Config
}

func NewService(p ServiceParam) *Service {
	timeout := p.Config.Reconcile.CascadeTimeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	concurrency := p.Config.Reconcile.CascadeConcurrency
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}

	return &Service{
		db:    p.DB,
		log:   p.Log.Named("cascade.service"),
		genID: p.GenID,
		clock: p.Clock,
		repo:  p.Repo,

		shops:    p.Shops,
		notifier: p.Notifier,
		authz:    p.Authz,
		metrics:  p.Metrics,

		async:       p.Config.Reconcile.CascadeAsync,
		timeout:     timeout,
		concurrency: concurrency,
	}
}

// Enqueue implements domain.Service.
func (s *Service) Enqueue(ctx context.Context, tx *gorm.DB, res payabledomain.Resource, t payabledomain.Transition) ([]cascadedomain.Job, error) {
	specs := cascadedomain.Plan(res.Kind(), t)
	if len(specs) == 0 {
		return nil, nil
	}

	payload, err := json.Marshal(buildPayload(ctx, res, t))
	if err != nil {
		return nil, err
	}

	base := res.Base()
	now := s.clock.Now()
	jobs := make([]cascadedomain.Job, 0, len(specs))
	for _, spec := range specs {
		jobs = append(jobs, cascadedomain.Job{
			ID:            s.genID.Generate(),
			ResourceKind:  string(res.Kind()),
			ResourceID:    base.ID,
			OwnerID:       base.OwnerID,
			Effect:        spec.Effect,
			Template:      spec.Template,
			Payload:       datatypes.JSON(payload),
			Status:        cascadedomain.StatusPending,
			FailedTargets: datatypes.JSON("[]"),
			CreatedAt:     now,
		})
	}

	if err := s.repo.Insert(ctx, tx, jobs); err != nil {
		return nil, err
	}
	return jobs, nil
}

// Dispatch implements domain.Service. Jobs run detached from the caller's
// cancellation, bounded by the cascade timeout.
func (s *Service) Dispatch(ctx context.Context, jobs []cascadedomain.Job) {
	if len(jobs) == 0 {
		return
	}

	run := func() {
		runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
		defer cancel()
		for _, job := range jobs {
			if _, err := s.run(runCtx, job, s.claimFrom(job.ID, cascadedomain.StatusPending)); err != nil {
				s.log.Error("cascade job failed to run",
					zap.String("job_id", job.ID.String()),
					zap.String("effect", string(job.Effect)),
					zap.Error(err),
				)
			}
		}
	}

	if !s.async {
		run()
		return
	}
	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		run()
	}()
}

// Wait blocks until asynchronously dispatched jobs have finished.
func (s *Service) Wait() {
	s.inflight.Wait()
}

// Drain waits for in-flight jobs until ctx is done. Jobs still running after
// that are picked up again by RecoverPending once they go stale.
func (s *Service) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		s.log.Warn("cascade drain interrupted, running jobs left for recovery", zap.Error(ctx.Err()))
		return ctx.Err()
	}
}

// Replay implements domain.Service.
func (s *Service) Replay(ctx context.Context, req cascadedomain.ReplayRequest) (*cascadedomain.Job, error) {
	if req.JobID <= 0 {
		return nil, cascadedomain.ErrInvalidJobID
	}

	job, err := s.repo.FindByID(ctx, s.db, req.JobID)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, cascadedomain.ErrJobNotFound
	}
	if err := s.authz.Authorize(ctx, req.Actor, job.OwnerID, authorization.ObjectCascade, authorization.ActionReplay); err != nil {
		return nil, err
	}
	if job.Status != cascadedomain.StatusPartial && job.Status != cascadedomain.StatusFailed {
		return nil, cascadedomain.ErrJobNotReplayable
	}

	ran, err := s.run(ctx, *job, s.claimFrom(job.ID, cascadedomain.StatusPartial, cascadedomain.StatusFailed))
	if err != nil {
		return nil, err
	}
	if !ran {
		return nil, cascadedomain.ErrJobNotReplayable
	}

	s.log.Info("cascade job replayed",
		zap.String("job_id", job.ID.String()),
		zap.String("actor_id", req.Actor.ID.String()),
	)
	return s.repo.FindByID(ctx, s.db, job.ID)
}

// RecoverPending implements domain.Service. It runs pending jobs whose
// dispatch was lost between commit and execution, and reclaims running jobs
// whose worker died before closing them.
func (s *Service) RecoverPending(ctx context.Context, olderThan time.Duration, limit int) (int, error) {
	now := s.clock.Now()
	startedBefore := s.staleRunningBefore(now, olderThan)
	jobs, err := s.repo.ListStale(ctx, s.db, now.Add(-olderThan), startedBefore, limit)
	if err != nil {
		return 0, err
	}

	processed := 0
	for _, job := range jobs {
		if err := ctx.Err(); err != nil {
			return processed, err
		}
		claim := s.claimFrom(job.ID, cascadedomain.StatusPending)
		if job.Status == cascadedomain.StatusRunning {
			s.log.Warn("reclaiming stale cascade job",
				zap.String("job_id", job.ID.String()),
				zap.String("effect", string(job.Effect)),
				zap.Int("attempts", job.Attempts),
			)
			claim = s.reclaim(job.ID, startedBefore)
		}
		ran, err := s.run(ctx, job, claim)
		if err != nil {
			return processed, err
		}
		if ran {
			processed++
		}
	}
	return processed, nil
}

// staleRunningBefore is the start time before which a running job cannot
// belong to a live dispatch.
func (s *Service) staleRunningBefore(now time.Time, olderThan time.Duration) time.Time {
	return now.Add(-(s.timeout + olderThan))
}

type claimFunc func(ctx context.Context) (bool, error)

func (s *Service) claimFrom(id snowflake.ID, from ...cascadedomain.Status) claimFunc {
	return func(ctx context.Context) (bool, error) {
		return s.repo.Claim(ctx, s.db, id, from, s.clock.Now())
	}
}

func (s *Service) reclaim(id snowflake.ID, startedBefore time.Time) claimFunc {
	return func(ctx context.Context) (bool, error) {
		return s.repo.Reclaim(ctx, s.db, id, startedBefore, s.clock.Now())
	}
}

// run claims job and executes it, reporting false when another worker holds it.
func (s *Service) run(ctx context.Context, job cascadedomain.Job, claim claimFunc) (bool, error) {
	if correlation.ExtractCorrelationID(ctx) == "" {
		ctx = correlation.ContextFromMetadata(ctx, payloadMetadata(job.Payload))
	}
	ctx, span := tracer.Start(ctx, "cascade.run")
	defer span.End()
	span.SetAttributes(
		attribute.String("effect", string(job.Effect)),
		attribute.String("kind", job.ResourceKind),
	)

	claimed, err := claim(ctx)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return false, err
	}
	if !claimed {
		return false, nil
	}

	outcome := s.execute(ctx, job)
	outcome.CompletedAt = s.clock.Now()

	// The job row must be closed even when ctx expired during execution.
	if err := s.repo.Complete(context.WithoutCancel(ctx), s.db, job.ID, outcome); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return true, err
	}

	s.metrics.RecordCascadeJob(ctx, string(job.Effect), string(outcome.Status))
	fields := []zap.Field{
		zap.String("job_id", job.ID.String()),
		zap.String("kind", job.ResourceKind),
		zap.String("resource_id", job.ResourceID.String()),
		zap.String("effect", string(job.Effect)),
		zap.String("status", string(outcome.Status)),
	}
	if outcome.Status == cascadedomain.StatusCompleted {
		s.log.Info("cascade job completed", fields...)
	} else {
		span.SetStatus(codes.Error, outcome.LastError)
		fields = append(fields, zap.Strings("failed_targets", outcome.FailedTargets), zap.String("error", outcome.LastError))
		s.log.Warn("cascade job not completed", fields...)
	}
	return true, nil
}

func (s *Service) execute(ctx context.Context, job cascadedomain.Job) cascadedomain.Outcome {
	switch job.Effect {
	case cascadedomain.EffectActivateShops:
		return s.setShops(ctx, job, shopdomain.StatusActive)
	case cascadedomain.EffectSuspendShops:
		return s.setShops(ctx, job, shopdomain.StatusSuspended)
	case cascadedomain.EffectNotify:
		return s.notify(ctx, job)
	default:
		return cascadedomain.Outcome{Status: cascadedomain.StatusFailed, LastError: "unknown_effect"}
	}
}

func (s *Service) setShops(ctx context.Context, job cascadedomain.Job, status shopdomain.Status) cascadedomain.Outcome {
	shops, err := s.shops.ListByOwner(ctx, job.OwnerID)
	if err != nil {
		return cascadedomain.Outcome{Status: cascadedomain.StatusFailed, LastError: err.Error()}
	}
	if len(shops) == 0 {
		return cascadedomain.Outcome{Status: cascadedomain.StatusCompleted}
	}

	var (
		mu      sync.Mutex
		failed  []string
		lastErr error
	)
	var g errgroup.Group
	g.SetLimit(s.concurrency)
	for _, shop := range shops {
		g.Go(func() error {
			if err := s.shops.SetStatus(ctx, shop.ID, status); err != nil {
				s.log.Warn("shop status update failed",
					zap.String("job_id", job.ID.String()),
					zap.String("shop_id", shop.ID.String()),
					zap.String("status", string(status)),
					zap.Error(err),
				)
				mu.Lock()
				failed = append(failed, shop.ID.String())
				lastErr = err
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	switch {
	case len(failed) == 0:
		return cascadedomain.Outcome{Status: cascadedomain.StatusCompleted}
	case len(failed) == len(shops):
		sort.Strings(failed)
		return cascadedomain.Outcome{Status: cascadedomain.StatusFailed, LastError: lastErr.Error(), FailedTargets: failed}
	default:
		sort.Strings(failed)
		return cascadedomain.Outcome{Status: cascadedomain.StatusPartial, LastError: lastErr.Error(), FailedTargets: failed}
	}
}

func (s *Service) notify(ctx context.Context, job cascadedomain.Job) cascadedomain.Outcome {
	payload := map[string]any{}
	if len(job.Payload) > 0 {
		if err := json.Unmarshal(job.Payload, &payload); err != nil {
			return cascadedomain.Outcome{Status: cascadedomain.StatusFailed, LastError: err.Error()}
		}
	}

	if !s.notifier.Send(ctx, job.OwnerID, job.Template, payload) {
		return cascadedomain.Outcome{Status: cascadedomain.StatusFailed, LastError: errNotDelivered.Error()}
	}
	return cascadedomain.Outcome{Status: cascadedomain.StatusCompleted}
}

var errNotDelivered = errors.New("notification_not_delivered")

func buildPayload(ctx context.Context, res payabledomain.Resource, t payabledomain.Transition) map[string]any {
	base := res.Base()
	payload := map[string]any{
		"kind":        string(res.Kind()),
		"resource_id": base.ID.String(),
		"owner_id":    base.OwnerID.String(),
		"description": res.Describe(),
		"amount":      base.Amount.StringFixed(2),
		"currency":    base.Currency,
		"from_state":  string(t.From),
		"state":       string(t.To),
	}
	if t.ExpiresAt != nil {
		payload["expires_at"] = t.ExpiresAt.Format("2006-01-02")
	}
	for key, value := range correlation.InjectIntoMetadata(ctx, map[string]string{}) {
		payload[key] = value
	}
	return payload
}

// payloadMetadata recovers the correlation identifiers stored by buildPayload.
func payloadMetadata(raw datatypes.JSON) map[string]string {
	var payload map[string]any
	if len(raw) == 0 || json.Unmarshal(raw, &payload) != nil {
		return nil
	}
	meta := map[string]string{}
	for _, key := range []string{correlation.MetadataCorrelationID, correlation.MetadataTraceID, correlation.MetadataSpanID} {
		if value, ok := payload[key].(string); ok && value != "" {
			meta[key] = value
		}
	}
	return meta
}

var _ cascadedomain.Service = (*Service)(nil)
