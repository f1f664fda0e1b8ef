package service

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/marketpay/internal/authorization"
	cascadedomain "github.com/smallbiznis/marketpay/internal/cascade/domain"
	obsmetrics "github.com/smallbiznis/marketpay/internal/observability/metrics"
	payabledomain "github.com/smallbiznis/marketpay/internal/payable/domain"
	"github.com/smallbiznis/marketpay/pkg/db"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var errNotDue = errors.New("not_due")

// CancelSubscription implements domain.Service.
func (s *Service) CancelSubscription(ctx context.Context, req payabledomain.CancelRequest) (*payabledomain.View, error) {
	if req.ID <= 0 {
		return nil, payabledomain.ErrInvalidID
	}

	var (
		res  payabledomain.Resource
		t    payabledomain.Transition
		jobs []cascadedomain.Job
	)
	err := db.RunInTx(ctx, s.db, s.maxTxAttempts, func(tx *gorm.DB) error {
		var err error
		res, err = s.repo.FindForUpdate(ctx, tx, payabledomain.KindSubscription, req.ID)
		if err != nil {
			return err
		}
		if res == nil {
			return payabledomain.ErrNotFound
		}
		if err := s.authz.Authorize(ctx, req.Actor, res.Base().OwnerID, authorization.ObjectSubscription, authorization.ActionCancel); err != nil {
			return err
		}

		var ok bool
		t, ok = payabledomain.Plan(res, payabledomain.EventCancel, s.clock.Now())
		if !ok {
			return payabledomain.ErrInvalidTransition
		}
		applied, err := s.repo.ApplyTransition(ctx, tx, res, t)
		if err != nil {
			return err
		}
		if !applied {
			return db.ErrTxConflict
		}
		jobs, err = s.cascade.Enqueue(ctx, tx, res, t)
		return err
	}, s.onTxRetry(obsmetrics.ConflictSourceCancel, payabledomain.KindSubscription))
	if errors.Is(err, db.ErrTxConflict) {
		return nil, payabledomain.ErrConcurrentUpdate
	}
	if err != nil {
		return nil, err
	}

	s.metrics.RecordTransition(ctx, string(t.Kind), string(t.From), string(t.To))
	s.log.Info("subscription cancelled",
		zap.String("resource_id", req.ID.String()),
		zap.String("from_state", string(t.From)),
		zap.String("actor_id", req.Actor.ID.String()),
	)
	s.cascade.Dispatch(ctx, jobs)

	view := payabledomain.NewView(res)
	return &view, nil
}

// ExpireDue implements domain.Service. It moves ACTIVE resources whose period
// has lapsed to EXPIRED and returns how many were expired.
func (s *Service) ExpireDue(ctx context.Context, kind payabledomain.Kind, limit int) (int, error) {
	if kind != payabledomain.KindSubscription && kind != payabledomain.KindBanner {
		return 0, payabledomain.ErrInvalidKind
	}

	ids, err := s.repo.ListExpired(ctx, s.db, kind, s.clock.Now(), limit)
	if err != nil {
		return 0, err
	}

	expired := 0
	var errs []error
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		ok, err := s.expireOne(ctx, kind, id)
		if err != nil {
			s.log.Warn("expire payable failed",
				zap.String("kind", string(kind)),
				zap.String("resource_id", id.String()),
				zap.Error(err),
			)
			errs = append(errs, err)
			continue
		}
		if ok {
			expired++
		}
	}
	return expired, errors.Join(errs...)
}

func (s *Service) expireOne(ctx context.Context, kind payabledomain.Kind, id snowflake.ID) (bool, error) {
	var (
		res  payabledomain.Resource
		t    payabledomain.Transition
		jobs []cascadedomain.Job
	)
	err := db.RunInTx(ctx, s.db, s.maxTxAttempts, func(tx *gorm.DB) error {
		var err error
		res, err = s.repo.FindForUpdate(ctx, tx, kind, id)
		if err != nil {
			return err
		}
		if res == nil {
			return errNotDue
		}
		base := res.Base()
		at := s.clock.Now()
		if base.State != payabledomain.StateActive || base.ExpiresAt == nil || base.ExpiresAt.After(at) {
			return errNotDue
		}

		var ok bool
		t, ok = payabledomain.Plan(res, payabledomain.EventExpire, at)
		if !ok {
			return errNotDue
		}
		applied, err := s.repo.ApplyTransition(ctx, tx, res, t)
		if err != nil {
			return err
		}
		if !applied {
			return db.ErrTxConflict
		}
		jobs, err = s.cascade.Enqueue(ctx, tx, res, t)
		return err
	}, s.onTxRetry(obsmetrics.ConflictSourceExpire, kind))
	if errors.Is(err, errNotDue) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	s.metrics.RecordTransition(ctx, string(kind), string(t.From), string(t.To))
	s.log.Info("payable expired",
		zap.String("kind", string(kind)),
		zap.String("resource_id", id.String()),
	)
	s.cascade.Dispatch(ctx, jobs)
	return true, nil
}

func (s *Service) onTxRetry(source string, kind payabledomain.Kind) func(int, error) {
	return func(attempt int, err error) {
		obsmetrics.Scheduler().IncTxConflict(source, string(kind))
		s.log.Debug("transaction conflict, retrying",
			zap.String("source", source),
			zap.String("kind", string(kind)),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
	}
}
