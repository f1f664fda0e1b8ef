package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/marketpay/internal/authorization"
	cascadedomain "github.com/smallbiznis/marketpay/internal/cascade/domain"
	"github.com/smallbiznis/marketpay/internal/clock"
	"github.com/smallbiznis/marketpay/internal/config"
	gatewaydomain "github.com/smallbiznis/marketpay/internal/gateway/domain"
	obsmetrics "github.com/smallbiznis/marketpay/internal/observability/metrics"
	payabledomain "github.com/smallbiznis/marketpay/internal/payable/domain"
	"github.com/smallbiznis/marketpay/internal/payable/policy"
	"github.com/smallbiznis/marketpay/internal/ratelimit"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
	repo  payabledomain.Repository

	gateway  gatewaydomain.Client
	authz    authorization.Service
	limiter  *ratelimit.PayableLimiter
	policies config.PolicySource
	cascade  cascadedomain.Service
	metrics  *obsmetrics.Metrics

	gatewayCfg    config.GatewayConfig
	maxTxAttempts int
}

type ServiceParam struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	GenID   *snowflake.Node
	Clock   clock.Clock
	Repo    payabledomain.Repository
	Gateway gatewaydomain.Client
	Authz   authorization.Service
	Limiter *ratelimit.PayableLimiter `optional:"true"`
	Policy  config.PolicySource
	Cascade cascadedomain.Service
	Metrics *obsmetrics.Metrics `optional:"true"`
	Config  config.Config
}

func NewService(p ServiceParam) payabledomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("payable.service"),
		genID: p.GenID,
		clock: p.Clock,
		repo:  p.Repo,

		gateway:  p.Gateway,
		authz:    p.Authz,
		limiter:  p.Limiter,
		policies: p.Policy,
		cascade:  p.Cascade,
		metrics:  p.Metrics,

		gatewayCfg:    p.Config.Gateway,
		maxTxAttempts: p.Config.Reconcile.MaxTxAttempts,
	}
}

// Create implements domain.Service.
func (s *Service) Create(ctx context.Context, req payabledomain.CreateRequest) (*payabledomain.View, error) {
	if req.Kind.Table() == "" {
		return nil, payabledomain.ErrInvalidKind
	}
	if req.OwnerID <= 0 {
		return nil, payabledomain.ErrInvalidOwner
	}
	if !req.Amount.IsPositive() {
		return nil, payabledomain.ErrInvalidAmount
	}
	currency, err := s.normalizeCurrency(req.Currency)
	if err != nil {
		return nil, err
	}

	if err := s.authz.Authorize(ctx, req.Actor, req.OwnerID, string(req.Kind), authorization.ActionCreate); err != nil {
		return nil, err
	}

	p := policy.FromSource(s.policies)
	if err := s.checkActiveCap(ctx, s.db, p, req.Kind, req.OwnerID); err != nil {
		return nil, err
	}

	now := s.clock.Now()
	res := newResource(req, s.genID.Generate())
	base := res.Base()
	base.OwnerID = req.OwnerID
	base.State = payabledomain.StatePending
	base.Amount = req.Amount.Round(2)
	base.Currency = currency
	base.Version = 1
	base.CreatedAt = now
	base.UpdatedAt = now

	// The link is minted before the row exists so a gateway outage leaves nothing behind.
	link, err := s.mintLink(ctx, res)
	if err != nil {
		return nil, err
	}
	base.GatewayPreferenceID = &link.PreferenceID
	base.CheckoutURL = &link.CheckoutURL
	base.PaymentAttempts = 1

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.checkActiveCap(ctx, tx, p, req.Kind, req.OwnerID); err != nil {
			return err
		}
		return s.repo.Insert(ctx, tx, res)
	})
	if err != nil {
		return nil, err
	}

	s.metrics.RecordPaymentLink(ctx, string(req.Kind), "create")
	s.log.Info("payable created",
		zap.String("kind", string(req.Kind)),
		zap.String("resource_id", base.ID.String()),
		zap.String("owner_id", base.OwnerID.String()),
		zap.String("preference_id", link.PreferenceID),
	)

	view := payabledomain.NewView(res)
	return &view, nil
}

// Get implements domain.Service.
func (s *Service) Get(ctx context.Context, req payabledomain.GetRequest) (*payabledomain.View, error) {
	if req.Kind.Table() == "" {
		return nil, payabledomain.ErrInvalidKind
	}
	if req.ID <= 0 {
		return nil, payabledomain.ErrInvalidID
	}

	res, err := s.repo.FindByID(ctx, s.db, req.Kind, req.ID)
	if err != nil {
		return nil, err
	}
	if res == nil {
		return nil, payabledomain.ErrNotFound
	}
	if err := s.authz.Authorize(ctx, req.Actor, res.Base().OwnerID, string(req.Kind), authorization.ActionView); err != nil {
		return nil, err
	}

	view := payabledomain.NewView(res)
	return &view, nil
}

// Retry implements domain.Service. It mints a fresh payment link without
// touching the resource state.
func (s *Service) Retry(ctx context.Context, req payabledomain.RetryRequest) (*payabledomain.View, error) {
	if req.Kind.Table() == "" {
		return nil, payabledomain.ErrInvalidKind
	}
	if req.ID <= 0 {
		return nil, payabledomain.ErrInvalidID
	}
	kind := string(req.Kind)

	rate, err := s.limiter.AllowRetry(ctx, req.Actor.ID.String())
	if err != nil {
		s.log.Warn("retry rate limit unavailable", zap.Error(err))
	} else if !rate.Allowed {
		s.metrics.RecordRetry(ctx, kind, "rate_limited")
		return nil, payabledomain.ErrRateLimited
	}

	token, locked, err := s.limiter.TryLockRetry(ctx, kind, req.ID.String())
	if err != nil {
		// The version guard below still rejects a concurrent writer.
		s.log.Warn("retry lock unavailable", zap.String("resource_id", req.ID.String()), zap.Error(err))
		locked = true
	}
	if !locked {
		s.metrics.RecordRetry(ctx, kind, "in_progress")
		return nil, payabledomain.ErrRetryInProgress
	}
	defer func() {
		if err := s.limiter.ReleaseRetry(context.WithoutCancel(ctx), kind, req.ID.String(), token); err != nil {
			s.log.Warn("retry lock release failed", zap.String("resource_id", req.ID.String()), zap.Error(err))
		}
	}()

	res, err := s.repo.FindByID(ctx, s.db, req.Kind, req.ID)
	if err != nil {
		return nil, err
	}
	if res == nil {
		return nil, payabledomain.ErrNotFound
	}
	base := res.Base()

	action := authorization.ActionRetry
	if req.Kind == payabledomain.KindOrder {
		// Orders are never retryable; owners still learn why instead of a bare 403.
		action = authorization.ActionView
	}
	if err := s.authz.Authorize(ctx, req.Actor, base.OwnerID, kind, action); err != nil {
		return nil, err
	}

	p := policy.FromSource(s.policies)
	if err := p.Check(res); err != nil {
		s.metrics.RecordRetry(ctx, kind, reasonOf(err))
		return nil, err
	}
	if err := s.checkActiveCap(ctx, s.db, p, req.Kind, base.OwnerID); err != nil {
		s.metrics.RecordRetry(ctx, kind, reasonOf(err))
		return nil, err
	}

	link, err := s.mintLink(ctx, res)
	if err != nil {
		return nil, err
	}

	ok, err := s.repo.RecordAttempt(ctx, s.db, res, payabledomain.AttemptUpdate{
		PreferenceID: link.PreferenceID,
		CheckoutURL:  link.CheckoutURL,
		At:           s.clock.Now(),
	})
	if err != nil {
		return nil, err
	}
	if !ok {
		s.metrics.RecordRetry(ctx, kind, "conflict")
		return nil, payabledomain.ErrConcurrentUpdate
	}

	s.metrics.RecordRetry(ctx, kind, "accepted")
	s.metrics.RecordPaymentLink(ctx, kind, "retry")
	s.log.Info("payment retry issued",
		zap.String("kind", kind),
		zap.String("resource_id", base.ID.String()),
		zap.Int("payment_attempts", base.PaymentAttempts),
		zap.String("preference_id", link.PreferenceID),
	)

	view := payabledomain.NewView(res)
	return &view, nil
}

func (s *Service) mintLink(ctx context.Context, res payabledomain.Resource) (*gatewaydomain.PaymentLink, error) {
	base := res.Base()
	kind := res.Kind()
	link, err := s.gateway.CreatePaymentLink(ctx, gatewaydomain.PaymentLinkRequest{
		ResourceID:        base.ID.String(),
		Title:             res.Describe(),
		Amount:            base.Amount,
		Currency:          base.Currency,
		ExternalReference: payabledomain.ExternalReference(kind, base.ID),
		Metadata: map[string]string{
			"type":        string(kind),
			"resource_id": base.ID.String(),
			"owner_id":    base.OwnerID.String(),
		},
		Callbacks: gatewaydomain.CallbackURLs{
			Success:      s.gatewayCfg.SuccessURL,
			Failure:      s.gatewayCfg.FailureURL,
			Pending:      s.gatewayCfg.PendingURL,
			Notification: s.gatewayCfg.NotificationURL,
		},
	})
	if err != nil {
		s.log.Warn("payment link not created",
			zap.String("kind", string(kind)),
			zap.String("resource_id", base.ID.String()),
			zap.Error(err),
		)
		return nil, err
	}
	return link, nil
}

func (s *Service) checkActiveCap(ctx context.Context, db *gorm.DB, p policy.RetryPolicy, kind payabledomain.Kind, ownerID snowflake.ID) error {
	limit := p.MaxActive(kind)
	if limit <= 0 {
		return nil
	}
	active, err := s.repo.CountByState(ctx, db, kind, ownerID, payabledomain.StateActive)
	if err != nil {
		return err
	}
	if active >= int64(limit) {
		return payabledomain.ErrActiveLimitReached
	}
	return nil
}

func (s *Service) normalizeCurrency(raw string) (string, error) {
	currency := strings.ToUpper(strings.TrimSpace(raw))
	if currency == "" {
		currency = strings.ToUpper(strings.TrimSpace(s.gatewayCfg.Currency))
	}
	if len(currency) != 3 {
		return "", fmt.Errorf("%w: %q", payabledomain.ErrInvalidCurrency, raw)
	}
	return currency, nil
}

func newResource(req payabledomain.CreateRequest, id snowflake.ID) payabledomain.Resource {
	var res payabledomain.Resource
	switch req.Kind {
	case payabledomain.KindSubscription:
		res = &payabledomain.Subscription{Plan: strings.TrimSpace(req.Plan)}
	case payabledomain.KindBanner:
		res = &payabledomain.Banner{Title: strings.TrimSpace(req.Title), TargetURL: strings.TrimSpace(req.TargetURL)}
	default:
		res = &payabledomain.Order{CartReference: strings.TrimSpace(req.CartReference)}
	}
	res.Base().ID = id
	return res
}

func reasonOf(err error) string {
	switch {
	case errors.Is(err, payabledomain.ErrRetryLimitExceeded):
		return "limit_exceeded"
	case errors.Is(err, payabledomain.ErrActiveLimitReached):
		return "active_cap"
	case errors.Is(err, payabledomain.ErrNotRetryable):
		return "not_retryable"
	default:
		return "error"
	}
}
