package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	cascadedomain "github.com/smallbiznis/marketpay/internal/cascade/domain"
	"github.com/smallbiznis/marketpay/internal/clock"
	"github.com/smallbiznis/marketpay/internal/config"
	gatewaydomain "github.com/smallbiznis/marketpay/internal/gateway/domain"
	obslogger "github.com/smallbiznis/marketpay/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/marketpay/internal/observability/metrics"
	payabledomain "github.com/smallbiznis/marketpay/internal/payable/domain"
	"github.com/smallbiznis/marketpay/internal/payable/policy"
	reconciliationdomain "github.com/smallbiznis/marketpay/internal/reconciliation/domain"
	"github.com/smallbiznis/marketpay/pkg/db"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const defaultGatewayTimeout = 5 * time.Second

var tracer = otel.Tracer("marketpay/reconciliation")

type Engine struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock

	ledger   reconciliationdomain.LedgerRepository
	payables payabledomain.Repository
	gateway  gatewaydomain.Client
	policies config.PolicySource
	cascade  cascadedomain.Service
	metrics  *obsmetrics.Metrics

	gatewayTimeout time.Duration
	maxTxAttempts  int
}

type EngineParam struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Clock    clock.Clock
	Ledger   reconciliationdomain.LedgerRepository
	Payables payabledomain.Repository
	Gateway  gatewaydomain.Client
	Policy   config.PolicySource
	Cascade  cascadedomain.Service
	Metrics  *obsmetrics.Metrics `optional:"true"`
	Config   config.Config
}

func NewEngine(p EngineParam) reconciliationdomain.Engine {
	timeout := p.Config.Gateway.Timeout
	if timeout <= 0 {
		timeout = defaultGatewayTimeout
	}
	return &Engine{
		db:    p.DB,
		log:   p.Log.Named("reconciliation.engine"),
		genID: p.GenID,
		clock: p.Clock,

		ledger:   p.Ledger,
		payables: p.Payables,
		gateway:  p.Gateway,
		policies: p.Policy,
		cascade:  p.Cascade,
		metrics:  p.Metrics,

		gatewayTimeout: timeout,
		maxTxAttempts:  p.Config.Reconcile.MaxTxAttempts,
	}
}

// Reconcile implements domain.Engine. Every non-error result is safe to
// acknowledge; an error means nothing was committed and the delivery may be
// retried.
func (e *Engine) Reconcile(ctx context.Context, n reconciliationdomain.Notification) (result reconciliationdomain.Result, err error) {
	started := time.Now()
	paymentID := strings.TrimSpace(n.PaymentID)

	ctx, span := tracer.Start(ctx, "reconciliation.reconcile")
	span.SetAttributes(attribute.String("gateway.payment_id", paymentID))
	defer func() {
		span.SetAttributes(
			attribute.String("reconciliation.outcome", string(result.Outcome)),
			attribute.String("reconciliation.reason", result.Reason),
		)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
		e.observe(ctx, result, err, time.Since(started))
	}()

	if paymentID == "" {
		return reconciliationdomain.Result{}, reconciliationdomain.ErrMissingPaymentID
	}
	result.PaymentID = paymentID

	notificationType := strings.ToLower(strings.TrimSpace(n.Type))
	if notificationType != reconciliationdomain.NotificationTypePayment {
		e.log.Debug("ignoring non-payment notification",
			zap.String("type", n.Type),
			zap.String("payment_id", paymentID),
		)
		result.Outcome = reconciliationdomain.OutcomeIgnored
		result.Reason = reconciliationdomain.ReasonUnsupportedType
		return result, nil
	}

	// Duplicate deliveries are answered from the ledger. Only payments that
	// activated a resource go back to the gateway, to surface a later reversal.
	entry, err := e.ledger.Find(ctx, e.db, paymentID)
	if err != nil {
		return result, err
	}
	if entry != nil {
		if entry.Activated() {
			e.checkReversal(ctx, *entry)
		}
		return entry.Result(), nil
	}

	payment, err := e.fetchPayment(ctx, paymentID)
	if err != nil {
		if errors.Is(err, gatewaydomain.ErrPaymentNotFound) {
			e.log.Warn("payment not found at gateway", zap.String("payment_id", paymentID))
			result.Outcome = reconciliationdomain.OutcomeIgnored
			result.Reason = reconciliationdomain.ReasonPaymentNotFound
			return result, nil
		}
		e.log.Warn("gateway unavailable, deferring notification",
			zap.String("payment_id", paymentID),
			zap.Error(err),
		)
		result.Outcome = reconciliationdomain.OutcomeDeferred
		result.Reason = reconciliationdomain.ReasonGatewayUnavailable
		return result, nil
	}
	result.GatewayStatus = string(payment.Status)

	var event payabledomain.Event
	switch payment.Status.Class() {
	case gatewaydomain.ClassApproved:
		event = payabledomain.EventApprove
	case gatewaydomain.ClassFailed:
		event = payabledomain.EventReject
	case gatewaydomain.ClassPending:
		result.Outcome = reconciliationdomain.OutcomeDeferred
		result.Reason = reconciliationdomain.ReasonStatusPending
		return result, nil
	case gatewaydomain.ClassReversal:
		e.log.Warn("payment reversed after settlement, no transition applied",
			zap.String("payment_id", paymentID),
			zap.String("status", string(payment.Status)),
			zap.String("external_reference", payment.ExternalReference),
		)
		result.Outcome = reconciliationdomain.OutcomeIgnored
		result.Reason = reconciliationdomain.ReasonStatusReversal
		return result, nil
	default:
		e.log.Warn("unrecognized payment status",
			zap.String("payment_id", paymentID),
			zap.String("status", string(payment.Status)),
		)
		result.Outcome = reconciliationdomain.OutcomeIgnored
		result.Reason = reconciliationdomain.ReasonStatusUnknown
		return result, nil
	}

	kind, resourceID, err := payabledomain.ParseExternalReference(payment.ExternalReference, payment.Metadata)
	if err != nil {
		e.log.Warn("cannot resolve payment to a resource",
			zap.String("payment_id", paymentID),
			zap.String("external_reference", payment.ExternalReference),
			zap.Error(err),
		)
		result.Outcome = reconciliationdomain.OutcomeIgnored
		result.Reason = reconciliationdomain.ReasonUnresolvable
		return result, nil
	}
	result.Kind = kind
	result.ResourceID = resourceID

	var jobs []cascadedomain.Job
	txErr := db.RunInTx(ctx, e.db, e.maxTxAttempts, func(tx *gorm.DB) error {
		var err error
		jobs = nil
		result, jobs, err = e.apply(ctx, tx, payment, event, kind, resourceID)
		return err
	}, e.onTxRetry(kind))
	if errors.Is(txErr, db.ErrTxConflict) {
		// A concurrent delivery of the same payment may have won every round.
		if entry, err := e.ledger.Find(ctx, e.db, paymentID); err == nil && entry != nil {
			return entry.Result(), nil
		}
	}
	if txErr != nil {
		return result, txErr
	}

	e.cascade.Dispatch(ctx, jobs)
	return result, nil
}

// checkReversal logs a refund or chargeback reported for a payment that
// already activated a resource. The resource is left as it is.
func (e *Engine) checkReversal(ctx context.Context, entry reconciliationdomain.LedgerEntry) {
	payment, err := e.fetchPayment(ctx, entry.GatewayPaymentID)
	if err != nil {
		e.log.Debug("reversal check skipped",
			zap.String("payment_id", entry.GatewayPaymentID),
			zap.Error(err),
		)
		return
	}
	if payment.Status.Class() != gatewaydomain.ClassReversal {
		return
	}
	obslogger.WithPayment(obslogger.WithContext(ctx, e.log), entry.GatewayPaymentID, entry.ResourceKind, entry.ResourceID.String()).
		Warn("payment reversed after activation, no transition applied",
			zap.String("status", string(payment.Status)),
			zap.String("state", entry.ToState),
		)
	e.metrics.RecordReversal(ctx, entry.ResourceKind, string(payment.Status))
}

// apply runs inside one transaction attempt.
func (e *Engine) apply(
	ctx context.Context,
	tx *gorm.DB,
	payment *gatewaydomain.Payment,
	event payabledomain.Event,
	kind payabledomain.Kind,
	resourceID snowflake.ID,
) (reconciliationdomain.Result, []cascadedomain.Job, error) {
	result := reconciliationdomain.Result{
		PaymentID:     payment.ID,
		Kind:          kind,
		ResourceID:    resourceID,
		GatewayStatus: string(payment.Status),
	}

	entry, err := e.ledger.Find(ctx, tx, payment.ID)
	if err != nil {
		return result, nil, err
	}
	if entry != nil {
		return entry.Result(), nil, nil
	}

	log := obslogger.WithPayment(obslogger.WithContext(ctx, e.log), payment.ID, string(kind), resourceID.String())

	res, err := e.payables.FindForUpdate(ctx, tx, kind, resourceID)
	if err != nil {
		return result, nil, err
	}
	if res == nil {
		log.Warn("payment references unknown resource")
		result.Outcome = reconciliationdomain.OutcomeIgnored
		result.Reason = reconciliationdomain.ReasonResourceNotFound
		return result, nil, nil
	}

	base := res.Base()
	result.From = base.State
	result.To = base.State

	now := e.clock.Now()
	p := policy.FromSource(e.policies)
	t, allowed := payabledomain.Plan(res, event, now)
	reason := reconciliationdomain.ReasonTransitionNotAllowed
	if allowed && t.From == payabledomain.StateFailed && event == payabledomain.EventApprove && !p.WithinBudget(res) {
		allowed = false
		reason = reconciliationdomain.ReasonRetryBudgetExhausted
	}

	if !allowed {
		log.Warn("payment status does not apply to resource state",
			zap.String("state", string(base.State)),
			zap.String("status", string(payment.Status)),
			zap.String("reason", reason),
		)
		result.Outcome = reconciliationdomain.OutcomeRejected
		result.Reason = reason
		if err := e.record(ctx, tx, result, now); err != nil {
			return result, nil, err
		}
		return result, nil, nil
	}

	t.GatewayPaymentID = payment.ID
	if t.To == payabledomain.StateActive {
		t.ExpiresAt = p.ExpiresAt(kind, now)
	}
	applied, err := e.payables.ApplyTransition(ctx, tx, res, t)
	if err != nil {
		return result, nil, err
	}
	if !applied {
		return result, nil, db.ErrTxConflict
	}

	result.Outcome = reconciliationdomain.OutcomeApplied
	result.To = t.To
	if err := e.record(ctx, tx, result, now); err != nil {
		return result, nil, err
	}

	jobs, err := e.cascade.Enqueue(ctx, tx, res, t)
	if err != nil {
		return result, nil, err
	}

	log.Info("payment reconciled",
		zap.String("from_state", string(t.From)),
		zap.String("to_state", string(t.To)),
		zap.Int("cascade_jobs", len(jobs)),
	)
	return result, jobs, nil
}

// record writes the ledger row. Losing the insert means a concurrent delivery
// committed first, so the whole attempt restarts and resolves as a duplicate.
func (e *Engine) record(ctx context.Context, tx *gorm.DB, result reconciliationdomain.Result, at time.Time) error {
	inserted, err := e.ledger.Insert(ctx, tx, &reconciliationdomain.LedgerEntry{
		ID:               e.genID.Generate(),
		GatewayPaymentID: result.PaymentID,
		ResourceKind:     string(result.Kind),
		ResourceID:       result.ResourceID,
		GatewayStatus:    result.GatewayStatus,
		Outcome:          result.Outcome,
		FromState:        string(result.From),
		ToState:          string(result.To),
		ProcessedAt:      at,
	})
	if err != nil {
		return err
	}
	if !inserted {
		return db.ErrTxConflict
	}
	return nil
}

func (e *Engine) fetchPayment(ctx context.Context, paymentID string) (*gatewaydomain.Payment, error) {
	ctx, cancel := context.WithTimeout(ctx, e.gatewayTimeout)
	defer cancel()

	ctx, span := tracer.Start(ctx, "gateway.get_payment")
	defer span.End()
	span.SetAttributes(attribute.String("gateway.provider", e.gateway.Provider()))

	payment, err := e.gateway.GetPayment(ctx, paymentID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if errors.Is(err, gatewaydomain.ErrPaymentNotFound) {
			return nil, err
		}
		if !errors.Is(err, gatewaydomain.ErrGatewayUnavailable) {
			err = errors.Join(gatewaydomain.ErrGatewayUnavailable, err)
		}
		return nil, err
	}
	if payment.ID == "" {
		payment.ID = paymentID
	}
	return payment, nil
}

func (e *Engine) observe(ctx context.Context, result reconciliationdomain.Result, err error, elapsed time.Duration) {
	outcome := string(result.Outcome)
	reason := result.Reason
	if err != nil {
		outcome = "error"
		reason = obsmetrics.ClassifySchedulerJobReason(err)
	}
	e.metrics.RecordWebhook(ctx, e.gateway.Provider(), outcome, reason)
	obsmetrics.Scheduler().ObserveReconcile(outcome, elapsed)
	if err == nil && result.Outcome == reconciliationdomain.OutcomeApplied && !result.Duplicate {
		e.metrics.RecordTransition(ctx, string(result.Kind), string(result.From), string(result.To))
	}
}

func (e *Engine) onTxRetry(kind payabledomain.Kind) func(int, error) {
	return func(attempt int, err error) {
		obsmetrics.Scheduler().IncTxConflict(obsmetrics.ConflictSourceWebhook, string(kind))
		e.log.Debug("reconciliation transaction conflict, retrying",
			zap.String("kind", string(kind)),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
	}
}
