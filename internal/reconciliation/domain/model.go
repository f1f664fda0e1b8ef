package domain

import (
	"context"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	payabledomain "github.com/smallbiznis/marketpay/internal/payable/domain"
	"gorm.io/gorm"
)

// Outcome is what a notification did to the resource it refers to.
type Outcome string

const (
	OutcomeApplied  Outcome = "applied"
	OutcomeIgnored  Outcome = "ignored"
	OutcomeDeferred Outcome = "deferred"
	// OutcomeRejected is a terminal gateway status with no allowed transition
	// from the resource's current state. It is recorded but changes nothing.
	OutcomeRejected Outcome = "rejected"
)

const (
	ReasonDuplicate            = "duplicate"
	ReasonUnsupportedType      = "unsupported_type"
	ReasonPaymentNotFound      = "payment_not_found"
	ReasonGatewayUnavailable   = "gateway_unavailable"
	ReasonStatusPending        = "status_pending"
	ReasonStatusReversal       = "status_reversal"
	ReasonStatusUnknown        = "status_unknown"
	ReasonUnresolvable         = "unresolvable_reference"
	ReasonResourceNotFound     = "resource_not_found"
	ReasonTransitionNotAllowed = "transition_not_allowed"
	ReasonRetryBudgetExhausted = "retry_budget_exhausted"
)

const NotificationTypePayment = "payment"

// Notification is the untrusted part of a webhook delivery.
type Notification struct {
	Type      string
	Action    string
	PaymentID string
}

type Result struct {
	Outcome       Outcome
	Reason        string
	Duplicate     bool
	PaymentID     string
	Kind          payabledomain.Kind
	ResourceID    snowflake.ID
	GatewayStatus string
	From          payabledomain.State
	To            payabledomain.State
}

// LedgerEntry records the single effect a gateway payment had.
type LedgerEntry struct {
	ID               snowflake.ID `gorm:"column:id;primaryKey;autoIncrement:false"`
	GatewayPaymentID string       `gorm:"column:gateway_payment_id;type:text;not null"`
	ResourceKind     string       `gorm:"column:resource_kind;type:text;not null"`
	ResourceID       snowflake.ID `gorm:"column:resource_id;not null"`
	GatewayStatus    string       `gorm:"column:gateway_status;type:text;not null"`
	Outcome          Outcome      `gorm:"column:outcome;type:text;not null"`
	FromState        string       `gorm:"column:from_state;type:text;not null"`
	ToState          string       `gorm:"column:to_state;type:text;not null"`
	ProcessedAt      time.Time    `gorm:"column:processed_at;not null"`
}

func (LedgerEntry) TableName() string { return "payment_ledger" }

// Activated reports whether the payment moved its resource into the paid state.
func (e LedgerEntry) Activated() bool {
	if e.Outcome != OutcomeApplied {
		return false
	}
	to := payabledomain.State(e.ToState)
	return to == payabledomain.StateActive || to == payabledomain.StatePaid
}

// Result rebuilds the outcome a previous delivery produced.
func (e LedgerEntry) Result() Result {
	return Result{
		Outcome:       e.Outcome,
		Reason:        ReasonDuplicate,
		Duplicate:     true,
		PaymentID:     e.GatewayPaymentID,
		Kind:          payabledomain.Kind(e.ResourceKind),
		ResourceID:    e.ResourceID,
		GatewayStatus: e.GatewayStatus,
		From:          payabledomain.State(e.FromState),
		To:            payabledomain.State(e.ToState),
	}
}

type LedgerRepository interface {
	Find(ctx context.Context, db *gorm.DB, gatewayPaymentID string) (*LedgerEntry, error)
	// Insert reports false when an entry for the payment already exists.
	Insert(ctx context.Context, db *gorm.DB, entry *LedgerEntry) (bool, error)
}

type Engine interface {
	Reconcile(ctx context.Context, n Notification) (Result, error)
}

// Ingestor authenticates and parses raw webhook deliveries.
type Ingestor interface {
	Ingest(ctx context.Context, payload []byte, query map[string][]string, headers http.Header) (Result, error)
}
