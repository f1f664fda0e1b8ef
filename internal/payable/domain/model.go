package domain

import (
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

// Payable holds the payment-gated fields shared by every resource kind.
type Payable struct {
	ID                  snowflake.ID    `gorm:"column:id;primaryKey;autoIncrement:false"`
	OwnerID             snowflake.ID    `gorm:"column:owner_id;not null"`
	State               State           `gorm:"column:state;type:text;not null"`
	Amount              decimal.Decimal `gorm:"column:amount;type:numeric(18,2);not null"`
	Currency            string          `gorm:"column:currency;type:text;not null"`
	GatewayPreferenceID *string         `gorm:"column:gateway_preference_id;type:text"`
	GatewayPaymentID    *string         `gorm:"column:gateway_payment_id;type:text"`
	CheckoutURL         *string         `gorm:"column:checkout_url;type:text"`
	PaymentAttempts     int             `gorm:"column:payment_attempts;not null"`
	ActivatedAt         *time.Time      `gorm:"column:activated_at"`
	FailedAt            *time.Time      `gorm:"column:failed_at"`
	CancelledAt         *time.Time      `gorm:"column:cancelled_at"`
	ExpiresAt           *time.Time      `gorm:"column:expires_at"`
	Version             int64           `gorm:"column:version;not null"`
	CreatedAt           time.Time       `gorm:"column:created_at;not null"`
	UpdatedAt           time.Time       `gorm:"column:updated_at;not null"`
}

// Resource is implemented by every payable kind. The engine only relies on
// this surface, so adding a kind means adding a variant and a transition table.
type Resource interface {
	Kind() Kind
	Base() *Payable
	Describe() string
}

type Subscription struct {
	Payable
	Plan string `gorm:"column:plan;type:text"`
}

func (Subscription) TableName() string   { return KindSubscription.Table() }
func (*Subscription) Kind() Kind         { return KindSubscription }
func (s *Subscription) Base() *Payable   { return &s.Payable }
func (s *Subscription) Describe() string { return describe("Subscription", s.Plan) }

type Banner struct {
	Payable
	Title     string `gorm:"column:title;type:text"`
	TargetURL string `gorm:"column:target_url;type:text"`
}

func (Banner) TableName() string   { return KindBanner.Table() }
func (*Banner) Kind() Kind         { return KindBanner }
func (b *Banner) Base() *Payable   { return &b.Payable }
func (b *Banner) Describe() string { return describe("Banner", b.Title) }

type Order struct {
	Payable
	CartReference string `gorm:"column:cart_reference;type:text"`
}

func (Order) TableName() string   { return KindOrder.Table() }
func (*Order) Kind() Kind         { return KindOrder }
func (o *Order) Base() *Payable   { return &o.Payable }
func (o *Order) Describe() string { return describe("Order", o.CartReference) }

// NewResource returns an empty resource of the given kind, ready to be scanned into.
func NewResource(kind Kind) (Resource, error) {
	switch kind {
	case KindSubscription:
		return &Subscription{}, nil
	case KindBanner:
		return &Banner{}, nil
	case KindOrder:
		return &Order{}, nil
	default:
		return nil, ErrInvalidKind
	}
}

// Plan validates an event against the resource's transition table.
func Plan(res Resource, event Event, at time.Time) (Transition, bool) {
	base := res.Base()
	to, ok := NextState(res.Kind(), base.State, event)
	if !ok {
		return Transition{}, false
	}
	return Transition{
		Kind:  res.Kind(),
		Event: event,
		From:  base.State,
		To:    to,
		At:    at,
	}, true
}

// Apply mirrors a committed transition onto the in-memory resource.
func Apply(res Resource, t Transition) {
	base := res.Base()
	base.State = t.To
	base.Version++
	base.UpdatedAt = t.At
	if t.GatewayPaymentID != "" {
		id := t.GatewayPaymentID
		base.GatewayPaymentID = &id
	}
	at := t.At
	switch t.To {
	case StateActive, StatePaid:
		if base.ActivatedAt == nil {
			base.ActivatedAt = &at
		}
	case StateFailed:
		if base.FailedAt == nil {
			base.FailedAt = &at
		}
	case StateCancelled:
		base.CancelledAt = &at
	}
	if t.ExpiresAt != nil {
		expires := *t.ExpiresAt
		base.ExpiresAt = &expires
	}
}

// View is the read model returned to API callers.
type View struct {
	ID                  string          `json:"id"`
	Kind                Kind            `json:"kind"`
	OwnerID             string          `json:"owner_id"`
	State               State           `json:"state"`
	Amount              decimal.Decimal `json:"amount"`
	Currency            string          `json:"currency"`
	PaymentAttempts     int             `json:"payment_attempts"`
	GatewayPreferenceID string          `json:"gateway_preference_id,omitempty"`
	GatewayPaymentID    string          `json:"gateway_payment_id,omitempty"`
	CheckoutURL         string          `json:"checkout_url,omitempty"`
	ActivatedAt         *time.Time      `json:"activated_at,omitempty"`
	FailedAt            *time.Time      `json:"failed_at,omitempty"`
	CancelledAt         *time.Time      `json:"cancelled_at,omitempty"`
	ExpiresAt           *time.Time      `json:"expires_at,omitempty"`
	CreatedAt           time.Time       `json:"created_at"`
	UpdatedAt           time.Time       `json:"updated_at"`
}

func NewView(res Resource) View {
	base := res.Base()
	return View{
		ID:                  base.ID.String(),
		Kind:                res.Kind(),
		OwnerID:             base.OwnerID.String(),
		State:               base.State,
		Amount:              base.Amount,
		Currency:            base.Currency,
		PaymentAttempts:     base.PaymentAttempts,
		GatewayPreferenceID: deref(base.GatewayPreferenceID),
		GatewayPaymentID:    deref(base.GatewayPaymentID),
		CheckoutURL:         deref(base.CheckoutURL),
		ActivatedAt:         base.ActivatedAt,
		FailedAt:            base.FailedAt,
		CancelledAt:         base.CancelledAt,
		ExpiresAt:           base.ExpiresAt,
		CreatedAt:           base.CreatedAt,
		UpdatedAt:           base.UpdatedAt,
	}
}

func describe(kind, label string) string {
	label = strings.TrimSpace(label)
	if label == "" {
		return kind
	}
	return kind + " " + label
}

func deref(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}
