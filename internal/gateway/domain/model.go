package domain

import (
	"context"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
)

// Status is the payment status reported by the gateway.
type Status string

const (
	StatusApproved    Status = "approved"
	StatusAuthorized  Status = "authorized"
	StatusPending     Status = "pending"
	StatusInProcess   Status = "in_process"
	StatusInMediation Status = "in_mediation"
	StatusRejected    Status = "rejected"
	StatusCancelled   Status = "cancelled"
	StatusRefunded    Status = "refunded"
	StatusChargedBack Status = "charged_back"
)

// StatusClass groups gateway statuses by how reconciliation treats them.
type StatusClass string

const (
	ClassApproved StatusClass = "approved"
	ClassFailed   StatusClass = "failed"
	ClassPending  StatusClass = "pending"
	ClassReversal StatusClass = "reversal"
	ClassUnknown  StatusClass = "unknown"
)

// Class maps the raw status. "authorized" is a reserved-but-uncaptured
// payment and stays pending until capture.
func (s Status) Class() StatusClass {
	switch s {
	case StatusApproved:
		return ClassApproved
	case StatusRejected, StatusCancelled:
		return ClassFailed
	case StatusPending, StatusInProcess, StatusInMediation, StatusAuthorized:
		return ClassPending
	case StatusRefunded, StatusChargedBack:
		return ClassReversal
	default:
		return ClassUnknown
	}
}

type CallbackURLs struct {
	Success      string `validate:"omitempty,url"`
	Failure      string `validate:"omitempty,url"`
	Pending      string `validate:"omitempty,url"`
	Notification string `validate:"omitempty,url"`
}

type PaymentLinkRequest struct {
	ResourceID        string            `validate:"required"`
	Title             string            `validate:"required,max=256"`
	Amount            decimal.Decimal   `validate:"-"`
	Currency          string            `validate:"required,len=3,uppercase"`
	ExternalReference string            `validate:"required,max=256"`
	PayerEmail        string            `validate:"omitempty,email"`
	Metadata          map[string]string `validate:"-"`
	Callbacks         CallbackURLs
}

type PaymentLink struct {
	PreferenceID string
	CheckoutURL  string
}

// Payment is the authoritative payment record fetched from the gateway.
type Payment struct {
	ID                string
	Status            Status
	StatusDetail      string
	ExternalReference string
	Metadata          map[string]any
	Amount            decimal.Decimal
	Currency          string
	ApprovedAt        *time.Time
}

// Client is the port every gateway adapter implements.
type Client interface {
	Provider() string
	CreatePaymentLink(ctx context.Context, req PaymentLinkRequest) (*PaymentLink, error)
	GetPayment(ctx context.Context, paymentID string) (*Payment, error)
}

// NotificationVerifier is implemented by adapters that can authenticate
// webhook deliveries.
type NotificationVerifier interface {
	VerifyNotification(headers http.Header, dataID string) error
}

type Config struct {
	BaseURL       string
	AccessToken   string
	WebhookSecret string
	Timeout       time.Duration
	HTTPClient    *http.Client
}

type Factory interface {
	Provider() string
	NewClient(cfg Config) (Client, error)
}
