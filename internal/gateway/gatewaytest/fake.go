// Package gatewaytest provides an in-memory gateway for tests.
package gatewaytest

import (
	"context"
	"fmt"
	"sync"

	"github.com/smallbiznis/marketpay/internal/gateway/domain"
)

// Fake mints sequential preference ids and serves payments registered with
// SetPayment.
type Fake struct {
	mu sync.Mutex

	links        []domain.PaymentLinkRequest
	payments     map[string]domain.Payment
	paymentCalls int

	LinkErr    error
	PaymentErr error
}

func NewFake() *Fake {
	return &Fake{payments: map[string]domain.Payment{}}
}

func (f *Fake) Provider() string {
	return "fake"
}

func (f *Fake) CreatePaymentLink(ctx context.Context, req domain.PaymentLinkRequest) (*domain.PaymentLink, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.LinkErr != nil {
		return nil, f.LinkErr
	}
	f.links = append(f.links, req)
	id := fmt.Sprintf("pref-%d", len(f.links))
	return &domain.PaymentLink{
		PreferenceID: id,
		CheckoutURL:  "https://checkout.test/" + id,
	}, nil
}

func (f *Fake) GetPayment(ctx context.Context, paymentID string) (*domain.Payment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.paymentCalls++
	if f.PaymentErr != nil {
		return nil, f.PaymentErr
	}
	payment, ok := f.payments[paymentID]
	if !ok {
		return nil, domain.ErrPaymentNotFound
	}
	return &payment, nil
}

// SetPayment registers or replaces the gateway's record for a payment.
func (f *Fake) SetPayment(payment domain.Payment) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.payments[payment.ID] = payment
}

func (f *Fake) Links() []domain.PaymentLinkRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.PaymentLinkRequest(nil), f.links...)
}

func (f *Fake) PaymentCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.paymentCalls
}

var _ domain.Client = (*Fake)(nil)
