package policy

import (
	"testing"
	"time"

	"github.com/smallbiznis/marketpay/internal/config"
	"github.com/smallbiznis/marketpay/internal/payable/domain"
	"github.com/stretchr/testify/assert"
)

func banner(state domain.State, attempts int) *domain.Banner {
	return &domain.Banner{Payable: domain.Payable{State: state, PaymentAttempts: attempts}}
}

func subscription(state domain.State, attempts int) *domain.Subscription {
	return &domain.Subscription{Payable: domain.Payable{State: state, PaymentAttempts: attempts}}
}

func TestCheck(t *testing.T) {
	p := New(config.DefaultPolicyConfig())

	cases := []struct {
		name string
		res  domain.Resource
		want error
	}{
		{name: "banner pending", res: banner(domain.StatePending, 1), want: nil},
		{name: "banner failed under ceiling", res: banner(domain.StateFailed, 4), want: nil},
		{name: "banner at ceiling", res: banner(domain.StateFailed, 5), want: domain.ErrRetryLimitExceeded},
		{name: "banner at ceiling while active", res: banner(domain.StateActive, 5), want: domain.ErrRetryLimitExceeded},
		{name: "banner active", res: banner(domain.StateActive, 1), want: domain.ErrNotRetryable},
		{name: "subscription unbounded", res: subscription(domain.StateFailed, 250), want: nil},
		{name: "subscription cancelled", res: subscription(domain.StateCancelled, 1), want: domain.ErrNotRetryable},
		{name: "order never", res: &domain.Order{Payable: domain.Payable{State: domain.StateFailed, PaymentAttempts: 1}}, want: domain.ErrNotRetryable},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, p.Check(tc.res))
			assert.Equal(t, tc.want == nil, p.CanRetry(tc.res))
		})
	}
}

func TestConfiguredSubscriptionCeiling(t *testing.T) {
	cfg := config.DefaultPolicyConfig()
	cfg.Retry.SubscriptionMaxAttempts = 3
	p := New(cfg)

	assert.True(t, p.CanRetry(subscription(domain.StateFailed, 2)))
	assert.Equal(t, domain.ErrRetryLimitExceeded, p.Check(subscription(domain.StateFailed, 3)))
	assert.True(t, p.WithinBudget(subscription(domain.StateFailed, 3)))
	assert.False(t, p.WithinBudget(subscription(domain.StateFailed, 4)))
}

func TestMaxActive(t *testing.T) {
	p := FromSource(config.NewStaticPolicy(config.DefaultPolicyConfig()))
	assert.Equal(t, 3, p.MaxActive(domain.KindBanner))
	assert.Equal(t, 0, p.MaxActive(domain.KindSubscription))
	assert.Equal(t, 0, p.MaxActive(domain.KindOrder))
}

func TestExpiresAt(t *testing.T) {
	p := New(config.DefaultPolicyConfig())
	at := time.Date(2026, 1, 31, 10, 0, 0, 0, time.UTC)

	expires := p.ExpiresAt(domain.KindSubscription, at)
	if assert.NotNil(t, expires) {
		assert.Equal(t, time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC), *expires)
	}
	assert.NotNil(t, p.ExpiresAt(domain.KindBanner, at))
	assert.Nil(t, p.ExpiresAt(domain.KindOrder, at))
}
