// Package policy decides whether a payable resource may mint another payment link.
package policy

import (
	"time"

	"github.com/smallbiznis/marketpay/internal/config"
	"github.com/smallbiznis/marketpay/internal/payable/domain"
)

// RetryPolicy is a snapshot of the configured limits. Its methods are pure.
type RetryPolicy struct {
	cfg config.PolicyConfig
}

func New(cfg config.PolicyConfig) RetryPolicy {
	return RetryPolicy{cfg: cfg}
}

// FromSource captures the current policy snapshot.
func FromSource(src config.PolicySource) RetryPolicy {
	if src == nil {
		return New(config.DefaultPolicyConfig())
	}
	return New(src.Get())
}

// Ceiling returns the maximum number of payment attempts for the kind, zero meaning unbounded.
func (p RetryPolicy) Ceiling(kind domain.Kind) int {
	switch kind {
	case domain.KindBanner:
		return p.cfg.Retry.BannerMaxAttempts
	case domain.KindSubscription:
		return p.cfg.Retry.SubscriptionMaxAttempts
	default:
		return 0
	}
}

// MaxActive returns the admission cap on ACTIVE resources per owner, zero meaning uncapped.
func (p RetryPolicy) MaxActive(kind domain.Kind) int {
	if kind == domain.KindBanner {
		return p.cfg.Banner.MaxActive
	}
	return 0
}

// ExpiresAt returns when a resource activated at "at" lapses, or nil for
// kinds without a period.
func (p RetryPolicy) ExpiresAt(kind domain.Kind, at time.Time) *time.Time {
	var days int
	switch kind {
	case domain.KindSubscription:
		days = p.cfg.Subscription.PeriodDays
	case domain.KindBanner:
		days = p.cfg.Banner.ActiveDays
	}
	if days <= 0 {
		return nil
	}
	expires := at.AddDate(0, 0, days)
	return &expires
}

// Check explains why res cannot be retried, or returns nil.
// The attempt ceiling is checked before state so an exhausted banner is
// always reported as such.
func (p RetryPolicy) Check(res domain.Resource) error {
	kind := res.Kind()
	if kind == domain.KindOrder {
		return domain.ErrNotRetryable
	}
	base := res.Base()
	if ceiling := p.Ceiling(kind); ceiling > 0 && base.PaymentAttempts >= ceiling {
		return domain.ErrRetryLimitExceeded
	}
	switch base.State {
	case domain.StatePending, domain.StateFailed:
		return nil
	default:
		return domain.ErrNotRetryable
	}
}

func (p RetryPolicy) CanRetry(res domain.Resource) bool {
	return p.Check(res) == nil
}

// WithinBudget reports whether an approval may still revive a FAILED resource.
func (p RetryPolicy) WithinBudget(res domain.Resource) bool {
	ceiling := p.Ceiling(res.Kind())
	return ceiling == 0 || res.Base().PaymentAttempts <= ceiling
}
