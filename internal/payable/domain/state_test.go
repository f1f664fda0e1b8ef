package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNextStatePerKind(t *testing.T) {
	cases := []struct {
		name  string
		kind  Kind
		from  State
		event Event
		to    State
		ok    bool
	}{
		{name: "banner approve", kind: KindBanner, from: StatePending, event: EventApprove, to: StateActive, ok: true},
		{name: "banner reject", kind: KindBanner, from: StatePending, event: EventReject, to: StateFailed, ok: true},
		{name: "banner recovers after failure", kind: KindBanner, from: StateFailed, event: EventApprove, to: StateActive, ok: true},
		{name: "banner cannot cancel", kind: KindBanner, from: StateActive, event: EventCancel, ok: false},
		{name: "late rejection keeps active", kind: KindBanner, from: StateActive, event: EventReject, ok: false},
		{name: "order paid", kind: KindOrder, from: StatePending, event: EventApprove, to: StatePaid, ok: true},
		{name: "order failed is terminal", kind: KindOrder, from: StateFailed, event: EventApprove, ok: false},
		{name: "order cannot expire", kind: KindOrder, from: StatePaid, event: EventExpire, ok: false},
		{name: "subscription cancel pending", kind: KindSubscription, from: StatePending, event: EventCancel, to: StateCancelled, ok: true},
		{name: "subscription cancel active", kind: KindSubscription, from: StateActive, event: EventCancel, to: StateCancelled, ok: true},
		{name: "subscription expire", kind: KindSubscription, from: StateActive, event: EventExpire, to: StateExpired, ok: true},
		{name: "subscription cancelled terminal", kind: KindSubscription, from: StateCancelled, event: EventApprove, ok: false},
		{name: "unknown kind", kind: Kind("coupon"), from: StatePending, event: EventApprove, ok: false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			to, ok := NextState(tc.kind, tc.from, tc.event)
			assert.Equal(t, tc.ok, ok)
			if tc.ok {
				assert.Equal(t, tc.to, to)
			}
		})
	}
}

func TestIsTerminal(t *testing.T) {
	assert.True(t, IsTerminal(KindOrder, StatePaid))
	assert.True(t, IsTerminal(KindOrder, StateFailed))
	assert.False(t, IsTerminal(KindBanner, StateFailed))
	assert.True(t, IsTerminal(KindSubscription, StateExpired))
}

func TestPlanAndApply(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	banner := &Banner{Payable: Payable{State: StatePending, PaymentAttempts: 1, Version: 1}}

	tr, ok := Plan(banner, EventApprove, now)
	assert.True(t, ok)
	assert.Equal(t, StatePending, tr.From)
	assert.Equal(t, StateActive, tr.To)

	tr.GatewayPaymentID = "1234"
	Apply(banner, tr)

	assert.Equal(t, StateActive, banner.State)
	assert.Equal(t, int64(2), banner.Version)
	assert.Equal(t, "1234", *banner.GatewayPaymentID)
	assert.Equal(t, now, *banner.ActivatedAt)
	assert.Equal(t, 1, banner.PaymentAttempts)

	_, ok = Plan(banner, EventCancel, now)
	assert.False(t, ok)
}
