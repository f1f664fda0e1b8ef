package domain

import (
	"testing"

	payabledomain "github.com/smallbiznis/marketpay/internal/payable/domain"
	"github.com/stretchr/testify/assert"
)

func TestPlan(t *testing.T) {
	tests := []struct {
		name string
		kind payabledomain.Kind
		to   payabledomain.State
		want []Spec
	}{
		{
			name: "subscription activated",
			kind: payabledomain.KindSubscription,
			to:   payabledomain.StateActive,
			want: []Spec{{Effect: EffectActivateShops}, {Effect: EffectNotify, Template: TemplateSubscriptionActivated}},
		},
		{
			name: "subscription failed",
			kind: payabledomain.KindSubscription,
			to:   payabledomain.StateFailed,
			want: []Spec{{Effect: EffectSuspendShops}},
		},
		{
			name: "subscription cancelled",
			kind: payabledomain.KindSubscription,
			to:   payabledomain.StateCancelled,
			want: []Spec{{Effect: EffectSuspendShops}, {Effect: EffectNotify, Template: TemplateSubscriptionCancelled}},
		},
		{
			name: "subscription expired",
			kind: payabledomain.KindSubscription,
			to:   payabledomain.StateExpired,
			want: []Spec{{Effect: EffectSuspendShops}},
		},
		{
			name: "order paid",
			kind: payabledomain.KindOrder,
			to:   payabledomain.StatePaid,
			want: []Spec{{Effect: EffectNotify, Template: TemplateOrderConfirmation}},
		},
		{name: "order failed", kind: payabledomain.KindOrder, to: payabledomain.StateFailed},
		{name: "banner activated", kind: payabledomain.KindBanner, to: payabledomain.StateActive},
		{name: "banner expired", kind: payabledomain.KindBanner, to: payabledomain.StateExpired},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Plan(tt.kind, payabledomain.Transition{Kind: tt.kind, To: tt.to})
			assert.Equal(t, tt.want, got)
		})
	}
}
