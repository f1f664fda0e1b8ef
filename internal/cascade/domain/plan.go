package domain

import (
	payabledomain "github.com/smallbiznis/marketpay/internal/payable/domain"
)

// Spec is a job before it has been assigned an id.
type Spec struct {
	Effect   Effect
	Template string
}

// Plan lists the downstream effects of a transition. Banners have none.
func Plan(kind payabledomain.Kind, t payabledomain.Transition) []Spec {
	switch kind {
	case payabledomain.KindSubscription:
		switch t.To {
		case payabledomain.StateActive:
			return []Spec{
				{Effect: EffectActivateShops},
				{Effect: EffectNotify, Template: TemplateSubscriptionActivated},
			}
		case payabledomain.StateCancelled:
			return []Spec{
				{Effect: EffectSuspendShops},
				{Effect: EffectNotify, Template: TemplateSubscriptionCancelled},
			}
		case payabledomain.StateFailed, payabledomain.StateExpired:
			return []Spec{{Effect: EffectSuspendShops}}
		}
	case payabledomain.KindOrder:
		if t.To == payabledomain.StatePaid {
			return []Spec{{Effect: EffectNotify, Template: TemplateOrderConfirmation}}
		}
	}
	return nil
}
