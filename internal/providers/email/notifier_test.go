package email

import (
	"context"
	"errors"
	"testing"

	"github.com/smallbiznis/marketpay/internal/dbtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recordingProvider struct {
	to       []string
	template string
	err      error
}

func (p *recordingProvider) Send(ctx context.Context, to []string, subject string, htmlBody string) error {
	return p.err
}

func (p *recordingProvider) SendTemplate(ctx context.Context, to []string, templateName string, data map[string]any) error {
	p.to = to
	p.template = templateName
	return p.err
}

func TestNotifierSend(t *testing.T) {
	db := dbtest.Open(t)
	dbtest.SeedUser(t, db, 1, "owner@example.com")

	provider := &recordingProvider{}
	notifier := NewNotifier(db, provider, zap.NewNop())

	ok := notifier.Send(context.Background(), 1, "order_confirmation", map[string]any{"amount": "10.00"})
	require.True(t, ok)
	assert.Equal(t, []string{"owner@example.com"}, provider.to)
	assert.Equal(t, "order_confirmation", provider.template)

	assert.False(t, notifier.Send(context.Background(), 2, "order_confirmation", nil))

	provider.err = errors.New("smtp down")
	assert.False(t, notifier.Send(context.Background(), 1, "order_confirmation", nil))
}

func TestRenderTemplates(t *testing.T) {
	data := map[string]any{
		"amount":      "1500.00",
		"currency":    "ARS",
		"description": "Subscription pro",
		"resource_id": "42",
	}

	for _, name := range []string{"subscription_activated", "subscription_cancelled", "order_confirmation"} {
		subject, body, err := Render(name, data)
		require.NoError(t, err, name)
		assert.NotEmpty(t, subject)
		assert.Contains(t, body, "Subscription pro")
	}

	_, _, err := Render("missing", data)
	assert.Error(t, err)

	subject, _, err := Render("order_confirmation", map[string]any{"subject": "Custom"})
	require.NoError(t, err)
	assert.Equal(t, "Custom", subject)
}

func TestNoOpProviderRendersButDoesNotSend(t *testing.T) {
	p := NewNoOp(zap.NewNop())

	require.NoError(t, p.SendTemplate(context.Background(), []string{"owner@example.com"}, "order_confirmation", map[string]any{"amount": "1.00"}))
	assert.Error(t, p.SendTemplate(context.Background(), []string{"owner@example.com"}, "missing", nil))
	assert.ErrorIs(t, p.Send(context.Background(), nil, "subject", "body"), ErrNoRecipients)
}
