package gateway

import (
	"testing"

	"github.com/smallbiznis/marketpay/internal/gateway/domain"
	"github.com/smallbiznis/marketpay/internal/gateway/mercadopago"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry(t *testing.T) {
	registry := NewRegistry(mercadopago.NewFactory(), nil)

	assert.True(t, registry.ProviderExists("MercadoPago"))
	assert.False(t, registry.ProviderExists("stripe"))

	client, err := registry.NewClient(" mercadopago ", domain.Config{AccessToken: "token"})
	require.NoError(t, err)
	assert.Equal(t, "mercadopago", client.Provider())
	assert.NotNil(t, NewVerifier(client))

	_, err = registry.NewClient("stripe", domain.Config{AccessToken: "token"})
	assert.ErrorIs(t, err, domain.ErrProviderNotFound)

	var empty *Registry
	assert.False(t, empty.ProviderExists("mercadopago"))
}
