package gateway

import (
	"fmt"

	"github.com/smallbiznis/marketpay/internal/config"
	"github.com/smallbiznis/marketpay/internal/gateway/domain"
	"github.com/smallbiznis/marketpay/internal/gateway/mercadopago"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("gateway",
	fx.Provide(func() *Registry {
		return NewRegistry(
			mercadopago.NewFactory(),
		)
	}),
	fx.Provide(NewClient),
	fx.Provide(NewVerifier),
)

// NewClient builds the configured gateway client.
func NewClient(registry *Registry, cfg config.Config, log *zap.Logger) (domain.Client, error) {
	client, err := registry.NewClient(cfg.Gateway.Provider, domain.Config{
		BaseURL:       cfg.Gateway.BaseURL,
		AccessToken:   cfg.Gateway.AccessToken,
		WebhookSecret: cfg.Gateway.WebhookSecret,
		Timeout:       cfg.Gateway.Timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("gateway %q: %w", cfg.Gateway.Provider, err)
	}
	if cfg.Gateway.WebhookSecret == "" {
		log.Warn("gateway webhook secret not configured, notifications are not authenticated",
			zap.String("provider", client.Provider()),
		)
	}
	return client, nil
}

// NewVerifier exposes the client's notification verifier, if it has one.
func NewVerifier(client domain.Client) domain.NotificationVerifier {
	if verifier, ok := client.(domain.NotificationVerifier); ok {
		return verifier
	}
	return nil
}
