package domain

import "errors"

var (
	ErrGatewayUnavailable = errors.New("gateway_unavailable")
	ErrGatewayRejected    = errors.New("gateway_rejected_request")
	ErrPaymentNotFound    = errors.New("payment_not_found")
	ErrInvalidRequest     = errors.New("invalid_payment_link_request")
	ErrInvalidConfig      = errors.New("invalid_gateway_config")
	ErrProviderNotFound   = errors.New("gateway_provider_not_found")
	ErrInvalidSignature   = errors.New("invalid_signature")
)
