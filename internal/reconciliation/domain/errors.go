package domain

import "errors"

var (
	ErrMalformedNotification = errors.New("malformed_notification")
	ErrMissingPaymentID      = errors.New("missing_payment_id")
)
