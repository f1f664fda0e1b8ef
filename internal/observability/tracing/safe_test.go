package tracing

import (
	"errors"
	"testing"

	"go.opentelemetry.io/otel/attribute"
)

func TestSafeAttributesDropsSensitiveKeys(t *testing.T) {
	attrs := SafeAttributes(
		attribute.String("http.route", "/webhooks/payments"),
		attribute.String("Email", "owner@example.com"),
		attribute.String("access_token", "APP_USR-1"),
	)
	if len(attrs) != 1 || attrs[0].Key != "http.route" {
		t.Fatalf("expected only http.route, got %v", attrs)
	}
}

func TestSafeErrorRedactsToken(t *testing.T) {
	err := SafeError(errors.New("gateway call failed token=APP_USR-123"))
	if err.Error() != "gateway call failed token=[redacted]" {
		t.Fatalf("unexpected message %q", err.Error())
	}
	if SafeError(nil) != nil {
		t.Fatalf("expected nil for nil error")
	}
}
