package mercadopago

import (
	"net/http"
	"testing"

	gatewaydomain "github.com/smallbiznis/marketpay/internal/gateway/domain"
	"github.com/stretchr/testify/assert"
)

func TestManifest(t *testing.T) {
	assert.Equal(t, "id:abc123;request-id:req-1;ts:1700000000;", Manifest("ABC123", "req-1", "1700000000"))
	assert.Equal(t, "id:99;ts:1700000000;", Manifest("99", "", "1700000000"))
}

func TestVerifyNotification(t *testing.T) {
	client := &Client{webhookSecret: "secret"}
	signature := Sign("secret", Manifest("12345", "req-1", "1700000000"))

	headers := http.Header{}
	headers.Set("x-signature", "ts=1700000000,v1="+signature)
	headers.Set("x-request-id", "req-1")
	assert.NoError(t, client.VerifyNotification(headers, "12345"))

	assert.ErrorIs(t, client.VerifyNotification(headers, "99999"), gatewaydomain.ErrInvalidSignature)

	headers.Set("x-signature", "ts=1700000000,v1="+Sign("other", Manifest("12345", "req-1", "1700000000")))
	assert.ErrorIs(t, client.VerifyNotification(headers, "12345"), gatewaydomain.ErrInvalidSignature)

	headers.Set("x-signature", "garbage")
	assert.ErrorIs(t, client.VerifyNotification(headers, "12345"), gatewaydomain.ErrInvalidSignature)
}

func TestVerifyNotificationWithoutSecret(t *testing.T) {
	client := &Client{}
	assert.NoError(t, client.VerifyNotification(http.Header{}, "12345"))
}
