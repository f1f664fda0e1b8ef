package mercadopago

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"strings"

	gatewaydomain "github.com/smallbiznis/marketpay/internal/gateway/domain"
)

const (
	headerSignature = "X-Signature"
	headerRequestID = "X-Request-Id"
)

// VerifyNotification checks the x-signature header of a webhook delivery.
// Verification is skipped when no webhook secret is configured.
func (c *Client) VerifyNotification(headers http.Header, dataID string) error {
	if c.webhookSecret == "" {
		return nil
	}
	return VerifySignature(c.webhookSecret, headers.Get(headerSignature), headers.Get(headerRequestID), dataID)
}

// VerifySignature validates "ts=<unix>,v1=<hex hmac>" against the manifest
// "id:<data.id>;request-id:<x-request-id>;ts:<ts>;". Segments whose value is
// absent from the notification are left out of the manifest.
func VerifySignature(secret, signatureHeader, requestID, dataID string) error {
	ts, signatures, err := parseSignature(signatureHeader)
	if err != nil {
		return gatewaydomain.ErrInvalidSignature
	}

	expected := Sign(secret, Manifest(dataID, requestID, ts))
	for _, signature := range signatures {
		if hmac.Equal([]byte(strings.ToLower(signature)), []byte(expected)) {
			return nil
		}
	}
	return gatewaydomain.ErrInvalidSignature
}

func Manifest(dataID, requestID, ts string) string {
	var b strings.Builder
	// Alphanumeric ids are signed in lower case.
	if id := strings.ToLower(strings.TrimSpace(dataID)); id != "" {
		b.WriteString("id:" + id + ";")
	}
	if rid := strings.TrimSpace(requestID); rid != "" {
		b.WriteString("request-id:" + rid + ";")
	}
	if ts != "" {
		b.WriteString("ts:" + ts + ";")
	}
	return b.String()
}

func Sign(secret, manifest string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write([]byte(manifest))
	return hex.EncodeToString(mac.Sum(nil))
}

func parseSignature(header string) (string, []string, error) {
	parts := strings.Split(header, ",")
	var ts string
	signatures := []string{}
	for _, part := range parts {
		piece := strings.TrimSpace(part)
		if piece == "" {
			continue
		}
		key, value, ok := strings.Cut(piece, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		switch key {
		case "ts":
			ts = value
		case "v1":
			signatures = append(signatures, value)
		}
	}
	if ts == "" || len(signatures) == 0 {
		return "", nil, errors.New("invalid_signature")
	}
	return ts, signatures, nil
}
