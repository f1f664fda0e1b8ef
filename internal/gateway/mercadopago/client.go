package mercadopago

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	gatewaydomain "github.com/smallbiznis/marketpay/internal/gateway/domain"
	"golang.org/x/sync/singleflight"
)

const (
	Provider = "mercadopago"

	defaultBaseURL = "https://api.mercadopago.com"
	defaultTimeout = 5 * time.Second
	maxErrorBody   = 4 << 10
)

type Factory struct{}

func NewFactory() *Factory {
	return &Factory{}
}

func (f *Factory) Provider() string {
	return Provider
}

func (f *Factory) NewClient(cfg gatewaydomain.Config) (gatewaydomain.Client, error) {
	return NewClient(cfg)
}

// Client talks to the Mercado Pago REST API.
type Client struct {
	baseURL       string
	accessToken   string
	webhookSecret string
	httpClient    *http.Client
	timeout       time.Duration
	validate      *validator.Validate
	lookups       singleflight.Group
}

func NewClient(cfg gatewaydomain.Config) (*Client, error) {
	token := strings.TrimSpace(cfg.AccessToken)
	if token == "" {
		return nil, gatewaydomain.ErrInvalidConfig
	}

	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, gatewaydomain.ErrInvalidConfig
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}

	return &Client{
		baseURL:       baseURL,
		accessToken:   token,
		webhookSecret: strings.TrimSpace(cfg.WebhookSecret),
		httpClient:    httpClient,
		timeout:       timeout,
		validate:      validator.New(),
	}, nil
}

func (c *Client) Provider() string {
	return Provider
}

// CreatePaymentLink creates a checkout preference and returns its hosted
// checkout URL.
func (c *Client) CreatePaymentLink(ctx context.Context, req gatewaydomain.PaymentLinkRequest) (*gatewaydomain.PaymentLink, error) {
	if err := c.validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %v", gatewaydomain.ErrInvalidRequest, err)
	}
	if !req.Amount.IsPositive() {
		return nil, fmt.Errorf("%w: amount must be positive", gatewaydomain.ErrInvalidRequest)
	}

	body := preferenceRequest{
		Items: []preferenceItem{{
			ID:         req.ResourceID,
			Title:      req.Title,
			Quantity:   1,
			UnitPrice:  req.Amount.Round(2).InexactFloat64(),
			CurrencyID: req.Currency,
		}},
		ExternalReference: req.ExternalReference,
		Metadata:          req.Metadata,
		NotificationURL:   req.Callbacks.Notification,
	}
	if req.PayerEmail != "" {
		body.Payer = &preferencePayer{Email: req.PayerEmail}
	}
	if req.Callbacks.Success != "" || req.Callbacks.Failure != "" || req.Callbacks.Pending != "" {
		body.BackURLs = &preferenceBackURLs{
			Success: req.Callbacks.Success,
			Failure: req.Callbacks.Failure,
			Pending: req.Callbacks.Pending,
		}
		if req.Callbacks.Success != "" {
			body.AutoReturn = "approved"
		}
	}

	var resp preferenceResponse
	if err := c.do(ctx, http.MethodPost, "/checkout/preferences", body, &resp); err != nil {
		return nil, err
	}

	checkoutURL := strings.TrimSpace(resp.InitPoint)
	if checkoutURL == "" {
		checkoutURL = strings.TrimSpace(resp.SandboxInitPoint)
	}
	if strings.TrimSpace(resp.ID) == "" || checkoutURL == "" {
		return nil, fmt.Errorf("%w: empty preference response", gatewaydomain.ErrGatewayUnavailable)
	}

	return &gatewaydomain.PaymentLink{
		PreferenceID: resp.ID,
		CheckoutURL:  checkoutURL,
	}, nil
}

// GetPayment fetches the authoritative payment record. Concurrent lookups of
// the same id share a single request, which is not cancelled when one of the
// waiting callers gives up.
func (c *Client) GetPayment(ctx context.Context, paymentID string) (*gatewaydomain.Payment, error) {
	paymentID = strings.TrimSpace(paymentID)
	if paymentID == "" {
		return nil, gatewaydomain.ErrPaymentNotFound
	}

	ch := c.lookups.DoChan(paymentID, func() (any, error) {
		sharedCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
		defer cancel()

		var resp paymentResponse
		if err := c.do(sharedCtx, http.MethodGet, "/v1/payments/"+url.PathEscape(paymentID), nil, &resp); err != nil {
			return nil, err
		}
		return toPayment(resp)
	})

	select {
	case <-ctx.Done():
		return nil, classifyTransportError(ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		payment := *res.Val.(*gatewaydomain.Payment)
		return &payment, nil
	}
}

func (c *Client) do(ctx context.Context, method, path string, in any, out any) error {
	var reader io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("%w: %v", gatewaydomain.ErrInvalidRequest, err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("%w: %v", gatewaydomain.ErrInvalidRequest, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.accessToken)
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	res, err := c.httpClient.Do(req)
	if err != nil {
		return classifyTransportError(err)
	}
	defer res.Body.Close()

	if res.StatusCode >= 300 {
		return classifyStatus(res)
	}
	if out == nil {
		return nil
	}

	decoder := json.NewDecoder(res.Body)
	decoder.UseNumber()
	if err := decoder.Decode(out); err != nil {
		return fmt.Errorf("%w: decode response: %v", gatewaydomain.ErrGatewayUnavailable, err)
	}
	return nil
}

func classifyTransportError(err error) error {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return fmt.Errorf("%w: timeout", gatewaydomain.ErrGatewayUnavailable)
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	return fmt.Errorf("%w: %v", gatewaydomain.ErrGatewayUnavailable, err)
}

func classifyStatus(res *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(res.Body, maxErrorBody))
	var apiErr apiError
	_ = json.Unmarshal(raw, &apiErr)
	message := strings.TrimSpace(apiErr.Message)
	if message == "" {
		message = http.StatusText(res.StatusCode)
	}

	switch {
	case res.StatusCode == http.StatusNotFound:
		return gatewaydomain.ErrPaymentNotFound
	case res.StatusCode == http.StatusTooManyRequests, res.StatusCode >= 500:
		return fmt.Errorf("%w: status %d: %s", gatewaydomain.ErrGatewayUnavailable, res.StatusCode, message)
	default:
		return fmt.Errorf("%w: status %d: %s", gatewaydomain.ErrGatewayRejected, res.StatusCode, message)
	}
}

func toPayment(resp paymentResponse) (*gatewaydomain.Payment, error) {
	id := strings.TrimSpace(resp.ID.String())
	if id == "" {
		return nil, fmt.Errorf("%w: payment without id", gatewaydomain.ErrGatewayUnavailable)
	}

	payment := &gatewaydomain.Payment{
		ID:                id,
		Status:            gatewaydomain.Status(strings.ToLower(strings.TrimSpace(resp.Status))),
		StatusDetail:      resp.StatusDetail,
		ExternalReference: strings.TrimSpace(resp.ExternalReference),
		Metadata:          resp.Metadata,
		Currency:          resp.CurrencyID,
	}
	if raw := resp.TransactionAmount.String(); raw != "" {
		if amount, err := decimal.NewFromString(raw); err == nil {
			payment.Amount = amount
		}
	}
	if raw := strings.TrimSpace(resp.DateApproved); raw != "" {
		if approvedAt, err := time.Parse(time.RFC3339Nano, raw); err == nil {
			approvedAt = approvedAt.UTC()
			payment.ApprovedAt = &approvedAt
		}
	}
	return payment, nil
}
