package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/marketpay/internal/authorization"
	cascadedomain "github.com/smallbiznis/marketpay/internal/cascade/domain"
	"github.com/smallbiznis/marketpay/internal/config"
	gatewaydomain "github.com/smallbiznis/marketpay/internal/gateway/domain"
	payabledomain "github.com/smallbiznis/marketpay/internal/payable/domain"
	reconciliationdomain "github.com/smallbiznis/marketpay/internal/reconciliation/domain"
	"github.com/smallbiznis/marketpay/pkg/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type mockPayableSvc struct {
	mock.Mock
}

func (m *mockPayableSvc) Create(ctx context.Context, req payabledomain.CreateRequest) (*payabledomain.View, error) {
	args := m.Called(ctx, req)
	view, _ := args.Get(0).(*payabledomain.View)
	return view, args.Error(1)
}

func (m *mockPayableSvc) Get(ctx context.Context, req payabledomain.GetRequest) (*payabledomain.View, error) {
	args := m.Called(ctx, req)
	view, _ := args.Get(0).(*payabledomain.View)
	return view, args.Error(1)
}

func (m *mockPayableSvc) Retry(ctx context.Context, req payabledomain.RetryRequest) (*payabledomain.View, error) {
	args := m.Called(ctx, req)
	view, _ := args.Get(0).(*payabledomain.View)
	return view, args.Error(1)
}

func (m *mockPayableSvc) CancelSubscription(ctx context.Context, req payabledomain.CancelRequest) (*payabledomain.View, error) {
	args := m.Called(ctx, req)
	view, _ := args.Get(0).(*payabledomain.View)
	return view, args.Error(1)
}

func (m *mockPayableSvc) ExpireDue(ctx context.Context, kind payabledomain.Kind, limit int) (int, error) {
	args := m.Called(ctx, kind, limit)
	return args.Int(0), args.Error(1)
}

type mockCascadeSvc struct {
	cascadedomain.Service
	mock.Mock
}

func (m *mockCascadeSvc) Replay(ctx context.Context, req cascadedomain.ReplayRequest) (*cascadedomain.Job, error) {
	args := m.Called(ctx, req)
	job, _ := args.Get(0).(*cascadedomain.Job)
	return job, args.Error(1)
}

type mockIngestor struct {
	mock.Mock
}

func (m *mockIngestor) Ingest(ctx context.Context, payload []byte, query map[string][]string, headers http.Header) (reconciliationdomain.Result, error) {
	args := m.Called(ctx, payload, query, headers)
	return args.Get(0).(reconciliationdomain.Result), args.Error(1)
}

type harness struct {
	engine   *gin.Engine
	payables *mockPayableSvc
	cascades *mockCascadeSvc
	webhooks *mockIngestor
}

func newHarness(t *testing.T, cfg config.Config) *harness {
	t.Helper()
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.Use(ErrorHandlingMiddleware())

	h := &harness{
		engine:   r,
		payables: &mockPayableSvc{},
		cascades: &mockCascadeSvc{},
		webhooks: &mockIngestor{},
	}
	NewServer(ServerParams{
		Gin:        r,
		Cfg:        cfg,
		Log:        zap.NewNop(),
		PayableSvc: h.payables,
		CascadeSvc: h.cascades,
		Webhooks:   h.webhooks,
	})
	return h
}

func (h *harness) do(method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.engine.ServeHTTP(rec, req)
	return rec
}

func asOwner(id snowflake.ID) map[string]string {
	return map[string]string{HeaderActorID: id.String(), HeaderActorRole: "owner"}
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorPayload {
	t.Helper()
	var resp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.Error
}

func TestWebhookAcknowledgesOutcomes(t *testing.T) {
	outcomes := []reconciliationdomain.Result{
		{Outcome: reconciliationdomain.OutcomeApplied},
		{Outcome: reconciliationdomain.OutcomeIgnored, Reason: reconciliationdomain.ReasonUnresolvable},
		{Outcome: reconciliationdomain.OutcomeDeferred, Reason: reconciliationdomain.ReasonGatewayUnavailable},
		{Outcome: reconciliationdomain.OutcomeRejected, Reason: reconciliationdomain.ReasonTransitionNotAllowed},
		{Outcome: reconciliationdomain.OutcomeApplied, Duplicate: true, Reason: reconciliationdomain.ReasonDuplicate},
	}

	for _, result := range outcomes {
		t.Run(fmt.Sprintf("%s_%s", result.Outcome, result.Reason), func(t *testing.T) {
			h := newHarness(t, config.Config{})
			h.webhooks.On("Ingest", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(result, nil).Once()

			rec := h.do(http.MethodPost, "/webhooks/payments", `{"type":"payment","data":{"id":"1"}}`, nil)

			assert.Equal(t, http.StatusOK, rec.Code)
			var body map[string]any
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, string(result.Outcome), body["outcome"])
		})
	}
}

func TestWebhookPassesQueryAndBody(t *testing.T) {
	h := newHarness(t, config.Config{})
	h.webhooks.On("Ingest", mock.Anything, []byte(""), mock.MatchedBy(func(q map[string][]string) bool {
		return len(q["topic"]) == 1 && q["topic"][0] == "payment" && q["id"][0] == "77"
	}), mock.Anything).Return(reconciliationdomain.Result{Outcome: reconciliationdomain.OutcomeApplied}, nil).Once()

	rec := h.do(http.MethodPost, "/webhooks/payments?topic=payment&id=77", "", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	h.webhooks.AssertExpectations(t)
}

func TestWebhookTransientModeAnswers503(t *testing.T) {
	h := newHarness(t, config.Config{Reconcile: config.ReconcileConfig{RetryOnTransient: true}})
	h.webhooks.On("Ingest", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(reconciliationdomain.Result{
		Outcome: reconciliationdomain.OutcomeDeferred,
		Reason:  reconciliationdomain.ReasonGatewayUnavailable,
	}, nil).Once()

	rec := h.do(http.MethodPost, "/webhooks/payments", `{"type":"payment","data":{"id":"1"}}`, nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestWebhookTransientModeStillAcknowledgesPending(t *testing.T) {
	h := newHarness(t, config.Config{Reconcile: config.ReconcileConfig{RetryOnTransient: true}})
	h.webhooks.On("Ingest", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(reconciliationdomain.Result{
		Outcome: reconciliationdomain.OutcomeDeferred,
		Reason:  reconciliationdomain.ReasonStatusPending,
	}, nil).Once()

	rec := h.do(http.MethodPost, "/webhooks/payments", `{"type":"payment","data":{"id":"1"}}`, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestWebhookErrors(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
	}{
		{name: "missing id", err: reconciliationdomain.ErrMissingPaymentID, status: http.StatusBadRequest},
		{name: "malformed", err: errors.Join(reconciliationdomain.ErrMalformedNotification, errors.New("eof")), status: http.StatusBadRequest},
		{name: "bad signature", err: gatewaydomain.ErrInvalidSignature, status: http.StatusUnauthorized},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t, config.Config{})
			h.webhooks.On("Ingest", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
				Return(reconciliationdomain.Result{}, tc.err).Once()

			rec := h.do(http.MethodPost, "/webhooks/payments", `{}`, nil)
			assert.Equal(t, tc.status, rec.Code)
		})
	}
}

func TestWebhookProcessingFailures(t *testing.T) {
	failures := map[string]error{
		"database down": errors.New("database is down"),
		"tx conflict":   fmt.Errorf("reconcile: %w", db.ErrTxConflict),
	}

	for name, failure := range failures {
		t.Run(name+" acknowledged", func(t *testing.T) {
			h := newHarness(t, config.Config{})
			h.webhooks.On("Ingest", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
				Return(reconciliationdomain.Result{}, failure).Once()

			rec := h.do(http.MethodPost, "/webhooks/payments", `{"type":"payment","data":{"id":"1"}}`, nil)

			assert.Equal(t, http.StatusOK, rec.Code)
			var body map[string]any
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, "error", body["outcome"])
		})

		t.Run(name+" redelivered in transient mode", func(t *testing.T) {
			h := newHarness(t, config.Config{Reconcile: config.ReconcileConfig{RetryOnTransient: true}})
			h.webhooks.On("Ingest", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
				Return(reconciliationdomain.Result{}, failure).Once()

			rec := h.do(http.MethodPost, "/webhooks/payments", `{"type":"payment","data":{"id":"1"}}`, nil)
			assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		})
	}
}

func TestCreatePayableUsesActorAsOwner(t *testing.T) {
	h := newHarness(t, config.Config{})
	owner := snowflake.ID(42)
	view := &payabledomain.View{ID: "1", Kind: payabledomain.KindBanner, State: payabledomain.StatePending, CheckoutURL: "https://checkout.test/pref-1"}

	h.payables.On("Create", mock.Anything, mock.MatchedBy(func(req payabledomain.CreateRequest) bool {
		return req.Kind == payabledomain.KindBanner &&
			req.OwnerID == owner &&
			req.Amount.Equal(decimal.RequireFromString("99.90")) &&
			req.Title == "Spring" &&
			req.Actor == authorization.Actor{ID: owner, Role: "owner"}
	})).Return(view, nil).Once()

	rec := h.do(http.MethodPost, "/api/v1/payables/banners", `{"amount":"99.90","title":" Spring "}`, asOwner(owner))

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var resp struct {
		Data payabledomain.View `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "https://checkout.test/pref-1", resp.Data.CheckoutURL)
	h.payables.AssertExpectations(t)
}

func TestCreatePayableValidation(t *testing.T) {
	h := newHarness(t, config.Config{})

	rec := h.do(http.MethodPost, "/api/v1/payables/coupon", `{"amount":"1"}`, asOwner(1))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "validation_error", decodeError(t, rec).Type)

	rec = h.do(http.MethodPost, "/api/v1/payables/banner", `{"amount":`, asOwner(1))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = h.do(http.MethodPost, "/api/v1/payables/banner", `{"amount":"1","owner_id":"abc"}`, asOwner(1))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	h.payables.On("Create", mock.Anything, mock.Anything).Return(nil, payabledomain.ErrInvalidAmount).Once()
	rec = h.do(http.MethodPost, "/api/v1/payables/banner", `{"amount":"0"}`, asOwner(1))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	payload := decodeError(t, rec)
	require.Len(t, payload.Errors, 1)
	assert.Equal(t, "amount", payload.Errors[0].Field)
}

func TestAPIRequiresActor(t *testing.T) {
	h := newHarness(t, config.Config{})

	rec := h.do(http.MethodGet, "/api/v1/payables/banner/1", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = h.do(http.MethodGet, "/api/v1/payables/banner/1", "", map[string]string{HeaderActorID: "nope"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRetryPayableErrorMapping(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{err: payabledomain.ErrRetryLimitExceeded, status: http.StatusUnprocessableEntity},
		{err: payabledomain.ErrActiveLimitReached, status: http.StatusUnprocessableEntity},
		{err: payabledomain.ErrNotRetryable, status: http.StatusUnprocessableEntity},
		{err: payabledomain.ErrRetryInProgress, status: http.StatusConflict},
		{err: payabledomain.ErrConcurrentUpdate, status: http.StatusConflict},
		{err: payabledomain.ErrRateLimited, status: http.StatusTooManyRequests},
		{err: payabledomain.ErrNotFound, status: http.StatusNotFound},
		{err: authorization.ErrForbidden, status: http.StatusForbidden},
		{err: gatewaydomain.ErrGatewayUnavailable, status: http.StatusServiceUnavailable},
		{err: gatewaydomain.ErrGatewayRejected, status: http.StatusBadGateway},
	}

	for _, tc := range cases {
		t.Run(tc.err.Error(), func(t *testing.T) {
			h := newHarness(t, config.Config{})
			h.payables.On("Retry", mock.Anything, payabledomain.RetryRequest{
				Kind:  payabledomain.KindBanner,
				ID:    9,
				Actor: authorization.Actor{ID: 3, Role: "owner"},
			}).Return(nil, tc.err).Once()

			rec := h.do(http.MethodPost, "/api/v1/payables/banner/9/retry", "", asOwner(3))
			assert.Equal(t, tc.status, rec.Code)
			h.payables.AssertExpectations(t)
		})
	}
}

func TestRetryPayableReturnsNewLink(t *testing.T) {
	h := newHarness(t, config.Config{})
	h.payables.On("Retry", mock.Anything, mock.Anything).Return(&payabledomain.View{
		ID:              "9",
		State:           payabledomain.StateFailed,
		PaymentAttempts: 2,
		CheckoutURL:     "https://checkout.test/pref-2",
	}, nil).Once()

	rec := h.do(http.MethodPost, "/api/v1/payables/subscription/9/retry", "", asOwner(3))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "pref-2")
}

func TestGetPayable(t *testing.T) {
	h := newHarness(t, config.Config{})
	h.payables.On("Get", mock.Anything, payabledomain.GetRequest{
		Kind:  payabledomain.KindOrder,
		ID:    5,
		Actor: authorization.Actor{ID: 3, Role: "owner"},
	}).Return(&payabledomain.View{ID: "5", State: payabledomain.StatePaid}, nil).Once()

	rec := h.do(http.MethodGet, "/api/v1/payables/orders/5", "", asOwner(3))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"state":"PAID"`)

	rec = h.do(http.MethodGet, "/api/v1/payables/orders/0", "", asOwner(3))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCancelSubscription(t *testing.T) {
	h := newHarness(t, config.Config{})
	h.payables.On("CancelSubscription", mock.Anything, payabledomain.CancelRequest{
		ID:    11,
		Actor: authorization.Actor{ID: 3, Role: "owner"},
	}).Return(&payabledomain.View{ID: "11", State: payabledomain.StateCancelled}, nil).Once()
	h.payables.On("CancelSubscription", mock.Anything, mock.Anything).Return(nil, payabledomain.ErrInvalidTransition).Once()

	rec := h.do(http.MethodPost, "/api/v1/subscriptions/11/cancel", "", asOwner(3))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "CANCELLED")

	rec = h.do(http.MethodPost, "/api/v1/subscriptions/11/cancel", "", asOwner(3))
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestReplayCascade(t *testing.T) {
	h := newHarness(t, config.Config{})
	admin := map[string]string{HeaderActorID: "1", HeaderActorRole: "ADMIN"}

	h.cascades.On("Replay", mock.Anything, cascadedomain.ReplayRequest{
		JobID: 21,
		Actor: authorization.Actor{ID: 1, Role: "admin"},
	}).Return(&cascadedomain.Job{ID: 21, Status: cascadedomain.StatusCompleted}, nil).Once()
	h.cascades.On("Replay", mock.Anything, mock.Anything).Return(nil, cascadedomain.ErrJobNotReplayable).Once()

	rec := h.do(http.MethodPost, "/api/v1/cascades/21/replay", "", admin)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"completed"`)

	rec = h.do(http.MethodPost, "/api/v1/cascades/21/replay", "", admin)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestClassifyErrorForLog(t *testing.T) {
	typ, code := classifyErrorForLog(payabledomain.ErrRetryLimitExceeded)
	assert.Equal(t, "unprocessable_entity", typ)
	assert.Equal(t, "retry_limit_exceeded", code)

	typ, code = classifyErrorForLog(fmt.Errorf("%w: %q", payabledomain.ErrInvalidKind, "coupon"))
	assert.Equal(t, "validation_error", typ)
	assert.Equal(t, "invalid_kind", code)

	typ, code = classifyErrorForLog(errors.New("boom"))
	assert.Equal(t, "internal_error", typ)
	assert.Equal(t, "internal_error", code)
}
