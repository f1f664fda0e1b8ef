package server

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	gatewaydomain "github.com/smallbiznis/marketpay/internal/gateway/domain"
	obslogger "github.com/smallbiznis/marketpay/internal/observability/logger"
	reconciliationdomain "github.com/smallbiznis/marketpay/internal/reconciliation/domain"
	"go.uber.org/zap"
)

const (
	maxWebhookBody = 1 << 20

	outcomeError = "error"
)

// HandlePaymentWebhook acknowledges every delivery it could read. Malformed or
// unauthenticated deliveries get 400/401. Processing failures are logged and
// acknowledged, or answered with 503 when the gateway is asked to redeliver
// transient failures.
func (s *Server) HandlePaymentWebhook(c *gin.Context) {
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	result, err := s.webhooks.Ingest(c.Request.Context(), payload, c.Request.URL.Query(), c.Request.Header)
	if err != nil {
		if isRejectedDelivery(err) {
			AbortWithError(c, err)
			return
		}
		s.webhookFailed(c, err)
		return
	}
	c.Set("reconcile_outcome", string(result.Outcome))

	if s.cfg.Reconcile.RetryOnTransient &&
		result.Outcome == reconciliationdomain.OutcomeDeferred &&
		result.Reason == reconciliationdomain.ReasonGatewayUnavailable {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": string(result.Outcome), "reason": result.Reason})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"outcome":   string(result.Outcome),
		"reason":    result.Reason,
		"duplicate": result.Duplicate,
	})
}

// webhookFailed answers a delivery the engine could not process. Nothing was
// committed, so a redelivery is safe.
func (s *Server) webhookFailed(c *gin.Context, err error) {
	errType, _ := classifyErrorForLog(err)
	obslogger.WithContext(c.Request.Context(), s.log).Error("webhook processing failed",
		zap.String("error_type", errType),
		zap.Error(err),
	)
	c.Set("reconcile_outcome", outcomeError)

	if s.cfg.Reconcile.RetryOnTransient {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": outcomeError, "reason": errType})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "outcome": outcomeError})
}

func isRejectedDelivery(err error) bool {
	return errors.Is(err, reconciliationdomain.ErrMissingPaymentID) ||
		errors.Is(err, reconciliationdomain.ErrMalformedNotification) ||
		errors.Is(err, gatewaydomain.ErrInvalidSignature)
}
