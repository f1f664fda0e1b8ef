package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/marketpay/internal/authorization"
	cascadedomain "github.com/smallbiznis/marketpay/internal/cascade/domain"
	gatewaydomain "github.com/smallbiznis/marketpay/internal/gateway/domain"
	payabledomain "github.com/smallbiznis/marketpay/internal/payable/domain"
	reconciliationdomain "github.com/smallbiznis/marketpay/internal/reconciliation/domain"
	"gorm.io/gorm"
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v ValidationErrors) Error() string {
	return "validation error"
}

type errorPayload struct {
	Type    string            `json:"type"`
	Message string            `json:"message"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrUnauthorized       = errors.New("unauthorized")
	ErrForbidden          = errors.New("forbidden")
	ErrConflict           = errors.New("conflict")
	ErrInternal           = errors.New("internal_error")
	ErrNotFound           = errors.New("not_found")
	ErrInvalidRequest     = errors.New("invalid_request")
	ErrTooManyRequests    = errors.New("too_many_requests")
	ErrServiceUnavailable = errors.New("service_unavailable")
)

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func invalidRequestError() error {
	return newValidationError("request", "invalid_request", "invalid request")
}

func newValidationError(field, code, message string) error {
	return &ValidationErrors{
		Errors: []ValidationError{
			{
				Field:   field,
				Code:    code,
				Message: message,
			},
		},
	}
}

func mapError(err error) (int, errorPayload) {
	if err == nil {
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}

	if vErr := asValidationErrors(err); vErr != nil {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  vErr.Errors,
		}
	}

	if isValidationError(err) {
		code := validationErrorCode(err)
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors: []ValidationError{
				{
					Field:   validationErrorField(code),
					Code:    code,
					Message: validationErrorMessage(code),
				},
			},
		}
	}

	switch {
	case errors.Is(err, ErrUnauthorized),
		errors.Is(err, authorization.ErrInvalidActor),
		errors.Is(err, gatewaydomain.ErrInvalidSignature):
		return http.StatusUnauthorized, errorPayload{
			Type:    "unauthorized",
			Message: "unauthorized",
		}
	case errors.Is(err, ErrForbidden),
		errors.Is(err, authorization.ErrForbidden):
		return http.StatusForbidden, errorPayload{
			Type:    "forbidden",
			Message: "forbidden",
		}
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}
	case errors.Is(err, ErrConflict),
		errors.Is(err, payabledomain.ErrConcurrentUpdate),
		errors.Is(err, payabledomain.ErrRetryInProgress),
		errors.Is(err, payabledomain.ErrInvalidTransition),
		errors.Is(err, cascadedomain.ErrJobNotReplayable):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: conflictMessage(err),
		}
	case errors.Is(err, payabledomain.ErrNotRetryable),
		errors.Is(err, payabledomain.ErrRetryLimitExceeded),
		errors.Is(err, payabledomain.ErrActiveLimitReached):
		return http.StatusUnprocessableEntity, errorPayload{
			Type:    "unprocessable_entity",
			Message: policyMessage(err),
		}
	case errors.Is(err, ErrTooManyRequests),
		errors.Is(err, payabledomain.ErrRateLimited):
		return http.StatusTooManyRequests, errorPayload{
			Type:    "rate_limited",
			Message: "too many requests",
		}
	case errors.Is(err, gatewaydomain.ErrGatewayRejected):
		return http.StatusBadGateway, errorPayload{
			Type:    "gateway_error",
			Message: "payment gateway rejected the request",
		}
	case errors.Is(err, ErrServiceUnavailable),
		errors.Is(err, gatewaydomain.ErrGatewayUnavailable):
		return http.StatusServiceUnavailable, errorPayload{
			Type:    "service_unavailable",
			Message: "service unavailable",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

// classifyErrorForLog returns the error type and code for request logging.
func classifyErrorForLog(err error) (string, string) {
	status, payload := mapError(err)
	code := payload.Type
	if len(payload.Errors) > 0 {
		code = payload.Errors[0].Code
	} else if status < http.StatusInternalServerError && err != nil {
		code = err.Error()
	}
	return payload.Type, code
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}

func isValidationError(err error) bool {
	switch {
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, payabledomain.ErrInvalidKind),
		errors.Is(err, payabledomain.ErrInvalidOwner),
		errors.Is(err, payabledomain.ErrInvalidAmount),
		errors.Is(err, payabledomain.ErrInvalidCurrency),
		errors.Is(err, payabledomain.ErrInvalidID),
		errors.Is(err, cascadedomain.ErrInvalidJobID),
		errors.Is(err, reconciliationdomain.ErrMissingPaymentID),
		errors.Is(err, reconciliationdomain.ErrMalformedNotification),
		errors.Is(err, gatewaydomain.ErrInvalidRequest):
		return true
	default:
		return false
	}
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, payabledomain.ErrNotFound),
		errors.Is(err, cascadedomain.ErrJobNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return true
	default:
		return false
	}
}

func conflictMessage(err error) string {
	switch {
	case errors.Is(err, payabledomain.ErrRetryInProgress):
		return "a retry for this resource is already in progress"
	case errors.Is(err, payabledomain.ErrInvalidTransition):
		return "the resource cannot make this transition from its current state"
	case errors.Is(err, cascadedomain.ErrJobNotReplayable):
		return "only partial or failed cascade jobs can be replayed"
	default:
		return "conflict"
	}
}

func policyMessage(err error) string {
	switch {
	case errors.Is(err, payabledomain.ErrRetryLimitExceeded):
		return "retry limit exceeded"
	case errors.Is(err, payabledomain.ErrActiveLimitReached):
		return "active limit reached"
	default:
		return "resource is not retryable"
	}
}

// validationErrorCode returns the sentinel's code without any wrapped detail.
func validationErrorCode(err error) string {
	for _, sentinel := range []error{
		ErrInvalidRequest,
		payabledomain.ErrInvalidKind,
		payabledomain.ErrInvalidOwner,
		payabledomain.ErrInvalidAmount,
		payabledomain.ErrInvalidCurrency,
		payabledomain.ErrInvalidID,
		cascadedomain.ErrInvalidJobID,
		reconciliationdomain.ErrMissingPaymentID,
		reconciliationdomain.ErrMalformedNotification,
		gatewaydomain.ErrInvalidRequest,
	} {
		if errors.Is(err, sentinel) {
			return sentinel.Error()
		}
	}
	return err.Error()
}

func validationErrorField(code string) string {
	switch code {
	case "invalid_request", "malformed_notification":
		return "request"
	case "missing_payment_id":
		return "data.id"
	}
	if strings.HasPrefix(code, "invalid_") {
		return strings.TrimPrefix(code, "invalid_")
	}
	return ""
}

func validationErrorMessage(code string) string {
	switch code {
	case "invalid_request":
		return "invalid request"
	case "missing_payment_id":
		return "data.id is required"
	default:
		return "invalid value"
	}
}
