package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"

	gatewaydomain "github.com/smallbiznis/marketpay/internal/gateway/domain"
	reconciliationdomain "github.com/smallbiznis/marketpay/internal/reconciliation/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Log      *zap.Logger
	Engine   reconciliationdomain.Engine
	Verifier gatewaydomain.NotificationVerifier `optional:"true"`
}

type Service struct {
	log      *zap.Logger
	engine   reconciliationdomain.Engine
	verifier gatewaydomain.NotificationVerifier
}

func NewService(p Params) reconciliationdomain.Ingestor {
	return &Service{
		log:      p.Log.Named("reconciliation.webhook"),
		engine:   p.Engine,
		verifier: p.Verifier,
	}
}

type notificationBody struct {
	Type   string `json:"type"`
	Topic  string `json:"topic"`
	Action string `json:"action"`
	Data   struct {
		ID json.RawMessage `json:"id"`
	} `json:"data"`
}

// Ingest implements domain.Ingestor.
func (s *Service) Ingest(ctx context.Context, payload []byte, query map[string][]string, headers http.Header) (reconciliationdomain.Result, error) {
	n, err := ParseNotification(payload, url.Values(query))
	if err != nil {
		s.log.Warn("rejecting malformed notification", zap.Error(err))
		return reconciliationdomain.Result{}, err
	}

	if s.verifier != nil {
		if err := s.verifier.VerifyNotification(headers, n.PaymentID); err != nil {
			s.log.Warn("rejecting notification with invalid signature",
				zap.String("payment_id", n.PaymentID),
				zap.Error(err),
			)
			return reconciliationdomain.Result{}, err
		}
	}

	result, err := s.engine.Reconcile(ctx, n)
	if err != nil {
		return result, err
	}

	s.log.Info("notification processed",
		zap.String("type", n.Type),
		zap.String("action", n.Action),
		zap.String("payment_id", n.PaymentID),
		zap.String("outcome", string(result.Outcome)),
		zap.String("reason", result.Reason),
		zap.Bool("duplicate", result.Duplicate),
	)
	return result, nil
}

// ParseNotification reads a JSON body of the form {type, action, data:{id}},
// falling back to the query forms ?type=payment&data.id= and ?topic=payment&id=.
func ParseNotification(payload []byte, query url.Values) (reconciliationdomain.Notification, error) {
	var n reconciliationdomain.Notification

	if len(bytes.TrimSpace(payload)) > 0 {
		var body notificationBody
		if err := json.Unmarshal(payload, &body); err != nil {
			if query.Get("data.id") == "" && query.Get("id") == "" {
				return n, errors.Join(reconciliationdomain.ErrMalformedNotification, err)
			}
		} else {
			n.Type = firstNonEmpty(body.Type, body.Topic)
			n.Action = strings.TrimSpace(body.Action)
			id, err := decodeID(body.Data.ID)
			if err != nil {
				return n, err
			}
			n.PaymentID = id
		}
	}

	if n.Type == "" {
		n.Type = firstNonEmpty(query.Get("type"), query.Get("topic"))
	}
	if n.PaymentID == "" {
		n.PaymentID = firstNonEmpty(query.Get("data.id"), query.Get("id"))
	}
	if n.PaymentID == "" {
		return n, reconciliationdomain.ErrMissingPaymentID
	}
	return n, nil
}

// decodeID accepts the id as a JSON string or number.
func decodeID(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", nil
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", errors.Join(reconciliationdomain.ErrMalformedNotification, err)
		}
		return strings.TrimSpace(s), nil
	}
	var num json.Number
	if err := json.Unmarshal(raw, &num); err != nil {
		return "", errors.Join(reconciliationdomain.ErrMalformedNotification, err)
	}
	return num.String(), nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
