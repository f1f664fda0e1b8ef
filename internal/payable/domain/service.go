package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/marketpay/internal/authorization"
)

type Service interface {
	Create(ctx context.Context, req CreateRequest) (*View, error)
	Get(ctx context.Context, req GetRequest) (*View, error)
	Retry(ctx context.Context, req RetryRequest) (*View, error)
	CancelSubscription(ctx context.Context, req CancelRequest) (*View, error)
	ExpireDue(ctx context.Context, kind Kind, limit int) (int, error)
}

type CreateRequest struct {
	Kind     Kind
	OwnerID  snowflake.ID
	Amount   decimal.Decimal
	Currency string
	Actor    authorization.Actor

	Plan          string
	Title         string
	TargetURL     string
	CartReference string
}

type GetRequest struct {
	Kind  Kind
	ID    snowflake.ID
	Actor authorization.Actor
}

type RetryRequest struct {
	Kind  Kind
	ID    snowflake.ID
	Actor authorization.Actor
}

type CancelRequest struct {
	ID    snowflake.ID
	Actor authorization.Actor
}
