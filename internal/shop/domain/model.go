package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

type Status string

const (
	StatusActive    Status = "active"
	StatusSuspended Status = "suspended"
)

var ErrShopNotFound = errors.New("shop_not_found")

// Shop is the storefront whose visibility follows its owner's subscription.
type Shop struct {
	ID        snowflake.ID `gorm:"column:id;primaryKey;autoIncrement:false"`
	OwnerID   snowflake.ID `gorm:"column:owner_id;not null"`
	Name      string       `gorm:"column:name;type:text;not null"`
	Status    Status       `gorm:"column:status;type:text;not null"`
	CreatedAt time.Time    `gorm:"column:created_at;not null"`
	UpdatedAt time.Time    `gorm:"column:updated_at;not null"`
}

func (Shop) TableName() string { return "shops" }

// Store is the visibility surface the cascade writes to. SetStatus is
// idempotent.
type Store interface {
	ListByOwner(ctx context.Context, ownerID snowflake.ID) ([]Shop, error)
	SetStatus(ctx context.Context, shopID snowflake.ID, status Status) error
}
