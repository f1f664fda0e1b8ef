package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/marketpay/internal/clock"
	shopdomain "github.com/smallbiznis/marketpay/internal/shop/domain"
	"gorm.io/gorm"
)

type store struct {
	db    *gorm.DB
	clock clock.Clock
}

func Provide(db *gorm.DB, c clock.Clock) shopdomain.Store {
	return &store{db: db, clock: c}
}

func (s *store) ListByOwner(ctx context.Context, ownerID snowflake.ID) ([]shopdomain.Shop, error) {
	var shops []shopdomain.Shop
	err := s.db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("id ASC").
		Find(&shops).Error
	if err != nil {
		return nil, err
	}
	return shops, nil
}

func (s *store) SetStatus(ctx context.Context, shopID snowflake.ID, status shopdomain.Status) error {
	result := s.db.WithContext(ctx).
		Model(&shopdomain.Shop{}).
		Where("id = ?", shopID).
		Updates(map[string]any{
			"status":     status,
			"updated_at": s.now(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected > 0 {
		return nil
	}

	// MySQL reports zero affected rows when nothing changed.
	var count int64
	if err := s.db.WithContext(ctx).Model(&shopdomain.Shop{}).Where("id = ?", shopID).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return shopdomain.ErrShopNotFound
	}
	return nil
}

func (s *store) now() time.Time {
	if s.clock == nil {
		return time.Now().UTC()
	}
	return s.clock.Now().UTC()
}
