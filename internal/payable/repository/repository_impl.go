package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	payabledomain "github.com/smallbiznis/marketpay/internal/payable/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() payabledomain.Repository {
	return &repo{}
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, kind payabledomain.Kind, id snowflake.ID) (payabledomain.Resource, error) {
	return r.find(ctx, db, kind, id, false)
}

// FindForUpdate row-locks the resource until the surrounding transaction ends.
// Dialects without row locks (sqlite) ignore the clause.
func (r *repo) FindForUpdate(ctx context.Context, db *gorm.DB, kind payabledomain.Kind, id snowflake.ID) (payabledomain.Resource, error) {
	return r.find(ctx, db, kind, id, true)
}

func (r *repo) find(ctx context.Context, db *gorm.DB, kind payabledomain.Kind, id snowflake.ID, lock bool) (payabledomain.Resource, error) {
	res, err := payabledomain.NewResource(kind)
	if err != nil {
		return nil, err
	}

	query := db.WithContext(ctx)
	if lock {
		query = query.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	err = query.Where("id = ?", id).Take(res).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, res payabledomain.Resource) error {
	return db.WithContext(ctx).Create(res).Error
}

func (r *repo) ApplyTransition(ctx context.Context, db *gorm.DB, res payabledomain.Resource, t payabledomain.Transition) (bool, error) {
	base := res.Base()
	updates := map[string]any{
		"state":      t.To,
		"version":    base.Version + 1,
		"updated_at": t.At,
	}
	if t.GatewayPaymentID != "" {
		updates["gateway_payment_id"] = t.GatewayPaymentID
	}
	switch t.To {
	case payabledomain.StateActive, payabledomain.StatePaid:
		if base.ActivatedAt == nil {
			updates["activated_at"] = t.At
		}
	case payabledomain.StateFailed:
		if base.FailedAt == nil {
			updates["failed_at"] = t.At
		}
	case payabledomain.StateCancelled:
		updates["cancelled_at"] = t.At
	}
	if t.ExpiresAt != nil {
		updates["expires_at"] = *t.ExpiresAt
	}

	result := db.WithContext(ctx).
		Table(res.Kind().Table()).
		Where("id = ? AND version = ? AND state = ?", base.ID, base.Version, t.From).
		Updates(updates)
	if result.Error != nil {
		return false, result.Error
	}
	if result.RowsAffected == 0 {
		return false, nil
	}

	payabledomain.Apply(res, t)
	return true, nil
}

func (r *repo) RecordAttempt(ctx context.Context, db *gorm.DB, res payabledomain.Resource, update payabledomain.AttemptUpdate) (bool, error) {
	base := res.Base()
	result := db.WithContext(ctx).
		Table(res.Kind().Table()).
		Where("id = ? AND version = ? AND state IN ?", base.ID, base.Version, []payabledomain.State{
			payabledomain.StatePending,
			payabledomain.StateFailed,
		}).
		Updates(map[string]any{
			"payment_attempts":      base.PaymentAttempts + 1,
			"gateway_preference_id": update.PreferenceID,
			"checkout_url":          update.CheckoutURL,
			"version":               base.Version + 1,
			"updated_at":            update.At,
		})
	if result.Error != nil {
		return false, result.Error
	}
	if result.RowsAffected == 0 {
		return false, nil
	}

	preferenceID := update.PreferenceID
	checkoutURL := update.CheckoutURL
	base.PaymentAttempts++
	base.GatewayPreferenceID = &preferenceID
	base.CheckoutURL = &checkoutURL
	base.Version++
	base.UpdatedAt = update.At
	return true, nil
}

func (r *repo) CountByState(ctx context.Context, db *gorm.DB, kind payabledomain.Kind, ownerID snowflake.ID, state payabledomain.State) (int64, error) {
	var count int64
	err := db.WithContext(ctx).
		Table(kind.Table()).
		Where("owner_id = ? AND state = ?", ownerID, state).
		Count(&count).Error
	return count, err
}

func (r *repo) ListExpired(ctx context.Context, db *gorm.DB, kind payabledomain.Kind, now time.Time, limit int) ([]snowflake.ID, error) {
	if limit <= 0 {
		limit = 100
	}
	var ids []snowflake.ID
	err := db.WithContext(ctx).
		Table(kind.Table()).
		Where("state = ? AND expires_at IS NOT NULL AND expires_at <= ?", payabledomain.StateActive, now).
		Order("expires_at ASC").
		Limit(limit).
		Pluck("id", &ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}
