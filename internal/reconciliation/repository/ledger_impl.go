package repository

import (
	"context"
	"errors"
	"strings"

	reconciliationdomain "github.com/smallbiznis/marketpay/internal/reconciliation/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ledgerRepo struct{}

func Provide() reconciliationdomain.LedgerRepository {
	return &ledgerRepo{}
}

func (r *ledgerRepo) Find(ctx context.Context, db *gorm.DB, gatewayPaymentID string) (*reconciliationdomain.LedgerEntry, error) {
	var entry reconciliationdomain.LedgerEntry
	err := db.WithContext(ctx).
		Where("gateway_payment_id = ?", strings.TrimSpace(gatewayPaymentID)).
		Take(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

func (r *ledgerRepo) Insert(ctx context.Context, db *gorm.DB, entry *reconciliationdomain.LedgerEntry) (bool, error) {
	result := db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "gateway_payment_id"}},
			DoNothing: true,
		}).
		Create(entry)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}
