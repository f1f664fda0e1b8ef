package repository

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/marketpay/internal/dbtest"
	reconciliationdomain "github.com/smallbiznis/marketpay/internal/reconciliation/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLedgerInsertIsIdempotent(t *testing.T) {
	db := dbtest.Open(t)
	repo := Provide()
	ctx := context.Background()

	entry := func(id int64) *reconciliationdomain.LedgerEntry {
		return &reconciliationdomain.LedgerEntry{
			ID:               snowflake.ID(id),
			GatewayPaymentID: "pay-1",
			ResourceKind:     "banner",
			ResourceID:       10,
			GatewayStatus:    "approved",
			Outcome:          reconciliationdomain.OutcomeApplied,
			FromState:        "PENDING",
			ToState:          "ACTIVE",
			ProcessedAt:      time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		}
	}

	inserted, err := repo.Insert(ctx, db, entry(1))
	require.NoError(t, err)
	assert.True(t, inserted)

	inserted, err = repo.Insert(ctx, db, entry(2))
	require.NoError(t, err)
	assert.False(t, inserted)

	found, err := repo.Find(ctx, db, "pay-1")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, int64(1), found.ID.Int64())

	result := found.Result()
	assert.True(t, result.Duplicate)
	assert.Equal(t, reconciliationdomain.OutcomeApplied, result.Outcome)

	missing, err := repo.Find(ctx, db, "pay-2")
	require.NoError(t, err)
	assert.Nil(t, missing)
}
