package repository

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/marketpay/internal/dbtest"
	payabledomain "github.com/smallbiznis/marketpay/internal/payable/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBanner(id, owner int64, state payabledomain.State, at time.Time) *payabledomain.Banner {
	preference := "pref-1"
	return &payabledomain.Banner{
		Payable: payabledomain.Payable{
			ID:                  snowflakeID(id),
			OwnerID:             snowflakeID(owner),
			State:               state,
			Amount:              decimal.RequireFromString("99.90"),
			Currency:            "ARS",
			GatewayPreferenceID: &preference,
			PaymentAttempts:     1,
			Version:             1,
			CreatedAt:           at,
			UpdatedAt:           at,
		},
		Title:     "Summer sale",
		TargetURL: "https://shop.example.com",
	}
}

func TestInsertAndFind(t *testing.T) {
	db := dbtest.Open(t)
	repo := Provide()
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, repo.Insert(ctx, db, newBanner(10, 1, payabledomain.StatePending, now)))

	res, err := repo.FindByID(ctx, db, payabledomain.KindBanner, 10)
	require.NoError(t, err)
	require.NotNil(t, res)
	banner, ok := res.(*payabledomain.Banner)
	require.True(t, ok)
	assert.Equal(t, "Summer sale", banner.Title)
	assert.Equal(t, payabledomain.StatePending, banner.State)
	assert.True(t, decimal.RequireFromString("99.9").Equal(banner.Amount))

	missing, err := repo.FindForUpdate(ctx, db, payabledomain.KindBanner, 11)
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestApplyTransitionGuardsVersion(t *testing.T) {
	db := dbtest.Open(t)
	repo := Provide()
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, repo.Insert(ctx, db, newBanner(10, 1, payabledomain.StatePending, now)))

	first, err := repo.FindForUpdate(ctx, db, payabledomain.KindBanner, 10)
	require.NoError(t, err)
	stale, err := repo.FindByID(ctx, db, payabledomain.KindBanner, 10)
	require.NoError(t, err)

	expires := now.AddDate(0, 0, 30)
	transition, ok := payabledomain.Plan(first, payabledomain.EventApprove, now)
	require.True(t, ok)
	transition.GatewayPaymentID = "pay-1"
	transition.ExpiresAt = &expires

	applied, err := repo.ApplyTransition(ctx, db, first, transition)
	require.NoError(t, err)
	assert.True(t, applied)
	assert.Equal(t, payabledomain.StateActive, first.Base().State)
	assert.Equal(t, int64(2), first.Base().Version)

	staleTransition, ok := payabledomain.Plan(stale, payabledomain.EventReject, now)
	require.True(t, ok)
	applied, err = repo.ApplyTransition(ctx, db, stale, staleTransition)
	require.NoError(t, err)
	assert.False(t, applied)

	stored, err := repo.FindByID(ctx, db, payabledomain.KindBanner, 10)
	require.NoError(t, err)
	base := stored.Base()
	assert.Equal(t, payabledomain.StateActive, base.State)
	require.NotNil(t, base.GatewayPaymentID)
	assert.Equal(t, "pay-1", *base.GatewayPaymentID)
	require.NotNil(t, base.ActivatedAt)
	assert.True(t, now.Equal(*base.ActivatedAt))
	require.NotNil(t, base.ExpiresAt)
	assert.True(t, expires.Equal(*base.ExpiresAt))
	assert.Nil(t, base.FailedAt)
}

func TestRecordAttempt(t *testing.T) {
	db := dbtest.Open(t)
	repo := Provide()
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, repo.Insert(ctx, db, newBanner(10, 1, payabledomain.StateFailed, now)))
	res, err := repo.FindByID(ctx, db, payabledomain.KindBanner, 10)
	require.NoError(t, err)

	ok, err := repo.RecordAttempt(ctx, db, res, payabledomain.AttemptUpdate{
		PreferenceID: "pref-2",
		CheckoutURL:  "https://checkout.example.com/pref-2",
		At:           now.Add(time.Minute),
	})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 2, res.Base().PaymentAttempts)

	stored, err := repo.FindByID(ctx, db, payabledomain.KindBanner, 10)
	require.NoError(t, err)
	assert.Equal(t, 2, stored.Base().PaymentAttempts)
	assert.Equal(t, payabledomain.StateFailed, stored.Base().State)
	assert.Equal(t, "pref-2", *stored.Base().GatewayPreferenceID)

	stale := newBanner(10, 1, payabledomain.StateFailed, now)
	ok, err = repo.RecordAttempt(ctx, db, stale, payabledomain.AttemptUpdate{PreferenceID: "pref-3", At: now})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCountAndListExpired(t *testing.T) {
	db := dbtest.Open(t)
	repo := Provide()
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	expired := newBanner(10, 1, payabledomain.StateActive, now)
	expired.ExpiresAt = &past
	live := newBanner(11, 1, payabledomain.StateActive, now)
	live.ExpiresAt = &future
	pending := newBanner(12, 1, payabledomain.StatePending, now)
	other := newBanner(13, 2, payabledomain.StateActive, now)

	for _, b := range []*payabledomain.Banner{expired, live, pending, other} {
		require.NoError(t, repo.Insert(ctx, db, b))
	}

	count, err := repo.CountByState(ctx, db, payabledomain.KindBanner, 1, payabledomain.StateActive)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	ids, err := repo.ListExpired(ctx, db, payabledomain.KindBanner, now, 10)
	require.NoError(t, err)
	require.Len(t, ids, 1)
	assert.Equal(t, int64(10), ids[0].Int64())
}

func snowflakeID(v int64) snowflake.ID {
	return snowflake.ID(v)
}
