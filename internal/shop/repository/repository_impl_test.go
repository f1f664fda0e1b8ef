package repository

import (
	"context"
	"testing"

	"github.com/smallbiznis/marketpay/internal/clock"
	"github.com/smallbiznis/marketpay/internal/dbtest"
	shopdomain "github.com/smallbiznis/marketpay/internal/shop/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetStatusIsIdempotent(t *testing.T) {
	db := dbtest.Open(t)
	dbtest.SeedShop(t, db, 100, 1, "suspended")
	dbtest.SeedShop(t, db, 101, 1, "suspended")
	dbtest.SeedShop(t, db, 200, 2, "suspended")

	store := Provide(db, clock.NewSystemClock())
	ctx := context.Background()

	shops, err := store.ListByOwner(ctx, 1)
	require.NoError(t, err)
	require.Len(t, shops, 2)

	require.NoError(t, store.SetStatus(ctx, 100, shopdomain.StatusActive))
	require.NoError(t, store.SetStatus(ctx, 100, shopdomain.StatusActive))

	shops, err = store.ListByOwner(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, shopdomain.StatusActive, shops[0].Status)
	assert.Equal(t, shopdomain.StatusSuspended, shops[1].Status)

	assert.ErrorIs(t, store.SetStatus(ctx, 999, shopdomain.StatusActive), shopdomain.ErrShopNotFound)
}
