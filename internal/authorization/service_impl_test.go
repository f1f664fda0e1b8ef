package authorization

import (
	"context"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestService(t *testing.T) Service {
	t.Helper()
	enforcer, err := NewMemoryEnforcer()
	require.NoError(t, err)
	return NewService(Params{Log: zap.NewNop(), Enforcer: enforcer})
}

func TestAuthorizeOwner(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	owner := Actor{ID: snowflake.ID(10)}

	assert.NoError(t, svc.Authorize(ctx, owner, 10, ObjectBanner, ActionRetry))
	assert.NoError(t, svc.Authorize(ctx, owner, 10, ObjectSubscription, ActionCancel))
	assert.ErrorIs(t, svc.Authorize(ctx, owner, 11, ObjectBanner, ActionRetry), ErrForbidden)
	assert.ErrorIs(t, svc.Authorize(ctx, owner, 10, ObjectOrder, ActionRetry), ErrForbidden)
	assert.ErrorIs(t, svc.Authorize(ctx, owner, 0, ObjectCascade, ActionReplay), ErrForbidden)
}

func TestAuthorizeAdminAndSystem(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	admin := Actor{ID: 99, Role: "Admin"}
	assert.NoError(t, svc.Authorize(ctx, admin, 10, ObjectCascade, ActionReplay))
	assert.NoError(t, svc.Authorize(ctx, admin, 10, ObjectBanner, ActionRetry))

	assert.NoError(t, svc.Authorize(ctx, SystemActor, 10, ObjectSubscription, ActionCancel))
}

func TestAuthorizeRejectsInvalidInput(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	assert.ErrorIs(t, svc.Authorize(ctx, Actor{}, 10, ObjectBanner, ActionRetry), ErrInvalidActor)
	assert.ErrorIs(t, svc.Authorize(ctx, Actor{ID: 1, Role: "guest"}, 1, ObjectBanner, ActionRetry), ErrInvalidActor)
	assert.ErrorIs(t, svc.Authorize(ctx, Actor{ID: 1}, 1, "", ActionRetry), ErrInvalidObject)
	assert.ErrorIs(t, svc.Authorize(ctx, Actor{ID: 1}, 1, ObjectBanner, " "), ErrInvalidAction)
}
