package authorization

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
)

const (
	RoleOwner  = "owner"
	RoleAdmin  = "admin"
	RoleSystem = "system"
)

const (
	ObjectSubscription = "subscription"
	ObjectBanner       = "banner"
	ObjectOrder        = "order"
	ObjectCascade      = "cascade"
)

const (
	ActionView   = "view"
	ActionCreate = "create"
	ActionRetry  = "retry"
	ActionCancel = "cancel"
	ActionReplay = "replay"
)

// Actor identifies who is asking. An empty role is treated as an owner.
type Actor struct {
	ID   snowflake.ID
	Role string
}

// SystemActor is used by background jobs.
var SystemActor = Actor{Role: RoleSystem}

func (a Actor) NormalizedRole() string {
	role := strings.ToLower(strings.TrimSpace(a.Role))
	if role == "" {
		return RoleOwner
	}
	return role
}

type Service interface {
	Authorize(ctx context.Context, actor Actor, ownerID snowflake.ID, object string, action string) error
}
