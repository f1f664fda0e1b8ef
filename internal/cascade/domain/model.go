package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/marketpay/internal/authorization"
	payabledomain "github.com/smallbiznis/marketpay/internal/payable/domain"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Effect is the kind of downstream work a transition triggers.
type Effect string

const (
	EffectActivateShops Effect = "activate_shops"
	EffectSuspendShops  Effect = "suspend_shops"
	EffectNotify        Effect = "notify"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusPartial   Status = "partial"
	StatusFailed    Status = "failed"
)

const (
	TemplateSubscriptionActivated = "subscription_activated"
	TemplateSubscriptionCancelled = "subscription_cancelled"
	TemplateOrderConfirmation     = "order_confirmation"
)

// Job is one unit of cascade work, written in the same transaction as the
// transition that caused it.
type Job struct {
	ID            snowflake.ID   `gorm:"column:id;primaryKey;autoIncrement:false" json:"id"`
	ResourceKind  string         `gorm:"column:resource_kind;type:text;not null" json:"resource_kind"`
	ResourceID    snowflake.ID   `gorm:"column:resource_id;not null" json:"resource_id"`
	OwnerID       snowflake.ID   `gorm:"column:owner_id;not null" json:"owner_id"`
	Effect        Effect         `gorm:"column:effect;type:text;not null" json:"effect"`
	Template      string         `gorm:"column:template;type:text" json:"template,omitempty"`
	Payload       datatypes.JSON `gorm:"column:payload" json:"payload,omitempty"`
	Status        Status         `gorm:"column:status;type:text;not null" json:"status"`
	Attempts      int            `gorm:"column:attempts;not null" json:"attempts"`
	LastError     string         `gorm:"column:last_error;type:text" json:"last_error,omitempty"`
	FailedTargets datatypes.JSON `gorm:"column:failed_targets" json:"failed_targets,omitempty"`
	CreatedAt     time.Time      `gorm:"column:created_at;not null" json:"created_at"`
	StartedAt     *time.Time     `gorm:"column:started_at" json:"started_at,omitempty"`
	CompletedAt   *time.Time     `gorm:"column:completed_at" json:"completed_at,omitempty"`
}

func (Job) TableName() string { return "cascade_jobs" }

// Outcome is the terminal bookkeeping written after a job ran.
type Outcome struct {
	Status        Status
	LastError     string
	FailedTargets []string
	CompletedAt   time.Time
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, jobs []Job) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Job, error)
	// Claim moves the job to running if it is still in one of from.
	Claim(ctx context.Context, db *gorm.DB, id snowflake.ID, from []Status, at time.Time) (bool, error)
	// Reclaim restarts a running job whose start is not after startedBefore.
	Reclaim(ctx context.Context, db *gorm.DB, id snowflake.ID, startedBefore, at time.Time) (bool, error)
	Complete(ctx context.Context, db *gorm.DB, id snowflake.ID, outcome Outcome) error
	// ListStale returns pending jobs created before createdBefore and running
	// jobs started before startedBefore.
	ListStale(ctx context.Context, db *gorm.DB, createdBefore, startedBefore time.Time, limit int) ([]Job, error)
}

// Notifier delivers a templated message to a resource owner.
type Notifier interface {
	Send(ctx context.Context, ownerID snowflake.ID, template string, payload map[string]any) bool
}

type ReplayRequest struct {
	JobID snowflake.ID
	Actor authorization.Actor
}

type Service interface {
	// Enqueue persists the jobs a committed transition implies, on tx.
	Enqueue(ctx context.Context, tx *gorm.DB, res payabledomain.Resource, t payabledomain.Transition) ([]Job, error)
	// Dispatch runs jobs after the transaction that enqueued them committed.
	Dispatch(ctx context.Context, jobs []Job)
	Replay(ctx context.Context, req ReplayRequest) (*Job, error)
	RecoverPending(ctx context.Context, olderThan time.Duration, limit int) (int, error)
}
