package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// AttemptUpdate is the result of minting a fresh payment link for a retry.
type AttemptUpdate struct {
	PreferenceID string
	CheckoutURL  string
	At           time.Time
}

// Repository persists payable resources. Every method takes the handle to run
// on so callers can compose calls inside one transaction.
type Repository interface {
	FindByID(ctx context.Context, db *gorm.DB, kind Kind, id snowflake.ID) (Resource, error)
	FindForUpdate(ctx context.Context, db *gorm.DB, kind Kind, id snowflake.ID) (Resource, error)
	Insert(ctx context.Context, db *gorm.DB, res Resource) error
	// ApplyTransition writes t only if the row still carries the resource's
	// version and the transition's source state.
	ApplyTransition(ctx context.Context, db *gorm.DB, res Resource, t Transition) (bool, error)
	// RecordAttempt bumps payment_attempts and stores the new link under the
	// same version guard as ApplyTransition.
	RecordAttempt(ctx context.Context, db *gorm.DB, res Resource, update AttemptUpdate) (bool, error)
	CountByState(ctx context.Context, db *gorm.DB, kind Kind, ownerID snowflake.ID, state State) (int64, error)
	ListExpired(ctx context.Context, db *gorm.DB, kind Kind, now time.Time, limit int) ([]snowflake.ID, error)
}
