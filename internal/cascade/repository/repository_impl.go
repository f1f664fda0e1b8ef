package repository

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	cascadedomain "github.com/smallbiznis/marketpay/internal/cascade/domain"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() cascadedomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, jobs []cascadedomain.Job) error {
	if len(jobs) == 0 {
		return nil
	}
	return db.WithContext(ctx).Create(&jobs).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*cascadedomain.Job, error) {
	var job cascadedomain.Job
	err := db.WithContext(ctx).Where("id = ?", id).Take(&job).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &job, nil
}

func (r *repo) Claim(ctx context.Context, db *gorm.DB, id snowflake.ID, from []cascadedomain.Status, at time.Time) (bool, error) {
	result := db.WithContext(ctx).
		Model(&cascadedomain.Job{}).
		Where("id = ? AND status IN ?", id, from).
		Updates(map[string]any{
			"status":     cascadedomain.StatusRunning,
			"attempts":   gorm.Expr("attempts + 1"),
			"started_at": at,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *repo) Complete(ctx context.Context, db *gorm.DB, id snowflake.ID, outcome cascadedomain.Outcome) error {
	targets := outcome.FailedTargets
	if targets == nil {
		targets = []string{}
	}
	raw, err := json.Marshal(targets)
	if err != nil {
		return err
	}

	return db.WithContext(ctx).
		Model(&cascadedomain.Job{}).
		Where("id = ? AND status = ?", id, cascadedomain.StatusRunning).
		Updates(map[string]any{
			"status":         outcome.Status,
			"last_error":     outcome.LastError,
			"failed_targets": datatypes.JSON(raw),
			"completed_at":   outcome.CompletedAt,
		}).Error
}

func (r *repo) Reclaim(ctx context.Context, db *gorm.DB, id snowflake.ID, startedBefore, at time.Time) (bool, error) {
	result := db.WithContext(ctx).
		Model(&cascadedomain.Job{}).
		Where("id = ? AND status = ? AND started_at <= ?", id, cascadedomain.StatusRunning, startedBefore).
		Updates(map[string]any{
			"attempts":   gorm.Expr("attempts + 1"),
			"started_at": at,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// ListStale returns abandoned jobs, oldest first.
func (r *repo) ListStale(ctx context.Context, db *gorm.DB, createdBefore, startedBefore time.Time, limit int) ([]cascadedomain.Job, error) {
	if limit <= 0 {
		limit = 100
	}
	var jobs []cascadedomain.Job
	err := db.WithContext(ctx).
		Where("(status = ? AND created_at <= ?) OR (status = ? AND started_at <= ?)",
			cascadedomain.StatusPending, createdBefore,
			cascadedomain.StatusRunning, startedBefore,
		).
		Order("created_at ASC").
		Limit(limit).
		Find(&jobs).Error
	if err != nil {
		return nil, err
	}
	return jobs, nil
}
