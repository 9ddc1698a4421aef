package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/subkit/internal/notification/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct {
	db *gorm.DB
}

func New(conn *gorm.DB) domain.Repository {
	return &repo{db: conn}
}

func (r *repo) Enqueue(ctx context.Context, job *domain.Job) error {
	return r.db.WithContext(ctx).Create(job).Error
}

// ClaimDue leases due jobs. SKIP LOCKED lets several workers poll the same
// table without handing out a job twice; the lease covers the send itself.
func (r *repo) ClaimDue(ctx context.Context, now time.Time, lease time.Duration, limit int) ([]domain.Job, error) {
	var jobs []domain.Job
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.
			Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
			Where("status = ?", domain.JobStatusPending).
			Where("next_attempt_at <= ?", now).
			Where("locked_until IS NULL OR locked_until < ?", now).
			Order("next_attempt_at ASC").
			Order("id ASC").
			Limit(limit).
			Find(&jobs).Error; err != nil {
			return err
		}
		if len(jobs) == 0 {
			return nil
		}

		ids := make([]snowflake.ID, 0, len(jobs))
		for _, job := range jobs {
			ids = append(ids, job.ID)
		}
		until := now.Add(lease)
		if err := tx.Model(&domain.Job{}).
			Where("id IN ?", ids).
			Updates(map[string]any{"locked_until": until, "updated_at": now}).Error; err != nil {
			return err
		}
		for i := range jobs {
			jobs[i].LockedUntil = &until
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return jobs, nil
}

func (r *repo) MarkSent(ctx context.Context, id snowflake.ID, now time.Time) error {
	return r.update(ctx, id, map[string]any{
		"status":       domain.JobStatusSent,
		"sent_at":      now,
		"locked_until": nil,
		"last_error":   "",
		"updated_at":   now,
	})
}

func (r *repo) MarkRetry(ctx context.Context, id snowflake.ID, attempts int, next time.Time, lastErr string, now time.Time) error {
	return r.update(ctx, id, map[string]any{
		"attempts":        attempts,
		"next_attempt_at": next,
		"locked_until":    nil,
		"last_error":      lastErr,
		"updated_at":      now,
	})
}

func (r *repo) MarkDead(ctx context.Context, id snowflake.ID, attempts int, lastErr string, now time.Time) error {
	return r.update(ctx, id, map[string]any{
		"status":       domain.JobStatusDead,
		"attempts":     attempts,
		"locked_until": nil,
		"last_error":   lastErr,
		"updated_at":   now,
	})
}

func (r *repo) update(ctx context.Context, id snowflake.ID, fields map[string]any) error {
	tx := r.db.WithContext(ctx).Model(&domain.Job{}).Where("id = ?", id).Updates(fields)
	if tx.Error != nil {
		return tx.Error
	}
	if tx.RowsAffected == 0 {
		return domain.ErrJobNotFound
	}
	return nil
}

func (r *repo) Get(ctx context.Context, id snowflake.ID) (*domain.Job, error) {
	var job domain.Job
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&job).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrJobNotFound
	}
	if err != nil {
		return nil, err
	}
	return &job, nil
}
