package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/subkit/internal/webhook/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct {
	db *gorm.DB
}

func New(conn *gorm.DB) domain.Repository {
	return &repo{db: conn}
}

func (r *repo) Insert(ctx context.Context, event *domain.Event) (bool, error) {
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "provider"}, {Name: "provider_event_id"}},
			DoNothing: true,
		}).
		Create(event)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) Find(ctx context.Context, provider, providerEventID string) (*domain.Event, error) {
	var event domain.Event
	err := r.db.WithContext(ctx).
		Where("provider = ? AND provider_event_id = ?", provider, providerEventID).
		First(&event).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrEventNotFound
	}
	if err != nil {
		return nil, err
	}
	return &event, nil
}

func (r *repo) MarkDone(ctx context.Context, id snowflake.ID, status domain.Status, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&domain.Event{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":       status,
			"error":        "",
			"processed_at": at,
		}).Error
}

func (r *repo) MarkFailed(ctx context.Context, id snowflake.ID, reason string) error {
	return r.db.WithContext(ctx).
		Model(&domain.Event{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status": domain.StatusFailed,
			"error":  reason,
		}).Error
}
