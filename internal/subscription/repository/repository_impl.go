package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/subkit/internal/subscription/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, sub *domain.Subscription) error {
	return db.WithContext(ctx).Create(sub).Error
}

func (r *repo) Save(ctx context.Context, db *gorm.DB, sub *domain.Subscription) error {
	return db.WithContext(ctx).
		Model(&domain.Subscription{}).
		Where("id = ?", sub.ID).
		Select("*").
		Omit("id", "account_id", "created_at").
		Updates(sub).Error
}

func (r *repo) FindByAccountID(ctx context.Context, db *gorm.DB, accountID snowflake.ID) (*domain.Subscription, error) {
	return first(db.WithContext(ctx), "account_id = ?", accountID)
}

// FindByAccountIDForUpdate locks the row until the surrounding transaction ends.
// Dialects without row locks (sqlite) ignore the clause and rely on the
// database-level write lock instead.
func (r *repo) FindByAccountIDForUpdate(ctx context.Context, db *gorm.DB, accountID snowflake.ID) (*domain.Subscription, error) {
	return first(db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}), "account_id = ?", accountID)
}

func (r *repo) FindByExternalID(ctx context.Context, db *gorm.DB, externalID string) (*domain.Subscription, error) {
	return first(db.WithContext(ctx), "external_subscription_id = ?", externalID)
}

func (r *repo) FindByExternalIDForUpdate(ctx context.Context, db *gorm.DB, externalID string) (*domain.Subscription, error) {
	return first(db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}), "external_subscription_id = ?", externalID)
}

func first(q *gorm.DB, query string, args ...any) (*domain.Subscription, error) {
	var sub domain.Subscription
	err := q.Where(query, args...).First(&sub).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrSubscriptionNotFound
	}
	if err != nil {
		return nil, err
	}
	sub.Refresh()
	return &sub, nil
}

func (r *repo) ListSweepCandidates(ctx context.Context, db *gorm.DB, statuses []domain.Status, limit int) ([]domain.Subscription, error) {
	var subs []domain.Subscription
	err := db.WithContext(ctx).
		Model(&domain.Subscription{}).
		Joins("JOIN accounts ON accounts.id = subscriptions.account_id").
		Where("accounts.external_customer_id IS NOT NULL").
		Where("subscriptions.status IN ?", statuses).
		Order("subscriptions.reconciled_at IS NOT NULL").
		Order("subscriptions.reconciled_at ASC").
		Order("subscriptions.id ASC").
		Limit(limit).
		Find(&subs).Error
	if err != nil {
		return nil, err
	}
	for i := range subs {
		subs[i].Refresh()
	}
	return subs, nil
}

func (r *repo) MarkReconciled(ctx context.Context, db *gorm.DB, id snowflake.ID, at time.Time) error {
	return db.WithContext(ctx).
		Model(&domain.Subscription{}).
		Where("id = ?", id).
		UpdateColumn("reconciled_at", at).Error
}
