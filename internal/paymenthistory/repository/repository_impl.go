package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/subkit/internal/paymenthistory/domain"
	"github.com/smallbiznis/subkit/pkg/db"
	"github.com/smallbiznis/subkit/pkg/db/pagination"
	"gorm.io/gorm"
)

type repo struct {
	db *gorm.DB
}

func New(conn *gorm.DB) domain.Repository {
	return &repo{db: conn}
}

func (r *repo) Insert(ctx context.Context, entry *domain.Entry) error {
	err := r.db.WithContext(ctx).Create(entry).Error
	if db.IsDuplicateKeyErr(err) {
		return domain.ErrDuplicateEntry
	}
	return err
}

// ListByAccount walks the account's entries newest first, strictly after the
// cursor's (created_at, id).
func (r *repo) ListByAccount(ctx context.Context, accountID snowflake.ID, after *pagination.Cursor, limit int) ([]domain.Entry, error) {
	q := r.db.WithContext(ctx).
		Model(&domain.Entry{}).
		Where("account_id = ?", accountID)

	if after != nil {
		createdAt, err := time.Parse(time.RFC3339Nano, after.CreatedAt)
		if err != nil {
			return nil, pagination.ErrInvalidPageToken
		}
		id, err := snowflake.ParseString(after.ID)
		if err != nil {
			return nil, pagination.ErrInvalidPageToken
		}
		q = q.Where("(created_at < ?) OR (created_at = ? AND id < ?)", createdAt.UTC(), createdAt.UTC(), id)
	}

	var entries []domain.Entry
	err := q.Order("created_at DESC").Order("id DESC").Limit(limit).Find(&entries).Error
	return entries, err
}
