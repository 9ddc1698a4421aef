package repository

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/subkit/internal/plan/domain"
	"github.com/smallbiznis/subkit/pkg/db/pagination"
	"gorm.io/gorm"
)

type repo struct {
	db *gorm.DB
}

func New(conn *gorm.DB) domain.Repository {
	return &repo{db: conn}
}

func (r *repo) Create(ctx context.Context, plan *domain.Plan) error {
	return r.db.WithContext(ctx).Create(plan).Error
}

func (r *repo) Save(ctx context.Context, plan *domain.Plan) error {
	return r.db.WithContext(ctx).Save(plan).Error
}

func (r *repo) FindByID(ctx context.Context, id snowflake.ID) (*domain.Plan, error) {
	return r.first(ctx, "id = ?", id)
}

func (r *repo) FindByExternalPriceID(ctx context.Context, priceID string) (*domain.Plan, error) {
	return r.first(ctx, "external_price_id = ?", priceID)
}

func (r *repo) FindByCode(ctx context.Context, code string) (*domain.Plan, error) {
	return r.first(ctx, "code = ?", code)
}

func (r *repo) first(ctx context.Context, query string, args ...any) (*domain.Plan, error) {
	var plan domain.Plan
	err := r.db.WithContext(ctx).Where(query, args...).First(&plan).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrPlanNotFound
	}
	if err != nil {
		return nil, err
	}
	return &plan, nil
}

// ListActive returns up to limit plans ordered by (amount, id) strictly after
// the cursor.
func (r *repo) ListActive(ctx context.Context, after *pagination.Cursor, limit int) ([]domain.Plan, error) {
	q := r.db.WithContext(ctx).
		Model(&domain.Plan{}).
		Where("is_active = ?", true)

	if after != nil {
		amount, err := decimal.NewFromString(after.Value)
		if err != nil {
			return nil, pagination.ErrInvalidPageToken
		}
		id, err := snowflake.ParseString(after.ID)
		if err != nil {
			return nil, pagination.ErrInvalidPageToken
		}
		q = q.Where("(amount > ?) OR (amount = ? AND id > ?)", amount, amount, id)
	}

	var plans []domain.Plan
	err := q.Order("amount ASC").Order("id ASC").Limit(limit).Find(&plans).Error
	return plans, err
}

func (r *repo) ListAll(ctx context.Context) ([]domain.Plan, error) {
	var plans []domain.Plan
	err := r.db.WithContext(ctx).Order("id ASC").Find(&plans).Error
	return plans, err
}
