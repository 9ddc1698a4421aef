// Package domain defines billing plans as mirrored from processor prices.
package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/subkit/pkg/db/pagination"
	"gorm.io/datatypes"
)

type Interval string

const (
	IntervalMonth Interval = "month"
	IntervalYear  Interval = "year"
)

type Plan struct {
	ID                snowflake.ID                `json:"id" gorm:"primaryKey"`
	Code              string                      `json:"code" gorm:"type:varchar(255);not null;uniqueIndex"`
	Name              string                      `json:"name" gorm:"type:text;not null"`
	Description       string                      `json:"description" gorm:"type:text;not null;default:''"`
	ExternalPriceID   string                      `json:"external_price_id" gorm:"type:varchar(255);not null;uniqueIndex"`
	ExternalProductID string                      `json:"-" gorm:"type:text"`
	Amount            decimal.Decimal             `json:"amount" gorm:"type:numeric(12,2);not null"`
	Currency          string                      `json:"currency" gorm:"type:text;not null;default:'usd'"`
	Interval          Interval                    `json:"interval" gorm:"type:text;not null"`
	Features          datatypes.JSONSlice[string] `json:"features" gorm:"not null"`
	IsActive          bool                        `json:"is_active" gorm:"not null;default:true;index"`
	CreatedAt         time.Time                   `json:"created_at" gorm:"not null"`
	UpdatedAt         time.Time                   `json:"updated_at" gorm:"not null"`
}

func (Plan) TableName() string { return "plans" }

type SyncResult struct {
	Created     int `json:"created"`
	Updated     int `json:"updated"`
	Deactivated int `json:"deactivated"`
}

type Repository interface {
	Create(ctx context.Context, plan *Plan) error
	Save(ctx context.Context, plan *Plan) error
	FindByID(ctx context.Context, id snowflake.ID) (*Plan, error)
	FindByExternalPriceID(ctx context.Context, priceID string) (*Plan, error)
	FindByCode(ctx context.Context, code string) (*Plan, error)
	ListActive(ctx context.Context, after *pagination.Cursor, limit int) ([]Plan, error)
	ListAll(ctx context.Context) ([]Plan, error)
}

type Service interface {
	Get(ctx context.Context, id snowflake.ID) (*Plan, error)
	// GetActive fails with ErrPlanNotFound for unknown and inactive plans alike.
	GetActive(ctx context.Context, id snowflake.ID) (*Plan, error)
	FindByExternalPriceID(ctx context.Context, priceID string) (*Plan, error)
	ListActive(ctx context.Context, page pagination.Pagination) ([]Plan, pagination.PageInfo, error)
	Sync(ctx context.Context) (SyncResult, error)
}
