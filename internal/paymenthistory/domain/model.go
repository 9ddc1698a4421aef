// Package domain defines the append-only payment history log.
package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/subkit/pkg/db/pagination"
)

type Status string

const (
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusPending   Status = "pending"
	StatusRefunded  Status = "refunded"
)

func (s Status) Valid() bool {
	switch s {
	case StatusSucceeded, StatusFailed, StatusPending, StatusRefunded:
		return true
	default:
		return false
	}
}

type Entry struct {
	ID                      snowflake.ID    `json:"id" gorm:"primaryKey"`
	AccountID               snowflake.ID    `json:"account_id" gorm:"not null;index:idx_payment_history_account,priority:1"`
	SubscriptionID          *snowflake.ID   `json:"subscription_id"`
	ExternalInvoiceID       string          `json:"external_invoice_id" gorm:"type:text;not null;default:''"`
	ExternalPaymentIntentID string          `json:"external_payment_intent_id" gorm:"type:text;not null;default:''"`
	ExternalEventID         *string         `json:"-" gorm:"type:varchar(255);uniqueIndex"`
	Amount                  decimal.Decimal `json:"amount" gorm:"type:numeric(12,2);not null"`
	Currency                string          `json:"currency" gorm:"type:text;not null;default:'usd'"`
	Status                  Status          `json:"status" gorm:"type:text;not null"`
	Description             string          `json:"description" gorm:"type:text;not null;default:''"`
	CreatedAt               time.Time       `json:"created_at" gorm:"not null;index:idx_payment_history_account,priority:2"`
}

func (Entry) TableName() string { return "payment_history" }

type Repository interface {
	Insert(ctx context.Context, entry *Entry) error
	ListByAccount(ctx context.Context, accountID snowflake.ID, after *pagination.Cursor, limit int) ([]Entry, error)
}

type Service interface {
	// Append is the only write. Appending the same processor event twice
	// returns ErrDuplicateEntry and leaves the log unchanged.
	Append(ctx context.Context, entry *Entry) error
	ListByAccount(ctx context.Context, accountID snowflake.ID, page pagination.Pagination) ([]Entry, pagination.PageInfo, error)
}
