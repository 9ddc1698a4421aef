package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Repository runs against the handle it is given so callers control the
// transaction boundary.
type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, sub *Subscription) error
	Save(ctx context.Context, db *gorm.DB, sub *Subscription) error
	FindByAccountID(ctx context.Context, db *gorm.DB, accountID snowflake.ID) (*Subscription, error)
	FindByAccountIDForUpdate(ctx context.Context, db *gorm.DB, accountID snowflake.ID) (*Subscription, error)
	FindByExternalID(ctx context.Context, db *gorm.DB, externalID string) (*Subscription, error)
	FindByExternalIDForUpdate(ctx context.Context, db *gorm.DB, externalID string) (*Subscription, error)
	ListSweepCandidates(ctx context.Context, db *gorm.DB, statuses []Status, limit int) ([]Subscription, error)
	MarkReconciled(ctx context.Context, db *gorm.DB, id snowflake.ID, at time.Time) error
}
