package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/subkit/internal/clock"
	"github.com/smallbiznis/subkit/internal/subscription/domain"
	"github.com/smallbiznis/subkit/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	Repo  domain.Repository
	GenID *snowflake.Node
	Clock clock.Clock
}

type Ledger struct {
	db    *gorm.DB
	log   *zap.Logger
	repo  domain.Repository
	genID *snowflake.Node
	clock clock.Clock
}

func NewLedger(p Params) domain.Ledger {
	return &Ledger{
		db:    p.DB,
		log:   p.Log.Named("subscription.ledger"),
		repo:  p.Repo,
		genID: p.GenID,
		clock: p.Clock,
	}
}

func (l *Ledger) Get(ctx context.Context, accountID snowflake.ID) (*domain.Subscription, error) {
	if accountID == 0 {
		return nil, domain.ErrInvalidAccount
	}

	sub, err := l.repo.FindByAccountID(ctx, l.db, accountID)
	if err == nil {
		return sub, nil
	}
	if !errors.Is(err, domain.ErrSubscriptionNotFound) {
		return nil, err
	}

	now := l.clock.Now()
	sub = &domain.Subscription{
		ID:        l.genID.Generate(),
		AccountID: accountID,
		Status:    domain.StatusInactive,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := l.repo.Insert(ctx, l.db, sub); err != nil {
		if db.IsDuplicateKeyErr(err) {
			// another request materialized the placeholder first
			return l.repo.FindByAccountID(ctx, l.db, accountID)
		}
		return nil, err
	}
	sub.Refresh()
	return sub, nil
}

func (l *Ledger) Find(ctx context.Context, accountID snowflake.ID) (*domain.Subscription, error) {
	sub, err := l.repo.FindByAccountID(ctx, l.db, accountID)
	if errors.Is(err, domain.ErrSubscriptionNotFound) {
		return nil, nil
	}
	return sub, err
}

func (l *Ledger) FindByExternalID(ctx context.Context, externalID string) (*domain.Subscription, error) {
	externalID = strings.TrimSpace(externalID)
	if externalID == "" {
		return nil, domain.ErrSubscriptionNotFound
	}
	return l.repo.FindByExternalID(ctx, l.db, externalID)
}

// Upsert replaces every mutable field of the account's row.
func (l *Ledger) Upsert(ctx context.Context, accountID snowflake.ID, fields domain.Fields) (*domain.Subscription, error) {
	return l.Mutate(ctx, accountID, func(sub *domain.Subscription) error {
		fields.Apply(sub)
		return nil
	})
}

func (l *Ledger) Mutate(ctx context.Context, accountID snowflake.ID, fn domain.MutateFunc) (*domain.Subscription, error) {
	// the placeholder has to exist before the row can be locked
	if _, err := l.Get(ctx, accountID); err != nil {
		return nil, err
	}
	return l.mutate(ctx, func(tx *gorm.DB) (*domain.Subscription, error) {
		return l.repo.FindByAccountIDForUpdate(ctx, tx, accountID)
	}, fn)
}

func (l *Ledger) MutateByExternalID(ctx context.Context, externalID string, fn domain.MutateFunc) (*domain.Subscription, error) {
	externalID = strings.TrimSpace(externalID)
	if externalID == "" {
		return nil, domain.ErrSubscriptionNotFound
	}
	return l.mutate(ctx, func(tx *gorm.DB) (*domain.Subscription, error) {
		return l.repo.FindByExternalIDForUpdate(ctx, tx, externalID)
	}, fn)
}

func (l *Ledger) mutate(ctx context.Context, load func(tx *gorm.DB) (*domain.Subscription, error), fn domain.MutateFunc) (*domain.Subscription, error) {
	var result *domain.Subscription
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		sub, err := load(tx)
		if err != nil {
			return err
		}

		id, accountID, createdAt, version := sub.ID, sub.AccountID, sub.CreatedAt, sub.Version
		if err := fn(sub); err != nil {
			return err
		}
		sub.ID, sub.AccountID, sub.CreatedAt = id, accountID, createdAt
		sub.Version = version + 1

		if err := validate(sub); err != nil {
			return err
		}
		sub.UpdatedAt = l.clock.Now()
		if err := l.repo.Save(ctx, tx, sub); err != nil {
			if db.IsDuplicateKeyErr(err) {
				return domain.ErrExternalRefConflict
			}
			return err
		}
		sub.Refresh()
		result = sub
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func validate(sub *domain.Subscription) error {
	if !sub.Status.Valid() {
		return domain.ErrInvalidStatus
	}
	if sub.ExternalSubscriptionID != nil && strings.TrimSpace(*sub.ExternalSubscriptionID) == "" {
		sub.ExternalSubscriptionID = nil
	}
	if !sub.HasExternal() && sub.Status != domain.StatusInactive {
		return domain.ErrMissingExternalRef
	}
	return nil
}

func (l *Ledger) ListSweepCandidates(ctx context.Context, limit int) ([]domain.Subscription, error) {
	if limit <= 0 {
		limit = 50
	}
	return l.repo.ListSweepCandidates(ctx, l.db, []domain.Status{
		domain.StatusInactive,
		domain.StatusIncomplete,
	}, limit)
}

func (l *Ledger) MarkReconciled(ctx context.Context, id snowflake.ID, at time.Time) error {
	return l.repo.MarkReconciled(ctx, l.db, id, at)
}
