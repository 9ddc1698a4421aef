package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/subkit/internal/clock"
	"github.com/smallbiznis/subkit/internal/paymenthistory/domain"
	"github.com/smallbiznis/subkit/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Log   *zap.Logger
	Repo  domain.Repository
	GenID *snowflake.Node
	Clock clock.Clock
}

type Service struct {
	log   *zap.Logger
	repo  domain.Repository
	genID *snowflake.Node
	clock clock.Clock
}

func New(p Params) domain.Service {
	return &Service{
		log:   p.Log.Named("paymenthistory.service"),
		repo:  p.Repo,
		genID: p.GenID,
		clock: p.Clock,
	}
}

func (s *Service) Append(ctx context.Context, entry *domain.Entry) error {
	if entry == nil || entry.AccountID == 0 {
		return domain.ErrInvalidAccount
	}
	if !entry.Status.Valid() {
		return domain.ErrInvalidStatus
	}
	if entry.Amount.IsNegative() {
		return domain.ErrNegativeAmount
	}

	entry.Currency = strings.ToLower(strings.TrimSpace(entry.Currency))
	if entry.Currency == "" {
		entry.Currency = "usd"
	}
	if entry.ExternalEventID != nil && strings.TrimSpace(*entry.ExternalEventID) == "" {
		entry.ExternalEventID = nil
	}
	if entry.ID == 0 {
		entry.ID = s.genID.Generate()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = s.clock.Now()
	}
	entry.Amount = entry.Amount.Round(2)

	if err := s.repo.Insert(ctx, entry); err != nil {
		return err
	}
	s.log.Info("payment recorded",
		zap.String("account_id", entry.AccountID.String()),
		zap.String("status", string(entry.Status)),
		zap.String("amount", entry.Amount.StringFixed(2)),
		zap.String("currency", entry.Currency),
	)
	return nil
}

func (s *Service) ListByAccount(ctx context.Context, accountID snowflake.ID, page pagination.Pagination) ([]domain.Entry, pagination.PageInfo, error) {
	if accountID == 0 {
		return nil, pagination.PageInfo{}, domain.ErrInvalidAccount
	}
	if page.PageSize < 0 {
		return nil, pagination.PageInfo{}, domain.ErrInvalidPageSize
	}
	cursor, err := pagination.DecodeCursor(page.PageToken)
	if err != nil {
		return nil, pagination.PageInfo{}, err
	}

	limit := page.Limit()
	entries, err := s.repo.ListByAccount(ctx, accountID, cursor, limit+1)
	if err != nil {
		return nil, pagination.PageInfo{}, err
	}
	return pagination.Trim(entries, limit, func(e domain.Entry) pagination.Cursor {
		return pagination.Cursor{
			ID:        e.ID.String(),
			CreatedAt: e.CreatedAt.UTC().Format(time.RFC3339Nano),
		}
	})
}
