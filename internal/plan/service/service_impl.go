package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	"github.com/smallbiznis/subkit/internal/clock"
	"github.com/smallbiznis/subkit/internal/plan/domain"
	"github.com/smallbiznis/subkit/internal/processor"
	"github.com/smallbiznis/subkit/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

type Params struct {
	fx.In

	Log       *zap.Logger
	Repo      domain.Repository
	GenID     *snowflake.Node
	Clock     clock.Clock
	Processor processor.Client
}

type Service struct {
	log       *zap.Logger
	repo      domain.Repository
	genID     *snowflake.Node
	clock     clock.Clock
	processor processor.Client
}

func New(p Params) domain.Service {
	return &Service{
		log:       p.Log.Named("plan.service"),
		repo:      p.Repo,
		genID:     p.GenID,
		clock:     p.Clock,
		processor: p.Processor,
	}
}

func (s *Service) Get(ctx context.Context, id snowflake.ID) (*domain.Plan, error) {
	return s.repo.FindByID(ctx, id)
}

func (s *Service) GetActive(ctx context.Context, id snowflake.ID) (*domain.Plan, error) {
	plan, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !plan.IsActive {
		return nil, domain.ErrPlanNotFound
	}
	return plan, nil
}

func (s *Service) FindByExternalPriceID(ctx context.Context, priceID string) (*domain.Plan, error) {
	priceID = strings.TrimSpace(priceID)
	if priceID == "" {
		return nil, domain.ErrPlanNotFound
	}
	return s.repo.FindByExternalPriceID(ctx, priceID)
}

func (s *Service) ListActive(ctx context.Context, page pagination.Pagination) ([]domain.Plan, pagination.PageInfo, error) {
	if page.PageSize < 0 {
		return nil, pagination.PageInfo{}, domain.ErrInvalidPageSize
	}
	cursor, err := pagination.DecodeCursor(page.PageToken)
	if err != nil {
		return nil, pagination.PageInfo{}, err
	}

	limit := page.Limit()
	plans, err := s.repo.ListActive(ctx, cursor, limit+1)
	if err != nil {
		return nil, pagination.PageInfo{}, err
	}
	return pagination.Trim(plans, limit, func(p domain.Plan) pagination.Cursor {
		return pagination.Cursor{ID: p.ID.String(), Value: p.Amount.String()}
	})
}

// Sync mirrors the processor's recurring prices into the catalog. Plans are
// matched by external price id; prices no longer offered are deactivated.
func (s *Service) Sync(ctx context.Context) (domain.SyncResult, error) {
	var result domain.SyncResult

	prices, err := s.processor.ListPrices(ctx)
	if err != nil {
		return result, fmt.Errorf("list processor prices: %w", err)
	}

	existing, err := s.repo.ListAll(ctx)
	if err != nil {
		return result, err
	}
	byPrice := make(map[string]*domain.Plan, len(existing))
	for i := range existing {
		byPrice[existing[i].ExternalPriceID] = &existing[i]
	}

	now := s.clock.Now()
	seen := make(map[string]struct{}, len(prices))
	for _, price := range prices {
		interval := domain.Interval(price.Interval)
		if interval != domain.IntervalMonth && interval != domain.IntervalYear {
			s.log.Debug("skipping price with unsupported interval",
				zap.String("price_id", price.ID),
				zap.String("interval", price.Interval),
			)
			continue
		}
		seen[price.ID] = struct{}{}

		plan, ok := byPrice[price.ID]
		if !ok {
			code, err := s.uniqueCode(ctx, price)
			if err != nil {
				return result, err
			}
			plan = &domain.Plan{
				ID:              s.genID.Generate(),
				Code:            code,
				ExternalPriceID: price.ID,
				CreatedAt:       now,
			}
			applyPrice(plan, price, interval)
			plan.UpdatedAt = now
			if err := s.repo.Create(ctx, plan); err != nil {
				return result, fmt.Errorf("create plan %s: %w", price.ID, err)
			}
			result.Created++
			continue
		}

		before := *plan
		applyPrice(plan, price, interval)
		if samePlan(before, *plan) {
			continue
		}
		plan.UpdatedAt = now
		if err := s.repo.Save(ctx, plan); err != nil {
			return result, fmt.Errorf("update plan %s: %w", price.ID, err)
		}
		result.Updated++
	}

	for i := range existing {
		plan := &existing[i]
		if _, ok := seen[plan.ExternalPriceID]; ok || !plan.IsActive {
			continue
		}
		plan.IsActive = false
		plan.UpdatedAt = now
		if err := s.repo.Save(ctx, plan); err != nil {
			return result, fmt.Errorf("deactivate plan %s: %w", plan.ExternalPriceID, err)
		}
		result.Deactivated++
	}

	s.log.Info("plan catalog synced",
		zap.Int("created", result.Created),
		zap.Int("updated", result.Updated),
		zap.Int("deactivated", result.Deactivated),
	)
	return result, nil
}

func applyPrice(plan *domain.Plan, price processor.Price, interval domain.Interval) {
	name := strings.TrimSpace(price.ProductName)
	if name == "" {
		name = price.ID
	}
	currency := strings.ToLower(strings.TrimSpace(price.Currency))
	if currency == "" {
		currency = "usd"
	}
	features := price.Features
	if features == nil {
		features = []string{}
	}

	plan.Name = name
	plan.Description = strings.TrimSpace(price.ProductDescription)
	plan.ExternalProductID = price.ProductID
	plan.Amount = price.UnitAmount
	plan.Currency = currency
	plan.Interval = interval
	plan.Features = datatypes.JSONSlice[string](features)
	plan.IsActive = price.Active
}

func samePlan(a, b domain.Plan) bool {
	if a.Name != b.Name || a.Description != b.Description || a.ExternalProductID != b.ExternalProductID ||
		!a.Amount.Equal(b.Amount) || a.Currency != b.Currency || a.Interval != b.Interval ||
		a.IsActive != b.IsActive || len(a.Features) != len(b.Features) {
		return false
	}
	for i := range a.Features {
		if a.Features[i] != b.Features[i] {
			return false
		}
	}
	return true
}

// uniqueCode slugs the product name and interval, suffixing the price id when
// the slug is taken.
func (s *Service) uniqueCode(ctx context.Context, price processor.Price) (string, error) {
	base := slug.Make(strings.TrimSpace(price.ProductName + " " + price.Interval))
	if base == "" {
		base = slug.Make(price.ID)
	}
	_, err := s.repo.FindByCode(ctx, base)
	switch {
	case errors.Is(err, domain.ErrPlanNotFound):
		return base, nil
	case err != nil:
		return "", err
	default:
		return base + "-" + slug.Make(price.ID), nil
	}
}
