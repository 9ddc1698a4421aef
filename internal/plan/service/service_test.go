package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/subkit/internal/clock"
	"github.com/smallbiznis/subkit/internal/plan/domain"
	"github.com/smallbiznis/subkit/internal/plan/repository"
	"github.com/smallbiznis/subkit/internal/processor"
	"github.com/smallbiznis/subkit/internal/processor/processortest"
	"github.com/smallbiznis/subkit/pkg/db/dbtest"
	"github.com/smallbiznis/subkit/pkg/db/pagination"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestService(t *testing.T) (domain.Service, *processortest.Fake) {
	t.Helper()

	conn := dbtest.Open(t, &domain.Plan{})
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	proc := processortest.NewFake()

	svc := New(Params{
		Log:       zap.NewNop(),
		Repo:      repository.New(conn),
		GenID:     node,
		Clock:     clock.NewFakeClock(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)),
		Processor: proc,
	})
	return svc, proc
}

func price(id, name, amount, interval string, features ...string) processor.Price {
	return processor.Price{
		ID:          id,
		ProductID:   "prod_" + id,
		ProductName: name,
		UnitAmount:  decimal.RequireFromString(amount),
		Currency:    "usd",
		Interval:    interval,
		Active:      true,
		Features:    features,
	}
}

func TestSyncCreatesUpdatesAndDeactivates(t *testing.T) {
	svc, proc := newTestService(t)
	ctx := context.Background()

	proc.Prices = []processor.Price{
		price("price_basic", "Basic", "9.99", "month", "1 project"),
		price("price_pro", "Pro", "29.00", "month", "10 projects", "Priority support"),
		price("price_weekly", "Weekly", "3.00", "week"),
	}
	result, err := svc.Sync(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.SyncResult{Created: 2}, result)

	basic, err := svc.FindByExternalPriceID(ctx, "price_basic")
	require.NoError(t, err)
	assert.Equal(t, "basic-month", basic.Code)
	assert.True(t, decimal.RequireFromString("9.99").Equal(basic.Amount))
	assert.Equal(t, []string{"1 project"}, []string(basic.Features))

	_, err = svc.FindByExternalPriceID(ctx, "price_weekly")
	assert.ErrorIs(t, err, domain.ErrPlanNotFound)

	proc.Prices = []processor.Price{
		price("price_basic", "Basic", "12.00", "month", "1 project"),
	}
	result, err = svc.Sync(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.SyncResult{Updated: 1, Deactivated: 1}, result)

	pro, err := svc.FindByExternalPriceID(ctx, "price_pro")
	require.NoError(t, err)
	assert.False(t, pro.IsActive)
	_, err = svc.GetActive(ctx, pro.ID)
	assert.ErrorIs(t, err, domain.ErrPlanNotFound)

	plan, err := svc.Get(ctx, pro.ID)
	require.NoError(t, err)
	assert.Equal(t, "Pro", plan.Name)

	result, err = svc.Sync(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.SyncResult{}, result, "unchanged catalog is a no-op")
}

func TestSyncProcessorFailureLeavesCatalog(t *testing.T) {
	svc, proc := newTestService(t)
	proc.FailNext = true

	_, err := svc.Sync(context.Background())
	assert.ErrorIs(t, err, processor.ErrUnavailable)
}

func TestListActiveOrdersByAmountAndPaginates(t *testing.T) {
	svc, proc := newTestService(t)
	ctx := context.Background()

	proc.Prices = []processor.Price{
		price("price_c", "Team", "49.00", "month"),
		price("price_a", "Starter", "5.00", "month"),
		price("price_b", "Growth", "19.00", "month"),
		price("price_y", "Growth", "190.00", "year"),
	}
	_, err := svc.Sync(ctx)
	require.NoError(t, err)

	page1, info, err := svc.ListActive(ctx, pagination.Pagination{PageSize: 2})
	require.NoError(t, err)
	require.Len(t, page1, 2)
	assert.Equal(t, "price_a", page1[0].ExternalPriceID)
	assert.Equal(t, "price_b", page1[1].ExternalPriceID)
	assert.True(t, info.HasMore)

	page2, info, err := svc.ListActive(ctx, pagination.Pagination{PageSize: 2, PageToken: info.NextPageToken})
	require.NoError(t, err)
	require.Len(t, page2, 2)
	assert.Equal(t, "price_c", page2[0].ExternalPriceID)
	assert.Equal(t, "price_y", page2[1].ExternalPriceID)
	assert.False(t, info.HasMore)

	_, _, err = svc.ListActive(ctx, pagination.Pagination{PageToken: "bogus"})
	assert.ErrorIs(t, err, pagination.ErrInvalidPageToken)
}

func TestSlugCollisionGetsPriceSuffix(t *testing.T) {
	svc, proc := newTestService(t)
	ctx := context.Background()

	proc.Prices = []processor.Price{
		price("price_1", "Pro", "10.00", "month"),
		price("price_2", "Pro", "12.00", "month"),
	}
	_, err := svc.Sync(ctx)
	require.NoError(t, err)

	second, err := svc.FindByExternalPriceID(ctx, "price_2")
	require.NoError(t, err)
	assert.Equal(t, "pro-month-"+slug.Make("price_2"), second.Code)
}
