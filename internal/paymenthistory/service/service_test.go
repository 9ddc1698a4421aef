package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/subkit/internal/clock"
	"github.com/smallbiznis/subkit/internal/paymenthistory/domain"
	"github.com/smallbiznis/subkit/internal/paymenthistory/repository"
	"github.com/smallbiznis/subkit/pkg/db/dbtest"
	"github.com/smallbiznis/subkit/pkg/db/pagination"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newService(t *testing.T) (domain.Service, *clock.FakeClock) {
	t.Helper()
	conn := dbtest.Open(t, &domain.Entry{})
	node, err := snowflake.NewNode(3)
	require.NoError(t, err)
	fc := clock.NewFakeClock(time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC))
	return New(Params{
		Log:   zaptest.NewLogger(t),
		Repo:  repository.New(conn),
		GenID: node,
		Clock: fc,
	}), fc
}

func eventID(id string) *string { return &id }

func TestAppendDefaultsAndRounds(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	entry := &domain.Entry{
		AccountID:       1,
		Amount:          decimal.New(999, -2),
		Currency:        " USD ",
		Status:          domain.StatusSucceeded,
		Description:     "Invoice payment - Pro",
		ExternalEventID: eventID("evt_1"),
	}
	require.NoError(t, svc.Append(ctx, entry))
	assert.NotZero(t, entry.ID)
	assert.Equal(t, "usd", entry.Currency)
	assert.False(t, entry.CreatedAt.IsZero())

	entries, _, err := svc.ListByAccount(ctx, 1, pagination.Pagination{})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "9.99", entries[0].Amount.StringFixed(2))
	assert.Equal(t, "Invoice payment - Pro", entries[0].Description)
}

func TestAppendDuplicateEventIsRejected(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	first := &domain.Entry{AccountID: 1, Amount: decimal.NewFromInt(10), Status: domain.StatusSucceeded, ExternalEventID: eventID("evt_1")}
	require.NoError(t, svc.Append(ctx, first))

	dup := &domain.Entry{AccountID: 1, Amount: decimal.NewFromInt(10), Status: domain.StatusSucceeded, ExternalEventID: eventID("evt_1")}
	assert.ErrorIs(t, svc.Append(ctx, dup), domain.ErrDuplicateEntry)

	// entries without an event id are never deduplicated
	require.NoError(t, svc.Append(ctx, &domain.Entry{AccountID: 1, Amount: decimal.NewFromInt(1), Status: domain.StatusPending}))
	require.NoError(t, svc.Append(ctx, &domain.Entry{AccountID: 1, Amount: decimal.NewFromInt(1), Status: domain.StatusPending, ExternalEventID: eventID("")}))

	entries, _, err := svc.ListByAccount(ctx, 1, pagination.Pagination{})
	require.NoError(t, err)
	assert.Len(t, entries, 3)
}

func TestAppendValidation(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	assert.ErrorIs(t, svc.Append(ctx, &domain.Entry{Status: domain.StatusSucceeded}), domain.ErrInvalidAccount)
	assert.ErrorIs(t, svc.Append(ctx, &domain.Entry{AccountID: 1, Status: "chargeback"}), domain.ErrInvalidStatus)
	assert.ErrorIs(t, svc.Append(ctx, &domain.Entry{AccountID: 1, Status: domain.StatusRefunded, Amount: decimal.NewFromInt(-1)}), domain.ErrNegativeAmount)
}

func TestListByAccountNewestFirstWithPages(t *testing.T) {
	svc, fc := newService(t)
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		require.NoError(t, svc.Append(ctx, &domain.Entry{
			AccountID: 7,
			Amount:    decimal.NewFromInt(int64(i)),
			Status:    domain.StatusSucceeded,
		}))
		fc.Advance(time.Minute)
	}
	require.NoError(t, svc.Append(ctx, &domain.Entry{AccountID: 8, Amount: decimal.NewFromInt(100), Status: domain.StatusFailed}))

	page1, info, err := svc.ListByAccount(ctx, 7, pagination.Pagination{PageSize: 2})
	require.NoError(t, err)
	require.Len(t, page1, 2)
	assert.True(t, info.HasMore)
	assert.Equal(t, "5", page1[0].Amount.String())
	assert.Equal(t, "4", page1[1].Amount.String())

	page2, info, err := svc.ListByAccount(ctx, 7, pagination.Pagination{PageSize: 2, PageToken: info.NextPageToken})
	require.NoError(t, err)
	require.Len(t, page2, 2)
	assert.Equal(t, "3", page2[0].Amount.String())

	page3, info, err := svc.ListByAccount(ctx, 7, pagination.Pagination{PageSize: 2, PageToken: info.NextPageToken})
	require.NoError(t, err)
	require.Len(t, page3, 1)
	assert.False(t, info.HasMore)
	assert.Equal(t, "1", page3[0].Amount.String())

	_, _, err = svc.ListByAccount(ctx, 7, pagination.Pagination{PageToken: "garbage!"})
	assert.ErrorIs(t, err, pagination.ErrInvalidPageToken)
}
