package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	accountdomain "github.com/smallbiznis/subkit/internal/account/domain"
	"github.com/smallbiznis/subkit/internal/clock"
	"github.com/smallbiznis/subkit/internal/subscription/domain"
	"github.com/smallbiznis/subkit/internal/subscription/repository"
	"github.com/smallbiznis/subkit/pkg/db/dbtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"
)

type fixture struct {
	conn   *gorm.DB
	ledger domain.Ledger
	clock  *clock.FakeClock
	node   *snowflake.Node
}

func newFixture(t *testing.T) fixture {
	t.Helper()

	conn := dbtest.Open(t, &accountdomain.Account{}, &domain.Subscription{})
	node, err := snowflake.NewNode(2)
	require.NoError(t, err)
	fc := clock.NewFakeClock(time.Date(2025, 4, 1, 9, 0, 0, 0, time.UTC))

	return fixture{
		conn:  conn,
		clock: fc,
		node:  node,
		ledger: NewLedger(Params{
			DB:    conn,
			Log:   zaptest.NewLogger(t),
			Repo:  repository.Provide(),
			GenID: node,
			Clock: fc,
		}),
	}
}

func (f fixture) account(t *testing.T, customerID string) snowflake.ID {
	t.Helper()
	account := accountdomain.Account{
		ID:       f.node.Generate(),
		Email:    f.node.Generate().String() + "@example.com",
		FullName: "Test",
	}
	if customerID != "" {
		account.ExternalCustomerID = &customerID
	}
	require.NoError(t, f.conn.Create(&account).Error)
	return account.ID
}

func ptr[T any](v T) *T { return &v }

func TestGetMaterializesInactivePlaceholder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	accountID := f.account(t, "")

	found, err := f.ledger.Find(ctx, accountID)
	require.NoError(t, err)
	assert.Nil(t, found)

	sub, err := f.ledger.Get(ctx, accountID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusInactive, sub.Status)
	assert.False(t, sub.IsActive)
	assert.Nil(t, sub.ExternalSubscriptionID)

	again, err := f.ledger.Get(ctx, accountID)
	require.NoError(t, err)
	assert.Equal(t, sub.ID, again.ID)
}

func TestGetConcurrentCreatesOneRow(t *testing.T) {
	f := newFixture(t)
	accountID := f.account(t, "")

	var wg sync.WaitGroup
	ids := make([]snowflake.ID, 10)
	errs := make([]error, 10)
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sub, err := f.ledger.Get(context.Background(), accountID)
			errs[i] = err
			if sub != nil {
				ids[i] = sub.ID
			}
		}(i)
	}
	wg.Wait()

	for i := range ids {
		require.NoError(t, errs[i])
		assert.Equal(t, ids[0], ids[i])
	}
	var count int64
	require.NoError(t, f.conn.Model(&domain.Subscription{}).Where("account_id = ?", accountID).Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestUpsertReplacesFields(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	accountID := f.account(t, "cus_1")
	planID := f.node.Generate()
	start := f.clock.Now()
	end := start.AddDate(0, 1, 0)

	sub, err := f.ledger.Upsert(ctx, accountID, domain.Fields{
		PlanID:                 &planID,
		ExternalSubscriptionID: ptr("sub_1"),
		Status:                 domain.StatusActive,
		CurrentPeriodStart:     &start,
		CurrentPeriodEnd:       &end,
	})
	require.NoError(t, err)
	assert.True(t, sub.IsActive)
	assert.Equal(t, accountID, sub.AccountID)

	loaded, err := f.ledger.FindByExternalID(ctx, "sub_1")
	require.NoError(t, err)
	assert.Equal(t, sub.ID, loaded.ID)
	assert.Equal(t, domain.StatusActive, loaded.Status)
	require.NotNil(t, loaded.PlanID)
	assert.Equal(t, planID, *loaded.PlanID)
	require.NotNil(t, loaded.CurrentPeriodEnd)
	assert.True(t, end.Equal(*loaded.CurrentPeriodEnd))

	// a full replace clears what the new fields leave out
	sub, err = f.ledger.Upsert(ctx, accountID, domain.Fields{
		ExternalSubscriptionID: ptr("sub_1"),
		Status:                 domain.StatusPastDue,
	})
	require.NoError(t, err)
	assert.Nil(t, sub.PlanID)
	assert.Nil(t, sub.CurrentPeriodEnd)
	assert.False(t, sub.IsActive)
}

func TestUpsertRejectsStatusWithoutExternalRef(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	accountID := f.account(t, "")

	_, err := f.ledger.Upsert(ctx, accountID, domain.Fields{Status: domain.StatusActive})
	assert.ErrorIs(t, err, domain.ErrMissingExternalRef)

	_, err = f.ledger.Upsert(ctx, accountID, domain.Fields{ExternalSubscriptionID: ptr(" "), Status: domain.StatusTrialing})
	assert.ErrorIs(t, err, domain.ErrMissingExternalRef)

	_, err = f.ledger.Upsert(ctx, accountID, domain.Fields{ExternalSubscriptionID: ptr("sub_x"), Status: "paused"})
	assert.ErrorIs(t, err, domain.ErrInvalidStatus)

	sub, err := f.ledger.Get(ctx, accountID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusInactive, sub.Status)
}

func TestUpsertExternalRefConflict(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	first := f.account(t, "cus_a")
	second := f.account(t, "cus_b")

	_, err := f.ledger.Upsert(ctx, first, domain.Fields{ExternalSubscriptionID: ptr("sub_dup"), Status: domain.StatusActive})
	require.NoError(t, err)

	_, err = f.ledger.Upsert(ctx, second, domain.Fields{ExternalSubscriptionID: ptr("sub_dup"), Status: domain.StatusActive})
	assert.ErrorIs(t, err, domain.ErrExternalRefConflict)
}

func TestIsActiveFollowsStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	accountID := f.account(t, "cus_1")

	cases := map[domain.Status]bool{
		domain.StatusIncomplete:        false,
		domain.StatusIncompleteExpired: false,
		domain.StatusTrialing:          true,
		domain.StatusActive:            true,
		domain.StatusPastDue:           false,
		domain.StatusUnpaid:            false,
		domain.StatusCanceled:          false,
	}
	for status, active := range cases {
		sub, err := f.ledger.Upsert(ctx, accountID, domain.Fields{ExternalSubscriptionID: ptr("sub_1"), Status: status})
		require.NoError(t, err)
		assert.Equal(t, active, sub.IsActive, status)

		loaded, err := f.ledger.Get(ctx, accountID)
		require.NoError(t, err)
		assert.Equal(t, active, loaded.IsActive, status)
	}
}

func TestMutateAbortLeavesRowUntouched(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	accountID := f.account(t, "cus_1")
	_, err := f.ledger.Upsert(ctx, accountID, domain.Fields{ExternalSubscriptionID: ptr("sub_1"), Status: domain.StatusActive})
	require.NoError(t, err)

	boom := errors.New("boom")
	_, err = f.ledger.MutateByExternalID(ctx, "sub_1", func(sub *domain.Subscription) error {
		sub.Status = domain.StatusCanceled
		return boom
	})
	assert.ErrorIs(t, err, boom)

	sub, err := f.ledger.Get(ctx, accountID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusActive, sub.Status)
}

func TestVersionMovesOnlyOnCommit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	accountID := f.account(t, "cus_1")

	placeholder, err := f.ledger.Get(ctx, accountID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), placeholder.Version)

	_, err = f.ledger.Upsert(ctx, accountID, domain.Fields{ExternalSubscriptionID: ptr("sub_1"), Status: domain.StatusActive})
	require.NoError(t, err)

	_, err = f.ledger.Mutate(ctx, accountID, func(sub *domain.Subscription) error {
		sub.Status = domain.StatusCanceled
		return errors.New("boom")
	})
	require.Error(t, err)
	loaded, err := f.ledger.Get(ctx, accountID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), loaded.Version)

	// the counter cannot be set by the mutation itself
	updated, err := f.ledger.Mutate(ctx, accountID, func(sub *domain.Subscription) error {
		sub.Version = 99
		sub.CancelAtPeriodEnd = true
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), updated.Version)

	loaded, err = f.ledger.Get(ctx, accountID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), loaded.Version)
}

func TestMutateByExternalIDUnknown(t *testing.T) {
	f := newFixture(t)
	_, err := f.ledger.MutateByExternalID(context.Background(), "sub_missing", func(*domain.Subscription) error { return nil })
	assert.ErrorIs(t, err, domain.ErrSubscriptionNotFound)
}

func TestMutateKeepsIdentity(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	accountID := f.account(t, "")
	before, err := f.ledger.Get(ctx, accountID)
	require.NoError(t, err)

	after, err := f.ledger.Mutate(ctx, accountID, func(sub *domain.Subscription) error {
		sub.ID = 42
		sub.AccountID = 43
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, before.ID, after.ID)
	assert.Equal(t, accountID, after.AccountID)
}

func TestConcurrentMutationsSerialize(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	accountID := f.account(t, "cus_1")
	_, err := f.ledger.Upsert(ctx, accountID, domain.Fields{ExternalSubscriptionID: ptr("sub_1"), Status: domain.StatusActive})
	require.NoError(t, err)

	// each mutation moves the period end forward by a day; lost updates
	// would leave it short
	start := f.clock.Now()
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.ledger.Mutate(ctx, accountID, func(sub *domain.Subscription) error {
				next := start
				if sub.CurrentPeriodEnd != nil {
					next = *sub.CurrentPeriodEnd
				}
				next = next.Add(24 * time.Hour)
				sub.CurrentPeriodEnd = &next
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	sub, err := f.ledger.Get(ctx, accountID)
	require.NoError(t, err)
	require.NotNil(t, sub.CurrentPeriodEnd)
	assert.True(t, start.Add(10*24*time.Hour).Equal(*sub.CurrentPeriodEnd))
}

func TestListSweepCandidates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	linkedInactive := f.account(t, "cus_1")
	linkedIncomplete := f.account(t, "cus_2")
	linkedActive := f.account(t, "cus_3")
	unlinked := f.account(t, "")

	_, err := f.ledger.Get(ctx, linkedInactive)
	require.NoError(t, err)
	_, err = f.ledger.Upsert(ctx, linkedIncomplete, domain.Fields{ExternalSubscriptionID: ptr("sub_2"), Status: domain.StatusIncomplete})
	require.NoError(t, err)
	_, err = f.ledger.Upsert(ctx, linkedActive, domain.Fields{ExternalSubscriptionID: ptr("sub_3"), Status: domain.StatusActive})
	require.NoError(t, err)
	_, err = f.ledger.Get(ctx, unlinked)
	require.NoError(t, err)

	subs, err := f.ledger.ListSweepCandidates(ctx, 10)
	require.NoError(t, err)
	accounts := []snowflake.ID{}
	for _, s := range subs {
		accounts = append(accounts, s.AccountID)
	}
	assert.ElementsMatch(t, []snowflake.ID{linkedInactive, linkedIncomplete}, accounts)

	// reconciled rows go to the back of the queue
	require.NoError(t, f.ledger.MarkReconciled(ctx, subs[0].ID, f.clock.Now()))
	next, err := f.ledger.ListSweepCandidates(ctx, 1)
	require.NoError(t, err)
	require.Len(t, next, 1)
	assert.Equal(t, subs[1].ID, next[0].ID)
}
