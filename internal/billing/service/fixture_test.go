package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	accountdomain "github.com/smallbiznis/subkit/internal/account/domain"
	accountrepository "github.com/smallbiznis/subkit/internal/account/repository"
	accountservice "github.com/smallbiznis/subkit/internal/account/service"
	"github.com/smallbiznis/subkit/internal/billing/domain"
	"github.com/smallbiznis/subkit/internal/clock"
	"github.com/smallbiznis/subkit/internal/config"
	"github.com/smallbiznis/subkit/internal/lock"
	"github.com/smallbiznis/subkit/internal/notification/notificationtest"
	paymenthistorydomain "github.com/smallbiznis/subkit/internal/paymenthistory/domain"
	paymenthistoryrepository "github.com/smallbiznis/subkit/internal/paymenthistory/repository"
	paymenthistoryservice "github.com/smallbiznis/subkit/internal/paymenthistory/service"
	plandomain "github.com/smallbiznis/subkit/internal/plan/domain"
	planrepository "github.com/smallbiznis/subkit/internal/plan/repository"
	planservice "github.com/smallbiznis/subkit/internal/plan/service"
	"github.com/smallbiznis/subkit/internal/processor"
	"github.com/smallbiznis/subkit/internal/processor/processortest"
	subscriptiondomain "github.com/smallbiznis/subkit/internal/subscription/domain"
	subscriptionrepository "github.com/smallbiznis/subkit/internal/subscription/repository"
	subscriptionservice "github.com/smallbiznis/subkit/internal/subscription/service"
	"github.com/smallbiznis/subkit/pkg/db/dbtest"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type fixture struct {
	conn     *gorm.DB
	svc      domain.Service
	ledger   *flakyLedger
	planRepo plandomain.Repository
	accounts accountdomain.Service
	history  paymenthistorydomain.Service
	proc     *processortest.Fake
	notifier *notificationtest.Recorder
	clock    *clock.FakeClock
	node     *snowflake.Node
}

// flakyLedger fails the next Upsert or Mutate on request, simulating a local
// write that breaks after the processor already accepted the change.
type flakyLedger struct {
	subscriptiondomain.Ledger
	failWrites int
}

var errInjected = errors.New("injected write failure")

func (l *flakyLedger) Upsert(ctx context.Context, accountID snowflake.ID, fields subscriptiondomain.Fields) (*subscriptiondomain.Subscription, error) {
	if l.failWrites > 0 {
		l.failWrites--
		return nil, errInjected
	}
	return l.Ledger.Upsert(ctx, accountID, fields)
}

func (l *flakyLedger) Mutate(ctx context.Context, accountID snowflake.ID, fn subscriptiondomain.MutateFunc) (*subscriptiondomain.Subscription, error) {
	if l.failWrites > 0 {
		l.failWrites--
		return nil, errInjected
	}
	return l.Ledger.Mutate(ctx, accountID, fn)
}

// newFixture wires the billing service over real stores. client replaces the
// in-memory processor when set.
func newFixture(t *testing.T, client processor.Client) fixture {
	t.Helper()

	conn := dbtest.Open(t,
		&accountdomain.Account{},
		&accountdomain.Session{},
		&plandomain.Plan{},
		&subscriptiondomain.Subscription{},
		&paymenthistorydomain.Entry{},
	)
	node, err := snowflake.NewNode(5)
	require.NoError(t, err)
	log := zaptest.NewLogger(t)
	fc := clock.NewFakeClock(time.Date(2025, 7, 1, 10, 0, 0, 0, time.UTC))
	proc := processortest.NewFake()
	if client == nil {
		client = proc
	}
	notifier := &notificationtest.Recorder{}
	locker := lock.NewLocalLocker()
	cfg := config.Config{Processor: config.ProcessorConfig{
		Timeout:  time.Second,
		LockTTL:  time.Minute,
		LockWait: 5 * time.Second,
	}}

	accountRepo, sessionRepo := accountrepository.New(conn)
	accounts := accountservice.New(accountservice.Params{
		Log:         log,
		Repo:        accountRepo,
		SessionRepo: sessionRepo,
		GenID:       node,
		Clock:       fc,
		Locker:      locker,
		Processor:   client,
		Notifier:    notifier,
		Cfg:         cfg,
	})
	planRepo := planrepository.New(conn)
	plans := planservice.New(planservice.Params{
		Log:       log,
		Repo:      planRepo,
		GenID:     node,
		Clock:     fc,
		Processor: client,
	})
	ledger := &flakyLedger{Ledger: subscriptionservice.NewLedger(subscriptionservice.Params{
		DB:    conn,
		Log:   log,
		Repo:  subscriptionrepository.Provide(),
		GenID: node,
		Clock: fc,
	})}
	history := paymenthistoryservice.New(paymenthistoryservice.Params{
		Log:   log,
		Repo:  paymenthistoryrepository.New(conn),
		GenID: node,
		Clock: fc,
	})

	return fixture{
		svc: New(Params{
			Log:       log,
			Ledger:    ledger,
			Plans:     plans,
			Accounts:  accounts,
			History:   history,
			Notifier:  notifier,
			Processor: client,
			Locker:    locker,
			Clock:     fc,
			Cfg:       cfg,
		}),
		conn:     conn,
		ledger:   ledger,
		planRepo: planRepo,
		accounts: accounts,
		history:  history,
		proc:     proc,
		notifier: notifier,
		clock:    fc,
		node:     node,
	}
}

func (f fixture) register(t *testing.T, email string) *accountdomain.Account {
	t.Helper()
	account, err := f.accounts.Register(context.Background(), accountdomain.RegisterRequest{
		Email:    email,
		Password: "correct-password",
		FullName: "Ada Lovelace",
	})
	require.NoError(t, err)
	return account
}

// customer links the account to a processor customer and returns its id.
func (f fixture) customer(t *testing.T, accountID snowflake.ID) string {
	t.Helper()
	customerID, err := f.accounts.EnsureExternalCustomer(context.Background(), accountID)
	require.NoError(t, err)
	return customerID
}

func (f fixture) plan(t *testing.T, name, priceID string, amount decimal.Decimal) *plandomain.Plan {
	t.Helper()
	now := f.clock.Now()
	plan := &plandomain.Plan{
		ID:              f.node.Generate(),
		Code:            priceID,
		Name:            name,
		ExternalPriceID: priceID,
		Amount:          amount,
		Currency:        "usd",
		Interval:        plandomain.IntervalMonth,
		Features:        datatypes.JSONSlice[string]{"api"},
		IsActive:        true,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	require.NoError(t, f.planRepo.Create(context.Background(), plan))
	return plan
}

func (f fixture) subscribe(t *testing.T, accountID snowflake.ID, planID snowflake.ID) *domain.CreateResult {
	t.Helper()
	result, err := f.svc.CreateSubscription(context.Background(), domain.CreateRequest{
		AccountID:       accountID,
		PlanID:          planID,
		PaymentMethodID: "pm_card_visa",
	})
	require.NoError(t, err)
	return result
}

func createRequest(accountID, planID snowflake.ID) domain.CreateRequest {
	return domain.CreateRequest{AccountID: accountID, PlanID: planID, PaymentMethodID: "pm_card_visa"}
}
