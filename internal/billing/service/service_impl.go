package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	accountdomain "github.com/smallbiznis/subkit/internal/account/domain"
	"github.com/smallbiznis/subkit/internal/billing/domain"
	"github.com/smallbiznis/subkit/internal/clock"
	"github.com/smallbiznis/subkit/internal/config"
	"github.com/smallbiznis/subkit/internal/lock"
	notificationdomain "github.com/smallbiznis/subkit/internal/notification/domain"
	obsmetrics "github.com/smallbiznis/subkit/internal/observability/metrics"
	paymenthistorydomain "github.com/smallbiznis/subkit/internal/paymenthistory/domain"
	plandomain "github.com/smallbiznis/subkit/internal/plan/domain"
	"github.com/smallbiznis/subkit/internal/processor"
	subscriptiondomain "github.com/smallbiznis/subkit/internal/subscription/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Log       *zap.Logger
	Ledger    subscriptiondomain.Ledger
	Plans     plandomain.Service
	Accounts  accountdomain.Service
	History   paymenthistorydomain.Service
	Notifier  notificationdomain.Dispatcher
	Processor processor.Client
	Locker    lock.Locker
	Clock     clock.Clock
	Cfg       config.Config
	Metrics   *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	log       *zap.Logger
	ledger    subscriptiondomain.Ledger
	plans     plandomain.Service
	accounts  accountdomain.Service
	history   paymenthistorydomain.Service
	notifier  notificationdomain.Dispatcher
	processor processor.Client
	locker    lock.Locker
	clock     clock.Clock
	metrics   *obsmetrics.Metrics

	callTimeout time.Duration
	lockTTL     time.Duration
	lockWait    time.Duration
}

func New(p Params) domain.Service {
	callTimeout := p.Cfg.Processor.Timeout
	if callTimeout <= 0 {
		callTimeout = 10 * time.Second
	}
	lockTTL := p.Cfg.Processor.LockTTL
	if lockTTL <= 0 {
		lockTTL = 30 * time.Second
	}
	lockWait := p.Cfg.Processor.LockWait
	if lockWait <= 0 {
		lockWait = 10 * time.Second
	}

	return &Service{
		log:         p.Log.Named("billing.service"),
		ledger:      p.Ledger,
		plans:       p.Plans,
		accounts:    p.Accounts,
		history:     p.History,
		notifier:    p.Notifier,
		processor:   p.Processor,
		locker:      p.Locker,
		clock:       p.Clock,
		metrics:     p.Metrics,
		callTimeout: callTimeout,
		lockTTL:     lockTTL,
		lockWait:    lockWait,
	}
}

func (s *Service) Status(ctx context.Context, accountID snowflake.ID) (*subscriptiondomain.Subscription, error) {
	if accountID == 0 {
		return nil, domain.ErrInvalidAccount
	}
	return s.ledger.Get(ctx, accountID)
}

func (s *Service) CreateSubscription(ctx context.Context, req domain.CreateRequest) (result *domain.CreateResult, err error) {
	defer func() { s.metrics.RecordSubscriptionOp("create", err) }()

	if req.AccountID == 0 {
		return nil, domain.ErrInvalidAccount
	}
	if req.PlanID == 0 {
		return nil, domain.ErrInvalidPlan
	}
	paymentMethodID := strings.TrimSpace(req.PaymentMethodID)
	if paymentMethodID == "" {
		return nil, domain.ErrMissingPaymentMethod
	}

	release, err := s.lock(ctx, req.AccountID)
	if err != nil {
		return nil, err
	}
	defer release()

	plan, err := s.plans.GetActive(ctx, req.PlanID)
	if err != nil {
		return nil, err
	}

	current, err := s.ledger.Get(ctx, req.AccountID)
	if err != nil {
		return nil, err
	}
	if current.IsActive {
		return nil, domain.ErrAlreadySubscribed
	}

	customerID, err := s.accounts.EnsureExternalCustomer(ctx, req.AccountID)
	if err != nil {
		return nil, err
	}

	if err := s.call(ctx, func(ctx context.Context) error {
		return s.processor.AttachPaymentMethod(ctx, customerID, paymentMethodID)
	}); err != nil {
		return nil, fmt.Errorf("attach payment method: %w", err)
	}
	if err := s.call(ctx, func(ctx context.Context) error {
		return s.processor.SetDefaultPaymentMethod(ctx, customerID, paymentMethodID)
	}); err != nil {
		return nil, fmt.Errorf("set default payment method: %w", err)
	}

	// The version moves only on a committed write, so retrying after a failed
	// local write replays the same processor subscription.
	idempotencyKey := fmt.Sprintf("subscription-create-%s-v%d", current.ID, current.Version)
	var external *processor.Subscription
	if err := s.call(ctx, func(ctx context.Context) error {
		var callErr error
		external, callErr = s.processor.CreateSubscription(ctx, processor.SubscriptionParams{
			CustomerID:     customerID,
			PriceID:        plan.ExternalPriceID,
			IdempotencyKey: idempotencyKey,
		})
		return callErr
	}); err != nil {
		return nil, fmt.Errorf("create subscription: %w", err)
	}

	status, ok := subscriptiondomain.ParseStatus(external.Status)
	if !ok {
		s.log.Warn("processor returned unknown subscription status",
			zap.String("external_subscription_id", external.ID),
			zap.String("status", external.Status),
		)
		status = subscriptiondomain.StatusIncomplete
	}

	planID := plan.ID
	fields := subscriptiondomain.Fields{
		PlanID:                 &planID,
		ExternalSubscriptionID: &external.ID,
		Status:                 status,
		CurrentPeriodStart:     utc(external.CurrentPeriodStart),
		CurrentPeriodEnd:       utc(external.CurrentPeriodEnd),
		CancelAtPeriodEnd:      external.CancelAtPeriodEnd,
		CanceledAt:             utc(external.CanceledAt),
		TrialEnd:               utc(external.TrialEnd),
	}
	writtenAt := s.clock.Now()
	sub, err := s.ledger.Mutate(ctx, req.AccountID, func(sub *subscriptiondomain.Subscription) error {
		fields.Apply(sub)
		advanceLastEvent(sub, writtenAt)
		return nil
	})
	if err != nil {
		s.reconciliationRisk(ctx, "create", req.AccountID, external.ID, err)
		return nil, fmt.Errorf("%w: %v", domain.ErrPersistAfterExternal, err)
	}

	s.log.Info("subscription created",
		zap.String("account_id", req.AccountID.String()),
		zap.String("external_subscription_id", external.ID),
		zap.String("status", string(sub.Status)),
	)

	result = &domain.CreateResult{Subscription: sub}
	if sub.Status == subscriptiondomain.StatusIncomplete {
		result.ClientSecret = external.ClientSecret
	}
	return result, nil
}

func (s *Service) CancelSubscription(ctx context.Context, req domain.CancelRequest) (sub *subscriptiondomain.Subscription, err error) {
	defer func() { s.metrics.RecordSubscriptionOp("cancel", err) }()

	if req.AccountID == 0 {
		return nil, domain.ErrInvalidAccount
	}
	release, err := s.lock(ctx, req.AccountID)
	if err != nil {
		return nil, err
	}
	defer release()

	current, err := s.ledger.Find(ctx, req.AccountID)
	if err != nil {
		return nil, err
	}
	if current == nil || !current.IsActive || !current.HasExternal() {
		return nil, domain.ErrNoActiveSubscription
	}
	externalID := *current.ExternalSubscriptionID

	var external *processor.Subscription
	if err := s.call(ctx, func(ctx context.Context) error {
		var callErr error
		external, callErr = s.processor.CancelSubscription(ctx, externalID, req.Immediate)
		return callErr
	}); err != nil {
		return nil, fmt.Errorf("cancel subscription: %w", err)
	}

	now := s.clock.Now()
	sub, err = s.ledger.Mutate(ctx, req.AccountID, func(sub *subscriptiondomain.Subscription) error {
		advanceLastEvent(sub, now)
		if req.Immediate {
			sub.Status = subscriptiondomain.StatusCanceled
			canceledAt := now
			if external.CanceledAt != nil {
				canceledAt = external.CanceledAt.UTC()
			}
			sub.CanceledAt = &canceledAt
			return nil
		}
		sub.CancelAtPeriodEnd = true
		if external.CurrentPeriodEnd != nil {
			sub.CurrentPeriodEnd = utc(external.CurrentPeriodEnd)
		}
		return nil
	})
	if err != nil {
		s.reconciliationRisk(ctx, "cancel", req.AccountID, externalID, err)
		return nil, fmt.Errorf("%w: %v", domain.ErrPersistAfterExternal, err)
	}

	s.log.Info("subscription canceled",
		zap.String("account_id", req.AccountID.String()),
		zap.String("external_subscription_id", externalID),
		zap.Bool("immediate", req.Immediate),
	)

	var periodEnd any
	if !req.Immediate && sub.CurrentPeriodEnd != nil {
		periodEnd = sub.CurrentPeriodEnd.Format("January 2, 2006")
	}
	s.notifyAccount(ctx, req.AccountID, notificationdomain.KindCancellation, map[string]any{
		"period_end": periodEnd,
	})
	return sub, nil
}

func (s *Service) ReactivateSubscription(ctx context.Context, accountID snowflake.ID) (sub *subscriptiondomain.Subscription, err error) {
	defer func() { s.metrics.RecordSubscriptionOp("reactivate", err) }()

	if accountID == 0 {
		return nil, domain.ErrInvalidAccount
	}
	release, err := s.lock(ctx, accountID)
	if err != nil {
		return nil, err
	}
	defer release()

	current, err := s.ledger.Find(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if current == nil || !current.CancelAtPeriodEnd || !current.HasExternal() || current.Status.IsTerminal() {
		return nil, domain.ErrNotPendingCancellation
	}
	externalID := *current.ExternalSubscriptionID

	if err := s.call(ctx, func(ctx context.Context) error {
		_, callErr := s.processor.ResumeSubscription(ctx, externalID)
		return callErr
	}); err != nil {
		return nil, fmt.Errorf("reactivate subscription: %w", err)
	}

	writtenAt := s.clock.Now()
	sub, err = s.ledger.Mutate(ctx, accountID, func(sub *subscriptiondomain.Subscription) error {
		sub.CancelAtPeriodEnd = false
		advanceLastEvent(sub, writtenAt)
		return nil
	})
	if err != nil {
		s.reconciliationRisk(ctx, "reactivate", accountID, externalID, err)
		return nil, fmt.Errorf("%w: %v", domain.ErrPersistAfterExternal, err)
	}

	s.log.Info("subscription reactivated",
		zap.String("account_id", accountID.String()),
		zap.String("external_subscription_id", externalID),
	)
	return sub, nil
}

func (s *Service) lock(ctx context.Context, accountID snowflake.ID) (func(), error) {
	release, err := lock.Acquire(ctx, s.locker, lockKey(accountID), s.lockTTL, s.lockWait)
	if errors.Is(err, lock.ErrNotAcquired) {
		return nil, domain.ErrOperationInProgress
	}
	return release, err
}

func lockKey(accountID snowflake.ID) string {
	return "billing:subscription:" + accountID.String()
}

// call bounds one processor request by the configured timeout.
func (s *Service) call(ctx context.Context, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, s.callTimeout)
	defer cancel()
	return fn(ctx)
}

func (s *Service) reconciliationRisk(ctx context.Context, step string, accountID snowflake.ID, externalID string, err error) {
	s.log.Error("processor change not persisted locally; reconciliation sweep will repair",
		zap.String("step", step),
		zap.String("account_id", accountID.String()),
		zap.String("external_subscription_id", externalID),
		zap.Error(err),
	)
}

// notifyAccount queues a notification for the account's address. Failures
// are logged and never reach the caller.
func (s *Service) notifyAccount(ctx context.Context, accountID snowflake.ID, kind notificationdomain.Kind, args map[string]any) {
	account, err := s.accounts.Get(ctx, accountID)
	if err != nil {
		s.log.Warn("notification skipped, account lookup failed",
			zap.String("account_id", accountID.String()),
			zap.String("kind", string(kind)),
			zap.Error(err),
		)
		return
	}
	s.notify(ctx, account, kind, args)
}

func (s *Service) notify(ctx context.Context, account *accountdomain.Account, kind notificationdomain.Kind, args map[string]any) {
	args["full_name"] = account.FullName
	if err := s.notifier.Send(ctx, kind, account.Email, args); err != nil {
		s.log.Warn("notification not queued",
			zap.String("account_id", account.ID.String()),
			zap.String("kind", string(kind)),
			zap.Error(err),
		)
	}
}

func utc(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.UTC()
	return &v
}
