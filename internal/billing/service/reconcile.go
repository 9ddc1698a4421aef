package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	accountdomain "github.com/smallbiznis/subkit/internal/account/domain"
	"github.com/smallbiznis/subkit/internal/billing/domain"
	"github.com/smallbiznis/subkit/internal/lock"
	notificationdomain "github.com/smallbiznis/subkit/internal/notification/domain"
	paymenthistorydomain "github.com/smallbiznis/subkit/internal/paymenthistory/domain"
	plandomain "github.com/smallbiznis/subkit/internal/plan/domain"
	"github.com/smallbiznis/subkit/internal/processor"
	subscriptiondomain "github.com/smallbiznis/subkit/internal/subscription/domain"
	"go.uber.org/zap"
)

// errSkip aborts a ledger mutation without treating it as a failure.
var errSkip = errors.New("skip")

func (s *Service) Reconcile(ctx context.Context, event processor.Event) error {
	log := s.log.With(
		zap.String("event_id", event.ID),
		zap.String("event_type", event.Type),
	)

	switch event.Kind {
	case processor.EventSubscriptionCreated, processor.EventSubscriptionUpdated:
		return s.applySubscription(ctx, log, event)
	case processor.EventSubscriptionDeleted:
		return s.applyDeleted(ctx, log, event)
	case processor.EventInvoicePaymentSucceeded:
		return s.recordPayment(ctx, log, event, paymenthistorydomain.StatusSucceeded)
	case processor.EventInvoicePaymentFailed:
		return s.recordPayment(ctx, log, event, paymenthistorydomain.StatusFailed)
	case processor.EventTrialWillEnd:
		if event.Subscription != nil {
			log = log.With(zap.String("external_subscription_id", event.Subscription.ID))
		}
		log.Info("trial ending soon")
		return nil
	case processor.EventIgnored:
		log.Debug("event ignored")
		return nil
	default:
		log.Warn("unhandled event kind", zap.Int("kind", int(event.Kind)))
		return nil
	}
}

func (s *Service) applySubscription(ctx context.Context, log *zap.Logger, event processor.Event) error {
	ext := event.Subscription
	if ext == nil || ext.ID == "" {
		log.Warn("subscription event without subscription payload")
		return nil
	}
	log = log.With(zap.String("external_subscription_id", ext.ID))

	status, ok := subscriptiondomain.ParseStatus(ext.Status)
	if !ok {
		log.Warn("unknown subscription status, skipping", zap.String("status", ext.Status))
		return nil
	}
	planID, err := s.planForPrice(ctx, ext.PriceID)
	if err != nil {
		return err
	}

	_, err = s.ledger.MutateByExternalID(ctx, ext.ID, func(sub *subscriptiondomain.Subscription) error {
		if sub.LastEventAt != nil && !event.CreatedAt.IsZero() && event.CreatedAt.Before(*sub.LastEventAt) {
			log.Info("stale subscription event, skipping")
			return errSkip
		}
		if sub.Status.IsTerminal() {
			log.Info("subscription already ended, skipping", zap.String("status", string(sub.Status)))
			return errSkip
		}

		sub.Status = status
		sub.CancelAtPeriodEnd = ext.CancelAtPeriodEnd
		if ext.CurrentPeriodStart != nil {
			sub.CurrentPeriodStart = utc(ext.CurrentPeriodStart)
		}
		if ext.CurrentPeriodEnd != nil {
			sub.CurrentPeriodEnd = utc(ext.CurrentPeriodEnd)
		}
		if ext.CanceledAt != nil {
			sub.CanceledAt = utc(ext.CanceledAt)
		}
		if ext.TrialEnd != nil {
			sub.TrialEnd = utc(ext.TrialEnd)
		}
		if planID != nil {
			sub.PlanID = planID
		}
		stampEvent(sub, event)
		return nil
	})
	switch {
	case errors.Is(err, errSkip):
		return nil
	case errors.Is(err, subscriptiondomain.ErrSubscriptionNotFound):
		// the direct path has not stored it yet; the sweep picks it up
		log.Info("subscription unknown locally, skipping")
		return nil
	case err != nil:
		return fmt.Errorf("apply %s: %w", event.Type, err)
	}
	log.Info("subscription synced", zap.String("status", string(status)))
	return nil
}

func (s *Service) applyDeleted(ctx context.Context, log *zap.Logger, event processor.Event) error {
	ext := event.Subscription
	if ext == nil || ext.ID == "" {
		log.Warn("subscription event without subscription payload")
		return nil
	}
	log = log.With(zap.String("external_subscription_id", ext.ID))

	now := s.clock.Now()
	_, err := s.ledger.MutateByExternalID(ctx, ext.ID, func(sub *subscriptiondomain.Subscription) error {
		sub.Status = subscriptiondomain.StatusCanceled
		sub.CanceledAt = &now
		stampEvent(sub, event)
		return nil
	})
	if errors.Is(err, subscriptiondomain.ErrSubscriptionNotFound) {
		log.Info("subscription unknown locally, skipping")
		return nil
	}
	if err != nil {
		return fmt.Errorf("apply %s: %w", event.Type, err)
	}
	log.Info("subscription deleted")
	return nil
}

func stampEvent(sub *subscriptiondomain.Subscription, event processor.Event) {
	advanceLastEvent(sub, event.CreatedAt)
}

// advanceLastEvent moves the staleness watermark forward, never back. Direct
// writes stamp it too, truncated to the second like Stripe event times, so an
// event created before a cancel or reactivate cannot undo it.
func advanceLastEvent(sub *subscriptiondomain.Subscription, at time.Time) {
	if at.IsZero() {
		return
	}
	at = at.UTC().Truncate(time.Second)
	if sub.LastEventAt == nil || at.After(*sub.LastEventAt) {
		sub.LastEventAt = &at
	}
}

func (s *Service) recordPayment(ctx context.Context, log *zap.Logger, event processor.Event, status paymenthistorydomain.Status) error {
	inv := event.Invoice
	if inv == nil {
		log.Warn("invoice event without invoice payload")
		return nil
	}
	log = log.With(zap.String("external_customer_id", inv.CustomerID))

	account, err := s.accounts.FindByExternalCustomerID(ctx, inv.CustomerID)
	if errors.Is(err, accountdomain.ErrAccountNotFound) {
		log.Warn("payment for unknown customer, skipping")
		return nil
	}
	if err != nil {
		return fmt.Errorf("resolve customer: %w", err)
	}

	sub, err := s.ledger.Find(ctx, account.ID)
	if err != nil {
		return err
	}
	var subscriptionID *snowflake.ID
	planName := "Subscription"
	if sub != nil {
		subscriptionID = &sub.ID
		if sub.PlanID != nil {
			if plan, err := s.plans.Get(ctx, *sub.PlanID); err == nil {
				planName = plan.Name
			} else if !errors.Is(err, plandomain.ErrPlanNotFound) {
				return err
			}
		}
	}

	eventID := event.ID
	entry := &paymenthistorydomain.Entry{
		AccountID:               account.ID,
		SubscriptionID:          subscriptionID,
		ExternalInvoiceID:       inv.ID,
		ExternalPaymentIntentID: inv.PaymentIntentID,
		ExternalEventID:         &eventID,
		Currency:                inv.Currency,
		Status:                  status,
	}
	kind := notificationdomain.KindSubscriptionConfirmation
	if status == paymenthistorydomain.StatusSucceeded {
		entry.Amount = inv.AmountPaid
		entry.Description = "Invoice payment - " + planName
	} else {
		entry.Amount = inv.AmountDue
		entry.Description = "Payment attempt failed"
		kind = notificationdomain.KindPaymentFailed
	}

	if err := s.history.Append(ctx, entry); err != nil {
		if errors.Is(err, paymenthistorydomain.ErrDuplicateEntry) {
			log.Info("payment already recorded")
			return nil
		}
		return fmt.Errorf("record payment: %w", err)
	}

	s.notify(ctx, account, kind, map[string]any{
		"plan_name": planName,
		"amount":    entry.Amount.StringFixed(2),
		"currency":  entry.Currency,
	})
	return nil
}

func (s *Service) planForPrice(ctx context.Context, priceID string) (*snowflake.ID, error) {
	if priceID == "" {
		return nil, nil
	}
	plan, err := s.plans.FindByExternalPriceID(ctx, priceID)
	if errors.Is(err, plandomain.ErrPlanNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &plan.ID, nil
}

// ReconcileOrphans visits ledger rows that may be missing a processor
// subscription and adopts the newest live one. It covers two windows: a
// webhook that arrived before the direct path stored its result, and a local
// write that failed after the processor accepted the subscription.
func (s *Service) ReconcileOrphans(ctx context.Context, limit int) (domain.SweepResult, error) {
	var result domain.SweepResult

	candidates, err := s.ledger.ListSweepCandidates(ctx, limit)
	if err != nil {
		return result, err
	}

	for i := range candidates {
		if ctx.Err() != nil {
			return result, ctx.Err()
		}
		result.Visited++

		adopted, err := s.reconcileOne(ctx, &candidates[i])
		switch {
		case err != nil:
			result.Failed++
			s.log.Warn("sweep candidate failed",
				zap.String("account_id", candidates[i].AccountID.String()),
				zap.Error(err),
			)
		case adopted:
			result.Adopted++
		default:
			result.Skipped++
		}
	}

	s.metrics.RecordReconciled("sweep", result.Adopted)
	if result.Visited > 0 {
		s.log.Info("reconciliation sweep finished",
			zap.Int("visited", result.Visited),
			zap.Int("adopted", result.Adopted),
			zap.Int("failed", result.Failed),
		)
	}
	return result, nil
}

func (s *Service) reconcileOne(ctx context.Context, candidate *subscriptiondomain.Subscription) (bool, error) {
	// a create or cancel in flight owns the row; try again next sweep
	release, err := lock.Acquire(ctx, s.locker, lockKey(candidate.AccountID), s.lockTTL, 0)
	if err != nil {
		if errors.Is(err, lock.ErrNotAcquired) {
			return false, nil
		}
		return false, err
	}
	defer release()
	defer func() {
		if err := s.ledger.MarkReconciled(ctx, candidate.ID, s.clock.Now()); err != nil {
			s.log.Warn("stamp reconciled_at", zap.Error(err))
		}
	}()

	account, err := s.accounts.Get(ctx, candidate.AccountID)
	if err != nil {
		return false, err
	}
	if !account.HasExternalCustomer() {
		return false, nil
	}

	var externals []processor.Subscription
	if err := s.call(ctx, func(ctx context.Context) error {
		var callErr error
		externals, callErr = s.processor.ListCustomerSubscriptions(ctx, *account.ExternalCustomerID)
		return callErr
	}); err != nil {
		return false, fmt.Errorf("list processor subscriptions: %w", err)
	}

	var live *processor.Subscription
	var status subscriptiondomain.Status
	for i := range externals {
		st, ok := subscriptiondomain.ParseStatus(externals[i].Status)
		if ok && !st.IsTerminal() && st != subscriptiondomain.StatusInactive {
			live, status = &externals[i], st
			break
		}
	}
	if live == nil {
		return false, nil
	}

	planID, err := s.planForPrice(ctx, live.PriceID)
	if err != nil {
		return false, err
	}

	changed := false
	_, err = s.ledger.Mutate(ctx, candidate.AccountID, func(sub *subscriptiondomain.Subscription) error {
		if sub.IsActive && sub.HasExternal() && *sub.ExternalSubscriptionID != live.ID {
			return errSkip
		}
		if sub.HasExternal() && *sub.ExternalSubscriptionID == live.ID && sub.Status == status {
			return errSkip
		}
		sub.ExternalSubscriptionID = &live.ID
		sub.Status = status
		sub.CancelAtPeriodEnd = live.CancelAtPeriodEnd
		sub.CurrentPeriodStart = utc(live.CurrentPeriodStart)
		sub.CurrentPeriodEnd = utc(live.CurrentPeriodEnd)
		sub.CanceledAt = utc(live.CanceledAt)
		sub.TrialEnd = utc(live.TrialEnd)
		if planID != nil {
			sub.PlanID = planID
		}
		changed = true
		return nil
	})
	if errors.Is(err, errSkip) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if changed {
		s.log.Info("adopted processor subscription",
			zap.String("account_id", candidate.AccountID.String()),
			zap.String("external_subscription_id", live.ID),
			zap.String("status", string(status)),
		)
	}
	return changed, nil
}
