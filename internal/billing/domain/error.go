package domain

import "errors"

var (
	ErrInvalidAccount         = errors.New("invalid_account_id")
	ErrInvalidPlan            = errors.New("invalid_plan_id")
	ErrMissingPaymentMethod   = errors.New("missing_payment_method")
	ErrAlreadySubscribed      = errors.New("already_subscribed")
	ErrNoActiveSubscription   = errors.New("no_active_subscription")
	ErrNotPendingCancellation = errors.New("subscription_not_pending_cancellation")
	ErrOperationInProgress    = errors.New("subscription_operation_in_progress")
	// ErrPersistAfterExternal means the processor accepted a change that
	// could not be stored locally. The reconciliation sweep repairs it.
	ErrPersistAfterExternal = errors.New("subscription_persist_failed")
)
