package domain

import "errors"

var (
	ErrSubscriptionNotFound = errors.New("subscription_not_found")
	ErrInvalidStatus        = errors.New("invalid_subscription_status")
	ErrMissingExternalRef   = errors.New("subscription_missing_external_reference")
	ErrExternalRefConflict  = errors.New("subscription_external_reference_conflict")
	ErrInvalidAccount       = errors.New("invalid_account_id")
)
