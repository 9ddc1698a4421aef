package domain

import "errors"

var (
	ErrEmptyPayload     = errors.New("empty_webhook_payload")
	ErrMissingSignature = errors.New("missing_webhook_signature")
	ErrEventNotFound    = errors.New("webhook_event_not_found")
)
