package domain

import "errors"

var (
	ErrUnknownKind      = errors.New("unknown_notification_kind")
	ErrMissingRecipient = errors.New("missing_notification_recipient")
	ErrJobNotFound      = errors.New("notification_job_not_found")
)
