package domain

import "errors"

var (
	ErrInvalidEmail       = errors.New("invalid_email")
	ErrPasswordTooShort   = errors.New("password_too_short")
	ErrInvalidFullName    = errors.New("invalid_full_name")
	ErrInvalidCredentials = errors.New("invalid_credentials")
	ErrAccountExists      = errors.New("account_exists")
	ErrAccountNotFound    = errors.New("account_not_found")
	ErrInvalidSession     = errors.New("invalid_session")
	ErrSessionExpired     = errors.New("session_expired")
	ErrSessionRevoked     = errors.New("session_revoked")
	ErrCustomerBusy       = errors.New("customer_creation_in_progress")
)
