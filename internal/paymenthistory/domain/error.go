package domain

import "errors"

var (
	ErrDuplicateEntry  = errors.New("duplicate_payment_entry")
	ErrInvalidAccount  = errors.New("invalid_account_id")
	ErrInvalidStatus   = errors.New("invalid_payment_status")
	ErrNegativeAmount  = errors.New("negative_payment_amount")
	ErrInvalidPageSize = errors.New("invalid_page_size")
)
