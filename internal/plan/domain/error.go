package domain

import "errors"

var (
	ErrPlanNotFound    = errors.New("plan_not_found")
	ErrInvalidPageSize = errors.New("invalid_page_size")
)
