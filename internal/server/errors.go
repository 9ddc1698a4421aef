package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	accountdomain "github.com/smallbiznis/subkit/internal/account/domain"
	billingdomain "github.com/smallbiznis/subkit/internal/billing/domain"
	paymenthistorydomain "github.com/smallbiznis/subkit/internal/paymenthistory/domain"
	plandomain "github.com/smallbiznis/subkit/internal/plan/domain"
	"github.com/smallbiznis/subkit/internal/processor"
	subscriptiondomain "github.com/smallbiznis/subkit/internal/subscription/domain"
	webhookdomain "github.com/smallbiznis/subkit/internal/webhook/domain"
	"github.com/smallbiznis/subkit/pkg/db/pagination"
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v ValidationErrors) Error() string {
	return "validation error"
}

type errorPayload struct {
	Type    string            `json:"type"`
	Message string            `json:"message"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrUnauthorized    = errors.New("unauthorized")
	ErrNotFound        = errors.New("not_found")
	ErrInvalidRequest  = errors.New("invalid_request")
	ErrTooManyRequests = errors.New("too_many_requests")
)

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func invalidRequestError() error {
	return newValidationError("request", "invalid_request", "invalid request")
}

func newValidationError(field, code, message string) error {
	return &ValidationErrors{
		Errors: []ValidationError{
			{
				Field:   field,
				Code:    code,
				Message: message,
			},
		},
	}
}

// fieldErrors maps domain validation sentinels onto the request field they
// describe.
var fieldErrors = []struct {
	err     error
	field   string
	message string
}{
	{accountdomain.ErrInvalidEmail, "email", "a valid email address is required"},
	{accountdomain.ErrPasswordTooShort, "password", "password must be at least 8 characters"},
	{accountdomain.ErrInvalidFullName, "full_name", "full name is too long"},
	{billingdomain.ErrInvalidPlan, "plan_id", "plan_id is required"},
	{billingdomain.ErrMissingPaymentMethod, "payment_method_id", "payment_method_id is required"},
	{billingdomain.ErrInvalidAccount, "account", "invalid account"},
	{plandomain.ErrInvalidPageSize, "page_size", "invalid page size"},
	{paymenthistorydomain.ErrInvalidPageSize, "page_size", "invalid page size"},
	{pagination.ErrInvalidPageToken, "page_token", "invalid page token"},
	{ErrInvalidRequest, "request", "invalid request"},
}

func mapError(err error) (int, errorPayload) {
	if err == nil {
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}

	if vErr := asValidationErrors(err); vErr != nil {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  vErr.Errors,
		}
	}

	for _, fe := range fieldErrors {
		if errors.Is(err, fe.err) {
			return http.StatusBadRequest, errorPayload{
				Type:    "validation_error",
				Message: "validation error",
				Errors: []ValidationError{{
					Field:   fe.field,
					Code:    fe.err.Error(),
					Message: fe.message,
				}},
			}
		}
	}

	switch {
	case errors.Is(err, ErrUnauthorized),
		errors.Is(err, accountdomain.ErrInvalidCredentials),
		errors.Is(err, accountdomain.ErrInvalidSession),
		errors.Is(err, accountdomain.ErrSessionExpired),
		errors.Is(err, accountdomain.ErrSessionRevoked):
		return http.StatusUnauthorized, errorPayload{
			Type:    "unauthorized",
			Message: "unauthorized",
		}
	case errors.Is(err, ErrTooManyRequests):
		return http.StatusTooManyRequests, errorPayload{
			Type:    "too_many_requests",
			Message: "too many attempts, try again later",
		}
	case isConflictError(err):
		return http.StatusBadRequest, errorPayload{
			Type:    "conflict",
			Message: conflictMessage(err),
		}
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: notFoundMessage(err),
		}
	case isSignatureError(err):
		return http.StatusBadRequest, errorPayload{
			Type:    "signature_error",
			Message: "invalid webhook payload or signature",
		}
	case errors.Is(err, processor.ErrCardDeclined):
		return http.StatusPaymentRequired, errorPayload{
			Type:    "payment_declined",
			Message: processorMessage(err, "the card was declined"),
		}
	case errors.Is(err, processor.ErrRejected):
		// rejection text names prices and ids; only declines are user facing
		return http.StatusBadRequest, errorPayload{
			Type:    "external_service_error",
			Message: "Payment processing failed. Please try again.",
		}
	case errors.Is(err, processor.ErrUnavailable),
		errors.Is(err, processor.ErrNotConfigured),
		errors.Is(err, context.DeadlineExceeded):
		return http.StatusBadGateway, errorPayload{
			Type:    "external_service_error",
			Message: "the payment processor is unavailable",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}

func isConflictError(err error) bool {
	switch {
	case errors.Is(err, accountdomain.ErrAccountExists),
		errors.Is(err, accountdomain.ErrCustomerBusy),
		errors.Is(err, billingdomain.ErrAlreadySubscribed),
		errors.Is(err, billingdomain.ErrOperationInProgress),
		errors.Is(err, subscriptiondomain.ErrExternalRefConflict):
		return true
	default:
		return false
	}
}

func conflictMessage(err error) string {
	switch {
	case errors.Is(err, accountdomain.ErrAccountExists):
		return "an account with this email already exists"
	case errors.Is(err, billingdomain.ErrAlreadySubscribed):
		return "account already has an active subscription"
	case errors.Is(err, billingdomain.ErrOperationInProgress),
		errors.Is(err, accountdomain.ErrCustomerBusy):
		return "another subscription change is in progress"
	default:
		return "conflict"
	}
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, plandomain.ErrPlanNotFound),
		errors.Is(err, accountdomain.ErrAccountNotFound),
		errors.Is(err, subscriptiondomain.ErrSubscriptionNotFound),
		errors.Is(err, billingdomain.ErrNoActiveSubscription),
		errors.Is(err, billingdomain.ErrNotPendingCancellation):
		return true
	default:
		return false
	}
}

func notFoundMessage(err error) string {
	switch {
	case errors.Is(err, plandomain.ErrPlanNotFound):
		return "plan not found"
	case errors.Is(err, billingdomain.ErrNoActiveSubscription):
		return "no active subscription"
	case errors.Is(err, billingdomain.ErrNotPendingCancellation):
		return "subscription is not scheduled for cancellation"
	default:
		return "not found"
	}
}

func isSignatureError(err error) bool {
	switch {
	case errors.Is(err, processor.ErrInvalidSignature),
		errors.Is(err, processor.ErrMalformedEvent),
		errors.Is(err, webhookdomain.ErrEmptyPayload),
		errors.Is(err, webhookdomain.ErrMissingSignature):
		return true
	default:
		return false
	}
}

// processorMessage surfaces the processor's own explanation, which is safe to
// show the card holder.
func processorMessage(err error, fallback string) string {
	var pErr *processor.Error
	if errors.As(err, &pErr) && pErr.Message != "" {
		return pErr.Message
	}
	return fallback
}

func classifyErrorForLog(err error) string {
	status, payload := mapError(err)
	if status >= http.StatusInternalServerError && payload.Type == "internal_error" {
		return "internal"
	}
	return payload.Type
}
