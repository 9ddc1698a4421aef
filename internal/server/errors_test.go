package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	accountdomain "github.com/smallbiznis/subkit/internal/account/domain"
	billingdomain "github.com/smallbiznis/subkit/internal/billing/domain"
	plandomain "github.com/smallbiznis/subkit/internal/plan/domain"
	"github.com/smallbiznis/subkit/internal/processor"
	subscriptiondomain "github.com/smallbiznis/subkit/internal/subscription/domain"
	"github.com/stretchr/testify/assert"
)

func TestMapError(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		kind   string
	}{
		{"validation", accountdomain.ErrInvalidEmail, http.StatusBadRequest, "validation_error"},
		{"missing payment method", billingdomain.ErrMissingPaymentMethod, http.StatusBadRequest, "validation_error"},
		{"credentials", accountdomain.ErrInvalidCredentials, http.StatusUnauthorized, "unauthorized"},
		{"rate limited", ErrTooManyRequests, http.StatusTooManyRequests, "too_many_requests"},
		{"already subscribed", billingdomain.ErrAlreadySubscribed, http.StatusBadRequest, "conflict"},
		{"operation in progress", fmt.Errorf("lock: %w", billingdomain.ErrOperationInProgress), http.StatusBadRequest, "conflict"},
		{"plan missing", plandomain.ErrPlanNotFound, http.StatusNotFound, "not_found"},
		{"no subscription", billingdomain.ErrNoActiveSubscription, http.StatusNotFound, "not_found"},
		{"subscription missing", subscriptiondomain.ErrSubscriptionNotFound, http.StatusNotFound, "not_found"},
		{"bad signature", processor.ErrInvalidSignature, http.StatusBadRequest, "signature_error"},
		{"declined", &processor.Error{Kind: processor.ErrCardDeclined, Message: "Your card was declined."}, http.StatusPaymentRequired, "payment_declined"},
		{"rejected", &processor.Error{Kind: processor.ErrRejected, Message: "No such price"}, http.StatusBadRequest, "external_service_error"},
		{"unavailable", fmt.Errorf("create: %w", &processor.Error{Kind: processor.ErrUnavailable}), http.StatusBadGateway, "external_service_error"},
		{"deadline", context.DeadlineExceeded, http.StatusBadGateway, "external_service_error"},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, "internal_error"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			status, payload := mapError(tc.err)
			assert.Equal(t, tc.status, status)
			assert.Equal(t, tc.kind, payload.Type)
			assert.NotEmpty(t, payload.Message)
		})
	}
}

func TestMapErrorHidesInternalDetail(t *testing.T) {
	_, payload := mapError(fmt.Errorf("select: %w", errors.New("pq: relation missing")))
	assert.Equal(t, "internal server error", payload.Message)
}

func TestMapErrorHidesProcessorRejection(t *testing.T) {
	status, payload := mapError(fmt.Errorf("create subscription: %w", &processor.Error{
		Kind:    processor.ErrRejected,
		Code:    "resource_missing",
		Message: "No such price: 'price_1Nx9internal'",
	}))
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "Payment processing failed. Please try again.", payload.Message)
	assert.NotContains(t, payload.Message, "price_1Nx9internal")

	_, payload = mapError(&processor.Error{Kind: processor.ErrCardDeclined, Message: "Your card has insufficient funds."})
	assert.Equal(t, "Your card has insufficient funds.", payload.Message)
}
