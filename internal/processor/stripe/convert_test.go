package stripe

import (
	"errors"
	"net/http"
	"testing"

	"github.com/smallbiznis/subkit/internal/processor"
	stripeapi "github.com/stripe/stripe-go/v82"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMapError(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want error
	}{
		{
			name: "card",
			err:  &stripeapi.Error{Type: stripeapi.ErrorTypeCard, HTTPStatusCode: http.StatusPaymentRequired, Msg: "Your card was declined."},
			want: processor.ErrCardDeclined,
		},
		{
			name: "invalid request",
			err:  &stripeapi.Error{Type: stripeapi.ErrorTypeInvalidRequest, HTTPStatusCode: http.StatusBadRequest, Msg: "No such price"},
			want: processor.ErrRejected,
		},
		{
			name: "rate limited",
			err:  &stripeapi.Error{Type: stripeapi.ErrorTypeInvalidRequest, HTTPStatusCode: http.StatusTooManyRequests},
			want: processor.ErrUnavailable,
		},
		{
			name: "api error",
			err:  &stripeapi.Error{Type: stripeapi.ErrorTypeAPI, HTTPStatusCode: http.StatusInternalServerError},
			want: processor.ErrUnavailable,
		},
		{
			name: "network",
			err:  errors.New("dial tcp: connection refused"),
			want: processor.ErrUnavailable,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := mapError(tc.err)
			assert.ErrorIs(t, got, tc.want)
		})
	}
	assert.NoError(t, mapError(nil))
}

func TestToSubscriptionReadsItemPeriodAndSecret(t *testing.T) {
	sub := toSubscription(&stripeapi.Subscription{
		ID:       "sub_1",
		Customer: &stripeapi.Customer{ID: "cus_1"},
		Status:   stripeapi.SubscriptionStatusIncomplete,
		Items: &stripeapi.SubscriptionItemList{Data: []*stripeapi.SubscriptionItem{{
			CurrentPeriodStart: 1700000000,
			CurrentPeriodEnd:   1702592000,
			Price:              &stripeapi.Price{ID: "price_1"},
		}}},
		LatestInvoice: &stripeapi.Invoice{
			ConfirmationSecret: &stripeapi.InvoiceConfirmationSecret{ClientSecret: "pi_secret"},
		},
	})

	require.NotNil(t, sub)
	assert.Equal(t, "incomplete", sub.Status)
	assert.Equal(t, "cus_1", sub.CustomerID)
	assert.Equal(t, "price_1", sub.PriceID)
	assert.Equal(t, "pi_secret", sub.ClientSecret)
	require.NotNil(t, sub.CurrentPeriodStart)
	assert.Equal(t, int64(1700000000), sub.CurrentPeriodStart.Unix())
	assert.Nil(t, sub.CanceledAt)
}

func TestToPrice(t *testing.T) {
	price, ok := toPrice(&stripeapi.Price{
		ID:         "price_1",
		Active:     true,
		UnitAmount: 1999,
		Currency:   stripeapi.CurrencyUSD,
		Recurring:  &stripeapi.PriceRecurring{Interval: stripeapi.PriceRecurringIntervalMonth},
		Product: &stripeapi.Product{
			ID:       "prod_1",
			Name:     "Pro",
			Active:   true,
			Metadata: map[string]string{"features": "Unlimited seats, Priority support\nAPI access"},
		},
	})
	require.True(t, ok)
	assert.Equal(t, "19.99", price.UnitAmount.StringFixed(2))
	assert.Equal(t, "month", price.Interval)
	assert.Equal(t, []string{"Unlimited seats", "Priority support", "API access"}, price.Features)

	_, ok = toPrice(&stripeapi.Price{ID: "one_off"})
	assert.False(t, ok, "non-recurring prices are skipped")
}
