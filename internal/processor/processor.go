// Package processor defines the boundary to the external payment processor.
// Billing code depends on Client and EventParser only; the stripe
// subpackage implements both against the Stripe API.
package processor

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

//go:generate mockgen -destination=mock/mock_client.go -package=mock github.com/smallbiznis/subkit/internal/processor Client

type Client interface {
	CreateCustomer(ctx context.Context, params CustomerParams) (string, error)
	AttachPaymentMethod(ctx context.Context, customerID, paymentMethodID string) error
	SetDefaultPaymentMethod(ctx context.Context, customerID, paymentMethodID string) error
	CreateSubscription(ctx context.Context, params SubscriptionParams) (*Subscription, error)
	// CancelSubscription ends the subscription now when immediate is set,
	// otherwise it schedules cancellation at the current period end.
	CancelSubscription(ctx context.Context, subscriptionID string, immediate bool) (*Subscription, error)
	ResumeSubscription(ctx context.Context, subscriptionID string) (*Subscription, error)
	GetSubscription(ctx context.Context, subscriptionID string) (*Subscription, error)
	ListCustomerSubscriptions(ctx context.Context, customerID string) ([]Subscription, error)
	ListPrices(ctx context.Context) ([]Price, error)
}

type CustomerParams struct {
	AccountID      string
	Email          string
	Name           string
	IdempotencyKey string
}

type SubscriptionParams struct {
	CustomerID     string
	PriceID        string
	IdempotencyKey string
}

// Subscription is the processor's view of a subscription. Status carries the
// processor's own vocabulary and is mapped by the ledger.
type Subscription struct {
	ID                 string
	CustomerID         string
	PriceID            string
	Status             string
	CurrentPeriodStart *time.Time
	CurrentPeriodEnd   *time.Time
	CanceledAt         *time.Time
	TrialEnd           *time.Time
	CancelAtPeriodEnd  bool
	CreatedAt          time.Time
	// ClientSecret is set on creation when the first payment still needs
	// confirmation by the client.
	ClientSecret string
}

// Price is a recurring price joined with its product.
type Price struct {
	ID                 string
	ProductID          string
	ProductName        string
	ProductDescription string
	UnitAmount         decimal.Decimal
	Currency           string
	Interval           string
	Active             bool
	Features           []string
}
