// Package domain describes the operations that keep local subscription state
// in step with the payment processor.
package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/subkit/internal/processor"
	subscriptiondomain "github.com/smallbiznis/subkit/internal/subscription/domain"
)

type Service interface {
	// Status returns the account's subscription, materializing an inactive
	// placeholder on first access.
	Status(ctx context.Context, accountID snowflake.ID) (*subscriptiondomain.Subscription, error)
	CreateSubscription(ctx context.Context, req CreateRequest) (*CreateResult, error)
	CancelSubscription(ctx context.Context, req CancelRequest) (*subscriptiondomain.Subscription, error)
	ReactivateSubscription(ctx context.Context, accountID snowflake.ID) (*subscriptiondomain.Subscription, error)

	// Reconcile applies one verified processor event. Applying the same
	// event twice, or events out of order, converges on the same state.
	Reconcile(ctx context.Context, event processor.Event) error
	// ReconcileOrphans adopts processor subscriptions the ledger missed.
	ReconcileOrphans(ctx context.Context, limit int) (SweepResult, error)
}

type CreateRequest struct {
	AccountID       snowflake.ID
	PlanID          snowflake.ID
	PaymentMethodID string
}

type CreateResult struct {
	Subscription *subscriptiondomain.Subscription `json:"subscription"`
	// ClientSecret is set while the first payment awaits client-side
	// confirmation.
	ClientSecret string `json:"client_secret,omitempty"`
}

type CancelRequest struct {
	AccountID snowflake.ID
	Immediate bool
}

type SweepResult struct {
	Visited int `json:"visited"`
	Adopted int `json:"adopted"`
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`
}
