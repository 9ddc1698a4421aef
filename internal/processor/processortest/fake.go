// Package processortest provides an in-memory processor for tests.
package processortest

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/smallbiznis/subkit/internal/processor"
)

// Fake records calls and keeps customers and subscriptions in memory.
// Idempotency keys replay the first result, like the real processor.
type Fake struct {
	mu sync.Mutex

	Now func() time.Time

	// CreateStatus is the status assigned to new subscriptions.
	CreateStatus string
	// DeclineNext makes the next CreateSubscription fail with a card decline.
	DeclineNext bool
	// FailNext makes the next call of any kind fail with ErrUnavailable.
	FailNext bool

	Prices []processor.Price

	seq           int
	customers     map[string]processor.CustomerParams
	defaultPM     map[string]string
	subscriptions map[string]*processor.Subscription
	idempotent    map[string]string
	calls         map[string]int
}

func NewFake() *Fake {
	return &Fake{
		Now:           func() time.Time { return time.Now().UTC() },
		CreateStatus:  "active",
		customers:     map[string]processor.CustomerParams{},
		defaultPM:     map[string]string{},
		subscriptions: map[string]*processor.Subscription{},
		idempotent:    map[string]string{},
		calls:         map[string]int{},
	}
}

var _ processor.Client = (*Fake)(nil)

// Calls returns how many times op was invoked.
func (f *Fake) Calls(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

// Put stores or replaces a subscription as if it existed at the processor.
func (f *Fake) Put(sub processor.Subscription) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := sub
	f.subscriptions[sub.ID] = &cp
}

func (f *Fake) Subscription(id string) (processor.Subscription, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	sub, ok := f.subscriptions[id]
	if !ok {
		return processor.Subscription{}, false
	}
	return *sub, true
}

func (f *Fake) begin(op string) error {
	f.calls[op]++
	if f.FailNext {
		f.FailNext = false
		return &processor.Error{Kind: processor.ErrUnavailable, Message: "injected failure"}
	}
	return nil
}

func (f *Fake) nextID(prefix string) string {
	f.seq++
	return fmt.Sprintf("%s_%d", prefix, f.seq)
}

func (f *Fake) CreateCustomer(ctx context.Context, params processor.CustomerParams) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("create_customer"); err != nil {
		return "", err
	}
	if id, ok := f.idempotent[params.IdempotencyKey]; ok && params.IdempotencyKey != "" {
		return id, nil
	}
	id := f.nextID("cus")
	f.customers[id] = params
	if params.IdempotencyKey != "" {
		f.idempotent[params.IdempotencyKey] = id
	}
	return id, nil
}

func (f *Fake) AttachPaymentMethod(ctx context.Context, customerID, paymentMethodID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("attach_payment_method"); err != nil {
		return err
	}
	if _, ok := f.customers[customerID]; !ok {
		return &processor.Error{Kind: processor.ErrRejected, Code: "resource_missing", Message: "no such customer"}
	}
	return nil
}

func (f *Fake) SetDefaultPaymentMethod(ctx context.Context, customerID, paymentMethodID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("set_default_payment_method"); err != nil {
		return err
	}
	f.defaultPM[customerID] = paymentMethodID
	return nil
}

func (f *Fake) CreateSubscription(ctx context.Context, params processor.SubscriptionParams) (*processor.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("create_subscription"); err != nil {
		return nil, err
	}
	if f.DeclineNext {
		f.DeclineNext = false
		return nil, &processor.Error{Kind: processor.ErrCardDeclined, Code: "card_declined", Message: "Your card was declined."}
	}
	if id, ok := f.idempotent[params.IdempotencyKey]; ok && params.IdempotencyKey != "" {
		cp := *f.subscriptions[id]
		return &cp, nil
	}

	now := f.Now()
	end := now.AddDate(0, 1, 0)
	sub := &processor.Subscription{
		ID:                 f.nextID("sub"),
		CustomerID:         params.CustomerID,
		PriceID:            params.PriceID,
		Status:             f.CreateStatus,
		CurrentPeriodStart: &now,
		CurrentPeriodEnd:   &end,
		CreatedAt:          now,
	}
	if sub.Status == "incomplete" {
		sub.ClientSecret = sub.ID + "_secret"
	}
	f.subscriptions[sub.ID] = sub
	if params.IdempotencyKey != "" {
		f.idempotent[params.IdempotencyKey] = sub.ID
	}
	cp := *sub
	return &cp, nil
}

func (f *Fake) CancelSubscription(ctx context.Context, subscriptionID string, immediate bool) (*processor.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("cancel_subscription"); err != nil {
		return nil, err
	}
	sub, ok := f.subscriptions[subscriptionID]
	if !ok {
		return nil, &processor.Error{Kind: processor.ErrRejected, Code: "resource_missing", Message: "no such subscription"}
	}
	if immediate {
		now := f.Now()
		sub.Status = "canceled"
		sub.CanceledAt = &now
	} else {
		sub.CancelAtPeriodEnd = true
	}
	cp := *sub
	return &cp, nil
}

func (f *Fake) ResumeSubscription(ctx context.Context, subscriptionID string) (*processor.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("resume_subscription"); err != nil {
		return nil, err
	}
	sub, ok := f.subscriptions[subscriptionID]
	if !ok {
		return nil, &processor.Error{Kind: processor.ErrRejected, Code: "resource_missing", Message: "no such subscription"}
	}
	sub.CancelAtPeriodEnd = false
	cp := *sub
	return &cp, nil
}

func (f *Fake) GetSubscription(ctx context.Context, subscriptionID string) (*processor.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("get_subscription"); err != nil {
		return nil, err
	}
	sub, ok := f.subscriptions[subscriptionID]
	if !ok {
		return nil, &processor.Error{Kind: processor.ErrRejected, Code: "resource_missing", Message: "no such subscription"}
	}
	cp := *sub
	return &cp, nil
}

// ListCustomerSubscriptions returns newest first, like the processor.
func (f *Fake) ListCustomerSubscriptions(ctx context.Context, customerID string) ([]processor.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("list_subscriptions"); err != nil {
		return nil, err
	}
	out := []processor.Subscription{}
	for _, sub := range f.subscriptions {
		if sub.CustomerID == customerID {
			out = append(out, *sub)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (f *Fake) ListPrices(ctx context.Context) ([]processor.Price, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("list_prices"); err != nil {
		return nil, err
	}
	out := make([]processor.Price, len(f.Prices))
	copy(out, f.Prices)
	return out, nil
}
