package processor

import (
	"time"

	"github.com/shopspring/decimal"
)

// EventKind is the closed set of webhook events billing reacts to.
type EventKind int

const (
	EventIgnored EventKind = iota
	EventSubscriptionCreated
	EventSubscriptionUpdated
	EventSubscriptionDeleted
	EventInvoicePaymentSucceeded
	EventInvoicePaymentFailed
	EventTrialWillEnd
)

func (k EventKind) String() string {
	switch k {
	case EventSubscriptionCreated:
		return "subscription_created"
	case EventSubscriptionUpdated:
		return "subscription_updated"
	case EventSubscriptionDeleted:
		return "subscription_deleted"
	case EventInvoicePaymentSucceeded:
		return "invoice_payment_succeeded"
	case EventInvoicePaymentFailed:
		return "invoice_payment_failed"
	case EventTrialWillEnd:
		return "trial_will_end"
	default:
		return "ignored"
	}
}

// Event is a verified webhook notification. Exactly one of Subscription or
// Invoice is set, depending on Kind; both are nil for EventIgnored.
type Event struct {
	ID        string
	Type      string
	Kind      EventKind
	CreatedAt time.Time

	Subscription *Subscription
	Invoice      *Invoice
}

type Invoice struct {
	ID              string
	CustomerID      string
	SubscriptionID  string
	PaymentIntentID string
	AmountPaid      decimal.Decimal
	AmountDue       decimal.Decimal
	Currency        string
}

// EventParser authenticates and decodes a raw webhook delivery.
type EventParser interface {
	ParseEvent(payload []byte, signature string) (Event, error)
}
