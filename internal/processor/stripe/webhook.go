package stripe

import (
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/smallbiznis/subkit/internal/processor"
	"github.com/stripe/stripe-go/v82/webhook"
)

// EventParser verifies Stripe-Signature headers and decodes the events the
// ledger understands. Unknown types decode to processor.EventIgnored.
type EventParser struct {
	secret    string
	tolerance time.Duration
}

var _ processor.EventParser = (*EventParser)(nil)

func NewEventParser(secret string) *EventParser {
	return &EventParser{
		secret:    strings.TrimSpace(secret),
		tolerance: webhook.DefaultTolerance,
	}
}

func (p *EventParser) ParseEvent(payload []byte, signature string) (processor.Event, error) {
	if p.secret == "" {
		return processor.Event{}, processor.ErrNotConfigured
	}
	if strings.TrimSpace(signature) == "" {
		return processor.Event{}, processor.ErrInvalidSignature
	}

	if err := webhook.ValidatePayloadWithTolerance(payload, signature, p.secret, p.tolerance); err != nil {
		return processor.Event{}, &processor.Error{Kind: processor.ErrInvalidSignature, Message: err.Error(), Err: err}
	}

	var raw stripeEvent
	if err := json.Unmarshal(payload, &raw); err != nil {
		return processor.Event{}, malformed(err)
	}
	if strings.TrimSpace(raw.ID) == "" || strings.TrimSpace(raw.Type) == "" {
		return processor.Event{}, malformed(errors.New("event id or type missing"))
	}

	event := processor.Event{
		ID:        raw.ID,
		Type:      raw.Type,
		CreatedAt: time.Unix(raw.Created, 0).UTC(),
	}

	switch raw.Type {
	case "customer.subscription.created":
		event.Kind = processor.EventSubscriptionCreated
	case "customer.subscription.updated":
		event.Kind = processor.EventSubscriptionUpdated
	case "customer.subscription.deleted":
		event.Kind = processor.EventSubscriptionDeleted
	case "customer.subscription.trial_will_end":
		event.Kind = processor.EventTrialWillEnd
	// invoice.paid accompanies every invoice.payment_succeeded for the same
	// payment, so only the latter is recorded.
	case "invoice.payment_succeeded":
		event.Kind = processor.EventInvoicePaymentSucceeded
	case "invoice.payment_failed":
		event.Kind = processor.EventInvoicePaymentFailed
	default:
		event.Kind = processor.EventIgnored
		return event, nil
	}

	switch event.Kind {
	case processor.EventInvoicePaymentSucceeded, processor.EventInvoicePaymentFailed:
		var inv stripeInvoice
		if err := json.Unmarshal(raw.Data.Object, &inv); err != nil {
			return processor.Event{}, malformed(err)
		}
		if inv.ID == "" || inv.Customer.ID == "" {
			return processor.Event{}, malformed(errors.New("invoice id or customer missing"))
		}
		event.Invoice = inv.toInvoice()
	default:
		var sub stripeSubscription
		if err := json.Unmarshal(raw.Data.Object, &sub); err != nil {
			return processor.Event{}, malformed(err)
		}
		if sub.ID == "" {
			return processor.Event{}, malformed(errors.New("subscription id missing"))
		}
		event.Subscription = sub.toSubscription()
	}
	return event, nil
}

func malformed(err error) error {
	return &processor.Error{Kind: processor.ErrMalformedEvent, Message: err.Error(), Err: err}
}

type stripeEvent struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Created int64  `json:"created"`
	Data    struct {
		Object json.RawMessage `json:"object"`
	} `json:"data"`
}

// expandable decodes either a bare id string or an expanded object with an id.
type expandable struct {
	ID string
}

func (e *expandable) UnmarshalJSON(b []byte) error {
	if len(b) == 0 || string(b) == "null" {
		return nil
	}
	if b[0] == '"' {
		return json.Unmarshal(b, &e.ID)
	}
	var obj struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(b, &obj); err != nil {
		return err
	}
	e.ID = obj.ID
	return nil
}

type stripeSubscription struct {
	ID                 string     `json:"id"`
	Customer           expandable `json:"customer"`
	Status             string     `json:"status"`
	CancelAtPeriodEnd  bool       `json:"cancel_at_period_end"`
	CanceledAt         int64      `json:"canceled_at"`
	TrialEnd           int64      `json:"trial_end"`
	Created            int64      `json:"created"`
	CurrentPeriodStart int64      `json:"current_period_start"`
	CurrentPeriodEnd   int64      `json:"current_period_end"`
	Items              struct {
		Data []struct {
			CurrentPeriodStart int64      `json:"current_period_start"`
			CurrentPeriodEnd   int64      `json:"current_period_end"`
			Price              expandable `json:"price"`
		} `json:"data"`
	} `json:"items"`
}

// Period bounds moved from the subscription onto its items in newer API
// versions; both placements are accepted.
func (s stripeSubscription) toSubscription() *processor.Subscription {
	out := &processor.Subscription{
		ID:                 s.ID,
		CustomerID:         s.Customer.ID,
		Status:             s.Status,
		CancelAtPeriodEnd:  s.CancelAtPeriodEnd,
		CanceledAt:         unixPtr(s.CanceledAt),
		TrialEnd:           unixPtr(s.TrialEnd),
		CurrentPeriodStart: unixPtr(s.CurrentPeriodStart),
		CurrentPeriodEnd:   unixPtr(s.CurrentPeriodEnd),
	}
	if s.Created > 0 {
		out.CreatedAt = time.Unix(s.Created, 0).UTC()
	}
	if len(s.Items.Data) > 0 {
		item := s.Items.Data[0]
		out.PriceID = item.Price.ID
		if out.CurrentPeriodStart == nil {
			out.CurrentPeriodStart = unixPtr(item.CurrentPeriodStart)
		}
		if out.CurrentPeriodEnd == nil {
			out.CurrentPeriodEnd = unixPtr(item.CurrentPeriodEnd)
		}
	}
	return out
}

type stripeInvoice struct {
	ID            string     `json:"id"`
	Customer      expandable `json:"customer"`
	Subscription  expandable `json:"subscription"`
	PaymentIntent expandable `json:"payment_intent"`
	AmountPaid    int64      `json:"amount_paid"`
	AmountDue     int64      `json:"amount_due"`
	Currency      string     `json:"currency"`
	Parent        struct {
		SubscriptionDetails struct {
			Subscription expandable `json:"subscription"`
		} `json:"subscription_details"`
	} `json:"parent"`
}

func (i stripeInvoice) toInvoice() *processor.Invoice {
	subscriptionID := i.Subscription.ID
	if subscriptionID == "" {
		subscriptionID = i.Parent.SubscriptionDetails.Subscription.ID
	}
	return &processor.Invoice{
		ID:              i.ID,
		CustomerID:      i.Customer.ID,
		SubscriptionID:  subscriptionID,
		PaymentIntentID: i.PaymentIntent.ID,
		AmountPaid:      minorToDecimal(i.AmountPaid),
		AmountDue:       minorToDecimal(i.AmountDue),
		Currency:        strings.ToLower(i.Currency),
	}
}
