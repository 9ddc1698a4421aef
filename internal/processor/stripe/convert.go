package stripe

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/subkit/internal/processor"
	stripeapi "github.com/stripe/stripe-go/v82"
)

const featuresMetadataKey = "features"

// mapError folds Stripe errors into the processor sentinels. Card errors are
// declines; other 4xx are rejections; everything else is treated as the
// processor being unavailable.
func mapError(err error) error {
	if err == nil {
		return nil
	}

	var serr *stripeapi.Error
	if !errors.As(err, &serr) {
		return &processor.Error{Kind: processor.ErrUnavailable, Message: err.Error(), Err: err}
	}

	out := &processor.Error{Code: string(serr.Code), Message: serr.Msg, Err: err}
	switch {
	case serr.Type == stripeapi.ErrorTypeCard:
		out.Kind = processor.ErrCardDeclined
		if serr.DeclineCode != "" {
			out.Code = string(serr.DeclineCode)
		}
	case serr.HTTPStatusCode >= http.StatusBadRequest && serr.HTTPStatusCode < http.StatusInternalServerError &&
		serr.HTTPStatusCode != http.StatusTooManyRequests:
		out.Kind = processor.ErrRejected
	default:
		out.Kind = processor.ErrUnavailable
	}
	return out
}

func toSubscription(s *stripeapi.Subscription) *processor.Subscription {
	if s == nil {
		return nil
	}
	out := &processor.Subscription{
		ID:                s.ID,
		Status:            string(s.Status),
		CancelAtPeriodEnd: s.CancelAtPeriodEnd,
		CanceledAt:        unixPtr(s.CanceledAt),
		TrialEnd:          unixPtr(s.TrialEnd),
		CreatedAt:         time.Unix(s.Created, 0).UTC(),
	}
	if s.Customer != nil {
		out.CustomerID = s.Customer.ID
	}
	if s.Items != nil && len(s.Items.Data) > 0 {
		item := s.Items.Data[0]
		out.CurrentPeriodStart = unixPtr(item.CurrentPeriodStart)
		out.CurrentPeriodEnd = unixPtr(item.CurrentPeriodEnd)
		if item.Price != nil {
			out.PriceID = item.Price.ID
		}
	}
	if inv := s.LatestInvoice; inv != nil && inv.ConfirmationSecret != nil {
		out.ClientSecret = inv.ConfirmationSecret.ClientSecret
	}
	return out
}

func toPrice(p *stripeapi.Price) (processor.Price, bool) {
	if p == nil || p.Recurring == nil {
		return processor.Price{}, false
	}
	out := processor.Price{
		ID:         p.ID,
		UnitAmount: minorToDecimal(p.UnitAmount),
		Currency:   strings.ToLower(string(p.Currency)),
		Interval:   string(p.Recurring.Interval),
		Active:     p.Active,
	}
	if prod := p.Product; prod != nil {
		out.ProductID = prod.ID
		out.ProductName = prod.Name
		out.ProductDescription = prod.Description
		out.Features = splitFeatures(prod.Metadata[featuresMetadataKey])
		if !prod.Active {
			out.Active = false
		}
	}
	if out.ProductName == "" {
		out.ProductName = p.Nickname
	}
	return out, true
}

// splitFeatures reads a comma or newline separated feature list.
func splitFeatures(raw string) []string {
	fields := strings.FieldsFunc(raw, func(r rune) bool { return r == ',' || r == '\n' })
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if f = strings.TrimSpace(f); f != "" {
			out = append(out, f)
		}
	}
	return out
}

func minorToDecimal(amount int64) decimal.Decimal {
	return decimal.New(amount, -2)
}

func unixPtr(sec int64) *time.Time {
	if sec <= 0 {
		return nil
	}
	t := time.Unix(sec, 0).UTC()
	return &t
}
