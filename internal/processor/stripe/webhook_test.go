package stripe

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/subkit/internal/processor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "whsec_test"

func signedHeader(secret string, payload []byte, ts int64) string {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write([]byte(fmt.Sprintf("%d.%s", ts, payload)))
	return fmt.Sprintf("t=%d,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))
}

func mustJSON(t *testing.T, v any) []byte {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return b
}

func TestParseEventRejectsBadSignature(t *testing.T) {
	parser := NewEventParser(testSecret)
	payload := []byte(`{"id":"evt_1","type":"customer.subscription.updated","created":1,"data":{"object":{"id":"sub_1"}}}`)

	_, err := parser.ParseEvent(payload, signedHeader("wrong", payload, time.Now().Unix()))
	assert.ErrorIs(t, err, processor.ErrInvalidSignature)

	_, err = parser.ParseEvent(payload, "")
	assert.ErrorIs(t, err, processor.ErrInvalidSignature)

	stale := time.Now().Add(-time.Hour).Unix()
	_, err = parser.ParseEvent(payload, signedHeader(testSecret, payload, stale))
	assert.ErrorIs(t, err, processor.ErrInvalidSignature)
}

func TestParseEventWithoutSecret(t *testing.T) {
	_, err := NewEventParser("").ParseEvent([]byte(`{}`), "t=1,v1=abc")
	assert.ErrorIs(t, err, processor.ErrNotConfigured)
}

func TestParseEventMalformed(t *testing.T) {
	parser := NewEventParser(testSecret)
	payload := []byte(`{"id":"evt_1","type":"customer.subscription.updated","data":{"object":"nope"}}`)

	_, err := parser.ParseEvent(payload, signedHeader(testSecret, payload, time.Now().Unix()))
	assert.ErrorIs(t, err, processor.ErrMalformedEvent)
}

func TestParseSubscriptionEvent(t *testing.T) {
	parser := NewEventParser(testSecret)
	created := time.Now().Unix()
	payload := mustJSON(t, map[string]any{
		"id":      "evt_sub",
		"type":    "customer.subscription.updated",
		"created": created,
		"data": map[string]any{
			"object": map[string]any{
				"id":                   "sub_1",
				"customer":             "cus_1",
				"status":               "active",
				"cancel_at_period_end": true,
				"items": map[string]any{
					"data": []any{map[string]any{
						"current_period_start": 1700000000,
						"current_period_end":   1702592000,
						"price":                map[string]any{"id": "price_basic"},
					}},
				},
			},
		},
	})

	event, err := parser.ParseEvent(payload, signedHeader(testSecret, payload, time.Now().Unix()))
	require.NoError(t, err)
	assert.Equal(t, processor.EventSubscriptionUpdated, event.Kind)
	assert.Equal(t, time.Unix(created, 0).UTC(), event.CreatedAt)
	require.NotNil(t, event.Subscription)
	assert.Nil(t, event.Invoice)

	sub := event.Subscription
	assert.Equal(t, "sub_1", sub.ID)
	assert.Equal(t, "cus_1", sub.CustomerID)
	assert.Equal(t, "price_basic", sub.PriceID)
	assert.Equal(t, "active", sub.Status)
	assert.True(t, sub.CancelAtPeriodEnd)
	require.NotNil(t, sub.CurrentPeriodEnd)
	assert.Equal(t, int64(1702592000), sub.CurrentPeriodEnd.Unix())
}

func TestParseInvoiceEvent(t *testing.T) {
	parser := NewEventParser(testSecret)
	payload := mustJSON(t, map[string]any{
		"id":      "evt_inv",
		"type":    "invoice.payment_failed",
		"created": time.Now().Unix(),
		"data": map[string]any{
			"object": map[string]any{
				"id":          "in_1",
				"customer":    "cus_1",
				"amount_paid": 0,
				"amount_due":  1999,
				"currency":    "USD",
				"parent": map[string]any{
					"subscription_details": map[string]any{"subscription": "sub_1"},
				},
			},
		},
	})

	event, err := parser.ParseEvent(payload, signedHeader(testSecret, payload, time.Now().Unix()))
	require.NoError(t, err)
	assert.Equal(t, processor.EventInvoicePaymentFailed, event.Kind)
	require.NotNil(t, event.Invoice)
	assert.Equal(t, "sub_1", event.Invoice.SubscriptionID)
	assert.True(t, decimal.RequireFromString("19.99").Equal(event.Invoice.AmountDue))
	assert.Equal(t, "usd", event.Invoice.Currency)
}

func TestParseUnknownEventIsIgnored(t *testing.T) {
	parser := NewEventParser(testSecret)
	payload := []byte(`{"id":"evt_x","type":"charge.refunded","created":1,"data":{"object":{}}}`)

	event, err := parser.ParseEvent(payload, signedHeader(testSecret, payload, time.Now().Unix()))
	require.NoError(t, err)
	assert.Equal(t, processor.EventIgnored, event.Kind)
	assert.Equal(t, "evt_x", event.ID)
}

func TestExpandableAcceptsObjectOrID(t *testing.T) {
	var v struct {
		A expandable `json:"a"`
		B expandable `json:"b"`
		C expandable `json:"c"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"a":"cus_1","b":{"id":"cus_2"},"c":null}`), &v))
	assert.Equal(t, "cus_1", v.A.ID)
	assert.Equal(t, "cus_2", v.B.ID)
	assert.Empty(t, v.C.ID)
}

func TestParseInvoicePaidIsIgnored(t *testing.T) {
	parser := NewEventParser(testSecret)
	payload := mustJSON(t, map[string]any{
		"id":      "evt_paid",
		"type":    "invoice.paid",
		"created": time.Now().Unix(),
		"data": map[string]any{
			"object": map[string]any{
				"id":          "in_1",
				"customer":    "cus_1",
				"amount_paid": 999,
				"currency":    "usd",
			},
		},
	})

	event, err := parser.ParseEvent(payload, signedHeader(testSecret, payload, time.Now().Unix()))
	require.NoError(t, err)
	assert.Equal(t, processor.EventIgnored, event.Kind)
	assert.Nil(t, event.Invoice)
}
