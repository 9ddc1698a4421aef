package stripe

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/smallbiznis/subkit/internal/config"
	obsmetrics "github.com/smallbiznis/subkit/internal/observability/metrics"
	"github.com/smallbiznis/subkit/internal/processor"
	stripeapi "github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"
	"go.uber.org/zap"
)

const (
	paymentBehaviorDefaultIncomplete = "default_incomplete"
	metadataAccountID                = "account_id"
)

// Client calls the Stripe API. Every call carries the caller's context and
// is timed into the processor latency histogram.
type Client struct {
	api     *client.API
	log     *zap.Logger
	metrics *obsmetrics.Metrics
}

var _ processor.Client = (*Client)(nil)

func NewClient(cfg config.ProcessorConfig, log *zap.Logger, metrics *obsmetrics.Metrics) *Client {
	log = log.Named("processor.stripe")
	if strings.TrimSpace(cfg.SecretKey) == "" {
		log.Warn("STRIPE_SECRET_KEY is empty; processor calls will fail")
	}

	httpClient := &http.Client{Timeout: cfg.Timeout}
	backendCfg := &stripeapi.BackendConfig{
		HTTPClient:        httpClient,
		MaxNetworkRetries: stripeapi.Int64(cfg.MaxNetworkRetries),
		LeveledLogger:     log.Sugar(),
	}

	api := &client.API{}
	api.Init(cfg.SecretKey, &stripeapi.Backends{
		API:     stripeapi.GetBackendWithConfig(stripeapi.APIBackend, backendCfg),
		Connect: stripeapi.GetBackendWithConfig(stripeapi.ConnectBackend, backendCfg),
		Uploads: stripeapi.GetBackendWithConfig(stripeapi.UploadsBackend, backendCfg),
	})

	return &Client{api: api, log: log, metrics: metrics}
}

func (c *Client) CreateCustomer(ctx context.Context, params processor.CustomerParams) (customerID string, err error) {
	defer c.observe("create_customer", time.Now(), &err)

	p := &stripeapi.CustomerParams{
		Email: stripeapi.String(params.Email),
	}
	if name := strings.TrimSpace(params.Name); name != "" {
		p.Name = stripeapi.String(name)
	}
	p.Context = ctx
	p.AddMetadata(metadataAccountID, params.AccountID)
	if params.IdempotencyKey != "" {
		p.SetIdempotencyKey(params.IdempotencyKey)
	}

	cus, err := c.api.Customers.New(p)
	if err != nil {
		return "", mapError(err)
	}
	return cus.ID, nil
}

func (c *Client) AttachPaymentMethod(ctx context.Context, customerID, paymentMethodID string) (err error) {
	defer c.observe("attach_payment_method", time.Now(), &err)

	p := &stripeapi.PaymentMethodAttachParams{
		Customer: stripeapi.String(customerID),
	}
	p.Context = ctx
	if _, err := c.api.PaymentMethods.Attach(paymentMethodID, p); err != nil {
		return mapError(err)
	}
	return nil
}

func (c *Client) SetDefaultPaymentMethod(ctx context.Context, customerID, paymentMethodID string) (err error) {
	defer c.observe("set_default_payment_method", time.Now(), &err)

	p := &stripeapi.CustomerParams{
		InvoiceSettings: &stripeapi.CustomerInvoiceSettingsParams{
			DefaultPaymentMethod: stripeapi.String(paymentMethodID),
		},
	}
	p.Context = ctx
	if _, err := c.api.Customers.Update(customerID, p); err != nil {
		return mapError(err)
	}
	return nil
}

func (c *Client) CreateSubscription(ctx context.Context, params processor.SubscriptionParams) (sub *processor.Subscription, err error) {
	defer c.observe("create_subscription", time.Now(), &err)

	p := &stripeapi.SubscriptionParams{
		Customer: stripeapi.String(params.CustomerID),
		Items: []*stripeapi.SubscriptionItemsParams{
			{Price: stripeapi.String(params.PriceID)},
		},
		PaymentBehavior: stripeapi.String(paymentBehaviorDefaultIncomplete),
		PaymentSettings: &stripeapi.SubscriptionPaymentSettingsParams{
			SaveDefaultPaymentMethod: stripeapi.String("on_subscription"),
		},
	}
	p.Context = ctx
	p.AddExpand("latest_invoice.confirmation_secret")
	if params.IdempotencyKey != "" {
		p.SetIdempotencyKey(params.IdempotencyKey)
	}

	out, err := c.api.Subscriptions.New(p)
	if err != nil {
		return nil, mapError(err)
	}
	return toSubscription(out), nil
}

func (c *Client) CancelSubscription(ctx context.Context, subscriptionID string, immediate bool) (sub *processor.Subscription, err error) {
	defer c.observe("cancel_subscription", time.Now(), &err)

	var out *stripeapi.Subscription
	if immediate {
		p := &stripeapi.SubscriptionCancelParams{}
		p.Context = ctx
		out, err = c.api.Subscriptions.Cancel(subscriptionID, p)
	} else {
		p := &stripeapi.SubscriptionParams{CancelAtPeriodEnd: stripeapi.Bool(true)}
		p.Context = ctx
		out, err = c.api.Subscriptions.Update(subscriptionID, p)
	}
	if err != nil {
		return nil, mapError(err)
	}
	return toSubscription(out), nil
}

func (c *Client) ResumeSubscription(ctx context.Context, subscriptionID string) (sub *processor.Subscription, err error) {
	defer c.observe("resume_subscription", time.Now(), &err)

	p := &stripeapi.SubscriptionParams{CancelAtPeriodEnd: stripeapi.Bool(false)}
	p.Context = ctx
	out, err := c.api.Subscriptions.Update(subscriptionID, p)
	if err != nil {
		return nil, mapError(err)
	}
	return toSubscription(out), nil
}

func (c *Client) GetSubscription(ctx context.Context, subscriptionID string) (sub *processor.Subscription, err error) {
	defer c.observe("get_subscription", time.Now(), &err)

	p := &stripeapi.SubscriptionParams{}
	p.Context = ctx
	out, err := c.api.Subscriptions.Get(subscriptionID, p)
	if err != nil {
		return nil, mapError(err)
	}
	return toSubscription(out), nil
}

func (c *Client) ListCustomerSubscriptions(ctx context.Context, customerID string) (subs []processor.Subscription, err error) {
	defer c.observe("list_subscriptions", time.Now(), &err)

	p := &stripeapi.SubscriptionListParams{
		Customer: stripeapi.String(customerID),
		Status:   stripeapi.String("all"),
	}
	p.Context = ctx

	it := c.api.Subscriptions.List(p)
	for it.Next() {
		if s := toSubscription(it.Subscription()); s != nil {
			subs = append(subs, *s)
		}
	}
	if err := it.Err(); err != nil {
		return nil, mapError(err)
	}
	return subs, nil
}

func (c *Client) ListPrices(ctx context.Context) (prices []processor.Price, err error) {
	defer c.observe("list_prices", time.Now(), &err)

	p := &stripeapi.PriceListParams{
		Active: stripeapi.Bool(true),
	}
	p.Context = ctx
	p.AddExpand("data.product")

	it := c.api.Prices.List(p)
	for it.Next() {
		price, ok := toPrice(it.Price())
		if !ok {
			continue
		}
		prices = append(prices, price)
	}
	if err := it.Err(); err != nil {
		return nil, mapError(err)
	}
	return prices, nil
}

func (c *Client) observe(op string, started time.Time, errp *error) {
	var err error
	if errp != nil {
		err = *errp
	}
	c.metrics.ObserveProcessorCall(op, started, err)
	if err != nil && !errors.Is(err, processor.ErrCardDeclined) {
		c.log.Warn("processor call failed", zap.String("operation", op), zap.Error(err))
	}
}
