// Package payments wraps the Stripe API surface the order flow needs. The
// order lifecycle only ever sees payment status strings and intent IDs;
// everything Stripe-specific stays behind this package.
package payments

import (
	"context"
	"math"

	"github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/customer"
	"github.com/stripe/stripe-go/v81/paymentintent"
	"github.com/stripe/stripe-go/v81/paymentmethod"
	"github.com/stripe/stripe-go/v81/webhook"

	"github.com/goliatone/go-pickup-market/pkg/apperr"
)

// Provider is the payment collaborator consumed by the HTTP layer. The order
// core never imports this package directly.
type Provider interface {
	CreatePaymentIntent(ctx context.Context, in IntentInput) (*Intent, error)
	RetrievePaymentIntent(ctx context.Context, id string) (*Intent, error)
	CreateCustomer(ctx context.Context, name, email string) (string, error)
	AttachPaymentMethod(ctx context.Context, paymentMethodID, customerID string) error
	VerifyWebhook(payload []byte, sigHeader string) (stripe.Event, error)
}

// IntentInput describes one payment to collect.
type IntentInput struct {
	OrderID          string
	CustomerID       string
	StripeCustomerID string
	Total            float64
	Currency         string
}

// Intent is the provider-neutral view of a payment intent.
type Intent struct {
	ID           string `json:"id"`
	ClientSecret string `json:"client_secret"`
	Status       string `json:"status"`
	Amount       int64  `json:"amount"`
}

// StripeProvider implements Provider against the live Stripe API.
type StripeProvider struct {
	webhookSecret string
}

// NewStripeProvider sets the package-level Stripe key. The stripe-go client
// is process-global, matching how the SDK is built.
func NewStripeProvider(apiKey, webhookSecret string) *StripeProvider {
	stripe.Key = apiKey
	return &StripeProvider{webhookSecret: webhookSecret}
}

// Cents converts a decimal amount to Stripe's minor units.
func Cents(amount float64) int64 {
	return int64(math.Round(amount * 100))
}

func (p *StripeProvider) CreatePaymentIntent(ctx context.Context, in IntentInput) (*Intent, error) {
	currency := in.Currency
	if currency == "" {
		currency = string(stripe.CurrencyEUR)
	}
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(Cents(in.Total)),
		Currency: stripe.String(currency),
		Metadata: map[string]string{
			"order_id":    in.OrderID,
			"customer_id": in.CustomerID,
		},
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	if in.StripeCustomerID != "" {
		params.Customer = stripe.String(in.StripeCustomerID)
	}
	params.Context = ctx

	pi, err := paymentintent.New(params)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.PaymentFailed, "payment_intent_failed", "creating payment intent")
	}
	return intentFrom(pi), nil
}

func (p *StripeProvider) RetrievePaymentIntent(ctx context.Context, id string) (*Intent, error) {
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx
	pi, err := paymentintent.Get(id, params)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.PaymentFailed, "payment_intent_lookup_failed", "retrieving payment intent")
	}
	return intentFrom(pi), nil
}

func (p *StripeProvider) CreateCustomer(ctx context.Context, name, email string) (string, error) {
	params := &stripe.CustomerParams{
		Name:  stripe.String(name),
		Email: stripe.String(email),
	}
	params.Context = ctx
	c, err := customer.New(params)
	if err != nil {
		return "", apperr.Wrap(err, apperr.PaymentFailed, "customer_create_failed", "creating stripe customer")
	}
	return c.ID, nil
}

func (p *StripeProvider) AttachPaymentMethod(ctx context.Context, paymentMethodID, customerID string) error {
	params := &stripe.PaymentMethodAttachParams{
		Customer: stripe.String(customerID),
	}
	params.Context = ctx
	if _, err := paymentmethod.Attach(paymentMethodID, params); err != nil {
		return apperr.Wrap(err, apperr.PaymentFailed, "payment_method_attach_failed", "attaching payment method")
	}
	return nil
}

// VerifyWebhook checks the Stripe signature and parses the event. An invalid
// signature is InvalidInput, never an internal error.
func (p *StripeProvider) VerifyWebhook(payload []byte, sigHeader string) (stripe.Event, error) {
	event, err := webhook.ConstructEvent(payload, sigHeader, p.webhookSecret)
	if err != nil {
		return stripe.Event{}, apperr.Wrap(err, apperr.InvalidInput, "invalid_webhook_signature", "verifying webhook signature")
	}
	return event, nil
}

func intentFrom(pi *stripe.PaymentIntent) *Intent {
	return &Intent{
		ID:           pi.ID,
		ClientSecret: pi.ClientSecret,
		Status:       string(pi.Status),
		Amount:       pi.Amount,
	}
}
