package billing

import (
	"context"
	"errors"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
)

var errMissingSecretKey = errors.New("billing: payment provider secret key is required")

// CheckoutSessionRequest describes a subscription checkout for one customer.
type CheckoutSessionRequest struct {
	CustomerID string
	PriceID    string
	SuccessURL string
	CancelURL  string
	Metadata   map[string]string
}

// CheckoutSession is the provider response for a created checkout.
type CheckoutSession struct {
	ID  string
	URL string
}

// PaymentProvider is the narrow surface of the external payment platform.
type PaymentProvider interface {
	CreateCustomer(ctx context.Context, metadata map[string]string) (string, error)
	CreateCheckoutSession(ctx context.Context, request CheckoutSessionRequest) (CheckoutSession, error)
}

// StripeProvider implements PaymentProvider with the Stripe API.
type StripeProvider struct {
	api *client.API
}

// NewStripeProvider constructs a provider bound to secretKey.
func NewStripeProvider(secretKey string) (*StripeProvider, error) {
	if secretKey == "" {
		return nil, errMissingSecretKey
	}
	return &StripeProvider{api: client.New(secretKey, nil)}, nil
}

func (p *StripeProvider) CreateCustomer(ctx context.Context, metadata map[string]string) (string, error) {
	params := &stripe.CustomerParams{}
	params.Context = ctx
	for key, value := range metadata {
		params.AddMetadata(key, value)
	}
	customer, err := p.api.Customers.New(params)
	if err != nil {
		return "", err
	}
	return customer.ID, nil
}

func (p *StripeProvider) CreateCheckoutSession(ctx context.Context, request CheckoutSessionRequest) (CheckoutSession, error) {
	params := &stripe.CheckoutSessionParams{
		Customer:           stripe.String(request.CustomerID),
		Mode:               stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(request.PriceID),
				Quantity: stripe.Int64(1),
			},
		},
		SuccessURL:       stripe.String(request.SuccessURL),
		CancelURL:        stripe.String(request.CancelURL),
		SubscriptionData: &stripe.CheckoutSessionSubscriptionDataParams{},
	}
	params.Context = ctx
	for key, value := range request.Metadata {
		params.AddMetadata(key, value)
		params.SubscriptionData.AddMetadata(key, value)
	}
	session, err := p.api.CheckoutSessions.New(params)
	if err != nil {
		return CheckoutSession{}, err
	}
	return CheckoutSession{ID: session.ID, URL: session.URL}, nil
}
