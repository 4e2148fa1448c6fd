// Package payment adapts checkout quotes to Stripe hosted checkout sessions
// and verifies the webhooks Stripe sends back.
package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/caramelapple/storefront/internal/service"
	"github.com/stripe/stripe-go/v80"
	"github.com/stripe/stripe-go/v80/client"
	"github.com/stripe/stripe-go/v80/webhook"
)

var (
	ErrNotConfigured    = errors.New("payment provider not configured")
	ErrInvalidSignature = errors.New("invalid signature")
)

const deliveryFeeLabel = "Delivery fee"

// SessionCreator creates hosted checkout sessions.
// Satisfied by the CheckoutSessions field of *client.API.
type SessionCreator interface {
	New(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
}

// Session is the part of a created session the storefront needs.
type Session struct {
	ID  string
	URL string
}

// Gateway creates hosted payment sessions and verifies webhook events.
type Gateway struct {
	sessions      SessionCreator
	webhookSecret string
	currency      string
	baseURL       string
}

// New creates a Gateway over an existing session client. sessions may be
// nil when only webhook verification is needed.
func New(sessions SessionCreator, webhookSecret, currency, baseURL string) *Gateway {
	return &Gateway{
		sessions:      sessions,
		webhookSecret: webhookSecret,
		currency:      currency,
		baseURL:       baseURL,
	}
}

// NewStripe creates a Gateway backed by a dedicated Stripe API client.
// An empty secretKey leaves session creation disabled.
func NewStripe(secretKey, webhookSecret, currency, baseURL string) *Gateway {
	var sessions SessionCreator
	if secretKey != "" {
		sessions = client.New(secretKey, nil).CheckoutSessions
	}
	return New(sessions, webhookSecret, currency, baseURL)
}

// CreateCheckoutSession opens a hosted payment page for a priced quote.
// Line item amounts always come from the quote.
func (g *Gateway) CreateCheckoutSession(ctx context.Context, q *service.Quote) (*Session, error) {
	if g.sessions == nil {
		return nil, ErrNotConfigured
	}

	metadata, err := EncodeMetadata(q.Request)
	if err != nil {
		return nil, err
	}

	params := &stripe.CheckoutSessionParams{
		Mode:       stripe.String(string(stripe.CheckoutSessionModePayment)),
		LineItems:  g.lineItems(q),
		SuccessURL: stripe.String(g.baseURL + "/checkout/success?session_id={CHECKOUT_SESSION_ID}"),
		CancelURL:  stripe.String(g.baseURL + "/checkout"),
	}
	params.Context = ctx
	if email := q.Request.Customer.Email; email != "" {
		params.CustomerEmail = stripe.String(email)
	}
	for k, v := range metadata {
		params.AddMetadata(k, v)
	}

	s, err := g.sessions.New(params)
	if err != nil {
		return nil, fmt.Errorf("create checkout session: %w", err)
	}
	return &Session{ID: s.ID, URL: s.URL}, nil
}

func (g *Gateway) lineItems(q *service.Quote) []*stripe.CheckoutSessionLineItemParams {
	items := make([]*stripe.CheckoutSessionLineItemParams, 0, len(q.Lines)+1)
	for _, line := range q.Lines {
		product := &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
			Name: stripe.String(line.Product.Name),
		}
		if line.Product.Description.Valid && line.Product.Description.String != "" {
			product.Description = stripe.String(line.Product.Description.String)
		}
		items = append(items, &stripe.CheckoutSessionLineItemParams{
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:    stripe.String(g.currency),
				UnitAmount:  stripe.Int64(line.Product.PriceCents),
				ProductData: product,
			},
			Quantity: stripe.Int64(int64(line.Quantity)),
		})
	}
	if fee := q.Totals.DeliveryFeeCents; fee > 0 {
		items = append(items, &stripe.CheckoutSessionLineItemParams{
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:   stripe.String(g.currency),
				UnitAmount: stripe.Int64(fee),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String(deliveryFeeLabel),
				},
			},
			Quantity: stripe.Int64(1),
		})
	}
	return items
}

// VerifyEvent checks the Stripe-Signature header against the raw payload.
// Without a webhook secret every event is refused: an empty key would
// otherwise accept anything signed with "".
func (g *Gateway) VerifyEvent(payload []byte, signature string) (stripe.Event, error) {
	if g.webhookSecret == "" {
		return stripe.Event{}, ErrNotConfigured
	}
	event, err := webhook.ConstructEventWithOptions(payload, signature, g.webhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return stripe.Event{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	return event, nil
}

// CompletedSession decodes the checkout session carried by a
// checkout.session.completed event.
func CompletedSession(event stripe.Event) (*stripe.CheckoutSession, error) {
	if event.Data == nil {
		return nil, errors.New("event has no data")
	}
	var s stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &s); err != nil {
		return nil, fmt.Errorf("decode checkout session: %w", err)
	}
	return &s, nil
}
