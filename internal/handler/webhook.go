package handler

import (
	"context"
	"errors"
	"io"
	"log"
	"net/http"

	"github.com/caramelapple/storefront/internal/payment"
	"github.com/caramelapple/storefront/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/stripe/stripe-go/v80"
)

const maxWebhookBody = 64 << 10

// EventVerifier checks webhook signatures. Satisfied by *payment.Gateway.
type EventVerifier interface {
	VerifyEvent(payload []byte, signature string) (stripe.Event, error)
}

// OrderPlacer persists a checkout request. Satisfied by *service.CheckoutService.
type OrderPlacer interface {
	Checkout(ctx context.Context, req service.CheckoutRequest) (*service.CheckoutResult, error)
}

// WebhookHandler receives payment provider callbacks.
type WebhookHandler struct {
	verifier EventVerifier
	orders   OrderPlacer
}

// NewWebhookHandler creates a new WebhookHandler.
func NewWebhookHandler(verifier EventVerifier, orders OrderPlacer) *WebhookHandler {
	return &WebhookHandler{verifier: verifier, orders: orders}
}

// RegisterRoutes registers webhook endpoints on the given Chi router.
// Expected to be mounted at /webhooks/stripe.
func (h *WebhookHandler) RegisterRoutes(r chi.Router) {
	r.Post("/", h.Receive)
	r.Get("/", h.Health)
}

// Receive handles POST /webhooks/stripe. Once the signature checks out the
// provider always gets a 200, even if the order could not be created, so it
// does not redeliver into a half-processed state. Failures are logged for
// manual follow-up.
func (h *WebhookHandler) Receive(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	signature := r.Header.Get("Stripe-Signature")
	if signature == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "no signature provided"})
		return
	}

	event, err := h.verifier.VerifyEvent(payload, signature)
	if errors.Is(err, payment.ErrNotConfigured) {
		log.Printf("ERROR: webhook received but no signing secret is configured")
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "webhooks not configured"})
		return
	}
	if err != nil {
		log.Printf("WARNING: webhook signature rejected: %v", err)
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid signature"})
		return
	}

	if event.Type != stripe.EventTypeCheckoutSessionCompleted {
		writeJSON(w, http.StatusOK, map[string]interface{}{"received": true})
		return
	}

	if err := h.completeSession(r.Context(), event); err != nil {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"received": true,
			"error":    "processing failed - logged for review",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"received": true})
}

// Health handles GET /webhooks/stripe.
func (h *WebhookHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *WebhookHandler) completeSession(ctx context.Context, event stripe.Event) error {
	session, err := payment.CompletedSession(event)
	if err != nil {
		log.Printf("ERROR: webhook %s: %v", event.ID, err)
		return err
	}

	intent := ""
	if session.PaymentIntent != nil {
		intent = session.PaymentIntent.ID
	}

	req, err := payment.DecodeMetadata(session)
	if err != nil {
		log.Printf("ERROR: webhook session %s (payment intent %s): %v", session.ID, intent, err)
		return err
	}

	result, err := h.orders.Checkout(ctx, req)
	if err != nil {
		log.Printf("ERROR: webhook session %s (payment intent %s): checkout %s: %v",
			session.ID, intent, service.KindOf(err), err)
		return err
	}
	if result.Duplicate {
		log.Printf("webhook session %s already produced order %s", session.ID, result.Order.ID)
		return nil
	}

	log.Printf("webhook session %s created order %s", session.ID, result.Order.ID)
	return nil
}
