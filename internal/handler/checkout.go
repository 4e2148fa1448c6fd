package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/caramelapple/storefront/internal/database"
	"github.com/caramelapple/storefront/internal/enum"
	"github.com/caramelapple/storefront/internal/payment"
	"github.com/caramelapple/storefront/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// CheckoutServicer defines the service methods needed by checkout handlers.
// Satisfied by *service.CheckoutService; narrow interface for testability.
type CheckoutServicer interface {
	Quote(ctx context.Context, req service.CheckoutRequest) (*service.Quote, error)
	Checkout(ctx context.Context, req service.CheckoutRequest) (*service.CheckoutResult, error)
}

// PaymentSessions opens hosted payment pages.
// Satisfied by *payment.Gateway.
type PaymentSessions interface {
	CreateCheckoutSession(ctx context.Context, q *service.Quote) (*payment.Session, error)
}

// CheckoutHandler handles the storefront checkout endpoint.
type CheckoutHandler struct {
	svc      CheckoutServicer
	sessions PaymentSessions
}

// NewCheckoutHandler creates a new CheckoutHandler. sessions may be nil when
// online payment is not configured.
func NewCheckoutHandler(svc CheckoutServicer, sessions PaymentSessions) *CheckoutHandler {
	return &CheckoutHandler{svc: svc, sessions: sessions}
}

// RegisterRoutes registers checkout endpoints on the given Chi router.
// Expected to be mounted at /checkout.
func (h *CheckoutHandler) RegisterRoutes(r chi.Router) {
	r.Post("/", h.Checkout)
}

// --- Request / Response types ---

type checkoutRequest struct {
	Customer *checkoutCustomerRequest `json:"customer"`
	Order    *checkoutOrderRequest    `json:"order"`
	Items    []checkoutItemRequest    `json:"items"`
}

type checkoutCustomerRequest struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
}

type checkoutOrderRequest struct {
	DeliveryDate    string            `json:"delivery_date"`
	RetrievalMethod string            `json:"retrieval_method"`
	PaymentMethod   string            `json:"payment_method"`
	Address         *database.Address `json:"address"`
	Customizations  string            `json:"customizations"`
}

// Prices sent by the client are not decoded; lines are always re-priced.
type checkoutItemRequest struct {
	ProductID string `json:"product_id"`
	Quantity  int32  `json:"quantity"`
	ItemNotes string `json:"item_notes"`
}

type checkoutResponse struct {
	Success          bool      `json:"success"`
	OrderID          uuid.UUID `json:"order_id"`
	SubtotalCents    int64     `json:"subtotal_cents"`
	DeliveryFeeCents int64     `json:"delivery_fee_cents"`
	TotalCents       int64     `json:"total_cents"`
	Total            string    `json:"total"`
}

type checkoutErrorResponse struct {
	Success   bool   `json:"success"`
	Error     string `json:"error"`
	ErrorType string `json:"error_type"`
}

type paymentSessionResponse struct {
	CheckoutURL string `json:"checkout_url"`
	SessionID   string `json:"session_id"`
}

// decodeCheckoutRequest reads the body and checks its overall shape.
func decodeCheckoutRequest(r *http.Request) (service.CheckoutRequest, bool) {
	var req checkoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return service.CheckoutRequest{}, false
	}
	if req.Customer == nil || req.Order == nil || req.Items == nil {
		return service.CheckoutRequest{}, false
	}

	out := service.CheckoutRequest{
		Customer: service.CheckoutCustomer{
			Name:  req.Customer.Name,
			Email: req.Customer.Email,
			Phone: req.Customer.Phone,
		},
		Order: service.CheckoutOrder{
			DeliveryDate:    req.Order.DeliveryDate,
			RetrievalMethod: req.Order.RetrievalMethod,
			PaymentMethod:   req.Order.PaymentMethod,
			Address:         req.Order.Address,
			Customizations:  req.Order.Customizations,
		},
		Items: make([]service.CheckoutItem, len(req.Items)),
	}
	for i, it := range req.Items {
		out.Items[i] = service.CheckoutItem{
			ProductID: it.ProductID,
			Quantity:  it.Quantity,
			Notes:     it.ItemNotes,
		}
	}
	return out, true
}

// --- Handlers ---

// Checkout handles POST /checkout. With ?stripe it opens a hosted payment
// session instead of persisting the order; the webhook persists it once
// payment completes.
func (h *CheckoutHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeCheckoutRequest(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, checkoutErrorResponse{
			Error:     "invalid payload structure, expected customer, order and items",
			ErrorType: string(service.KindValidation),
		})
		return
	}

	if r.URL.Query().Has("stripe") {
		h.startPaymentSession(w, r, req)
		return
	}

	result, err := h.svc.Checkout(r.Context(), req)
	if err != nil {
		writeCheckoutError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, checkoutResponse{
		Success:          true,
		OrderID:          result.Order.ID,
		SubtotalCents:    result.Order.SubtotalCents,
		DeliveryFeeCents: result.Order.DeliveryFeeCents,
		TotalCents:       result.Order.TotalCents,
		Total:            database.FormatCents(result.Order.TotalCents),
	})
}

func (h *CheckoutHandler) startPaymentSession(w http.ResponseWriter, r *http.Request, req service.CheckoutRequest) {
	if h.sessions == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "online payment is not available"})
		return
	}

	req.Order.PaymentMethod = enum.PaymentMethodStripe
	quote, err := h.svc.Quote(r.Context(), req)
	if err != nil {
		writeCheckoutError(w, err)
		return
	}

	session, err := h.sessions.CreateCheckoutSession(r.Context(), quote)
	if err != nil {
		switch {
		case errors.Is(err, payment.ErrMetadataTooLong):
			writeCheckoutError(w, &service.CheckoutError{Kind: service.KindValidation, Err: err})
		case errors.Is(err, payment.ErrNotConfigured):
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "online payment is not available"})
		default:
			log.Printf("ERROR: create payment session: %v", err)
			writeJSON(w, http.StatusInternalServerError, checkoutErrorResponse{
				Error:     "could not start payment, please try again",
				ErrorType: string(service.KindNetwork),
			})
		}
		return
	}

	writeJSON(w, http.StatusOK, paymentSessionResponse{
		CheckoutURL: session.URL,
		SessionID:   session.ID,
	})
}

// --- Helpers ---

// writeCheckoutError maps the error taxonomy onto HTTP: validation is the
// client's problem, every other kind is logged and reported generically.
func writeCheckoutError(w http.ResponseWriter, err error) {
	kind := service.KindOf(err)
	if kind == service.KindValidation {
		writeJSON(w, http.StatusBadRequest, checkoutErrorResponse{
			Error:     validationMessage(err),
			ErrorType: string(kind),
		})
		return
	}
	log.Printf("ERROR: checkout (%s): %v", kind, err)
	writeJSON(w, http.StatusInternalServerError, checkoutErrorResponse{
		Error:     "an unexpected error occurred while processing your order",
		ErrorType: string(kind),
	})
}

// validationMessage strips the operation prefix from classified errors.
func validationMessage(err error) string {
	var ce *service.CheckoutError
	if errors.As(err, &ce) && ce.Err != nil {
		return ce.Err.Error()
	}
	return err.Error()
}
