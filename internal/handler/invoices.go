package handler

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log"
	"net/http"
	"net/url"
	"time"

	"github.com/caramelapple/storefront/internal/auth"
	"github.com/caramelapple/storefront/internal/database"
	"github.com/caramelapple/storefront/internal/invoice"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// InvoiceStore defines the database methods needed to assemble an invoice.
// Satisfied by *database.Queries; narrow interface for testability.
type InvoiceStore interface {
	GetOrder(ctx context.Context, id uuid.UUID) (database.Order, error)
	GetCustomer(ctx context.Context, id uuid.UUID) (database.Customer, error)
	ListOrderItemsByOrder(ctx context.Context, orderID uuid.UUID) ([]database.OrderItem, error)
}

// InvoiceRenderer renders invoice data. Satisfied by *invoice.Renderer.
type InvoiceRenderer interface {
	HTML(w io.Writer, d invoice.Data) error
	PDF(ctx context.Context, d invoice.Data) ([]byte, error)
}

// InvoiceHandler serves order invoices to staff and, through signed links,
// to customers.
type InvoiceHandler struct {
	store    InvoiceStore
	renderer InvoiceRenderer
	secret   string
	baseURL  string
}

// NewInvoiceHandler creates a new InvoiceHandler. baseURL is the storefront
// origin that hosts the customer-facing invoice page.
func NewInvoiceHandler(store InvoiceStore, renderer InvoiceRenderer, secret, baseURL string) *InvoiceHandler {
	return &InvoiceHandler{store: store, renderer: renderer, secret: secret, baseURL: baseURL}
}

// RegisterAdminRoutes registers staff invoice endpoints.
// Expected to be mounted alongside the order routes at /admin/orders.
func (h *InvoiceHandler) RegisterAdminRoutes(r chi.Router) {
	r.Get("/{id}/invoice", h.Preview)
	r.Get("/{id}/invoice.pdf", h.Download)
	r.Post("/{id}/invoice-link", h.Link)
}

// RegisterPublicRoutes registers the token-protected invoice endpoint.
// Expected to be mounted at /invoices.
func (h *InvoiceHandler) RegisterPublicRoutes(r chi.Router) {
	r.Get("/{id}", h.Public)
}

type invoiceLinkResponse struct {
	URL       string    `json:"url"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// --- Handlers ---

// Preview handles GET /admin/orders/{id}/invoice.
func (h *InvoiceHandler) Preview(w http.ResponseWriter, r *http.Request) {
	data, ok := h.load(w, r)
	if !ok {
		return
	}
	h.writeHTML(w, data)
}

// Download handles GET /admin/orders/{id}/invoice.pdf.
func (h *InvoiceHandler) Download(w http.ResponseWriter, r *http.Request) {
	data, ok := h.load(w, r)
	if !ok {
		return
	}
	h.writePDF(w, r, data)
}

// Link handles POST /admin/orders/{id}/invoice-link.
func (h *InvoiceHandler) Link(w http.ResponseWriter, r *http.Request) {
	orderID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid order ID"})
		return
	}

	if _, err := h.store.GetOrder(r.Context(), orderID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "order not found"})
			return
		}
		log.Printf("ERROR: get order for invoice link: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	token, expires, err := auth.GenerateInvoiceToken(h.secret, orderID)
	if err != nil {
		log.Printf("ERROR: sign invoice token: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	writeJSON(w, http.StatusOK, invoiceLinkResponse{
		URL:       h.baseURL + "/invoice/" + orderID.String() + "?token=" + url.QueryEscape(token),
		Token:     token,
		ExpiresAt: expires,
	})
}

// Public handles GET /invoices/{id}?token=...[&format=pdf].
func (h *InvoiceHandler) Public(w http.ResponseWriter, r *http.Request) {
	orderID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid order ID"})
		return
	}

	token := r.URL.Query().Get("token")
	if token == "" || auth.ValidateInvoiceToken(h.secret, token, orderID) != nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid or expired invoice link"})
		return
	}

	data, ok := h.load(w, r)
	if !ok {
		return
	}
	if r.URL.Query().Get("format") == "pdf" {
		h.writePDF(w, r, data)
		return
	}
	h.writeHTML(w, data)
}

// --- Helpers ---

func (h *InvoiceHandler) load(w http.ResponseWriter, r *http.Request) (invoice.Data, bool) {
	orderID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid order ID"})
		return invoice.Data{}, false
	}

	order, err := h.store.GetOrder(r.Context(), orderID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "order not found"})
			return invoice.Data{}, false
		}
		log.Printf("ERROR: get order for invoice: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return invoice.Data{}, false
	}

	customer, err := h.store.GetCustomer(r.Context(), order.CustomerID)
	if err != nil {
		log.Printf("ERROR: get customer for invoice: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return invoice.Data{}, false
	}

	items, err := h.store.ListOrderItemsByOrder(r.Context(), orderID)
	if err != nil {
		log.Printf("ERROR: list items for invoice: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return invoice.Data{}, false
	}

	data, err := invoice.Build(order, customer, items)
	if err != nil {
		log.Printf("ERROR: build invoice %s: %v", orderID, err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return invoice.Data{}, false
	}
	return data, true
}

func (h *InvoiceHandler) writeHTML(w http.ResponseWriter, data invoice.Data) {
	var buf bytes.Buffer
	if err := h.renderer.HTML(&buf, data); err != nil {
		log.Printf("ERROR: render invoice %s: %v", data.OrderID, err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes()) //nolint:errcheck
}

func (h *InvoiceHandler) writePDF(w http.ResponseWriter, r *http.Request, data invoice.Data) {
	pdf, err := h.renderer.PDF(r.Context(), data)
	if err != nil {
		if errors.Is(err, invoice.ErrPDFUnavailable) {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "pdf invoices are not available"})
			return
		}
		log.Printf("ERROR: render invoice pdf %s: %v", data.OrderID, err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to generate pdf invoice"})
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", `attachment; filename="invoice-`+invoice.ShortID(data.OrderID)+`.pdf"`)
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	w.Write(pdf) //nolint:errcheck
}
