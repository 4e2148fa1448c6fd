package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/caramelapple/storefront/internal/database"
	"github.com/caramelapple/storefront/internal/enum"
	"github.com/caramelapple/storefront/internal/export"
	"github.com/caramelapple/storefront/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

// OrderServicer defines the service methods needed by order handlers.
// Satisfied by *service.OrderService; narrow interface for testability.
type OrderServicer interface {
	UpdateStatus(ctx context.Context, orderID uuid.UUID, status string) (database.Order, error)
	UpdateOrder(ctx context.Context, req service.UpdateOrderRequest) (*service.OrderDetail, error)
}

// OrderStore defines the database methods needed by order read/delete handlers.
// Satisfied by *database.Queries; narrow interface for testability.
type OrderStore interface {
	ListOrders(ctx context.Context, arg database.ListOrdersParams) ([]database.ListOrdersRow, error)
	ListOrdersForExport(ctx context.Context, arg database.ListOrdersForExportParams) ([]database.ListOrdersRow, error)
	GetOrder(ctx context.Context, id uuid.UUID) (database.Order, error)
	GetCustomer(ctx context.Context, id uuid.UUID) (database.Customer, error)
	ListOrderItemsByOrder(ctx context.Context, orderID uuid.UUID) ([]database.OrderItem, error)
	DeleteOrder(ctx context.Context, id uuid.UUID) (uuid.UUID, error)
}

// OrderHandler handles the admin order views.
type OrderHandler struct {
	store    OrderStore
	svc      OrderServicer
	checkout CheckoutServicer
	notifier service.Notifier
	now      func() time.Time
}

// NewOrderHandler creates a new OrderHandler. notifier may be nil.
func NewOrderHandler(store OrderStore, svc OrderServicer, checkout CheckoutServicer, notifier service.Notifier) *OrderHandler {
	return &OrderHandler{store: store, svc: svc, checkout: checkout, notifier: notifier, now: time.Now}
}

// RegisterRoutes registers order endpoints on the given Chi router.
// Expected to be mounted at /admin/orders.
func (h *OrderHandler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.List)
	r.Post("/", h.Create)
	r.Get("/export", h.Export)
	r.Get("/{id}", h.Get)
	r.Put("/{id}", h.Update)
	r.Delete("/{id}", h.Delete)
	r.Patch("/{id}/status", h.UpdateStatus)
}

// --- Request / Response types ---

type orderResponse struct {
	ID               uuid.UUID         `json:"id"`
	CustomerID       uuid.UUID         `json:"customer_id"`
	OrderDate        time.Time         `json:"order_date"`
	DeliveryDate     string            `json:"delivery_date"`
	Status           string            `json:"status"`
	RetrievalMethod  string            `json:"retrieval_method"`
	PaymentMethod    string            `json:"payment_method"`
	SubtotalCents    int64             `json:"subtotal_cents"`
	DeliveryFeeCents int64             `json:"delivery_fee_cents"`
	TotalCents       int64             `json:"total_cents"`
	Total            string            `json:"total"`
	Address          *database.Address `json:"address"`
	Customizations   *string           `json:"customizations"`
	PaymentSessionID *string           `json:"payment_session_id"`
	CreatedAt        time.Time         `json:"created_at"`
	UpdatedAt        time.Time         `json:"updated_at"`
}

// orderListItemResponse is a list row with the customer's contact fields.
type orderListItemResponse struct {
	orderResponse
	CustomerName  string  `json:"customer_name"`
	CustomerEmail *string `json:"customer_email"`
	CustomerPhone *string `json:"customer_phone"`
}

type orderItemResponse struct {
	ID             uuid.UUID                 `json:"id"`
	ProductID      uuid.UUID                 `json:"product_id"`
	Quantity       int32                     `json:"quantity"`
	UnitPriceCents int64                     `json:"unit_price_cents"`
	LineTotalCents int64                     `json:"line_total_cents"`
	ItemNotes      *string                   `json:"item_notes"`
	Product        *database.ProductSnapshot `json:"product"`
}

// orderDetailResponse is the full order view used by detail, create and update.
type orderDetailResponse struct {
	orderResponse
	Customer customerResponse    `json:"customer"`
	Items    []orderItemResponse `json:"items"`
}

type updateStatusRequest struct {
	Status string `json:"status"`
}

type updateOrderRequest struct {
	DeliveryDate    *string           `json:"delivery_date"`
	RetrievalMethod *string           `json:"retrieval_method"`
	PaymentMethod   *string           `json:"payment_method"`
	Address         *database.Address `json:"address"`
	Customizations  *string           `json:"customizations"`
	Items           []itemOpRequest   `json:"items"`
}

type itemOpRequest struct {
	Op        string `json:"op"`
	ID        string `json:"id"`
	ProductID string `json:"product_id"`
	Quantity  int32  `json:"quantity"`
	ItemNotes string `json:"item_notes"`
}

func toOrderResponse(o database.Order) orderResponse {
	addr, err := database.DecodeAddress(o.Address)
	if err != nil {
		log.Printf("WARNING: order %s: %v", o.ID, err)
	}
	return orderResponse{
		ID:               o.ID,
		CustomerID:       o.CustomerID,
		OrderDate:        o.OrderDate,
		DeliveryDate:     database.FormatDate(o.DeliveryDate),
		Status:           o.Status,
		RetrievalMethod:  o.RetrievalMethod,
		PaymentMethod:    o.PaymentMethod,
		SubtotalCents:    o.SubtotalCents,
		DeliveryFeeCents: o.DeliveryFeeCents,
		TotalCents:       o.TotalCents,
		Total:            database.FormatCents(o.TotalCents),
		Address:          addr,
		Customizations:   database.TextPtr(o.Customizations),
		PaymentSessionID: database.TextPtr(o.PaymentSessionID),
		CreatedAt:        o.CreatedAt,
		UpdatedAt:        o.UpdatedAt,
	}
}

func toOrderListItemResponse(row database.ListOrdersRow) orderListItemResponse {
	return orderListItemResponse{
		orderResponse: toOrderResponse(database.Order{
			ID:               row.ID,
			CustomerID:       row.CustomerID,
			OrderDate:        row.OrderDate,
			DeliveryDate:     row.DeliveryDate,
			Status:           row.Status,
			RetrievalMethod:  row.RetrievalMethod,
			PaymentMethod:    row.PaymentMethod,
			SubtotalCents:    row.SubtotalCents,
			DeliveryFeeCents: row.DeliveryFeeCents,
			TotalCents:       row.TotalCents,
			Address:          row.Address,
			Customizations:   row.Customizations,
			PaymentSessionID: row.PaymentSessionID,
			CreatedAt:        row.CreatedAt,
			UpdatedAt:        row.UpdatedAt,
		}),
		CustomerName:  row.CustomerName,
		CustomerEmail: database.TextPtr(row.CustomerEmail),
		CustomerPhone: database.TextPtr(row.CustomerPhone),
	}
}

func toOrderItemResponse(it database.OrderItem) orderItemResponse {
	snap, err := database.DecodeSnapshot(it.ProductSnapshot)
	if err != nil {
		log.Printf("WARNING: order item %s: %v", it.ID, err)
	}
	return orderItemResponse{
		ID:             it.ID,
		ProductID:      it.ProductID,
		Quantity:       it.Quantity,
		UnitPriceCents: it.UnitPriceCents,
		LineTotalCents: it.UnitPriceCents * int64(it.Quantity),
		ItemNotes:      database.TextPtr(it.ItemNotes),
		Product:        snap,
	}
}

func toOrderDetailResponse(o database.Order, c database.Customer, items []database.OrderItem) orderDetailResponse {
	resp := orderDetailResponse{
		orderResponse: toOrderResponse(o),
		Customer:      toCustomerResponse(c),
		Items:         make([]orderItemResponse, len(items)),
	}
	for i, it := range items {
		resp.Items[i] = toOrderItemResponse(it)
	}
	return resp
}

// --- Handlers ---

// List handles GET /admin/orders.
func (h *OrderHandler) List(w http.ResponseWriter, r *http.Request) {
	filter, ok := parseOrderFilter(w, r)
	if !ok {
		return
	}
	limit, offset := parsePagination(r)

	rows, err := h.store.ListOrders(r.Context(), database.ListOrdersParams{
		Status:   filter.Status,
		Search:   filter.Search,
		FromDate: filter.FromDate,
		ToDate:   filter.ToDate,
		Limit:    limit,
		Offset:   offset,
	})
	if err != nil {
		log.Printf("ERROR: list orders: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	resp := make([]orderListItemResponse, len(rows))
	for i, row := range rows {
		resp[i] = toOrderListItemResponse(row)
	}

	writeJSON(w, http.StatusOK, resp)
}

// Create handles POST /admin/orders. Staff-entered orders go through the
// same checkout path as the storefront and are paid on pickup.
func (h *OrderHandler) Create(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeCheckoutRequest(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	req.Order.PaymentMethod = enum.PaymentMethodPickup

	result, err := h.checkout.Checkout(r.Context(), req)
	if err != nil {
		if service.IsValidation(err) {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": validationMessage(err)})
			return
		}
		log.Printf("ERROR: create order (%s): %v", service.KindOf(err), err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	writeJSON(w, http.StatusCreated, toOrderDetailResponse(result.Order, result.Customer, result.Items))
}

// Get handles GET /admin/orders/{id}.
func (h *OrderHandler) Get(w http.ResponseWriter, r *http.Request) {
	orderID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid order ID"})
		return
	}

	order, err := h.store.GetOrder(r.Context(), orderID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "order not found"})
			return
		}
		log.Printf("ERROR: get order: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	items, err := h.store.ListOrderItemsByOrder(r.Context(), orderID)
	if err != nil {
		log.Printf("ERROR: list order items: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	h.writeDetail(w, r, http.StatusOK, order, items)
}

// UpdateStatus handles PATCH /admin/orders/{id}/status.
func (h *OrderHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	orderID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid order ID"})
		return
	}

	var req updateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if strings.TrimSpace(req.Status) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "status is required"})
		return
	}

	updated, err := h.svc.UpdateStatus(r.Context(), orderID, req.Status)
	if err != nil {
		writeOrderError(w, "update order status", err)
		return
	}

	writeJSON(w, http.StatusOK, toOrderResponse(updated))
}

// Update handles PUT /admin/orders/{id}: header edits and item operations
// applied together.
func (h *OrderHandler) Update(w http.ResponseWriter, r *http.Request) {
	orderID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid order ID"})
		return
	}

	var req updateOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	ops := make([]service.ItemOp, len(req.Items))
	for i, it := range req.Items {
		ops[i] = service.ItemOp{
			Op:        strings.ToLower(strings.TrimSpace(it.Op)),
			ID:        it.ID,
			ProductID: it.ProductID,
			Quantity:  it.Quantity,
			Notes:     it.ItemNotes,
		}
	}

	detail, err := h.svc.UpdateOrder(r.Context(), service.UpdateOrderRequest{
		OrderID:         orderID,
		DeliveryDate:    req.DeliveryDate,
		RetrievalMethod: req.RetrievalMethod,
		PaymentMethod:   req.PaymentMethod,
		Address:         req.Address,
		Customizations:  req.Customizations,
		Items:           ops,
	})
	if err != nil {
		writeOrderError(w, "update order", err)
		return
	}

	h.writeDetail(w, r, http.StatusOK, detail.Order, detail.Items)
}

// Delete handles DELETE /admin/orders/{id}. Items go with the order.
func (h *OrderHandler) Delete(w http.ResponseWriter, r *http.Request) {
	orderID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid order ID"})
		return
	}

	order, err := h.store.GetOrder(r.Context(), orderID)
	if err == nil {
		_, err = h.store.DeleteOrder(r.Context(), orderID)
	}
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "order not found"})
			return
		}
		log.Printf("ERROR: delete order: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	if h.notifier != nil {
		h.notifier.NotifyOrder(enum.EventOrderDeleted, order)
	}
	w.WriteHeader(http.StatusNoContent)
}

// Export handles GET /admin/orders/export with the same filters as List.
func (h *OrderHandler) Export(w http.ResponseWriter, r *http.Request) {
	format, ok := parseExportFormat(w, r)
	if !ok {
		return
	}
	filter, ok := parseOrderFilter(w, r)
	if !ok {
		return
	}

	rows, err := h.store.ListOrdersForExport(r.Context(), filter)
	if err != nil {
		log.Printf("ERROR: export orders: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	writeExport(w, "orders", "Orders", format, export.Orders(rows), h.now())
}

// --- Helpers ---

func (h *OrderHandler) writeDetail(w http.ResponseWriter, r *http.Request, status int, order database.Order, items []database.OrderItem) {
	customer, err := h.store.GetCustomer(r.Context(), order.CustomerID)
	if err != nil {
		log.Printf("ERROR: get order customer: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}
	writeJSON(w, status, toOrderDetailResponse(order, customer, items))
}

// parseOrderFilter reads status, search, from and to from the query string.
func parseOrderFilter(w http.ResponseWriter, r *http.Request) (database.ListOrdersForExportParams, bool) {
	var f database.ListOrdersForExportParams
	q := r.URL.Query()

	if s := strings.ToLower(strings.TrimSpace(q.Get("status"))); s != "" {
		if !service.IsValidOrderStatus(s) {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid status"})
			return f, false
		}
		f.Status = pgtype.Text{String: s, Valid: true}
	}
	if s := strings.TrimSpace(q.Get("search")); s != "" {
		f.Search = pgtype.Text{String: s, Valid: true}
	}
	for _, p := range []struct {
		key  string
		dest *pgtype.Date
	}{{"from", &f.FromDate}, {"to", &f.ToDate}} {
		s := q.Get(p.key)
		if s == "" {
			continue
		}
		d, err := database.ParseDate(s)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid " + p.key + " date, use YYYY-MM-DD"})
			return f, false
		}
		*p.dest = d
	}
	return f, true
}

func writeOrderError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, service.ErrOrderNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "order not found"})
	case errors.Is(err, service.ErrOrderItemNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "order item not found"})
	case errors.Is(err, service.ErrInvalidTransition), errors.Is(err, service.ErrStatusChanged):
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
	case service.IsValidation(err):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": validationMessage(err)})
	default:
		log.Printf("ERROR: %s: %v", op, err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
	}
}
