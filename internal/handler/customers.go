package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/caramelapple/storefront/internal/database"
	"github.com/caramelapple/storefront/internal/enum"
	"github.com/caramelapple/storefront/internal/export"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
)

// CustomerStore defines the database methods needed by customer handlers.
// Satisfied by *database.Queries; narrow interface for testability.
type CustomerStore interface {
	ListCustomers(ctx context.Context, arg database.ListCustomersParams) ([]database.Customer, error)
	ListAllCustomers(ctx context.Context) ([]database.Customer, error)
	GetCustomer(ctx context.Context, id uuid.UUID) (database.Customer, error)
	CreateCustomer(ctx context.Context, arg database.CreateCustomerParams) (database.Customer, error)
	UpdateCustomer(ctx context.Context, arg database.UpdateCustomerParams) (database.Customer, error)
	DeleteCustomer(ctx context.Context, id uuid.UUID) (uuid.UUID, error)
	CountOrdersByCustomer(ctx context.Context, customerID uuid.UUID) (int64, error)
	GetCustomerStats(ctx context.Context, customerID uuid.UUID) (database.GetCustomerStatsRow, error)
	ListCustomerOrders(ctx context.Context, arg database.ListCustomerOrdersParams) ([]database.Order, error)
}

// CustomerHandler handles the admin customer directory.
type CustomerHandler struct {
	store CustomerStore
	now   func() time.Time
}

// NewCustomerHandler creates a new CustomerHandler.
func NewCustomerHandler(store CustomerStore) *CustomerHandler {
	return &CustomerHandler{store: store, now: time.Now}
}

// RegisterRoutes registers customer endpoints on the given Chi router.
// Expected to be mounted at /admin/customers.
func (h *CustomerHandler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.List)
	r.Post("/", h.Create)
	r.Get("/export", h.Export)
	r.Route("/{id}", func(r chi.Router) {
		r.Get("/", h.Get)
		r.Put("/", h.Update)
		r.Delete("/", h.Delete)
		r.Get("/orders", h.Orders)
	})
}

// --- Request / Response types ---

type customerRequest struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
}

type customerResponse struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Email     *string   `json:"email"`
	Phone     *string   `json:"phone"`
	JoinDate  string    `json:"join_date"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type customerStatsResponse struct {
	TotalOrders     int64      `json:"total_orders"`
	TotalSpentCents int64      `json:"total_spent_cents"`
	TotalSpent      string     `json:"total_spent"`
	LastOrderDate   *time.Time `json:"last_order_date"`
}

type customerDetailResponse struct {
	customerResponse
	Stats customerStatsResponse `json:"stats"`
}

func toCustomerResponse(c database.Customer) customerResponse {
	return customerResponse{
		ID:        c.ID,
		Name:      c.Name,
		Email:     database.TextPtr(c.Email),
		Phone:     database.TextPtr(c.Phone),
		JoinDate:  database.FormatDate(c.JoinDate),
		CreatedAt: c.CreatedAt,
		UpdatedAt: c.UpdatedAt,
	}
}

func toCustomerStatsResponse(s database.GetCustomerStatsRow) customerStatsResponse {
	resp := customerStatsResponse{
		TotalOrders:     s.TotalOrders,
		TotalSpentCents: s.TotalSpentCents,
		TotalSpent:      database.FormatCents(s.TotalSpentCents),
	}
	if s.LastOrderDate.Valid {
		t := s.LastOrderDate.Time
		resp.LastOrderDate = &t
	}
	return resp
}

// --- Handlers ---

// List returns customers, newest first, with optional search over name,
// email and phone.
func (h *CustomerHandler) List(w http.ResponseWriter, r *http.Request) {
	limit, offset := parsePagination(r)

	var search pgtype.Text
	if s := strings.TrimSpace(r.URL.Query().Get("search")); s != "" {
		search = pgtype.Text{String: s, Valid: true}
	}

	customers, err := h.store.ListCustomers(r.Context(), database.ListCustomersParams{
		Search: search,
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		log.Printf("ERROR: list customers: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	resp := make([]customerResponse, len(customers))
	for i, c := range customers {
		resp[i] = toCustomerResponse(c)
	}

	writeJSON(w, http.StatusOK, resp)
}

// Get returns a customer with order statistics.
func (h *CustomerHandler) Get(w http.ResponseWriter, r *http.Request) {
	customerID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid customer ID"})
		return
	}

	customer, ok := h.lookup(w, r, customerID)
	if !ok {
		return
	}

	stats, err := h.store.GetCustomerStats(r.Context(), customerID)
	if err != nil {
		log.Printf("ERROR: get customer stats: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	writeJSON(w, http.StatusOK, customerDetailResponse{
		customerResponse: toCustomerResponse(customer),
		Stats:            toCustomerStatsResponse(stats),
	})
}

// Create adds a customer manually.
func (h *CustomerHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req customerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	if msg := validateCustomer(&req); msg != "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": msg})
		return
	}

	customer, err := h.store.CreateCustomer(r.Context(), database.CreateCustomerParams{
		Name:  req.Name,
		Email: database.Text(req.Email),
		Phone: database.Text(req.Phone),
	})
	if err != nil {
		log.Printf("ERROR: create customer: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	writeJSON(w, http.StatusCreated, toCustomerResponse(customer))
}

// Update replaces a customer's contact details.
func (h *CustomerHandler) Update(w http.ResponseWriter, r *http.Request) {
	customerID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid customer ID"})
		return
	}

	var req customerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	if msg := validateCustomer(&req); msg != "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": msg})
		return
	}

	customer, err := h.store.UpdateCustomer(r.Context(), database.UpdateCustomerParams{
		ID:    customerID,
		Name:  req.Name,
		Email: database.Text(req.Email),
		Phone: database.Text(req.Phone),
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "customer not found"})
			return
		}
		log.Printf("ERROR: update customer: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	writeJSON(w, http.StatusOK, toCustomerResponse(customer))
}

// Delete removes a customer that has no orders.
func (h *CustomerHandler) Delete(w http.ResponseWriter, r *http.Request) {
	customerID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid customer ID"})
		return
	}

	count, err := h.store.CountOrdersByCustomer(r.Context(), customerID)
	if err != nil {
		log.Printf("ERROR: count customer orders: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}
	if count > 0 {
		writeJSON(w, http.StatusConflict, map[string]string{"error": "customer has orders and cannot be deleted"})
		return
	}

	if _, err := h.store.DeleteCustomer(r.Context(), customerID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "customer not found"})
			return
		}
		// An order created since the count still blocks the delete.
		if isForeignKeyViolation(err) {
			writeJSON(w, http.StatusConflict, map[string]string{"error": "customer has orders and cannot be deleted"})
			return
		}
		log.Printf("ERROR: delete customer: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Orders returns order history for a customer.
func (h *CustomerHandler) Orders(w http.ResponseWriter, r *http.Request) {
	customerID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid customer ID"})
		return
	}

	if _, ok := h.lookup(w, r, customerID); !ok {
		return
	}

	limit, offset := parsePagination(r)
	orders, err := h.store.ListCustomerOrders(r.Context(), database.ListCustomerOrdersParams{
		CustomerID: customerID,
		Limit:      limit,
		Offset:     offset,
	})
	if err != nil {
		log.Printf("ERROR: list customer orders: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	resp := make([]orderResponse, len(orders))
	for i, o := range orders {
		resp[i] = toOrderResponse(o)
	}

	writeJSON(w, http.StatusOK, resp)
}

// Export downloads the full customer directory as CSV or XLSX.
func (h *CustomerHandler) Export(w http.ResponseWriter, r *http.Request) {
	format, ok := parseExportFormat(w, r)
	if !ok {
		return
	}

	customers, err := h.store.ListAllCustomers(r.Context())
	if err != nil {
		log.Printf("ERROR: export customers: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	writeExport(w, "customers", "Customers", format, export.Customers(customers), h.now())
}

// --- Helpers ---

func (h *CustomerHandler) lookup(w http.ResponseWriter, r *http.Request, id uuid.UUID) (database.Customer, bool) {
	customer, err := h.store.GetCustomer(r.Context(), id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "customer not found"})
			return database.Customer{}, false
		}
		log.Printf("ERROR: get customer: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return database.Customer{}, false
	}
	return customer, true
}

// validateCustomer trims req in place and returns an error message, or "".
func validateCustomer(req *customerRequest) string {
	req.Name = strings.TrimSpace(req.Name)
	req.Email = strings.TrimSpace(req.Email)
	req.Phone = strings.TrimSpace(req.Phone)

	if req.Name == "" {
		return "name is required"
	}
	if req.Email == "" && req.Phone == "" {
		return "either email or phone is required"
	}
	if req.Email != "" && !strings.Contains(req.Email, "@") {
		return "invalid email format"
	}
	return ""
}

// parsePagination reads limit (default 20, max 100) and offset (default 0).
func parsePagination(r *http.Request) (int32, int32) {
	limit := 20
	if s := r.URL.Query().Get("limit"); s != "" {
		if v, err := strconv.Atoi(s); err == nil && v > 0 {
			limit = v
		}
	}
	if limit > 100 {
		limit = 100
	}

	offset := 0
	if s := r.URL.Query().Get("offset"); s != "" {
		if v, err := strconv.Atoi(s); err == nil && v >= 0 {
			offset = v
		}
	}
	return int32(limit), int32(offset)
}

func parseExportFormat(w http.ResponseWriter, r *http.Request) (string, bool) {
	format := strings.ToLower(r.URL.Query().Get("format"))
	switch format {
	case "":
		return enum.ExportFormatCSV, true
	case enum.ExportFormatCSV, enum.ExportFormatXLSX:
		return format, true
	}
	writeJSON(w, http.StatusBadRequest, map[string]string{"error": "format must be csv or xlsx"})
	return "", false
}

// writeExport buffers the file so a write failure can still become a 500.
func writeExport(w http.ResponseWriter, kind, sheet, format string, table export.Table, now time.Time) {
	var buf bytes.Buffer
	if err := export.Write(&buf, format, sheet, table); err != nil {
		log.Printf("ERROR: export %s: %v", kind, err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	w.Header().Set("Content-Type", export.ContentType(format))
	w.Header().Set("Content-Disposition", `attachment; filename="`+export.Filename(kind, format, now)+`"`)
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes()) //nolint:errcheck
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23503"
}
