package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/caramelapple/storefront/internal/cache"
	"github.com/caramelapple/storefront/internal/database"
	"github.com/caramelapple/storefront/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// ProductStore defines the database methods needed by product handlers.
// Satisfied by *database.Queries; narrow interface for testability.
type ProductStore interface {
	ListActiveProducts(ctx context.Context) ([]database.Product, error)
	ListFeaturedProducts(ctx context.Context) ([]database.Product, error)
	ListAllProducts(ctx context.Context) ([]database.Product, error)
	GetProduct(ctx context.Context, id uuid.UUID) (database.Product, error)
	UpdateProduct(ctx context.Context, arg database.UpdateProductParams) (database.Product, error)
	SoftDeleteProduct(ctx context.Context, id uuid.UUID) (uuid.UUID, error)
}

// ProductCatalog owns writes that touch sort keys.
// Satisfied by *service.CatalogService.
type ProductCatalog interface {
	CreateProduct(ctx context.Context, arg database.CreateProductParams) (database.Product, error)
	SwapSortOrder(ctx context.Context, aID, bID uuid.UUID) (database.Product, database.Product, error)
	SetSortOrder(ctx context.Context, id uuid.UUID, sortOrder int32) (database.Product, error)
}

// CatalogCache stores the serialized public product list.
// Satisfied by *cache.Catalog and cache.Noop.
type CatalogCache interface {
	Get(ctx context.Context) ([]byte, bool)
	Set(ctx context.Context, body []byte)
	Invalidate(ctx context.Context)
}

// ProductHandler handles the public catalog and admin product management.
type ProductHandler struct {
	store   ProductStore
	catalog ProductCatalog
	cache   CatalogCache
}

// NewProductHandler creates a new ProductHandler. A nil cache disables caching.
func NewProductHandler(store ProductStore, catalog ProductCatalog, c CatalogCache) *ProductHandler {
	if c == nil {
		c = cache.Noop{}
	}
	return &ProductHandler{store: store, catalog: catalog, cache: c}
}

// RegisterRoutes registers the public catalog endpoints.
func (h *ProductHandler) RegisterRoutes(r chi.Router) {
	r.Get("/products", h.ListActive)
	r.Get("/products/featured", h.ListFeatured)
}

// RegisterAdminRoutes registers product management endpoints.
// Expected to be mounted at /admin/products.
func (h *ProductHandler) RegisterAdminRoutes(r chi.Router) {
	r.Get("/", h.ListAll)
	r.Post("/", h.Create)
	r.Post("/reorder", h.Reorder)
	r.Get("/{id}", h.Get)
	r.Put("/{id}", h.Update)
	r.Delete("/{id}", h.Delete)
	r.Put("/{id}/sort-order", h.SetSortOrder)
}

// --- Request / Response types ---

type createProductRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	ImagePath   string `json:"image_path"`
	PriceCents  *int64 `json:"price_cents"`
	IsActive    *bool  `json:"is_active"`
	Featured    bool   `json:"featured"`
}

type updateProductRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	ImagePath   string `json:"image_path"`
	PriceCents  *int64 `json:"price_cents"`
	IsActive    *bool  `json:"is_active"`
	Featured    *bool  `json:"featured"`
}

type reorderRequest struct {
	ProductAID string `json:"product_a_id"`
	ProductBID string `json:"product_b_id"`
}

type sortOrderRequest struct {
	SortOrder *int32 `json:"sort_order"`
}

type productResponse struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Description *string   `json:"description"`
	ImagePath   *string   `json:"image_path"`
	PriceCents  int64     `json:"price_cents"`
	Price       string    `json:"price"`
	IsActive    bool      `json:"is_active"`
	Featured    bool      `json:"featured"`
	SortOrder   *int32    `json:"sort_order"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func toProductResponse(p database.Product) productResponse {
	resp := productResponse{
		ID:          p.ID,
		Name:        p.Name,
		Description: database.TextPtr(p.Description),
		ImagePath:   database.TextPtr(p.ImagePath),
		PriceCents:  p.PriceCents,
		Price:       database.FormatCents(p.PriceCents),
		IsActive:    p.IsActive,
		Featured:    p.Featured,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}
	if p.SortOrder.Valid {
		so := p.SortOrder.Int32
		resp.SortOrder = &so
	}
	return resp
}

func toProductResponses(products []database.Product) []productResponse {
	resp := make([]productResponse, len(products))
	for i, p := range products {
		resp[i] = toProductResponse(p)
	}
	return resp
}

// --- Handlers ---

// ListActive returns the storefront catalog, served from cache when warm.
func (h *ProductHandler) ListActive(w http.ResponseWriter, r *http.Request) {
	if body, ok := h.cache.Get(r.Context()); ok {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("X-Cache", "HIT")
		w.WriteHeader(http.StatusOK)
		w.Write(body) //nolint:errcheck
		return
	}

	products, err := h.store.ListActiveProducts(r.Context())
	if err != nil {
		log.Printf("ERROR: list active products: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	body, err := json.Marshal(toProductResponses(products))
	if err != nil {
		log.Printf("ERROR: encode products: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}
	h.cache.Set(r.Context(), body)

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Cache", "MISS")
	w.WriteHeader(http.StatusOK)
	w.Write(body) //nolint:errcheck
}

// ListFeatured returns active products flagged for the home page.
func (h *ProductHandler) ListFeatured(w http.ResponseWriter, r *http.Request) {
	products, err := h.store.ListFeaturedProducts(r.Context())
	if err != nil {
		log.Printf("ERROR: list featured products: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}
	writeJSON(w, http.StatusOK, toProductResponses(products))
}

// ListAll returns every product including inactive ones.
func (h *ProductHandler) ListAll(w http.ResponseWriter, r *http.Request) {
	products, err := h.store.ListAllProducts(r.Context())
	if err != nil {
		log.Printf("ERROR: list products: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}
	writeJSON(w, http.StatusOK, toProductResponses(products))
}

// Get returns a single product by ID.
func (h *ProductHandler) Get(w http.ResponseWriter, r *http.Request) {
	prodID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid product ID"})
		return
	}

	product, err := h.store.GetProduct(r.Context(), prodID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "product not found"})
			return
		}
		log.Printf("ERROR: get product: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	writeJSON(w, http.StatusOK, toProductResponse(product))
}

// Create adds a product at the end of the display order.
func (h *ProductHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createProductRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" || req.PriceCents == nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "name and price_cents are required"})
		return
	}
	if *req.PriceCents < 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "price_cents must be >= 0"})
		return
	}

	isActive := true
	if req.IsActive != nil {
		isActive = *req.IsActive
	}

	product, err := h.catalog.CreateProduct(r.Context(), database.CreateProductParams{
		Name:        req.Name,
		Description: database.Text(req.Description),
		ImagePath:   database.Text(req.ImagePath),
		PriceCents:  *req.PriceCents,
		IsActive:    isActive,
		Featured:    req.Featured,
	})
	if err != nil {
		if errors.Is(err, service.ErrSortOrderTaken) {
			writeJSON(w, http.StatusConflict, map[string]string{"error": "product order changed concurrently, please retry"})
			return
		}
		log.Printf("ERROR: create product: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	h.cache.Invalidate(r.Context())
	writeJSON(w, http.StatusCreated, toProductResponse(product))
}

// Update replaces a product's editable fields. Omitted flags keep their
// current value. Prices already captured on orders are unaffected.
func (h *ProductHandler) Update(w http.ResponseWriter, r *http.Request) {
	prodID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid product ID"})
		return
	}

	var req updateProductRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" || req.PriceCents == nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "name and price_cents are required"})
		return
	}
	if *req.PriceCents < 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "price_cents must be >= 0"})
		return
	}

	current, err := h.store.GetProduct(r.Context(), prodID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "product not found"})
			return
		}
		log.Printf("ERROR: update product: get: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	params := database.UpdateProductParams{
		ID:          prodID,
		Name:        req.Name,
		Description: database.Text(req.Description),
		ImagePath:   database.Text(req.ImagePath),
		PriceCents:  *req.PriceCents,
		IsActive:    current.IsActive,
		Featured:    current.Featured,
	}
	if req.IsActive != nil {
		params.IsActive = *req.IsActive
	}
	if req.Featured != nil {
		params.Featured = *req.Featured
	}

	product, err := h.store.UpdateProduct(r.Context(), params)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "product not found"})
			return
		}
		log.Printf("ERROR: update product: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	h.cache.Invalidate(r.Context())
	writeJSON(w, http.StatusOK, toProductResponse(product))
}

// Delete soft-deletes a product. Existing order items keep referencing it.
func (h *ProductHandler) Delete(w http.ResponseWriter, r *http.Request) {
	prodID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid product ID"})
		return
	}

	if _, err := h.store.SoftDeleteProduct(r.Context(), prodID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "product not found"})
			return
		}
		log.Printf("ERROR: delete product: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	h.cache.Invalidate(r.Context())
	w.WriteHeader(http.StatusNoContent)
}

// Reorder swaps the display positions of two products.
func (h *ProductHandler) Reorder(w http.ResponseWriter, r *http.Request) {
	var req reorderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	aID, errA := uuid.Parse(req.ProductAID)
	bID, errB := uuid.Parse(req.ProductBID)
	if errA != nil || errB != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "product_a_id and product_b_id must be valid IDs"})
		return
	}

	a, b, err := h.catalog.SwapSortOrder(r.Context(), aID, bID)
	if err != nil {
		h.writeCatalogError(w, "reorder products", err)
		return
	}

	h.cache.Invalidate(r.Context())
	writeJSON(w, http.StatusOK, map[string][]productResponse{
		"products": {toProductResponse(a), toProductResponse(b)},
	})
}

// SetSortOrder overwrites one product's display position.
func (h *ProductHandler) SetSortOrder(w http.ResponseWriter, r *http.Request) {
	prodID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid product ID"})
		return
	}

	var req sortOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if req.SortOrder == nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "sort_order is required"})
		return
	}

	product, err := h.catalog.SetSortOrder(r.Context(), prodID, *req.SortOrder)
	if err != nil {
		h.writeCatalogError(w, "set sort order", err)
		return
	}

	h.cache.Invalidate(r.Context())
	writeJSON(w, http.StatusOK, toProductResponse(product))
}

func (h *ProductHandler) writeCatalogError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, service.ErrSameProduct), errors.Is(err, service.ErrInvalidSortOrder):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	case errors.Is(err, service.ErrProductNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "product not found"})
	case errors.Is(err, service.ErrSortOrderTaken):
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
	default:
		log.Printf("ERROR: %s: %v", op, err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
	}
}
