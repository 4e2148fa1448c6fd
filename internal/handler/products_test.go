package handler_test

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"testing"
	"time"

	"github.com/caramelapple/storefront/internal/database"
	"github.com/caramelapple/storefront/internal/handler"
	"github.com/caramelapple/storefront/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

// --- Mock store ---

type mockProductStore struct {
	products   map[uuid.UUID]database.Product
	listCalls  int
	nextOrder  int32
	swapCalls  int
	swapErr    error
	setSortErr error
}

func newMockProductStore() *mockProductStore {
	return &mockProductStore{products: make(map[uuid.UUID]database.Product)}
}

func (m *mockProductStore) add(name string, cents int64, active bool) database.Product {
	m.nextOrder++
	p := database.Product{
		ID:         uuid.New(),
		Name:       name,
		PriceCents: cents,
		IsActive:   active,
		SortOrder:  pgtype.Int4{Int32: m.nextOrder, Valid: true},
		CreatedAt:  time.Now(),
		UpdatedAt:  time.Now(),
	}
	m.products[p.ID] = p
	return p
}

func (m *mockProductStore) sorted(keep func(database.Product) bool) []database.Product {
	result := []database.Product{}
	for _, p := range m.products {
		if keep(p) {
			result = append(result, p)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].SortOrder.Int32 < result[j].SortOrder.Int32 })
	return result
}

func (m *mockProductStore) ListActiveProducts(_ context.Context) ([]database.Product, error) {
	m.listCalls++
	return m.sorted(func(p database.Product) bool { return p.IsActive }), nil
}

func (m *mockProductStore) ListFeaturedProducts(_ context.Context) ([]database.Product, error) {
	return m.sorted(func(p database.Product) bool { return p.IsActive && p.Featured }), nil
}

func (m *mockProductStore) ListAllProducts(_ context.Context) ([]database.Product, error) {
	return m.sorted(func(database.Product) bool { return true }), nil
}

func (m *mockProductStore) GetProduct(_ context.Context, id uuid.UUID) (database.Product, error) {
	p, ok := m.products[id]
	if !ok {
		return database.Product{}, pgx.ErrNoRows
	}
	return p, nil
}

func (m *mockProductStore) UpdateProduct(_ context.Context, arg database.UpdateProductParams) (database.Product, error) {
	p, ok := m.products[arg.ID]
	if !ok {
		return database.Product{}, pgx.ErrNoRows
	}
	p.Name = arg.Name
	p.Description = arg.Description
	p.ImagePath = arg.ImagePath
	p.PriceCents = arg.PriceCents
	p.IsActive = arg.IsActive
	p.Featured = arg.Featured
	m.products[p.ID] = p
	return p, nil
}

func (m *mockProductStore) SoftDeleteProduct(_ context.Context, id uuid.UUID) (uuid.UUID, error) {
	p, ok := m.products[id]
	if !ok || !p.IsActive {
		return uuid.Nil, pgx.ErrNoRows
	}
	p.IsActive = false
	m.products[p.ID] = p
	return p.ID, nil
}

// The mock store doubles as the catalog service.

func (m *mockProductStore) CreateProduct(_ context.Context, arg database.CreateProductParams) (database.Product, error) {
	p := m.add(arg.Name, arg.PriceCents, arg.IsActive)
	p.Description = arg.Description
	p.Featured = arg.Featured
	m.products[p.ID] = p
	return p, nil
}

func (m *mockProductStore) SwapSortOrder(_ context.Context, aID, bID uuid.UUID) (database.Product, database.Product, error) {
	m.swapCalls++
	if m.swapErr != nil {
		return database.Product{}, database.Product{}, m.swapErr
	}
	if aID == bID {
		return database.Product{}, database.Product{}, service.ErrSameProduct
	}
	a, okA := m.products[aID]
	b, okB := m.products[bID]
	if !okA || !okB {
		return database.Product{}, database.Product{}, service.ErrProductNotFound
	}
	a.SortOrder, b.SortOrder = b.SortOrder, a.SortOrder
	m.products[aID], m.products[bID] = a, b
	return a, b, nil
}

func (m *mockProductStore) SetSortOrder(_ context.Context, id uuid.UUID, sortOrder int32) (database.Product, error) {
	if m.setSortErr != nil {
		return database.Product{}, m.setSortErr
	}
	if sortOrder < 1 {
		return database.Product{}, service.ErrInvalidSortOrder
	}
	p, ok := m.products[id]
	if !ok {
		return database.Product{}, service.ErrProductNotFound
	}
	p.SortOrder = pgtype.Int4{Int32: sortOrder, Valid: true}
	m.products[id] = p
	return p, nil
}

func (m *mockProductStore) SetProductImage(_ context.Context, arg database.SetProductImageParams) (database.Product, error) {
	p, ok := m.products[arg.ID]
	if !ok {
		return database.Product{}, pgx.ErrNoRows
	}
	p.ImagePath = arg.ImagePath
	m.products[p.ID] = p
	return p, nil
}

type mockCatalogCache struct {
	body        []byte
	invalidated int
}

func (c *mockCatalogCache) Get(context.Context) ([]byte, bool) { return c.body, c.body != nil }
func (c *mockCatalogCache) Set(_ context.Context, body []byte)  { c.body = body }
func (c *mockCatalogCache) Invalidate(context.Context)          { c.body = nil; c.invalidated++ }

// --- Helpers ---

func setupProductRouter(store *mockProductStore, c *mockCatalogCache) *chi.Mux {
	h := handler.NewProductHandler(store, store, c)
	r := chi.NewRouter()
	h.RegisterRoutes(r)
	r.Route("/admin/products", h.RegisterAdminRoutes)
	return r
}

// --- Public catalog ---

func TestProductList_ActiveInSortOrder(t *testing.T) {
	store := newMockProductStore()
	store.add("Classic Caramel", 500, true)
	store.add("Retired", 700, false)
	store.add("Sea Salt", 650, true)
	router := setupProductRouter(store, &mockCatalogCache{})

	rr := doRequest(t, router, "GET", "/products", nil)

	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusOK)
	}
	resp := decodeList(t, rr)
	if len(resp) != 2 {
		t.Fatalf("expected 2 products, got %d", len(resp))
	}
	if resp[0]["name"] != "Classic Caramel" || resp[1]["name"] != "Sea Salt" {
		t.Errorf("order: got %v, %v", resp[0]["name"], resp[1]["name"])
	}
	if resp[1]["price"] != "6.50" || resp[1]["price_cents"] != float64(650) {
		t.Errorf("price: got %v / %v", resp[1]["price"], resp[1]["price_cents"])
	}
}

func TestProductList_ServedFromCache(t *testing.T) {
	store := newMockProductStore()
	store.add("Classic Caramel", 500, true)
	c := &mockCatalogCache{}
	router := setupProductRouter(store, c)

	first := doRequest(t, router, "GET", "/products", nil)
	if first.Header().Get("X-Cache") != "MISS" {
		t.Errorf("first request: X-Cache %q", first.Header().Get("X-Cache"))
	}
	second := doRequest(t, router, "GET", "/products", nil)
	if second.Header().Get("X-Cache") != "HIT" {
		t.Errorf("second request: X-Cache %q", second.Header().Get("X-Cache"))
	}
	if store.listCalls != 1 {
		t.Errorf("database reads: got %d, want 1", store.listCalls)
	}
	if first.Body.String() != second.Body.String() {
		t.Error("cached body differs from fresh body")
	}
}

func TestProductList_NilCache(t *testing.T) {
	store := newMockProductStore()
	store.add("Classic Caramel", 500, true)
	h := handler.NewProductHandler(store, store, nil)
	r := chi.NewRouter()
	h.RegisterRoutes(r)

	doRequest(t, r, "GET", "/products", nil)
	doRequest(t, r, "GET", "/products", nil)
	if store.listCalls != 2 {
		t.Errorf("database reads: got %d, want 2", store.listCalls)
	}
}

func TestProductFeatured(t *testing.T) {
	store := newMockProductStore()
	p := store.add("Featured", 500, true)
	p.Featured = true
	store.products[p.ID] = p
	store.add("Plain", 500, true)

	rr := doRequest(t, setupProductRouter(store, &mockCatalogCache{}), "GET", "/products/featured", nil)
	resp := decodeList(t, rr)
	if len(resp) != 1 || resp[0]["name"] != "Featured" {
		t.Errorf("featured: got %v", resp)
	}
}

// --- Admin ---

func TestAdminProductList_IncludesInactive(t *testing.T) {
	store := newMockProductStore()
	store.add("Active", 500, true)
	store.add("Inactive", 500, false)

	rr := doRequest(t, setupProductRouter(store, &mockCatalogCache{}), "GET", "/admin/products", nil)
	if resp := decodeList(t, rr); len(resp) != 2 {
		t.Errorf("expected 2 products, got %d", len(resp))
	}
}

func TestProductCreate_AppendsAndInvalidates(t *testing.T) {
	store := newMockProductStore()
	store.add("Existing", 500, true)
	c := &mockCatalogCache{body: []byte(`[]`)}
	router := setupProductRouter(store, c)

	rr := doRequest(t, router, "POST", "/admin/products", map[string]interface{}{
		"name":        "Pecan Crunch",
		"description": "Rolled in pecans",
		"price_cents": 795,
	})

	if rr.Code != http.StatusCreated {
		t.Fatalf("status: got %d, want %d; body: %s", rr.Code, http.StatusCreated, rr.Body.String())
	}
	resp := decodeResponse(t, rr)
	if resp["sort_order"] != float64(2) {
		t.Errorf("sort_order: got %v, want 2", resp["sort_order"])
	}
	if resp["is_active"] != true {
		t.Error("new products default to active")
	}
	if resp["price"] != "7.95" {
		t.Errorf("price: got %v", resp["price"])
	}
	if c.invalidated != 1 {
		t.Errorf("cache invalidations: got %d, want 1", c.invalidated)
	}
}

func TestProductCreate_Validation(t *testing.T) {
	router := setupProductRouter(newMockProductStore(), &mockCatalogCache{})

	tests := []struct {
		name string
		body map[string]interface{}
	}{
		{"missing name", map[string]interface{}{"price_cents": 100}},
		{"missing price", map[string]interface{}{"name": "X"}},
		{"negative price", map[string]interface{}{"name": "X", "price_cents": -1}},
		{"fractional price", map[string]interface{}{"name": "X", "price_cents": 1.5}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := doRequest(t, router, "POST", "/admin/products", tt.body)
			if rr.Code != http.StatusBadRequest {
				t.Errorf("status: got %d, want %d", rr.Code, http.StatusBadRequest)
			}
		})
	}
}

func TestProductGet(t *testing.T) {
	store := newMockProductStore()
	p := store.add("Classic", 500, false)
	router := setupProductRouter(store, &mockCatalogCache{})

	if rr := doRequest(t, router, "GET", "/admin/products/"+p.ID.String(), nil); rr.Code != http.StatusOK {
		t.Errorf("inactive product must be readable by admins, got %d", rr.Code)
	}
	if rr := doRequest(t, router, "GET", "/admin/products/"+uuid.New().String(), nil); rr.Code != http.StatusNotFound {
		t.Errorf("missing: got %d", rr.Code)
	}
	if rr := doRequest(t, router, "GET", "/admin/products/nope", nil); rr.Code != http.StatusBadRequest {
		t.Errorf("bad id: got %d", rr.Code)
	}
}

func TestProductUpdate_KeepsOmittedFlags(t *testing.T) {
	store := newMockProductStore()
	p := store.add("Classic", 500, true)
	p.Featured = true
	store.products[p.ID] = p
	c := &mockCatalogCache{}
	router := setupProductRouter(store, c)

	rr := doRequest(t, router, "PUT", "/admin/products/"+p.ID.String(), map[string]interface{}{
		"name":        "Classic Caramel",
		"price_cents": 550,
	})

	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want %d; body: %s", rr.Code, http.StatusOK, rr.Body.String())
	}
	got := store.products[p.ID]
	if got.Name != "Classic Caramel" || got.PriceCents != 550 {
		t.Errorf("fields not updated: %+v", got)
	}
	if !got.IsActive || !got.Featured {
		t.Error("omitted flags must keep their values")
	}
	if c.invalidated != 1 {
		t.Errorf("cache invalidations: got %d, want 1", c.invalidated)
	}
}

func TestProductUpdate_NotFound(t *testing.T) {
	router := setupProductRouter(newMockProductStore(), &mockCatalogCache{})
	rr := doRequest(t, router, "PUT", "/admin/products/"+uuid.New().String(), map[string]interface{}{
		"name": "X", "price_cents": 1,
	})
	if rr.Code != http.StatusNotFound {
		t.Errorf("status: got %d, want %d", rr.Code, http.StatusNotFound)
	}
}

func TestProductDelete_SoftDeletes(t *testing.T) {
	store := newMockProductStore()
	p := store.add("Classic", 500, true)
	c := &mockCatalogCache{}
	router := setupProductRouter(store, c)

	rr := doRequest(t, router, "DELETE", "/admin/products/"+p.ID.String(), nil)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusNoContent)
	}
	if got, ok := store.products[p.ID]; !ok || got.IsActive {
		t.Error("expected the row to remain with is_active=false")
	}
	if c.invalidated != 1 {
		t.Errorf("cache invalidations: got %d, want 1", c.invalidated)
	}

	rr = doRequest(t, router, "DELETE", "/admin/products/"+p.ID.String(), nil)
	if rr.Code != http.StatusNotFound {
		t.Errorf("second delete: got %d, want %d", rr.Code, http.StatusNotFound)
	}
}

func TestProductReorder(t *testing.T) {
	store := newMockProductStore()
	a := store.add("A", 100, true)
	b := store.add("B", 100, true)
	c := &mockCatalogCache{}
	router := setupProductRouter(store, c)

	rr := doRequest(t, router, "POST", "/admin/products/reorder", map[string]string{
		"product_a_id": a.ID.String(),
		"product_b_id": b.ID.String(),
	})

	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want %d; body: %s", rr.Code, http.StatusOK, rr.Body.String())
	}
	var resp struct {
		Products []struct {
			ID        uuid.UUID `json:"id"`
			SortOrder int32     `json:"sort_order"`
		} `json:"products"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Products) != 2 || resp.Products[0].SortOrder != 2 || resp.Products[1].SortOrder != 1 {
		t.Errorf("swapped keys: got %+v", resp.Products)
	}
	if c.invalidated != 1 {
		t.Errorf("cache invalidations: got %d, want 1", c.invalidated)
	}
}

func TestProductReorder_Errors(t *testing.T) {
	store := newMockProductStore()
	a := store.add("A", 100, true)
	router := setupProductRouter(store, &mockCatalogCache{})

	tests := []struct {
		name string
		body map[string]string
		want int
	}{
		{"bad id", map[string]string{"product_a_id": "x", "product_b_id": a.ID.String()}, http.StatusBadRequest},
		{"same product", map[string]string{"product_a_id": a.ID.String(), "product_b_id": a.ID.String()}, http.StatusBadRequest},
		{"unknown product", map[string]string{"product_a_id": a.ID.String(), "product_b_id": uuid.New().String()}, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := doRequest(t, router, "POST", "/admin/products/reorder", tt.body)
			if rr.Code != tt.want {
				t.Errorf("status: got %d, want %d", rr.Code, tt.want)
			}
		})
	}
}

func TestProductSetSortOrder(t *testing.T) {
	store := newMockProductStore()
	p := store.add("A", 100, true)
	router := setupProductRouter(store, &mockCatalogCache{})
	path := "/admin/products/" + p.ID.String() + "/sort-order"

	if rr := doRequest(t, router, "PUT", path, map[string]int{"sort_order": 7}); rr.Code != http.StatusOK {
		t.Fatalf("status: got %d; body: %s", rr.Code, rr.Body.String())
	}
	if store.products[p.ID].SortOrder.Int32 != 7 {
		t.Errorf("sort_order: got %d", store.products[p.ID].SortOrder.Int32)
	}

	if rr := doRequest(t, router, "PUT", path, map[string]int{"sort_order": 0}); rr.Code != http.StatusBadRequest {
		t.Errorf("zero: got %d", rr.Code)
	}
	if rr := doRequest(t, router, "PUT", path, map[string]string{}); rr.Code != http.StatusBadRequest {
		t.Errorf("missing: got %d", rr.Code)
	}

	store.setSortErr = service.ErrSortOrderTaken
	if rr := doRequest(t, router, "PUT", path, map[string]int{"sort_order": 3}); rr.Code != http.StatusConflict {
		t.Errorf("taken: got %d", rr.Code)
	}
}
