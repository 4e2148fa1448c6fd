package handler

import (
	"context"
	"errors"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/caramelapple/storefront/internal/database"
	"github.com/caramelapple/storefront/internal/directory"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const maxStoreCSV = 1 << 20

// StoreStore defines the database methods needed to read the store directory.
// Satisfied by *database.Queries.
type StoreStore interface {
	ListStores(ctx context.Context) ([]database.Store, error)
	GetStore(ctx context.Context, id uuid.UUID) (database.Store, error)
}

// StoreImporter replaces the directory atomically.
// Satisfied by *service.DirectoryService.
type StoreImporter interface {
	ReplaceStores(ctx context.Context, stores []database.CreateStoreParams) (int64, []database.Store, error)
}

// StoreHandler serves the "where to buy" directory.
type StoreHandler struct {
	store    StoreStore
	importer StoreImporter
}

// NewStoreHandler creates a new StoreHandler.
func NewStoreHandler(store StoreStore, importer StoreImporter) *StoreHandler {
	return &StoreHandler{store: store, importer: importer}
}

// RegisterPublicRoutes registers read endpoints. Expected at /stores.
func (h *StoreHandler) RegisterPublicRoutes(r chi.Router) {
	r.Get("/", h.List)
	r.Get("/{id}", h.Get)
}

// RegisterAdminRoutes registers directory maintenance. Expected at /admin/stores.
func (h *StoreHandler) RegisterAdminRoutes(r chi.Router) {
	r.Get("/", h.List)
	r.Post("/import", h.Import)
}

type storeResponse struct {
	ID        uuid.UUID        `json:"id"`
	Name      string           `json:"name"`
	Contact   *string          `json:"contact"`
	Address   string           `json:"address"`
	Parsed    database.Address `json:"parsed_address"`
	Phone     *string          `json:"phone"`
	CreatedAt time.Time        `json:"created_at"`
	UpdatedAt time.Time        `json:"updated_at"`
}

func toStoreResponse(s database.Store) storeResponse {
	return storeResponse{
		ID:        s.ID,
		Name:      s.Name,
		Contact:   database.TextPtr(s.Contact),
		Address:   s.Address,
		Parsed:    directory.ParseAddress(s.Address),
		Phone:     database.TextPtr(s.Phone),
		CreatedAt: s.CreatedAt,
		UpdatedAt: s.UpdatedAt,
	}
}

func toStoreResponses(stores []database.Store) []storeResponse {
	resp := make([]storeResponse, len(stores))
	for i, s := range stores {
		resp[i] = toStoreResponse(s)
	}
	return resp
}

// List returns every store ordered by name.
func (h *StoreHandler) List(w http.ResponseWriter, r *http.Request) {
	stores, err := h.store.ListStores(r.Context())
	if err != nil {
		log.Printf("ERROR: list stores: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}
	writeJSON(w, http.StatusOK, toStoreResponses(stores))
}

// Get returns one store.
func (h *StoreHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid store ID"})
		return
	}

	store, err := h.store.GetStore(r.Context(), id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "store not found"})
			return
		}
		log.Printf("ERROR: get store: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	writeJSON(w, http.StatusOK, toStoreResponse(store))
}

// Import replaces the directory with the uploaded CSV. The file may be
// sent as a multipart "file" field or as a raw text/csv body.
func (h *StoreHandler) Import(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxStoreCSV)

	var src io.Reader = r.Body
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		file, _, err := r.FormFile("file")
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "file is required"})
			return
		}
		defer file.Close()
		src = file
	}

	stores, skipped, err := directory.ReadCSV(src)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{"error": err.Error(), "skipped": skipped})
		return
	}

	removed, created, err := h.importer.ReplaceStores(r.Context(), stores)
	if err != nil {
		log.Printf("ERROR: import stores: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	log.Printf("store directory replaced: %d removed, %d imported, %d skipped", removed, len(created), len(skipped))
	if skipped == nil {
		skipped = []directory.Skipped{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"imported": len(created),
		"removed":  removed,
		"skipped":  skipped,
		"stores":   toStoreResponses(created),
	})
}
