package handler

import (
	"context"
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"

	"github.com/caramelapple/storefront/internal/cache"
	"github.com/caramelapple/storefront/internal/database"
	"github.com/caramelapple/storefront/internal/images"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// multipart overhead allowed on top of the image itself
const uploadSlack = 1 << 20

const productImageFolder = "products"

// ImageStorage persists processed images. Satisfied by *images.Store.
type ImageStorage interface {
	Save(folder string, data []byte) (images.Image, error)
	Delete(path string) error
	List(folder string, limit int) ([]images.Image, error)
	Owns(path string) bool
}

// ProductImageStore defines the product queries used for image changes.
// Satisfied by *database.Queries.
type ProductImageStore interface {
	GetProduct(ctx context.Context, id uuid.UUID) (database.Product, error)
	SetProductImage(ctx context.Context, arg database.SetProductImageParams) (database.Product, error)
}

// ImageHandler handles image uploads for the catalog and site content.
type ImageHandler struct {
	storage  ImageStorage
	products ProductImageStore
	cache    CatalogCache
	process  func(io.Reader) ([]byte, error)
}

// NewImageHandler creates a new ImageHandler.
func NewImageHandler(storage ImageStorage, products ProductImageStore, c CatalogCache) *ImageHandler {
	if c == nil {
		c = cache.Noop{}
	}
	return &ImageHandler{storage: storage, products: products, cache: c, process: images.Process}
}

// RegisterAdminRoutes registers the image library. Expected at /admin/images.
func (h *ImageHandler) RegisterAdminRoutes(r chi.Router) {
	r.Get("/", h.List)
	r.Post("/", h.Upload)
	r.Delete("/*", h.Delete)
}

// RegisterProductRoutes registers per-product image endpoints alongside
// the product routes at /admin/products.
func (h *ImageHandler) RegisterProductRoutes(r chi.Router) {
	r.Post("/{id}/image", h.SetProductImage)
	r.Delete("/{id}/image", h.ClearProductImage)
}

// List handles GET /admin/images?folder=&limit=.
func (h *ImageHandler) List(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "limit must be a positive integer"})
			return
		}
		limit = n
	}

	list, err := h.storage.List(r.URL.Query().Get("folder"), limit)
	if err != nil {
		if errors.Is(err, images.ErrInvalidPath) {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid folder"})
			return
		}
		log.Printf("ERROR: list images: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// Upload handles POST /admin/images with a multipart "image" field and an
// optional "folder".
func (h *ImageHandler) Upload(w http.ResponseWriter, r *http.Request) {
	data, ok := h.readUpload(w, r)
	if !ok {
		return
	}

	img, err := h.storage.Save(r.FormValue("folder"), data)
	if err != nil {
		if errors.Is(err, images.ErrInvalidPath) {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid folder"})
			return
		}
		log.Printf("ERROR: save image: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to upload image"})
		return
	}
	writeJSON(w, http.StatusCreated, img)
}

// Delete handles DELETE /admin/images/{path}.
func (h *ImageHandler) Delete(w http.ResponseWriter, r *http.Request) {
	err := h.storage.Delete(chi.URLParam(r, "*"))
	switch {
	case err == nil:
		w.WriteHeader(http.StatusNoContent)
	case errors.Is(err, images.ErrInvalidPath):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid image path"})
	case errors.Is(err, images.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "image not found"})
	default:
		log.Printf("ERROR: delete image: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to delete image"})
	}
}

// SetProductImage handles POST /admin/products/{id}/image. The previous
// file is removed once the product points at the new one.
func (h *ImageHandler) SetProductImage(w http.ResponseWriter, r *http.Request) {
	prodID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid product ID"})
		return
	}

	current, ok := h.getProduct(w, r, prodID)
	if !ok {
		return
	}

	data, ok := h.readUpload(w, r)
	if !ok {
		return
	}

	img, err := h.storage.Save(productImageFolder, data)
	if err != nil {
		log.Printf("ERROR: save product image: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to upload image"})
		return
	}

	product, err := h.products.SetProductImage(r.Context(), database.SetProductImageParams{
		ID:        prodID,
		ImagePath: database.Text(img.Path),
	})
	if err != nil {
		h.discard(img.Path)
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "product not found"})
			return
		}
		log.Printf("ERROR: set product image: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	h.discard(current.ImagePath.String)
	h.cache.Invalidate(r.Context())
	writeJSON(w, http.StatusOK, toProductResponse(product))
}

// ClearProductImage handles DELETE /admin/products/{id}/image.
func (h *ImageHandler) ClearProductImage(w http.ResponseWriter, r *http.Request) {
	prodID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid product ID"})
		return
	}

	current, ok := h.getProduct(w, r, prodID)
	if !ok {
		return
	}

	product, err := h.products.SetProductImage(r.Context(), database.SetProductImageParams{ID: prodID})
	if err != nil {
		log.Printf("ERROR: clear product image: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	h.discard(current.ImagePath.String)
	h.cache.Invalidate(r.Context())
	writeJSON(w, http.StatusOK, toProductResponse(product))
}

func (h *ImageHandler) getProduct(w http.ResponseWriter, r *http.Request, id uuid.UUID) (database.Product, bool) {
	p, err := h.products.GetProduct(r.Context(), id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "product not found"})
			return database.Product{}, false
		}
		log.Printf("ERROR: get product: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return database.Product{}, false
	}
	return p, true
}

// readUpload pulls the "image" part and normalises it. On failure the
// response has already been written.
func (h *ImageHandler) readUpload(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, images.MaxUploadBytes+uploadSlack)
	file, _, err := r.FormFile("image")
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			writeJSON(w, http.StatusRequestEntityTooLarge, map[string]string{"error": images.ErrTooLarge.Error()})
			return nil, false
		}
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "image is required"})
		return nil, false
	}
	defer file.Close()

	data, err := h.process(file)
	switch {
	case err == nil:
		return data, true
	case errors.Is(err, images.ErrTooLarge):
		writeJSON(w, http.StatusRequestEntityTooLarge, map[string]string{"error": err.Error()})
	case errors.Is(err, images.ErrUnsupportedType), errors.Is(err, images.ErrUndecodable):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	default:
		log.Printf("ERROR: process image: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to process image"})
	}
	return nil, false
}

// discard removes a file this store owns; external URLs are left alone.
func (h *ImageHandler) discard(path string) {
	if path == "" || !h.storage.Owns(path) {
		return
	}
	if err := h.storage.Delete(path); err != nil && !errors.Is(err, images.ErrNotFound) {
		log.Printf("WARNING: remove image %s: %v", path, err)
	}
}
