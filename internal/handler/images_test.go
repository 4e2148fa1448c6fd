package handler_test

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/caramelapple/storefront/internal/handler"
	"github.com/caramelapple/storefront/internal/images"
	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

// memoryImages is an in-memory ImageStorage.
type memoryImages struct {
	files map[string][]byte
	seq   int
}

func newMemoryImages() *memoryImages {
	return &memoryImages{files: make(map[string][]byte)}
}

func (m *memoryImages) Save(folder string, data []byte) (images.Image, error) {
	if strings.Contains(folder, "..") {
		return images.Image{}, images.ErrInvalidPath
	}
	m.seq++
	name := time.Now().Format("150405") + "-" + string(rune('a'+m.seq)) + ".jpg"
	path := name
	if folder != "" {
		path = folder + "/" + name
	}
	m.files[path] = data
	return images.Image{Name: name, Path: path, URL: "/images/" + path, Size: int64(len(data))}, nil
}

func (m *memoryImages) Delete(path string) error {
	if _, ok := m.files[path]; !ok {
		return images.ErrNotFound
	}
	delete(m.files, path)
	return nil
}

func (m *memoryImages) List(folder string, limit int) ([]images.Image, error) {
	out := []images.Image{}
	for p := range m.files {
		if folder == "" || strings.HasPrefix(p, folder+"/") {
			out = append(out, images.Image{Path: p})
		}
	}
	return out, nil
}

func (m *memoryImages) Owns(path string) bool {
	return path != "" && !strings.Contains(path, "://")
}

func testPNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, 120, 60))
	for x := 0; x < 120; x++ {
		img.Set(x, 30, color.NRGBA{R: 200, A: 255})
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func multipartImage(t *testing.T, field string, data []byte, extra map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range extra {
		mw.WriteField(k, v)
	}
	if data != nil {
		fw, err := mw.CreateFormFile(field, "photo.png")
		if err != nil {
			t.Fatalf("create form file: %v", err)
		}
		fw.Write(data)
	}
	mw.Close()
	return &body, mw.FormDataContentType()
}

func setupImageRouter(products *mockProductStore, storage *memoryImages, c *mockCatalogCache) *chi.Mux {
	h := handler.NewImageHandler(storage, products, c)
	r := chi.NewRouter()
	r.Route("/admin/images", h.RegisterAdminRoutes)
	r.Route("/admin/products", h.RegisterProductRoutes)
	return r
}

func upload(router http.Handler, path string, body *bytes.Buffer, contentType string) *httptest.ResponseRecorder {
	req := httptest.NewRequest("POST", path, body)
	req.Header.Set("Content-Type", contentType)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func TestSetProductImage_ReplacesPreviousFile(t *testing.T) {
	products := newMockProductStore()
	p := products.add("Classic Caramel", 650, true)
	p.ImagePath = pgtype.Text{String: "products/old.jpg", Valid: true}
	products.products[p.ID] = p

	storage := newMemoryImages()
	storage.files["products/old.jpg"] = []byte("old")
	c := &mockCatalogCache{body: []byte("[]")}
	router := setupImageRouter(products, storage, c)

	body, ct := multipartImage(t, "image", testPNG(t), nil)
	rr := upload(router, "/admin/products/"+p.ID.String()+"/image", body, ct)

	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d; body: %s", rr.Code, rr.Body.String())
	}
	resp := decodeResponse(t, rr)
	newPath, _ := resp["image_path"].(string)
	if !strings.HasPrefix(newPath, "products/") || newPath == "products/old.jpg" {
		t.Fatalf("image_path: got %v", resp["image_path"])
	}
	if !images.IsNormalised(storage.files[newPath]) {
		t.Error("stored image must be an 800x800 jpeg")
	}
	if _, ok := storage.files["products/old.jpg"]; ok {
		t.Error("previous image should be removed")
	}
	if c.invalidated != 1 {
		t.Errorf("cache invalidations: got %d, want 1", c.invalidated)
	}
}

func TestSetProductImage_KeepsExternalURL(t *testing.T) {
	products := newMockProductStore()
	p := products.add("Pecan Crunch", 800, true)
	p.ImagePath = pgtype.Text{String: "https://cdn.example.com/pecan.jpg", Valid: true}
	products.products[p.ID] = p
	storage := newMemoryImages()
	router := setupImageRouter(products, storage, &mockCatalogCache{})

	body, ct := multipartImage(t, "image", testPNG(t), nil)
	rr := upload(router, "/admin/products/"+p.ID.String()+"/image", body, ct)

	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d; body: %s", rr.Code, rr.Body.String())
	}
	if len(storage.files) != 1 {
		t.Errorf("files: got %d, want 1", len(storage.files))
	}
}

func TestSetProductImage_Rejected(t *testing.T) {
	products := newMockProductStore()
	p := products.add("Classic Caramel", 650, true)

	tests := []struct {
		name  string
		path  string
		field string
		data  []byte
		want  int
	}{
		{"not an image", "/admin/products/" + p.ID.String() + "/image", "image", []byte("plain text"), http.StatusBadRequest},
		{"missing file", "/admin/products/" + p.ID.String() + "/image", "other", testPNG(t), http.StatusBadRequest},
		{"unknown product", "/admin/products/00000000-0000-0000-0000-000000000001/image", "image", testPNG(t), http.StatusNotFound},
		{"bad id", "/admin/products/nope/image", "image", testPNG(t), http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			storage := newMemoryImages()
			router := setupImageRouter(products, storage, &mockCatalogCache{})

			body, ct := multipartImage(t, tt.field, tt.data, nil)
			rr := upload(router, tt.path, body, ct)

			if rr.Code != tt.want {
				t.Errorf("status: got %d, want %d; body: %s", rr.Code, tt.want, rr.Body.String())
			}
			if len(storage.files) != 0 {
				t.Error("rejected uploads must not be stored")
			}
		})
	}
}

func TestClearProductImage(t *testing.T) {
	products := newMockProductStore()
	p := products.add("Classic Caramel", 650, true)
	p.ImagePath = pgtype.Text{String: "products/a.jpg", Valid: true}
	products.products[p.ID] = p
	storage := newMemoryImages()
	storage.files["products/a.jpg"] = []byte("a")
	c := &mockCatalogCache{}

	rr := doRequest(t, setupImageRouter(products, storage, c), "DELETE", "/admin/products/"+p.ID.String()+"/image", nil)

	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d", rr.Code)
	}
	if resp := decodeResponse(t, rr); resp["image_path"] != nil {
		t.Errorf("image_path: got %v", resp["image_path"])
	}
	if len(storage.files) != 0 {
		t.Error("file should be removed")
	}
	if c.invalidated != 1 {
		t.Errorf("cache invalidations: got %d", c.invalidated)
	}
}

func TestImageLibrary(t *testing.T) {
	storage := newMemoryImages()
	router := setupImageRouter(newMockProductStore(), storage, &mockCatalogCache{})

	body, ct := multipartImage(t, "image", testPNG(t), map[string]string{"folder": "hero"})
	rr := upload(router, "/admin/images", body, ct)
	if rr.Code != http.StatusCreated {
		t.Fatalf("upload status: got %d; body: %s", rr.Code, rr.Body.String())
	}
	path := decodeResponse(t, rr)["path"].(string)
	if !strings.HasPrefix(path, "hero/") {
		t.Fatalf("path: got %q", path)
	}

	rr = doRequest(t, router, "GET", "/admin/images?folder=hero", nil)
	if rr.Code != http.StatusOK || len(decodeList(t, rr)) != 1 {
		t.Fatalf("list: got %d", rr.Code)
	}

	rr = doRequest(t, router, "GET", "/admin/images?limit=0", nil)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("bad limit: got %d", rr.Code)
	}

	rr = doRequest(t, router, "DELETE", "/admin/images/"+path, nil)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("delete status: got %d", rr.Code)
	}
	rr = doRequest(t, router, "DELETE", "/admin/images/"+path, nil)
	if rr.Code != http.StatusNotFound {
		t.Errorf("second delete: got %d", rr.Code)
	}
}
