package handler_test

import (
	"bytes"
	"context"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"testing"

	"github.com/caramelapple/storefront/internal/database"
	"github.com/caramelapple/storefront/internal/handler"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

type mockStoreDirectory struct {
	stores     map[uuid.UUID]database.Store
	replaceErr error
	replaced   int
}

func newMockStoreDirectory() *mockStoreDirectory {
	return &mockStoreDirectory{stores: make(map[uuid.UUID]database.Store)}
}

func (m *mockStoreDirectory) add(name, address string) database.Store {
	s := database.Store{ID: uuid.New(), Name: name, Address: address}
	m.stores[s.ID] = s
	return s
}

func (m *mockStoreDirectory) ListStores(context.Context) ([]database.Store, error) {
	out := []database.Store{}
	for _, s := range m.stores {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *mockStoreDirectory) GetStore(_ context.Context, id uuid.UUID) (database.Store, error) {
	s, ok := m.stores[id]
	if !ok {
		return database.Store{}, pgx.ErrNoRows
	}
	return s, nil
}

func (m *mockStoreDirectory) ReplaceStores(_ context.Context, stores []database.CreateStoreParams) (int64, []database.Store, error) {
	m.replaced++
	if m.replaceErr != nil {
		return 0, nil, m.replaceErr
	}
	removed := int64(len(m.stores))
	m.stores = make(map[uuid.UUID]database.Store)
	created := make([]database.Store, 0, len(stores))
	for _, arg := range stores {
		s := database.Store{ID: uuid.New(), Name: arg.Name, Address: arg.Address, Contact: arg.Contact, Phone: arg.Phone}
		m.stores[s.ID] = s
		created = append(created, s)
	}
	return removed, created, nil
}

func setupStoreRouter(m *mockStoreDirectory) *chi.Mux {
	h := handler.NewStoreHandler(m, m)
	r := chi.NewRouter()
	r.Route("/stores", h.RegisterPublicRoutes)
	r.Route("/admin/stores", h.RegisterAdminRoutes)
	return r
}

const storeCSV = "Store,Contact,Address,Phone\n" +
	"Orchard Market,Dana,\"12 Main St, Provo, UT 84601\",555-0100\n" +
	"Broken Row,,,\n" +
	"Corner Deli,,\"5521 Timpanogos Hwy, Highland UT 84003\",\n"

func TestStoreList_ParsesAddresses(t *testing.T) {
	m := newMockStoreDirectory()
	m.add("Zed's", "1 Last St")
	m.add("Orchard Market", "12 Main St, Provo, UT 84601")

	rr := doRequest(t, setupStoreRouter(m), "GET", "/stores", nil)

	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d", rr.Code)
	}
	list := decodeList(t, rr)
	if len(list) != 2 || list[0]["name"] != "Orchard Market" {
		t.Fatalf("list: got %v", list)
	}
	parsed := list[0]["parsed_address"].(map[string]interface{})
	if parsed["city"] != "Provo" || parsed["state"] != "UT" || parsed["zip"] != "84601" {
		t.Errorf("parsed address: got %v", parsed)
	}
}

func TestStoreGet(t *testing.T) {
	m := newMockStoreDirectory()
	s := m.add("Orchard Market", "12 Main St, Provo, UT 84601")
	router := setupStoreRouter(m)

	tests := []struct {
		name string
		path string
		want int
	}{
		{"found", "/stores/" + s.ID.String(), http.StatusOK},
		{"missing", "/stores/" + uuid.NewString(), http.StatusNotFound},
		{"bad id", "/stores/nope", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if rr := doRequest(t, router, "GET", tt.path, nil); rr.Code != tt.want {
				t.Errorf("status: got %d, want %d", rr.Code, tt.want)
			}
		})
	}
}

func TestStoreImport_RawCSV(t *testing.T) {
	m := newMockStoreDirectory()
	m.add("Old Store", "somewhere")

	req := httptest.NewRequest("POST", "/admin/stores/import", strings.NewReader(storeCSV))
	req.Header.Set("Content-Type", "text/csv")
	rr := httptest.NewRecorder()
	setupStoreRouter(m).ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d; body: %s", rr.Code, rr.Body.String())
	}
	resp := decodeResponse(t, rr)
	if resp["imported"] != float64(2) || resp["removed"] != float64(1) {
		t.Errorf("counts: got %v", resp)
	}
	if skipped := resp["skipped"].([]interface{}); len(skipped) != 1 {
		t.Errorf("skipped: got %v", skipped)
	}
	if len(m.stores) != 2 {
		t.Errorf("directory size: got %d, want 2", len(m.stores))
	}
}

func TestStoreImport_Multipart(t *testing.T) {
	m := newMockStoreDirectory()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", "stores.csv")
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	fw.Write([]byte(storeCSV))
	mw.Close()

	req := httptest.NewRequest("POST", "/admin/stores/import", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rr := httptest.NewRecorder()
	setupStoreRouter(m).ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d; body: %s", rr.Code, rr.Body.String())
	}
	if len(m.stores) != 2 {
		t.Errorf("directory size: got %d, want 2", len(m.stores))
	}
}

func TestStoreImport_Rejected(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		err      error
		want     int
		replaced int
	}{
		{"header only", "Store,Contact,Address,Phone\n", nil, http.StatusBadRequest, 0},
		{"no valid rows", "Store,Contact,Address,Phone\nNameless,,,\n", nil, http.StatusBadRequest, 0},
		{"storage failure", storeCSV, errors.New("db down"), http.StatusInternalServerError, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newMockStoreDirectory()
			m.replaceErr = tt.err

			req := httptest.NewRequest("POST", "/admin/stores/import", strings.NewReader(tt.body))
			rr := httptest.NewRecorder()
			setupStoreRouter(m).ServeHTTP(rr, req)

			if rr.Code != tt.want {
				t.Errorf("status: got %d, want %d", rr.Code, tt.want)
			}
			if m.replaced != tt.replaced {
				t.Errorf("replace calls: got %d, want %d", m.replaced, tt.replaced)
			}
		})
	}
}

func TestStoreImport_MultipartMissingFile(t *testing.T) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	mw.WriteField("note", "forgot the file")
	mw.Close()

	req := httptest.NewRequest("POST", "/admin/stores/import", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rr := httptest.NewRecorder()
	setupStoreRouter(newMockStoreDirectory()).ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Errorf("status: got %d, want %d", rr.Code, http.StatusBadRequest)
	}
}
