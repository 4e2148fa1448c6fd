package handler_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/caramelapple/storefront/internal/auth"
	"github.com/caramelapple/storefront/internal/database"
	"github.com/caramelapple/storefront/internal/enum"
	"github.com/caramelapple/storefront/internal/handler"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"golang.org/x/crypto/bcrypt"
)

const testSecret = "test-secret"

// --- Mock store ---

type mockAuthStore struct {
	userByEmail map[string]database.User
	userByID    map[uuid.UUID]database.User
}

func newMockStore() *mockAuthStore {
	return &mockAuthStore{
		userByEmail: make(map[string]database.User),
		userByID:    make(map[uuid.UUID]database.User),
	}
}

func (m *mockAuthStore) addUser(u database.User) {
	m.userByEmail[strings.ToLower(u.Email)] = u
	m.userByID[u.ID] = u
}

func (m *mockAuthStore) GetUserByEmail(_ context.Context, email string) (database.User, error) {
	u, ok := m.userByEmail[strings.ToLower(email)]
	if !ok {
		return database.User{}, pgx.ErrNoRows
	}
	return u, nil
}

func (m *mockAuthStore) UpdateUserPassword(_ context.Context, arg database.UpdateUserPasswordParams) error {
	u, ok := m.userByID[arg.ID]
	if !ok {
		return pgx.ErrNoRows
	}
	u.HashedPassword = arg.HashedPassword
	m.addUser(u)
	return nil
}

func (m *mockAuthStore) GetUserByID(_ context.Context, id uuid.UUID) (database.User, error) {
	u, ok := m.userByID[id]
	if !ok {
		return database.User{}, pgx.ErrNoRows
	}
	return u, nil
}

// --- Helpers ---

func hashPassword(t *testing.T, password string) string {
	t.Helper()
	h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	return string(h)
}

func makeTestUser(t *testing.T) database.User {
	t.Helper()
	return database.User{
		ID:             uuid.New(),
		Email:          "staff@test.com",
		HashedPassword: hashPassword(t, "correct-password"),
		FullName:       "Test Staff",
		Role:           enum.UserRoleStaff,
		IsActive:       true,
	}
}

func setupAuthRouter(store handler.AuthStore) *chi.Mux {
	h := handler.NewAuthHandler(store, testSecret)
	r := chi.NewRouter()
	h.RegisterRoutes(r)
	return r
}

func postJSON(t *testing.T, router http.Handler, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	return doRequest(t, router, "POST", path, body)
}

func decodeResponse(t *testing.T, rr *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var resp map[string]interface{}
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return resp
}

// --- Login tests ---

func TestLogin_ValidCredentials(t *testing.T) {
	store := newMockStore()
	user := makeTestUser(t)
	store.addUser(user)
	r := setupAuthRouter(store)

	rr := postJSON(t, r, "/auth/login", map[string]string{
		"email":    "Staff@Test.com",
		"password": "correct-password",
	})

	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want %d; body: %s", rr.Code, http.StatusOK, rr.Body.String())
	}

	resp := decodeResponse(t, rr)
	accessToken, ok := resp["access_token"].(string)
	if !ok || accessToken == "" {
		t.Fatal("expected non-empty access_token")
	}
	if resp["refresh_token"] == nil || resp["refresh_token"] == "" {
		t.Error("expected non-empty refresh_token")
	}

	userResp, ok := resp["user"].(map[string]interface{})
	if !ok {
		t.Fatal("expected user object in response")
	}
	if userResp["email"] != "staff@test.com" {
		t.Errorf("user email: got %v", userResp["email"])
	}
	if _, leaked := userResp["hashed_password"]; leaked {
		t.Error("password hash must not be returned")
	}

	claims, err := auth.ValidateToken(testSecret, accessToken)
	if err != nil {
		t.Fatalf("validate access token: %v", err)
	}
	if claims.UserID != user.ID || claims.Role != enum.UserRoleStaff {
		t.Errorf("claims: got %v %v", claims.UserID, claims.Role)
	}
}

func TestLogin_Rejected(t *testing.T) {
	store := newMockStore()
	store.addUser(makeTestUser(t))
	r := setupAuthRouter(store)

	tests := []struct {
		name string
		body map[string]string
		want int
	}{
		{"wrong password", map[string]string{"email": "staff@test.com", "password": "wrong"}, http.StatusUnauthorized},
		{"unknown user", map[string]string{"email": "nobody@test.com", "password": "password"}, http.StatusUnauthorized},
		{"missing password", map[string]string{"email": "staff@test.com"}, http.StatusBadRequest},
		{"blank email", map[string]string{"email": "  ", "password": "x"}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := postJSON(t, r, "/auth/login", tt.body)
			if rr.Code != tt.want {
				t.Errorf("status: got %d, want %d", rr.Code, tt.want)
			}
		})
	}
}

func TestLogin_InvalidBody(t *testing.T) {
	r := setupAuthRouter(newMockStore())
	req := httptest.NewRequest("POST", "/auth/login", strings.NewReader("{"))
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("status: got %d, want %d", rr.Code, http.StatusBadRequest)
	}
}

// --- Refresh tests ---

func TestRefresh_ValidToken(t *testing.T) {
	store := newMockStore()
	user := makeTestUser(t)
	store.addUser(user)
	r := setupAuthRouter(store)

	refreshToken, err := auth.GenerateRefreshToken(testSecret, user.ID)
	if err != nil {
		t.Fatalf("generate refresh token: %v", err)
	}

	rr := postJSON(t, r, "/auth/refresh", map[string]string{
		"refresh_token": refreshToken,
	})

	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want %d; body: %s", rr.Code, http.StatusOK, rr.Body.String())
	}

	resp := decodeResponse(t, rr)
	if resp["access_token"] == nil || resp["access_token"] == "" {
		t.Error("expected non-empty access_token")
	}
}

func TestRefresh_Rejected(t *testing.T) {
	store := newMockStore()
	user := makeTestUser(t)
	store.addUser(user)
	r := setupAuthRouter(store)

	deleted, _ := auth.GenerateRefreshToken(testSecret, uuid.New())
	access, _ := auth.GenerateToken(testSecret, user.ID, user.Role)

	tests := []struct {
		name  string
		token string
		want  int
	}{
		{"garbage", "not-a-valid-token", http.StatusUnauthorized},
		{"deactivated user", deleted, http.StatusUnauthorized},
		{"access token", access, http.StatusUnauthorized},
		{"missing", "", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := postJSON(t, r, "/auth/refresh", map[string]string{"refresh_token": tt.token})
			if rr.Code != tt.want {
				t.Errorf("status: got %d, want %d", rr.Code, tt.want)
			}
		})
	}
}

// --- Account tests ---

func setupAccountRouter(store handler.AuthStore, userID uuid.UUID) http.Handler {
	h := handler.NewAuthHandler(store, testSecret)
	r := chi.NewRouter()
	r.Route("/admin/account", h.RegisterAccountRoutes)
	return withAdmin(userID, r)
}

func TestMe(t *testing.T) {
	store := newMockStore()
	user := makeTestUser(t)
	store.addUser(user)

	rr := doRequest(t, setupAccountRouter(store, user.ID), "GET", "/admin/account", nil)

	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d; body: %s", rr.Code, rr.Body.String())
	}
	resp := decodeResponse(t, rr)
	if resp["id"] != user.ID.String() || resp["full_name"] != "Test Staff" {
		t.Errorf("profile: got %v", resp)
	}

	rr = doRequest(t, setupAccountRouter(store, uuid.New()), "GET", "/admin/account", nil)
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("unknown user: got %d, want %d", rr.Code, http.StatusUnauthorized)
	}
}

func TestChangePassword(t *testing.T) {
	store := newMockStore()
	user := makeTestUser(t)
	store.addUser(user)
	router := setupAccountRouter(store, user.ID)

	rr := doRequest(t, router, "PUT", "/admin/account/password", map[string]string{
		"current_password": "correct-password",
		"new_password":     "brand-new-secret",
	})
	if rr.Code != http.StatusNoContent {
		t.Fatalf("status: got %d; body: %s", rr.Code, rr.Body.String())
	}

	authRouter := setupAuthRouter(store)
	if rr := postJSON(t, authRouter, "/auth/login", map[string]string{"email": user.Email, "password": "brand-new-secret"}); rr.Code != http.StatusOK {
		t.Errorf("login with new password: got %d", rr.Code)
	}
	if rr := postJSON(t, authRouter, "/auth/login", map[string]string{"email": user.Email, "password": "correct-password"}); rr.Code != http.StatusUnauthorized {
		t.Errorf("login with old password: got %d", rr.Code)
	}
}

func TestChangePassword_Rejected(t *testing.T) {
	store := newMockStore()
	user := makeTestUser(t)
	store.addUser(user)
	router := setupAccountRouter(store, user.ID)

	tests := []struct {
		name string
		body map[string]string
		want int
	}{
		{"wrong current", map[string]string{"current_password": "nope", "new_password": "long-enough-1"}, http.StatusUnauthorized},
		{"too short", map[string]string{"current_password": "correct-password", "new_password": "short"}, http.StatusBadRequest},
		{"missing", map[string]string{"new_password": "long-enough-1"}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if rr := doRequest(t, router, "PUT", "/admin/account/password", tt.body); rr.Code != tt.want {
				t.Errorf("status: got %d, want %d", rr.Code, tt.want)
			}
		})
	}
	if store.userByID[user.ID].HashedPassword != user.HashedPassword {
		t.Error("rejected changes must keep the old hash")
	}
}
