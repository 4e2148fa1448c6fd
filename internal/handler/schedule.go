package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/caramelapple/storefront/internal/database"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

// ScheduleStore defines the database methods needed by schedule handlers.
// Satisfied by *database.Queries; narrow interface for testability.
type ScheduleStore interface {
	ListScheduleBlocks(ctx context.Context, arg database.ListScheduleBlocksParams) ([]database.ScheduleBlock, error)
	UpsertScheduleBlock(ctx context.Context, arg database.UpsertScheduleBlockParams) (database.ScheduleBlock, error)
	DeleteScheduleBlock(ctx context.Context, blockedDate pgtype.Date) (uuid.UUID, error)
}

// ScheduleHandler handles day availability for pickup and delivery.
type ScheduleHandler struct {
	store ScheduleStore
}

// NewScheduleHandler creates a new ScheduleHandler.
func NewScheduleHandler(store ScheduleStore) *ScheduleHandler {
	return &ScheduleHandler{store: store}
}

// RegisterPublicRoutes registers the storefront availability endpoint.
// Expected to be mounted at /schedule.
func (h *ScheduleHandler) RegisterPublicRoutes(r chi.Router) {
	r.Get("/", h.Availability)
}

// RegisterAdminRoutes registers block management endpoints.
// Expected to be mounted at /admin/schedule.
func (h *ScheduleHandler) RegisterAdminRoutes(r chi.Router) {
	r.Get("/", h.List)
	r.Put("/{date}", h.Upsert)
	r.Delete("/{date}", h.Delete)
}

// --- Request / Response types ---

type availabilityResponse struct {
	Date              string  `json:"date"`
	DeliveryAvailable bool    `json:"delivery_available"`
	PickupAvailable   bool    `json:"pickup_available"`
	Reason            *string `json:"reason"`
}

type scheduleBlockRequest struct {
	DeliveryBlocked bool   `json:"delivery_blocked"`
	PickupBlocked   bool   `json:"pickup_blocked"`
	Reason          string `json:"reason"`
}

type scheduleBlockResponse struct {
	ID              uuid.UUID `json:"id"`
	Date            string    `json:"date"`
	DeliveryBlocked bool      `json:"delivery_blocked"`
	PickupBlocked   bool      `json:"pickup_blocked"`
	Reason          *string   `json:"reason"`
	UpdatedAt       time.Time `json:"updated_at"`
}

func toScheduleBlockResponse(b database.ScheduleBlock) scheduleBlockResponse {
	return scheduleBlockResponse{
		ID:              b.ID,
		Date:            database.FormatDate(b.BlockedDate),
		DeliveryBlocked: b.DeliveryBlocked,
		PickupBlocked:   b.PickupBlocked,
		Reason:          database.TextPtr(b.Reason),
		UpdatedAt:       b.UpdatedAt,
	}
}

// --- Handlers ---

// Availability handles GET /schedule?from=&to=. Only blocked dates are
// listed; any other date is open for both retrieval methods.
func (h *ScheduleHandler) Availability(w http.ResponseWriter, r *http.Request) {
	blocks, ok := h.listBlocks(w, r)
	if !ok {
		return
	}

	resp := make([]availabilityResponse, len(blocks))
	for i, b := range blocks {
		resp[i] = availabilityResponse{
			Date:              database.FormatDate(b.BlockedDate),
			DeliveryAvailable: !b.DeliveryBlocked,
			PickupAvailable:   !b.PickupBlocked,
			Reason:            database.TextPtr(b.Reason),
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

// List handles GET /admin/schedule.
func (h *ScheduleHandler) List(w http.ResponseWriter, r *http.Request) {
	blocks, ok := h.listBlocks(w, r)
	if !ok {
		return
	}

	resp := make([]scheduleBlockResponse, len(blocks))
	for i, b := range blocks {
		resp[i] = toScheduleBlockResponse(b)
	}

	writeJSON(w, http.StatusOK, resp)
}

// Upsert handles PUT /admin/schedule/{date}. Clearing both flags removes
// the block.
func (h *ScheduleHandler) Upsert(w http.ResponseWriter, r *http.Request) {
	date, err := database.ParseDate(chi.URLParam(r, "date"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid date, use YYYY-MM-DD"})
		return
	}

	var req scheduleBlockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	if !req.DeliveryBlocked && !req.PickupBlocked {
		if _, err := h.store.DeleteScheduleBlock(r.Context(), date); err != nil && !errors.Is(err, pgx.ErrNoRows) {
			log.Printf("ERROR: clear schedule block: %v", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
			return
		}
		w.WriteHeader(http.StatusNoContent)
		return
	}

	block, err := h.store.UpsertScheduleBlock(r.Context(), database.UpsertScheduleBlockParams{
		BlockedDate:     date,
		DeliveryBlocked: req.DeliveryBlocked,
		PickupBlocked:   req.PickupBlocked,
		Reason:          database.Text(req.Reason),
	})
	if err != nil {
		log.Printf("ERROR: upsert schedule block: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	writeJSON(w, http.StatusOK, toScheduleBlockResponse(block))
}

// Delete handles DELETE /admin/schedule/{date}.
func (h *ScheduleHandler) Delete(w http.ResponseWriter, r *http.Request) {
	date, err := database.ParseDate(chi.URLParam(r, "date"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid date, use YYYY-MM-DD"})
		return
	}

	if _, err := h.store.DeleteScheduleBlock(r.Context(), date); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "schedule block not found"})
			return
		}
		log.Printf("ERROR: delete schedule block: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// --- Helpers ---

func (h *ScheduleHandler) listBlocks(w http.ResponseWriter, r *http.Request) ([]database.ScheduleBlock, bool) {
	var params database.ListScheduleBlocksParams
	q := r.URL.Query()
	if s := q.Get("from"); s != "" {
		d, err := database.ParseDate(s)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid from date, use YYYY-MM-DD"})
			return nil, false
		}
		params.FromDate = d
	}
	if s := q.Get("to"); s != "" {
		d, err := database.ParseDate(s)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid to date, use YYYY-MM-DD"})
			return nil, false
		}
		params.ToDate = d
	}
	if params.FromDate.Valid && params.ToDate.Valid && params.ToDate.Time.Before(params.FromDate.Time) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "to must not be before from"})
		return nil, false
	}

	blocks, err := h.store.ListScheduleBlocks(r.Context(), params)
	if err != nil {
		log.Printf("ERROR: list schedule blocks: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return nil, false
	}
	return blocks, true
}
