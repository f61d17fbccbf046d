package inventory

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tessera-erp/tessera-erp/internal/platform/httpx"
)

// Handler exposes read endpoints over the balance store, the movement ledger
// and the FIFO lot ledger. Mutations go through the documents module.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs the inventory handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers inventory routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/balances", h.listBalances)
	r.Get("/balances/detail", h.getBalance)
	r.Get("/movements", h.stockCard)
	r.Get("/lots", h.listLots)
}

func (h *Handler) listBalances(w http.ResponseWriter, r *http.Request) {
	materialID, plantID, ok := materialPlant(w, r)
	if !ok {
		return
	}
	balances, err := h.service.ListBalances(r.Context(), materialID, plantID)
	if err != nil {
		h.logger.Error("list balances failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"balances": balances})
}

func (h *Handler) getBalance(w http.ResponseWriter, r *http.Request) {
	materialID, plantID, ok := materialPlant(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	locationID, err := strconv.ParseInt(q.Get("location_id"), 10, 64)
	if err != nil || locationID <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid location_id")
		return
	}
	key := StockKey{MaterialID: materialID, PlantID: plantID, LocationID: locationID, BatchID: q.Get("batch_id")}
	balance, err := h.service.GetBalance(r.Context(), key)
	if errors.Is(err, ErrBalanceNotFound) {
		httpx.Problem(w, http.StatusNotFound, "Not Found", "balance not found")
		return
	}
	if err != nil {
		h.logger.Error("get balance failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, balance)
}

func (h *Handler) stockCard(w http.ResponseWriter, r *http.Request) {
	materialID, plantID, ok := materialPlant(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	filter := MovementFilter{
		MaterialID: materialID,
		PlantID:    plantID,
		BatchID:    q.Get("batch_id"),
	}
	filter.LocationID, _ = strconv.ParseInt(q.Get("location_id"), 10, 64)
	if from := q.Get("from"); from != "" {
		if ts, err := time.Parse(time.RFC3339, from); err == nil {
			filter.From = ts
		}
	}
	if to := q.Get("to"); to != "" {
		if ts, err := time.Parse(time.RFC3339, to); err == nil {
			filter.To = ts
		}
	}
	filter.Limit, _ = strconv.Atoi(q.Get("limit"))
	if filter.Limit <= 0 || filter.Limit > 500 {
		filter.Limit = 100
	}

	movements, err := h.service.StockCard(r.Context(), filter)
	if err != nil {
		h.logger.Error("stock card failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"movements": movements})
}

func (h *Handler) listLots(w http.ResponseWriter, r *http.Request) {
	materialID, plantID, ok := materialPlant(w, r)
	if !ok {
		return
	}
	scope := CostScope{MaterialID: materialID, PlantID: plantID, BatchID: r.URL.Query().Get("batch_id")}
	lots, err := h.service.ListLots(r.Context(), scope)
	if err != nil {
		h.logger.Error("list lots failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"lots": lots})
}

func materialPlant(w http.ResponseWriter, r *http.Request) (int64, int64, bool) {
	q := r.URL.Query()
	materialID, err := strconv.ParseInt(q.Get("material_id"), 10, 64)
	if err != nil || materialID <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid material_id")
		return 0, 0, false
	}
	plantID, err := strconv.ParseInt(q.Get("plant_id"), 10, 64)
	if err != nil || plantID <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid plant_id")
		return 0, 0, false
	}
	return materialID, plantID, true
}
