package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"smartparking/backend/services/parking-service/internal/service"
	"smartparking/backend/services/parking-service/internal/store"
)

// QueryHandler serves read-only dashboards and receipts.
type QueryHandler struct {
	reports  *service.ReportService
	location *time.Location
	logger   *zap.Logger
}

// NewQueryHandler builds handler set. Dates in requests are read in location.
func NewQueryHandler(reports *service.ReportService, location *time.Location, logger *zap.Logger) *QueryHandler {
	if location == nil {
		location = time.UTC
	}
	return &QueryHandler{reports: reports, location: location, logger: logger}
}

func (h *QueryHandler) fail(w http.ResponseWriter, what string, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, what+" not found")
	case errors.Is(err, service.ErrSessionNotFinalized):
		writeError(w, http.StatusConflict, "session is still active")
	default:
		h.logger.Error("query failed", zap.String("query", what), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to fetch "+what)
	}
}

// HandleSpaces handles GET /api/spaces.
func (h *QueryHandler) HandleSpaces(w http.ResponseWriter, r *http.Request) {
	spaces, err := h.reports.SpaceStatus(r.Context())
	if err != nil {
		h.fail(w, "spaces", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"spaces": spaces})
}

// HandleAvailableSpaces handles GET /api/spaces/available.
func (h *QueryHandler) HandleAvailableSpaces(w http.ResponseWriter, r *http.Request) {
	spaces, err := h.reports.AvailableSpaces(r.Context())
	if err != nil {
		h.fail(w, "spaces", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"spaces": spaces, "count": len(spaces)})
}

// HandleSessionHistory handles GET /api/sessions/history.
func (h *QueryHandler) HandleSessionHistory(w http.ResponseWriter, r *http.Request) {
	limit, err := queryLimit(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	plate := normalizePlate(r.URL.Query().Get("plate"))
	sessions, err := h.reports.SessionHistory(r.Context(), service.HistoryFilter{Plate: plate, Limit: limit})
	if err != nil {
		h.fail(w, "sessions", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"sessions": sessions})
}

// HandleRechargeHistory handles GET /api/recharges/history.
func (h *QueryHandler) HandleRechargeHistory(w http.ResponseWriter, r *http.Request) {
	limit, err := queryLimit(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	filter := service.RechargeFilter{Limit: limit}
	if raw := strings.TrimSpace(r.URL.Query().Get("account_id")); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "account_id must be an integer")
			return
		}
		filter.AccountID = &id
	}
	recharges, err := h.reports.RechargeHistory(r.Context(), filter)
	if err != nil {
		h.fail(w, "recharges", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"recharges": recharges})
}

// HandleAccountByPlate handles GET /api/accounts/by-plate.
func (h *QueryHandler) HandleAccountByPlate(w http.ResponseWriter, r *http.Request) {
	plate := normalizePlate(r.URL.Query().Get("plate"))
	if plate == "" {
		writeError(w, http.StatusBadRequest, "plate is required")
		return
	}
	summary, err := h.reports.AccountByPlate(r.Context(), plate)
	if err != nil {
		h.fail(w, "account", err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// HandleDailyStats handles GET /api/stats/daily.
func (h *QueryHandler) HandleDailyStats(w http.ResponseWriter, r *http.Request) {
	var day time.Time
	if raw := strings.TrimSpace(r.URL.Query().Get("date")); raw != "" {
		parsed, err := time.ParseInLocation(time.DateOnly, raw, h.location)
		if err != nil {
			writeError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
			return
		}
		day = parsed
	}
	stats, err := h.reports.DailyStats(r.Context(), day)
	if err != nil {
		h.fail(w, "stats", err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// HandleSystemStatus handles GET /api/system/status.
func (h *QueryHandler) HandleSystemStatus(w http.ResponseWriter, r *http.Request) {
	counts, err := h.reports.SystemStatus(r.Context())
	if err != nil {
		h.fail(w, "status", err)
		return
	}
	writeJSON(w, http.StatusOK, counts)
}

// HandleReceipt handles GET /api/receipts by session_id or by plate.
func (h *QueryHandler) HandleReceipt(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var (
		receipt *service.Receipt
		err     error
	)
	switch {
	case strings.TrimSpace(q.Get("session_id")) != "":
		id, parseErr := strconv.ParseInt(strings.TrimSpace(q.Get("session_id")), 10, 64)
		if parseErr != nil {
			writeError(w, http.StatusBadRequest, "session_id must be an integer")
			return
		}
		receipt, err = h.reports.Receipt(r.Context(), id)
	case strings.TrimSpace(q.Get("plate")) != "":
		receipt, err = h.reports.LatestReceiptForPlate(r.Context(), normalizePlate(q.Get("plate")))
	default:
		writeError(w, http.StatusBadRequest, "session_id or plate is required")
		return
	}
	if err != nil {
		h.fail(w, "receipt", err)
		return
	}
	writeJSON(w, http.StatusOK, receipt)
}
