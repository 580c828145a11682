package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"smartparking/backend/services/parking-service/internal/service"
)

// SensorHandler accepts presence reports from sensor boards.
type SensorHandler struct {
	reconciler *service.SensorReconciler
	clock      service.Clock
	logger     *zap.Logger
}

// NewSensorHandler builds handler.
func NewSensorHandler(reconciler *service.SensorReconciler, clock service.Clock, logger *zap.Logger) *SensorHandler {
	if clock == nil {
		clock = service.SystemClock{}
	}
	return &SensorHandler{reconciler: reconciler, clock: clock, logger: logger}
}

// HandleReport handles POST /api/sensors with a body such as {"sensor_1": true}.
func (h *SensorHandler) HandleReport(w http.ResponseWriter, r *http.Request) {
	var payload map[string]bool
	if err := decodeJSON(w, r, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	readings, ignored, err := service.ParseSensorPayload(payload, h.clock.Now())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(ignored) > 0 {
		h.logger.Debug("sensor report carried unknown keys", zap.Strings("keys", ignored))
	}
	reports, err := h.reconciler.ReconcileBatch(r.Context(), readings)
	if err != nil {
		h.logger.Error("sensor reconcile failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to apply sensor report")
		return
	}
	resp := map[string]interface{}{"status": "ok", "readings": reports}
	if len(ignored) > 0 {
		resp["ignored"] = ignored
	}
	writeJSON(w, http.StatusOK, resp)
}
