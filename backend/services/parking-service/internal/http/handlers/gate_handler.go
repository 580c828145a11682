package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"smartparking/backend/services/parking-service/internal/service"
)

// GateHandler serves entry and exit barrier controllers.
type GateHandler struct {
	engine *service.SessionEngine
	logger *zap.Logger
}

// NewGateHandler builds handler set.
func NewGateHandler(engine *service.SessionEngine, logger *zap.Logger) *GateHandler {
	return &GateHandler{engine: engine, logger: logger}
}

type credentialRequest struct {
	RFID string `json:"rfid" validate:"required,max=64"`
}

func (h *GateHandler) decodeCredential(w http.ResponseWriter, r *http.Request) (string, bool) {
	var req credentialRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return "", false
	}
	req.RFID = service.NormalizeRFID(req.RFID)
	if err := validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, validationMessage(err))
		return "", false
	}
	return req.RFID, true
}

// EntryResponse is the reply to an entry swipe.
type EntryResponse struct {
	Result    service.EntryResult `json:"result"`
	Command   string              `json:"command"`
	Message   string              `json:"message"`
	SpaceID   *int64              `json:"space_id,omitempty"`
	Space     string              `json:"space,omitempty"`
	SessionID *int64              `json:"session_id,omitempty"`
	Plate     string              `json:"plate,omitempty"`
	Name      string              `json:"name,omitempty"`
	Balance   *decimal.Decimal    `json:"balance,omitempty"`
	Token     string              `json:"token,omitempty"`
	Required  *decimal.Decimal    `json:"required,omitempty"`
	Current   *decimal.Decimal    `json:"current,omitempty"`
}

// NewEntryResponse maps an entry outcome to its wire form.
func NewEntryResponse(out service.EntryOutcome) EntryResponse {
	resp := EntryResponse{Result: out.Result, Command: CommandShowAlert}
	switch out.Result {
	case service.EntryAdmitted:
		resp.Command = CommandOpenBarrier
		resp.Message = "welcome, proceed to space " + out.Space.Label
		resp.SpaceID = &out.Space.ID
		resp.Space = out.Space.Label
		resp.SessionID = &out.Session.ID
		resp.Plate = out.Vehicle.Plate
		resp.Name = out.Account.FullName
		resp.Balance = &out.Account.Balance
	case service.EntryNewAccountRequired:
		resp.Message = "card not registered, scan the code to register"
		resp.Token = out.Token
	case service.EntryInsufficientBalance:
		resp.Message = "insufficient balance for the minimum fare"
		resp.Required = &out.Required
		resp.Current = &out.Current
	case service.EntryDuplicateActiveSession:
		resp.Message = "vehicle already inside"
	case service.EntryNoSpaceAvailable:
		resp.Message = "no space available"
	case service.EntryNoVehicleRegistered:
		resp.Message = "no vehicle registered for this card"
	}
	return resp
}

// HandleEntry handles POST /api/entry.
func (h *GateHandler) HandleEntry(w http.ResponseWriter, r *http.Request) {
	rfid, ok := h.decodeCredential(w, r)
	if !ok {
		return
	}
	out, err := h.engine.ProcessEntry(r.Context(), rfid)
	if err != nil {
		h.logger.Error("process entry failed", zap.String("rfid", rfid), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to process entry")
		return
	}
	writeJSON(w, http.StatusOK, NewEntryResponse(out))
}

// ExitResponse is the reply to an exit swipe.
type ExitResponse struct {
	Result        service.ExitResult `json:"result"`
	Command       string             `json:"command"`
	Message       string             `json:"message"`
	Name          string             `json:"name,omitempty"`
	Space         string             `json:"space,omitempty"`
	SessionID     *int64             `json:"session_id,omitempty"`
	AmountCharged *decimal.Decimal   `json:"amount_charged,omitempty"`
	NewBalance    *decimal.Decimal   `json:"new_balance,omitempty"`
	Duration      string             `json:"duration,omitempty"`
	Required      *decimal.Decimal   `json:"required,omitempty"`
	Current       *decimal.Decimal   `json:"current,omitempty"`
}

// NewExitResponse maps an exit outcome to its wire form.
func NewExitResponse(out service.ExitOutcome) ExitResponse {
	resp := ExitResponse{Result: out.Result, Command: CommandShowAlert}
	if out.Account != nil {
		resp.Name = out.Account.FullName
	}
	switch out.Result {
	case service.ExitAdmitted:
		resp.Command = CommandOpenBarrier
		resp.Message = "goodbye"
		resp.SessionID = &out.Session.ID
		resp.AmountCharged = &out.AmountCharged
		resp.NewBalance = &out.NewBalance
		resp.Duration = out.DurationLabel
		if out.Space != nil {
			resp.Space = out.Space.Label
		}
	case service.ExitInsufficientBalanceOnExit:
		resp.Message = "insufficient balance to pay the fare, please recharge"
		resp.Required = &out.Required
		resp.Current = &out.Current
	case service.ExitAccountNotFound:
		resp.Message = "card not registered"
	case service.ExitNoActiveSession:
		resp.Message = "no active session for this card"
	}
	return resp
}

// HandleExit handles POST /api/exit.
func (h *GateHandler) HandleExit(w http.ResponseWriter, r *http.Request) {
	rfid, ok := h.decodeCredential(w, r)
	if !ok {
		return
	}
	out, err := h.engine.ProcessExit(r.Context(), rfid)
	if err != nil {
		h.logger.Error("process exit failed", zap.String("rfid", rfid), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to process exit")
		return
	}
	writeJSON(w, http.StatusOK, NewExitResponse(out))
}

// AutoOpenResponse tells the entry controller whether to lift the barrier unprompted.
type AutoOpenResponse struct {
	Open    bool       `json:"open"`
	Command string     `json:"command,omitempty"`
	Reason  string     `json:"reason"`
	Space   string     `json:"space,omitempty"`
	EntryAt *time.Time `json:"entry_at,omitempty"`
}

// NewAutoOpenResponse maps a gate decision to its wire form.
func NewAutoOpenResponse(d service.GateDecision) AutoOpenResponse {
	resp := AutoOpenResponse{Open: d.Open, Reason: d.Reason, Space: d.SpaceLabel, EntryAt: d.EntryAt}
	if d.Open {
		resp.Command = CommandOpenBarrier
	}
	return resp
}

// HandleAutoOpen handles POST /api/gate/auto-open.
func (h *GateHandler) HandleAutoOpen(w http.ResponseWriter, r *http.Request) {
	rfid, ok := h.decodeCredential(w, r)
	if !ok {
		return
	}
	decision, err := h.engine.CheckAutoOpen(r.Context(), rfid)
	if err != nil {
		h.logger.Error("auto open check failed", zap.String("rfid", rfid), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to check barrier")
		return
	}
	writeJSON(w, http.StatusOK, NewAutoOpenResponse(decision))
}

type openBarrierRequest struct {
	DeviceID string `json:"device_id" validate:"max=64"`
	Reason   string `json:"reason" validate:"max=120"`
}

// HandleOpen handles POST /api/gate/open. It pushes an OpenBarrier command to the named
// controller, or to the default gate when device_id is empty.
func (h *GateHandler) HandleOpen(w http.ResponseWriter, r *http.Request) {
	var req openBarrierRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	req.DeviceID = strings.TrimSpace(req.DeviceID)
	req.Reason = strings.TrimSpace(req.Reason)
	if err := validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, validationMessage(err))
		return
	}

	err := h.engine.OpenBarrier(r.Context(), req.DeviceID, req.Reason)
	if errors.Is(err, service.ErrGateOffline) {
		writeError(w, http.StatusServiceUnavailable, "gate controller not connected")
		return
	}
	if err != nil {
		h.logger.Error("open barrier failed", zap.String("device_id", req.DeviceID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to open barrier")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"command":   CommandOpenBarrier,
		"device_id": req.DeviceID,
	})
}
