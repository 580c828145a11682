package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"smartparking/backend/libs/money"
	"smartparking/backend/services/parking-service/internal/service"
)

// RechargeHandler serves balance top-ups.
type RechargeHandler struct {
	engine *service.SessionEngine
	logger *zap.Logger
}

// NewRechargeHandler builds handler set.
func NewRechargeHandler(engine *service.SessionEngine, logger *zap.Logger) *RechargeHandler {
	return &RechargeHandler{engine: engine, logger: logger}
}

type rechargeRequest struct {
	Token  string `json:"token" validate:"required"`
	Amount string `json:"amount"`
}

// RechargeResponse is the reply to a settled top-up.
type RechargeResponse struct {
	Result       service.RechargeResult `json:"result"`
	Message      string                 `json:"message"`
	Amount       *decimal.Decimal       `json:"amount,omitempty"`
	NewBalance   *decimal.Decimal       `json:"new_balance,omitempty"`
	AutoAdmitted bool                   `json:"auto_admitted"`
	Space        string                 `json:"space,omitempty"`
	SessionID    *int64                 `json:"session_id,omitempty"`
}

// HandleComplete handles POST /api/recharges/complete. An empty amount credits the amount the
// link was issued with.
func (h *RechargeHandler) HandleComplete(w http.ResponseWriter, r *http.Request) {
	var req rechargeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	req.Token = strings.TrimSpace(req.Token)
	if err := validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, validationMessage(err))
		return
	}
	var amount *decimal.Decimal
	if strings.TrimSpace(req.Amount) != "" {
		parsed, err := money.Parse(req.Amount)
		if err != nil || !parsed.IsPositive() {
			writeError(w, http.StatusBadRequest, "amount must be a positive number")
			return
		}
		amount = &parsed
	}

	out, err := h.engine.CompleteRecharge(r.Context(), req.Token, amount)
	if errors.Is(err, service.ErrInvalidAmount) {
		writeError(w, http.StatusBadRequest, "amount is required for this link")
		return
	}
	if err != nil {
		h.logger.Error("complete recharge failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to complete recharge")
		return
	}

	resp := RechargeResponse{Result: out.Result}
	switch out.Result {
	case service.RechargeRecharged:
		resp.Message = "recharge applied"
		resp.Amount = &out.Amount
		resp.NewBalance = &out.NewBalance
		if out.AutoAdmittedSession != nil {
			resp.AutoAdmitted = true
			resp.Space = out.AutoAdmittedSpace.Label
			resp.SessionID = &out.AutoAdmittedSession.ID
			resp.Message = "recharge applied, proceed to space " + out.AutoAdmittedSpace.Label
		}
	case service.RechargeInvalidToken:
		resp.Message = "recharge link is invalid or already used"
	}
	writeJSON(w, http.StatusOK, resp)
}

type rechargeLinkRequest struct {
	Plate string `json:"plate" validate:"required,plate"`
}

// HandleRequest handles POST /api/recharges/request.
func (h *RechargeHandler) HandleRequest(w http.ResponseWriter, r *http.Request) {
	var req rechargeLinkRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	req.Plate = normalizePlate(req.Plate)
	if err := validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, validationMessage(err))
		return
	}

	out, err := h.engine.RequestRecharge(r.Context(), req.Plate)
	if err != nil {
		h.logger.Error("request recharge failed", zap.String("plate", req.Plate), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to issue recharge link")
		return
	}
	resp := map[string]interface{}{"result": out.Result}
	if out.Result == service.RechargeRequestIssued {
		resp["token"] = out.Token
		resp["account_id"] = out.Account.ID
		resp["name"] = out.Account.FullName
		resp["balance"] = out.Account.Balance
	}
	writeJSON(w, http.StatusOK, resp)
}
