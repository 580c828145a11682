package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"smartparking/backend/services/parking-service/internal/models"
	"smartparking/backend/services/parking-service/internal/service"
	"smartparking/backend/services/parking-service/internal/store"
)

// RegistrationHandler serves the self-registration form.
type RegistrationHandler struct {
	engine *service.SessionEngine
	logger *zap.Logger
}

// NewRegistrationHandler builds handler set.
func NewRegistrationHandler(engine *service.SessionEngine, logger *zap.Logger) *RegistrationHandler {
	return &RegistrationHandler{engine: engine, logger: logger}
}

type registrationRequest struct {
	Token        string `json:"token" validate:"required"`
	FullName     string `json:"full_name" validate:"required,max=50,fullname"`
	NationalID   string `json:"national_id" validate:"required,numeric,min=7,max=10"`
	Phone        string `json:"phone" validate:"required,len=10,startswith=3"`
	Email        string `json:"email" validate:"required,email"`
	Plate        string `json:"plate" validate:"required,plate"`
	VehicleClass string `json:"vehicle_class" validate:"required,oneof=CAR MOTORCYCLE"`
	Brand        string `json:"brand" validate:"required,min=2,max=20"`
	Color        string `json:"color" validate:"required,min=3,max=15"`
}

func (req *registrationRequest) normalize() {
	req.Token = strings.TrimSpace(req.Token)
	req.FullName = normalizeName(req.FullName)
	req.NationalID = strings.TrimSpace(req.NationalID)
	req.Phone = normalizePhone(req.Phone)
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	req.Plate = normalizePlate(req.Plate)
	req.VehicleClass = strings.ToUpper(strings.TrimSpace(req.VehicleClass))
	if req.VehicleClass == "" {
		req.VehicleClass = string(models.VehicleClassCar)
	}
	req.Brand = strings.TrimSpace(req.Brand)
	req.Color = strings.TrimSpace(req.Color)
}

func (req registrationRequest) input() service.RegistrationInput {
	return service.RegistrationInput{
		Token: req.Token,
		Account: service.AccountFields{
			FullName:   req.FullName,
			NationalID: req.NationalID,
			Email:      req.Email,
			Phone:      req.Phone,
		},
		Vehicle: service.VehicleFields{
			Plate: req.Plate,
			Class: models.VehicleClass(req.VehicleClass),
			Color: req.Color,
			Brand: req.Brand,
		},
	}
}

// RegistrationResponse is the reply to a registration submission.
type RegistrationResponse struct {
	Result          service.RegistrationResult `json:"result"`
	Message         string                     `json:"message"`
	AccountID       *int64                     `json:"account_id,omitempty"`
	Space           string                     `json:"space,omitempty"`
	SessionID       *int64                     `json:"session_id,omitempty"`
	RechargeToken   string                     `json:"recharge_token,omitempty"`
	SuggestedAmount *decimal.Decimal           `json:"suggested_amount,omitempty"`
	ConflictField   store.IdentityField        `json:"conflict_field,omitempty"`
}

// HandleComplete handles POST /api/registrations/complete.
func (h *RegistrationHandler) HandleComplete(w http.ResponseWriter, r *http.Request) {
	var req registrationRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	req.normalize()
	if err := validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, validationMessage(err))
		return
	}

	out, err := h.engine.CompleteRegistration(r.Context(), req.input())
	if err != nil {
		h.logger.Error("complete registration failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to complete registration")
		return
	}

	resp := RegistrationResponse{Result: out.Result}
	switch out.Result {
	case service.RegistrationRegistered:
		resp.Message = "registration complete, proceed to space " + out.Space.Label
		resp.AccountID = &out.Account.ID
		resp.Space = out.Space.Label
		resp.SessionID = &out.Session.ID
		resp.RechargeToken = out.RechargeToken
		resp.SuggestedAmount = &out.SuggestedAmount
	case service.RegistrationInvalidToken:
		resp.Message = "registration link is invalid or already used"
	case service.RegistrationDuplicateIdentity:
		resp.Message = "already registered"
		resp.ConflictField = out.ConflictField
	case service.RegistrationNoSpaceAvailable:
		resp.Message = "no space available, try again later"
	}
	writeJSON(w, http.StatusOK, resp)
}

// HandleCheck handles GET /api/registrations/{token}.
func (h *RegistrationHandler) HandleCheck(w http.ResponseWriter, r *http.Request) {
	token := strings.TrimSpace(r.PathValue("token"))
	txn, err := h.engine.PeekToken(r.Context(), token, models.TransactionRegistration)
	if errors.Is(err, service.ErrInvalidToken) {
		writeJSON(w, http.StatusOK, map[string]interface{}{"valid": false})
		return
	}
	if err != nil {
		h.logger.Error("registration link check failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to check registration link")
		return
	}
	resp := map[string]interface{}{"valid": true, "issued_at": txn.CreatedAt.Format(time.RFC3339)}
	if txn.RFID != nil {
		resp["rfid"] = *txn.RFID
	}
	writeJSON(w, http.StatusOK, resp)
}
