package devices

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"smartparking/backend/services/parking-service/internal/http/handlers"
	"smartparking/backend/services/parking-service/internal/service"
)

// CredentialPayload carries the card read by a gate reader.
type CredentialPayload struct {
	RFID string `json:"rfid"`
}

// HeartbeatResponse acknowledges a heartbeat with the server time.
type HeartbeatResponse struct {
	CurrentTime time.Time `json:"current_time"`
}

// SensorReportResponse lists what each reading changed and the keys that were not sensors.
type SensorReportResponse struct {
	Readings []service.ReconcileReport `json:"readings"`
	Ignored  []string                  `json:"ignored,omitempty"`
}

const maxRFIDLength = 64

func decodeCredential(payload json.RawMessage) (string, error) {
	req, err := Decode[CredentialPayload](payload)
	if err != nil {
		return "", err
	}
	rfid := service.NormalizeRFID(req.RFID)
	if rfid == "" {
		return "", invalidInput("rfid is required")
	}
	if len(rfid) > maxRFIDLength {
		return "", invalidInput("rfid is too long")
	}
	return rfid, nil
}

// NewEntryHandler decides an entry swipe and answers with the barrier command.
func NewEntryHandler(engine *service.SessionEngine, logger *zap.Logger) HandlerFunc {
	return func(ctx context.Context, deviceID string, payload json.RawMessage) (interface{}, error) {
		rfid, err := decodeCredential(payload)
		if err != nil {
			return nil, err
		}
		out, err := engine.ProcessEntry(ctx, rfid)
		if err != nil {
			return nil, err
		}
		logger.Debug("entry from device", zap.String("device_id", deviceID), zap.String("result", string(out.Result)))
		return handlers.NewEntryResponse(out), nil
	}
}

// NewExitHandler decides an exit swipe.
func NewExitHandler(engine *service.SessionEngine, logger *zap.Logger) HandlerFunc {
	return func(ctx context.Context, deviceID string, payload json.RawMessage) (interface{}, error) {
		rfid, err := decodeCredential(payload)
		if err != nil {
			return nil, err
		}
		out, err := engine.ProcessExit(ctx, rfid)
		if err != nil {
			return nil, err
		}
		logger.Debug("exit from device", zap.String("device_id", deviceID), zap.String("result", string(out.Result)))
		return handlers.NewExitResponse(out), nil
	}
}

// NewAutoOpenHandler answers whether the entry barrier may open without a swipe.
func NewAutoOpenHandler(engine *service.SessionEngine) HandlerFunc {
	return func(ctx context.Context, _ string, payload json.RawMessage) (interface{}, error) {
		rfid, err := decodeCredential(payload)
		if err != nil {
			return nil, err
		}
		decision, err := engine.CheckAutoOpen(ctx, rfid)
		if err != nil {
			return nil, err
		}
		return handlers.NewAutoOpenResponse(decision), nil
	}
}

// NewSensorReportHandler applies a {"sensor_N": bool} payload. Keys that are not sensors
// are skipped and logged.
func NewSensorReportHandler(reconciler *service.SensorReconciler, clock service.Clock, logger *zap.Logger) HandlerFunc {
	return func(ctx context.Context, deviceID string, payload json.RawMessage) (interface{}, error) {
		raw, err := Decode[map[string]bool](payload)
		if err != nil {
			return nil, err
		}
		readings, ignored, err := service.ParseSensorPayload(raw, clock.Now())
		if err != nil {
			return nil, &InputError{Message: err.Error()}
		}
		if len(ignored) > 0 {
			logger.Debug("sensor report carried unknown keys",
				zap.String("device_id", deviceID), zap.Strings("keys", ignored))
		}
		reports, err := reconciler.ReconcileBatch(ctx, readings)
		if err != nil {
			return nil, err
		}
		return SensorReportResponse{Readings: reports, Ignored: ignored}, nil
	}
}

// NewHeartbeatHandler returns ack with current time.
func NewHeartbeatHandler(clock service.Clock) HandlerFunc {
	return func(context.Context, string, json.RawMessage) (interface{}, error) {
		return HeartbeatResponse{CurrentTime: clock.Now().UTC()}, nil
	}
}

// RouterDeps are the services device actions call into.
type RouterDeps struct {
	Engine     *service.SessionEngine
	Reconciler *service.SensorReconciler
	Clock      service.Clock
	Logger     *zap.Logger
}

// NewParkingRouter registers every device action.
func NewParkingRouter(deps RouterDeps) *Router {
	if deps.Clock == nil {
		deps.Clock = service.SystemClock{}
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	router := NewRouter()
	router.Register(ActionEntryDetected, NewEntryHandler(deps.Engine, deps.Logger))
	router.Register(ActionExitDetected, NewExitHandler(deps.Engine, deps.Logger))
	router.Register(ActionAutoOpenQuery, NewAutoOpenHandler(deps.Engine))
	router.Register(ActionSensorReport, NewSensorReportHandler(deps.Reconciler, deps.Clock, deps.Logger))
	router.Register(ActionHeartbeat, NewHeartbeatHandler(deps.Clock))
	return router
}
