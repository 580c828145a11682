package devices

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"go.uber.org/zap"
)

// HandlerFunc processes a frame payload and returns the reply body.
type HandlerFunc func(ctx context.Context, deviceID string, payload json.RawMessage) (interface{}, error)

// Recorder receives one observation per routed frame.
type Recorder interface {
	Observe(operation, result string, elapsed time.Duration)
}

// Router dispatches actions to handlers.
type Router struct {
	handlers map[string]HandlerFunc
}

// NewRouter returns router.
func NewRouter() *Router {
	return &Router{handlers: make(map[string]HandlerFunc)}
}

// Register attaches handler to action.
func (r *Router) Register(action string, handler HandlerFunc) {
	r.handlers[action] = handler
}

// Route executes handler for frame.
func (r *Router) Route(ctx context.Context, deviceID string, frame *Frame) (interface{}, error) {
	handler, ok := r.handlers[frame.Action]
	if !ok {
		return nil, invalidInput("unsupported action " + frame.Action)
	}
	return handler(ctx, deviceID, frame.Payload)
}

// Processor ties together parsing, routing and reply encoding.
type Processor struct {
	router  *Router
	metrics Recorder
	logger  *zap.Logger
}

// NewProcessor builds Processor. metrics may be nil.
func NewProcessor(router *Router, metrics Recorder, logger *zap.Logger) *Processor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Processor{router: router, metrics: metrics, logger: logger}
}

const internalErrorMessage = "internal error"

// Process handles a raw frame and returns the encoded reply. Frames that cannot be parsed
// have no id to answer to and are returned as errors. Only *InputError messages reach the
// device; other failures are logged and answered with a generic message.
func (p *Processor) Process(ctx context.Context, deviceID string, raw []byte) ([]byte, error) {
	frame, err := Parse(raw)
	if err != nil {
		return nil, err
	}

	started := time.Now()
	body, err := p.router.Route(ctx, deviceID, frame)
	if err != nil {
		p.observe(frame.Action, "error", started)
		var inputErr *InputError
		if errors.As(err, &inputErr) {
			p.logger.Warn("device frame rejected",
				zap.String("device_id", deviceID),
				zap.String("action", frame.Action),
				zap.Error(err),
			)
			return BuildError(frame.ID, inputErr.Message)
		}
		p.logger.Error("device frame failed",
			zap.String("device_id", deviceID),
			zap.String("action", frame.Action),
			zap.Error(err),
		)
		return BuildError(frame.ID, internalErrorMessage)
	}
	p.observe(frame.Action, "ok", started)

	resp, err := BuildResult(frame.ID, body)
	if err != nil {
		p.logger.Error("encode device reply failed", zap.String("action", frame.Action), zap.Error(err))
		return BuildError(frame.ID, internalErrorMessage)
	}
	return resp, nil
}

func (p *Processor) observe(action, result string, started time.Time) {
	if p.metrics != nil {
		p.metrics.Observe("device_"+action, result, time.Since(started))
	}
}
