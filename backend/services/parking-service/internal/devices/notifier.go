package devices

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"smartparking/backend/services/parking-service/internal/http/handlers"
	"smartparking/backend/services/parking-service/internal/service"
)

// Pusher delivers server-initiated frames to connected devices. Send reports whether the
// device was reachable and Broadcast how many devices were.
type Pusher interface {
	Send(deviceID string, msg []byte) bool
	Broadcast(msg []byte) int
}

// OpenBarrierPayload is carried by an OpenBarrier frame.
type OpenBarrierPayload struct {
	Command   string `json:"command"`
	Reason    string `json:"reason"`
	RFID      string `json:"rfid,omitempty"`
	Space     string `json:"space,omitempty"`
	SessionID int64  `json:"session_id,omitempty"`
}

// BarrierNotifier pushes OpenBarrier frames. Commands without a device go to the entry
// gate when one is configured, otherwise to every connected device.
type BarrierNotifier struct {
	pusher    Pusher
	entryGate string
	newID     func() string
	logger    *zap.Logger
}

var _ service.GateNotifier = (*BarrierNotifier)(nil)

// NewBarrierNotifier builds notifier.
func NewBarrierNotifier(pusher Pusher, entryGate string, logger *zap.Logger) *BarrierNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BarrierNotifier{pusher: pusher, entryGate: entryGate, newID: uuid.NewString, logger: logger}
}

// OpenBarrier implements service.GateNotifier.
func (n *BarrierNotifier) OpenBarrier(ctx context.Context, cmd service.GateCommand) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	id := n.newID()
	msg, err := BuildCommand(id, ActionOpenBarrier, OpenBarrierPayload{
		Command:   handlers.CommandOpenBarrier,
		Reason:    cmd.Reason,
		RFID:      cmd.RFID,
		Space:     cmd.SpaceLabel,
		SessionID: cmd.SessionID,
	})
	if err != nil {
		return fmt.Errorf("devices: encode open barrier: %w", err)
	}

	target := cmd.DeviceID
	if target == "" {
		target = n.entryGate
	}
	if target != "" {
		if !n.pusher.Send(target, msg) {
			return fmt.Errorf("%w: %s", service.ErrGateOffline, target)
		}
	} else if n.pusher.Broadcast(msg) == 0 {
		return service.ErrGateOffline
	}
	n.logger.Info("open barrier pushed",
		zap.String("frame_id", id),
		zap.String("device_id", target),
		zap.String("reason", cmd.Reason),
	)
	return nil
}
