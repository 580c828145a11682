package service

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Admission is the cached view of a recently started session, keyed by credential.
type Admission struct {
	SessionID  int64     `json:"session_id"`
	AccountID  int64     `json:"account_id"`
	RFID       string    `json:"rfid"`
	SpaceLabel string    `json:"space_label"`
	EntryAt    time.Time `json:"entry_at"`
}

// ActiveCache keeps admissions for fast gate decisions. Get returns nil, nil on a miss.
type ActiveCache interface {
	Save(ctx context.Context, admission Admission) error
	Get(ctx context.Context, rfid string) (*Admission, error)
	Delete(ctx context.Context, rfid string) error
}

// Event types published after commit.
const (
	EventSessionStarted    = "session.started"
	EventSessionFinalized  = "session.finalized"
	EventAccountRegistered = "account.registered"
	EventBalanceRecharged  = "balance.recharged"
)

// Event is a domain fact emitted after its transaction committed.
type Event struct {
	Type       string    `json:"type"`
	OccurredAt time.Time `json:"occurred_at"`
	Payload    any       `json:"payload"`
}

// Publisher delivers events to downstream consumers.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// Reasons carried by barrier commands pushed from the server.
const (
	GateReasonRechargeAdmission = "RECHARGE_ADMISSION"
	GateReasonManual            = "MANUAL"
)

// GateCommand asks a barrier controller to lift its barrier. An empty DeviceID addresses
// every connected controller.
type GateCommand struct {
	DeviceID   string `json:"device_id,omitempty"`
	Reason     string `json:"reason"`
	RFID       string `json:"rfid,omitempty"`
	SpaceLabel string `json:"space_label,omitempty"`
	SessionID  int64  `json:"session_id,omitempty"`
}

// GateNotifier pushes commands to connected barrier controllers. It returns ErrGateOffline
// when no addressed controller is connected.
type GateNotifier interface {
	OpenBarrier(ctx context.Context, cmd GateCommand) error
}

// Recorder receives operational measurements.
type Recorder interface {
	Observe(operation, result string, elapsed time.Duration)
	Charged(amount decimal.Decimal)
}

type nopCache struct{}

func (nopCache) Save(context.Context, Admission) error           { return nil }
func (nopCache) Get(context.Context, string) (*Admission, error) { return nil, nil }
func (nopCache) Delete(context.Context, string) error            { return nil }

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, Event) error { return nil }

type nopGate struct{}

func (nopGate) OpenBarrier(context.Context, GateCommand) error { return ErrGateOffline }

type nopRecorder struct{}

func (nopRecorder) Observe(string, string, time.Duration) {}
func (nopRecorder) Charged(decimal.Decimal)               {}
