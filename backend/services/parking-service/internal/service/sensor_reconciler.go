package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"smartparking/backend/services/parking-service/internal/models"
	"smartparking/backend/services/parking-service/internal/store"
)

const sensorKeyPrefix = "sensor_"

// SensorReading is one presence observation of a space sensor.
type SensorReading struct {
	Channel  int
	Occupied bool
	At       time.Time
}

// ReconcileResult describes what a reading did to its space.
type ReconcileResult string

const (
	ReconcileMarkedOccupied     ReconcileResult = "MARKED_OCCUPIED"
	ReconcileMarkedAvailable    ReconcileResult = "MARKED_AVAILABLE"
	ReconcileAdvisory           ReconcileResult = "ADVISORY_IGNORED"
	ReconcileNoChange           ReconcileResult = "NO_CHANGE"
	ReconcileMaintenanceSkipped ReconcileResult = "MAINTENANCE_SKIPPED"
	ReconcileUnknownChannel     ReconcileResult = "UNKNOWN_CHANNEL"
)

// ReconcileReport pairs a reading with its effect.
type ReconcileReport struct {
	Channel    int             `json:"channel"`
	Occupied   bool            `json:"occupied"`
	SpaceLabel string          `json:"space_label,omitempty"`
	Result     ReconcileResult `json:"result"`
}

// SensorReconciler folds physical presence readings into space state. It only ever locks the
// one space row a reading addresses.
type SensorReconciler struct {
	store   store.Store
	clock   Clock
	metrics Recorder
	logger  *zap.Logger
}

// NewSensorReconciler builds reconciler.
func NewSensorReconciler(st store.Store, clock Clock, metrics Recorder, logger *zap.Logger) *SensorReconciler {
	if clock == nil {
		clock = SystemClock{}
	}
	if metrics == nil {
		metrics = nopRecorder{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SensorReconciler{store: st, clock: clock, metrics: metrics, logger: logger}
}

// ParseSensorPayload turns a controller report such as {"sensor_1": true} into readings
// ordered by channel. Keys without the sensor prefix are returned, sorted, as ignored; a
// sensor key with a malformed channel fails the whole report.
func ParseSensorPayload(payload map[string]bool, at time.Time) ([]SensorReading, []string, error) {
	readings := make([]SensorReading, 0, len(payload))
	var ignored []string
	for key, occupied := range payload {
		raw, ok := strings.CutPrefix(key, sensorKeyPrefix)
		if !ok {
			ignored = append(ignored, key)
			continue
		}
		channel, err := strconv.Atoi(raw)
		if err != nil || channel <= 0 {
			return nil, nil, fmt.Errorf("sensor: bad channel in %q", key)
		}
		readings = append(readings, SensorReading{Channel: channel, Occupied: occupied, At: at})
	}
	sort.Slice(readings, func(i, j int) bool { return readings[i].Channel < readings[j].Channel })
	sort.Strings(ignored)
	return readings, ignored, nil
}

// Reconcile applies one reading. A session-backed space is never freed by a sensor, and
// spaces under maintenance are never changed. The observation time is always recorded.
func (r *SensorReconciler) Reconcile(ctx context.Context, reading SensorReading) (ReconcileReport, error) {
	started := time.Now()
	if reading.At.IsZero() {
		reading.At = r.clock.Now()
	}
	report := ReconcileReport{Channel: reading.Channel, Occupied: reading.Occupied}

	err := r.store.WithTx(ctx, func(tx store.Tx) error {
		report.Result = ""
		space, err := tx.LockSpaceByChannel(ctx, reading.Channel)
		if errors.Is(err, store.ErrNotFound) {
			report.Result = ReconcileUnknownChannel
			return nil
		}
		if err != nil {
			return fmt.Errorf("lock space: %w", err)
		}
		report.SpaceLabel = space.Label

		at := reading.At
		occupied := reading.Occupied
		space.LastSensorAt = &at
		space.SensorOccupied = &occupied

		switch {
		case space.State == models.SpaceMaintenance:
			report.Result = ReconcileMaintenanceSkipped
		case occupied && space.State == models.SpaceAvailable:
			space.State = models.SpaceOccupied
			report.Result = ReconcileMarkedOccupied
		case !occupied && space.State == models.SpaceOccupied:
			_, err := tx.ActiveSessionForSpace(ctx, space.ID)
			switch {
			case err == nil:
				report.Result = ReconcileAdvisory
			case errors.Is(err, store.ErrNotFound):
				space.State = models.SpaceAvailable
				space.SessionID = nil
				report.Result = ReconcileMarkedAvailable
			default:
				return fmt.Errorf("lookup space session: %w", err)
			}
		default:
			report.Result = ReconcileNoChange
		}

		return tx.UpdateSpace(ctx, space)
	})
	if err != nil {
		r.metrics.Observe("sensor", "error", time.Since(started))
		return ReconcileReport{}, fmt.Errorf("sensor: reconcile channel %d: %w", reading.Channel, err)
	}

	r.metrics.Observe("sensor", string(report.Result), time.Since(started))
	switch report.Result {
	case ReconcileUnknownChannel:
		r.logger.Warn("reading for unknown sensor channel", zap.Int("channel", reading.Channel))
	case ReconcileMarkedOccupied, ReconcileMarkedAvailable:
		r.logger.Info("space state reconciled",
			zap.String("space", report.SpaceLabel), zap.String("result", string(report.Result)))
	}
	return report, nil
}

// ReconcileBatch applies readings one by one, each in its own transaction.
func (r *SensorReconciler) ReconcileBatch(ctx context.Context, readings []SensorReading) ([]ReconcileReport, error) {
	reports := make([]ReconcileReport, 0, len(readings))
	for _, reading := range readings {
		report, err := r.Reconcile(ctx, reading)
		if err != nil {
			return reports, err
		}
		reports = append(reports, report)
	}
	return reports, nil
}
