package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"smartparking/backend/services/parking-service/internal/models"
	"smartparking/backend/services/parking-service/internal/store"
)

func newReconciler(h *harness) *SensorReconciler {
	return NewSensorReconciler(h.store, h.clock, nil, zap.NewNop())
}

func (h *harness) setSpaceState(t *testing.T, label string, state models.SpaceState) {
	t.Helper()
	space := h.spaceByLabel(t, label)
	space.State = state
	require.NoError(t, h.store.WithTx(context.Background(), func(tx store.Tx) error {
		return tx.UpdateSpace(context.Background(), &space)
	}))
}

func TestParseSensorPayload(t *testing.T) {
	readings, ignored, err := ParseSensorPayload(map[string]bool{"sensor_3": true, "sensor_1": false}, baseTime)
	require.NoError(t, err)
	assert.Empty(t, ignored)
	require.Len(t, readings, 2)
	assert.Equal(t, SensorReading{Channel: 1, Occupied: false, At: baseTime}, readings[0])
	assert.Equal(t, SensorReading{Channel: 3, Occupied: true, At: baseTime}, readings[1])

	for _, bad := range []string{"sensor_x", "sensor_0", "sensor_-2", "sensor_"} {
		_, _, err := ParseSensorPayload(map[string]bool{bad: true}, baseTime)
		assert.Error(t, err, bad)
	}
}

func TestParseSensorPayloadSkipsForeignKeys(t *testing.T) {
	readings, ignored, err := ParseSensorPayload(map[string]bool{
		"sensor_2":    true,
		"led_ok":      true,
		"battery_low": false,
	}, baseTime)
	require.NoError(t, err)
	assert.Equal(t, []string{"battery_low", "led_ok"}, ignored)
	require.Len(t, readings, 1)
	assert.Equal(t, 2, readings[0].Channel)
}

func TestReconcileMatrix(t *testing.T) {
	cases := []struct {
		name      string
		prepare   func(t *testing.T, h *harness)
		occupied  bool
		want      ReconcileResult
		wantState models.SpaceState
	}{
		{
			name:      "free space reported occupied",
			occupied:  true,
			want:      ReconcileMarkedOccupied,
			wantState: models.SpaceOccupied,
		},
		{
			name:      "free space reported free",
			occupied:  false,
			want:      ReconcileNoChange,
			wantState: models.SpaceAvailable,
		},
		{
			name: "sensor occupied space reported free",
			prepare: func(t *testing.T, h *harness) {
				h.setSpaceState(t, "A1", models.SpaceOccupied)
			},
			occupied:  false,
			want:      ReconcileMarkedAvailable,
			wantState: models.SpaceAvailable,
		},
		{
			name: "session space reported free",
			prepare: func(t *testing.T, h *harness) {
				h.seedAccount(t, "RFID-1", "ABC123", 20000)
				out, err := h.engine.ProcessEntry(context.Background(), "RFID-1")
				require.NoError(t, err)
				require.Equal(t, EntryAdmitted, out.Result)
			},
			occupied:  false,
			want:      ReconcileAdvisory,
			wantState: models.SpaceOccupied,
		},
		{
			name: "maintenance reported occupied",
			prepare: func(t *testing.T, h *harness) {
				h.setSpaceState(t, "A1", models.SpaceMaintenance)
			},
			occupied:  true,
			want:      ReconcileMaintenanceSkipped,
			wantState: models.SpaceMaintenance,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t, "A1")
			if tc.prepare != nil {
				tc.prepare(t, h)
			}
			at := h.clock.Now().Add(time.Minute)

			report, err := newReconciler(h).Reconcile(context.Background(), SensorReading{Channel: 1, Occupied: tc.occupied, At: at})
			require.NoError(t, err)
			assert.Equal(t, tc.want, report.Result)
			assert.Equal(t, "A1", report.SpaceLabel)

			space := h.spaceByLabel(t, "A1")
			assert.Equal(t, tc.wantState, space.State)
			require.NotNil(t, space.LastSensorAt)
			assert.Equal(t, at, *space.LastSensorAt)
			require.NotNil(t, space.SensorOccupied)
			assert.Equal(t, tc.occupied, *space.SensorOccupied)
		})
	}
}

func TestReconcileKeepsSessionBinding(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, "A1")
	h.seedAccount(t, "RFID-1", "ABC123", 20000)
	entry, err := h.engine.ProcessEntry(ctx, "RFID-1")
	require.NoError(t, err)

	_, err = newReconciler(h).Reconcile(ctx, SensorReading{Channel: 1, Occupied: false})
	require.NoError(t, err)

	space := h.spaceByLabel(t, "A1")
	require.NotNil(t, space.SessionID)
	assert.Equal(t, entry.Session.ID, *space.SessionID)
}

func TestReconcileIsIdempotent(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, "A1")
	r := newReconciler(h)

	first, err := r.Reconcile(ctx, SensorReading{Channel: 1, Occupied: true})
	require.NoError(t, err)
	assert.Equal(t, ReconcileMarkedOccupied, first.Result)

	second, err := r.Reconcile(ctx, SensorReading{Channel: 1, Occupied: true})
	require.NoError(t, err)
	assert.Equal(t, ReconcileNoChange, second.Result)
	assert.Equal(t, models.SpaceOccupied, h.spaceByLabel(t, "A1").State)
}

func TestReconcileUnknownChannel(t *testing.T) {
	h := newHarness(t, "A1")

	report, err := newReconciler(h).Reconcile(context.Background(), SensorReading{Channel: 9, Occupied: true})
	require.NoError(t, err)
	assert.Equal(t, ReconcileUnknownChannel, report.Result)
	assert.Empty(t, report.SpaceLabel)
}

func TestSensorOccupiedSpaceIsNotAllocated(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, "A1", "A2")
	h.seedAccount(t, "RFID-1", "ABC123", 20000)

	_, err := newReconciler(h).Reconcile(ctx, SensorReading{Channel: 1, Occupied: true})
	require.NoError(t, err)

	out, err := h.engine.ProcessEntry(ctx, "RFID-1")
	require.NoError(t, err)
	require.Equal(t, EntryAdmitted, out.Result)
	assert.Equal(t, "A2", out.Space.Label)
}

func TestReconcileBatch(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, "A1", "A2", "A3")

	readings, _, err := ParseSensorPayload(map[string]bool{"sensor_1": true, "sensor_2": false, "sensor_7": true}, h.clock.Now())
	require.NoError(t, err)

	reports, err := newReconciler(h).ReconcileBatch(ctx, readings)
	require.NoError(t, err)
	require.Len(t, reports, 3)
	assert.Equal(t, ReconcileMarkedOccupied, reports[0].Result)
	assert.Equal(t, ReconcileNoChange, reports[1].Result)
	assert.Equal(t, ReconcileUnknownChannel, reports[2].Result)
}

func TestReconcileStampsClockWhenReadingHasNoTime(t *testing.T) {
	h := newHarness(t, "A1")

	_, err := newReconciler(h).Reconcile(context.Background(), SensorReading{Channel: 1, Occupied: true})
	require.NoError(t, err)

	space := h.spaceByLabel(t, "A1")
	require.NotNil(t, space.LastSensorAt)
	assert.Equal(t, baseTime, *space.LastSensorAt)
}
