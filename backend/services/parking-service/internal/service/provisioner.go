package service

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"smartparking/backend/services/parking-service/internal/models"
	"smartparking/backend/services/parking-service/internal/store"
)

// SpaceSeed declares one physical space.
type SpaceSeed struct {
	Label         string
	Class         models.VehicleClass
	SensorChannel int
}

// FareSeed declares the initial schedule of a class.
type FareSeed struct {
	Class       models.VehicleClass
	HourlyRate  decimal.Decimal
	MinimumFare decimal.Decimal
}

// FacilitySeed is the declared layout of the facility.
type FacilitySeed struct {
	Spaces []SpaceSeed
	Fares  []FareSeed
}

// Provision creates declared spaces and fare schedules that do not exist yet. Existing rows,
// including operator edits, are left alone.
func Provision(ctx context.Context, st store.Store, seed FacilitySeed, logger *zap.Logger) error {
	return st.WithTx(ctx, func(tx store.Tx) error {
		for _, f := range seed.Fares {
			if !f.Class.Valid() {
				return fmt.Errorf("provision: fare %w: %q", ErrUnknownVehicleClass, f.Class)
			}
			fare := &models.FareSchedule{Class: f.Class, HourlyRate: f.HourlyRate, MinimumFare: f.MinimumFare}
			created, err := tx.EnsureFare(ctx, fare)
			if err != nil {
				return fmt.Errorf("provision: fare %s: %w", f.Class, err)
			}
			if created {
				logger.Info("fare schedule created", zap.String("class", string(f.Class)))
			}
		}
		for _, sp := range seed.Spaces {
			if !sp.Class.Valid() {
				return fmt.Errorf("provision: space %s %w: %q", sp.Label, ErrUnknownVehicleClass, sp.Class)
			}
			space := &models.ParkingSpace{Label: sp.Label, Class: sp.Class, SensorChannel: sp.SensorChannel}
			created, err := tx.EnsureSpace(ctx, space)
			if err != nil {
				return fmt.Errorf("provision: space %s: %w", sp.Label, err)
			}
			if created {
				logger.Info("parking space created", zap.String("label", sp.Label), zap.Int("channel", sp.SensorChannel))
			}
		}
		return nil
	})
}
