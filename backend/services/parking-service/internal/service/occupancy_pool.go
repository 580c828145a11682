package service

import (
	"context"
	"fmt"

	"smartparking/backend/services/parking-service/internal/models"
	"smartparking/backend/services/parking-service/internal/store"
)

// OccupancyPool hands out and takes back parking spaces.
type OccupancyPool struct{}

// NewOccupancyPool returns pool.
func NewOccupancyPool() *OccupancyPool {
	return &OccupancyPool{}
}

// Allocate claims the first free space of the class for sessionID, or returns
// store.ErrNoSpaceAvailable without side effects.
func (p *OccupancyPool) Allocate(ctx context.Context, tx store.SpaceStore, class models.VehicleClass, sessionID int64) (*models.ParkingSpace, error) {
	return tx.AllocateSpace(ctx, class, sessionID)
}

// HasAvailable reports whether Allocate would currently succeed for the class.
func (p *OccupancyPool) HasAvailable(ctx context.Context, tx store.SpaceStore, class models.VehicleClass) (bool, error) {
	n, err := tx.CountAssignable(ctx, class)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Release frees a space held by sessionID. A space no session holds is left as is.
func (p *OccupancyPool) Release(ctx context.Context, tx store.SpaceStore, spaceID, sessionID int64) (*models.ParkingSpace, error) {
	space, err := tx.LockSpace(ctx, spaceID)
	if err != nil {
		return nil, fmt.Errorf("pool: lock space %d: %w", spaceID, err)
	}
	if space.SessionID == nil {
		return space, nil
	}
	if *space.SessionID != sessionID {
		return nil, fmt.Errorf("%w: space %s holds session %d, release asked for %d",
			ErrSpaceOccupantMismatch, space.Label, *space.SessionID, sessionID)
	}

	space.State = models.SpaceAvailable
	space.SessionID = nil
	if err := tx.UpdateSpace(ctx, space); err != nil {
		return nil, fmt.Errorf("pool: release space %d: %w", spaceID, err)
	}
	return space, nil
}
