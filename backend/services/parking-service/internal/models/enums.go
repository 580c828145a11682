package models

// VehicleClass categorises vehicles and the spaces that fit them.
type VehicleClass string

const (
	VehicleClassCar        VehicleClass = "CAR"
	VehicleClassMotorcycle VehicleClass = "MOTORCYCLE"
)

// Valid reports whether the class is one the facility knows.
func (c VehicleClass) Valid() bool {
	switch c {
	case VehicleClassCar, VehicleClassMotorcycle:
		return true
	}
	return false
}

// SpaceState is the occupancy state of a parking space.
type SpaceState string

const (
	SpaceAvailable   SpaceState = "AVAILABLE"
	SpaceOccupied    SpaceState = "OCCUPIED"
	SpaceMaintenance SpaceState = "MAINTENANCE"
)

// SessionState is the lifecycle state of a parking session.
type SessionState string

const (
	SessionActive    SessionState = "ACTIVE"
	SessionFinalized SessionState = "FINALIZED"
)

// TransactionKind distinguishes registration links from recharge links.
type TransactionKind string

const (
	TransactionRegistration TransactionKind = "REGISTRATION"
	TransactionRecharge     TransactionKind = "RECHARGE"
)

// TransactionState is the state of a provisional transaction.
type TransactionState string

const (
	TransactionPending   TransactionState = "PENDING"
	TransactionConfirmed TransactionState = "CONFIRMED"
)
