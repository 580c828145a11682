// Package store defines the persistence boundary of the parking service. Every mutation
// happens inside Store.WithTx so a failed operation leaves no partial effects behind.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"smartparking/backend/services/parking-service/internal/models"
)

var (
	// ErrNotFound is returned by lookups that match no row.
	ErrNotFound = errors.New("store: not found")
	// ErrDuplicate is returned when a unique attribute is already taken.
	ErrDuplicate = errors.New("store: duplicate")
	// ErrNoSpaceAvailable is returned by AllocateSpace when no space of the class is free.
	ErrNoSpaceAvailable = errors.New("store: no space available")
	// ErrInsufficientBalance is returned by DebitBalance when the balance would go negative.
	ErrInsufficientBalance = errors.New("store: insufficient balance")
)

// IdentityField names the unique attribute that collided during registration.
type IdentityField string

const (
	IdentityNone       IdentityField = ""
	IdentityNationalID IdentityField = "national_id"
	IdentityEmail      IdentityField = "email"
	IdentityPlate      IdentityField = "plate"
	IdentityRFID       IdentityField = "rfid"
)

// IdentityClaim lists the attributes a new registration wants to claim.
type IdentityClaim struct {
	NationalID string
	Email      string
	Plate      string
	RFID       string
}

// SessionQuery filters session history.
type SessionQuery struct {
	Plate string
	Limit int
}

// RechargeQuery filters recharge history.
type RechargeQuery struct {
	AccountID *int64
	Limit     int
}

// Store opens transactions. fn's error (or panic) rolls everything back.
type Store interface {
	WithTx(ctx context.Context, fn func(tx Tx) error) error
}

// Tx is the unit of work handed to WithTx callbacks.
type Tx interface {
	AccountStore
	SpaceStore
	SessionStore
	FareStore
	TransactionStore
	ReportStore
}

// AccountStore covers accounts, vehicles and balances.
type AccountStore interface {
	AccountByID(ctx context.Context, id int64) (*models.Account, error)
	AccountByRFID(ctx context.Context, rfid string) (*models.Account, error)
	// LockAccountByRFID returns the account and holds it until the transaction ends.
	LockAccountByRFID(ctx context.Context, rfid string) (*models.Account, error)
	LockAccount(ctx context.Context, id int64) (*models.Account, error)
	AccountByPlate(ctx context.Context, plate string) (*models.Account, *models.Vehicle, error)
	FindIdentityConflict(ctx context.Context, claim IdentityClaim) (IdentityField, error)
	CreateAccount(ctx context.Context, account *models.Account) error
	CreateVehicle(ctx context.Context, vehicle *models.Vehicle) error
	// VehicleForAccount returns the account's first registered vehicle.
	VehicleForAccount(ctx context.Context, accountID int64) (*models.Vehicle, error)
	VehicleByID(ctx context.Context, id int64) (*models.Vehicle, error)
	DebitBalance(ctx context.Context, accountID int64, amount decimal.Decimal) (decimal.Decimal, error)
	CreditBalance(ctx context.Context, accountID int64, amount decimal.Decimal) (decimal.Decimal, error)
}

// SpaceStore covers parking spaces.
type SpaceStore interface {
	// AllocateSpace claims the first assignable space of the class for sessionID, in
	// models.LabelLess order.
	AllocateSpace(ctx context.Context, class models.VehicleClass, sessionID int64) (*models.ParkingSpace, error)
	CountAssignable(ctx context.Context, class models.VehicleClass) (int64, error)
	LockSpace(ctx context.Context, id int64) (*models.ParkingSpace, error)
	LockSpaceByChannel(ctx context.Context, channel int) (*models.ParkingSpace, error)
	SpaceByID(ctx context.Context, id int64) (*models.ParkingSpace, error)
	// UpdateSpace writes state, session and sensor columns of a previously loaded space.
	UpdateSpace(ctx context.Context, space *models.ParkingSpace) error
	ListSpaces(ctx context.Context) ([]models.ParkingSpace, error)
	// EnsureSpace inserts the space if its label is unknown and reports whether it did.
	EnsureSpace(ctx context.Context, space *models.ParkingSpace) (bool, error)
}

// SessionStore covers parking sessions.
type SessionStore interface {
	CreateSession(ctx context.Context, session *models.ParkingSession) error
	SetSessionSpace(ctx context.Context, sessionID, spaceID int64) error
	SessionByID(ctx context.Context, id int64) (*models.ParkingSession, error)
	ActiveSessionForAccount(ctx context.Context, accountID int64) (*models.ParkingSession, error)
	ActiveSessionForSpace(ctx context.Context, spaceID int64) (*models.ParkingSession, error)
	FinalizeSession(ctx context.Context, sessionID int64, fin models.SessionFinalization) error
	LatestFinalizedSessionByPlate(ctx context.Context, plate string) (*models.ParkingSession, error)
	ListSessions(ctx context.Context, q SessionQuery) ([]models.SessionRecord, error)
	// OccupantsBySpace maps space id to the holder of its ACTIVE session.
	OccupantsBySpace(ctx context.Context) (map[int64]models.Occupant, error)
}

// FareStore covers fare schedules.
type FareStore interface {
	ActiveFare(ctx context.Context, class models.VehicleClass) (*models.FareSchedule, error)
	// EnsureFare inserts the schedule as active if the class has no active schedule yet.
	EnsureFare(ctx context.Context, fare *models.FareSchedule) (bool, error)
}

// TransactionStore covers provisional transactions.
type TransactionStore interface {
	// CreateTransaction returns ErrDuplicate if the token hash is already present.
	CreateTransaction(ctx context.Context, txn *models.ProvisionalTransaction) error
	// LockCredential holds an exclusive lock on an unregistered credential until the
	// transaction ends.
	LockCredential(ctx context.Context, rfid string) error
	DeletePendingRegistrations(ctx context.Context, rfid string) (int64, error)
	// ConfirmTransaction flips a PENDING row of the kind created at or after notBefore to
	// CONFIRMED. A zero notBefore disables the age check. No match yields ErrNotFound.
	ConfirmTransaction(ctx context.Context, tokenHash string, kind models.TransactionKind, notBefore, confirmedAt time.Time) (*models.ProvisionalTransaction, error)
	TransactionByHash(ctx context.Context, tokenHash string) (*models.ProvisionalTransaction, error)
	BindTransactionAccount(ctx context.Context, id, accountID int64) error
	SetTransactionAmount(ctx context.Context, id int64, amount decimal.Decimal) error
	ListRecharges(ctx context.Context, q RechargeQuery) ([]models.RechargeRecord, error)
}

// ReportStore covers aggregate reads.
type ReportStore interface {
	DailyCounts(ctx context.Context, from, to time.Time) (models.DailyCounts, error)
	SystemCounts(ctx context.Context) (models.SystemCounts, error)
}
