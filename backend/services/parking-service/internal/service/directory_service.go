package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"smartparking/backend/services/parking-service/internal/models"
	"smartparking/backend/services/parking-service/internal/store"
)

// AccountFields are the validated personal details captured at registration.
type AccountFields struct {
	FullName   string
	NationalID string
	Email      string
	Phone      string
}

// VehicleFields are the validated vehicle details captured at registration.
type VehicleFields struct {
	Plate string
	Class models.VehicleClass
	Color string
	Brand string
}

// DirectoryService resolves credentials and plates to accounts and vehicles.
type DirectoryService struct{}

// NewDirectoryService returns service.
func NewDirectoryService() *DirectoryService {
	return &DirectoryService{}
}

// NormalizeRFID returns the canonical form of a card credential. Readers report the same
// card in either letter case.
func NormalizeRFID(rfid string) string {
	return strings.ToUpper(strings.TrimSpace(rfid))
}

// LockAccountByRFID resolves the credential and holds the account row for the transaction.
func (d *DirectoryService) LockAccountByRFID(ctx context.Context, tx store.AccountStore, rfid string) (*models.Account, error) {
	return tx.LockAccountByRFID(ctx, rfid)
}

// AccountByPlate resolves a plate to its owner.
func (d *DirectoryService) AccountByPlate(ctx context.Context, tx store.AccountStore, plate string) (*models.Account, *models.Vehicle, error) {
	return tx.AccountByPlate(ctx, plate)
}

// VehicleForAccount returns the account's vehicle or nil when none is registered.
func (d *DirectoryService) VehicleForAccount(ctx context.Context, tx store.AccountStore, accountID int64) (*models.Vehicle, error) {
	vehicle, err := tx.VehicleForAccount(ctx, accountID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	return vehicle, err
}

// FindIdentityConflict names the first already-bound attribute among the candidate identity.
func (d *DirectoryService) FindIdentityConflict(ctx context.Context, tx store.AccountStore, account AccountFields, vehicle VehicleFields, rfid string) (store.IdentityField, error) {
	return tx.FindIdentityConflict(ctx, store.IdentityClaim{
		NationalID: account.NationalID,
		Email:      account.Email,
		Plate:      vehicle.Plate,
		RFID:       rfid,
	})
}

// Register creates the account with a zero balance and its first vehicle.
func (d *DirectoryService) Register(ctx context.Context, tx store.AccountStore, account AccountFields, vehicle VehicleFields, rfid string, at time.Time) (*models.Account, *models.Vehicle, error) {
	if !vehicle.Class.Valid() {
		return nil, nil, fmt.Errorf("%w: %q", ErrUnknownVehicleClass, vehicle.Class)
	}
	acc := &models.Account{
		FullName:     account.FullName,
		NationalID:   account.NationalID,
		Email:        account.Email,
		Phone:        account.Phone,
		Balance:      decimal.Zero,
		RFID:         rfid,
		RegisteredAt: at,
	}
	if err := tx.CreateAccount(ctx, acc); err != nil {
		return nil, nil, fmt.Errorf("directory: create account: %w", err)
	}
	veh := &models.Vehicle{
		AccountID: acc.ID,
		Plate:     vehicle.Plate,
		Class:     vehicle.Class,
		Color:     vehicle.Color,
		Brand:     vehicle.Brand,
	}
	if err := tx.CreateVehicle(ctx, veh); err != nil {
		return nil, nil, fmt.Errorf("directory: create vehicle: %w", err)
	}
	return acc, veh, nil
}
