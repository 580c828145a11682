package service

import "errors"

var (
	// ErrInvalidToken means no PENDING transaction of the expected kind matches the token.
	ErrInvalidToken = errors.New("service: invalid token")
	// ErrInvalidAmount rejects monetary amounts that are not positive or are missing.
	ErrInvalidAmount = errors.New("service: invalid amount")
	// ErrSpaceOccupantMismatch signals a release for a session that does not hold the space.
	ErrSpaceOccupantMismatch = errors.New("service: space held by another session")
	// ErrSessionNotFinalized is returned when a receipt is requested for an open session.
	ErrSessionNotFinalized = errors.New("service: session not finalized")
	// ErrDataIntegrity marks persisted state that breaks a model invariant.
	ErrDataIntegrity = errors.New("service: data integrity violation")
	// ErrUnknownVehicleClass rejects classes the facility does not serve.
	ErrUnknownVehicleClass = errors.New("service: unknown vehicle class")
	// ErrGateOffline means no barrier controller could receive a command.
	ErrGateOffline = errors.New("service: gate controller not connected")
)

// errAbort rolls a transaction back after the outcome has already been decided.
var errAbort = errors.New("service: abort transaction")
