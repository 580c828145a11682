package service

import (
	"time"

	"github.com/shopspring/decimal"

	"smartparking/backend/services/parking-service/internal/models"
	"smartparking/backend/services/parking-service/internal/store"
)

// EntryResult enumerates processEntry outcomes.
type EntryResult string

const (
	EntryAdmitted               EntryResult = "ENTRY_ADMITTED"
	EntryNewAccountRequired     EntryResult = "NEW_ACCOUNT_REQUIRED"
	EntryDuplicateActiveSession EntryResult = "DUPLICATE_ACTIVE_SESSION"
	EntryInsufficientBalance    EntryResult = "INSUFFICIENT_BALANCE"
	EntryNoSpaceAvailable       EntryResult = "NO_SPACE_AVAILABLE"
	EntryNoVehicleRegistered    EntryResult = "NO_VEHICLE_REGISTERED"
)

// EntryOutcome is the decision for a card presented at the entry gate.
// Fields are populated according to Result.
type EntryOutcome struct {
	Result EntryResult

	// EntryAdmitted
	Account *models.Account
	Vehicle *models.Vehicle
	Space   *models.ParkingSpace
	Session *models.ParkingSession

	// EntryNewAccountRequired
	Token string

	// EntryInsufficientBalance
	Required decimal.Decimal
	Current  decimal.Decimal
}

// ExitResult enumerates processExit outcomes.
type ExitResult string

const (
	ExitAdmitted                  ExitResult = "EXIT_ADMITTED"
	ExitAccountNotFound           ExitResult = "ACCOUNT_NOT_FOUND"
	ExitNoActiveSession           ExitResult = "NO_ACTIVE_SESSION"
	ExitInsufficientBalanceOnExit ExitResult = "INSUFFICIENT_BALANCE_ON_EXIT"
)

// ExitOutcome is the decision for a card presented at the exit gate.
type ExitOutcome struct {
	Result ExitResult

	Account *models.Account
	Session *models.ParkingSession
	Space   *models.ParkingSpace

	// ExitAdmitted
	AmountCharged decimal.Decimal
	NewBalance    decimal.Decimal
	Duration      time.Duration
	DurationLabel string

	// ExitInsufficientBalanceOnExit
	Required decimal.Decimal
	Current  decimal.Decimal
}

// RegistrationResult enumerates completeRegistration outcomes.
type RegistrationResult string

const (
	RegistrationRegistered        RegistrationResult = "REGISTERED"
	RegistrationInvalidToken      RegistrationResult = "INVALID_TOKEN"
	RegistrationDuplicateIdentity RegistrationResult = "DUPLICATE_IDENTITY"
	RegistrationNoSpaceAvailable  RegistrationResult = "NO_SPACE_AVAILABLE"
)

// RegistrationInput is the validated registration form together with its link token.
type RegistrationInput struct {
	Token   string
	Account AccountFields
	Vehicle VehicleFields
}

// RegistrationOutcome is the result of a registration form submission.
type RegistrationOutcome struct {
	Result RegistrationResult

	// RegistrationRegistered
	Account         *models.Account
	Vehicle         *models.Vehicle
	Space           *models.ParkingSpace
	Session         *models.ParkingSession
	RechargeToken   string
	SuggestedAmount decimal.Decimal

	// RegistrationDuplicateIdentity
	ConflictField store.IdentityField
}

// RechargeResult enumerates completeRecharge outcomes.
type RechargeResult string

const (
	RechargeRecharged    RechargeResult = "RECHARGED"
	RechargeInvalidToken RechargeResult = "INVALID_TOKEN"
)

// RechargeOutcome is the result of a settled top-up.
type RechargeOutcome struct {
	Result RechargeResult

	AccountID  int64
	Amount     decimal.Decimal
	NewBalance decimal.Decimal

	// Set when the recharge also admitted the account.
	AutoAdmittedSpace   *models.ParkingSpace
	AutoAdmittedSession *models.ParkingSession
}

// RechargeRequestResult enumerates requestRecharge outcomes.
type RechargeRequestResult string

const (
	RechargeRequestIssued          RechargeRequestResult = "RECHARGE_ISSUED"
	RechargeRequestAccountNotFound RechargeRequestResult = "ACCOUNT_NOT_FOUND"
)

// RechargeRequestOutcome carries a fresh recharge link for an existing account.
type RechargeRequestOutcome struct {
	Result  RechargeRequestResult
	Account *models.Account
	Vehicle *models.Vehicle
	Token   string
}

// GateDecision answers whether the entry barrier should open by itself.
type GateDecision struct {
	Open       bool
	Reason     string
	SpaceLabel string
	EntryAt    *time.Time
}

// Gate decision reasons.
const (
	GateRecentEntry    = "RECENT_ENTRY"
	GateNoRecentEntry  = "NO_RECENT_ENTRY"
	GateNoActive       = "NO_ACTIVE_SESSION"
	GateUnknownAccount = "ACCOUNT_NOT_FOUND"
)
