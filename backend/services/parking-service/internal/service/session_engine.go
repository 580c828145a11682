package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"smartparking/backend/libs/money"
	"smartparking/backend/services/parking-service/internal/models"
	"smartparking/backend/services/parking-service/internal/store"
)

// EngineConfig holds facility rules the engine applies.
type EngineConfig struct {
	// RegistrationClass is the class checked for a free space before a registration link is issued.
	RegistrationClass models.VehicleClass
	// SuggestedRechargeMultiplier seeds new-account recharge links with N times the minimum fare.
	SuggestedRechargeMultiplier int64
	// AutoOpenWindow is how long after entry the barrier may open without a swipe.
	AutoOpenWindow time.Duration
}

// EngineDeps are the collaborators of SessionEngine. Cache, Events, Gate and Metrics are optional.
type EngineDeps struct {
	Store     store.Store
	Clock     Clock
	Fares     *FareService
	Directory *DirectoryService
	Ledger    *LedgerService
	Pool      *OccupancyPool
	Tokens    *TokenRegistry
	Cache     ActiveCache
	Events    Publisher
	Gate      GateNotifier
	Metrics   Recorder
	Logger    *zap.Logger
}

// SessionEngine decides entries, exits, registrations and recharges.
type SessionEngine struct {
	store     store.Store
	clock     Clock
	fares     *FareService
	directory *DirectoryService
	ledger    *LedgerService
	pool      *OccupancyPool
	tokens    *TokenRegistry
	cache     ActiveCache
	events    Publisher
	gate      GateNotifier
	metrics   Recorder
	logger    *zap.Logger
	cfg       EngineConfig
}

// NewSessionEngine builds engine.
func NewSessionEngine(deps EngineDeps, cfg EngineConfig) *SessionEngine {
	if cfg.RegistrationClass == "" {
		cfg.RegistrationClass = models.VehicleClassCar
	}
	if cfg.SuggestedRechargeMultiplier <= 0 {
		cfg.SuggestedRechargeMultiplier = 2
	}
	if cfg.AutoOpenWindow <= 0 {
		cfg.AutoOpenWindow = 30 * time.Second
	}
	e := &SessionEngine{
		store:     deps.Store,
		clock:     deps.Clock,
		fares:     deps.Fares,
		directory: deps.Directory,
		ledger:    deps.Ledger,
		pool:      deps.Pool,
		tokens:    deps.Tokens,
		cache:     deps.Cache,
		events:    deps.Events,
		gate:      deps.Gate,
		metrics:   deps.Metrics,
		logger:    deps.Logger,
		cfg:       cfg,
	}
	if e.clock == nil {
		e.clock = SystemClock{}
	}
	if e.cache == nil {
		e.cache = nopCache{}
	}
	if e.events == nil {
		e.events = nopPublisher{}
	}
	if e.gate == nil {
		e.gate = nopGate{}
	}
	if e.metrics == nil {
		e.metrics = nopRecorder{}
	}
	if e.logger == nil {
		e.logger = zap.NewNop()
	}
	return e
}

// inTx runs fn in one transaction. errAbort rolls back without surfacing as an error.
func (e *SessionEngine) inTx(ctx context.Context, fn func(tx store.Tx) error) error {
	err := e.store.WithTx(ctx, fn)
	if errors.Is(err, errAbort) {
		return nil
	}
	return err
}

// admit creates an ACTIVE session and binds a space to it. On store.ErrNoSpaceAvailable the
// session row already exists, so the caller must roll back.
func (e *SessionEngine) admit(ctx context.Context, tx store.Tx, account *models.Account, vehicle *models.Vehicle, at time.Time) (*models.ParkingSession, *models.ParkingSpace, error) {
	session := &models.ParkingSession{
		AccountID: account.ID,
		VehicleID: vehicle.ID,
		EntryAt:   at,
		State:     models.SessionActive,
	}
	if err := tx.CreateSession(ctx, session); err != nil {
		return nil, nil, fmt.Errorf("create session: %w", err)
	}
	space, err := e.pool.Allocate(ctx, tx, vehicle.Class, session.ID)
	if err != nil {
		return nil, nil, err
	}
	if err := tx.SetSessionSpace(ctx, session.ID, space.ID); err != nil {
		return nil, nil, fmt.Errorf("bind session space: %w", err)
	}
	session.SpaceID = &space.ID
	return session, space, nil
}

// ProcessEntry decides a card swipe at the entry gate.
func (e *SessionEngine) ProcessEntry(ctx context.Context, rfid string) (EntryOutcome, error) {
	started := time.Now()
	rfid = NormalizeRFID(rfid)
	var out EntryOutcome

	err := e.inTx(ctx, func(tx store.Tx) error {
		out = EntryOutcome{}
		now := e.clock.Now()

		account, err := e.directory.LockAccountByRFID(ctx, tx, rfid)
		if errors.Is(err, store.ErrNotFound) {
			return e.offerRegistration(ctx, tx, rfid, &out)
		}
		if err != nil {
			return fmt.Errorf("lookup account: %w", err)
		}
		out.Account = account

		if _, err := tx.ActiveSessionForAccount(ctx, account.ID); err == nil {
			out.Result = EntryDuplicateActiveSession
			return nil
		} else if !errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("lookup active session: %w", err)
		}

		vehicle, err := e.directory.VehicleForAccount(ctx, tx, account.ID)
		if err != nil {
			return fmt.Errorf("lookup vehicle: %w", err)
		}
		class := e.cfg.RegistrationClass
		if vehicle != nil {
			class = vehicle.Class
		}

		minimum, err := e.fares.MinimumFareFor(ctx, tx, class)
		if err != nil {
			return err
		}
		if account.Balance.LessThan(minimum) {
			out.Result = EntryInsufficientBalance
			out.Required = minimum
			out.Current = account.Balance
			return nil
		}

		if vehicle == nil {
			e.logger.Error("account has no registered vehicle",
				zap.Int64("account_id", account.ID), zap.Error(ErrDataIntegrity))
			out.Result = EntryNoVehicleRegistered
			return nil
		}
		out.Vehicle = vehicle

		session, space, err := e.admit(ctx, tx, account, vehicle, now)
		if errors.Is(err, store.ErrNoSpaceAvailable) {
			out.Result = EntryNoSpaceAvailable
			return errAbort
		}
		if err != nil {
			return err
		}
		out.Result = EntryAdmitted
		out.Session = session
		out.Space = space
		return nil
	})
	if err != nil {
		e.metrics.Observe("entry", "error", time.Since(started))
		return EntryOutcome{}, fmt.Errorf("engine: process entry: %w", err)
	}

	e.metrics.Observe("entry", string(out.Result), time.Since(started))
	e.logger.Info("entry decided", zap.String("rfid", rfid), zap.String("result", string(out.Result)))
	if out.Result == EntryAdmitted {
		e.afterAdmission(ctx, rfid, out.Account, out.Vehicle, out.Session, out.Space)
	}
	return out, nil
}

// offerRegistration handles an unknown credential: a registration link is issued only when
// a space of the registration class is free. The credential lock keeps concurrent swipes of
// the same card from leaving two pending registrations behind.
func (e *SessionEngine) offerRegistration(ctx context.Context, tx store.Tx, rfid string, out *EntryOutcome) error {
	if err := tx.LockCredential(ctx, rfid); err != nil {
		return fmt.Errorf("lock credential: %w", err)
	}
	free, err := e.pool.HasAvailable(ctx, tx, e.cfg.RegistrationClass)
	if err != nil {
		return fmt.Errorf("check spaces: %w", err)
	}
	if !free {
		out.Result = EntryNoSpaceAvailable
		return nil
	}
	credential := rfid
	issued, err := e.tokens.Issue(ctx, tx, IssueRequest{
		Kind:   models.TransactionRegistration,
		RFID:   &credential,
		Amount: decimal.Zero,
	})
	if err != nil {
		return err
	}
	out.Result = EntryNewAccountRequired
	out.Token = issued.Token
	return nil
}

// ProcessExit decides a card swipe at the exit gate. Charging, finalizing and releasing the
// space commit together or not at all.
func (e *SessionEngine) ProcessExit(ctx context.Context, rfid string) (ExitOutcome, error) {
	started := time.Now()
	rfid = NormalizeRFID(rfid)
	var out ExitOutcome

	err := e.inTx(ctx, func(tx store.Tx) error {
		out = ExitOutcome{}
		now := e.clock.Now()

		account, err := e.directory.LockAccountByRFID(ctx, tx, rfid)
		if errors.Is(err, store.ErrNotFound) {
			out.Result = ExitAccountNotFound
			return nil
		}
		if err != nil {
			return fmt.Errorf("lookup account: %w", err)
		}
		out.Account = account

		session, err := tx.ActiveSessionForAccount(ctx, account.ID)
		if errors.Is(err, store.ErrNotFound) {
			out.Result = ExitNoActiveSession
			return nil
		}
		if err != nil {
			return fmt.Errorf("lookup active session: %w", err)
		}
		out.Session = session

		vehicle, err := tx.VehicleByID(ctx, session.VehicleID)
		if err != nil {
			return fmt.Errorf("%w: session %d vehicle: %v", ErrDataIntegrity, session.ID, err)
		}
		schedule, err := e.fares.RateFor(ctx, tx, vehicle.Class)
		if err != nil {
			return err
		}
		fare := ComputeFare(schedule, session.EntryAt, now)

		if account.Balance.LessThan(fare.Amount) {
			out.Result = ExitInsufficientBalanceOnExit
			out.Required = fare.Amount
			out.Current = account.Balance
			return nil
		}

		balance, err := e.ledger.Charge(ctx, tx, account.ID, fare.Amount)
		if errors.Is(err, store.ErrInsufficientBalance) {
			out.Result = ExitInsufficientBalanceOnExit
			out.Required = fare.Amount
			out.Current = account.Balance
			return errAbort
		}
		if err != nil {
			return fmt.Errorf("charge: %w", err)
		}

		if err := tx.FinalizeSession(ctx, session.ID, models.SessionFinalization{
			ExitAt:        now,
			AmountCharged: fare.Amount,
			DurationLabel: fare.DurationLabel,
			HourlyRate:    schedule.HourlyRate,
			MinimumFare:   schedule.MinimumFare,
		}); err != nil {
			return fmt.Errorf("finalize session: %w", err)
		}

		if session.SpaceID != nil {
			space, err := e.pool.Release(ctx, tx, *session.SpaceID, session.ID)
			if err != nil {
				return err
			}
			out.Space = space
		}

		exitAt := now
		amount := fare.Amount
		label := fare.DurationLabel
		rate, minimum := schedule.HourlyRate, schedule.MinimumFare
		session.State = models.SessionFinalized
		session.ExitAt = &exitAt
		session.AmountCharged = &amount
		session.DurationLabel = &label
		session.HourlyRate = &rate
		session.MinimumFare = &minimum

		out.Result = ExitAdmitted
		out.AmountCharged = fare.Amount
		out.NewBalance = balance
		out.Duration = fare.Elapsed
		out.DurationLabel = fare.DurationLabel
		return nil
	})
	if err != nil {
		e.metrics.Observe("exit", "error", time.Since(started))
		return ExitOutcome{}, fmt.Errorf("engine: process exit: %w", err)
	}

	e.metrics.Observe("exit", string(out.Result), time.Since(started))
	e.logger.Info("exit decided", zap.String("rfid", rfid), zap.String("result", string(out.Result)))
	if out.Result == ExitAdmitted {
		e.afterExit(ctx, rfid, out)
	}
	return out, nil
}

// CompleteRegistration redeems a registration link. Every non-registered outcome rolls the
// whole attempt back, so the link stays usable for a corrected submission.
func (e *SessionEngine) CompleteRegistration(ctx context.Context, in RegistrationInput) (RegistrationOutcome, error) {
	started := time.Now()
	var (
		out  RegistrationOutcome
		rfid string
	)

	err := e.inTx(ctx, func(tx store.Tx) error {
		out = RegistrationOutcome{}
		now := e.clock.Now()

		txn, err := e.tokens.Consume(ctx, tx, in.Token, models.TransactionRegistration)
		if errors.Is(err, ErrInvalidToken) {
			out.Result = RegistrationInvalidToken
			return nil
		}
		if err != nil {
			return err
		}
		if txn.RFID == nil || *txn.RFID == "" {
			return fmt.Errorf("%w: registration %d carries no credential", ErrDataIntegrity, txn.ID)
		}
		rfid = *txn.RFID

		field, err := e.directory.FindIdentityConflict(ctx, tx, in.Account, in.Vehicle, rfid)
		if err != nil {
			return fmt.Errorf("identity check: %w", err)
		}
		if field != store.IdentityNone {
			out.Result = RegistrationDuplicateIdentity
			out.ConflictField = field
			return errAbort
		}

		free, err := e.pool.HasAvailable(ctx, tx, in.Vehicle.Class)
		if err != nil {
			return fmt.Errorf("check spaces: %w", err)
		}
		if !free {
			out.Result = RegistrationNoSpaceAvailable
			return errAbort
		}

		account, vehicle, err := e.directory.Register(ctx, tx, in.Account, in.Vehicle, rfid, now)
		if errors.Is(err, store.ErrDuplicate) {
			out.Result = RegistrationDuplicateIdentity
			return errAbort
		}
		if err != nil {
			return err
		}

		session, space, err := e.admit(ctx, tx, account, vehicle, now)
		if errors.Is(err, store.ErrNoSpaceAvailable) {
			out.Result = RegistrationNoSpaceAvailable
			return errAbort
		}
		if err != nil {
			return err
		}

		minimum, err := e.fares.MinimumFareFor(ctx, tx, vehicle.Class)
		if err != nil {
			return err
		}
		suggested := minimum.Mul(decimal.NewFromInt(e.cfg.SuggestedRechargeMultiplier))
		recharge, err := e.tokens.Issue(ctx, tx, IssueRequest{
			Kind:      models.TransactionRecharge,
			AccountID: &account.ID,
			Amount:    suggested,
		})
		if err != nil {
			return err
		}

		if err := tx.BindTransactionAccount(ctx, txn.ID, account.ID); err != nil {
			return fmt.Errorf("bind registration: %w", err)
		}

		out.Result = RegistrationRegistered
		out.Account = account
		out.Vehicle = vehicle
		out.Session = session
		out.Space = space
		out.RechargeToken = recharge.Token
		out.SuggestedAmount = suggested
		return nil
	})
	if err != nil {
		e.metrics.Observe("registration", "error", time.Since(started))
		return RegistrationOutcome{}, fmt.Errorf("engine: complete registration: %w", err)
	}

	e.metrics.Observe("registration", string(out.Result), time.Since(started))
	e.logger.Info("registration decided", zap.String("result", string(out.Result)),
		zap.String("conflict", string(out.ConflictField)))
	if out.Result == RegistrationRegistered {
		e.publish(ctx, EventAccountRegistered, map[string]any{
			"account_id": out.Account.ID,
			"plate":      out.Vehicle.Plate,
		})
		e.afterAdmission(ctx, rfid, out.Account, out.Vehicle, out.Session, out.Space)
	}
	return out, nil
}

// CompleteRecharge redeems a recharge link and credits the account. A nil amount credits the
// amount the link was seeded with; a given amount must stay positive once rounded to cents.
// Admission of a waiting account is attempted afterwards in its own transaction and never
// undoes the credit.
func (e *SessionEngine) CompleteRecharge(ctx context.Context, token string, amount *decimal.Decimal) (RechargeOutcome, error) {
	started := time.Now()
	if amount != nil {
		rounded := money.Round(*amount)
		if !rounded.IsPositive() {
			return RechargeOutcome{}, fmt.Errorf("engine: complete recharge: %w: %s", ErrInvalidAmount, amount)
		}
		amount = &rounded
	}

	var out RechargeOutcome
	err := e.inTx(ctx, func(tx store.Tx) error {
		out = RechargeOutcome{}

		txn, err := e.tokens.Consume(ctx, tx, token, models.TransactionRecharge)
		if errors.Is(err, ErrInvalidToken) {
			out.Result = RechargeInvalidToken
			return nil
		}
		if err != nil {
			return err
		}
		if txn.AccountID == nil {
			return fmt.Errorf("%w: recharge %d has no account", ErrDataIntegrity, txn.ID)
		}

		credit := txn.Amount
		if amount != nil {
			credit = *amount
		}
		if !credit.IsPositive() {
			return fmt.Errorf("%w: nothing to credit", ErrInvalidAmount)
		}
		if err := tx.SetTransactionAmount(ctx, txn.ID, credit); err != nil {
			return fmt.Errorf("record amount: %w", err)
		}
		balance, err := e.ledger.Credit(ctx, tx, *txn.AccountID, credit)
		if err != nil {
			return fmt.Errorf("credit: %w", err)
		}

		out.Result = RechargeRecharged
		out.AccountID = *txn.AccountID
		out.Amount = credit
		out.NewBalance = balance
		return nil
	})
	if err != nil {
		e.metrics.Observe("recharge", "error", time.Since(started))
		return RechargeOutcome{}, fmt.Errorf("engine: complete recharge: %w", err)
	}

	e.metrics.Observe("recharge", string(out.Result), time.Since(started))
	e.logger.Info("recharge decided", zap.String("result", string(out.Result)), zap.Int64("account_id", out.AccountID))
	if out.Result != RechargeRecharged {
		return out, nil
	}

	e.publish(ctx, EventBalanceRecharged, map[string]any{
		"account_id":  out.AccountID,
		"amount":      out.Amount,
		"new_balance": out.NewBalance,
	})

	session, space, err := e.autoAdmit(ctx, out.AccountID)
	if err != nil {
		e.logger.Warn("auto admission after recharge failed", zap.Int64("account_id", out.AccountID), zap.Error(err))
		return out, nil
	}
	out.AutoAdmittedSession = session
	out.AutoAdmittedSpace = space
	return out, nil
}

// autoAdmit admits an account that has just topped up, if it is not inside, can afford the
// minimum fare and a space is free. A nil session means nothing was done.
func (e *SessionEngine) autoAdmit(ctx context.Context, accountID int64) (*models.ParkingSession, *models.ParkingSpace, error) {
	var (
		account *models.Account
		vehicle *models.Vehicle
		session *models.ParkingSession
		space   *models.ParkingSpace
	)
	err := e.inTx(ctx, func(tx store.Tx) error {
		session, space = nil, nil

		var err error
		account, err = tx.LockAccount(ctx, accountID)
		if err != nil {
			return fmt.Errorf("lock account: %w", err)
		}
		if _, err := tx.ActiveSessionForAccount(ctx, accountID); err == nil {
			return nil
		} else if !errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("lookup active session: %w", err)
		}

		vehicle, err = e.directory.VehicleForAccount(ctx, tx, accountID)
		if err != nil {
			return fmt.Errorf("lookup vehicle: %w", err)
		}
		if vehicle == nil {
			return fmt.Errorf("%w: account %d has no vehicle", ErrDataIntegrity, accountID)
		}

		minimum, err := e.fares.MinimumFareFor(ctx, tx, vehicle.Class)
		if err != nil {
			return err
		}
		if account.Balance.LessThan(minimum) {
			return nil
		}

		session, space, err = e.admit(ctx, tx, account, vehicle, e.clock.Now())
		if errors.Is(err, store.ErrNoSpaceAvailable) {
			session, space = nil, nil
			return errAbort
		}
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	if session != nil {
		e.logger.Info("account admitted after recharge", zap.Int64("account_id", accountID), zap.String("space", space.Label))
		e.metrics.Observe("auto_admit", string(EntryAdmitted), 0)
		e.afterAdmission(ctx, account.RFID, account, vehicle, session, space)
		err := e.gate.OpenBarrier(ctx, GateCommand{
			Reason:     GateReasonRechargeAdmission,
			RFID:       account.RFID,
			SpaceLabel: space.Label,
			SessionID:  session.ID,
		})
		if err != nil {
			e.logger.Warn("failed to open barrier after recharge", zap.Int64("session_id", session.ID), zap.Error(err))
		}
	}
	return session, space, nil
}

// RequestRecharge opens a recharge link for the account owning plate. The amount is chosen
// when the link is redeemed.
func (e *SessionEngine) RequestRecharge(ctx context.Context, plate string) (RechargeRequestOutcome, error) {
	var out RechargeRequestOutcome
	err := e.inTx(ctx, func(tx store.Tx) error {
		out = RechargeRequestOutcome{}

		account, vehicle, err := e.directory.AccountByPlate(ctx, tx, plate)
		if errors.Is(err, store.ErrNotFound) {
			out.Result = RechargeRequestAccountNotFound
			return nil
		}
		if err != nil {
			return fmt.Errorf("lookup plate: %w", err)
		}
		issued, err := e.tokens.Issue(ctx, tx, IssueRequest{
			Kind:      models.TransactionRecharge,
			AccountID: &account.ID,
			Amount:    decimal.Zero,
		})
		if err != nil {
			return err
		}
		out.Result = RechargeRequestIssued
		out.Account = account
		out.Vehicle = vehicle
		out.Token = issued.Token
		return nil
	})
	if err != nil {
		return RechargeRequestOutcome{}, fmt.Errorf("engine: request recharge: %w", err)
	}
	e.logger.Info("recharge requested", zap.String("plate", plate), zap.String("result", string(out.Result)))
	return out, nil
}

// PeekToken reports whether token is a redeemable link of kind without consuming it.
func (e *SessionEngine) PeekToken(ctx context.Context, token string, kind models.TransactionKind) (*models.ProvisionalTransaction, error) {
	var txn *models.ProvisionalTransaction
	err := e.store.WithTx(ctx, func(tx store.Tx) error {
		var err error
		txn, err = e.tokens.Peek(ctx, tx, token, kind)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("engine: peek token: %w", err)
	}
	return txn, nil
}

// CheckAutoOpen reports whether the credential's session started within the auto-open window.
func (e *SessionEngine) CheckAutoOpen(ctx context.Context, rfid string) (GateDecision, error) {
	now := e.clock.Now()
	rfid = NormalizeRFID(rfid)

	cached, err := e.cache.Get(ctx, rfid)
	if err != nil {
		e.logger.Warn("admission cache read failed", zap.String("rfid", rfid), zap.Error(err))
	}
	if cached != nil && e.withinWindow(cached.EntryAt, now) {
		entry := cached.EntryAt
		return GateDecision{Open: true, Reason: GateRecentEntry, SpaceLabel: cached.SpaceLabel, EntryAt: &entry}, nil
	}

	var decision GateDecision
	err = e.store.WithTx(ctx, func(tx store.Tx) error {
		decision = GateDecision{}

		account, err := tx.AccountByRFID(ctx, rfid)
		if errors.Is(err, store.ErrNotFound) {
			decision.Reason = GateUnknownAccount
			return nil
		}
		if err != nil {
			return err
		}
		session, err := tx.ActiveSessionForAccount(ctx, account.ID)
		if errors.Is(err, store.ErrNotFound) {
			decision.Reason = GateNoActive
			return nil
		}
		if err != nil {
			return err
		}
		entry := session.EntryAt
		decision.EntryAt = &entry
		if session.SpaceID != nil {
			space, err := tx.SpaceByID(ctx, *session.SpaceID)
			if err != nil {
				return err
			}
			decision.SpaceLabel = space.Label
		}
		if e.withinWindow(session.EntryAt, now) {
			decision.Open = true
			decision.Reason = GateRecentEntry
		} else {
			decision.Reason = GateNoRecentEntry
		}
		return nil
	})
	if err != nil {
		return GateDecision{}, fmt.Errorf("engine: check auto open: %w", err)
	}
	return decision, nil
}

// OpenBarrier lifts a barrier on operator request. An empty deviceID addresses every
// connected controller.
func (e *SessionEngine) OpenBarrier(ctx context.Context, deviceID, reason string) error {
	started := time.Now()
	if reason == "" {
		reason = GateReasonManual
	}
	err := e.gate.OpenBarrier(ctx, GateCommand{DeviceID: deviceID, Reason: reason})
	if err != nil {
		e.metrics.Observe("manual_open", "error", time.Since(started))
		return fmt.Errorf("engine: open barrier: %w", err)
	}
	e.metrics.Observe("manual_open", "opened", time.Since(started))
	e.logger.Info("barrier opened manually", zap.String("device_id", deviceID), zap.String("reason", reason))
	return nil
}

func (e *SessionEngine) withinWindow(entry, now time.Time) bool {
	elapsed := now.Sub(entry)
	return elapsed >= 0 && elapsed <= e.cfg.AutoOpenWindow
}

func (e *SessionEngine) afterAdmission(ctx context.Context, rfid string, account *models.Account, vehicle *models.Vehicle, session *models.ParkingSession, space *models.ParkingSpace) {
	if err := e.cache.Save(ctx, Admission{
		SessionID:  session.ID,
		AccountID:  account.ID,
		RFID:       rfid,
		SpaceLabel: space.Label,
		EntryAt:    session.EntryAt,
	}); err != nil {
		e.logger.Warn("failed to cache admission", zap.Int64("session_id", session.ID), zap.Error(err))
	}
	e.publish(ctx, EventSessionStarted, map[string]any{
		"session_id": session.ID,
		"account_id": account.ID,
		"plate":      vehicle.Plate,
		"space":      space.Label,
		"entry_at":   session.EntryAt,
	})
}

func (e *SessionEngine) afterExit(ctx context.Context, rfid string, out ExitOutcome) {
	if err := e.cache.Delete(ctx, rfid); err != nil {
		e.logger.Warn("failed to drop cached admission", zap.String("rfid", rfid), zap.Error(err))
	}
	e.metrics.Charged(out.AmountCharged)
	e.publish(ctx, EventSessionFinalized, map[string]any{
		"session_id":     out.Session.ID,
		"account_id":     out.Account.ID,
		"amount_charged": out.AmountCharged,
		"duration":       out.DurationLabel,
	})
}

func (e *SessionEngine) publish(ctx context.Context, eventType string, payload any) {
	event := Event{Type: eventType, OccurredAt: e.clock.Now(), Payload: payload}
	if err := e.events.Publish(ctx, event); err != nil {
		e.logger.Warn("failed to publish event", zap.String("type", eventType), zap.Error(err))
	}
}
