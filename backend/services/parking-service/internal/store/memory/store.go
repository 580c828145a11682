// Package memory is an in-process Store. Transactions are serialized by a single mutex and
// undone from a log when the callback fails, so readers never observe partial work.
//
// The mutex covers the whole store, so a sensor batch waits behind any entry or exit in
// flight. Use it for tests and single-user development. The postgres driver locks per row.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"smartparking/backend/services/parking-service/internal/models"
	"smartparking/backend/services/parking-service/internal/store"
)

// Store keeps every table in maps keyed by id.
type Store struct {
	mu sync.Mutex

	accounts map[int64]models.Account
	vehicles map[int64]models.Vehicle
	spaces   map[int64]models.ParkingSpace
	sessions map[int64]models.ParkingSession
	fares    map[int64]models.FareSchedule
	txns     map[int64]models.ProvisionalTransaction

	// Sequences are not rolled back, matching database sequences.
	nextID int64
}

var _ store.Store = (*Store)(nil)

// New returns an empty store.
func New() *Store {
	return &Store{
		accounts: make(map[int64]models.Account),
		vehicles: make(map[int64]models.Vehicle),
		spaces:   make(map[int64]models.ParkingSpace),
		sessions: make(map[int64]models.ParkingSession),
		fares:    make(map[int64]models.FareSchedule),
		txns:     make(map[int64]models.ProvisionalTransaction),
	}
}

// WithTx runs fn while holding the store lock and undoes its writes if it fails or panics.
func (s *Store) WithTx(ctx context.Context, fn func(tx store.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memTx{s: s}
	committed := false
	defer func() {
		if !committed {
			tx.rollback()
		}
	}()

	if err := fn(tx); err != nil {
		return err
	}
	committed = true
	return nil
}

func (s *Store) id() int64 {
	s.nextID++
	return s.nextID
}

type memTx struct {
	s    *Store
	undo []func()
}

var _ store.Tx = (*memTx)(nil)

func (t *memTx) rollback() {
	for i := len(t.undo) - 1; i >= 0; i-- {
		t.undo[i]()
	}
	t.undo = nil
}

func put[T any](t *memTx, m map[int64]T, id int64, v T) {
	prev, existed := m[id]
	t.undo = append(t.undo, func() {
		if existed {
			m[id] = prev
		} else {
			delete(m, id)
		}
	})
	m[id] = v
}

func remove[T any](t *memTx, m map[int64]T, id int64) {
	prev, existed := m[id]
	if !existed {
		return
	}
	t.undo = append(t.undo, func() { m[id] = prev })
	delete(m, id)
}

func cloneInt64(p *int64) *int64 {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneTime(p *time.Time) *time.Time {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneSpace(sp models.ParkingSpace) *models.ParkingSpace {
	sp.SessionID = cloneInt64(sp.SessionID)
	sp.LastSensorAt = cloneTime(sp.LastSensorAt)
	if sp.SensorOccupied != nil {
		v := *sp.SensorOccupied
		sp.SensorOccupied = &v
	}
	return &sp
}

func cloneSession(ps models.ParkingSession) *models.ParkingSession {
	ps.SpaceID = cloneInt64(ps.SpaceID)
	ps.ExitAt = cloneTime(ps.ExitAt)
	if ps.AmountCharged != nil {
		v := *ps.AmountCharged
		ps.AmountCharged = &v
	}
	if ps.DurationLabel != nil {
		v := *ps.DurationLabel
		ps.DurationLabel = &v
	}
	if ps.HourlyRate != nil {
		v := *ps.HourlyRate
		ps.HourlyRate = &v
	}
	if ps.MinimumFare != nil {
		v := *ps.MinimumFare
		ps.MinimumFare = &v
	}
	return &ps
}

func cloneTxn(pt models.ProvisionalTransaction) *models.ProvisionalTransaction {
	pt.AccountID = cloneInt64(pt.AccountID)
	pt.ConfirmedAt = cloneTime(pt.ConfirmedAt)
	if pt.RFID != nil {
		v := *pt.RFID
		pt.RFID = &v
	}
	return &pt
}

func sortedIDs[T any](m map[int64]T) []int64 {
	ids := make([]int64, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func limitOrDefault(limit, def int) int {
	if limit <= 0 {
		return def
	}
	return limit
}

func inRange(t, from, to time.Time) bool {
	return !t.Before(from) && t.Before(to)
}

// Accounts

func (t *memTx) AccountByID(_ context.Context, id int64) (*models.Account, error) {
	a, ok := t.s.accounts[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &a, nil
}

func (t *memTx) AccountByRFID(_ context.Context, rfid string) (*models.Account, error) {
	for _, id := range sortedIDs(t.s.accounts) {
		if a := t.s.accounts[id]; a.RFID == rfid {
			return &a, nil
		}
	}
	return nil, store.ErrNotFound
}

func (t *memTx) LockAccountByRFID(ctx context.Context, rfid string) (*models.Account, error) {
	return t.AccountByRFID(ctx, rfid)
}

func (t *memTx) LockAccount(ctx context.Context, id int64) (*models.Account, error) {
	return t.AccountByID(ctx, id)
}

func (t *memTx) vehicleByPlate(plate string) (*models.Vehicle, bool) {
	for _, id := range sortedIDs(t.s.vehicles) {
		if v := t.s.vehicles[id]; strings.EqualFold(v.Plate, plate) {
			return &v, true
		}
	}
	return nil, false
}

func (t *memTx) AccountByPlate(ctx context.Context, plate string) (*models.Account, *models.Vehicle, error) {
	v, ok := t.vehicleByPlate(plate)
	if !ok {
		return nil, nil, store.ErrNotFound
	}
	a, err := t.AccountByID(ctx, v.AccountID)
	if err != nil {
		return nil, nil, err
	}
	return a, v, nil
}

func (t *memTx) FindIdentityConflict(_ context.Context, claim store.IdentityClaim) (store.IdentityField, error) {
	for _, a := range t.s.accounts {
		if claim.NationalID != "" && a.NationalID == claim.NationalID {
			return store.IdentityNationalID, nil
		}
	}
	for _, a := range t.s.accounts {
		if claim.Email != "" && strings.EqualFold(a.Email, claim.Email) {
			return store.IdentityEmail, nil
		}
	}
	if claim.Plate != "" {
		if _, ok := t.vehicleByPlate(claim.Plate); ok {
			return store.IdentityPlate, nil
		}
	}
	for _, a := range t.s.accounts {
		if claim.RFID != "" && a.RFID == claim.RFID {
			return store.IdentityRFID, nil
		}
	}
	return store.IdentityNone, nil
}

func (t *memTx) CreateAccount(ctx context.Context, account *models.Account) error {
	field, err := t.FindIdentityConflict(ctx, store.IdentityClaim{
		NationalID: account.NationalID,
		Email:      account.Email,
		RFID:       account.RFID,
	})
	if err != nil {
		return err
	}
	if field != store.IdentityNone {
		return store.ErrDuplicate
	}
	if account.Balance.IsNegative() {
		return store.ErrInsufficientBalance
	}
	account.ID = t.s.id()
	put(t, t.s.accounts, account.ID, *account)
	return nil
}

func (t *memTx) CreateVehicle(_ context.Context, vehicle *models.Vehicle) error {
	if _, ok := t.s.accounts[vehicle.AccountID]; !ok {
		return store.ErrNotFound
	}
	if _, ok := t.vehicleByPlate(vehicle.Plate); ok {
		return store.ErrDuplicate
	}
	vehicle.ID = t.s.id()
	put(t, t.s.vehicles, vehicle.ID, *vehicle)
	return nil
}

func (t *memTx) VehicleForAccount(_ context.Context, accountID int64) (*models.Vehicle, error) {
	for _, id := range sortedIDs(t.s.vehicles) {
		if v := t.s.vehicles[id]; v.AccountID == accountID {
			return &v, nil
		}
	}
	return nil, store.ErrNotFound
}

func (t *memTx) VehicleByID(_ context.Context, id int64) (*models.Vehicle, error) {
	v, ok := t.s.vehicles[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &v, nil
}

func (t *memTx) DebitBalance(_ context.Context, accountID int64, amount decimal.Decimal) (decimal.Decimal, error) {
	a, ok := t.s.accounts[accountID]
	if !ok {
		return decimal.Zero, store.ErrNotFound
	}
	if a.Balance.LessThan(amount) {
		return decimal.Zero, store.ErrInsufficientBalance
	}
	a.Balance = a.Balance.Sub(amount)
	put(t, t.s.accounts, a.ID, a)
	return a.Balance, nil
}

func (t *memTx) CreditBalance(_ context.Context, accountID int64, amount decimal.Decimal) (decimal.Decimal, error) {
	a, ok := t.s.accounts[accountID]
	if !ok {
		return decimal.Zero, store.ErrNotFound
	}
	a.Balance = a.Balance.Add(amount)
	put(t, t.s.accounts, a.ID, a)
	return a.Balance, nil
}

// Spaces

func (t *memTx) orderedSpaces() []models.ParkingSpace {
	out := make([]models.ParkingSpace, 0, len(t.s.spaces))
	for _, sp := range t.s.spaces {
		out = append(out, sp)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Label != out[j].Label {
			return models.LabelLess(out[i].Label, out[j].Label)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (t *memTx) AllocateSpace(_ context.Context, class models.VehicleClass, sessionID int64) (*models.ParkingSpace, error) {
	for _, sp := range t.orderedSpaces() {
		if sp.Class != class || !sp.Assignable() {
			continue
		}
		sp.State = models.SpaceOccupied
		sp.SessionID = &sessionID
		put(t, t.s.spaces, sp.ID, sp)
		return cloneSpace(sp), nil
	}
	return nil, store.ErrNoSpaceAvailable
}

func (t *memTx) CountAssignable(_ context.Context, class models.VehicleClass) (int64, error) {
	var n int64
	for _, sp := range t.s.spaces {
		if sp.Class == class && sp.Assignable() {
			n++
		}
	}
	return n, nil
}

func (t *memTx) SpaceByID(_ context.Context, id int64) (*models.ParkingSpace, error) {
	sp, ok := t.s.spaces[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return cloneSpace(sp), nil
}

func (t *memTx) LockSpace(ctx context.Context, id int64) (*models.ParkingSpace, error) {
	return t.SpaceByID(ctx, id)
}

func (t *memTx) LockSpaceByChannel(_ context.Context, channel int) (*models.ParkingSpace, error) {
	for _, sp := range t.s.spaces {
		if sp.SensorChannel == channel {
			return cloneSpace(sp), nil
		}
	}
	return nil, store.ErrNotFound
}

func (t *memTx) UpdateSpace(_ context.Context, space *models.ParkingSpace) error {
	if _, ok := t.s.spaces[space.ID]; !ok {
		return store.ErrNotFound
	}
	put(t, t.s.spaces, space.ID, *cloneSpace(*space))
	return nil
}

func (t *memTx) ListSpaces(_ context.Context) ([]models.ParkingSpace, error) {
	spaces := t.orderedSpaces()
	for i := range spaces {
		spaces[i] = *cloneSpace(spaces[i])
	}
	return spaces, nil
}

func (t *memTx) EnsureSpace(_ context.Context, space *models.ParkingSpace) (bool, error) {
	for _, sp := range t.s.spaces {
		if sp.Label == space.Label {
			*space = *cloneSpace(sp)
			return false, nil
		}
	}
	for _, sp := range t.s.spaces {
		if sp.SensorChannel == space.SensorChannel {
			return false, store.ErrDuplicate
		}
	}
	if space.State == "" {
		space.State = models.SpaceAvailable
	}
	space.ID = t.s.id()
	put(t, t.s.spaces, space.ID, *cloneSpace(*space))
	return true, nil
}

// Sessions

func (t *memTx) CreateSession(_ context.Context, session *models.ParkingSession) error {
	if session.State == models.SessionActive {
		for _, ps := range t.s.sessions {
			if ps.State == models.SessionActive && ps.AccountID == session.AccountID {
				return store.ErrDuplicate
			}
		}
	}
	session.ID = t.s.id()
	put(t, t.s.sessions, session.ID, *cloneSession(*session))
	return nil
}

func (t *memTx) SetSessionSpace(_ context.Context, sessionID, spaceID int64) error {
	ps, ok := t.s.sessions[sessionID]
	if !ok {
		return store.ErrNotFound
	}
	for _, other := range t.s.sessions {
		if other.ID != sessionID && other.State == models.SessionActive && other.SpaceID != nil && *other.SpaceID == spaceID {
			return store.ErrDuplicate
		}
	}
	ps.SpaceID = &spaceID
	put(t, t.s.sessions, sessionID, ps)
	return nil
}

func (t *memTx) SessionByID(_ context.Context, id int64) (*models.ParkingSession, error) {
	ps, ok := t.s.sessions[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return cloneSession(ps), nil
}

func (t *memTx) ActiveSessionForAccount(_ context.Context, accountID int64) (*models.ParkingSession, error) {
	for _, ps := range t.s.sessions {
		if ps.State == models.SessionActive && ps.AccountID == accountID {
			return cloneSession(ps), nil
		}
	}
	return nil, store.ErrNotFound
}

func (t *memTx) ActiveSessionForSpace(_ context.Context, spaceID int64) (*models.ParkingSession, error) {
	for _, ps := range t.s.sessions {
		if ps.State == models.SessionActive && ps.SpaceID != nil && *ps.SpaceID == spaceID {
			return cloneSession(ps), nil
		}
	}
	return nil, store.ErrNotFound
}

func (t *memTx) FinalizeSession(_ context.Context, sessionID int64, fin models.SessionFinalization) error {
	ps, ok := t.s.sessions[sessionID]
	if !ok || ps.State != models.SessionActive {
		return store.ErrNotFound
	}
	exitAt := fin.ExitAt
	amount := fin.AmountCharged
	label := fin.DurationLabel
	rate := fin.HourlyRate
	minimum := fin.MinimumFare
	ps.State = models.SessionFinalized
	ps.ExitAt = &exitAt
	ps.AmountCharged = &amount
	ps.DurationLabel = &label
	ps.HourlyRate = &rate
	ps.MinimumFare = &minimum
	put(t, t.s.sessions, sessionID, ps)
	return nil
}

func (t *memTx) LatestFinalizedSessionByPlate(_ context.Context, plate string) (*models.ParkingSession, error) {
	v, ok := t.vehicleByPlate(plate)
	if !ok {
		return nil, store.ErrNotFound
	}
	var latest *models.ParkingSession
	for _, id := range sortedIDs(t.s.sessions) {
		ps := t.s.sessions[id]
		if ps.VehicleID != v.ID || ps.State != models.SessionFinalized || ps.ExitAt == nil {
			continue
		}
		if latest == nil || !ps.ExitAt.Before(*latest.ExitAt) {
			latest = cloneSession(ps)
		}
	}
	if latest == nil {
		return nil, store.ErrNotFound
	}
	return latest, nil
}

func (t *memTx) ListSessions(_ context.Context, q store.SessionQuery) ([]models.SessionRecord, error) {
	records := make([]models.SessionRecord, 0)
	for _, ps := range t.s.sessions {
		v := t.s.vehicles[ps.VehicleID]
		if q.Plate != "" && !strings.EqualFold(v.Plate, q.Plate) {
			continue
		}
		rec := models.SessionRecord{
			ParkingSession: *cloneSession(ps),
			FullName:       t.s.accounts[ps.AccountID].FullName,
			Plate:          v.Plate,
			Class:          v.Class,
		}
		if ps.SpaceID != nil {
			if sp, ok := t.s.spaces[*ps.SpaceID]; ok {
				label := sp.Label
				rec.SpaceLabel = &label
			}
		}
		records = append(records, rec)
	}
	sort.Slice(records, func(i, j int) bool {
		if !records[i].EntryAt.Equal(records[j].EntryAt) {
			return records[i].EntryAt.After(records[j].EntryAt)
		}
		return records[i].ID > records[j].ID
	})
	if limit := limitOrDefault(q.Limit, 50); len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}

func (t *memTx) OccupantsBySpace(_ context.Context) (map[int64]models.Occupant, error) {
	out := make(map[int64]models.Occupant)
	for _, ps := range t.s.sessions {
		if ps.State != models.SessionActive || ps.SpaceID == nil {
			continue
		}
		out[*ps.SpaceID] = models.Occupant{
			SessionID: ps.ID,
			FullName:  t.s.accounts[ps.AccountID].FullName,
			Plate:     t.s.vehicles[ps.VehicleID].Plate,
			EntryAt:   ps.EntryAt,
		}
	}
	return out, nil
}

// Fares

func (t *memTx) ActiveFare(_ context.Context, class models.VehicleClass) (*models.FareSchedule, error) {
	for _, id := range sortedIDs(t.s.fares) {
		if f := t.s.fares[id]; f.Active && f.Class == class {
			return &f, nil
		}
	}
	return nil, store.ErrNotFound
}

func (t *memTx) EnsureFare(ctx context.Context, fare *models.FareSchedule) (bool, error) {
	if existing, err := t.ActiveFare(ctx, fare.Class); err == nil {
		*fare = *existing
		return false, nil
	}
	fare.Active = true
	fare.ID = t.s.id()
	put(t, t.s.fares, fare.ID, *fare)
	return true, nil
}

// Provisional transactions

func (t *memTx) CreateTransaction(_ context.Context, txn *models.ProvisionalTransaction) error {
	for _, existing := range t.s.txns {
		if existing.TokenHash == txn.TokenHash {
			return store.ErrDuplicate
		}
	}
	txn.ID = t.s.id()
	put(t, t.s.txns, txn.ID, *cloneTxn(*txn))
	return nil
}

// LockCredential is a no-op: the store-wide mutex already serializes transactions.
func (t *memTx) LockCredential(context.Context, string) error {
	return nil
}

func (t *memTx) DeletePendingRegistrations(_ context.Context, rfid string) (int64, error) {
	var n int64
	for _, id := range sortedIDs(t.s.txns) {
		pt := t.s.txns[id]
		if pt.Kind == models.TransactionRegistration && pt.State == models.TransactionPending && pt.RFID != nil && *pt.RFID == rfid {
			remove(t, t.s.txns, id)
			n++
		}
	}
	return n, nil
}

func (t *memTx) ConfirmTransaction(_ context.Context, tokenHash string, kind models.TransactionKind, notBefore, confirmedAt time.Time) (*models.ProvisionalTransaction, error) {
	for _, pt := range t.s.txns {
		if pt.TokenHash != tokenHash || pt.Kind != kind || pt.State != models.TransactionPending {
			continue
		}
		if !notBefore.IsZero() && pt.CreatedAt.Before(notBefore) {
			return nil, store.ErrNotFound
		}
		at := confirmedAt
		pt.State = models.TransactionConfirmed
		pt.ConfirmedAt = &at
		put(t, t.s.txns, pt.ID, pt)
		return cloneTxn(pt), nil
	}
	return nil, store.ErrNotFound
}

func (t *memTx) TransactionByHash(_ context.Context, tokenHash string) (*models.ProvisionalTransaction, error) {
	for _, pt := range t.s.txns {
		if pt.TokenHash == tokenHash {
			return cloneTxn(pt), nil
		}
	}
	return nil, store.ErrNotFound
}

func (t *memTx) BindTransactionAccount(_ context.Context, id, accountID int64) error {
	pt, ok := t.s.txns[id]
	if !ok {
		return store.ErrNotFound
	}
	pt.AccountID = &accountID
	put(t, t.s.txns, id, pt)
	return nil
}

func (t *memTx) SetTransactionAmount(_ context.Context, id int64, amount decimal.Decimal) error {
	pt, ok := t.s.txns[id]
	if !ok {
		return store.ErrNotFound
	}
	pt.Amount = amount
	put(t, t.s.txns, id, pt)
	return nil
}

func (t *memTx) ListRecharges(_ context.Context, q store.RechargeQuery) ([]models.RechargeRecord, error) {
	records := make([]models.RechargeRecord, 0)
	for _, pt := range t.s.txns {
		if pt.Kind != models.TransactionRecharge || pt.State != models.TransactionConfirmed || pt.AccountID == nil || pt.ConfirmedAt == nil {
			continue
		}
		if q.AccountID != nil && *pt.AccountID != *q.AccountID {
			continue
		}
		records = append(records, models.RechargeRecord{
			ID:          pt.ID,
			AccountID:   *pt.AccountID,
			FullName:    t.s.accounts[*pt.AccountID].FullName,
			Amount:      pt.Amount,
			ConfirmedAt: *pt.ConfirmedAt,
		})
	}
	sort.Slice(records, func(i, j int) bool {
		if !records[i].ConfirmedAt.Equal(records[j].ConfirmedAt) {
			return records[i].ConfirmedAt.After(records[j].ConfirmedAt)
		}
		return records[i].ID > records[j].ID
	})
	if limit := limitOrDefault(q.Limit, 50); len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}

// Reports

func (t *memTx) DailyCounts(_ context.Context, from, to time.Time) (models.DailyCounts, error) {
	counts := models.DailyCounts{Revenue: decimal.Zero, RechargedAmount: decimal.Zero}
	for _, ps := range t.s.sessions {
		if inRange(ps.EntryAt, from, to) {
			counts.Entries++
		}
		if ps.State == models.SessionFinalized && ps.ExitAt != nil && inRange(*ps.ExitAt, from, to) {
			counts.Exits++
			if ps.AmountCharged != nil {
				counts.Revenue = counts.Revenue.Add(*ps.AmountCharged)
			}
		}
	}
	for _, pt := range t.s.txns {
		if pt.Kind == models.TransactionRecharge && pt.State == models.TransactionConfirmed && pt.ConfirmedAt != nil && inRange(*pt.ConfirmedAt, from, to) {
			counts.Recharges++
			counts.RechargedAmount = counts.RechargedAmount.Add(pt.Amount)
		}
	}
	for _, a := range t.s.accounts {
		if inRange(a.RegisteredAt, from, to) {
			counts.NewAccounts++
		}
	}
	return counts, nil
}

func (t *memTx) SystemCounts(_ context.Context) (models.SystemCounts, error) {
	counts := models.SystemCounts{
		Accounts:    int64(len(t.s.accounts)),
		Vehicles:    int64(len(t.s.vehicles)),
		TotalSpaces: int64(len(t.s.spaces)),
	}
	for _, ps := range t.s.sessions {
		if ps.State == models.SessionActive {
			counts.ActiveSessions++
		}
	}
	for _, sp := range t.s.spaces {
		switch sp.State {
		case models.SpaceOccupied:
			counts.OccupiedSpaces++
		case models.SpaceAvailable:
			counts.AvailableSpaces++
		}
	}
	return counts, nil
}
