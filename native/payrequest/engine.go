package payrequest

import (
	"errors"
	"fmt"

	"shadowpay/core/events"
	"shadowpay/core/types"
)

var errNilState = errors.New("payrequest engine: state not configured")

type engineState interface {
	GetAccount(addr [32]byte) (*types.Account, error)
	PutAccount(addr [32]byte, acc *types.Account) error
	Snapshot() int
	RevertToSnapshot(id int) error
}

// Engine owns the pay request state machine: address derivation, record
// layout and the create, settle and sweep transitions. Callers are expected to
// have authenticated the acting party before invoking an operation; the engine
// enforces every other precondition and runs each operation all-or-nothing.
type Engine struct {
	state     engineState
	emitter   events.Emitter
	programID [32]byte
	rent      Rent
}

// NewEngine creates an engine deriving addresses under programID with the
// default rent schedule and a no-op emitter.
func NewEngine(programID [32]byte) *Engine {
	return &Engine{
		emitter:   events.NoopEmitter{},
		programID: programID,
		rent:      DefaultRent(),
	}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetRent overrides the rent schedule used for reserves.
func (e *Engine) SetRent(rent Rent) { e.rent = rent }

// SetEmitter configures the event emitter used by the engine. Passing nil resets
// the emitter to a no-op implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// ProgramID returns the program identity addresses are derived under.
func (e *Engine) ProgramID() [32]byte { return e.programID }

// Rent returns the active rent schedule.
func (e *Engine) Rent() Rent { return e.rent }

// Derive computes the pay request address for (receiver, seed).
func (e *Engine) Derive(receiver [32]byte, seed []byte) ([32]byte, uint8, error) {
	return Derive(e.programID, receiver, seed)
}

// RecordReserve is the minimum balance a pay request account keeps.
func (e *Engine) RecordReserve() (uint64, error) {
	return e.rent.MinimumBalance(RecordSize)
}

func (e *Engine) emit(evt events.Event) {
	if e == nil || e.emitter == nil || evt == nil {
		return
	}
	e.emitter.Emit(evt)
}

// atomic runs fn inside a state snapshot and reverts every mutation if fn
// fails.
func (e *Engine) atomic(fn func() error) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	snap := e.state.Snapshot()
	if err := fn(); err != nil {
		if revertErr := e.state.RevertToSnapshot(snap); revertErr != nil {
			return errors.Join(err, fmt.Errorf("payrequest: revert: %w", revertErr))
		}
		return err
	}
	return nil
}

// load fetches the record at ref.Address and checks that the caller's bump and
// address are the ones the record was created with.
func (e *Engine) load(ref Reference) (*PayRequest, *types.Account, error) {
	acc, err := e.state.GetAccount(ref.Address)
	if err != nil {
		return nil, nil, err
	}
	if acc.Empty() || acc.Owner != e.programID {
		return nil, nil, ErrNotFound
	}
	rec, err := DecodeRecord(acc.Data)
	if err != nil {
		return nil, nil, err
	}
	if rec.Bump != ref.Bump {
		return nil, nil, ErrBumpMismatch
	}
	if err := VerifyAddress(e.programID, rec.Receiver, rec.SecretSeed, rec.Bump, ref.Address); err != nil {
		return nil, nil, err
	}
	rec.Address = ref.Address
	rec.Lamports = acc.Lamports
	return rec, acc, nil
}

func (e *Engine) store(rec *PayRequest, acc *types.Account) error {
	data, err := EncodeRecord(rec)
	if err != nil {
		return err
	}
	acc.Data = data
	return e.state.PutAccount(rec.Address, acc)
}

// CreatePayRequest initialises a pay request owned by receiver at address,
// which must equal Derive(receiver, seed). The receiver funds the record's
// reserve.
func (e *Engine) CreatePayRequest(receiver, address [32]byte, seed []byte, amount uint64) (*PayRequest, error) {
	if amount == 0 {
		return nil, ErrInvalidAmount
	}
	if err := validateSeed(seed); err != nil {
		return nil, err
	}
	derived, bump, err := Derive(e.programID, receiver, seed)
	if err != nil {
		return nil, err
	}
	if derived != address {
		return nil, ErrAddressMismatch
	}
	rec := &PayRequest{
		Address:    address,
		Receiver:   receiver,
		SecretSeed: append([]byte(nil), seed...),
		Amount:     amount,
		Bump:       bump,
	}
	var reserve uint64
	err = e.atomic(func() error {
		existing, err := e.state.GetAccount(address)
		if err != nil {
			return err
		}
		if !existing.Empty() {
			return ErrAddressAlreadyInUse
		}
		reserve, err = e.rent.MinimumBalance(RecordSize)
		if err != nil {
			return err
		}
		walletReserve, err := e.rent.MinimumBalance(0)
		if err != nil {
			return err
		}
		required, err := addLamports(reserve, walletReserve)
		if err != nil {
			return err
		}
		payer, err := e.state.GetAccount(receiver)
		if err != nil {
			return err
		}
		if payer.Lamports < required {
			return ErrInsufficientPayerBalance
		}
		payer = payer.Clone()
		payer.Lamports -= reserve
		if err := e.state.PutAccount(receiver, payer); err != nil {
			return err
		}
		rec.Lamports = reserve
		return e.store(rec, &types.Account{Lamports: reserve, Owner: e.programID})
	})
	if err != nil {
		return nil, err
	}
	e.emit(events.PayRequestCreated{
		Address:  address,
		Receiver: receiver,
		Amount:   amount,
		Bump:     bump,
		Reserve:  reserve,
	})
	return rec.Clone(), nil
}

// SettlePayment moves amount from payer into the pay request and marks it
// settled. Deposits below the requested amount are rejected; larger deposits
// are accepted in full.
func (e *Engine) SettlePayment(payer [32]byte, ref Reference, amount uint64) (*PayRequest, error) {
	if amount == 0 {
		return nil, ErrInvalidAmount
	}
	if payer == ref.Address {
		return nil, ErrSelfFunding
	}
	var settled *PayRequest
	err := e.atomic(func() error {
		rec, acc, err := e.load(ref)
		if err != nil {
			return err
		}
		if rec.Settled {
			return ErrAlreadySettled
		}
		if amount < rec.Amount {
			return ErrInsufficientPayment
		}
		walletReserve, err := e.rent.MinimumBalance(0)
		if err != nil {
			return err
		}
		required, err := addLamports(amount, walletReserve)
		if err != nil {
			return err
		}
		from, err := e.state.GetAccount(payer)
		if err != nil {
			return err
		}
		if from.Lamports < required {
			return ErrInsufficientPayerBalance
		}
		held, err := addLamports(acc.Lamports, amount)
		if err != nil {
			return err
		}
		from = from.Clone()
		from.Lamports -= amount
		if err := e.state.PutAccount(payer, from); err != nil {
			return err
		}
		acc = acc.Clone()
		acc.Lamports = held
		rec.Settled = true
		rec.Lamports = held
		if err := e.store(rec, acc); err != nil {
			return err
		}
		settled = rec
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.emit(events.PayRequestSettled{
		Address:   settled.Address,
		Payer:     payer,
		Requested: settled.Amount,
		Deposited: amount,
	})
	return settled.Clone(), nil
}

// SweepFunds transfers everything above the record's reserve to its receiver
// and marks it swept. It returns the amount transferred.
func (e *Engine) SweepFunds(caller [32]byte, ref Reference) (uint64, error) {
	var (
		swept  uint64
		record *PayRequest
	)
	err := e.atomic(func() error {
		rec, acc, err := e.load(ref)
		if err != nil {
			return err
		}
		if !rec.Settled {
			return ErrNotSettled
		}
		if rec.Swept {
			return ErrAlreadySwept
		}
		if caller != rec.Receiver {
			return ErrUnauthorizedReceiver
		}
		reserve, err := e.rent.MinimumBalance(len(acc.Data))
		if err != nil {
			return err
		}
		if acc.Lamports <= reserve {
			return ErrNothingToSweep
		}
		swept = acc.Lamports - reserve
		to, err := e.state.GetAccount(rec.Receiver)
		if err != nil {
			return err
		}
		credited, err := addLamports(to.Lamports, swept)
		if err != nil {
			return err
		}
		acc = acc.Clone()
		acc.Lamports = reserve
		rec.Swept = true
		rec.Lamports = reserve
		if err := e.store(rec, acc); err != nil {
			return err
		}
		to = to.Clone()
		to.Lamports = credited
		if err := e.state.PutAccount(rec.Receiver, to); err != nil {
			return err
		}
		record = rec
		return nil
	})
	if err != nil {
		return 0, err
	}
	e.emit(events.PayRequestSwept{
		Address:  record.Address,
		Receiver: record.Receiver,
		Amount:   swept,
	})
	return swept, nil
}

// PayRequest returns the record stored at address. It needs no authority and
// does not check a bump.
func (e *Engine) PayRequest(address [32]byte) (*PayRequest, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	acc, err := e.state.GetAccount(address)
	if err != nil {
		return nil, err
	}
	if acc.Empty() || acc.Owner != e.programID {
		return nil, ErrNotFound
	}
	rec, err := DecodeRecord(acc.Data)
	if err != nil {
		return nil, err
	}
	rec.Address = address
	rec.Lamports = acc.Lamports
	return rec, nil
}

// Balance returns the lamports held at address, zero for unknown accounts.
func (e *Engine) Balance(address [32]byte) (uint64, error) {
	if e == nil || e.state == nil {
		return 0, errNilState
	}
	acc, err := e.state.GetAccount(address)
	if err != nil {
		return 0, err
	}
	return acc.Lamports, nil
}
