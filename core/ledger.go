package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"shadowpay/core/events"
	"shadowpay/core/genesis"
	"shadowpay/core/state"
	"shadowpay/core/types"
	"shadowpay/crypto"
	"shadowpay/native/payrequest"
	"shadowpay/observability"
	"shadowpay/observability/logging"
	telemetry "shadowpay/observability/otel"
	"shadowpay/storage"
	"shadowpay/storage/trie"
)

var (
	// ErrNonceMismatch is returned when a transaction does not carry the
	// signer's next nonce.
	ErrNonceMismatch = errors.New("ledger: nonce mismatch")
	// ErrUnknownTxType is returned for transaction types the ledger does not
	// execute.
	ErrUnknownTxType = errors.New("ledger: unknown transaction type")
	// ErrProgramMismatch is returned when reopening state that was created
	// under a different program identity.
	ErrProgramMismatch = errors.New("ledger: program identity differs from stored state")

	errNilTransaction = errors.New("ledger: nil transaction")
)

var (
	rootKey    = []byte("shadowpay/state-root")
	programKey = []byte("ledger/program")
)

// Receipt describes a committed transaction.
type Receipt struct {
	TxHash    []byte
	Type      types.TxType
	Signer    [32]byte
	Height    uint64
	StateRoot common.Hash
	// PayRequest is the record after the transaction.
	PayRequest *payrequest.PayRequest
	// Swept is the amount moved to the receiver by a sweep.
	Swept  uint64
	Events []*types.Event
}

// Ledger hosts the pay request engine on top of persistent state. It executes
// one signed transaction at a time; each transaction either commits entirely
// (state, nonce and events) or leaves no trace.
type Ledger struct {
	mu sync.Mutex
	// publishMu is taken before mu is released so committed events reach the
	// sink in commit order without holding mu during delivery.
	publishMu sync.Mutex
	db        storage.Database
	state     *state.Manager
	engine    *payrequest.Engine
	buffer    *events.Buffer
	sink      events.Emitter
	logger    *slog.Logger
	programID [32]byte
}

// Option customises a Ledger.
type Option func(*Ledger)

// WithEmitter forwards committed events to emitter.
func WithEmitter(emitter events.Emitter) Option {
	return func(l *Ledger) { l.sink = emitter }
}

// WithLogger sets the logger used for transaction outcomes.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Ledger) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// WithRent overrides the reserve schedule.
func WithRent(rent payrequest.Rent) Option {
	return func(l *Ledger) { l.engine.SetRent(rent) }
}

// NewLedger opens the state stored in db. A database without committed state
// is initialised from spec; a nil spec yields the default program with no
// balances. Reopening existing state under a different program fails.
func NewLedger(db storage.Database, spec *genesis.GenesisSpec, opts ...Option) (*Ledger, error) {
	if db == nil {
		return nil, fmt.Errorf("ledger: database must not be nil")
	}
	root, err := loadRoot(db)
	if err != nil {
		return nil, err
	}
	stateTrie, err := trie.NewTrie(db, root)
	if err != nil {
		return nil, fmt.Errorf("ledger: open state trie: %w", err)
	}
	programID, err := spec.Program()
	if err != nil {
		return nil, err
	}
	l := &Ledger{
		db:        db,
		state:     state.NewManager(stateTrie),
		buffer:    &events.Buffer{},
		sink:      events.NoopEmitter{},
		logger:    slog.Default(),
		programID: programID,
	}
	l.engine = payrequest.NewEngine(programID)
	l.engine.SetState(l.state)
	l.engine.SetEmitter(l.buffer)
	for _, opt := range opts {
		opt(l)
	}
	if l.sink == nil {
		l.sink = events.NoopEmitter{}
	}

	height, err := l.state.Height()
	if err != nil {
		return nil, err
	}
	if height == 0 {
		if err := l.applyGenesis(spec); err != nil {
			return nil, err
		}
		return l, nil
	}
	var stored []byte
	if _, err := l.state.KVGet(programKey, &stored); err != nil {
		return nil, fmt.Errorf("ledger: load program identity: %w", err)
	}
	if len(stored) != len(programID) || [32]byte(stored) != programID {
		return nil, ErrProgramMismatch
	}
	observability.Ledger().SetHeight(height)
	return l, nil
}

func loadRoot(db storage.Database) ([]byte, error) {
	ok, err := db.Has(rootKey)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return db.Get(rootKey)
}

func (l *Ledger) applyGenesis(spec *genesis.GenesisSpec) error {
	allocs, err := spec.Allocations()
	if err != nil {
		return err
	}
	if err := l.state.KVPut(programKey, l.programID[:]); err != nil {
		return err
	}
	for _, alloc := range allocs {
		if err := l.state.PutAccount(alloc.Address, &types.Account{Lamports: alloc.Lamports}); err != nil {
			return err
		}
	}
	root, err := l.commit()
	if err != nil {
		return fmt.Errorf("ledger: commit genesis: %w", err)
	}
	l.logger.Info("genesis applied",
		slog.String("root", root.Hex()),
		slog.Int("allocations", len(allocs)),
		slog.String("program", crypto.FormatAddress(l.programID)))
	return nil
}

func (l *Ledger) commit() (common.Hash, error) {
	root, err := l.state.Commit()
	if err != nil {
		return common.Hash{}, err
	}
	if err := l.db.Put(rootKey, root.Bytes()); err != nil {
		return common.Hash{}, err
	}
	if height, err := l.state.Height(); err == nil {
		observability.Ledger().SetHeight(height)
	}
	return root, nil
}

// Submit verifies and executes tx.
func (l *Ledger) Submit(ctx context.Context, tx *types.Transaction) (*Receipt, error) {
	txType := "unknown"
	if tx != nil {
		txType = tx.Type.String()
	}
	_, span := telemetry.Tracer().Start(ctx, "ledger.Submit",
		trace.WithAttributes(attribute.String("tx.type", txType)))
	defer span.End()

	start := time.Now()
	l.mu.Lock()
	receipt, committed, err := l.apply(tx)
	if err != nil {
		l.mu.Unlock()
	} else {
		l.publishMu.Lock()
		l.mu.Unlock()
		l.publish(committed)
		l.publishMu.Unlock()
	}

	code := "ok"
	if err != nil {
		code = ErrorCode(err)
	}
	observability.Ledger().ObserveTransaction(txType, code, time.Since(start))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, code)
		l.logger.Warn("transaction rejected",
			slog.String("type", txType),
			slog.String("code", code),
			slog.String("error", err.Error()))
		return nil, err
	}
	span.SetAttributes(attribute.Int64("ledger.height", int64(receipt.Height)))
	l.logger.Info("transaction applied",
		slog.String("type", txType),
		slog.String("signer", crypto.FormatAddress(receipt.Signer)),
		slog.Uint64("height", receipt.Height),
		slog.String("root", receipt.StateRoot.Hex()))
	return receipt, nil
}

func (l *Ledger) apply(tx *types.Transaction) (*Receipt, []events.Event, error) {
	if tx == nil {
		return nil, nil, errNilTransaction
	}
	if !tx.Type.Valid() {
		return nil, nil, ErrUnknownTxType
	}
	if err := tx.VerifySignature(); err != nil {
		return nil, nil, err
	}
	hash, err := tx.Hash()
	if err != nil {
		return nil, nil, err
	}
	signer, err := l.state.GetAccount(tx.Signer)
	if err != nil {
		return nil, nil, err
	}
	if tx.Nonce != signer.Nonce {
		return nil, nil, fmt.Errorf("%w: expected %d, got %d", ErrNonceMismatch, signer.Nonce, tx.Nonce)
	}

	receipt := &Receipt{TxHash: hash, Type: tx.Type, Signer: tx.Signer}
	if err := l.execute(tx, receipt); err != nil {
		l.rollback()
		return nil, nil, err
	}

	signer, err = l.state.GetAccount(tx.Signer)
	if err != nil {
		l.rollback()
		return nil, nil, err
	}
	signer.Nonce++
	if err := l.state.PutAccount(tx.Signer, signer); err != nil {
		l.rollback()
		return nil, nil, err
	}
	root, err := l.commit()
	if err != nil {
		l.rollback()
		return nil, nil, err
	}
	receipt.StateRoot = root
	receipt.Height, _ = l.state.Height()
	committed := l.buffer.Flush(nil)
	for _, evt := range committed {
		receipt.Events = append(receipt.Events, evt.Event())
	}
	return receipt, committed, nil
}

// publish forwards committed events to the sink. It runs outside mu so a slow
// sink never stalls queries.
func (l *Ledger) publish(committed []events.Event) {
	for _, evt := range committed {
		l.sink.Emit(evt)
		observability.Events().RecordEvent(evt.EventType(), movedLamports(evt))
	}
}

func (l *Ledger) execute(tx *types.Transaction, receipt *Receipt) error {
	ref := payrequest.Reference{Address: tx.Address, Bump: tx.Bump}
	switch tx.Type {
	case types.TxTypeCreatePayRequest:
		l.logger.Debug("creating pay request",
			slog.String("address", crypto.FormatAddress(tx.Address)),
			logging.MaskField("seed", string(tx.Seed)))
		rec, err := l.engine.CreatePayRequest(tx.Signer, tx.Address, tx.Seed, tx.Amount)
		if err != nil {
			return err
		}
		receipt.PayRequest = rec
	case types.TxTypeSettlePayment:
		rec, err := l.engine.SettlePayment(tx.Signer, ref, tx.Amount)
		if err != nil {
			return err
		}
		receipt.PayRequest = rec
	case types.TxTypeSweepFunds:
		swept, err := l.engine.SweepFunds(tx.Signer, ref)
		if err != nil {
			return err
		}
		receipt.Swept = swept
		rec, err := l.engine.PayRequest(tx.Address)
		if err != nil {
			return err
		}
		receipt.PayRequest = rec
	default:
		return ErrUnknownTxType
	}
	return nil
}

func (l *Ledger) rollback() {
	l.buffer.Discard()
	if err := l.state.Discard(); err != nil {
		l.logger.Error("discard pending state", slog.String("error", err.Error()))
	}
}

func movedLamports(evt events.Event) uint64 {
	switch e := evt.(type) {
	case events.PayRequestCreated:
		return e.Reserve
	case events.PayRequestSettled:
		return e.Deposited
	case events.PayRequestSwept:
		return e.Amount
	default:
		return 0
	}
}

// ErrorCode maps a transaction failure onto a stable identifier.
func ErrorCode(err error) string {
	if code := payrequest.Code(err); code != "" {
		return code
	}
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNonceMismatch):
		return "NonceMismatch"
	case errors.Is(err, ErrUnknownTxType):
		return "UnknownTransactionType"
	case errors.Is(err, types.ErrMissingSignature), errors.Is(err, types.ErrInvalidSignature):
		return "InvalidSignature"
	case errors.Is(err, errNilTransaction):
		return "InvalidTransaction"
	default:
		return "Internal"
	}
}

// PayRequest returns the committed record at address.
func (l *Ledger) PayRequest(address [32]byte) (*payrequest.PayRequest, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.engine.PayRequest(address)
}

// Account returns the committed account at address.
func (l *Ledger) Account(address [32]byte) (*types.Account, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state.GetAccount(address)
}

// Derive computes the pay request address for (receiver, seed) under the
// ledger's program.
func (l *Ledger) Derive(receiver [32]byte, seed []byte) ([32]byte, uint8, error) {
	return l.engine.Derive(receiver, seed)
}

// Reserve returns the minimum balance for an account holding dataLen bytes.
func (l *Ledger) Reserve(dataLen int) (uint64, error) {
	return l.engine.Rent().MinimumBalance(dataLen)
}

// Rent returns the active reserve schedule.
func (l *Ledger) Rent() payrequest.Rent {
	return l.engine.Rent()
}

// ProgramID returns the program identity pay requests are derived under.
func (l *Ledger) ProgramID() [32]byte {
	return l.programID
}

// StateRoot returns the last committed state root.
func (l *Ledger) StateRoot() common.Hash {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state.Root()
}

// Height returns the number of committed transitions, genesis included.
func (l *Ledger) Height() (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state.Height()
}
