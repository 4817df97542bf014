package core

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"shadowpay/core/events"
	"shadowpay/core/genesis"
	"shadowpay/core/types"
	"shadowpay/crypto"
	"shadowpay/native/payrequest"
	"shadowpay/storage"
)

const genesisBalance = 5_000_000_000

type ledgerFixture struct {
	ledger   *Ledger
	recorder *events.Recorder
	receiver *crypto.PrivateKey
	payer    *crypto.PrivateKey
	stranger *crypto.PrivateKey
}

func newKey(t *testing.T) *crypto.PrivateKey {
	t.Helper()
	key, err := crypto.GeneratePrivateKey()
	require.NoError(t, err)
	return key
}

func genesisFor(keys ...*crypto.PrivateKey) *genesis.GenesisSpec {
	spec := &genesis.GenesisSpec{Alloc: map[string]uint64{}}
	for _, key := range keys {
		spec.Alloc[crypto.FormatAddress(key.Address())] = genesisBalance
	}
	return spec
}

func newLedgerFixture(t *testing.T, db storage.Database) *ledgerFixture {
	t.Helper()
	f := &ledgerFixture{
		recorder: &events.Recorder{},
		receiver: newKey(t),
		payer:    newKey(t),
		stranger: newKey(t),
	}
	ledger, err := NewLedger(db, genesisFor(f.receiver, f.payer, f.stranger), WithEmitter(f.recorder))
	require.NoError(t, err)
	f.ledger = ledger
	return f
}

func (f *ledgerFixture) nonce(t *testing.T, key *crypto.PrivateKey) uint64 {
	t.Helper()
	acc, err := f.ledger.Account(key.Address())
	require.NoError(t, err)
	return acc.Nonce
}

func (f *ledgerFixture) submit(t *testing.T, key *crypto.PrivateKey, tx *types.Transaction) (*Receipt, error) {
	t.Helper()
	tx.Nonce = f.nonce(t, key)
	require.NoError(t, tx.Sign(key))
	return f.ledger.Submit(context.Background(), tx)
}

func (f *ledgerFixture) create(t *testing.T, seed string, amount uint64) payrequest.Reference {
	t.Helper()
	addr, bump, err := f.ledger.Derive(f.receiver.Address(), []byte(seed))
	require.NoError(t, err)
	_, err = f.submit(t, f.receiver, &types.Transaction{
		Type:    types.TxTypeCreatePayRequest,
		Address: addr,
		Seed:    []byte(seed),
		Amount:  amount,
	})
	require.NoError(t, err)
	return payrequest.Reference{Address: addr, Bump: bump}
}

func TestLedgerGenesis(t *testing.T) {
	f := newLedgerFixture(t, storage.NewMemDB())
	height, err := f.ledger.Height()
	require.NoError(t, err)
	require.Equal(t, uint64(1), height)

	acc, err := f.ledger.Account(f.payer.Address())
	require.NoError(t, err)
	require.Equal(t, uint64(genesisBalance), acc.Lamports)
	require.Equal(t, payrequest.DefaultProgramID, f.ledger.ProgramID())

	reserve, err := f.ledger.Reserve(payrequest.RecordSize)
	require.NoError(t, err)
	require.Equal(t, uint64(1_496_400), reserve)
}

func TestLedgerPayRequestLifecycle(t *testing.T) {
	f := newLedgerFixture(t, storage.NewMemDB())
	ref := f.create(t, "s1", 1_000_000)
	rootAfterCreate := f.ledger.StateRoot()

	receipt, err := f.submit(t, f.payer, &types.Transaction{
		Type:    types.TxTypeSettlePayment,
		Address: ref.Address,
		Bump:    ref.Bump,
		Amount:  1_000_000,
	})
	require.NoError(t, err)
	require.True(t, receipt.PayRequest.Settled)
	require.NotEqual(t, rootAfterCreate, receipt.StateRoot)

	before, err := f.ledger.Account(f.receiver.Address())
	require.NoError(t, err)
	receipt, err = f.submit(t, f.receiver, &types.Transaction{
		Type:    types.TxTypeSweepFunds,
		Address: ref.Address,
		Bump:    ref.Bump,
	})
	require.NoError(t, err)
	require.Equal(t, uint64(1_000_000), receipt.Swept)
	require.True(t, receipt.PayRequest.Swept)
	require.Len(t, receipt.Events, 1)
	require.Equal(t, events.TypePayRequestSwept, receipt.Events[0].Type)

	after, err := f.ledger.Account(f.receiver.Address())
	require.NoError(t, err)
	require.Equal(t, before.Lamports+1_000_000, after.Lamports)
	require.Equal(t, uint64(2), after.Nonce)

	recorded := f.recorder.Events()
	require.Len(t, recorded, 3)
	for _, evt := range recorded {
		if _, ok := evt.Event().Attributes["seed"]; ok {
			t.Fatalf("event %s exposes the seed", evt.EventType())
		}
	}
}

func TestLedgerRejectedTransactionLeavesNoTrace(t *testing.T) {
	f := newLedgerFixture(t, storage.NewMemDB())
	ref := f.create(t, "s4", 500)
	_, err := f.submit(t, f.payer, &types.Transaction{
		Type: types.TxTypeSettlePayment, Address: ref.Address, Bump: ref.Bump, Amount: 500,
	})
	require.NoError(t, err)

	root := f.ledger.StateRoot()
	eventsBefore := len(f.recorder.Events())
	nonceBefore := f.nonce(t, f.stranger)

	_, err = f.submit(t, f.stranger, &types.Transaction{
		Type: types.TxTypeSweepFunds, Address: ref.Address, Bump: ref.Bump,
	})
	require.ErrorIs(t, err, payrequest.ErrUnauthorizedReceiver)
	require.Equal(t, "UnauthorizedReceiver", ErrorCode(err))

	require.Equal(t, root, f.ledger.StateRoot())
	require.Equal(t, nonceBefore, f.nonce(t, f.stranger))
	require.Len(t, f.recorder.Events(), eventsBefore)

	rec, err := f.ledger.PayRequest(ref.Address)
	require.NoError(t, err)
	require.True(t, rec.Settled)
	require.False(t, rec.Swept)
}

func TestLedgerRejectsReplayAndForgery(t *testing.T) {
	f := newLedgerFixture(t, storage.NewMemDB())
	addr, _, err := f.ledger.Derive(f.receiver.Address(), []byte("replay"))
	require.NoError(t, err)

	tx := &types.Transaction{
		Type:    types.TxTypeCreatePayRequest,
		Address: addr,
		Seed:    []byte("replay"),
		Amount:  10,
	}
	require.NoError(t, tx.Sign(f.receiver))
	_, err = f.ledger.Submit(context.Background(), tx)
	require.NoError(t, err)

	_, err = f.ledger.Submit(context.Background(), tx)
	if !errors.Is(err, ErrNonceMismatch) {
		t.Fatalf("expected nonce mismatch on replay, got %v", err)
	}

	forged := &types.Transaction{
		Type:    types.TxTypeSweepFunds,
		Nonce:   f.nonce(t, f.receiver),
		Address: addr,
	}
	require.NoError(t, forged.Sign(f.stranger))
	forged.Signer = f.receiver.Address()
	_, err = f.ledger.Submit(context.Background(), forged)
	require.ErrorIs(t, err, types.ErrInvalidSignature)
	require.Equal(t, "InvalidSignature", ErrorCode(err))

	unsigned := &types.Transaction{Type: types.TxTypeSweepFunds, Signer: f.receiver.Address()}
	_, err = f.ledger.Submit(context.Background(), unsigned)
	require.ErrorIs(t, err, types.ErrMissingSignature)

	_, err = f.ledger.Submit(context.Background(), &types.Transaction{Type: 0x7f})
	require.ErrorIs(t, err, ErrUnknownTxType)

	_, err = f.ledger.Submit(context.Background(), nil)
	require.Error(t, err)
}

func TestLedgerReopenPersistsState(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state")
	db, err := storage.NewLevelDB(path)
	require.NoError(t, err)

	f := newLedgerFixture(t, db)
	ref := f.create(t, "persist", 42)
	root := f.ledger.StateRoot()
	db.Close()

	db, err = storage.NewLevelDB(path)
	require.NoError(t, err)
	defer db.Close()

	// A different genesis must not be re-applied over existing state.
	reopened, err := NewLedger(db, genesisFor(newKey(t)))
	require.NoError(t, err)
	require.Equal(t, root, reopened.StateRoot())

	rec, err := reopened.PayRequest(ref.Address)
	require.NoError(t, err)
	require.Equal(t, uint64(42), rec.Amount)
	require.Equal(t, "persist", string(rec.SecretSeed))
}

func TestLedgerProgramMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state")
	db, err := storage.NewLevelDB(path)
	require.NoError(t, err)
	_, err = NewLedger(db, nil)
	require.NoError(t, err)
	db.Close()

	db, err = storage.NewLevelDB(path)
	require.NoError(t, err)
	defer db.Close()
	other := &genesis.GenesisSpec{ProgramID: crypto.FormatAddress([32]byte{7})}
	_, err = NewLedger(db, other)
	require.ErrorIs(t, err, ErrProgramMismatch)
}

func TestLedgerCustomRent(t *testing.T) {
	receiver := newKey(t)
	ledger, err := NewLedger(storage.NewMemDB(), genesisFor(receiver),
		WithRent(payrequest.Rent{LamportsPerByteYear: 1, ExemptionYears: 1}))
	require.NoError(t, err)

	reserve, err := ledger.Reserve(payrequest.RecordSize)
	require.NoError(t, err)
	require.Equal(t, uint64(128+payrequest.RecordSize), reserve)
}

// gatedEmitter blocks the first delivery until release is closed.
type gatedEmitter struct {
	once    sync.Once
	entered chan struct{}
	release chan struct{}

	mu    sync.Mutex
	types []string
}

func (g *gatedEmitter) Emit(evt events.Event) {
	g.once.Do(func() {
		close(g.entered)
		<-g.release
	})
	g.mu.Lock()
	g.types = append(g.types, evt.EventType())
	g.mu.Unlock()
}

func TestLedgerSlowSinkDoesNotBlockQueries(t *testing.T) {
	receiver, payer := newKey(t), newKey(t)
	sink := &gatedEmitter{entered: make(chan struct{}), release: make(chan struct{})}
	ledger, err := NewLedger(storage.NewMemDB(), genesisFor(receiver, payer), WithEmitter(sink))
	require.NoError(t, err)

	addr, bump, err := ledger.Derive(receiver.Address(), []byte("slow"))
	require.NoError(t, err)
	create := &types.Transaction{Type: types.TxTypeCreatePayRequest, Address: addr, Seed: []byte("slow"), Amount: 5}
	require.NoError(t, create.Sign(receiver))

	created := make(chan error, 1)
	go func() {
		_, err := ledger.Submit(context.Background(), create)
		created <- err
	}()
	<-sink.entered

	queried := make(chan error, 1)
	go func() {
		_, err := ledger.PayRequest(addr)
		queried <- err
	}()
	select {
	case err := <-queried:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatalf("query blocked behind event delivery")
	}

	settle := &types.Transaction{Type: types.TxTypeSettlePayment, Address: addr, Bump: bump, Amount: 5}
	require.NoError(t, settle.Sign(payer))
	settled := make(chan error, 1)
	go func() {
		_, err := ledger.Submit(context.Background(), settle)
		settled <- err
	}()
	require.Eventually(t, func() bool {
		rec, err := ledger.PayRequest(addr)
		return err == nil && rec.Settled
	}, 2*time.Second, 10*time.Millisecond)

	close(sink.release)
	require.NoError(t, <-created)
	require.NoError(t, <-settled)

	sink.mu.Lock()
	defer sink.mu.Unlock()
	require.Equal(t, []string{events.TypePayRequestCreated, events.TypePayRequestSettled}, sink.types)
}
