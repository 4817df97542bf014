package payrequest

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"shadowpay/core/events"
	"shadowpay/core/types"
)

type mockState struct {
	accounts  map[[32]byte]*types.Account
	snapshots []map[[32]byte]*types.Account
	failPut   [32]byte
	failArmed bool
}

func newMockState() *mockState {
	return &mockState{accounts: make(map[[32]byte]*types.Account)}
}

func (m *mockState) GetAccount(addr [32]byte) (*types.Account, error) {
	acc, ok := m.accounts[addr]
	if !ok {
		return &types.Account{}, nil
	}
	return acc.Clone(), nil
}

func (m *mockState) PutAccount(addr [32]byte, acc *types.Account) error {
	if m.failArmed && addr == m.failPut {
		return errors.New("mock: write failed")
	}
	m.accounts[addr] = acc.Clone()
	return nil
}

func (m *mockState) Snapshot() int {
	copyMap := make(map[[32]byte]*types.Account, len(m.accounts))
	for k, v := range m.accounts {
		copyMap[k] = v.Clone()
	}
	m.snapshots = append(m.snapshots, copyMap)
	return len(m.snapshots) - 1
}

func (m *mockState) RevertToSnapshot(id int) error {
	if id < 0 || id >= len(m.snapshots) {
		return errors.New("mock: unknown snapshot")
	}
	m.accounts = m.snapshots[id]
	m.snapshots = m.snapshots[:id]
	return nil
}

func (m *mockState) fund(addr [32]byte, lamports uint64) {
	m.accounts[addr] = &types.Account{Lamports: lamports}
}

func (m *mockState) balance(addr [32]byte) uint64 {
	acc, ok := m.accounts[addr]
	if !ok {
		return 0
	}
	return acc.Lamports
}

func testAddress(fill byte) [32]byte {
	var addr [32]byte
	copy(addr[:], bytes.Repeat([]byte{fill}, 32))
	return addr
}

const startingBalance = 10_000_000_000

type harness struct {
	engine   *Engine
	state    *mockState
	recorder *events.Recorder
	receiver [32]byte
	payer    [32]byte
	stranger [32]byte
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		engine:   NewEngine(DefaultProgramID),
		state:    newMockState(),
		recorder: &events.Recorder{},
		receiver: testAddress(0x11),
		payer:    testAddress(0x22),
		stranger: testAddress(0x33),
	}
	h.engine.SetState(h.state)
	h.engine.SetEmitter(h.recorder)
	h.state.fund(h.receiver, startingBalance)
	h.state.fund(h.payer, startingBalance)
	h.state.fund(h.stranger, startingBalance)
	return h
}

func (h *harness) create(t *testing.T, seed string, amount uint64) Reference {
	t.Helper()
	addr, bump, err := h.engine.Derive(h.receiver, []byte(seed))
	require.NoError(t, err)
	rec, err := h.engine.CreatePayRequest(h.receiver, addr, []byte(seed), amount)
	require.NoError(t, err)
	require.Equal(t, bump, rec.Bump)
	return Reference{Address: addr, Bump: bump}
}

func (h *harness) record(t *testing.T, addr [32]byte) *PayRequest {
	t.Helper()
	rec, err := h.engine.PayRequest(addr)
	require.NoError(t, err)
	return rec
}

func TestHappyPath(t *testing.T) {
	h := newHarness(t)
	ref := h.create(t, "s1", 1_000_000)

	rec := h.record(t, ref.Address)
	if rec.Settled || rec.Swept {
		t.Fatalf("fresh record flags: settled=%v swept=%v", rec.Settled, rec.Swept)
	}
	if rec.Receiver != h.receiver || rec.Amount != 1_000_000 || string(rec.SecretSeed) != "s1" {
		t.Fatalf("unexpected record: %+v", rec)
	}
	if rec.Lamports != 1_496_400 {
		t.Fatalf("expected reserve 1496400, got %d", rec.Lamports)
	}
	afterCreate := h.state.balance(h.receiver)
	if afterCreate != startingBalance-1_496_400 {
		t.Fatalf("receiver should fund reserve, balance %d", afterCreate)
	}

	settled, err := h.engine.SettlePayment(h.payer, ref, 1_000_000)
	require.NoError(t, err)
	require.True(t, settled.Settled)
	require.Equal(t, uint64(startingBalance-1_000_000), h.state.balance(h.payer))

	swept, err := h.engine.SweepFunds(h.receiver, ref)
	require.NoError(t, err)
	require.Equal(t, uint64(1_000_000), swept)
	require.Equal(t, afterCreate+1_000_000, h.state.balance(h.receiver))

	rec = h.record(t, ref.Address)
	require.True(t, rec.Settled)
	require.True(t, rec.Swept)
	require.Equal(t, StatusSwept, rec.Status())
	require.Equal(t, uint64(1_496_400), rec.Lamports)

	evts := h.recorder.Events()
	require.Len(t, evts, 3)
	require.Equal(t, events.TypePayRequestCreated, evts[0].EventType())
	require.Equal(t, events.TypePayRequestSettled, evts[1].EventType())
	require.Equal(t, events.TypePayRequestSwept, evts[2].EventType())
	for _, evt := range evts {
		for key, value := range evt.Event().Attributes {
			if value == "s1" || key == "seed" {
				t.Fatalf("event %s leaks the secret seed", evt.EventType())
			}
		}
	}
}

func TestDoubleSettleRejected(t *testing.T) {
	h := newHarness(t)
	ref := h.create(t, "s2", 500)

	_, err := h.engine.SettlePayment(h.payer, ref, 500)
	require.NoError(t, err)
	before := h.state.balance(h.payer)

	_, err = h.engine.SettlePayment(h.payer, ref, 500)
	require.ErrorIs(t, err, ErrAlreadySettled)
	require.Equal(t, before, h.state.balance(h.payer))

	rec := h.record(t, ref.Address)
	require.True(t, rec.Settled)
	require.False(t, rec.Swept)
}

func TestEarlySweepRejected(t *testing.T) {
	h := newHarness(t)
	ref := h.create(t, "s3", 500)

	_, err := h.engine.SweepFunds(h.receiver, ref)
	require.ErrorIs(t, err, ErrNotSettled)
}

func TestSweepByStrangerRejected(t *testing.T) {
	h := newHarness(t)
	ref := h.create(t, "s4", 500)
	_, err := h.engine.SettlePayment(h.payer, ref, 500)
	require.NoError(t, err)

	_, err = h.engine.SweepFunds(h.stranger, ref)
	require.ErrorIs(t, err, ErrUnauthorizedReceiver)
	require.Equal(t, uint64(startingBalance), h.state.balance(h.stranger))

	rec := h.record(t, ref.Address)
	require.True(t, rec.Settled)
	require.False(t, rec.Swept)
}

func TestDoubleSweepRejected(t *testing.T) {
	h := newHarness(t)
	ref := h.create(t, "s5", 500)
	_, err := h.engine.SettlePayment(h.payer, ref, 500)
	require.NoError(t, err)
	_, err = h.engine.SweepFunds(h.receiver, ref)
	require.NoError(t, err)
	balance := h.state.balance(h.receiver)

	_, err = h.engine.SweepFunds(h.receiver, ref)
	require.ErrorIs(t, err, ErrAlreadySwept)
	require.Equal(t, balance, h.state.balance(h.receiver))
}

func TestSweepChecksFlagsBeforeAuthority(t *testing.T) {
	h := newHarness(t)
	ref := h.create(t, "order", 500)

	_, err := h.engine.SweepFunds(h.stranger, ref)
	require.ErrorIs(t, err, ErrNotSettled)

	_, err = h.engine.SettlePayment(h.payer, ref, 500)
	require.NoError(t, err)
	_, err = h.engine.SweepFunds(h.receiver, ref)
	require.NoError(t, err)

	_, err = h.engine.SweepFunds(h.stranger, ref)
	require.ErrorIs(t, err, ErrAlreadySwept)
}

func TestCreateTwiceRejected(t *testing.T) {
	h := newHarness(t)
	ref := h.create(t, "dup", 500)
	balance := h.state.balance(h.receiver)

	_, err := h.engine.CreatePayRequest(h.receiver, ref.Address, []byte("dup"), 900)
	require.ErrorIs(t, err, ErrAddressAlreadyInUse)
	require.Equal(t, balance, h.state.balance(h.receiver))
	require.Equal(t, uint64(500), h.record(t, ref.Address).Amount)
}

func TestCreateRejectsBadInput(t *testing.T) {
	h := newHarness(t)
	addr, _, err := h.engine.Derive(h.receiver, []byte("ok"))
	require.NoError(t, err)

	cases := []struct {
		name   string
		seed   []byte
		amount uint64
		addr   [32]byte
		want   error
	}{
		{"zero amount", []byte("ok"), 0, addr, ErrInvalidAmount},
		{"empty seed", nil, 1, addr, ErrEmptySeed},
		{"long seed", bytes.Repeat([]byte{'x'}, MaxSeedLength+1), 1, addr, ErrSeedTooLong},
		{"binary seed", []byte{0xff, 0xfe, 0x00}, 1, addr, ErrInvalidSeedEncoding},
		{"wrong address", []byte("ok"), 1, testAddress(0x44), ErrAddressMismatch},
		{"other seed", []byte("other"), 1, addr, ErrAddressMismatch},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := h.engine.CreatePayRequest(h.receiver, tc.addr, tc.seed, tc.amount)
			require.ErrorIs(t, err, tc.want)
		})
	}
	require.Empty(t, h.recorder.Events())
}

func TestCreateAcceptsMaxSeed(t *testing.T) {
	h := newHarness(t)
	seed := bytes.Repeat([]byte("é"), MaxSeedLength/2)
	addr, _, err := h.engine.Derive(h.receiver, seed)
	require.NoError(t, err)
	rec, err := h.engine.CreatePayRequest(h.receiver, addr, seed, 1)
	require.NoError(t, err)
	require.Equal(t, seed, rec.SecretSeed)
	require.Equal(t, seed, h.record(t, addr).SecretSeed)
}

func TestCreateRequiresReserve(t *testing.T) {
	h := newHarness(t)
	h.state.fund(h.receiver, 1_496_400)
	addr, _, err := h.engine.Derive(h.receiver, []byte("poor"))
	require.NoError(t, err)

	_, err = h.engine.CreatePayRequest(h.receiver, addr, []byte("poor"), 10)
	require.ErrorIs(t, err, ErrInsufficientPayerBalance)
	_, err = h.engine.PayRequest(addr)
	require.ErrorIs(t, err, ErrNotFound)

	h.state.fund(h.receiver, 1_496_400+890_880)
	_, err = h.engine.CreatePayRequest(h.receiver, addr, []byte("poor"), 10)
	require.NoError(t, err)
	require.Equal(t, uint64(890_880), h.state.balance(h.receiver))
}

func TestSettleValidation(t *testing.T) {
	h := newHarness(t)
	ref := h.create(t, "validate", 1_000)

	_, err := h.engine.SettlePayment(h.payer, ref, 0)
	require.ErrorIs(t, err, ErrInvalidAmount)

	_, err = h.engine.SettlePayment(h.payer, ref, 999)
	require.ErrorIs(t, err, ErrInsufficientPayment)

	_, err = h.engine.SettlePayment(h.payer, Reference{Address: ref.Address, Bump: ref.Bump + 1}, 1_000)
	require.ErrorIs(t, err, ErrBumpMismatch)

	_, err = h.engine.SettlePayment(h.payer, Reference{Address: testAddress(0x55), Bump: ref.Bump}, 1_000)
	require.ErrorIs(t, err, ErrNotFound)

	_, err = h.engine.SettlePayment(ref.Address, ref, 1_000)
	require.ErrorIs(t, err, ErrSelfFunding)

	h.state.fund(h.payer, 1_000+890_879)
	_, err = h.engine.SettlePayment(h.payer, ref, 1_000)
	require.ErrorIs(t, err, ErrInsufficientPayerBalance)

	rec := h.record(t, ref.Address)
	if rec.Settled {
		t.Fatalf("failed settlements must not flip the flag")
	}
	if rec.Lamports != 1_496_400 {
		t.Fatalf("failed settlements must not move funds, held %d", rec.Lamports)
	}
}

func TestSettleOverpaymentSweptInFull(t *testing.T) {
	h := newHarness(t)
	ref := h.create(t, "tip", 1_000)

	_, err := h.engine.SettlePayment(h.payer, ref, 1_500)
	require.NoError(t, err)
	swept, err := h.engine.SweepFunds(h.receiver, ref)
	require.NoError(t, err)
	require.Equal(t, uint64(1_500), swept)
}

func TestSweepIncludesStrayDeposits(t *testing.T) {
	h := newHarness(t)
	ref := h.create(t, "stray", 1_000)
	_, err := h.engine.SettlePayment(h.payer, ref, 1_000)
	require.NoError(t, err)

	acc := h.state.accounts[ref.Address]
	acc.Lamports += 250

	swept, err := h.engine.SweepFunds(h.receiver, ref)
	require.NoError(t, err)
	require.Equal(t, uint64(1_250), swept)
}

func TestSweepNothingAboveReserve(t *testing.T) {
	h := newHarness(t)
	ref := h.create(t, "drained", 1_000)
	_, err := h.engine.SettlePayment(h.payer, ref, 1_000)
	require.NoError(t, err)

	h.state.accounts[ref.Address].Lamports = 1_496_400

	_, err = h.engine.SweepFunds(h.receiver, ref)
	require.ErrorIs(t, err, ErrNothingToSweep)
	require.False(t, h.record(t, ref.Address).Swept)
}

func TestSweepRevertsOnWriteFailure(t *testing.T) {
	h := newHarness(t)
	ref := h.create(t, "atomic", 1_000)
	_, err := h.engine.SettlePayment(h.payer, ref, 1_000)
	require.NoError(t, err)
	balance := h.state.balance(h.receiver)

	h.state.failPut = h.receiver
	h.state.failArmed = true
	_, err = h.engine.SweepFunds(h.receiver, ref)
	require.Error(t, err)
	h.state.failArmed = false

	rec := h.record(t, ref.Address)
	require.False(t, rec.Swept)
	require.Equal(t, uint64(1_496_400+1_000), rec.Lamports)
	require.Equal(t, balance, h.state.balance(h.receiver))
	require.Len(t, h.recorder.Events(), 2)
}

func TestForeignAccountNotFound(t *testing.T) {
	h := newHarness(t)
	ref := h.create(t, "owned", 1_000)
	h.state.accounts[ref.Address].Owner = testAddress(0x66)

	_, err := h.engine.SettlePayment(h.payer, ref, 1_000)
	require.ErrorIs(t, err, ErrNotFound)
	_, err = h.engine.PayRequest(ref.Address)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestRecordAtWrongAddressRejected(t *testing.T) {
	h := newHarness(t)
	ref := h.create(t, "moved", 1_000)

	// Copy a valid record to an address it was not derived for.
	forged := testAddress(0x77)
	h.state.accounts[forged] = h.state.accounts[ref.Address].Clone()

	_, err := h.engine.SettlePayment(h.payer, Reference{Address: forged, Bump: ref.Bump}, 1_000)
	require.ErrorIs(t, err, ErrAddressMismatch)
}

func TestEngineWithoutState(t *testing.T) {
	engine := NewEngine(DefaultProgramID)
	addr, _, err := engine.Derive(testAddress(1), []byte("x"))
	require.NoError(t, err)
	_, err = engine.CreatePayRequest(testAddress(1), addr, []byte("x"), 1)
	require.Error(t, err)
	_, err = engine.PayRequest(addr)
	require.Error(t, err)
}

func TestErrorCodes(t *testing.T) {
	require.Equal(t, "AlreadySettled", Code(ErrAlreadySettled))
	require.Equal(t, "UnauthorizedReceiver", Code(ErrUnauthorizedReceiver))
	require.Equal(t, "", Code(errors.New("other")))
	require.Equal(t, KindAuthorization, Classify(ErrUnauthorizedReceiver))
	require.Equal(t, KindPrecondition, Classify(ErrNotSettled))
	require.Equal(t, KindNotFound, Classify(ErrNotFound))
	require.Equal(t, KindInput, Classify(ErrSeedTooLong))
	require.Equal(t, KindInput, Classify(ErrInvalidSeedEncoding))
	require.Equal(t, "InvalidSeedEncoding", Code(ErrInvalidSeedEncoding))
}

func TestBalance(t *testing.T) {
	h := newHarness(t)
	ref := h.create(t, "bal", 10)
	got, err := h.engine.Balance(ref.Address)
	require.NoError(t, err)
	require.Equal(t, uint64(1_496_400), got)
	got, err = h.engine.Balance(testAddress(0x99))
	require.NoError(t, err)
	require.Zero(t, got)
}
