package state

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"shadowpay/core/types"
	"shadowpay/storage"
	"shadowpay/storage/trie"
)

func newTestManager(t *testing.T) (*Manager, storage.Database) {
	t.Helper()
	db := storage.NewMemDB()
	t.Cleanup(db.Close)
	tr, err := trie.NewTrie(db, nil)
	if err != nil {
		t.Fatalf("new trie: %v", err)
	}
	return NewManager(tr), db
}

func testAddress(fill byte) [32]byte {
	var addr [32]byte
	copy(addr[:], bytes.Repeat([]byte{fill}, 32))
	return addr
}

func TestManagerAccountRoundTrip(t *testing.T) {
	mgr, _ := newTestManager(t)
	addr := testAddress(0x01)

	empty, err := mgr.GetAccount(addr)
	require.NoError(t, err)
	require.True(t, empty.Empty())

	acc := &types.Account{Lamports: 5_000, Owner: testAddress(0x09), Nonce: 2, Data: []byte{1, 2, 3}}
	require.NoError(t, mgr.PutAccount(addr, acc))

	stored, err := mgr.GetAccount(addr)
	require.NoError(t, err)
	require.Equal(t, acc, stored)
}

func TestManagerSnapshotRevert(t *testing.T) {
	mgr, _ := newTestManager(t)
	addr := testAddress(0x02)
	require.NoError(t, mgr.PutAccount(addr, &types.Account{Lamports: 10}))

	outer := mgr.Snapshot()
	require.NoError(t, mgr.PutAccount(addr, &types.Account{Lamports: 20}))
	inner := mgr.Snapshot()
	require.NoError(t, mgr.PutAccount(addr, &types.Account{Lamports: 30}))

	require.NoError(t, mgr.RevertToSnapshot(inner))
	acc, err := mgr.GetAccount(addr)
	require.NoError(t, err)
	require.Equal(t, uint64(20), acc.Lamports)

	require.NoError(t, mgr.RevertToSnapshot(outer))
	acc, err = mgr.GetAccount(addr)
	require.NoError(t, err)
	require.Equal(t, uint64(10), acc.Lamports)

	require.Error(t, mgr.RevertToSnapshot(inner))
}

func TestManagerCommitPersists(t *testing.T) {
	mgr, db := newTestManager(t)
	addr := testAddress(0x03)
	require.NoError(t, mgr.PutAccount(addr, &types.Account{Lamports: 42}))

	root, err := mgr.Commit()
	require.NoError(t, err)
	height, err := mgr.Height()
	require.NoError(t, err)
	require.Equal(t, uint64(1), height)

	tr, err := trie.NewTrie(db, root.Bytes())
	require.NoError(t, err)
	reopened := NewManager(tr)
	acc, err := reopened.GetAccount(addr)
	require.NoError(t, err)
	require.Equal(t, uint64(42), acc.Lamports)
}

func TestManagerDiscardDropsPending(t *testing.T) {
	mgr, _ := newTestManager(t)
	addr := testAddress(0x04)
	require.NoError(t, mgr.PutAccount(addr, &types.Account{Lamports: 1}))
	_, err := mgr.Commit()
	require.NoError(t, err)

	require.NoError(t, mgr.PutAccount(addr, &types.Account{Lamports: 99}))
	require.NoError(t, mgr.Discard())

	acc, err := mgr.GetAccount(addr)
	require.NoError(t, err)
	require.Equal(t, uint64(1), acc.Lamports)
}
