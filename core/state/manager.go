package state

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"

	"shadowpay/core/types"
	"shadowpay/storage/trie"
)

var errUnknownSnapshot = errors.New("state: unknown snapshot")

// Manager reads and writes ledger state on top of the state trie. Mutations are
// buffered in memory until Commit; Snapshot/RevertToSnapshot give callers
// all-or-nothing transitions.
//
// Manager is not safe for concurrent use; the ledger serialises access.
type Manager struct {
	trie      *trie.Trie
	snapshots []*trie.Trie
}

// NewManager creates a state manager operating on the provided trie.
func NewManager(tr *trie.Trie) *Manager {
	return &Manager{trie: tr}
}

// storedAccount is the RLP layout persisted in the trie.
type storedAccount struct {
	Lamports uint64
	Owner    [32]byte
	Nonce    uint64
	Data     []byte
}

func accountKey(addr [32]byte) []byte {
	buf := make([]byte, len(accountPrefix)+len(addr))
	copy(buf, accountPrefix)
	copy(buf[len(accountPrefix):], addr[:])
	return ethcrypto.Keccak256(buf)
}

func kvKey(key []byte) []byte {
	return ethcrypto.Keccak256(key)
}

// GetAccount returns the account stored at addr. Unknown addresses yield an
// empty account rather than an error.
func (m *Manager) GetAccount(addr [32]byte) (*types.Account, error) {
	data, err := m.trie.Get(accountKey(addr))
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return &types.Account{}, nil
	}
	var stored storedAccount
	if err := rlp.DecodeBytes(data, &stored); err != nil {
		return nil, fmt.Errorf("state: decode account: %w", err)
	}
	return &types.Account{
		Lamports: stored.Lamports,
		Owner:    stored.Owner,
		Nonce:    stored.Nonce,
		Data:     stored.Data,
	}, nil
}

// PutAccount writes the account at addr.
func (m *Manager) PutAccount(addr [32]byte, acc *types.Account) error {
	if acc == nil {
		return fmt.Errorf("state: nil account")
	}
	encoded, err := rlp.EncodeToBytes(&storedAccount{
		Lamports: acc.Lamports,
		Owner:    acc.Owner,
		Nonce:    acc.Nonce,
		Data:     acc.Data,
	})
	if err != nil {
		return err
	}
	return m.trie.Update(accountKey(addr), encoded)
}

// Snapshot records the current in-memory state and returns an identifier that
// RevertToSnapshot accepts.
func (m *Manager) Snapshot() int {
	m.snapshots = append(m.snapshots, m.trie.Copy())
	return len(m.snapshots) - 1
}

// RevertToSnapshot restores the state captured by Snapshot(id), dropping it and
// every later snapshot.
func (m *Manager) RevertToSnapshot(id int) error {
	if id < 0 || id >= len(m.snapshots) {
		return errUnknownSnapshot
	}
	m.trie = m.snapshots[id]
	m.snapshots = m.snapshots[:id]
	return nil
}

// Commit persists all pending mutations, bumps the committed height and returns
// the new state root. Outstanding snapshots are released.
func (m *Manager) Commit() (common.Hash, error) {
	height, err := m.Height()
	if err != nil {
		return common.Hash{}, err
	}
	height++
	if err := m.KVPut(heightKey, height); err != nil {
		return common.Hash{}, err
	}
	root, err := m.trie.Commit(height)
	if err != nil {
		return common.Hash{}, err
	}
	m.snapshots = nil
	return root, nil
}

// Discard drops pending mutations and reloads the last committed root.
func (m *Manager) Discard() error {
	m.snapshots = nil
	return m.trie.Reset(m.trie.Root())
}

// Root returns the last committed state root.
func (m *Manager) Root() common.Hash {
	return m.trie.Root()
}

// Height returns the number of commits applied to this state.
func (m *Manager) Height() (uint64, error) {
	var height uint64
	if _, err := m.KVGet(heightKey, &height); err != nil {
		return 0, err
	}
	return height, nil
}

// KVPut stores the provided value under the supplied key using RLP encoding.
// The key is automatically hashed with keccak256 to match the requirements of
// the underlying trie implementation.
func (m *Manager) KVPut(key []byte, value interface{}) error {
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return err
	}
	return m.trie.Update(kvKey(key), encoded)
}

// KVGet retrieves the value stored under the supplied key and decodes it into
// the provided destination. The boolean return value indicates whether the key
// existed in state.
func (m *Manager) KVGet(key []byte, out interface{}) (bool, error) {
	if len(key) == 0 {
		return false, fmt.Errorf("kv: key must not be empty")
	}
	data, err := m.trie.Get(kvKey(key))
	if err != nil {
		return false, err
	}
	if len(data) == 0 {
		return false, nil
	}
	if out == nil {
		return true, nil
	}
	if err := rlp.DecodeBytes(data, out); err != nil {
		return false, err
	}
	return true, nil
}
