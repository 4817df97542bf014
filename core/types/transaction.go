package types

import (
	"crypto/sha256"
	"encoding/json"
	"errors"

	"shadowpay/crypto"
)

// TxType defines the purpose of a transaction.
type TxType byte

const (
	TxTypeCreatePayRequest TxType = 0x01 // Receiver opens a pay request
	TxTypeSettlePayment    TxType = 0x02 // Payer deposits into a pay request
	TxTypeSweepFunds       TxType = 0x03 // Receiver withdraws a settled pay request
)

func (t TxType) String() string {
	switch t {
	case TxTypeCreatePayRequest:
		return "CreatePayRequest"
	case TxTypeSettlePayment:
		return "SettlePayment"
	case TxTypeSweepFunds:
		return "SweepFunds"
	default:
		return "Unknown"
	}
}

// Valid reports whether the type is one the ledger executes.
func (t TxType) Valid() bool {
	switch t {
	case TxTypeCreatePayRequest, TxTypeSettlePayment, TxTypeSweepFunds:
		return true
	default:
		return false
	}
}

var (
	ErrMissingSignature = errors.New("transaction: missing signature")
	ErrInvalidSignature = errors.New("transaction: invalid signature")
)

// Transaction is a single signed instruction against one pay request address.
// Seed is only meaningful for TxTypeCreatePayRequest; Bump only for settle and
// sweep.
type Transaction struct {
	Type    TxType   `json:"type"`
	Nonce   uint64   `json:"nonce"`
	Signer  [32]byte `json:"signer"`
	Address [32]byte `json:"address"`
	Bump    uint8    `json:"bump"`
	Seed    []byte   `json:"seed,omitempty"`
	Amount  uint64   `json:"amount"`

	Signature [64]byte `json:"signature"`
}

// Hash covers every field except the signature. An empty seed hashes the
// same as a missing one, matching the wire form.
func (tx *Transaction) Hash() ([]byte, error) {
	seed := tx.Seed
	if len(seed) == 0 {
		seed = nil
	}
	txData := struct {
		Type    TxType
		Nonce   uint64
		Signer  [32]byte
		Address [32]byte
		Bump    uint8
		Seed    []byte
		Amount  uint64
	}{tx.Type, tx.Nonce, tx.Signer, tx.Address, tx.Bump, seed, tx.Amount}

	b, err := json.Marshal(txData)
	if err != nil {
		return nil, err
	}
	hash := sha256.Sum256(b)
	return hash[:], nil
}

// Sign sets the signer to the key's address and signs the transaction hash.
func (tx *Transaction) Sign(key *crypto.PrivateKey) error {
	if key == nil {
		return errors.New("transaction: nil signing key")
	}
	tx.Signer = key.Address()
	hash, err := tx.Hash()
	if err != nil {
		return err
	}
	sig, err := key.Sign(hash)
	if err != nil {
		return err
	}
	tx.Signature = sig
	return nil
}

// VerifySignature checks that Signer produced Signature over the hash.
func (tx *Transaction) VerifySignature() error {
	if tx.Signature == ([64]byte{}) {
		return ErrMissingSignature
	}
	hash, err := tx.Hash()
	if err != nil {
		return err
	}
	if !crypto.VerifySignature(tx.Signer, hash, tx.Signature) {
		return ErrInvalidSignature
	}
	return nil
}
