package client

import (
	"fmt"

	"shadowpay/core/types"
	"shadowpay/native/payrequest"
)

// BuildCreate prepares an unsigned create transaction. The pay request
// address is derived locally so the seed only leaves the client inside the
// signed transaction.
func BuildCreate(programID, receiver [32]byte, nonce uint64, seed []byte, amount uint64) (*types.Transaction, payrequest.Reference, error) {
	if amount == 0 {
		return nil, payrequest.Reference{}, payrequest.ErrInvalidAmount
	}
	addr, bump, err := payrequest.Derive(programID, receiver, seed)
	if err != nil {
		return nil, payrequest.Reference{}, fmt.Errorf("derive pay request address: %w", err)
	}
	tx := &types.Transaction{
		Type:    types.TxTypeCreatePayRequest,
		Nonce:   nonce,
		Signer:  receiver,
		Address: addr,
		Seed:    append([]byte(nil), seed...),
		Amount:  amount,
	}
	return tx, payrequest.Reference{Address: addr, Bump: bump}, nil
}

// BuildSettle prepares an unsigned settle transaction for payer.
func BuildSettle(payer [32]byte, nonce uint64, ref payrequest.Reference, amount uint64) (*types.Transaction, error) {
	if amount == 0 {
		return nil, payrequest.ErrInvalidAmount
	}
	return &types.Transaction{
		Type:    types.TxTypeSettlePayment,
		Nonce:   nonce,
		Signer:  payer,
		Address: ref.Address,
		Bump:    ref.Bump,
		Amount:  amount,
	}, nil
}

// BuildSweep prepares an unsigned sweep transaction for the receiver.
func BuildSweep(receiver [32]byte, nonce uint64, ref payrequest.Reference) *types.Transaction {
	return &types.Transaction{
		Type:    types.TxTypeSweepFunds,
		Nonce:   nonce,
		Signer:  receiver,
		Address: ref.Address,
		Bump:    ref.Bump,
	}
}
