package types

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"shadowpay/crypto"
)

// ParseTxType accepts either the type name or its numeric value.
func ParseTxType(s string) (TxType, error) {
	trimmed := strings.TrimSpace(s)
	for _, t := range []TxType{TxTypeCreatePayRequest, TxTypeSettlePayment, TxTypeSweepFunds} {
		if strings.EqualFold(trimmed, t.String()) || trimmed == fmt.Sprintf("%d", byte(t)) {
			return t, nil
		}
	}
	return 0, fmt.Errorf("transaction: unknown type %q", s)
}

// transactionJSON is the wire form: addresses and signatures in base58, the
// seed in hex.
type transactionJSON struct {
	Type      string `json:"type"`
	Nonce     uint64 `json:"nonce"`
	Signer    string `json:"signer"`
	Address   string `json:"address"`
	Bump      uint8  `json:"bump"`
	Seed      string `json:"seed,omitempty"`
	Amount    uint64 `json:"amount"`
	Signature string `json:"signature,omitempty"`
}

func (tx Transaction) MarshalJSON() ([]byte, error) {
	out := transactionJSON{
		Type:    tx.Type.String(),
		Nonce:   tx.Nonce,
		Signer:  crypto.FormatAddress(tx.Signer),
		Address: crypto.FormatAddress(tx.Address),
		Bump:    tx.Bump,
		Amount:  tx.Amount,
	}
	if len(tx.Seed) > 0 {
		out.Seed = hex.EncodeToString(tx.Seed)
	}
	if tx.Signature != ([64]byte{}) {
		out.Signature = crypto.FormatSignature(tx.Signature)
	}
	return json.Marshal(out)
}

func (tx *Transaction) UnmarshalJSON(data []byte) error {
	var in transactionJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	txType, err := ParseTxType(in.Type)
	if err != nil {
		return err
	}
	signer, err := crypto.ParseAddress(in.Signer)
	if err != nil {
		return fmt.Errorf("signer: %w", err)
	}
	address, err := crypto.ParseAddress(in.Address)
	if err != nil {
		return fmt.Errorf("address: %w", err)
	}
	var seed []byte
	if in.Seed != "" {
		seed, err = hex.DecodeString(in.Seed)
		if err != nil {
			return fmt.Errorf("seed: %w", err)
		}
	}
	var sig [64]byte
	if in.Signature != "" {
		sig, err = crypto.ParseSignature(in.Signature)
		if err != nil {
			return err
		}
	}
	*tx = Transaction{
		Type:      txType,
		Nonce:     in.Nonce,
		Signer:    signer,
		Address:   address,
		Bump:      in.Bump,
		Seed:      seed,
		Amount:    in.Amount,
		Signature: sig,
	}
	return nil
}
