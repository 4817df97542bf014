package rpc

import (
	"encoding/hex"
	"strconv"

	"shadowpay/core"
	"shadowpay/core/types"
	"shadowpay/crypto"
	"shadowpay/native/payrequest"
)

// PayRequestResult is the full stored record of a pay request. The secret
// seed is hex encoded, as on the wire transaction.
type PayRequestResult struct {
	Address    string `json:"address"`
	Receiver   string `json:"receiver"`
	SecretSeed string `json:"secretSeed"`
	Amount     uint64 `json:"amount"`
	Bump       uint8  `json:"bump"`
	Settled    bool   `json:"settled"`
	Swept      bool   `json:"swept"`
	Status     string `json:"status"`
	Lamports   uint64 `json:"lamports"`
}

// AccountResult reflects a wallet or program-owned account.
type AccountResult struct {
	Address  string `json:"address"`
	Lamports uint64 `json:"lamports"`
	Nonce    uint64 `json:"nonce"`
	Owner    string `json:"owner,omitempty"`
	DataLen  int    `json:"dataLen"`
	Data     string `json:"data,omitempty"`
}

// ProgramResult describes the program identity and its reserve schedule.
type ProgramResult struct {
	ProgramID           string `json:"programId"`
	DerivationTag       string `json:"derivationTag"`
	MaxSeedLength       int    `json:"maxSeedLength"`
	RecordSize          int    `json:"recordSize"`
	RecordReserve       uint64 `json:"recordReserve"`
	WalletReserve       uint64 `json:"walletReserve"`
	LamportsPerByteYear uint64 `json:"lamportsPerByteYear"`
	ExemptionYears      uint64 `json:"exemptionYears"`
	Height              uint64 `json:"height"`
	StateRoot           string `json:"stateRoot"`
}

// ReceiptResult reflects a committed transaction.
type ReceiptResult struct {
	TransactionHash string            `json:"transactionHash"`
	Type            string            `json:"type"`
	Height          uint64            `json:"height"`
	StateRoot       string            `json:"stateRoot"`
	PayRequest      *PayRequestResult `json:"payRequest,omitempty"`
	Swept           uint64            `json:"swept,omitempty"`
	Logs            []ReceiptLog      `json:"logs"`
}

// ReceiptLog captures a structured event emitted during transaction execution.
type ReceiptLog map[string]string

// EventResult is one indexed event.
type EventResult struct {
	ID         uint64            `json:"id"`
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
	RecordedAt string            `json:"recordedAt"`
}

// ErrorResult is the body of every non-2xx response.
type ErrorResult struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"requestId,omitempty"`
}

func payRequestResult(rec *payrequest.PayRequest) *PayRequestResult {
	if rec == nil {
		return nil
	}
	return &PayRequestResult{
		Address:    crypto.FormatAddress(rec.Address),
		Receiver:   crypto.FormatAddress(rec.Receiver),
		SecretSeed: hex.EncodeToString(rec.SecretSeed),
		Amount:     rec.Amount,
		Bump:       rec.Bump,
		Settled:    rec.Settled,
		Swept:      rec.Swept,
		Status:     rec.Status().String(),
		Lamports:   rec.Lamports,
	}
}

func accountResult(addr [32]byte, acc *types.Account) AccountResult {
	out := AccountResult{
		Address:  crypto.FormatAddress(addr),
		Lamports: acc.Lamports,
		Nonce:    acc.Nonce,
		DataLen:  len(acc.Data),
		Data:     hex.EncodeToString(acc.Data),
	}
	if acc.Owner != ([32]byte{}) {
		out.Owner = crypto.FormatAddress(acc.Owner)
	}
	return out
}

func receiptResult(r *core.Receipt) ReceiptResult {
	out := ReceiptResult{
		TransactionHash: "0x" + hex.EncodeToString(r.TxHash),
		Type:            r.Type.String(),
		Height:          r.Height,
		StateRoot:       r.StateRoot.Hex(),
		PayRequest:      payRequestResult(r.PayRequest),
		Swept:           r.Swept,
		Logs:            make([]ReceiptLog, 0, len(r.Events)),
	}
	for _, evt := range r.Events {
		out.Logs = append(out.Logs, ReceiptLog(mergeType(evt.Type, evt.Attributes)))
	}
	return out
}

func parseLimit(raw string) int {
	if raw == "" {
		return 0
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0
	}
	return n
}
