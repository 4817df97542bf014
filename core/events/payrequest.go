package events

import (
	"strconv"

	"shadowpay/core/types"
	"shadowpay/crypto"
)

const (
	TypePayRequestCreated = "payrequest.created"
	TypePayRequestSettled = "payrequest.settled"
	TypePayRequestSwept   = "payrequest.swept"
)

// PayRequestCreated is emitted once a pay request record is initialised. The
// secret seed is deliberately absent.
type PayRequestCreated struct {
	Address  [32]byte
	Receiver [32]byte
	Amount   uint64
	Bump     uint8
	Reserve  uint64
}

func (PayRequestCreated) EventType() string { return TypePayRequestCreated }

func (e PayRequestCreated) Event() *types.Event {
	return &types.Event{
		Type: TypePayRequestCreated,
		Attributes: map[string]string{
			"address":  crypto.FormatAddress(e.Address),
			"receiver": crypto.FormatAddress(e.Receiver),
			"amount":   formatUint(e.Amount),
			"bump":     formatUint(uint64(e.Bump)),
			"reserve":  formatUint(e.Reserve),
		},
	}
}

type PayRequestSettled struct {
	Address   [32]byte
	Payer     [32]byte
	Requested uint64
	Deposited uint64
}

func (PayRequestSettled) EventType() string { return TypePayRequestSettled }

func (e PayRequestSettled) Event() *types.Event {
	return &types.Event{
		Type: TypePayRequestSettled,
		Attributes: map[string]string{
			"address":   crypto.FormatAddress(e.Address),
			"payer":     crypto.FormatAddress(e.Payer),
			"requested": formatUint(e.Requested),
			"deposited": formatUint(e.Deposited),
		},
	}
}

type PayRequestSwept struct {
	Address  [32]byte
	Receiver [32]byte
	Amount   uint64
}

func (PayRequestSwept) EventType() string { return TypePayRequestSwept }

func (e PayRequestSwept) Event() *types.Event {
	return &types.Event{
		Type: TypePayRequestSwept,
		Attributes: map[string]string{
			"address":  crypto.FormatAddress(e.Address),
			"receiver": crypto.FormatAddress(e.Receiver),
			"amount":   formatUint(e.Amount),
		},
	}
}

func formatUint(v uint64) string {
	return strconv.FormatUint(v, 10)
}
