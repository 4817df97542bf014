package payrequest

import (
	"errors"

	"github.com/holiman/uint256"
)

// AccountStorageOverhead is the per-account byte charge added to the data
// length when computing the reserve.
const AccountStorageOverhead = 128

var errLamportsOverflow = errors.New("payrequest: lamport arithmetic overflow")

// Rent prices the minimum balance an account must hold to stay alive.
type Rent struct {
	LamportsPerByteYear uint64
	ExemptionYears      uint64
}

// DefaultRent mirrors the host ledger's default rent schedule.
func DefaultRent() Rent {
	return Rent{LamportsPerByteYear: 3480, ExemptionYears: 2}
}

// MinimumBalance returns the reserve an account with dataLen bytes must keep.
func (r Rent) MinimumBalance(dataLen int) (uint64, error) {
	if dataLen < 0 {
		return 0, errors.New("payrequest: negative data length")
	}
	size := uint256.NewInt(uint64(AccountStorageOverhead) + uint64(dataLen))
	perYear, overflow := new(uint256.Int).MulOverflow(size, uint256.NewInt(r.LamportsPerByteYear))
	if overflow {
		return 0, errLamportsOverflow
	}
	total, overflow := new(uint256.Int).MulOverflow(perYear, uint256.NewInt(r.ExemptionYears))
	if overflow || !total.IsUint64() {
		return 0, errLamportsOverflow
	}
	return total.Uint64(), nil
}

func addLamports(a, b uint64) (uint64, error) {
	sum, overflow := new(uint256.Int).AddOverflow(uint256.NewInt(a), uint256.NewInt(b))
	if overflow || !sum.IsUint64() {
		return 0, errLamportsOverflow
	}
	return sum.Uint64(), nil
}
