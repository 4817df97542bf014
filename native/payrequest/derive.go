package payrequest

import (
	"fmt"
	"unicode/utf8"

	"github.com/gagliardetto/solana-go"
)

// DerivationTag separates pay request addresses from any other address the
// program derives.
const DerivationTag = "escrow"

// MaxSeedLength is the longest secret seed a pay request accepts. It matches
// the per-seed cap of the address derivation and the seed slot of the record.
const MaxSeedLength = solana.MaxSeedLength

// DefaultProgramID is the program identity pay request addresses are derived
// under unless configured otherwise.
var DefaultProgramID = [32]byte(solana.MustPublicKeyFromBase58("5vd7XKGCZWYBTBrNWvTK6fh2P2jEq7KfM6fBvBwe9NZh"))

func validateSeed(seed []byte) error {
	if len(seed) == 0 {
		return ErrEmptySeed
	}
	if len(seed) > MaxSeedLength {
		return ErrSeedTooLong
	}
	if !utf8.Valid(seed) {
		return ErrInvalidSeedEncoding
	}
	return nil
}

func derivationSeeds(receiver [32]byte, seed []byte) [][]byte {
	return [][]byte{[]byte(DerivationTag), receiver[:], seed}
}

// Derive returns the address of the pay request identified by (receiver,
// seed) under programID, together with the bump that moved it off the curve.
// The result is deterministic.
func Derive(programID, receiver [32]byte, seed []byte) ([32]byte, uint8, error) {
	if err := validateSeed(seed); err != nil {
		return [32]byte{}, 0, err
	}
	addr, bump, err := solana.FindProgramAddress(derivationSeeds(receiver, seed), solana.PublicKey(programID))
	if err != nil {
		return [32]byte{}, 0, fmt.Errorf("payrequest: derive address: %w", err)
	}
	return [32]byte(addr), bump, nil
}

// VerifyAddress recomputes the address from (receiver, seed, bump) without
// searching and checks it equals address.
func VerifyAddress(programID, receiver [32]byte, seed []byte, bump uint8, address [32]byte) error {
	if err := validateSeed(seed); err != nil {
		return err
	}
	seeds := append(derivationSeeds(receiver, seed), []byte{bump})
	addr, err := solana.CreateProgramAddress(seeds, solana.PublicKey(programID))
	if err != nil {
		return ErrAddressMismatch
	}
	if [32]byte(addr) != address {
		return ErrAddressMismatch
	}
	return nil
}
