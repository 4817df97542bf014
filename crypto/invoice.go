package crypto

import (
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/btcsuite/btcutil/bech32"
)

// InvoicePrefix is the human readable part of an encoded pay request invoice.
const InvoicePrefix = "spay"

// Invoice is the shareable form of a pay request: the derived escrow address
// and the requested amount. It never carries the secret seed.
type Invoice struct {
	Address [AddressLength]byte
	Amount  uint64
}

func (i Invoice) String() string {
	encoded, err := EncodeInvoice(i)
	if err != nil {
		return ""
	}
	return encoded
}

// EncodeInvoice renders the invoice as a bech32 string.
func EncodeInvoice(inv Invoice) (string, error) {
	payload := make([]byte, AddressLength+8)
	copy(payload, inv.Address[:])
	binary.BigEndian.PutUint64(payload[AddressLength:], inv.Amount)
	conv, err := bech32.ConvertBits(payload, 8, 5, true)
	if err != nil {
		return "", err
	}
	return bech32.Encode(InvoicePrefix, conv)
}

// DecodeInvoice parses a bech32 invoice string.
func DecodeInvoice(s string) (Invoice, error) {
	prefix, decoded, err := bech32.Decode(strings.ToLower(strings.TrimSpace(s)))
	if err != nil {
		return Invoice{}, fmt.Errorf("invalid bech32 string: %w", err)
	}
	if prefix != InvoicePrefix {
		return Invoice{}, fmt.Errorf("unexpected invoice prefix %q", prefix)
	}
	payload, err := bech32.ConvertBits(decoded, 5, 8, false)
	if err != nil {
		return Invoice{}, fmt.Errorf("error converting bits: %w", err)
	}
	if len(payload) != AddressLength+8 {
		return Invoice{}, fmt.Errorf("invoice payload must be %d bytes, got %d", AddressLength+8, len(payload))
	}
	var inv Invoice
	copy(inv.Address[:], payload[:AddressLength])
	inv.Amount = binary.BigEndian.Uint64(payload[AddressLength:])
	return inv, nil
}
