package crypto

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gagliardetto/solana-go"
)

// AddressLength is the size of a ledger address (an ed25519 public key).
const AddressLength = 32

// SignatureLength is the size of an ed25519 signature.
const SignatureLength = 64

var errEmptyAddress = errors.New("crypto: empty address")

// FormatAddress renders an address in its base58 form.
func FormatAddress(addr [AddressLength]byte) string {
	return solana.PublicKey(addr).String()
}

// ParseAddress decodes a base58 address.
func ParseAddress(s string) ([AddressLength]byte, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return [AddressLength]byte{}, errEmptyAddress
	}
	pk, err := solana.PublicKeyFromBase58(trimmed)
	if err != nil {
		return [AddressLength]byte{}, fmt.Errorf("crypto: invalid address %q: %w", trimmed, err)
	}
	return [AddressLength]byte(pk), nil
}

// MustParseAddress is ParseAddress for constants and tests.
func MustParseAddress(s string) [AddressLength]byte {
	addr, err := ParseAddress(s)
	if err != nil {
		panic(err)
	}
	return addr
}

// --- Key Management ---

// PrivateKey is an ed25519 signing key.
type PrivateKey struct {
	key solana.PrivateKey
}

func GeneratePrivateKey() (*PrivateKey, error) {
	key, err := solana.NewRandomPrivateKey()
	if err != nil {
		return nil, err
	}
	return &PrivateKey{key: key}, nil
}

// PrivateKeyFromBytes wraps a 64 byte ed25519 private key.
func PrivateKeyFromBytes(b []byte) (*PrivateKey, error) {
	if len(b) != 64 {
		return nil, fmt.Errorf("crypto: private key must be 64 bytes, got %d", len(b))
	}
	key := make(solana.PrivateKey, len(b))
	copy(key, b)
	return &PrivateKey{key: key}, nil
}

// PrivateKeyFromBase58 decodes a base58 encoded private key.
func PrivateKeyFromBase58(s string) (*PrivateKey, error) {
	key, err := solana.PrivateKeyFromBase58(strings.TrimSpace(s))
	if err != nil {
		return nil, err
	}
	return PrivateKeyFromBytes(key)
}

// Bytes returns the byte representation of the private key.
func (k *PrivateKey) Bytes() []byte {
	return append([]byte(nil), k.key...)
}

func (k *PrivateKey) Address() [AddressLength]byte {
	return [AddressLength]byte(k.key.PublicKey())
}

// Sign produces an ed25519 signature over msg.
func (k *PrivateKey) Sign(msg []byte) ([SignatureLength]byte, error) {
	sig, err := k.key.Sign(msg)
	if err != nil {
		return [SignatureLength]byte{}, err
	}
	return [SignatureLength]byte(sig), nil
}

// VerifySignature reports whether sig is a valid signature of msg by addr.
func VerifySignature(addr [AddressLength]byte, msg []byte, sig [SignatureLength]byte) bool {
	if sig == ([SignatureLength]byte{}) {
		return false
	}
	return solana.Signature(sig).Verify(solana.PublicKey(addr), msg)
}

// FormatSignature renders a signature in base58.
func FormatSignature(sig [SignatureLength]byte) string {
	return solana.Signature(sig).String()
}

// ParseSignature decodes a base58 signature.
func ParseSignature(s string) ([SignatureLength]byte, error) {
	sig, err := solana.SignatureFromBase58(strings.TrimSpace(s))
	if err != nil {
		return [SignatureLength]byte{}, fmt.Errorf("crypto: invalid signature: %w", err)
	}
	return [SignatureLength]byte(sig), nil
}
