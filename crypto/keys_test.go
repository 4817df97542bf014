package crypto

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAddressRoundTrip(t *testing.T) {
	key, err := GeneratePrivateKey()
	require.NoError(t, err)

	encoded := FormatAddress(key.Address())
	decoded, err := ParseAddress(encoded)
	require.NoError(t, err)
	require.Equal(t, key.Address(), decoded)

	_, err = ParseAddress("  ")
	require.Error(t, err)
	_, err = ParseAddress("not-base58-0OIl")
	require.Error(t, err)
}

func TestSignAndVerify(t *testing.T) {
	key, err := GeneratePrivateKey()
	require.NoError(t, err)
	other, err := GeneratePrivateKey()
	require.NoError(t, err)

	msg := []byte("settle")
	sig, err := key.Sign(msg)
	require.NoError(t, err)

	require.True(t, VerifySignature(key.Address(), msg, sig))
	require.False(t, VerifySignature(other.Address(), msg, sig))
	require.False(t, VerifySignature(key.Address(), []byte("sweep"), sig))
	require.False(t, VerifySignature(key.Address(), msg, [SignatureLength]byte{}))
}

func TestPrivateKeyFromBytesValidatesLength(t *testing.T) {
	_, err := PrivateKeyFromBytes(make([]byte, 32))
	require.Error(t, err)

	key, err := GeneratePrivateKey()
	require.NoError(t, err)
	restored, err := PrivateKeyFromBytes(key.Bytes())
	require.NoError(t, err)
	require.Equal(t, key.Address(), restored.Address())
}

func TestKeystoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keys", "receiver.json")
	key, err := GeneratePrivateKey()
	require.NoError(t, err)

	require.NoError(t, SaveToKeystoreWithParams(path, key, "correct horse", LightKeystoreParams))

	loaded, err := LoadFromKeystore(path, "correct horse")
	require.NoError(t, err)
	require.Equal(t, key.Address(), loaded.Address())

	_, err = LoadFromKeystore(path, "wrong")
	require.Error(t, err)
}

func TestInvoiceRoundTrip(t *testing.T) {
	key, err := GeneratePrivateKey()
	require.NoError(t, err)
	inv := Invoice{Address: key.Address(), Amount: 1_000_000}

	encoded, err := EncodeInvoice(inv)
	require.NoError(t, err)
	require.Contains(t, encoded, InvoicePrefix+"1")

	decoded, err := DecodeInvoice(encoded)
	require.NoError(t, err)
	require.Equal(t, inv, decoded)

	last := encoded[len(encoded)-1]
	replacement := "q"
	if last == 'q' {
		replacement = "p"
	}
	_, err = DecodeInvoice(encoded[:len(encoded)-1] + replacement)
	require.Error(t, err)
}

func TestSignatureEncoding(t *testing.T) {
	key, err := GeneratePrivateKey()
	require.NoError(t, err)
	sig, err := key.Sign([]byte("payload"))
	require.NoError(t, err)

	parsed, err := ParseSignature(FormatSignature(sig))
	require.NoError(t, err)
	require.Equal(t, sig, parsed)

	_, err = ParseSignature("0OIl")
	require.Error(t, err)
}
