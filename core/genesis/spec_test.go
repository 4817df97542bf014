package genesis

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"shadowpay/crypto"
	"shadowpay/native/payrequest"
)

func TestParseGenesisSpec(t *testing.T) {
	a := crypto.FormatAddress([32]byte{1})
	b := crypto.FormatAddress([32]byte{2})
	doc := "network: testnet\nalloc:\n  " + b + ": 20\n  " + a + ": 10\n"

	spec, err := ParseGenesisSpec([]byte(doc))
	require.NoError(t, err)
	require.Equal(t, "testnet", spec.Network)

	program, err := spec.Program()
	require.NoError(t, err)
	require.Equal(t, payrequest.DefaultProgramID, program)

	allocs, err := spec.Allocations()
	require.NoError(t, err)
	require.Len(t, allocs, 2)
	require.Equal(t, [32]byte{1}, allocs[0].Address)
	require.Equal(t, uint64(10), allocs[0].Lamports)
	require.Equal(t, uint64(20), allocs[1].Lamports)
}

func TestParseGenesisSpecRejects(t *testing.T) {
	cases := map[string]string{
		"unknown field": "chainId: 7\n",
		"bad program":   "programId: 0OIl\n",
		"bad address":   "alloc:\n  nope0: 5\n",
		"zero balance":  "alloc:\n  " + crypto.FormatAddress([32]byte{3}) + ": 0\n",
	}
	for name, doc := range cases {
		if _, err := ParseGenesisSpec([]byte(doc)); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

func TestLoadGenesisSpecFromFile(t *testing.T) {
	program := crypto.FormatAddress([32]byte{9})
	path := filepath.Join(t.TempDir(), "genesis.yaml")
	require.NoError(t, os.WriteFile(path, []byte("programId: "+program+"\n"), 0o600))

	spec, err := LoadGenesisSpec(path)
	require.NoError(t, err)
	id, err := spec.Program()
	require.NoError(t, err)
	require.Equal(t, [32]byte{9}, id)

	_, err = LoadGenesisSpec(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}
