// core/genesis/spec.go
package genesis

import (
	"bytes"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"shadowpay/crypto"
	"shadowpay/native/payrequest"
)

// GenesisSpec is the YAML document that seeds a fresh ledger: the program
// identity pay requests are derived under and the initial wallet balances.
type GenesisSpec struct {
	Network   string            `yaml:"network"`
	ProgramID string            `yaml:"programId"`
	Alloc     map[string]uint64 `yaml:"alloc"` // base58 address -> lamports
}

// Allocation is one validated genesis balance.
type Allocation struct {
	Address  [32]byte
	Lamports uint64
}

// LoadGenesisSpec reads and validates the YAML file at path.
func LoadGenesisSpec(path string) (*GenesisSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read genesis: %w", err)
	}
	return ParseGenesisSpec(data)
}

// ParseGenesisSpec decodes a genesis document, rejecting unknown fields.
func ParseGenesisSpec(data []byte) (*GenesisSpec, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	spec := &GenesisSpec{}
	if err := dec.Decode(spec); err != nil {
		return nil, fmt.Errorf("decode genesis: %w", err)
	}
	if _, err := spec.Program(); err != nil {
		return nil, err
	}
	if _, err := spec.Allocations(); err != nil {
		return nil, err
	}
	return spec, nil
}

// Program returns the configured program identity, or the default one when
// the document leaves it empty.
func (s *GenesisSpec) Program() ([32]byte, error) {
	if s == nil || strings.TrimSpace(s.ProgramID) == "" {
		return payrequest.DefaultProgramID, nil
	}
	id, err := crypto.ParseAddress(strings.TrimSpace(s.ProgramID))
	if err != nil {
		return [32]byte{}, fmt.Errorf("genesis programId: %w", err)
	}
	return id, nil
}

// Allocations returns the parsed balances sorted by address so genesis state
// is built in a deterministic order.
func (s *GenesisSpec) Allocations() ([]Allocation, error) {
	if s == nil {
		return nil, nil
	}
	out := make([]Allocation, 0, len(s.Alloc))
	for raw, lamports := range s.Alloc {
		addr, err := crypto.ParseAddress(strings.TrimSpace(raw))
		if err != nil {
			return nil, fmt.Errorf("genesis alloc %q: %w", raw, err)
		}
		if lamports == 0 {
			return nil, fmt.Errorf("genesis alloc %q: zero balance", raw)
		}
		out = append(out, Allocation{Address: addr, Lamports: lamports})
	}
	sort.Slice(out, func(i, j int) bool {
		return bytes.Compare(out[i].Address[:], out[j].Address[:]) < 0
	})
	for i := 1; i < len(out); i++ {
		if out[i].Address == out[i-1].Address {
			return nil, fmt.Errorf("genesis alloc: duplicate address %s", crypto.FormatAddress(out[i].Address))
		}
	}
	return out, nil
}
