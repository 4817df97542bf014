package types

// Account is the ledger's view of a single address: its balance, the program
// that owns its data (zero for plain wallets) and the replay nonce of the key
// that controls it.
type Account struct {
	Lamports uint64   `json:"lamports"`
	Owner    [32]byte `json:"owner"`
	Nonce    uint64   `json:"nonce"`
	Data     []byte   `json:"data"`
}

// Clone returns a deep copy so callers can mutate it without touching state.
func (a *Account) Clone() *Account {
	if a == nil {
		return &Account{}
	}
	out := *a
	if a.Data != nil {
		out.Data = append([]byte(nil), a.Data...)
	}
	return &out
}

// Empty reports whether the account has never been funded or initialised.
func (a *Account) Empty() bool {
	return a == nil || (a.Lamports == 0 && a.Nonce == 0 && len(a.Data) == 0 && a.Owner == [32]byte{})
}
