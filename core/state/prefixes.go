package state

var (
	accountPrefix = []byte("account:")
	heightKey     = []byte("ledger/height")
)
