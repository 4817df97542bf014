package payrequest

import "errors"

// Precondition violations.
var (
	ErrAddressAlreadyInUse = errors.New("payrequest: address already in use")
	ErrAlreadySettled      = errors.New("payrequest: already settled")
	ErrNotSettled          = errors.New("payrequest: not settled")
	ErrAlreadySwept        = errors.New("payrequest: already swept")
	ErrNotFound            = errors.New("payrequest: not found")
	ErrNothingToSweep      = errors.New("payrequest: no funds above reserve")
)

// Authorization violations.
var (
	ErrUnauthorizedReceiver = errors.New("payrequest: unauthorized receiver")
	ErrAddressMismatch      = errors.New("payrequest: address does not match derivation")
	ErrBumpMismatch         = errors.New("payrequest: bump does not match record")
)

// Input violations.
var (
	ErrInvalidAmount            = errors.New("payrequest: amount must be positive")
	ErrEmptySeed                = errors.New("payrequest: secret seed must not be empty")
	ErrSeedTooLong              = errors.New("payrequest: secret seed exceeds storage budget")
	ErrInvalidSeedEncoding      = errors.New("payrequest: secret seed is not valid UTF-8")
	ErrInsufficientPayment      = errors.New("payrequest: deposit below requested amount")
	ErrInsufficientPayerBalance = errors.New("payrequest: insufficient payer balance")
	ErrSelfFunding              = errors.New("payrequest: pay request cannot fund itself")
)

// ErrInvalidRecord marks account data that does not decode as a pay request.
var ErrInvalidRecord = errors.New("payrequest: malformed record")

var codes = []struct {
	err  error
	code string
}{
	{ErrAddressAlreadyInUse, "AddressAlreadyInUse"},
	{ErrAlreadySettled, "AlreadySettled"},
	{ErrNotSettled, "NotSettled"},
	{ErrAlreadySwept, "AlreadySwept"},
	{ErrNotFound, "NotFound"},
	{ErrNothingToSweep, "NothingToSweep"},
	{ErrUnauthorizedReceiver, "UnauthorizedReceiver"},
	{ErrAddressMismatch, "AddressMismatch"},
	{ErrBumpMismatch, "BumpMismatch"},
	{ErrInvalidAmount, "InvalidAmount"},
	{ErrEmptySeed, "EmptySeed"},
	{ErrSeedTooLong, "SeedTooLong"},
	{ErrInvalidSeedEncoding, "InvalidSeedEncoding"},
	{ErrInsufficientPayment, "InsufficientPayment"},
	{ErrInsufficientPayerBalance, "InsufficientPayerBalance"},
	{ErrSelfFunding, "SelfFunding"},
	{ErrInvalidRecord, "InvalidRecord"},
}

// Code returns the stable identifier for an engine error, or "" when err is
// not one of the engine's sentinel errors.
func Code(err error) string {
	if err == nil {
		return ""
	}
	for _, c := range codes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return ""
}

// Kind groups engine errors for callers that map them onto transport status.
type Kind int

const (
	KindUnknown Kind = iota
	KindPrecondition
	KindAuthorization
	KindInput
	KindNotFound
)

// Classify reports which family err belongs to.
func Classify(err error) Kind {
	switch {
	case err == nil:
		return KindUnknown
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrAddressAlreadyInUse), errors.Is(err, ErrAlreadySettled),
		errors.Is(err, ErrNotSettled), errors.Is(err, ErrAlreadySwept), errors.Is(err, ErrNothingToSweep),
		errors.Is(err, ErrInvalidRecord):
		return KindPrecondition
	case errors.Is(err, ErrUnauthorizedReceiver), errors.Is(err, ErrAddressMismatch), errors.Is(err, ErrBumpMismatch):
		return KindAuthorization
	case errors.Is(err, ErrInvalidAmount), errors.Is(err, ErrEmptySeed), errors.Is(err, ErrSeedTooLong),
		errors.Is(err, ErrInvalidSeedEncoding), errors.Is(err, ErrInsufficientPayment),
		errors.Is(err, ErrInsufficientPayerBalance),
		errors.Is(err, ErrSelfFunding):
		return KindInput
	default:
		return KindUnknown
	}
}
