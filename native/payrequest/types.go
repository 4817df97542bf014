package payrequest

// Status is the lifecycle position of a pay request, derived from its flags.
type Status uint8

const (
	StatusCreated Status = iota
	StatusSettled
	StatusSwept
)

func (s Status) String() string {
	switch s {
	case StatusCreated:
		return "created"
	case StatusSettled:
		return "settled"
	case StatusSwept:
		return "swept"
	default:
		return "unknown"
	}
}

// PayRequest is the escrow record stored at a derived address. Address and
// Lamports describe the hosting account and are not part of the stored layout.
type PayRequest struct {
	Address    [32]byte
	Receiver   [32]byte
	SecretSeed []byte
	Amount     uint64
	Settled    bool
	Swept      bool
	Bump       uint8

	Lamports uint64
}

// Status reports the lifecycle position implied by the flags.
func (p *PayRequest) Status() Status {
	switch {
	case p.Swept:
		return StatusSwept
	case p.Settled:
		return StatusSettled
	default:
		return StatusCreated
	}
}

// Clone returns a deep copy of the record.
func (p *PayRequest) Clone() *PayRequest {
	if p == nil {
		return nil
	}
	out := *p
	out.SecretSeed = append([]byte(nil), p.SecretSeed...)
	return &out
}

// Reference identifies a pay request on settle and sweep: the address the
// caller believes holds the record and the bump it was derived with.
type Reference struct {
	Address [32]byte
	Bump    uint8
}
