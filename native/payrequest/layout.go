package payrequest

import (
	"encoding/binary"
	"fmt"
	"unicode/utf8"

	"lukechampine.com/blake3"
)

// Record layout, little endian:
//
//	discriminator [8] | receiver [32] | amount u64 | seed_len u32 |
//	seed [MaxSeedLength] | bump u8 | settled u8 | swept u8
const (
	discriminatorSize = 8
	offReceiver       = discriminatorSize
	offAmount         = offReceiver + 32
	offSeedLen        = offAmount + 8
	offSeed           = offSeedLen + 4
	offBump           = offSeed + MaxSeedLength
	offSettled        = offBump + 1
	offSwept          = offSettled + 1

	// RecordSize is the fixed size of an encoded pay request.
	RecordSize = offSwept + 1
)

var discriminator = func() [discriminatorSize]byte {
	sum := blake3.Sum256([]byte("account:PayRequest"))
	var d [discriminatorSize]byte
	copy(d[:], sum[:discriminatorSize])
	return d
}()

// EncodeRecord serialises the record into its fixed layout.
func EncodeRecord(p *PayRequest) ([]byte, error) {
	if p == nil {
		return nil, fmt.Errorf("%w: nil record", ErrInvalidRecord)
	}
	if err := validateSeed(p.SecretSeed); err != nil {
		return nil, err
	}
	if p.Swept && !p.Settled {
		return nil, fmt.Errorf("%w: swept without settlement", ErrInvalidRecord)
	}
	buf := make([]byte, RecordSize)
	copy(buf, discriminator[:])
	copy(buf[offReceiver:], p.Receiver[:])
	binary.LittleEndian.PutUint64(buf[offAmount:], p.Amount)
	binary.LittleEndian.PutUint32(buf[offSeedLen:], uint32(len(p.SecretSeed)))
	copy(buf[offSeed:], p.SecretSeed)
	buf[offBump] = p.Bump
	buf[offSettled] = boolByte(p.Settled)
	buf[offSwept] = boolByte(p.Swept)
	return buf, nil
}

// DecodeRecord parses account data produced by EncodeRecord and rejects
// anything that does not match the layout exactly.
func DecodeRecord(data []byte) (*PayRequest, error) {
	if len(data) != RecordSize {
		return nil, fmt.Errorf("%w: size %d", ErrInvalidRecord, len(data))
	}
	if [discriminatorSize]byte(data[:discriminatorSize]) != discriminator {
		return nil, fmt.Errorf("%w: discriminator", ErrInvalidRecord)
	}
	seedLen := binary.LittleEndian.Uint32(data[offSeedLen:])
	if seedLen == 0 || seedLen > MaxSeedLength {
		return nil, fmt.Errorf("%w: seed length %d", ErrInvalidRecord, seedLen)
	}
	for _, b := range data[offSeed+int(seedLen) : offBump] {
		if b != 0 {
			return nil, fmt.Errorf("%w: seed padding", ErrInvalidRecord)
		}
	}
	if !utf8.Valid(data[offSeed : offSeed+int(seedLen)]) {
		return nil, fmt.Errorf("%w: seed encoding", ErrInvalidRecord)
	}
	settled, err := parseBool(data[offSettled])
	if err != nil {
		return nil, err
	}
	swept, err := parseBool(data[offSwept])
	if err != nil {
		return nil, err
	}
	if swept && !settled {
		return nil, fmt.Errorf("%w: swept without settlement", ErrInvalidRecord)
	}
	p := &PayRequest{
		Amount:     binary.LittleEndian.Uint64(data[offAmount:]),
		SecretSeed: append([]byte(nil), data[offSeed:offSeed+int(seedLen)]...),
		Bump:       data[offBump],
		Settled:    settled,
		Swept:      swept,
	}
	copy(p.Receiver[:], data[offReceiver:offAmount])
	return p, nil
}

func boolByte(v bool) byte {
	if v {
		return 1
	}
	return 0
}

func parseBool(b byte) (bool, error) {
	switch b {
	case 0:
		return false, nil
	case 1:
		return true, nil
	default:
		return false, fmt.Errorf("%w: flag byte %#x", ErrInvalidRecord, b)
	}
}
