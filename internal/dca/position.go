package dca

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"

	"github.com/gagliardetto/solana-go"
)

// Direction tags which asset flows into custody and which flows out on conversion.
type Direction uint8

const (
	DirectionUnset Direction = 0
	NativeToToken  Direction = 1
	TokenToNative  Direction = 2
)

func (d Direction) String() string {
	switch d {
	case NativeToToken:
		return "native-to-token"
	case TokenToNative:
		return "token-to-native"
	default:
		return "unset"
	}
}

// Position is the persisted custody record plus schedule for one DCA position.
// It lives at the position identity chosen by the owner.
type Position struct {
	TotalAmount      uint64
	Owner            solana.PublicKey
	AssetIn          solana.PublicKey
	StartTime        uint64
	StepAmount       uint64
	StepInterval     uint64
	Direction        Direction
	Active           bool
	MinimumAmountOut uint64
	// LastExecution is the unix time of the last executed step, 0 if none.
	LastExecution uint64
	// TargetMint is the mint conversions produce. Zero on records written
	// before it was stored.
	TargetMint solana.PublicKey
}

// PositionEntry pairs a record with its identity.
type PositionEntry struct {
	ID       solana.PublicKey
	Position *Position
}

const (
	// PositionBaseSize is the encoded size without the trailing fields.
	PositionBaseSize = 8 + 8 + 32 + 32 + 8 + 8 + 8 + 1 + 1 + 8
	// PositionScheduledSize adds the last execution field.
	PositionScheduledSize = PositionBaseSize + 8
	// PositionSize is the encoded size written by EncodePosition.
	PositionSize = PositionScheduledSize + 32
)

var positionDiscriminator = accountDiscriminator("DcaData")

func accountDiscriminator(name string) [8]byte {
	sum := sha256.Sum256([]byte("account:" + name))
	var d [8]byte
	copy(d[:], sum[:8])
	return d
}

// EncodePosition serializes p into the fixed little-endian record layout.
func EncodePosition(p *Position) []byte {
	buf := make([]byte, PositionSize)
	copy(buf[0:8], positionDiscriminator[:])
	off := 8
	putU64 := func(v uint64) {
		binary.LittleEndian.PutUint64(buf[off:], v)
		off += 8
	}
	putKey := func(k solana.PublicKey) {
		copy(buf[off:], k[:])
		off += 32
	}

	putU64(p.TotalAmount)
	putKey(p.Owner)
	putKey(p.AssetIn)
	putU64(p.StartTime)
	putU64(p.StepAmount)
	putU64(p.StepInterval)
	buf[off] = byte(p.Direction)
	off++
	if p.Active {
		buf[off] = 1
	}
	off++
	putU64(p.MinimumAmountOut)
	putU64(p.LastExecution)
	putKey(p.TargetMint)
	return buf
}

// DecodePosition parses a record written by EncodePosition. Records without
// the trailing last execution and target mint fields are accepted.
func DecodePosition(data []byte) (*Position, error) {
	switch len(data) {
	case PositionBaseSize, PositionScheduledSize, PositionSize:
	default:
		return nil, fmt.Errorf("decoding position: unexpected length %d", len(data))
	}
	if [8]byte(data[0:8]) != positionDiscriminator {
		return nil, fmt.Errorf("decoding position: bad discriminator %x", data[0:8])
	}

	p := &Position{}
	off := 8
	u64 := func() uint64 {
		v := binary.LittleEndian.Uint64(data[off:])
		off += 8
		return v
	}
	key := func() solana.PublicKey {
		k := solana.PublicKeyFromBytes(data[off : off+32])
		off += 32
		return k
	}

	p.TotalAmount = u64()
	p.Owner = key()
	p.AssetIn = key()
	p.StartTime = u64()
	p.StepAmount = u64()
	p.StepInterval = u64()
	switch d := Direction(data[off]); d {
	case DirectionUnset, NativeToToken, TokenToNative:
		p.Direction = d
	default:
		return nil, fmt.Errorf("decoding position: bad direction %d", data[off])
	}
	off++
	switch data[off] {
	case 0:
	case 1:
		p.Active = true
	default:
		return nil, fmt.Errorf("decoding position: bad active flag %d", data[off])
	}
	off++
	p.MinimumAmountOut = u64()
	if len(data) >= PositionScheduledSize {
		p.LastExecution = u64()
	}
	if len(data) == PositionSize {
		p.TargetMint = key()
	}
	return p, nil
}
