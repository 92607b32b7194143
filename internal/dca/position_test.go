package dca_test

import (
	"bytes"
	"crypto/sha256"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dca-go/internal/dca"
	"dca-go/internal/testutil"
)

func samplePosition(t *testing.T) *dca.Position {
	return &dca.Position{
		TotalAmount:      1000,
		Owner:            testutil.NewKey(t).PublicKey(),
		AssetIn:          testutil.NewKey(t).PublicKey(),
		StartTime:        1000,
		StepAmount:       100,
		StepInterval:     86400,
		Direction:        dca.TokenToNative,
		Active:           true,
		MinimumAmountOut: 95,
		LastExecution:    1705314600,
		TargetMint:       testutil.NewKey(t).PublicKey(),
	}
}

func TestEncodePosition(t *testing.T) {
	p := samplePosition(t)
	data := dca.EncodePosition(p)

	require.Len(t, data, dca.PositionSize)
	disc := sha256.Sum256([]byte("account:DcaData"))
	assert.Equal(t, disc[:8], data[:8])
	assert.Equal(t, p.Owner[:], data[16:48])
	assert.Equal(t, byte(dca.TokenToNative), data[8+8+32+32+24])
	assert.Equal(t, byte(1), data[8+8+32+32+25])
	assert.Equal(t, p.TargetMint[:], data[dca.PositionScheduledSize:])

	got, err := dca.DecodePosition(data)
	require.NoError(t, err)
	assert.Equal(t, p, got)
}

func TestDecodePosition(t *testing.T) {
	t.Run("accepts records without last execution", func(t *testing.T) {
		p := samplePosition(t)
		data := dca.EncodePosition(p)[:dca.PositionBaseSize]

		got, err := dca.DecodePosition(data)
		require.NoError(t, err)
		assert.Zero(t, got.LastExecution)
		assert.Equal(t, p.MinimumAmountOut, got.MinimumAmountOut)
		assert.True(t, got.TargetMint.IsZero())
	})

	t.Run("accepts records without target mint", func(t *testing.T) {
		p := samplePosition(t)
		data := dca.EncodePosition(p)[:dca.PositionScheduledSize]

		got, err := dca.DecodePosition(data)
		require.NoError(t, err)
		assert.Equal(t, p.LastExecution, got.LastExecution)
		assert.True(t, got.TargetMint.IsZero())
	})

	tests := []struct {
		name string
		data func(valid []byte) []byte
	}{
		{"empty", func([]byte) []byte { return nil }},
		{"truncated", func(v []byte) []byte { return v[:50] }},
		{"bad discriminator", func(v []byte) []byte {
			return append(bytes.Repeat([]byte{0}, 8), v[8:]...)
		}},
		{"bad direction", func(v []byte) []byte {
			c := append([]byte(nil), v...)
			c[8+8+32+32+24] = 3
			return c
		}},
		{"direction out of range", func(v []byte) []byte {
			c := append([]byte(nil), v...)
			c[8+8+32+32+24] = 255
			return c
		}},
		{"bad active flag", func(v []byte) []byte {
			c := append([]byte(nil), v...)
			c[8+8+32+32+25] = 7
			return c
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			valid := dca.EncodePosition(samplePosition(t))
			_, err := dca.DecodePosition(tt.data(valid))
			assert.Error(t, err)
		})
	}
}
