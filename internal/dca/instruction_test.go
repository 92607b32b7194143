package dca_test

import (
	"crypto/sha256"
	"encoding/binary"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dca-go/internal/dca"
	"dca-go/internal/testutil"
)

func TestInstruction_Encoding(t *testing.T) {
	f := testutil.NewFixture(t)
	position := testutil.NewKey(t).PublicKey()

	t.Run("deposit token data is discriminator and amount", func(t *testing.T) {
		ix := f.TokenDeposit(position, 1000).Instruction(f.ProgramID)

		disc := sha256.Sum256([]byte("global:deposit_token"))
		require.Len(t, ix.Data, 16)
		assert.Equal(t, disc[:8], ix.Data[:8])
		assert.Equal(t, uint64(1000), binary.LittleEndian.Uint64(ix.Data[8:]))
		assert.Equal(t, dca.InstructionDepositToken, ix.Name())

		require.Len(t, ix.Accounts, 7)
		assert.Equal(t, dca.AccountMeta{PublicKey: f.OwnerKey(), IsSigner: true, IsWritable: true}, ix.Accounts[0])
		assert.Equal(t, solana.TokenProgramID, ix.Accounts[3].PublicKey)
	})

	t.Run("accumulate mode adds a trailing byte", func(t *testing.T) {
		req := f.NativeDeposit(position, 5)
		req.Mode = dca.DepositModeAccumulate
		ix := req.Instruction(f.ProgramID)
		require.Len(t, ix.Data, 17)

		got, err := dca.DecodeDepositNative(ix)
		require.NoError(t, err)
		assert.Equal(t, req, got)
	})

	t.Run("execute swap keeps route order", func(t *testing.T) {
		req := f.Swap(position, f.Token, 100, 95)
		ix := req.Instruction(f.ProgramID)
		require.Len(t, ix.Accounts, 21)
		assert.Equal(t, f.Pool.Route.AMM.ProgramID, ix.Accounts[0].PublicKey)
		assert.Equal(t, f.Pool.Route.Market.VaultSigner, ix.Accounts[14].PublicKey)
		assert.True(t, ix.Accounts[20].IsSigner)

		got, err := dca.DecodeExecuteSwap(ix)
		require.NoError(t, err)
		assert.Equal(t, req, got)
	})

	t.Run("initialize carries optional floor and owner", func(t *testing.T) {
		req := f.Schedule(position, 1000, 100, 86400)
		req.MinimumAmountOut = 7
		ix := req.Instruction(f.ProgramID)
		require.Len(t, ix.Data, 8+32)
		require.Len(t, ix.Accounts, 2)

		got, err := dca.DecodeInitialize(ix)
		require.NoError(t, err)
		assert.Equal(t, req, got)

		req.MinimumAmountOut = 0
		req.Accounts.Owner = solana.PublicKey{}
		ix = req.Instruction(f.ProgramID)
		require.Len(t, ix.Data, 8+24)
		require.Len(t, ix.Accounts, 1)
	})

	t.Run("rejects wrong account count", func(t *testing.T) {
		ix := f.TokenDeposit(position, 1000).Instruction(f.ProgramID)
		ix.Accounts = ix.Accounts[:6]
		_, err := dca.DecodeDepositToken(ix)
		require.ErrorIs(t, err, dca.ErrInvalidInstruction)
	})

	t.Run("rejects another instruction's data", func(t *testing.T) {
		ix := f.TokenDeposit(position, 1000).Instruction(f.ProgramID)
		_, err := dca.DecodeExecuteSwap(ix)
		require.ErrorIs(t, err, dca.ErrInvalidInstruction)
	})
}

func TestProgram_Process(t *testing.T) {
	t.Run("runs a signed deposit, schedule and swap", func(t *testing.T) {
		f := testutil.NewFixture(t)
		position := testutil.NewKey(t).PublicKey()

		for _, ix := range []dca.Instruction{
			f.TokenDeposit(position, 1000).Instruction(f.ProgramID),
			f.Schedule(position, 1000, 100, 86400).Instruction(f.ProgramID),
		} {
			signed, err := dca.Sign(ix, f.Owner)
			require.NoError(t, err)
			_, err = f.Program.Process(f.Ctx, signed)
			require.NoError(t, err)
		}

		signed, err := dca.Sign(f.Swap(position, f.Token, 100, 95).Instruction(f.ProgramID), f.Owner)
		require.NoError(t, err)
		res, err := f.Program.Process(f.Ctx, signed)
		require.NoError(t, err)
		assert.Equal(t, dca.InstructionExecuteSwap, res.Name)
		require.NotNil(t, res.Swap)
		assert.Equal(t, uint64(100), res.Swap.AmountIn)
		assert.Equal(t, uint64(900), f.Balance(f.VaultHolding(position, f.Token)))
	})

	t.Run("rejects tampered data", func(t *testing.T) {
		f := testutil.NewFixture(t)
		position := testutil.NewKey(t).PublicKey()
		signed, err := dca.Sign(f.TokenDeposit(position, 1000).Instruction(f.ProgramID), f.Owner)
		require.NoError(t, err)

		binary.LittleEndian.PutUint64(signed.Instruction.Data[8:], 9999)
		_, err = f.Program.Process(f.Ctx, signed)
		require.ErrorIs(t, err, dca.ErrMissingSignature)
		assert.Nil(t, f.Record(position))
	})

	t.Run("rejects a signature by another key", func(t *testing.T) {
		f := testutil.NewFixture(t)
		ix := f.TokenDeposit(testutil.NewKey(t).PublicKey(), 1000).Instruction(f.ProgramID)
		_, err := dca.Sign(ix, testutil.NewKey(t))
		require.ErrorIs(t, err, dca.ErrMissingSignature)

		forged, err := dca.Sign(f.TokenDeposit(testutil.NewKey(t).PublicKey(), 1).Instruction(f.ProgramID), f.Owner)
		require.NoError(t, err)
		_, err = f.Program.Process(f.Ctx, dca.SignedInstruction{Instruction: ix, Signatures: forged.Signatures})
		require.ErrorIs(t, err, dca.ErrMissingSignature)
	})

	t.Run("rejects an instruction for another program", func(t *testing.T) {
		f := testutil.NewFixture(t)
		signed, err := dca.Sign(f.TokenDeposit(testutil.NewKey(t).PublicKey(), 1000).Instruction(testutil.NewKey(t).PublicKey()), f.Owner)
		require.NoError(t, err)
		_, err = f.Program.Process(f.Ctx, signed)
		require.ErrorIs(t, err, dca.ErrInvalidInstruction)
	})

	t.Run("rejects an unknown discriminator", func(t *testing.T) {
		f := testutil.NewFixture(t)
		signed, err := dca.Sign(dca.Instruction{ProgramID: f.ProgramID, Data: make([]byte, 8)})
		require.NoError(t, err)
		_, err = f.Program.Process(f.Ctx, signed)
		require.ErrorIs(t, err, dca.ErrInvalidInstruction)
	})
}
