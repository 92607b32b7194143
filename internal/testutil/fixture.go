package testutil

import (
	"context"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/require"

	"dca-go/internal/dca"
	"dca-go/internal/exchange"
	"dca-go/internal/ledger"
)

// Default pool reserves: a 1:1 pool deep enough that small steps barely move it.
const (
	DefaultReserve   = 1_000_000_000
	DefaultOwnerCash = 10_000_000
)

// Runtime is a program runtime whose raw store tests can reach.
type Runtime interface {
	dca.Runtime
	ledger.Updater
}

// Fixture is a funded world: a program, an exchange with one
// token/wrapped-native pool, and one owner.
type Fixture struct {
	T        testing.TB
	Ctx      context.Context
	Runtime  Runtime
	Exchange *exchange.Exchange
	Program  *dca.Program
	Clock    *StubClock

	ProgramID solana.PublicKey
	Owner     solana.PrivateKey
	Token     solana.PublicKey
	Pool      exchange.Pool
}

// NewKey returns a fresh random keypair.
func NewKey(t testing.TB) solana.PrivateKey {
	t.Helper()
	k, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)
	return k
}

// NewFixture builds a Fixture over a fresh in-memory runtime. The owner
// holds DefaultOwnerCash of both the token and native currency.
func NewFixture(t testing.TB, opts ...dca.Option) *Fixture {
	t.Helper()
	return NewFixtureWithRuntime(t, ledger.NewMemoryRuntime(), opts...)
}

// NewFixtureWithRuntime is NewFixture over rt, which must be empty.
func NewFixtureWithRuntime(t testing.TB, rt Runtime, opts ...dca.Option) *Fixture {
	t.Helper()
	f := &Fixture{
		T:         t,
		Ctx:       context.Background(),
		Runtime:   rt,
		Clock:     FixedClock(),
		ProgramID: NewKey(t).PublicKey(),
		Owner:     NewKey(t),
		Token:     NewKey(t).PublicKey(),
	}

	ex, err := exchange.New(exchange.Config{
		AMMProgramID:    NewKey(t).PublicKey(),
		MarketProgramID: NewKey(t).PublicKey(),
	}, dca.NewNopLogger())
	require.NoError(t, err)
	f.Exchange = ex

	f.Pool, err = ex.AddPool(f.Token, solana.WrappedSol, false)
	require.NoError(t, err)
	f.Update(func(s ledger.Store) error {
		return exchange.Seed(f.Ctx, s, f.Pool, DefaultReserve, DefaultReserve)
	})

	f.Program = dca.NewProgram(f.ProgramID, f.Runtime, ex, dca.NewNopLogger(), f.Clock, opts...)

	f.Airdrop(f.OwnerKey(), DefaultOwnerCash)
	f.MintTo(f.Token, f.OwnerKey(), DefaultOwnerCash)
	return f
}

// AddPool registers and seeds another coin/wrapped-native pool.
func (f *Fixture) AddPool(coin solana.PublicKey) exchange.Pool {
	f.T.Helper()
	pool, err := f.Exchange.AddPool(coin, solana.WrappedSol, false)
	require.NoError(f.T, err)
	f.Update(func(s ledger.Store) error {
		return exchange.Seed(f.Ctx, s, pool, DefaultReserve, DefaultReserve)
	})
	return pool
}

func (f *Fixture) OwnerKey() solana.PublicKey { return f.Owner.PublicKey() }

// Signers returns the owner as the only signer.
func (f *Fixture) Signers() dca.Signers { return dca.Signers{f.OwnerKey()} }

// Update runs fn against the raw store and fails the test on error.
func (f *Fixture) Update(fn func(ledger.Store) error) {
	f.T.Helper()
	require.NoError(f.T, f.Runtime.Update(f.Ctx, fn))
}

func (f *Fixture) Airdrop(to solana.PublicKey, lamports uint64) {
	f.T.Helper()
	f.Update(func(s ledger.Store) error { return ledger.Airdrop(f.Ctx, s, to, lamports) })
}

func (f *Fixture) MintTo(mint, owner solana.PublicKey, amount uint64) solana.PublicKey {
	f.T.Helper()
	var addr solana.PublicKey
	f.Update(func(s ledger.Store) error {
		var err error
		addr, err = ledger.MintTo(f.Ctx, s, mint, owner, amount)
		return err
	})
	return addr
}

// Balance returns the token amount at addr, 0 when the account is missing.
func (f *Fixture) Balance(addr solana.PublicKey) uint64 {
	f.T.Helper()
	var amount uint64
	f.Update(func(s ledger.Store) error {
		a, err := s.GetTokenAccount(f.Ctx, addr)
		if a != nil {
			amount = a.Amount
		}
		return err
	})
	return amount
}

func (f *Fixture) NativeBalance(addr solana.PublicKey) uint64 {
	f.T.Helper()
	var amount uint64
	f.Update(func(s ledger.Store) error {
		var err error
		amount, err = s.NativeBalance(f.Ctx, addr)
		return err
	})
	return amount
}

// Record reads the position record directly, nil when missing.
func (f *Fixture) Record(position solana.PublicKey) *dca.Position {
	f.T.Helper()
	var p *dca.Position
	f.Update(func(s ledger.Store) error {
		var err error
		p, err = s.GetPosition(f.Ctx, position)
		return err
	})
	return p
}

func (f *Fixture) Vault(owner, position solana.PublicKey) dca.VaultAuthority {
	f.T.Helper()
	v, err := dca.DeriveVaultAuthority(f.ProgramID, owner, position)
	require.NoError(f.T, err)
	return v
}

func (f *Fixture) Holding(owner, mint solana.PublicKey) solana.PublicKey {
	f.T.Helper()
	addr, _, err := solana.FindAssociatedTokenAddress(owner, mint)
	require.NoError(f.T, err)
	return addr
}

// VaultHolding returns the vault's associated holding of mint for the owner's position.
func (f *Fixture) VaultHolding(position, mint solana.PublicKey) solana.PublicKey {
	f.T.Helper()
	return f.Holding(f.Vault(f.OwnerKey(), position).Address, mint)
}

// TokenDeposit builds a deposit_token request for the owner.
func (f *Fixture) TokenDeposit(position solana.PublicKey, amount uint64) dca.DepositTokenRequest {
	f.T.Helper()
	owner := f.OwnerKey()
	return dca.DepositTokenRequest{
		Amount: amount,
		Accounts: dca.DepositTokenAccounts{
			Owner:        owner,
			Position:     position,
			Vault:        f.Vault(owner, position).Address,
			TokenProgram: solana.TokenProgramID,
			AssetMint:    f.Token,
			OwnerHolding: f.Holding(owner, f.Token),
			VaultHolding: f.VaultHolding(position, f.Token),
		},
	}
}

// NativeDeposit builds a deposit_native request for the owner targeting the token.
func (f *Fixture) NativeDeposit(position solana.PublicKey, amount uint64) dca.DepositNativeRequest {
	f.T.Helper()
	owner := f.OwnerKey()
	return dca.DepositNativeRequest{
		Amount: amount,
		Accounts: dca.DepositNativeAccounts{
			Owner:               owner,
			Position:            position,
			Vault:               f.Vault(owner, position).Address,
			TokenProgram:        solana.TokenProgramID,
			AssetMint:           f.Token,
			WrappedMint:         solana.WrappedSol,
			OwnerWrappedHolding: f.Holding(owner, solana.WrappedSol),
			VaultWrappedHolding: f.VaultHolding(position, solana.WrappedSol),
			VaultTargetHolding:  f.VaultHolding(position, f.Token),
		},
	}
}

// Schedule builds an initialize_schedule request signed by the owner.
func (f *Fixture) Schedule(position solana.PublicKey, start, step, interval uint64) dca.InitializeRequest {
	return dca.InitializeRequest{
		StartTime:    start,
		StepAmount:   step,
		StepInterval: interval,
		Accounts:     dca.InitializeAccounts{Position: position, Owner: f.OwnerKey()},
	}
}

// Swap builds an execute_swap request converting from asset into its
// counterpart through the fixture pool.
func (f *Fixture) Swap(position, asset solana.PublicKey, amountIn, minOut uint64) dca.ExecuteSwapRequest {
	f.T.Helper()
	owner := f.OwnerKey()
	other, ok := f.Pool.Other(asset)
	require.True(f.T, ok, "fixture pool does not trade %s", asset)
	return dca.ExecuteSwapRequest{
		AmountIn:         amountIn,
		MinimumAmountOut: minOut,
		Accounts: dca.ExecuteSwapAccounts{
			Route:          f.Pool.Route,
			Source:         f.VaultHolding(position, asset),
			Destination:    f.VaultHolding(position, other),
			VaultAuthority: f.Vault(owner, position).Address,
			TokenProgram:   solana.TokenProgramID,
			Position:       position,
			Owner:          owner,
		},
	}
}

// FundedTokenPosition deposits amount of the token into a new position and
// initializes a schedule on it, returning the position identity.
func (f *Fixture) FundedTokenPosition(amount, step, interval uint64) solana.PublicKey {
	f.T.Helper()
	position := NewKey(f.T).PublicKey()
	require.NoError(f.T, f.Program.DepositToken(f.Ctx, f.TokenDeposit(position, amount), f.Signers()))
	require.NoError(f.T, f.Program.InitializeSchedule(f.Ctx, f.Schedule(position, 1000, step, interval), f.Signers()))
	return position
}
