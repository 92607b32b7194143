package app

import (
	"context"
	"fmt"

	"github.com/gagliardetto/solana-go"

	"dca-go/internal/config"
	"dca-go/internal/database"
	"dca-go/internal/dca"
	"dca-go/internal/exchange"
	"dca-go/internal/keeper"
	"dca-go/internal/keystore"
	"dca-go/internal/ledger"
)

func (a *DCAApp) CreateKey(name, passphrase string) (solana.PublicKey, error) {
	return a.keys.Create(name, passphrase)
}

func (a *DCAApp) ListKeys() ([]keystore.Entry, error) {
	return a.keys.List()
}

// ImportKey stores an existing private key under name.
func (a *DCAApp) ImportKey(name string, key solana.PrivateKey, passphrase string) error {
	return a.keys.Import(name, key, passphrase)
}

func (a *DCAApp) Unlock(name, passphrase string) (solana.PrivateKey, error) {
	return a.keys.Unlock(name, passphrase)
}

// Airdrop credits native currency to addr.
func (a *DCAApp) Airdrop(ctx context.Context, to solana.PublicKey, lamports uint64) error {
	return a.mutate(ctx, fmt.Sprintf("to=%s lamports=%d", to, lamports), func() error {
		return a.update(ctx, func(s ledger.Store) error {
			return ledger.Airdrop(ctx, s, to, lamports)
		})
	})
}

// Mint credits amount of mint to owner's associated holding and returns it.
func (a *DCAApp) Mint(ctx context.Context, mint, owner solana.PublicKey, amount uint64) (solana.PublicKey, error) {
	var holding solana.PublicKey
	err := a.mutate(ctx, fmt.Sprintf("mint=%s owner=%s amount=%d", mint, owner, amount), func() error {
		return a.update(ctx, func(s ledger.Store) error {
			var err error
			holding, err = ledger.MintTo(ctx, s, mint, owner, amount)
			return err
		})
	})
	return holding, err
}

// Freeze sets or clears the frozen flag of the token account at addr.
func (a *DCAApp) Freeze(ctx context.Context, addr solana.PublicKey, frozen bool) error {
	return a.mutate(ctx, fmt.Sprintf("account=%s frozen=%v", addr, frozen), func() error {
		return a.update(ctx, func(s ledger.Store) error {
			return ledger.SetFrozen(ctx, s, addr, frozen)
		})
	})
}

// Balance returns the native balance and token holdings of owner.
func (a *DCAApp) Balance(ctx context.Context, owner solana.PublicKey) (uint64, []dca.TokenAccount, error) {
	var (
		native   uint64
		accounts []dca.TokenAccount
	)
	err := a.update(ctx, func(s ledger.Store) error {
		var err error
		native, accounts, err = ledger.Holdings(ctx, s, owner)
		return err
	})
	return native, accounts, err
}

// CreatePool registers the (coin, pc) pool, seeds its reserves and adds it
// to the config. The caller saves the config.
func (a *DCAApp) CreatePool(ctx context.Context, coinMint, pcMint solana.PublicKey, coinAmount, pcAmount uint64) (exchange.Pool, error) {
	var pool exchange.Pool
	params := fmt.Sprintf("coin=%s pc=%s coin_amount=%d pc_amount=%d", coinMint, pcMint, coinAmount, pcAmount)
	err := a.mutate(ctx, params, func() error {
		var err error
		if pool, err = a.exchange.AddPool(coinMint, pcMint, false); err != nil {
			return err
		}
		if err := a.update(ctx, func(s ledger.Store) error {
			return exchange.Seed(ctx, s, pool, coinAmount, pcAmount)
		}); err != nil {
			return err
		}
		for _, pc := range a.cfg.Exchange.Pools {
			if pc.CoinMint == coinMint.String() && pc.PCMint == pcMint.String() {
				return nil
			}
		}
		a.cfg.Exchange.Pools = append(a.cfg.Exchange.Pools, config.PoolConfig{
			CoinMint: coinMint.String(),
			PCMint:   pcMint.String(),
		})
		return nil
	})
	return pool, err
}

// Quote prices amount of inputMint through pool without executing.
func (a *DCAApp) Quote(ctx context.Context, pool, inputMint solana.PublicKey, amount uint64) (exchange.Quote, error) {
	var q exchange.Quote
	env := dca.Envelope{ProgramID: a.exchange.Config().AMMProgramID}
	err := a.db.Execute(ctx, env, func(tx dca.Tx) error {
		var err error
		q, err = a.exchange.Quote(ctx, tx.Ledger(), pool, inputMint, amount)
		return err
	})
	return q, err
}

func (a *DCAApp) vault(owner, position solana.PublicKey) (dca.VaultAuthority, error) {
	return a.program.DeriveVaultAuthority(owner, position)
}

func holding(owner, mint solana.PublicKey) (solana.PublicKey, error) {
	addr, _, err := solana.FindAssociatedTokenAddress(owner, mint)
	return addr, err
}

// DepositNative wraps amount of the owner's native currency into the
// position's custody and records a native-to-token position targeting mint.
func (a *DCAApp) DepositNative(ctx context.Context, owner solana.PrivateKey, position, mint solana.PublicKey, amount uint64, mode dca.DepositMode) error {
	params := fmt.Sprintf("position=%s target=%s amount=%d mode=%s", position, mint, amount, mode)
	return a.mutate(ctx, params, func() error {
		pub := owner.PublicKey()
		vault, err := a.vault(pub, position)
		if err != nil {
			return err
		}
		acc := dca.DepositNativeAccounts{
			Owner:        pub,
			Position:     position,
			Vault:        vault.Address,
			TokenProgram: solana.TokenProgramID,
			AssetMint:    mint,
			WrappedMint:  solana.WrappedSol,
		}
		if acc.OwnerWrappedHolding, err = holding(pub, solana.WrappedSol); err != nil {
			return err
		}
		if acc.VaultWrappedHolding, err = vault.Holding(solana.WrappedSol); err != nil {
			return err
		}
		if acc.VaultTargetHolding, err = vault.Holding(mint); err != nil {
			return err
		}
		req := dca.DepositNativeRequest{Amount: amount, Mode: mode, Accounts: acc}
		_, err = a.submit(ctx, req.Instruction(a.programID), owner)
		return err
	})
}

// DepositToken moves amount of mint from the owner's holding into the
// position's custody and records a token-to-native position.
func (a *DCAApp) DepositToken(ctx context.Context, owner solana.PrivateKey, position, mint solana.PublicKey, amount uint64, mode dca.DepositMode) error {
	params := fmt.Sprintf("position=%s mint=%s amount=%d mode=%s", position, mint, amount, mode)
	return a.mutate(ctx, params, func() error {
		pub := owner.PublicKey()
		vault, err := a.vault(pub, position)
		if err != nil {
			return err
		}
		acc := dca.DepositTokenAccounts{
			Owner:        pub,
			Position:     position,
			Vault:        vault.Address,
			TokenProgram: solana.TokenProgramID,
			AssetMint:    mint,
		}
		if acc.OwnerHolding, err = holding(pub, mint); err != nil {
			return err
		}
		if acc.VaultHolding, err = vault.Holding(mint); err != nil {
			return err
		}
		req := dca.DepositTokenRequest{Amount: amount, Mode: mode, Accounts: acc}
		_, err = a.submit(ctx, req.Instruction(a.programID), owner)
		return err
	})
}

// Schedule is the conversion schedule written by InitializeSchedule.
type Schedule struct {
	StartTime        uint64
	StepAmount       uint64
	StepInterval     uint64
	MinimumAmountOut uint64
}

func (a *DCAApp) InitializeSchedule(ctx context.Context, owner solana.PrivateKey, position solana.PublicKey, s Schedule) error {
	params := fmt.Sprintf("position=%s start=%d step=%d interval=%d min_out=%d",
		position, s.StartTime, s.StepAmount, s.StepInterval, s.MinimumAmountOut)
	return a.mutate(ctx, params, func() error {
		req := dca.InitializeRequest{
			StartTime:        s.StartTime,
			StepAmount:       s.StepAmount,
			StepInterval:     s.StepInterval,
			MinimumAmountOut: s.MinimumAmountOut,
			Accounts:         dca.InitializeAccounts{Position: position, Owner: owner.PublicKey()},
		}
		_, err := a.submit(ctx, req.Instruction(a.programID), owner)
		return err
	})
}

// Swap converts one step of the position through the first open pool that
// routes its input asset. Zero amounts defer to the recorded schedule.
func (a *DCAApp) Swap(ctx context.Context, owner solana.PrivateKey, position solana.PublicKey, amountIn, minOut uint64) (dca.SwapResult, error) {
	var result dca.SwapResult
	params := fmt.Sprintf("position=%s amount_in=%d min_out=%d", position, amountIn, minOut)
	err := a.mutate(ctx, params, func() error {
		record, err := a.program.GetPosition(ctx, position)
		if err != nil {
			return err
		}
		req, err := keeper.SwapRequest(ctx, a.program, a.exchange, dca.PositionEntry{ID: position, Position: record})
		if err != nil {
			return err
		}
		req.AmountIn, req.MinimumAmountOut = amountIn, minOut
		res, err := a.submit(ctx, req.Instruction(a.programID), owner)
		if err != nil {
			return err
		}
		result = *res.Swap
		return nil
	})
	return result, err
}

func (a *DCAApp) Position(ctx context.Context, id solana.PublicKey) (dca.PositionView, error) {
	return a.program.Inspect(ctx, id)
}

func (a *DCAApp) Positions(ctx context.Context) ([]dca.PositionEntry, error) {
	return a.program.ListPositions(ctx)
}

// Authority derives the vault authority of (owner, position).
func (a *DCAApp) Authority(owner, position solana.PublicKey) (dca.VaultAuthority, error) {
	return a.vault(owner, position)
}

// History returns the most recent journaled operations.
func (a *DCAApp) History(ctx context.Context, limit int) ([]*database.Operation, error) {
	return a.db.ListOperations(ctx, limit)
}
