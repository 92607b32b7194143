package dca

import (
	"context"
	"fmt"
	"math"

	"github.com/gagliardetto/solana-go"
)

// DepositNative moves native currency from the owner into the vault's
// wrapped-native holding and records the position as NativeToToken.
func (p *Program) DepositNative(ctx context.Context, req DepositNativeRequest, signers Signers) error {
	acc := req.Accounts
	if req.Amount == 0 {
		return fmt.Errorf("depositing native: %w", ErrInvalidAmount)
	}
	if err := requireSigner(signers, acc.Owner); err != nil {
		return fmt.Errorf("depositing native: %w", err)
	}
	if err := requireTokenProgram(acc.TokenProgram); err != nil {
		return fmt.Errorf("depositing native: %w", err)
	}
	if !acc.WrappedMint.Equals(solana.WrappedSol) {
		return fmt.Errorf("depositing native: %w: %s is not the wrapped-native mint", ErrInvalidInstruction, acc.WrappedMint)
	}
	if acc.AssetMint.Equals(acc.WrappedMint) {
		return fmt.Errorf("depositing native: %w: target asset is the wrapped-native mint", ErrInvalidInstruction)
	}
	vault, err := p.checkVault(acc.Owner, acc.Position, acc.Vault)
	if err != nil {
		return fmt.Errorf("depositing native: %w", err)
	}

	err = p.runtime.Execute(ctx, p.envelope(signers), func(tx Tx) error {
		record, err := loadForDeposit(ctx, tx, acc.Position, acc.Owner, acc.WrappedMint, acc.AssetMint)
		if err != nil {
			return err
		}
		ledger := tx.Ledger()

		if err := ensureHolding(ctx, ledger, vault, acc.WrappedMint, acc.VaultWrappedHolding); err != nil {
			return err
		}
		if err := ensureHolding(ctx, ledger, vault, acc.AssetMint, acc.VaultTargetHolding); err != nil {
			return err
		}
		if err := ledger.TransferNative(ctx, acc.Owner, acc.VaultWrappedHolding, req.Amount); err != nil {
			return fmt.Errorf("transferring native: %w", err)
		}
		if err := ledger.SyncNative(ctx, acc.VaultWrappedHolding); err != nil {
			return fmt.Errorf("wrapping native: %w", err)
		}

		if err := applyDeposit(record, req.Amount, req.Mode, NativeToToken); err != nil {
			return err
		}
		return tx.PutPosition(ctx, acc.Position, record)
	})
	if err != nil {
		return fmt.Errorf("depositing native: %w", err)
	}

	p.logger.Info("native deposited",
		"owner", acc.Owner.String(), "position", acc.Position.String(),
		"amount", req.Amount, "mode", req.Mode.String())
	return nil
}

// DepositToken moves a token balance from the owner's holding into the
// vault's holding and records the position as TokenToNative.
func (p *Program) DepositToken(ctx context.Context, req DepositTokenRequest, signers Signers) error {
	acc := req.Accounts
	if req.Amount == 0 {
		return fmt.Errorf("depositing token: %w", ErrInvalidAmount)
	}
	if err := requireSigner(signers, acc.Owner); err != nil {
		return fmt.Errorf("depositing token: %w", err)
	}
	if err := requireTokenProgram(acc.TokenProgram); err != nil {
		return fmt.Errorf("depositing token: %w", err)
	}
	if acc.AssetMint.Equals(solana.WrappedSol) {
		return fmt.Errorf("depositing token: %w: use a native deposit for the wrapped-native mint", ErrInvalidInstruction)
	}
	vault, err := p.checkVault(acc.Owner, acc.Position, acc.Vault)
	if err != nil {
		return fmt.Errorf("depositing token: %w", err)
	}

	err = p.runtime.Execute(ctx, p.envelope(signers), func(tx Tx) error {
		record, err := loadForDeposit(ctx, tx, acc.Position, acc.Owner, acc.AssetMint, solana.WrappedSol)
		if err != nil {
			return err
		}
		ledger := tx.Ledger()

		if err := ensureHolding(ctx, ledger, vault, acc.AssetMint, acc.VaultHolding); err != nil {
			return err
		}
		if err := ledger.Transfer(ctx, acc.OwnerHolding, acc.VaultHolding, acc.Owner, req.Amount); err != nil {
			return fmt.Errorf("transferring token: %w", err)
		}

		if err := applyDeposit(record, req.Amount, req.Mode, TokenToNative); err != nil {
			return err
		}
		return tx.PutPosition(ctx, acc.Position, record)
	})
	if err != nil {
		return fmt.Errorf("depositing token: %w", err)
	}

	p.logger.Info("token deposited",
		"owner", acc.Owner.String(), "position", acc.Position.String(),
		"mint", acc.AssetMint.String(), "amount", req.Amount, "mode", req.Mode.String())
	return nil
}

// loadForDeposit returns the existing record or a fresh one. Owner, asset and
// target of an existing record cannot change; a record without a stored
// target takes the one supplied.
func loadForDeposit(ctx context.Context, tx Tx, id, owner, asset, target solana.PublicKey) (*Position, error) {
	record, err := tx.GetPosition(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("loading position: %w", err)
	}
	if record == nil {
		return &Position{Owner: owner, AssetIn: asset, TargetMint: target}, nil
	}
	if !record.Owner.Equals(owner) {
		return nil, fmt.Errorf("%w: recorded %s, got %s", ErrOwnerMismatch, record.Owner, owner)
	}
	if !record.AssetIn.Equals(asset) {
		return nil, fmt.Errorf("%w: recorded %s, got %s", ErrAssetMismatch, record.AssetIn, asset)
	}
	if record.TargetMint.IsZero() {
		record.TargetMint = target
	} else if !record.TargetMint.Equals(target) {
		return nil, fmt.Errorf("%w: recorded target %s, got %s", ErrAssetMismatch, record.TargetMint, target)
	}
	return record, nil
}

func applyDeposit(record *Position, amount uint64, mode DepositMode, dir Direction) error {
	switch mode {
	case DepositModeReset:
		record.TotalAmount = amount
	case DepositModeAccumulate:
		if record.TotalAmount > math.MaxUint64-amount {
			return fmt.Errorf("%w: total overflows", ErrInvalidAmount)
		}
		record.TotalAmount += amount
	default:
		return fmt.Errorf("%w: unknown deposit mode %d", ErrInvalidInstruction, mode)
	}
	record.Direction = dir
	record.Active = false
	return nil
}

// ensureHolding creates the vault's associated holding for mint if needed
// and checks that the supplied address is that holding.
func ensureHolding(ctx context.Context, ledger TokenLedger, vault VaultAuthority, mint, supplied solana.PublicKey) error {
	addr, err := ledger.CreateAssociatedAccount(ctx, vault.Address, mint)
	if err != nil {
		return fmt.Errorf("creating vault holding: %w", err)
	}
	if !addr.Equals(supplied) {
		return fmt.Errorf("%w: vault holding for %s is %s, got %s", ErrLedgerTransferRejected, mint, addr, supplied)
	}
	return nil
}
