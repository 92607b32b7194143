package dca

import (
	"context"
	"fmt"

	"github.com/gagliardetto/solana-go"
)

// PositionView is a position record with its vault authority and the
// custody balance of its input asset.
type PositionView struct {
	ID       solana.PublicKey
	Position *Position
	Vault    VaultAuthority
	Holding  solana.PublicKey
	Custody  uint64
}

// GetPosition returns the record at id.
func (p *Program) GetPosition(ctx context.Context, id solana.PublicKey) (*Position, error) {
	var record *Position
	err := p.runtime.Execute(ctx, p.envelope(nil), func(tx Tx) error {
		var err error
		record, err = tx.GetPosition(ctx, id)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("getting position: %w", err)
	}
	if record == nil {
		return nil, fmt.Errorf("%w: %s", ErrRecordNotFound, id)
	}
	return record, nil
}

// ListPositions returns every position record.
func (p *Program) ListPositions(ctx context.Context) ([]PositionEntry, error) {
	var entries []PositionEntry
	err := p.runtime.Execute(ctx, p.envelope(nil), func(tx Tx) error {
		var err error
		entries, err = tx.ListPositions(ctx)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("listing positions: %w", err)
	}
	return entries, nil
}

// Inspect returns the record at id together with its custody state.
func (p *Program) Inspect(ctx context.Context, id solana.PublicKey) (PositionView, error) {
	view := PositionView{ID: id}
	err := p.runtime.Execute(ctx, p.envelope(nil), func(tx Tx) error {
		record, err := tx.GetPosition(ctx, id)
		if err != nil {
			return err
		}
		if record == nil {
			return fmt.Errorf("%w: %s", ErrRecordNotFound, id)
		}
		view.Position = record

		if view.Vault, err = p.DeriveVaultAuthority(record.Owner, id); err != nil {
			return err
		}
		if view.Holding, err = view.Vault.Holding(record.AssetIn); err != nil {
			return err
		}
		holding, err := tx.Ledger().Account(ctx, view.Holding)
		if err != nil {
			return err
		}
		if holding != nil {
			view.Custody = holding.Amount
		}
		return nil
	})
	if err != nil {
		return PositionView{}, fmt.Errorf("inspecting position: %w", err)
	}
	return view, nil
}

// Account returns the token account at addr, nil when it does not exist.
func (p *Program) Account(ctx context.Context, addr solana.PublicKey) (*TokenAccount, error) {
	var account *TokenAccount
	err := p.runtime.Execute(ctx, p.envelope(nil), func(tx Tx) error {
		var err error
		account, err = tx.Ledger().Account(ctx, addr)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("reading account %s: %w", addr, err)
	}
	return account, nil
}
