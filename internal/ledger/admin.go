package ledger

import (
	"context"
	"fmt"
	"math"

	"github.com/gagliardetto/solana-go"

	"dca-go/internal/dca"
)

// Airdrop credits native currency to addr. A wrapped-native account at addr
// is not synced.
func Airdrop(ctx context.Context, s Store, addr solana.PublicKey, lamports uint64) error {
	have, err := s.NativeBalance(ctx, addr)
	if err != nil {
		return err
	}
	if have > math.MaxUint64-lamports {
		return fmt.Errorf("airdrop to %s: %w: balance overflows", addr, dca.ErrInvalidAmount)
	}
	return s.SetNativeBalance(ctx, addr, have+lamports)
}

// MintTo credits amount of mint to owner's associated account, creating it
// when missing, and returns the account address.
func MintTo(ctx context.Context, s Store, mint, owner solana.PublicKey, amount uint64) (solana.PublicKey, error) {
	addr, err := createAssociated(ctx, s, owner, mint)
	if err != nil {
		return solana.PublicKey{}, err
	}
	account, err := s.GetTokenAccount(ctx, addr)
	if err != nil {
		return solana.PublicKey{}, err
	}
	if account.Amount > math.MaxUint64-amount {
		return solana.PublicKey{}, fmt.Errorf("mint to %s: %w: balance overflows", addr, dca.ErrInvalidAmount)
	}
	account.Amount += amount
	if err := s.PutTokenAccount(ctx, account); err != nil {
		return solana.PublicKey{}, err
	}
	if mint.Equals(solana.WrappedSol) {
		if err := Airdrop(ctx, s, addr, amount); err != nil {
			return solana.PublicKey{}, err
		}
	}
	return addr, nil
}

// SetFrozen freezes or thaws a token account.
func SetFrozen(ctx context.Context, s Store, addr solana.PublicKey, frozen bool) error {
	account, err := s.GetTokenAccount(ctx, addr)
	if err != nil {
		return err
	}
	if account == nil {
		return fmt.Errorf("freezing %s: %w: account not found", addr, dca.ErrLedgerTransferRejected)
	}
	account.Frozen = frozen
	return s.PutTokenAccount(ctx, account)
}

// Holdings returns the native balance and token accounts of owner.
func Holdings(ctx context.Context, s Store, owner solana.PublicKey) (uint64, []dca.TokenAccount, error) {
	native, err := s.NativeBalance(ctx, owner)
	if err != nil {
		return 0, nil, err
	}
	accounts, err := s.ListTokenAccounts(ctx, owner)
	if err != nil {
		return 0, nil, err
	}
	return native, accounts, nil
}
