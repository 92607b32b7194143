// Package ledger implements the token ledger rules on top of a raw account
// store, and an in-memory runtime.
package ledger

import (
	"context"

	"github.com/gagliardetto/solana-go"

	"dca-go/internal/dca"
)

// Store is the raw account storage behind a runtime. It applies no rules.
type Store interface {
	dca.PositionStore

	// GetTokenAccount returns nil, nil when the account does not exist.
	GetTokenAccount(ctx context.Context, addr solana.PublicKey) (*dca.TokenAccount, error)
	PutTokenAccount(ctx context.Context, account *dca.TokenAccount) error
	// ListTokenAccounts returns every account held by owner, ordered by address.
	ListTokenAccounts(ctx context.Context, owner solana.PublicKey) ([]dca.TokenAccount, error)

	NativeBalance(ctx context.Context, addr solana.PublicKey) (uint64, error)
	SetNativeBalance(ctx context.Context, addr solana.PublicKey, lamports uint64) error
}

// Updater runs fn against a Store atomically.
type Updater interface {
	Update(ctx context.Context, fn func(Store) error) error
}

// Execute adapts an Updater to dca.Runtime semantics: fn sees the store and a
// ledger bound to env.
func Execute(ctx context.Context, u Updater, env dca.Envelope, fn func(dca.Tx) error) error {
	return u.Update(ctx, func(s Store) error {
		return fn(&tx{Store: s, ledger: New(s, env)})
	})
}

type tx struct {
	Store
	ledger *Ledger
}

func (t *tx) Ledger() dca.TokenLedger { return t.ledger }
