package dca

import (
	"context"

	"github.com/gagliardetto/solana-go"
)

// Signers is the set of identities that authorized a transaction.
type Signers []solana.PublicKey

// Contains reports whether key is in the set.
func (s Signers) Contains(key solana.PublicKey) bool {
	for _, k := range s {
		if k.Equals(key) {
			return true
		}
	}
	return false
}

// Envelope describes who is executing: the invoking program and the
// transaction signers.
type Envelope struct {
	ProgramID solana.PublicKey
	Signers   Signers
}

// Runtime executes fn atomically. Either every write made through the Tx is
// committed or none is.
type Runtime interface {
	Execute(ctx context.Context, env Envelope, fn func(tx Tx) error) error
}

// Tx is the view of state inside one Runtime execution.
type Tx interface {
	PositionStore
	// Ledger returns the token ledger bound to the envelope's program and signers.
	Ledger() TokenLedger
}

// PositionStore persists position records keyed by position identity.
type PositionStore interface {
	// GetPosition returns nil, nil when no record exists.
	GetPosition(ctx context.Context, id solana.PublicKey) (*Position, error)
	PutPosition(ctx context.Context, id solana.PublicKey, p *Position) error
	ListPositions(ctx context.Context) ([]PositionEntry, error)
}

// TokenAccount is a balance of one mint held by Owner.
type TokenAccount struct {
	Address solana.PublicKey
	Mint    solana.PublicKey
	Owner   solana.PublicKey
	Amount  uint64
	Frozen  bool
}

// TokenLedger moves balances. Authorization is a signer set: transaction
// signers plus program-proved identities added via InvokeSigned.
type TokenLedger interface {
	// Caller is the program this view acts on behalf of.
	Caller() solana.PublicKey
	IsSigner(key solana.PublicKey) bool

	// Account returns nil, nil when the account does not exist.
	Account(ctx context.Context, addr solana.PublicKey) (*TokenAccount, error)
	NativeBalance(ctx context.Context, addr solana.PublicKey) (uint64, error)
	// CreateAssociatedAccount returns the associated account of (owner, mint),
	// creating it when missing.
	CreateAssociatedAccount(ctx context.Context, owner, mint solana.PublicKey) (solana.PublicKey, error)

	Transfer(ctx context.Context, from, to, authority solana.PublicKey, amount uint64) error
	TransferNative(ctx context.Context, from, to solana.PublicKey, amount uint64) error
	// SyncNative sets a wrapped-native account's token amount from its native balance.
	SyncNative(ctx context.Context, addr solana.PublicKey) error

	// InvokeSigned returns a view for program with each proof's address added
	// to the signer set. Proofs must belong to the current caller.
	InvokeSigned(program solana.PublicKey, proofs ...ProgramProof) (TokenLedger, error)
}

// AMMKeys identifies the pool side of a route.
type AMMKeys struct {
	ProgramID    solana.PublicKey
	Pool         solana.PublicKey
	Authority    solana.PublicKey
	OpenOrders   solana.PublicKey
	TargetOrders solana.PublicKey
	CoinVault    solana.PublicKey
	PCVault      solana.PublicKey
}

// MarketKeys identifies the order-book side of a route.
type MarketKeys struct {
	ProgramID   solana.PublicKey
	Market      solana.PublicKey
	Bids        solana.PublicKey
	Asks        solana.PublicKey
	EventQueue  solana.PublicKey
	CoinVault   solana.PublicKey
	PCVault     solana.PublicKey
	VaultSigner solana.PublicKey
}

// Route describes where a conversion executes.
type Route struct {
	AMM    AMMKeys
	Market MarketKeys
}

// SwapRequest is the outbound call to an Exchange. Authority must be in the
// ledger's signer set and own Source.
type SwapRequest struct {
	Route            Route
	Source           solana.PublicKey
	Destination      solana.PublicKey
	Authority        solana.PublicKey
	AmountIn         uint64
	MinimumAmountOut uint64
}

// Exchange converts AmountIn from Source into Destination and returns the
// amount credited. It fails with ErrSlippageExceeded below MinimumAmountOut.
type Exchange interface {
	Swap(ctx context.Context, ledger TokenLedger, req SwapRequest) (uint64, error)
}
