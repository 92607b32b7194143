package ledger

import (
	"context"
	"fmt"
	"math"

	"github.com/gagliardetto/solana-go"

	"dca-go/internal/dca"
)

// Ledger is a view of the token ledger bound to one calling program and a
// signer set.
type Ledger struct {
	store   Store
	caller  solana.PublicKey
	signers dca.Signers
}

var _ dca.TokenLedger = (*Ledger)(nil)

// New returns a ledger view for the envelope's program and signers.
func New(store Store, env dca.Envelope) *Ledger {
	return &Ledger{
		store:   store,
		caller:  env.ProgramID,
		signers: append(dca.Signers(nil), env.Signers...),
	}
}

func (l *Ledger) Caller() solana.PublicKey { return l.caller }

func (l *Ledger) IsSigner(key solana.PublicKey) bool { return l.signers.Contains(key) }

func (l *Ledger) Account(ctx context.Context, addr solana.PublicKey) (*dca.TokenAccount, error) {
	return l.store.GetTokenAccount(ctx, addr)
}

func (l *Ledger) NativeBalance(ctx context.Context, addr solana.PublicKey) (uint64, error) {
	return l.store.NativeBalance(ctx, addr)
}

func (l *Ledger) CreateAssociatedAccount(ctx context.Context, owner, mint solana.PublicKey) (solana.PublicKey, error) {
	return createAssociated(ctx, l.store, owner, mint)
}

func createAssociated(ctx context.Context, s Store, owner, mint solana.PublicKey) (solana.PublicKey, error) {
	addr, _, err := solana.FindAssociatedTokenAddress(owner, mint)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("finding associated account: %w", err)
	}
	existing, err := s.GetTokenAccount(ctx, addr)
	if err != nil {
		return solana.PublicKey{}, err
	}
	if existing != nil {
		if !existing.Owner.Equals(owner) || !existing.Mint.Equals(mint) {
			return solana.PublicKey{}, fmt.Errorf("%w: %s exists with another owner or mint", dca.ErrLedgerTransferRejected, addr)
		}
		return addr, nil
	}

	account := &dca.TokenAccount{Address: addr, Mint: mint, Owner: owner}
	if mint.Equals(solana.WrappedSol) {
		if account.Amount, err = s.NativeBalance(ctx, addr); err != nil {
			return solana.PublicKey{}, err
		}
	}
	if err := s.PutTokenAccount(ctx, account); err != nil {
		return solana.PublicKey{}, fmt.Errorf("creating associated account: %w", err)
	}
	return addr, nil
}

// Transfer moves amount of a mint between two accounts. authority must own
// from and be in the signer set. Wrapped-native transfers move the backing
// native balance as well.
func (l *Ledger) Transfer(ctx context.Context, from, to, authority solana.PublicKey, amount uint64) error {
	src, err := l.existing(ctx, from)
	if err != nil {
		return err
	}
	dst, err := l.existing(ctx, to)
	if err != nil {
		return err
	}
	switch {
	case !src.Mint.Equals(dst.Mint):
		return fmt.Errorf("%w: mint %s cannot move into a %s account", dca.ErrLedgerTransferRejected, src.Mint, dst.Mint)
	case src.Frozen:
		return fmt.Errorf("%w: %s is frozen", dca.ErrLedgerTransferRejected, from)
	case dst.Frozen:
		return fmt.Errorf("%w: %s is frozen", dca.ErrLedgerTransferRejected, to)
	case !src.Owner.Equals(authority):
		return fmt.Errorf("%w: %s is not the owner of %s", dca.ErrLedgerTransferRejected, authority, from)
	case !l.IsSigner(authority):
		return fmt.Errorf("%w: %s did not authorize", dca.ErrLedgerTransferRejected, authority)
	case src.Amount < amount:
		return fmt.Errorf("%w: %s holds %d, need %d", dca.ErrInsufficientBalance, from, src.Amount, amount)
	}
	if from.Equals(to) || amount == 0 {
		return nil
	}
	if dst.Amount > math.MaxUint64-amount {
		return fmt.Errorf("%w: %s balance overflows", dca.ErrLedgerTransferRejected, to)
	}

	src.Amount -= amount
	dst.Amount += amount
	if err := l.store.PutTokenAccount(ctx, src); err != nil {
		return err
	}
	if err := l.store.PutTokenAccount(ctx, dst); err != nil {
		return err
	}
	if src.Mint.Equals(solana.WrappedSol) {
		return moveNative(ctx, l.store, from, to, amount)
	}
	return nil
}

// TransferNative moves native currency. from must be in the signer set.
func (l *Ledger) TransferNative(ctx context.Context, from, to solana.PublicKey, amount uint64) error {
	if !l.IsSigner(from) {
		return fmt.Errorf("%w: %s did not authorize", dca.ErrLedgerTransferRejected, from)
	}
	return moveNative(ctx, l.store, from, to, amount)
}

func moveNative(ctx context.Context, s Store, from, to solana.PublicKey, amount uint64) error {
	have, err := s.NativeBalance(ctx, from)
	if err != nil {
		return err
	}
	if have < amount {
		return fmt.Errorf("%w: %s holds %d native, need %d", dca.ErrInsufficientBalance, from, have, amount)
	}
	if from.Equals(to) || amount == 0 {
		return nil
	}
	dest, err := s.NativeBalance(ctx, to)
	if err != nil {
		return err
	}
	if dest > math.MaxUint64-amount {
		return fmt.Errorf("%w: %s native balance overflows", dca.ErrLedgerTransferRejected, to)
	}
	if err := s.SetNativeBalance(ctx, from, have-amount); err != nil {
		return err
	}
	return s.SetNativeBalance(ctx, to, dest+amount)
}

func (l *Ledger) SyncNative(ctx context.Context, addr solana.PublicKey) error {
	account, err := l.existing(ctx, addr)
	if err != nil {
		return err
	}
	if !account.Mint.Equals(solana.WrappedSol) {
		return fmt.Errorf("%w: %s is not a wrapped-native account", dca.ErrLedgerTransferRejected, addr)
	}
	if account.Amount, err = l.store.NativeBalance(ctx, addr); err != nil {
		return err
	}
	return l.store.PutTokenAccount(ctx, account)
}

// InvokeSigned verifies each proof against the current caller and returns a
// view for program with the proved addresses added to the signer set.
func (l *Ledger) InvokeSigned(program solana.PublicKey, proofs ...dca.ProgramProof) (dca.TokenLedger, error) {
	signers := append(dca.Signers(nil), l.signers...)
	for _, proof := range proofs {
		if !proof.ProgramID.Equals(l.caller) {
			return nil, fmt.Errorf("%w: %s cannot sign for addresses of %s", dca.ErrAuthorityDerivationMismatch, l.caller, proof.ProgramID)
		}
		addr, err := proof.Address()
		if err != nil {
			return nil, err
		}
		signers = append(signers, addr)
	}
	return &Ledger{store: l.store, caller: program, signers: signers}, nil
}

func (l *Ledger) existing(ctx context.Context, addr solana.PublicKey) (*dca.TokenAccount, error) {
	account, err := l.store.GetTokenAccount(ctx, addr)
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, fmt.Errorf("%w: account %s not found", dca.ErrLedgerTransferRejected, addr)
	}
	return account, nil
}
