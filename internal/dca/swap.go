package dca

import (
	"context"
	"fmt"

	"github.com/gagliardetto/solana-go"
)

// SwapResult reports one executed conversion step.
type SwapResult struct {
	AmountIn           uint64
	AmountOut          uint64
	DestinationBalance uint64
}

// ExecuteSwap converts one step of a position's custody through the
// exchange, authorizing the spend with the vault's program proof. The
// position record is not updated except for the last execution time when
// schedule gating is enabled.
func (p *Program) ExecuteSwap(ctx context.Context, req ExecuteSwapRequest, signers Signers) (SwapResult, error) {
	acc := req.Accounts
	if err := requireSigner(signers, acc.Owner); err != nil {
		return SwapResult{}, fmt.Errorf("executing swap: %w", err)
	}
	if err := requireTokenProgram(acc.TokenProgram); err != nil {
		return SwapResult{}, fmt.Errorf("executing swap: %w", err)
	}

	var result SwapResult
	err := p.runtime.Execute(ctx, p.envelope(signers), func(tx Tx) error {
		record, err := tx.GetPosition(ctx, acc.Position)
		if err != nil {
			return fmt.Errorf("loading position: %w", err)
		}
		if record == nil {
			return fmt.Errorf("%w: %s", ErrRecordNotFound, acc.Position)
		}
		if !record.Active {
			return fmt.Errorf("%w: %s", ErrPositionInactive, acc.Position)
		}
		if !record.Owner.Equals(acc.Owner) {
			return fmt.Errorf("%w: recorded %s, got %s", ErrOwnerMismatch, record.Owner, acc.Owner)
		}
		vault, err := p.checkVault(record.Owner, acc.Position, acc.VaultAuthority)
		if err != nil {
			return err
		}

		ledger := tx.Ledger()
		if record.Direction == TokenToNative {
			if err := ensureHolding(ctx, ledger, vault, solana.WrappedSol, acc.Destination); err != nil {
				return err
			}
		}
		source, err := p.checkHoldings(ctx, ledger, record, vault, acc.Source, acc.Destination)
		if err != nil {
			return err
		}

		amountIn := stepAmount(req.AmountIn, record.StepAmount, source.Amount)
		if amountIn == 0 {
			return fmt.Errorf("%w: vault holds %d", ErrInsufficientBalance, source.Amount)
		}
		minOut := req.MinimumAmountOut
		if minOut == 0 {
			minOut = record.MinimumAmountOut
		}

		if p.gating {
			now := p.now()
			if err := checkDue(record, now); err != nil {
				return err
			}
			record.LastExecution = now
			if err := tx.PutPosition(ctx, acc.Position, record); err != nil {
				return fmt.Errorf("recording execution: %w", err)
			}
		}

		signed, err := ledger.InvokeSigned(acc.Route.AMM.ProgramID, vault.Proof())
		if err != nil {
			return fmt.Errorf("signing for vault: %w", err)
		}
		out, err := p.exchange.Swap(ctx, signed, SwapRequest{
			Route:            acc.Route,
			Source:           acc.Source,
			Destination:      acc.Destination,
			Authority:        vault.Address,
			AmountIn:         amountIn,
			MinimumAmountOut: minOut,
		})
		if err != nil {
			return fmt.Errorf("swapping: %w", err)
		}

		dest, err := ledger.Account(ctx, acc.Destination)
		if err != nil {
			return fmt.Errorf("reading destination: %w", err)
		}
		result = SwapResult{AmountIn: amountIn, AmountOut: out}
		if dest != nil {
			result.DestinationBalance = dest.Amount
		}
		return nil
	})
	if err != nil {
		if IsFatal(err) {
			p.logger.Error("swap aborted", "position", acc.Position.String(), "error", err)
		}
		return SwapResult{}, fmt.Errorf("executing swap: %w", err)
	}

	p.logger.Info("swap executed",
		"position", acc.Position.String(), "pool", acc.Route.AMM.Pool.String(),
		"amount_in", result.AmountIn, "amount_out", result.AmountOut)
	return result, nil
}

// checkHoldings validates the source and destination holdings against the
// record's direction and the vault authority, and returns the source.
func (p *Program) checkHoldings(ctx context.Context, ledger TokenLedger, record *Position, vault VaultAuthority, src, dst solana.PublicKey) (*TokenAccount, error) {
	source, err := ledger.Account(ctx, src)
	if err != nil {
		return nil, fmt.Errorf("reading source: %w", err)
	}
	if source == nil {
		return nil, fmt.Errorf("%w: source holding %s not found", ErrLedgerTransferRejected, src)
	}
	if !source.Owner.Equals(vault.Address) {
		p.logger.Error("source holding not owned by vault authority",
			"source", src.String(), "holder", source.Owner.String(), "vault", vault.Address.String())
		return nil, fmt.Errorf("%w: source holding is owned by %s, not %s", ErrAuthorityDerivationMismatch, source.Owner, vault.Address)
	}
	if !source.Mint.Equals(record.AssetIn) {
		return nil, fmt.Errorf("%w: source mint %s, position asset %s", ErrLedgerTransferRejected, source.Mint, record.AssetIn)
	}

	dest, err := ledger.Account(ctx, dst)
	if err != nil {
		return nil, fmt.Errorf("reading destination: %w", err)
	}
	if dest == nil {
		return nil, fmt.Errorf("%w: destination holding %s not found", ErrLedgerTransferRejected, dst)
	}
	if !dest.Owner.Equals(vault.Address) {
		return nil, fmt.Errorf("%w: destination holding is owned by %s, not the vault", ErrLedgerTransferRejected, dest.Owner)
	}
	if dest.Mint.Equals(source.Mint) {
		return nil, fmt.Errorf("%w: destination has the source mint", ErrLedgerTransferRejected)
	}
	if record.Direction == TokenToNative && !dest.Mint.Equals(solana.WrappedSol) {
		return nil, fmt.Errorf("%w: destination mint %s is not wrapped native", ErrLedgerTransferRejected, dest.Mint)
	}
	if !record.TargetMint.IsZero() && !dest.Mint.Equals(record.TargetMint) {
		return nil, fmt.Errorf("%w: destination mint %s, position target %s", ErrLedgerTransferRejected, dest.Mint, record.TargetMint)
	}
	return source, nil
}

// stepAmount resolves the amount to convert: requested (or the step amount
// when 0), capped at the step amount and the available balance.
func stepAmount(requested, step, available uint64) uint64 {
	amount := requested
	if amount == 0 {
		amount = step
	}
	if step > 0 && amount > step {
		amount = step
	}
	if amount > available {
		amount = available
	}
	return amount
}

// Due reports whether a scheduled step may run at unix time now.
func (r *Position) Due(now uint64) bool {
	return checkDue(r, now) == nil
}

func checkDue(record *Position, now uint64) error {
	if now < record.StartTime {
		return fmt.Errorf("%w: starts at %d, now %d", ErrStepNotDue, record.StartTime, now)
	}
	if record.LastExecution != 0 {
		if now < record.LastExecution || now-record.LastExecution < record.StepInterval {
			return fmt.Errorf("%w: last step at %d, interval %d, now %d", ErrStepNotDue, record.LastExecution, record.StepInterval, now)
		}
	}
	return nil
}

func (p *Program) now() uint64 {
	ts := p.clock.Now().Unix()
	if ts < 0 {
		return 0
	}
	return uint64(ts)
}
