package dca

import (
	"context"
	"fmt"

	"github.com/gagliardetto/solana-go"
)

// Program is the custodial DCA program. It owns position records and the
// vault authorities derived from them.
type Program struct {
	id       solana.PublicKey
	runtime  Runtime
	exchange Exchange
	logger   Logger
	clock    Clock
	gating   bool
}

// Option configures a Program.
type Option func(*Program)

// WithScheduleGating makes ExecuteSwap refuse steps that are not yet due
// and record the execution time of each step.
func WithScheduleGating(enabled bool) Option {
	return func(p *Program) { p.gating = enabled }
}

// NewProgram creates a Program identified by id. The id is configuration;
// every vault authority is derived under it.
func NewProgram(id solana.PublicKey, runtime Runtime, exchange Exchange, logger Logger, clock Clock, opts ...Option) *Program {
	p := &Program{
		id:       id,
		runtime:  runtime,
		exchange: exchange,
		logger:   logger,
		clock:    clock,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Program) ID() solana.PublicKey { return p.id }

// ScheduleGating reports whether ExecuteSwap enforces the schedule.
func (p *Program) ScheduleGating() bool { return p.gating }

// DeriveVaultAuthority derives the vault authority of (owner, position) under this program.
func (p *Program) DeriveVaultAuthority(owner, position solana.PublicKey) (VaultAuthority, error) {
	return DeriveVaultAuthority(p.id, owner, position)
}

// Result is what Process returns for a dispatched instruction.
type Result struct {
	Name string
	Swap *SwapResult
}

// Process verifies the signatures of a signed instruction and dispatches it.
func (p *Program) Process(ctx context.Context, signed SignedInstruction) (Result, error) {
	ix := signed.Instruction
	if !ix.ProgramID.Equals(p.id) {
		return Result{}, fmt.Errorf("%w: instruction targets program %s", ErrInvalidInstruction, ix.ProgramID)
	}
	signers, err := signed.Verify()
	if err != nil {
		return Result{}, err
	}

	res := Result{Name: ix.Name()}
	switch res.Name {
	case InstructionDepositNative:
		req, err := DecodeDepositNative(ix)
		if err != nil {
			return res, err
		}
		return res, p.DepositNative(ctx, req, signers)
	case InstructionDepositToken:
		req, err := DecodeDepositToken(ix)
		if err != nil {
			return res, err
		}
		return res, p.DepositToken(ctx, req, signers)
	case InstructionInitializeSchedule:
		req, err := DecodeInitialize(ix)
		if err != nil {
			return res, err
		}
		return res, p.InitializeSchedule(ctx, req, signers)
	case InstructionExecuteSwap:
		req, err := DecodeExecuteSwap(ix)
		if err != nil {
			return res, err
		}
		swap, err := p.ExecuteSwap(ctx, req, signers)
		if err != nil {
			return res, err
		}
		res.Swap = &swap
		return res, nil
	default:
		return res, fmt.Errorf("%w: unknown discriminator", ErrInvalidInstruction)
	}
}

func (p *Program) envelope(signers Signers) Envelope {
	return Envelope{ProgramID: p.id, Signers: signers}
}

func requireSigner(signers Signers, key solana.PublicKey) error {
	if key.IsZero() || !signers.Contains(key) {
		return fmt.Errorf("%w: %s", ErrMissingSignature, key)
	}
	return nil
}

func requireTokenProgram(key solana.PublicKey) error {
	if !key.Equals(solana.TokenProgramID) {
		return fmt.Errorf("%w: unexpected token program %s", ErrInvalidInstruction, key)
	}
	return nil
}

// checkVault re-derives the vault authority and compares it with the supplied slot.
func (p *Program) checkVault(owner, position, supplied solana.PublicKey) (VaultAuthority, error) {
	vault, err := p.DeriveVaultAuthority(owner, position)
	if err != nil {
		return VaultAuthority{}, err
	}
	if !vault.Address.Equals(supplied) {
		p.logger.Error("vault authority mismatch",
			"owner", owner.String(), "position", position.String(),
			"derived", vault.Address.String(), "supplied", supplied.String())
		return VaultAuthority{}, fmt.Errorf("%w: supplied %s, derived %s", ErrAuthorityDerivationMismatch, supplied, vault.Address)
	}
	return vault, nil
}
