// Package keeper executes due conversion steps on a cron schedule.
package keeper

import (
	"context"
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"dca-go/internal/dca"
	"dca-go/internal/exchange"
	"dca-go/internal/keystore"
)

// Outcome statuses.
const (
	StatusExecuted = "executed"
	StatusNotDue   = "not-due"
	StatusLocked   = "locked"
	StatusFailed   = "failed"
)

// PoolSource lists the pools the keeper may route through.
type PoolSource interface {
	Pools() []exchange.Pool
}

// IDGenerator names keeper runs.
type IDGenerator interface {
	New() string
}

type uuidGenerator struct{}

func (uuidGenerator) New() string { return uuid.NewString() }

// Outcome is what happened to one active position during a run.
type Outcome struct {
	Position  solana.PublicKey
	Owner     solana.PublicKey
	Status    string
	AmountIn  uint64
	AmountOut uint64
	Err       error
}

// Report summarizes one run.
type Report struct {
	RunID    string
	Outcomes []Outcome
}

// Count returns the number of outcomes with status.
func (r Report) Count(status string) int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Status == status {
			n++
		}
	}
	return n
}

type Keeper struct {
	program *dca.Program
	pools   PoolSource
	keys    keystore.Keyring
	clock   dca.Clock
	logger  dca.Logger
	ids     IDGenerator
}

// New returns a Keeper signing with keys. The program must enforce the
// step schedule.
func New(program *dca.Program, pools PoolSource, keys keystore.Keyring, clock dca.Clock, logger dca.Logger, ids IDGenerator) (*Keeper, error) {
	if !program.ScheduleGating() {
		return nil, fmt.Errorf("keeper requires a program with schedule gating enabled")
	}
	if ids == nil {
		ids = uuidGenerator{}
	}
	return &Keeper{program: program, pools: pools, keys: keys, clock: clock, logger: logger, ids: ids}, nil
}

// RunOnce attempts one step for every active position. Per-position
// failures are reported in the outcome, not returned.
func (k *Keeper) RunOnce(ctx context.Context) (Report, error) {
	report := Report{RunID: k.ids.New()}
	entries, err := k.program.ListPositions(ctx)
	if err != nil {
		return report, err
	}

	now := uint64(max(k.clock.Now().Unix(), 0))
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		record := entry.Position
		if !record.Active {
			continue
		}
		out := Outcome{Position: entry.ID, Owner: record.Owner}
		switch {
		case k.keys[record.Owner] == nil:
			out.Status = StatusLocked
		case !record.Due(now):
			out.Status = StatusNotDue
		default:
			k.step(ctx, entry, &out)
		}
		report.Outcomes = append(report.Outcomes, out)
	}

	k.logger.Info("keeper run finished",
		"run", report.RunID,
		"executed", report.Count(StatusExecuted),
		"failed", report.Count(StatusFailed),
		"not_due", report.Count(StatusNotDue),
		"locked", report.Count(StatusLocked))
	return report, nil
}

func (k *Keeper) step(ctx context.Context, entry dca.PositionEntry, out *Outcome) {
	res, err := k.execute(ctx, entry)
	switch {
	case errors.Is(err, dca.ErrStepNotDue):
		out.Status = StatusNotDue
	case err != nil:
		out.Status = StatusFailed
		out.Err = err
		k.logger.Warn("keeper step failed", "position", entry.ID, "code", dca.Code(err), "error", err)
	default:
		out.Status = StatusExecuted
		out.AmountIn, out.AmountOut = res.AmountIn, res.AmountOut
		k.logger.Info("keeper step executed", "position", entry.ID, "in", res.AmountIn, "out", res.AmountOut)
	}
}

func (k *Keeper) execute(ctx context.Context, entry dca.PositionEntry) (dca.SwapResult, error) {
	req, err := SwapRequest(ctx, k.program, k.pools, entry)
	if err != nil {
		return dca.SwapResult{}, err
	}
	signed, err := k.keys.Sign(req.Instruction(k.program.ID()))
	if err != nil {
		return dca.SwapResult{}, err
	}
	res, err := k.program.Process(ctx, signed)
	if err != nil {
		return dca.SwapResult{}, err
	}
	return *res.Swap, nil
}

// SwapRequest routes the position's input asset through the first open pool
// whose counterpart is the recorded target mint. Records without a target
// fall back to wrapped native for token positions and, for native positions,
// the token the vault already holds. Amounts are left 0 so the recorded step
// and floor apply.
func SwapRequest(ctx context.Context, program *dca.Program, pools PoolSource, entry dca.PositionEntry) (dca.ExecuteSwapRequest, error) {
	record := entry.Position
	vault, err := program.DeriveVaultAuthority(record.Owner, entry.ID)
	if err != nil {
		return dca.ExecuteSwapRequest{}, err
	}
	source, err := vault.Holding(record.AssetIn)
	if err != nil {
		return dca.ExecuteSwapRequest{}, err
	}

	for _, pool := range pools.Pools() {
		other, ok := pool.Other(record.AssetIn)
		if !ok || pool.Halted {
			continue
		}
		dest, err := vault.Holding(other)
		if err != nil {
			return dca.ExecuteSwapRequest{}, err
		}
		if !record.TargetMint.IsZero() {
			if !other.Equals(record.TargetMint) {
				continue
			}
		} else if record.Direction == dca.TokenToNative {
			if !other.Equals(solana.WrappedSol) {
				continue
			}
		} else {
			account, err := program.Account(ctx, dest)
			if err != nil {
				return dca.ExecuteSwapRequest{}, err
			}
			if account == nil {
				continue
			}
		}
		return dca.ExecuteSwapRequest{
			Accounts: dca.ExecuteSwapAccounts{
				Route:          pool.Route,
				Source:         source,
				Destination:    dest,
				VaultAuthority: vault.Address,
				TokenProgram:   solana.TokenProgramID,
				Position:       entry.ID,
				Owner:          record.Owner,
			},
		}, nil
	}
	return dca.ExecuteSwapRequest{}, fmt.Errorf("%w: no open pool converts %s for position %s",
		dca.ErrExchangeCallRejected, record.AssetIn, entry.ID)
}

// newCron returns a scheduler that skips a pass while the previous one is
// still running.
func newCron(logger dca.Logger) *cron.Cron {
	return cron.New(cron.WithChain(cron.SkipIfStillRunning(cronLogger{logger})))
}

// cronLogger adapts Logger to cron.Logger.
type cronLogger struct {
	l dca.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...any) {
	c.l.Info("cron: "+msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...any) {
	c.l.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}

// Run executes RunOnce on the cron schedule until ctx is cancelled.
func (k *Keeper) Run(ctx context.Context, spec string) error {
	c := newCron(k.logger)
	_, err := c.AddFunc(spec, func() {
		if _, err := k.RunOnce(ctx); err != nil && ctx.Err() == nil {
			k.logger.Error("keeper run failed", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("invalid keeper schedule %q: %w", spec, err)
	}

	c.Start()
	k.logger.Info("keeper started", "schedule", spec)
	<-ctx.Done()
	<-c.Stop().Done()
	k.logger.Info("keeper stopped")
	return nil
}
