package dca

import (
	"context"
	"fmt"
)

// InitializeSchedule writes the conversion schedule of an existing position
// and activates it. Re-initializing overwrites the schedule.
func (p *Program) InitializeSchedule(ctx context.Context, req InitializeRequest, signers Signers) error {
	acc := req.Accounts
	if !acc.Owner.IsZero() {
		if err := requireSigner(signers, acc.Owner); err != nil {
			return fmt.Errorf("initializing schedule: %w", err)
		}
	}

	err := p.runtime.Execute(ctx, p.envelope(signers), func(tx Tx) error {
		record, err := tx.GetPosition(ctx, acc.Position)
		if err != nil {
			return fmt.Errorf("loading position: %w", err)
		}
		if record == nil {
			return fmt.Errorf("%w: %s", ErrRecordNotFound, acc.Position)
		}
		if !acc.Owner.IsZero() && !record.Owner.Equals(acc.Owner) {
			return fmt.Errorf("%w: recorded %s, got %s", ErrOwnerMismatch, record.Owner, acc.Owner)
		}

		record.StartTime = req.StartTime
		record.StepAmount = req.StepAmount
		record.StepInterval = req.StepInterval
		record.MinimumAmountOut = req.MinimumAmountOut
		record.Active = true
		return tx.PutPosition(ctx, acc.Position, record)
	})
	if err != nil {
		return fmt.Errorf("initializing schedule: %w", err)
	}

	p.logger.Info("schedule initialized",
		"position", acc.Position.String(),
		"start_time", req.StartTime, "step_amount", req.StepAmount, "step_interval", req.StepInterval)
	return nil
}
