package dca

import "errors"

var (
	// ErrInsufficientBalance is returned when a holding cannot cover the requested amount.
	ErrInsufficientBalance = errors.New("insufficient balance")
	// ErrLedgerTransferRejected is returned when the token ledger refuses a movement
	// (frozen account, wrong mint, wrong owner, missing account, missing authority).
	ErrLedgerTransferRejected = errors.New("ledger transfer rejected")
	// ErrRecordNotFound is returned when no position record exists at the given identity.
	ErrRecordNotFound = errors.New("position record not found")
	// ErrSlippageExceeded is returned when the exchange output is below the floor.
	ErrSlippageExceeded = errors.New("slippage exceeded")
	// ErrAuthorityDerivationMismatch means the supplied vault authority is not the one
	// derived from (owner, position). Callers must treat it as fatal.
	ErrAuthorityDerivationMismatch = errors.New("authority derivation mismatch")
	// ErrExchangeCallRejected is returned when the exchange refuses a route or call.
	ErrExchangeCallRejected = errors.New("exchange call rejected")

	ErrInvalidAmount      = errors.New("invalid amount")
	ErrMissingSignature   = errors.New("missing required signature")
	ErrOwnerMismatch      = errors.New("owner does not match position record")
	ErrAssetMismatch      = errors.New("asset does not match position record")
	ErrPositionInactive   = errors.New("position is not active")
	ErrStepNotDue         = errors.New("step not due")
	ErrInvalidInstruction = errors.New("invalid instruction")
)

// Error codes reported to callers. The numbering is stable.
const (
	CodeOK                          = 0
	CodeInsufficientBalance         = 6000
	CodeLedgerTransferRejected      = 6001
	CodeRecordNotFound              = 6002
	CodeSlippageExceeded            = 6003
	CodeAuthorityDerivationMismatch = 6004
	CodeExchangeCallRejected        = 6005
	CodeInvalidAmount               = 6006
	CodeMissingSignature            = 6007
	CodeOwnerMismatch               = 6008
	CodeAssetMismatch               = 6009
	CodePositionInactive            = 6010
	CodeStepNotDue                  = 6011
	CodeInvalidInstruction          = 6012
	CodeUnknown                     = 6999
)

var codes = []struct {
	err  error
	code int
}{
	{ErrAuthorityDerivationMismatch, CodeAuthorityDerivationMismatch},
	{ErrSlippageExceeded, CodeSlippageExceeded},
	{ErrExchangeCallRejected, CodeExchangeCallRejected},
	{ErrInsufficientBalance, CodeInsufficientBalance},
	{ErrLedgerTransferRejected, CodeLedgerTransferRejected},
	{ErrRecordNotFound, CodeRecordNotFound},
	{ErrInvalidAmount, CodeInvalidAmount},
	{ErrMissingSignature, CodeMissingSignature},
	{ErrOwnerMismatch, CodeOwnerMismatch},
	{ErrAssetMismatch, CodeAssetMismatch},
	{ErrPositionInactive, CodePositionInactive},
	{ErrStepNotDue, CodeStepNotDue},
	{ErrInvalidInstruction, CodeInvalidInstruction},
}

// Code maps err to its numeric error code. Nil maps to CodeOK and errors
// outside the taxonomy map to CodeUnknown.
func Code(err error) int {
	if err == nil {
		return CodeOK
	}
	for _, c := range codes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return CodeUnknown
}

// IsFatal reports whether err indicates a broken authority derivation.
func IsFatal(err error) bool {
	return errors.Is(err, ErrAuthorityDerivationMismatch)
}
