package dca_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"dca-go/internal/dca"
)

func TestCode(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{nil, dca.CodeOK},
		{dca.ErrInsufficientBalance, dca.CodeInsufficientBalance},
		{fmt.Errorf("depositing token: %w", dca.ErrLedgerTransferRejected), dca.CodeLedgerTransferRejected},
		{fmt.Errorf("a: %w", fmt.Errorf("b: %w", dca.ErrSlippageExceeded)), dca.CodeSlippageExceeded},
		{dca.ErrStepNotDue, dca.CodeStepNotDue},
		{errors.New("disk on fire"), dca.CodeUnknown},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, dca.Code(tt.err), "%v", tt.err)
	}
}

func TestIsFatal(t *testing.T) {
	assert.True(t, dca.IsFatal(fmt.Errorf("swap: %w", dca.ErrAuthorityDerivationMismatch)))
	assert.False(t, dca.IsFatal(dca.ErrSlippageExceeded))
	assert.False(t, dca.IsFatal(nil))
}
