package exchange

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestConstantProduct(t *testing.T) {
	tests := []struct {
		name                  string
		reserveIn, reserveOut uint64
		amountIn              uint64
		feeBps                uint16
		wantOut, wantFee      uint64
	}{
		{"deep 1:1 pool", 1_000_000_000, 1_000_000_000, 100, 0, 99, 0},
		{"shallow pool moves price", 1000, 1000, 1000, 0, 500, 0},
		{"fee rounds up", 1_000_000, 2_000_000, 1000, 25, 1992, 3},
		{"tiny input yields nothing", 1_000_000, 10, 1, 0, 0, 0},
		{"empty pool", 0, 1000, 10, 0, 0, 0},
		{"large reserves", 1 << 62, 1 << 62, 1 << 40, 30, 1096212832318, 3298534884},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := ConstantProduct(tt.reserveIn, tt.reserveOut, tt.amountIn, tt.feeBps)
			assert.Equal(t, tt.wantOut, q.AmountOut)
			assert.Equal(t, tt.wantFee, q.Fee)
			assert.Less(t, q.AmountOut, tt.reserveOut+1)
		})
	}
}

func TestConstantProduct_PriceImpact(t *testing.T) {
	q := ConstantProduct(1000, 1000, 1000, 0)
	assert.True(t, q.Price.Equal(decimal.NewFromFloat(0.5)), "price = %s", q.Price)
	assert.True(t, q.PriceImpact.Equal(decimal.NewFromInt(50)), "impact = %s", q.PriceImpact)
}
