package exchange

import (
	"math/big"

	"github.com/shopspring/decimal"
)

const bpsDenominator = 10_000

// Quote is the outcome of converting AmountIn against a pool's reserves.
type Quote struct {
	AmountIn  uint64
	AmountOut uint64
	Fee       uint64
	// Price is AmountOut per unit of AmountIn.
	Price decimal.Decimal
	// PriceImpact is the percentage by which Price falls short of the spot price.
	PriceImpact decimal.Decimal
}

func fromUint64(v uint64) decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(v), 0)
}

func toUint64(d decimal.Decimal) uint64 {
	return d.BigInt().Uint64()
}

// ConstantProduct quotes amountIn against reserves under x*y=k. The fee is
// taken from the input and rounded up; the output is rounded down.
func ConstantProduct(reserveIn, reserveOut, amountIn uint64, feeBps uint16) Quote {
	q := Quote{AmountIn: amountIn, Price: decimal.Zero, PriceImpact: decimal.Zero}
	if reserveIn == 0 || reserveOut == 0 || amountIn == 0 {
		return q
	}

	in := fromUint64(amountIn)
	rIn := fromUint64(reserveIn)
	rOut := fromUint64(reserveOut)

	fee, rem := in.Mul(decimal.NewFromInt(int64(feeBps))).QuoRem(decimal.NewFromInt(bpsDenominator), 0)
	if !rem.IsZero() {
		fee = fee.Add(decimal.NewFromInt(1))
	}
	net := in.Sub(fee)
	out, _ := net.Mul(rOut).QuoRem(rIn.Add(net), 0)

	q.Fee = toUint64(fee)
	q.AmountOut = toUint64(out)
	q.Price = out.Div(in)
	spot := rOut.Div(rIn)
	q.PriceImpact = spot.Sub(q.Price).Div(spot).Mul(decimal.NewFromInt(100))
	return q
}
