// Package exchange simulates an AMM pool paired with an order-book market.
// It settles conversions through the same token ledger the program uses.
package exchange

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/gagliardetto/solana-go"

	"dca-go/internal/dca"
)

// Config identifies the venue programs and the pool fee.
type Config struct {
	AMMProgramID    solana.PublicKey
	MarketProgramID solana.PublicKey
	FeeBps          uint16
}

// Exchange is a registry of pools that executes swaps against them.
type Exchange struct {
	cfg    Config
	logger dca.Logger

	mu    sync.RWMutex
	pools map[solana.PublicKey]Pool
}

var _ dca.Exchange = (*Exchange)(nil)

func New(cfg Config, logger dca.Logger) (*Exchange, error) {
	if cfg.AMMProgramID.IsZero() || cfg.MarketProgramID.IsZero() {
		return nil, fmt.Errorf("exchange requires amm and market program ids")
	}
	if cfg.FeeBps >= bpsDenominator {
		return nil, fmt.Errorf("fee of %d bps is not below 100%%", cfg.FeeBps)
	}
	return &Exchange{
		cfg:    cfg,
		logger: logger,
		pools:  make(map[solana.PublicKey]Pool),
	}, nil
}

func (e *Exchange) Config() Config { return e.cfg }

// AddPool derives and registers the (coin, pc) pool.
func (e *Exchange) AddPool(coinMint, pcMint solana.PublicKey, halted bool) (Pool, error) {
	pool, err := PoolFor(e.cfg, coinMint, pcMint)
	if err != nil {
		return Pool{}, err
	}
	pool.Halted = halted

	e.mu.Lock()
	defer e.mu.Unlock()
	e.pools[pool.ID()] = pool
	return pool, nil
}

// SetHalted halts or resumes trading on a pool.
func (e *Exchange) SetHalted(id solana.PublicKey, halted bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	pool, ok := e.pools[id]
	if !ok {
		return fmt.Errorf("%w: unknown pool %s", dca.ErrExchangeCallRejected, id)
	}
	pool.Halted = halted
	e.pools[id] = pool
	return nil
}

func (e *Exchange) Pool(id solana.PublicKey) (Pool, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	p, ok := e.pools[id]
	return p, ok
}

// Pools returns the registered pools ordered by id.
func (e *Exchange) Pools() []Pool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]Pool, 0, len(e.pools))
	for _, p := range e.pools {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		return bytes.Compare(out[i].Route.AMM.Pool[:], out[j].Route.AMM.Pool[:]) < 0
	})
	return out
}

// FindPool returns the first pool, in id order, that trades mint against
// any other asset.
func (e *Exchange) FindPool(mint solana.PublicKey) (Pool, bool) {
	for _, p := range e.Pools() {
		if _, ok := p.Other(mint); ok {
			return p, true
		}
	}
	return Pool{}, false
}

// Quote prices amountIn of inputMint against the pool's current reserves.
func (e *Exchange) Quote(ctx context.Context, l dca.TokenLedger, id, inputMint solana.PublicKey, amountIn uint64) (Quote, error) {
	pool, ok := e.Pool(id)
	if !ok {
		return Quote{}, fmt.Errorf("%w: unknown pool %s", dca.ErrExchangeCallRejected, id)
	}
	inVault, outVault, err := pool.vaults(inputMint)
	if err != nil {
		return Quote{}, err
	}
	reserveIn, reserveOut, err := reserves(ctx, l, inVault, outVault)
	if err != nil {
		return Quote{}, err
	}
	return ConstantProduct(reserveIn, reserveOut, amountIn, e.cfg.FeeBps), nil
}

// Swap validates the route, prices the request and settles it: input from
// the source into the pool, output from the pool into the destination.
func (e *Exchange) Swap(ctx context.Context, l dca.TokenLedger, req dca.SwapRequest) (uint64, error) {
	if !l.Caller().Equals(e.cfg.AMMProgramID) {
		return 0, fmt.Errorf("%w: invoked as %s, not the amm program", dca.ErrExchangeCallRejected, l.Caller())
	}
	pool, ok := e.Pool(req.Route.AMM.Pool)
	if !ok {
		return 0, fmt.Errorf("%w: unknown pool %s", dca.ErrExchangeCallRejected, req.Route.AMM.Pool)
	}
	if req.Route != pool.Route {
		return 0, fmt.Errorf("%w: route does not match pool %s", dca.ErrExchangeCallRejected, pool.ID())
	}
	if pool.Halted {
		return 0, fmt.Errorf("%w: market %s is halted", dca.ErrExchangeCallRejected, pool.Route.Market.Market)
	}

	src, err := l.Account(ctx, req.Source)
	if err != nil {
		return 0, err
	}
	dst, err := l.Account(ctx, req.Destination)
	if err != nil {
		return 0, err
	}
	if src == nil || dst == nil {
		return 0, fmt.Errorf("%w: source or destination account missing", dca.ErrExchangeCallRejected)
	}
	inVault, outVault, err := pool.vaults(src.Mint)
	if err != nil {
		return 0, err
	}
	if want, _ := pool.Other(src.Mint); !dst.Mint.Equals(want) {
		return 0, fmt.Errorf("%w: destination mint %s, pool pays %s", dca.ErrExchangeCallRejected, dst.Mint, want)
	}

	reserveIn, reserveOut, err := reserves(ctx, l, inVault, outVault)
	if err != nil {
		return 0, err
	}
	if reserveIn == 0 || reserveOut == 0 {
		return 0, fmt.Errorf("%w: pool %s has no liquidity", dca.ErrExchangeCallRejected, pool.ID())
	}
	quote := ConstantProduct(reserveIn, reserveOut, req.AmountIn, e.cfg.FeeBps)
	if quote.AmountOut == 0 {
		return 0, fmt.Errorf("%w: %d in yields nothing", dca.ErrExchangeCallRejected, req.AmountIn)
	}
	if quote.AmountOut < req.MinimumAmountOut {
		return 0, fmt.Errorf("%w: best output %d, minimum %d", dca.ErrSlippageExceeded, quote.AmountOut, req.MinimumAmountOut)
	}

	if err := l.Transfer(ctx, req.Source, inVault, req.Authority, req.AmountIn); err != nil {
		return 0, fmt.Errorf("settling input: %w", err)
	}
	poolView, err := l.InvokeSigned(solana.TokenProgramID, pool.authorityProof(e.cfg.AMMProgramID))
	if err != nil {
		return 0, fmt.Errorf("signing for pool: %w", err)
	}
	if err := poolView.Transfer(ctx, outVault, req.Destination, pool.Route.AMM.Authority, quote.AmountOut); err != nil {
		return 0, fmt.Errorf("settling output: %w", err)
	}

	e.logger.Debug("swap settled",
		"pool", pool.ID().String(), "amount_in", req.AmountIn, "amount_out", quote.AmountOut,
		"fee", quote.Fee, "price_impact", quote.PriceImpact.StringFixed(4))
	return quote.AmountOut, nil
}

// vaults returns the pool vaults receiving and paying for an input mint.
func (p Pool) vaults(inputMint solana.PublicKey) (in, out solana.PublicKey, err error) {
	switch {
	case inputMint.Equals(p.CoinMint):
		return p.Route.AMM.CoinVault, p.Route.AMM.PCVault, nil
	case inputMint.Equals(p.PCMint):
		return p.Route.AMM.PCVault, p.Route.AMM.CoinVault, nil
	}
	return solana.PublicKey{}, solana.PublicKey{}, fmt.Errorf("%w: pool %s does not trade %s", dca.ErrExchangeCallRejected, p.ID(), inputMint)
}

func reserves(ctx context.Context, l dca.TokenLedger, inVault, outVault solana.PublicKey) (uint64, uint64, error) {
	in, err := l.Account(ctx, inVault)
	if err != nil {
		return 0, 0, err
	}
	out, err := l.Account(ctx, outVault)
	if err != nil {
		return 0, 0, err
	}
	var rin, rout uint64
	if in != nil {
		rin = in.Amount
	}
	if out != nil {
		rout = out.Amount
	}
	return rin, rout, nil
}
