package exchange

import (
	"context"
	"fmt"

	"github.com/gagliardetto/solana-go"

	"dca-go/internal/dca"
	"dca-go/internal/ledger"
)

// Pool is one tradable pair. Coin and PC follow the venue's naming for base
// and quote.
type Pool struct {
	Route    dca.Route
	CoinMint solana.PublicKey
	PCMint   solana.PublicKey
	Halted   bool
	// authorityBump is the bump of Route.AMM.Authority.
	authorityBump uint8
}

func (p Pool) ID() solana.PublicKey { return p.Route.AMM.Pool }

// Other returns the mint on the opposite side of mint, or false if mint is
// not in the pool.
func (p Pool) Other(mint solana.PublicKey) (solana.PublicKey, bool) {
	switch {
	case mint.Equals(p.CoinMint):
		return p.PCMint, true
	case mint.Equals(p.PCMint):
		return p.CoinMint, true
	}
	return solana.PublicKey{}, false
}

func (p Pool) authorityProof(ammProgram solana.PublicKey) dca.ProgramProof {
	return dca.ProgramProof{
		ProgramID: ammProgram,
		Seeds:     authoritySeeds(p.Route.AMM.Pool),
		Bump:      p.authorityBump,
	}
}

func authoritySeeds(pool solana.PublicKey) [][]byte {
	return [][]byte{[]byte("amm authority"), pool.Bytes()}
}

func derive(program solana.PublicKey, seeds ...[]byte) (solana.PublicKey, uint8, error) {
	addr, bump, err := solana.FindProgramAddress(seeds, program)
	if err != nil {
		return solana.PublicKey{}, 0, fmt.Errorf("deriving address: %w", err)
	}
	return addr, bump, nil
}

// PoolFor derives the deterministic keys of the (coin, pc) pool under cfg.
func PoolFor(cfg Config, coinMint, pcMint solana.PublicKey) (Pool, error) {
	if coinMint.Equals(pcMint) {
		return Pool{}, fmt.Errorf("pool mints must differ: %s", coinMint)
	}
	amm, market := cfg.AMMProgramID, cfg.MarketProgramID
	pool := Pool{CoinMint: coinMint, PCMint: pcMint}
	r := &pool.Route
	r.AMM.ProgramID = amm
	r.Market.ProgramID = market

	var err error
	if r.AMM.Pool, _, err = derive(amm, []byte("amm pool"), coinMint.Bytes(), pcMint.Bytes()); err != nil {
		return Pool{}, err
	}
	if r.AMM.Authority, pool.authorityBump, err = derive(amm, authoritySeeds(r.AMM.Pool)...); err != nil {
		return Pool{}, err
	}
	if r.AMM.OpenOrders, _, err = derive(amm, []byte("open orders"), r.AMM.Pool.Bytes()); err != nil {
		return Pool{}, err
	}
	if r.AMM.TargetOrders, _, err = derive(amm, []byte("target orders"), r.AMM.Pool.Bytes()); err != nil {
		return Pool{}, err
	}
	if r.AMM.CoinVault, _, err = solana.FindAssociatedTokenAddress(r.AMM.Authority, coinMint); err != nil {
		return Pool{}, err
	}
	if r.AMM.PCVault, _, err = solana.FindAssociatedTokenAddress(r.AMM.Authority, pcMint); err != nil {
		return Pool{}, err
	}

	if r.Market.Market, _, err = derive(market, []byte("market"), coinMint.Bytes(), pcMint.Bytes()); err != nil {
		return Pool{}, err
	}
	m := r.Market.Market.Bytes()
	if r.Market.Bids, _, err = derive(market, []byte("bids"), m); err != nil {
		return Pool{}, err
	}
	if r.Market.Asks, _, err = derive(market, []byte("asks"), m); err != nil {
		return Pool{}, err
	}
	if r.Market.EventQueue, _, err = derive(market, []byte("event queue"), m); err != nil {
		return Pool{}, err
	}
	if r.Market.VaultSigner, _, err = derive(market, []byte("vault signer"), m); err != nil {
		return Pool{}, err
	}
	if r.Market.CoinVault, _, err = solana.FindAssociatedTokenAddress(r.Market.VaultSigner, coinMint); err != nil {
		return Pool{}, err
	}
	if r.Market.PCVault, _, err = solana.FindAssociatedTokenAddress(r.Market.VaultSigner, pcMint); err != nil {
		return Pool{}, err
	}
	return pool, nil
}

// Seed adds liquidity to the pool's vaults.
func Seed(ctx context.Context, s ledger.Store, pool Pool, coinAmount, pcAmount uint64) error {
	if _, err := ledger.MintTo(ctx, s, pool.CoinMint, pool.Route.AMM.Authority, coinAmount); err != nil {
		return fmt.Errorf("seeding coin vault: %w", err)
	}
	if _, err := ledger.MintTo(ctx, s, pool.PCMint, pool.Route.AMM.Authority, pcAmount); err != nil {
		return fmt.Errorf("seeding pc vault: %w", err)
	}
	return nil
}
