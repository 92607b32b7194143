package database_test

import (
	"path/filepath"
	"sync"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dca-go/internal/database"
	"dca-go/internal/dca"
	"dca-go/internal/testutil"
)

func newSQLiteFixture(t *testing.T, opts ...dca.Option) *testutil.Fixture {
	t.Helper()
	db, err := database.NewSQLiteDatabase(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return testutil.NewFixtureWithRuntime(t, db, opts...)
}

func newFileFixture(t *testing.T, opts ...dca.Option) *testutil.Fixture {
	t.Helper()
	db, err := database.NewSQLiteDatabase(filepath.Join(t.TempDir(), database.LedgerFile))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return testutil.NewFixtureWithRuntime(t, db, opts...)
}

// runConcurrently calls fn(i) for i in [0, n) from n goroutines and returns
// the errors by index.
func runConcurrently(n int, fn func(i int) error) []error {
	errs := make([]error, n)
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			errs[i] = fn(i)
		}(i)
	}
	close(start)
	wg.Wait()
	return errs
}

func TestSQLiteRuntime_ProgramScenario(t *testing.T) {
	f := newSQLiteFixture(t)
	position := f.FundedTokenPosition(1000, 100, 86400)

	res, err := f.Program.ExecuteSwap(f.Ctx, f.Swap(position, f.Token, 100, 95), f.Signers())
	require.NoError(t, err)

	assert.Equal(t, uint64(900), f.Balance(f.VaultHolding(position, f.Token)))
	assert.Equal(t, res.AmountOut, f.Balance(f.VaultHolding(position, solana.WrappedSol)))

	record := f.Record(position)
	require.NotNil(t, record)
	assert.True(t, record.Active)
	assert.Equal(t, dca.TokenToNative, record.Direction)
}

func TestSQLiteRuntime_FailedSwapRollsBack(t *testing.T) {
	f := newSQLiteFixture(t)
	position := f.FundedTokenPosition(1000, 100, 86400)

	_, err := f.Program.ExecuteSwap(f.Ctx, f.Swap(position, f.Token, 100, 1_000_000), f.Signers())
	require.ErrorIs(t, err, dca.ErrSlippageExceeded)

	assert.Equal(t, uint64(1000), f.Balance(f.VaultHolding(position, f.Token)))
	assert.Equal(t, uint64(0), f.Balance(f.VaultHolding(position, solana.WrappedSol)))
}

func TestSQLiteRuntime_ConcurrentDeposits(t *testing.T) {
	const n = 8
	f := newFileFixture(t)

	positions := make([]solana.PublicKey, n)
	reqs := make([]dca.DepositTokenRequest, n)
	for i := range positions {
		positions[i] = testutil.NewKey(t).PublicKey()
		reqs[i] = f.TokenDeposit(positions[i], 100)
	}

	errs := runConcurrently(n, func(i int) error {
		return f.Program.DepositToken(f.Ctx, reqs[i], f.Signers())
	})
	for i, err := range errs {
		require.NoError(t, err, "deposit %d", i)
	}

	for _, position := range positions {
		assert.Equal(t, uint64(100), f.Balance(f.VaultHolding(position, f.Token)))
		assert.Equal(t, uint64(100), f.Record(position).TotalAmount)
	}
	assert.Equal(t, uint64(testutil.DefaultOwnerCash-n*100), f.Balance(f.Holding(f.OwnerKey(), f.Token)))
}

func TestSQLiteRuntime_ConcurrentStepsOnOnePosition(t *testing.T) {
	const n = 6
	f := newFileFixture(t, dca.WithScheduleGating(true))
	position := f.FundedTokenPosition(1000, 100, 86400)
	req := f.Swap(position, f.Token, 0, 1)

	errs := runConcurrently(n, func(int) error {
		_, err := f.Program.ExecuteSwap(f.Ctx, req, f.Signers())
		return err
	})

	executed := 0
	for _, err := range errs {
		if err == nil {
			executed++
			continue
		}
		require.ErrorIs(t, err, dca.ErrStepNotDue)
	}
	assert.Equal(t, 1, executed)
	assert.Equal(t, uint64(900), f.Balance(f.VaultHolding(position, f.Token)))
}
