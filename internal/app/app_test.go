package app

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gagliardetto/solana-go"

	"dca-go/internal/archive"
	"dca-go/internal/config"
	"dca-go/internal/dca"
	"dca-go/internal/keeper"
	"dca-go/internal/testutil"
)

type testEnv struct {
	t     *testing.T
	ctx   context.Context
	cfg   *config.Config
	token solana.PublicKey
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	cfg := config.NewConfig(t.TempDir(),
		testutil.NewKey(t).PublicKey(), testutil.NewKey(t).PublicKey(), testutil.NewKey(t).PublicKey())
	cfg.Keystore.Type = "memory"
	cfg.Exchange.FeeBps = 0
	return &testEnv{t: t, ctx: context.Background(), cfg: cfg, token: testutil.NewKey(t).PublicKey()}
}

func (e *testEnv) open(operation string) *DCAApp {
	e.t.Helper()
	a, err := NewDCAApp(e.ctx, e.cfg, operation, WithConsole(io.Discard), WithClock(testutil.FixedClock()))
	if err != nil {
		e.t.Fatalf("NewDCAApp() error = %v", err)
	}
	return a
}

func (e *testEnv) close(a *DCAApp) {
	e.t.Helper()
	if err := a.Close(e.ctx); err != nil {
		e.t.Fatalf("Close() error = %v", err)
	}
}

// fund creates an owner key, a token/native pool and gives the owner 10000
// of the token and native currency.
func (e *testEnv) fund(a *DCAApp) solana.PrivateKey {
	e.t.Helper()
	if _, err := a.CreateKey("owner", "pw"); err != nil {
		e.t.Fatalf("CreateKey() error = %v", err)
	}
	owner, err := a.Unlock("owner", "pw")
	if err != nil {
		e.t.Fatalf("Unlock() error = %v", err)
	}
	if _, err := a.CreatePool(e.ctx, e.token, solana.WrappedSol, 1_000_000_000, 1_000_000_000); err != nil {
		e.t.Fatalf("CreatePool() error = %v", err)
	}
	if _, err := a.Mint(e.ctx, e.token, owner.PublicKey(), 10_000); err != nil {
		e.t.Fatalf("Mint() error = %v", err)
	}
	if err := a.Airdrop(e.ctx, owner.PublicKey(), 10_000); err != nil {
		e.t.Fatalf("Airdrop() error = %v", err)
	}
	return owner
}

func (e *testEnv) tokenPosition(a *DCAApp, owner solana.PrivateKey) solana.PublicKey {
	e.t.Helper()
	position := testutil.NewKey(e.t).PublicKey()
	if err := a.DepositToken(e.ctx, owner, position, e.token, 1000, dca.DepositModeReset); err != nil {
		e.t.Fatalf("DepositToken() error = %v", err)
	}
	err := a.InitializeSchedule(e.ctx, owner, position, Schedule{StartTime: 1000, StepAmount: 100, StepInterval: 86400})
	if err != nil {
		e.t.Fatalf("InitializeSchedule() error = %v", err)
	}
	return position
}

func TestDCAApp_TokenPositionLifecycle(t *testing.T) {
	e := newTestEnv(t)
	a := e.open("Scenario")
	owner := e.fund(a)
	position := e.tokenPosition(a, owner)

	res, err := a.Swap(e.ctx, owner, position, 0, 0)
	if err != nil {
		t.Fatalf("Swap() error = %v", err)
	}
	if res.AmountIn != 100 || res.AmountOut != 99 {
		t.Errorf("Swap() = %+v, want 100 in, 99 out", res)
	}

	view, err := a.Position(e.ctx, position)
	if err != nil {
		t.Fatalf("Position() error = %v", err)
	}
	if view.Custody != 900 {
		t.Errorf("Custody = %d, want 900", view.Custody)
	}
	if view.Position.Direction != dca.TokenToNative || !view.Position.Active {
		t.Errorf("Position = %+v", view.Position)
	}

	// A second step inside the interval is refused while the schedule is enforced.
	if _, err := a.Swap(e.ctx, owner, position, 0, 0); !errors.Is(err, dca.ErrStepNotDue) {
		t.Errorf("second Swap() error = %v, want ErrStepNotDue", err)
	}
	e.close(a)

	a = e.open("History")
	defer e.close(a)
	entries, err := a.Positions(e.ctx)
	if err != nil {
		t.Fatalf("Positions() error = %v", err)
	}
	if len(entries) != 1 || !entries[0].ID.Equals(position) {
		t.Errorf("Positions() = %+v", entries)
	}
	ops, err := a.History(e.ctx, 10)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(ops) != 1 || ops[0].Operation != "Scenario" || ops[0].Status != "error" {
		t.Errorf("History() = %+v, want one failed Scenario", ops)
	}
}

func TestDCAApp_NativeDeposit(t *testing.T) {
	e := newTestEnv(t)
	a := e.open("DepositNative")
	defer e.close(a)
	owner := e.fund(a)
	position := testutil.NewKey(t).PublicKey()

	if err := a.DepositNative(e.ctx, owner, position, e.token, 500, dca.DepositModeReset); err != nil {
		t.Fatalf("DepositNative() error = %v", err)
	}
	view, err := a.Position(e.ctx, position)
	if err != nil {
		t.Fatalf("Position() error = %v", err)
	}
	if view.Custody != 500 || !view.Position.AssetIn.Equals(solana.WrappedSol) {
		t.Errorf("view = %+v", view)
	}
	if view.Position.Active {
		t.Error("position active before a schedule is initialized")
	}

	native, accounts, err := a.Balance(e.ctx, owner.PublicKey())
	if err != nil {
		t.Fatalf("Balance() error = %v", err)
	}
	if native != 9500 || len(accounts) != 1 || accounts[0].Amount != 10_000 {
		t.Errorf("Balance() = %d, %+v", native, accounts)
	}
}

func TestDCAApp_Quote(t *testing.T) {
	e := newTestEnv(t)
	a := e.open("Quote")
	defer e.close(a)
	e.fund(a)

	pools := a.Exchange().Pools()
	if len(pools) != 1 {
		t.Fatalf("Pools() = %d, want 1", len(pools))
	}
	q, err := a.Quote(e.ctx, pools[0].ID(), e.token, 1000)
	if err != nil {
		t.Fatalf("Quote() error = %v", err)
	}
	if q.AmountOut != 999 {
		t.Errorf("AmountOut = %d, want 999", q.AmountOut)
	}
	if len(a.Config().Exchange.Pools) != 1 {
		t.Errorf("config pools = %+v, want the created pool", a.Config().Exchange.Pools)
	}
}

func TestDCAApp_KeeperOnce(t *testing.T) {
	e := newTestEnv(t)
	a := e.open("Keeper")
	defer e.close(a)
	owner := e.fund(a)
	position := e.tokenPosition(a, owner)

	report, err := a.KeeperOnce(e.ctx, "pw")
	if err != nil {
		t.Fatalf("KeeperOnce() error = %v", err)
	}
	if report.Count(keeper.StatusExecuted) != 1 {
		t.Fatalf("report = %+v, want one executed step", report)
	}
	view, _ := a.Position(e.ctx, position)
	if view.Custody != 900 {
		t.Errorf("Custody = %d, want 900", view.Custody)
	}
}

func TestDCAApp_SnapshotOnClose(t *testing.T) {
	e := newTestEnv(t)
	a := e.open("Airdrop")
	target := testutil.NewKey(t).PublicKey()
	if err := a.Airdrop(e.ctx, target, 5000); err != nil {
		t.Fatalf("Airdrop() error = %v", err)
	}
	opID := a.Operation().ID
	e.close(a)

	ar, err := archive.NewFileSystemArchive("local", e.cfg.Archives[0].FSRoot)
	if err != nil {
		t.Fatalf("NewFileSystemArchive() error = %v", err)
	}
	version, err := ar.SnapshotVersion(e.ctx, e.cfg.ProgramID)
	if err != nil {
		t.Fatalf("SnapshotVersion() error = %v", err)
	}
	if version != opID {
		t.Errorf("SnapshotVersion() = %d, want %d", version, opID)
	}

	a = e.open("Restore")
	dest := filepath.Join(t.TempDir(), "restored.db")
	if err := a.RestoreSnapshot(e.ctx, "local", dest); err != nil {
		t.Fatalf("RestoreSnapshot() error = %v", err)
	}
	e.close(a)

	// Read-only operations leave the archive untouched.
	version, _ = ar.SnapshotVersion(e.ctx, e.cfg.ProgramID)
	if version != opID {
		t.Errorf("SnapshotVersion() after read-only run = %d, want %d", version, opID)
	}
}

func TestNewDCAApp_LocalBehindArchive(t *testing.T) {
	e := newTestEnv(t)
	ar, err := archive.NewFileSystemArchive("local", e.cfg.Archives[0].FSRoot)
	if err != nil {
		t.Fatalf("NewFileSystemArchive() error = %v", err)
	}
	if err := ar.PutSnapshot(e.ctx, e.cfg.ProgramID, strings.NewReader("x"), 1, 99); err != nil {
		t.Fatalf("PutSnapshot() error = %v", err)
	}

	_, err = NewDCAApp(e.ctx, e.cfg, "Airdrop", WithConsole(io.Discard))
	if err == nil || !strings.Contains(err.Error(), "behind") {
		t.Errorf("NewDCAApp() error = %v, want local ledger behind archive", err)
	}
}

func TestNewDCAApp_InvalidConfig(t *testing.T) {
	e := newTestEnv(t)
	e.cfg.ProgramID = ""
	if _, err := NewDCAApp(e.ctx, e.cfg, "Airdrop", WithConsole(io.Discard)); err == nil {
		t.Error("NewDCAApp() expected error for missing program_id")
	}
}

func TestDCAApp_FrozenHoldingRejectsDeposit(t *testing.T) {
	e := newTestEnv(t)
	a := e.open("Scenario")
	defer e.close(a)
	owner := e.fund(a)

	holding, err := a.Mint(e.ctx, e.token, owner.PublicKey(), 0)
	if err != nil {
		t.Fatalf("Mint() error = %v", err)
	}
	if err := a.Freeze(e.ctx, holding, true); err != nil {
		t.Fatalf("Freeze() error = %v", err)
	}

	position := testutil.NewKey(t).PublicKey()
	err = a.DepositToken(e.ctx, owner, position, e.token, 1000, dca.DepositModeReset)
	if !errors.Is(err, dca.ErrLedgerTransferRejected) {
		t.Fatalf("DepositToken() error = %v, want ErrLedgerTransferRejected", err)
	}

	if err := a.Freeze(e.ctx, holding, false); err != nil {
		t.Fatalf("thaw error = %v", err)
	}
	if err := a.DepositToken(e.ctx, owner, position, e.token, 1000, dca.DepositModeReset); err != nil {
		t.Fatalf("DepositToken() after thaw error = %v", err)
	}
}

func TestDCAApp_ImportKey(t *testing.T) {
	e := newTestEnv(t)
	a := e.open("ImportKey")
	defer e.close(a)

	key := testutil.NewKey(t)
	if err := a.ImportKey("imported", key, "pw"); err != nil {
		t.Fatalf("ImportKey() error = %v", err)
	}
	got, err := a.Unlock("imported", "pw")
	if err != nil {
		t.Fatalf("Unlock() error = %v", err)
	}
	if !got.PublicKey().Equals(key.PublicKey()) {
		t.Errorf("Unlock() = %s, want %s", got.PublicKey(), key.PublicKey())
	}
}
