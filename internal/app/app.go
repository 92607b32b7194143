package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/gagliardetto/solana-go"

	"dca-go/internal/archive"
	"dca-go/internal/config"
	"dca-go/internal/database"
	"dca-go/internal/dca"
	"dca-go/internal/exchange"
	"dca-go/internal/keeper"
	"dca-go/internal/keystore"
	"dca-go/internal/ledger"
)

// DCAApp is the application layer between the CLI and the program.
// It constructs all dependencies from config, exposes high-level operations
// and snapshots the ledger to the archives on Close.
type DCAApp struct {
	cfg       *config.Config
	programID solana.PublicKey
	db        *database.SQLiteDatabase
	archives  []archive.Archive
	keys      keystore.Keystore
	exchange  *exchange.Exchange
	program   *dca.Program
	logger    dca.Logger
	clock     dca.Clock
	op        *Operation
	logFile   *os.File
}

type options struct {
	console io.Writer
	clock   dca.Clock
}

// Option customizes NewDCAApp.
type Option func(*options)

// WithConsole sets where warnings are echoed. Defaults to stderr.
func WithConsole(w io.Writer) Option {
	return func(o *options) { o.console = w }
}

// WithClock replaces the wall clock used for schedule checks.
func WithClock(c dca.Clock) Option {
	return func(o *options) { o.clock = c }
}

// NewDCAApp creates a fully wired DCAApp from the given config.
// operation identifies the CLI command being run (e.g. "DepositToken").
// The caller must call Close when done.
func NewDCAApp(ctx context.Context, cfg *config.Config, operation string, opts ...Option) (*DCAApp, error) {
	o := options{console: os.Stderr, clock: dca.RealClock{}}
	for _, opt := range opts {
		opt(&o)
	}

	programID, err := cfg.Program()
	if err != nil {
		return nil, err
	}
	ammID, marketID, err := cfg.Exchange.Programs()
	if err != nil {
		return nil, err
	}

	var archives []archive.Archive
	for _, ac := range cfg.Archives {
		a, err := archive.NewArchiveFromConfig(ctx, ac)
		if err != nil {
			return nil, fmt.Errorf("creating archive %s: %w", ac.Name, err)
		}
		archives = append(archives, a)
	}

	keys, err := keystore.NewKeystoreFromConfig(cfg.Keystore)
	if err != nil {
		return nil, fmt.Errorf("creating keystore: %w", err)
	}

	db, err := database.NewDatabaseFromConfig(cfg.Runtime)
	if err != nil {
		return nil, fmt.Errorf("creating database: %w", err)
	}
	if err := db.CheckMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("database schema out of date: %w", err)
	}

	// The local ledger must not be older than any archived snapshot.
	localMax, err := db.MaxOperationID(ctx)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("checking local ledger version: %w", err)
	}
	for _, a := range archives {
		remote, err := a.SnapshotVersion(ctx, programID.String())
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("checking archive %s version: %w", a.Name(), err)
		}
		if remote > localMax {
			db.Close()
			return nil, fmt.Errorf("local ledger is behind archive %s (local=%d, remote=%d): restore the snapshot or re-initialize", a.Name(), localMax, remote)
		}
	}

	opID := time.Now().UTC().Format("20060102T150405Z")
	sl, logFile, err := newLogger(cfg.LogDir, opID, o.console)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating logger: %w", err)
	}
	logger := &slogAdapter{l: sl}

	ex, err := exchange.New(exchange.Config{
		AMMProgramID:    ammID,
		MarketProgramID: marketID,
		FeeBps:          cfg.Exchange.FeeBps,
	}, logger)
	if err != nil {
		db.Close()
		logFile.Close()
		return nil, fmt.Errorf("creating exchange: %w", err)
	}
	for _, pc := range cfg.Exchange.Pools {
		coinMint, pcMint, err := pc.Mints()
		if err == nil {
			_, err = ex.AddPool(coinMint, pcMint, pc.Halted)
		}
		if err != nil {
			db.Close()
			logFile.Close()
			return nil, fmt.Errorf("registering pool: %w", err)
		}
	}

	program := dca.NewProgram(programID, db, ex, logger, o.clock,
		dca.WithScheduleGating(cfg.Keeper.EnforceSchedule))

	return &DCAApp{
		cfg:       cfg,
		programID: programID,
		db:        db,
		archives:  archives,
		keys:      keys,
		exchange:  ex,
		program:   program,
		logger:    logger,
		clock:     o.clock,
		op:        NewOperation(operation, ""),
		logFile:   logFile,
	}, nil
}

func (a *DCAApp) Config() *config.Config             { return a.cfg }
func (a *DCAApp) ProgramID() solana.PublicKey        { return a.programID }
func (a *DCAApp) Operation() *Operation              { return a.op }
func (a *DCAApp) Exchange() *exchange.Exchange       { return a.exchange }
func (a *DCAApp) Database() *database.SQLiteDatabase { return a.db }

// persistOperation saves the operation to the journal, giving it an ID.
// Only ledger-mutating commands call it.
func (a *DCAApp) persistOperation(ctx context.Context, parameters string) error {
	if a.op.Persisted() {
		return nil
	}
	a.op.Parameters = parameters
	dbOp, err := a.db.CreateOperation(ctx, a.op.Operation, parameters)
	if err != nil {
		return fmt.Errorf("persisting operation: %w", err)
	}
	a.op.ID = dbOp.ID
	return nil
}

// mutate journals the operation and runs fn, recording its outcome.
func (a *DCAApp) mutate(ctx context.Context, parameters string, fn func() error) error {
	if err := a.persistOperation(ctx, parameters); err != nil {
		return err
	}
	return a.op.Record(fn())
}

func (a *DCAApp) update(ctx context.Context, fn func(ledger.Store) error) error {
	return a.db.Update(ctx, fn)
}

// submit signs ix with keys and runs it through the program.
func (a *DCAApp) submit(ctx context.Context, ix dca.Instruction, keys ...solana.PrivateKey) (dca.Result, error) {
	signed, err := dca.Sign(ix, keys...)
	if err != nil {
		return dca.Result{}, err
	}
	res, err := a.program.Process(ctx, signed)
	if err != nil {
		a.logger.Warn("instruction failed", "instruction", ix.Name(), "code", dca.Code(err), "error", err)
		return dca.Result{}, err
	}
	a.logger.Info("instruction processed", "instruction", res.Name)
	return res, nil
}

// Close finalizes the operation and closes all resources. Persisted
// operations are finished in the journal and the ledger is snapshotted to
// every archive with version = operation ID.
func (a *DCAApp) Close(ctx context.Context) error {
	var firstErr error
	keep := func(err error) {
		if firstErr == nil && err != nil {
			firstErr = err
		}
	}

	var snapshot string
	if a.op.Persisted() {
		if err := a.db.FinishOperation(ctx, a.op.ID, a.op.Status); err != nil {
			keep(fmt.Errorf("finishing operation: %w", err))
		}
		var err error
		snapshot, err = a.snapshot(ctx)
		keep(err)
	}

	if err := a.db.Close(); err != nil {
		keep(fmt.Errorf("closing database: %w", err))
	}

	if snapshot != "" {
		keep(a.upload(ctx, snapshot, a.op.ID))
		os.RemoveAll(snapshot)
	}

	if a.logFile != nil {
		a.logFile.Close()
	}
	return firstErr
}

// snapshot writes a consistent copy of the ledger into a fresh temp
// directory and returns the directory, or "" when there are no archives.
func (a *DCAApp) snapshot(ctx context.Context) (string, error) {
	if len(a.archives) == 0 {
		return "", nil
	}
	// VACUUM INTO refuses to overwrite an existing file.
	dir, err := os.MkdirTemp("", "dca-ledger-snapshot-*")
	if err != nil {
		return "", fmt.Errorf("creating snapshot directory: %w", err)
	}
	if err := a.db.BackupTo(ctx, filepath.Join(dir, database.LedgerFile)); err != nil {
		os.RemoveAll(dir)
		return "", err
	}
	return dir, nil
}

func (a *DCAApp) upload(ctx context.Context, dir string, version int64) error {
	f, err := os.Open(filepath.Join(dir, database.LedgerFile))
	if err != nil {
		return fmt.Errorf("opening ledger snapshot: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat ledger snapshot: %w", err)
	}

	for _, ar := range a.archives {
		if _, err := f.Seek(0, io.SeekStart); err != nil {
			return fmt.Errorf("rewinding ledger snapshot: %w", err)
		}
		if err := ar.PutSnapshot(ctx, a.programID.String(), f, info.Size(), version); err != nil {
			return fmt.Errorf("uploading snapshot to %s: %w", ar.Name(), err)
		}
	}
	return nil
}

// RestoreSnapshot downloads the program's ledger snapshot from the named
// archive into dest.
func (a *DCAApp) RestoreSnapshot(ctx context.Context, archiveName, dest string) error {
	for _, ar := range a.archives {
		if ar.Name() != archiveName {
			continue
		}
		f, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
		if err != nil {
			return fmt.Errorf("creating restore target: %w", err)
		}
		defer f.Close()
		return ar.GetSnapshot(ctx, a.programID.String(), f)
	}
	return fmt.Errorf("no archive named %q", archiveName)
}

// RunKeeper executes due steps on the configured cron schedule until ctx is
// cancelled, signing with every key that opens with passphrase.
func (a *DCAApp) RunKeeper(ctx context.Context, passphrase string) error {
	k, err := a.newKeeper(ctx, passphrase)
	if err != nil {
		return err
	}
	return a.op.Record(k.Run(ctx, a.cfg.Keeper.Cron))
}

// KeeperOnce executes one keeper pass.
func (a *DCAApp) KeeperOnce(ctx context.Context, passphrase string) (keeper.Report, error) {
	k, err := a.newKeeper(ctx, passphrase)
	if err != nil {
		return keeper.Report{}, err
	}
	report, err := k.RunOnce(ctx)
	return report, a.op.Record(err)
}

func (a *DCAApp) newKeeper(ctx context.Context, passphrase string) (*keeper.Keeper, error) {
	ring, err := keystore.UnlockAll(a.keys, passphrase)
	if err != nil {
		return nil, err
	}
	if err := a.persistOperation(ctx, fmt.Sprintf("keys=%d", len(ring))); err != nil {
		return nil, err
	}
	program := dca.NewProgram(a.programID, a.db, a.exchange, a.logger, a.clock, dca.WithScheduleGating(true))
	return keeper.New(program, a.exchange, ring, a.clock, a.logger, nil)
}
