package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"

	"dca-go/internal/dca"
	"dca-go/internal/ledger"
)

// sqlStore is the ledger.Store of one transaction.
type sqlStore struct {
	tx *sql.Tx
}

var _ ledger.Store = (*sqlStore)(nil)

func parseKey(s string) (solana.PublicKey, error) {
	k, err := solana.PublicKeyFromBase58(s)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("parsing stored key %q: %w", s, err)
	}
	return k, nil
}

func scanTokenAccount(row interface{ Scan(...any) error }) (*dca.TokenAccount, error) {
	var (
		address, mint, owner string
		amount               int64
		frozen               bool
	)
	if err := row.Scan(&address, &mint, &owner, &amount, &frozen); err != nil {
		return nil, err
	}
	a := &dca.TokenAccount{Amount: uint64(amount), Frozen: frozen}
	var err error
	if a.Address, err = parseKey(address); err != nil {
		return nil, err
	}
	if a.Mint, err = parseKey(mint); err != nil {
		return nil, err
	}
	if a.Owner, err = parseKey(owner); err != nil {
		return nil, err
	}
	return a, nil
}

func (s *sqlStore) GetTokenAccount(ctx context.Context, addr solana.PublicKey) (*dca.TokenAccount, error) {
	row := s.tx.QueryRowContext(ctx,
		"SELECT address, mint, owner, amount, frozen FROM token_accounts WHERE address = ?", addr.String())
	a, err := scanTokenAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting token account: %w", err)
	}
	return a, nil
}

func (s *sqlStore) PutTokenAccount(ctx context.Context, a *dca.TokenAccount) error {
	_, err := s.tx.ExecContext(ctx, `
		INSERT INTO token_accounts (address, mint, owner, amount, frozen) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(address) DO UPDATE SET mint = excluded.mint, owner = excluded.owner,
			amount = excluded.amount, frozen = excluded.frozen`,
		a.Address.String(), a.Mint.String(), a.Owner.String(), int64(a.Amount), a.Frozen)
	if err != nil {
		return fmt.Errorf("putting token account: %w", err)
	}
	return nil
}

func (s *sqlStore) ListTokenAccounts(ctx context.Context, owner solana.PublicKey) ([]dca.TokenAccount, error) {
	rows, err := s.tx.QueryContext(ctx,
		"SELECT address, mint, owner, amount, frozen FROM token_accounts WHERE owner = ? ORDER BY address", owner.String())
	if err != nil {
		return nil, fmt.Errorf("listing token accounts: %w", err)
	}
	defer rows.Close()

	var out []dca.TokenAccount
	for rows.Next() {
		a, err := scanTokenAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning token account: %w", err)
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

func (s *sqlStore) NativeBalance(ctx context.Context, addr solana.PublicKey) (uint64, error) {
	var lamports int64
	err := s.tx.QueryRowContext(ctx,
		"SELECT lamports FROM native_balances WHERE address = ?", addr.String()).Scan(&lamports)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("getting native balance: %w", err)
	}
	return uint64(lamports), nil
}

func (s *sqlStore) SetNativeBalance(ctx context.Context, addr solana.PublicKey, lamports uint64) error {
	var err error
	if lamports == 0 {
		_, err = s.tx.ExecContext(ctx, "DELETE FROM native_balances WHERE address = ?", addr.String())
	} else {
		_, err = s.tx.ExecContext(ctx, `
			INSERT INTO native_balances (address, lamports) VALUES (?, ?)
			ON CONFLICT(address) DO UPDATE SET lamports = excluded.lamports`,
			addr.String(), int64(lamports))
	}
	if err != nil {
		return fmt.Errorf("setting native balance: %w", err)
	}
	return nil
}

func (s *sqlStore) GetPosition(ctx context.Context, id solana.PublicKey) (*dca.Position, error) {
	var data []byte
	err := s.tx.QueryRowContext(ctx, "SELECT data FROM positions WHERE id = ?", id.String()).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting position: %w", err)
	}
	return dca.DecodePosition(data)
}

func (s *sqlStore) PutPosition(ctx context.Context, id solana.PublicKey, p *dca.Position) error {
	_, err := s.tx.ExecContext(ctx, `
		INSERT INTO positions (id, data, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`,
		id.String(), dca.EncodePosition(p), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("putting position: %w", err)
	}
	return nil
}

func (s *sqlStore) ListPositions(ctx context.Context) ([]dca.PositionEntry, error) {
	rows, err := s.tx.QueryContext(ctx, "SELECT id, data FROM positions ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("listing positions: %w", err)
	}
	defer rows.Close()

	var out []dca.PositionEntry
	for rows.Next() {
		var (
			id   string
			data []byte
		)
		if err := rows.Scan(&id, &data); err != nil {
			return nil, fmt.Errorf("scanning position: %w", err)
		}
		key, err := parseKey(id)
		if err != nil {
			return nil, err
		}
		p, err := dca.DecodePosition(data)
		if err != nil {
			return nil, fmt.Errorf("position %s: %w", id, err)
		}
		out = append(out, dca.PositionEntry{ID: key, Position: p})
	}
	return out, rows.Err()
}
