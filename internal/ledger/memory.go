package ledger

import (
	"bytes"
	"context"
	"sort"
	"sync"

	"github.com/gagliardetto/solana-go"

	"dca-go/internal/dca"
)

// MemoryStore is a Store backed by maps. It is not safe for concurrent use;
// MemoryRuntime serializes access.
type MemoryStore struct {
	accounts  map[solana.PublicKey]dca.TokenAccount
	native    map[solana.PublicKey]uint64
	positions map[solana.PublicKey][]byte
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		accounts:  make(map[solana.PublicKey]dca.TokenAccount),
		native:    make(map[solana.PublicKey]uint64),
		positions: make(map[solana.PublicKey][]byte),
	}
}

func (s *MemoryStore) clone() *MemoryStore {
	c := NewMemoryStore()
	for k, v := range s.accounts {
		c.accounts[k] = v
	}
	for k, v := range s.native {
		c.native[k] = v
	}
	for k, v := range s.positions {
		c.positions[k] = v
	}
	return c
}

func (s *MemoryStore) GetTokenAccount(_ context.Context, addr solana.PublicKey) (*dca.TokenAccount, error) {
	a, ok := s.accounts[addr]
	if !ok {
		return nil, nil
	}
	return &a, nil
}

func (s *MemoryStore) PutTokenAccount(_ context.Context, account *dca.TokenAccount) error {
	s.accounts[account.Address] = *account
	return nil
}

func (s *MemoryStore) ListTokenAccounts(_ context.Context, owner solana.PublicKey) ([]dca.TokenAccount, error) {
	var out []dca.TokenAccount
	for _, a := range s.accounts {
		if a.Owner.Equals(owner) {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return bytes.Compare(out[i].Address[:], out[j].Address[:]) < 0
	})
	return out, nil
}

func (s *MemoryStore) NativeBalance(_ context.Context, addr solana.PublicKey) (uint64, error) {
	return s.native[addr], nil
}

func (s *MemoryStore) SetNativeBalance(_ context.Context, addr solana.PublicKey, lamports uint64) error {
	if lamports == 0 {
		delete(s.native, addr)
		return nil
	}
	s.native[addr] = lamports
	return nil
}

// GetPosition decodes the stored record layout.
func (s *MemoryStore) GetPosition(_ context.Context, id solana.PublicKey) (*dca.Position, error) {
	data, ok := s.positions[id]
	if !ok {
		return nil, nil
	}
	return dca.DecodePosition(data)
}

func (s *MemoryStore) PutPosition(_ context.Context, id solana.PublicKey, p *dca.Position) error {
	s.positions[id] = dca.EncodePosition(p)
	return nil
}

func (s *MemoryStore) ListPositions(_ context.Context) ([]dca.PositionEntry, error) {
	entries := make([]dca.PositionEntry, 0, len(s.positions))
	for id, data := range s.positions {
		p, err := dca.DecodePosition(data)
		if err != nil {
			return nil, err
		}
		entries = append(entries, dca.PositionEntry{ID: id, Position: p})
	}
	sort.Slice(entries, func(i, j int) bool {
		return bytes.Compare(entries[i].ID[:], entries[j].ID[:]) < 0
	})
	return entries, nil
}

// MemoryRuntime runs executions one at a time against a MemoryStore. Each
// execution works on a copy that replaces the committed state only on success.
type MemoryRuntime struct {
	mu    sync.Mutex
	state *MemoryStore
}

var (
	_ dca.Runtime = (*MemoryRuntime)(nil)
	_ Updater     = (*MemoryRuntime)(nil)
)

func NewMemoryRuntime() *MemoryRuntime {
	return &MemoryRuntime{state: NewMemoryStore()}
}

func (r *MemoryRuntime) Update(ctx context.Context, fn func(Store) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	work := r.state.clone()
	if err := fn(work); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	r.state = work
	return nil
}

func (r *MemoryRuntime) Execute(ctx context.Context, env dca.Envelope, fn func(dca.Tx) error) error {
	return Execute(ctx, r, env, fn)
}
