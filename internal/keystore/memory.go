package keystore

import (
	"fmt"
	"sort"
	"sync"

	"github.com/gagliardetto/solana-go"
)

type memoryKey struct {
	key        solana.PrivateKey
	passphrase string
}

// MemoryKeystore holds keys in process memory. It still checks passphrases
// so callers see the same errors as from AgeKeystore.
type MemoryKeystore struct {
	mu   sync.Mutex
	keys map[string]memoryKey
}

var _ Keystore = (*MemoryKeystore)(nil)

func NewMemoryKeystore() *MemoryKeystore {
	return &MemoryKeystore{keys: make(map[string]memoryKey)}
}

func (m *MemoryKeystore) Create(name, passphrase string) (solana.PublicKey, error) {
	key, err := solana.NewRandomPrivateKey()
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("generating key pair: %w", err)
	}
	if err := m.Import(name, key, passphrase); err != nil {
		return solana.PublicKey{}, err
	}
	return key.PublicKey(), nil
}

func (m *MemoryKeystore) Import(name string, key solana.PrivateKey, passphrase string) error {
	if err := validateName(name); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.keys[name]; ok {
		return fmt.Errorf("%s: %w", name, ErrKeyExists)
	}
	m.keys[name] = memoryKey{key: key, passphrase: passphrase}
	return nil
}

func (m *MemoryKeystore) Unlock(name, passphrase string) (solana.PrivateKey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k, ok := m.keys[name]
	if !ok {
		return nil, fmt.Errorf("%s: %w", name, ErrKeyNotFound)
	}
	if k.passphrase != passphrase {
		return nil, fmt.Errorf("%s: %w", name, ErrBadPassphrase)
	}
	return k.key, nil
}

func (m *MemoryKeystore) List() ([]Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entries := make([]Entry, 0, len(m.keys))
	for name, k := range m.keys {
		entries = append(entries, Entry{Name: name, PublicKey: k.key.PublicKey()})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return entries, nil
}
