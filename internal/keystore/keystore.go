// Package keystore keeps owner signing keys.
package keystore

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gagliardetto/solana-go"

	"dca-go/internal/dca"
)

var (
	ErrKeyNotFound   = errors.New("key not found")
	ErrKeyExists     = errors.New("key already exists")
	ErrBadPassphrase = errors.New("wrong passphrase")
)

// Entry names one stored key.
type Entry struct {
	Name      string
	PublicKey solana.PublicKey
}

// Keystore stores named keypairs. Private keys are only released by Unlock.
type Keystore interface {
	// Create generates and stores a new keypair under name.
	Create(name, passphrase string) (solana.PublicKey, error)
	// Import stores an existing keypair under name.
	Import(name string, key solana.PrivateKey, passphrase string) error
	Unlock(name, passphrase string) (solana.PrivateKey, error)
	// List returns entries ordered by name.
	List() ([]Entry, error)
}

func validateName(name string) error {
	if name == "" || strings.ContainsAny(name, `/\`) || strings.HasPrefix(name, ".") {
		return fmt.Errorf("invalid key name %q", name)
	}
	return nil
}

// Keyring is a set of unlocked keys indexed by public key.
type Keyring map[solana.PublicKey]solana.PrivateKey

// UnlockAll unlocks every key in ks that opens with passphrase. Keys locked
// under another passphrase are skipped.
func UnlockAll(ks Keystore, passphrase string) (Keyring, error) {
	entries, err := ks.List()
	if err != nil {
		return nil, err
	}
	ring := make(Keyring, len(entries))
	for _, e := range entries {
		key, err := ks.Unlock(e.Name, passphrase)
		if errors.Is(err, ErrBadPassphrase) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("unlocking %s: %w", e.Name, err)
		}
		ring[key.PublicKey()] = key
	}
	return ring, nil
}

// Sign signs ix with the keys of ring that match its signer accounts.
func (r Keyring) Sign(ix dca.Instruction) (dca.SignedInstruction, error) {
	var keys []solana.PrivateKey
	for _, meta := range ix.Accounts {
		if !meta.IsSigner {
			continue
		}
		key, ok := r[meta.PublicKey]
		if !ok {
			return dca.SignedInstruction{}, fmt.Errorf("signer %s: %w", meta.PublicKey, ErrKeyNotFound)
		}
		keys = append(keys, key)
	}
	return dca.Sign(ix, keys...)
}
