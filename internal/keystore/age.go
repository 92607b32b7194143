package keystore

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"filippo.io/age"
	"github.com/gagliardetto/solana-go"
)

const (
	pubExt = ".pub"
	keyExt = ".key"
)

// AgeKeystore keeps keys as file pairs in a directory: <name>.pub holds the
// base58 public key in plaintext and <name>.key holds the base58 private key
// encrypted with age's scrypt passphrase encryption.
type AgeKeystore struct {
	dir        string
	workFactor int
}

var _ Keystore = (*AgeKeystore)(nil)

// NewAgeKeystore returns a keystore rooted at dir.
func NewAgeKeystore(dir string) *AgeKeystore {
	return &AgeKeystore{dir: dir}
}

// WithWorkFactor sets the scrypt work factor (log2 N) for newly stored keys.
// Zero keeps the age default.
func (k *AgeKeystore) WithWorkFactor(logN int) *AgeKeystore {
	k.workFactor = logN
	return k
}

func (k *AgeKeystore) Dir() string { return k.dir }

func (k *AgeKeystore) Create(name, passphrase string) (solana.PublicKey, error) {
	key, err := solana.NewRandomPrivateKey()
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("generating key pair: %w", err)
	}
	if err := k.Import(name, key, passphrase); err != nil {
		return solana.PublicKey{}, err
	}
	return key.PublicKey(), nil
}

func (k *AgeKeystore) Import(name string, key solana.PrivateKey, passphrase string) error {
	if err := validateName(name); err != nil {
		return err
	}
	if passphrase == "" {
		return fmt.Errorf("passphrase must not be empty")
	}
	if err := os.MkdirAll(k.dir, 0700); err != nil {
		return fmt.Errorf("creating key directory: %w", err)
	}

	privFile, err := os.OpenFile(k.path(name, keyExt), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
	if errors.Is(err, os.ErrExist) {
		return fmt.Errorf("%s: %w", name, ErrKeyExists)
	}
	if err != nil {
		return fmt.Errorf("creating private key file: %w", err)
	}
	defer privFile.Close()

	recipient, err := age.NewScryptRecipient(passphrase)
	if err != nil {
		return fmt.Errorf("creating scrypt recipient: %w", err)
	}
	if k.workFactor > 0 {
		recipient.SetWorkFactor(k.workFactor)
	}

	w, err := age.Encrypt(privFile, recipient)
	if err != nil {
		return fmt.Errorf("creating encrypted writer: %w", err)
	}
	if _, err := io.WriteString(w, key.String()+"\n"); err != nil {
		return fmt.Errorf("writing encrypted private key: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("finalizing encrypted private key: %w", err)
	}

	if err := os.WriteFile(k.path(name, pubExt), []byte(key.PublicKey().String()+"\n"), 0644); err != nil {
		return fmt.Errorf("writing public key: %w", err)
	}
	return nil
}

// Unlock decrypts the private key stored under name.
func (k *AgeKeystore) Unlock(name, passphrase string) (solana.PrivateKey, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}
	privData, err := os.ReadFile(k.path(name, keyExt))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%s: %w", name, ErrKeyNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("reading private key file: %w", err)
	}

	identity, err := age.NewScryptIdentity(passphrase)
	if err != nil {
		return nil, fmt.Errorf("creating scrypt identity: %w", err)
	}

	decReader, err := age.Decrypt(bytes.NewReader(privData), identity)
	if err != nil {
		var noMatch *age.NoIdentityMatchError
		if errors.As(err, &noMatch) {
			return nil, fmt.Errorf("%s: %w", name, ErrBadPassphrase)
		}
		return nil, fmt.Errorf("decrypting private key: %w", err)
	}
	keyData, err := io.ReadAll(decReader)
	if err != nil {
		return nil, fmt.Errorf("reading decrypted private key: %w", err)
	}

	key, err := solana.PrivateKeyFromBase58(strings.TrimSpace(string(keyData)))
	if err != nil {
		return nil, fmt.Errorf("parsing private key: %w", err)
	}

	pub, err := k.publicKey(name)
	if err != nil {
		return nil, err
	}
	if !key.PublicKey().Equals(pub) {
		return nil, fmt.Errorf("%s: private key does not match %s", name, pub)
	}
	return key, nil
}

func (k *AgeKeystore) List() ([]Entry, error) {
	matches, err := filepath.Glob(filepath.Join(k.dir, "*"+pubExt))
	if err != nil {
		return nil, fmt.Errorf("listing keys: %w", err)
	}
	sort.Strings(matches)

	entries := make([]Entry, 0, len(matches))
	for _, m := range matches {
		name := strings.TrimSuffix(filepath.Base(m), pubExt)
		pub, err := k.publicKey(name)
		if err != nil {
			return nil, err
		}
		entries = append(entries, Entry{Name: name, PublicKey: pub})
	}
	return entries, nil
}

func (k *AgeKeystore) publicKey(name string) (solana.PublicKey, error) {
	data, err := os.ReadFile(k.path(name, pubExt))
	if errors.Is(err, os.ErrNotExist) {
		return solana.PublicKey{}, fmt.Errorf("%s: %w", name, ErrKeyNotFound)
	}
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("reading public key: %w", err)
	}
	pub, err := solana.PublicKeyFromBase58(strings.TrimSpace(string(data)))
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("parsing public key %s: %w", name, err)
	}
	return pub, nil
}

func (k *AgeKeystore) path(name, ext string) string {
	return filepath.Join(k.dir, name+ext)
}
