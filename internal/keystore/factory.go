package keystore

import (
	"fmt"

	"dca-go/internal/config"
)

// NewKeystoreFromConfig creates a Keystore based on the configuration type.
func NewKeystoreFromConfig(cfg config.KeystoreConfig) (Keystore, error) {
	switch cfg.Type {
	case "age", "":
		if cfg.Dir == "" {
			return nil, fmt.Errorf("dir required for age keystore")
		}
		return NewAgeKeystore(cfg.Dir), nil
	case "memory":
		return NewMemoryKeystore(), nil
	default:
		return nil, fmt.Errorf("unknown keystore type: %q", cfg.Type)
	}
}
