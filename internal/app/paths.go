package app

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gagliardetto/solana-go"

	"dca-go/internal/config"
)

// Environment overrides for Paths.
const (
	EnvConfigPath = "DCA_CONFIG_PATH"
	EnvHome       = "DCA_HOME"
)

// Paths locates the config file and the directory holding ledger data,
// keys, logs and the local archive.
type Paths struct {
	ConfigPath string
	BaseDir    string
}

// ResolvePaths reads DCA_CONFIG_PATH and DCA_HOME, falling back to
// ~/.config/dca.toml and ~/.local/share/dca. The home directory is only
// looked up when an override is missing.
func ResolvePaths() (Paths, error) {
	p := Paths{
		ConfigPath: os.Getenv(EnvConfigPath),
		BaseDir:    os.Getenv(EnvHome),
	}
	if p.ConfigPath != "" && p.BaseDir != "" {
		return p, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return Paths{}, fmt.Errorf("cannot determine home directory: %w", err)
	}
	if p.ConfigPath == "" {
		p.ConfigPath = filepath.Join(home, ".config", "dca.toml")
	}
	if p.BaseDir == "" {
		p.BaseDir = filepath.Join(home, ".local", "share", "dca")
	}
	return p, nil
}

// NewConfig returns the default configuration rooted at BaseDir.
func (p Paths) NewConfig(programID, ammProgramID, marketProgramID solana.PublicKey) *config.Config {
	return config.NewConfig(p.BaseDir, programID, ammProgramID, marketProgramID)
}

func (p Paths) LoadConfig() (*config.Config, error) {
	return config.ReadFromFile(p.ConfigPath)
}

func (p Paths) SaveConfig(cfg *config.Config) error {
	return config.Save(p.ConfigPath, cfg)
}
