package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/gagliardetto/solana-go"
)

// Config is the dca configuration file.
type Config struct {
	// ProgramID is the identity every vault authority is derived under.
	ProgramID string          `toml:"program_id"`
	BaseDir   string          `toml:"base_dir"`
	LogDir    string          `toml:"log_dir"`
	Runtime   RuntimeConfig   `toml:"runtime"`
	Keystore  KeystoreConfig  `toml:"keystore"`
	Archives  []ArchiveConfig `toml:"archives"`
	Exchange  ExchangeConfig  `toml:"exchange"`
	Keeper    KeeperConfig    `toml:"keeper"`
}

// RuntimeConfig selects where ledger state lives.
type RuntimeConfig struct {
	Type    string `toml:"type"`               // "sqlite" or "memory"
	DataDir string `toml:"data_dir,omitempty"` // only used for type=sqlite
}

// KeystoreConfig selects where owner keys are kept.
type KeystoreConfig struct {
	Type string `toml:"type"`          // "age" (default) or "memory"
	Dir  string `toml:"dir,omitempty"` // only used for type=age
}

// ArchiveConfig is a tagged union: Type decides which other fields apply.
type ArchiveConfig struct {
	Type string `toml:"type"` // "memory", "s3", or "filesystem"
	Name string `toml:"name"`

	S3Bucket string `toml:"s3_bucket,omitempty"`
	S3Prefix string `toml:"s3_prefix,omitempty"`
	S3Region string `toml:"s3_region,omitempty"`
	// S3Endpoint targets an S3-compatible service instead of AWS.
	S3Endpoint string `toml:"s3_endpoint,omitempty"`
	// Static credentials; the default AWS credential chain is used when empty.
	S3AccessKeyID     string `toml:"s3_access_key_id,omitempty"`
	S3SecretAccessKey string `toml:"s3_secret_access_key,omitempty"`

	FSRoot string `toml:"fs_root,omitempty"`
}

// ExchangeConfig describes the venue and its tradable pools.
type ExchangeConfig struct {
	AMMProgramID    string       `toml:"amm_program_id"`
	MarketProgramID string       `toml:"market_program_id"`
	FeeBps          uint16       `toml:"fee_bps"`
	Pools           []PoolConfig `toml:"pools"`
}

// PoolConfig registers one pool. Its keys are derived from the mints.
type PoolConfig struct {
	CoinMint string `toml:"coin_mint"`
	PCMint   string `toml:"pc_mint"`
	Halted   bool   `toml:"halted,omitempty"`
}

// KeeperConfig drives scheduled step execution.
type KeeperConfig struct {
	Cron            string `toml:"cron"`
	EnforceSchedule bool   `toml:"enforce_schedule"`
}

// NewConfig returns a Config rooted at baseDir with a sqlite runtime, an age
// keystore and a filesystem archive.
func NewConfig(baseDir string, programID, ammProgramID, marketProgramID solana.PublicKey) *Config {
	return &Config{
		ProgramID: programID.String(),
		BaseDir:   baseDir,
		LogDir:    filepath.Join(baseDir, "log"),
		Runtime: RuntimeConfig{
			Type:    "sqlite",
			DataDir: filepath.Join(baseDir, "data"),
		},
		Keystore: KeystoreConfig{
			Type: "age",
			Dir:  filepath.Join(baseDir, "keys"),
		},
		Archives: []ArchiveConfig{{
			Type:   "filesystem",
			Name:   "local",
			FSRoot: filepath.Join(baseDir, "archive"),
		}},
		Exchange: ExchangeConfig{
			AMMProgramID:    ammProgramID.String(),
			MarketProgramID: marketProgramID.String(),
			FeeBps:          25,
		},
		Keeper: KeeperConfig{
			Cron:            "@every 1m",
			EnforceSchedule: true,
		},
	}
}

// Program returns the parsed program identity.
func (c *Config) Program() (solana.PublicKey, error) {
	return parseKey("program_id", c.ProgramID)
}

// Programs returns the parsed amm and market program identities.
func (c ExchangeConfig) Programs() (amm, market solana.PublicKey, err error) {
	if amm, err = parseKey("exchange.amm_program_id", c.AMMProgramID); err != nil {
		return
	}
	market, err = parseKey("exchange.market_program_id", c.MarketProgramID)
	return
}

// Mints returns the parsed pool mints.
func (c PoolConfig) Mints() (coin, pc solana.PublicKey, err error) {
	if coin, err = parseKey("coin_mint", c.CoinMint); err != nil {
		return
	}
	pc, err = parseKey("pc_mint", c.PCMint)
	return
}

func parseKey(field, value string) (solana.PublicKey, error) {
	if value == "" {
		return solana.PublicKey{}, fmt.Errorf("%s is not set", field)
	}
	k, err := solana.PublicKeyFromBase58(value)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("invalid %s %q: %w", field, value, err)
	}
	return k, nil
}

// Manager handles reading and writing configuration.
type Manager struct{}

// Read decodes a Config from r.
func (m *Manager) Read(r io.Reader) (*Config, error) {
	var cfg Config
	if _, err := toml.NewDecoder(r).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return &cfg, nil
}

// Write encodes cfg to w.
func (m *Manager) Write(w io.Writer, cfg *Config) error {
	if err := toml.NewEncoder(w).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// ReadFromFile reads a Config from path.
func ReadFromFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	cfg, err := (&Manager{}).Read(f)
	if err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}
	return cfg, nil
}

// Save writes cfg to path, replacing any existing file.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	if err := (&Manager{}).Write(f, cfg); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

// Init writes a new config file at path. It fails if one exists.
func Init(path string, cfg *Config) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}
	if err := Save(path, cfg); err != nil {
		return fmt.Errorf("initializing config: %w", err)
	}
	return nil
}
