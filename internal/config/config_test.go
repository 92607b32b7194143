package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gagliardetto/solana-go"
)

func newKey(t *testing.T) solana.PublicKey {
	t.Helper()
	k, err := solana.NewRandomPrivateKey()
	if err != nil {
		t.Fatalf("generating key: %v", err)
	}
	return k.PublicKey()
}

func TestManager_Read(t *testing.T) {
	program := newKey(t)
	coin := newKey(t)
	input := `
program_id = "` + program.String() + `"
base_dir = "/home/user/.local/share/dca"
log_dir = "/home/user/.local/share/dca/log"

[runtime]
type = "sqlite"
data_dir = "/home/user/.local/share/dca/data"

[keystore]
type = "age"
dir = "/home/user/.local/share/dca/keys"

[[archives]]
type = "s3"
name = "offsite"
s3_bucket = "dca-snapshots"
s3_region = "eu-west-1"

[exchange]
amm_program_id = "` + newKey(t).String() + `"
market_program_id = "` + newKey(t).String() + `"
fee_bps = 30

[[exchange.pools]]
coin_mint = "` + coin.String() + `"
pc_mint = "So11111111111111111111111111111111111111112"
halted = true

[keeper]
cron = "0 */6 * * *"
enforce_schedule = true
`
	cfg, err := (&Manager{}).Read(strings.NewReader(input))
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}

	got, err := cfg.Program()
	if err != nil || !got.Equals(program) {
		t.Errorf("Program() = %s, %v; want %s", got, err, program)
	}
	if cfg.Runtime.Type != "sqlite" || cfg.Keystore.Dir != "/home/user/.local/share/dca/keys" {
		t.Errorf("Runtime/Keystore = %+v / %+v", cfg.Runtime, cfg.Keystore)
	}
	if len(cfg.Archives) != 1 || cfg.Archives[0].S3Bucket != "dca-snapshots" {
		t.Errorf("Archives = %+v", cfg.Archives)
	}
	if cfg.Exchange.FeeBps != 30 || len(cfg.Exchange.Pools) != 1 {
		t.Fatalf("Exchange = %+v", cfg.Exchange)
	}
	c, pc, err := cfg.Exchange.Pools[0].Mints()
	if err != nil {
		t.Fatalf("Mints() error = %v", err)
	}
	if !c.Equals(coin) || !pc.Equals(solana.WrappedSol) || !cfg.Exchange.Pools[0].Halted {
		t.Errorf("pool = %s/%s halted=%v", c, pc, cfg.Exchange.Pools[0].Halted)
	}
	if cfg.Keeper.Cron != "0 */6 * * *" || !cfg.Keeper.EnforceSchedule {
		t.Errorf("Keeper = %+v", cfg.Keeper)
	}
}

func TestNewConfig(t *testing.T) {
	program, amm, market := newKey(t), newKey(t), newKey(t)
	cfg := NewConfig("/base", program, amm, market)

	if cfg.LogDir != filepath.Join("/base", "log") {
		t.Errorf("LogDir = %q", cfg.LogDir)
	}
	if cfg.Runtime.DataDir != filepath.Join("/base", "data") {
		t.Errorf("Runtime.DataDir = %q", cfg.Runtime.DataDir)
	}
	if len(cfg.Archives) != 1 || cfg.Archives[0].FSRoot != filepath.Join("/base", "archive") {
		t.Errorf("Archives = %+v", cfg.Archives)
	}
	gotAMM, gotMarket, err := cfg.Exchange.Programs()
	if err != nil || !gotAMM.Equals(amm) || !gotMarket.Equals(market) {
		t.Errorf("Programs() = %s, %s, %v", gotAMM, gotMarket, err)
	}
}

func TestConfig_Program(t *testing.T) {
	tests := []struct {
		name  string
		value string
	}{
		{"empty", ""},
		{"not base58", "not-a-key!"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{ProgramID: tt.value}
			if _, err := cfg.Program(); err == nil {
				t.Error("Program() expected error")
			}
		})
	}
}

func TestInit(t *testing.T) {
	t.Run("creates config file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "nested", "dca.toml")
		cfg := NewConfig("/base", newKey(t), newKey(t), newKey(t))

		if err := Init(path, cfg); err != nil {
			t.Fatalf("Init() error = %v", err)
		}
		got, err := ReadFromFile(path)
		if err != nil {
			t.Fatalf("ReadFromFile() error = %v", err)
		}
		if got.ProgramID != cfg.ProgramID {
			t.Errorf("ProgramID = %q, want %q", got.ProgramID, cfg.ProgramID)
		}
	})

	t.Run("fails if file already exists", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "dca.toml")
		if err := os.WriteFile(path, []byte("existing"), 0644); err != nil {
			t.Fatal(err)
		}
		if err := Init(path, &Config{}); err == nil {
			t.Error("Init() expected error for existing file")
		}
	})
}

func TestSave_Overwrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dca.toml")
	cfg := NewConfig("/base", newKey(t), newKey(t), newKey(t))
	if err := Save(path, cfg); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	cfg.Exchange.Pools = append(cfg.Exchange.Pools, PoolConfig{CoinMint: newKey(t).String(), PCMint: solana.WrappedSol.String()})
	if err := Save(path, cfg); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	got, err := ReadFromFile(path)
	if err != nil {
		t.Fatalf("ReadFromFile() error = %v", err)
	}
	if len(got.Exchange.Pools) != 1 {
		t.Errorf("len(Pools) = %d, want 1", len(got.Exchange.Pools))
	}
}

func TestReadFromFile_Missing(t *testing.T) {
	if _, err := ReadFromFile(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Error("ReadFromFile() expected error for missing file")
	}
}
