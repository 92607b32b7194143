package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"dca-go/internal/app"
	"dca-go/internal/config"
	"dca-go/internal/dca"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error [%d]: %v\n", dca.Code(err), err)
		os.Exit(1)
	}
}

// newApp reads the config and creates a DCAApp. The caller must defer
// closeApp. operation identifies the CLI command being run.
func newApp(ctx context.Context, operation string) (*app.DCAApp, app.Paths, error) {
	paths, err := app.ResolvePaths()
	if err != nil {
		return nil, app.Paths{}, err
	}
	cfg, err := paths.LoadConfig()
	if err != nil {
		return nil, app.Paths{}, err
	}

	a, err := app.NewDCAApp(ctx, cfg, operation)
	if err != nil {
		return nil, app.Paths{}, fmt.Errorf("initializing app: %w", err)
	}
	return a, paths, nil
}

func closeApp(ctx context.Context, a *app.DCAApp) {
	if err := a.Close(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "warning: %v\n", err)
	}
}

// readPassphrase takes the passphrase from DCA_PASSPHRASE or prompts on the
// terminal without echo.
func readPassphrase(prompt string) (string, error) {
	if p := os.Getenv("DCA_PASSPHRASE"); p != "" {
		return p, nil
	}
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", fmt.Errorf("no terminal for passphrase prompt: set DCA_PASSPHRASE")
	}
	fmt.Fprint(os.Stderr, prompt)
	b, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("reading passphrase: %w", err)
	}
	return strings.TrimSpace(string(b)), nil
}

// unlockOwner unlocks the keystore entry named by the --owner flag.
func unlockOwner(cmd *cobra.Command, a *app.DCAApp) (solana.PrivateKey, error) {
	name, _ := cmd.Flags().GetString("owner")
	if name == "" {
		return nil, fmt.Errorf("--owner is required")
	}
	pass, err := readPassphrase(fmt.Sprintf("Passphrase for %s: ", name))
	if err != nil {
		return nil, err
	}
	return a.Unlock(name, pass)
}

func keyArg(value, name string) (solana.PublicKey, error) {
	k, err := solana.PublicKeyFromBase58(value)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("invalid %s %q: %w", name, value, err)
	}
	return k, nil
}

func keyFlag(cmd *cobra.Command, name string) (solana.PublicKey, error) {
	v, _ := cmd.Flags().GetString(name)
	if v == "" {
		return solana.PublicKey{}, fmt.Errorf("--%s is required", name)
	}
	return keyArg(v, name)
}

var rootCmd = &cobra.Command{
	Use:           "dca",
	Short:         "Custodial dollar-cost-averaging positions",
	SilenceErrors: true,
	SilenceUsage:  true,
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		paths, err := app.ResolvePaths()
		if err != nil {
			return err
		}

		ids := make([]solana.PublicKey, 3)
		for i, flag := range []string{"program-id", "amm-program-id", "market-program-id"} {
			if v, _ := cmd.Flags().GetString(flag); v != "" {
				if ids[i], err = keyArg(v, flag); err != nil {
					return err
				}
				continue
			}
			ids[i] = solana.NewWallet().PublicKey()
		}

		cfg := paths.NewConfig(ids[0], ids[1], ids[2])
		if err := config.Init(paths.ConfigPath, cfg); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}

		fmt.Printf("Configuration initialized at %s\n", paths.ConfigPath)
		fmt.Printf("Program ID: %s\n", cfg.ProgramID)
		fmt.Printf("Base Dir:   %s\n", cfg.BaseDir)
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "View configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		paths, err := app.ResolvePaths()
		if err != nil {
			return err
		}
		cfg, err := paths.LoadConfig()
		if err != nil {
			return err
		}

		fmt.Printf("Configuration from %s:\n\n", paths.ConfigPath)
		fmt.Printf("Program ID: %s\n", cfg.ProgramID)
		fmt.Printf("Base Dir:   %s\n", cfg.BaseDir)
		fmt.Printf("Log Dir:    %s\n", cfg.LogDir)
		fmt.Printf("Runtime:    %s %s\n", cfg.Runtime.Type, cfg.Runtime.DataDir)
		fmt.Printf("Keystore:   %s %s\n", cfg.Keystore.Type, cfg.Keystore.Dir)
		for _, a := range cfg.Archives {
			fmt.Printf("Archive:    %s (%s)\n", a.Name, a.Type)
		}
		fmt.Printf("Exchange:   amm=%s market=%s fee=%dbps pools=%d\n",
			cfg.Exchange.AMMProgramID, cfg.Exchange.MarketProgramID, cfg.Exchange.FeeBps, len(cfg.Exchange.Pools))
		fmt.Printf("Keeper:     %q enforce_schedule=%v\n", cfg.Keeper.Cron, cfg.Keeper.EnforceSchedule)
		return nil
	},
}

var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Manage owner keys",
}

var keysNewCmd = &cobra.Command{
	Use:   "new NAME",
	Short: "Generate an owner key",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, _, err := newApp(cmd.Context(), "CreateKey")
		if err != nil {
			return err
		}
		defer closeApp(cmd.Context(), a)

		pass, err := readPassphrase("New passphrase: ")
		if err != nil {
			return err
		}
		pub, err := a.CreateKey(args[0], pass)
		if err != nil {
			return err
		}
		fmt.Printf("%s\t%s\n", args[0], pub)
		return nil
	},
}

var keysListCmd = &cobra.Command{
	Use:   "list",
	Short: "List owner keys",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, _, err := newApp(cmd.Context(), "ListKeys")
		if err != nil {
			return err
		}
		defer closeApp(cmd.Context(), a)

		entries, err := a.ListKeys()
		if err != nil {
			return err
		}
		for _, e := range entries {
			fmt.Printf("%s\t%s\n", e.Name, e.PublicKey)
		}
		return nil
	},
}

var keysImportCmd = &cobra.Command{
	Use:   "import NAME",
	Short: "Import a base58 private key",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, _, err := newApp(cmd.Context(), "ImportKey")
		if err != nil {
			return err
		}
		defer closeApp(cmd.Context(), a)

		fd := int(os.Stdin.Fd())
		if !term.IsTerminal(fd) {
			return fmt.Errorf("key import requires a terminal")
		}
		fmt.Fprint(os.Stderr, "Private key (base58): ")
		raw, err := term.ReadPassword(fd)
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return fmt.Errorf("reading key: %w", err)
		}
		key, err := solana.PrivateKeyFromBase58(strings.TrimSpace(string(raw)))
		if err != nil {
			return fmt.Errorf("invalid private key: %w", err)
		}
		pass, err := readPassphrase("New passphrase: ")
		if err != nil {
			return err
		}
		if err := a.ImportKey(args[0], key, pass); err != nil {
			return err
		}
		fmt.Printf("%s\t%s\n", args[0], key.PublicKey())
		return nil
	},
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "View operation history",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		a, _, err := newApp(cmd.Context(), "GetHistory")
		if err != nil {
			return err
		}
		defer closeApp(cmd.Context(), a)

		ops, err := a.History(cmd.Context(), limit)
		if err != nil {
			return err
		}
		if len(ops) == 0 {
			fmt.Println("No operations recorded.")
			return nil
		}
		for _, op := range ops {
			duration := ""
			if op.FinishedAt != nil {
				duration = op.FinishedAt.Sub(op.StartedAt).Round(time.Millisecond).String()
			}
			fmt.Printf("#%d  %-18s  %s  %-8s  %-8s  %s\n",
				op.ID, op.Operation, op.StartedAt.Format("2006-01-02 15:04:05"), op.Status, duration, op.Parameters)
		}
		return nil
	},
}

func init() {
	configInitCmd.Flags().String("program-id", "", "Program identity (random when empty)")
	configInitCmd.Flags().String("amm-program-id", "", "AMM program identity (random when empty)")
	configInitCmd.Flags().String("market-program-id", "", "Market program identity (random when empty)")
	configCmd.AddCommand(configInitCmd, configListCmd)

	keysCmd.AddCommand(keysNewCmd, keysImportCmd, keysListCmd)

	historyCmd.Flags().IntP("limit", "n", 50, "Maximum number of operations to show")

	rootCmd.AddCommand(configCmd, keysCmd, historyCmd)
	rootCmd.AddCommand(ledgerCmd, poolCmd, depositCmd, scheduleCmd, swapCmd, positionCmd, authorityCmd, keeperCmd)
}
