package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/spf13/cobra"

	"dca-go/internal/app"
	"dca-go/internal/dca"
	"dca-go/internal/keeper"
)

var ledgerCmd = &cobra.Command{
	Use:   "ledger",
	Short: "Inspect and fund the local ledger",
}

var ledgerAirdropCmd = &cobra.Command{
	Use:   "airdrop ADDRESS LAMPORTS",
	Short: "Credit native balance to an address",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		to, err := keyArg(args[0], "address")
		if err != nil {
			return err
		}
		amount, err := parseAmount(args[1])
		if err != nil {
			return err
		}

		a, _, err := newApp(cmd.Context(), "Airdrop")
		if err != nil {
			return err
		}
		defer closeApp(cmd.Context(), a)

		return a.Airdrop(cmd.Context(), to, amount)
	},
}

var ledgerMintCmd = &cobra.Command{
	Use:   "mint MINT OWNER AMOUNT",
	Short: "Mint tokens into the owner's associated holding",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		mint, err := keyArg(args[0], "mint")
		if err != nil {
			return err
		}
		owner, err := keyArg(args[1], "owner")
		if err != nil {
			return err
		}
		amount, err := parseAmount(args[2])
		if err != nil {
			return err
		}

		a, _, err := newApp(cmd.Context(), "Mint")
		if err != nil {
			return err
		}
		defer closeApp(cmd.Context(), a)

		addr, err := a.Mint(cmd.Context(), mint, owner, amount)
		if err != nil {
			return err
		}
		fmt.Println(addr)
		return nil
	},
}

var ledgerBalanceCmd = &cobra.Command{
	Use:   "balance OWNER",
	Short: "Show native balance and token holdings",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		owner, err := keyArg(args[0], "owner")
		if err != nil {
			return err
		}

		a, _, err := newApp(cmd.Context(), "Balance")
		if err != nil {
			return err
		}
		defer closeApp(cmd.Context(), a)

		native, accounts, err := a.Balance(cmd.Context(), owner)
		if err != nil {
			return err
		}
		fmt.Printf("native  %d\n", native)
		for _, acc := range accounts {
			frozen := ""
			if acc.Frozen {
				frozen = "  frozen"
			}
			fmt.Printf("%s  %d%s\n", acc.Mint, acc.Amount, frozen)
		}
		return nil
	},
}

var ledgerFreezeCmd = &cobra.Command{
	Use:   "freeze ACCOUNT",
	Short: "Freeze or thaw a token account",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		addr, err := keyArg(args[0], "account")
		if err != nil {
			return err
		}
		thaw, _ := cmd.Flags().GetBool("thaw")

		a, _, err := newApp(cmd.Context(), "Freeze")
		if err != nil {
			return err
		}
		defer closeApp(cmd.Context(), a)

		return a.Freeze(cmd.Context(), addr, !thaw)
	},
}

var ledgerRestoreCmd = &cobra.Command{
	Use:   "restore",
	Short: "Download the latest ledger snapshot from an archive",
	RunE: func(cmd *cobra.Command, args []string) error {
		name, _ := cmd.Flags().GetString("archive")
		out, _ := cmd.Flags().GetString("out")
		if name == "" || out == "" {
			return fmt.Errorf("--archive and --out are required")
		}

		a, _, err := newApp(cmd.Context(), "Restore")
		if err != nil {
			return err
		}
		defer closeApp(cmd.Context(), a)

		if err := a.RestoreSnapshot(cmd.Context(), name, out); err != nil {
			return err
		}
		fmt.Printf("Snapshot written to %s\n", out)
		return nil
	},
}

var ledgerSchemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Print the ledger database schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, _, err := newApp(cmd.Context(), "Schema")
		if err != nil {
			return err
		}
		defer closeApp(cmd.Context(), a)

		schema, err := a.Database().Schema(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Println(schema)
		return nil
	},
}

var poolCmd = &cobra.Command{
	Use:   "pool",
	Short: "Manage exchange pools",
}

var poolCreateCmd = &cobra.Command{
	Use:   "create COIN_MINT PC_MINT COIN_AMOUNT PC_AMOUNT",
	Short: "Create and seed a pool",
	Args:  cobra.ExactArgs(4),
	RunE: func(cmd *cobra.Command, args []string) error {
		coin, err := keyArg(args[0], "coin mint")
		if err != nil {
			return err
		}
		pc, err := keyArg(args[1], "pc mint")
		if err != nil {
			return err
		}
		coinAmount, err := parseAmount(args[2])
		if err != nil {
			return err
		}
		pcAmount, err := parseAmount(args[3])
		if err != nil {
			return err
		}

		a, paths, err := newApp(cmd.Context(), "CreatePool")
		if err != nil {
			return err
		}
		defer closeApp(cmd.Context(), a)

		pool, err := a.CreatePool(cmd.Context(), coin, pc, coinAmount, pcAmount)
		if err != nil {
			return err
		}
		if err := paths.SaveConfig(a.Config()); err != nil {
			return fmt.Errorf("saving config: %w", err)
		}
		fmt.Printf("Pool %s\n", pool.Route.AMM.Pool)
		return nil
	},
}

var poolQuoteCmd = &cobra.Command{
	Use:   "quote POOL INPUT_MINT AMOUNT",
	Short: "Price a swap without executing it",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		pool, err := keyArg(args[0], "pool")
		if err != nil {
			return err
		}
		input, err := keyArg(args[1], "input mint")
		if err != nil {
			return err
		}
		amount, err := parseAmount(args[2])
		if err != nil {
			return err
		}

		a, _, err := newApp(cmd.Context(), "Quote")
		if err != nil {
			return err
		}
		defer closeApp(cmd.Context(), a)

		q, err := a.Quote(cmd.Context(), pool, input, amount)
		if err != nil {
			return err
		}
		fmt.Printf("in       %d\n", q.AmountIn)
		fmt.Printf("out      %d\n", q.AmountOut)
		fmt.Printf("fee      %d\n", q.Fee)
		fmt.Printf("price    %s\n", q.Price.StringFixed(9))
		fmt.Printf("impact   %s%%\n", q.PriceImpact.StringFixed(4))
		return nil
	},
}

var depositCmd = &cobra.Command{
	Use:   "deposit",
	Short: "Move funds into a position's custody",
}

func runDeposit(native bool) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		mint, err := keyArg(args[0], "mint")
		if err != nil {
			return err
		}
		amount, err := parseAmount(args[1])
		if err != nil {
			return err
		}
		mode, err := parseMode(cmd)
		if err != nil {
			return err
		}
		position := solana.NewWallet().PublicKey()
		if v, _ := cmd.Flags().GetString("position"); v != "" {
			if position, err = keyArg(v, "position"); err != nil {
				return err
			}
		}

		operation := "DepositToken"
		if native {
			operation = "DepositNative"
		}
		a, _, err := newApp(cmd.Context(), operation)
		if err != nil {
			return err
		}
		defer closeApp(cmd.Context(), a)

		owner, err := unlockOwner(cmd, a)
		if err != nil {
			return err
		}
		if native {
			err = a.DepositNative(cmd.Context(), owner, position, mint, amount, mode)
		} else {
			err = a.DepositToken(cmd.Context(), owner, position, mint, amount, mode)
		}
		if err != nil {
			return err
		}
		fmt.Printf("Position %s\n", position)
		return nil
	}
}

var depositNativeCmd = &cobra.Command{
	Use:   "native TARGET_MINT LAMPORTS",
	Short: "Deposit native currency to buy TARGET_MINT",
	Args:  cobra.ExactArgs(2),
	RunE:  runDeposit(true),
}

var depositTokenCmd = &cobra.Command{
	Use:   "token MINT AMOUNT",
	Short: "Deposit tokens to sell for native currency",
	Args:  cobra.ExactArgs(2),
	RunE:  runDeposit(false),
}

var scheduleCmd = &cobra.Command{
	Use:   "schedule POSITION",
	Short: "Set a position's schedule and activate it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		position, err := keyArg(args[0], "position")
		if err != nil {
			return err
		}
		step, _ := cmd.Flags().GetUint64("step")
		interval, _ := cmd.Flags().GetDuration("interval")
		minOut, _ := cmd.Flags().GetUint64("min-out")
		start := time.Now()
		if v, _ := cmd.Flags().GetString("start"); v != "" {
			if start, err = time.Parse(time.RFC3339, v); err != nil {
				return fmt.Errorf("invalid --start: %w", err)
			}
		}

		a, _, err := newApp(cmd.Context(), "InitializeSchedule")
		if err != nil {
			return err
		}
		defer closeApp(cmd.Context(), a)

		owner, err := unlockOwner(cmd, a)
		if err != nil {
			return err
		}
		return a.InitializeSchedule(cmd.Context(), owner, position, app.Schedule{
			StartTime:        uint64(start.Unix()),
			StepAmount:       step,
			StepInterval:     uint64(interval / time.Second),
			MinimumAmountOut: minOut,
		})
	},
}

var swapCmd = &cobra.Command{
	Use:   "swap POSITION",
	Short: "Execute one step of a position",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		position, err := keyArg(args[0], "position")
		if err != nil {
			return err
		}
		amount, _ := cmd.Flags().GetUint64("amount")
		minOut, _ := cmd.Flags().GetUint64("min-out")

		a, _, err := newApp(cmd.Context(), "ExecuteSwap")
		if err != nil {
			return err
		}
		defer closeApp(cmd.Context(), a)

		owner, err := unlockOwner(cmd, a)
		if err != nil {
			return err
		}
		res, err := a.Swap(cmd.Context(), owner, position, amount, minOut)
		if err != nil {
			return err
		}
		fmt.Printf("in %d  out %d  balance %d\n", res.AmountIn, res.AmountOut, res.DestinationBalance)
		return nil
	},
}

var positionCmd = &cobra.Command{
	Use:   "position",
	Short: "Inspect positions",
}

var positionShowCmd = &cobra.Command{
	Use:   "show POSITION",
	Short: "Show a position with its custody",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := keyArg(args[0], "position")
		if err != nil {
			return err
		}

		a, _, err := newApp(cmd.Context(), "Position")
		if err != nil {
			return err
		}
		defer closeApp(cmd.Context(), a)

		v, err := a.Position(cmd.Context(), id)
		if err != nil {
			return err
		}
		p := v.Position
		fmt.Printf("Position:    %s\n", v.ID)
		fmt.Printf("Owner:       %s\n", p.Owner)
		fmt.Printf("Asset in:    %s\n", p.AssetIn)
		fmt.Printf("Direction:   %v\n", p.Direction)
		fmt.Printf("Active:      %v\n", p.Active)
		fmt.Printf("Total:       %d\n", p.TotalAmount)
		fmt.Printf("Custody:     %d\n", v.Custody)
		fmt.Printf("Step:        %d every %s\n", p.StepAmount, time.Duration(p.StepInterval)*time.Second)
		fmt.Printf("Start:       %s\n", formatUnix(p.StartTime))
		fmt.Printf("Last step:   %s\n", formatUnix(p.LastExecution))
		fmt.Printf("Min out:     %d\n", p.MinimumAmountOut)
		fmt.Printf("Vault:       %s (bump %d)\n", v.Vault.Address, v.Vault.Bump)
		fmt.Printf("Holding:     %s\n", v.Holding)
		return nil
	},
}

var positionListCmd = &cobra.Command{
	Use:   "list",
	Short: "List positions",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, _, err := newApp(cmd.Context(), "Positions")
		if err != nil {
			return err
		}
		defer closeApp(cmd.Context(), a)

		entries, err := a.Positions(cmd.Context())
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			fmt.Println("No positions.")
			return nil
		}
		for _, e := range entries {
			state := "inactive"
			if e.Position.Active {
				state = "active"
			}
			fmt.Printf("%s  %-8s  %v  total=%d  step=%d\n",
				e.ID, state, e.Position.Direction, e.Position.TotalAmount, e.Position.StepAmount)
		}
		return nil
	},
}

var authorityCmd = &cobra.Command{
	Use:   "authority OWNER POSITION",
	Short: "Derive a position's vault authority",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		owner, err := keyArg(args[0], "owner")
		if err != nil {
			return err
		}
		position, err := keyArg(args[1], "position")
		if err != nil {
			return err
		}

		a, _, err := newApp(cmd.Context(), "Authority")
		if err != nil {
			return err
		}
		defer closeApp(cmd.Context(), a)

		v, err := a.Authority(owner, position)
		if err != nil {
			return err
		}
		fmt.Printf("%s  bump %d\n", v.Address, v.Bump)
		return nil
	},
}

var keeperCmd = &cobra.Command{
	Use:   "keeper",
	Short: "Run the scheduled step executor",
	RunE: func(cmd *cobra.Command, args []string) error {
		once, _ := cmd.Flags().GetBool("once")

		a, _, err := newApp(cmd.Context(), "Keeper")
		if err != nil {
			return err
		}
		defer closeApp(cmd.Context(), a)

		pass, err := readPassphrase("Keystore passphrase: ")
		if err != nil {
			return err
		}
		if !once {
			fmt.Fprintf(os.Stderr, "Keeper running on %q\n", a.Config().Keeper.Cron)
			return a.RunKeeper(cmd.Context(), pass)
		}

		report, err := a.KeeperOnce(cmd.Context(), pass)
		if err != nil {
			return err
		}
		for _, o := range report.Outcomes {
			line := fmt.Sprintf("%s  %-9s", o.Position, o.Status)
			if o.Status == keeper.StatusExecuted {
				line += fmt.Sprintf("  in %d  out %d", o.AmountIn, o.AmountOut)
			}
			if o.Err != nil {
				line += "  " + o.Err.Error()
			}
			fmt.Println(line)
		}
		fmt.Printf("run %s: %d executed, %d failed\n",
			report.RunID, report.Count(keeper.StatusExecuted), report.Count(keeper.StatusFailed))
		return nil
	},
}

func parseAmount(s string) (uint64, error) {
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	return v, nil
}

func parseMode(cmd *cobra.Command) (dca.DepositMode, error) {
	v, _ := cmd.Flags().GetString("mode")
	switch strings.ToLower(v) {
	case "", "reset":
		return dca.DepositModeReset, nil
	case "accumulate":
		return dca.DepositModeAccumulate, nil
	default:
		return 0, fmt.Errorf("invalid --mode %q: want reset or accumulate", v)
	}
}

func formatUnix(ts uint64) string {
	if ts == 0 {
		return "-"
	}
	return time.Unix(int64(ts), 0).UTC().Format(time.RFC3339)
}

func init() {
	ledgerRestoreCmd.Flags().String("archive", "", "Archive name")
	ledgerRestoreCmd.Flags().String("out", "", "Destination file")
	ledgerFreezeCmd.Flags().Bool("thaw", false, "Clear the frozen flag instead")
	ledgerCmd.AddCommand(ledgerAirdropCmd, ledgerMintCmd, ledgerBalanceCmd, ledgerFreezeCmd, ledgerRestoreCmd, ledgerSchemaCmd)

	poolCmd.AddCommand(poolCreateCmd, poolQuoteCmd)

	for _, c := range []*cobra.Command{depositNativeCmd, depositTokenCmd} {
		c.Flags().String("owner", "", "Owner key name")
		c.Flags().String("position", "", "Position identity (new when empty)")
		c.Flags().String("mode", "reset", "reset or accumulate")
	}
	depositCmd.AddCommand(depositNativeCmd, depositTokenCmd)

	scheduleCmd.Flags().String("owner", "", "Owner key name")
	scheduleCmd.Flags().Uint64("step", 0, "Amount converted per step")
	scheduleCmd.Flags().Duration("interval", 24*time.Hour, "Time between steps")
	scheduleCmd.Flags().String("start", "", "First step time, RFC3339 (now when empty)")
	scheduleCmd.Flags().Uint64("min-out", 0, "Minimum output per step")

	swapCmd.Flags().String("owner", "", "Owner key name")
	swapCmd.Flags().Uint64("amount", 0, "Input amount (scheduled step when 0)")
	swapCmd.Flags().Uint64("min-out", 0, "Minimum output (scheduled minimum when 0)")

	positionCmd.AddCommand(positionShowCmd, positionListCmd)

	keeperCmd.Flags().Bool("once", false, "Run one pass and exit")
}
