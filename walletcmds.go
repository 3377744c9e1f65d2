package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/NebulaNode/nebula/internal/lib/sol"
	"github.com/NebulaNode/nebula/internal/lib/stake"
)

func GetWalletCmdOpts() *cli.Command {
	return &cli.Command{
		Name:    "wallet",
		Aliases: []string{"w"},
		Usage:   "Inspect wallets and their stake with the validator",
		Commands: []*cli.Command{
			{
				Name:   "list",
				Usage:  "List wallets that local keys are loaded for",
				Action: WalletList,
			},
			{
				Name:      "balance",
				Usage:     "Show balance, stake accounts and HALF/MAX presets for a wallet",
				ArgsUsage: "[address]",
				Action:    WalletBalance,
			},
			{
				Name:      "history",
				Usage:     "Show recent stake / unstake requests made from this node for a wallet",
				ArgsUsage: "[address]",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Maximum number of entries to show",
						Value: 20,
					},
				},
				Action: WalletHistory,
			},
		},
	}
}

// walletArg resolves the wallet to operate on: explicit value first, then the only loaded key if there is
// exactly one.
func walletArg(explicit string) (string, error) {
	if explicit != "" {
		return explicit, nil
	}
	accounts := App.signer.Accounts()
	switch len(accounts) {
	case 0:
		return "", stake.ErrWalletNotProvided
	case 1:
		return accounts[0], nil
	}
	return "", errors.New("multiple wallets loaded, specify which one to use")
}

func WalletList(ctx context.Context, command *cli.Command) error {
	out := new(strings.Builder)
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "Wallet\tBalance\tStaked\tAvailable\t")
	for _, account := range App.signer.Accounts() {
		summary, err := App.nebula.RefreshWallet(ctx, account)
		if err != nil {
			return err
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t\n", account, stake.FormatSOLFixed(summary.Balance, 2),
			stake.FormatSOLFixed(summary.TotalStaked, 2), stake.FormatSOLFixed(summary.Available, 2))
	}
	tw.Flush()
	fmt.Print(out.String())
	return nil
}

func WalletBalance(ctx context.Context, command *cli.Command) error {
	owner, err := walletArg(command.Args().First())
	if err != nil {
		return err
	}
	summary, err := App.nebula.RefreshWallet(ctx, owner)
	if err != nil {
		return err
	}
	fmt.Println("Wallet:", summary.Address)
	fmt.Println("Balance:", stake.FormatSOL(summary.Balance), "SOL")
	fmt.Println("Available Balance:", stake.FormatSOLFixed(summary.Available, 2), "SOL")
	fmt.Println("Total Staked:", stake.FormatSOLFixed(summary.TotalStaked, 2), "SOL")
	fmt.Printf("Stake presets: HALF %s / MAX %s, Unstake presets: HALF %s / MAX %s\n",
		stake.FormatSOL(summary.Presets.HalfStake), stake.FormatSOL(summary.Presets.MaxStake),
		stake.FormatSOL(summary.Presets.HalfUnstake), stake.FormatSOL(summary.Presets.MaxUnstake))
	if !summary.NextEpoch.IsZero() {
		fmt.Println("Next Epoch:", summary.NextEpoch.Local().Format(time.DateTime))
	}
	if len(summary.Accounts) == 0 {
		fmt.Println("No stake accounts delegated to", App.profile.Name)
		return nil
	}
	out := new(strings.Builder)
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "Stake Account\tStaked\tActive\t")
	for _, account := range summary.Accounts {
		fmt.Fprintf(tw, "%s\t%s\t%t\t\n", account.Pubkey, stake.FormatSOL(account.Lamports), account.IsActive)
	}
	tw.Flush()
	fmt.Print(out.String())
	return nil
}

func WalletHistory(ctx context.Context, command *cli.Command) error {
	owner, err := walletArg(command.Args().First())
	if err != nil {
		return err
	}
	entries, err := App.nebula.History(ctx, owner, int(command.Int("limit")))
	if err != nil {
		return err
	}
	out := new(strings.Builder)
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "When\tAction\tAmount\tState\tStake Account\tSignature / Error\t")
	for _, entry := range entries {
		detail := entry.Signature
		if entry.Error != "" {
			detail = entry.Error
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t\n", entry.CreatedAt.Local().Format(time.DateTime), entry.Action,
			stake.FormatSOL(entry.Amount), entry.State, sol.TruncateAddress(entry.Target), detail)
	}
	tw.Flush()
	fmt.Print(out.String())
	return nil
}
