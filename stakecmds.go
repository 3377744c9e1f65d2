package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/manifoldco/promptui"
	"github.com/urfave/cli/v3"

	"github.com/NebulaNode/nebula/internal/lib/misc"
	"github.com/NebulaNode/nebula/internal/lib/stake"
)

func actionFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:  "wallet",
			Usage: "Wallet to use. Optional when keys for only one wallet are loaded",
		},
		&cli.BoolFlag{
			Name:  "yes",
			Usage: "Don't ask for confirmation",
		},
		&cli.BoolFlag{
			Name:  "dryrun",
			Usage: "Only show what would be done",
		},
	}
}

func GetStakeCmdOpts() *cli.Command {
	return &cli.Command{
		Name:      "stake",
		Usage:     "Stake SOL to the validator from a new stake account. Accepts an amount, HALF or MAX",
		ArgsUsage: "<SOL|HALF|MAX>",
		Flags:     actionFlags(),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return runAction(ctx, cmd, stake.ActionStake)
		},
	}
}

func GetUnstakeCmdOpts() *cli.Command {
	return &cli.Command{
		Name:      "unstake",
		Usage:     "Deactivate the stake account best matching the amount. Accepts an amount, HALF or MAX",
		ArgsUsage: "<SOL|HALF|MAX>",
		Flags:     actionFlags(),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return runAction(ctx, cmd, stake.ActionUnstake)
		},
	}
}

// resolveAmount turns the amount argument into lamports, expanding the HALF / MAX presets for action.
func resolveAmount(arg string, action stake.Action, presets stake.Presets) (uint64, error) {
	switch arg {
	case "HALF", "half":
		if action == stake.ActionStake {
			return presets.HalfStake, nil
		}
		return presets.HalfUnstake, nil
	case "MAX", "max":
		if action == stake.ActionStake {
			return presets.MaxStake, nil
		}
		return presets.MaxUnstake, nil
	}
	return stake.ParseSOL(arg)
}

func runAction(ctx context.Context, cmd *cli.Command, action stake.Action) error {
	if cmd.Args().Len() != 1 {
		return cli.Exit(fmt.Sprintf("specify the amount to %s", action), 1)
	}
	owner, err := walletArg(cmd.String("wallet"))
	if err != nil {
		return cli.Exit(err, 1)
	}
	summary, err := App.nebula.RefreshWallet(ctx, owner)
	if err != nil {
		return err
	}
	amount, err := resolveAmount(cmd.Args().First(), action, summary.Presets)
	if err != nil {
		return cli.Exit(err, 1)
	}
	decision, err := App.nebula.Quote(ctx, owner, action, amount)
	if err != nil {
		if errors.Is(err, stake.ErrInvalidAmount) || errors.Is(err, stake.ErrNotFound) {
			return cli.Exit(err, 1)
		}
		return err
	}
	fmt.Println("Will", decision.String())
	if action == stake.ActionUnstake && decision.TargetLamports != decision.AmountLamports {
		fmt.Printf("Note: the whole stake account (%s SOL) is deactivated, not just the requested amount\n",
			stake.FormatSOL(decision.TargetLamports))
	}
	if cmd.Bool("dryrun") {
		return nil
	}
	if !cmd.Bool("yes") {
		if _, err := (&promptui.Prompt{Label: "Submit transaction", IsConfirm: true}).Run(); err != nil {
			if errors.Is(err, promptui.ErrAbort) {
				return nil
			}
			return err
		}
	}
	result, err := App.nebula.Execute(ctx, owner, action, amount)
	if err != nil {
		return executeError(action, result.ID, err)
	}
	switch action {
	case stake.ActionStake:
		misc.Infof(App.logger, "Successfully staked %s SOL in %s, signature:%s", stake.FormatSOL(decision.AmountLamports),
			result.StakeAccount, result.Signature)
	case stake.ActionUnstake:
		misc.Infof(App.logger, "Successfully deactivated %s, funds are withdrawable after the current epoch. signature:%s",
			result.StakeAccount, result.Signature)
	}
	return nil
}

// executeError names the journal entry of a failed request. Requests rejected before being journaled have none.
func executeError(action stake.Action, journalID string, err error) error {
	if journalID == "" {
		return fmt.Errorf("%s failed: %w", action, err)
	}
	return fmt.Errorf("%s failed (journal id %s): %w", action, journalID, err)
}
