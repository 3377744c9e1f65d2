package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/manifoldco/promptui"
	"github.com/robfig/cron/v3"
	"github.com/urfave/cli/v3"

	"github.com/NebulaNode/nebula/internal/lib/nebula"
	"github.com/NebulaNode/nebula/internal/lib/sol"
	"github.com/NebulaNode/nebula/internal/lib/stake"
)

func GetValidatorCmdOpts() *cli.Command {
	return &cli.Command{
		Name:    "validator",
		Aliases: []string{"v"},
		Usage:   "Validator profile and live state",
		Commands: []*cli.Command{
			{
				Name:   "init",
				Usage:  "Create or update the local validator profile",
				Action: InitValidator,
			},
			{
				Name:   "info",
				Usage:  "Display the validator profile along with its state from the chain",
				Action: ValidatorInfo,
			},
		},
	}
}

func GetSecurityCmdOpts() *cli.Command {
	return &cli.Command{
		Name:  "security",
		Usage: "How staking through this tool keeps your SOL under your control",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			fmt.Println(nebula.PanelSecurity.Config().Title)
			fmt.Println()
			for _, paragraph := range nebula.SecurityText {
				fmt.Println(paragraph)
				fmt.Println()
			}
			fmt.Println("Validator Identity Public Key:", App.profile.Identity)
			fmt.Println("Validator Vote Public Key:", App.profile.VoteAccount)
			return nil
		},
	}
}

func GetToolsCmdOpts() *cli.Command {
	return &cli.Command{
		Name:  "tools",
		Usage: "Additional staking tools",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			fmt.Println(nebula.PanelTools.Config().Title)
			fmt.Println(nebula.ToolsEmptyMessage)
			fmt.Println(nebula.ToolsHint)
			return nil
		},
	}
}

func InitValidator(ctx context.Context, cmd *cli.Command) error {
	profile, err := LoadProfile()
	if err == nil {
		result, _ := yesNo("A validator profile already exists, do you want to replace it")
		if result != "y" {
			return nil
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return cli.Exit(err, 1)
	}
	profile, err = DefineProfile(profile)
	if err != nil {
		return err
	}
	return SaveProfile(profile)
}

func ValidatorInfo(ctx context.Context, command *cli.Command) error {
	if err := App.nebula.LoadState(ctx); err != nil {
		return err
	}
	profile := App.nebula.Profile()
	state := App.nebula.State()

	fmt.Println("Name:", profile.Name)
	fmt.Println("Website:", profile.Website)
	fmt.Println("Identity:", profile.Identity)
	fmt.Println("Vote Account:", profile.VoteAccount)
	fmt.Println("Rent Reserve:", stake.FormatSOL(profile.RentReserveLamports), "SOL")
	if state.Vote == nil {
		fmt.Println("Vote account not found on", App.solClient.Network)
	} else {
		fmt.Println("Activated Stake:", stake.FormatSOLFixed(state.Vote.ActivatedStake, 2), "SOL")
		fmt.Printf("Commission: %d%%\n", state.Vote.Commission)
		fmt.Println("Last Vote:", state.Vote.LastVote)
		fmt.Println("Delinquent:", state.Vote.Delinquent)
	}
	fmt.Printf("Epoch: %d (%.1f%% complete)\n", state.Epoch.Epoch, state.Epoch.Progress()*100)
	fmt.Println("Next Epoch:", state.NextEpoch.Local().Format(time.DateTime))
	return nil
}

// DefineProfile walks through each profile setting, starting from current.
func DefineProfile(current nebula.Profile) (nebula.Profile, error) {
	var (
		profile = current.WithDefaults()
		err     error
	)
	if profile.Name, err = getString("Validator name", profile.Name, nil); err != nil {
		return profile, err
	}
	if profile.Identity, err = getPubkey("Validator identity public key", profile.Identity); err != nil {
		return profile, err
	}
	if profile.VoteAccount, err = getPubkey("Validator vote account public key", profile.VoteAccount); err != nil {
		return profile, err
	}
	if profile.Website, err = getString("Website", profile.Website, nil); err != nil {
		return profile, err
	}
	reserve, err := getString("SOL held back for rent on a wallet's first stake account",
		stake.FormatSOL(profile.RentReserveLamports), func(s string) error {
			_, err := stake.ParseSOL(s)
			return err
		})
	if err != nil {
		return profile, err
	}
	profile.RentReserveLamports, _ = stake.ParseSOL(reserve)

	wallets, err := getString("Wallets the daemon keeps refreshed (comma separated, blank for none)",
		strings.Join(profile.Wallets, ","), validWalletList)
	if err != nil {
		return profile, err
	}
	profile.Wallets = splitWallets(wallets)

	profile.RefreshSchedule, err = getString("Refresh schedule (cron spec, ie: @every 1m)", profile.RefreshSchedule,
		func(s string) error {
			_, err := cron.ParseStandard(s)
			return err
		})
	return profile, err
}

func splitWallets(list string) []string {
	var wallets []string
	for _, wallet := range strings.Split(list, ",") {
		if wallet = strings.TrimSpace(wallet); wallet != "" {
			wallets = append(wallets, wallet)
		}
	}
	return wallets
}

func validWalletList(list string) error {
	for _, wallet := range splitWallets(list) {
		if _, err := solana.PublicKeyFromBase58(wallet); err != nil {
			return fmt.Errorf("invalid wallet %s: %w", sol.TruncateAddress(wallet), err)
		}
	}
	return nil
}

func getString(prompt string, defVal string, validate promptui.ValidateFunc) (string, error) {
	return (&promptui.Prompt{
		Label:    prompt,
		Default:  defVal,
		Validate: validate,
	}).Run()
}

func getPubkey(prompt string, defVal string) (string, error) {
	return getString(prompt, defVal, func(s string) error {
		_, err := solana.PublicKeyFromBase58(s)
		return err
	})
}

func yesNo(prompt string) (string, error) {
	return (&promptui.Prompt{
		Label:     prompt,
		IsConfirm: true,
	}).Run()
}
