package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/urfave/cli/v3"
	"golang.org/x/term"

	"github.com/NebulaNode/nebula/internal/lib/journal"
	"github.com/NebulaNode/nebula/internal/lib/misc"
	"github.com/NebulaNode/nebula/internal/lib/nebula"
	"github.com/NebulaNode/nebula/internal/lib/session"
	"github.com/NebulaNode/nebula/internal/lib/sol"
)

var logLevel = new(slog.LevelVar) // Info by default

func initApp() *NebulaApp {
	log.SetFlags(0)
	// Are we running on something where output is a tty - so we're being run as CLI vs as a daemon
	logger := misc.NewLogger(os.Stdout, term.IsTerminal(int(os.Stdout.Fd())), logLevel)
	slog.SetDefault(logger)
	if os.Getenv("DEBUG") == "1" {
		logLevel.Set(slog.LevelDebug)
	}

	misc.LoadEnvSettings(logger)

	// We initialize our wrapper instance first, so we can call its methods in the 'Before' lambda func
	// in initialization of cli App instance.
	appConfig := &NebulaApp{logger: logger}

	appConfig.cliCmd = &cli.Command{
		Name:    "nebula",
		Usage:   "Native SOL staking to the Nebula Node validator - CLI and API daemon",
		Version: misc.GetVersionInfo(),
		Before: func(ctx context.Context, cmd *cli.Command) error {
			// This is further bootstrap of the 'app' but within context of 'cli' helper as it will
			// have access to flags and options (network to use for eg) already set.
			return appConfig.initClients(ctx, cmd)
		},
		After: func(ctx context.Context, cmd *cli.Command) error {
			appConfig.close()
			return nil
		},
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "envfile",
				Usage:   "env file to load",
				Sources: cli.EnvVars("NEBULA_ENVFILE"),
				Aliases: []string{"e"},
			},
			&cli.StringFlag{
				Name:    "network",
				Usage:   "Solana cluster to use",
				Value:   "mainnet-beta",
				Aliases: []string{"n"},
				Sources: cli.EnvVars("SOL_NETWORK"),
			},
			&cli.StringFlag{
				Name:    "journal",
				Usage:   "Path of the sqlite request journal. Defaults to journal.db in the nebula config directory",
				Sources: cli.EnvVars("NEBULA_JOURNAL"),
			},
			&cli.StringFlag{
				Name:    "redis",
				Usage:   "redis url used to share in-flight request claims between daemons, ie: redis://localhost:6379/0",
				Sources: cli.EnvVars("NEBULA_REDIS_URL"),
			},
		},
		Commands: []*cli.Command{
			GetDaemonCmdOpts(),
			GetWalletCmdOpts(),
			GetStakeCmdOpts(),
			GetUnstakeCmdOpts(),
			GetValidatorCmdOpts(),
			GetSecurityCmdOpts(),
			GetToolsCmdOpts(),
		},
	}
	return appConfig
}

type NebulaApp struct {
	cliCmd    *cli.Command
	logger    *slog.Logger
	signer    sol.MultipleWalletSigner
	solClient *sol.Client
	cache     *redis.Client
	journal   journal.Journal
	profile   nebula.Profile
	nebula    *nebula.Nebula
}

// initClients validates the cluster, connects to its rpc endpoint and builds the staking service along with
// its signer, journal and in-flight guard.
func (ac *NebulaApp) initClients(ctx context.Context, cmd *cli.Command) error {
	network := cmd.String("network")

	if envfile := cmd.String("envfile"); envfile != "" {
		err := loadNamedEnvFile(ac.logger, envfile)
		if err != nil {
			return err
		}
	}
	if !sol.IsKnownNetwork(network) {
		return fmt.Errorf("unknown network:%s", network)
	}

	// Now load .env.{network} overrides -ie: .env.devnet containing test keypairs
	misc.LoadEnvForNetwork(ac.logger, network)

	profile, err := LoadProfile()
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("unable to load validator profile: %w", err)
	}
	if err = setUintFromEnv(&profile.RentReserveLamports, "NEBULA_RENT_RESERVE"); err != nil {
		return err
	}
	ac.profile = profile.WithDefaults()

	solClient, err := sol.GetRPCClient(ctx, ac.logger, sol.GetNetworkConfig(network))
	if err != nil {
		return err
	}
	ac.solClient = solClient

	// This will load keys from the environment - and handles all 'local' signing for the app
	ac.signer, err = sol.NewLocalKeyStore(ac.logger)
	if err != nil {
		return err
	}

	journalPath := cmd.String("journal")
	if journalPath == "" {
		if journalPath, err = DefaultJournalPath(); err != nil {
			return err
		}
	}
	jrnl, err := journal.Open(journalPath)
	if err != nil {
		return fmt.Errorf("unable to open journal %s: %w", journalPath, err)
	}
	ac.journal = jrnl

	var guard session.Guard = session.NewMemoryGuard()
	if redisURL := cmd.String("redis"); redisURL != "" {
		ac.cache, err = session.NewRedisClient(ctx, redisURL)
		if err != nil {
			return err
		}
		guard = session.NewRedisGuard(ac.logger, ac.cache, session.DefaultTTL)
	}

	ac.nebula, err = nebula.New(ac.logger, ac.solClient, ac.signer, guard, ac.journal, ac.profile)
	return err
}

func (ac *NebulaApp) close() {
	if ac.journal != nil {
		_ = ac.journal.Close()
	}
	if ac.cache != nil {
		_ = ac.cache.Close()
	}
}

func setUintFromEnv(val *uint64, envName string) error {
	if strVal := os.Getenv(envName); strVal != "" {
		intVal, err := strconv.ParseUint(strVal, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid %s value %q: %w", envName, strVal, err)
		}
		*val = intVal
	}
	return nil
}

func loadNamedEnvFile(logger *slog.Logger, envFile string) error {
	misc.Infof(logger, "loading env file:%s", envFile)
	return godotenv.Load(envFile)
}
