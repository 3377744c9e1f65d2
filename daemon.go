package main

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mailgun/holster/v4/syncutil"
	"github.com/robfig/cron/v3"

	"github.com/NebulaNode/nebula/internal/api"
	"github.com/NebulaNode/nebula/internal/lib/misc"
	"github.com/NebulaNode/nebula/internal/lib/nebula"
	"github.com/NebulaNode/nebula/internal/lib/sol"
)

// Daemon keeps validator and watched wallet state fresh on a cron schedule while serving the HTTP API.
type Daemon struct {
	logger   *slog.Logger
	nebula   *nebula.Nebula
	server   *api.Server
	listen   string
	schedule cron.Schedule
}

func newDaemon(listen string) (*Daemon, error) {
	profile := App.nebula.Profile()
	schedule, err := parseSchedule(profile.RefreshSchedule)
	if err != nil {
		return nil, err
	}
	return &Daemon{
		logger:   App.logger,
		nebula:   App.nebula,
		listen:   listen,
		schedule: schedule,
		server: api.New(api.Deps{
			Service:   App.nebula,
			Logger:    App.logger,
			Cache:     App.cache,
			RPCHealth: App.solClient.Health,
			Version:   misc.GetVersionInfo(),
		}),
	}, nil
}

// parseSchedule accepts standard 5 field cron specs as well as descriptors like @every 1m or @hourly.
func parseSchedule(spec string) (cron.Schedule, error) {
	schedule, err := cron.ParseStandard(spec)
	if err != nil {
		return nil, fmt.Errorf("invalid refresh schedule %q: %w", spec, err)
	}
	return schedule, nil
}

func durationToNextRefresh(schedule cron.Schedule, now time.Time) time.Duration {
	return schedule.Next(now).Sub(now)
}

func (d *Daemon) start(ctx context.Context, wg *sync.WaitGroup, errc chan<- error) {
	d.logger.Info("Starting Nebula daemon", "listen", d.listen)

	scheduler := cron.New(cron.WithLogger(cronLogger{d.logger}))
	scheduler.Schedule(d.schedule, cron.FuncJob(func() { d.refresh(ctx) }))
	scheduler.Start()
	misc.Infof(d.logger, "next refresh in %v", durationToNextRefresh(d.schedule, time.Now()).Round(time.Second))

	wg.Add(1)
	go func() {
		defer wg.Done()
		d.refresh(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := d.server.Listen(d.listen); err != nil {
			errc <- fmt.Errorf("api server: %w", err)
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		defer d.logger.Info("exiting daemon start function")
		<-ctx.Done()
		<-scheduler.Stop().Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := d.server.Shutdown(shutdownCtx); err != nil {
			misc.Warnf(d.logger, "api shutdown: %v", err)
		}
	}()
}

func (d *Daemon) refresh(ctx context.Context) {
	if err := d.nebula.LoadState(ctx); err != nil {
		misc.Warnf(d.logger, "validator state refresh failed: %v", err)
	}
	summaries, errs := d.refreshWallets(ctx, d.nebula.Profile().Wallets)
	for _, err := range errs {
		misc.Warnf(d.logger, "wallet refresh failed: %v", err)
	}
	var staked uint64
	for _, summary := range summaries {
		staked += summary.TotalStaked
	}
	d.logger.Debug("refreshed", "wallets", len(summaries), "staked", sol.FormattedSolAmount(staked))
}

// refreshWallets snapshots every watched wallet in parallel.
func (d *Daemon) refreshWallets(ctx context.Context, wallets []string) (map[string]nebula.Summary, []error) {
	var (
		fanOut    = syncutil.NewFanOut(10)
		mu        sync.Mutex
		summaries = map[string]nebula.Summary{}
	)
	for _, wallet := range wallets {
		fanOut.Run(func(val any) error {
			owner := val.(string)
			summary, err := d.nebula.RefreshWallet(ctx, owner)
			if err != nil {
				return fmt.Errorf("wallet %s: %w", owner, err)
			}
			mu.Lock()
			summaries[owner] = summary
			mu.Unlock()
			return nil
		}, wallet)
	}
	errs := fanOut.Wait()
	return summaries, errs
}

// cronLogger routes cron's internal logging through slog.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
