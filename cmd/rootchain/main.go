package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/pkg/errors"
	"github.com/plasma-experiment/rootchain/config"
	"github.com/plasma-experiment/rootchain/internal/client"
	"github.com/plasma-experiment/rootchain/internal/rootchain"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"
)

var (
	configFlag = &cli.StringFlag{
		Name:  "config",
		Usage: "Path to a JSON or YAML config file (default config/config.json)",
	}
	portFlag = &cli.IntFlag{
		Name:    "port",
		Usage:   "HTTP port",
		EnvVars: []string{"PORT"},
	}
	storageFlag = &cli.StringFlag{
		Name:    "storage-dir",
		Usage:   "Directory for persistent ledger storage (empty = in-memory)",
		EnvVars: []string{"STORAGE_DIR"},
	}
	authorityFlag = &cli.StringFlag{
		Name:    "authority",
		Usage:   "Operator address allowed to submit blocks",
		EnvVars: []string{"AUTHORITY"},
	}
	finalizeIntervalFlag = &cli.DurationFlag{
		Name:  "finalize-interval",
		Usage: "Run a finalization sweep periodically (0 = only on request)",
	}
	verbosityFlag = &cli.IntFlag{
		Name:  "verbosity",
		Usage: "Log level: 1=error 2=warn 3=info 4=debug 5=trace",
		Value: 3,
	}
	urlFlag = &cli.StringFlag{
		Name:    "url",
		Usage:   "Root chain node URL",
		Value:   "http://localhost:8080",
		EnvVars: []string{"ROOTCHAIN_URL"},
	}
)

func main() {
	app := &cli.App{
		Name:   "rootchain",
		Usage:  "Plasma root chain node: deposits, block commitments and the exit game",
		Flags:  []cli.Flag{configFlag, portFlag, storageFlag, authorityFlag, finalizeIntervalFlag, verbosityFlag},
		Action: serve,
		Commands: []*cli.Command{
			{
				Name:   "finalize",
				Usage:  "Ask a running node to finalize matured exits",
				Flags:  []cli.Flag{urlFlag, verbosityFlag},
				Action: finalize,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Crit("Fatal", "err", err)
	}
}

func setupLogging(verbosity int) {
	var lvl slog.Level
	switch {
	case verbosity <= 1:
		lvl = slog.LevelError
	case verbosity == 2:
		lvl = slog.LevelWarn
	case verbosity == 3:
		lvl = slog.LevelInfo
	case verbosity == 4:
		lvl = slog.LevelDebug
	default:
		lvl = log.LevelTrace
	}
	log.SetDefault(log.NewLogger(log.NewTerminalHandlerWithLevel(os.Stderr, lvl, true)))
}

// loadConfig reads the config file and applies flag and environment overrides
func loadConfig(ctx *cli.Context) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if path := ctx.String(configFlag.Name); path != "" {
		if cfg, err = config.Load(path); err != nil {
			return nil, err
		}
	} else if cfg, err = config.LoadDefault(); err != nil {
		log.Info("No config.json found, using defaults")
		cfg = config.Default()
	}

	if ctx.IsSet(portFlag.Name) {
		cfg.Port = ctx.Int(portFlag.Name)
	}
	if ctx.IsSet(storageFlag.Name) {
		cfg.StorageDir = ctx.String(storageFlag.Name)
	}
	if ctx.IsSet(authorityFlag.Name) {
		cfg.Authority = ctx.String(authorityFlag.Name)
	}
	if v := os.Getenv("EXIT_PERIOD"); v != "" {
		period, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return nil, errors.Wrap(err, "EXIT_PERIOD")
		}
		cfg.ExitPeriod = period
	}
	return cfg, cfg.Validate()
}

func serve(ctx *cli.Context) error {
	setupLogging(ctx.Int(verbosityFlag.Name))

	cfg, err := loadConfig(ctx)
	if err != nil {
		return errors.Wrap(err, "load config")
	}
	opts, err := rootchain.OptionsFromConfig(cfg)
	if err != nil {
		return err
	}

	store, err := rootchain.NewStore(cfg.StorageDir)
	if err != nil {
		return err
	}
	rc, err := rootchain.New(store, opts)
	if err != nil {
		store.Close()
		return err
	}
	defer rc.Close()

	if cfg.Network.DelayEnabled {
		log.Info("Network delay simulation enabled", "min", cfg.Network.MinDelayMs, "max", cfg.Network.MaxDelayMs)
	}

	sigCtx, stop := signal.NotifyContext(ctx.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(sigCtx)
	service := rootchain.NewService(rc, time.Duration(cfg.ClockTickMs)*time.Millisecond)
	g.Go(func() error {
		return service.Run(gctx, cfg.Port)
	})
	if interval := ctx.Duration(finalizeIntervalFlag.Name); interval > 0 {
		g.Go(func() error {
			return sweepLoop(gctx, rc, interval)
		})
	}
	return g.Wait()
}

// sweepLoop finalizes matured exits on a fixed interval
func sweepLoop(ctx context.Context, rc *rootchain.RootChain, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := rc.FinalizeExits(); err != nil {
				log.Warn("Scheduled finalization failed", "err", err)
			}
		}
	}
}

func finalize(ctx *cli.Context) error {
	setupLogging(ctx.Int(verbosityFlag.Name))

	cfg, err := config.LoadDefault()
	if err != nil {
		cfg = config.Default()
	}
	c := client.New(ctx.String(urlFlag.Name), cfg.Network)

	reqCtx, cancel := context.WithTimeout(ctx.Context, client.DefaultTimeout)
	defer cancel()
	report, err := c.FinalizeExits(reqCtx)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}
