package main

import (
	"fmt"

	"github.com/quantlab/backgrid/internal/backtest"
	"github.com/quantlab/backgrid/internal/config"
	"github.com/quantlab/backgrid/internal/fees"
	"github.com/quantlab/backgrid/internal/grid"
	"github.com/quantlab/backgrid/internal/logger"
	"github.com/quantlab/backgrid/internal/marketdata"
	"github.com/quantlab/backgrid/internal/metrics"
	"github.com/quantlab/backgrid/internal/regime"
	"github.com/quantlab/backgrid/internal/sim"
	"github.com/quantlab/backgrid/internal/storage/archive"
	"go.uber.org/zap"
)

// app is the composed engine every subcommand runs against.
type app struct {
	cfg       *config.Config
	log       *zap.Logger
	series    *marketdata.Series
	filter    regime.Filter
	runner    *backtest.Runner
	store     grid.Store
	scheduler *grid.Scheduler
	registry  *metrics.Registry
	archiver  archive.Storage
}

// newApp loads config and data and wires the engine. Everything downstream
// shares the one in-memory series; nothing re-reads data per trade.
func newApp() (*app, error) {
	log := logger.Must(debug)

	var cfg *config.Config
	var err error
	if cfgFile != "" {
		cfg, err = config.Load(cfgFile)
		if err != nil {
			return nil, fmt.Errorf("loading config: %w", err)
		}
	} else {
		cfg = config.Defaults()
		log.Warn("no config file specified, using defaults")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	loader := marketdata.NewLoader(log)
	series, err := loader.Load(cfg.Data.PicksFile, cfg.Data.BarsFile)
	if err != nil {
		return nil, fmt.Errorf("loading market data: %w", err)
	}

	var filter regime.Filter
	if cfg.Data.VIXFile != "" {
		filter, err = regime.LoadTable(cfg.Data.VIXFile)
		if err != nil {
			return nil, fmt.Errorf("loading vix table: %w", err)
		}
	}

	quoter := fees.NewAdapter()
	runner := backtest.NewRunner(sim.New(quoter), quoter, filter, log)
	registry := metrics.NewRegistry()

	store, err := openStore(cfg)
	if err != nil {
		return nil, err
	}

	archiver, err := openArchive(cfg)
	if err != nil {
		return nil, err
	}

	space := grid.NewSpace(series.Algorithms(),
		cfg.Grid.TakeProfits, cfg.Grid.StopLosses, cfg.Grid.HoldDays, cfg.Grid.CommissionModels)

	scheduler := grid.NewScheduler(space, series, runner, store, grid.Options{
		BatchSize: cfg.Grid.BatchSize,
		Budget:    cfg.Grid.BatchBudget,
		Workers:   cfg.Grid.Workers,
		Capital:   cfg.Engine.InitialCapital,
		Base:      baseParams(cfg.Engine),
	}, log, registry)

	return &app{
		cfg:       cfg,
		log:       log,
		series:    series,
		filter:    filter,
		runner:    runner,
		store:     store,
		scheduler: scheduler,
		registry:  registry,
		archiver:  archiver,
	}, nil
}

func (a *app) close() {
	a.store.Close()
	a.log.Sync()
}

func openStore(cfg *config.Config) (grid.Store, error) {
	if cfg.Storage.GridDSN == "" {
		return grid.NewMemoryStore(), nil
	}
	store, err := grid.NewSQLiteStore(cfg.Storage.GridDSN)
	if err != nil {
		return nil, fmt.Errorf("opening grid store: %w", err)
	}
	return store, nil
}

func openArchive(cfg *config.Config) (archive.Storage, error) {
	if !cfg.Storage.Archive.Enabled {
		return nil, nil
	}
	if cfg.Storage.Archive.Type == "s3" {
		s3cfg := cfg.Storage.Archive.S3
		return archive.NewS3(archive.S3Config{
			Bucket:    s3cfg.Bucket,
			Endpoint:  s3cfg.Endpoint,
			Region:    s3cfg.Region,
			AccessKey: s3cfg.AccessKey,
			SecretKey: s3cfg.SecretKey,
			Prefix:    s3cfg.Prefix,
		})
	}
	return archive.NewLocalFS(cfg.Storage.Archive.Path)
}

// baseParams turns engine defaults into the per-combo parameter base.
func baseParams(e config.EngineConfig) backtest.Params {
	return backtest.Params{
		Params: sim.Params{
			EmbargoDays: e.EmbargoDays,
			SlippagePct: e.SlippagePct,
		},
		PositionSizePct: e.PositionSizePct,
		VolFilter:       regime.ModeOff,
	}
}
