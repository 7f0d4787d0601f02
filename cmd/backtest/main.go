package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/peregrine-trading/peregrine/examples/strategy"
	"github.com/peregrine-trading/peregrine/internal/dbg"
	"github.com/peregrine-trading/peregrine/pkg/backtest"
	"github.com/peregrine-trading/peregrine/pkg/common"
	"github.com/peregrine-trading/peregrine/pkg/datasource/historical"
	"github.com/peregrine-trading/peregrine/pkg/middleware"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the backtest configuration")
	flag.Parse()

	logger := dbg.NewDevLogger()
	defer func(logger *zap.Logger) {
		_ = logger.Sync()
	}(logger)
	dbg.InstallSlog(logger)

	if err := run(*configPath, logger); err != nil {
		logger.Fatal("backtest failed", zap.Error(err))
	}
	logger.Info("done")
}

func run(configPath string, logger *zap.Logger) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	instruments := make([]common.Instrument, 0, len(cfg.Instruments))
	for _, instrument := range cfg.Instruments {
		instruments = append(instruments, instrument.toInstrument())
	}

	engine, err := backtest.NewEngine(cfg.Backtest, instruments)
	if err != nil {
		return err
	}

	for _, tickFile := range cfg.Ticks {
		source := historical.NewSource[historical.BinaryTick](tickFile.File)
		if err := source.Open(); err != nil {
			return err
		}
		defer source.Close()

		if err := engine.AddTickSource(historical.NewTickReader(source, tickFile.Symbol, tickFile.From, tickFile.To)); err != nil {
			return err
		}
	}

	engine.AttachStrategy(strategy.NewCrossover(
		engine.Router(),
		cfg.Strategy.Symbol,
		cfg.Strategy.Quantity,
		cfg.Strategy.FastPeriod,
		cfg.Strategy.SlowPeriod,
	))

	monitor := middleware.NewMonitor(middleware.MonitorOrdersAccepted | middleware.MonitorOrdersRejected |
		middleware.MonitorPositionsOpened | middleware.MonitorPositionsUpdated | middleware.MonitorMarginWarnings)
	telemetry := middleware.NewTelemetry(logger)

	router := engine.Router()
	router.OnTick = middleware.Chain(telemetry.WithTick)(router.OnTick)
	router.OnBar = middleware.Chain(telemetry.WithBar)(router.OnBar)
	router.OnOrderFilled = middleware.Chain(telemetry.WithOrderFilled)(router.OnOrderFilled)
	router.OnOrderAccepted = middleware.Chain(monitor.WithOrderAccepted)(middleware.NoopOrderAccHdl)
	router.OnOrderRejected = middleware.Chain(monitor.WithOrderRejected)(middleware.NoopOrderRjctHdl)
	router.OnPositionOpen = middleware.Chain(monitor.WithPositionOpen)(middleware.NoopPosOpnHdl)
	router.OnPositionUpdate = middleware.Chain(monitor.WithPositionUpdate)(middleware.NoopPosUpdHdl)
	router.OnMarginWarning = middleware.Chain(monitor.WithMarginWarning)(middleware.NoopMarginHdl)

	if err := engine.Run(ctx); err != nil {
		return err
	}

	engine.Report().Print(logger)
	telemetry.PrintStatistics()
	router.Statistics().Print()

	results := engine.Results()
	logger.Info("run results",
		zap.Int("orders", len(results.Orders)),
		zap.Int("open_positions", len(results.OpenPositions)),
		zap.Int("closed_positions", len(results.ClosedPositions)),
		zap.Int("working_orders", len(results.WorkingOrders)))
	return nil
}
