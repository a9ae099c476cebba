package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"codeberg.org/mutker/avactl/internal/config"
	"codeberg.org/mutker/avactl/internal/driver/sim"
	"codeberg.org/mutker/avactl/internal/errors"
	"codeberg.org/mutker/avactl/internal/logger"
	"codeberg.org/mutker/avactl/internal/metrics"
	"codeberg.org/mutker/avactl/internal/pid"
	"codeberg.org/mutker/avactl/internal/spectrometer"
	"codeberg.org/mutker/avactl/internal/station"
)

var (
	cfg  *config.Config
	lock *pid.Lock
	st   *station.Station
)

func init() {
	var err error
	cfg, err = config.Load()
	if err != nil {
		fmt.Printf("failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Init(logger.Options{
		Level:     cfg.LogLevel,
		File:      cfg.LogFile,
		IsService: logger.IsService(),
	})
	logger.Debug().Msg("Config loaded")
}

func main() {
	if err := setup(); err != nil {
		var appErr errors.Error
		if errors.As(err, &appErr) {
			logger.FatalWithCode(appErr).Msg("")
		}
		logger.Fatal().Err(err).Msg("failed to initialize")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go handleSignals(cancel)

	if err := loop(ctx); err != nil {
		logger.Error().Err(err).Msg("error in main loop")
	}
	cleanup()
}

func setup() error {
	errFactory := errors.New()

	var err error
	lock, err = pid.Acquire(cfg.LockDir)
	if err != nil {
		return err
	}

	collector, err := metrics.NewService(cfg.MetricsConfig(), logger.Default().With("metrics"))
	if err != nil {
		lock.Release()
		return errFactory.Wrap(errors.ErrInitMetrics, err)
	}

	interval, attempts := cfg.Polling()
	client := spectrometer.New(sim.New(),
		spectrometer.WithLogger(logger.Default().With("spectrometer")),
		spectrometer.WithPolling(interval, attempts),
	)
	st = station.New(client,
		station.WithLogger(logger.Default().With("station")),
		station.WithCollector(collector),
		station.WithTemperaturePort(cfg.TemperaturePort),
	)

	if err := st.Connect(); err != nil {
		st.Close()
		lock.Release()
		return errFactory.Wrap(errors.ErrInitApp, err)
	}

	return nil
}

func loop(ctx context.Context) error {
	measCfg := cfg.MeasurementConfig()
	ticker := time.NewTicker(cfg.MeasureEvery())
	defer ticker.Stop()

	logger.Info().
		Float64("integration_time", measCfg.IntegrationTime).
		Int("averages", measCfg.Averages).
		Int("count", cfg.Count).
		Msg("Starting measurements")

	for {
		reading, err := st.Measure(ctx, measCfg)
		switch {
		case errors.HasCode(err, spectrometer.ErrMeasurementCanceled):
			return nil
		case err != nil:
			return err
		}
		logReading(reading)

		if cfg.Count > 0 && reading.Index >= cfg.Count {
			return nil
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func handleSignals(cancel context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	<-sigs
	logger.Info().Msg("Received termination signal.")
	cancel()
}

func cleanup() {
	report := st.Disconnect()
	if !report.Clean() {
		logger.Warn().Int("warnings", len(report.Warnings)).Msg("Instrument released with warnings")
	}
	if err := st.Close(); err != nil {
		logger.Error().Err(err).Msg("failed to close measurement log")
	}
	if err := lock.Release(); err != nil {
		logger.Error().Err(err).Msg("failed to remove pid file")
	}
	logger.Info().Msg("Exiting...")
}

func logReading(r station.Reading) {
	event := logger.Info().
		Int("measurement", r.Index).
		Int("pixels", r.Summary.Pixels).
		Float64("min", r.Summary.Min).
		Float64("max", r.Summary.Max).
		Float64("mean", r.Summary.Mean).
		Float64("peak_wavelength", r.Summary.PeakWavelength)
	if r.TemperatureValid {
		event = event.Float64("temperature", r.Temperature)
	}
	event.Msg("")
}
