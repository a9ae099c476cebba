// Package station is the caller-side view of one instrument: it runs
// measurements through a spectrometer.Client, keeps the last results and a
// running count, and records each measurement in the measurement log.
package station

import (
	"context"
	"sync"
	"time"

	"codeberg.org/mutker/avactl/internal/errors"
	"codeberg.org/mutker/avactl/internal/logger"
	"codeberg.org/mutker/avactl/internal/metrics"
	"codeberg.org/mutker/avactl/internal/spectrometer"
)

// Reading is the outcome of one Measure call.
type Reading struct {
	Index            int
	Timestamp        time.Time
	Spectrum         spectrometer.Spectrum
	Summary          metrics.SpectrumMetrics
	Temperature      float64
	TemperatureValid bool
}

// Status is a point-in-time copy of the station state.
type Status struct {
	State        spectrometer.State
	Measurements int
	Last         *Reading
}

type Station struct {
	client    *spectrometer.Client
	collector metrics.Collector
	log       logger.Logger
	port      int
	now       func() time.Time

	mu    sync.Mutex
	count int
	last  *Reading
}

type Option func(*Station)

func WithLogger(log logger.Logger) Option {
	return func(s *Station) {
		s.log = log
	}
}

// WithTemperaturePort sets the analog input read after every measurement.
func WithTemperaturePort(port int) Option {
	return func(s *Station) {
		s.port = port
	}
}

// WithCollector records every reading in c.
func WithCollector(c metrics.Collector) Option {
	return func(s *Station) {
		s.collector = c
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Station) {
		s.now = now
	}
}

func New(client *spectrometer.Client, opts ...Option) *Station {
	s := &Station{
		client: client,
		log:    logger.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.collector == nil {
		s.collector, _ = metrics.NewService(metrics.Config{}, logger.Nop())
	}
	return s
}

func (s *Station) Connect() error {
	if err := s.client.Connect(); err != nil {
		return err
	}

	props, err := s.client.Properties()
	if err != nil {
		return err
	}
	s.log.Info().
		Int("pixels", props.PixelCount).
		Float64("first_wavelength", props.Wavelengths[0]).
		Float64("last_wavelength", props.Wavelengths[props.PixelCount-1]).
		Msg("Instrument connected")

	return nil
}

// Measure takes one spectrum and then reads the detector temperature. A
// failed temperature read is logged and leaves the reading without a
// temperature; a failed spectrum fails the whole call and leaves the station
// state untouched.
func (s *Station) Measure(ctx context.Context, cfg spectrometer.MeasurementConfig) (Reading, error) {
	errFactory := errors.New()

	spectrum, err := s.client.SingleMeasure(ctx, cfg)
	if err != nil {
		return Reading{}, errFactory.Wrap(errors.ErrAcquire, err)
	}

	reading := Reading{
		Timestamp: s.now(),
		Spectrum:  spectrum,
	}

	temp, err := s.client.Temperature(s.port)
	if err != nil {
		s.log.Warn().Err(err).Int("port", s.port).Msg("Temperature read failed")
	} else {
		reading.Temperature = temp
		reading.TemperatureValid = true
	}

	if wl, err := s.client.Wavelengths(); err == nil {
		reading.Summary = metrics.Summarize(wl, spectrum)
	}

	s.mu.Lock()
	s.count++
	reading.Index = s.count
	s.last = &reading
	s.mu.Unlock()

	snapshot := &metrics.Snapshot{
		Timestamp: reading.Timestamp,
		Measurement: metrics.MeasurementMetrics{
			IntegrationTime:  cfg.IntegrationTime,
			Averages:         cfg.Averages,
			IntegrationDelay: cfg.IntegrationDelay,
		},
		Spectrum: reading.Summary,
		Temperature: metrics.TempMetrics{
			Value: reading.Temperature,
			Valid: reading.TemperatureValid,
		},
	}
	if err := s.collector.Record(ctx, snapshot); err != nil {
		s.log.Warn().Err(err).Int("measurement", reading.Index).Msg("Failed to record measurement")
	}

	return reading, nil
}

// Disconnect releases the instrument and forgets every previous reading.
func (s *Station) Disconnect() spectrometer.TeardownReport {
	report := s.client.Disconnect()

	s.mu.Lock()
	s.count = 0
	s.last = nil
	s.mu.Unlock()

	return report
}

// Close disconnects and flushes the measurement log.
func (s *Station) Close() error {
	errFactory := errors.New()

	s.Disconnect()
	if err := s.collector.Close(); err != nil {
		return errFactory.Wrap(errors.ErrCloseMetrics, err)
	}
	return nil
}

func (s *Station) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Status{
		State:        s.client.State(),
		Measurements: s.count,
	}
	if s.last != nil {
		last := *s.last
		last.Spectrum = append(spectrometer.Spectrum(nil), s.last.Spectrum...)
		st.Last = &last
	}
	return st
}
