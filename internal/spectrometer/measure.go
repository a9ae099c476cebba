package spectrometer

import (
	"context"
	"math"
	"time"

	"codeberg.org/mutker/avactl/internal/driver"
	"codeberg.org/mutker/avactl/internal/errors"
)

// SingleMeasure runs one measurement and returns its spectrum, one value per
// pixel. It blocks while polling the instrument for readiness. On any error
// no spectrum is returned and the caller should treat the measurement as not
// having happened.
func (c *Client) SingleMeasure(ctx context.Context, cfg MeasurementConfig) (Spectrum, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	l, err := c.connected()
	if err != nil {
		return nil, err
	}

	return l.measure(ctx, cfg)
}

// Temperature reads analog input port as a temperature. It returns
// ErrNotConnected while disconnected; any other failure, a negative port
// included, is ErrTemperatureRead. A failure here says nothing about spectra
// already measured.
func (c *Client) Temperature(port int) (float64, error) {
	errFactory := errors.New()
	c.mu.Lock()
	defer c.mu.Unlock()

	l, err := c.connected()
	if err != nil {
		return 0, err
	}

	if port < 0 {
		return 0, errFactory.Wrap(ErrTemperatureRead,
			errFactory.WithData(errors.ErrInvalidArgument, "analog port must not be negative"))
	}

	reply := l.drv.ReadAnalogInput(l.handle, port)
	if driver.Failed(reply) {
		return 0, errFactory.Wrap(ErrTemperatureRead,
			driver.NewStatusError("read_analog_input", driver.StatusOf(reply)))
	}

	value := driver.Payload(reply)
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return 0, errFactory.WithData(ErrTemperatureRead, struct {
			Port  int
			Value float64
		}{
			Port:  port,
			Value: value,
		})
	}

	return value, nil
}

func (l *link) measure(ctx context.Context, cfg MeasurementConfig) (Spectrum, error) {
	errFactory := errors.New()

	meas, err := l.measConfig(cfg)
	if err != nil {
		return nil, err
	}

	if code := driver.Code(l.drv.PrepareMeasurement(l.handle, meas)); code != 0 {
		return nil, errFactory.Wrap(ErrConfiguration, driver.NewStatusError("prepare_measurement", code))
	}

	if code := driver.Code(l.drv.StartMeasurement(l.handle, driver.DefaultWindow, 1)); code != 0 {
		return nil, errFactory.Wrap(ErrMeasurementStart, driver.NewStatusError("start_measurement", code))
	}

	started := time.Now()
	if err := l.waitReady(ctx); err != nil {
		l.abort()
		return nil, err
	}

	reply := l.drv.GetScopeData(l.handle)
	if driver.Failed(reply) {
		return nil, errFactory.Wrap(ErrScopeData,
			driver.NewStatusError("get_scope_data", driver.StatusOf(reply)))
	}

	data := driver.Payload(reply)
	if len(data.Intensities) < l.props.PixelCount {
		return nil, errFactory.WithData(ErrScopeData, struct {
			Want int
			Got  int
		}{
			Want: l.props.PixelCount,
			Got:  len(data.Intensities),
		})
	}

	spectrum := make(Spectrum, l.props.PixelCount)
	copy(spectrum, data.Intensities[:l.props.PixelCount])

	l.log.Debug().
		Uint32("timestamp", data.Timestamp).
		Float64("integration_time_ms", meas.IntegrationTime).
		Uint32("averages", meas.Averages).
		Dur("elapsed", time.Since(started)).
		Msg("Spectrum retrieved")

	return spectrum, nil
}

// waitReady polls the ready flag at a fixed interval up to the attempt bound.
func (l *link) waitReady(ctx context.Context) error {
	errFactory := errors.New()

	for attempt := 0; attempt < l.pollAttempts; attempt++ {
		reply := l.drv.PollReady(l.handle)
		if driver.Failed(reply) {
			return errFactory.Wrap(ErrScopeData,
				driver.NewStatusError("poll_ready", driver.StatusOf(reply)))
		}
		if driver.Payload(reply) {
			return nil
		}

		select {
		case <-ctx.Done():
			return errFactory.Wrap(ErrMeasurementCanceled, ctx.Err())
		case <-time.After(l.pollInterval):
		}
	}

	return errFactory.WithData(ErrMeasurementTimeout, struct {
		Attempts int
		Interval time.Duration
	}{
		Attempts: l.pollAttempts,
		Interval: l.pollInterval,
	})
}

// abort stops a measurement that will not be read.
func (l *link) abort() {
	if code := driver.Code(l.drv.StopMeasurement(l.handle)); code != 0 {
		l.log.Warn().Int("status", code).Msg("Failed to stop abandoned measurement")
	}
}

func (l *link) measConfig(cfg MeasurementConfig) (driver.MeasConfig, error) {
	errFactory := errors.New()
	pixels := l.props.PixelCount

	stop := cfg.StopPixel
	if stop < 0 {
		stop = pixels - 1
	}

	var reason string
	switch {
	case math.IsNaN(cfg.IntegrationTime) || math.IsInf(cfg.IntegrationTime, 0) || cfg.IntegrationTime <= 0:
		reason = "integration time must be positive and finite"
	case cfg.Averages < 1:
		reason = "average count must be at least 1"
	case uint64(cfg.Averages) > math.MaxUint32:
		reason = "average count does not fit the driver record"
	case cfg.IntegrationDelay < 0:
		reason = "integration delay must not be negative"
	case uint64(cfg.IntegrationDelay) > math.MaxUint32:
		reason = "integration delay does not fit the driver record"
	case cfg.StartPixel < 0 || cfg.StartPixel > stop || stop >= pixels:
		reason = "pixel window outside detector range"
	}
	if reason != "" {
		return driver.MeasConfig{}, errFactory.WithData(ErrInvalidConfig, struct {
			Reason string
			Config MeasurementConfig
		}{
			Reason: reason,
			Config: cfg,
		})
	}

	// Features this client does not expose are sent explicitly disabled.
	return driver.MeasConfig{
		StartPixel:       cfg.StartPixel,
		StopPixel:        stop,
		IntegrationTime:  cfg.IntegrationTime,
		IntegrationDelay: uint32(cfg.IntegrationDelay),
		Averages:         uint32(cfg.Averages),
		DarkCorrection: driver.DarkCorrection{
			Enable:           0,
			ForgetPercentage: 0,
		},
		Smoothing: driver.Smoothing{
			SmoothPix:   0,
			SmoothModel: 0,
		},
		SaturationDetection: 0,
		Trigger: driver.Trigger{
			Mode:       0,
			Source:     0,
			SourceType: 0,
		},
		Control: driver.Control{
			StrobeControl:   0,
			LaserDelay:      0,
			LaserWidth:      0,
			LaserWaveLength: 0,
			StoreToRAM:      0,
		},
	}, nil
}
