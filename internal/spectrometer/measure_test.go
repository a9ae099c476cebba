package spectrometer_test

import (
	"context"
	"math"
	"sync"
	"testing"
	"time"

	"codeberg.org/mutker/avactl/internal/driver"
	"codeberg.org/mutker/avactl/internal/errors"
	"codeberg.org/mutker/avactl/internal/spectrometer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func connected(t *testing.T, stub *stubDriver, opts ...spectrometer.Option) *spectrometer.Client {
	t.Helper()
	client := newClient(stub, opts...)
	require.NoError(t, client.Connect())
	t.Cleanup(func() { client.Disconnect() })
	return client
}

func TestSingleMeasure(t *testing.T) {
	stub := newStub()
	stub.readyAfter = 3
	long := make([]float64, 2100)
	for k := range long {
		long[k] = float64(k)
	}
	stub.scopeReply = driver.Pair(0, driver.ScopeData{Timestamp: 9, Intensities: long})
	client := connected(t, stub)

	spectrum, err := client.SingleMeasure(context.Background(), spectrometer.DefaultMeasurementConfig())
	require.NoError(t, err)
	require.Len(t, spectrum, 2048)
	assert.Equal(t, 0.0, spectrum[0])
	assert.Equal(t, 2047.0, spectrum[2047])
	assert.Equal(t, 4, stub.count("poll"))
	assert.Zero(t, stub.count("stop"))

	// The returned spectrum does not alias the driver buffer.
	spectrum[10] = -1
	assert.Equal(t, 10.0, long[10])
}

func TestSingleMeasureSendsFullRecord(t *testing.T) {
	stub := newStub()
	client := connected(t, stub)

	cfg := spectrometer.MeasurementConfig{
		IntegrationTime:  50,
		Averages:         4,
		IntegrationDelay: 1000,
		StartPixel:       0,
		StopPixel:        -1,
	}
	_, err := client.SingleMeasure(context.Background(), cfg)
	require.NoError(t, err)

	assert.Equal(t, driver.MeasConfig{
		StartPixel:       0,
		StopPixel:        2047,
		IntegrationTime:  50,
		IntegrationDelay: 1000,
		Averages:         4,
	}, stub.lastMeas)
}

func TestSingleMeasureWindow(t *testing.T) {
	stub := newStub()
	client := connected(t, stub)

	cfg := spectrometer.DefaultMeasurementConfig()
	cfg.StartPixel = 100
	cfg.StopPixel = 1999
	spectrum, err := client.SingleMeasure(context.Background(), cfg)
	require.NoError(t, err)
	assert.Len(t, spectrum, 2048)
	assert.Equal(t, 100, stub.lastMeas.StartPixel)
	assert.Equal(t, 1999, stub.lastMeas.StopPixel)
}

func TestSingleMeasureInvalidConfig(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*spectrometer.MeasurementConfig)
	}{
		{"zero integration time", func(c *spectrometer.MeasurementConfig) { c.IntegrationTime = 0 }},
		{"negative integration time", func(c *spectrometer.MeasurementConfig) { c.IntegrationTime = -5 }},
		{"infinite integration time", func(c *spectrometer.MeasurementConfig) { c.IntegrationTime = math.Inf(1) }},
		{"NaN integration time", func(c *spectrometer.MeasurementConfig) { c.IntegrationTime = math.NaN() }},
		{"zero averages", func(c *spectrometer.MeasurementConfig) { c.Averages = 0 }},
		{"averages past driver range", func(c *spectrometer.MeasurementConfig) { c.Averages = math.MaxUint32 + 1 }},
		{"negative delay", func(c *spectrometer.MeasurementConfig) { c.IntegrationDelay = -1 }},
		{"delay past driver range", func(c *spectrometer.MeasurementConfig) { c.IntegrationDelay = math.MaxUint32 + 1 }},
		{"window past detector", func(c *spectrometer.MeasurementConfig) { c.StopPixel = 2048 }},
		{"inverted window", func(c *spectrometer.MeasurementConfig) { c.StartPixel, c.StopPixel = 500, 100 }},
		{"negative start", func(c *spectrometer.MeasurementConfig) { c.StartPixel = -3 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stub := newStub()
			client := connected(t, stub)

			cfg := spectrometer.DefaultMeasurementConfig()
			tt.mutate(&cfg)
			spectrum, err := client.SingleMeasure(context.Background(), cfg)
			assert.Nil(t, spectrum)
			assert.True(t, errors.HasCode(err, spectrometer.ErrInvalidConfig), "got %v", err)
			assert.Zero(t, stub.count("prepare"))
		})
	}
}

func TestSingleMeasurePrepareRejected(t *testing.T) {
	stub := newStub()
	stub.prepareReply = driver.Value(5)
	client := connected(t, stub)

	spectrum, err := client.SingleMeasure(context.Background(), spectrometer.DefaultMeasurementConfig())
	assert.Nil(t, spectrum)
	require.Error(t, err)
	assert.Equal(t, spectrometer.ErrConfiguration, errors.CodeOf(err))

	var statusErr *driver.StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, 5, statusErr.Code)
	assert.Zero(t, stub.count("start"))
}

func TestSingleMeasureStartRejected(t *testing.T) {
	stub := newStub()
	stub.startReply = driver.Pair(-8, 0)
	client := connected(t, stub)

	_, err := client.SingleMeasure(context.Background(), spectrometer.DefaultMeasurementConfig())
	assert.Equal(t, spectrometer.ErrMeasurementStart, errors.CodeOf(err))

	var statusErr *driver.StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, -8, statusErr.Code)
	assert.Zero(t, stub.count("poll"))
}

func TestSingleMeasureTimeout(t *testing.T) {
	stub := newStub()
	stub.readyAfter = -1
	client := connected(t, stub, spectrometer.WithPolling(time.Millisecond, 25))

	spectrum, err := client.SingleMeasure(context.Background(), spectrometer.DefaultMeasurementConfig())
	assert.Nil(t, spectrum)
	assert.Equal(t, spectrometer.ErrMeasurementTimeout, errors.CodeOf(err))
	assert.Equal(t, 25, stub.count("poll"))
	assert.Zero(t, stub.count("scope"))
	assert.Equal(t, 1, stub.count("stop"))
	assert.Equal(t, spectrometer.Connected, client.State())
}

func TestSingleMeasureTimeoutDefaultBound(t *testing.T) {
	if testing.Short() {
		t.Skip("waits out the full 10 s poll bound")
	}

	stub := newStub()
	stub.readyAfter = -1
	client := connected(t, stub)

	start := time.Now()
	spectrum, err := client.SingleMeasure(context.Background(), spectrometer.DefaultMeasurementConfig())
	elapsed := time.Since(start)

	assert.Nil(t, spectrum)
	assert.Equal(t, spectrometer.ErrMeasurementTimeout, errors.CodeOf(err))
	assert.Equal(t, 1000, stub.count("poll"))
	assert.GreaterOrEqual(t, elapsed, 9900*time.Millisecond)
	assert.LessOrEqual(t, elapsed, 12*time.Second)
}

func TestSingleMeasureCanceled(t *testing.T) {
	stub := newStub()
	stub.readyAfter = -1
	client := connected(t, stub)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	_, err := client.SingleMeasure(ctx, spectrometer.DefaultMeasurementConfig())
	assert.Equal(t, spectrometer.ErrMeasurementCanceled, errors.CodeOf(err))
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.Equal(t, 1, stub.count("stop"))
}

func TestSingleMeasurePollFailure(t *testing.T) {
	stub := newStub()
	failed := driver.Pair(-16, false)
	stub.pollReply = &failed
	client := connected(t, stub)

	_, err := client.SingleMeasure(context.Background(), spectrometer.DefaultMeasurementConfig())
	assert.Equal(t, spectrometer.ErrScopeData, errors.CodeOf(err))
	assert.Equal(t, 1, stub.count("poll"))
}

func TestSingleMeasureScopeData(t *testing.T) {
	tests := []struct {
		name  string
		reply driver.Reply[driver.ScopeData]
	}{
		{"failed status", driver.Pair(-8, driver.ScopeData{})},
		{"short readout", driver.Value(driver.ScopeData{Intensities: make([]float64, 100)})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stub := newStub()
			stub.scopeReply = tt.reply
			client := connected(t, stub)

			spectrum, err := client.SingleMeasure(context.Background(), spectrometer.DefaultMeasurementConfig())
			assert.Nil(t, spectrum)
			assert.Equal(t, spectrometer.ErrScopeData, errors.CodeOf(err))
		})
	}
}

func TestSingleMeasureRequiresConnection(t *testing.T) {
	stub := newStub()
	client := newClient(stub)

	_, err := client.SingleMeasure(context.Background(), spectrometer.DefaultMeasurementConfig())
	assert.Equal(t, spectrometer.ErrNotConnected, errors.CodeOf(err))
	assert.Zero(t, stub.count("prepare"))
}

func TestSingleMeasureSerialized(t *testing.T) {
	stub := newStub()
	stub.readyAfter = 2
	client := connected(t, stub, spectrometer.WithPolling(time.Millisecond, 100))

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := client.SingleMeasure(context.Background(), spectrometer.DefaultMeasurementConfig())
			assert.NoError(t, err)
			_, err = client.Temperature(0)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 8, stub.count("scope"))
	assert.Zero(t, stub.overlaps)
}

func TestTemperature(t *testing.T) {
	stub := newStub()
	client := newClient(stub)

	_, err := client.Temperature(0)
	assert.Equal(t, spectrometer.ErrNotConnected, errors.CodeOf(err))

	require.NoError(t, client.Connect())
	t.Cleanup(func() { client.Disconnect() })

	temp, err := client.Temperature(0)
	require.NoError(t, err)
	assert.Equal(t, 23.5, temp)

	_, err = client.Temperature(3)
	require.NoError(t, err)
	assert.Equal(t, 3, stub.lastPort)

	_, err = client.Temperature(-1)
	assert.Equal(t, spectrometer.ErrTemperatureRead, errors.CodeOf(err))
	assert.True(t, errors.HasCode(err, errors.ErrInvalidArgument))
}

func TestTemperatureFailureKeepsSpectrum(t *testing.T) {
	stub := newStub()
	client := connected(t, stub)

	spectrum, err := client.SingleMeasure(context.Background(), spectrometer.DefaultMeasurementConfig())
	require.NoError(t, err)

	stub.analogReply = driver.Pair(-16, 0.0)
	_, err = client.Temperature(0)
	assert.Equal(t, spectrometer.ErrTemperatureRead, errors.CodeOf(err))

	assert.Len(t, spectrum, 2048)
	assert.Equal(t, 1000.0, spectrum[0])
	assert.Equal(t, spectrometer.Connected, client.State())
}
