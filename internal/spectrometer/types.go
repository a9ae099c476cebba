package spectrometer

import "time"

// State is the connection state of a Client.
type State int

const (
	Disconnected State = iota
	Connected
)

func (s State) String() string {
	if s == Connected {
		return "connected"
	}
	return "disconnected"
}

// Properties are captured once at connect time and never change while the
// connection lasts.
type Properties struct {
	PixelCount  int
	Wavelengths []float64
}

// Spectrum holds one intensity per detector pixel. Each measurement returns a
// freshly allocated Spectrum owned by the caller.
type Spectrum []float64

// MeasurementConfig holds the caller-supplied parameters of one measurement.
type MeasurementConfig struct {
	IntegrationTime  float64 // milliseconds, > 0
	Averages         int     // >= 1
	IntegrationDelay int     // microseconds, >= 0

	// StartPixel and StopPixel bound the readout window. A negative
	// StopPixel selects the last pixel of the detector.
	StartPixel int
	StopPixel  int
}

// DefaultMeasurementConfig returns a 10 ms single-readout full-range config.
func DefaultMeasurementConfig() MeasurementConfig {
	return MeasurementConfig{
		IntegrationTime: defaultIntegrationTime,
		Averages:        1,
		StopPixel:       -1,
	}
}

const (
	defaultIntegrationTime = 10.0
	defaultPollInterval    = 10 * time.Millisecond
	defaultPollAttempts    = 1000
)
