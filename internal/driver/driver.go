// Package driver describes the primitive surface of a spectrometer driver
// binding and normalizes the shapes its calls return.
//
// A concrete binding (the vendor's USB library) lives outside this module; it
// satisfies Driver and hands every result back as a Reply. Package sim
// provides an in-process instrument for running without hardware.
package driver

// Handle identifies an activated instrument. Only its validity is
// meaningful; the number itself belongs to the binding.
type Handle int

// Valid reports whether h was issued by a successful activation.
func (h Handle) Valid() bool {
	return h > 0
}

// DeviceID identifies an enumerated but not yet activated device.
type DeviceID string

// Transport selects how the driver library talks to instruments.
type Transport int

const (
	TransportUSB Transport = iota
	TransportEthernet
)

// DefaultWindow is the window id used when no host window receives
// completion messages; readiness is polled instead.
const DefaultWindow = 0

// MeasConfig is the full measurement record the instrument expects. Every
// field must be set, so features that are not used are sent zeroed.
type MeasConfig struct {
	StartPixel       int
	StopPixel        int
	IntegrationTime  float64 // milliseconds
	IntegrationDelay uint32  // microseconds
	Averages         uint32

	DarkCorrection DarkCorrection
	Smoothing      Smoothing

	SaturationDetection uint8

	Trigger Trigger
	Control Control
}

type DarkCorrection struct {
	Enable           uint8
	ForgetPercentage uint8
}

type Smoothing struct {
	SmoothPix   uint16
	SmoothModel uint8
}

type Trigger struct {
	Mode       uint8
	Source     uint8
	SourceType uint8
}

type Control struct {
	StrobeControl   uint16
	LaserDelay      uint32
	LaserWidth      uint32
	LaserWaveLength float64
	StoreToRAM      uint16
}

// ScopeData is one retrieved readout.
type ScopeData struct {
	Timestamp   uint32
	Intensities []float64
}

// Driver is the primitive call surface of a spectrometer driver library.
// Implementations are not required to be safe for concurrent use.
type Driver interface {
	InitLibrary(t Transport) Reply[int]
	RefreshDeviceList() Reply[int]
	ListDevices(count int) []DeviceID
	Activate(id DeviceID) Reply[Handle]

	GetPixelCount(h Handle) Reply[int]
	GetWavelengthTable(h Handle) Reply[[]float64]

	PrepareMeasurement(h Handle, cfg MeasConfig) Reply[int]
	StartMeasurement(h Handle, window int, numMeasurements int) Reply[int]
	PollReady(h Handle) Reply[bool]
	GetScopeData(h Handle) Reply[ScopeData]
	StopMeasurement(h Handle) Reply[int]

	ReadAnalogInput(h Handle, port int) Reply[float64]

	Deactivate(h Handle) Reply[int]
	ShutdownLibrary() Reply[int]
}
