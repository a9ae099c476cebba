// Package sim is an in-process spectrometer that satisfies driver.Driver.
// It lets avactl run and be tested without an instrument attached.
package sim

import (
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"codeberg.org/mutker/avactl/internal/driver"
)

// Status codes reported by the simulated instrument, numbered like the
// vendor library's.
const (
	StatusSuccess          = 0
	StatusInvalidParameter = -1
	StatusDeviceNotFound   = -3
	StatusInvalidDeviceID  = -4
	StatusOperationPending = -5
	StatusInvalidPixRange  = -10
	StatusInvalidIntTime   = -11
	StatusInvalidState     = -21
	StatusAccess           = -24
)

const (
	defaultPixels        = 2048
	defaultWavelengthMin = 200.0
	defaultWavelengthMax = 900.0
	defaultTemperature   = 23.5
	analogPorts          = 8
	baselineCounts       = 1000.0
	saturationCounts     = 65535.0
	noiseCounts          = 6.0
)

// Line is an emission line the simulated source produces.
type Line struct {
	Center    float64 // nm
	Width     float64 // nm, standard deviation
	Intensity float64 // counts per ms of integration
}

var defaultLines = []Line{
	{Center: 253.7, Width: 0.6, Intensity: 90},
	{Center: 435.8, Width: 0.8, Intensity: 140},
	{Center: 546.1, Width: 0.8, Intensity: 180},
	{Center: 656.3, Width: 1.2, Intensity: 60},
	{Center: 811.5, Width: 1.5, Intensity: 40},
}

// Faults makes the next calls fail. A zero status means no fault.
type Faults struct {
	InitStatus     int
	ActivateStatus int
	PrepareStatus  int
	StartStatus    int
	AnalogStatus   int
	NeverReady     bool
}

// Instrument is a simulated spectrometer.
type Instrument struct {
	mu sync.Mutex

	serial      string
	devices     int
	wavelengths []float64
	temperature float64
	lines       []Line
	now         func() time.Time
	rng         *rand.Rand
	faults      Faults

	initialized bool
	active      driver.Handle
	nextHandle  driver.Handle
	prepared    *driver.MeasConfig
	measuring   bool
	readyAt     time.Time
}

// Option configures an Instrument.
type Option func(*Instrument)

// WithWavelengthRange sets the pixel count and a linear wavelength table
// from first to last.
func WithWavelengthRange(pixels int, first, last float64) Option {
	return func(i *Instrument) {
		i.wavelengths = linspace(first, last, pixels)
	}
}

// WithTemperature sets the value read from every analog port.
func WithTemperature(celsius float64) Option {
	return func(i *Instrument) {
		i.temperature = celsius
	}
}

// WithDevices sets how many devices enumeration reports. Zero simulates an
// empty bus.
func WithDevices(n int) Option {
	return func(i *Instrument) {
		i.devices = n
	}
}

// WithLines replaces the simulated emission lines.
func WithLines(lines ...Line) Option {
	return func(i *Instrument) {
		i.lines = lines
	}
}

// WithSeed makes the noise reproducible.
func WithSeed(seed int64) Option {
	return func(i *Instrument) {
		i.rng = rand.New(rand.NewSource(seed))
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(i *Instrument) {
		i.now = now
	}
}

// New returns a simulated instrument with 2048 pixels spanning 200 to 900 nm.
func New(opts ...Option) *Instrument {
	i := &Instrument{
		serial:      "SIM-2048-0001",
		devices:     1,
		wavelengths: linspace(defaultWavelengthMin, defaultWavelengthMax, defaultPixels),
		temperature: defaultTemperature,
		lines:       defaultLines,
		now:         time.Now,
		rng:         rand.New(rand.NewSource(time.Now().UnixNano())),
		nextHandle:  1,
	}
	for _, opt := range opts {
		opt(i)
	}

	return i
}

// Inject replaces the active fault set.
func (i *Instrument) Inject(f Faults) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.faults = f
}

// Active reports whether a handle is currently held.
func (i *Instrument) Active() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.active.Valid()
}

// Initialized reports whether the library is up.
func (i *Instrument) Initialized() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.initialized
}

func (i *Instrument) InitLibrary(t driver.Transport) driver.Reply[int] {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.faults.InitStatus != 0 {
		return driver.Value(i.faults.InitStatus)
	}
	if t != driver.TransportUSB {
		return driver.Value(StatusInvalidParameter)
	}

	i.initialized = true
	if i.devices == 0 {
		return driver.Value(StatusDeviceNotFound)
	}
	return driver.Value(i.devices)
}

func (i *Instrument) RefreshDeviceList() driver.Reply[int] {
	i.mu.Lock()
	defer i.mu.Unlock()

	if !i.initialized {
		return driver.Value(StatusInvalidState)
	}
	return driver.Value(i.devices)
}

func (i *Instrument) ListDevices(count int) []driver.DeviceID {
	i.mu.Lock()
	defer i.mu.Unlock()

	if !i.initialized {
		return nil
	}

	n := min(count, i.devices)
	ids := make([]driver.DeviceID, 0, n)
	for k := 0; k < n; k++ {
		if k == 0 {
			ids = append(ids, driver.DeviceID(i.serial))
			continue
		}
		ids = append(ids, driver.DeviceID(fmt.Sprintf("%s-%d", i.serial, k)))
	}

	return ids
}

func (i *Instrument) Activate(id driver.DeviceID) driver.Reply[driver.Handle] {
	i.mu.Lock()
	defer i.mu.Unlock()

	switch {
	case i.faults.ActivateStatus != 0:
		return driver.Value(driver.Handle(i.faults.ActivateStatus))
	case !i.initialized:
		return driver.Value(driver.Handle(StatusInvalidState))
	case id != driver.DeviceID(i.serial):
		return driver.Value(driver.Handle(StatusDeviceNotFound))
	case i.active.Valid():
		return driver.Value(driver.Handle(StatusAccess))
	}

	i.active = i.nextHandle
	i.nextHandle++

	return driver.Value(i.active)
}

func (i *Instrument) GetPixelCount(h driver.Handle) driver.Reply[int] {
	i.mu.Lock()
	defer i.mu.Unlock()

	if h != i.active || !h.Valid() {
		return driver.Pair(StatusInvalidDeviceID, 0)
	}
	return driver.Pair(StatusSuccess, len(i.wavelengths))
}

func (i *Instrument) GetWavelengthTable(h driver.Handle) driver.Reply[[]float64] {
	i.mu.Lock()
	defer i.mu.Unlock()

	if h != i.active || !h.Valid() {
		return driver.Pair[[]float64](StatusInvalidDeviceID, nil)
	}

	table := make([]float64, len(i.wavelengths))
	copy(table, i.wavelengths)

	return driver.Pair(StatusSuccess, table)
}

func (i *Instrument) PrepareMeasurement(h driver.Handle, cfg driver.MeasConfig) driver.Reply[int] {
	i.mu.Lock()
	defer i.mu.Unlock()

	switch {
	case i.faults.PrepareStatus != 0:
		return driver.Value(i.faults.PrepareStatus)
	case h != i.active || !h.Valid():
		return driver.Value(StatusInvalidDeviceID)
	case i.measuring:
		return driver.Value(StatusOperationPending)
	case cfg.StartPixel < 0 || cfg.StopPixel >= len(i.wavelengths) || cfg.StartPixel > cfg.StopPixel:
		return driver.Value(StatusInvalidPixRange)
	case cfg.IntegrationTime <= 0:
		return driver.Value(StatusInvalidIntTime)
	case cfg.Averages == 0:
		return driver.Value(StatusInvalidParameter)
	}

	prepared := cfg
	i.prepared = &prepared

	return driver.Value(StatusSuccess)
}

func (i *Instrument) StartMeasurement(h driver.Handle, _ int, numMeasurements int) driver.Reply[int] {
	i.mu.Lock()
	defer i.mu.Unlock()

	switch {
	case i.faults.StartStatus != 0:
		return driver.Value(i.faults.StartStatus)
	case h != i.active || !h.Valid():
		return driver.Value(StatusInvalidDeviceID)
	case i.prepared == nil:
		return driver.Value(StatusInvalidState)
	case i.measuring:
		return driver.Value(StatusOperationPending)
	case numMeasurements != 1:
		return driver.Value(StatusInvalidParameter)
	}

	cfg := i.prepared
	exposure := time.Duration(cfg.IntegrationTime*float64(cfg.Averages)*float64(time.Millisecond)) +
		time.Duration(cfg.IntegrationDelay)*time.Microsecond

	i.measuring = true
	i.readyAt = i.now().Add(exposure)

	return driver.Value(StatusSuccess)
}

func (i *Instrument) PollReady(h driver.Handle) driver.Reply[bool] {
	i.mu.Lock()
	defer i.mu.Unlock()

	if h != i.active || !h.Valid() {
		return driver.Pair(StatusInvalidDeviceID, false)
	}
	if !i.measuring || i.faults.NeverReady {
		return driver.Pair(StatusSuccess, false)
	}
	return driver.Pair(StatusSuccess, !i.now().Before(i.readyAt))
}

func (i *Instrument) GetScopeData(h driver.Handle) driver.Reply[driver.ScopeData] {
	i.mu.Lock()
	defer i.mu.Unlock()

	if h != i.active || !h.Valid() {
		return driver.Pair(StatusInvalidDeviceID, driver.ScopeData{})
	}
	if !i.measuring || i.now().Before(i.readyAt) {
		return driver.Pair(StatusInvalidState, driver.ScopeData{})
	}

	i.measuring = false

	return driver.Pair(StatusSuccess, driver.ScopeData{
		//nolint:gosec // G115: tick counter wraps like the instrument's
		Timestamp:   uint32(i.readyAt.UnixMilli() * 100),
		Intensities: i.synthesize(*i.prepared),
	})
}

func (i *Instrument) StopMeasurement(h driver.Handle) driver.Reply[int] {
	i.mu.Lock()
	defer i.mu.Unlock()

	if h != i.active || !h.Valid() {
		return driver.Value(StatusInvalidDeviceID)
	}
	i.measuring = false

	return driver.Value(StatusSuccess)
}

func (i *Instrument) ReadAnalogInput(h driver.Handle, port int) driver.Reply[float64] {
	i.mu.Lock()
	defer i.mu.Unlock()

	switch {
	case i.faults.AnalogStatus != 0:
		return driver.Pair(i.faults.AnalogStatus, 0.0)
	case h != i.active || !h.Valid():
		return driver.Pair(StatusInvalidDeviceID, 0.0)
	case port < 0 || port >= analogPorts:
		return driver.Pair(StatusInvalidParameter, 0.0)
	}

	return driver.Pair(StatusSuccess, i.temperature)
}

func (i *Instrument) Deactivate(h driver.Handle) driver.Reply[int] {
	i.mu.Lock()
	defer i.mu.Unlock()

	if h != i.active || !h.Valid() {
		return driver.Value(StatusInvalidDeviceID)
	}
	i.active = 0
	i.prepared = nil
	i.measuring = false

	return driver.Value(StatusSuccess)
}

func (i *Instrument) ShutdownLibrary() driver.Reply[int] {
	i.mu.Lock()
	defer i.mu.Unlock()

	i.initialized = false
	i.active = 0
	i.prepared = nil
	i.measuring = false

	return driver.Value(StatusSuccess)
}

// synthesize renders the emission lines over a flat baseline. Must hold i.mu.
func (i *Instrument) synthesize(cfg driver.MeasConfig) []float64 {
	out := make([]float64, len(i.wavelengths))
	noise := noiseCounts / math.Sqrt(float64(cfg.Averages))

	for px, wl := range i.wavelengths {
		if px < cfg.StartPixel || px > cfg.StopPixel {
			continue
		}

		value := baselineCounts
		for _, line := range i.lines {
			d := (wl - line.Center) / line.Width
			value += line.Intensity * cfg.IntegrationTime * math.Exp(-0.5*d*d)
		}
		value += i.rng.NormFloat64() * noise

		out[px] = math.Max(0, math.Min(value, saturationCounts))
	}

	return out
}

func linspace(first, last float64, n int) []float64 {
	if n <= 0 {
		return nil
	}

	out := make([]float64, n)
	if n == 1 {
		out[0] = first
		return out
	}

	step := (last - first) / float64(n-1)
	for k := range out {
		out[k] = first + step*float64(k)
	}
	out[n-1] = last

	return out
}
