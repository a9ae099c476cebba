// Package spectrometer owns the connection to one spectrometer and runs
// single measurements on it.
//
// A Client moves between Disconnected and Connected. Connect activates the
// first device the driver enumerates and captures its pixel count and
// wavelength table; Disconnect always returns the client to Disconnected,
// whatever the driver reports. All handle access is serialized, so one
// Client drives one instrument from any number of goroutines, one call at a
// time.
package spectrometer

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"codeberg.org/mutker/avactl/internal/driver"
	"codeberg.org/mutker/avactl/internal/errors"
	"codeberg.org/mutker/avactl/internal/logger"
)

// Client is the acquisition client for one instrument.
type Client struct {
	drv          driver.Driver
	log          logger.Logger
	pollInterval time.Duration
	pollAttempts int

	mu        sync.Mutex
	libraryUp bool
	link      atomic.Pointer[link]
}

// link is the connected view of a Client. It exists only between a
// successful Connect and the next Disconnect, so holding one proves the
// handle is valid and the properties are present.
type link struct {
	drv          driver.Driver
	log          logger.Logger
	handle       driver.Handle
	props        Properties
	pollInterval time.Duration
	pollAttempts int
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the logger used by the client.
func WithLogger(log logger.Logger) Option {
	return func(c *Client) {
		c.log = log
	}
}

// WithPolling overrides the readiness poll bound. The default is 1000
// attempts 10 ms apart, roughly a 10 s ceiling per measurement.
func WithPolling(interval time.Duration, attempts int) Option {
	return func(c *Client) {
		if interval > 0 {
			c.pollInterval = interval
		}
		if attempts > 0 {
			c.pollAttempts = attempts
		}
	}
}

// New returns a disconnected Client driving drv.
func New(drv driver.Driver, opts ...Option) *Client {
	c := &Client{
		drv:          drv,
		log:          logger.Default(),
		pollInterval: defaultPollInterval,
		pollAttempts: defaultPollAttempts,
	}
	for _, opt := range opts {
		opt(c)
	}

	return c
}

// State reports the connection state without waiting on a running
// measurement.
func (c *Client) State() State {
	if c.link.Load() == nil {
		return Disconnected
	}
	return Connected
}

// Connect initializes the driver library, activates the first enumerated
// device and reads its properties. Calling it while connected does nothing.
// On failure everything acquired so far is released and the client stays
// Disconnected.
func (c *Client) Connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.link.Load() != nil {
		return nil
	}

	l, err := c.open()
	if err != nil {
		return err
	}

	c.link.Store(l)
	c.log.Info().
		Int("handle", int(l.handle)).
		Int("pixels", l.props.PixelCount).
		Float64("wavelength_min", l.props.Wavelengths[0]).
		Float64("wavelength_max", l.props.Wavelengths[l.props.PixelCount-1]).
		Msg("Spectrometer connected")

	return nil
}

func (c *Client) open() (*link, error) {
	errFactory := errors.New()

	n := driver.Code(c.drv.InitLibrary(driver.TransportUSB))
	c.libraryUp = true
	if n <= 0 {
		c.rollback(0)
		return nil, errFactory.Wrap(ErrInit, driver.NewStatusError("init_library", n))
	}
	c.log.Debug().Int("status", n).Msg("Driver library initialized")

	count := driver.Code(c.drv.RefreshDeviceList())
	if count <= 0 {
		c.rollback(0)
		return nil, errFactory.Wrap(ErrEnumeration, driver.NewStatusError("refresh_device_list", count))
	}

	devices := c.drv.ListDevices(count)
	if len(devices) == 0 {
		c.rollback(0)
		return nil, errFactory.WithData(ErrEnumeration, struct {
			Phase string
			Count int
		}{
			Phase: "list_devices",
			Count: count,
		})
	}
	c.log.Debug().Int("count", len(devices)).Str("device", string(devices[0])).Msg("Devices enumerated")

	handle := driver.Code(c.drv.Activate(devices[0]))
	if !handle.Valid() {
		c.rollback(0)
		return nil, errFactory.Wrap(ErrActivation, driver.NewStatusError("activate", int(handle)))
	}

	props, err := c.readProperties(handle)
	if err != nil {
		c.rollback(handle)
		return nil, err
	}

	return &link{
		drv:          c.drv,
		log:          c.log,
		handle:       handle,
		props:        props,
		pollInterval: c.pollInterval,
		pollAttempts: c.pollAttempts,
	}, nil
}

func (c *Client) readProperties(handle driver.Handle) (Properties, error) {
	errFactory := errors.New()

	pixels := c.drv.GetPixelCount(handle)
	if driver.Failed(pixels) {
		return Properties{}, errFactory.Wrap(ErrDeviceInfo,
			driver.NewStatusError("get_pixel_count", driver.StatusOf(pixels)))
	}
	pixelCount := driver.Payload(pixels)
	if pixelCount <= 0 {
		return Properties{}, errFactory.WithData(ErrDeviceInfo, fmt.Sprintf("pixel count %d", pixelCount))
	}

	table := c.drv.GetWavelengthTable(handle)
	if driver.Failed(table) {
		return Properties{}, errFactory.Wrap(ErrDeviceInfo,
			driver.NewStatusError("get_wavelength_table", driver.StatusOf(table)))
	}
	raw := driver.Payload(table)
	if len(raw) < pixelCount {
		return Properties{}, errFactory.WithData(ErrDeviceInfo, struct {
			Phase string
			Want  int
			Got   int
		}{
			Phase: "wavelength_table",
			Want:  pixelCount,
			Got:   len(raw),
		})
	}

	wavelengths := make([]float64, pixelCount)
	copy(wavelengths, raw[:pixelCount])

	return Properties{PixelCount: pixelCount, Wavelengths: wavelengths}, nil
}

// rollback releases what a failed Connect acquired. Must hold c.mu.
func (c *Client) rollback(handle driver.Handle) {
	report := c.runTeardown(c.teardownSteps(handle, false))
	if !report.Clean() {
		c.log.Debug().Int("warnings", len(report.Warnings)).Msg("Connect rollback incomplete")
	}
}

// Disconnect stops any measurement, deactivates the instrument and shuts the
// driver library down. It is safe in any state and never fails: the client
// always ends Disconnected, and driver-side failures come back as warnings
// in the report.
func (c *Client) Disconnect() TeardownReport {
	c.mu.Lock()
	defer c.mu.Unlock()

	var handle driver.Handle
	if l := c.link.Load(); l != nil {
		handle = l.handle
	}

	report := c.runTeardown(c.teardownSteps(handle, true))
	if handle.Valid() {
		c.log.Info().Int("warnings", len(report.Warnings)).Msg("Spectrometer disconnected")
	}

	return report
}

// Properties returns a copy of the instrument properties.
func (c *Client) Properties() (Properties, error) {
	l, err := c.connected()
	if err != nil {
		return Properties{}, err
	}

	wavelengths := make([]float64, len(l.props.Wavelengths))
	copy(wavelengths, l.props.Wavelengths)

	return Properties{PixelCount: l.props.PixelCount, Wavelengths: wavelengths}, nil
}

// Wavelengths returns a copy of the wavelength table, one entry per pixel.
func (c *Client) Wavelengths() ([]float64, error) {
	props, err := c.Properties()
	if err != nil {
		return nil, err
	}
	return props.Wavelengths, nil
}

// PixelCount returns the number of detector pixels.
func (c *Client) PixelCount() (int, error) {
	l, err := c.connected()
	if err != nil {
		return 0, err
	}
	return l.props.PixelCount, nil
}

func (c *Client) connected() (*link, error) {
	l := c.link.Load()
	if l == nil {
		return nil, errors.New().New(ErrNotConnected)
	}
	return l, nil
}
