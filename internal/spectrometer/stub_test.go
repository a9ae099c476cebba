package spectrometer_test

import (
	"sync"

	"codeberg.org/mutker/avactl/internal/driver"
)

var _ driver.Driver = (*stubDriver)(nil)

// stubDriver scripts every primitive reply and counts calls.
type stubDriver struct {
	mu sync.Mutex

	initReply       driver.Reply[int]
	refreshReply    driver.Reply[int]
	devices         []driver.DeviceID
	activateReply   driver.Reply[driver.Handle]
	pixelReply      driver.Reply[int]
	wavelengthReply driver.Reply[[]float64]
	prepareReply    driver.Reply[int]
	startReply      driver.Reply[int]
	readyAfter      int // polls answered false before true; negative means never
	pollReply       *driver.Reply[bool]
	scopeReply      driver.Reply[driver.ScopeData]
	analogReply     driver.Reply[float64]
	stopReply       driver.Reply[int]
	deactivateReply driver.Reply[int]
	shutdownReply   driver.Reply[int]

	calls     map[string]int
	polls     int
	lastMeas  driver.MeasConfig
	inFlight  int
	overlaps  int
	lastPort  int
	scopeData []float64
}

func linspace(first, last float64, n int) []float64 {
	out := make([]float64, n)
	step := (last - first) / float64(n-1)
	for k := range out {
		out[k] = first + step*float64(k)
	}
	out[n-1] = last
	return out
}

func newStub() *stubDriver {
	scope := make([]float64, 2048)
	for k := range scope {
		scope[k] = float64(1000 + k)
	}

	return &stubDriver{
		initReply:       driver.Value(1),
		refreshReply:    driver.Value(1),
		devices:         []driver.DeviceID{"1502345U1"},
		activateReply:   driver.Value(driver.Handle(7)),
		pixelReply:      driver.Pair(0, 2048),
		wavelengthReply: driver.Pair(0, linspace(200, 900, 2048)),
		prepareReply:    driver.Value(0),
		startReply:      driver.Value(0),
		scopeReply:      driver.Value(driver.ScopeData{Timestamp: 42, Intensities: scope}),
		analogReply:     driver.Pair(0, 23.5),
		stopReply:       driver.Value(0),
		deactivateReply: driver.Value(0),
		shutdownReply:   driver.Value(0),
		calls:           map[string]int{},
		scopeData:       scope,
	}
}

func (s *stubDriver) enter(name string) {
	s.mu.Lock()
	s.calls[name]++
	s.inFlight++
	if s.inFlight > 1 {
		s.overlaps++
	}
	s.mu.Unlock()
}

func (s *stubDriver) leave() {
	s.mu.Lock()
	s.inFlight--
	s.mu.Unlock()
}

func (s *stubDriver) count(name string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[name]
}

func (s *stubDriver) InitLibrary(driver.Transport) driver.Reply[int] {
	s.enter("init")
	defer s.leave()
	return s.initReply
}

func (s *stubDriver) RefreshDeviceList() driver.Reply[int] {
	s.enter("refresh")
	defer s.leave()
	return s.refreshReply
}

func (s *stubDriver) ListDevices(int) []driver.DeviceID {
	s.enter("list")
	defer s.leave()
	return s.devices
}

func (s *stubDriver) Activate(driver.DeviceID) driver.Reply[driver.Handle] {
	s.enter("activate")
	defer s.leave()
	return s.activateReply
}

func (s *stubDriver) GetPixelCount(driver.Handle) driver.Reply[int] {
	s.enter("pixels")
	defer s.leave()
	return s.pixelReply
}

func (s *stubDriver) GetWavelengthTable(driver.Handle) driver.Reply[[]float64] {
	s.enter("wavelengths")
	defer s.leave()
	return s.wavelengthReply
}

func (s *stubDriver) PrepareMeasurement(_ driver.Handle, cfg driver.MeasConfig) driver.Reply[int] {
	s.enter("prepare")
	defer s.leave()
	s.mu.Lock()
	s.lastMeas = cfg
	s.polls = 0
	s.mu.Unlock()
	return s.prepareReply
}

func (s *stubDriver) StartMeasurement(driver.Handle, int, int) driver.Reply[int] {
	s.enter("start")
	defer s.leave()
	return s.startReply
}

func (s *stubDriver) PollReady(driver.Handle) driver.Reply[bool] {
	s.enter("poll")
	defer s.leave()
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pollReply != nil {
		return *s.pollReply
	}
	s.polls++
	if s.readyAfter < 0 {
		return driver.Value(false)
	}
	return driver.Value(s.polls > s.readyAfter)
}

func (s *stubDriver) GetScopeData(driver.Handle) driver.Reply[driver.ScopeData] {
	s.enter("scope")
	defer s.leave()
	return s.scopeReply
}

func (s *stubDriver) StopMeasurement(driver.Handle) driver.Reply[int] {
	s.enter("stop")
	defer s.leave()
	return s.stopReply
}

func (s *stubDriver) ReadAnalogInput(_ driver.Handle, port int) driver.Reply[float64] {
	s.enter("analog")
	defer s.leave()
	s.mu.Lock()
	s.lastPort = port
	s.mu.Unlock()
	return s.analogReply
}

func (s *stubDriver) Deactivate(driver.Handle) driver.Reply[int] {
	s.enter("deactivate")
	defer s.leave()
	return s.deactivateReply
}

func (s *stubDriver) ShutdownLibrary() driver.Reply[int] {
	s.enter("shutdown")
	defer s.leave()
	return s.shutdownReply
}
