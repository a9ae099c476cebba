package metrics

import (
	"context"
	"time"
)

// Collector records one snapshot per measurement.
type Collector interface {
	Record(ctx context.Context, snapshot *Snapshot) error
	Close() error
}

// Repository defines the interface for measurement log storage
type Repository interface {
	Record(snapshot *Snapshot) error
	Close() error
}

// Snapshot summarizes one completed measurement.
type Snapshot struct {
	Timestamp   time.Time
	Measurement MeasurementMetrics
	Spectrum    SpectrumMetrics
	Temperature TempMetrics
}

type MeasurementMetrics struct {
	IntegrationTime  float64 // ms
	Averages         int
	IntegrationDelay int // µs
}

type SpectrumMetrics struct {
	Pixels         int
	Min            float64
	Max            float64
	Mean           float64
	PeakWavelength float64
}

// TempMetrics is the analog read taken after the measurement. Valid is false
// when that read failed.
type TempMetrics struct {
	Value float64
	Valid bool
}
