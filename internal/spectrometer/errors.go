package spectrometer

import "codeberg.org/mutker/avactl/internal/errors"

const (
	// Connection Errors
	ErrInit         = errors.ErrorCode("spectrometer_init_failed")
	ErrEnumeration  = errors.ErrorCode("spectrometer_enumeration_failed")
	ErrActivation   = errors.ErrorCode("spectrometer_activation_failed")
	ErrDeviceInfo   = errors.ErrorCode("spectrometer_device_info_failed")
	ErrNotConnected = errors.ErrorCode("spectrometer_not_connected")

	// Measurement Errors
	ErrInvalidConfig       = errors.ErrorCode("spectrometer_invalid_measurement_config")
	ErrConfiguration       = errors.ErrorCode("spectrometer_prepare_failed")
	ErrMeasurementStart    = errors.ErrorCode("spectrometer_measure_start_failed")
	ErrMeasurementTimeout  = errors.ErrorCode("spectrometer_measure_timeout")
	ErrMeasurementCanceled = errors.ErrorCode("spectrometer_measure_canceled")
	ErrScopeData           = errors.ErrorCode("spectrometer_scope_data_failed")

	// Auxiliary Channel Errors
	ErrTemperatureRead = errors.ErrorCode("spectrometer_temperature_read_failed")

	// Teardown Warnings
	ErrTeardown = errors.ErrorCode("spectrometer_teardown_warning")
)

func init() {
	for code, msg := range map[errors.ErrorCode]string{
		ErrInit:                "Driver library initialization failed",
		ErrEnumeration:         "No spectrometer found",
		ErrActivation:          "Spectrometer activation failed",
		ErrDeviceInfo:          "Failed to read instrument properties",
		ErrNotConnected:        "Spectrometer not connected",
		ErrInvalidConfig:       "Invalid measurement configuration",
		ErrConfiguration:       "Measurement preparation rejected",
		ErrMeasurementStart:    "Failed to start measurement",
		ErrMeasurementTimeout:  "Measurement timed out waiting for data",
		ErrMeasurementCanceled: "Measurement canceled",
		ErrScopeData:           "Failed to retrieve spectrum",
		ErrTemperatureRead:     "Failed to read analog input",
		ErrTeardown:            "Teardown step failed",
	} {
		errors.RegisterMessage(code, msg)
	}
}

// TeardownWarning records one teardown step that failed. It is reported,
// never returned as an error from Disconnect.
type TeardownWarning struct {
	Step string
	Err  error
}

func (w TeardownWarning) Error() string {
	return w.Step + ": " + w.Err.Error()
}

func (w TeardownWarning) Unwrap() error {
	return w.Err
}

// TeardownReport lists the warnings collected by one Disconnect.
type TeardownReport struct {
	Warnings []TeardownWarning
}

// Clean reports whether every teardown step succeeded.
func (r TeardownReport) Clean() bool {
	return len(r.Warnings) == 0
}
