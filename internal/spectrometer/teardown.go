package spectrometer

import (
	"fmt"

	"codeberg.org/mutker/avactl/internal/driver"
	"codeberg.org/mutker/avactl/internal/errors"
)

type teardownStep struct {
	name string
	run  func() error
}

// teardownSteps lists, in order, what releasing handle and the driver
// library takes. Steps for resources that were never acquired are left out.
// Must hold c.mu.
func (c *Client) teardownSteps(handle driver.Handle, stopMeasurement bool) []teardownStep {
	var steps []teardownStep

	if handle.Valid() {
		if stopMeasurement {
			steps = append(steps, teardownStep{
				name: "stop_measurement",
				run: func() error {
					return statusErr("stop_measurement", driver.Code(c.drv.StopMeasurement(handle)))
				},
			})
		}
		steps = append(steps, teardownStep{
			name: "deactivate",
			run: func() error {
				return statusErr("deactivate", driver.Code(c.drv.Deactivate(handle)))
			},
		})
	}

	steps = append(steps, teardownStep{
		name: "clear_handle",
		run: func() error {
			c.link.Store(nil)
			return nil
		},
	})

	if c.libraryUp {
		steps = append(steps, teardownStep{
			name: "shutdown_library",
			run: func() error {
				if err := statusErr("shutdown_library", driver.Code(c.drv.ShutdownLibrary())); err != nil {
					return err
				}
				c.libraryUp = false
				return nil
			},
		})
	}

	return steps
}

// runTeardown runs every step regardless of earlier failures and collects
// what went wrong.
func (c *Client) runTeardown(steps []teardownStep) TeardownReport {
	var report TeardownReport

	for _, step := range steps {
		if err := runStep(step); err != nil {
			warning := TeardownWarning{
				Step: step.name,
				Err:  errors.New().Wrap(ErrTeardown, err),
			}
			c.log.Warn().Err(err).Str("step", step.name).Msg("Teardown step failed")
			report.Warnings = append(report.Warnings, warning)
		}
	}

	return report
}

func runStep(step teardownStep) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	return step.run()
}

func statusErr(op string, code int) error {
	if code == 0 {
		return nil
	}
	return driver.NewStatusError(op, code)
}
