package call

import (
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
)

// StepResult records the outcome of one fault-isolated collaborator call.
type StepResult struct {
	Step string
	Err  error
}

// OK reports whether the step succeeded.
func (r StepResult) OK() bool {
	return r.Err == nil
}

// isolate runs fn so that neither an error nor a panic escapes the adapter
// boundary. Failures are logged and returned as data.
func isolate(step string, fn func() error) (res StepResult) {
	res.Step = step
	defer func() {
		if r := recover(); r != nil {
			res.Err = fmt.Errorf("%s panicked: %v", step, r)
			logrus.WithFields(logrus.Fields{
				"function": "isolate",
				"step":     step,
				"panic":    r,
			}).Error("Collaborator panicked")
		}
	}()

	if err := fn(); err != nil {
		res.Err = err
		logrus.WithFields(logrus.Fields{
			"function": "isolate",
			"step":     step,
			"error":    err.Error(),
		}).Warn("Collaborator step failed")
	}
	return res
}

// joinStepErrors folds failed steps into a single error, or nil.
func joinStepErrors(results []StepResult) error {
	var errs []error
	for _, r := range results {
		if r.Err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", r.Step, r.Err))
		}
	}
	return errors.Join(errs...)
}
