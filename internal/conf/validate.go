// validate.go: validation of loaded settings
package conf

import (
	"errors"
	"fmt"
)

// ValidateSettings checks the loaded settings for values the rest of the
// application cannot work with. It collects all problems instead of stopping
// at the first one.
func ValidateSettings(settings *Settings) error {
	var errs []error

	if settings.Scheduler.PollInterval <= 0 {
		errs = append(errs, fmt.Errorf("scheduler.pollinterval must be positive, got %d", settings.Scheduler.PollInterval))
	}
	if settings.Scheduler.IdleCycles < 1 {
		errs = append(errs, fmt.Errorf("scheduler.idlecycles must be at least 1, got %d", settings.Scheduler.IdleCycles))
	}
	if settings.Scheduler.RetryWindowDays < 0 {
		errs = append(errs, fmt.Errorf("scheduler.retrywindowdays must not be negative, got %d", settings.Scheduler.RetryWindowDays))
	}
	if settings.Scheduler.RetryBatchSize < 1 {
		errs = append(errs, fmt.Errorf("scheduler.retrybatchsize must be at least 1, got %d", settings.Scheduler.RetryBatchSize))
	}
	if settings.Processing.ContentionRetries < 1 {
		errs = append(errs, fmt.Errorf("processing.contentionretries must be at least 1, got %d", settings.Processing.ContentionRetries))
	}

	if !settings.Output.SQLite.Enabled && !settings.Output.MySQL.Enabled {
		errs = append(errs, errors.New("no database backend enabled, enable output.sqlite or output.mysql"))
	}
	if settings.Output.SQLite.Enabled && settings.Output.SQLite.Path == "" {
		errs = append(errs, errors.New("output.sqlite.path must be set when SQLite is enabled"))
	}
	if settings.Output.MySQL.Enabled {
		if settings.Output.MySQL.Database == "" || settings.Output.MySQL.Host == "" {
			errs = append(errs, errors.New("output.mysql requires database and host"))
		}
	}

	return errors.Join(errs...)
}
