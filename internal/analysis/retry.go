package analysis

import (
	"context"
	"time"

	"github.com/zoosonics/sawcall-go/internal/datastore"
	"github.com/zoosonics/sawcall-go/internal/errors"
)

// withContentionRetry runs op, retrying a bounded number of times when the
// error looks like transient database lock contention. The delay grows
// linearly with the attempt number. Non-transient errors are returned
// immediately; exhausted retries return the last error tagged with the
// contention category.
func (p *Pipeline) withContentionRetry(ctx context.Context, op func() error) error {
	attempts := p.Settings.Processing.ContentionRetries
	if attempts < 1 {
		attempts = 1
	}
	baseDelay := time.Duration(p.Settings.Processing.ContentionDelay) * time.Millisecond

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		err = op()
		if err == nil || !isContention(err) {
			return err
		}
		if attempt == attempts {
			break
		}

		if p.Metrics != nil {
			p.Metrics.Pipeline.RecordContentionRetry()
		}
		getLogger().Warn("database contention, retrying",
			"attempt", attempt, "max_attempts", attempts, "error", err)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(baseDelay * time.Duration(attempt)):
		}
	}
	return errors.New(err).
		Component("analysis").
		Category(errors.CategoryDBContention).
		Context("attempts", attempts).
		Build()
}

// isContention reports whether an error is transient lock contention, either
// recognized from the driver message or already categorized as such.
func isContention(err error) bool {
	return datastore.IsTransientError(err) || errors.HasCategory(err, errors.CategoryDBContention)
}
