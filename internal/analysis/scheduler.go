// scheduler.go: background polling scheduler for the detection pipeline.
package analysis

import (
	"context"
	"sync"
	"time"

	"github.com/zoosonics/sawcall-go/internal/conf"
	"github.com/zoosonics/sawcall-go/internal/datastore"
	"github.com/zoosonics/sawcall-go/internal/errors"
	"github.com/zoosonics/sawcall-go/internal/observability"
)

// Scheduler state strings reported by Status.
const (
	SchedulerRunning = "Running"
	SchedulerStopped = "Stopped"
)

// Scheduler polls the queue for Pending recordings and feeds them through
// the pipeline one at a time. After enough consecutive idle cycles it sweeps
// recent failures back into the queue, bounded by a cooldown, a recency
// window, and a per-sweep cap.
type Scheduler struct {
	pipeline *Pipeline
	store    datastore.Interface
	settings *conf.Settings
	metrics  *observability.Metrics

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}

	// dispatchMu serializes batch drains against each other and against the
	// polling loop so a recording is never dispatched twice at once.
	dispatchMu sync.Mutex

	idleCycles int
	lastSweep  time.Time
}

// NewScheduler creates a scheduler around an assembled pipeline.
func NewScheduler(pipeline *Pipeline, settings *conf.Settings, metrics *observability.Metrics) *Scheduler {
	return &Scheduler{
		pipeline: pipeline,
		store:    pipeline.Store,
		settings: settings,
		metrics:  metrics,
	}
}

// Start launches the polling loop. Starting a running scheduler is a no-op.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		getLogger().Debug("scheduler already running")
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})
	s.running = true
	s.idleCycles = 0

	go s.loop(ctx)
	getLogger().Info("scheduler started",
		"poll_interval_s", s.settings.Scheduler.PollInterval,
		"retry_window_days", s.settings.Scheduler.RetryWindowDays)
}

// Stop signals the polling loop to exit and waits for it, bounded by the
// configured stop timeout. Stopping a stopped scheduler is a no-op.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	cancel := s.cancel
	done := s.done
	s.running = false
	s.mu.Unlock()

	cancel()

	timeout := time.Duration(s.settings.Scheduler.StopTimeout) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	select {
	case <-done:
		getLogger().Info("scheduler stopped")
	case <-time.After(timeout):
		getLogger().Warn("scheduler did not stop within timeout", "timeout", timeout)
	}
}

// Status reports whether the polling loop is active.
func (s *Scheduler) Status() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return SchedulerRunning
	}
	return SchedulerStopped
}

// StatusCounts returns the number of recordings per processing status and
// refreshes the queue depth gauges.
func (s *Scheduler) StatusCounts() (map[datastore.Status]int64, error) {
	counts, err := s.store.CountByStatus()
	if err != nil {
		return nil, err
	}
	if s.metrics != nil {
		for status, count := range counts {
			s.metrics.Scheduler.UpdateQueueDepth(string(status), count)
		}
	}
	return counts, nil
}

func (s *Scheduler) loop(ctx context.Context) {
	defer close(s.done)

	interval := time.Duration(s.settings.Scheduler.PollInterval) * time.Second
	if interval <= 0 {
		interval = 10 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.cycle(ctx)
		}
	}
}

// cycle runs one scheduler iteration: dispatch the oldest Pending recording
// if there is one, otherwise count the cycle as idle and consider a retry
// sweep.
func (s *Scheduler) cycle(ctx context.Context) {
	s.dispatchMu.Lock()
	defer s.dispatchMu.Unlock()

	rec, err := s.store.NextPending()
	if err != nil {
		getLogger().Error("could not poll for pending recordings", "error", err)
		s.recordCycle("error")
		return
	}

	if rec != nil {
		s.idleCycles = 0
		if _, err := s.pipeline.Process(ctx, rec.ID); err != nil {
			getLogger().Warn("recording failed during scheduled processing",
				"recording_id", rec.ID, "error", err)
		}
		s.recordCycle("processed")
		return
	}

	s.idleCycles++
	s.recordCycle("idle")
	s.maybeSweepFailures(ctx)
}

// maybeSweepFailures requeues recent failures once the queue has been idle
// long enough. Sweeps are rate limited by the retry cooldown, consider only
// failures inside the recency window, and requeue at most the configured
// batch size per sweep.
func (s *Scheduler) maybeSweepFailures(ctx context.Context) {
	cfg := s.settings.Scheduler
	if s.idleCycles < cfg.IdleCycles {
		return
	}
	cooldown := time.Duration(cfg.RetryCooldown) * time.Second
	if !s.lastSweep.IsZero() && time.Since(s.lastSweep) < cooldown {
		return
	}

	cutoff := time.Now().AddDate(0, 0, -cfg.RetryWindowDays)
	failed, err := s.store.FailedSince(cutoff, cfg.RetryBatchSize)
	if err != nil {
		getLogger().Error("could not list failed recordings for retry", "error", err)
		return
	}
	s.lastSweep = time.Now()
	s.idleCycles = 0
	if len(failed) == 0 {
		return
	}

	requeued := 0
	for _, record := range failed {
		if err := ctx.Err(); err != nil {
			return
		}
		result, err := s.store.RequeueFailed(record.RecordingID)
		if err != nil {
			getLogger().Warn("could not requeue failed recording",
				"recording_id", record.RecordingID, "error", err)
			continue
		}
		if result == datastore.TransitionStarted {
			requeued++
		}
	}

	getLogger().Info("retry sweep complete", "candidates", len(failed), "requeued", requeued)
	if s.metrics != nil {
		s.metrics.Scheduler.RecordRetrySweep(requeued)
	}
}

// ProcessAllPending drains every Pending recording through the pipeline in
// queue order. When another drain or a scheduler cycle holds the dispatch
// lock the call returns immediately with zero counts; the queue is already
// being serviced.
func (s *Scheduler) ProcessAllPending(ctx context.Context) (processed, failed int, err error) {
	if !s.dispatchMu.TryLock() {
		getLogger().Debug("dispatch already in progress, skipping batch run")
		if s.metrics != nil {
			s.metrics.Scheduler.RecordBatchRun("skipped")
		}
		return 0, 0, nil
	}
	defer s.dispatchMu.Unlock()

	jitter := time.Duration(s.settings.Scheduler.ProcessingJitter) * time.Second
	var lastID uint

	for {
		if err := ctx.Err(); err != nil {
			return processed, failed, err
		}

		rec, err := s.store.NextPending()
		if err != nil {
			return processed, failed, errors.New(err).
				Component("analysis").
				Category(errors.CategoryScheduler).
				Build()
		}
		if rec == nil {
			break
		}
		if rec.ID == lastID {
			// The head of the queue did not move, so a repeated claim
			// would spin forever. Leave it for the next run.
			getLogger().Warn("queue head did not advance, stopping batch run", "recording_id", rec.ID)
			break
		}
		lastID = rec.ID

		outcome, err := s.pipeline.Process(ctx, rec.ID)
		switch outcome {
		case OutcomeProcessed:
			processed++
		case OutcomeFailed:
			failed++
			getLogger().Warn("recording failed during batch processing",
				"recording_id", rec.ID, "error", err)
		case OutcomeSkipped:
			// Claimed elsewhere between the poll and the claim. Keep going.
		}

		if jitter > 0 {
			select {
			case <-ctx.Done():
				return processed, failed, ctx.Err()
			case <-time.After(jitter):
			}
		}
	}

	if s.metrics != nil {
		s.metrics.Scheduler.RecordBatchRun("completed")
	}
	getLogger().Info("batch run complete", "processed", processed, "failed", failed)
	return processed, failed, nil
}

func (s *Scheduler) recordCycle(outcome string) {
	if s.metrics != nil {
		s.metrics.Scheduler.RecordCycle(outcome)
	}
}
