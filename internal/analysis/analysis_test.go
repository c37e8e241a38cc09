package analysis

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zoosonics/sawcall-go/internal/conf"
	"github.com/zoosonics/sawcall-go/internal/datastore"
	"github.com/zoosonics/sawcall-go/internal/errors"
	"github.com/zoosonics/sawcall-go/internal/myaudio"
)

func testSettings(t *testing.T) *conf.Settings {
	t.Helper()

	s := &conf.Settings{}
	s.Output.SQLite.Enabled = true
	s.Output.SQLite.Path = filepath.Join(t.TempDir(), "test.db")
	s.Scheduler = conf.SchedulerSettings{
		PollInterval:    1,
		IdleCycles:      3,
		RetryCooldown:   3600,
		RetryWindowDays: 7,
		RetryBatchSize:  5,
		StopTimeout:     5,
	}
	s.Processing = conf.ProcessingSettings{
		TempPath:          filepath.Join(t.TempDir(), "artifacts"),
		ContentionRetries: 3,
		ContentionDelay:   10,
		SpeciesPrefixes:   []string{"amur_leopard", "amur_tiger"},
	}
	return s
}

func newTestEnv(t *testing.T, settings *conf.Settings) (*Pipeline, datastore.Interface) {
	t.Helper()

	store := datastore.New(settings)
	require.NotNil(t, store)
	require.NoError(t, store.Open())
	t.Cleanup(func() { _ = store.Close() })

	return NewPipeline(store, settings, nil), store
}

// writeBurstWAV writes a 5 second mono recording with 100 Hz tone bursts
// that the default detection parameters pick up as one event.
func writeBurstWAV(t *testing.T, dir, name string) string {
	t.Helper()

	const sampleRate = 1000
	data := make([]int, 5*sampleRate)
	for _, start := range []float64{0.5, 1.5, 2.5, 3.5} {
		from := int(start * sampleRate)
		for i := from; i < from+sampleRate/5 && i < len(data); i++ {
			ts := float64(i) / sampleRate
			data[i] = int(8000 * math.Sin(2*math.Pi*100*ts))
		}
	}

	path := filepath.Join(dir, name)
	out, err := os.Create(path)
	require.NoError(t, err)
	enc := wav.NewEncoder(out, sampleRate, 16, 1, 1)
	buf := &audio.IntBuffer{
		Data:           data,
		Format:         &audio.Format{SampleRate: sampleRate, NumChannels: 1},
		SourceBitDepth: 16,
	}
	require.NoError(t, enc.Write(buf))
	require.NoError(t, enc.Close())
	require.NoError(t, out.Close())
	return path
}

func writeGarbageWAV(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("definitely not audio"), 0o644))
	return path
}

func TestPipelineProcessesRecording(t *testing.T) {
	settings := testSettings(t)
	pipeline, store := newTestEnv(t, settings)
	ctx := context.Background()

	path := writeBurstWAV(t, t.TempDir(), "amur_leopard_SMM07257_20230201_171502.wav")
	rec, replaced, err := pipeline.RegisterFile(ctx, path)
	require.NoError(t, err)
	assert.False(t, replaced)
	assert.Equal(t, "amur_leopard", rec.Species)
	assert.Equal(t, "SMM07257", rec.FullDeviceID)

	outcome, err := pipeline.Process(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, OutcomeProcessed, outcome)

	record, err := store.ProcessingRecordFor(rec.ID)
	require.NoError(t, err)
	assert.Equal(t, datastore.StatusProcessed, record.Status)

	updated, err := store.GetRecording(rec.ID)
	require.NoError(t, err)
	assert.Equal(t, 1000, updated.SampleRate)
	assert.InDelta(t, 5.0, updated.Duration, 0.1)

	events, err := store.DetectedEventsFor(rec.ID)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, 4, events[0].ImpulseCount)

	logs, err := store.LogsFor(rec.ID)
	require.NoError(t, err)
	var eventLine string
	var sawSuccess bool
	for _, entry := range logs {
		if strings.Contains(entry.Message, "start=") {
			eventLine = entry.Message
		}
		if entry.Level == LogLevelSuccess {
			sawSuccess = true
		}
	}
	require.NotEmpty(t, eventLine, "expected a per-event log line")
	for _, token := range []string{"start=", "end=", "freq=", "mag=", "impulses="} {
		assert.Contains(t, eventLine, token)
	}
	assert.True(t, sawSuccess, "expected a success log entry")
}

func TestContentionRetryTagsExhaustedError(t *testing.T) {
	settings := testSettings(t)
	settings.Processing.ContentionRetries = 2
	settings.Processing.ContentionDelay = 1
	p := &Pipeline{Settings: settings}
	ctx := context.Background()

	calls := 0
	err := p.withContentionRetry(ctx, func() error {
		calls++
		return fmt.Errorf("database is locked")
	})
	require.Error(t, err)
	assert.Equal(t, 2, calls)
	assert.True(t, errors.HasCategory(err, errors.CategoryDBContention))
	assert.Contains(t, err.Error(), "database is locked")

	// An error already tagged as contention retries even without a known
	// driver message.
	calls = 0
	err = p.withContentionRetry(ctx, func() error {
		calls++
		return errors.New(fmt.Errorf("busy backend")).
			Category(errors.CategoryDBContention).
			Build()
	})
	require.Error(t, err)
	assert.Equal(t, 2, calls)

	// Non-transient errors are returned on the first attempt, untagged.
	calls = 0
	err = p.withContentionRetry(ctx, func() error {
		calls++
		return fmt.Errorf("syntax error")
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.False(t, errors.HasCategory(err, errors.CategoryDBContention))
}

type panickingSpectrogram struct{}

func (panickingSpectrogram) Generate(context.Context, *myaudio.AudioData, string) error {
	panic("corrupt frame table")
}

func TestPipelineRecoversFromPanickingGenerator(t *testing.T) {
	settings := testSettings(t)
	pipeline, store := newTestEnv(t, settings)
	pipeline.Spectrogram = panickingSpectrogram{}
	ctx := context.Background()

	path := writeBurstWAV(t, t.TempDir(), "SMM07257_20230201_171502.wav")
	rec, _, err := pipeline.RegisterFile(ctx, path)
	require.NoError(t, err)

	outcome, err := pipeline.Process(ctx, rec.ID)
	assert.Equal(t, OutcomeFailed, outcome)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "panic")

	// The recording is not stranded in Processing.
	record, err := store.ProcessingRecordFor(rec.ID)
	require.NoError(t, err)
	assert.Equal(t, datastore.StatusFailed, record.Status)
	assert.Contains(t, record.LastError, "panic")
}

func TestRegisterFileReplacesDuplicateName(t *testing.T) {
	settings := testSettings(t)
	pipeline, store := newTestEnv(t, settings)
	ctx := context.Background()

	first := writeBurstWAV(t, t.TempDir(), "SMM07257_20230201_171502.wav")
	rec, replaced, err := pipeline.RegisterFile(ctx, first)
	require.NoError(t, err)
	assert.False(t, replaced)

	// The same file name arriving from a different directory supersedes the
	// first upload.
	second := writeBurstWAV(t, t.TempDir(), "SMM07257_20230201_171502.wav")
	rec2, replaced, err := pipeline.RegisterFile(ctx, second)
	require.NoError(t, err)
	assert.True(t, replaced)
	assert.Equal(t, rec.ID, rec2.ID)

	updated, err := store.GetRecording(rec.ID)
	require.NoError(t, err)
	assert.NotEqual(t, first, updated.FilePath)
	assert.Positive(t, updated.FileSizeBytes)

	// The superseded content file is removed.
	_, err = os.Stat(first)
	assert.True(t, os.IsNotExist(err))
}

func TestPipelineFailureMarksFailed(t *testing.T) {
	settings := testSettings(t)
	pipeline, store := newTestEnv(t, settings)
	ctx := context.Background()

	path := writeGarbageWAV(t, t.TempDir(), "SMM07257_20230201_171502.wav")
	rec, _, err := pipeline.RegisterFile(ctx, path)
	require.NoError(t, err)

	outcome, err := pipeline.Process(ctx, rec.ID)
	assert.Equal(t, OutcomeFailed, outcome)
	assert.Error(t, err)

	record, err := store.ProcessingRecordFor(rec.ID)
	require.NoError(t, err)
	assert.Equal(t, datastore.StatusFailed, record.Status)
	assert.NotEmpty(t, record.LastError)

	logs, err := store.LogsFor(rec.ID)
	require.NoError(t, err)
	var sawError bool
	for _, entry := range logs {
		if entry.Level == LogLevelError {
			sawError = true
		}
	}
	assert.True(t, sawError, "expected an ERROR entry in the processing log")
}

func TestPipelineSkipsClaimedRecording(t *testing.T) {
	settings := testSettings(t)
	pipeline, store := newTestEnv(t, settings)
	ctx := context.Background()

	path := writeBurstWAV(t, t.TempDir(), "SMM07257_20230201_171502.wav")
	rec, _, err := pipeline.RegisterFile(ctx, path)
	require.NoError(t, err)

	// Another worker claims the recording first.
	result, err := store.BeginProcessing(rec.ID)
	require.NoError(t, err)
	require.Equal(t, datastore.TransitionStarted, result)

	outcome, err := pipeline.Process(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, OutcomeSkipped, outcome)
}

func TestPipelineConcurrentClaim(t *testing.T) {
	settings := testSettings(t)
	pipeline, _ := newTestEnv(t, settings)
	ctx := context.Background()

	path := writeBurstWAV(t, t.TempDir(), "SMM07257_20230201_171502.wav")
	rec, _, err := pipeline.RegisterFile(ctx, path)
	require.NoError(t, err)

	outcomes := make(chan ProcessOutcome, 2)
	for i := 0; i < 2; i++ {
		go func() {
			outcome, _ := pipeline.Process(ctx, rec.ID)
			outcomes <- outcome
		}()
	}

	results := map[ProcessOutcome]int{}
	for i := 0; i < 2; i++ {
		results[<-outcomes]++
	}
	assert.Equal(t, 1, results[OutcomeProcessed], "exactly one worker should process")
	assert.Equal(t, 1, results[OutcomeSkipped], "exactly one worker should skip")
}

func TestPipelineGeneratesArtifacts(t *testing.T) {
	settings := testSettings(t)
	settings.Processing.SpectrogramEnabled = true
	settings.Processing.ReportEnabled = true
	pipeline, store := newTestEnv(t, settings)
	ctx := context.Background()

	path := writeBurstWAV(t, t.TempDir(), "amur_leopard_SMM07257_20230201_171502.wav")
	rec, _, err := pipeline.RegisterFile(ctx, path)
	require.NoError(t, err)

	outcome, err := pipeline.Process(ctx, rec.ID)
	require.NoError(t, err)
	require.Equal(t, OutcomeProcessed, outcome)

	artifacts, err := store.ArtifactsFor(rec.ID)
	require.NoError(t, err)
	require.Len(t, artifacts, 2)

	kinds := map[string]string{}
	for _, a := range artifacts {
		kinds[a.Kind] = a.Path
		_, statErr := os.Stat(a.Path)
		assert.NoError(t, statErr, "artifact file %s should exist", a.Path)
	}
	require.Contains(t, kinds, ArtifactKindSpectrogram)
	require.Contains(t, kinds, ArtifactKindReport)

	report, err := os.ReadFile(kinds[ArtifactKindReport])
	require.NoError(t, err)
	assert.Contains(t, string(report), "start=")
	assert.Contains(t, string(report), "SMM07257")
}

func TestSchedulerRetrySweep(t *testing.T) {
	settings := testSettings(t)
	pipeline, store := newTestEnv(t, settings)
	scheduler := NewScheduler(pipeline, settings, nil)
	ctx := context.Background()

	fail := func(name string, failedAt time.Time) uint {
		path := writeGarbageWAV(t, t.TempDir(), name)
		rec, _, err := pipeline.RegisterFile(ctx, path)
		require.NoError(t, err)
		_, err = store.BeginProcessing(rec.ID)
		require.NoError(t, err)
		require.NoError(t, store.MarkFailed(rec.ID, fmt.Errorf("boom")))

		sqlite, ok := store.(*datastore.SQLiteStore)
		require.True(t, ok)
		require.NoError(t, sqlite.DB.Model(&datastore.ProcessingRecord{}).
			Where("recording_id = ?", rec.ID).
			Update("failed_at", failedAt).Error)
		return rec.ID
	}

	now := time.Now()
	staleID := fail("stale_20230101_000000.wav", now.AddDate(0, 0, -8))
	recentID := fail("recent_20230201_000000.wav", now.AddDate(0, 0, -2))

	// The sweep only fires after enough consecutive idle cycles.
	scheduler.idleCycles = settings.Scheduler.IdleCycles - 1
	scheduler.maybeSweepFailures(ctx)
	status := func(id uint) datastore.Status {
		record, err := store.ProcessingRecordFor(id)
		require.NoError(t, err)
		return record.Status
	}
	assert.Equal(t, datastore.StatusFailed, status(recentID))

	// At the idle threshold the recent failure is requeued, the stale one
	// stays outside the retry window. The sweep resets the idle counter.
	scheduler.idleCycles = settings.Scheduler.IdleCycles
	scheduler.maybeSweepFailures(ctx)
	assert.Equal(t, datastore.StatusPending, status(recentID))
	assert.Equal(t, datastore.StatusFailed, status(staleID))
	assert.Zero(t, scheduler.idleCycles)

	// A second sweep inside the cooldown does nothing, even with a fresh
	// eligible failure and the idle threshold reached again.
	lateID := fail("late_20230301_000000.wav", now.Add(-time.Minute))
	scheduler.idleCycles = settings.Scheduler.IdleCycles
	scheduler.maybeSweepFailures(ctx)
	assert.Equal(t, datastore.StatusFailed, status(lateID))

	// Once the cooldown has passed it is swept too.
	scheduler.lastSweep = now.Add(-2 * time.Hour)
	scheduler.maybeSweepFailures(ctx)
	assert.Equal(t, datastore.StatusPending, status(lateID))
}

func TestSchedulerRetrySweepRespectsBatchSize(t *testing.T) {
	settings := testSettings(t)
	settings.Scheduler.RetryBatchSize = 2
	pipeline, store := newTestEnv(t, settings)
	scheduler := NewScheduler(pipeline, settings, nil)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		path := writeGarbageWAV(t, t.TempDir(), fmt.Sprintf("f%d_20230201_000000.wav", i))
		rec, _, err := pipeline.RegisterFile(ctx, path)
		require.NoError(t, err)
		_, err = store.BeginProcessing(rec.ID)
		require.NoError(t, err)
		require.NoError(t, store.MarkFailed(rec.ID, fmt.Errorf("boom")))
	}

	scheduler.idleCycles = settings.Scheduler.IdleCycles
	scheduler.maybeSweepFailures(ctx)

	counts, err := store.CountByStatus()
	require.NoError(t, err)
	assert.Equal(t, int64(2), counts[datastore.StatusPending])
	assert.Equal(t, int64(2), counts[datastore.StatusFailed])
}

func TestProcessAllPending(t *testing.T) {
	settings := testSettings(t)
	pipeline, store := newTestEnv(t, settings)
	scheduler := NewScheduler(pipeline, settings, nil)
	ctx := context.Background()

	dir := t.TempDir()
	_, _, err := pipeline.RegisterFile(ctx, writeBurstWAV(t, dir, "good_20230201_171502.wav"))
	require.NoError(t, err)
	_, _, err = pipeline.RegisterFile(ctx, writeGarbageWAV(t, dir, "bad_20230201_171503.wav"))
	require.NoError(t, err)

	processed, failed, err := scheduler.ProcessAllPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, processed)
	assert.Equal(t, 1, failed)

	counts, err := store.CountByStatus()
	require.NoError(t, err)
	assert.Equal(t, int64(0), counts[datastore.StatusPending])
	assert.Equal(t, int64(1), counts[datastore.StatusProcessed])
	assert.Equal(t, int64(1), counts[datastore.StatusFailed])
}

func TestProcessAllPendingSkipsWhenDispatchBusy(t *testing.T) {
	settings := testSettings(t)
	pipeline, _ := newTestEnv(t, settings)
	scheduler := NewScheduler(pipeline, settings, nil)
	ctx := context.Background()

	_, _, err := pipeline.RegisterFile(ctx, writeBurstWAV(t, t.TempDir(), "good_20230201_171502.wav"))
	require.NoError(t, err)

	scheduler.dispatchMu.Lock()
	defer scheduler.dispatchMu.Unlock()

	processed, failed, err := scheduler.ProcessAllPending(ctx)
	require.NoError(t, err)
	assert.Zero(t, processed)
	assert.Zero(t, failed)
}

func TestSchedulerStartStop(t *testing.T) {
	settings := testSettings(t)
	pipeline, _ := newTestEnv(t, settings)
	scheduler := NewScheduler(pipeline, settings, nil)

	assert.Equal(t, SchedulerStopped, scheduler.Status())

	scheduler.Start()
	assert.Equal(t, SchedulerRunning, scheduler.Status())

	// Starting again is a no-op.
	scheduler.Start()
	assert.Equal(t, SchedulerRunning, scheduler.Status())

	scheduler.Stop()
	assert.Equal(t, SchedulerStopped, scheduler.Status())

	// Stopping again is a no-op.
	scheduler.Stop()
	assert.Equal(t, SchedulerStopped, scheduler.Status())
}

func TestProcessOutcomeString(t *testing.T) {
	assert.Equal(t, "processed", OutcomeProcessed.String())
	assert.Equal(t, "skipped", OutcomeSkipped.String())
	assert.Equal(t, "failed", OutcomeFailed.String())
}
