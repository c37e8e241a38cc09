// Package analysis drives the saw-call detection pipeline and its background
// scheduler.
package analysis

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/zoosonics/sawcall-go/internal/conf"
	"github.com/zoosonics/sawcall-go/internal/datastore"
	"github.com/zoosonics/sawcall-go/internal/errors"
	"github.com/zoosonics/sawcall-go/internal/myaudio"
	"github.com/zoosonics/sawcall-go/internal/observability"
	"github.com/zoosonics/sawcall-go/internal/sawcall"
)

// Processing log levels stored with each per-recording log entry.
const (
	LogLevelInfo    = "INFO"
	LogLevelWarning = "WARNING"
	LogLevelError   = "ERROR"
	LogLevelSuccess = "SUCCESS"
)

// ProcessOutcome reports how a pipeline run for one recording ended.
type ProcessOutcome int

const (
	// OutcomeProcessed means detection completed and results were stored.
	OutcomeProcessed ProcessOutcome = iota
	// OutcomeSkipped means another worker claimed the recording first.
	OutcomeSkipped
	// OutcomeFailed means processing started but could not complete.
	OutcomeFailed
)

func (o ProcessOutcome) String() string {
	switch o {
	case OutcomeProcessed:
		return "processed"
	case OutcomeSkipped:
		return "skipped"
	case OutcomeFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Pipeline processes recordings end to end: claim, decode, detect, persist.
type Pipeline struct {
	Store    datastore.Interface
	Settings *conf.Settings
	Metrics  *observability.Metrics // optional

	// Optional artifact generators, run after successful detection.
	Spectrogram SpectrogramGenerator
	Report      ReportGenerator
}

// NewPipeline assembles a pipeline over the given store and settings.
func NewPipeline(store datastore.Interface, settings *conf.Settings, metrics *observability.Metrics) *Pipeline {
	p := &Pipeline{
		Store:    store,
		Settings: settings,
		Metrics:  metrics,
	}
	if settings.Processing.SpectrogramEnabled {
		p.Spectrogram = &PNGSpectrogramGenerator{}
	}
	if settings.Processing.ReportEnabled {
		p.Report = &TextReportGenerator{}
	}
	return p
}

// Process runs the full detection pipeline for one recording. The recording
// is claimed with a guarded status transition first, so concurrent calls for
// the same recording result in exactly one processing run; the losers return
// OutcomeSkipped.
//
// A failure after the claim moves the recording to Failed and returns
// OutcomeFailed together with the causing error. Process never leaves a
// recording stuck in Processing.
func (p *Pipeline) Process(ctx context.Context, recordingID uint) (ProcessOutcome, error) {
	start := time.Now()

	var claim datastore.TransitionResult
	err := p.withContentionRetry(ctx, func() error {
		var err error
		claim, err = p.Store.BeginProcessing(recordingID)
		return err
	})
	if err != nil {
		return OutcomeFailed, errors.New(err).
			Component("analysis").
			Category(errors.CategoryDatabase).
			Context("recording_id", recordingID).
			Build()
	}
	if claim == datastore.TransitionAlreadyInProgress {
		getLogger().Debug("recording already claimed, skipping", "recording_id", recordingID)
		p.recordOutcome(OutcomeSkipped, start)
		return OutcomeSkipped, nil
	}

	outcome, err := p.safeRun(ctx, recordingID)
	p.recordOutcome(outcome, start)
	return outcome, err
}

// safeRun confines panics from decoders, database drivers, and artifact
// generators to the recording being processed. The recording moves to Failed
// and the caller's loop keeps running.
func (p *Pipeline) safeRun(ctx context.Context, recordingID uint) (outcome ProcessOutcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			getLogger().Error("panic while processing recording",
				"recording_id", recordingID, "panic", r)
			outcome, err = p.fail(ctx, recordingID, fmt.Errorf("panic: %v", r))
		}
	}()
	return p.run(ctx, recordingID)
}

// run executes the pipeline body after the recording has been claimed. Any
// error is logged to the recording's processing log and the recording is
// moved to Failed.
func (p *Pipeline) run(ctx context.Context, recordingID uint) (ProcessOutcome, error) {
	rec, err := p.Store.GetRecording(recordingID)
	if err != nil {
		return p.fail(ctx, recordingID, err)
	}

	logger := getLogger().With("recording_id", rec.ID, "file", rec.FileName)
	logger.Info("processing recording")
	p.appendLog(ctx, rec.ID, LogLevelInfo, fmt.Sprintf("Processing started for %s", rec.FileName))

	audio, err := p.decode(ctx, rec)
	if err != nil {
		return p.fail(ctx, recordingID, err)
	}

	rec.SampleRate = audio.SampleRate
	rec.Duration = audio.Duration()
	err = p.withContentionRetry(ctx, func() error {
		return p.Store.UpdateRecordingMetadata(rec)
	})
	if err != nil {
		return p.fail(ctx, recordingID, err)
	}

	params := sawcall.ResolveParameters(p.Store, rec.Species)
	events := sawcall.Detect(audio.Samples, audio.SampleRate, params)
	logger.Info("detection complete", "events", len(events), "duration_s", rec.Duration)

	if p.Metrics != nil {
		p.Metrics.Pipeline.RecordEventsDetected(rec.Species, len(events))
	}

	err = p.withContentionRetry(ctx, func() error {
		return p.Store.SaveDetectedEvents(rec.ID, events)
	})
	if err != nil {
		return p.fail(ctx, recordingID, err)
	}

	for _, e := range events {
		message := fmt.Sprintf("Saw call detected: start=%s, end=%s, freq=%.2f, mag=%.2f, impulses=%d",
			e.StartTimestamp(), e.EndTimestamp(), e.PeakFrequency, e.PeakMagnitude, e.ImpulseCount)
		p.appendLog(ctx, rec.ID, LogLevelInfo, message)
	}
	p.appendLog(ctx, rec.ID, LogLevelInfo,
		fmt.Sprintf("Detection complete: %d saw call(s) found", len(events)))

	// Artifact generation is best effort. A failed spectrogram or report
	// never fails the recording.
	artifacts := p.generateArtifacts(ctx, rec, audio, events)

	err = p.withContentionRetry(ctx, func() error {
		return p.Store.MarkProcessed(recordingID)
	})
	if err != nil {
		p.cleanupArtifacts(recordingID, artifacts)
		return p.fail(ctx, recordingID, err)
	}

	p.appendLog(ctx, rec.ID, LogLevelSuccess,
		fmt.Sprintf("Processing complete: %d saw call(s) found", len(events)))
	logger.Info("processing finished", "events", len(events))
	return OutcomeProcessed, nil
}

// decode reads and decodes the recording's audio file, reporting decode
// metrics per container format.
func (p *Pipeline) decode(ctx context.Context, rec *datastore.Recording) (*myaudio.AudioData, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	format := strings.TrimPrefix(strings.ToLower(filepath.Ext(rec.FilePath)), ".")
	if format == "" {
		format = "unknown"
	}

	start := time.Now()
	audio, err := myaudio.ReadAudioFile(rec.FilePath)
	if p.Metrics != nil {
		status := "success"
		if err != nil {
			status = "error"
		}
		p.Metrics.Pipeline.RecordDecode(format, status, time.Since(start).Seconds())
	}
	if err != nil {
		return nil, err
	}
	return audio, nil
}

// fail records the error on the recording and transitions it to Failed.
func (p *Pipeline) fail(ctx context.Context, recordingID uint, cause error) (ProcessOutcome, error) {
	getLogger().Error("processing failed", "recording_id", recordingID, "error", cause)
	p.appendLog(ctx, recordingID, LogLevelError, fmt.Sprintf("Processing failed: %v", cause))

	err := p.withContentionRetry(ctx, func() error {
		return p.Store.MarkFailed(recordingID, cause)
	})
	if err != nil {
		getLogger().Error("could not mark recording as failed",
			"recording_id", recordingID, "error", err)
	}
	return OutcomeFailed, cause
}

// appendLog writes a per-recording log entry, tolerating storage errors.
func (p *Pipeline) appendLog(ctx context.Context, recordingID uint, level, message string) {
	err := p.withContentionRetry(ctx, func() error {
		return p.Store.AppendLog(recordingID, level, message)
	})
	if err != nil {
		getLogger().Warn("could not append processing log",
			"recording_id", recordingID, "level", level, "error", err)
	}
}

func (p *Pipeline) recordOutcome(outcome ProcessOutcome, start time.Time) {
	if p.Metrics == nil {
		return
	}
	p.Metrics.Pipeline.RecordProcessingOutcome(outcome.String(), time.Since(start).Seconds())
}
