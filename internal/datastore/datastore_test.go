package datastore

import (
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zoosonics/sawcall-go/internal/conf"
	"github.com/zoosonics/sawcall-go/internal/sawcall"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	settings := &conf.Settings{}
	settings.Output.SQLite.Enabled = true
	settings.Output.SQLite.Path = filepath.Join(t.TempDir(), "test.db")

	store := &SQLiteStore{Settings: settings}
	require.NoError(t, store.Open())
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func testUpload(path string) *UploadedRecording {
	return &UploadedRecording{
		FilePath:       path,
		FileName:       filepath.Base(path),
		Species:        "amur_leopard",
		DeviceType:     "SMM",
		DeviceID:       "07257",
		FullDeviceID:   "SMM07257",
		RecordingStart: time.Date(2023, 2, 1, 17, 15, 2, 0, time.UTC),
		SampleRate:     48000,
		Duration:       60,
	}
}

func TestReplaceOrCreateNewRecording(t *testing.T) {
	store := newTestStore(t)

	rec, replaced, replacedID, err := store.ReplaceOrCreate(testUpload("/data/a.wav"))
	require.NoError(t, err)
	assert.False(t, replaced)
	assert.Zero(t, replacedID)
	require.NotZero(t, rec.ID)

	record, err := store.ProcessingRecordFor(rec.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, record.Status)
	assert.False(t, record.QueuedAt.IsZero())
}

func TestReplaceOrCreateReplacesDuplicate(t *testing.T) {
	store := newTestStore(t)

	first, _, _, err := store.ReplaceOrCreate(testUpload("/data/a.wav"))
	require.NoError(t, err)

	// Give the first upload some processing history.
	_, err = store.BeginProcessing(first.ID)
	require.NoError(t, err)
	require.NoError(t, store.SaveDetectedEvents(first.ID, []sawcall.Event{
		{Start: 1, End: 2, PeakMagnitude: 4000, PeakFrequency: 100, ImpulseCount: 3},
	}))
	require.NoError(t, store.AppendLog(first.ID, "INFO", "processed"))
	require.NoError(t, store.MarkProcessed(first.ID))

	// Same display name from a different upload path is a duplicate.
	second, replaced, replacedID, err := store.ReplaceOrCreate(testUpload("/incoming/a.wav"))
	require.NoError(t, err)
	assert.True(t, replaced)
	assert.Equal(t, first.ID, replacedID)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "/incoming/a.wav", second.FilePath)

	// The old detection results are gone and the lifecycle restarts from
	// Pending, with the replacement noted in the processing log.
	events, err := store.DetectedEventsFor(second.ID)
	require.NoError(t, err)
	assert.Empty(t, events)

	record, err := store.ProcessingRecordFor(second.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, record.Status)
	assert.Zero(t, record.AttemptCount)

	logs, err := store.LogsFor(second.ID)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	levels := []string{logs[0].Level, logs[1].Level}
	assert.Contains(t, levels, "WARNING")
	assert.Contains(t, levels, "SUCCESS")
}

func TestRecordingByName(t *testing.T) {
	store := newTestStore(t)

	rec, _, _, err := store.ReplaceOrCreate(testUpload("/data/a.wav"))
	require.NoError(t, err)

	found, err := store.RecordingByName("a.wav")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, rec.ID, found.ID)

	missing, err := store.RecordingByName("nope.wav")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestGuardedClaim(t *testing.T) {
	store := newTestStore(t)
	rec, _, _, err := store.ReplaceOrCreate(testUpload("/data/a.wav"))
	require.NoError(t, err)

	result, err := store.BeginProcessing(rec.ID)
	require.NoError(t, err)
	assert.Equal(t, TransitionStarted, result)

	// A second claim loses.
	result, err = store.BeginProcessing(rec.ID)
	require.NoError(t, err)
	assert.Equal(t, TransitionAlreadyInProgress, result)

	record, err := store.ProcessingRecordFor(rec.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusProcessing, record.Status)
	assert.Equal(t, 1, record.AttemptCount)
	require.NotNil(t, record.StartedAt)
}

func TestLifecycleTransitions(t *testing.T) {
	store := newTestStore(t)
	rec, _, _, err := store.ReplaceOrCreate(testUpload("/data/a.wav"))
	require.NoError(t, err)

	// Processed and Failed both require the Processing state first.
	assert.Error(t, store.MarkProcessed(rec.ID))
	assert.Error(t, store.MarkFailed(rec.ID, fmt.Errorf("boom")))

	_, err = store.BeginProcessing(rec.ID)
	require.NoError(t, err)
	require.NoError(t, store.MarkFailed(rec.ID, fmt.Errorf("decode exploded")))

	record, err := store.ProcessingRecordFor(rec.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, record.Status)
	assert.Equal(t, "decode exploded", record.LastError)
	require.NotNil(t, record.FailedAt)

	// Failed recordings can be requeued, once.
	result, err := store.RequeueFailed(rec.ID)
	require.NoError(t, err)
	assert.Equal(t, TransitionStarted, result)
	result, err = store.RequeueFailed(rec.ID)
	require.NoError(t, err)
	assert.Equal(t, TransitionAlreadyInProgress, result)

	record, err = store.ProcessingRecordFor(rec.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, record.Status)
	assert.Empty(t, record.LastError)

	// Second attempt succeeds.
	_, err = store.BeginProcessing(rec.ID)
	require.NoError(t, err)
	require.NoError(t, store.MarkProcessed(rec.ID))

	record, err = store.ProcessingRecordFor(rec.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusProcessed, record.Status)
	assert.Equal(t, 2, record.AttemptCount)
}

func TestNextPendingOrder(t *testing.T) {
	store := newTestStore(t)

	a, _, _, err := store.ReplaceOrCreate(testUpload("/data/a.wav"))
	require.NoError(t, err)
	b, _, _, err := store.ReplaceOrCreate(testUpload("/data/b.wav"))
	require.NoError(t, err)

	// Make the queue order unambiguous.
	require.NoError(t, store.DB.Model(&ProcessingRecord{}).
		Where("recording_id = ?", a.ID).
		Update("queued_at", time.Now().Add(-time.Hour)).Error)

	next, err := store.NextPending()
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.Equal(t, a.ID, next.ID)

	pending, err := store.PendingRecordings()
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, a.ID, pending[0].ID)
	assert.Equal(t, b.ID, pending[1].ID)

	// Drain the queue.
	for _, id := range []uint{a.ID, b.ID} {
		_, err = store.BeginProcessing(id)
		require.NoError(t, err)
		require.NoError(t, store.MarkProcessed(id))
	}
	next, err = store.NextPending()
	require.NoError(t, err)
	assert.Nil(t, next)
}

func TestFailedSinceWindowAndLimit(t *testing.T) {
	store := newTestStore(t)

	fail := func(path string, failedAt time.Time) uint {
		rec, _, _, err := store.ReplaceOrCreate(testUpload(path))
		require.NoError(t, err)
		_, err = store.BeginProcessing(rec.ID)
		require.NoError(t, err)
		require.NoError(t, store.MarkFailed(rec.ID, fmt.Errorf("boom")))
		require.NoError(t, store.DB.Model(&ProcessingRecord{}).
			Where("recording_id = ?", rec.ID).
			Update("failed_at", failedAt).Error)
		return rec.ID
	}

	now := time.Now()
	oldID := fail("/data/old.wav", now.AddDate(0, 0, -8))
	recentA := fail("/data/recent_a.wav", now.AddDate(0, 0, -2))
	recentB := fail("/data/recent_b.wav", now.Add(-time.Hour))

	cutoff := now.AddDate(0, 0, -7)

	records, err := store.FailedSince(cutoff, 5)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, recentA, records[0].RecordingID)
	assert.Equal(t, recentB, records[1].RecordingID)
	for _, r := range records {
		assert.NotEqual(t, oldID, r.RecordingID)
	}

	// The limit caps a sweep.
	records, err = store.FailedSince(cutoff, 1)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, recentA, records[0].RecordingID)
}

func TestCountByStatus(t *testing.T) {
	store := newTestStore(t)

	counts, err := store.CountByStatus()
	require.NoError(t, err)
	assert.Equal(t, int64(0), counts[StatusPending])

	a, _, _, err := store.ReplaceOrCreate(testUpload("/data/a.wav"))
	require.NoError(t, err)
	_, _, _, err = store.ReplaceOrCreate(testUpload("/data/b.wav"))
	require.NoError(t, err)

	_, err = store.BeginProcessing(a.ID)
	require.NoError(t, err)
	require.NoError(t, store.MarkProcessed(a.ID))

	counts, err = store.CountByStatus()
	require.NoError(t, err)
	assert.Equal(t, int64(1), counts[StatusPending])
	assert.Equal(t, int64(1), counts[StatusProcessed])
	assert.Equal(t, int64(0), counts[StatusFailed])
}

func TestSaveDetectedEventsAndLogs(t *testing.T) {
	store := newTestStore(t)
	rec, _, _, err := store.ReplaceOrCreate(testUpload("/data/a.wav"))
	require.NoError(t, err)

	events := []sawcall.Event{
		{Start: 10, End: 12, PeakMagnitude: 4000, PeakFrequency: 120, ImpulseCount: 4},
		{Start: 1, End: 2, PeakMagnitude: 5000, PeakFrequency: 90, ImpulseCount: 3},
	}
	require.NoError(t, store.SaveDetectedEvents(rec.ID, events))

	stored, err := store.DetectedEventsFor(rec.ID)
	require.NoError(t, err)
	require.Len(t, stored, 2)
	// Ordered by start time, with rendered timestamps.
	assert.InDelta(t, 1.0, stored[0].StartSeconds, 1e-9)
	assert.Equal(t, "00:00:01.00", stored[0].StartTimestamp)
	assert.Equal(t, "00:00:10.00", stored[1].StartTimestamp)

	require.NoError(t, store.AppendLog(rec.ID, "INFO", "first"))
	require.NoError(t, store.AppendLog(rec.ID, "ERROR", "second"))

	logs, err := store.LogsFor(rec.ID)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	// Newest first.
	assert.Equal(t, "second", logs[0].Message)
	assert.Equal(t, "first", logs[1].Message)
}

func TestParameterSets(t *testing.T) {
	store := newTestStore(t)

	// Nothing configured yet.
	params, err := store.ParametersBySpecies("amur_leopard")
	require.NoError(t, err)
	assert.Nil(t, params)
	params, err = store.DefaultParameters()
	require.NoError(t, err)
	assert.Nil(t, params)

	leopard := &DetectionParameterSet{
		Name:            "leopard-tuned",
		Species:         "amur_leopard",
		MinMagnitude:    3000,
		MaxMagnitude:    9000,
		MinFrequency:    20,
		MaxFrequency:    250,
		SegmentDuration: 0.1,
		TimeThreshold:   4,
		MinImpulseCount: 3,
	}
	require.NoError(t, store.SaveParameterSet(leopard))

	params, err = store.ParametersBySpecies("amur_leopard")
	require.NoError(t, err)
	require.NotNil(t, params)
	assert.InDelta(t, 3000, params.MinMagnitude, 1e-9)

	// Saving a default clears any previous default.
	first := &DetectionParameterSet{Name: "default-v1", IsDefault: true, MinMagnitude: 3500, MaxMagnitude: 10000, MinFrequency: 15, MaxFrequency: 300, SegmentDuration: 0.1, TimeThreshold: 5, MinImpulseCount: 3}
	require.NoError(t, store.SaveParameterSet(first))
	second := &DetectionParameterSet{Name: "default-v2", IsDefault: true, MinMagnitude: 3600, MaxMagnitude: 10000, MinFrequency: 15, MaxFrequency: 300, SegmentDuration: 0.1, TimeThreshold: 5, MinImpulseCount: 3}
	require.NoError(t, store.SaveParameterSet(second))

	var defaults []DetectionParameterSet
	require.NoError(t, store.DB.Where("is_default = ?", true).Find(&defaults).Error)
	require.Len(t, defaults, 1)
	assert.Equal(t, "default-v2", defaults[0].Name)

	params, err = store.DefaultParameters()
	require.NoError(t, err)
	require.NotNil(t, params)
	assert.InDelta(t, 3600, params.MinMagnitude, 1e-9)

	// Nameless sets are rejected.
	assert.Error(t, store.SaveParameterSet(&DetectionParameterSet{}))
}

func TestArtifacts(t *testing.T) {
	store := newTestStore(t)
	rec, _, _, err := store.ReplaceOrCreate(testUpload("/data/a.wav"))
	require.NoError(t, err)

	require.NoError(t, store.SaveArtifact(&Artifact{RecordingID: rec.ID, Kind: "spectrogram", Path: "/tmp/x.png"}))
	require.NoError(t, store.SaveArtifact(&Artifact{RecordingID: rec.ID, Kind: "report", Path: "/tmp/x.txt"}))

	artifacts, err := store.ArtifactsFor(rec.ID)
	require.NoError(t, err)
	require.Len(t, artifacts, 2)
	assert.Equal(t, "spectrogram", artifacts[0].Kind)
}

func TestIsTransientError(t *testing.T) {
	assert.True(t, IsTransientError(fmt.Errorf("database is locked")))
	assert.True(t, IsTransientError(fmt.Errorf("step: database table is locked")))
	assert.True(t, IsTransientError(fmt.Errorf("Error 1205: Lock wait timeout exceeded; try restarting transaction")))
	assert.False(t, IsTransientError(fmt.Errorf("syntax error")))
	assert.False(t, IsTransientError(nil))
}
