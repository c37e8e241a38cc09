// interfaces.go: this code defines the interface for the database operations
package datastore

import (
	"fmt"
	"time"

	"github.com/zoosonics/sawcall-go/internal/conf"
	"github.com/zoosonics/sawcall-go/internal/errors"
	"github.com/zoosonics/sawcall-go/internal/sawcall"
	"gorm.io/gorm"
)

// Interface abstracts the underlying database implementation and defines the
// operations the pipeline and scheduler need from storage.
type Interface interface {
	Open() error
	Close() error

	// recordings
	ReplaceOrCreate(upload *UploadedRecording) (rec *Recording, replaced bool, replacedID uint, err error)
	GetRecording(id uint) (*Recording, error)
	RecordingByPath(path string) (*Recording, error)
	RecordingByName(name string) (*Recording, error)
	UpdateRecordingMetadata(rec *Recording) error

	// processing lifecycle
	ProcessingRecordFor(recordingID uint) (*ProcessingRecord, error)
	NextPending() (*Recording, error)
	PendingRecordings() ([]Recording, error)
	FailedSince(cutoff time.Time, limit int) ([]ProcessingRecord, error)
	CountByStatus() (map[Status]int64, error)
	BeginProcessing(recordingID uint) (TransitionResult, error)
	MarkProcessed(recordingID uint) error
	MarkFailed(recordingID uint, cause error) error
	RequeueFailed(recordingID uint) (TransitionResult, error)

	// detection results
	SaveDetectedEvents(recordingID uint, events []sawcall.Event) error
	DetectedEventsFor(recordingID uint) ([]DetectedEvent, error)

	// per-recording processing log
	AppendLog(recordingID uint, level, message string) error
	LogsFor(recordingID uint) ([]ProcessingLogEntry, error)

	// detection parameters
	sawcall.ParameterProvider
	SaveParameterSet(set *DetectionParameterSet) error
	ParameterSetByName(name string) (*DetectionParameterSet, error)

	// artifacts
	SaveArtifact(artifact *Artifact) error
	ArtifactsFor(recordingID uint) ([]Artifact, error)
}

// DataStore implements Interface using a GORM database.
type DataStore struct {
	DB *gorm.DB // GORM database instance
}

// New creates a store for whichever backend is enabled in the settings.
func New(settings *conf.Settings) Interface {
	switch {
	case settings.Output.SQLite.Enabled:
		return &SQLiteStore{
			Settings: settings,
		}
	case settings.Output.MySQL.Enabled:
		return &MySQLStore{
			Settings: settings,
		}
	default:
		return nil
	}
}

// UploadedRecording carries the data needed to register a new recording.
type UploadedRecording struct {
	FilePath       string
	FileName       string
	Species        string
	Facility       string
	DeviceType     string
	DeviceID       string
	FullDeviceID   string
	RecordingStart time.Time
	SampleRate     int
	Duration       float64
	FileSizeBytes  int64
}

// GetRecording retrieves a recording by its primary key.
func (ds *DataStore) GetRecording(id uint) (*Recording, error) {
	var rec Recording
	if err := ds.DB.First(&rec, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.Newf("recording %d not found", id).
				Component("datastore").
				Category(errors.CategoryNotFound).
				Context("recording_id", id).
				Build()
		}
		return nil, fmt.Errorf("getting recording %d: %w", id, err)
	}
	return &rec, nil
}

// RecordingByPath retrieves a recording by its file path. It returns nil
// without error when no recording matches.
func (ds *DataStore) RecordingByPath(path string) (*Recording, error) {
	var rec Recording
	err := ds.DB.Where("file_path = ?", path).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting recording by path %q: %w", path, err)
	}
	return &rec, nil
}

// RecordingByName retrieves a recording by its unique display name. It
// returns nil without error when no recording matches.
func (ds *DataStore) RecordingByName(name string) (*Recording, error) {
	var rec Recording
	err := ds.DB.Where("file_name = ?", name).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting recording by name %q: %w", name, err)
	}
	return &rec, nil
}

// UpdateRecordingMetadata persists changes to an existing recording row.
func (ds *DataStore) UpdateRecordingMetadata(rec *Recording) error {
	if rec.ID == 0 {
		return errors.New(fmt.Errorf("recording has no ID")).
			Component("datastore").
			Category(errors.CategoryValidation).
			Build()
	}
	if err := ds.DB.Save(rec).Error; err != nil {
		return fmt.Errorf("updating recording %d: %w", rec.ID, err)
	}
	return nil
}

// ProcessingRecordFor retrieves the processing record for a recording.
func (ds *DataStore) ProcessingRecordFor(recordingID uint) (*ProcessingRecord, error) {
	var pr ProcessingRecord
	if err := ds.DB.Where("recording_id = ?", recordingID).First(&pr).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.Newf("no processing record for recording %d", recordingID).
				Component("datastore").
				Category(errors.CategoryNotFound).
				Context("recording_id", recordingID).
				Build()
		}
		return nil, fmt.Errorf("getting processing record for recording %d: %w", recordingID, err)
	}
	return &pr, nil
}

// NextPending returns the oldest recording still waiting to be processed, or
// nil when the queue is empty. Ordering follows queue entry time so requeued
// failures keep their place behind fresh uploads queued earlier.
func (ds *DataStore) NextPending() (*Recording, error) {
	var rec Recording
	err := ds.DB.
		Joins("JOIN processing_records ON processing_records.recording_id = recordings.id").
		Where("processing_records.status = ?", StatusPending).
		Order("processing_records.queued_at asc").
		First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting next pending recording: %w", err)
	}
	return &rec, nil
}

// PendingRecordings returns every recording in the Pending state, oldest
// queue entry first.
func (ds *DataStore) PendingRecordings() ([]Recording, error) {
	var recs []Recording
	err := ds.DB.
		Joins("JOIN processing_records ON processing_records.recording_id = recordings.id").
		Where("processing_records.status = ?", StatusPending).
		Order("processing_records.queued_at asc").
		Find(&recs).Error
	if err != nil {
		return nil, fmt.Errorf("listing pending recordings: %w", err)
	}
	return recs, nil
}

// FailedSince returns up to limit Failed processing records whose failure is
// newer than the cutoff, oldest failure first.
func (ds *DataStore) FailedSince(cutoff time.Time, limit int) ([]ProcessingRecord, error) {
	var records []ProcessingRecord
	query := ds.DB.
		Where("status = ? AND failed_at > ?", StatusFailed, cutoff).
		Order("failed_at asc")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&records).Error; err != nil {
		return nil, fmt.Errorf("listing failed recordings since %s: %w", cutoff.Format(time.RFC3339), err)
	}
	return records, nil
}

// CountByStatus returns the number of processing records in each state.
func (ds *DataStore) CountByStatus() (map[Status]int64, error) {
	type statusCount struct {
		Status Status
		Count  int64
	}
	var rows []statusCount
	err := ds.DB.Model(&ProcessingRecord{}).
		Select("status, count(*) as count").
		Group("status").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("counting recordings by status: %w", err)
	}

	counts := map[Status]int64{
		StatusPending:    0,
		StatusProcessing: 0,
		StatusProcessed:  0,
		StatusFailed:     0,
	}
	for _, row := range rows {
		counts[row.Status] = row.Count
	}
	return counts, nil
}

// SaveDetectedEvents stores the events found in one detection run. Existing
// events for the recording are left untouched; duplicate resolution clears
// them before the new recording is registered.
func (ds *DataStore) SaveDetectedEvents(recordingID uint, events []sawcall.Event) error {
	if len(events) == 0 {
		return nil
	}

	rows := make([]DetectedEvent, 0, len(events))
	for _, e := range events {
		rows = append(rows, DetectedEvent{
			RecordingID:    recordingID,
			StartSeconds:   e.Start,
			EndSeconds:     e.End,
			StartTimestamp: e.StartTimestamp(),
			EndTimestamp:   e.EndTimestamp(),
			PeakMagnitude:  e.PeakMagnitude,
			PeakFrequency:  e.PeakFrequency,
			ImpulseCount:   e.ImpulseCount,
		})
	}

	if err := ds.DB.Create(&rows).Error; err != nil {
		return errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("recording_id", recordingID).
			Context("event_count", len(rows)).
			Build()
	}
	return nil
}

// DetectedEventsFor returns the stored events for a recording in start order.
func (ds *DataStore) DetectedEventsFor(recordingID uint) ([]DetectedEvent, error) {
	var events []DetectedEvent
	err := ds.DB.
		Where("recording_id = ?", recordingID).
		Order("start_seconds asc").
		Find(&events).Error
	if err != nil {
		return nil, fmt.Errorf("listing events for recording %d: %w", recordingID, err)
	}
	return events, nil
}

// AppendLog adds one entry to a recording's processing log.
func (ds *DataStore) AppendLog(recordingID uint, level, message string) error {
	entry := ProcessingLogEntry{
		RecordingID: recordingID,
		Level:       level,
		Message:     message,
	}
	if err := ds.DB.Create(&entry).Error; err != nil {
		return fmt.Errorf("appending log for recording %d: %w", recordingID, err)
	}
	return nil
}

// LogsFor returns a recording's processing log, newest entry first.
func (ds *DataStore) LogsFor(recordingID uint) ([]ProcessingLogEntry, error) {
	var entries []ProcessingLogEntry
	err := ds.DB.
		Where("recording_id = ?", recordingID).
		Order("created_at desc, id desc").
		Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("listing logs for recording %d: %w", recordingID, err)
	}
	return entries, nil
}

// SaveArtifact records a file produced while processing a recording.
func (ds *DataStore) SaveArtifact(artifact *Artifact) error {
	if err := ds.DB.Create(artifact).Error; err != nil {
		return errors.New(err).
			Component("datastore").
			Category(errors.CategoryArtifact).
			Context("recording_id", artifact.RecordingID).
			Context("kind", artifact.Kind).
			Build()
	}
	return nil
}

// ArtifactsFor returns the artifacts attached to a recording.
func (ds *DataStore) ArtifactsFor(recordingID uint) ([]Artifact, error) {
	var artifacts []Artifact
	err := ds.DB.
		Where("recording_id = ?", recordingID).
		Order("created_at asc, id asc").
		Find(&artifacts).Error
	if err != nil {
		return nil, fmt.Errorf("listing artifacts for recording %d: %w", recordingID, err)
	}
	return artifacts, nil
}
