// duplicates.go: duplicate upload resolution for recordings.
package datastore

import (
	"fmt"
	"os"
	"time"

	"github.com/zoosonics/sawcall-go/internal/errors"
	"gorm.io/gorm"
)

// ReplaceOrCreate registers an uploaded recording. An upload whose display
// name matches an existing recording replaces it: the old events, logs,
// artifacts, and processing record are removed, the recording row is
// overwritten with the new content and metadata, and processing restarts
// from Pending, all in one transaction. The superseded content file is
// removed afterwards on a best-effort basis. When no recording matches, a
// fresh one is created.
//
// The returned replacedID is the primary key of the overwritten recording
// when replaced is true, zero otherwise.
func (ds *DataStore) ReplaceOrCreate(upload *UploadedRecording) (*Recording, bool, uint, error) {
	existing, err := ds.RecordingByName(upload.FileName)
	if err != nil {
		return nil, false, 0, err
	}

	if existing != nil {
		rec, oldPath, err := ds.replaceRecording(existing.ID, upload)
		if err == nil {
			ds.removeReplacedContent(oldPath, upload.FilePath)
			return rec, true, existing.ID, nil
		}
		// The existing recording may have been removed by a concurrent
		// replacement between the lookup and the transaction. Fall through
		// to a plain create in that case.
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, false, 0, err
		}
		getLogger().Warn("recording vanished during replacement, creating instead",
			"name", upload.FileName, "recording_id", existing.ID)
	}

	rec, err := ds.createRecording(upload)
	if err != nil {
		return nil, false, 0, err
	}
	return rec, false, 0, nil
}

func (ds *DataStore) replaceRecording(oldID uint, upload *UploadedRecording) (*Recording, string, error) {
	var rec *Recording
	var oldPath string
	err := ds.DB.Transaction(func(tx *gorm.DB) error {
		var old Recording
		if err := tx.First(&old, oldID).Error; err != nil {
			return err
		}
		oldPath = old.FilePath

		dependents := []any{&DetectedEvent{}, &ProcessingLogEntry{}, &Artifact{}, &ProcessingRecord{}}
		for _, model := range dependents {
			if err := tx.Where("recording_id = ?", oldID).Delete(model).Error; err != nil {
				return fmt.Errorf("removing dependents of recording %d: %w", oldID, err)
			}
		}

		now := time.Now()
		applyUpload(&old, upload, now)
		if err := tx.Save(&old).Error; err != nil {
			return fmt.Errorf("overwriting recording %d: %w", oldID, err)
		}

		record := ProcessingRecord{
			RecordingID: old.ID,
			Status:      StatusPending,
			QueuedAt:    now,
		}
		if err := tx.Create(&record).Error; err != nil {
			return fmt.Errorf("requeueing recording %d: %w", oldID, err)
		}

		entries := []ProcessingLogEntry{
			{RecordingID: old.ID, Level: "WARNING",
				Message: fmt.Sprintf("Duplicate upload detected for %s, replacing previous recording", upload.FileName)},
			{RecordingID: old.ID, Level: "SUCCESS",
				Message: "Previous recording replaced, queued for processing"},
		}
		if err := tx.Create(&entries).Error; err != nil {
			return fmt.Errorf("logging replacement of recording %d: %w", oldID, err)
		}

		rec = &old
		return nil
	})
	if err != nil {
		return nil, "", err
	}
	return rec, oldPath, nil
}

// removeReplacedContent deletes the superseded content file. Failures are
// logged and otherwise ignored.
func (ds *DataStore) removeReplacedContent(oldPath, newPath string) {
	if oldPath == "" || oldPath == newPath {
		return
	}
	if err := os.Remove(oldPath); err != nil && !os.IsNotExist(err) {
		getLogger().Warn("failed to remove replaced recording content",
			"path", oldPath, "error", err)
	}
}

func (ds *DataStore) createRecording(upload *UploadedRecording) (*Recording, error) {
	var rec *Recording
	err := ds.DB.Transaction(func(tx *gorm.DB) error {
		created, err := insertRecording(tx, upload)
		if err != nil {
			return err
		}
		rec = created
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// applyUpload copies the upload's content reference and metadata onto a
// recording row.
func applyUpload(rec *Recording, upload *UploadedRecording, now time.Time) {
	rec.FilePath = upload.FilePath
	rec.FileName = upload.FileName
	rec.Species = upload.Species
	rec.Facility = upload.Facility
	rec.DeviceType = upload.DeviceType
	rec.DeviceID = upload.DeviceID
	rec.FullDeviceID = upload.FullDeviceID
	rec.RecordingStart = upload.RecordingStart
	rec.SampleRate = upload.SampleRate
	rec.Duration = upload.Duration
	rec.FileSizeBytes = upload.FileSizeBytes
	rec.UploadedAt = now
}

// insertRecording creates the recording row together with its initial
// Pending processing record.
func insertRecording(tx *gorm.DB, upload *UploadedRecording) (*Recording, error) {
	now := time.Now()
	var rec Recording
	applyUpload(&rec, upload, now)
	if err := tx.Create(&rec).Error; err != nil {
		return nil, errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("path", upload.FilePath).
			Build()
	}

	record := ProcessingRecord{
		RecordingID: rec.ID,
		Status:      StatusPending,
		QueuedAt:    now,
	}
	if err := tx.Create(&record).Error; err != nil {
		return nil, errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("recording_id", rec.ID).
			Build()
	}
	return &rec, nil
}
