// transitions.go: guarded status transitions for processing records.
package datastore

import (
	"time"

	"github.com/zoosonics/sawcall-go/internal/errors"
	"gorm.io/gorm"
)

// TransitionResult reports the outcome of a guarded status transition.
type TransitionResult int

const (
	// TransitionStarted means this caller won the transition.
	TransitionStarted TransitionResult = iota
	// TransitionAlreadyInProgress means another caller changed the status
	// first and this caller must skip the recording.
	TransitionAlreadyInProgress
)

// guardedTransition atomically moves a processing record from one status to
// another. The status check and the update happen in a single statement, so
// concurrent callers racing for the same recording see exactly one winner.
func (ds *DataStore) guardedTransition(recordingID uint, from, to Status, updates map[string]any) (TransitionResult, error) {
	if updates == nil {
		updates = map[string]any{}
	}
	updates["status"] = to

	result := ds.DB.Model(&ProcessingRecord{}).
		Where("recording_id = ? AND status = ?", recordingID, from).
		Updates(updates)
	if result.Error != nil {
		return TransitionAlreadyInProgress, errors.New(result.Error).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("recording_id", recordingID).
			Context("from", string(from)).
			Context("to", string(to)).
			Build()
	}
	if result.RowsAffected == 0 {
		return TransitionAlreadyInProgress, nil
	}
	return TransitionStarted, nil
}

// BeginProcessing claims a Pending recording for processing. When the
// recording is no longer Pending the claim is lost and the caller must not
// process it.
func (ds *DataStore) BeginProcessing(recordingID uint) (TransitionResult, error) {
	now := time.Now()
	return ds.guardedTransition(recordingID, StatusPending, StatusProcessing, map[string]any{
		"started_at":    &now,
		"attempt_count": gorm.Expr("attempt_count + 1"),
	})
}

// MarkProcessed moves a Processing recording to Processed.
func (ds *DataStore) MarkProcessed(recordingID uint) error {
	now := time.Now()
	result, err := ds.guardedTransition(recordingID, StatusProcessing, StatusProcessed, map[string]any{
		"finished_at": &now,
		"last_error":  "",
	})
	if err != nil {
		return err
	}
	if result != TransitionStarted {
		return errors.Newf("recording %d is not in Processing state", recordingID).
			Component("datastore").
			Category(errors.CategoryState).
			Context("recording_id", recordingID).
			Build()
	}
	return nil
}

// MarkFailed moves a Processing recording to Failed and records the cause.
func (ds *DataStore) MarkFailed(recordingID uint, cause error) error {
	now := time.Now()
	message := ""
	if cause != nil {
		message = cause.Error()
	}
	result, err := ds.guardedTransition(recordingID, StatusProcessing, StatusFailed, map[string]any{
		"failed_at":  &now,
		"last_error": message,
	})
	if err != nil {
		return err
	}
	if result != TransitionStarted {
		return errors.Newf("recording %d is not in Processing state", recordingID).
			Component("datastore").
			Category(errors.CategoryState).
			Context("recording_id", recordingID).
			Build()
	}
	return nil
}

// RequeueFailed moves a Failed recording back to Pending so a later scheduler
// cycle picks it up again. A lost race with another requeue is not an error.
func (ds *DataStore) RequeueFailed(recordingID uint) (TransitionResult, error) {
	now := time.Now()
	return ds.guardedTransition(recordingID, StatusFailed, StatusPending, map[string]any{
		"queued_at":  now,
		"last_error": "",
	})
}
