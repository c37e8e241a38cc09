// model.go: database entities for recordings, processing state, and detection results.
package datastore

import (
	"time"

	"github.com/zoosonics/sawcall-go/internal/sawcall"
)

// Status is the lifecycle state of a recording's processing record.
type Status string

const (
	StatusPending    Status = "Pending"
	StatusProcessing Status = "Processing"
	StatusProcessed  Status = "Processed"
	StatusFailed     Status = "Failed"
)

// Recording represents an uploaded audio recording and the metadata recovered
// from its filename.
type Recording struct {
	ID             uint      `gorm:"primaryKey"`
	FilePath       string    `gorm:"index;not null"`
	FileName       string    `gorm:"uniqueIndex;not null"` // display name, duplicate-resolution key
	Species        string    `gorm:"index"`                // species slug, e.g. amur_leopard
	Facility       string    `gorm:"index"`                // facility tag supplied at registration
	DeviceType     string    // recorder model prefix, e.g. SMM
	DeviceID       string    // recorder serial digits, e.g. 07257
	FullDeviceID   string    `gorm:"index"` // concatenation of type and serial
	RecordingStart time.Time `gorm:"index"` // timestamp parsed from the filename
	SampleRate     int
	Duration       float64 // seconds
	FileSizeBytes  int64
	UploadedAt     time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// ProcessingRecord tracks the lifecycle of one recording through the
// detection pipeline. Exactly one record exists per recording.
type ProcessingRecord struct {
	ID           uint   `gorm:"primaryKey"`
	RecordingID  uint   `gorm:"uniqueIndex;not null"`
	Status       Status `gorm:"index;not null"`
	AttemptCount int
	QueuedAt     time.Time  `gorm:"index"` // when the record entered or re-entered Pending
	StartedAt    *time.Time // last transition into Processing
	FinishedAt   *time.Time // last transition into Processed
	FailedAt     *time.Time `gorm:"index"` // last transition into Failed
	LastError    string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// DetectedEvent is one saw-call event found in a recording.
type DetectedEvent struct {
	ID             uint    `gorm:"primaryKey"`
	RecordingID    uint    `gorm:"index;not null"`
	StartSeconds   float64 // offset from the beginning of the recording
	EndSeconds     float64
	StartTimestamp string // HH:MM:SS.ss rendering of StartSeconds
	EndTimestamp   string
	PeakMagnitude  float64
	PeakFrequency  float64 // Hz
	ImpulseCount   int
	CreatedAt      time.Time
}

// ProcessingLogEntry is one line of the per-recording processing log.
type ProcessingLogEntry struct {
	ID          uint   `gorm:"primaryKey"`
	RecordingID uint   `gorm:"index;not null"`
	Level       string `gorm:"not null"` // INFO, WARNING, ERROR, SUCCESS
	Message     string
	CreatedAt   time.Time `gorm:"index"`
}

// DetectionParameterSet is a named, persisted detection configuration. At
// most one set carries the default flag; saving a new default clears the flag
// on every other set.
type DetectionParameterSet struct {
	ID              uint   `gorm:"primaryKey"`
	Name            string `gorm:"uniqueIndex;not null"`
	Species         string `gorm:"index"` // species slug this set applies to, empty for generic sets
	IsDefault       bool   `gorm:"index"`
	MinMagnitude    float64
	MaxMagnitude    float64
	MinFrequency    float64
	MaxFrequency    float64
	SegmentDuration float64
	TimeThreshold   float64
	MinImpulseCount int
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Parameters converts the stored set into a detection parameter struct.
func (s *DetectionParameterSet) Parameters() sawcall.Parameters {
	return sawcall.Parameters{
		MinMagnitude:    s.MinMagnitude,
		MaxMagnitude:    s.MaxMagnitude,
		MinFrequency:    s.MinFrequency,
		MaxFrequency:    s.MaxFrequency,
		SegmentDuration: s.SegmentDuration,
		TimeThreshold:   s.TimeThreshold,
		MinImpulseCount: s.MinImpulseCount,
	}
}

// Artifact is a file produced while processing a recording, such as a
// spectrogram image or a detection report.
type Artifact struct {
	ID          uint   `gorm:"primaryKey"`
	RecordingID uint   `gorm:"index;not null"`
	Kind        string `gorm:"index;not null"` // spectrogram, report
	Path        string `gorm:"not null"`
	CreatedAt   time.Time
}
