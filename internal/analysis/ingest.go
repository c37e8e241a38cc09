// ingest.go: registration of uploaded audio files as recordings.
package analysis

import (
	"context"
	"os"
	"path/filepath"

	"github.com/zoosonics/sawcall-go/internal/datastore"
	"github.com/zoosonics/sawcall-go/internal/errors"
	"github.com/zoosonics/sawcall-go/internal/metadata"
	"github.com/zoosonics/sawcall-go/internal/myaudio"
)

// RegisterFile registers an audio file as a recording, parsing device and
// timestamp metadata from its filename. An upload whose name matches an
// existing recording replaces it and restarts its lifecycle from Pending.
//
// The returned bool reports whether an existing recording was replaced.
func (p *Pipeline) RegisterFile(ctx context.Context, path string) (*datastore.Recording, bool, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, false, errors.New(err).
			Component("analysis").
			Category(errors.CategoryValidation).
			Context("path", path).
			Build()
	}
	fileName := filepath.Base(absPath)

	prefixes := p.Settings.Processing.SpeciesPrefixes
	if len(prefixes) == 0 {
		prefixes = metadata.DefaultSpeciesPrefixes
	}
	species := metadata.SpeciesFromFilename(fileName, prefixes)
	device, recordedAt := metadata.ParseWithPrefixes(fileName, prefixes)

	upload := &datastore.UploadedRecording{
		FilePath:       absPath,
		FileName:       fileName,
		Species:        species,
		Facility:       p.Settings.Main.Facility,
		DeviceType:     device.DeviceType,
		DeviceID:       device.DeviceID,
		FullDeviceID:   device.FullDeviceID,
		RecordingStart: recordedAt,
	}
	if stat, err := os.Stat(absPath); err == nil {
		upload.FileSizeBytes = stat.Size()
	}

	// Probe failures are tolerated here; an undecodable file still gets a
	// recording so the failure lands in its processing log.
	if info, err := myaudio.ProbeAudioInfo(absPath); err != nil {
		getLogger().Warn("could not probe audio file", "path", absPath, "error", err)
	} else {
		upload.SampleRate = info.SampleRate
		upload.Duration = info.Duration()
	}

	var rec *datastore.Recording
	var replaced bool
	var replacedID uint
	err = p.withContentionRetry(ctx, func() error {
		var err error
		rec, replaced, replacedID, err = p.Store.ReplaceOrCreate(upload)
		return err
	})
	if err != nil {
		return nil, false, err
	}

	if replaced {
		getLogger().Info("replaced duplicate recording",
			"file", fileName, "recording_id", rec.ID, "replaced_id", replacedID)
	} else {
		getLogger().Info("registered recording",
			"file", fileName, "recording_id", rec.ID,
			"device", device.FullDeviceID, "species", species)
	}
	return rec, replaced, nil
}
