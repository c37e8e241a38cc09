// artifacts.go: best-effort spectrogram and report generation after detection.
package analysis

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math"
	"math/cmplx"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/zoosonics/sawcall-go/internal/datastore"
	"github.com/zoosonics/sawcall-go/internal/errors"
	"github.com/zoosonics/sawcall-go/internal/myaudio"
	"github.com/zoosonics/sawcall-go/internal/sawcall"
	"gonum.org/v1/gonum/dsp/fourier"
)

// Artifact kinds stored with each artifact row.
const (
	ArtifactKindSpectrogram = "spectrogram"
	ArtifactKindReport      = "report"
)

// SpectrogramGenerator renders a spectrogram image for a recording.
type SpectrogramGenerator interface {
	Generate(ctx context.Context, audio *myaudio.AudioData, destPath string) error
}

// ReportGenerator writes a human-readable detection report for a recording.
type ReportGenerator interface {
	Generate(ctx context.Context, rec *datastore.Recording, events []sawcall.Event, destPath string) error
}

// generateArtifacts runs the configured generators. Each artifact is written
// to a uniquely named file under the processing temp path; partial files from
// failed generators are removed. It returns the paths of the artifacts that
// were written and recorded.
func (p *Pipeline) generateArtifacts(ctx context.Context, rec *datastore.Recording, audio *myaudio.AudioData, events []sawcall.Event) []string {
	if p.Spectrogram == nil && p.Report == nil {
		return nil
	}

	dir := p.Settings.Processing.TempPath
	if dir == "" {
		dir = os.TempDir()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		getLogger().Warn("could not create artifact directory", "path", dir, "error", err)
		return nil
	}

	var created []string
	if p.Spectrogram != nil {
		dest := filepath.Join(dir, fmt.Sprintf("%s_spectrogram.png", uuid.New().String()))
		if p.runGenerator(ctx, rec, ArtifactKindSpectrogram, dest, func() error {
			return p.Spectrogram.Generate(ctx, audio, dest)
		}) {
			created = append(created, dest)
		}
	}

	if p.Report != nil {
		dest := filepath.Join(dir, fmt.Sprintf("%s_report.txt", uuid.New().String()))
		if p.runGenerator(ctx, rec, ArtifactKindReport, dest, func() error {
			return p.Report.Generate(ctx, rec, events, dest)
		}) {
			created = append(created, dest)
		}
	}
	return created
}

func (p *Pipeline) runGenerator(ctx context.Context, rec *datastore.Recording, kind, dest string, generate func() error) bool {
	if err := generate(); err != nil {
		os.Remove(dest)
		getLogger().Warn("artifact generation failed",
			"recording_id", rec.ID, "kind", kind, "error", err)
		p.appendLog(ctx, rec.ID, LogLevelWarning,
			fmt.Sprintf("Could not generate %s: %v", kind, err))
		if p.Metrics != nil {
			p.Metrics.Pipeline.RecordArtifact(kind, "error")
		}
		return false
	}

	err := p.withContentionRetry(ctx, func() error {
		return p.Store.SaveArtifact(&datastore.Artifact{
			RecordingID: rec.ID,
			Kind:        kind,
			Path:        dest,
		})
	})
	if err != nil {
		os.Remove(dest)
		getLogger().Warn("could not record artifact", "recording_id", rec.ID, "kind", kind, "error", err)
		if p.Metrics != nil {
			p.Metrics.Pipeline.RecordArtifact(kind, "error")
		}
		return false
	}
	if p.Metrics != nil {
		p.Metrics.Pipeline.RecordArtifact(kind, "success")
	}
	return true
}

// cleanupArtifacts removes artifact files left behind by a run that failed
// afterwards. Each removal attempt is logged.
func (p *Pipeline) cleanupArtifacts(recordingID uint, paths []string) {
	for _, path := range paths {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			getLogger().Warn("could not remove temporary artifact",
				"recording_id", recordingID, "path", path, "error", err)
			continue
		}
		getLogger().Debug("removed temporary artifact",
			"recording_id", recordingID, "path", path)
	}
}

// PNGSpectrogramGenerator renders a grayscale log-magnitude spectrogram.
type PNGSpectrogramGenerator struct {
	// WindowSize is the STFT window length in samples. Zero selects 1024.
	WindowSize int
}

func (g *PNGSpectrogramGenerator) Generate(ctx context.Context, audio *myaudio.AudioData, destPath string) error {
	if len(audio.Samples) == 0 {
		return errors.Newf("no samples to render").
			Component("analysis").
			Category(errors.CategoryArtifact).
			Build()
	}

	nperseg := g.WindowSize
	if nperseg <= 0 {
		nperseg = 1024
	}
	if nperseg > len(audio.Samples) {
		nperseg = len(audio.Samples)
	}
	hop := nperseg / 2
	if hop < 1 {
		hop = 1
	}

	fft := fourier.NewFFT(nperseg)
	bins := nperseg/2 + 1
	frames := 1 + (len(audio.Samples)-nperseg)/hop

	window := make([]float64, nperseg)
	for i := range window {
		window[i] = 0.5 * (1 - math.Cos(2*math.Pi*float64(i)/float64(nperseg-1)))
	}

	magnitudes := make([][]float64, frames)
	maxMag := 0.0
	segment := make([]float64, nperseg)
	for f := 0; f < frames; f++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		offset := f * hop
		for i := 0; i < nperseg; i++ {
			segment[i] = audio.Samples[offset+i] * window[i]
		}
		coeffs := fft.Coefficients(nil, segment)

		row := make([]float64, bins)
		for b := 0; b < bins; b++ {
			mag := math.Log1p(cmplx.Abs(coeffs[b]))
			row[b] = mag
			if mag > maxMag {
				maxMag = mag
			}
		}
		magnitudes[f] = row
	}
	if maxMag == 0 {
		maxMag = 1
	}

	// Time runs left to right, frequency bottom to top.
	img := image.NewGray(image.Rect(0, 0, frames, bins))
	for x, row := range magnitudes {
		for b, mag := range row {
			img.SetGray(x, bins-1-b, color.Gray{Y: uint8(255 * mag / maxMag)})
		}
	}

	out, err := os.Create(destPath)
	if err != nil {
		return fmt.Errorf("creating spectrogram file: %w", err)
	}
	defer out.Close()

	if err := png.Encode(out, img); err != nil {
		return fmt.Errorf("encoding spectrogram: %w", err)
	}
	return nil
}

// TextReportGenerator writes a plain-text summary of a detection run.
type TextReportGenerator struct{}

func (g *TextReportGenerator) Generate(ctx context.Context, rec *datastore.Recording, events []sawcall.Event, destPath string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Saw call detection report\n")
	fmt.Fprintf(&b, "Recording: %s\n", rec.FileName)
	fmt.Fprintf(&b, "Device: %s\n", rec.FullDeviceID)
	fmt.Fprintf(&b, "Recorded: %s\n", rec.RecordingStart.Format(time.RFC3339))
	fmt.Fprintf(&b, "Duration: %s\n", sawcall.FormatTimestamp(rec.Duration))
	fmt.Fprintf(&b, "Events: %d\n\n", len(events))

	for i, e := range events {
		fmt.Fprintf(&b, "%3d. start=%s, end=%s, freq=%.2f, mag=%.2f, impulses=%d\n",
			i+1, e.StartTimestamp(), e.EndTimestamp(), e.PeakFrequency, e.PeakMagnitude, e.ImpulseCount)
	}

	if err := os.WriteFile(destPath, []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("writing report file: %w", err)
	}
	return nil
}
