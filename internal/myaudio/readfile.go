// Package myaudio handles decoding of field recording audio files.
package myaudio

import (
	"fmt"
	"os"

	"github.com/zoosonics/sawcall-go/internal/errors"
)

// AudioInfo contains basic information about an audio file.
type AudioInfo struct {
	SampleRate   int
	TotalSamples int
	NumChannels  int
	BitDepth     int
}

// Duration returns the length of the audio in seconds.
func (info AudioInfo) Duration() float64 {
	if info.SampleRate <= 0 || info.NumChannels <= 0 {
		return 0
	}
	return float64(info.TotalSamples) / float64(info.SampleRate)
}

// AudioData is a fully decoded, mono audio buffer. Samples are scaled to
// 16-bit equivalent amplitude regardless of source bit depth, because the
// detector's magnitude thresholds are calibrated against 16-bit recorder
// output.
type AudioData struct {
	Samples    []float64
	SampleRate int
	BitDepth   int
}

// Duration returns the length of the decoded audio in seconds.
func (d *AudioData) Duration() float64 {
	if d.SampleRate <= 0 {
		return 0
	}
	return float64(len(d.Samples)) / float64(d.SampleRate)
}

// ReadAudioFile decodes an audio file into a mono sample buffer. The primary
// decode strategy is the WAV decoder; if it rejects the content the FLAC
// decoder is tried, since field recorders and bulk uploads occasionally
// deliver FLAC content under a .wav name. Only when both strategies fail is
// an error returned.
func ReadAudioFile(path string) (*AudioData, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.New(err).
			Component("myaudio").
			Category(errors.CategoryFileIO).
			FileContext(path, 0).
			Build()
	}
	defer file.Close()

	data, wavErr := readWAV(file)
	if wavErr == nil {
		return data, nil
	}

	getLogger().Warn("WAV decode failed, trying FLAC decoder",
		"path", path, "error", wavErr)

	if _, err := file.Seek(0, 0); err != nil {
		return nil, errors.New(fmt.Errorf("rewinding file after failed WAV decode: %w", err)).
			Component("myaudio").
			Category(errors.CategoryFileIO).
			Build()
	}

	data, flacErr := readFLAC(file)
	if flacErr == nil {
		return data, nil
	}

	return nil, errors.New(fmt.Errorf("all decode strategies failed: wav: %w; flac: %w", wavErr, flacErr)).
		Component("myaudio").
		Category(errors.CategoryAudioDecode).
		FileContext(path, 0).
		Build()
}

// ProbeAudioInfo reads header information without decoding the full file.
func ProbeAudioInfo(path string) (AudioInfo, error) {
	file, err := os.Open(path)
	if err != nil {
		return AudioInfo{}, errors.New(err).
			Component("myaudio").
			Category(errors.CategoryFileIO).
			FileContext(path, 0).
			Build()
	}
	defer file.Close()

	info, wavErr := readWAVInfo(file)
	if wavErr == nil {
		return info, nil
	}

	if _, err := file.Seek(0, 0); err != nil {
		return AudioInfo{}, err
	}

	info, flacErr := readFLACInfo(file)
	if flacErr == nil {
		return info, nil
	}

	return AudioInfo{}, errors.New(fmt.Errorf("unrecognized audio format: wav: %w; flac: %w", wavErr, flacErr)).
		Component("myaudio").
		Category(errors.CategoryAudioDecode).
		Build()
}

// getAudioDivisor returns the full-scale divisor for a PCM bit depth.
func getAudioDivisor(bitDepth int) (float64, error) {
	switch bitDepth {
	case 16:
		return 32768.0, nil
	case 24:
		return 8388608.0, nil
	case 32:
		return 2147483648.0, nil
	default:
		return 0, fmt.Errorf("unsupported audio file bit depth: %d", bitDepth)
	}
}

// int16Scale rescales a raw PCM sample to 16-bit equivalent amplitude.
func int16Scale(sample float64, divisor float64) float64 {
	return sample / divisor * 32768.0
}

// downmix folds an interleaved multi-channel buffer to mono by averaging
// channels. A mono input is returned unchanged.
func downmix(samples []float64, numChannels int) []float64 {
	if numChannels <= 1 {
		return samples
	}
	mono := make([]float64, 0, len(samples)/numChannels)
	for i := 0; i+numChannels <= len(samples); i += numChannels {
		var sum float64
		for c := 0; c < numChannels; c++ {
			sum += samples[i+c]
		}
		mono = append(mono, sum/float64(numChannels))
	}
	return mono
}
