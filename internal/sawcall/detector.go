package sawcall

import (
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/dsp/fourier"
)

// duplicateGap is the spacing below which two candidate impulses are treated
// as readings of the same physical impulse. Such duplicates advance the
// reference time for gap measurement but never extend or restart an event.
const duplicateGap = 0.1

// Event is a merged run of temporally close impulses.
type Event struct {
	Start         float64 // seconds from the beginning of the recording
	End           float64 // seconds, >= Start
	PeakMagnitude float64 // magnitude of the loudest impulse in the event
	PeakFrequency float64 // frequency in Hz of the loudest impulse
	ImpulseCount  int     // number of impulses merged into the event
}

// StartTimestamp returns the event start formatted as HH:MM:SS.ss.
func (e Event) StartTimestamp() string {
	return FormatTimestamp(e.Start)
}

// EndTimestamp returns the event end formatted as HH:MM:SS.ss.
func (e Event) EndTimestamp() string {
	return FormatTimestamp(e.End)
}

// Duration returns the event length in seconds.
func (e Event) Duration() float64 {
	return e.End - e.Start
}

// Detect runs saw-call detection over a mono sample buffer. It is a pure
// function: identical inputs always yield an identical event list, and the
// input slice is not modified.
//
// Samples are expected at native PCM amplitude (not normalized to [-1, 1]);
// the magnitude thresholds in Parameters are calibrated against 16-bit
// recorder output.
func Detect(samples []float64, sampleRate int, p Parameters) []Event {
	if len(samples) == 0 || sampleRate <= 0 {
		return nil
	}

	nperseg := int(math.Round(p.SegmentDuration * float64(sampleRate)))
	if nperseg < 2 {
		nperseg = 2
	}
	if len(samples) < nperseg {
		return nil
	}

	signal := removeDCOffset(samples)

	hop := nperseg / 2
	if hop < 1 {
		hop = 1
	}

	window, windowSum := hannWindow(nperseg)
	fft := fourier.NewFFT(nperseg)

	binHz := float64(sampleRate) / float64(nperseg)

	var events []Event
	lastCandidateTime := math.Inf(-1)
	haveEvent := false

	windowed := make([]float64, nperseg)
	for start := 0; start+nperseg <= len(signal); start += hop {
		for i := 0; i < nperseg; i++ {
			windowed[i] = signal[start+i] * window[i]
		}
		coeffs := fft.Coefficients(nil, windowed)

		// Frame time is the center of the window.
		frameTime := (float64(start) + float64(nperseg)/2) / float64(sampleRate)

		for bin, c := range coeffs {
			magnitude := cmplx.Abs(c) / windowSum
			if magnitude <= p.MinMagnitude || magnitude >= p.MaxMagnitude {
				continue
			}
			frequency := float64(bin) * binHz
			if frequency <= p.MinFrequency || frequency >= p.MaxFrequency {
				continue
			}

			if !haveEvent {
				events = append(events, Event{
					Start:         frameTime,
					End:           frameTime,
					PeakMagnitude: magnitude,
					PeakFrequency: frequency,
					ImpulseCount:  1,
				})
				haveEvent = true
				lastCandidateTime = frameTime
				continue
			}

			gap := frameTime - lastCandidateTime
			switch {
			case gap > p.TimeThreshold:
				// Too far from the previous impulse, open a new event.
				events = append(events, Event{
					Start:         frameTime,
					End:           frameTime,
					PeakMagnitude: magnitude,
					PeakFrequency: frequency,
					ImpulseCount:  1,
				})
			case gap > duplicateGap:
				current := &events[len(events)-1]
				current.End = frameTime
				current.ImpulseCount++
				if magnitude > current.PeakMagnitude {
					current.PeakMagnitude = magnitude
					current.PeakFrequency = frequency
				}
			default:
				// Duplicate reading of the same impulse; no event change.
			}
			lastCandidateTime = frameTime
		}
	}

	return filterByImpulseCount(events, p.MinImpulseCount)
}

// removeDCOffset returns a copy of samples with the mean subtracted.
func removeDCOffset(samples []float64) []float64 {
	var sum float64
	for _, s := range samples {
		sum += s
	}
	mean := sum / float64(len(samples))

	out := make([]float64, len(samples))
	for i, s := range samples {
		out[i] = s - mean
	}
	return out
}

// hannWindow returns an n-point Hann window and its element sum.
func hannWindow(n int) (window []float64, sum float64) {
	window = make([]float64, n)
	if n == 1 {
		window[0] = 1
		return window, 1
	}
	for i := range window {
		window[i] = 0.5 * (1 - math.Cos(2*math.Pi*float64(i)/float64(n-1)))
		sum += window[i]
	}
	return window, sum
}

func filterByImpulseCount(events []Event, minCount int) []Event {
	if len(events) == 0 {
		return nil
	}
	filtered := events[:0:0]
	for _, e := range events {
		if e.ImpulseCount >= minCount {
			filtered = append(filtered, e)
		}
	}
	if len(filtered) == 0 {
		return nil
	}
	return filtered
}
