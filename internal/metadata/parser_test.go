package metadata

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSongMeterFilename(t *testing.T) {
	device, recordedAt := Parse("SMM07257_20230201_171502.wav")

	assert.Equal(t, "SMM", device.DeviceType)
	assert.Equal(t, "07257", device.DeviceID)
	assert.Equal(t, "SMM07257", device.FullDeviceID)
	assert.Equal(t, time.Date(2023, 2, 1, 17, 15, 2, 0, time.UTC), recordedAt.UTC())
}

func TestParseStripsSpeciesPrefix(t *testing.T) {
	device, recordedAt := Parse("amur_leopard_SMM07257_20230201_171502.flac")

	assert.Equal(t, "SMM07257", device.FullDeviceID)
	assert.Equal(t, 2023, recordedAt.Year())
	assert.Equal(t, time.February, recordedAt.Month())
}

func TestParseDateFormats(t *testing.T) {
	want := time.Date(2023, 2, 1, 17, 15, 2, 0, time.UTC)

	tests := []struct {
		name     string
		filename string
	}{
		{"compact", "AM102_20230201_171502.wav"},
		{"dashed iso", "AM102_2023-02-01_17:15:02.wav"},
		{"us order", "AM102_02-01-2023_17:15:02.wav"},
		{"combined datetime", "AM102_20230201171502.wav"},
		{"hyphen separated", "AM102-20230201-171502.wav"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			device, recordedAt := Parse(tt.filename)
			assert.Equal(t, "AM102", device.FullDeviceID)
			assert.Equal(t, want, recordedAt.UTC())
		})
	}
}

func TestParseMonthNameDate(t *testing.T) {
	_, recordedAt := Parse("AM102_Feb-01-2023_171502.wav")
	assert.Equal(t, time.February, recordedAt.Month())
	assert.Equal(t, 1, recordedAt.Day())
	assert.Equal(t, 2023, recordedAt.Year())
}

func TestParseUnparseableFallsBack(t *testing.T) {
	before := time.Now()
	device, recordedAt := Parse("garbage.wav")
	after := time.Now()

	assert.Equal(t, DefaultDeviceInfo, device)
	assert.False(t, recordedAt.Before(before))
	assert.False(t, recordedAt.After(after))
}

func TestParseInvalidDateFallsBack(t *testing.T) {
	// Day 32 does not survive the round trip through time.Date.
	before := time.Now()
	_, recordedAt := Parse("SMM07257_20230232_171502.wav")

	assert.False(t, recordedAt.Before(before))
}

// Parse must produce something usable for any input at all.
func TestParseTotality(t *testing.T) {
	inputs := []string{
		"",
		".wav",
		"_____.wav",
		"no extension here",
		"12345678901234567890.flac",
		"SMM_______.wav",
		"ümlaut-file-ä.wav",
		"2023.wav",
		"-.-.-.wav",
	}

	for _, input := range inputs {
		device, recordedAt := Parse(input)
		require.NotEmpty(t, device.FullDeviceID, "input %q", input)
		require.False(t, recordedAt.IsZero(), "input %q", input)
	}
}

func TestSpeciesFromFilename(t *testing.T) {
	prefixes := []string{"amur_leopard", "amur_tiger"}

	assert.Equal(t, "amur_leopard", SpeciesFromFilename("amur_leopard_SMM07257_20230201_171502.wav", prefixes))
	assert.Equal(t, "amur_tiger", SpeciesFromFilename("amur_tiger_AM102_20230201_171502.wav", prefixes))
	assert.Equal(t, "", SpeciesFromFilename("SMM07257_20230201_171502.wav", prefixes))
	assert.Equal(t, "", SpeciesFromFilename("amur_leopardess.wav", prefixes))
}
