package myaudio

import (
	"errors"
	"fmt"
	"os"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

func readWAVInfo(file *os.File) (AudioInfo, error) {
	decoder := wav.NewDecoder(file)
	decoder.ReadInfo()

	if !decoder.IsValidFile() {
		return AudioInfo{}, errors.New("invalid WAV file format")
	}

	if decoder.BitDepth != 16 && decoder.BitDepth != 24 && decoder.BitDepth != 32 {
		return AudioInfo{}, fmt.Errorf("unsupported bit depth: %d", decoder.BitDepth)
	}

	if decoder.NumChans != 1 && decoder.NumChans != 2 {
		return AudioInfo{}, fmt.Errorf("unsupported number of channels: %d", decoder.NumChans)
	}

	fileInfo, err := file.Stat()
	if err != nil {
		return AudioInfo{}, err
	}

	bytesPerSample := int(decoder.BitDepth / 8)
	totalSamples := int(fileInfo.Size()) / bytesPerSample / int(decoder.NumChans)

	return AudioInfo{
		SampleRate:   int(decoder.SampleRate),
		TotalSamples: totalSamples,
		NumChannels:  int(decoder.NumChans),
		BitDepth:     int(decoder.BitDepth),
	}, nil
}

func readWAV(file *os.File) (*AudioData, error) {
	decoder := wav.NewDecoder(file)
	decoder.ReadInfo()
	if !decoder.IsValidFile() {
		return nil, errors.New("input is not a valid WAV audio file")
	}

	divisor, err := getAudioDivisor(int(decoder.BitDepth))
	if err != nil {
		return nil, err
	}

	numChannels := int(decoder.NumChans)
	if numChannels != 1 && numChannels != 2 {
		return nil, fmt.Errorf("unsupported number of channels: %d", numChannels)
	}

	var samples []float64
	buf := &audio.IntBuffer{
		Data: make([]int, 65536),
		Format: &audio.Format{
			SampleRate:  int(decoder.SampleRate),
			NumChannels: numChannels,
		},
	}

	for {
		n, err := decoder.PCMBuffer(buf)
		if err != nil {
			return nil, err
		}
		if n == 0 {
			break
		}
		for _, sample := range buf.Data[:n] {
			samples = append(samples, int16Scale(float64(sample), divisor))
		}
	}

	return &AudioData{
		Samples:    downmix(samples, numChannels),
		SampleRate: int(decoder.SampleRate),
		BitDepth:   int(decoder.BitDepth),
	}, nil
}
