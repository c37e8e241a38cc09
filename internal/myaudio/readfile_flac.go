package myaudio

import (
	"encoding/binary"
	"io"
	"os"

	"github.com/tphakala/flac"
)

func readFLACInfo(file *os.File) (AudioInfo, error) {
	decoder, err := flac.NewDecoder(file)
	if err != nil {
		return AudioInfo{}, err
	}

	return AudioInfo{
		SampleRate:   decoder.SampleRate,
		TotalSamples: int(decoder.TotalSamples),
		NumChannels:  decoder.NChannels,
		BitDepth:     decoder.BitsPerSample,
	}, nil
}

func readFLAC(file *os.File) (*AudioData, error) {
	decoder, err := flac.NewDecoder(file)
	if err != nil {
		return nil, err
	}

	divisor, err := getAudioDivisor(decoder.BitsPerSample)
	if err != nil {
		return nil, err
	}

	bytesPerSample := decoder.BitsPerSample / 8

	var samples []float64
	for {
		frame, err := decoder.Next()
		if err == io.EOF {
			break
		} else if err != nil {
			return nil, err
		}

		for i := 0; i+bytesPerSample <= len(frame); i += bytesPerSample {
			var sample int32
			switch decoder.BitsPerSample {
			case 16:
				sample = int32(int16(binary.LittleEndian.Uint16(frame[i:])))
			case 24:
				sample = int32(frame[i]) | int32(frame[i+1])<<8 | int32(frame[i+2])<<16
				// Sign-extend from 24 bits.
				sample = (sample << 8) >> 8
			case 32:
				sample = int32(binary.LittleEndian.Uint32(frame[i:]))
			}
			samples = append(samples, int16Scale(float64(sample), divisor))
		}
	}

	return &AudioData{
		Samples:    downmix(samples, decoder.NChannels),
		SampleRate: decoder.SampleRate,
		BitDepth:   decoder.BitsPerSample,
	}, nil
}
