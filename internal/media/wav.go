package media

import (
	"fmt"
	"os"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// WriteSilentWAV writes a mono 16-bit PCM WAV of the given length.
func WriteSilentWAV(path string, length time.Duration, sampleRate int) error {
	return WriteConstantWAV(path, length, sampleRate, 0)
}

// WriteConstantWAV writes a mono 16-bit PCM WAV whose samples all equal value.
func WriteConstantWAV(path string, length time.Duration, sampleRate, value int) error {
	if sampleRate <= 0 {
		return fmt.Errorf("invalid sample rate %d", sampleRate)
	}
	if err := ensureDir(path); err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()

	format := &audio.Format{SampleRate: sampleRate, NumChannels: 1}
	enc := wav.NewEncoder(f, format.SampleRate, 16, format.NumChannels, 1)

	samples := int(length.Seconds() * float64(sampleRate))
	data := make([]int, samples)
	if value != 0 {
		for i := range data {
			data[i] = value
		}
	}
	if err := enc.Write(&audio.IntBuffer{Data: data, Format: format, SourceBitDepth: 16}); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("finalize %s: %w", path, err)
	}
	return nil
}

// WAVInfo describes a decoded WAV header.
type WAVInfo struct {
	SampleRate int
	Channels   int
	BitDepth   int
	Duration   time.Duration
}

// ReadWAVInfo reads the header of a WAV file.
func ReadWAVInfo(path string) (WAVInfo, error) {
	f, err := os.Open(path)
	if err != nil {
		return WAVInfo{}, err
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return WAVInfo{}, fmt.Errorf("%s is not a valid WAV file", path)
	}
	d, err := dec.Duration()
	if err != nil {
		return WAVInfo{}, fmt.Errorf("read duration of %s: %w", path, err)
	}
	return WAVInfo{
		SampleRate: int(dec.SampleRate),
		Channels:   int(dec.NumChans),
		BitDepth:   int(dec.BitDepth),
		Duration:   d,
	}, nil
}

// ReadWAVSamples decodes all PCM samples of a WAV file.
func ReadWAVSamples(path string) ([]int, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, err
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, 0, fmt.Errorf("decode %s: %w", path, err)
	}
	return buf.Data, buf.Format.SampleRate, nil
}

// IsWAV reports whether data starts with a RIFF/WAVE header.
func IsWAV(data []byte) bool {
	return len(data) >= 12 && string(data[0:4]) == "RIFF" && string(data[8:12]) == "WAVE"
}
