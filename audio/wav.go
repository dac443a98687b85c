// Package audio holds the small waveform I/O helpers the datasets package
// delegates to: 16-bit PCM wav encode/decode, sample-rate conversion and
// peak normalization. Feature extraction (mel/STFT) is produced by an
// external pipeline and is deliberately not here.
package audio

import (
	"fmt"
	"os"

	gaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

const pcmScale = 32768.0

// WriteWAV16 encodes samples as a mono 16-bit PCM wav file. Samples are
// expected in [-1, 1]; values outside are clipped.
func WriteWAV16(path string, rate int, samples []float32) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create wav %s: %w", path, err)
	}
	enc := wav.NewEncoder(f, rate, 16, 1, 1)

	buf := &gaudio.IntBuffer{
		Format:         &gaudio.Format{NumChannels: 1, SampleRate: rate},
		SourceBitDepth: 16,
		Data:           make([]int, len(samples)),
	}
	for i, s := range samples {
		v := int(s * pcmScale)
		if v > 32767 {
			v = 32767
		} else if v < -32768 {
			v = -32768
		}
		buf.Data[i] = v
	}
	if err := enc.Write(buf); err != nil {
		f.Close()
		return fmt.Errorf("failed to write wav %s: %w", path, err)
	}
	if err := enc.Close(); err != nil {
		f.Close()
		return fmt.Errorf("failed to finalize wav %s: %w", path, err)
	}
	return f.Close()
}

// ReadWAV decodes a wav file into float32 samples in [-1, 1], mixing
// multi-channel audio down to mono, and returns the source sample rate.
func ReadWAV(path string) ([]float32, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to open wav %s: %w", path, err)
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, 0, fmt.Errorf("failed to decode wav %s: %w", path, err)
	}
	if buf.Format == nil || buf.Format.NumChannels == 0 {
		return nil, 0, fmt.Errorf("wav %s has no format information", path)
	}

	scale := float32(int(1) << (dec.BitDepth - 1))
	channels := buf.Format.NumChannels
	frames := len(buf.Data) / channels
	samples := make([]float32, frames)
	for i := range frames {
		var sum float32
		for c := range channels {
			sum += float32(buf.Data[i*channels+c]) / scale
		}
		samples[i] = sum / float32(channels)
	}
	return samples, buf.Format.SampleRate, nil
}
