package datasets

import (
	"io"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/Noofbiz/melfeed/audio"
)

func writeWavFixture(t *testing.T, path string, samples int) {
	t.Helper()
	data := make([]float32, samples)
	for i := range data {
		data[i] = float32(i)/float32(samples) - 0.5
	}
	if err := audio.WriteWAV16(path, 8000, data); err != nil {
		t.Fatalf("failed to write wav fixture: %v", err)
	}
}

func audioFileTestConfig() Config {
	return Config{
		MaxLength:    2,
		HopLength:    3, // segments of 6 samples
		SamplingRate: 8000,
		BatchSize:    1,
	}
}

func TestAudioFileDataset_SingleFile(t *testing.T) {
	tmp := t.TempDir()
	wavPath := filepath.Join(tmp, "in.wav")
	writeWavFixture(t, wavPath, 20)
	outDir := filepath.Join(tmp, "out")

	d, err := NewAudioFileDataset(wavPath, outDir, audioFileTestConfig())
	if err != nil {
		t.Fatalf("NewAudioFileDataset failed: %v", err)
	}
	if d.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", d.Len())
	}

	samples, name, err := d.Example(0)
	if err != nil {
		t.Fatalf("Example failed: %v", err)
	}
	if name != filepath.Join(outDir, "in.wav") {
		t.Fatalf("name = %q, want it under the output dir", name)
	}
	var peak float64
	for _, s := range samples {
		peak = math.Max(peak, math.Abs(float64(s)))
	}
	if math.Abs(peak-0.95) > 0.01 {
		t.Fatalf("peak after normalization = %v, want 0.95", peak)
	}

	batch, err := d.NextBatch()
	if err != nil {
		t.Fatalf("NextBatch failed: %v", err)
	}
	if batch.Batch != 4 {
		t.Fatalf("20 samples in 6-sample segments: got %d, want 4", batch.Batch)
	}
	if batch.Lengths[3] != 2 {
		t.Fatalf("tail segment length = %d, want 2", batch.Lengths[3])
	}
	if _, err := d.NextBatch(); err != io.EOF {
		t.Fatalf("expected io.EOF after the only file, got %v", err)
	}
}

func TestAudioFileDataset_Directory(t *testing.T) {
	tmp := t.TempDir()
	inDir := filepath.Join(tmp, "in")
	if err := os.MkdirAll(inDir, 0o755); err != nil {
		t.Fatalf("failed to create input dir: %v", err)
	}
	writeWavFixture(t, filepath.Join(inDir, "b.wav"), 12)
	writeWavFixture(t, filepath.Join(inDir, "a.wav"), 12)

	d, err := NewAudioFileDataset(inDir, filepath.Join(tmp, "out"), audioFileTestConfig())
	if err != nil {
		t.Fatalf("NewAudioFileDataset failed: %v", err)
	}
	if d.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", d.Len())
	}

	// Sorted order: a.wav first.
	first, err := d.NextBatch()
	if err != nil {
		t.Fatalf("NextBatch failed: %v", err)
	}
	if filepath.Base(first.Name) != "a.wav" {
		t.Fatalf("first item is %q, want a.wav", first.Name)
	}

	_, inputs, labels, err := d.Yield()
	if err != nil {
		t.Fatalf("Yield failed: %v", err)
	}
	if len(inputs) != 2 || labels != nil {
		t.Fatalf("expected (segments, lengths) inputs and no labels, got %d/%d", len(inputs), len(labels))
	}
}

func TestAudioFileDataset_NoFiles(t *testing.T) {
	tmp := t.TempDir()
	empty := filepath.Join(tmp, "empty")
	if err := os.MkdirAll(empty, 0o755); err != nil {
		t.Fatalf("failed to create dir: %v", err)
	}
	if _, err := NewAudioFileDataset(empty, filepath.Join(tmp, "out"), audioFileTestConfig()); err == nil {
		t.Fatalf("expected error for a directory with no audio files")
	}
}
