package datasets

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"
)

// maskBins exceeds the top of the mask band so the highest row is always
// masked regardless of the random band start.
const maskBins = maskHigh + 1

func buildMaskFixture(t *testing.T, frames, hop int) string {
	t.Helper()
	tmp := t.TempDir()
	path := filepath.Join(tmp, "utt1.npz")
	writeNpz(t, path, map[string]any{
		"mel":   melDense(maskBins, frames),
		"audio": rampAudio32(frames * hop),
	})
	manifest := filepath.Join(tmp, "train.txt")
	if err := os.WriteFile(manifest, []byte(fmt.Sprintf("%s|%d\n", path, frames)), 0o644); err != nil {
		t.Fatalf("failed to write manifest: %v", err)
	}
	return manifest
}

func maskTestConfig() Config {
	return Config{
		MaxLength:   20,
		HopLength:   2,
		MaskValue:   -5,
		BatchSize:   1,
		Boundaries:  []int{0, 40},
		NumReplicas: 1,
		Shuffle:     false,
		Seed:        1234,
	}
}

// TestAudioMelDataset_Example checks the aligned crop and the band mask:
// spectrogram and waveform share one window offset, rows below the band are
// untouched, the top row always carries the mask value, and the raw
// spectrogram stays unmasked.
func TestAudioMelDataset_Example(t *testing.T) {
	cfg := maskTestConfig()
	d, err := NewAudioMelDataset(buildMaskFixture(t, 30, cfg.HopLength), cfg, true)
	if err != nil {
		t.Fatalf("NewAudioMelDataset failed: %v", err)
	}

	item, err := d.Example(0)
	if err != nil {
		t.Fatalf("Example failed: %v", err)
	}
	if item.Masked.Frames() != cfg.MaxLength || item.Raw.Frames() != cfg.MaxLength {
		t.Fatalf("cropped to %d/%d frames, want %d", item.Masked.Frames(), item.Raw.Frames(), cfg.MaxLength)
	}
	if item.Audio.Frames() != cfg.MaxLength*cfg.HopLength {
		t.Fatalf("waveform has %d samples, want %d", item.Audio.Frames(), cfg.MaxLength*cfg.HopLength)
	}
	if item.Name != "utt1.wav" {
		t.Fatalf("name = %q, want utt1.wav", item.Name)
	}

	// The fixture encodes the frame index in the mel values, so the window
	// start can be recovered from the raw spectrogram and checked against
	// the waveform crop.
	start := int(item.Raw.Data[0])
	if start < 0 || start > 10 {
		t.Fatalf("window start %d outside [0, 10]", start)
	}
	frames := item.Raw.Frames()
	for b := range item.Raw.Bins() {
		if got, want := item.Raw.Data[b*frames], melValue(b, start); got != want {
			t.Fatalf("raw bin %d starts at %v, want %v", b, got, want)
		}
	}
	if got, want := item.Audio.Data[0], float32(start*cfg.HopLength)*0.001; got != want {
		t.Fatalf("waveform starts at %v, want %v: crop not aligned by hop", got, want)
	}

	// Top row is inside every possible mask band.
	top := item.Masked.Data[(maskBins-1)*frames : maskBins*frames]
	for f, v := range top {
		if v != cfg.MaskValue {
			t.Fatalf("masked top row frame %d = %v, want mask value %v", f, v, cfg.MaskValue)
		}
	}
	// Rows below the band floor are never masked.
	for b := 0; b < maskLow; b++ {
		for f := range frames {
			if got, want := item.Masked.Data[b*frames+f], item.Raw.Data[b*frames+f]; got != want {
				t.Fatalf("bin %d below mask band was modified", b)
			}
		}
	}
	// Masking happened on a copy.
	for f := range frames {
		if item.Raw.Data[(maskBins-1)*frames+f] == cfg.MaskValue {
			t.Fatalf("raw spectrogram was masked in place")
		}
	}
}

// TestAudioMelDataset_ShortItemUncropped leaves items at or under MaxLength
// untouched apart from the mask.
func TestAudioMelDataset_ShortItemUncropped(t *testing.T) {
	cfg := maskTestConfig()
	d, err := NewAudioMelDataset(buildMaskFixture(t, 12, cfg.HopLength), cfg, false)
	if err != nil {
		t.Fatalf("NewAudioMelDataset failed: %v", err)
	}
	item, err := d.Example(0)
	if err != nil {
		t.Fatalf("Example failed: %v", err)
	}
	if item.Raw.Frames() != 12 || item.Audio.Frames() != 24 {
		t.Fatalf("short item was cropped: %d frames, %d samples", item.Raw.Frames(), item.Audio.Frames())
	}
}

func TestAudioMelDataset_EpochAndYield(t *testing.T) {
	cfg := maskTestConfig()
	d, err := NewAudioMelDataset(buildMaskFixture(t, 30, cfg.HopLength), cfg, false)
	if err != nil {
		t.Fatalf("NewAudioMelDataset failed: %v", err)
	}
	if d.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", d.Len())
	}

	_, inputs, labels, err := d.Yield()
	if err != nil {
		t.Fatalf("Yield failed: %v", err)
	}
	if len(inputs) != 4 {
		t.Fatalf("expected (masked, maskedLengths, wav, wavLengths), got %d tensors", len(inputs))
	}
	if len(labels) != 1 {
		t.Fatalf("expected the raw spectrogram label, got %d tensors", len(labels))
	}
	if _, _, _, err := d.Yield(); err != io.EOF {
		t.Fatalf("expected io.EOF after the last batch, got %v", err)
	}

	d.SetEpoch(1)
	if _, _, _, err := d.Yield(); err != nil {
		t.Fatalf("Yield after SetEpoch failed: %v", err)
	}
}
