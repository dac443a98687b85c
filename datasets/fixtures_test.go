package datasets

import (
	"archive/zip"
	"fmt"
	"os"
	"testing"

	"github.com/sbinet/npyio"
	"gonum.org/v1/gonum/mat"
)

// melDense builds a bins x frames matrix whose value at (b, f) is
// b*1000 + f, so tests can verify exact placement after crops and padding.
func melDense(bins, frames int) *mat.Dense {
	data := make([]float64, bins*frames)
	for b := 0; b < bins; b++ {
		for f := 0; f < frames; f++ {
			data[b*frames+f] = float64(b*1000 + f)
		}
	}
	return mat.NewDense(bins, frames, data)
}

// writeNpyMel writes a 2-D spectrogram fixture as a .npy file.
func writeNpyMel(t *testing.T, path string, bins, frames int) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("failed to create %s: %v", path, err)
	}
	defer f.Close()
	if err := npyio.Write(f, melDense(bins, frames)); err != nil {
		t.Fatalf("failed to write npy %s: %v", path, err)
	}
}

// writeNpz writes an .npz fixture; members may be *mat.Dense (2-D) or
// []float32 (1-D), mirroring what the loaders expect on disk.
func writeNpz(t *testing.T, path string, members map[string]any) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("failed to create %s: %v", path, err)
	}
	defer f.Close()
	zw := zip.NewWriter(f)
	for name, val := range members {
		w, err := zw.Create(name + ".npy")
		if err != nil {
			t.Fatalf("failed to create npz member %s: %v", name, err)
		}
		if err := npyio.Write(w, val); err != nil {
			t.Fatalf("failed to write npz member %s: %v", name, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("failed to finalize npz %s: %v", path, err)
	}
}

// rampAudio32 is a waveform fixture with samples i*0.001.
func rampAudio32(samples int) []float32 {
	data := make([]float32, samples)
	for i := range data {
		data[i] = float32(i) * 0.001
	}
	return data
}

// melValue is the fixture value expected at (b, f); see melDense.
func melValue(b, f int) float32 { return float32(b*1000 + f) }

func fixturePath(t *testing.T, name string) string {
	t.Helper()
	return fmt.Sprintf("%s/%s", t.TempDir(), name)
}
