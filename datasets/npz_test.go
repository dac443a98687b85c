package datasets

import (
	"os"
	"reflect"
	"testing"
)

func TestReadNpy(t *testing.T) {
	path := fixturePath(t, "mel.npy")
	writeNpyMel(t, path, 3, 7)

	arr, err := ReadNpy(path)
	if err != nil {
		t.Fatalf("ReadNpy failed: %v", err)
	}
	if !reflect.DeepEqual(arr.Shape, []int{3, 7}) {
		t.Fatalf("shape = %v, want [3 7]", arr.Shape)
	}
	if arr.Bins() != 3 || arr.Frames() != 7 {
		t.Fatalf("Bins/Frames = %d/%d, want 3/7", arr.Bins(), arr.Frames())
	}
	if got := arr.Data[1*7+4]; got != melValue(1, 4) {
		t.Fatalf("value at (1,4) = %v, want %v", got, melValue(1, 4))
	}
}

func TestReadNpy_Missing(t *testing.T) {
	if _, err := ReadNpy(fixturePath(t, "nope.npy")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestReadNpz(t *testing.T) {
	path := fixturePath(t, "item.npz")
	writeNpz(t, path, map[string]any{
		"mel":   melDense(2, 5),
		"audio": rampAudio32(10),
	})

	arrays, err := ReadNpz(path, "mel", "audio")
	if err != nil {
		t.Fatalf("ReadNpz failed: %v", err)
	}
	if !reflect.DeepEqual(arrays["mel"].Shape, []int{2, 5}) {
		t.Fatalf("mel shape = %v, want [2 5]", arrays["mel"].Shape)
	}
	if arrays["audio"].Bins() != 1 || arrays["audio"].Frames() != 10 {
		t.Fatalf("audio treated as %d x %d, want 1 x 10", arrays["audio"].Bins(), arrays["audio"].Frames())
	}
	if got, want := arrays["audio"].Data[3], float32(3)*0.001; got != want {
		t.Fatalf("audio[3] = %v, want %v", got, want)
	}
}

func TestReadNpz_MissingMember(t *testing.T) {
	path := fixturePath(t, "item.npz")
	writeNpz(t, path, map[string]any{"mel": melDense(2, 5)})

	if _, err := ReadNpz(path, "mel", "audio"); err == nil {
		t.Fatalf("expected error for missing npz member")
	}
}

func TestNpyShape_HeaderOnly(t *testing.T) {
	path := fixturePath(t, "mel.npy")
	writeNpyMel(t, path, 80, 123)

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("failed to open fixture: %v", err)
	}
	defer f.Close()
	shape, err := NpyShape(f)
	if err != nil {
		t.Fatalf("NpyShape failed: %v", err)
	}
	if !reflect.DeepEqual(shape, []int{80, 123}) {
		t.Fatalf("shape = %v, want [80 123]", shape)
	}
}

func TestNpzShape(t *testing.T) {
	path := fixturePath(t, "item.npz")
	writeNpz(t, path, map[string]any{"mel": melDense(4, 9)})

	shape, err := NpzShape(path, "mel")
	if err != nil {
		t.Fatalf("NpzShape failed: %v", err)
	}
	if !reflect.DeepEqual(shape, []int{4, 9}) {
		t.Fatalf("shape = %v, want [4 9]", shape)
	}
	if _, err := NpzShape(path, "audio"); err == nil {
		t.Fatalf("expected error for missing member")
	}
}

func TestArray_CropFrames(t *testing.T) {
	arr := &Array{
		Data:  []float32{0, 1, 2, 3, 10, 11, 12, 13},
		Shape: []int{2, 4},
	}
	got := arr.CropFrames(1, 2)
	if !reflect.DeepEqual(got.Shape, []int{2, 2}) {
		t.Fatalf("cropped shape = %v, want [2 2]", got.Shape)
	}
	if !reflect.DeepEqual(got.Data, []float32{1, 2, 11, 12}) {
		t.Fatalf("cropped data = %v, want [1 2 11 12]", got.Data)
	}
	// The crop is a copy: mutating it must not touch the source.
	got.Data[0] = 99
	if arr.Data[1] != 1 {
		t.Fatalf("crop aliased the source array")
	}
}
