package datasets

import (
	"archive/zip"
	"io"
	"os"
	"strings"

	"github.com/pkg/errors"
	"github.com/sbinet/npyio"
)

// Array is a dense float32 array deserialized from an .npy payload, kept in
// the row-major layout it was written in. Spectrograms are shaped
// [bins, frames]; waveforms are 1-D [samples].
type Array struct {
	Data  []float32
	Shape []int
}

// Frames returns the size of the trailing axis: the frame count for a
// spectrogram, the sample count for a waveform.
func (a *Array) Frames() int {
	if len(a.Shape) == 0 {
		return 0
	}
	return a.Shape[len(a.Shape)-1]
}

// Bins returns the size of the leading axis of a 2-D array, or 1 for 1-D.
func (a *Array) Bins() int {
	if len(a.Shape) < 2 {
		return 1
	}
	return a.Shape[0]
}

// CropFrames returns a copy of the array restricted to frames
// [start, start+n) along the trailing axis.
func (a *Array) CropFrames(start, n int) *Array {
	bins := a.Bins()
	frames := a.Frames()
	out := &Array{
		Data:  make([]float32, bins*n),
		Shape: append(append([]int(nil), a.Shape[:len(a.Shape)-1]...), n),
	}
	for b := range bins {
		copy(out.Data[b*n:(b+1)*n], a.Data[b*frames+start:b*frames+start+n])
	}
	return out
}

// ReadNpy deserializes one .npy file into an Array.
func ReadNpy(path string) (*Array, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.WithMessagef(err, "failed to open npy %q", path)
	}
	defer f.Close()
	arr, err := readNpyStream(f)
	if err != nil {
		return nil, errors.WithMessagef(err, "failed to decode npy %q", path)
	}
	return arr, nil
}

// ReadNpz deserializes the named members of an .npz archive (a zip of .npy
// members). Requesting a member the archive does not contain is an error:
// a partially fetched item must not flow into a batch.
func ReadNpz(path string, names ...string) (map[string]*Array, error) {
	r, err := zip.OpenReader(path)
	if err != nil {
		return nil, errors.WithMessagef(err, "failed to open npz %q", path)
	}
	defer r.Close()

	members := make(map[string]*zip.File, len(r.File))
	for _, f := range r.File {
		members[strings.TrimSuffix(f.Name, ".npy")] = f
	}

	out := make(map[string]*Array, len(names))
	for _, name := range names {
		f, ok := members[name]
		if !ok {
			return nil, errors.Errorf("npz %q has no member %q", path, name)
		}
		rc, err := f.Open()
		if err != nil {
			return nil, errors.WithMessagef(err, "failed to open npz member %q of %q", name, path)
		}
		arr, err := readNpyStream(rc)
		rc.Close()
		if err != nil {
			return nil, errors.WithMessagef(err, "failed to decode npz member %q of %q", name, path)
		}
		out[name] = arr
	}
	return out, nil
}

// NpyShape reads only the header of an .npy stream and returns its shape.
// Used by manifest generation, which needs frame counts without the payload.
func NpyShape(r io.Reader) ([]int, error) {
	nr, err := npyio.NewReader(r)
	if err != nil {
		return nil, err
	}
	return nr.Header.Descr.Shape, nil
}

// NpzShape reads only the header of one member of an .npz archive.
func NpzShape(path, name string) ([]int, error) {
	r, err := zip.OpenReader(path)
	if err != nil {
		return nil, errors.WithMessagef(err, "failed to open npz %q", path)
	}
	defer r.Close()
	for _, f := range r.File {
		if strings.TrimSuffix(f.Name, ".npy") != name {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, errors.WithMessagef(err, "failed to open npz member %q of %q", name, path)
		}
		defer rc.Close()
		shape, err := NpyShape(rc)
		if err != nil {
			return nil, errors.WithMessagef(err, "failed to parse npz member %q of %q", name, path)
		}
		return shape, nil
	}
	return nil, errors.Errorf("npz %q has no member %q", path, name)
}

func readNpyStream(r io.Reader) (*Array, error) {
	nr, err := npyio.NewReader(r)
	if err != nil {
		return nil, err
	}
	shape := append([]int(nil), nr.Header.Descr.Shape...)

	// Feature extraction writes float32; float64 shows up when arrays were
	// saved without an explicit dtype. Accept both, store float32.
	var data []float32
	switch t := nr.Header.Descr.Type; {
	case strings.HasSuffix(t, "f4"):
		if err := nr.Read(&data); err != nil {
			return nil, err
		}
	case strings.HasSuffix(t, "f8"):
		var wide []float64
		if err := nr.Read(&wide); err != nil {
			return nil, err
		}
		data = make([]float32, len(wide))
		for i, v := range wide {
			data[i] = float32(v)
		}
	default:
		return nil, errors.Errorf("unsupported npy dtype %q", nr.Header.Descr.Type)
	}

	want := 1
	for _, d := range shape {
		want *= d
	}
	if len(data) != want {
		return nil, errors.Errorf("npy payload has %d values, shape %v wants %d", len(data), shape, want)
	}
	return &Array{Data: data, Shape: shape}, nil
}
