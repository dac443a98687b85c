package datasets

import (
	"fmt"
	"sort"

	"github.com/gomlx/gomlx/pkg/core/tensors"
)

// Collation assembles a list of variable-length items into fixed-shape padded
// buffers plus explicit length vectors. Items are reordered by descending
// primary frame length (a contract required by packed-sequence consumers),
// and every secondary tensor follows the same permutation so aligned data
// stays aligned. Collation only pads: an item longer than the configured
// maximum is a loader bug, reported as an error rather than truncated here.

// sortByFramesDesc returns item positions ordered by descending frames(i),
// stable so equal lengths keep their batch order.
func sortByFramesDesc(n int, frames func(i int) int) []int {
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return frames(order[a]) > frames(order[b])
	})
	return order
}

// padInto copies src (bins x srcFrames, row-major) into row i of a pre-zeroed
// dst shaped [batch, bins, maxFrames].
func padInto(dst []float32, i int, src *Array, bins, maxFrames int) {
	base := i * bins * maxFrames
	frames := src.Frames()
	for b := range bins {
		copy(dst[base+b*maxFrames:base+b*maxFrames+frames], src.Data[b*frames:(b+1)*frames])
	}
}

// MelBatch is a padded batch of spectrograms.
type MelBatch struct {
	Mels    []float32 // row-major [Batch, Bins, MaxFrames]
	Lengths []int32   // true frame count per row, descending
	Names   []string  // empty unless the loader was asked for names

	Batch, Bins, MaxFrames int
}

// CollateMel pads a batch of spectrograms to maxFrames, sorted by descending
// frame count. All items must share the same bin count and fit in maxFrames.
func CollateMel(items []*Array, names []string, maxFrames int) (*MelBatch, error) {
	if len(items) == 0 {
		return nil, fmt.Errorf("empty batch")
	}
	bins := items[0].Bins()
	for i, it := range items {
		if it.Bins() != bins {
			return nil, fmt.Errorf("item %d has %d bins, batch has %d", i, it.Bins(), bins)
		}
		if it.Frames() > maxFrames {
			return nil, fmt.Errorf("item %d has %d frames, exceeds max %d: loader should have cropped it", i, it.Frames(), maxFrames)
		}
	}

	order := sortByFramesDesc(len(items), func(i int) int { return items[i].Frames() })
	out := &MelBatch{
		Mels:      make([]float32, len(items)*bins*maxFrames),
		Lengths:   make([]int32, len(items)),
		Batch:     len(items),
		Bins:      bins,
		MaxFrames: maxFrames,
	}
	for i, j := range order {
		padInto(out.Mels, i, items[j], bins, maxFrames)
		out.Lengths[i] = int32(items[j].Frames())
		if names != nil {
			out.Names = append(out.Names, names[j])
		}
	}
	return out, nil
}

// ToGomlxTensors converts the batch into gomlx tensors: the padded
// spectrograms shaped [batch, bins, maxFrames] and the length vector.
func (b *MelBatch) ToGomlxTensors() (*tensors.Tensor, *tensors.Tensor, error) {
	mels, err := tensor3(b.Mels, b.Batch, b.Bins, b.MaxFrames)
	if err != nil {
		return nil, nil, err
	}
	return mels, tensors.FromValue(b.Lengths), nil
}

// MaskedAudioBatch is the training batch of the masking loader: the masked
// spectrogram is the model input, the raw spectrogram the reconstruction
// target, with the aligned waveform alongside.
type MaskedAudioBatch struct {
	MaskedMels    []float32 // [Batch, Bins, MaxFrames]
	MaskedLengths []int32
	Wavs          []float32 // [Batch, 1, MaxFrames*Hop]
	WavLengths    []int32
	RawMels       []float32 // [Batch, Bins, MaxFrames]
	Names         []string

	Batch, Bins, MaxFrames, Hop int
}

// MaskedAudioItem is one fetched item of the masking loader.
type MaskedAudioItem struct {
	Masked *Array
	Audio  *Array // 1-D waveform, Frames()*Hop samples at most
	Raw    *Array
	Name   string
}

// CollateMaskedAudio pads masked spectrograms, waveforms and raw spectrograms
// into aligned fixed-size buffers, all following the descending-frame order
// of the masked spectrogram.
func CollateMaskedAudio(items []MaskedAudioItem, maxFrames, hop int) (*MaskedAudioBatch, error) {
	if len(items) == 0 {
		return nil, fmt.Errorf("empty batch")
	}
	bins := items[0].Masked.Bins()
	maxSamples := maxFrames * hop
	for i, it := range items {
		if it.Masked.Bins() != bins || it.Raw.Bins() != bins {
			return nil, fmt.Errorf("item %d has inconsistent bin count", i)
		}
		if it.Masked.Frames() > maxFrames || it.Raw.Frames() > maxFrames {
			return nil, fmt.Errorf("item %d exceeds %d frames: loader should have cropped it", i, maxFrames)
		}
		if it.Audio.Frames() > maxSamples {
			return nil, fmt.Errorf("item %d waveform exceeds %d samples: loader should have cropped it", i, maxSamples)
		}
	}

	order := sortByFramesDesc(len(items), func(i int) int { return items[i].Masked.Frames() })
	out := &MaskedAudioBatch{
		MaskedMels:    make([]float32, len(items)*bins*maxFrames),
		MaskedLengths: make([]int32, len(items)),
		Wavs:          make([]float32, len(items)*maxSamples),
		WavLengths:    make([]int32, len(items)),
		RawMels:       make([]float32, len(items)*bins*maxFrames),
		Batch:         len(items),
		Bins:          bins,
		MaxFrames:     maxFrames,
		Hop:           hop,
	}
	for i, j := range order {
		it := items[j]
		padInto(out.MaskedMels, i, it.Masked, bins, maxFrames)
		out.MaskedLengths[i] = int32(it.Masked.Frames())
		copy(out.Wavs[i*maxSamples:i*maxSamples+it.Audio.Frames()], it.Audio.Data)
		out.WavLengths[i] = int32(it.Audio.Frames())
		padInto(out.RawMels, i, it.Raw, bins, maxFrames)
		if it.Name != "" {
			out.Names = append(out.Names, it.Name)
		}
	}
	return out, nil
}

// ToGomlxTensors converts the batch into gomlx tensors in the order
// (masked, maskedLengths, wav, wavLengths, raw).
func (b *MaskedAudioBatch) ToGomlxTensors() ([]*tensors.Tensor, error) {
	masked, err := tensor3(b.MaskedMels, b.Batch, b.Bins, b.MaxFrames)
	if err != nil {
		return nil, err
	}
	wavs, err := tensor3(b.Wavs, b.Batch, 1, b.MaxFrames*b.Hop)
	if err != nil {
		return nil, err
	}
	raw, err := tensor3(b.RawMels, b.Batch, b.Bins, b.MaxFrames)
	if err != nil {
		return nil, err
	}
	return []*tensors.Tensor{
		masked, tensors.FromValue(b.MaskedLengths),
		wavs, tensors.FromValue(b.WavLengths),
		raw,
	}, nil
}

// InpaintItem is one fetched item of the inpainting evaluation loader.
type InpaintItem struct {
	Mel  *Array
	Orig *Array
	GT   *Array // 1-D ground-truth waveform
	Name string
}

// InpaintBatch pads degraded and original spectrograms plus the ground-truth
// waveform, keeping per-item names for result bookkeeping.
type InpaintBatch struct {
	Mels        []float32 // [Batch, Bins, MaxFrames]
	MelLengths  []int32
	Origs       []float32 // [Batch, Bins, MaxFrames]
	OrigLengths []int32
	GTs         []float32 // [Batch, MaxFrames*Hop]
	GTLengths   []int32
	Names       []string

	Batch, Bins, MaxFrames, Hop int
}

// CollateInpaint pads an inpainting batch, sorted by descending degraded-mel
// frame count; original mels, ground-truth audio and names follow that order.
func CollateInpaint(items []InpaintItem, maxFrames, hop int) (*InpaintBatch, error) {
	if len(items) == 0 {
		return nil, fmt.Errorf("empty batch")
	}
	bins := items[0].Mel.Bins()
	maxSamples := maxFrames * hop
	for i, it := range items {
		if it.Mel.Bins() != bins || it.Orig.Bins() != bins {
			return nil, fmt.Errorf("item %d has inconsistent bin count", i)
		}
		if it.Mel.Frames() > maxFrames || it.Orig.Frames() > maxFrames || it.GT.Frames() > maxSamples {
			return nil, fmt.Errorf("item %d exceeds batch capacity: loader should have cropped it", i)
		}
	}

	order := sortByFramesDesc(len(items), func(i int) int { return items[i].Mel.Frames() })
	out := &InpaintBatch{
		Mels:        make([]float32, len(items)*bins*maxFrames),
		MelLengths:  make([]int32, len(items)),
		Origs:       make([]float32, len(items)*bins*maxFrames),
		OrigLengths: make([]int32, len(items)),
		GTs:         make([]float32, len(items)*maxSamples),
		GTLengths:   make([]int32, len(items)),
		Names:       make([]string, len(items)),
		Batch:       len(items),
		Bins:        bins,
		MaxFrames:   maxFrames,
		Hop:         hop,
	}
	for i, j := range order {
		it := items[j]
		padInto(out.Mels, i, it.Mel, bins, maxFrames)
		out.MelLengths[i] = int32(it.Mel.Frames())
		padInto(out.Origs, i, it.Orig, bins, maxFrames)
		out.OrigLengths[i] = int32(it.Orig.Frames())
		copy(out.GTs[i*maxSamples:i*maxSamples+it.GT.Frames()], it.GT.Data)
		out.GTLengths[i] = int32(it.GT.Frames())
		out.Names[i] = it.Name
	}
	return out, nil
}

// ToGomlxTensors converts the batch into gomlx tensors in the order
// (mel, melLengths, orig, origLengths, gt, gtLengths). Names stay on the
// batch struct.
func (b *InpaintBatch) ToGomlxTensors() ([]*tensors.Tensor, error) {
	mels, err := tensor3(b.Mels, b.Batch, b.Bins, b.MaxFrames)
	if err != nil {
		return nil, err
	}
	origs, err := tensor3(b.Origs, b.Batch, b.Bins, b.MaxFrames)
	if err != nil {
		return nil, err
	}
	gts, err := tensor2(b.GTs, b.Batch, b.MaxFrames*b.Hop)
	if err != nil {
		return nil, err
	}
	return []*tensors.Tensor{
		mels, tensors.FromValue(b.MelLengths),
		origs, tensors.FromValue(b.OrigLengths),
		gts, tensors.FromValue(b.GTLengths),
	}, nil
}

// SegmentBatch is a whole waveform split into fixed-size segments for
// whole-file inference: each row is one segment padded to MaxFrames*Hop.
type SegmentBatch struct {
	Segments []float32 // [Batch, MaxFrames*Hop]
	Lengths  []int32
	Name     string

	Batch, MaxFrames, Hop int
}

// CollateSegments splits a single waveform into consecutive segments of
// exactly maxFrames*hop samples, zero-padding the final partial segment.
func CollateSegments(audio []float32, name string, maxFrames, hop int) (*SegmentBatch, error) {
	if len(audio) == 0 {
		return nil, fmt.Errorf("empty waveform")
	}
	segSize := maxFrames * hop
	n := (len(audio) + segSize - 1) / segSize
	out := &SegmentBatch{
		Segments:  make([]float32, n*segSize),
		Lengths:   make([]int32, n),
		Name:      name,
		Batch:     n,
		MaxFrames: maxFrames,
		Hop:       hop,
	}
	for i := range n {
		seg := audio[i*segSize : min((i+1)*segSize, len(audio))]
		copy(out.Segments[i*segSize:], seg)
		out.Lengths[i] = int32(len(seg))
	}
	return out, nil
}

// ToGomlxTensors converts the segment batch into gomlx tensors: the padded
// segments shaped [batch, maxFrames*hop] and the length vector.
func (b *SegmentBatch) ToGomlxTensors() (*tensors.Tensor, *tensors.Tensor, error) {
	segs, err := tensor2(b.Segments, b.Batch, b.MaxFrames*b.Hop)
	if err != nil {
		return nil, nil, err
	}
	return segs, tensors.FromValue(b.Lengths), nil
}

// tensor2 reshapes a flat row-major buffer into a [d0, d1] gomlx tensor.
func tensor2(flat []float32, d0, d1 int) (*tensors.Tensor, error) {
	if len(flat) != d0*d1 {
		return nil, fmt.Errorf("buffer has %d values, shape [%d %d] wants %d", len(flat), d0, d1, d0*d1)
	}
	data := make([][]float32, d0)
	for i := range d0 {
		data[i] = flat[i*d1 : (i+1)*d1]
	}
	return tensors.FromAnyValue(data), nil
}

// tensor3 reshapes a flat row-major buffer into a [d0, d1, d2] gomlx tensor.
func tensor3(flat []float32, d0, d1, d2 int) (*tensors.Tensor, error) {
	if len(flat) != d0*d1*d2 {
		return nil, fmt.Errorf("buffer has %d values, shape [%d %d %d] wants %d", len(flat), d0, d1, d2, d0*d1*d2)
	}
	data := make([][][]float32, d0)
	for i := range d0 {
		data[i] = make([][]float32, d1)
		for j := range d1 {
			base := (i*d1 + j) * d2
			data[i][j] = flat[base : base+d2]
		}
	}
	return tensors.FromAnyValue(data), nil
}
