package datasets

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/gomlx/gomlx/pkg/core/tensors"

	"github.com/Noofbiz/melfeed/audio"
)

// InpaintDataset serves evaluation items for spectrogram inpainting: .npz
// files found recursively under a root directory, each carrying the degraded
// spectrogram ("mel"), the full-bandwidth original ("mel_orig"), the
// ground-truth waveform ("audio_orig") and the degraded waveform ("audio").
// Items iterate in sorted path order; no bucket sampler is involved since
// evaluation visits every item exactly once.
//
// With a dump directory set, each fetch also writes the ground-truth and
// degraded waveforms as wav files for listening checks, mirroring the
// directory's source-rate component.
type InpaintDataset struct {
	cfg     Config
	paths   []string
	dumpDir string
	pos     int
}

var _ Dataset = &InpaintDataset{}

// NewInpaintDataset collects all .npz files under root. dumpDir enables the
// wav debug dump when non-empty.
func NewInpaintDataset(root string, cfg Config, dumpDir string) (*InpaintDataset, error) {
	cfg = cfg.Defaults()
	if cfg.BatchSize <= 0 {
		return nil, fmt.Errorf("batch size must be positive, got %d", cfg.BatchSize)
	}
	var paths []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.HasSuffix(path, ".npz") {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan %s: %w", root, err)
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no npz files under %s", root)
	}
	return &InpaintDataset{cfg: cfg, paths: paths, dumpDir: dumpDir}, nil
}

// Name implements Dataset.
func (d *InpaintDataset) Name() string { return "inpaint" }

// Len returns the number of batches per pass; the final batch may be short.
func (d *InpaintDataset) Len() int {
	return (len(d.paths) + d.cfg.BatchSize - 1) / d.cfg.BatchSize
}

// Items returns the number of individual items.
func (d *InpaintDataset) Items() int { return len(d.paths) }

// Reset rewinds iteration.
func (d *InpaintDataset) Reset() { d.pos = 0 }

// itemName is "<source-rate>/<base>.wav": the path component two above the
// file names the source sample rate variant the item was degraded from.
func itemName(path string) string {
	base := wavName(path)
	dir := filepath.Dir(path)
	ssr := filepath.Base(filepath.Dir(dir))
	return filepath.Join(ssr, base)
}

// Example fetches and decodes item i. Safe for concurrent calls: each call
// reads its own file, and dump targets are distinct per item.
func (d *InpaintDataset) Example(i int) (InpaintItem, error) {
	if i < 0 || i >= len(d.paths) {
		return InpaintItem{}, fmt.Errorf("index %d out of range [0, %d)", i, len(d.paths))
	}
	path := d.paths[i]
	arrays, err := ReadNpz(path, "mel", "mel_orig", "audio_orig", "audio")
	if err != nil {
		return InpaintItem{}, err
	}
	name := itemName(path)

	if d.dumpDir != "" {
		if err := d.dumpWavs(name, arrays["audio_orig"], arrays["audio"]); err != nil {
			return InpaintItem{}, err
		}
	}
	return InpaintItem{
		Mel:  arrays["mel"],
		Orig: arrays["mel_orig"],
		GT:   arrays["audio_orig"],
		Name: name,
	}, nil
}

func (d *InpaintDataset) dumpWavs(name string, gt, src *Array) error {
	gtPath := filepath.Join(d.dumpDir, "gt", filepath.Base(name))
	srcPath := filepath.Join(d.dumpDir, "src", name)
	for _, p := range []string{gtPath, srcPath} {
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			return fmt.Errorf("failed to create dump dir: %w", err)
		}
	}
	if err := audio.WriteWAV16(gtPath, d.cfg.SamplingRate, gt.Data); err != nil {
		return err
	}
	return audio.WriteWAV16(srcPath, d.cfg.SamplingRate, src.Data)
}

// Batch fetches the given item indices concurrently.
func (d *InpaintDataset) Batch(indices []int) ([]InpaintItem, error) {
	return fetchParallel(len(indices), 0, func(i int) (InpaintItem, error) {
		return d.Example(indices[i])
	})
}

// NextBatch fetches and collates the next batch in path order.
func (d *InpaintDataset) NextBatch() (*InpaintBatch, error) {
	indices, err := d.nextIndices()
	if err != nil {
		return nil, err
	}
	items, err := d.Batch(indices)
	if err != nil {
		return nil, err
	}
	return CollateInpaint(items, d.cfg.MaxLength, d.cfg.HopLength)
}

func (d *InpaintDataset) nextIndices() ([]int, error) {
	if d.pos >= len(d.paths) {
		return nil, io.EOF
	}
	end := min(d.pos+d.cfg.BatchSize, len(d.paths))
	indices := make([]int, 0, end-d.pos)
	for i := d.pos; i < end; i++ {
		indices = append(indices, i)
	}
	d.pos = end
	return indices, nil
}

// Yield implements Dataset. Inputs are (mel, melLengths, gt, gtLengths);
// labels are (origMel, origLengths).
func (d *InpaintDataset) Yield() (any, []*tensors.Tensor, []*tensors.Tensor, error) {
	batch, err := d.NextBatch()
	if err != nil {
		return nil, nil, nil, err
	}
	ts, err := batch.ToGomlxTensors()
	if err != nil {
		return nil, nil, nil, err
	}
	inputs := []*tensors.Tensor{ts[0], ts[1], ts[4], ts[5]}
	labels := []*tensors.Tensor{ts[2], ts[3]}
	return d, inputs, labels, nil
}
