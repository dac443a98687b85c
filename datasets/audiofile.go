package datasets

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/gomlx/gomlx/pkg/core/tensors"

	"github.com/Noofbiz/melfeed/audio"
)

// AudioFileDataset serves whole audio files for inference: each item is one
// wav file, resampled to the configured rate and peak-normalized, then split
// into MaxLength*HopLength-sample segments by the collate step. The item
// name is the output path the caller should write results to.
type AudioFileDataset struct {
	cfg       Config
	paths     []string
	outputDir string
	pos       int
}

var _ Dataset = &AudioFileDataset{}

// NewAudioFileDataset accepts either a single audio file or a directory to
// walk recursively. outputDir is created if needed; item names are placed
// under it.
func NewAudioFileDataset(path, outputDir string, cfg Config) (*AudioFileDataset, error) {
	cfg = cfg.Defaults()
	if cfg.MaxLength <= 0 || cfg.HopLength <= 0 {
		return nil, fmt.Errorf("max length and hop length must be positive")
	}
	var paths []string
	if filepath.Ext(path) != "" {
		paths = []string{path}
	} else {
		err := filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() {
				paths = append(paths, p)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to scan %s: %w", path, err)
		}
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no audio files at %s", path)
	}
	sort.Strings(paths)
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output dir: %w", err)
	}
	return &AudioFileDataset{cfg: cfg, paths: paths, outputDir: outputDir}, nil
}

// Name implements Dataset.
func (d *AudioFileDataset) Name() string { return "audio-files" }

// Len returns the number of files (one batch of segments per file).
func (d *AudioFileDataset) Len() int { return len(d.paths) }

// Reset rewinds iteration.
func (d *AudioFileDataset) Reset() { d.pos = 0 }

// Example reads, resamples and normalizes file i, returning the samples and
// the output name for results.
func (d *AudioFileDataset) Example(i int) ([]float32, string, error) {
	if i < 0 || i >= len(d.paths) {
		return nil, "", fmt.Errorf("index %d out of range [0, %d)", i, len(d.paths))
	}
	samples, rate, err := audio.ReadWAV(d.paths[i])
	if err != nil {
		return nil, "", err
	}
	samples = audio.Resample(samples, rate, d.cfg.SamplingRate)
	samples = audio.Normalize(samples, 0.95)

	base := filepath.Base(d.paths[i])
	name := filepath.Join(d.outputDir, base[:len(base)-len(filepath.Ext(base))]+".wav")
	return samples, name, nil
}

// NextBatch reads the next file and splits it into padded segments.
func (d *AudioFileDataset) NextBatch() (*SegmentBatch, error) {
	if d.pos >= len(d.paths) {
		return nil, io.EOF
	}
	samples, name, err := d.Example(d.pos)
	if err != nil {
		return nil, err
	}
	d.pos++
	return CollateSegments(samples, name, d.cfg.MaxLength, d.cfg.HopLength)
}

// Yield implements Dataset. Inputs are the padded segments and their length
// vector; there are no labels at inference time.
func (d *AudioFileDataset) Yield() (any, []*tensors.Tensor, []*tensors.Tensor, error) {
	batch, err := d.NextBatch()
	if err != nil {
		return nil, nil, nil, err
	}
	segs, lengths, err := batch.ToGomlxTensors()
	if err != nil {
		return nil, nil, nil, err
	}
	return d, []*tensors.Tensor{segs, lengths}, nil, nil
}
