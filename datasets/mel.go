package datasets

import (
	"fmt"
	"math/rand"
	"path/filepath"
	"strings"
	"sync"

	"github.com/gomlx/gomlx/pkg/core/tensors"
)

// MelDataset serves precomputed spectrograms stored one .npy file per item,
// indexed by a "<path>|<length>" manifest. Items longer than MaxLength are
// cropped to a random contiguous window of exactly MaxLength frames at fetch
// time; collation afterwards only pads.
type MelDataset struct {
	cfg         Config
	index       *LengthIndex
	sampler     *DistributedBucketSampler
	cursor      batchCursor
	returnNames bool

	// cropMu guards cropRand: Example may be called from concurrent fetch
	// workers, and each call draws one window offset.
	cropMu   sync.Mutex
	cropRand *rand.Rand
}

var _ Dataset = &MelDataset{}

// NewMelDataset loads the manifest at manifestPath and builds the bucket
// sampler over it. With returnNames the collated batches carry the item
// file names.
func NewMelDataset(manifestPath string, cfg Config, returnNames bool) (*MelDataset, error) {
	cfg = cfg.Defaults()
	if cfg.MaxLength <= 0 {
		return nil, fmt.Errorf("max length must be positive, got %d", cfg.MaxLength)
	}
	index, err := LoadManifest(manifestPath, cfg)
	if err != nil {
		return nil, err
	}
	sampler, err := NewDistributedBucketSampler(index.Lengths(), cfg)
	if err != nil {
		return nil, err
	}
	d := &MelDataset{
		cfg:         cfg,
		index:       index,
		sampler:     sampler,
		returnNames: returnNames,
		cropRand:    rand.New(rand.NewSource(cfg.Seed)),
	}
	d.cursor.sampler = sampler
	return d, nil
}

// Name implements Dataset.
func (d *MelDataset) Name() string { return "mel" }

// Len returns the number of batches per epoch on this rank.
func (d *MelDataset) Len() int { return d.sampler.Len() }

// Sampler exposes the underlying bucket sampler, e.g. for SetEpoch.
func (d *MelDataset) Sampler() *DistributedBucketSampler { return d.sampler }

// SetEpoch selects the epoch for subsequent iteration and rewinds it.
func (d *MelDataset) SetEpoch(epoch int) {
	d.sampler.SetEpoch(epoch)
	d.cursor.reset()
}

// Reset rewinds iteration for another pass over the current epoch.
func (d *MelDataset) Reset() { d.cursor.reset() }

// Example fetches and decodes item i, cropping to a random MaxLength window
// when the stored spectrogram is longer. Safe for concurrent calls.
func (d *MelDataset) Example(i int) (*Array, error) {
	mel, err := ReadNpy(d.index.Path(i))
	if err != nil {
		return nil, err
	}
	return d.cropWindow(mel), nil
}

func (d *MelDataset) cropWindow(mel *Array) *Array {
	if mel.Frames() < d.cfg.MaxLength {
		return mel
	}
	start := d.randInt(mel.Frames() - d.cfg.MaxLength + 1)
	return mel.CropFrames(start, d.cfg.MaxLength)
}

func (d *MelDataset) randInt(n int) int {
	d.cropMu.Lock()
	defer d.cropMu.Unlock()
	if n <= 1 {
		return 0
	}
	return d.cropRand.Intn(n)
}

// Batch fetches the given item indices concurrently.
func (d *MelDataset) Batch(indices []int) ([]*Array, error) {
	return fetchParallel(len(indices), 0, func(i int) (*Array, error) {
		return d.Example(indices[i])
	})
}

// NextBatch fetches and collates the next sampler batch of the current epoch.
func (d *MelDataset) NextBatch() (*MelBatch, error) {
	indices, err := d.cursor.next()
	if err != nil {
		return nil, err
	}
	items, err := d.Batch(indices)
	if err != nil {
		return nil, err
	}
	var names []string
	if d.returnNames {
		names = make([]string, len(indices))
		for i, idx := range indices {
			names[i] = wavName(d.index.Path(idx))
		}
	}
	return CollateMel(items, names, d.cfg.MaxLength)
}

// Yield implements Dataset. Inputs are the padded spectrograms and their
// length vector; the spectrograms double as labels for reconstruction
// training.
func (d *MelDataset) Yield() (any, []*tensors.Tensor, []*tensors.Tensor, error) {
	batch, err := d.NextBatch()
	if err != nil {
		return nil, nil, nil, err
	}
	mels, lengths, err := batch.ToGomlxTensors()
	if err != nil {
		return nil, nil, nil, err
	}
	return d, []*tensors.Tensor{mels, lengths}, []*tensors.Tensor{mels}, nil
}

// wavName maps a feature path to the item's wav base name.
func wavName(featurePath string) string {
	base := filepath.Base(featurePath)
	ext := filepath.Ext(base)
	return strings.TrimSuffix(base, ext) + ".wav"
}
