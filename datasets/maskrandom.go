package datasets

import (
	"fmt"
	"math/rand"
	"sync"

	"github.com/gomlx/gomlx/pkg/core/tensors"
)

// Band-masking bounds: the mask starts at a random bin in [maskLow, maskHigh]
// and runs to the top of the spectrogram, simulating a band-limited input for
// bandwidth-extension training.
const (
	maskLow  = 32
	maskHigh = 128
)

// AudioMelDataset serves .npz items carrying an aligned waveform ("audio")
// and spectrogram ("mel"). Fetch crops both to the same random window, the
// waveform by HopLength samples per frame, then masks the upper frequency
// band of a copy of the spectrogram with MaskValue. The masked spectrogram is
// the model input, the untouched one the target.
type AudioMelDataset struct {
	cfg         Config
	index       *LengthIndex
	sampler     *DistributedBucketSampler
	cursor      batchCursor
	returnNames bool

	randMu   sync.Mutex
	fetchRnd *rand.Rand
}

var _ Dataset = &AudioMelDataset{}

// NewAudioMelDataset loads the manifest at manifestPath and builds the
// bucket sampler over it.
func NewAudioMelDataset(manifestPath string, cfg Config, returnNames bool) (*AudioMelDataset, error) {
	cfg = cfg.Defaults()
	if cfg.MaxLength <= 0 {
		return nil, fmt.Errorf("max length must be positive, got %d", cfg.MaxLength)
	}
	if cfg.HopLength <= 0 {
		return nil, fmt.Errorf("hop length must be positive, got %d", cfg.HopLength)
	}
	index, err := LoadManifest(manifestPath, cfg)
	if err != nil {
		return nil, err
	}
	sampler, err := NewDistributedBucketSampler(index.Lengths(), cfg)
	if err != nil {
		return nil, err
	}
	d := &AudioMelDataset{
		cfg:         cfg,
		index:       index,
		sampler:     sampler,
		returnNames: returnNames,
		fetchRnd:    rand.New(rand.NewSource(cfg.Seed)),
	}
	d.cursor.sampler = sampler
	return d, nil
}

// Name implements Dataset.
func (d *AudioMelDataset) Name() string { return "audio-mel-masked" }

// Len returns the number of batches per epoch on this rank.
func (d *AudioMelDataset) Len() int { return d.sampler.Len() }

// Sampler exposes the underlying bucket sampler.
func (d *AudioMelDataset) Sampler() *DistributedBucketSampler { return d.sampler }

// SetEpoch selects the epoch for subsequent iteration and rewinds it.
func (d *AudioMelDataset) SetEpoch(epoch int) {
	d.sampler.SetEpoch(epoch)
	d.cursor.reset()
}

// Reset rewinds iteration for another pass over the current epoch.
func (d *AudioMelDataset) Reset() { d.cursor.reset() }

func (d *AudioMelDataset) randInt(n int) int {
	d.randMu.Lock()
	defer d.randMu.Unlock()
	if n <= 1 {
		return 0
	}
	return d.fetchRnd.Intn(n)
}

// Example fetches item i: decodes the npz, crops waveform and spectrogram to
// one aligned random window, and applies the random band mask. Safe for
// concurrent calls.
func (d *AudioMelDataset) Example(i int) (MaskedAudioItem, error) {
	arrays, err := ReadNpz(d.index.Path(i), "audio", "mel")
	if err != nil {
		return MaskedAudioItem{}, err
	}
	audio, mel := arrays["audio"], arrays["mel"]

	if mel.Frames() >= d.cfg.MaxLength {
		start := d.randInt(mel.Frames() - d.cfg.MaxLength + 1)
		mel = mel.CropFrames(start, d.cfg.MaxLength)
		hop := d.cfg.HopLength
		end := min((start+d.cfg.MaxLength)*hop, audio.Frames())
		audio = audio.CropFrames(start*hop, end-start*hop)
	}

	masked := &Array{
		Data:  append([]float32(nil), mel.Data...),
		Shape: append([]int(nil), mel.Shape...),
	}
	maskFrom := maskLow + d.randInt(maskHigh-maskLow+1)
	frames := masked.Frames()
	for b := maskFrom; b < masked.Bins(); b++ {
		row := masked.Data[b*frames : (b+1)*frames]
		for j := range row {
			row[j] = d.cfg.MaskValue
		}
	}

	item := MaskedAudioItem{Masked: masked, Audio: audio, Raw: mel}
	if d.returnNames {
		item.Name = wavName(d.index.Path(i))
	}
	return item, nil
}

// Batch fetches the given item indices concurrently.
func (d *AudioMelDataset) Batch(indices []int) ([]MaskedAudioItem, error) {
	return fetchParallel(len(indices), 0, func(i int) (MaskedAudioItem, error) {
		return d.Example(indices[i])
	})
}

// NextBatch fetches and collates the next sampler batch of the current epoch.
func (d *AudioMelDataset) NextBatch() (*MaskedAudioBatch, error) {
	indices, err := d.cursor.next()
	if err != nil {
		return nil, err
	}
	items, err := d.Batch(indices)
	if err != nil {
		return nil, err
	}
	return CollateMaskedAudio(items, d.cfg.MaxLength, d.cfg.HopLength)
}

// Yield implements Dataset. Inputs are (masked, maskedLengths, wav,
// wavLengths); the label is the unmasked spectrogram.
func (d *AudioMelDataset) Yield() (any, []*tensors.Tensor, []*tensors.Tensor, error) {
	batch, err := d.NextBatch()
	if err != nil {
		return nil, nil, nil, err
	}
	ts, err := batch.ToGomlxTensors()
	if err != nil {
		return nil, nil, nil, err
	}
	return d, ts[:4], ts[4:], nil
}
