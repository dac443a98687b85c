package datasets

// Config holds the knobs shared by the loaders, the bucket sampler and the
// collate functions. Zero values are filled in by Defaults where a sensible
// default exists; BatchSize and Boundaries have none and must be set.
type Config struct {
	// MaxLength is the truncation/padding target in frames. Items longer
	// than this are cropped to a random contiguous window at fetch time,
	// and every collated batch is padded out to exactly this many frames.
	MaxLength int

	// MinLength is advisory; items shorter than this are expected to have
	// been filtered out when the manifest was produced.
	MinLength int

	// HopLength is the number of waveform samples per spectrogram frame,
	// used to keep audio and mel crops aligned.
	HopLength int

	// MaskValue fills the masked band of the spectrogram in the masking
	// loader.
	MaskValue float32

	// SamplingRate is the waveform rate expected by downstream consumers.
	// The whole-file loader resamples its input to this rate.
	SamplingRate int

	// BatchSize is the exact number of items per batch.
	BatchSize int

	// Boundaries is the strictly increasing list of length thresholds
	// delimiting the sampler's buckets.
	Boundaries []int

	// NumReplicas and Rank identify this worker among the distributed
	// training group. Single-process training uses 1 and 0.
	NumReplicas int
	Rank        int

	// Shuffle enables the per-epoch deterministic shuffle. When false the
	// sampler iterates buckets in manifest order.
	Shuffle bool

	// Seed keys every deterministic permutation. The fixed default keeps
	// runs reproducible unless the caller opts into a different stream.
	Seed int64
}

// Defaults fills unset optional fields and returns the config.
func (c Config) Defaults() Config {
	if c.NumReplicas == 0 {
		c.NumReplicas = 1
	}
	if c.Seed == 0 {
		c.Seed = 1234
	}
	if c.SamplingRate == 0 {
		c.SamplingRate = 24000
	}
	return c
}
