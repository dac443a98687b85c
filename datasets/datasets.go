package datasets

import "github.com/gomlx/gomlx/pkg/core/tensors"

// This package is the data-loading layer for speech/audio generative-model
// training. Feature payloads (spectrograms, waveforms) are precomputed on
// disk as .npy/.npz arrays; the loaders fetch them lazily per item, the
// DistributedBucketSampler decides which items form each batch on each
// replica, and the collate functions assemble padded tensors with explicit
// length vectors.
//
// The loaders implement the gomlx train.Dataset contract (Name/Yield/Reset)
// so they can be driven directly by a gomlx training loop, and additionally
// expose Len/Example/Batch for callers that manage iteration themselves.
type Dataset interface {
	Name() string
	Len() int
	Reset()

	// Yield returns the next collated batch. It returns io.EOF once the
	// epoch's batch sequence is exhausted.
	Yield() (spec any, inputs []*tensors.Tensor, labels []*tensors.Tensor, err error)
}
