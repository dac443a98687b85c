package datasets

import (
	"errors"
	"fmt"
	"math/rand"

	"k8s.io/klog/v2"
)

// ErrNoBuckets is returned by NewDistributedBucketSampler when no item falls
// inside any of the configured length boundaries. The sampler would produce
// zero batches, which callers in a training loop usually want to report as a
// configuration problem rather than silently train on nothing.
var ErrNoBuckets = errors.New("no items fall within the configured boundaries")

// DistributedBucketSampler groups items of similar length into batches and
// deals those batches out evenly across a fixed number of training replicas.
//
// Items are partitioned by length into buckets delimited by the boundary list:
// bucket i holds items with boundaries[i] < length <= boundaries[i+1]. Items
// outside the boundary range are excluded from sampling entirely. Each bucket
// is padded (by repeating items) up to a multiple of numReplicas*batchSize so
// every replica receives exactly the same number of batches per epoch; an
// uneven count would hang synchronized distributed training.
//
// The per-epoch order is a deterministic function of (seed, epoch): every
// replica computes the same permutations locally, without communication, and
// re-running an epoch reproduces the same batch sequence.
type DistributedBucketSampler struct {
	lengths     []int
	batchSize   int
	numReplicas int
	rank        int
	shuffle     bool
	seed        int64

	boundaries          []int
	buckets             [][]int
	numSamplesPerBucket []int
	totalSize           int
	numSamples          int

	epoch   int
	batches [][]int
}

// NewDistributedBucketSampler builds a sampler over the given item lengths.
// lengths[i] is the length of dataset item i; items keep their index identity
// throughout, so batches are lists of indices into the originating dataset.
//
// Configuration errors (non-increasing boundaries, non-positive batch size,
// rank out of range) are reported here rather than at first iteration.
// If every bucket turns out empty the returned error wraps ErrNoBuckets.
func NewDistributedBucketSampler(lengths []int, cfg Config) (*DistributedBucketSampler, error) {
	if cfg.BatchSize <= 0 {
		return nil, fmt.Errorf("batch size must be positive, got %d", cfg.BatchSize)
	}
	if cfg.NumReplicas <= 0 {
		return nil, fmt.Errorf("num replicas must be positive, got %d", cfg.NumReplicas)
	}
	if cfg.Rank < 0 || cfg.Rank >= cfg.NumReplicas {
		return nil, fmt.Errorf("rank %d out of range [0, %d)", cfg.Rank, cfg.NumReplicas)
	}
	if len(cfg.Boundaries) < 2 {
		return nil, fmt.Errorf("need at least 2 boundaries, got %d", len(cfg.Boundaries))
	}
	for i := 1; i < len(cfg.Boundaries); i++ {
		if cfg.Boundaries[i] <= cfg.Boundaries[i-1] {
			return nil, fmt.Errorf("boundaries must be strictly increasing: boundaries[%d]=%d <= boundaries[%d]=%d",
				i, cfg.Boundaries[i], i-1, cfg.Boundaries[i-1])
		}
	}

	s := &DistributedBucketSampler{
		lengths:     lengths,
		batchSize:   cfg.BatchSize,
		numReplicas: cfg.NumReplicas,
		rank:        cfg.Rank,
		shuffle:     cfg.Shuffle,
		seed:        cfg.Seed,
	}

	s.buckets, s.boundaries = PartitionByLength(lengths, cfg.Boundaries)
	if len(s.buckets) == 0 {
		return nil, fmt.Errorf("boundaries %v: %w", cfg.Boundaries, ErrNoBuckets)
	}

	divisor := s.numReplicas * s.batchSize
	s.numSamplesPerBucket = make([]int, len(s.buckets))
	for i, bucket := range s.buckets {
		s.numSamplesPerBucket[i] = PadToMultiple(len(bucket), divisor)
		s.totalSize += s.numSamplesPerBucket[i]
	}
	s.numSamples = s.totalSize / s.numReplicas

	klog.V(1).Infof("bucket sampler: %d items in %d buckets, %d samples per replica (%d padding)",
		len(lengths), len(s.buckets), s.numSamples, s.totalSize-bucketItemCount(s.buckets))
	return s, nil
}

func bucketItemCount(buckets [][]int) int {
	n := 0
	for _, b := range buckets {
		n += len(b)
	}
	return n
}

// PartitionByLength assigns each item to the bucket whose half-open length
// range (boundaries[i], boundaries[i+1]] contains it. Items at or below the
// lowest boundary, or above the highest, are dropped. Empty buckets are
// removed and the boundary list compacted so that
// len(boundaries) == len(buckets)+1 holds on return.
//
// Assignment is computed in full before any compaction, and compaction walks
// the bucket list backwards, so neither pass mutates what the other reads.
func PartitionByLength(lengths, boundaries []int) (buckets [][]int, compacted []int) {
	buckets = make([][]int, len(boundaries)-1)
	for i, length := range lengths {
		if b := bisectBucket(length, boundaries); b >= 0 {
			buckets[b] = append(buckets[b], i)
		}
	}

	compacted = append([]int(nil), boundaries...)
	for i := len(buckets) - 1; i >= 0; i-- {
		if len(buckets[i]) == 0 {
			buckets = append(buckets[:i], buckets[i+1:]...)
			compacted = append(compacted[:i+1], compacted[i+2:]...)
		}
	}
	if len(buckets) == 0 {
		return nil, nil
	}
	return buckets, compacted
}

// bisectBucket binary-searches boundaries for the bucket index i with
// boundaries[i] < length <= boundaries[i+1], or -1 if length is out of range.
// A length equal to a boundary value lands in the lower bucket.
func bisectBucket(length int, boundaries []int) int {
	lo, hi := 0, len(boundaries)-1
	if length <= boundaries[lo] || length > boundaries[hi] {
		return -1
	}
	for hi-lo > 1 {
		mid := (lo + hi) / 2
		if length <= boundaries[mid] {
			hi = mid
		} else {
			lo = mid
		}
	}
	return lo
}

// PadToMultiple rounds n up to the next multiple of divisor. n is returned
// unchanged when it is already a multiple.
func PadToMultiple(n, divisor int) int {
	return n + (divisor-n%divisor)%divisor
}

// epochRand returns the permutation source for the given epoch. Every replica
// derives the identical source from (seed, epoch), which is what lets ranks
// agree on the item split without communicating.
func epochRand(seed int64, epoch int) *rand.Rand {
	return rand.New(rand.NewSource(seed + int64(epoch)))
}

// SetEpoch selects the epoch whose deterministic shuffle the next Batches
// call uses. It invalidates any batch list cached for the previous epoch.
func (s *DistributedBucketSampler) SetEpoch(epoch int) {
	if epoch != s.epoch {
		s.epoch = epoch
		s.batches = nil
	}
}

// Epoch returns the current epoch.
func (s *DistributedBucketSampler) Epoch() int { return s.epoch }

// Len returns the number of batches produced per epoch on this rank.
func (s *DistributedBucketSampler) Len() int { return s.numSamples / s.batchSize }

// TotalSize returns the padded item count summed over all buckets.
func (s *DistributedBucketSampler) TotalSize() int { return s.totalSize }

// Boundaries returns the compacted boundary list. Callers must not modify it.
func (s *DistributedBucketSampler) Boundaries() []int { return s.boundaries }

// BucketSizes returns the unpadded item count of each retained bucket.
func (s *DistributedBucketSampler) BucketSizes() []int {
	sizes := make([]int, len(s.buckets))
	for i, b := range s.buckets {
		sizes[i] = len(b)
	}
	return sizes
}

// Batches returns this rank's batch sequence for the current epoch, each
// batch being exactly batchSize item indices drawn from a single bucket.
// The sequence is computed once per epoch and cached until SetEpoch.
//
// It returns an error if the produced batch count does not cover the
// per-rank quota exactly; that indicates a boundary/length configuration
// under which the sampler cannot guarantee an even split across replicas,
// and iterating anyway would desynchronize distributed training.
func (s *DistributedBucketSampler) Batches() ([][]int, error) {
	if s.batches != nil {
		return s.batches, nil
	}

	g := epochRand(s.seed, s.epoch)

	// Intra-bucket order first, then batch order, always drawn from the same
	// generator in the same sequence so all ranks see identical permutations.
	perms := make([][]int, len(s.buckets))
	for i, bucket := range s.buckets {
		if s.shuffle {
			perms[i] = g.Perm(len(bucket))
		} else {
			perms[i] = identityPerm(len(bucket))
		}
	}

	var batches [][]int
	for i, bucket := range s.buckets {
		ids := extendToTarget(perms[i], s.numSamplesPerBucket[i])

		// Strided subsample: rank r takes slots r, r+R, r+2R, ... so each
		// rank samples the whole shuffled bucket rather than one clump.
		rankIDs := make([]int, 0, len(ids)/s.numReplicas)
		for j := s.rank; j < len(ids); j += s.numReplicas {
			rankIDs = append(rankIDs, ids[j])
		}

		for j := 0; j+s.batchSize <= len(rankIDs); j += s.batchSize {
			batch := make([]int, s.batchSize)
			for k := range batch {
				batch[k] = bucket[rankIDs[j+k]]
			}
			batches = append(batches, batch)
		}
	}

	if s.shuffle {
		order := g.Perm(len(batches))
		shuffled := make([][]int, len(batches))
		for i, j := range order {
			shuffled[i] = batches[j]
		}
		batches = shuffled
	}

	if len(batches)*s.batchSize != s.numSamples {
		return nil, fmt.Errorf("epoch %d: produced %d batches of %d but per-replica quota is %d samples; uneven split across %d replicas",
			s.epoch, len(batches), s.batchSize, s.numSamples, s.numReplicas)
	}
	s.batches = batches
	return s.batches, nil
}

// extendToTarget repeats the permuted index list to exactly target entries:
// whole copies first, then a prefix. Only indices already in perm ever appear.
func extendToTarget(perm []int, target int) []int {
	ids := make([]int, 0, target)
	ids = append(ids, perm...)
	rem := target - len(perm)
	for range rem / len(perm) {
		ids = append(ids, perm...)
	}
	return append(ids, perm[:rem%len(perm)]...)
}

func identityPerm(n int) []int {
	p := make([]int, n)
	for i := range p {
		p[i] = i
	}
	return p
}
