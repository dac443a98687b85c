package datasets

import "io"

// batchCursor walks a sampler's cached batch sequence for the current epoch.
type batchCursor struct {
	sampler *DistributedBucketSampler
	pos     int
}

// next returns the next batch of item indices, or io.EOF when the epoch's
// sequence is exhausted.
func (c *batchCursor) next() ([]int, error) {
	batches, err := c.sampler.Batches()
	if err != nil {
		return nil, err
	}
	if c.pos >= len(batches) {
		return nil, io.EOF
	}
	b := batches[c.pos]
	c.pos++
	return b, nil
}

func (c *batchCursor) reset() { c.pos = 0 }
