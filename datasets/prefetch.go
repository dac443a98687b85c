package datasets

import (
	"runtime"

	"golang.org/x/sync/errgroup"
)

// fetchParallel resolves n item fetches concurrently with at most limit
// in-flight, preserving slot order. Any fetch error fails the whole batch:
// silently skipping an item would break the fixed batch-size contract and
// desynchronize replica batch counts.
func fetchParallel[T any](n, limit int, fetch func(i int) (T, error)) ([]T, error) {
	if limit <= 0 {
		limit = runtime.NumCPU()
	}
	out := make([]T, n)
	var g errgroup.Group
	g.SetLimit(limit)
	for i := range n {
		g.Go(func() error {
			v, err := fetch(i)
			if err != nil {
				return err
			}
			out[i] = v
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
