// bucketstats inspects a feature manifest through the bucket sampler: it
// reports per-bucket occupancy and padding waste, verifies that every
// replica receives the same batch count, and optionally renders a length
// histogram and bucket occupancy chart.
//
// Usage:
//
//	bucketstats -manifest train.txt -boundaries 32,300,400,500,600 \
//	    -batch-size 16 -replicas 4 -max-length 600 -plot stats
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/Noofbiz/melfeed/datasets"
)

func main() {
	manifest := flag.String("manifest", "", "manifest file of <path>|<length> records (required)")
	boundariesArg := flag.String("boundaries", "32,300,400,500,600", "comma-separated bucket boundaries")
	batchSize := flag.Int("batch-size", 16, "batch size")
	replicas := flag.Int("replicas", 1, "number of training replicas")
	maxLength := flag.Int("max-length", 600, "length clamp in frames")
	seed := flag.Int64("seed", 1234, "shuffle seed")
	epoch := flag.Int("epoch", 0, "epoch whose deterministic order to inspect")
	noShuffle := flag.Bool("no-shuffle", false, "disable the per-epoch shuffle")
	plotPrefix := flag.String("plot", "", "write <prefix>_hist.png and <prefix>_buckets.png")

	flag.Parse()
	if *manifest == "" {
		fmt.Fprintln(os.Stderr, "error: -manifest is required")
		flag.Usage()
		os.Exit(1)
	}

	boundaries, err := datasets.ParseBoundaries(*boundariesArg)
	if err != nil {
		log.Fatalf("bad -boundaries: %v", err)
	}

	cfg := datasets.Config{
		MaxLength:   *maxLength,
		BatchSize:   *batchSize,
		Boundaries:  boundaries,
		NumReplicas: *replicas,
		Shuffle:     !*noShuffle,
		Seed:        *seed,
	}

	index, err := datasets.LoadManifest(*manifest, cfg)
	if err != nil {
		log.Fatalf("failed to load manifest: %v", err)
	}
	lengths := index.Lengths()

	sampler, err := datasets.NewDistributedBucketSampler(lengths, cfg)
	if err != nil {
		log.Fatalf("failed to build sampler: %v", err)
	}
	sampler.SetEpoch(*epoch)

	printSummary(lengths)
	printBuckets(sampler, *replicas, *batchSize)

	if err := checkRanks(lengths, cfg, *epoch, sampler.Len()); err != nil {
		log.Fatalf("rank check failed: %v", err)
	}
	fmt.Printf("\nall %d ranks produce %d batches of %d for epoch %d\n",
		*replicas, sampler.Len(), *batchSize, *epoch)

	if *plotPrefix != "" {
		if err := writePlots(*plotPrefix, lengths, sampler); err != nil {
			log.Fatalf("failed to write plots: %v", err)
		}
	}
}

func printSummary(lengths []int) {
	vals := make([]float64, len(lengths))
	for i, l := range lengths {
		vals[i] = float64(l)
	}
	mean, std := stat.MeanStdDev(vals, nil)
	fmt.Printf("items: %d, mean length %.1f frames (stddev %.1f)\n", len(lengths), mean, std)
}

func printBuckets(s *datasets.DistributedBucketSampler, replicas, batchSize int) {
	boundaries := s.Boundaries()
	sizes := s.BucketSizes()
	divisor := replicas * batchSize

	fmt.Printf("\n%-16s %8s %8s %8s\n", "bucket", "items", "target", "waste")
	for i, n := range sizes {
		target := datasets.PadToMultiple(n, divisor)
		fmt.Printf("(%5d, %5d] %9d %8d %8d\n", boundaries[i], boundaries[i+1], n, target, target-n)
	}
	fmt.Printf("total padded size %d, %d samples per replica\n", s.TotalSize(), s.TotalSize()/replicas)
}

// checkRanks rebuilds the sampler for every rank and verifies each produces
// exactly want batches at the given epoch.
func checkRanks(lengths []int, cfg datasets.Config, epoch, want int) error {
	for rank := 0; rank < cfg.NumReplicas; rank++ {
		cfg.Rank = rank
		s, err := datasets.NewDistributedBucketSampler(lengths, cfg)
		if err != nil {
			return err
		}
		s.SetEpoch(epoch)
		batches, err := s.Batches()
		if err != nil {
			return fmt.Errorf("rank %d: %w", rank, err)
		}
		if len(batches) != want {
			return fmt.Errorf("rank %d produced %d batches, rank 0 produced %d", rank, len(batches), want)
		}
	}
	return nil
}

func writePlots(prefix string, lengths []int, s *datasets.DistributedBucketSampler) error {
	vals := make(plotter.Values, len(lengths))
	for i, l := range lengths {
		vals[i] = float64(l)
	}

	p := plot.New()
	p.Title.Text = "Item length distribution"
	p.X.Label.Text = "frames"
	hist, err := plotter.NewHist(vals, 40)
	if err != nil {
		return err
	}
	p.Add(hist)
	if err := p.Save(6*vg.Inch, 4*vg.Inch, prefix+"_hist.png"); err != nil {
		return err
	}

	sizes := s.BucketSizes()
	occ := make(plotter.Values, len(sizes))
	labels := make([]string, len(sizes))
	for i, n := range sizes {
		occ[i] = float64(n)
		labels[i] = fmt.Sprintf("(%d,%d]", s.Boundaries()[i], s.Boundaries()[i+1])
	}
	pb := plot.New()
	pb.Title.Text = "Bucket occupancy"
	pb.Y.Label.Text = "items"
	bars, err := plotter.NewBarChart(occ, vg.Points(24))
	if err != nil {
		return err
	}
	pb.Add(bars)
	pb.NominalX(labels...)
	return pb.Save(6*vg.Inch, 4*vg.Inch, prefix+"_buckets.png")
}
