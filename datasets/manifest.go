package datasets

import (
	"bufio"
	"fmt"
	"math/rand"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	"k8s.io/klog/v2"
)

// LengthIndex is the immutable (path, length) table a sampler is built from.
// It is loaded once from a manifest file of newline-delimited
// "<feature_path>|<length>" records; lengths are clamped to MaxLength so the
// sampler buckets by the length the item will actually have after the
// fetch-time crop.
type LengthIndex struct {
	paths   []string
	lengths []int
}

// LoadManifest reads a manifest file into a LengthIndex. The record order is
// shuffled once with the configured seed, so every process loading the same
// manifest with the same seed agrees on item indices. Malformed records are
// reported with their line number; a partially readable manifest is never
// returned.
func LoadManifest(path string, cfg Config) (*LengthIndex, error) {
	cfg = cfg.Defaults()
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open manifest: %w", err)
	}
	defer f.Close()

	idx := &LengthIndex{}
	scanner := bufio.NewScanner(f)
	lineNo := 0
	var bytes uint64
	for scanner.Scan() {
		lineNo++
		line := strings.TrimRight(scanner.Text(), "\r\n")
		if line == "" {
			continue
		}
		featurePath, length, err := parseManifestLine(line)
		if err != nil {
			return nil, fmt.Errorf("%s:%d: %w", path, lineNo, err)
		}
		if cfg.MaxLength > 0 && length > cfg.MaxLength {
			length = cfg.MaxLength
		}
		idx.paths = append(idx.paths, featurePath)
		idx.lengths = append(idx.lengths, length)
		bytes += uint64(len(line))
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}

	// Fixed-seed shuffle of the load order. Bucketing works on the shuffled
	// order, so buckets mix items from across the manifest instead of
	// reflecting however it happened to be written.
	r := rand.New(rand.NewSource(cfg.Seed))
	r.Shuffle(len(idx.paths), func(i, j int) {
		idx.paths[i], idx.paths[j] = idx.paths[j], idx.paths[i]
		idx.lengths[i], idx.lengths[j] = idx.lengths[j], idx.lengths[i]
	})

	klog.Infof("loaded manifest %s: %s items (%s)", path,
		humanize.Comma(int64(len(idx.paths))), humanize.Bytes(bytes))
	return idx, nil
}

func parseManifestLine(line string) (string, int, error) {
	sep := strings.LastIndexByte(line, '|')
	if sep < 0 {
		return "", 0, fmt.Errorf("manifest record has no '|' separator: %q", line)
	}
	featurePath := line[:sep]
	if featurePath == "" {
		return "", 0, fmt.Errorf("manifest record has empty path: %q", line)
	}
	length, err := parseInt(line[sep+1:])
	if err != nil {
		return "", 0, fmt.Errorf("manifest record has bad length: %w", err)
	}
	if length <= 0 {
		return "", 0, fmt.Errorf("manifest record has non-positive length %d", length)
	}
	return featurePath, length, nil
}

// Len returns the number of indexed items.
func (idx *LengthIndex) Len() int { return len(idx.paths) }

// Path returns the feature path of item i.
func (idx *LengthIndex) Path(i int) string { return idx.paths[i] }

// Length returns the clamped length of item i.
func (idx *LengthIndex) Length(i int) int { return idx.lengths[i] }

// Lengths returns the full clamped length table, in item-index order. The
// slice is the index's own storage; callers must not modify it.
func (idx *LengthIndex) Lengths() []int { return idx.lengths }
