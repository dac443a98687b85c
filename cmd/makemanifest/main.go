// makemanifest scans a directory tree of precomputed .npy/.npz feature files
// and writes a "<path>|<length>" manifest, reading only each array's header
// for its frame count.
//
// Usage:
//
//	makemanifest -dir features/ -out train.txt -member mel -min-length 32
package main

import (
	"bufio"
	"flag"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/schollz/progressbar/v3"

	"github.com/Noofbiz/melfeed/datasets"
)

func main() {
	dir := flag.String("dir", "", "directory tree of .npy/.npz feature files (required)")
	out := flag.String("out", "", "output manifest path (required)")
	member := flag.String("member", "mel", "npz member whose frame count to record")
	minLength := flag.Int("min-length", 0, "skip items shorter than this many frames")

	flag.Parse()
	if *dir == "" || *out == "" {
		fmt.Fprintln(os.Stderr, "error: -dir and -out are required")
		flag.Usage()
		os.Exit(1)
	}

	var paths []string
	err := filepath.WalkDir(*dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if ext := filepath.Ext(path); ext == ".npy" || ext == ".npz" {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		log.Fatalf("failed to scan %s: %v", *dir, err)
	}
	if len(paths) == 0 {
		log.Fatalf("no feature files under %s", *dir)
	}

	f, err := os.Create(*out)
	if err != nil {
		log.Fatalf("failed to create %s: %v", *out, err)
	}
	w := bufio.NewWriter(f)

	bar := progressbar.Default(int64(len(paths)), "scanning features")
	written, skipped := 0, 0
	for _, path := range paths {
		frames, err := frameCount(path, *member)
		if err != nil {
			log.Fatalf("%s: %v", path, err)
		}
		_ = bar.Add(1)
		if frames < *minLength {
			skipped++
			continue
		}
		fmt.Fprintf(w, "%s|%d\n", path, frames)
		written++
	}
	_ = bar.Finish()

	if err := w.Flush(); err != nil {
		log.Fatalf("failed to write manifest: %v", err)
	}
	if err := f.Close(); err != nil {
		log.Fatalf("failed to close manifest: %v", err)
	}
	fmt.Printf("wrote %s records to %s (%s skipped below %d frames)\n",
		humanize.Comma(int64(written)), *out, humanize.Comma(int64(skipped)), *minLength)
}

// frameCount reads just the array header and returns the trailing dimension.
func frameCount(path, member string) (int, error) {
	var shape []int
	if strings.HasSuffix(path, ".npz") {
		var err error
		shape, err = datasets.NpzShape(path, member)
		if err != nil {
			return 0, err
		}
	} else {
		f, err := os.Open(path)
		if err != nil {
			return 0, err
		}
		shape, err = datasets.NpyShape(f)
		f.Close()
		if err != nil {
			return 0, err
		}
	}
	if len(shape) == 0 {
		return 0, fmt.Errorf("scalar array has no frame axis")
	}
	return shape[len(shape)-1], nil
}
