// Command test_determinism extracts the same file several times with the
// feature cache disabled and reports whether every run agrees.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math"
	"os"

	"samplemind/engine"
	"samplemind/features"
	"samplemind/similarity"
)

func main() {
	runs := flag.Int("n", 5, "number of extractions")
	depthName := flag.String("depth", "professional", "analysis depth")
	flag.Parse()
	if flag.NArg() != 1 {
		log.Fatal("usage: test_determinism [-n 5] [-depth professional] <audio-file>")
	}
	path := flag.Arg(0)

	depth, err := features.ParseDepth(*depthName)
	if err != nil {
		log.Fatal(err)
	}
	e, err := engine.New(engine.DefaultOptions())
	if err != nil {
		log.Fatal(err)
	}

	ctx := context.Background()
	digests := make([]string, *runs)
	vectors := make([][]float64, *runs)
	var first *features.Record
	for i := range *runs {
		rec, err := e.Analyze(ctx, path, depth, false)
		if err != nil {
			log.Fatalf("run %d failed: %v", i+1, err)
		}
		if first == nil {
			first = rec
		}
		if digests[i], err = rec.Digest(); err != nil {
			log.Fatalf("run %d: %v", i+1, err)
		}
		if vectors[i], err = similarity.Descriptor(rec); err != nil {
			log.Fatalf("run %d: %v", i+1, err)
		}
		log.Printf("run %d: digest %s", i+1, digests[i][:16])
	}

	fmt.Println("\n=== Determinism Check ===")
	identical := true
	maxDiff := 0.0
	for i := 1; i < *runs; i++ {
		if digests[i] != digests[0] {
			identical = false
			fmt.Printf("run %d digest differs from run 1\n", i+1)
		}
		for j := range vectors[0] {
			maxDiff = math.Max(maxDiff, math.Abs(vectors[0][j]-vectors[i][j]))
		}
	}
	fmt.Printf("max descriptor difference: %e\n", maxDiff)

	sim, err := similarity.Compare(first, first)
	if err == nil {
		fmt.Printf("self similarity: %.6f\n", sim.Overall)
	}

	if !identical {
		fmt.Println("feature extraction is NOT deterministic")
		os.Exit(1)
	}
	fmt.Println("all runs produced identical records")
}
