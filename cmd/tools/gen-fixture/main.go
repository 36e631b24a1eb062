// Command gen-fixture generates sample keypoint JSONL recordings for
// testing replay.
package main

import (
	"bufio"
	"encoding/json"
	"errors"
	"flag"
	"io"
	"log"
	"os"

	"github.com/banshee-data/rep.coach/internal/detector"
)

func main() {
	output := flag.String("o", "squats.jsonl", "output path")
	reps := flag.Int("reps", 5, "number of synthetic reps")
	flag.Parse()

	f, err := os.Create(*output)
	if err != nil {
		log.Fatalf("failed to create output: %v", err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	defer w.Flush()

	src := detector.NewSyntheticSource(*reps)
	enc := json.NewEncoder(w)
	frames := 0
	for {
		frame, err := src.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			log.Fatalf("generator error: %v", err)
		}
		if err := enc.Encode(frame); err != nil {
			log.Fatalf("failed to write frame: %v", err)
		}
		frames++
	}
	log.Printf("✓ Created: %s (%d frames, %d reps)", *output, frames, *reps)
}
