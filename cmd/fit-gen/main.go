package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/fitglue/heatmap/pkg/domain/file_generators"
	"github.com/fitglue/heatmap/pkg/types"
)

func main() {
	inputFile := flag.String("input", "", "Path to input JSON file (Track)")
	outputFile := flag.String("output", "output.fit", "Path to output FIT file")
	flag.Parse()

	if *inputFile == "" {
		flag.Usage()
		os.Exit(1)
	}

	// 1. Read JSON
	data, err := os.ReadFile(*inputFile)
	if err != nil {
		log.Fatalf("Failed to read input file: %v", err)
	}

	// 2. Unmarshal to Track
	var track types.Track
	if err := json.Unmarshal(data, &track); err != nil {
		log.Fatalf("Failed to parse JSON: %v", err)
	}
	fmt.Printf("Read %d track points\n", len(track.Points))

	// 3. Generate FIT
	fitData, err := file_generators.GenerateFitFile(&track)
	if err != nil {
		log.Fatalf("Failed to generate FIT file: %v", err)
	}

	// 4. Write Output
	if err := os.WriteFile(*outputFile, fitData, 0644); err != nil {
		log.Fatalf("Failed to write output file: %v", err)
	}

	fmt.Printf("Successfully wrote FIT file to %s (%d bytes)\n", *outputFile, len(fitData))
}
