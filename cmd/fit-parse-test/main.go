package main

import (
	"fmt"
	"os"
	"time"

	"github.com/fitglue/heatmap/pkg/domain/fit_parser"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: fit-parse-test <fit-file>")
		os.Exit(1)
	}

	data, err := os.ReadFile(os.Args[1])
	if err != nil {
		fmt.Printf("Failed to read file: %v\n", err)
		os.Exit(1)
	}

	track, err := fit_parser.ParseFitFile(data)
	if err != nil {
		fmt.Printf("Failed to parse FIT file: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Track: %s\n", track.Name)
	fmt.Printf("Sport: %s\n", track.Sport)
	fmt.Printf("Start: %s\n", track.StartTime.Format(time.RFC3339))
	fmt.Printf("Points: %d\n", len(track.Points))

	if n := len(track.Points); n > 0 {
		first, last := track.Points[0], track.Points[n-1]
		fmt.Printf("First: %.6f, %.6f at %s\n", first.Latitude, first.Longitude, first.Time.Format(time.RFC3339))
		fmt.Printf("Last:  %.6f, %.6f at %s\n", last.Latitude, last.Longitude, last.Time.Format(time.RFC3339))
		fmt.Printf("Duration: %s\n", last.Time.Sub(first.Time))
	}
}
