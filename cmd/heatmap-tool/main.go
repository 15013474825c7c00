// heatmap-tool runs single pipeline steps against local files.
//
//	heatmap-tool clean -in ride.csv -out ride_fixed.csv [-mode private|public]
//	heatmap-tool label -in ride.csv
//	heatmap-tool strip -in ride.gpx
//	heatmap-tool seal  -in heatmap_v03.gpx
//	heatmap-tool gpx   -in ride.fit -out ride.gpx [-name ride]
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/fitglue/heatmap/pkg/domain/fitcsv"
	"github.com/fitglue/heatmap/pkg/domain/gpx"
)

var errUsage = errors.New("usage: heatmap-tool <clean|label|strip|seal|gpx> [flags]")

func main() {
	if err := run(context.Background(), os.Args[1:], os.Stdout); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(2)
		}
		log.Fatal(err)
	}
}

func run(ctx context.Context, args []string, stdout io.Writer) error {
	if len(args) == 0 {
		return errUsage
	}
	cmd, args := args[0], args[1:]
	switch cmd {
	case "clean":
		return runClean(ctx, args, stdout)
	case "label":
		return runLabel(args, stdout)
	case "strip":
		return runStrip(args, stdout)
	case "seal":
		return runSeal(args, stdout)
	case "gpx":
		return runGPX(args, stdout)
	}
	return fmt.Errorf("unknown command %q\n%w", cmd, errUsage)
}

func runClean(ctx context.Context, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("clean", flag.ContinueOnError)
	in := fs.String("in", "", "Decoded activity CSV")
	out := fs.String("out", "", "Cleaned CSV output path")
	mode := fs.String("mode", string(fitcsv.ModePrivate), "private (always write) or public (write only when fixed)")
	workdir := fs.String("workdir", "", "Directory both files must live in (default: directory of -out)")
	verbose := fs.Bool("v", false, "Log progress")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *in == "" || *out == "" {
		return errors.New("clean: -in and -out are required")
	}

	m, err := fitcsv.ParseMode(*mode)
	if err != nil {
		return err
	}
	inPath, err := filepath.Abs(*in)
	if err != nil {
		return err
	}
	outPath, err := filepath.Abs(*out)
	if err != nil {
		return err
	}
	dir := *workdir
	if dir == "" {
		dir = filepath.Dir(outPath)
	}

	level := slog.LevelWarn
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	res, err := fitcsv.Run(ctx, inPath, outPath, m, fitcsv.WithScratchDir(dir), fitcsv.WithLogger(logger))
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "bike=%s latitude_fixes=%d serial_fixes=%d written=%t\n",
		res.Model, res.LatitudeFixes, res.SerialFixes, res.Persisted)
	return nil
}

func runLabel(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("label", flag.ContinueOnError)
	in := fs.String("in", "", "Decoded activity CSV")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *in == "" {
		return errors.New("label: -in is required")
	}

	f, err := os.Open(*in)
	if err != nil {
		return err
	}
	defer f.Close()

	model, err := fitcsv.LabelBike(f)
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "bike=%s gear=%s\n", model, model.GearID())
	return nil
}

func runStrip(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("strip", flag.ContinueOnError)
	in := fs.String("in", "", "GPX file to turn into a heatmap fragment, in place")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *in == "" {
		return errors.New("strip: -in is required")
	}

	ts, ok, err := gpx.FirstTime(*in)
	if err != nil {
		return err
	}
	stripped, err := gpx.StripEnvelope(*in)
	if err != nil {
		return err
	}
	if !ok {
		ts = "none"
	}
	fmt.Fprintf(stdout, "stripped=%t first_time=%s\n", stripped, ts)
	return nil
}

func runSeal(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("seal", flag.ContinueOnError)
	in := fs.String("in", "", "Heatmap GPX file to close")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *in == "" {
		return errors.New("seal: -in is required")
	}

	appended, err := gpx.EnsureClosed(*in)
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "appended_close_tag=%t\n", appended)
	return nil
}

func runGPX(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("gpx", flag.ContinueOnError)
	in := fs.String("in", "", "FIT file")
	out := fs.String("out", "", "GPX output path (default: input with .gpx extension)")
	name := fs.String("name", "", "Track name (default: input base name)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *in == "" {
		return errors.New("gpx: -in is required")
	}

	base := strings.TrimSuffix(filepath.Base(*in), filepath.Ext(*in))
	if *out == "" {
		*out = filepath.Join(filepath.Dir(*in), base+".gpx")
	}
	if *name == "" {
		*name = base
	}

	track, err := gpx.FileConverter{}.Convert(*in, *out, *name)
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "points=%d start=%s out=%s\n", len(track.Points), track.StartTime.Format("2006-01-02T15:04:05Z"), *out)
	return nil
}
