package fitcsv

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/fitglue/heatmap/pkg/domain/pathguard"
)

// ErrInputNotFound is returned by Run when the decoded input file does not exist.
var ErrInputNotFound = errors.New("cleaner input not found")

// Mode selects how Run persists its output.
type Mode string

const (
	// ModePrivate always writes the cleaned file.
	ModePrivate Mode = "private"
	// ModePublic writes the cleaned file only when something was fixed.
	ModePublic Mode = "public"
)

// ParseMode validates a mode string.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModePrivate, ModePublic:
		return Mode(s), nil
	}
	return "", fmt.Errorf("unknown pipeline mode %q", s)
}

// Result summarises a cleaning run.
type Result struct {
	Model         BikeModel
	LatitudeFixes int
	SerialFixes   int
	// Persisted is true when the output file was written.
	Persisted bool
}

// Changes is the total number of corrections; zero means the input was already clean.
func (r Result) Changes() int {
	return r.LatitudeFixes + r.SerialFixes
}

type runOptions struct {
	scratchDir string
	logger     *slog.Logger
}

// RunOption configures Run.
type RunOption func(*runOptions)

// WithScratchDir sets the directory both paths must live in. Defaults to os.TempDir().
func WithScratchDir(dir string) RunOption {
	return func(o *runOptions) { o.scratchDir = dir }
}

// WithLogger sets the logger used for progress messages.
func WithLogger(l *slog.Logger) RunOption {
	return func(o *runOptions) { o.logger = l }
}

// Run labels the bike and cleans inputPath into outputPath.
//
// The cleaned rows go to a temporary file next to outputPath which is renamed into
// place only when the mode asks for it, so outputPath is never left half-written.
// In ModePublic a clean input produces no output file at all.
func Run(ctx context.Context, inputPath, outputPath string, mode Mode, opts ...RunOption) (Result, error) {
	o := runOptions{scratchDir: os.TempDir(), logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	logger := o.logger.With("component", "cleaner")

	if _, err := ParseMode(string(mode)); err != nil {
		return Result{}, err
	}
	if err := pathguard.Validate(inputPath, o.scratchDir); err != nil {
		return Result{}, fmt.Errorf("cleaner input: %w", err)
	}
	if err := pathguard.Validate(outputPath, o.scratchDir); err != nil {
		return Result{}, fmt.Errorf("cleaner output: %w", err)
	}

	model, err := labelFile(inputPath)
	if err != nil {
		return Result{}, err
	}
	logger.Debug("Bike labeled", "model", model.Slug(), "gear_id", model.GearID())

	if err := ctx.Err(); err != nil {
		return Result{Model: model}, err
	}

	tmpName, stream, err := cleanToTemp(inputPath, filepath.Dir(outputPath))
	if err != nil {
		return Result{Model: model}, err
	}

	res := Result{
		Model:         model,
		LatitudeFixes: stream.Changes(),
		SerialFixes:   stream.SerialFixes(),
	}

	if mode == ModePublic && res.Changes() == 0 {
		logger.Info("File passed all integrity checks, output not written", "input", inputPath)
		if err := os.Remove(tmpName); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return res, fmt.Errorf("remove temp file: %w", err)
		}
		return res, nil
	}

	if err := os.Rename(tmpName, outputPath); err != nil {
		os.Remove(tmpName)
		return res, fmt.Errorf("persist cleaned file: %w", err)
	}
	res.Persisted = true

	logger.Info("Cleaned record stream written",
		"output", outputPath,
		"latitude_fixes", res.LatitudeFixes,
		"serial_fixes", res.SerialFixes,
		"mode", string(mode),
	)
	return res, nil
}

func labelFile(path string) (BikeModel, error) {
	f, err := openInput(path)
	if err != nil {
		return BikeUnknown, err
	}
	defer f.Close()
	return LabelBike(f)
}

// cleanToTemp streams the cleaned rows of inputPath into a new temp file in dir.
// On error the temp file is removed.
func cleanToTemp(inputPath, dir string) (tmpName string, stream *Stream, err error) {
	in, err := openInput(inputPath)
	if err != nil {
		return "", nil, err
	}
	defer in.Close()

	tmp, err := os.CreateTemp(dir, "cleaner-*.tmp")
	if err != nil {
		return "", nil, fmt.Errorf("create temp file: %w", err)
	}
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	w := bufio.NewWriter(tmp)
	stream = NewStream(in)
	for stream.Next() {
		if _, err = w.WriteString(stream.Line().Text); err != nil {
			return "", nil, fmt.Errorf("write temp file: %w", err)
		}
	}
	if err = stream.Err(); err != nil {
		return "", nil, err
	}
	if err = w.Flush(); err != nil {
		return "", nil, fmt.Errorf("flush temp file: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return "", nil, fmt.Errorf("close temp file: %w", err)
	}
	return tmp.Name(), stream, nil
}

func openInput(path string) (*os.File, error) {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s: %w", ErrInputNotFound, path, err)
	}
	if err != nil {
		return nil, fmt.Errorf("open cleaner input: %w", err)
	}
	return f, nil
}
