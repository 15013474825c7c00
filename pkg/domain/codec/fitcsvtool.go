// Package codec converts between binary FIT files and the CSV record stream by
// running the FIT SDK's FitCSVTool.jar.
package codec

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"

	"github.com/fitglue/heatmap/pkg/domain/fit_parser"
	"github.com/fitglue/heatmap/pkg/domain/pathguard"
)

// ErrToolFailed wraps a non-zero exit of the external tool.
var ErrToolFailed = errors.New("FitCSVTool failed")

const (
	flagDecode = "-b"
	flagEncode = "-c"
)

// CommandRunner runs name with args and returns its combined output.
type CommandRunner func(ctx context.Context, name string, args ...string) ([]byte, error)

func execRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// FitCSVTool is a FIT<->CSV codec backed by the Java FitCSVTool.
type FitCSVTool struct {
	javaBin    string
	jarPath    string
	scratchDir string
	run        CommandRunner
	logger     *slog.Logger
}

// Option configures a FitCSVTool.
type Option func(*FitCSVTool)

// WithRunner replaces process execution, mainly for tests.
func WithRunner(r CommandRunner) Option {
	return func(t *FitCSVTool) { t.run = r }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(t *FitCSVTool) { t.logger = l }
}

// NewFitCSVTool returns a codec that runs jarPath with javaBin. Every path passed
// to Decode and Encode must be a safe file inside scratchDir.
func NewFitCSVTool(javaBin, jarPath, scratchDir string, opts ...Option) *FitCSVTool {
	if javaBin == "" {
		javaBin = "java"
	}
	t := &FitCSVTool{
		javaBin:    javaBin,
		jarPath:    jarPath,
		scratchDir: scratchDir,
		run:        execRunner,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(t)
	}
	t.logger = t.logger.With("component", "fitcsvtool")
	return t
}

// Decode converts the FIT file at fitPath to a CSV record stream at csvPath.
// The input is checked to be a FIT activity before the tool is started.
func (t *FitCSVTool) Decode(ctx context.Context, fitPath, csvPath string) error {
	if err := t.checkPaths(fitPath, csvPath); err != nil {
		return err
	}

	f, err := os.Open(fitPath)
	if err != nil {
		return fmt.Errorf("open fit file: %w", err)
	}
	err = fit_parser.ValidateHeader(f)
	f.Close()
	if err != nil {
		t.logger.Error("FIT validation failed", "path", fitPath, "error", err)
		return err
	}

	return t.exec(ctx, flagDecode, fitPath, csvPath)
}

// Encode converts the CSV record stream at csvPath back into a FIT file at fitPath.
func (t *FitCSVTool) Encode(ctx context.Context, csvPath, fitPath string) error {
	if err := t.checkPaths(csvPath, fitPath); err != nil {
		return err
	}
	if _, err := os.Stat(csvPath); err != nil {
		return fmt.Errorf("csv input: %w", err)
	}
	return t.exec(ctx, flagEncode, csvPath, fitPath)
}

func (t *FitCSVTool) checkPaths(in, out string) error {
	if err := pathguard.Validate(in, t.scratchDir); err != nil {
		return fmt.Errorf("codec input: %w", err)
	}
	if err := pathguard.Validate(out, t.scratchDir); err != nil {
		return fmt.Errorf("codec output: %w", err)
	}
	return nil
}

func (t *FitCSVTool) exec(ctx context.Context, flag, in, out string) error {
	if _, err := os.Stat(t.jarPath); err != nil {
		return fmt.Errorf("FitCSVTool jar not available at %s: %w", t.jarPath, err)
	}

	args := []string{"-jar", t.jarPath, flag, in, out}
	t.logger.Debug("Running FitCSVTool", "flag", flag, "input", in, "output", out)

	output, err := t.run(ctx, t.javaBin, args...)
	if err != nil {
		return fmt.Errorf("%w: %s %s: %w: %s", ErrToolFailed, t.javaBin, strings.Join(args, " "), err, strings.TrimSpace(string(output)))
	}
	if _, err := os.Stat(out); err != nil {
		return fmt.Errorf("%w: no output written to %s", ErrToolFailed, out)
	}
	return nil
}
