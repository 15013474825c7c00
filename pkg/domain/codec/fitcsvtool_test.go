package codec

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fitglue/heatmap/pkg/domain/file_generators"
	"github.com/fitglue/heatmap/pkg/domain/pathguard"
	"github.com/fitglue/heatmap/pkg/types"
)

type call struct {
	name string
	args []string
}

func fakeRunner(calls *[]call, writeOutput bool, runErr error) CommandRunner {
	return func(ctx context.Context, name string, args ...string) ([]byte, error) {
		*calls = append(*calls, call{name: name, args: args})
		if runErr != nil {
			return []byte("Exception in thread main"), runErr
		}
		if writeOutput {
			out := args[len(args)-1]
			if err := os.WriteFile(out, []byte("converted"), 0o600); err != nil {
				return nil, err
			}
		}
		return nil, nil
	}
}

func setup(t *testing.T) (dir, jar, fitPath string) {
	t.Helper()
	dir = t.TempDir()
	jar = filepath.Join(t.TempDir(), "FitCSVTool.jar")
	require.NoError(t, os.WriteFile(jar, []byte("jar"), 0o600))

	start := time.Date(2025, 9, 22, 7, 0, 0, 0, time.UTC)
	data, err := file_generators.GenerateFitFile(&types.Track{
		Points: []types.TrackPoint{{Time: start, Latitude: 48.6, Longitude: 22.3}},
	})
	require.NoError(t, err)
	fitPath = filepath.Join(dir, "ride.fit")
	require.NoError(t, os.WriteFile(fitPath, data, 0o600))
	return dir, jar, fitPath
}

func TestDecode(t *testing.T) {
	dir, jar, fitPath := setup(t)
	var calls []call
	tool := NewFitCSVTool("", jar, dir, WithRunner(fakeRunner(&calls, true, nil)))

	csvPath := filepath.Join(dir, "ride.csv")
	require.NoError(t, tool.Decode(context.Background(), fitPath, csvPath))

	require.Len(t, calls, 1)
	assert.Equal(t, "java", calls[0].name)
	assert.Equal(t, []string{"-jar", jar, "-b", fitPath, csvPath}, calls[0].args)
	assert.FileExists(t, csvPath)
}

func TestDecode_RejectsNonFitInput(t *testing.T) {
	dir, jar, _ := setup(t)
	bogus := filepath.Join(dir, "bogus.fit")
	require.NoError(t, os.WriteFile(bogus, []byte("this is not a fit file at all"), 0o600))

	var calls []call
	tool := NewFitCSVTool("java", jar, dir, WithRunner(fakeRunner(&calls, true, nil)))

	err := tool.Decode(context.Background(), bogus, filepath.Join(dir, "bogus.csv"))
	assert.Error(t, err)
	assert.Empty(t, calls)
}

func TestEncode(t *testing.T) {
	dir, jar, _ := setup(t)
	csvPath := filepath.Join(dir, "ride_fixed.csv")
	require.NoError(t, os.WriteFile(csvPath, []byte("Type,Local Number\n"), 0o600))

	var calls []call
	tool := NewFitCSVTool("/usr/bin/java", jar, dir, WithRunner(fakeRunner(&calls, true, nil)))

	fitOut := filepath.Join(dir, "ride_cleaned.fit")
	require.NoError(t, tool.Encode(context.Background(), csvPath, fitOut))
	require.Len(t, calls, 1)
	assert.Equal(t, "/usr/bin/java", calls[0].name)
	assert.Equal(t, []string{"-jar", jar, "-c", csvPath, fitOut}, calls[0].args)
}

func TestExec_ToolFailure(t *testing.T) {
	dir, jar, fitPath := setup(t)
	var calls []call
	tool := NewFitCSVTool("java", jar, dir, WithRunner(fakeRunner(&calls, false, errors.New("exit status 1"))))

	err := tool.Decode(context.Background(), fitPath, filepath.Join(dir, "ride.csv"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrToolFailed))
	assert.Contains(t, err.Error(), "Exception in thread main")
}

func TestExec_MissingOutput(t *testing.T) {
	dir, jar, fitPath := setup(t)
	var calls []call
	tool := NewFitCSVTool("java", jar, dir, WithRunner(fakeRunner(&calls, false, nil)))

	err := tool.Decode(context.Background(), fitPath, filepath.Join(dir, "ride.csv"))
	assert.True(t, errors.Is(err, ErrToolFailed))
}

func TestExec_MissingJar(t *testing.T) {
	dir, _, fitPath := setup(t)
	var calls []call
	tool := NewFitCSVTool("java", filepath.Join(dir, "nope.jar"), dir, WithRunner(fakeRunner(&calls, true, nil)))

	err := tool.Decode(context.Background(), fitPath, filepath.Join(dir, "ride.csv"))
	assert.Error(t, err)
	assert.Empty(t, calls)
}

func TestUnsafePaths(t *testing.T) {
	dir, jar, fitPath := setup(t)
	var calls []call
	tool := NewFitCSVTool("java", jar, dir, WithRunner(fakeRunner(&calls, true, nil)))

	err := tool.Decode(context.Background(), fitPath, filepath.Join(dir, "out;rm.csv"))
	assert.True(t, errors.Is(err, pathguard.ErrUnsafePath))

	err = tool.Encode(context.Background(), "/etc/passwd.csv", filepath.Join(dir, "x.fit"))
	assert.True(t, errors.Is(err, pathguard.ErrUnsafePath))
	assert.Empty(t, calls)
}
