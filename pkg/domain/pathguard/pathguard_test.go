package pathguard

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsSafe_TmpExamples(t *testing.T) {
	if _, err := os.Stat("/tmp"); err != nil {
		t.Skip("no /tmp on this system")
	}

	tests := []struct {
		name string
		path string
		want bool
	}{
		{name: "traversal out of tmp", path: "/tmp/../etc/passwd", want: false},
		{name: "shell metacharacters", path: "/tmp/evil;rm -rf.fit", want: false},
		{name: "name with space", path: "/tmp/ride 01.fit", want: true},
		{name: "csv extension", path: "/tmp/2023-01-15-074849-elemnt roam d8c7-176-0.csv", want: true},
		{name: "upper-case extension", path: "/tmp/RIDE.FIT", want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsSafe(tt.path, "/tmp"))
		})
	}
}

func TestIsSafe_FileNameRules(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name     string
		filename string
		want     bool
	}{
		{name: "plain fit", filename: "activity.fit", want: true},
		{name: "dashes and underscores", filename: "ride_2025-09-22.csv", want: true},
		{name: "leading dot", filename: ".hidden.fit", want: false},
		{name: "two extensions", filename: "ride.tar.fit", want: false},
		{name: "double dot", filename: "ride..fit", want: false},
		{name: "wrong extension", filename: "ride.gpx", want: false},
		{name: "no extension", filename: "ride", want: false},
		{name: "non-ascii", filename: "поїздка.fit", want: false},
		{name: "tab character", filename: "ride\t1.fit", want: false},
		{name: "quote", filename: "ride\"1.fit", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsSafe(filepath.Join(dir, tt.filename), dir))
		})
	}
}

func TestIsSafe_Location(t *testing.T) {
	dir := t.TempDir()
	other := t.TempDir()

	assert.False(t, IsSafe("ride.fit", dir), "relative paths are rejected")
	assert.False(t, IsSafe("", dir))
	assert.False(t, IsSafe(dir, dir), "the workdir itself is not a file inside it")
	assert.False(t, IsSafe(filepath.Join(other, "ride.fit"), dir))
	assert.False(t, IsSafe(filepath.Join(dir, "..", filepath.Base(other), "ride.fit"), dir))
	assert.False(t, IsSafe(filepath.Join(dir, "missing", "ride.fit"), dir), "parent must exist")
}

func TestIsSafe_SymlinkEscape(t *testing.T) {
	dir := t.TempDir()
	outside := t.TempDir()

	target := filepath.Join(outside, "secret.fit")
	require.NoError(t, os.WriteFile(target, []byte("x"), 0o600))

	link := filepath.Join(dir, "link.fit")
	if err := os.Symlink(target, link); err != nil {
		t.Skipf("symlinks unsupported: %v", err)
	}
	assert.False(t, IsSafe(link, dir))

	subLink := filepath.Join(dir, "sub")
	require.NoError(t, os.Symlink(outside, subLink))
	assert.False(t, IsSafe(filepath.Join(subLink, "secret.fit"), dir))
}

func TestValidate_WrapsSentinel(t *testing.T) {
	dir := t.TempDir()

	err := Validate(filepath.Join(dir, "bad name!.fit"), dir)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnsafePath))

	assert.NoError(t, Validate(filepath.Join(dir, "good name.fit"), dir))
}
