// Package pathguard validates scratch-file paths before they are opened or handed
// to an external process.
package pathguard

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// ErrUnsafePath is returned by Validate for any path that fails the checks.
var ErrUnsafePath = errors.New("unsafe path")

// Go's regexp has no lookahead; the leading-dot rule is checked separately.
var filenamePattern = regexp.MustCompile(`(?i)^[\w\- .]+\.(fit|csv)$`)

// IsSafe reports whether path is an absolute path inside workdir whose file name
// is a plain .fit or .csv name: word characters, dashes, spaces and exactly one dot,
// printable ASCII only, not starting with a dot.
//
// Symlinks are resolved for workdir and for the parent directory of path. The file
// itself may not exist yet (outputs are validated before they are written).
func IsSafe(path, workdir string) bool {
	return check(path, workdir) == nil
}

// Validate is IsSafe with a reason. The returned error wraps ErrUnsafePath.
func Validate(path, workdir string) error {
	if err := check(path, workdir); err != nil {
		return fmt.Errorf("%w: %q: %s", ErrUnsafePath, path, err.Error())
	}
	return nil
}

func check(path, workdir string) error {
	if path == "" || !filepath.IsAbs(path) {
		return errors.New("not an absolute path")
	}

	root, err := resolve(workdir)
	if err != nil {
		return fmt.Errorf("workdir: %v", err)
	}

	// Clean drops ".." segments lexically; EvalSymlinks then catches links out of root.
	cleaned := filepath.Clean(path)
	dir, err := resolve(filepath.Dir(cleaned))
	if err != nil {
		return fmt.Errorf("parent directory: %v", err)
	}
	name := filepath.Base(cleaned)
	full := filepath.Join(dir, name)

	if info, err := os.Lstat(full); err == nil && info.Mode()&os.ModeSymlink != 0 {
		target, err := filepath.EvalSymlinks(full)
		if err != nil {
			return fmt.Errorf("dangling symlink: %v", err)
		}
		full = target
		name = filepath.Base(target)
	}

	rel, err := filepath.Rel(root, full)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") || filepath.IsAbs(rel) {
		return fmt.Errorf("outside %s", root)
	}

	if strings.HasPrefix(name, ".") {
		return errors.New("file name starts with a dot")
	}
	if !filenamePattern.MatchString(name) {
		return errors.New("file name does not match the allowed pattern")
	}
	if strings.Contains(name, "..") || strings.Count(name, ".") != 1 {
		return errors.New("suspicious dot pattern in file name")
	}
	for _, r := range name {
		if r < 0x20 || r > 0x7e {
			return errors.New("non-printable or non-ASCII character in file name")
		}
	}
	return nil
}

func resolve(p string) (string, error) {
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", err
	}
	return filepath.EvalSymlinks(abs)
}
