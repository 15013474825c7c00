package gpx

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// ErrNoPoints is returned when an activity has no positioned records to draw.
var ErrNoPoints = errors.New("activity has no GPS points")

const closingTag = "</gpx>"

var timePattern = regexp.MustCompile(`<time>(.*?)</time>`)

// Header returns the opening of a new, empty heatmap document. Fragments are
// appended after it; EnsureClosed adds the closing tag when the heatmap is exported.
func Header(creator string) string {
	if creator == "" {
		creator = DefaultCreator
	}
	return fmt.Sprintf("%s\n<gpx xmlns=%q version=\"1.1\" creator=%q>\n", xmlDecl, namespace, creator)
}

// StripEnvelope rewrites the GPX document at path in place, dropping its first two
// lines and its last line so only the track body remains. The file is streamed
// through a temporary file in the same directory and renamed over the original.
//
// A file of two lines or fewer has no body; it is left untouched and false is returned.
func StripEnvelope(path string) (bool, error) {
	n, err := countLines(path)
	if err != nil {
		return false, err
	}
	if n <= 2 {
		slog.Warn("GPX file too short to strip", "path", path, "lines", n)
		return false, nil
	}

	in, err := os.Open(path)
	if err != nil {
		return false, fmt.Errorf("open gpx: %w", err)
	}
	defer in.Close()

	tmp, err := os.CreateTemp(filepath.Dir(path), "fragment-*.tmp")
	if err != nil {
		return false, fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	fail := func(err error) (bool, error) {
		tmp.Close()
		os.Remove(tmpName)
		return false, err
	}

	br := bufio.NewReader(in)
	w := bufio.NewWriter(tmp)
	for i := 0; i < n; i++ {
		line, err := br.ReadString('\n')
		if err != nil && err != io.EOF {
			return fail(fmt.Errorf("read gpx: %w", err))
		}
		if i < 2 || i == n-1 {
			continue
		}
		if _, err := w.WriteString(line); err != nil {
			return fail(fmt.Errorf("write fragment: %w", err))
		}
	}
	if err := w.Flush(); err != nil {
		return fail(fmt.Errorf("flush fragment: %w", err))
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return false, fmt.Errorf("close fragment: %w", err)
	}
	in.Close()

	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return false, fmt.Errorf("replace gpx with fragment: %w", err)
	}
	return true, nil
}

// FirstTime returns the content of the first <time> element in the file.
func FirstTime(path string) (string, bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", false, fmt.Errorf("open gpx: %w", err)
	}
	defer f.Close()

	br := bufio.NewReader(f)
	for {
		line, err := br.ReadString('\n')
		if m := timePattern.FindStringSubmatch(line); m != nil {
			return m[1], true, nil
		}
		if err == io.EOF {
			return "", false, nil
		}
		if err != nil {
			return "", false, fmt.Errorf("read gpx: %w", err)
		}
	}
}

// EnsureClosed appends </gpx> to a heatmap document unless one of its last two
// lines already closes it. It reports whether the file was modified.
func EnsureClosed(path string) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return false, fmt.Errorf("open gpx: %w", err)
	}

	var last [2]string
	endsWithNewline := true
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 16*1024*1024)
	for sc.Scan() {
		last[0], last[1] = last[1], sc.Text()
	}
	err = sc.Err()
	if err == nil {
		endsWithNewline, err = trailingNewline(f)
	}
	f.Close()
	if err != nil {
		return false, fmt.Errorf("read gpx: %w", err)
	}

	for _, l := range last {
		if strings.Contains(l, closingTag) {
			return false, nil
		}
	}

	out, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0)
	if err != nil {
		return false, fmt.Errorf("open gpx for append: %w", err)
	}
	suffix := closingTag + "\n"
	if !endsWithNewline {
		suffix = "\n" + suffix
	}
	if _, err := out.WriteString(suffix); err != nil {
		out.Close()
		return false, fmt.Errorf("append closing tag: %w", err)
	}
	if err := out.Close(); err != nil {
		return false, err
	}
	return true, nil
}

func trailingNewline(f *os.File) (bool, error) {
	info, err := f.Stat()
	if err != nil {
		return false, err
	}
	if info.Size() == 0 {
		return true, nil
	}
	buf := make([]byte, 1)
	if _, err := f.ReadAt(buf, info.Size()-1); err != nil {
		return false, err
	}
	return buf[0] == '\n', nil
}

// countLines counts lines the way a line reader sees them: a final line without
// a terminator still counts.
func countLines(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open gpx: %w", err)
	}
	defer f.Close()

	br := bufio.NewReader(f)
	n := 0
	for {
		line, err := br.ReadString('\n')
		if len(line) > 0 {
			n++
		}
		if err == io.EOF {
			return n, nil
		}
		if err != nil {
			return 0, fmt.Errorf("read gpx: %w", err)
		}
	}
}
