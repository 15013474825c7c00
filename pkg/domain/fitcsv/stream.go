// Package fitcsv cleans the CSV record stream produced by the FIT SDK's FitCSVTool.
//
// Two passes run over the same decoded file: LabelBike identifies the bike from
// sensor device numbers, and Stream rewrites "Data" rows, removing GPS fields with a
// negative latitude and normalising legacy serial numbers. Run ties both passes to
// files on disk.
package fitcsv

import (
	"bufio"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
)

const dataMarker = "Data"

var (
	latPattern    = regexp.MustCompile(`position_lat,"(-?\d+)",semicircles,position_long,"-?\d+",semicircles,`)
	serialPattern = regexp.MustCompile(`serial_number,"SN\.(\d+)"`)
)

// CleanedLine is one output row of the cleaning pass.
type CleanedLine struct {
	// Text is the row including its original line terminator, if any.
	Text string
	// Corrected is true when a negative-latitude fragment was removed from this row.
	Corrected bool
	// Changes is the running count of latitude removals so far, this row included.
	Changes int
}

// Stream is a lazy, single-pass cleaner over a record stream. It is not
// restartable: once Next returns false a new Stream over a fresh reader is needed.
//
//	s := fitcsv.NewStream(f)
//	for s.Next() {
//		w.WriteString(s.Line().Text)
//	}
//	if err := s.Err(); err != nil { ... }
type Stream struct {
	br          *bufio.Reader
	line        CleanedLine
	changes     int
	serialFixes int
	err         error
	done        bool
}

// NewStream returns a Stream reading from r.
func NewStream(r io.Reader) *Stream {
	return &Stream{br: bufio.NewReader(r)}
}

// Next advances to the next cleaned row. It returns false at end of input or on error.
func (s *Stream) Next() bool {
	if s.done {
		return false
	}
	raw, err := s.br.ReadString('\n')
	if err != nil && err != io.EOF {
		s.err = fmt.Errorf("read record stream: %w", err)
		s.done = true
		return false
	}
	if err == io.EOF {
		s.done = true
		if raw == "" {
			return false
		}
	}
	s.line = s.clean(raw)
	return true
}

// Line returns the row produced by the last call to Next.
func (s *Stream) Line() CleanedLine { return s.line }

// Err returns the first read error, if any.
func (s *Stream) Err() error { return s.err }

// Changes is the number of negative-latitude fragments removed so far.
func (s *Stream) Changes() int { return s.changes }

// SerialFixes is the number of rows whose legacy serial number was rewritten.
func (s *Stream) SerialFixes() int { return s.serialFixes }

func (s *Stream) clean(line string) CleanedLine {
	if !strings.HasPrefix(line, dataMarker) {
		return CleanedLine{Text: line, Changes: s.changes}
	}

	corrected := false
	if m := latPattern.FindStringSubmatchIndex(line); m != nil {
		lat, err := strconv.ParseInt(line[m[2]:m[3]], 10, 64)
		if err == nil && lat < 0 {
			line = line[:m[0]] + line[m[1]:]
			corrected = true
			s.changes++
		}
	}

	if serialPattern.MatchString(line) {
		line = serialPattern.ReplaceAllString(line, `serial_number,"${1}"`)
		s.serialFixes++
	}

	return CleanedLine{Text: line, Corrected: corrected, Changes: s.changes}
}
