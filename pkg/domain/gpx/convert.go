// Package gpx writes activity tracks as GPX and prepares them for concatenation
// into heatmap files.
//
// Every document produced here has a fixed line layout: the XML declaration on
// line 1, the <gpx> opening tag on line 2, track content, and </gpx> alone on
// the last line. StripEnvelope relies on that layout to turn a document into a
// fragment that can be appended to another document's body.
package gpx

import (
	"bufio"
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/fitglue/heatmap/pkg/domain/fit_parser"
	"github.com/fitglue/heatmap/pkg/types"
)

const (
	// DefaultCreator is written to the creator attribute of generated documents.
	DefaultCreator = "SPipeline"

	xmlDecl   = `<?xml version="1.0" encoding="UTF-8"?>`
	namespace = "http://www.topografix.com/GPX/1/1"
)

type document struct {
	XMLName xml.Name `xml:"gpx"`
	Xmlns   string   `xml:"xmlns,attr"`
	Version string   `xml:"version,attr"`
	Creator string   `xml:"creator,attr"`
	Tracks  []track  `xml:"trk"`
}

type track struct {
	Name     string    `xml:"name,omitempty"`
	Type     string    `xml:"type,omitempty"`
	Segments []segment `xml:"trkseg"`
}

type segment struct {
	Points []point `xml:"trkpt"`
}

type point struct {
	Lat       string  `xml:"lat,attr"`
	Lon       string  `xml:"lon,attr"`
	Elevation *string `xml:"ele,omitempty"`
	Time      string  `xml:"time"`
}

// Write encodes t as a single-track GPX 1.1 document. The first <time> element
// in the output belongs to the first track point.
func Write(w io.Writer, t *types.Track, creator string) error {
	if creator == "" {
		creator = DefaultCreator
	}

	seg := segment{Points: make([]point, 0, len(t.Points))}
	for _, p := range t.Points {
		pt := point{
			Lat:  formatCoord(p.Latitude),
			Lon:  formatCoord(p.Longitude),
			Time: p.Time.UTC().Format(time.RFC3339),
		}
		if p.Altitude != nil {
			ele := strconv.FormatFloat(*p.Altitude, 'f', 1, 64)
			pt.Elevation = &ele
		}
		seg.Points = append(seg.Points, pt)
	}

	doc := document{
		Xmlns:   namespace,
		Version: "1.1",
		Creator: creator,
		Tracks: []track{{
			Name:     t.Name,
			Type:     t.Sport,
			Segments: []segment{seg},
		}},
	}

	body, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal gpx: %w", err)
	}

	if _, err := io.WriteString(w, xmlDecl+"\n"); err != nil {
		return err
	}
	if _, err := w.Write(body); err != nil {
		return err
	}
	_, err = io.WriteString(w, "\n")
	return err
}

// ConvertFIT decodes the FIT activity in r and writes it to w as GPX.
// name overrides the track name when set.
func ConvertFIT(r io.Reader, w io.Writer, name string) (*types.Track, error) {
	t, err := fit_parser.ParseFitReader(r)
	if err != nil {
		return nil, fmt.Errorf("convert fit to gpx: %w", err)
	}
	if len(t.Points) == 0 {
		return t, fmt.Errorf("convert fit to gpx: %w", ErrNoPoints)
	}
	if name != "" {
		t.Name = name
	}
	if err := Write(w, t, DefaultCreator); err != nil {
		return t, err
	}
	return t, nil
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', 7, 64)
}

// FileConverter converts FIT files on disk into GPX files.
type FileConverter struct{}

// Convert writes the GPX rendition of the FIT file at fitPath to gpxPath.
// gpxPath is removed again when the conversion fails.
func (FileConverter) Convert(fitPath, gpxPath, name string) (*types.Track, error) {
	in, err := os.Open(fitPath)
	if err != nil {
		return nil, fmt.Errorf("open fit file: %w", err)
	}
	defer in.Close()

	out, err := os.Create(gpxPath)
	if err != nil {
		return nil, fmt.Errorf("create gpx file: %w", err)
	}
	bw := bufio.NewWriter(out)
	t, err := ConvertFIT(bufio.NewReader(in), bw, name)
	if err == nil {
		err = bw.Flush()
	}
	if closeErr := out.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(gpxPath)
		return t, err
	}
	return t, nil
}
