package pipeline

import (
	"path"
	"path/filepath"
	"strings"

	shared "github.com/fitglue/heatmap/pkg"
)

// Activity names the local scratch files and storage objects of one run.
type Activity struct {
	BlobPath string // source object
	Filename string // base name of the source object
	BaseName string // Filename without extension

	LocalFIT      string
	LocalCSV      string
	LocalFixedCSV string
	LocalFixedFIT string
	LocalGPX      string

	FixedCSVObject string
	FixedFITObject string
	GPXObject      string
}

// NewActivity derives all paths for blobPath inside scratchDir.
func NewActivity(scratchDir, blobPath string) Activity {
	filename := path.Base(blobPath)
	base := strings.TrimSuffix(filename, path.Ext(filename))

	a := Activity{
		BlobPath:      blobPath,
		Filename:      filename,
		BaseName:      base,
		LocalFIT:      filepath.Join(scratchDir, filename),
		LocalCSV:      filepath.Join(scratchDir, base+".csv"),
		LocalFixedCSV: filepath.Join(scratchDir, base+"_fixed.csv"),
		LocalFixedFIT: filepath.Join(scratchDir, base+"_cleaned.fit"),
		LocalGPX:      filepath.Join(scratchDir, base+".gpx"),
	}
	a.FixedCSVObject = path.Join(shared.FolderCleanCSV, filepath.Base(a.LocalFixedCSV))
	a.FixedFITObject = path.Join(shared.FolderCleanFIT, filepath.Base(a.LocalFixedFIT))
	a.GPXObject = path.Join(shared.FolderGPX, filepath.Base(a.LocalGPX))
	return a
}

func (a Activity) localFiles() []string {
	return []string{a.LocalFIT, a.LocalCSV, a.LocalFixedCSV, a.LocalFixedFIT, a.LocalGPX}
}
