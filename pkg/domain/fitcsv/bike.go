package fitcsv

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// BikeModel identifies which bike (sensor set) recorded an activity.
// The zero value is BikeUnknown.
type BikeModel int

const (
	BikeUnknown BikeModel = iota
	BikeMTB
	BikeGravel
)

var bikeGearIDs = map[BikeModel]string{
	BikeUnknown: "b0000000",
	BikeMTB:     "b7647614",
	BikeGravel:  "b8850168",
}

var bikeSlugs = map[BikeModel]string{
	BikeUnknown: "unknown",
	BikeMTB:     "mtb",
	BikeGravel:  "gravel",
}

// GearID returns the Strava gear id for the bike. BikeUnknown maps to a stopgap id.
func (b BikeModel) GearID() string {
	if id, ok := bikeGearIDs[b]; ok {
		return id
	}
	return bikeGearIDs[BikeUnknown]
}

// Slug is the short name used for heatmap blobs and state documents.
func (b BikeModel) Slug() string {
	if s, ok := bikeSlugs[b]; ok {
		return s
	}
	return bikeSlugs[BikeUnknown]
}

// Known reports whether the bike was matched to a real model.
func (b BikeModel) Known() bool {
	return b == BikeMTB || b == BikeGravel
}

func (b BikeModel) String() string {
	return fmt.Sprintf("%s(%s)", b.Slug(), b.GearID())
}

// ParseGearID maps a gear id back to a model. Unrecognised ids give BikeUnknown.
func ParseGearID(id string) BikeModel {
	for model, gear := range bikeGearIDs {
		if gear == id {
			return model
		}
	}
	return BikeUnknown
}

type fingerprint struct {
	code  string
	model BikeModel
}

// ANT+ sensor device numbers as they appear verbatim in the decoded CSV.
var fingerprints = []fingerprint{
	{code: `ant_device_number,"4315"`, model: BikeMTB},
	{code: `ant_device_number,"33509"`, model: BikeMTB},
	{code: `ant_device_number,"2230"`, model: BikeGravel},
	{code: `ant_device_number,"9560"`, model: BikeGravel},
}

// LabelBike scans r line by line and returns the model of the first known sensor
// device number it meets. It stops reading at the first match. When no line
// matches, BikeUnknown is returned with a nil error.
//
// LabelBike must get its own reader: it consumes r and is not meant to share a
// stream with the cleaning pass.
func LabelBike(r io.Reader) (BikeModel, error) {
	br := bufio.NewReader(r)
	for {
		line, err := br.ReadString('\n')
		if len(line) > 0 {
			for _, fp := range fingerprints {
				if strings.Contains(line, fp.code) {
					return fp.model, nil
				}
			}
		}
		if err == io.EOF {
			return BikeUnknown, nil
		}
		if err != nil {
			return BikeUnknown, fmt.Errorf("label bike: %w", err)
		}
	}
}
